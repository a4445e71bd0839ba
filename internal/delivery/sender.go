package delivery

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrChannelUnavailable is returned by a channel that has no credentials.
var ErrChannelUnavailable = errors.New("delivery channel not configured")

// Sender submits content to a single target. A nil error means the message
// was accepted by the channel, not that it reached the recipient.
type Sender interface {
	Send(ctx context.Context, target, content string) error
}

// LogSender writes messages to the request logger instead of delivering
// them. Only wired in development.
type LogSender struct {
	Channel string
}

func (l LogSender) Send(ctx context.Context, target, content string) error {
	zerolog.Ctx(ctx).Info().
		Str("channel", l.Channel).
		Str("target", target).
		Str("content", content).
		Msg("otp delivery (development)")
	return nil
}

// Unavailable rejects every send.
type Unavailable struct{}

func (Unavailable) Send(context.Context, string, string) error {
	return ErrChannelUnavailable
}

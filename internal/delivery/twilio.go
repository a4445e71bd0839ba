package delivery

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Ananth-NQI/appointment-gateway/internal/config"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSMS sends plain-text SMS through the Twilio REST API.
type TwilioSMS struct {
	api  messageCreator
	from string
}

func NewTwilioSMS(cfg config.TwilioConfig) *TwilioSMS {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSMS{api: client.Api, from: cfg.PhoneNumber}
}

func (t *TwilioSMS) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(to)
	params.SetBody(body)

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("to", to).Msg("twilio sms failed")
		return err
	}

	event := zerolog.Ctx(ctx).Info().Str("to", to)
	if resp != nil && resp.Sid != nil {
		event = event.Str("sid", *resp.Sid)
	}
	event.Msg("sms submitted")
	return nil
}

package delivery

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/appointment-gateway/internal/models"
)

//go:embed templates/otp_email.html
var templateFS embed.FS

var otpEmailTemplate = template.Must(template.ParseFS(templateFS, "templates/otp_email.html"))

// OTPMessage is what gets delivered to the customer.
type OTPMessage struct {
	AppName       string
	Code          string
	ExpiryMinutes int
}

// SMSText renders the plain-text SMS body.
func (m OTPMessage) SMSText() string {
	return fmt.Sprintf("Your %s verification code is %s. It expires in %d minutes.", m.AppName, m.Code, m.ExpiryMinutes)
}

// EmailHTML renders the HTML email body.
func (m OTPMessage) EmailHTML() (string, error) {
	var buf bytes.Buffer
	if err := otpEmailTemplate.Execute(&buf, m); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Recipient names where a code should go.
type Recipient struct {
	SendType models.SendType
	Email    string
	Mobile   string
}

// Dispatcher fans an OTP out to the channels chosen by the recipient.
type Dispatcher struct {
	email Sender
	sms   Sender
}

func NewDispatcher(email, sms Sender) *Dispatcher {
	return &Dispatcher{email: email, sms: sms}
}

// Deliver attempts every requested channel. With SendTypeBoth every channel
// must accept the message; with a single channel that channel must.
func (d *Dispatcher) Deliver(ctx context.Context, to Recipient, msg OTPMessage) error {
	if !to.SendType.Valid() {
		return fmt.Errorf("unknown send type %q", to.SendType)
	}
	log := zerolog.Ctx(ctx)

	var errs []error
	if to.SendType.IncludesEmail() {
		if err := d.sendEmail(ctx, to.Email, msg); err != nil {
			log.Warn().Err(err).Msg("otp email not sent")
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}
	if to.SendType.IncludesSMS() {
		if err := d.sms.Send(ctx, to.Mobile, msg.SMSText()); err != nil {
			log.Warn().Err(err).Msg("otp sms not sent")
			errs = append(errs, fmt.Errorf("sms: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) sendEmail(ctx context.Context, address string, msg OTPMessage) error {
	if address == "" {
		return errors.New("no email address")
	}
	body, err := msg.EmailHTML()
	if err != nil {
		return err
	}
	return d.email.Send(ctx, address, body)
}

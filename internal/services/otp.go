package services

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/appointment-gateway/internal/apperr"
	"github.com/Ananth-NQI/appointment-gateway/internal/config"
	"github.com/Ananth-NQI/appointment-gateway/internal/delivery"
	"github.com/Ananth-NQI/appointment-gateway/internal/models"
	"github.com/Ananth-NQI/appointment-gateway/internal/storage"
	"github.com/Ananth-NQI/appointment-gateway/internal/utils"
)

// MaxVerifyAttempts is the number of verify calls one code tolerates.
// It is independent of the daily quotas and is not configurable.
const MaxVerifyAttempts = 3

// Deliverer sends a code over the channels a recipient selected.
type Deliverer interface {
	Deliver(ctx context.Context, to delivery.Recipient, msg delivery.OTPMessage) error
}

type OTPService struct {
	quota    *QuotaStore
	ledger   *OTPLedger
	delivery Deliverer
	cfg      config.OTPConfig
	appName  string
	logCodes bool
	now      func() time.Time
}

func NewOTPService(store storage.Store, deliverer Deliverer, cfg config.Config) *OTPService {
	return &OTPService{
		quota:    NewQuotaStore(store, cfg.OTP, cfg.Booking),
		ledger:   NewOTPLedger(store),
		delivery: deliverer,
		cfg:      cfg.OTP,
		appName:  cfg.AppName,
		logCodes: cfg.IsDevelopment(),
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *OTPService) WithClock(now func() time.Time) *OTPService {
	s.now = now
	s.quota.now = now
	return s
}

type GenerateRequest struct {
	AccountNumber string
	Email         string
	Mobile        string
	SendType      models.SendType
}

type GenerateResult struct {
	ExpiresInMinutes int `json:"expires_in_minutes"`
}

type ResendResult struct {
	RemainingResends int `json:"remaining_resends"`
}

type OTPStatus struct {
	CanRequest        bool `json:"can_request"`
	RemainingAttempts int  `json:"remaining_attempts"`
	CanResend         bool `json:"can_resend"`
	RemainingResends  int  `json:"remaining_resends"`
}

// Generate issues a new code for the account and delivers it.
func (s *OTPService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	log := zerolog.Ctx(ctx).With().Str("account_number", req.AccountNumber).Logger()
	if req.SendType == "" {
		req.SendType = models.SendTypeBoth
	}
	now := s.now()

	limit, err := s.quota.Today(ctx, req.AccountNumber)
	if err != nil {
		log.Error().Err(err).Msg("load daily limit")
		return nil, apperr.New(apperr.SendFailed, "Failed to send OTP")
	}
	if s.quota.SendExceeded(limit) {
		return nil, apperr.Newf(apperr.DailyLimitExceeded, "Daily OTP limit exceeded. Maximum %d OTPs per day.", s.cfg.MaxAttemptsPerDay)
	}

	code, err := utils.GenerateSecureOTP(s.cfg.Length)
	if err != nil {
		log.Error().Err(err).Msg("generate otp")
		return nil, apperr.New(apperr.SendFailed, "Failed to send OTP")
	}

	record, created, err := s.ledger.Create(ctx, NewChallenge{
		AccountNumber: req.AccountNumber,
		Code:          code,
		SendType:      req.SendType,
		Email:         req.Email,
		Mobile:        req.Mobile,
		TTL:           time.Duration(s.cfg.ExpiryMinutes) * time.Minute,
	}, now)
	if err != nil {
		log.Error().Err(err).Msg("store otp")
		return nil, apperr.New(apperr.SendFailed, "Failed to send OTP")
	}
	if !created {
		minutes := record.RemainingMinutes(now)
		return nil, apperr.Newf(apperr.ActiveOtpExists, "An OTP is already active. Please wait %d minutes or use resend.", minutes).
			With("expires_in_minutes", minutes)
	}

	if err := s.deliver(ctx, record); err != nil {
		log.Warn().Err(err).Str("send_type", string(req.SendType)).Msg("otp delivery failed")
		if err := s.ledger.MarkSendFailed(ctx, record); err != nil {
			log.Error().Err(err).Msg("mark otp failed")
		}
		return nil, apperr.New(apperr.SendFailed, "Failed to send OTP")
	}

	if err := s.quota.RecordSend(ctx, limit); err != nil {
		log.Error().Err(err).Msg("increment send count")
	}

	event := log.Info().Str("send_type", string(req.SendType))
	if s.logCodes {
		event = event.Str("otp", code)
	}
	event.Msg("otp generated and sent")

	return &GenerateResult{ExpiresInMinutes: s.cfg.ExpiryMinutes}, nil
}

// Resend delivers the active code again without regenerating it.
func (s *OTPService) Resend(ctx context.Context, accountNumber string) (*ResendResult, error) {
	log := zerolog.Ctx(ctx).With().Str("account_number", accountNumber).Logger()

	limit, err := s.quota.Today(ctx, accountNumber)
	if err != nil {
		log.Error().Err(err).Msg("load daily limit")
		return nil, apperr.New(apperr.ResendFailed, "Failed to resend OTP")
	}
	if s.quota.ResendExceeded(limit) {
		return nil, apperr.Newf(apperr.ResendLimitExceeded, "Resend limit exceeded. Maximum %d resends per day.", s.cfg.MaxResendAttempts)
	}

	record, err := s.ledger.Active(ctx, accountNumber, s.now())
	if err != nil {
		log.Error().Err(err).Msg("load active otp")
		return nil, apperr.New(apperr.ResendFailed, "Failed to resend OTP")
	}
	if record == nil {
		return nil, apperr.New(apperr.NoActiveOtp, "No active OTP found. Please request a new OTP.")
	}

	if err := s.deliver(ctx, record); err != nil {
		log.Warn().Err(err).Msg("otp redelivery failed")
		return nil, apperr.New(apperr.ResendFailed, "Failed to resend OTP")
	}

	if err := s.quota.RecordResend(ctx, limit); err != nil {
		log.Error().Err(err).Msg("increment resend count")
	}
	log.Info().Msg("otp resent")

	return &ResendResult{RemainingResends: s.quota.RemainingResends(limit)}, nil
}

// Verify checks code against the account's active challenge. Every call
// counts as an attempt, including the one that succeeds.
func (s *OTPService) Verify(ctx context.Context, accountNumber, code string) error {
	log := zerolog.Ctx(ctx).With().Str("account_number", accountNumber).Logger()
	now := s.now()

	record, err := s.ledger.Active(ctx, accountNumber, now)
	if err != nil {
		log.Error().Err(err).Msg("load active otp")
		return apperr.New(apperr.ServerError, "Failed to verify OTP")
	}
	if record == nil {
		return apperr.New(apperr.NoActiveOtp, "No active OTP found or OTP expired")
	}

	if err := s.ledger.RecordAttempt(ctx, record); err != nil {
		log.Error().Err(err).Msg("record otp attempt")
		return apperr.New(apperr.ServerError, "Failed to verify OTP")
	}

	if !s.matches(record.OtpCode, code) {
		if record.AttemptCount >= MaxVerifyAttempts {
			if err := s.ledger.MarkFailed(ctx, record); err != nil {
				log.Error().Err(err).Msg("mark otp failed")
			}
			log.Warn().Msg("otp locked after max attempts")
			return apperr.New(apperr.MaxAttemptsExceeded, "Maximum verification attempts exceeded")
		}
		return apperr.New(apperr.InvalidOtp, "Invalid OTP").
			With("remaining_attempts", MaxVerifyAttempts-record.AttemptCount)
	}

	if err := s.ledger.MarkVerified(ctx, record, now); err != nil {
		log.Error().Err(err).Msg("mark otp verified")
		return apperr.New(apperr.ServerError, "Failed to verify OTP")
	}
	log.Info().Msg("otp verified")
	return nil
}

// Status reports the remaining daily quota for the account.
func (s *OTPService) Status(ctx context.Context, accountNumber string) (*OTPStatus, error) {
	limit, err := s.quota.Today(ctx, accountNumber)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("account_number", accountNumber).Msg("load daily limit")
		return nil, apperr.New(apperr.FetchFailed, "Failed to fetch OTP status")
	}
	return &OTPStatus{
		CanRequest:        !s.quota.SendExceeded(limit),
		RemainingAttempts: s.quota.RemainingSends(limit),
		CanResend:         !s.quota.ResendExceeded(limit),
		RemainingResends:  s.quota.RemainingResends(limit),
	}, nil
}

// ExpireStale is run periodically to retire lapsed challenges.
func (s *OTPService) ExpireStale(ctx context.Context) (int64, error) {
	return s.ledger.ExpireStale(ctx, s.now())
}

func (s *OTPService) matches(stored, supplied string) bool {
	if subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1 {
		return true
	}
	bypass := s.cfg.BypassCode
	return bypass != "" && subtle.ConstantTimeCompare([]byte(bypass), []byte(supplied)) == 1
}

func (s *OTPService) deliver(ctx context.Context, record *models.OtpLog) error {
	return s.delivery.Deliver(ctx,
		delivery.Recipient{SendType: record.SendType, Email: record.Email, Mobile: record.Mobile},
		delivery.OTPMessage{AppName: s.appName, Code: record.OtpCode, ExpiryMinutes: s.cfg.ExpiryMinutes},
	)
}

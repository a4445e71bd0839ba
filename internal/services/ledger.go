package services

import (
	"context"
	"errors"
	"time"

	"github.com/Ananth-NQI/appointment-gateway/internal/models"
	"github.com/Ananth-NQI/appointment-gateway/internal/storage"
)

// OTPLedger records issued codes and their verification state.
type OTPLedger struct {
	store storage.Store
}

func NewOTPLedger(store storage.Store) *OTPLedger {
	return &OTPLedger{store: store}
}

// NewChallenge describes a code about to be issued.
type NewChallenge struct {
	AccountNumber string
	Code          string
	SendType      models.SendType
	Email         string
	Mobile        string
	TTL           time.Duration
}

// Create stores an active record for c unless the account already has one,
// in which case the existing record is returned with created == false.
func (l *OTPLedger) Create(ctx context.Context, c NewChallenge, now time.Time) (record *models.OtpLog, created bool, err error) {
	record = &models.OtpLog{
		AccountNumber: c.AccountNumber,
		OtpCode:       c.Code,
		SendType:      c.SendType,
		Email:         c.Email,
		Mobile:        c.Mobile,
		ExpiresAt:     now.Add(c.TTL),
		Status:        models.OtpStatusActive,
	}
	existing, err := l.store.CreateOTPIfNoActive(ctx, record, now)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	return record, true, nil
}

// Active returns the newest active, unverified, unexpired record, or nil.
func (l *OTPLedger) Active(ctx context.Context, accountNumber string, now time.Time) (*models.OtpLog, error) {
	record, err := l.store.GetActiveOTP(ctx, accountNumber, now)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return record, err
}

// LatestVerified returns the newest verified record, or nil.
func (l *OTPLedger) LatestVerified(ctx context.Context, accountNumber string) (*models.OtpLog, error) {
	record, err := l.store.GetLatestVerifiedOTP(ctx, accountNumber)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return record, err
}

// RecordAttempt bumps attempt_count; record.AttemptCount is refreshed.
func (l *OTPLedger) RecordAttempt(ctx context.Context, record *models.OtpLog) error {
	return l.store.IncrementOTPAttempts(ctx, record)
}

func (l *OTPLedger) MarkFailed(ctx context.Context, record *models.OtpLog) error {
	return l.store.UpdateOTPStatus(ctx, record, models.OtpStatusFailed)
}

// MarkSendFailed retires a record whose code never reached the customer.
func (l *OTPLedger) MarkSendFailed(ctx context.Context, record *models.OtpLog) error {
	return l.store.UpdateOTPStatus(ctx, record, models.OtpStatusFailed)
}

func (l *OTPLedger) MarkVerified(ctx context.Context, record *models.OtpLog, now time.Time) error {
	return l.store.MarkOTPVerified(ctx, record, now)
}

// ExpireStale moves active records past their expiry to expired.
func (l *OTPLedger) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	return l.store.ExpireStaleOTPs(ctx, now)
}

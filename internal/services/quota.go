package services

import (
	"context"
	"time"

	"github.com/Ananth-NQI/appointment-gateway/internal/config"
	"github.com/Ananth-NQI/appointment-gateway/internal/models"
	"github.com/Ananth-NQI/appointment-gateway/internal/storage"
)

// QuotaStore counts OTP sends and resends per account per calendar day.
// Days roll over at midnight in the configured default timezone.
type QuotaStore struct {
	store     storage.Store
	maxSends  int
	maxResend int
	loc       *time.Location
	now       func() time.Time
}

func NewQuotaStore(store storage.Store, otp config.OTPConfig, booking config.BookingConfig) *QuotaStore {
	return &QuotaStore{
		store:     store,
		maxSends:  otp.MaxAttemptsPerDay,
		maxResend: otp.MaxResendAttempts,
		loc:       booking.Location(),
		now:       time.Now,
	}
}

// Today returns the counters for accountNumber, creating them at zero.
func (q *QuotaStore) Today(ctx context.Context, accountNumber string) (*models.OtpDailyLimit, error) {
	return q.store.GetOrCreateDailyLimit(ctx, accountNumber, q.today())
}

func (q *QuotaStore) today() string {
	return q.now().In(q.loc).Format(time.DateOnly)
}

func (q *QuotaStore) SendExceeded(limit *models.OtpDailyLimit) bool {
	return limit.HasExceededSendLimit(q.maxSends)
}

func (q *QuotaStore) ResendExceeded(limit *models.OtpDailyLimit) bool {
	return limit.HasExceededResendLimit(q.maxResend)
}

func (q *QuotaStore) RecordSend(ctx context.Context, limit *models.OtpDailyLimit) error {
	return q.store.IncrementSendCount(ctx, limit)
}

func (q *QuotaStore) RecordResend(ctx context.Context, limit *models.OtpDailyLimit) error {
	return q.store.IncrementResendCount(ctx, limit)
}

func (q *QuotaStore) RemainingSends(limit *models.OtpDailyLimit) int {
	return max(0, q.maxSends-limit.SendCount)
}

func (q *QuotaStore) RemainingResends(limit *models.OtpDailyLimit) int {
	return max(0, q.maxResend-limit.ResendCount)
}

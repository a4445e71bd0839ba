package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Ananth-NQI/appointment-gateway/internal/models"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for storage operations
type Store interface {
	// Quota operations
	GetOrCreateDailyLimit(ctx context.Context, accountNumber, date string) (*models.OtpDailyLimit, error)
	IncrementSendCount(ctx context.Context, limit *models.OtpDailyLimit) error
	IncrementResendCount(ctx context.Context, limit *models.OtpDailyLimit) error

	// OTP operations
	// CreateOTPIfNoActive inserts otp unless the account already has an
	// active, unexpired record at now, in which case that record is returned
	// and nothing is written.
	CreateOTPIfNoActive(ctx context.Context, otp *models.OtpLog, now time.Time) (existing *models.OtpLog, err error)
	GetActiveOTP(ctx context.Context, accountNumber string, now time.Time) (*models.OtpLog, error)
	GetLatestVerifiedOTP(ctx context.Context, accountNumber string) (*models.OtpLog, error)
	IncrementOTPAttempts(ctx context.Context, otp *models.OtpLog) error
	UpdateOTPStatus(ctx context.Context, otp *models.OtpLog, status models.OtpStatus) error
	MarkOTPVerified(ctx context.Context, otp *models.OtpLog, at time.Time) error
	ExpireStaleOTPs(ctx context.Context, now time.Time) (int64, error)

	// API key operations
	GetActiveAPIKeyByPurposeID(ctx context.Context, purposeID string) (*models.ApiKey, error)
	GetActiveAPIKeyByPurposeName(ctx context.Context, purposeName string) (*models.ApiKey, error)
	GetLatestActiveAPIKey(ctx context.Context) (*models.ApiKey, error)
	GetAPIKeyByPurposeID(ctx context.Context, purposeID string) (*models.ApiKey, error)
	GetAPIKey(ctx context.Context, id uint) (*models.ApiKey, error)
	ListAPIKeys(ctx context.Context) ([]*models.ApiKey, error)
	SaveAPIKey(ctx context.Context, key *models.ApiKey) error
	DeleteAPIKey(ctx context.Context, id uint) error

	// Appointment operations
	CreateAppointment(ctx context.Context, appointment *models.Appointment) error
	GetAppointment(ctx context.Context, id uint, accountNumber string) (*models.Appointment, error)
	ListAppointmentsByAccount(ctx context.Context, accountNumber string, status models.AppointmentStatus) ([]*models.Appointment, error)
	UpdateAppointment(ctx context.Context, appointment *models.Appointment) error
	ListPendingAppointmentsBefore(ctx context.Context, before time.Time) ([]*models.Appointment, error)

	// Transaction runs fn against a store bound to one transaction.
	Transaction(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
}

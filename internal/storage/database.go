package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Ananth-NQI/appointment-gateway/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseStore implements Store on top of gorm/postgres.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore wraps an open gorm connection.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Quota operations

func (s *DatabaseStore) GetOrCreateDailyLimit(ctx context.Context, accountNumber, date string) (*models.OtpDailyLimit, error) {
	db := s.db.WithContext(ctx)
	row := models.OtpDailyLimit{AccountNumber: accountNumber, Date: date}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_number"}, {Name: "date"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}

	var limit models.OtpDailyLimit
	if err := db.Where("account_number = ? AND date = ?", accountNumber, date).Take(&limit).Error; err != nil {
		return nil, notFound(err)
	}
	return &limit, nil
}

func (s *DatabaseStore) incrementColumn(ctx context.Context, limit *models.OtpDailyLimit, column string) error {
	var updated models.OtpDailyLimit
	err := s.db.WithContext(ctx).Model(&updated).
		Clauses(clause.Returning{}).
		Where("id = ?", limit.ID).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
	if err != nil {
		return err
	}
	limit.SendCount = updated.SendCount
	limit.ResendCount = updated.ResendCount
	limit.UpdatedAt = updated.UpdatedAt
	return nil
}

func (s *DatabaseStore) IncrementSendCount(ctx context.Context, limit *models.OtpDailyLimit) error {
	return s.incrementColumn(ctx, limit, "send_count")
}

func (s *DatabaseStore) IncrementResendCount(ctx context.Context, limit *models.OtpDailyLimit) error {
	return s.incrementColumn(ctx, limit, "resend_count")
}

// OTP operations

func activeOTPQuery(db *gorm.DB, accountNumber string, now time.Time) *gorm.DB {
	return db.Where("account_number = ? AND status = ? AND is_verified = ? AND expires_at > ?",
		accountNumber, models.OtpStatusActive, false, now).
		Order("created_at DESC").Order("id DESC")
}

func (s *DatabaseStore) CreateOTPIfNoActive(ctx context.Context, otp *models.OtpLog, now time.Time) (*models.OtpLog, error) {
	var existing *models.OtpLog
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serialises generate calls per account for the lifetime of the tx.
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", otp.AccountNumber).Error; err != nil {
			return err
		}

		var active models.OtpLog
		err := activeOTPQuery(tx, otp.AccountNumber, now).Take(&active).Error
		if err == nil {
			existing = &active
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(otp).Error
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *DatabaseStore) GetActiveOTP(ctx context.Context, accountNumber string, now time.Time) (*models.OtpLog, error) {
	var otp models.OtpLog
	if err := activeOTPQuery(s.db.WithContext(ctx), accountNumber, now).Take(&otp).Error; err != nil {
		return nil, notFound(err)
	}
	return &otp, nil
}

func (s *DatabaseStore) GetLatestVerifiedOTP(ctx context.Context, accountNumber string) (*models.OtpLog, error) {
	var otp models.OtpLog
	err := s.db.WithContext(ctx).
		Where("account_number = ? AND is_verified = ? AND status = ?", accountNumber, true, models.OtpStatusVerified).
		Order("created_at DESC").Order("id DESC").
		Take(&otp).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &otp, nil
}

func (s *DatabaseStore) IncrementOTPAttempts(ctx context.Context, otp *models.OtpLog) error {
	var updated models.OtpLog
	err := s.db.WithContext(ctx).Model(&updated).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "attempt_count"}}}).
		Where("id = ?", otp.ID).
		UpdateColumn("attempt_count", gorm.Expr("attempt_count + 1")).Error
	if err != nil {
		return err
	}
	otp.AttemptCount = updated.AttemptCount
	return nil
}

func (s *DatabaseStore) UpdateOTPStatus(ctx context.Context, otp *models.OtpLog, status models.OtpStatus) error {
	if err := s.db.WithContext(ctx).Model(otp).Update("status", status).Error; err != nil {
		return err
	}
	otp.Status = status
	return nil
}

func (s *DatabaseStore) MarkOTPVerified(ctx context.Context, otp *models.OtpLog, at time.Time) error {
	err := s.db.WithContext(ctx).Model(otp).Updates(map[string]any{
		"is_verified": true,
		"verified_at": at,
		"status":      models.OtpStatusVerified,
	}).Error
	if err != nil {
		return err
	}
	otp.IsVerified = true
	otp.VerifiedAt = &at
	otp.Status = models.OtpStatusVerified
	return nil
}

func (s *DatabaseStore) ExpireStaleOTPs(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.OtpLog{}).
		Where("status = ? AND expires_at <= ?", models.OtpStatusActive, now).
		Update("status", models.OtpStatusExpired)
	return res.RowsAffected, res.Error
}

// API key operations

func (s *DatabaseStore) firstAPIKey(ctx context.Context, query string, args ...any) (*models.ApiKey, error) {
	var key models.ApiKey
	if err := s.db.WithContext(ctx).Where(query, args...).Order("created_at DESC").Take(&key).Error; err != nil {
		return nil, notFound(err)
	}
	return &key, nil
}

func (s *DatabaseStore) GetActiveAPIKeyByPurposeID(ctx context.Context, purposeID string) (*models.ApiKey, error) {
	return s.firstAPIKey(ctx, "purpose_id = ? AND is_active = ?", purposeID, true)
}

func (s *DatabaseStore) GetActiveAPIKeyByPurposeName(ctx context.Context, purposeName string) (*models.ApiKey, error) {
	return s.firstAPIKey(ctx, "purpose_name = ? AND is_active = ?", purposeName, true)
}

func (s *DatabaseStore) GetLatestActiveAPIKey(ctx context.Context) (*models.ApiKey, error) {
	return s.firstAPIKey(ctx, "is_active = ?", true)
}

func (s *DatabaseStore) GetAPIKeyByPurposeID(ctx context.Context, purposeID string) (*models.ApiKey, error) {
	return s.firstAPIKey(ctx, "purpose_id = ?", purposeID)
}

func (s *DatabaseStore) GetAPIKey(ctx context.Context, id uint) (*models.ApiKey, error) {
	var key models.ApiKey
	if err := s.db.WithContext(ctx).Take(&key, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &key, nil
}

func (s *DatabaseStore) ListAPIKeys(ctx context.Context) ([]*models.ApiKey, error) {
	var keys []*models.ApiKey
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

func (s *DatabaseStore) SaveAPIKey(ctx context.Context, key *models.ApiKey) error {
	return s.db.WithContext(ctx).Save(key).Error
}

func (s *DatabaseStore) DeleteAPIKey(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.ApiKey{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Appointment operations

func (s *DatabaseStore) CreateAppointment(ctx context.Context, appointment *models.Appointment) error {
	return s.db.WithContext(ctx).Create(appointment).Error
}

func (s *DatabaseStore) GetAppointment(ctx context.Context, id uint, accountNumber string) (*models.Appointment, error) {
	var appointment models.Appointment
	err := s.db.WithContext(ctx).Where("id = ? AND account_number = ?", id, accountNumber).Take(&appointment).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &appointment, nil
}

func (s *DatabaseStore) ListAppointmentsByAccount(ctx context.Context, accountNumber string, status models.AppointmentStatus) ([]*models.Appointment, error) {
	query := s.db.WithContext(ctx).Where("account_number = ?", accountNumber)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var appointments []*models.Appointment
	err := query.Order("scheduled_date_time DESC").Find(&appointments).Error
	return appointments, err
}

func (s *DatabaseStore) UpdateAppointment(ctx context.Context, appointment *models.Appointment) error {
	return s.db.WithContext(ctx).Save(appointment).Error
}

func (s *DatabaseStore) ListPendingAppointmentsBefore(ctx context.Context, before time.Time) ([]*models.Appointment, error) {
	var appointments []*models.Appointment
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.AppointmentStatusPending, before).
		Order("created_at ASC").
		Find(&appointments).Error
	return appointments, err
}

func (s *DatabaseStore) Transaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DatabaseStore{db: tx})
	})
}

func (s *DatabaseStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

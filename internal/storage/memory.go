package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Ananth-NQI/appointment-gateway/internal/models"
)

// MemoryStore holds all data in memory for tests and single-node demos.
// Records are copied in and out so callers never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	limits       map[string]*models.OtpDailyLimit
	otps         []*models.OtpLog
	apiKeys      map[uint]*models.ApiKey
	appointments map[uint]*models.Appointment

	// Counters for ID generation
	limitCounter       uint
	otpCounter         uint
	apiKeyCounter      uint
	appointmentCounter uint

	now func() time.Time
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		limits:       make(map[string]*models.OtpDailyLimit),
		apiKeys:      make(map[uint]*models.ApiKey),
		appointments: make(map[uint]*models.Appointment),
		now:          time.Now,
	}
}

// WithClock replaces the clock used to stamp CreatedAt/UpdatedAt.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func limitKey(accountNumber, date string) string {
	return accountNumber + "|" + date
}

// Quota operations

func (m *MemoryStore) GetOrCreateDailyLimit(_ context.Context, accountNumber, date string) (*models.OtpDailyLimit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := limitKey(accountNumber, date)
	limit, exists := m.limits[key]
	if !exists {
		m.limitCounter++
		now := m.now()
		limit = &models.OtpDailyLimit{
			ID:            m.limitCounter,
			AccountNumber: accountNumber,
			Date:          date,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		m.limits[key] = limit
	}
	cp := *limit
	return &cp, nil
}

func (m *MemoryStore) increment(limit *models.OtpDailyLimit, resend bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.limits[limitKey(limit.AccountNumber, limit.Date)]
	if !exists {
		return ErrNotFound
	}
	if resend {
		stored.ResendCount++
	} else {
		stored.SendCount++
	}
	stored.UpdatedAt = m.now()
	*limit = *stored
	return nil
}

func (m *MemoryStore) IncrementSendCount(_ context.Context, limit *models.OtpDailyLimit) error {
	return m.increment(limit, false)
}

func (m *MemoryStore) IncrementResendCount(_ context.Context, limit *models.OtpDailyLimit) error {
	return m.increment(limit, true)
}

// OTP operations

// activeLocked returns the newest active record for the account. Caller holds mu.
func (m *MemoryStore) activeLocked(accountNumber string, now time.Time) *models.OtpLog {
	for i := len(m.otps) - 1; i >= 0; i-- {
		otp := m.otps[i]
		if otp.AccountNumber == accountNumber && otp.IsActive(now) {
			return otp
		}
	}
	return nil
}

func (m *MemoryStore) findOTPLocked(id uint) *models.OtpLog {
	for _, otp := range m.otps {
		if otp.ID == id {
			return otp
		}
	}
	return nil
}

func (m *MemoryStore) CreateOTPIfNoActive(_ context.Context, otp *models.OtpLog, now time.Time) (*models.OtpLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if active := m.activeLocked(otp.AccountNumber, now); active != nil {
		cp := *active
		return &cp, nil
	}

	m.otpCounter++
	stamp := m.now()
	otp.ID = m.otpCounter
	otp.CreatedAt = stamp
	otp.UpdatedAt = stamp
	if otp.Status == "" {
		otp.Status = models.OtpStatusActive
	}
	stored := *otp
	m.otps = append(m.otps, &stored)
	return nil, nil
}

func (m *MemoryStore) GetActiveOTP(_ context.Context, accountNumber string, now time.Time) (*models.OtpLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := m.activeLocked(accountNumber, now)
	if active == nil {
		return nil, ErrNotFound
	}
	cp := *active
	return &cp, nil
}

func (m *MemoryStore) GetLatestVerifiedOTP(_ context.Context, accountNumber string) (*models.OtpLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.otps) - 1; i >= 0; i-- {
		otp := m.otps[i]
		if otp.AccountNumber == accountNumber && otp.IsVerified && otp.Status == models.OtpStatusVerified {
			cp := *otp
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) IncrementOTPAttempts(_ context.Context, otp *models.OtpLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.findOTPLocked(otp.ID)
	if stored == nil {
		return ErrNotFound
	}
	stored.AttemptCount++
	stored.UpdatedAt = m.now()
	otp.AttemptCount = stored.AttemptCount
	return nil
}

func (m *MemoryStore) UpdateOTPStatus(_ context.Context, otp *models.OtpLog, status models.OtpStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.findOTPLocked(otp.ID)
	if stored == nil {
		return ErrNotFound
	}
	stored.Status = status
	stored.UpdatedAt = m.now()
	otp.Status = status
	return nil
}

func (m *MemoryStore) MarkOTPVerified(_ context.Context, otp *models.OtpLog, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.findOTPLocked(otp.ID)
	if stored == nil {
		return ErrNotFound
	}
	stored.IsVerified = true
	stored.VerifiedAt = &at
	stored.Status = models.OtpStatusVerified
	stored.UpdatedAt = m.now()
	*otp = *stored
	return nil
}

func (m *MemoryStore) ExpireStaleOTPs(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, otp := range m.otps {
		if otp.Status == models.OtpStatusActive && otp.IsExpired(now) {
			otp.Status = models.OtpStatusExpired
			otp.UpdatedAt = m.now()
			n++
		}
	}
	return n, nil
}

// OTPs returns a snapshot of every ledger row, oldest first.
func (m *MemoryStore) OTPs() []models.OtpLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.OtpLog, 0, len(m.otps))
	for _, otp := range m.otps {
		out = append(out, *otp)
	}
	return out
}

// API key operations

// newestAPIKey returns the most recently created key matching pred. Caller holds mu.
func (m *MemoryStore) newestAPIKey(pred func(*models.ApiKey) bool) (*models.ApiKey, error) {
	var best *models.ApiKey
	for _, key := range m.apiKeys {
		if !pred(key) {
			continue
		}
		if best == nil || key.CreatedAt.After(best.CreatedAt) || (key.CreatedAt.Equal(best.CreatedAt) && key.ID > best.ID) {
			best = key
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *MemoryStore) GetActiveAPIKeyByPurposeID(_ context.Context, purposeID string) (*models.ApiKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.newestAPIKey(func(k *models.ApiKey) bool { return k.PurposeID == purposeID && k.IsActive })
}

func (m *MemoryStore) GetActiveAPIKeyByPurposeName(_ context.Context, purposeName string) (*models.ApiKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.newestAPIKey(func(k *models.ApiKey) bool { return k.PurposeName == purposeName && k.IsActive })
}

func (m *MemoryStore) GetLatestActiveAPIKey(_ context.Context) (*models.ApiKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.newestAPIKey(func(k *models.ApiKey) bool { return k.IsActive })
}

func (m *MemoryStore) GetAPIKeyByPurposeID(_ context.Context, purposeID string) (*models.ApiKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.newestAPIKey(func(k *models.ApiKey) bool { return k.PurposeID == purposeID })
}

func (m *MemoryStore) GetAPIKey(_ context.Context, id uint) (*models.ApiKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, exists := m.apiKeys[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *key
	return &cp, nil
}

func (m *MemoryStore) ListAPIKeys(_ context.Context) ([]*models.ApiKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]*models.ApiKey, 0, len(m.apiKeys))
	for _, key := range m.apiKeys {
		cp := *key
		keys = append(keys, &cp)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CreatedAt.Equal(keys[j].CreatedAt) {
			return keys[i].ID > keys[j].ID
		}
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys, nil
}

func (m *MemoryStore) SaveAPIKey(_ context.Context, key *models.ApiKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if key.ID == 0 {
		m.apiKeyCounter++
		key.ID = m.apiKeyCounter
		key.CreatedAt = now
	} else if _, exists := m.apiKeys[key.ID]; !exists {
		return ErrNotFound
	}
	key.UpdatedAt = now
	stored := *key
	m.apiKeys[key.ID] = &stored
	return nil
}

func (m *MemoryStore) DeleteAPIKey(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.apiKeys[id]; !exists {
		return ErrNotFound
	}
	delete(m.apiKeys, id)
	return nil
}

// Appointment operations

func (m *MemoryStore) CreateAppointment(_ context.Context, appointment *models.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appointmentCounter++
	now := m.now()
	appointment.ID = m.appointmentCounter
	appointment.CreatedAt = now
	appointment.UpdatedAt = now
	if appointment.Status == "" {
		appointment.Status = models.AppointmentStatusPending
	}
	stored := *appointment
	m.appointments[appointment.ID] = &stored
	return nil
}

func (m *MemoryStore) GetAppointment(_ context.Context, id uint, accountNumber string) (*models.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	appointment, exists := m.appointments[id]
	if !exists || appointment.AccountNumber != accountNumber {
		return nil, ErrNotFound
	}
	cp := *appointment
	return &cp, nil
}

func (m *MemoryStore) ListAppointmentsByAccount(_ context.Context, accountNumber string, status models.AppointmentStatus) ([]*models.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*models.Appointment
	for _, appointment := range m.appointments {
		if appointment.AccountNumber != accountNumber {
			continue
		}
		if status != "" && appointment.Status != status {
			continue
		}
		cp := *appointment
		results = append(results, &cp)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ScheduledDateTime.After(results[j].ScheduledDateTime)
	})
	return results, nil
}

func (m *MemoryStore) UpdateAppointment(_ context.Context, appointment *models.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.appointments[appointment.ID]; !exists {
		return ErrNotFound
	}
	appointment.UpdatedAt = m.now()
	stored := *appointment
	m.appointments[appointment.ID] = &stored
	return nil
}

func (m *MemoryStore) ListPendingAppointmentsBefore(_ context.Context, before time.Time) ([]*models.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*models.Appointment
	for _, appointment := range m.appointments {
		if appointment.Status == models.AppointmentStatusPending && appointment.CreatedAt.Before(before) {
			cp := *appointment
			results = append(results, &cp)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

// Transaction runs fn directly; the memory store has no rollback.
func (m *MemoryStore) Transaction(_ context.Context, fn func(Store) error) error {
	return fn(m)
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

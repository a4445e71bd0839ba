package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Ananth-NQI/appointment-gateway/internal/config"
	"github.com/Ananth-NQI/appointment-gateway/internal/delivery"
	"github.com/Ananth-NQI/appointment-gateway/internal/models"
	"github.com/Ananth-NQI/appointment-gateway/internal/provider"
)

var errUpstream = errors.New("upstream unavailable")

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Environment = "test"
	cfg.Booking.DefaultTimezone = "UTC"
	return cfg
}

// MockDeliverer records every delivery and fails when Err is set.
type MockDeliverer struct {
	Err        error
	Recipients []delivery.Recipient
	Codes      []string
}

func (m *MockDeliverer) Deliver(_ context.Context, to delivery.Recipient, msg delivery.OTPMessage) error {
	m.Recipients = append(m.Recipients, to)
	m.Codes = append(m.Codes, msg.Code)
	return m.Err
}

// MockProvider dispatches to its Func fields and counts calls.
type MockProvider struct {
	LocationsFunc         func(apiKey, purposeID, targetDate string) ([]models.Location, error)
	PurposesFunc          func(apiKey string) ([]models.Purpose, error)
	UsersFunc             func(apiKey string) ([]models.StaffUser, error)
	SlotsFunc             func(apiKey string, q provider.SlotQuery) (models.SlotSchedule, error)
	CreateAppointmentFunc func(apiKey string, req provider.BookingRequest) (json.RawMessage, error)

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockProvider) count(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

func (m *MockProvider) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *MockProvider) Locations(_ context.Context, apiKey, purposeID, targetDate string) ([]models.Location, error) {
	m.count("locations")
	if m.LocationsFunc == nil {
		return nil, nil
	}
	return m.LocationsFunc(apiKey, purposeID, targetDate)
}

func (m *MockProvider) Purposes(_ context.Context, apiKey string) ([]models.Purpose, error) {
	m.count("purposes")
	if m.PurposesFunc == nil {
		return nil, nil
	}
	return m.PurposesFunc(apiKey)
}

func (m *MockProvider) Users(_ context.Context, apiKey string) ([]models.StaffUser, error) {
	m.count("users")
	if m.UsersFunc == nil {
		return nil, nil
	}
	return m.UsersFunc(apiKey)
}

func (m *MockProvider) Slots(_ context.Context, apiKey string, q provider.SlotQuery) (models.SlotSchedule, error) {
	m.count("slots")
	if m.SlotsFunc == nil {
		return models.SlotSchedule{}, nil
	}
	return m.SlotsFunc(apiKey, q)
}

func (m *MockProvider) CreateAppointment(_ context.Context, apiKey string, req provider.BookingRequest) (json.RawMessage, error) {
	m.count("create")
	if m.CreateAppointmentFunc == nil {
		return json.RawMessage(`{}`), nil
	}
	return m.CreateAppointmentFunc(apiKey, req)
}

func defaultLocations(string, string, string) ([]models.Location, error) {
	return []models.Location{
		{LocationID: "loc-branch", Name: "Branch"},
		{LocationID: "loc-main", Name: "Main Office", IsDefault: true, PurposeName: "License Renewal"},
	}, nil
}

package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Ananth-NQI/appointment-gateway/internal/apperr"
	"github.com/Ananth-NQI/appointment-gateway/internal/cache"
	"github.com/Ananth-NQI/appointment-gateway/internal/models"
	"github.com/Ananth-NQI/appointment-gateway/internal/provider"
	"github.com/Ananth-NQI/appointment-gateway/internal/storage"
)

type appointmentFixture struct {
	store    *storage.MemoryStore
	provider *MockProvider
	clock    *testClock
	service  *AppointmentService
}

func newAppointmentFixture(t *testing.T) *appointmentFixture {
	t.Helper()
	cfg := testConfig()
	f := &appointmentFixture{
		store:    storage.NewMemoryStore(),
		provider: &MockProvider{LocationsFunc: defaultLocations},
		clock:    newTestClock(),
	}
	lookups := NewLookupService(f.store, f.provider, cache.NewMemoryCache(), cfg).WithClock(f.clock.Now)
	f.service = NewAppointmentService(f.store, f.provider, lookups, cfg).WithClock(f.clock.Now)

	ctx := context.Background()
	_ = f.store.SaveAPIKey(ctx, &models.ApiKey{PurposeID: "purpose-1", PurposeName: "license-renewal", Secret: "secret-1", IsActive: true})
	return f
}

// verify leaves a verified OTP for the account stamped at the current time.
func (f *appointmentFixture) verify(t *testing.T, account string) {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()
	otp := &models.OtpLog{AccountNumber: account, OtpCode: "482913", ExpiresAt: now.Add(10 * time.Minute), Status: models.OtpStatusActive}
	if _, err := f.store.CreateOTPIfNoActive(ctx, otp, now); err != nil {
		t.Fatalf("seed otp: %v", err)
	}
	if err := f.store.MarkOTPVerified(ctx, otp, now); err != nil {
		t.Fatalf("verify otp: %v", err)
	}
}

func (f *appointmentFixture) request() CreateAppointmentRequest {
	scheduled := f.clock.Now().Add(48 * time.Hour)
	return CreateAppointmentRequest{
		AccountNumber:     "ACC001",
		CustomerName:      "Sita Sharma",
		CustomerEmail:     "sita@example.com",
		CustomerPhone:     "9800000000",
		PurposeID:         "purpose-1",
		ProposedDateTime:  scheduled,
		ScheduledDateTime: scheduled,
		Remarks:           "first visit",
	}
}

func TestCreateAppointment(t *testing.T) {
	f := newAppointmentFixture(t)
	f.verify(t, "ACC001")

	var sent provider.BookingRequest
	f.provider.CreateAppointmentFunc = func(apiKey string, req provider.BookingRequest) (json.RawMessage, error) {
		if apiKey != "secret-1" {
			t.Errorf("expected purpose api key, got %q", apiKey)
		}
		// The pending row already exists when the provider is called.
		pending, _ := f.store.ListPendingAppointmentsBefore(context.Background(), time.Now().Add(time.Hour))
		if len(pending) != 1 || pending[0].ReferenceIdentifier != req.ReferenceIdentifier {
			t.Errorf("expected pending row with reference before remote call, got %+v", pending)
		}
		sent = req
		return json.RawMessage(`{"id":"remote-1"}`), nil
	}

	created, err := f.service.Create(context.Background(), f.request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Status != "confirmed" || created.LocationName != "Main Office" || created.PurposeName != "License Renewal" {
		t.Fatalf("unexpected result %+v", created)
	}
	if !strings.HasPrefix(sent.ReferenceIdentifier, "APP-") || sent.CustomerLocationID != "loc-main" {
		t.Fatalf("unexpected payload %+v", sent)
	}
	if sent.AppointmentConfirmedDateTime != nil || sent.AssignedStaffID != nil {
		t.Fatalf("expected null confirmed time and staff")
	}
	if sent.CustomerTimeZone != "UTC" || sent.AgentTimeZone != "UTC" {
		t.Fatalf("expected default timezones, got %q/%q", sent.CustomerTimeZone, sent.AgentTimeZone)
	}

	stored, err := f.store.GetAppointment(context.Background(), created.AppointmentID, "ACC001")
	if err != nil {
		t.Fatalf("load stored: %v", err)
	}
	if stored.Status != models.AppointmentStatusConfirmed || string(stored.ExternalResponse) != `{"id":"remote-1"}` {
		t.Fatalf("expected confirmed row with provider response, got %+v", stored)
	}
}

func TestCreateAppointmentPreconditions(t *testing.T) {
	f := newAppointmentFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.request())
	expectCode(t, err, apperr.OtpNotVerified)

	f.verify(t, "ACC001")
	f.clock.Advance(31 * time.Minute)
	_, err = f.service.Create(ctx, f.request())
	expectCode(t, err, apperr.OtpExpired)

	f.verify(t, "ACC001")
	req := f.request()
	req.PurposeID = "purpose-unknown"
	_, err = f.service.Create(ctx, req)
	expectCode(t, err, apperr.APIKeyNotFound)

	f.provider.LocationsFunc = func(string, string, string) ([]models.Location, error) { return nil, errUpstream }
	_, err = f.service.Create(ctx, f.request())
	expectCode(t, err, apperr.FetchFailed)

	f.provider.LocationsFunc = func(string, string, string) ([]models.Location, error) {
		return []models.Location{{LocationID: "loc-branch"}}, nil
	}
	_, err = f.service.Create(ctx, f.request())
	expectCode(t, err, apperr.NoDefaultLocation)

	if f.provider.Calls("create") != 0 {
		t.Fatalf("expected no booking call when preconditions fail")
	}
	if list, _ := f.store.ListAppointmentsByAccount(ctx, "ACC001", ""); len(list) != 0 {
		t.Fatalf("expected no local rows, got %d", len(list))
	}
}

func TestCreateAppointmentVerificationWindowWholeMinutes(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		expired bool
	}{
		{"just verified", 0, false},
		{"exactly thirty minutes", 30 * time.Minute, false},
		{"partial thirty-first minute", 30*time.Minute + 59*time.Second, false},
		{"thirty-one minutes", 31 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAppointmentFixture(t)
			f.verify(t, "ACC001")
			f.clock.Advance(tt.elapsed)

			_, err := f.service.Create(context.Background(), f.request())
			if tt.expired {
				expectCode(t, err, apperr.OtpExpired)
				return
			}
			if err != nil {
				t.Fatalf("expected booking within window, got %v", err)
			}
		})
	}
}

func TestCreateAppointmentExplicitLocation(t *testing.T) {
	f := newAppointmentFixture(t)
	f.verify(t, "ACC001")

	var sent provider.BookingRequest
	f.provider.CreateAppointmentFunc = func(_ string, req provider.BookingRequest) (json.RawMessage, error) {
		sent = req
		return nil, nil
	}

	req := f.request()
	req.LocationID = "loc-branch"
	req.AssignedStaffID = "staff-9"
	created, err := f.service.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent.CustomerLocationID != "loc-branch" || created.LocationName != "Branch" {
		t.Fatalf("expected explicit location honored, got %q / %q", sent.CustomerLocationID, created.LocationName)
	}
	if sent.AssignedStaffID == nil || *sent.AssignedStaffID != "staff-9" {
		t.Fatalf("expected staff id forwarded")
	}
}

func TestCreateAppointmentRemoteFailure(t *testing.T) {
	f := newAppointmentFixture(t)
	f.verify(t, "ACC001")
	f.provider.CreateAppointmentFunc = func(string, provider.BookingRequest) (json.RawMessage, error) {
		return nil, errUpstream
	}

	_, err := f.service.Create(context.Background(), f.request())
	expectCode(t, err, apperr.CreateFailed)

	list, _ := f.store.ListAppointmentsByAccount(context.Background(), "ACC001", "")
	if len(list) != 1 || list[0].Status != models.AppointmentStatusCancelled {
		t.Fatalf("expected compensated cancelled row, got %+v", list)
	}
}

func seedAppointment(t *testing.T, store *storage.MemoryStore, account string, status models.AppointmentStatus, scheduled time.Time) *models.Appointment {
	t.Helper()
	a := &models.Appointment{AccountNumber: account, CustomerName: "Sita", PurposeName: "License", ScheduledDateTime: scheduled, Status: status}
	if err := store.CreateAppointment(context.Background(), a); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	return a
}

func TestListByAccount(t *testing.T) {
	f := newAppointmentFixture(t)
	base := time.Date(2026, 11, 1, 10, 0, 0, 0, time.UTC)
	seedAppointment(t, f.store, "ACC001", models.AppointmentStatusConfirmed, base)
	seedAppointment(t, f.store, "ACC001", models.AppointmentStatusCancelled, base.Add(24*time.Hour))
	seedAppointment(t, f.store, "ACC002", models.AppointmentStatusConfirmed, base)

	all, err := f.service.ListByAccount(context.Background(), "ACC001", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 || all[0].ScheduledDateTime != "2026-11-02 10:00:00" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	confirmed, _ := f.service.ListByAccount(context.Background(), "ACC001", models.AppointmentStatusConfirmed)
	if len(confirmed) != 1 || confirmed[0].Status != "confirmed" {
		t.Fatalf("expected status filter applied, got %+v", confirmed)
	}
}

func TestCancel(t *testing.T) {
	f := newAppointmentFixture(t)
	ctx := context.Background()
	confirmed := seedAppointment(t, f.store, "ACC001", models.AppointmentStatusConfirmed, f.clock.Now())
	completed := seedAppointment(t, f.store, "ACC001", models.AppointmentStatusCompleted, f.clock.Now())

	expectCode(t, f.service.Cancel(ctx, confirmed.ID, "ACC002"), apperr.NotFound)
	expectCode(t, f.service.Cancel(ctx, 999, "ACC001"), apperr.NotFound)

	if err := f.service.Cancel(ctx, confirmed.ID, "ACC001"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	expectCode(t, f.service.Cancel(ctx, confirmed.ID, "ACC001"), apperr.AlreadyCancelled)
	expectCode(t, f.service.Cancel(ctx, completed.ID, "ACC001"), apperr.AlreadyCompleted)
}

func TestStalePending(t *testing.T) {
	f := newAppointmentFixture(t)
	seedAppointment(t, f.store, "ACC001", models.AppointmentStatusPending, f.clock.Now())

	f.clock.t = time.Now().Add(20 * time.Minute)
	stale, err := f.service.StalePending(context.Background(), 15*time.Minute)
	if err != nil || len(stale) != 1 {
		t.Fatalf("expected one stale pending booking, got %d err=%v", len(stale), err)
	}
}

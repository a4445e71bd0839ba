package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/appointment-gateway/internal/cache"
	"github.com/Ananth-NQI/appointment-gateway/internal/config"
	"github.com/Ananth-NQI/appointment-gateway/internal/delivery"
	"github.com/Ananth-NQI/appointment-gateway/internal/middleware"
	"github.com/Ananth-NQI/appointment-gateway/internal/models"
	"github.com/Ananth-NQI/appointment-gateway/internal/provider"
	"github.com/Ananth-NQI/appointment-gateway/internal/services"
	"github.com/Ananth-NQI/appointment-gateway/internal/storage"
)

const (
	testPurposeID  = "8d9b7c1e-2f3a-4b5c-9d8e-7f6a5b4c3d2e"
	testLocationID = "1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d"
	testAccount    = "ACC-10001"
)

type captureDeliverer struct {
	mu    sync.Mutex
	codes []string
}

func (d *captureDeliverer) Deliver(_ context.Context, _ delivery.Recipient, msg delivery.OTPMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.codes = append(d.codes, msg.Code)
	return nil
}

func (d *captureDeliverer) last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.codes) == 0 {
		return ""
	}
	return d.codes[len(d.codes)-1]
}

type fakeProvider struct {
	createErr error
	bookings  []provider.BookingRequest
}

func (p *fakeProvider) Locations(context.Context, string, string, string) ([]models.Location, error) {
	return []models.Location{
		{LocationID: testLocationID, Name: "Main Office", IsDefault: true, PurposeName: "License Renewal"},
	}, nil
}

func (p *fakeProvider) Purposes(context.Context, string) ([]models.Purpose, error) {
	return []models.Purpose{{ID: testPurposeID, SystemName: "license-renewal", DisplayName: "License Renewal", IsActive: true}}, nil
}

func (p *fakeProvider) Users(context.Context, string) ([]models.StaffUser, error) {
	return []models.StaffUser{{ID: "u-1", Name: "Asha", IsActive: true}}, nil
}

func (p *fakeProvider) Slots(_ context.Context, _ string, q provider.SlotQuery) (models.SlotSchedule, error) {
	return models.SlotSchedule{Date: q.Date, Slots: []models.Slot{{StartTime: "10:00", EndTime: "10:30", IsValid: true}}}, nil
}

func (p *fakeProvider) CreateAppointment(_ context.Context, _ string, req provider.BookingRequest) (json.RawMessage, error) {
	p.bookings = append(p.bookings, req)
	if p.createErr != nil {
		return nil, p.createErr
	}
	return json.RawMessage(`{"id":"remote-1"}`), nil
}

type fixture struct {
	app       *fiber.App
	store     *storage.MemoryStore
	deliverer *captureDeliverer
	provider  *fakeProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Environment = "test"
	cfg.Booking.DefaultTimezone = "UTC"

	store := storage.NewMemoryStore()
	if err := store.SaveAPIKey(context.Background(), &models.ApiKey{
		PurposeID: testPurposeID, PurposeName: "license-renewal", Secret: "secret-key-123", IsActive: true,
	}); err != nil {
		t.Fatalf("seed api key: %v", err)
	}

	f := &fixture{store: store, deliverer: &captureDeliverer{}, provider: &fakeProvider{}}
	lookups := services.NewLookupService(store, f.provider, cache.NewMemoryCache(), cfg)
	otpHandler := NewOTPHandler(services.NewOTPService(store, f.deliverer, cfg))
	appointments := NewAppointmentHandler(lookups, services.NewAppointmentService(store, f.provider, lookups, cfg), time.UTC)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Post("/otp/generate", otpHandler.Generate)
	app.Post("/otp/resend", otpHandler.Resend)
	app.Post("/otp/verify", otpHandler.Verify)
	app.Get("/otp/status/:accountNumber", otpHandler.Status)
	app.Get("/appointments/purposes/:purposeName?", appointments.Purposes)
	app.Get("/appointments/locations/:purposeId", appointments.Locations)
	app.Post("/appointments/slots", appointments.Slots)
	app.Post("/appointments/create", appointments.Create)
	app.Get("/appointments/account/:accountNumber", appointments.ListByAccount)
	app.Post("/appointments/:appointmentId/cancel", appointments.Cancel)
	f.app = app
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var payload string
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		payload = string(raw)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	if payload != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func (f *fixture) verify(t *testing.T) {
	t.Helper()
	status, body := f.do(t, "POST", "/otp/generate", map[string]string{
		"account_number": testAccount,
		"email":          "customer@example.com",
		"mobile":         "9800000000",
	})
	if status != fiber.StatusOK {
		t.Fatalf("generate: expected 200, got %d %v", status, body)
	}
	status, body = f.do(t, "POST", "/otp/verify", map[string]string{
		"account_number": testAccount,
		"otp_code":       f.deliverer.last(),
	})
	if status != fiber.StatusOK {
		t.Fatalf("verify: expected 200, got %d %v", status, body)
	}
}

func bookingBody(scheduled time.Time) map[string]string {
	return map[string]string{
		"account_number":      testAccount,
		"customer_name":       "Ram Thapa",
		"customer_email":      "customer@example.com",
		"customer_phone":      "9800000000",
		"purpose_id":          testPurposeID,
		"proposed_date_time":  scheduled.Format("2006-01-02 15:04:05"),
		"scheduled_date_time": scheduled.Format("2006-01-02 15:04:05"),
	}
}

func TestGenerateValidation(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, "POST", "/otp/generate", map[string]string{
		"account_number": testAccount,
		"email":          "not-an-email",
		"mobile":         "9800000000",
		"send_type":      "pigeon",
	})
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	errs, _ := body["errors"].(map[string]any)
	if _, ok := errs["email"]; !ok {
		t.Fatalf("expected email error, got %v", body["errors"])
	}
	if _, ok := errs["send_type"]; !ok {
		t.Fatalf("expected send_type error, got %v", body["errors"])
	}
}

func TestGenerateReportsExpiry(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, "POST", "/otp/generate", map[string]string{
		"account_number": testAccount,
		"email":          "customer@example.com",
		"mobile":         "9800000000",
		"send_type":      "email",
	})
	if status != fiber.StatusOK || body["message"] != "OTP sent successfully" {
		t.Fatalf("expected success, got %d %v", status, body)
	}
	data, _ := body["data"].(map[string]any)
	if data["expires_in_minutes"] != float64(10) {
		t.Fatalf("expected expires_in_minutes 10, got %v", data["expires_in_minutes"])
	}

	status, body = f.do(t, "POST", "/otp/generate", map[string]string{
		"account_number": testAccount,
		"email":          "customer@example.com",
		"mobile":         "9800000000",
	})
	if status != fiber.StatusBadRequest || body["error_code"] != "ACTIVE_OTP_EXISTS" {
		t.Fatalf("expected ACTIVE_OTP_EXISTS, got %d %v", status, body)
	}
}

func TestVerifyWrongCodeReportsRemainingAttempts(t *testing.T) {
	f := newFixture(t)
	f.do(t, "POST", "/otp/generate", map[string]string{
		"account_number": testAccount,
		"email":          "customer@example.com",
		"mobile":         "9800000000",
	})

	wrong := "000000"
	if f.deliverer.last() == wrong {
		wrong = "111111"
	}
	status, body := f.do(t, "POST", "/otp/verify", map[string]string{
		"account_number": testAccount,
		"otp_code":       wrong,
	})
	if status != fiber.StatusBadRequest || body["error_code"] != "INVALID_OTP" {
		t.Fatalf("expected INVALID_OTP, got %d %v", status, body)
	}
	if body["remaining_attempts"] != float64(2) {
		t.Fatalf("expected remaining_attempts 2, got %v", body["remaining_attempts"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, "GET", "/otp/status/"+testAccount, nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	data, _ := body["data"].(map[string]any)
	if data["can_request"] != true || data["remaining_attempts"] != float64(5) {
		t.Fatalf("unexpected status payload: %v", data)
	}
}

func TestPurposesByName(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, "GET", "/appointments/purposes/license-renewal", nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d %v", status, body)
	}
	data, _ := body["data"].(map[string]any)
	if data["id"] != testPurposeID {
		t.Fatalf("expected purpose %s, got %v", testPurposeID, data)
	}

	status, body = f.do(t, "GET", "/appointments/purposes", nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if list, _ := body["data"].([]any); len(list) != 1 {
		t.Fatalf("expected 1 purpose, got %v", body["data"])
	}
}

func TestLocationsRejectsPastDate(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, "GET", "/appointments/locations/"+testPurposeID+"?target_date=2001-01-01", nil)
	if status != fiber.StatusBadRequest || body["error_code"] != "INVALID_DATE" {
		t.Fatalf("expected INVALID_DATE, got %d %v", status, body)
	}

	status, body = f.do(t, "GET", "/appointments/locations/"+testPurposeID, nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d %v", status, body)
	}
}

func TestSlotsUsesDefaultLocation(t *testing.T) {
	f := newFixture(t)
	date := time.Now().UTC().Add(24 * time.Hour).Format(time.DateOnly)
	status, body := f.do(t, "POST", "/appointments/slots", map[string]any{
		"date":       date,
		"purpose_id": testPurposeID,
	})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d %v", status, body)
	}
	data, _ := body["data"].(map[string]any)
	if data["date"] != date {
		t.Fatalf("expected date %s, got %v", date, data["date"])
	}

	status, _ = f.do(t, "POST", "/appointments/slots", map[string]any{
		"date":               date,
		"purpose_id":         testPurposeID,
		"assigned_staff_ids": []string{"not-a-uuid"},
	})
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad staff id, got %d", status)
	}
}

func TestCreateRequiresVerification(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, "POST", "/appointments/create", bookingBody(time.Now().UTC().Add(48*time.Hour)))
	if status != fiber.StatusBadRequest || body["error_code"] != "OTP_NOT_VERIFIED" {
		t.Fatalf("expected OTP_NOT_VERIFIED, got %d %v", status, body)
	}
	if len(f.provider.bookings) != 0 {
		t.Fatalf("expected no provider call, got %d", len(f.provider.bookings))
	}
}

func TestCreateRejectsPastSchedule(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, "POST", "/appointments/create", bookingBody(time.Now().UTC().Add(-72*time.Hour)))
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %v", status, body)
	}
	errs, _ := body["errors"].(map[string]any)
	if _, ok := errs["scheduled_date_time"]; !ok {
		t.Fatalf("expected scheduled_date_time error, got %v", body["errors"])
	}
}

func TestBookListAndCancel(t *testing.T) {
	f := newFixture(t)
	f.verify(t)

	status, body := f.do(t, "POST", "/appointments/create", bookingBody(time.Now().UTC().Add(48*time.Hour)))
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d %v", status, body)
	}
	data, _ := body["data"].(map[string]any)
	ref, _ := data["reference_identifier"].(string)
	if !strings.HasPrefix(ref, "APP-") {
		t.Fatalf("expected APP- reference, got %q", ref)
	}
	if data["status"] != "confirmed" || data["location_name"] != "Main Office" {
		t.Fatalf("unexpected created payload: %v", data)
	}
	if len(f.provider.bookings) != 1 || f.provider.bookings[0].CustomerLocationID != testLocationID {
		t.Fatalf("expected one booking at the default location, got %+v", f.provider.bookings)
	}
	id := data["appointment_id"].(float64)

	status, body = f.do(t, "GET", "/appointments/account/"+testAccount+"?status=confirmed", nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if list, _ := body["data"].([]any); len(list) != 1 {
		t.Fatalf("expected 1 appointment, got %v", body["data"])
	}

	cancelPath := "/appointments/" + jsonNumber(id) + "/cancel"
	status, body = f.do(t, "POST", cancelPath, map[string]string{"account_number": "someone-else"})
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404 for foreign account, got %d %v", status, body)
	}
	status, body = f.do(t, "POST", cancelPath, map[string]string{"account_number": testAccount})
	if status != fiber.StatusOK || body["message"] != "Appointment cancelled successfully" {
		t.Fatalf("expected cancel success, got %d %v", status, body)
	}
	status, body = f.do(t, "POST", cancelPath, map[string]string{"account_number": testAccount})
	if status != fiber.StatusBadRequest || body["error_code"] != "ALREADY_CANCELLED" {
		t.Fatalf("expected ALREADY_CANCELLED, got %d %v", status, body)
	}
}

func TestCreateProviderFailureCancelsRow(t *testing.T) {
	f := newFixture(t)
	f.provider.createErr = errors.New("provider down")
	f.verify(t)

	status, body := f.do(t, "POST", "/appointments/create", bookingBody(time.Now().UTC().Add(48*time.Hour)))
	if status != fiber.StatusBadRequest || body["error_code"] != "CREATE_FAILED" {
		t.Fatalf("expected CREATE_FAILED, got %d %v", status, body)
	}

	rows, err := f.store.ListAppointmentsByAccount(context.Background(), testAccount, models.AppointmentStatusCancelled)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the pending row to be cancelled, got %d rows", len(rows))
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, "GET", "/appointments/account/"+testAccount+"?status=lost", nil)
	if status != fiber.StatusUnprocessableEntity || body["error_code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected 422 VALIDATION_ERROR, got %d %v", status, body)
	}
}

func TestParseDateTime(t *testing.T) {
	loc := time.FixedZone("NPT", 5*3600+45*60)
	cases := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"2026-10-20T10:30:00Z", true, time.Date(2026, 10, 20, 10, 30, 0, 0, time.UTC)},
		{"2026-10-20 10:30:00", true, time.Date(2026, 10, 20, 10, 30, 0, 0, loc)},
		{"2026-10-20T10:30", true, time.Date(2026, 10, 20, 10, 30, 0, 0, loc)},
		{"2026-10-20", true, time.Date(2026, 10, 20, 0, 0, 0, 0, loc)},
		{"20/10/2026", false, time.Time{}},
	}
	for _, tc := range cases {
		got, ok := parseDateTime(tc.in, loc)
		if ok != tc.ok {
			t.Fatalf("%q: expected ok=%v, got %v", tc.in, tc.ok, ok)
		}
		if ok && !got.Equal(tc.want) {
			t.Fatalf("%q: expected %v, got %v", tc.in, tc.want, got)
		}
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReportsDependencies(t *testing.T) {
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	app := fiber.New()
	app.Get("/ok", NewHealthHandler("gateway", "1.0.0", map[string]Pinger{"store": up, "cache": up}).Check)
	app.Get("/degraded", NewHealthHandler("gateway", "1.0.0", map[string]Pinger{"store": up, "cache": down}).Check)

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	if err != nil || resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %v %v", resp, err)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/degraded", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	var body struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Dependencies["cache"] != "down" || body.Dependencies["store"] != "up" {
		t.Fatalf("unexpected dependencies: %v", body.Dependencies)
	}
}

func jsonNumber(f float64) string {
	raw, _ := json.Marshal(int64(f))
	return string(raw)
}

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/Ananth-NQI/appointment-gateway/internal/apperr"
	"github.com/Ananth-NQI/appointment-gateway/internal/config"
	"github.com/Ananth-NQI/appointment-gateway/internal/models"
	"github.com/Ananth-NQI/appointment-gateway/internal/provider"
	"github.com/Ananth-NQI/appointment-gateway/internal/storage"
	"github.com/Ananth-NQI/appointment-gateway/internal/utils"
)

const (
	referencePrefix = "APP-"
	displayLayout   = "2006-01-02 15:04:05"
)

type CreateAppointmentRequest struct {
	AccountNumber       string
	CustomerName        string
	CustomerEmail       string
	CustomerPhone       string
	PurposeID           string
	PurposeName         string
	LocationID          string
	LocationName        string
	AssignedStaffID     string
	StaffName           string
	ProposedDateTime    time.Time
	ScheduledDateTime   time.Time
	Remarks             string
	AppointmentMetadata string
	CustomerTimezone    string
	AgentTimezone       string
}

type CreatedAppointment struct {
	AppointmentID       uint   `json:"appointment_id"`
	AccountNumber       string `json:"account_number"`
	ReferenceIdentifier string `json:"reference_identifier"`
	ScheduledDateTime   string `json:"scheduled_date_time"`
	LocationName        string `json:"location_name"`
	PurposeName         string `json:"purpose_name"`
	Status              string `json:"status"`
}

type AppointmentSummary struct {
	ID                uint   `json:"id"`
	AccountNumber     string `json:"account_number"`
	CustomerName      string `json:"customer_name"`
	ScheduledDateTime string `json:"scheduled_date_time"`
	PurposeName       string `json:"purpose_name"`
	LocationName      string `json:"location_name"`
	StaffName         string `json:"staff_name"`
	Status            string `json:"status"`
	Remarks           string `json:"remarks"`
}

// AppointmentService books appointments with the provider and keeps a
// local copy of each one.
type AppointmentService struct {
	store    storage.Store
	provider Provider
	lookups  *LookupService
	window   time.Duration
	timezone string
	loc      *time.Location
	now      func() time.Time
}

func NewAppointmentService(store storage.Store, p Provider, lookups *LookupService, cfg config.Config) *AppointmentService {
	return &AppointmentService{
		store:    store,
		provider: p,
		lookups:  lookups,
		window:   cfg.Booking.VerificationWindow,
		timezone: cfg.Booking.DefaultTimezone,
		loc:      cfg.Booking.Location(),
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *AppointmentService) WithClock(now func() time.Time) *AppointmentService {
	s.now = now
	return s
}

// Create books an appointment for an account that recently verified an OTP.
//
// The local row is written as pending with its reference identifier before
// the provider is called, then confirmed once the provider accepts it. A
// provider failure cancels the row; a failed confirmation leaves it pending
// for the reconciliation report.
func (s *AppointmentService) Create(ctx context.Context, req CreateAppointmentRequest) (*CreatedAppointment, error) {
	log := zerolog.Ctx(ctx).With().
		Str("account_number", req.AccountNumber).
		Str("purpose_id", req.PurposeID).
		Logger()
	now := s.now()

	if err := s.checkVerified(ctx, s.store, req.AccountNumber, now); err != nil {
		return nil, err
	}

	key, err := s.lookups.apiKeyFor(ctx, req.PurposeID)
	if err != nil {
		return nil, err
	}

	location, err := s.resolveLocation(ctx, req)
	if err != nil {
		return nil, err
	}

	appointment := s.newAppointment(req, location, now)
	err = s.store.Transaction(ctx, func(tx storage.Store) error {
		// The lookups above may have taken long enough for the window to lapse.
		if err := s.checkVerified(ctx, tx, req.AccountNumber, s.now()); err != nil {
			return err
		}
		return tx.CreateAppointment(ctx, appointment)
	})
	if err != nil {
		if ae, ok := apperr.As(err); ok {
			return nil, ae
		}
		log.Error().Err(err).Msg("store pending appointment")
		return nil, apperr.New(apperr.CreateFailed, "Failed to create appointment")
	}
	log = log.With().Uint("appointment_id", appointment.ID).Str("reference", appointment.ReferenceIdentifier).Logger()

	response, err := s.provider.CreateAppointment(ctx, key.Secret, s.bookingPayload(appointment, now))
	if err != nil {
		log.Error().Err(err).Msg("provider rejected appointment")
		appointment.Status = models.AppointmentStatusCancelled
		if uerr := s.store.UpdateAppointment(ctx, appointment); uerr != nil {
			log.Error().Err(uerr).Msg("cancel pending appointment")
		}
		return nil, apperr.Newf(apperr.CreateFailed, "Failed to create appointment: %v", err)
	}

	confirmedAt := s.now()
	appointment.Status = models.AppointmentStatusConfirmed
	appointment.ExternalResponse = datatypes.JSON(response)
	appointment.AppointmentConfirmedAt = &confirmedAt
	if err := s.store.UpdateAppointment(ctx, appointment); err != nil {
		// The provider holds the booking; the row stays pending until reconciled.
		log.Error().Err(err).Msg("confirm appointment locally")
		appointment.Status = models.AppointmentStatusPending
	}

	log.Info().Msg("appointment created")
	return &CreatedAppointment{
		AppointmentID:       appointment.ID,
		AccountNumber:       appointment.AccountNumber,
		ReferenceIdentifier: appointment.ReferenceIdentifier,
		ScheduledDateTime:   appointment.ScheduledDateTime.In(s.loc).Format(displayLayout),
		LocationName:        appointment.LocationName,
		PurposeName:         appointment.PurposeName,
		Status:              string(appointment.Status),
	}, nil
}

func (s *AppointmentService) checkVerified(ctx context.Context, store storage.Store, accountNumber string, now time.Time) error {
	otp, err := store.GetLatestVerifiedOTP(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.New(apperr.OtpNotVerified, "Please verify OTP first")
		}
		zerolog.Ctx(ctx).Error().Err(err).Str("account_number", accountNumber).Msg("load verified otp")
		return apperr.New(apperr.CreateFailed, "Failed to create appointment")
	}
	// Elapsed time counts whole minutes only.
	if otp.VerifiedAt == nil || now.Sub(*otp.VerifiedAt).Truncate(time.Minute) > s.window {
		return apperr.New(apperr.OtpExpired, "OTP verification expired. Please verify again")
	}
	return nil
}

// resolveLocation looks up the purpose's locations for the scheduled day and
// picks the requested one, falling back to the default.
func (s *AppointmentService) resolveLocation(ctx context.Context, req CreateAppointmentRequest) (models.Location, error) {
	date := req.ScheduledDateTime.In(s.loc).Format(time.DateOnly)
	locations, err := s.lookups.Locations(ctx, req.PurposeID, date)
	if err != nil {
		return models.Location{}, err
	}

	if req.LocationID != "" {
		for _, l := range locations {
			if l.LocationID == req.LocationID {
				return l, nil
			}
		}
		return models.Location{LocationID: req.LocationID, Name: req.LocationName}, nil
	}

	loc, ok := models.DefaultLocation(locations)
	if !ok {
		return models.Location{}, apperr.New(apperr.NoDefaultLocation, "No default location could be found for this purpose.")
	}
	return loc, nil
}

func (s *AppointmentService) newAppointment(req CreateAppointmentRequest, location models.Location, now time.Time) *models.Appointment {
	scheduled := req.ScheduledDateTime
	if scheduled.IsZero() {
		scheduled = req.ProposedDateTime
	}
	customerTZ := req.CustomerTimezone
	if customerTZ == "" {
		customerTZ = s.timezone
	}
	locationName := req.LocationName
	if locationName == "" {
		locationName = location.Name
	}
	purposeName := req.PurposeName
	if purposeName == "" {
		purposeName = location.PurposeName
	}

	return &models.Appointment{
		AccountNumber:       req.AccountNumber,
		CustomerName:        req.CustomerName,
		CustomerEmail:       req.CustomerEmail,
		CustomerPhone:       req.CustomerPhone,
		PurposeID:           req.PurposeID,
		PurposeName:         purposeName,
		LocationID:          location.LocationID,
		LocationName:        locationName,
		AssignedStaffID:     req.AssignedStaffID,
		StaffName:           req.StaffName,
		ProposedDateTime:    req.ProposedDateTime,
		ScheduledDateTime:   scheduled,
		CustomerTimezone:    customerTZ,
		AgentTimezone:       req.AgentTimezone,
		Remarks:             req.Remarks,
		AppointmentMetadata: req.AppointmentMetadata,
		ReferenceIdentifier: utils.GenerateReferenceID(referencePrefix),
		Status:              models.AppointmentStatusPending,
		AppointmentTakenAt:  &now,
	}
}

func (s *AppointmentService) bookingPayload(a *models.Appointment, now time.Time) provider.BookingRequest {
	agentTZ := a.AgentTimezone
	if agentTZ == "" {
		agentTZ = s.timezone
	}
	var staff *string
	if a.AssignedStaffID != "" {
		id := a.AssignedStaffID
		staff = &id
	}

	return provider.BookingRequest{
		CustomerIdentificationNumber: a.AccountNumber,
		CustomerName:                 a.CustomerName,
		CustomerEmail:                a.CustomerEmail,
		CustomerPhoneNumber:          a.CustomerPhone,
		ProposedDateTime:             a.ProposedDateTime.Format(time.RFC3339),
		ScheduledDateTime:            a.ScheduledDateTime.Format(time.RFC3339),
		PurposeID:                    a.PurposeID,
		Remarks:                      a.Remarks,
		AppointmentMetadata:          a.AppointmentMetadata,
		AppointmentTakenDateTime:     now.In(s.loc).Format(time.RFC3339),
		CustomerTimeZone:             a.CustomerTimezone,
		AgentTimeZone:                agentTZ,
		CustomerLocationID:           a.LocationID,
		AssignedStaffID:              staff,
		ReferenceIdentifier:          a.ReferenceIdentifier,
	}
}

// ListByAccount returns the account's appointments, latest scheduled first,
// optionally filtered by status.
func (s *AppointmentService) ListByAccount(ctx context.Context, accountNumber string, status models.AppointmentStatus) ([]AppointmentSummary, error) {
	appointments, err := s.store.ListAppointmentsByAccount(ctx, accountNumber, status)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("account_number", accountNumber).Msg("list appointments")
		return nil, apperr.New(apperr.FetchFailed, "Failed to fetch appointments")
	}

	out := make([]AppointmentSummary, 0, len(appointments))
	for _, a := range appointments {
		out = append(out, AppointmentSummary{
			ID:                a.ID,
			AccountNumber:     a.AccountNumber,
			CustomerName:      a.CustomerName,
			ScheduledDateTime: a.ScheduledDateTime.In(s.loc).Format(displayLayout),
			PurposeName:       a.PurposeName,
			LocationName:      a.LocationName,
			StaffName:         a.StaffName,
			Status:            string(a.Status),
			Remarks:           a.Remarks,
		})
	}
	return out, nil
}

// Cancel marks an appointment cancelled. Cancelling twice fails with
// ALREADY_CANCELLED.
func (s *AppointmentService) Cancel(ctx context.Context, id uint, accountNumber string) error {
	log := zerolog.Ctx(ctx).With().Uint("appointment_id", id).Str("account_number", accountNumber).Logger()

	appointment, err := s.store.GetAppointment(ctx, id, accountNumber)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.New(apperr.NotFound, "Appointment not found")
		}
		log.Error().Err(err).Msg("load appointment")
		return apperr.New(apperr.CancelFailed, "Failed to cancel appointment")
	}

	switch appointment.Status {
	case models.AppointmentStatusCancelled:
		return apperr.New(apperr.AlreadyCancelled, "Appointment already cancelled")
	case models.AppointmentStatusCompleted:
		return apperr.New(apperr.AlreadyCompleted, "Cannot cancel completed appointment")
	}

	appointment.Status = models.AppointmentStatusCancelled
	if err := s.store.UpdateAppointment(ctx, appointment); err != nil {
		log.Error().Err(err).Msg("cancel appointment")
		return apperr.New(apperr.CancelFailed, "Failed to cancel appointment")
	}
	log.Info().Msg("appointment cancelled")
	return nil
}

// StalePending returns bookings that stayed pending longer than age.
func (s *AppointmentService) StalePending(ctx context.Context, age time.Duration) ([]*models.Appointment, error) {
	return s.store.ListPendingAppointmentsBefore(ctx, s.now().Add(-age))
}

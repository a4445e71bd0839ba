package handlers

import (
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/appointment-gateway/internal/apperr"
	"github.com/Ananth-NQI/appointment-gateway/internal/middleware"
	"github.com/Ananth-NQI/appointment-gateway/internal/models"
	"github.com/Ananth-NQI/appointment-gateway/internal/services"
)

// AppointmentHandler serves provider lookups and bookings.
type AppointmentHandler struct {
	lookups      *services.LookupService
	appointments *services.AppointmentService
	loc          *time.Location
	now          func() time.Time
}

// NewAppointmentHandler creates a new appointment handler. loc is the
// timezone used for timestamps that carry no offset.
func NewAppointmentHandler(lookups *services.LookupService, appointments *services.AppointmentService, loc *time.Location) *AppointmentHandler {
	return &AppointmentHandler{
		lookups:      lookups,
		appointments: appointments,
		loc:          loc,
		now:          time.Now,
	}
}

// WithClock replaces the time source used for the not-in-the-past check.
func (h *AppointmentHandler) WithClock(now func() time.Time) *AppointmentHandler {
	h.now = now
	return h
}

type slotsRequest struct {
	Date             string   `json:"date" validate:"required"`
	LocationID       string   `json:"location_id" validate:"omitempty,uuid"`
	PurposeID        string   `json:"purpose_id" validate:"required,uuid"`
	Timezone         string   `json:"timezone"`
	AssignedStaffIDs []string `json:"assigned_staff_ids" validate:"omitempty,dive,uuid"`
}

type createAppointmentRequest struct {
	AccountNumber       string `json:"account_number" validate:"required"`
	CustomerName        string `json:"customer_name" validate:"required,max=255"`
	CustomerEmail       string `json:"customer_email" validate:"required,email,max=255"`
	CustomerPhone       string `json:"customer_phone" validate:"required,min=10,max=15"`
	PurposeID           string `json:"purpose_id" validate:"required,uuid"`
	PurposeName         string `json:"purpose_name"`
	LocationID          string `json:"location_id" validate:"omitempty,uuid"`
	LocationName        string `json:"location_name"`
	AssignedStaffID     string `json:"assigned_staff_id" validate:"omitempty,uuid"`
	StaffName           string `json:"staff_name"`
	ProposedDateTime    string `json:"proposed_date_time" validate:"required"`
	ScheduledDateTime   string `json:"scheduled_date_time" validate:"required"`
	Remarks             string `json:"remarks" validate:"max=1000"`
	AppointmentMetadata string `json:"appointment_metadata"`
	CustomerTimezone    string `json:"customer_timezone"`
	AgentTimezone       string `json:"agent_timezone"`
}

type cancelRequest struct {
	AccountNumber string `json:"account_number" validate:"required"`
}

// Purposes lists every purpose, or resolves one when a name is given.
func (h *AppointmentHandler) Purposes(c *fiber.Ctx) error {
	name := c.Params("purposeName")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "" {
		purposes, err := h.lookups.ListPurposes(c.UserContext())
		if err != nil {
			return err
		}
		return success(c, fiber.StatusOK, "Purposes retrieved successfully", purposes)
	}

	purpose, err := h.lookups.FindPurpose(c.UserContext(), name)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Purposes retrieved successfully", purpose)
}

// Locations lists the locations serving a purpose on target_date.
func (h *AppointmentHandler) Locations(c *fiber.Ctx) error {
	locations, err := h.lookups.Locations(c.UserContext(), c.Params("purposeId"), c.Query("target_date"))
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Locations retrieved successfully", locations)
}

// Users lists active staff for a purpose.
func (h *AppointmentHandler) Users(c *fiber.Ctx) error {
	users, err := h.lookups.Users(c.UserContext(), c.Params("purposeId"))
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Users retrieved successfully", users)
}

// Slots returns bookable windows for a day.
func (h *AppointmentHandler) Slots(c *fiber.Ctx) error {
	var req slotsRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	schedule, err := h.lookups.Slots(c.UserContext(), services.SlotRequest{
		PurposeID:        req.PurposeID,
		Date:             req.Date,
		LocationID:       req.LocationID,
		Timezone:         req.Timezone,
		AssignedStaffIDs: req.AssignedStaffIDs,
	})
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Available slots retrieved successfully", schedule)
}

// Create books an appointment for a verified account.
func (h *AppointmentHandler) Create(c *fiber.Ctx) error {
	var req createAppointmentRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	proposed, ok := parseDateTime(req.ProposedDateTime, h.loc)
	if !ok {
		return fieldError("proposed_date_time", "proposed_date_time must be a valid date time")
	}
	scheduled, ok := parseDateTime(req.ScheduledDateTime, h.loc)
	if !ok {
		return fieldError("scheduled_date_time", "scheduled_date_time must be a valid date time")
	}
	if scheduled.In(h.loc).Format(time.DateOnly) < h.now().In(h.loc).Format(time.DateOnly) {
		return fieldError("scheduled_date_time", "Scheduled date must be today or in the future")
	}

	created, err := h.appointments.Create(c.UserContext(), services.CreateAppointmentRequest{
		AccountNumber:       req.AccountNumber,
		CustomerName:        req.CustomerName,
		CustomerEmail:       req.CustomerEmail,
		CustomerPhone:       req.CustomerPhone,
		PurposeID:           req.PurposeID,
		PurposeName:         req.PurposeName,
		LocationID:          req.LocationID,
		LocationName:        req.LocationName,
		AssignedStaffID:     req.AssignedStaffID,
		StaffName:           req.StaffName,
		ProposedDateTime:    proposed,
		ScheduledDateTime:   scheduled,
		Remarks:             req.Remarks,
		AppointmentMetadata: req.AppointmentMetadata,
		CustomerTimezone:    req.CustomerTimezone,
		AgentTimezone:       req.AgentTimezone,
	})
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, "Appointment created successfully", created)
}

// ListByAccount returns an account's appointments, optionally by status.
func (h *AppointmentHandler) ListByAccount(c *fiber.Ctx) error {
	status := models.AppointmentStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		return fieldError("status", "status must be one of: pending confirmed completed cancelled")
	}

	appointments, err := h.appointments.ListByAccount(c.UserContext(), c.Params("accountNumber"), status)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Appointments retrieved successfully", appointments)
}

// Cancel cancels one of the account's appointments.
func (h *AppointmentHandler) Cancel(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("appointmentId"), 10, 64)
	if err != nil || id == 0 {
		return apperr.New(apperr.NotFound, "Appointment not found")
	}

	var req cancelRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.appointments.Cancel(c.UserContext(), uint(id), req.AccountNumber); err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Appointment cancelled successfully", nil)
}

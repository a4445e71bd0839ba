package models

import (
	"time"

	"gorm.io/datatypes"
)

type AppointmentStatus string

// AppointmentStatus constants
const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

// Appointment is a booking placed with the provider and mirrored locally.
type Appointment struct {
	ID            uint   `json:"id" gorm:"primaryKey"`
	AccountNumber string `json:"account_number" gorm:"not null;index;index:idx_appointments_account_status,priority:1"`

	// Customer
	CustomerName  string `json:"customer_name" gorm:"not null"`
	CustomerEmail string `json:"customer_email" gorm:"not null"`
	CustomerPhone string `json:"customer_phone" gorm:"not null"`

	// Provider identifiers and display names
	PurposeID       string `json:"purpose_id" gorm:"size:64;not null"`
	PurposeName     string `json:"purpose_name"`
	LocationID      string `json:"location_id" gorm:"size:64"`
	LocationName    string `json:"location_name"`
	AssignedStaffID string `json:"assigned_staff_id,omitempty" gorm:"size:64"`
	StaffName       string `json:"staff_name,omitempty"`

	// Timing
	ProposedDateTime  time.Time `json:"proposed_date_time" gorm:"not null"`
	ScheduledDateTime time.Time `json:"scheduled_date_time" gorm:"not null;index"`
	CustomerTimezone  string    `json:"customer_timezone" gorm:"not null"`
	AgentTimezone     string    `json:"agent_timezone,omitempty"`

	Remarks             string `json:"remarks,omitempty" gorm:"type:text"`
	AppointmentMetadata string `json:"appointment_metadata,omitempty" gorm:"type:text"`

	// ReferenceIdentifier is sent to the provider and recorded before the
	// remote call so a half-finished booking can be reconciled.
	ReferenceIdentifier string         `json:"reference_identifier" gorm:"size:64;uniqueIndex"`
	ExternalResponse    datatypes.JSON `json:"-" gorm:"type:jsonb"`

	Status AppointmentStatus `json:"status" gorm:"type:varchar(12);not null;default:pending;index:idx_appointments_account_status,priority:2"`

	AppointmentTakenAt     *time.Time `json:"appointment_taken_at"`
	AppointmentConfirmedAt *time.Time `json:"appointment_confirmed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

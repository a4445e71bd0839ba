package provider

import (
	"encoding/json"

	"github.com/Ananth-NQI/appointment-gateway/internal/models"
)

// Wire shapes returned by the scheduling provider. Fields the provider may
// omit decode to their zero value; records without an identifier are dropped.

type rawLocation struct {
	LocationID  string `json:"locationId"`
	Name        string `json:"name"`
	TimeZone    string `json:"timeZone"`
	Address     string `json:"address"`
	IsDefault   bool   `json:"isDefault"`
	CreatedAt   string `json:"createdAt"`
	PurposeID   string `json:"purposeId"`
	PurposeName string `json:"purposeName"`
}

type rawPurpose struct {
	ID           string `json:"id"`
	SystemName   string `json:"systemName"`
	DisplayName  string `json:"displayName"`
	IsActive     bool   `json:"isActive"`
	CreationTime string `json:"creationTime"`
}

type rawUser struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	IsActive     bool   `json:"isActive"`
	CreationTime string `json:"creationTime"`
}

type rawSlot struct {
	StartTime       string          `json:"startTime"`
	EndTime         string          `json:"endTime"`
	AvailableStaffs json.RawMessage `json:"availableStaffs"`
	IsValid         bool            `json:"isValid"`
	InvalidReason   *string         `json:"invalidReason"`
}

type rawSlotSchedule struct {
	Date                  string          `json:"date"`
	AvailableStaffs       json.RawMessage `json:"availableStaffs"`
	ValidAppointmentSlots []rawSlot       `json:"validAppointmentSlots"`
}

var emptyList = json.RawMessage("[]")

func orEmptyList(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return emptyList
	}
	return raw
}

func normalizeLocations(in []rawLocation) []models.Location {
	out := make([]models.Location, 0, len(in))
	for _, l := range in {
		if l.LocationID == "" {
			continue
		}
		out = append(out, models.Location{
			LocationID:  l.LocationID,
			Name:        l.Name,
			TimeZone:    l.TimeZone,
			Address:     l.Address,
			IsDefault:   l.IsDefault,
			PurposeID:   l.PurposeID,
			PurposeName: l.PurposeName,
		})
	}
	return out
}

func normalizePurposes(in []rawPurpose) []models.Purpose {
	out := make([]models.Purpose, 0, len(in))
	for _, p := range in {
		if p.ID == "" {
			continue
		}
		out = append(out, models.Purpose{
			ID:          p.ID,
			SystemName:  p.SystemName,
			DisplayName: p.DisplayName,
			IsActive:    p.IsActive,
		})
	}
	return out
}

func normalizeUsers(in []rawUser) []models.StaffUser {
	out := make([]models.StaffUser, 0, len(in))
	for _, u := range in {
		if u.ID == "" {
			continue
		}
		out = append(out, models.StaffUser{
			ID:       u.ID,
			Name:     u.Name,
			Email:    u.Email,
			IsActive: u.IsActive,
		})
	}
	return out
}

func normalizeSlots(in rawSlotSchedule) models.SlotSchedule {
	slots := make([]models.Slot, 0, len(in.ValidAppointmentSlots))
	for _, s := range in.ValidAppointmentSlots {
		slots = append(slots, models.Slot{
			StartTime:       s.StartTime,
			EndTime:         s.EndTime,
			AvailableStaffs: orEmptyList(s.AvailableStaffs),
			IsValid:         s.IsValid,
			InvalidReason:   s.InvalidReason,
		})
	}
	return models.SlotSchedule{
		Date:            in.Date,
		AvailableStaffs: orEmptyList(in.AvailableStaffs),
		Slots:           slots,
	}
}

// SlotQuery filters a slot listing.
type SlotQuery struct {
	Date             string
	LocationID       string
	PurposeID        string
	TimeZoneID       string
	AssignedStaffIDs []string
}

// BookingRequest is the payload of an appointment submission.
type BookingRequest struct {
	CustomerIdentificationNumber string  `json:"customerIdentificationNumber"`
	CustomerName                 string  `json:"customerName"`
	CustomerEmail                string  `json:"customerEmail"`
	CustomerPhoneNumber          string  `json:"customerPhoneNumber"`
	ProposedDateTime             string  `json:"proposedDateTime"`
	ScheduledDateTime            string  `json:"scheduledDateTime"`
	PurposeID                    string  `json:"purposeId"`
	Remarks                      string  `json:"remarks"`
	AppointmentMetadata          string  `json:"appointmentMetadata"`
	AppointmentTakenDateTime     string  `json:"appointmentTakenDateTime"`
	AppointmentConfirmedDateTime *string `json:"appointmentConfirmedDateTime"`
	CustomerTimeZone             string  `json:"customerTimeZone"`
	AgentTimeZone                string  `json:"agentTimeZone"`
	CustomerLocationID           string  `json:"customerLocationId"`
	AssignedStaffID              *string `json:"assignedStaffId"`
	ReferenceIdentifier          string  `json:"referenceIdentifier"`
}

package models

import "encoding/json"

// Location is a provider location in the local schema.
type Location struct {
	LocationID  string `json:"location_id"`
	Name        string `json:"name"`
	TimeZone    string `json:"time_zone"`
	Address     string `json:"address"`
	IsDefault   bool   `json:"is_default"`
	PurposeID   string `json:"purpose_id"`
	PurposeName string `json:"purpose_name"`
}

// Purpose is a provider appointment purpose in the local schema.
type Purpose struct {
	ID          string `json:"id"`
	SystemName  string `json:"system_name"`
	DisplayName string `json:"display_name"`
	IsActive    bool   `json:"is_active"`
}

// StaffUser is a provider staff member in the local schema.
type StaffUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// Slot is one bookable window. AvailableStaffs is passed through as the
// provider sent it.
type Slot struct {
	StartTime       string          `json:"start_time"`
	EndTime         string          `json:"end_time"`
	AvailableStaffs json.RawMessage `json:"available_staffs"`
	IsValid         bool            `json:"is_valid"`
	InvalidReason   *string         `json:"invalid_reason"`
}

// SlotSchedule is the slot listing for one day.
type SlotSchedule struct {
	Date            string          `json:"date"`
	AvailableStaffs json.RawMessage `json:"available_staffs"`
	Slots           []Slot          `json:"slots"`
}

// DefaultLocation returns the first location flagged as default.
func DefaultLocation(locations []Location) (Location, bool) {
	for _, l := range locations {
		if l.IsDefault {
			return l, true
		}
	}
	return Location{}, false
}

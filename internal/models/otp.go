package models

import (
	"math"
	"time"

	"gorm.io/gorm"
)

type SendType string

const (
	SendTypeEmail SendType = "email"
	SendTypeSMS   SendType = "sms"
	SendTypeBoth  SendType = "both"
)

// Valid reports whether s is a known channel selection.
func (s SendType) Valid() bool {
	switch s {
	case SendTypeEmail, SendTypeSMS, SendTypeBoth:
		return true
	}
	return false
}

// IncludesEmail is true for email and both.
func (s SendType) IncludesEmail() bool {
	return s == SendTypeEmail || s == SendTypeBoth
}

// IncludesSMS is true for sms and both.
func (s SendType) IncludesSMS() bool {
	return s == SendTypeSMS || s == SendTypeBoth
}

type OtpStatus string

const (
	OtpStatusActive   OtpStatus = "active"
	OtpStatusExpired  OtpStatus = "expired"
	OtpStatusVerified OtpStatus = "verified"
	OtpStatusFailed   OtpStatus = "failed"
)

// OtpLog is one issued passcode. Rows are never deleted and double as an
// audit trail of every challenge sent to an account.
type OtpLog struct {
	gorm.Model
	AccountNumber string     `json:"account_number" gorm:"not null;index;index:idx_otp_logs_account_status,priority:1"`
	OtpCode       string     `json:"-" gorm:"not null"`
	SendType      SendType   `json:"send_type" gorm:"type:varchar(10);not null;default:both"`
	Email         string     `json:"email"`
	Mobile        string     `json:"mobile"`
	IsVerified    bool       `json:"is_verified" gorm:"default:false"`
	VerifiedAt    *time.Time `json:"verified_at"`
	ExpiresAt     time.Time  `json:"expires_at" gorm:"not null;index"`
	AttemptCount  int        `json:"attempt_count" gorm:"default:0"`
	Status        OtpStatus  `json:"status" gorm:"type:varchar(10);not null;default:active;index:idx_otp_logs_account_status,priority:2"`
}

// IsExpired reports whether the code can no longer be used at now.
func (o *OtpLog) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// IsActive reports whether the record is an open challenge at now.
func (o *OtpLog) IsActive(now time.Time) bool {
	return o.Status == OtpStatusActive && !o.IsVerified && !o.IsExpired(now)
}

// RemainingMinutes is the time left before expiry, rounded up.
func (o *OtpLog) RemainingMinutes(now time.Time) int {
	left := o.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Minutes()))
}

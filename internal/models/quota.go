package models

import "time"

// OtpDailyLimit counts OTP sends and resends for one account on one
// calendar day. Counters only ever grow.
type OtpDailyLimit struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	AccountNumber string    `json:"account_number" gorm:"size:50;not null;uniqueIndex:idx_otp_daily_limits_account_date,priority:1"`
	Date          string    `json:"date" gorm:"size:10;not null;uniqueIndex:idx_otp_daily_limits_account_date,priority:2"` // YYYY-MM-DD
	SendCount     int       `json:"send_count" gorm:"not null;default:0"`
	ResendCount   int       `json:"resend_count" gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (l *OtpDailyLimit) HasExceededSendLimit(max int) bool {
	return l.SendCount >= max
}

func (l *OtpDailyLimit) HasExceededResendLimit(max int) bool {
	return l.ResendCount >= max
}

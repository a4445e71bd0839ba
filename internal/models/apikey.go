package models

import "gorm.io/gorm"

// ApiKey is the provider credential configured for one purpose.
type ApiKey struct {
	gorm.Model
	PurposeID   string `json:"purpose_id" gorm:"size:64;index"`
	PurposeName string `json:"purpose_name" gorm:"not null;index"`
	Secret      string `json:"-" gorm:"column:api_key;type:text;not null"`
	IsActive    bool   `json:"is_active" gorm:"default:true"`
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is an in-app message with its own lifecycle. Writes here are
// best-effort enrichment: a failure never rolls back the order it announces.
type Notification struct {
	ID        string         `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string         `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Type      string         `gorm:"column:type;type:varchar(32);not null" json:"type"`
	Title     string         `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Message   string         `gorm:"column:message;type:text;not null" json:"message"`
	LinkURL   string         `gorm:"column:link_url;type:varchar(512)" json:"link_url"`
	Data      datatypes.JSON `gorm:"column:data;type:jsonb;default:'{}'" json:"data"`
	Read      bool           `gorm:"column:read;not null;default:false" json:"read"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Notification) TableName() string { return "notifications" }

package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentCustomer maps an application user to their gateway customer id.
// Invariant: at most one non-deleted row per user. Created lazily on the
// first checkout attempt.
type PaymentCustomer struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	// CustomerID is the gateway-side customer id.
	CustomerID string         `gorm:"column:customer_id;type:varchar(128);not null;uniqueIndex" json:"customer_id"`
	Email      string         `gorm:"column:email;type:varchar(255)" json:"email"`
	DeletedAt  gorm.DeletedAt `gorm:"column:deleted_at;index" json:"deleted_at"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (PaymentCustomer) TableName() string { return "payment_customer" }

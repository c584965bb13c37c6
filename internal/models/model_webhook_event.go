package models

import (
	"time"

	"gorm.io/datatypes"
)

type WebhookEventStatus string

const (
	WebhookEventStatusReceived     WebhookEventStatus = "received"
	WebhookEventStatusHandled      WebhookEventStatus = "handled"
	WebhookEventStatusHandleFailed WebhookEventStatus = "handle_failed"
	// WebhookEventStatusDeadLetter marks events that exhausted their retry
	// budget; they stay on record for manual replay.
	WebhookEventStatusDeadLetter WebhookEventStatus = "dead_letter"
)

// WebhookEvent records every verified gateway notification and doubles as the
// durable work queue: the HTTP handler persists the row and acknowledges, the
// worker drains received/handle_failed rows. EventID is unique so an
// at-least-once redelivery lands on the existing row instead of queueing the
// work twice.
type WebhookEvent struct {
	ID         string             `gorm:"column:id;type:uuid;primary_key" json:"id"`
	EventID    string             `gorm:"column:event_id;type:varchar(128);not null;uniqueIndex" json:"event_id"`
	EventType  string             `gorm:"column:event_type;type:varchar(128);not null" json:"event_type"`
	CustomerID string             `gorm:"column:customer_id;type:varchar(128);index" json:"customer_id"`
	TraceID    string             `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Payload    datatypes.JSON     `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	Status     WebhookEventStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Attempts   int                `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError  *string            `gorm:"column:last_error;type:text" json:"last_error"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func (WebhookEvent) TableName() string { return "webhook_event" }

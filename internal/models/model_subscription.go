package models

import (
	"time"

	"github.com/dogparkjp/paygate/pkg/types"
)

// Subscription caches the gateway's view of a customer's subscription.
// Keyed by gateway customer id, exactly one row per customer, and always
// written as a full overwrite by the reconciler, never patched field by
// field. Period bounds are unix seconds as reported by the gateway.
type Subscription struct {
	ID             string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	CustomerID     string                   `gorm:"column:customer_id;type:varchar(128);not null;uniqueIndex" json:"customer_id"`
	SubscriptionID *string                  `gorm:"column:subscription_id;type:varchar(128)" json:"subscription_id"`
	PriceID        *string                  `gorm:"column:price_id;type:varchar(128)" json:"price_id"`
	Status         types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	CurrentPeriodStart *int64               `gorm:"column:current_period_start" json:"current_period_start"`
	CurrentPeriodEnd   *int64               `gorm:"column:current_period_end" json:"current_period_end"`
	CancelAtPeriodEnd  bool                 `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	// Masked descriptors of the default payment instrument; never the full number.
	PaymentMethodBrand *string   `gorm:"column:payment_method_brand;type:varchar(32)" json:"payment_method_brand"`
	PaymentMethodLast4 *string   `gorm:"column:payment_method_last4;type:varchar(4)" json:"payment_method_last4"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscription" }

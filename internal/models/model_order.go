package models

import (
	"time"

	"github.com/dogparkjp/paygate/pkg/types"
)

type OrderStatus string

const (
	// OrderStatusPending marks deferred-method orders awaiting async payment.
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
)

// Order is the local snapshot of a paid (or deferred) checkout session.
// Amounts are in yen and immutable once written. CheckoutSessionID carries a
// unique index: redelivered webhook events materialize at most one order, and
// async payment confirmation matches on it exactly.
type Order struct {
	ID                string              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	OrderNumber       string              `gorm:"column:order_number;type:varchar(64);not null;uniqueIndex" json:"order_number"`
	UserID            string              `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	CheckoutSessionID string              `gorm:"column:checkout_session_id;type:varchar(128);not null;uniqueIndex" json:"checkout_session_id"`
	PaymentIntentID   *string             `gorm:"column:payment_intent_id;type:varchar(128)" json:"payment_intent_id"`
	Status            OrderStatus         `gorm:"column:status;type:varchar(32);not null" json:"status"`
	PaymentMethod     types.PaymentMethod `gorm:"column:payment_method;type:varchar(32);not null" json:"payment_method"`
	PaymentStatus     PaymentStatus       `gorm:"column:payment_status;type:varchar(32);not null" json:"payment_status"`
	TotalAmount       int64               `gorm:"column:total_amount;not null" json:"total_amount"`
	DiscountAmount    int64               `gorm:"column:discount_amount;not null;default:0" json:"discount_amount"`
	ShippingFee       int64               `gorm:"column:shipping_fee;not null;default:0" json:"shipping_fee"`
	FinalAmount       int64               `gorm:"column:final_amount;not null" json:"final_amount"`
	Currency          string              `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	IsSubscription    bool                `gorm:"column:is_subscription;not null;default:false" json:"is_subscription"`
	SubscriptionID    *string             `gorm:"column:subscription_id;type:varchar(128)" json:"subscription_id"`
	ShippingName      string              `gorm:"column:shipping_name;type:varchar(255)" json:"shipping_name"`
	ShippingAddress   string              `gorm:"column:shipping_address;type:varchar(255)" json:"shipping_address"`
	ShippingPostal    string              `gorm:"column:shipping_postal_code;type:varchar(16)" json:"shipping_postal_code"`
	ShippingPhone     string              `gorm:"column:shipping_phone;type:varchar(32)" json:"shipping_phone"`
	// PaymentInstructions holds the gateway-provided voucher/transfer details
	// shown to the user for deferred methods.
	PaymentInstructions *string   `gorm:"column:payment_instructions;type:text" json:"payment_instructions"`
	Notes               string    `gorm:"column:notes;type:text" json:"notes"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// OrderItem freezes one purchased line at purchase time; unit_price never
// follows later catalog price changes.
type OrderItem struct {
	ID          string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	OrderID     string    `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	ProductID   string    `gorm:"column:product_id;type:varchar(64)" json:"product_id"`
	ProductName string    `gorm:"column:product_name;type:varchar(255);not null" json:"product_name"`
	ImageURL    string    `gorm:"column:image_url;type:varchar(512)" json:"image_url"`
	Quantity    int64     `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice   int64     `gorm:"column:unit_price;not null" json:"unit_price"`
	TotalPrice  int64     `gorm:"column:total_price;not null" json:"total_price"`
	CreatedAt   time.Time `json:"created_at"`
}

func (OrderItem) TableName() string { return "order_items" }

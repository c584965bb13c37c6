package models

import "time"

// Product is a catalog row. Price is in yen and is only a quote: checkout
// freezes the unit price into OrderItem at purchase time.
type Product struct {
	ID        string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Price     int64     `gorm:"column:price;not null" json:"price"`
	ImageURL  string    `gorm:"column:image_url;type:varchar(512)" json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// CartItem scopes a product selection to a user. Pricing resolves cart ids
// against these rows and never trusts client-supplied totals.
type CartItem struct {
	ID        string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string    `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	ProductID string    `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Quantity  int64     `gorm:"column:quantity;not null;default:1" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CartItem) TableName() string { return "cart_items" }

// PaymentCard stores a user's saved card descriptor (masked). Used only to
// re-select a matching gateway payment method as the session default.
type PaymentCard struct {
	ID               string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID           string    `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	CardNumberMasked string    `gorm:"column:card_number_masked;type:varchar(32);not null" json:"card_number_masked"`
	IsDefault        bool      `gorm:"column:is_default;not null;default:false" json:"is_default"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (PaymentCard) TableName() string { return "payment_cards" }

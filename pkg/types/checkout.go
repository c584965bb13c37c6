package types

// CheckoutMode distinguishes one-time payments from recurring subscriptions.
type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

func (m CheckoutMode) Valid() bool {
	return m == CheckoutModePayment || m == CheckoutModeSubscription
}

// PaymentMethod selects the gateway-side payment option block. Konbini and
// bank transfer are deferred methods: payment completes asynchronously after
// the session.
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "credit_card"
	PaymentMethodKonbini      PaymentMethod = "konbini"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// Deferred reports whether payment confirmation arrives via a later
// async_payment event instead of inside the completed session.
func (m PaymentMethod) Deferred() bool {
	return m == PaymentMethodKonbini || m == PaymentMethodBankTransfer
}

// LineItem is one priced row within a checkout session. UnitAmount is in yen
// (JPY is zero-decimal at the gateway).
type LineItem struct {
	ProductID  string `json:"product_id,omitempty"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url,omitempty"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int64  `json:"quantity"`
	// PriceID references a pre-existing gateway price; when set the gateway
	// ignores UnitAmount/Name.
	PriceID string `json:"price_id,omitempty"`
}

func (li *LineItem) Total() int64 {
	return li.UnitAmount * li.Quantity
}

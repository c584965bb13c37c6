// Package stripegw wraps the payment gateway SDK behind a narrow interface so
// handlers receive an injected client and tests can substitute fakes.
package stripegw

import (
	"context"

	"github.com/stripe/stripe-go/v82"
)

// Gateway is the full surface this service needs from the payment gateway.
type Gateway interface {
	// CreateCustomer registers a gateway customer carrying the local user id
	// in metadata.
	CreateCustomer(ctx context.Context, email, userID string) (*stripe.Customer, error)
	// DeleteCustomer is the compensating action when persisting the local
	// mapping fails after a successful create.
	DeleteCustomer(ctx context.Context, customerID string) error
	// ListCardPaymentMethods returns the customer's stored card instruments.
	ListCardPaymentMethods(ctx context.Context, customerID string) ([]*stripe.PaymentMethod, error)
	// CreateProduct and CreateRecurringPrice mint a price pair for inline
	// subscription terms that have no pre-existing price reference.
	CreateProduct(ctx context.Context, name string) (*stripe.Product, error)
	CreateRecurringPrice(ctx context.Context, productID, currency string, unitAmount int64, interval stripe.PriceRecurringInterval, intervalCount int64) (*stripe.Price, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	// GetCheckoutSession retrieves a session with line items expanded.
	GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
	// GetPaymentIntent retrieves a payment intent, including the next-action
	// details a deferred payment method is waiting on. Webhook payloads carry
	// the intent as a bare id, so callers fetch when they need the details.
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.PaymentIntent, error)
	// ListSubscriptions returns the customer's most recent subscription
	// (at most one, any status, default payment method expanded).
	ListSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error)
	// ConstructEvent authenticates a webhook delivery from the raw body and
	// signature header. Verification failure means the caller is not the
	// gateway; no further processing may happen.
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

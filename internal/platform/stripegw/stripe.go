package stripegw

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/fx"

	cfgpkg "github.com/dogparkjp/paygate/pkg/config"
)

// Client is the production Gateway backed by the Stripe SDK.
type Client struct {
	api           *client.API
	webhookSecret string
}

func New(cfg *cfgpkg.Config) (*Client, error) {
	if cfg.Stripe.SecretKey == "" {
		return nil, errors.New("stripe secret key is not configured")
	}
	api := &client.API{}
	api.Init(cfg.Stripe.SecretKey, nil)
	return &Client{api: api, webhookSecret: cfg.Stripe.WebhookSecret}, nil
}

func (c *Client) CreateCustomer(ctx context.Context, email, userID string) (*stripe.Customer, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(email),
	}
	params.AddMetadata("userId", userID)
	return c.api.Customers.New(params)
}

func (c *Client) DeleteCustomer(ctx context.Context, customerID string) error {
	_, err := c.api.Customers.Del(customerID, &stripe.CustomerParams{Params: stripe.Params{Context: ctx}})
	return err
}

func (c *Client) ListCardPaymentMethods(ctx context.Context, customerID string) ([]*stripe.PaymentMethod, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx
	var methods []*stripe.PaymentMethod
	it := c.api.PaymentMethods.List(params)
	for it.Next() {
		methods = append(methods, it.PaymentMethod())
	}
	return methods, it.Err()
}

func (c *Client) CreateProduct(ctx context.Context, name string) (*stripe.Product, error) {
	return c.api.Products.New(&stripe.ProductParams{
		Params: stripe.Params{Context: ctx},
		Name:   stripe.String(name),
	})
}

func (c *Client) CreateRecurringPrice(ctx context.Context, productID, currency string, unitAmount int64, interval stripe.PriceRecurringInterval, intervalCount int64) (*stripe.Price, error) {
	return c.api.Prices.New(&stripe.PriceParams{
		Params:     stripe.Params{Context: ctx},
		Currency:   stripe.String(currency),
		UnitAmount: stripe.Int64(unitAmount),
		Product:    stripe.String(productID),
		Recurring: &stripe.PriceRecurringParams{
			Interval:      stripe.String(string(interval)),
			IntervalCount: stripe.Int64(intervalCount),
		},
	})
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return c.api.CheckoutSessions.New(params)
}

func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("line_items")
	params.AddExpand("line_items.data.price.product")
	return c.api.CheckoutSessions.Get(sessionID, params)
}

func (c *Client) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.PaymentIntent, error) {
	return c.api.PaymentIntents.Get(paymentIntentID, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
}

func (c *Client) ListSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.AddExpand("data.default_payment_method")
	var subs []*stripe.Subscription
	it := c.api.Subscriptions.List(params)
	for it.Next() {
		subs = append(subs, it.Subscription())
	}
	return subs, it.Err()
}

func (c *Client) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// IsURLRejection reports whether the gateway refused the session because of
// the redirect URL format. Only this failure triggers the fallback retry.
func IsURLRejection(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code == stripe.ErrorCodeURLInvalid {
		return true
	}
	return se.Param == "success_url" || se.Param == "cancel_url"
}

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(New, fx.As(new(Gateway))),
	),
)

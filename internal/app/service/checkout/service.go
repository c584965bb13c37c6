package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dogparkjp/paygate/internal/app/service/customer"
	"github.com/dogparkjp/paygate/internal/app/service/pricing"
	"github.com/dogparkjp/paygate/internal/models"
	"github.com/dogparkjp/paygate/internal/platform/stripegw"
	"github.com/dogparkjp/paygate/pkg/apperr"
	cfgpkg "github.com/dogparkjp/paygate/pkg/config"
	"github.com/dogparkjp/paygate/pkg/logctx"
	"github.com/dogparkjp/paygate/pkg/types"
)

// SubscriptionTerms are the inline terms used to mint a product and
// recurring price when no static price reference is supplied.
type SubscriptionTerms struct {
	Name           string `json:"name"`
	UnitPrice      int64  `json:"unit_price"`
	IntervalMonths int64  `json:"interval_months"`
	ProductID      string `json:"product_id"`
	OptionID       string `json:"option_id"`
}

// Request is one checkout attempt.
type Request struct {
	Mode            types.CheckoutMode   `json:"mode"`
	SuccessURL      string               `json:"success_url"`
	CancelURL       string               `json:"cancel_url"`
	PriceID         string               `json:"price_id"`
	CustomAmount    int64                `json:"custom_amount"`
	CustomName      string               `json:"custom_name"`
	CartItems       []string             `json:"cart_items"`
	ReservationData *pricing.Reservation `json:"reservation_data"`
	Subscription    *SubscriptionTerms   `json:"subscription"`
	PointsUse       int64                `json:"points_use"`
	PaymentMethod   types.PaymentMethod  `json:"payment_method"`
	TrialPeriodDays int64                `json:"trial_period_days"`
	Notes           string               `json:"notes"`
}

// Result is what the caller needs to redirect into the hosted checkout.
type Result struct {
	SessionID string
	URL       string
	PointsUse int64
}

// Service assembles and submits checkout sessions. It never writes Order or
// Subscription rows; those materialize only from confirmed webhook events.
type Service struct {
	db       *gorm.DB
	gw       stripegw.Gateway
	cfg      *cfgpkg.Config
	custSvc  *customer.Service
	priceSvc *pricing.Service
	log      *zap.SugaredLogger
}

func NewService(db *gorm.DB, gw stripegw.Gateway, cfg *cfgpkg.Config, custSvc *customer.Service, priceSvc *pricing.Service, log *zap.SugaredLogger) *Service {
	return &Service{db: db, gw: gw, cfg: cfg, custSvc: custSvc, priceSvc: priceSvc, log: log}
}

func (s *Service) CreateSession(ctx context.Context, userID, email string, req *Request) (*Result, error) {
	if req.SuccessURL == "" || req.CancelURL == "" || req.Mode == "" {
		return nil, apperr.Validation("success_url, cancel_url and mode are required")
	}
	if !req.Mode.Valid() {
		return nil, apperr.Validation(`invalid mode, must be "payment" or "subscription"`)
	}
	if req.PaymentMethod != "" && req.Mode != types.CheckoutModePayment {
		return nil, apperr.Validation("payment_method selection is only supported for one-time payments")
	}

	customerID, err := s.custSvc.EnsureCustomer(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	if req.Mode == types.CheckoutModeSubscription {
		if err := s.custSvc.EnsureSubscriptionRow(ctx, customerID); err != nil {
			return nil, apperr.Wrap(apperr.KindGateway, "failed to prepare subscription record", err)
		}
		if err := s.guardSubscriptionCollision(ctx, customerID); err != nil {
			return nil, err
		}
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(req.Mode)),
	}
	successURL, cancelURL, err := rewriteRedirects(s.cfg.Stripe.TrustedBaseURL, req.SuccessURL, req.CancelURL)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	params.SuccessURL = stripe.String(successURL)
	params.CancelURL = stripe.String(cancelURL)

	var pointsUse int64
	switch req.Mode {
	case types.CheckoutModeSubscription:
		if err := s.buildSubscriptionItems(ctx, params, req); err != nil {
			return nil, err
		}
	default:
		priced, err := s.priceSvc.Price(ctx, userID, &pricing.Input{
			CustomAmount: req.CustomAmount,
			CustomName:   req.CustomName,
			CartItemIDs:  req.CartItems,
			Reservation:  req.ReservationData,
			PriceID:      req.PriceID,
			PointsUse:    req.PointsUse,
		})
		if err != nil {
			return nil, err
		}
		pointsUse = priced.PointsUse
		params.LineItems = toGatewayLineItems(priced.Items, s.cfg.Pricing.Currency)
		applyMetadata(params, buildMetadata(req, priced))
		if err := s.applyPaymentMethod(params, req.PaymentMethod); err != nil {
			return nil, err
		}
	}

	if req.Mode == types.CheckoutModeSubscription {
		applyMetadata(params, buildMetadata(req, nil))
		if req.TrialPeriodDays > 0 {
			params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
				TrialPeriodDays: stripe.Int64(req.TrialPeriodDays),
			}
		}
	}

	if req.PaymentMethod == "" || req.PaymentMethod == types.PaymentMethodCard {
		s.reuseDefaultInstrument(ctx, params, userID, customerID)
	}

	session, err := s.gw.CreateCheckoutSession(ctx, params)
	if err != nil && stripegw.IsURLRejection(err) {
		// Retry exactly once with the hard-coded fallback pair; any other
		// failure propagates unchanged.
		logctx.FromCtx(ctx, s.log).Warnw("gateway rejected redirect URLs, retrying with fallback", "error", err)
		params.SuccessURL = stripe.String(s.cfg.Stripe.FallbackSuccessURL)
		params.CancelURL = stripe.String(s.cfg.Stripe.FallbackCancelURL)
		session, err = s.gw.CreateCheckoutSession(ctx, params)
	}
	if err != nil {
		return nil, apperr.Gateway("failed to create checkout session", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("created checkout session",
		"session_id", session.ID, "customer_id", customerID, "mode", req.Mode)
	return &Result{SessionID: session.ID, URL: session.URL, PointsUse: pointsUse}, nil
}

// guardSubscriptionCollision refuses a second concurrent subscription
// purchase. This is a read-then-act check: a race between the read and the
// session completing is possible and tolerated, because reconciliation is
// last-write-wins from gateway truth and converges on the next webhook.
func (s *Service) guardSubscriptionCollision(ctx context.Context, customerID string) error {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.KindGateway, "failed to fetch subscription", err)
	}
	if sub.Status.BlocksNewSubscription() {
		return apperr.Conflict(fmt.Sprintf("an existing subscription with status %q is in the way; cancel it before starting a new one", sub.Status))
	}
	return nil
}

func (s *Service) buildSubscriptionItems(ctx context.Context, params *stripe.CheckoutSessionParams, req *Request) error {
	priceID := req.PriceID
	if priceID == "" {
		terms := req.Subscription
		if terms == nil || terms.UnitPrice <= 0 {
			return apperr.Validation("price_id or subscription terms with a positive unit_price are required for subscription mode")
		}
		name := terms.Name
		if name == "" {
			name = "定期購入"
		}
		product, err := s.gw.CreateProduct(ctx, name)
		if err != nil {
			return apperr.Gateway("failed to create subscription product", err)
		}
		interval, intervalCount := mapInterval(terms.IntervalMonths)
		price, err := s.gw.CreateRecurringPrice(ctx, product.ID, s.cfg.Pricing.Currency, terms.UnitPrice, interval, intervalCount)
		if err != nil {
			return apperr.Gateway("failed to create recurring price", err)
		}
		priceID = price.ID
	}
	params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
		Price:    stripe.String(priceID),
		Quantity: stripe.Int64(1),
	}}
	return nil
}

// mapInterval translates a month count to the gateway's interval granularity:
// twelve months become one year, anything else counts in months.
func mapInterval(months int64) (stripe.PriceRecurringInterval, int64) {
	if months <= 0 {
		months = 1
	}
	if months == 12 {
		return stripe.PriceRecurringIntervalYear, 1
	}
	return stripe.PriceRecurringIntervalMonth, months
}

func (s *Service) applyPaymentMethod(params *stripe.CheckoutSessionParams, method types.PaymentMethod) error {
	switch method {
	case "", types.PaymentMethodCard:
		params.PaymentMethodTypes = stripe.StringSlice([]string{string(stripe.PaymentMethodTypeCard)})
	case types.PaymentMethodKonbini:
		params.PaymentMethodTypes = stripe.StringSlice([]string{string(stripe.PaymentMethodTypeKonbini)})
		params.PaymentMethodOptions = &stripe.CheckoutSessionPaymentMethodOptionsParams{
			Konbini: &stripe.CheckoutSessionPaymentMethodOptionsKonbiniParams{
				ExpiresAfterDays: stripe.Int64(3),
			},
		}
	case types.PaymentMethodBankTransfer:
		params.PaymentMethodTypes = stripe.StringSlice([]string{string(stripe.PaymentMethodTypeCustomerBalance)})
		params.PaymentMethodOptions = &stripe.CheckoutSessionPaymentMethodOptionsParams{
			CustomerBalance: &stripe.CheckoutSessionPaymentMethodOptionsCustomerBalanceParams{
				FundingType: stripe.String("bank_transfer"),
				BankTransfer: &stripe.CheckoutSessionPaymentMethodOptionsCustomerBalanceBankTransferParams{
					Type: stripe.String("jp_bank_transfer"),
				},
			},
		}
	default:
		return apperr.Validation(fmt.Sprintf("unsupported payment_method %q", method))
	}
	return nil
}

// reuseDefaultInstrument points the session at a previously saved default
// card when it matches one of the gateway's stored instruments. Failures are
// only logged; the session simply falls back to collecting a new card.
func (s *Service) reuseDefaultInstrument(ctx context.Context, params *stripe.CheckoutSessionParams, userID, customerID string) {
	var card models.PaymentCard
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ?", userID, true).
		First(&card).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logctx.FromCtx(ctx, s.log).Warnw("failed to fetch default card", "error", err)
		}
		return
	}
	if len(card.CardNumberMasked) < 4 {
		return
	}
	last4 := card.CardNumberMasked[len(card.CardNumberMasked)-4:]

	methods, err := s.gw.ListCardPaymentMethods(ctx, customerID)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("failed to list gateway payment methods", "error", err)
		return
	}
	match, ok := lo.Find(methods, func(pm *stripe.PaymentMethod) bool {
		return pm.Card != nil && pm.Card.Last4 == last4
	})
	if ok {
		// The typed session params don't expose this field.
		params.AddExtra("payment_method", match.ID)
	}
}

func toGatewayLineItems(items []types.LineItem, currency string) []*stripe.CheckoutSessionLineItemParams {
	out := make([]*stripe.CheckoutSessionLineItemParams, 0, len(items))
	for _, li := range items {
		if li.PriceID != "" {
			out = append(out, &stripe.CheckoutSessionLineItemParams{
				Price:    stripe.String(li.PriceID),
				Quantity: stripe.Int64(li.Quantity),
			})
			continue
		}
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(li.Name),
		}
		if li.ImageURL != "" {
			productData.Images = stripe.StringSlice([]string{li.ImageURL})
		}
		out = append(out, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				UnitAmount:  stripe.Int64(li.UnitAmount),
				ProductData: productData,
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	return out
}

func applyMetadata(params *stripe.CheckoutSessionParams, md map[string]string) {
	for k, v := range md {
		if v == "" {
			continue
		}
		params.AddMetadata(k, v)
	}
}

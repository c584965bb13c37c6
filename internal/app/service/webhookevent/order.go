package webhookevent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/dogparkjp/paygate/internal/models"
	"github.com/dogparkjp/paygate/pkg/logctx"
	"github.com/dogparkjp/paygate/pkg/tool"
	"github.com/dogparkjp/paygate/pkg/types"
)

var premiumOwnerPattern = regexp.MustCompile(`(?i)premium[_ ]?owner`)

func isPremiumOwner(md map[string]string) bool {
	return md != nil && premiumOwnerPattern.MatchString(md["notes"])
}

// orderItemSnapshot mirrors the item snapshot the checkout flow embeds in
// session metadata. It is the preferred source for order items because the
// gateway's own line items drop the product id.
type orderItemSnapshot struct {
	ProductID string `json:"product_id,omitempty"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// materializeOrder persists the order snapshot for a one-time checkout
// session. The unique index on checkout_session_id makes this idempotent
// under redelivery: when a row already exists, nil is returned and the caller
// must not repeat downstream side effects.
func (s *Service) materializeOrder(ctx context.Context, userID string, sess *stripe.CheckoutSession, status models.OrderStatus) (*models.Order, error) {
	var existing models.Order
	err := s.db.WithContext(ctx).Where("checkout_session_id = ?", sess.ID).First(&existing).Error
	if err == nil {
		logctx.FromCtx(ctx, s.log).Infow("order already materialized", "session_id", sess.ID, "order_number", existing.OrderNumber)
		return nil, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing order: %w", err)
	}

	paymentStatus := models.PaymentStatusCompleted
	if status == models.OrderStatusPending {
		paymentStatus = models.PaymentStatusPending
	}

	order := &models.Order{
		ID:                tool.GenerateUUIDV7(),
		OrderNumber:       fmt.Sprintf("SP%d", time.Now().UnixMilli()),
		UserID:            userID,
		CheckoutSessionID: sess.ID,
		Status:            status,
		PaymentMethod:     paymentMethodOf(sess),
		PaymentStatus:     paymentStatus,
		TotalAmount:       sess.AmountSubtotal,
		DiscountAmount:    pointsUseFromMetadata(sess.Metadata),
		FinalAmount:       sess.AmountTotal,
		Currency:          string(sess.Currency),
		ShippingName:      "-",
		ShippingAddress:   "オンライン決済",
		Notes:             metadataNotes(sess.Metadata),
	}
	if sess.PaymentIntent != nil {
		order.PaymentIntentID = &sess.PaymentIntent.ID
	}
	if status == models.OrderStatusPending {
		if instructions := s.paymentInstructions(ctx, sess); instructions != "" {
			order.PaymentInstructions = &instructions
		}
	}

	items, err := s.orderItems(ctx, order.ID, sess)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			return tx.Create(&items).Error
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("order materialized",
		"order_number", order.OrderNumber, "session_id", sess.ID, "status", status, "final_amount", order.FinalAmount)
	return order, nil
}

// materializeSubscriptionOrder records the initial subscription purchase in
// the order history. Same idempotency rule as materializeOrder.
func (s *Service) materializeSubscriptionOrder(ctx context.Context, userID string, sess *stripe.CheckoutSession) error {
	var existing models.Order
	err := s.db.WithContext(ctx).Where("checkout_session_id = ?", sess.ID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check existing order: %w", err)
	}

	order := &models.Order{
		ID:                tool.GenerateUUIDV7(),
		OrderNumber:       fmt.Sprintf("SUB%d", time.Now().UnixMilli()),
		UserID:            userID,
		CheckoutSessionID: sess.ID,
		Status:            models.OrderStatusConfirmed,
		PaymentMethod:     types.PaymentMethodCard,
		PaymentStatus:     models.PaymentStatusCompleted,
		TotalAmount:       sess.AmountTotal,
		FinalAmount:       sess.AmountTotal,
		Currency:          string(sess.Currency),
		IsSubscription:    true,
		ShippingName:      "-",
		ShippingAddress:   "オンライン決済",
		Notes:             metadataNotes(sess.Metadata),
	}
	if sess.Subscription != nil {
		order.SubscriptionID = &sess.Subscription.ID
	}

	items, err := s.orderItems(ctx, order.ID, sess)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			return tx.Create(&items).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist subscription order: %w", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("subscription order materialized", "order_number", order.OrderNumber, "session_id", sess.ID)
	return nil
}

// confirmPendingOrder flips the pending order matching the session id to
// confirmed. Returns false when no pending order matches; the caller decides
// whether that is worth alarming about.
func (s *Service) confirmPendingOrder(ctx context.Context, sessionID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("checkout_session_id = ? AND status = ?", sessionID, models.OrderStatusPending).
		Updates(map[string]any{
			"status":         models.OrderStatusConfirmed,
			"payment_status": models.PaymentStatusCompleted,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to confirm pending order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	logctx.FromCtx(ctx, s.log).Infow("pending order confirmed", "session_id", sessionID)
	return true, nil
}

// orderItems resolves the purchased lines, preferring the metadata snapshot
// written at checkout. Sessions created elsewhere fall back to the gateway's
// expanded line items.
func (s *Service) orderItems(ctx context.Context, orderID string, sess *stripe.CheckoutSession) ([]models.OrderItem, error) {
	if raw, ok := sess.Metadata["items"]; ok && raw != "" {
		var snaps []orderItemSnapshot
		if err := json.Unmarshal([]byte(raw), &snaps); err == nil {
			items := make([]models.OrderItem, 0, len(snaps))
			for _, snap := range snaps {
				items = append(items, models.OrderItem{
					ID:          tool.GenerateUUIDV7(),
					OrderID:     orderID,
					ProductID:   snap.ProductID,
					ProductName: snap.Name,
					ImageURL:    snap.ImageURL,
					Quantity:    snap.Quantity,
					UnitPrice:   snap.UnitPrice,
					TotalPrice:  snap.UnitPrice * snap.Quantity,
				})
			}
			return items, nil
		}
		logctx.FromCtx(ctx, s.log).Warnw("unreadable item snapshot, falling back to gateway line items", "session_id", sess.ID)
	}

	expanded, err := s.gw.GetCheckoutSession(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session line items: %w", err)
	}
	if expanded.LineItems == nil {
		return nil, nil
	}
	items := make([]models.OrderItem, 0, len(expanded.LineItems.Data))
	for _, li := range expanded.LineItems.Data {
		item := models.OrderItem{
			ID:          tool.GenerateUUIDV7(),
			OrderID:     orderID,
			ProductName: li.Description,
			Quantity:    li.Quantity,
			TotalPrice:  li.AmountTotal,
		}
		if li.Quantity > 0 {
			item.UnitPrice = li.AmountTotal / li.Quantity
		}
		if li.Price != nil && li.Price.Product != nil {
			item.ProductID = li.Price.Product.ID
			if item.ProductName == "" {
				item.ProductName = li.Price.Product.Name
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// paymentMethodOf maps the session's gateway method types onto the local
// enum. Deferred methods win over card when both are offered, because a
// not-yet-paid session can only be waiting on one of them.
func paymentMethodOf(sess *stripe.CheckoutSession) types.PaymentMethod {
	for _, pmt := range sess.PaymentMethodTypes {
		switch stripe.PaymentMethodType(pmt) {
		case stripe.PaymentMethodTypeKonbini:
			return types.PaymentMethodKonbini
		case stripe.PaymentMethodTypeCustomerBalance:
			return types.PaymentMethodBankTransfer
		}
	}
	return types.PaymentMethodCard
}

// paymentInstructions serializes the gateway's next-action details (konbini
// voucher codes, virtual bank account numbers) for display on the pending
// order. The event payload carries the intent as a bare id, so the details
// are fetched from the gateway when the payload lacks them.
func (s *Service) paymentInstructions(ctx context.Context, sess *stripe.CheckoutSession) string {
	if sess.PaymentIntent == nil {
		return ""
	}
	nextAction := sess.PaymentIntent.NextAction
	if nextAction == nil {
		pi, err := s.gw.GetPaymentIntent(ctx, sess.PaymentIntent.ID)
		if err != nil {
			logctx.FromCtx(ctx, s.log).Warnw("failed to fetch payment instructions", "session_id", sess.ID, "error", err)
			return ""
		}
		nextAction = pi.NextAction
	}
	if nextAction == nil {
		return ""
	}
	b, err := json.Marshal(nextAction)
	if err != nil {
		return ""
	}
	return string(b)
}

func metadataNotes(md map[string]string) string {
	if md == nil {
		return ""
	}
	return md["notes"]
}

package webhookevent

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/dogparkjp/paygate/internal/app/service/notify"
	"github.com/dogparkjp/paygate/internal/models"
	"github.com/dogparkjp/paygate/pkg/logctx"
	"github.com/dogparkjp/paygate/pkg/tool"
	"github.com/dogparkjp/paygate/pkg/types"
)

// SyncCustomer reconciles local subscription state from the gateway. It
// fetches the customer's single most recent subscription and overwrites the
// local row wholesale; the local row is a read cache and the gateway is the
// only source of truth. When the gateway reports none, a not_started row is
// written instead of deleting history. Concurrent runs converge because each
// run fetches fresh and replaces fully.
func (s *Service) SyncCustomer(ctx context.Context, customerID string) error {
	subs, err := s.gw.ListSubscriptions(ctx, customerID)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions for %s: %w", customerID, err)
	}

	row := &models.Subscription{
		CustomerID: customerID,
		Status:     types.SubscriptionStatusNotStarted,
	}
	if len(subs) > 0 {
		fillFromGateway(row, subs[0])
	} else {
		logctx.FromCtx(ctx, s.log).Infow("no subscriptions at gateway", "customer_id", customerID)
	}

	if err := s.replaceSubscription(ctx, row); err != nil {
		return fmt.Errorf("failed to sync subscription for %s: %w", customerID, err)
	}
	logctx.FromCtx(ctx, s.log).Infow("synced subscription", "customer_id", customerID, "status", row.Status)
	return nil
}

func fillFromGateway(row *models.Subscription, sub *stripe.Subscription) {
	row.SubscriptionID = &sub.ID
	row.Status = types.SubscriptionStatus(sub.Status)
	row.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		row.CurrentPeriodStart = &item.CurrentPeriodStart
		row.CurrentPeriodEnd = &item.CurrentPeriodEnd
		if item.Price != nil {
			row.PriceID = &item.Price.ID
		}
	}
	if pm := sub.DefaultPaymentMethod; pm != nil && pm.Card != nil {
		brand := string(pm.Card.Brand)
		last4 := pm.Card.Last4
		row.PaymentMethodBrand = &brand
		row.PaymentMethodLast4 = &last4
	}
}

// replaceSubscription upserts by customer id with every synced column
// assigned, including the nil ones. A partial patch would let stale fields
// survive a downgrade (e.g. a cleared payment method), so the write is always
// the full set.
func (s *Service) replaceSubscription(ctx context.Context, row *models.Subscription) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Subscription
		err := tx.Where("customer_id = ?", row.CustomerID).First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row.ID = tool.GenerateUUIDV7()
			return tx.Create(row).Error
		}
		updates := map[string]any{
			"subscription_id":      row.SubscriptionID,
			"price_id":             row.PriceID,
			"status":               row.Status,
			"current_period_start": row.CurrentPeriodStart,
			"current_period_end":   row.CurrentPeriodEnd,
			"cancel_at_period_end": row.CancelAtPeriodEnd,
			"payment_method_brand": row.PaymentMethodBrand,
			"payment_method_last4": row.PaymentMethodLast4,
		}
		return tx.Model(&models.Subscription{}).
			Where("customer_id = ?", row.CustomerID).
			Updates(updates).Error
	})
}

func (s *Service) notifySubscriptionStarted(ctx context.Context, userID string, sess *stripe.CheckoutSession) {
	premiumOwner := isPremiumOwner(sess.Metadata)
	title := "サブスクリプションの登録が完了しました"
	message := "サブスクリプションが開始されました。ご利用ありがとうございます。"
	link := s.cfg.PublicSiteURL + "/dashboard"
	if premiumOwner {
		title = "プレミアムオーナー登録が完了しました"
		message = "予約管理・クーポン管理（プレミアム）がご利用いただけます。"
		link = s.cfg.PublicSiteURL + "/my-facilities-management"
	}

	var subscriptionID string
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
	}
	s.notifSvc.Notify(ctx, &notify.Input{
		UserID:  userID,
		Title:   title,
		Message: message,
		LinkURL: link,
		Data: map[string]any{
			"mode":            string(types.CheckoutModeSubscription),
			"subscription_id": subscriptionID,
		},
	})
}

package webhookevent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"

	"github.com/dogparkjp/paygate/internal/app/service/notify"
	"github.com/dogparkjp/paygate/internal/models"
	"github.com/dogparkjp/paygate/pkg/logctx"
	"github.com/dogparkjp/paygate/pkg/types"
)

// handleEvent dispatches one verified event by type and checkout mode.
// All paths are safe to run again for the same event.
func (s *Service) handleEvent(ctx context.Context, row *models.WebhookEvent) error {
	event, err := rawEvent(row)
	if err != nil {
		return fmt.Errorf("failed to decode event payload: %w", err)
	}

	// Invoice-less payment intents belong to one-time payments already
	// handled via the completed-session path; counting them again would
	// double-book the order.
	if event.Type == stripe.EventTypePaymentIntentSucceeded {
		var pi struct {
			Invoice any `json:"invoice"`
		}
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return fmt.Errorf("failed to decode payment intent: %w", err)
		}
		if pi.Invoice == nil {
			logctx.FromCtx(ctx, s.log).Infow("ignoring invoice-less payment intent", "event_id", event.ID)
			return nil
		}
	}

	customerID := customerFromEvent(event)
	if customerID == "" {
		logctx.FromCtx(ctx, s.log).Warnw("event carries no customer, nothing to do", "event_id", event.ID, "type", event.Type)
		return nil
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("failed to decode checkout session: %w", err)
		}
		if sess.Mode == stripe.CheckoutSessionModeSubscription {
			return s.handleSubscriptionCheckout(ctx, customerID, &sess)
		}
		return s.handleOneTimeCheckout(ctx, customerID, &sess)

	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("failed to decode checkout session: %w", err)
		}
		return s.handleAsyncPaymentSucceeded(ctx, customerID, &sess)

	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		logctx.FromCtx(ctx, s.log).Warnw("async payment failed, pending order stays pending", "event_id", event.ID, "customer_id", customerID)
		return nil

	default:
		// Every other customer-bearing event (subscription updates, invoice
		// payments, cancellations) funnels into reconciliation: fetch fresh,
		// replace fully.
		return s.SyncCustomer(ctx, customerID)
	}
}

func (s *Service) handleSubscriptionCheckout(ctx context.Context, customerID string, sess *stripe.CheckoutSession) error {
	logctx.FromCtx(ctx, s.log).Infow("processing subscription checkout session", "customer_id", customerID, "session_id", sess.ID)
	if err := s.SyncCustomer(ctx, customerID); err != nil {
		return err
	}

	userID, err := s.custSvc.UserIDForCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if err := s.materializeSubscriptionOrder(ctx, userID, sess); err != nil {
		// Order snapshot failures never undo the reconciled subscription.
		logctx.FromCtx(ctx, s.log).Errorw("failed to materialize subscription order", "session_id", sess.ID, "error", err)
	}

	s.notifySubscriptionStarted(ctx, userID, sess)
	return nil
}

func (s *Service) handleOneTimeCheckout(ctx context.Context, customerID string, sess *stripe.CheckoutSession) error {
	userID, err := s.custSvc.UserIDForCustomer(ctx, customerID)
	if err != nil {
		return err
	}

	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		// Konbini voucher / bank transfer: the money arrives later via an
		// async_payment event. Keep a pending order carrying the gateway's
		// payment instructions so the user can complete it.
		logctx.FromCtx(ctx, s.log).Infow("deferred payment, persisting pending order", "session_id", sess.ID)
		_, err := s.materializeOrder(ctx, userID, sess, models.OrderStatusPending)
		return err
	}

	logctx.FromCtx(ctx, s.log).Infow("processing one-time payment checkout session", "session_id", sess.ID)
	order, err := s.materializeOrder(ctx, userID, sess, models.OrderStatusConfirmed)
	if err != nil {
		return err
	}
	if order == nil {
		// Already materialized by an earlier delivery.
		return nil
	}

	s.settlePoints(ctx, userID, sess)
	s.notifyPaymentCompleted(ctx, userID, sess)
	return nil
}

// handleAsyncPaymentSucceeded flips the pending order created at session
// completion. The match is exact on the session id stored at pending-order
// creation, never by amount and recency.
func (s *Service) handleAsyncPaymentSucceeded(ctx context.Context, customerID string, sess *stripe.CheckoutSession) error {
	userID, err := s.custSvc.UserIDForCustomer(ctx, customerID)
	if err != nil {
		return err
	}

	confirmed, err := s.confirmPendingOrder(ctx, sess.ID)
	if err != nil {
		return err
	}
	if !confirmed {
		logctx.FromCtx(ctx, s.log).Warnw("no pending order for async payment", "session_id", sess.ID)
		return nil
	}

	s.settlePoints(ctx, userID, sess)
	s.notifyPaymentCompleted(ctx, userID, sess)
	return nil
}

// settlePoints runs the two independent ledger writes: deduct the points
// reserved in session metadata and award the purchase percentage. Both are
// best-effort after the confirmed payment; failures are logged, never
// escalated.
func (s *Service) settlePoints(ctx context.Context, userID string, sess *stripe.CheckoutSession) {
	if used := pointsUseFromMetadata(sess.Metadata); used > 0 {
		if err := s.ptsSvc.Use(ctx, userID, used, "order", sess.ID); err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to deduct points", "session_id", sess.ID, "error", err)
		}
	}
	award := sess.AmountTotal * s.cfg.Pricing.PointsAwardPercent / 100
	if award > 0 {
		if err := s.ptsSvc.Earn(ctx, userID, award, "shop", "ショップ購入10%還元", "stripe_checkout", sess.ID); err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to award points", "session_id", sess.ID, "error", err)
		}
	}
}

func (s *Service) notifyPaymentCompleted(ctx context.Context, userID string, sess *stripe.CheckoutSession) {
	s.notifSvc.Notify(ctx, &notify.Input{
		UserID:  userID,
		Title:   "お支払いが完了しました",
		Message: "ご注文の決済が完了しました。ご利用ありがとうございます。",
		LinkURL: s.cfg.PublicSiteURL + "/dashboard",
		Data: map[string]any{
			"mode":                string(types.CheckoutModePayment),
			"checkout_session_id": sess.ID,
			"amount_total":        sess.AmountTotal,
		},
	})
}

func pointsUseFromMetadata(md map[string]string) int64 {
	if md == nil {
		return 0
	}
	used, err := strconv.ParseInt(md["points_use"], 10, 64)
	if err != nil || used < 0 {
		return 0
	}
	return used
}

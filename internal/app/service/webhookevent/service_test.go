package webhookevent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dogparkjp/paygate/internal/app/service/customer"
	"github.com/dogparkjp/paygate/internal/app/service/notify"
	"github.com/dogparkjp/paygate/internal/app/service/points"
	"github.com/dogparkjp/paygate/internal/models"
	"github.com/dogparkjp/paygate/internal/platform/linepush"
	"github.com/dogparkjp/paygate/pkg/apperr"
	cfgpkg "github.com/dogparkjp/paygate/pkg/config"
	"github.com/dogparkjp/paygate/pkg/tool"
	"github.com/dogparkjp/paygate/pkg/types"
)

type fakeGateway struct {
	subscriptions []*stripe.Subscription
	listErr       error
	expanded      *stripe.CheckoutSession
	paymentIntent *stripe.PaymentIntent
	sigErr        error
}

func (f *fakeGateway) CreateCustomer(_ context.Context, email, userID string) (*stripe.Customer, error) {
	return &stripe.Customer{ID: "cus_" + userID, Email: email}, nil
}

func (f *fakeGateway) DeleteCustomer(_ context.Context, _ string) error { return nil }

func (f *fakeGateway) ListCardPaymentMethods(_ context.Context, _ string) ([]*stripe.PaymentMethod, error) {
	return nil, nil
}

func (f *fakeGateway) CreateProduct(_ context.Context, _ string) (*stripe.Product, error) {
	return nil, nil
}

func (f *fakeGateway) CreateRecurringPrice(_ context.Context, _, _ string, _ int64, _ stripe.PriceRecurringInterval, _ int64) (*stripe.Price, error) {
	return nil, nil
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return nil, nil
}

func (f *fakeGateway) GetCheckoutSession(_ context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	if f.expanded != nil {
		return f.expanded, nil
	}
	return &stripe.CheckoutSession{ID: sessionID}, nil
}

func (f *fakeGateway) GetPaymentIntent(_ context.Context, paymentIntentID string) (*stripe.PaymentIntent, error) {
	if f.paymentIntent != nil {
		return f.paymentIntent, nil
	}
	return &stripe.PaymentIntent{ID: paymentIntentID}, nil
}

func (f *fakeGateway) ListSubscriptions(_ context.Context, _ string) ([]*stripe.Subscription, error) {
	return f.subscriptions, f.listErr
}

func (f *fakeGateway) ConstructEvent(payload []byte, _ string) (stripe.Event, error) {
	if f.sigErr != nil {
		return stripe.Event{}, f.sigErr
	}
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, err
	}
	return event, nil
}

type fakePusher struct {
	pushed []*linepush.Message
}

func (f *fakePusher) Push(_ context.Context, msg *linepush.Message) error {
	f.pushed = append(f.pushed, msg)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeGateway, *fakePusher, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.PaymentCustomer{},
		&models.Subscription{},
		&models.Order{},
		&models.OrderItem{},
		&models.PointsLedgerEntry{},
		&models.Notification{},
		&models.WebhookEvent{},
	))
	cfg := &cfgpkg.Config{
		Pricing:       cfgpkg.PricingConfig{PointsAwardPercent: 10},
		PublicSiteURL: "https://dogparkjp.com",
		Webhook:       cfgpkg.WebhookConfig{MaxAttempts: 3, BatchSize: 10},
	}
	log := zap.NewNop().Sugar()
	gw := &fakeGateway{}
	pusher := &fakePusher{}
	custSvc := customer.NewService(db, gw, log)
	ptsSvc := points.NewService(db, log)
	notifSvc := notify.NewService(db, pusher, log)
	svc := NewService(db, gw, cfg, custSvc, ptsSvc, notifSvc, log)
	return svc, gw, pusher, db
}

func seedMapping(t *testing.T, db *gorm.DB, userID, customerID string) {
	t.Helper()
	require.NoError(t, db.Create(&models.PaymentCustomer{
		ID: tool.GenerateUUIDV7(), UserID: userID, CustomerID: customerID,
	}).Error)
}

func eventRow(t *testing.T, db *gorm.DB, eventType string, object map[string]any) *models.WebhookEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":   fmt.Sprintf("evt_%s", tool.GenerateUUIDV7()),
		"type": eventType,
		"data": map[string]any{"object": object},
	})
	require.NoError(t, err)
	row := &models.WebhookEvent{
		ID:        tool.GenerateUUIDV7(),
		EventID:   fmt.Sprintf("evt_%s", tool.GenerateUUIDV7()),
		EventType: eventType,
		Payload:   datatypes.JSON(payload),
		Status:    models.WebhookEventStatusReceived,
	}
	require.NoError(t, db.Create(row).Error)
	return row
}

func paidSessionObject(sessionID, customerID string, metadata map[string]string) map[string]any {
	return map[string]any{
		"id":              sessionID,
		"mode":            "payment",
		"payment_status":  "paid",
		"amount_subtotal": 1000,
		"amount_total":    800,
		"currency":        "jpy",
		"customer":        customerID,
		"metadata":        metadata,
	}
}

func TestIngestRejectsBadSignature(t *testing.T) {
	svc, gw, _, db := newTestService(t)
	gw.sigErr = errors.New("signature mismatch")

	err := svc.Ingest(context.Background(), []byte(`{}`), "t=1,v1=bad", "trace-1")
	require.True(t, apperr.IsKind(err, apperr.KindAuth))

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestIngestDeduplicatesByEventID(t *testing.T) {
	svc, _, _, db := newTestService(t)
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated","data":{"object":{"customer":"cus_u1"}}}`)

	require.NoError(t, svc.Ingest(context.Background(), payload, "sig", "trace-1"))
	require.NoError(t, svc.Ingest(context.Background(), payload, "sig", "trace-2"))

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Where("event_id = ?", "evt_1").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestHandleEventIgnoresInvoicelessPaymentIntent(t *testing.T) {
	svc, _, _, db := newTestService(t)
	row := eventRow(t, db, "payment_intent.succeeded", map[string]any{
		"id":       "pi_1",
		"customer": "cus_u1",
		"invoice":  nil,
	})

	require.NoError(t, svc.handleEvent(context.Background(), row))

	var subCount int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&subCount).Error)
	require.Zero(t, subCount)
}

func TestHandleEventInvoicePaymentIntentSyncsState(t *testing.T) {
	svc, gw, _, db := newTestService(t)
	gw.subscriptions = []*stripe.Subscription{{ID: "sub_1", Status: stripe.SubscriptionStatusActive}}
	row := eventRow(t, db, "payment_intent.succeeded", map[string]any{
		"id":       "pi_2",
		"customer": "cus_u1",
		"invoice":  "in_1",
	})

	require.NoError(t, svc.handleEvent(context.Background(), row))

	var sub models.Subscription
	require.NoError(t, db.Where("customer_id = ?", "cus_u1").First(&sub).Error)
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)
}

func TestHandleEventWithoutCustomerIsNoop(t *testing.T) {
	svc, _, _, db := newTestService(t)
	row := eventRow(t, db, "checkout.session.expired", map[string]any{"id": "cs_1"})
	require.NoError(t, svc.handleEvent(context.Background(), row))
}

func TestSyncCustomerFullReplace(t *testing.T) {
	svc, gw, _, db := newTestService(t)
	ctx := context.Background()

	gw.subscriptions = []*stripe.Subscription{{
		ID:     "sub_1",
		Status: stripe.SubscriptionStatusActive,
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			CurrentPeriodStart: 1700000000,
			CurrentPeriodEnd:   1702592000,
			Price:              &stripe.Price{ID: "price_1"},
		}}},
		DefaultPaymentMethod: &stripe.PaymentMethod{
			Card: &stripe.PaymentMethodCard{Brand: stripe.PaymentMethodCardBrandVisa, Last4: "4242"},
		},
	}}
	require.NoError(t, svc.SyncCustomer(ctx, "cus_u1"))

	var row models.Subscription
	require.NoError(t, db.Where("customer_id = ?", "cus_u1").First(&row).Error)
	require.Equal(t, types.SubscriptionStatusActive, row.Status)
	require.Equal(t, "sub_1", *row.SubscriptionID)
	require.Equal(t, "price_1", *row.PriceID)
	require.Equal(t, int64(1700000000), *row.CurrentPeriodStart)
	require.Equal(t, "visa", *row.PaymentMethodBrand)
	require.Equal(t, "4242", *row.PaymentMethodLast4)

	// The gateway now reports nothing: every synced field must be cleared,
	// not left stale.
	gw.subscriptions = nil
	require.NoError(t, svc.SyncCustomer(ctx, "cus_u1"))

	require.NoError(t, db.Where("customer_id = ?", "cus_u1").First(&row).Error)
	require.Equal(t, types.SubscriptionStatusNotStarted, row.Status)
	require.Nil(t, row.SubscriptionID)
	require.Nil(t, row.PriceID)
	require.Nil(t, row.CurrentPeriodStart)
	require.Nil(t, row.PaymentMethodBrand)

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Where("customer_id = ?", "cus_u1").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestSyncCustomerIsIdempotent(t *testing.T) {
	svc, gw, _, db := newTestService(t)
	ctx := context.Background()
	gw.subscriptions = []*stripe.Subscription{{ID: "sub_1", Status: stripe.SubscriptionStatusTrialing}}

	require.NoError(t, svc.SyncCustomer(ctx, "cus_u1"))
	require.NoError(t, svc.SyncCustomer(ctx, "cus_u1"))

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestOneTimeCheckoutMaterializesOnce(t *testing.T) {
	svc, _, pusher, db := newTestService(t)
	ctx := context.Background()
	seedMapping(t, db, "u1", "cus_u1")

	items, _ := json.Marshal([]orderItemSnapshot{{ProductID: "p1", Name: "ドッグフード", Quantity: 2, UnitPrice: 500}})
	object := paidSessionObject("cs_1", "cus_u1", map[string]string{
		"points_use": "200",
		"items":      string(items),
	})

	// The gateway redelivers; both rows carry the same session.
	first := eventRow(t, db, "checkout.session.completed", object)
	second := eventRow(t, db, "checkout.session.completed", object)
	require.NoError(t, svc.handleEvent(ctx, first))
	require.NoError(t, svc.handleEvent(ctx, second))

	var orders []models.Order
	require.NoError(t, db.Find(&orders).Error)
	require.Len(t, orders, 1)
	order := orders[0]
	require.Equal(t, models.OrderStatusConfirmed, order.Status)
	require.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
	require.Equal(t, int64(1000), order.TotalAmount)
	require.Equal(t, int64(800), order.FinalAmount)
	require.Equal(t, int64(200), order.DiscountAmount)
	require.Contains(t, order.OrderNumber, "SP")

	var orderItems []models.OrderItem
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&orderItems).Error)
	require.Len(t, orderItems, 1)
	require.Equal(t, int64(1000), orderItems[0].TotalPrice)

	// Points settle exactly once: 200 used, 10% of 800 awarded.
	var entries []models.PointsLedgerEntry
	require.NoError(t, db.Where("user_id = ?", "u1").Order("entry_type").Find(&entries).Error)
	require.Len(t, entries, 2)

	balance, err := points.NewService(db, zap.NewNop().Sugar()).Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(80-200), balance)

	// One notification, pushed once.
	require.Len(t, pusher.pushed, 1)
	require.Equal(t, "お支払いが完了しました", pusher.pushed[0].Title)
	require.Equal(t, "alert", pusher.pushed[0].Kind)
}

func TestDeferredPaymentConfirmsOnAsyncSuccess(t *testing.T) {
	svc, gw, pusher, db := newTestService(t)
	ctx := context.Background()
	seedMapping(t, db, "u1", "cus_u1")

	// The payload carries the intent as a bare id; the voucher details live
	// on the intent fetched from the gateway.
	gw.paymentIntent = &stripe.PaymentIntent{
		ID: "pi_konbini",
		NextAction: &stripe.PaymentIntentNextAction{
			Type: "konbini_display_details",
			KonbiniDisplayDetails: &stripe.PaymentIntentNextActionKonbiniDisplayDetails{
				HostedVoucherURL: "https://payments.test/konbini/voucher",
			},
		},
	}

	object := paidSessionObject("cs_konbini", "cus_u1", nil)
	object["payment_status"] = "unpaid"
	object["payment_method_types"] = []string{"konbini"}
	object["payment_intent"] = "pi_konbini"
	completed := eventRow(t, db, "checkout.session.completed", object)
	require.NoError(t, svc.handleEvent(ctx, completed))

	var order models.Order
	require.NoError(t, db.Where("checkout_session_id = ?", "cs_konbini").First(&order).Error)
	require.Equal(t, models.OrderStatusPending, order.Status)
	require.Equal(t, types.PaymentMethodKonbini, order.PaymentMethod)
	require.NotNil(t, order.PaymentInstructions)
	require.Contains(t, *order.PaymentInstructions, "konbini_display_details")
	require.Contains(t, *order.PaymentInstructions, "https://payments.test/konbini/voucher")
	// No points and no payment notification while the voucher is unpaid.
	require.Empty(t, pusher.pushed)

	object["payment_status"] = "paid"
	succeeded := eventRow(t, db, "checkout.session.async_payment_succeeded", object)
	require.NoError(t, svc.handleEvent(ctx, succeeded))

	require.NoError(t, db.Where("checkout_session_id = ?", "cs_konbini").First(&order).Error)
	require.Equal(t, models.OrderStatusConfirmed, order.Status)
	require.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
	require.Len(t, pusher.pushed, 1)

	// A redelivered async success finds no pending order and changes nothing.
	redelivered := eventRow(t, db, "checkout.session.async_payment_succeeded", object)
	require.NoError(t, svc.handleEvent(ctx, redelivered))
	require.Len(t, pusher.pushed, 1)
}

func TestAsyncPaymentFailureKeepsOrderPending(t *testing.T) {
	svc, _, _, db := newTestService(t)
	ctx := context.Background()
	seedMapping(t, db, "u1", "cus_u1")

	object := paidSessionObject("cs_k2", "cus_u1", nil)
	object["payment_status"] = "unpaid"
	require.NoError(t, svc.handleEvent(ctx, eventRow(t, db, "checkout.session.completed", object)))
	require.NoError(t, svc.handleEvent(ctx, eventRow(t, db, "checkout.session.async_payment_failed", object)))

	var order models.Order
	require.NoError(t, db.Where("checkout_session_id = ?", "cs_k2").First(&order).Error)
	require.Equal(t, models.OrderStatusPending, order.Status)
}

func TestPaymentMethodMapping(t *testing.T) {
	cases := []struct {
		name    string
		methods []string
		want    types.PaymentMethod
	}{
		{"card", []string{"card"}, types.PaymentMethodCard},
		{"konbini wins over card", []string{"card", "konbini"}, types.PaymentMethodKonbini},
		{"bank transfer", []string{"customer_balance"}, types.PaymentMethodBankTransfer},
		{"none", nil, types.PaymentMethodCard},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := &stripe.CheckoutSession{PaymentMethodTypes: tc.methods}
			require.Equal(t, tc.want, paymentMethodOf(sess))
		})
	}
}

func TestSubscriptionCheckoutReconcilesAndNotifies(t *testing.T) {
	svc, gw, pusher, db := newTestService(t)
	ctx := context.Background()
	seedMapping(t, db, "u1", "cus_u1")
	gw.subscriptions = []*stripe.Subscription{{ID: "sub_1", Status: stripe.SubscriptionStatusActive}}

	row := eventRow(t, db, "checkout.session.completed", map[string]any{
		"id":           "cs_sub",
		"mode":         "subscription",
		"customer":     "cus_u1",
		"subscription": "sub_1",
		"amount_total": 980,
		"currency":     "jpy",
	})
	require.NoError(t, svc.handleEvent(ctx, row))

	var sub models.Subscription
	require.NoError(t, db.Where("customer_id = ?", "cus_u1").First(&sub).Error)
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)

	var order models.Order
	require.NoError(t, db.Where("checkout_session_id = ?", "cs_sub").First(&order).Error)
	require.True(t, order.IsSubscription)
	require.Equal(t, "sub_1", *order.SubscriptionID)
	require.Contains(t, order.OrderNumber, "SUB")

	require.Len(t, pusher.pushed, 1)
	require.Equal(t, "サブスクリプションの登録が完了しました", pusher.pushed[0].Title)
	require.Equal(t, "https://dogparkjp.com/dashboard", pusher.pushed[0].LinkURL)
}

func TestSubscriptionCheckoutPremiumOwnerNotification(t *testing.T) {
	svc, gw, pusher, db := newTestService(t)
	ctx := context.Background()
	seedMapping(t, db, "u1", "cus_u1")
	gw.subscriptions = []*stripe.Subscription{{ID: "sub_1", Status: stripe.SubscriptionStatusActive}}

	row := eventRow(t, db, "checkout.session.completed", map[string]any{
		"id":           "cs_po",
		"mode":         "subscription",
		"customer":     "cus_u1",
		"subscription": "sub_1",
		"metadata":     map[string]string{"notes": "premium_owner plan"},
	})
	require.NoError(t, svc.handleEvent(ctx, row))

	require.Len(t, pusher.pushed, 1)
	require.Equal(t, "プレミアムオーナー登録が完了しました", pusher.pushed[0].Title)
	require.Equal(t, "https://dogparkjp.com/my-facilities-management", pusher.pushed[0].LinkURL)
}

func TestUnknownCustomerEventSyncsState(t *testing.T) {
	svc, gw, _, db := newTestService(t)
	gw.subscriptions = []*stripe.Subscription{{ID: "sub_9", Status: stripe.SubscriptionStatusPastDue}}

	row := eventRow(t, db, "customer.subscription.updated", map[string]any{
		"id":       "sub_9",
		"customer": "cus_u9",
	})
	require.NoError(t, svc.handleEvent(context.Background(), row))

	var sub models.Subscription
	require.NoError(t, db.Where("customer_id = ?", "cus_u9").First(&sub).Error)
	require.Equal(t, types.SubscriptionStatusPastDue, sub.Status)
}

// Package webhookevent ingests gateway notifications and drives every local
// side effect of a payment: subscription reconciliation, order
// materialization, the loyalty ledger and user notifications.
//
// The WebhookEvent row is both the audit log and the durable work queue. The
// HTTP handler verifies the signature, persists the row and acknowledges;
// a background worker drains pending rows with a bounded retry budget. The
// gateway's own at-least-once redelivery is the correctness backstop, so
// every handler tolerates re-invocation for the same event id.
package webhookevent

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/stripe/stripe-go/v82"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dogparkjp/paygate/internal/app/service/customer"
	"github.com/dogparkjp/paygate/internal/app/service/notify"
	"github.com/dogparkjp/paygate/internal/app/service/points"
	"github.com/dogparkjp/paygate/internal/models"
	"github.com/dogparkjp/paygate/internal/platform/stripegw"
	"github.com/dogparkjp/paygate/pkg/apperr"
	cfgpkg "github.com/dogparkjp/paygate/pkg/config"
	"github.com/dogparkjp/paygate/pkg/logctx"
	"github.com/dogparkjp/paygate/pkg/tool"
)

type Service struct {
	db       *gorm.DB
	gw       stripegw.Gateway
	cfg      *cfgpkg.Config
	custSvc  *customer.Service
	ptsSvc   *points.Service
	notifSvc *notify.Service
	log      *zap.SugaredLogger
}

func NewService(db *gorm.DB, gw stripegw.Gateway, cfg *cfgpkg.Config, custSvc *customer.Service, ptsSvc *points.Service, notifSvc *notify.Service, log *zap.SugaredLogger) *Service {
	return &Service{db: db, gw: gw, cfg: cfg, custSvc: custSvc, ptsSvc: ptsSvc, notifSvc: notifSvc, log: log}
}

// Ingest authenticates a raw webhook delivery and enqueues it. The signature
// check is the only authentication this endpoint has; on mismatch nothing is
// persisted. A redelivered event id lands on the existing row and enqueues
// nothing new.
func (s *Service) Ingest(ctx context.Context, payload []byte, sigHeader, traceID string) error {
	event, err := s.gw.ConstructEvent(payload, sigHeader)
	if err != nil {
		return apperr.Wrap(apperr.KindAuth, "webhook signature verification failed", err)
	}

	var existing models.WebhookEvent
	err = s.db.WithContext(ctx).Where("event_id = ?", event.ID).First(&existing).Error
	if err == nil {
		logctx.FromCtx(ctx, s.log).Infow("webhook event already recorded", "event_id", event.ID, "status", existing.Status)
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.KindGateway, "failed to check webhook event", err)
	}

	row := &models.WebhookEvent{
		ID:         tool.GenerateUUIDV7(),
		EventID:    event.ID,
		EventType:  string(event.Type),
		CustomerID: customerFromEvent(&event),
		TraceID:    traceID,
		Payload:    datatypes.JSON(payload),
		Status:     models.WebhookEventStatusReceived,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return apperr.Wrap(apperr.KindGateway, "failed to enqueue webhook event", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("webhook event enqueued", "event_id", event.ID, "type", event.Type)
	return nil
}

// customerFromEvent pulls the customer id out of the event object when
// present; many event types carry one, and the row index is best-effort.
func customerFromEvent(event *stripe.Event) string {
	if event.Data == nil {
		return ""
	}
	if v, ok := event.Data.Object["customer"]; ok {
		if id, ok := v.(string); ok {
			return id
		}
		if m, ok := v.(map[string]any); ok {
			if id, ok := m["id"].(string); ok {
				return id
			}
		}
	}
	return ""
}

func rawEvent(row *models.WebhookEvent) (*stripe.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(row.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

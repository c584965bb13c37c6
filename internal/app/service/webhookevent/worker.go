package webhookevent

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dogparkjp/paygate/internal/models"
	cfgpkg "github.com/dogparkjp/paygate/pkg/config"
	"github.com/dogparkjp/paygate/pkg/logctx"
	"github.com/dogparkjp/paygate/pkg/metrics"
)

var handleDur *prometheus.HistogramVec

func init() {
	collector := metrics.NewMetric(metrics.MetricsBusinessProcess, "webhook")
	if err := prometheus.Register(collector); err == nil {
		handleDur = collector.(*prometheus.HistogramVec)
	}
}

// Worker drains the webhook event queue in the background. A row is retried
// until the attempt budget is spent, then parked as dead_letter for manual
// inspection; the gateway's own redelivery covers rows lost before enqueue.
type Worker struct {
	svc *Service
	cfg *cfgpkg.Config
	log *zap.SugaredLogger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(svc *Service, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Worker {
	return &Worker{svc: svc, cfg: cfg, log: log}
}

func runWorker(lc fx.Lifecycle, w *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			loopCtx, cancel := context.WithCancel(context.Background())
			w.cancel = cancel
			w.done = make(chan struct{})
			go w.loop(loopCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			w.cancel()
			select {
			case <-w.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
	})
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	w.log.Infow("webhook worker started", "interval", w.cfg.Webhook.WorkerInterval)
	ticker := time.NewTicker(w.cfg.Webhook.WorkerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Infow("webhook worker stopped")
			return
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

// drainOnce claims one batch of unfinished rows and processes them in order.
// Claiming happens per row with an attempts bump before handling, so a crash
// mid-handle still burns an attempt instead of retrying forever.
func (w *Worker) drainOnce(ctx context.Context) {
	var rows []models.WebhookEvent
	err := w.svc.db.WithContext(ctx).
		Where("status IN ?", []models.WebhookEventStatus{models.WebhookEventStatusReceived, models.WebhookEventStatusHandleFailed}).
		Where("attempts < ?", w.cfg.Webhook.MaxAttempts).
		Order("created_at asc").
		Limit(w.cfg.Webhook.BatchSize).
		Find(&rows).Error
	if err != nil {
		w.log.Errorw("failed to fetch webhook event batch", "error", err)
		return
	}

	for i := range rows {
		if ctx.Err() != nil {
			return
		}
		w.processOne(ctx, &rows[i])
	}
}

func (w *Worker) processOne(ctx context.Context, row *models.WebhookEvent) {
	if row.TraceID != "" {
		ctx = context.WithValue(ctx, "traceID", row.TraceID)
	}
	log := logctx.FromCtx(ctx, w.log)

	row.Attempts++
	if err := w.svc.db.WithContext(ctx).Model(row).Update("attempts", row.Attempts).Error; err != nil {
		log.Errorw("failed to claim webhook event", "event_id", row.EventID, "error", err)
		return
	}

	start := time.Now()
	handleErr := w.svc.handleEvent(ctx, row)
	if handleDur != nil {
		outcome := "ok"
		if handleErr != nil {
			outcome = "error"
		}
		handleDur.WithLabelValues(row.EventType, outcome).Observe(metrics.MillisecondsSince(start))
	}
	if handleErr == nil {
		if err := w.svc.db.WithContext(ctx).Model(row).Update("status", models.WebhookEventStatusHandled).Error; err != nil {
			log.Errorw("failed to mark webhook event handled", "event_id", row.EventID, "error", err)
		}
		return
	}

	status := models.WebhookEventStatusHandleFailed
	if row.Attempts >= w.cfg.Webhook.MaxAttempts {
		status = models.WebhookEventStatusDeadLetter
		log.Errorw("webhook event exhausted retries, parking as dead letter",
			"event_id", row.EventID, "attempts", row.Attempts, "error", handleErr)
	} else {
		log.Warnw("webhook event handling failed, will retry",
			"event_id", row.EventID, "attempts", row.Attempts, "error", handleErr)
	}
	updates := map[string]any{
		"status":     status,
		"last_error": handleErr.Error(),
	}
	if err := w.svc.db.WithContext(ctx).Model(row).Updates(updates).Error; err != nil {
		log.Errorw("failed to record webhook event failure", "event_id", row.EventID, "error", err)
	}
}

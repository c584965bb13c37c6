package notify

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dogparkjp/paygate/internal/models"
	"github.com/dogparkjp/paygate/internal/platform/linepush"
	"github.com/dogparkjp/paygate/pkg/logctx"
	"github.com/dogparkjp/paygate/pkg/tool"
)

// Input is one user-facing notification: an in-app row plus a push relay.
type Input struct {
	UserID  string
	Title   string
	Message string
	LinkURL string
	Data    map[string]any
}

// Service writes in-app notifications and forwards them to the LINE relay.
// Everything here is best-effort enrichment after the financial record is
// durable: failures are logged and swallowed.
type Service struct {
	db     *gorm.DB
	pusher linepush.Pusher
	log    *zap.SugaredLogger
}

func NewService(db *gorm.DB, pusher linepush.Pusher, log *zap.SugaredLogger) *Service {
	return &Service{db: db, pusher: pusher, log: log}
}

func (s *Service) Notify(ctx context.Context, in *Input) {
	dataBytes, _ := json.Marshal(in.Data)
	row := &models.Notification{
		ID:      tool.GenerateUUIDV7(),
		UserID:  in.UserID,
		Type:    "order",
		Title:   in.Title,
		Message: in.Message,
		LinkURL: in.LinkURL,
		Data:    datatypes.JSON(dataBytes),
		Read:    false,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to insert notification", "user_id", in.UserID, "error", err)
	}

	if err := s.pusher.Push(ctx, &linepush.Message{
		UserID:  in.UserID,
		Kind:    "alert",
		Title:   in.Title,
		Message: in.Message,
		LinkURL: in.LinkURL,
	}); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to send push message", "user_id", in.UserID, "error", err)
	}
}

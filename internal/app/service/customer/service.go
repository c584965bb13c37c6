package customer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dogparkjp/paygate/internal/models"
	"github.com/dogparkjp/paygate/internal/platform/stripegw"
	"github.com/dogparkjp/paygate/pkg/apperr"
	"github.com/dogparkjp/paygate/pkg/logctx"
	"github.com/dogparkjp/paygate/pkg/tool"
	"github.com/dogparkjp/paygate/pkg/types"
)

// Service maps application users to gateway customers.
type Service struct {
	db  *gorm.DB
	gw  stripegw.Gateway
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, gw stripegw.Gateway, log *zap.SugaredLogger) *Service {
	return &Service{db: db, gw: gw, log: log}
}

// EnsureCustomer returns the gateway customer id for the user, creating the
// gateway customer and the local mapping on first use. Calling it again for
// the same user returns the same id.
//
// If persisting the mapping fails after the gateway create succeeded, the
// just-created gateway customer is deleted again: an unmapped gateway
// customer must never be left behind silently.
func (s *Service) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	var existing models.PaymentCustomer
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&existing).Error
	if err == nil {
		return existing.CustomerID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperr.Wrap(apperr.KindGateway, "failed to fetch customer mapping", err)
	}

	created, err := s.gw.CreateCustomer(ctx, email, userID)
	if err != nil {
		return "", apperr.Gateway("failed to create gateway customer", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("created gateway customer", "customer_id", created.ID, "user_id", userID)

	mapping := &models.PaymentCustomer{
		ID:         tool.GenerateUUIDV7(),
		UserID:     userID,
		CustomerID: created.ID,
		Email:      email,
	}
	if err := s.db.WithContext(ctx).Create(mapping).Error; err != nil {
		// Compensating delete; its own failure is only logged because the
		// caller already fails with the persist error.
		if delErr := s.gw.DeleteCustomer(ctx, created.ID); delErr != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to delete gateway customer after persist error",
				"customer_id", created.ID, "error", delErr)
		}
		return "", apperr.Wrap(apperr.KindGateway, "failed to create customer mapping", err)
	}
	return created.ID, nil
}

// EnsureSubscriptionRow makes sure a Subscription row exists for the customer
// so the first reconciliation has something to overwrite. Existing rows are
// left untouched.
func (s *Service) EnsureSubscriptionRow(ctx context.Context, customerID string) error {
	var existing models.Subscription
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to fetch subscription row: %w", err)
	}
	row := &models.Subscription{
		ID:         tool.GenerateUUIDV7(),
		CustomerID: customerID,
		Status:     types.SubscriptionStatusNotStarted,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create subscription row: %w", err)
	}
	return nil
}

// UserIDForCustomer resolves the local user behind a gateway customer id.
func (s *Service) UserIDForCustomer(ctx context.Context, customerID string) (string, error) {
	var mapping models.PaymentCustomer
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperr.NotFound("no user mapped to customer")
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch customer mapping: %w", err)
	}
	return mapping.UserID, nil
}

package points

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dogparkjp/paygate/internal/models"
	"github.com/dogparkjp/paygate/pkg/logctx"
	"github.com/dogparkjp/paygate/pkg/tool"
)

// Service is the append-only loyalty ledger. Entries are never updated or
// deleted; the balance is always derived by summing.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// Use appends a redemption entry. Amounts are clamped non-negative; a zero
// amount appends nothing.
func (s *Service) Use(ctx context.Context, userID string, amount int64, reference, referenceID string) error {
	if amount <= 0 {
		return nil
	}
	entry := &models.PointsLedgerEntry{
		ID:          tool.GenerateUUIDV7(),
		UserID:      userID,
		EntryType:   models.PointsEntryTypeUse,
		Amount:      amount,
		Source:      "shop",
		Reference:   reference,
		ReferenceID: referenceID,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append use entry: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("points used", "user_id", userID, "amount", amount, "reference_id", referenceID)
	return nil
}

// Earn appends an award entry.
func (s *Service) Earn(ctx context.Context, userID string, amount int64, source, description, reference, referenceID string) error {
	if amount <= 0 {
		return nil
	}
	entry := &models.PointsLedgerEntry{
		ID:          tool.GenerateUUIDV7(),
		UserID:      userID,
		EntryType:   models.PointsEntryTypeEarn,
		Amount:      amount,
		Source:      source,
		Description: description,
		Reference:   reference,
		ReferenceID: referenceID,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append earn entry: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("points earned", "user_id", userID, "amount", amount, "source", source)
	return nil
}

// Balance derives the user's current balance from the ledger.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	var balance *int64
	err := s.db.WithContext(ctx).
		Model(&models.PointsLedgerEntry{}).
		Select("COALESCE(SUM(CASE WHEN entry_type = 'earn' THEN amount ELSE -amount END), 0)").
		Where("user_id = ?", userID).
		Scan(&balance).Error
	if err != nil {
		return 0, fmt.Errorf("failed to derive balance: %w", err)
	}
	if balance == nil {
		return 0, nil
	}
	return *balance, nil
}

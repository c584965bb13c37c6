package points

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dogparkjp/paygate/internal/models"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PointsLedgerEntry{}))
	return NewService(db, zap.NewNop().Sugar()), db
}

func TestBalanceDerivesFromLedger(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Earn(ctx, "u1", 500, "shop", "ショップ購入10%還元", "stripe_checkout", "cs_1"))
	require.NoError(t, svc.Earn(ctx, "u1", 120, "shop", "ショップ購入10%還元", "stripe_checkout", "cs_2"))
	require.NoError(t, svc.Use(ctx, "u1", 300, "order", "cs_3"))

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(320), balance)
}

func TestBalanceEmptyLedger(t *testing.T) {
	svc, _ := newTestService(t)
	balance, err := svc.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestZeroAndNegativeAmountsAppendNothing(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Earn(ctx, "u1", 0, "shop", "", "", ""))
	require.NoError(t, svc.Earn(ctx, "u1", -10, "shop", "", "", ""))
	require.NoError(t, svc.Use(ctx, "u1", 0, "order", ""))
	require.NoError(t, svc.Use(ctx, "u1", -5, "order", ""))

	var count int64
	require.NoError(t, db.Model(&models.PointsLedgerEntry{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestLedgerIsScopedPerUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Earn(ctx, "u1", 100, "shop", "", "", ""))
	require.NoError(t, svc.Earn(ctx, "u2", 999, "shop", "", "", ""))

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)
}

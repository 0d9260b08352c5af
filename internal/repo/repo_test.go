package repo

import (
	"context"
	"testing"
	"time"

	"github.com/dushixiang/strike/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		models.OptionsPosition{}, models.TradeRecommendation{}, models.Thesis{},
		models.WorkflowRun{}, models.StepLog{},
	))
	return db
}

func newPosition(recID *string, quantity int, avg string) *models.OptionsPosition {
	avgPrice := decimal.RequireFromString(avg)
	return &models.OptionsPosition{
		ID:               ulid.Make().String(),
		RecommendationID: recID,
		Ticker:           "NVDA",
		Right:            models.OptionRightCall,
		Strike:           decimal.NewFromInt(140),
		Expiry:           time.Date(2025, 2, 21, 0, 0, 0, 0, time.UTC),
		Quantity:         quantity,
		AvgFillPrice:     avgPrice,
		CurrentPrice:     avgPrice,
		CostBasis:        models.CostBasisOf(avgPrice, quantity),
		Status:           models.PositionStatusOpen,
		OpenedAt:         time.Now(),
	}
}

func TestPositionRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewPositionRepo(newTestDB(t))

	pos := newPosition(nil, 4, "9")
	require.NoError(t, r.Create(ctx, pos))
	other := newPosition(nil, 1, "2")
	require.NoError(t, r.Create(ctx, other))

	exposure, err := r.SumOpenCostBasis(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3800", exposure.StringFixed(0))

	require.NoError(t, r.UpdatePrice(ctx, pos.ID, decimal.RequireFromString("14.4"), decimal.RequireFromString("2160")))

	affected, err := r.PartialClose(ctx, pos.ID, 2, decimal.RequireFromString("1080"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	got, err := r.FindById(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Quantity)
	assert.Equal(t, "1800", got.CostBasis.StringFixed(0))
	assert.Equal(t, "1080", got.UnrealizedPnl.StringFixed(0))
	assert.Equal(t, "1080", got.RealizedPnl.StringFixed(0))

	affected, err = r.Close(ctx, pos.ID, models.CloseReasonProfitTarget, decimal.RequireFromString("1080"), time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	got, err = r.FindById(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PositionStatusClosed, got.Status)
	assert.Equal(t, "2160", got.RealizedPnl.StringFixed(0))
	assert.NotNil(t, got.ClosedAt)

	// 已平仓记录不可再修改
	affected, err = r.Close(ctx, pos.ID, models.CloseReasonManual, decimal.NewFromInt(1), time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)
	require.NoError(t, r.UpdatePrice(ctx, pos.ID, decimal.NewFromInt(1), decimal.NewFromInt(1)))
	got, err = r.FindById(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, "14.40", got.CurrentPrice.StringFixed(2))

	open, err := r.FindOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, other.ID, open[0].ID)

	realized, err := r.SumRealizedPnl(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2160", realized.StringFixed(0))
}

func TestPositionRepo_EmptyExposure(t *testing.T) {
	r := NewPositionRepo(newTestDB(t))
	exposure, err := r.SumOpenCostBasis(context.Background())
	require.NoError(t, err)
	assert.True(t, exposure.IsZero())
}

func TestRecommendationRepo_ConditionalStatus(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	r := NewRecommendationRepo(db)

	rec := &models.TradeRecommendation{
		ID:       ulid.Make().String(),
		ThesisID: "thesis-1",
		Ticker:   "NVDA",
		Right:    models.OptionRightCall,
		Strike:   decimal.NewFromInt(140),
		Expiry:   time.Date(2025, 2, 21, 0, 0, 0, 0, time.UTC),
		Status:   models.RecommendationApproved,
	}
	require.NoError(t, r.Create(ctx, rec))

	affected, err := r.UpdateStatus(ctx, rec.ID,
		[]models.RecommendationStatus{models.RecommendationPendingReview},
		map[string]interface{}{"status": models.RecommendationRejected})
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)

	affected, err = r.UpdateStatus(ctx, rec.ID,
		[]models.RecommendationStatus{models.RecommendationApproved},
		map[string]interface{}{"status": models.RecommendationExecuting})
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	items, err := r.FindByStatus(ctx, models.RecommendationExecuting)
	require.NoError(t, err)
	require.Len(t, items, 1)

	pos := newPosition(&rec.ID, 1, "5")
	require.NoError(t, NewPositionRepo(db).Create(ctx, pos))

	thesisID, err := r.FindThesisIDByPosition(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, "thesis-1", thesisID)

	external := newPosition(nil, 1, "5")
	require.NoError(t, NewPositionRepo(db).Create(ctx, external))
	thesisID, err = r.FindThesisIDByPosition(ctx, external.ID)
	require.NoError(t, err)
	assert.Empty(t, thesisID)
}

func TestWorkflowRunRepo_CompleteOnce(t *testing.T) {
	ctx := context.Background()
	r := NewWorkflowRunRepo(newTestDB(t))

	run := &models.WorkflowRun{
		ID:         ulid.Make().String(),
		WorkflowID: "trade-thesis",
		Status:     models.WorkflowRunRunning,
		StartedAt:  time.Now(),
	}
	require.NoError(t, r.Create(ctx, run))

	affected, err := r.Complete(ctx, run.ID, map[string]interface{}{"status": models.WorkflowRunCompleted})
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	affected, err = r.Complete(ctx, run.ID, map[string]interface{}{"status": models.WorkflowRunFailed})
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dushixiang/strike/internal/models"
	"github.com/dushixiang/strike/internal/repo"
	"github.com/dushixiang/strike/pkg/broker"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AccountProvider 账户概要来源
type AccountProvider interface {
	AccountSummary(ctx context.Context) (*broker.AccountSummary, error)
}

// EquityService 权益快照
type EquityService struct {
	logger       *zap.Logger
	account      AccountProvider
	positionRepo *repo.PositionRepo
	snapshotRepo *repo.EquitySnapshotRepo
	now          func() time.Time
}

func NewEquityService(db *gorm.DB, account AccountProvider, logger *zap.Logger) *EquityService {
	return &EquityService{
		logger:       logger,
		account:      account,
		positionRepo: repo.NewPositionRepo(db),
		snapshotRepo: repo.NewEquitySnapshotRepo(db),
		now:          time.Now,
	}
}

// Snapshot 记录当前净值、盈亏与敞口
func (s *EquityService) Snapshot(ctx context.Context) (*models.EquitySnapshot, error) {
	account, err := s.account.AccountSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("account summary: %w", err)
	}
	open, err := s.positionRepo.FindOpen(ctx)
	if err != nil {
		return nil, err
	}
	realized, err := s.positionRepo.SumRealizedPnl(ctx)
	if err != nil {
		return nil, err
	}

	unrealized := decimal.Zero
	exposure := decimal.Zero
	for _, pos := range open {
		unrealized = unrealized.Add(pos.UnrealizedPnl)
		exposure = exposure.Add(pos.CostBasis)
	}

	snapshot := &models.EquitySnapshot{
		ID:                 ulid.Make().String(),
		NetLiquidation:     account.NetLiquidation,
		BuyingPower:        account.BuyingPower,
		TotalUnrealizedPnl: unrealized,
		TotalRealizedPnl:   realized,
		OptionsExposure:    exposure,
		OpenPositions:      len(open),
		RecordedAt:         s.now(),
	}
	if err := s.snapshotRepo.Create(ctx, snapshot); err != nil {
		return nil, err
	}
	s.logger.Debug("equity snapshot recorded",
		zap.Stringer("net_liquidation", snapshot.NetLiquidation),
		zap.Stringer("exposure", snapshot.OptionsExposure),
		zap.Int("open_positions", snapshot.OpenPositions))
	return snapshot, nil
}

// History 最近 days 天的快照
func (s *EquityService) History(ctx context.Context, days int) ([]models.EquitySnapshot, error) {
	if days <= 0 {
		days = 30
	}
	return s.snapshotRepo.FindSince(ctx, s.now().AddDate(0, 0, -days))
}

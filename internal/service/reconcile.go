package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dushixiang/strike/internal/models"
	"github.com/dushixiang/strike/pkg/broker"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// pendingFillMaxAge 无券商引用的持仓超过该时长仍未出现在券商侧则视为失效
const pendingFillMaxAge = 24 * time.Hour

// ReconcileReport 对账结果
type ReconcileReport struct {
	BrokerPositions int `json:"broker_positions"`
	Matched         int `json:"matched"`
	Backfilled      int `json:"backfilled"`
	Inserted        int `json:"inserted"`
	Closed          int `json:"closed"`
}

type reconcileMatch struct {
	pos      *models.OptionsPosition
	item     *broker.PortfolioItem
	backfill bool
}

type reconcilePlan struct {
	matches []reconcileMatch
	inserts []*broker.PortfolioItem
	closes  []*models.OptionsPosition
}

func itemContractKey(item *broker.PortfolioItem) string {
	return models.ContractKey(item.Symbol, normalizeRight(item.Right), item.Strike, item.Expiry)
}

func normalizeRight(right string) models.OptionRight {
	switch strings.ToLower(right) {
	case "p", "put":
		return models.OptionRightPut
	default:
		return models.OptionRightCall
	}
}

// planReconcile 券商决定持仓是否存在及实时盈亏，数据库决定建议血缘
func planReconcile(items []*broker.PortfolioItem, open []models.OptionsPosition, now time.Time) reconcilePlan {
	var plan reconcilePlan

	snapshotRefs := make(map[string]bool, len(items))
	for _, item := range items {
		snapshotRefs[item.BrokerRefID] = true
	}

	byRef := make(map[string]*models.OptionsPosition, len(open))
	for i := range open {
		if ref := open[i].BrokerRefID; ref != "" {
			byRef[ref] = &open[i]
		}
	}

	claimed := make(map[string]bool, len(open))
	var unmatched []*broker.PortfolioItem

	for _, item := range items {
		if pos, ok := byRef[item.BrokerRefID]; ok && !claimed[pos.ID] {
			claimed[pos.ID] = true
			plan.matches = append(plan.matches, reconcileMatch{pos: pos, item: item})
			continue
		}
		unmatched = append(unmatched, item)
	}

	// 按合约回退匹配：只考虑没有引用或引用已不在快照中的行，优先无引用，其次最新开仓
	for _, item := range unmatched {
		key := itemContractKey(item)
		var candidates []*models.OptionsPosition
		for i := range open {
			pos := &open[i]
			if claimed[pos.ID] || pos.ContractKey() != key {
				continue
			}
			if pos.BrokerRefID != "" && snapshotRefs[pos.BrokerRefID] {
				continue
			}
			candidates = append(candidates, pos)
		}
		if len(candidates) == 0 {
			plan.inserts = append(plan.inserts, item)
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if (a.BrokerRefID == "") != (b.BrokerRefID == "") {
				return a.BrokerRefID == ""
			}
			return a.OpenedAt.After(b.OpenedAt)
		})
		pos := candidates[0]
		claimed[pos.ID] = true
		plan.matches = append(plan.matches, reconcileMatch{pos: pos, item: item, backfill: true})
	}

	for i := range open {
		pos := &open[i]
		if claimed[pos.ID] {
			continue
		}
		switch {
		case pos.BrokerRefID != "" && !snapshotRefs[pos.BrokerRefID]:
			plan.closes = append(plan.closes, pos)
		case pos.BrokerRefID == "" && now.Sub(pos.OpenedAt) > pendingFillMaxAge:
			plan.closes = append(plan.closes, pos)
		}
	}
	return plan
}

// Reconcile 单独执行一次对账，与 tick 串行
func (m *PositionManager) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	return m.reconcile(ctx)
}

func (m *PositionManager) reconcile(ctx context.Context) (*ReconcileReport, error) {
	// 网络调用在事务之外完成
	portfolio, err := m.broker.Portfolio(ctx)
	if err != nil {
		return nil, fmt.Errorf("broker portfolio: %w", err)
	}
	var items []*broker.PortfolioItem
	for _, item := range portfolio {
		if item != nil && item.IsLongOption() {
			items = append(items, item)
		}
	}

	open, err := m.store.GetOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("open positions: %w", err)
	}

	now := m.now()
	plan := planReconcile(items, open, now)
	report := &ReconcileReport{BrokerPositions: len(items)}

	err = m.store.Transaction(ctx, func(ctx context.Context) error {
		for _, match := range plan.matches {
			if match.backfill {
				if err := m.store.UpdatePositionBrokerRef(ctx, match.pos.ID, match.item.BrokerRefID); err != nil {
					return fmt.Errorf("backfill ref %s: %w", match.pos.ID, err)
				}
				report.Backfilled++
			}
			if match.item.MarketPrice.IsPositive() {
				if err := m.store.UpdatePositionPrice(ctx, match.pos.ID, match.item.MarketPrice, match.item.UnrealizedPnl); err != nil {
					return fmt.Errorf("update price %s: %w", match.pos.ID, err)
				}
			}
			report.Matched++
		}

		for _, item := range plan.inserts {
			pos := &models.OptionsPosition{
				Ticker:        strings.ToUpper(item.Symbol),
				Right:         normalizeRight(item.Right),
				Strike:        item.Strike,
				Expiry:        item.Expiry,
				Quantity:      item.Quantity,
				AvgFillPrice:  item.AvgCost,
				CurrentPrice:  item.MarketPrice,
				UnrealizedPnl: item.UnrealizedPnl,
				Status:        models.PositionStatusOpen,
				BrokerRefID:   item.BrokerRefID,
				OpenedAt:      now,
			}
			if err := m.store.InsertPosition(ctx, pos); err != nil {
				return fmt.Errorf("insert external %s: %w", item.BrokerRefID, err)
			}
			m.logger.Info("external position recorded",
				zap.String("position_id", pos.ID),
				zap.String("broker_ref_id", item.BrokerRefID),
				zap.Int("quantity", item.Quantity))
			report.Inserted++
		}

		for _, pos := range plan.closes {
			if err := m.store.ClosePosition(ctx, pos.ID, models.CloseReasonExternal, decimal.Zero, now); err != nil {
				return fmt.Errorf("close external %s: %w", pos.ID, err)
			}
			if err := m.propagateOutcome(ctx, pos, pos.RealizedPnl, models.CloseReasonExternal, now); err != nil {
				return fmt.Errorf("thesis outcome %s: %w", pos.ID, err)
			}
			m.logger.Info("position closed externally",
				zap.String("position_id", pos.ID),
				zap.String("contract", pos.Describe()),
				zap.String("broker_ref_id", pos.BrokerRefID))
			report.Closed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("reconciliation completed",
		zap.Int("broker_positions", report.BrokerPositions),
		zap.Int("matched", report.Matched),
		zap.Int("backfilled", report.Backfilled),
		zap.Int("inserted", report.Inserted),
		zap.Int("closed", report.Closed))
	return report, nil
}

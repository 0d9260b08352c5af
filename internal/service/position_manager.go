package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dushixiang/strike/internal/models"
	"github.com/dushixiang/strike/internal/rules"
	"github.com/dushixiang/strike/pkg/broker"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// allocationError 配额检查未通过，Error() 即审计原因
type allocationError struct {
	reason string
}

func (e *allocationError) Error() string {
	return e.reason
}

// TickReport 一次 tick 的执行摘要
type TickReport struct {
	Reconcile      *ReconcileReport `json:"reconcile,omitempty"`
	ReconcileError string           `json:"reconcile_error,omitempty"`
	Executed       int              `json:"executed"`
	ExecuteFailed  int              `json:"execute_failed"`
	Checked        int              `json:"checked"`
	Skipped        int              `json:"skipped"`
	Actions        []string         `json:"actions"`
	Errors         int              `json:"errors"`
	Duration       time.Duration    `json:"duration"`
}

// PositionManager 持仓管理，唯一持有券商会话的组件
// 每个 tick 严格按顺序：对账 → 执行已批准建议 → 重新定价并检查规则
type PositionManager struct {
	logger   *zap.Logger
	config   rules.ManagerConfig
	broker   broker.BrokerClient
	store    PositionStore
	notifier Notifier

	tickMu sync.Mutex // 同一时刻只允许一个 tick
	now    func() time.Time
}

func NewPositionManager(cfg rules.ManagerConfig, client broker.BrokerClient, store PositionStore, notifier Notifier, logger *zap.Logger) *PositionManager {
	return &PositionManager{
		logger:   logger,
		config:   cfg,
		broker:   client,
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

func (m *PositionManager) Config() rules.ManagerConfig {
	return m.config
}

// Connect 建立券商会话，预算耗尽属于致命错误
func (m *PositionManager) Connect(ctx context.Context) error {
	if err := m.broker.Connect(ctx); err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	m.logger.Info("broker connected")
	return nil
}

func (m *PositionManager) AccountSummary(ctx context.Context) (*broker.AccountSummary, error) {
	return m.broker.AccountSummary(ctx)
}

// Tick 执行一个完整周期
func (m *PositionManager) Tick(ctx context.Context) (*TickReport, error) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	start := time.Now()
	report := &TickReport{}

	m.logger.Info("[STEP 1/3] reconcile broker portfolio")
	reconcile, err := m.reconcile(ctx)
	if err != nil {
		// 本次跳过对账，继续按已知状态执行
		m.logger.Warn("reconciliation failed, skipped for this tick", zap.Error(err))
		report.ReconcileError = err.Error()
	} else {
		report.Reconcile = reconcile
	}

	m.logger.Info("[STEP 2/3] execute approved recommendations")
	approved, err := m.store.GetApprovedRecommendations(ctx)
	if err != nil {
		m.logger.Error("failed to load approved recommendations", zap.Error(err))
		report.Errors++
	}
	for i := range approved {
		if err := m.executeRecommendation(ctx, &approved[i]); err != nil {
			report.ExecuteFailed++
			continue
		}
		report.Executed++
	}

	m.logger.Info("[STEP 3/3] reprice open positions and check rules")
	positions, err := m.store.GetOpenPositions(ctx)
	if err != nil {
		return report, fmt.Errorf("load open positions: %w", err)
	}
	for i := range positions {
		pos := positions[i]
		checked, action, err := m.checkPosition(ctx, &pos)
		if err != nil {
			// 单个持仓的券商错误不影响其他持仓
			m.logger.Error("position check failed",
				zap.String("position_id", pos.ID),
				zap.String("contract", pos.Describe()),
				zap.Error(err))
			report.Errors++
			continue
		}
		if !checked {
			report.Skipped++
			continue
		}
		report.Checked++
		if action != "" {
			report.Actions = append(report.Actions, action)
		}
	}

	report.Duration = time.Since(start)
	m.logger.Info("tick completed",
		zap.Int("executed", report.Executed),
		zap.Int("execute_failed", report.ExecuteFailed),
		zap.Int("checked", report.Checked),
		zap.Int("skipped", report.Skipped),
		zap.Int("actions", len(report.Actions)),
		zap.Int("errors", report.Errors),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// ExecuteNow 立即执行一条已批准的建议（自动审批模式），与 tick 串行
func (m *PositionManager) ExecuteNow(ctx context.Context, recommendationID string) error {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	rec, err := m.store.GetRecommendation(ctx, recommendationID)
	if err != nil {
		return err
	}
	if rec.Status != models.RecommendationApproved {
		return fmt.Errorf("%w: recommendation %s is %s", ErrInvalidTransition, rec.ID, rec.Status)
	}
	return m.executeRecommendation(ctx, rec)
}

// ClosePosition 手动或论点失效时全部平仓
func (m *PositionManager) ClosePosition(ctx context.Context, positionID string, reason models.CloseReason) error {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	pos, err := m.store.GetPosition(ctx, positionID)
	if err != nil {
		return err
	}
	if pos.Status != models.PositionStatusOpen {
		return fmt.Errorf("%w: %s", ErrPositionNotOpen, positionID)
	}
	if pos.BrokerRefID == "" {
		return fmt.Errorf("position %s has no broker fill yet", positionID)
	}
	_, err = m.executeAction(ctx, pos, rules.StopAction{CloseAll: true, Reason: reason})
	return err
}

func recommendationContract(rec *models.TradeRecommendation) broker.Contract {
	return broker.Contract{Ticker: rec.Ticker, Right: string(rec.Right), Strike: rec.Strike, Expiry: rec.Expiry}
}

func positionContract(pos *models.OptionsPosition) broker.Contract {
	return broker.Contract{Ticker: pos.Ticker, Right: string(pos.Right), Strike: pos.Strike, Expiry: pos.Expiry}
}

// executeRecommendation approved → executing → filled | failed
func (m *PositionManager) executeRecommendation(ctx context.Context, rec *models.TradeRecommendation) error {
	logger := m.logger.With(zap.String("recommendation_id", rec.ID), zap.String("ticker", rec.Ticker))

	if err := m.store.UpdateRecommendationStatus(ctx, rec.ID, models.RecommendationExecuting, ""); err != nil {
		logger.Warn("recommendation no longer executable", zap.Error(err))
		return err
	}

	pos, reason, err := m.openPosition(ctx, rec)
	if err != nil {
		var allocErr *allocationError
		if errors.As(err, &allocErr) {
			logger.Warn("allocation check rejected recommendation", zap.String("reason", allocErr.reason))
		} else {
			logger.Error("recommendation execution failed", zap.Error(err))
		}
		if statusErr := m.store.UpdateRecommendationStatus(ctx, rec.ID, models.RecommendationFailed, err.Error()); statusErr != nil {
			logger.Error("failed to mark recommendation failed", zap.Error(statusErr))
		}
		m.notify(ctx, fmt.Sprintf("*Execution failed* %s %s: %s", rec.Ticker, recommendationContract(rec), err.Error()))
		return err
	}

	logger.Info("recommendation filled",
		zap.String("position_id", pos.ID),
		zap.Int("quantity", pos.Quantity),
		zap.Stringer("avg_fill_price", pos.AvgFillPrice),
		zap.Stringer("cost_basis", pos.CostBasis))
	m.notify(ctx, fmt.Sprintf("*Filled* %dx %s @ $%s (cost $%s)\n%s",
		pos.Quantity, pos.Describe(), pos.AvgFillPrice.StringFixed(2), pos.CostBasis.StringFixed(2), reason))
	return nil
}

// openPosition 实时配额检查、询价、限价买入并落库，返回持仓与审计原因
func (m *PositionManager) openPosition(ctx context.Context, rec *models.TradeRecommendation) (*models.OptionsPosition, string, error) {
	account, err := m.broker.AccountSummary(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("account summary: %w", err)
	}
	exposure, err := m.store.GetTotalOptionsExposure(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("options exposure: %w", err)
	}
	approved, allocReason := rules.CheckAllocation(rec.PositionSizeUSD, exposure, account.NetLiquidation, m.config)
	if !approved {
		return nil, "", &allocationError{reason: allocReason}
	}

	contract := recommendationContract(rec)
	quote, err := m.broker.GetOptionQuote(ctx, contract)
	if err != nil {
		return nil, "", fmt.Errorf("quote %s: %w", contract, err)
	}
	var limit decimal.Decimal
	if quote.Valid() {
		limit = quote.Mid
	} else {
		limit = rec.EntryMid()
		m.logger.Warn("no usable quote, falling back to entry midpoint",
			zap.String("contract", contract.String()),
			zap.Stringer("entry_mid", limit))
	}
	if !limit.IsPositive() {
		return nil, "", fmt.Errorf("zero or negative price for %s", contract)
	}
	limit = broker.RoundToTick(limit, broker.SideBuy)
	quantity := rules.ContractQuantity(rec.PositionSizeUSD, limit)

	fill, err := m.broker.PlaceOrder(ctx, broker.OrderRequest{
		Contract:   contract,
		Side:       broker.SideBuy,
		Quantity:   quantity,
		Type:       broker.OrderTypeLimit,
		LimitPrice: limit,
	})
	if err != nil {
		return nil, "", fmt.Errorf("place order: %w", err)
	}

	filledQty := fill.Quantity
	if filledQty <= 0 {
		filledQty = quantity
	}
	price := fill.AvgFillPrice
	if !price.IsPositive() {
		price = limit
	}

	recID := rec.ID
	pos := &models.OptionsPosition{
		RecommendationID: &recID,
		Ticker:           rec.Ticker,
		Right:            rec.Right,
		Strike:           rec.Strike,
		Expiry:           rec.Expiry,
		Quantity:         filledQty,
		AvgFillPrice:     price,
		CurrentPrice:     price,
		Status:           models.PositionStatusOpen,
		BrokerRefID:      fill.BrokerRefID,
		OpenedAt:         m.now(),
	}
	reason := fmt.Sprintf("%s; BUY %d @ %s LMT, order %s", allocReason, filledQty, price.StringFixed(2), fill.OrderID)
	if fill.Pending {
		// 对账时按合约回填券商引用
		pos.BrokerRefID = ""
		reason = fmt.Sprintf("%s; BUY %d @ %s LMT accepted, fill pending, order %s", allocReason, quantity, limit.StringFixed(2), fill.OrderID)
	}

	err = m.store.Transaction(ctx, func(ctx context.Context) error {
		if err := m.store.InsertPosition(ctx, pos); err != nil {
			return err
		}
		return m.store.UpdateRecommendationStatus(ctx, rec.ID, models.RecommendationFilled, reason)
	})
	if err != nil {
		return nil, "", fmt.Errorf("persist fill for order %s: %w", fill.OrderID, err)
	}
	return pos, reason, nil
}

// checkPosition 重新定价并检查规则，报价无效时跳过，返回是否完成检查与触发的动作
func (m *PositionManager) checkPosition(ctx context.Context, pos *models.OptionsPosition) (bool, string, error) {
	if pos.BrokerRefID == "" {
		m.logger.Debug("position awaiting fill, skipped", zap.String("position_id", pos.ID))
		return false, "", nil
	}

	quote, err := m.broker.GetOptionQuote(ctx, positionContract(pos))
	if err != nil {
		return false, "", fmt.Errorf("quote: %w", err)
	}
	if !quote.Valid() {
		m.logger.Warn("invalid quote, skipping price update and rules",
			zap.String("position_id", pos.ID),
			zap.String("contract", pos.Describe()))
		return false, "", nil
	}

	price := quote.Mid
	unrealized := models.PnlOf(price, pos.AvgFillPrice, pos.Quantity)
	if err := m.store.UpdatePositionPrice(ctx, pos.ID, price, unrealized); err != nil {
		return false, "", fmt.Errorf("update price: %w", err)
	}
	pos.CurrentPrice = price
	pos.UnrealizedPnl = unrealized

	action := rules.CheckStopRules(pos, m.config, m.now())
	if action == nil {
		action = rules.CheckProfitTargets(pos, m.config)
	}
	if action == nil {
		return true, "", nil
	}

	m.logger.Info("rule triggered",
		zap.String("position_id", pos.ID),
		zap.String("contract", pos.Describe()),
		zap.String("action", action.String()),
		zap.String("pnl_pct", pos.PnlPercent().StringFixed(1)))
	summary, err := m.executeAction(ctx, pos, *action)
	if err != nil {
		return true, "", err
	}
	return true, summary, nil
}

// executeAction 市价卖出并落库：全部平仓回填论点结果，部分平仓保留剩余数量
func (m *PositionManager) executeAction(ctx context.Context, pos *models.OptionsPosition, action rules.StopAction) (string, error) {
	qty := action.SellQuantity(pos.Quantity)
	fill, err := m.broker.PlaceOrder(ctx, broker.OrderRequest{
		Contract: positionContract(pos),
		Side:     broker.SideSell,
		Quantity: qty,
		Type:     broker.OrderTypeMarket,
	})
	if err != nil {
		return "", fmt.Errorf("%s: place sell: %w", action.Reason, err)
	}
	if fill.Pending {
		return "", fmt.Errorf("%s: sell order %s still pending", action.Reason, fill.OrderID)
	}

	realized := models.PnlOf(fill.AvgFillPrice, pos.AvgFillPrice, qty)
	closedAt := m.now()
	fullClose := qty >= pos.Quantity

	if fullClose {
		err = m.store.Transaction(ctx, func(ctx context.Context) error {
			if err := m.store.ClosePosition(ctx, pos.ID, action.Reason, realized, closedAt); err != nil {
				return err
			}
			return m.propagateOutcome(ctx, pos, pos.RealizedPnl.Add(realized), action.Reason, closedAt)
		})
	} else {
		err = m.store.PartialClosePosition(ctx, pos.ID, pos.Quantity-qty, realized)
	}
	if err != nil {
		return "", fmt.Errorf("persist %s for order %s: %w", action.Reason, fill.OrderID, err)
	}

	verb := "Closed"
	if !fullClose {
		verb = "Partial close"
	}
	summary := fmt.Sprintf("*%s* %dx %s @ $%s, %s (realized $%s)",
		verb, qty, pos.Describe(), fill.AvgFillPrice.StringFixed(2), action.Reason, realized.StringFixed(2))
	m.logger.Info("position action executed",
		zap.String("position_id", pos.ID),
		zap.String("reason", string(action.Reason)),
		zap.Int("quantity", qty),
		zap.Bool("full_close", fullClose),
		zap.Stringer("realized", realized))
	m.notify(ctx, summary)
	return summary, nil
}

// propagateOutcome 沿 持仓 → 建议 → 论点 回填结果，无法追溯时忽略
func (m *PositionManager) propagateOutcome(ctx context.Context, pos *models.OptionsPosition, realized decimal.Decimal, reason models.CloseReason, closedAt time.Time) error {
	if pos.IsExternal() {
		return nil
	}
	thesisID, err := m.store.GetThesisIDForPosition(ctx, pos.ID)
	if err != nil {
		return err
	}
	if thesisID == "" {
		return nil
	}
	return m.store.UpdateThesisOutcome(ctx, thesisID, pos.ID, realized, reason, closedAt)
}

func (m *PositionManager) notify(ctx context.Context, text string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Send(ctx, text); err != nil {
		m.logger.Warn("notification failed", zap.Error(err))
	}
}

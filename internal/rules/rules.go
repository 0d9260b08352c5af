// Package rules 止损、止盈与仓位配额规则，纯函数，不做任何 I/O。
package rules

import (
	"fmt"
	"time"

	"github.com/dushixiang/strike/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ManagerConfig 持仓管理参数，单次运行内不可变
type ManagerConfig struct {
	PollInterval      time.Duration
	HardStopPct       decimal.Decimal
	ProfitTarget1Pct  decimal.Decimal
	ProfitTarget2Pct  decimal.Decimal
	TimeStopDTE       int
	MaxAllocationPct  decimal.Decimal
	MaxPositionPct    decimal.Decimal
	OrderTimeout      time.Duration
	QuoteTimeout      time.Duration
	ConnectMaxRetries int
}

// DefaultManagerConfig 默认参数
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		PollInterval:      30 * time.Second,
		HardStopPct:       decimal.NewFromInt(50),
		ProfitTarget1Pct:  decimal.NewFromInt(50),
		ProfitTarget2Pct:  decimal.NewFromInt(100),
		TimeStopDTE:       7,
		MaxAllocationPct:  decimal.NewFromInt(10),
		MaxPositionPct:    decimal.NewFromInt(2),
		OrderTimeout:      60 * time.Second,
		QuoteTimeout:      10 * time.Second,
		ConnectMaxRetries: 5,
	}
}

// StopAction 规则输出，立即消费，不落库
type StopAction struct {
	CloseAll bool
	Quantity int
	Reason   models.CloseReason
}

// SellQuantity 实际需要卖出的张数
func (a StopAction) SellQuantity(held int) int {
	if a.CloseAll || a.Quantity > held {
		return held
	}
	return a.Quantity
}

func (a StopAction) String() string {
	if a.CloseAll {
		return fmt.Sprintf("close all (%s)", a.Reason)
	}
	return fmt.Sprintf("sell %d (%s)", a.Quantity, a.Reason)
}

// CheckHardStop 亏损比例达到 hard_stop_pct 时全部平仓
func CheckHardStop(pos *models.OptionsPosition, cfg ManagerConfig) *StopAction {
	if pos.CostBasis.IsZero() {
		return nil
	}
	lossPct := pos.PnlPercent().Neg()
	if lossPct.GreaterThanOrEqual(cfg.HardStopPct) {
		return &StopAction{CloseAll: true, Reason: models.CloseReasonHardStop}
	}
	return nil
}

// CheckTimeStop 临近到期且亏损时全部平仓，盈利仓位允许持有到期
func CheckTimeStop(pos *models.OptionsPosition, cfg ManagerConfig, asOf time.Time) *StopAction {
	if pos.DaysToExpiry(asOf) <= cfg.TimeStopDTE && pos.UnrealizedPnl.IsNegative() {
		return &StopAction{CloseAll: true, Reason: models.CloseReasonTimeStop}
	}
	return nil
}

// CheckStopRules 按优先级执行止损检查：硬止损先于时间止损
func CheckStopRules(pos *models.OptionsPosition, cfg ManagerConfig, asOf time.Time) *StopAction {
	if action := CheckHardStop(pos, cfg); action != nil {
		return action
	}
	return CheckTimeStop(pos, cfg, asOf)
}

// CheckProfitTargets 机械止盈阶梯，每次最多返回一个动作
//
//	目标2：全部平仓，优先检查
//	目标1：数量大于1时卖出一半（向下取整）
func CheckProfitTargets(pos *models.OptionsPosition, cfg ManagerConfig) *StopAction {
	if pos.CostBasis.IsZero() {
		return nil
	}
	pnlPct := pos.PnlPercent()

	if pnlPct.GreaterThanOrEqual(cfg.ProfitTarget2Pct) {
		return &StopAction{CloseAll: true, Reason: models.CloseReasonProfitTarget}
	}

	if pnlPct.GreaterThanOrEqual(cfg.ProfitTarget1Pct) && pos.Quantity > 1 {
		if half := pos.Quantity / 2; half > 0 {
			return &StopAction{Quantity: half, Reason: models.CloseReasonProfitTarget}
		}
	}
	return nil
}

// CheckAllocation 判断新开仓位是否超出期权总配额，返回的说明文字会作为审计记录保存
func CheckAllocation(newUSD, currentUSD, equity decimal.Decimal, cfg ManagerConfig) (bool, string) {
	if !equity.IsPositive() {
		return false, "Rejected: account equity is zero or negative"
	}

	maxAllowed := equity.Mul(cfg.MaxAllocationPct).Div(hundred)
	afterTrade := currentUSD.Add(newUSD)

	if afterTrade.GreaterThan(maxAllowed) {
		currentPct := currentUSD.Div(equity).Mul(hundred)
		wouldBePct := afterTrade.Div(equity).Mul(hundred)
		return false, fmt.Sprintf("Rejected: would be %s%% (current %s%%, max %s%%)",
			wouldBePct.StringFixed(1), currentPct.StringFixed(1), cfg.MaxAllocationPct.String())
	}

	remaining := maxAllowed.Sub(afterTrade)
	utilization := decimal.Zero
	if maxAllowed.IsPositive() {
		utilization = afterTrade.Div(maxAllowed).Mul(hundred)
	}
	return true, fmt.Sprintf("Approved: %s%% utilized, $%s remaining capacity",
		utilization.StringFixed(1), remaining.StringFixed(0))
}

// ContractQuantity 根据目标金额与限价计算张数，至少 1 张
func ContractQuantity(positionUSD, limitPrice decimal.Decimal) int {
	perContract := limitPrice.Mul(models.ContractMultiplier)
	if !perContract.IsPositive() {
		return 1
	}
	qty := positionUSD.Div(perContract).Floor().IntPart()
	if qty < 1 {
		return 1
	}
	return int(qty)
}

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OptionRight 期权方向
type OptionRight string

const (
	OptionRightCall OptionRight = "call"
	OptionRightPut  OptionRight = "put"
)

func (r OptionRight) String() string {
	return string(r)
}

// Letter 返回 OCC 符号中使用的单字母方向
func (r OptionRight) Letter() string {
	if r == OptionRightPut {
		return "P"
	}
	return "C"
}

// PositionStatus 持仓状态
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// CloseReason 平仓原因
type CloseReason string

const (
	CloseReasonHardStop           CloseReason = "hard_stop"
	CloseReasonProfitTarget       CloseReason = "profit_target"
	CloseReasonTimeStop           CloseReason = "time_stop"
	CloseReasonAllocationExceeded CloseReason = "allocation_exceeded"
	CloseReasonManual             CloseReason = "manual"
	CloseReasonThesisInvalid      CloseReason = "thesis_invalid"
	CloseReasonExternal           CloseReason = "external" // 券商侧已不存在，对账关闭
)

func (r CloseReason) String() string {
	return string(r)
}

// ContractMultiplier 美股期权每张合约对应100股
var ContractMultiplier = decimal.NewFromInt(100)

// OptionsPosition 期权持仓
type OptionsPosition struct {
	ID               string          `gorm:"primaryKey;type:varchar(26)" json:"id"`
	RecommendationID *string         `gorm:"type:varchar(26);index" json:"recommendation_id"` // 为空表示外部持仓
	Ticker           string          `gorm:"type:varchar(16);not null;index" json:"ticker"`
	Right            OptionRight     `gorm:"type:varchar(4);not null" json:"right"`
	Strike           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"strike"`
	Expiry           time.Time       `gorm:"type:date;not null" json:"expiry"`
	Quantity         int             `gorm:"not null" json:"quantity"`
	AvgFillPrice     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"avg_fill_price"`
	CurrentPrice     decimal.Decimal `gorm:"type:decimal(20,4)" json:"current_price"`
	CostBasis        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"cost_basis"`
	UnrealizedPnl    decimal.Decimal `gorm:"type:decimal(20,4)" json:"unrealized_pnl"`
	RealizedPnl      decimal.Decimal `gorm:"type:decimal(20,4)" json:"realized_pnl"`
	Status           PositionStatus  `gorm:"type:varchar(10);not null;index" json:"status"`
	BrokerRefID      string          `gorm:"type:varchar(64);index" json:"broker_ref_id"`
	OpenedAt         time.Time       `gorm:"not null" json:"opened_at"`
	ClosedAt         *time.Time      `json:"closed_at"`
	CloseReason      CloseReason     `gorm:"type:varchar(24)" json:"close_reason"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (OptionsPosition) TableName() string {
	return "options_positions"
}

// CostBasisOf 计算成本：成交均价 × 数量 × 100
func CostBasisOf(avgFillPrice decimal.Decimal, quantity int) decimal.Decimal {
	return avgFillPrice.Mul(decimal.NewFromInt(int64(quantity))).Mul(ContractMultiplier)
}

// PnlOf 计算按合约乘数放大的盈亏
func PnlOf(price, avgFillPrice decimal.Decimal, quantity int) decimal.Decimal {
	return price.Sub(avgFillPrice).Mul(decimal.NewFromInt(int64(quantity))).Mul(ContractMultiplier)
}

// PnlPercent 未实现盈亏占成本的百分比
func (p *OptionsPosition) PnlPercent() decimal.Decimal {
	if p.CostBasis.IsZero() {
		return decimal.Zero
	}
	return p.UnrealizedPnl.Div(p.CostBasis).Mul(decimal.NewFromInt(100))
}

// DaysToExpiry 距到期的自然日，按日期计算
func (p *OptionsPosition) DaysToExpiry(asOf time.Time) int {
	today := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	expiry := time.Date(p.Expiry.Year(), p.Expiry.Month(), p.Expiry.Day(), 0, 0, 0, 0, time.UTC)
	return int(expiry.Sub(today).Hours() / 24)
}

// ContractKey 用于对账的合约键 (ticker, right, strike, expiry)
func (p *OptionsPosition) ContractKey() string {
	return ContractKey(p.Ticker, p.Right, p.Strike, p.Expiry)
}

// IsExternal 是否为系统外开仓
func (p *OptionsPosition) IsExternal() bool {
	return p.RecommendationID == nil
}

// Describe 简短描述，如 NVDA 140C 2025-01-17
func (p *OptionsPosition) Describe() string {
	return fmt.Sprintf("%s %s%s %s", p.Ticker, p.Strike.String(), p.Right.Letter(), p.Expiry.Format(time.DateOnly))
}

// ContractKey 合约唯一键
func ContractKey(ticker string, right OptionRight, strike decimal.Decimal, expiry time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		strings.ToUpper(ticker), right, strike.StringFixed(3), expiry.Format(time.DateOnly))
}

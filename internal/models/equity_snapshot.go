package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EquitySnapshot 账户权益快照，每个盘中 tick 后记录一次
type EquitySnapshot struct {
	ID                 string          `gorm:"primaryKey;type:varchar(26)" json:"id"`
	NetLiquidation     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"net_liquidation"` // 账户净值
	BuyingPower        decimal.Decimal `gorm:"type:decimal(20,4)" json:"buying_power"`
	TotalUnrealizedPnl decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_unrealized_pnl"`
	TotalRealizedPnl   decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_realized_pnl"`
	OptionsExposure    decimal.Decimal `gorm:"type:decimal(20,4)" json:"options_exposure"` // 当前期权敞口（成本）
	OpenPositions      int             `json:"open_positions"`
	RecordedAt         time.Time       `gorm:"not null;index" json:"recorded_at"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (EquitySnapshot) TableName() string {
	return "equity_snapshots"
}

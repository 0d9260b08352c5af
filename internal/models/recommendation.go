package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RecommendationStatus 交易建议状态
type RecommendationStatus string

const (
	RecommendationPendingReview RecommendationStatus = "pending_review"
	RecommendationApproved      RecommendationStatus = "approved"
	RecommendationRejected      RecommendationStatus = "rejected"
	RecommendationExecuting     RecommendationStatus = "executing"
	RecommendationFilled        RecommendationStatus = "filled"
	RecommendationFailed        RecommendationStatus = "failed"
)

func (s RecommendationStatus) String() string {
	return string(s)
}

// recommendationTransitions 状态机：只能前进，不可回退
var recommendationTransitions = map[RecommendationStatus][]RecommendationStatus{
	RecommendationPendingReview: {RecommendationApproved, RecommendationRejected},
	RecommendationApproved:      {RecommendationExecuting},
	RecommendationExecuting:     {RecommendationFilled, RecommendationFailed},
}

// PreviousStatuses 返回可以迁移到 to 的所有前置状态
func PreviousStatuses(to RecommendationStatus) []RecommendationStatus {
	var from []RecommendationStatus
	for src, targets := range recommendationTransitions {
		for _, t := range targets {
			if t == to {
				from = append(from, src)
			}
		}
	}
	return from
}

// CanTransition 判断状态迁移是否合法
func (s RecommendationStatus) CanTransition(to RecommendationStatus) bool {
	for _, t := range recommendationTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// IsTerminal 是否为终态
func (s RecommendationStatus) IsTerminal() bool {
	return len(recommendationTransitions[s]) == 0
}

// TradeRecommendation 交易建议
type TradeRecommendation struct {
	ID               string                      `gorm:"primaryKey;type:varchar(26)" json:"id"`
	ThesisID         string                      `gorm:"type:varchar(26);index" json:"thesis_id"`
	RunID            string                      `gorm:"type:varchar(26);index" json:"run_id"`
	Ticker           string                      `gorm:"type:varchar(16);not null;index" json:"ticker"`
	Right            OptionRight                 `gorm:"type:varchar(4);not null" json:"right"`
	Strike           decimal.Decimal             `gorm:"type:decimal(20,4);not null" json:"strike"`
	Expiry           time.Time                   `gorm:"type:date;not null" json:"expiry"`
	EntryPriceLow    decimal.Decimal             `gorm:"type:decimal(20,4)" json:"entry_price_low"`
	EntryPriceHigh   decimal.Decimal             `gorm:"type:decimal(20,4)" json:"entry_price_high"`
	PositionSizePct  decimal.Decimal             `gorm:"type:decimal(10,4)" json:"position_size_pct"`
	PositionSizeUSD  decimal.Decimal             `gorm:"type:decimal(20,4)" json:"position_size_usd"`
	ExitTargets      datatypes.JSONSlice[string] `gorm:"type:json" json:"exit_targets"`
	StopLoss         string                      `json:"stop_loss"`
	MaxHoldDays      int                         `json:"max_hold_days"`
	RiskVerification datatypes.JSON              `json:"risk_verification"`
	Status           RecommendationStatus        `gorm:"type:varchar(20);not null;index" json:"status"`
	StatusReason     string                      `json:"status_reason"` // 审批/执行/失败原因，作为审计记录保存
	ApprovedAt       *time.Time                  `json:"approved_at"`
	CreatedAt        time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (TradeRecommendation) TableName() string {
	return "trade_recommendations"
}

// EntryMid 建议入场价区间的中点
func (r *TradeRecommendation) EntryMid() decimal.Decimal {
	return r.EntryPriceLow.Add(r.EntryPriceHigh).Div(decimal.NewFromInt(2))
}

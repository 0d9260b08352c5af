package schema

import "github.com/shopspring/decimal"

// RiskVerification 风控 agent 输出
type RiskVerification struct {
	Approved            bool            `json:"approved"`
	PositionSizePct     decimal.Decimal `json:"position_size_pct"` // 可能被调低
	TotalExposurePct    decimal.Decimal `json:"total_exposure_pct"`
	CorrelatedPositions int             `json:"correlated_positions" validate:"gte=0"`
	Notes               []string        `json:"notes"`
	RejectionReason     string          `json:"rejection_reason,omitempty"`
}

// PositionReview 持仓复盘输出
type PositionReview struct {
	PositionID        string  `json:"position_id"`
	Ticker            string  `json:"ticker" validate:"required"`
	ThesisStillValid  bool    `json:"thesis_still_valid"`
	PnlPct            float64 `json:"pnl_pct"`
	RecommendedAction string  `json:"recommended_action" validate:"required,oneof=hold add reduce close roll"`
	Reasoning         string  `json:"reasoning" validate:"required"`
	Urgency           string  `json:"urgency,omitempty" validate:"omitempty,oneof=low medium high"`
}

// IsUrgent 建议平仓或减仓
func (r *PositionReview) IsUrgent() bool {
	return r.RecommendedAction == "close" || r.RecommendedAction == "reduce"
}

package schema

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ThesisScore 论点评分维度
type ThesisScore struct {
	InformationEdge    int     `json:"information_edge" validate:"gte=1,lte=10"`
	VolatilityPricing  int     `json:"volatility_pricing" validate:"gte=1,lte=10"`
	TechnicalAlignment int     `json:"technical_alignment" validate:"gte=1,lte=10"`
	CatalystClarity    int     `json:"catalyst_clarity" validate:"gte=1,lte=10"`
	RiskRewardRatio    float64 `json:"risk_reward_ratio" validate:"gte=0"`
	Overall            float64 `json:"overall"`
}

// ComputeOverall 加权总分：信息优势 30%，波动率 20%，技术面 20%，催化剂 30%
func (s *ThesisScore) ComputeOverall() float64 {
	overall := float64(s.InformationEdge)*0.30 +
		float64(s.VolatilityPricing)*0.20 +
		float64(s.TechnicalAlignment)*0.20 +
		float64(s.CatalystClarity)*0.30
	s.Overall = math.Round(overall*100) / 100
	return s.Overall
}

// ContractSpec 推荐合约
type ContractSpec struct {
	Ticker         string          `json:"ticker" validate:"required"`
	Right          string          `json:"right" validate:"required,oneof=call put"`
	Strike         decimal.Decimal `json:"strike"`
	Expiry         string          `json:"expiry" validate:"required,datetime=2006-01-02"`
	Strategy       string          `json:"strategy" validate:"omitempty,oneof=naked debit_spread"`
	EntryPriceLow  decimal.Decimal `json:"entry_price_low"`
	EntryPriceHigh decimal.Decimal `json:"entry_price_high"`
}

// ExpiryDate 到期日
func (c *ContractSpec) ExpiryDate() (time.Time, error) {
	return time.Parse(time.DateOnly, c.Expiry)
}

// Check decimal 字段无法用标签校验
func (c *ContractSpec) Check() error {
	if !c.Strike.IsPositive() {
		return fmt.Errorf("strike must be positive, got %s", c.Strike)
	}
	if c.EntryPriceLow.IsNegative() || c.EntryPriceHigh.LessThan(c.EntryPriceLow) {
		return fmt.Errorf("invalid entry range %s-%s", c.EntryPriceLow, c.EntryPriceHigh)
	}
	return nil
}

func (c *ContractSpec) String() string {
	side := "C"
	if c.Right == "put" {
		side = "P"
	}
	base := fmt.Sprintf("%s %s%s %s $%s-$%s", c.Ticker, c.Strike.String(), side,
		c.Expiry, c.EntryPriceLow.String(), c.EntryPriceHigh.String())
	if c.Strategy != "" && c.Strategy != "naked" {
		base += " (" + strings.ReplaceAll(c.Strategy, "_", " ") + ")"
	}
	return base
}

// Thesis 分析师输出的论点
type Thesis struct {
	Ticker              string        `json:"ticker" validate:"required"`
	Direction           string        `json:"direction" validate:"required,oneof=bullish bearish"`
	ThesisText          string        `json:"thesis_text" validate:"required"`
	Catalyst            Catalyst      `json:"catalyst"`
	Scores              ThesisScore   `json:"scores"`
	SupportingEvidence  []string      `json:"supporting_evidence"`
	Risks               []string      `json:"risks"`
	RecommendedContract *ContractSpec `json:"recommended_contract,omitempty"`
}

// Normalize 模型给出的 overall 不可信，总是重新计算
func (t *Thesis) Normalize() error {
	t.Scores.ComputeOverall()
	t.Ticker = strings.ToUpper(t.Ticker)
	if t.RecommendedContract != nil {
		t.RecommendedContract.Ticker = strings.ToUpper(t.RecommendedContract.Ticker)
		return t.RecommendedContract.Check()
	}
	return nil
}

// Package schema 各 agent 的输入输出结构，使用 validator 标签做结构校验
package schema

import "time"

// ResearchRequest 研究流程输入
type ResearchRequest struct {
	Ticker string `json:"ticker" validate:"required,max=16"`
	Mode   string `json:"mode" validate:"omitempty,oneof=premarket midday postmarket weekly_deep_dive"`
}

// TechnicalLevels 技术面关键位
type TechnicalLevels struct {
	Price       float64 `json:"price" validate:"gte=0"`
	MA20        float64 `json:"ma_20"`
	MA50        float64 `json:"ma_50"`
	MA200       float64 `json:"ma_200"`
	RSI14       float64 `json:"rsi_14" validate:"gte=0,lte=100"`
	Support     float64 `json:"support"`
	Resistance  float64 `json:"resistance"`
	AboveAllMAs bool    `json:"above_all_mas"`
	Trend       string  `json:"trend" validate:"omitempty,oneof=bullish bearish neutral"`
}

// OptionsFlowSummary 异常期权成交
type OptionsFlowSummary struct {
	UnusualActivity bool     `json:"unusual_activity"`
	NotableTrades   []string `json:"notable_trades"`
	PutCallRatio    float64  `json:"put_call_ratio" validate:"gte=0"`
	TotalPremiumUSD float64  `json:"total_premium_usd" validate:"gte=0"`
}

// Catalyst 催化剂事件
type Catalyst struct {
	Type        string `json:"type" validate:"required,oneof=earnings fda fed macro other"`
	Date        string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DaysUntil   *int   `json:"days_until,omitempty"`
	Description string `json:"description" validate:"required"`
}

// NewsItem 新闻条目
type NewsItem struct {
	Headline       string  `json:"headline" validate:"required"`
	Source         string  `json:"source"`
	RelevanceScore float64 `json:"relevance_score" validate:"gte=0,lte=1"`
}

// ResearchSummary 研究员输出
type ResearchSummary struct {
	Ticker           string             `json:"ticker" validate:"required"`
	Timestamp        time.Time          `json:"timestamp"`
	NewsSummary      string             `json:"news_summary"`
	NewsItems        []NewsItem         `json:"news_items" validate:"dive"`
	Technicals       TechnicalLevels    `json:"technicals"`
	OptionsFlow      OptionsFlowSummary `json:"options_flow"`
	Catalyst         *Catalyst          `json:"catalyst,omitempty"`
	MacroContext     string             `json:"macro_context"`
	IVRank           float64            `json:"iv_rank" validate:"gte=0,lte=100"`
	OpportunityScore int                `json:"opportunity_score" validate:"gte=1,lte=10"`
	KeyObservations  []string           `json:"key_observations"`
}

// Sentiment 由技术面趋势推断的情绪
func (r *ResearchSummary) Sentiment() string {
	if r.Technicals.Trend == "" {
		return "neutral"
	}
	return r.Technicals.Trend
}

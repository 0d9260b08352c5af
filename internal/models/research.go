package models

import (
	"time"

	"gorm.io/datatypes"
)

// ResearchSummary 研究员 agent 的输出存档
type ResearchSummary struct {
	ID               string                      `gorm:"primaryKey;type:varchar(26)" json:"id"`
	RunID            string                      `gorm:"type:varchar(26);index" json:"run_id"`
	Ticker           string                      `gorm:"type:varchar(16);not null;index" json:"ticker"`
	Summary          string                      `json:"summary"`
	OpportunityScore int                         `json:"opportunity_score"`
	Sentiment        string                      `gorm:"type:varchar(16)" json:"sentiment"`
	KeyPoints        datatypes.JSONSlice[string] `gorm:"type:json" json:"key_points"`
	Raw              datatypes.JSON              `json:"raw"`
	CreatedAt        time.Time                   `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (ResearchSummary) TableName() string {
	return "research_summaries"
}

// PositionReview 持仓复盘结果
type PositionReview struct {
	ID                string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	RunID             string    `gorm:"type:varchar(26);index" json:"run_id"`
	PositionID        string    `gorm:"type:varchar(26);not null;index" json:"position_id"`
	Ticker            string    `gorm:"type:varchar(16);not null" json:"ticker"`
	ThesisStillValid  bool      `json:"thesis_still_valid"`
	RecommendedAction string    `gorm:"type:varchar(16)" json:"recommended_action"`
	Reasoning         string    `json:"reasoning"`
	Urgency           string    `gorm:"type:varchar(16)" json:"urgency"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (PositionReview) TableName() string {
	return "position_reviews"
}

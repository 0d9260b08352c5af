package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Thesis 交易论点，平仓后回填结果用于复盘
type Thesis struct {
	ID                 string                      `gorm:"primaryKey;type:varchar(26)" json:"id"`
	RunID              string                      `gorm:"type:varchar(26);index" json:"run_id"`
	Ticker             string                      `gorm:"type:varchar(16);not null;index" json:"ticker"`
	Direction          string                      `gorm:"type:varchar(10)" json:"direction"`
	ThesisText         string                      `json:"thesis_text"`
	Catalyst           datatypes.JSON              `json:"catalyst"`
	Scores             datatypes.JSON              `json:"scores"`
	OverallScore       float64                     `json:"overall_score"`
	SupportingEvidence datatypes.JSONSlice[string] `gorm:"type:json" json:"supporting_evidence"`
	Risks              datatypes.JSONSlice[string] `gorm:"type:json" json:"risks"`
	OutcomeRealizedPnl *decimal.Decimal            `gorm:"type:decimal(20,4)" json:"outcome_realized_pnl"`
	OutcomeCloseReason string                      `json:"outcome_close_reason"`
	OutcomeClosedAt    *time.Time                  `json:"outcome_closed_at"`
	OutcomePositionID  string                      `gorm:"type:varchar(26)" json:"outcome_position_id"`
	CreatedAt          time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Thesis) TableName() string {
	return "theses"
}

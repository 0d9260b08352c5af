package service

import (
	"testing"

	"github.com/dushixiang/strike/internal/schema"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWorkflow(t *testing.T) {
	wf, err := GetWorkflow("trade-thesis")
	require.NoError(t, err)
	require.Len(t, wf.Steps, 3)
	assert.Equal(t, []string{"researcher", "analyst", "risk_checker"},
		[]string{wf.Steps[0].Agent, wf.Steps[1].Agent, wf.Steps[2].Agent})
	assert.Equal(t, OnFailEscalate, wf.Steps[2].OnFail)

	_, err = GetWorkflow("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: position-review, trade-thesis")
}

func TestTradeThesisGates(t *testing.T) {
	wf := TradeThesisWorkflow()
	research, evaluate, verify := wf.Steps[0].Gate, wf.Steps[1].Gate, wf.Steps[2].Gate

	assert.True(t, research(&schema.ResearchSummary{OpportunityScore: 3}))
	assert.False(t, research(&schema.ResearchSummary{OpportunityScore: 2}))
	assert.False(t, research(&schema.Thesis{}), "wrong type never passes")

	assert.True(t, evaluate(&schema.Thesis{Scores: schema.ThesisScore{Overall: 7.0}}))
	assert.False(t, evaluate(&schema.Thesis{Scores: schema.ThesisScore{Overall: 6.99}}))

	assert.True(t, verify(&schema.RiskVerification{Approved: true, PositionSizePct: decimal.RequireFromString("2.0")}))
	assert.False(t, verify(&schema.RiskVerification{Approved: true, PositionSizePct: decimal.RequireFromString("2.5")}))
	assert.False(t, verify(&schema.RiskVerification{Approved: false, PositionSizePct: decimal.NewFromInt(1)}))
}

func TestPositionReviewGate(t *testing.T) {
	gate := PositionReviewWorkflow().Steps[1].Gate
	assert.True(t, gate(&schema.PositionReview{RecommendedAction: "roll"}))
	assert.False(t, gate(&schema.PositionReview{RecommendedAction: "panic"}))
}

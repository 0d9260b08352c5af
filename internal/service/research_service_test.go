package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dushixiang/strike/internal/config"
	"github.com/dushixiang/strike/internal/models"
	"github.com/dushixiang/strike/internal/schema"
	"github.com/dushixiang/strike/pkg/broker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type researchFixture struct {
	*managerFixture
	engine   *WorkflowEngine
	research *ResearchService
	reviewer *funcAgent
}

func newResearchFixture(t *testing.T, sched config.SchedulerConf, review *schema.PositionReview) *researchFixture {
	f := newManagerFixture(t)
	engine := NewWorkflowEngine(f.store, f.notifier, testLogger())

	engine.RegisterAgent(AgentResearcher, &funcAgent{fn: func(call AgentCall, n int) (any, error) {
		req := call.Input.(*schema.ResearchRequest)
		return &schema.ResearchSummary{
			Ticker:           req.Ticker,
			NewsSummary:      "guidance raised",
			OpportunityScore: 6,
			Technicals:       schema.TechnicalLevels{Trend: "bullish"},
			KeyObservations:  []string{"breakout"},
		}, nil
	}})
	engine.RegisterAgent(AgentAnalyst, &funcAgent{fn: func(call AgentCall, n int) (any, error) {
		return &schema.Thesis{
			Ticker:     "NVDA",
			Direction:  "bullish",
			ThesisText: "earnings beat",
			Catalyst:   schema.Catalyst{Type: "earnings", Description: "Q4"},
			Scores:     schema.ThesisScore{InformationEdge: 8, VolatilityPricing: 8, TechnicalAlignment: 8, CatalystClarity: 8, Overall: 8},
			RecommendedContract: &schema.ContractSpec{
				Ticker:         "NVDA",
				Right:          "call",
				Strike:         decimal.NewFromInt(100),
				Expiry:         f.expiryIn(30).Format(time.DateOnly),
				EntryPriceLow:  decimal.RequireFromString("2.40"),
				EntryPriceHigh: decimal.RequireFromString("2.60"),
			},
		}, nil
	}})
	engine.RegisterAgent(AgentRiskChecker, &funcAgent{fn: func(call AgentCall, n int) (any, error) {
		return &schema.RiskVerification{Approved: true, PositionSizePct: decimal.RequireFromString("1.5")}, nil
	}})
	reviewer := &funcAgent{fn: func(call AgentCall, n int) (any, error) {
		if review == nil {
			return nil, errors.New("no review scripted")
		}
		return review, nil
	}}
	engine.RegisterAgent(AgentReviewer, reviewer)

	recs := NewRecommendationService(f.store, testLogger())
	conf := &config.Config{Scheduler: sched}
	research := NewResearchService(f.db, conf, engine, f.store, f.manager, recs, f.notifier, testLogger())
	return &researchFixture{managerFixture: f, engine: engine, research: research, reviewer: reviewer}
}

func TestResearchService_ThesisCreatesPendingRecommendation(t *testing.T) {
	f := newResearchFixture(t, config.SchedulerConf{}, nil)

	outcome, err := f.research.ResearchTicker(f.ctx, "nvda", "premarket")
	require.NoError(t, err)
	assert.Equal(t, WorkflowTradeThesis, outcome.Workflow)
	require.NotEmpty(t, outcome.RecommendationID)

	rec := f.recommendation(outcome.RecommendationID)
	assert.Equal(t, models.RecommendationPendingReview, rec.Status)
	assert.Equal(t, "3000.00", rec.PositionSizeUSD.StringFixed(2))
	assert.Equal(t, "1.50", rec.PositionSizePct.StringFixed(2))
	assert.Equal(t, []string{"+50% sell half", "+100% close"}, []string(rec.ExitTargets))
	assert.Equal(t, 30, rec.MaxHoldDays)

	thesis, err := f.store.ThesisRepo.FindById(f.ctx, rec.ThesisID)
	require.NoError(t, err)
	assert.Equal(t, "NVDA", thesis.Ticker)
	assert.Equal(t, 8.0, thesis.OverallScore)

	summaries, err := f.research.summaryRepo.FindAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "bullish", summaries[0].Sentiment)

	require.Len(t, f.notifier.recs, 1)
	assert.Equal(t, rec.ID, f.notifier.recs[0].ID)
	assert.Empty(t, f.broker.orders)
}

func TestResearchService_AutoApproveExecutes(t *testing.T) {
	f := newResearchFixture(t, config.SchedulerConf{AutoApprove: true}, nil)
	f.setMark(f.contract("NVDA", 30), "2.50")

	outcome, err := f.research.ResearchTicker(f.ctx, "NVDA", "premarket")
	require.NoError(t, err)

	rec := f.recommendation(outcome.RecommendationID)
	assert.Equal(t, models.RecommendationFilled, rec.Status)

	open, err := f.store.GetOpenPositions(f.ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 12, open[0].Quantity)
}

func TestResearchService_ReviewClosesInvalidThesis(t *testing.T) {
	review := &schema.PositionReview{
		Ticker:            "NVDA",
		ThesisStillValid:  false,
		RecommendedAction: "close",
		Reasoning:         "guidance cut",
		Urgency:           "high",
	}
	f := newResearchFixture(t, config.SchedulerConf{AutoCloseInvalid: true}, review)
	_, recID := f.addThesisChain("NVDA")
	pos := f.openPosition(f.contract("NVDA", 30), 2, "2.00", &recID)

	outcome, err := f.research.ResearchTicker(f.ctx, "NVDA", "midday")
	require.NoError(t, err)
	assert.Equal(t, WorkflowPositionReview, outcome.Workflow)
	assert.Equal(t, 1, outcome.Reviews)

	require.Len(t, f.reviewer.calls, 1)
	assert.Equal(t, pos.ID, f.reviewer.calls[0].Extra["position_id"])

	closed := f.position(pos.ID)
	assert.Equal(t, models.PositionStatusClosed, closed.Status)
	assert.Equal(t, models.CloseReasonThesisInvalid, closed.CloseReason)

	urgent := false
	for _, msg := range f.notifier.sent {
		if strings.HasPrefix(msg, "URGENT ") {
			urgent = true
		}
	}
	assert.True(t, urgent)

	sells := f.sells()
	require.Len(t, sells, 1)
	assert.Equal(t, broker.OrderTypeMarket, sells[0].Type)
}

func TestResearchService_ReviewWithoutAutoCloseKeepsPosition(t *testing.T) {
	review := &schema.PositionReview{Ticker: "NVDA", ThesisStillValid: true, RecommendedAction: "hold", Reasoning: "on track"}
	f := newResearchFixture(t, config.SchedulerConf{}, review)
	pos := f.openPosition(f.contract("NVDA", 30), 1, "2.00", nil)

	_, err := f.research.ResearchTicker(f.ctx, "NVDA", "midday")
	require.NoError(t, err)

	assert.Equal(t, models.PositionStatusOpen, f.position(pos.ID).Status)
	reviews, err := f.research.reviewRepo.FindRecentByPosition(f.ctx, pos.ID, 5)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "hold", reviews[0].RecommendedAction)
}

func TestResearchService_SeedWatchlistOnce(t *testing.T) {
	f := newResearchFixture(t, config.SchedulerConf{Watchlist: []string{"nvda", " aapl "}}, nil)

	require.NoError(t, f.research.SeedWatchlist(f.ctx))
	require.NoError(t, f.research.SeedWatchlist(f.ctx))

	items, err := f.research.Watchlist(f.ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "AAPL", items[0].Ticker)
	assert.Equal(t, "NVDA", items[1].Ticker)
}

func TestResearchService_RunWorkflow(t *testing.T) {
	f := newResearchFixture(t, config.SchedulerConf{}, nil)

	_, err := f.research.RunWorkflow(f.ctx, "nope", "NVDA", "")
	assert.ErrorContains(t, err, "unknown workflow")

	_, err = f.research.RunWorkflow(f.ctx, WorkflowPositionReview, "NVDA", "")
	assert.ErrorIs(t, err, ErrNoOpenPositions)

	outcome, err := f.research.RunWorkflow(f.ctx, WorkflowTradeThesis, "nvda", "")
	require.NoError(t, err)
	assert.NotEmpty(t, outcome.RecommendationID)
}

package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dushixiang/strike/internal/schema"
	"github.com/shopspring/decimal"
)

const (
	WorkflowTradeThesis    = "trade-thesis"
	WorkflowPositionReview = "position-review"

	AgentResearcher  = "researcher"
	AgentAnalyst     = "analyst"
	AgentRiskChecker = "risk_checker"
	AgentReviewer    = "reviewer"
)

var ErrUnknownWorkflow = errors.New("unknown workflow")

var maxVerifiedPositionPct = decimal.NewFromInt(2)

var validReviewActions = map[string]bool{
	"hold": true, "add": true, "reduce": true, "close": true, "roll": true,
}

// TradeThesisWorkflow 研究 → 论点评分 → 风控校验
func TradeThesisWorkflow() *Workflow {
	return &Workflow{
		ID:   WorkflowTradeThesis,
		Name: "Options Trade Thesis",
		Steps: []Step{
			{
				ID:         "research",
				Agent:      AgentResearcher,
				Output:     SchemaOf[schema.ResearchSummary]("ResearchSummary"),
				Gate:       Gate(func(r *schema.ResearchSummary) bool { return r.OpportunityScore >= 3 }),
				MaxRetries: 1,
				OnFail:     OnFailAbort, // 机会不足，直接跳过
			},
			{
				ID:         "evaluate",
				Agent:      AgentAnalyst,
				Output:     SchemaOf[schema.Thesis]("Thesis"),
				Gate:       Gate(func(t *schema.Thesis) bool { return t.Scores.Overall >= 7.0 }),
				MaxRetries: 1,
				OnFail:     OnFailAbort,
			},
			{
				ID:     "verify",
				Agent:  AgentRiskChecker,
				Output: SchemaOf[schema.RiskVerification]("RiskVerification"),
				Gate: Gate(func(r *schema.RiskVerification) bool {
					return r.Approved && r.PositionSizePct.LessThanOrEqual(maxVerifiedPositionPct)
				}),
				MaxRetries: 1,
				OnFail:     OnFailEscalate, // 需要人工介入
			},
		},
	}
}

// PositionReviewWorkflow 对已有持仓做研究与复盘，持仓详情通过 WithAgentContext 传入
func PositionReviewWorkflow() *Workflow {
	return &Workflow{
		ID:   WorkflowPositionReview,
		Name: "Position Review",
		Steps: []Step{
			{
				ID:         "research",
				Agent:      AgentResearcher,
				Output:     SchemaOf[schema.ResearchSummary]("ResearchSummary"),
				Gate:       Gate(func(r *schema.ResearchSummary) bool { return r.OpportunityScore >= 1 }),
				MaxRetries: 1,
				OnFail:     OnFailAbort,
			},
			{
				ID:         "review",
				Agent:      AgentReviewer,
				Output:     SchemaOf[schema.PositionReview]("PositionReview"),
				Gate:       Gate(func(r *schema.PositionReview) bool { return validReviewActions[r.RecommendedAction] }),
				MaxRetries: 1,
				OnFail:     OnFailEscalate,
			},
		},
	}
}

var workflows = map[string]func() *Workflow{
	WorkflowTradeThesis:    TradeThesisWorkflow,
	WorkflowPositionReview: PositionReviewWorkflow,
}

// GetWorkflow 按名称查找工作流
func GetWorkflow(name string) (*Workflow, error) {
	build, ok := workflows[name]
	if !ok {
		names := make([]string, 0, len(workflows))
		for n := range workflows {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w %q, available: %s", ErrUnknownWorkflow, name, strings.Join(names, ", "))
	}
	return build(), nil
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dushixiang/strike/internal/config"
	"github.com/dushixiang/strike/internal/models"
	"github.com/dushixiang/strike/internal/repo"
	"github.com/dushixiang/strike/internal/schema"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNoOpenPositions = errors.New("no open positions")

var (
	defaultExitTargets = []string{"+50% sell half", "+100% close"}
	hundred            = decimal.NewFromInt(100)
)

const (
	defaultStopLossLabel = "-50% hard stop"
	defaultMaxHoldDays   = 30
)

// ResearchOutcome 单个标的一次研究的结果
type ResearchOutcome struct {
	Ticker           string   `json:"ticker"`
	Workflow         string   `json:"workflow"`
	RunIDs           []string `json:"run_ids"`
	RecommendationID string   `json:"recommendation_id,omitempty"`
	Reviews          int      `json:"reviews"`
	Note             string   `json:"note,omitempty"`
}

// ResearchService 把工作流结果落地为论点、建议和复盘记录
type ResearchService struct {
	logger          *zap.Logger
	conf            config.SchedulerConf
	engine          *WorkflowEngine
	store           *TradingStore
	manager         *PositionManager
	recommendations *RecommendationService
	notifier        Notifier

	watchlistRepo *repo.WatchlistRepo
	summaryRepo   *repo.ResearchSummaryRepo
	reviewRepo    *repo.PositionReviewRepo
}

func NewResearchService(
	db *gorm.DB,
	conf *config.Config,
	engine *WorkflowEngine,
	store *TradingStore,
	manager *PositionManager,
	recommendations *RecommendationService,
	notifier Notifier,
	logger *zap.Logger,
) *ResearchService {
	return &ResearchService{
		logger:          logger,
		conf:            conf.Scheduler.WithDefaults(),
		engine:          engine,
		store:           store,
		manager:         manager,
		recommendations: recommendations,
		notifier:        notifier,
		watchlistRepo:   repo.NewWatchlistRepo(db),
		summaryRepo:     repo.NewResearchSummaryRepo(db),
		reviewRepo:      repo.NewPositionReviewRepo(db),
	}
}

// SeedWatchlist 关注列表为空时写入配置中的标的
func (s *ResearchService) SeedWatchlist(ctx context.Context) error {
	count, err := s.watchlistRepo.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 || len(s.conf.Watchlist) == 0 {
		return nil
	}
	for _, ticker := range s.conf.Watchlist {
		item := &models.WatchlistItem{
			ID:     ulid.Make().String(),
			Ticker: strings.ToUpper(strings.TrimSpace(ticker)),
			Active: true,
		}
		if err := s.watchlistRepo.Create(ctx, item); err != nil {
			return fmt.Errorf("seed watchlist %s: %w", ticker, err)
		}
	}
	s.logger.Info("watchlist seeded", zap.Strings("tickers", s.conf.Watchlist))
	return nil
}

func (s *ResearchService) Watchlist(ctx context.Context) ([]models.WatchlistItem, error) {
	return s.watchlistRepo.FindActive(ctx)
}

// RunWatchlist 对关注列表逐个研究，单个标的失败不影响其他标的
func (s *ResearchService) RunWatchlist(ctx context.Context, mode string) []*ResearchOutcome {
	items, err := s.watchlistRepo.FindActive(ctx)
	if err != nil {
		s.logger.Error("failed to load watchlist", zap.Error(err))
		return nil
	}
	s.logger.Info("watchlist research starting", zap.String("mode", mode), zap.Int("tickers", len(items)))

	var outcomes []*ResearchOutcome
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		outcome, err := s.ResearchTicker(ctx, item.Ticker, mode)
		if err != nil {
			s.logger.Error("research failed", zap.String("ticker", item.Ticker), zap.Error(err))
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// ResearchTicker 有持仓时做复盘，否则生成新论点
func (s *ResearchService) ResearchTicker(ctx context.Context, ticker, mode string) (*ResearchOutcome, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	positions, err := s.store.PositionRepo.FindOpenByTicker(ctx, ticker)
	if err != nil {
		s.logger.Warn("failed to check open positions, falling back to trade-thesis",
			zap.String("ticker", ticker), zap.Error(err))
		positions = nil
	}
	if len(positions) > 0 {
		return s.ReviewPositions(ctx, ticker, mode, positions)
	}
	return s.RunThesis(ctx, ticker, mode)
}

// RunWorkflow 按名称手动触发工作流
func (s *ResearchService) RunWorkflow(ctx context.Context, name, ticker, mode string) (*ResearchOutcome, error) {
	if _, err := GetWorkflow(name); err != nil {
		return nil, err
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if name == WorkflowTradeThesis {
		return s.RunThesis(ctx, ticker, mode)
	}
	positions, err := s.store.PositionRepo.FindOpenByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoOpenPositions, ticker)
	}
	return s.ReviewPositions(ctx, ticker, mode, positions)
}

// RunThesis 执行 trade-thesis，通过后写入论点与待审批建议
func (s *ResearchService) RunThesis(ctx context.Context, ticker, mode string) (*ResearchOutcome, error) {
	outcome := &ResearchOutcome{Ticker: ticker, Workflow: WorkflowTradeThesis}

	result, err := s.engine.Run(ctx, TradeThesisWorkflow(), &schema.ResearchRequest{Ticker: ticker, Mode: mode},
		WithTrigger(mode))
	if err != nil {
		return nil, err
	}
	if result == nil {
		outcome.Note = "did not pass gates"
		return outcome, nil
	}
	outcome.RunIDs = append(outcome.RunIDs, result.RunID)

	if research, ok := result.StepOutputs["research"].(*schema.ResearchSummary); ok {
		s.saveResearchSummary(ctx, result.RunID, research)
	}

	thesis, ok := result.StepOutputs["evaluate"].(*schema.Thesis)
	verification, vok := result.StepOutputs["verify"].(*schema.RiskVerification)
	if !ok || !vok || !verification.Approved {
		outcome.Note = "no actionable recommendation"
		return outcome, nil
	}
	if thesis.RecommendedContract == nil {
		outcome.Note = "no contract proposed"
		s.logger.Info("thesis passed without a contract", zap.String("ticker", ticker))
		return outcome, nil
	}

	rec, thesisRow, err := s.saveRecommendation(ctx, result.RunID, thesis, verification)
	if err != nil {
		return nil, err
	}
	outcome.RecommendationID = rec.ID

	if s.notifier != nil {
		if err := s.notifier.SendRecommendation(ctx, rec, thesisRow); err != nil {
			s.logger.Warn("failed to send recommendation", zap.Error(err))
		}
	}

	if s.conf.AutoApprove {
		s.autoApprove(ctx, rec)
	}
	return outcome, nil
}

func (s *ResearchService) saveRecommendation(ctx context.Context, runID string, thesis *schema.Thesis, verification *schema.RiskVerification) (*models.TradeRecommendation, *models.Thesis, error) {
	contract := thesis.RecommendedContract
	expiry, err := contract.ExpiryDate()
	if err != nil {
		return nil, nil, fmt.Errorf("contract expiry: %w", err)
	}

	account, err := s.manager.AccountSummary(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("account summary: %w", err)
	}
	pct := verification.PositionSizePct
	if maxPct := s.manager.Config().MaxPositionPct; pct.GreaterThan(maxPct) {
		pct = maxPct
	}
	usd := pct.Mul(account.NetLiquidation).Div(hundred).Round(2)

	catalyst, _ := json.Marshal(thesis.Catalyst)
	scores, _ := json.Marshal(thesis.Scores)
	thesisRow := &models.Thesis{
		ID:                 ulid.Make().String(),
		RunID:              runID,
		Ticker:             thesis.Ticker,
		Direction:          thesis.Direction,
		ThesisText:         thesis.ThesisText,
		Catalyst:           catalyst,
		Scores:             scores,
		OverallScore:       thesis.Scores.Overall,
		SupportingEvidence: thesis.SupportingEvidence,
		Risks:              thesis.Risks,
	}
	rec := &models.TradeRecommendation{
		ID:               ulid.Make().String(),
		ThesisID:         thesisRow.ID,
		RunID:            runID,
		Ticker:           contract.Ticker,
		Right:            models.OptionRight(contract.Right),
		Strike:           contract.Strike,
		Expiry:           expiry,
		EntryPriceLow:    contract.EntryPriceLow,
		EntryPriceHigh:   contract.EntryPriceHigh,
		PositionSizePct:  pct,
		PositionSizeUSD:  usd,
		ExitTargets:      datatypes.JSONSlice[string](defaultExitTargets),
		StopLoss:         defaultStopLossLabel,
		MaxHoldDays:      defaultMaxHoldDays,
		RiskVerification: snapshot(verification),
		Status:           models.RecommendationPendingReview,
	}

	err = s.store.Transaction(ctx, func(ctx context.Context) error {
		if err := s.store.ThesisRepo.Create(ctx, thesisRow); err != nil {
			return err
		}
		return s.store.RecommendationRepo.Create(ctx, rec)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("save recommendation: %w", err)
	}
	s.logger.Info("recommendation saved",
		zap.String("recommendation_id", rec.ID),
		zap.String("ticker", rec.Ticker),
		zap.String("contract", contract.String()),
		zap.Stringer("position_size_usd", usd))
	return rec, thesisRow, nil
}

// autoApprove 跳过人工审批并立即执行
func (s *ResearchService) autoApprove(ctx context.Context, rec *models.TradeRecommendation) {
	if _, err := s.recommendations.Approve(ctx, rec.ID, "auto-approve"); err != nil {
		s.logger.Error("auto-approve failed", zap.String("recommendation_id", rec.ID), zap.Error(err))
		return
	}
	s.notify(ctx, fmt.Sprintf("Auto-approved recommendation `%s` for *%s*, executing now.", rec.ID, rec.Ticker))
	if err := s.manager.ExecuteNow(ctx, rec.ID); err != nil {
		s.logger.Error("auto-approved execution failed", zap.String("recommendation_id", rec.ID), zap.Error(err))
	}
}

// ReviewPositions 每个持仓单独跑一次 position-review，持仓详情作为显式上下文传入
func (s *ResearchService) ReviewPositions(ctx context.Context, ticker, mode string, positions []models.OptionsPosition) (*ResearchOutcome, error) {
	outcome := &ResearchOutcome{Ticker: ticker, Workflow: WorkflowPositionReview}

	for i := range positions {
		pos := &positions[i]
		result, err := s.engine.Run(ctx, PositionReviewWorkflow(), &schema.ResearchRequest{Ticker: ticker, Mode: mode},
			WithTrigger(mode), WithAgentContext(positionContext(pos)))
		if err != nil {
			if errors.Is(err, ErrUnknownAgent) {
				return nil, err
			}
			s.logger.Error("position review failed", zap.String("position_id", pos.ID), zap.Error(err))
			continue
		}
		if result == nil {
			s.logger.Info("position review aborted", zap.String("position_id", pos.ID))
			continue
		}
		outcome.RunIDs = append(outcome.RunIDs, result.RunID)

		if research, ok := result.StepOutputs["research"].(*schema.ResearchSummary); ok {
			s.saveResearchSummary(ctx, result.RunID, research)
		}
		review, ok := result.StepOutputs["review"].(*schema.PositionReview)
		if !ok {
			continue
		}
		row := &models.PositionReview{
			ID:                ulid.Make().String(),
			RunID:             result.RunID,
			PositionID:        pos.ID,
			Ticker:            ticker,
			ThesisStillValid:  review.ThesisStillValid,
			RecommendedAction: review.RecommendedAction,
			Reasoning:         review.Reasoning,
			Urgency:           review.Urgency,
		}
		if err := s.reviewRepo.Create(ctx, row); err != nil {
			s.logger.Error("failed to save position review", zap.String("position_id", pos.ID), zap.Error(err))
			continue
		}
		outcome.Reviews++
		s.notify(ctx, formatReview(pos, review))

		if s.conf.AutoCloseInvalid && review.RecommendedAction == "close" && !review.ThesisStillValid {
			if err := s.manager.ClosePosition(ctx, pos.ID, models.CloseReasonThesisInvalid); err != nil {
				s.logger.Error("auto close on invalid thesis failed", zap.String("position_id", pos.ID), zap.Error(err))
			}
		}
	}
	return outcome, nil
}

func positionContext(pos *models.OptionsPosition) map[string]any {
	return map[string]any{
		"position_id":    pos.ID,
		"ticker":         pos.Ticker,
		"contract":       pos.Describe(),
		"quantity":       pos.Quantity,
		"avg_fill_price": pos.AvgFillPrice.StringFixed(2),
		"current_price":  pos.CurrentPrice.StringFixed(2),
		"unrealized_pnl": pos.UnrealizedPnl.StringFixed(2),
		"pnl_pct":        pos.PnlPercent().Round(1).InexactFloat64(),
		"opened_at":      pos.OpenedAt,
		"external":       pos.IsExternal(),
	}
}

func formatReview(pos *models.OptionsPosition, review *schema.PositionReview) string {
	prefix := ""
	if review.IsUrgent() {
		prefix = "URGENT "
	}
	reasoning := review.Reasoning
	if len(reasoning) > 300 {
		reasoning = reasoning[:300]
	}
	return fmt.Sprintf("%s*Position Review: %s* (`%s`)\nAction: *%s*\nThesis valid: %t\nP&L: %s%%\nReasoning: %s",
		prefix, pos.Describe(), pos.ID, review.RecommendedAction, review.ThesisStillValid,
		pos.PnlPercent().StringFixed(1), reasoning)
}

func (s *ResearchService) saveResearchSummary(ctx context.Context, runID string, research *schema.ResearchSummary) {
	row := &models.ResearchSummary{
		ID:               ulid.Make().String(),
		RunID:            runID,
		Ticker:           strings.ToUpper(research.Ticker),
		Summary:          research.NewsSummary,
		OpportunityScore: research.OpportunityScore,
		Sentiment:        research.Sentiment(),
		KeyPoints:        research.KeyObservations,
		Raw:              snapshot(research),
	}
	if err := s.summaryRepo.Create(ctx, row); err != nil {
		s.logger.Warn("failed to save research summary", zap.String("ticker", row.Ticker), zap.Error(err))
	}
}

func (s *ResearchService) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, text); err != nil {
		s.logger.Warn("notification failed", zap.Error(err))
	}
}

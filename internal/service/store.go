package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dushixiang/strike/internal/models"
	"github.com/dushixiang/strike/internal/repo"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidTransition = errors.New("invalid recommendation status transition")
	ErrPositionNotOpen   = errors.New("position not open")
)

// WorkflowStore 工作流持久化
type WorkflowStore interface {
	CreateWorkflowRun(ctx context.Context, workflowID, trigger string, input any) (string, error)
	CompleteWorkflowRun(ctx context.Context, runID string, status models.WorkflowRunStatus, result any) error
	LogStep(ctx context.Context, log *models.StepLog) error
}

// PositionStore 持仓管理需要的持久化能力
type PositionStore interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	GetOpenPositions(ctx context.Context) ([]models.OptionsPosition, error)
	GetPosition(ctx context.Context, id string) (*models.OptionsPosition, error)
	InsertPosition(ctx context.Context, pos *models.OptionsPosition) error
	UpdatePositionPrice(ctx context.Context, id string, price, unrealized decimal.Decimal) error
	UpdatePositionBrokerRef(ctx context.Context, id, brokerRefID string) error
	PartialClosePosition(ctx context.Context, id string, remaining int, realized decimal.Decimal) error
	ClosePosition(ctx context.Context, id string, reason models.CloseReason, realized decimal.Decimal, closedAt time.Time) error
	GetTotalOptionsExposure(ctx context.Context) (decimal.Decimal, error)

	GetApprovedRecommendations(ctx context.Context) ([]models.TradeRecommendation, error)
	GetRecommendation(ctx context.Context, id string) (*models.TradeRecommendation, error)
	UpdateRecommendationStatus(ctx context.Context, id string, to models.RecommendationStatus, reason string) error

	GetThesisIDForPosition(ctx context.Context, positionID string) (string, error)
	UpdateThesisOutcome(ctx context.Context, thesisID, positionID string, realized decimal.Decimal, reason models.CloseReason, closedAt time.Time) error
}

var (
	_ WorkflowStore = (*TradingStore)(nil)
	_ PositionStore = (*TradingStore)(nil)
)

// TradingStore 基于 gorm 的统一存储
type TradingStore struct {
	*orz.Service

	PositionRepo       *repo.PositionRepo
	RecommendationRepo *repo.RecommendationRepo
	ThesisRepo         *repo.ThesisRepo
	WorkflowRunRepo    *repo.WorkflowRunRepo
	StepLogRepo        *repo.StepLogRepo
}

func NewTradingStore(db *gorm.DB) *TradingStore {
	return &TradingStore{
		Service:            orz.NewService(db),
		PositionRepo:       repo.NewPositionRepo(db),
		RecommendationRepo: repo.NewRecommendationRepo(db),
		ThesisRepo:         repo.NewThesisRepo(db),
		WorkflowRunRepo:    repo.NewWorkflowRunRepo(db),
		StepLogRepo:        repo.NewStepLogRepo(db),
	}
}

// snapshot 序列化为 JSON 快照，失败时记录错误文本而不是中断流程
func snapshot(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
	}
	return b
}

func (s *TradingStore) CreateWorkflowRun(ctx context.Context, workflowID, trigger string, input any) (string, error) {
	run := &models.WorkflowRun{
		ID:         ulid.Make().String(),
		WorkflowID: workflowID,
		Trigger:    trigger,
		Input:      snapshot(input),
		Status:     models.WorkflowRunRunning,
		StartedAt:  time.Now(),
	}
	if err := s.WorkflowRunRepo.Create(ctx, run); err != nil {
		return "", fmt.Errorf("create workflow run: %w", err)
	}
	return run.ID, nil
}

func (s *TradingStore) CompleteWorkflowRun(ctx context.Context, runID string, status models.WorkflowRunStatus, result any) error {
	affected, err := s.WorkflowRunRepo.Complete(ctx, runID, map[string]interface{}{
		"status":       status,
		"result":       snapshot(result),
		"completed_at": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("complete workflow run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("workflow run %s is not running", runID)
	}
	return nil
}

func (s *TradingStore) LogStep(ctx context.Context, log *models.StepLog) error {
	if log.ID == "" {
		log.ID = ulid.Make().String()
	}
	return s.StepLogRepo.Create(ctx, log)
}

func (s *TradingStore) GetOpenPositions(ctx context.Context) ([]models.OptionsPosition, error) {
	return s.PositionRepo.FindOpen(ctx)
}

func (s *TradingStore) GetPosition(ctx context.Context, id string) (*models.OptionsPosition, error) {
	pos, err := s.PositionRepo.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (s *TradingStore) InsertPosition(ctx context.Context, pos *models.OptionsPosition) error {
	if pos.ID == "" {
		pos.ID = ulid.Make().String()
	}
	if pos.Status == "" {
		pos.Status = models.PositionStatusOpen
	}
	pos.CostBasis = models.CostBasisOf(pos.AvgFillPrice, pos.Quantity)
	return s.PositionRepo.Create(ctx, pos)
}

func (s *TradingStore) UpdatePositionPrice(ctx context.Context, id string, price, unrealized decimal.Decimal) error {
	return s.PositionRepo.UpdatePrice(ctx, id, price, unrealized)
}

func (s *TradingStore) UpdatePositionBrokerRef(ctx context.Context, id, brokerRefID string) error {
	return s.PositionRepo.UpdateBrokerRef(ctx, id, brokerRefID)
}

func (s *TradingStore) PartialClosePosition(ctx context.Context, id string, remaining int, realized decimal.Decimal) error {
	affected, err := s.PositionRepo.PartialClose(ctx, id, remaining, realized)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("partial close %s: %w", id, ErrPositionNotOpen)
	}
	return nil
}

func (s *TradingStore) ClosePosition(ctx context.Context, id string, reason models.CloseReason, realized decimal.Decimal, closedAt time.Time) error {
	affected, err := s.PositionRepo.Close(ctx, id, reason, realized, closedAt)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("close %s: %w", id, ErrPositionNotOpen)
	}
	return nil
}

func (s *TradingStore) GetTotalOptionsExposure(ctx context.Context) (decimal.Decimal, error) {
	return s.PositionRepo.SumOpenCostBasis(ctx)
}

func (s *TradingStore) GetApprovedRecommendations(ctx context.Context) ([]models.TradeRecommendation, error) {
	return s.RecommendationRepo.FindByStatus(ctx, models.RecommendationApproved)
}

func (s *TradingStore) GetRecommendation(ctx context.Context, id string) (*models.TradeRecommendation, error) {
	rec, err := s.RecommendationRepo.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateRecommendationStatus 按状态机迁移，当前状态不允许时返回 ErrInvalidTransition
func (s *TradingStore) UpdateRecommendationStatus(ctx context.Context, id string, to models.RecommendationStatus, reason string) error {
	from := models.PreviousStatuses(to)
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing transitions to %s", ErrInvalidTransition, to)
	}
	if to == models.RecommendationFailed && reason == "" {
		reason = "execution failed"
	}
	values := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	if reason != "" {
		values["status_reason"] = reason
	}
	if to == models.RecommendationApproved {
		values["approved_at"] = time.Now()
	}
	affected, err := s.RecommendationRepo.UpdateStatus(ctx, id, from, values)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, id, to)
	}
	return nil
}

func (s *TradingStore) GetThesisIDForPosition(ctx context.Context, positionID string) (string, error) {
	return s.RecommendationRepo.FindThesisIDByPosition(ctx, positionID)
}

func (s *TradingStore) UpdateThesisOutcome(ctx context.Context, thesisID, positionID string, realized decimal.Decimal, reason models.CloseReason, closedAt time.Time) error {
	return s.ThesisRepo.UpdateOutcome(ctx, thesisID, realized, reason, positionID, closedAt)
}

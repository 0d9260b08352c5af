package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dushixiang/strike/internal/models"
	"github.com/dushixiang/strike/internal/service"
	"github.com/dushixiang/strike/internal/xe"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// APIHandler 审批、触发与查询接口
type APIHandler struct {
	logger          *zap.Logger
	scheduler       *service.Scheduler
	manager         *service.PositionManager
	research        *service.ResearchService
	recommendations *service.RecommendationService
	equity          *service.EquityService
	store           *service.TradingStore
}

func NewAPIHandler(
	logger *zap.Logger,
	scheduler *service.Scheduler,
	manager *service.PositionManager,
	research *service.ResearchService,
	recommendations *service.RecommendationService,
	equity *service.EquityService,
	store *service.TradingStore,
) *APIHandler {
	return &APIHandler{
		logger:          logger,
		scheduler:       scheduler,
		manager:         manager,
		research:        research,
		recommendations: recommendations,
		equity:          equity,
		store:           store,
	}
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type RunWorkflowRequest struct {
	Ticker string `json:"ticker" validate:"required,max=16"`
	Mode   string `json:"mode" validate:"omitempty,oneof=premarket midday postmarket weekly_deep_dive"`
}

// apiError 把领域错误映射为接口错误码
func apiError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidTransition):
		return fmt.Errorf("%w: %v", xe.ErrInvalidTransition, err)
	case errors.Is(err, service.ErrPositionNotOpen):
		return fmt.Errorf("%w: %v", xe.ErrPositionNotOpen, err)
	case errors.Is(err, service.ErrUnknownWorkflow):
		return fmt.Errorf("%w: %v", xe.ErrUnknownWorkflow, err)
	case errors.Is(err, service.ErrNoOpenPositions):
		return fmt.Errorf("%w: %v", xe.ErrNoOpenPositions, err)
	}
	return err
}

// GetStatus 调度器、账户与持仓概览
// GET /api/status
func (h *APIHandler) GetStatus(c echo.Context) error {
	ctx := c.Request().Context()

	result := map[string]interface{}{
		"scheduler": h.scheduler.Status(),
	}

	account, err := h.manager.AccountSummary(ctx)
	if err != nil {
		h.logger.Warn("failed to get account summary", zap.Error(err))
	} else {
		result["account"] = account
	}

	positions, err := h.store.GetOpenPositions(ctx)
	if err != nil {
		return err
	}
	exposure, err := h.store.GetTotalOptionsExposure(ctx)
	if err != nil {
		return err
	}
	result["open_positions"] = len(positions)
	result["options_exposure"] = exposure

	pending, err := h.recommendations.List(ctx, models.RecommendationPendingReview)
	if err != nil {
		return err
	}
	result["pending_recommendations"] = len(pending)
	return c.JSON(http.StatusOK, result)
}

// GetPositions 持仓列表
// GET /api/positions?status=open
func (h *APIHandler) GetPositions(c echo.Context) error {
	status := c.QueryParam("status")
	switch models.PositionStatus(status) {
	case "", models.PositionStatusOpen, models.PositionStatusClosed:
	default:
		return xe.ErrInvalidParams
	}
	positions, err := h.store.PositionRepo.FindByStatus(c.Request().Context(), status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":     len(positions),
		"positions": positions,
	})
}

// ClosePosition 手动平仓
// POST /api/positions/:id/close
func (h *APIHandler) ClosePosition(c echo.Context) error {
	id := c.Param("id")
	if err := h.manager.ClosePosition(c.Request().Context(), id, models.CloseReasonManual); err != nil {
		return apiError(err)
	}
	pos, err := h.store.GetPosition(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pos)
}

// GetRecommendations 建议列表，默认待审批
// GET /api/recommendations?status=pending_review
func (h *APIHandler) GetRecommendations(c echo.Context) error {
	status := models.RecommendationStatus(c.QueryParam("status"))
	if status == "" {
		status = models.RecommendationPendingReview
	}
	recs, err := h.recommendations.List(c.Request().Context(), status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":           len(recs),
		"recommendations": recs,
	})
}

// ApproveRecommendation 批准
// POST /api/recommendations/:id/approve
func (h *APIHandler) ApproveRecommendation(c echo.Context) error {
	rec, err := h.recommendations.Approve(c.Request().Context(), c.Param("id"), "api")
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// RejectRecommendation 拒绝
// POST /api/recommendations/:id/reject
func (h *APIHandler) RejectRecommendation(c echo.Context) error {
	var req RejectRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	rec, err := h.recommendations.Reject(c.Request().Context(), c.Param("id"), "api", req.Reason)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// GetRuns 最近的工作流运行
// GET /api/runs?limit=20
func (h *APIHandler) GetRuns(c echo.Context) error {
	limit := 20
	if l := c.QueryParam("limit"); l != "" {
		limit = cast.ToInt(l)
	}
	if limit <= 0 || limit > 200 {
		return xe.ErrInvalidParams
	}
	runs, err := h.store.WorkflowRunRepo.FindRecent(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": len(runs),
		"runs":  runs,
	})
}

// GetRunSteps 运行的步骤日志
// GET /api/runs/:id/steps
func (h *APIHandler) GetRunSteps(c echo.Context) error {
	steps, err := h.store.StepLogRepo.FindByRunID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": len(steps),
		"steps": steps,
	})
}

// RunWorkflow 手动触发工作流
// POST /api/workflows/:id/run
func (h *APIHandler) RunWorkflow(c echo.Context) error {
	var req RunWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	mode := req.Mode
	if mode == "" {
		mode = "manual"
	}
	outcome, err := h.research.RunWorkflow(c.Request().Context(), c.Param("id"), req.Ticker, mode)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, outcome)
}

// Tick 立即执行一次持仓管理
// POST /api/manager/tick
func (h *APIHandler) Tick(c echo.Context) error {
	report, err := h.scheduler.RunTick(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// GetEquity 权益曲线
// GET /api/equity?days=30
func (h *APIHandler) GetEquity(c echo.Context) error {
	days := cast.ToInt(c.QueryParam("days"))
	snapshots, err := h.equity.History(c.Request().Context(), days)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":     len(snapshots),
		"snapshots": snapshots,
	})
}

// RegisterRoutes 注册路由，写接口需要令牌
func (h *APIHandler) RegisterRoutes(g *echo.Group, auth echo.MiddlewareFunc) {
	g.GET("/status", h.GetStatus)
	g.GET("/positions", h.GetPositions)
	g.GET("/recommendations", h.GetRecommendations)
	g.GET("/runs", h.GetRuns)
	g.GET("/runs/:id/steps", h.GetRunSteps)
	g.GET("/equity", h.GetEquity)

	g.POST("/positions/:id/close", h.ClosePosition, auth)
	g.POST("/recommendations/:id/approve", h.ApproveRecommendation, auth)
	g.POST("/recommendations/:id/reject", h.RejectRecommendation, auth)
	g.POST("/workflows/:id/run", h.RunWorkflow, auth)
	g.POST("/manager/tick", h.Tick, auth)
}

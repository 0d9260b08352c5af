package service

import (
	"context"
	"fmt"

	"github.com/dushixiang/strike/internal/models"
	"go.uber.org/zap"
)

// RecommendationService 人工审批入口（HTTP / Telegram）
type RecommendationService struct {
	logger *zap.Logger
	store  *TradingStore
}

func NewRecommendationService(store *TradingStore, logger *zap.Logger) *RecommendationService {
	return &RecommendationService{logger: logger, store: store}
}

// Approve pending_review → approved，via 记录审批来源
func (s *RecommendationService) Approve(ctx context.Context, id, via string) (*models.TradeRecommendation, error) {
	if err := s.store.UpdateRecommendationStatus(ctx, id, models.RecommendationApproved, fmt.Sprintf("approved via %s", via)); err != nil {
		return nil, err
	}
	s.logger.Info("recommendation approved", zap.String("recommendation_id", id), zap.String("via", via))
	return s.store.GetRecommendation(ctx, id)
}

// Reject pending_review → rejected
func (s *RecommendationService) Reject(ctx context.Context, id, via, reason string) (*models.TradeRecommendation, error) {
	text := fmt.Sprintf("rejected via %s", via)
	if reason != "" {
		text += ": " + reason
	}
	if err := s.store.UpdateRecommendationStatus(ctx, id, models.RecommendationRejected, text); err != nil {
		return nil, err
	}
	s.logger.Info("recommendation rejected", zap.String("recommendation_id", id), zap.String("via", via))
	return s.store.GetRecommendation(ctx, id)
}

func (s *RecommendationService) Get(ctx context.Context, id string) (*models.TradeRecommendation, error) {
	return s.store.GetRecommendation(ctx, id)
}

// List status 为空时返回全部
func (s *RecommendationService) List(ctx context.Context, status models.RecommendationStatus) ([]models.TradeRecommendation, error) {
	return s.store.RecommendationRepo.FindByStatus(ctx, status)
}

package repo

import (
	"context"

	"github.com/dushixiang/strike/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewResearchSummaryRepo(db *gorm.DB) *ResearchSummaryRepo {
	return &ResearchSummaryRepo{
		Repository: orz.NewRepository[models.ResearchSummary, string](db),
	}
}

type ResearchSummaryRepo struct {
	orz.Repository[models.ResearchSummary, string]
}

func NewPositionReviewRepo(db *gorm.DB) *PositionReviewRepo {
	return &PositionReviewRepo{
		Repository: orz.NewRepository[models.PositionReview, string](db),
	}
}

type PositionReviewRepo struct {
	orz.Repository[models.PositionReview, string]
}

// FindRecentByPosition 某个持仓最近的复盘
func (r PositionReviewRepo) FindRecentByPosition(ctx context.Context, positionID string, limit int) ([]models.PositionReview, error) {
	var items []models.PositionReview
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("position_id = ?", positionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

package repo

import (
	"context"

	"github.com/dushixiang/strike/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewRecommendationRepo(db *gorm.DB) *RecommendationRepo {
	return &RecommendationRepo{
		Repository: orz.NewRepository[models.TradeRecommendation, string](db),
	}
}

type RecommendationRepo struct {
	orz.Repository[models.TradeRecommendation, string]
}

// FindByStatus 按状态查询，status 为空时返回全部
func (r RecommendationRepo) FindByStatus(ctx context.Context, status models.RecommendationStatus) ([]models.TradeRecommendation, error) {
	var items []models.TradeRecommendation
	db := r.GetDB(ctx).Table(r.GetTableName())
	if status != "" {
		db = db.Where("status = ?", status)
	}
	order := "created_at DESC"
	if status == models.RecommendationApproved {
		order = "approved_at ASC"
	}
	err := db.Order(order).Find(&items).Error
	return items, err
}

// UpdateStatus 只有当前状态在 from 中时才迁移，返回受影响行数
func (r RecommendationRepo) UpdateStatus(ctx context.Context, id string, from []models.RecommendationStatus, values map[string]interface{}) (int64, error) {
	db := r.GetDB(ctx)
	result := db.Table(r.GetTableName()).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	return result.RowsAffected, result.Error
}

// FindThesisIDByPosition 沿 持仓 → 建议 → 论点 的关联查找论点
func (r RecommendationRepo) FindThesisIDByPosition(ctx context.Context, positionID string) (string, error) {
	var thesisIDs []string
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()+" AS r").
		Select("r.thesis_id").
		Joins("JOIN options_positions AS p ON p.recommendation_id = r.id").
		Where("p.id = ? AND r.thesis_id <> ''", positionID).
		Limit(1).
		Pluck("r.thesis_id", &thesisIDs).Error
	if err != nil || len(thesisIDs) == 0 {
		return "", err
	}
	return thesisIDs[0], nil
}

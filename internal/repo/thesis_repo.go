package repo

import (
	"context"
	"time"

	"github.com/dushixiang/strike/internal/models"
	"github.com/go-orz/orz"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func NewThesisRepo(db *gorm.DB) *ThesisRepo {
	return &ThesisRepo{
		Repository: orz.NewRepository[models.Thesis, string](db),
	}
}

type ThesisRepo struct {
	orz.Repository[models.Thesis, string]
}

// UpdateOutcome 持仓平仓后回填论点结果
func (r ThesisRepo) UpdateOutcome(ctx context.Context, id string, realized decimal.Decimal, reason models.CloseReason, positionID string, closedAt time.Time) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"outcome_realized_pnl": realized,
			"outcome_close_reason": reason,
			"outcome_closed_at":    closedAt,
			"outcome_position_id":  positionID,
		}).Error
}

// FindRecentByTicker 某个标的最近的论点
func (r ThesisRepo) FindRecentByTicker(ctx context.Context, ticker string, limit int) ([]models.Thesis, error) {
	var items []models.Thesis
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("ticker = ?", ticker).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

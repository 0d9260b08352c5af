package repo

import (
	"context"

	"github.com/dushixiang/strike/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewWatchlistRepo(db *gorm.DB) *WatchlistRepo {
	return &WatchlistRepo{
		Repository: orz.NewRepository[models.WatchlistItem, string](db),
	}
}

type WatchlistRepo struct {
	orz.Repository[models.WatchlistItem, string]
}

// FindActive 启用中的标的
func (r WatchlistRepo) FindActive(ctx context.Context) ([]models.WatchlistItem, error) {
	var items []models.WatchlistItem
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("active = ?", true).
		Order("ticker ASC").
		Find(&items).Error
	return items, err
}

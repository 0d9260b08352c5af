package repo

import (
	"context"
	"time"

	"github.com/dushixiang/strike/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewEquitySnapshotRepo(db *gorm.DB) *EquitySnapshotRepo {
	return &EquitySnapshotRepo{
		Repository: orz.NewRepository[models.EquitySnapshot, string](db),
	}
}

type EquitySnapshotRepo struct {
	orz.Repository[models.EquitySnapshot, string]
}

// FindSince 某时间之后的快照（按时间排序）
func (r EquitySnapshotRepo) FindSince(ctx context.Context, since time.Time) ([]models.EquitySnapshot, error) {
	var items []models.EquitySnapshot
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("recorded_at >= ?", since).
		Order("recorded_at ASC").
		Find(&items).Error
	return items, err
}

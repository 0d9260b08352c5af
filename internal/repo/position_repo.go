package repo

import (
	"context"
	"time"

	"github.com/dushixiang/strike/internal/models"
	"github.com/go-orz/orz"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func NewPositionRepo(db *gorm.DB) *PositionRepo {
	return &PositionRepo{
		Repository: orz.NewRepository[models.OptionsPosition, string](db),
	}
}

type PositionRepo struct {
	orz.Repository[models.OptionsPosition, string]
}

// FindOpen 获取所有未平仓持仓，按开仓时间升序
func (r PositionRepo) FindOpen(ctx context.Context) ([]models.OptionsPosition, error) {
	var positions []models.OptionsPosition
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("status = ?", models.PositionStatusOpen).
		Order("opened_at ASC").
		Find(&positions).Error
	return positions, err
}

// FindOpenByTicker 某个标的的未平仓持仓
func (r PositionRepo) FindOpenByTicker(ctx context.Context, ticker string) ([]models.OptionsPosition, error) {
	var positions []models.OptionsPosition
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("status = ? AND ticker = ?", models.PositionStatusOpen, ticker).
		Order("opened_at ASC").
		Find(&positions).Error
	return positions, err
}

// FindByStatus 按状态查询，status 为空时返回全部
func (r PositionRepo) FindByStatus(ctx context.Context, status string) ([]models.OptionsPosition, error) {
	var positions []models.OptionsPosition
	db := r.GetDB(ctx).Table(r.GetTableName())
	if status != "" {
		db = db.Where("status = ?", status)
	}
	err := db.Order("opened_at DESC").Find(&positions).Error
	return positions, err
}

// UpdatePrice 更新现价与未实现盈亏，已平仓记录不可修改
func (r PositionRepo) UpdatePrice(ctx context.Context, id string, price, unrealized decimal.Decimal) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ? AND status = ?", id, models.PositionStatusOpen).
		Updates(map[string]interface{}{
			"current_price":  price,
			"unrealized_pnl": unrealized,
			"updated_at":     time.Now(),
		}).Error
}

// UpdateBrokerRef 回填券商持仓引用
func (r PositionRepo) UpdateBrokerRef(ctx context.Context, id, brokerRefID string) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Update("broker_ref_id", brokerRefID).Error
}

// PartialClose 部分平仓：减少数量，按剩余数量重算成本，累加已实现盈亏
func (r PositionRepo) PartialClose(ctx context.Context, id string, remaining int, realized decimal.Decimal) (int64, error) {
	db := r.GetDB(ctx)
	result := db.Table(r.GetTableName()).
		Where("id = ? AND status = ? AND quantity > ?", id, models.PositionStatusOpen, remaining).
		Updates(map[string]interface{}{
			"quantity":       remaining,
			"cost_basis":     gorm.Expr("avg_fill_price * ? * 100", remaining),
			"unrealized_pnl": gorm.Expr("(current_price - avg_fill_price) * ? * 100", remaining),
			"realized_pnl":   gorm.Expr("realized_pnl + ?", realized),
			"updated_at":     time.Now(),
		})
	return result.RowsAffected, result.Error
}

// Close 全部平仓，已实现盈亏在已有基础上累加
func (r PositionRepo) Close(ctx context.Context, id string, reason models.CloseReason, realized decimal.Decimal, closedAt time.Time) (int64, error) {
	db := r.GetDB(ctx)
	result := db.Table(r.GetTableName()).
		Where("id = ? AND status = ?", id, models.PositionStatusOpen).
		Updates(map[string]interface{}{
			"status":         models.PositionStatusClosed,
			"close_reason":   reason,
			"realized_pnl":   gorm.Expr("realized_pnl + ?", realized),
			"unrealized_pnl": decimal.Zero,
			"closed_at":      closedAt,
			"updated_at":     closedAt,
		})
	return result.RowsAffected, result.Error
}

// SumOpenCostBasis 期权总敞口
func (r PositionRepo) SumOpenCostBasis(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Select("SUM(cost_basis)").
		Where("status = ?", models.PositionStatusOpen).
		Row().Scan(&total)
	if err != nil || !total.Valid {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}

// SumRealizedPnl 全部持仓的已实现盈亏
func (r PositionRepo) SumRealizedPnl(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Select("SUM(realized_pnl)").
		Row().Scan(&total)
	if err != nil || !total.Valid {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}

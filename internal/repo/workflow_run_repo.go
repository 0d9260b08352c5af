package repo

import (
	"context"

	"github.com/dushixiang/strike/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewWorkflowRunRepo(db *gorm.DB) *WorkflowRunRepo {
	return &WorkflowRunRepo{
		Repository: orz.NewRepository[models.WorkflowRun, string](db),
	}
}

type WorkflowRunRepo struct {
	orz.Repository[models.WorkflowRun, string]
}

// FindRecent 最近的运行记录
func (r WorkflowRunRepo) FindRecent(ctx context.Context, limit int) ([]models.WorkflowRun, error) {
	var runs []models.WorkflowRun
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// Complete 仅 running 状态可以结束，返回受影响行数
func (r WorkflowRunRepo) Complete(ctx context.Context, id string, values map[string]interface{}) (int64, error) {
	db := r.GetDB(ctx)
	result := db.Table(r.GetTableName()).
		Where("id = ? AND status = ?", id, models.WorkflowRunRunning).
		Updates(values)
	return result.RowsAffected, result.Error
}

func NewStepLogRepo(db *gorm.DB) *StepLogRepo {
	return &StepLogRepo{
		Repository: orz.NewRepository[models.StepLog, string](db),
	}
}

type StepLogRepo struct {
	orz.Repository[models.StepLog, string]
}

// FindByRunID 某次运行的全部步骤日志
func (r StepLogRepo) FindByRunID(ctx context.Context, runID string) ([]models.StepLog, error) {
	var logs []models.StepLog
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("run_id = ?", runID).
		Order("created_at ASC, attempt ASC").
		Find(&logs).Error
	return logs, err
}

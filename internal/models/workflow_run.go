package models

import (
	"time"

	"gorm.io/datatypes"
)

// WorkflowRunStatus 工作流运行状态
type WorkflowRunStatus string

const (
	WorkflowRunRunning   WorkflowRunStatus = "running"
	WorkflowRunCompleted WorkflowRunStatus = "completed"
	WorkflowRunFailed    WorkflowRunStatus = "failed"
)

// WorkflowRun 一次工作流执行记录
type WorkflowRun struct {
	ID          string            `gorm:"primaryKey;type:varchar(26)" json:"id"`
	WorkflowID  string            `gorm:"type:varchar(64);not null;index" json:"workflow_id"`
	Trigger     string            `gorm:"type:varchar(32)" json:"trigger"`
	Input       datatypes.JSON    `json:"input"`
	Status      WorkflowRunStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Result      datatypes.JSON    `json:"result"`
	StartedAt   time.Time         `gorm:"not null;index" json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at"`
}

// TableName 指定表名
func (WorkflowRun) TableName() string {
	return "workflow_runs"
}

// StepLog 步骤执行日志，每次尝试一行，只追加
type StepLog struct {
	ID         string         `gorm:"primaryKey;type:varchar(26)" json:"id"`
	RunID      string         `gorm:"type:varchar(26);not null;index" json:"run_id"`
	StepID     string         `gorm:"type:varchar(64);not null" json:"step_id"`
	Agent      string         `gorm:"type:varchar(64);not null" json:"agent"`
	Attempt    int            `gorm:"not null" json:"attempt"`
	Input      datatypes.JSON `json:"input"`
	Output     datatypes.JSON `json:"output"`
	PassedGate bool           `json:"passed_gate"`
	Error      string         `json:"error"`
	DurationMs int64          `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (StepLog) TableName() string {
	return "workflow_step_logs"
}

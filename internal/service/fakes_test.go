package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dushixiang/strike/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		models.OptionsPosition{}, models.TradeRecommendation{}, models.Thesis{},
		models.WorkflowRun{}, models.StepLog{}, models.EquitySnapshot{}, models.WatchlistItem{},
		models.ResearchSummary{}, models.PositionReview{},
	))
	return db
}

type fakeWorkflowStore struct {
	mu        sync.Mutex
	creates   int
	completes []models.WorkflowRunStatus
	logs      []*models.StepLog
}

func (s *fakeWorkflowStore) CreateWorkflowRun(ctx context.Context, workflowID, trigger string, input any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	return fmt.Sprintf("run-%d", s.creates), nil
}

func (s *fakeWorkflowStore) CompleteWorkflowRun(ctx context.Context, runID string, status models.WorkflowRunStatus, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completes = append(s.completes, status)
	return nil
}

func (s *fakeWorkflowStore) LogStep(ctx context.Context, log *models.StepLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

func (s *fakeWorkflowStore) logsFor(stepID string) int {
	n := 0
	for _, l := range s.logs {
		if l.StepID == stepID {
			n++
		}
	}
	return n
}

type escalation struct {
	workflow string
	stepID   string
	payload  any
	errText  string
}

type fakeNotifier struct {
	mu          sync.Mutex
	sent        []string
	escalations []escalation
	recs        []*models.TradeRecommendation
}

func (n *fakeNotifier) Send(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, text)
	return nil
}

func (n *fakeNotifier) Escalate(ctx context.Context, workflowName, stepID string, payload any, errText string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.escalations = append(n.escalations, escalation{workflowName, stepID, payload, errText})
	return nil
}

func (n *fakeNotifier) SendRecommendation(ctx context.Context, rec *models.TradeRecommendation, thesis *models.Thesis) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recs = append(n.recs, rec)
	return nil
}

// funcAgent 以函数实现 Agent，记录调用次数
type funcAgent struct {
	mu    sync.Mutex
	calls []AgentCall
	fn    func(call AgentCall, n int) (any, error)
}

func (a *funcAgent) Execute(ctx context.Context, call AgentCall) (any, error) {
	a.mu.Lock()
	a.calls = append(a.calls, call)
	n := len(a.calls)
	a.mu.Unlock()
	return a.fn(call, n)
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

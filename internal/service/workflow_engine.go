package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dushixiang/strike/internal/models"
	"go.uber.org/zap"
)

var ErrUnknownAgent = errors.New("agent not registered")

// OnFail 步骤重试耗尽后的处理策略
type OnFail string

const (
	OnFailRetry    OnFail = "retry" // 重试耗尽后等同 abort
	OnFailEscalate OnFail = "escalate"
	OnFailAbort    OnFail = "abort"
)

// Schema 步骤输出的结构定义，New 返回待填充的指针
type Schema struct {
	Name string
	New  func() any
}

// SchemaOf 根据类型生成 Schema
func SchemaOf[T any](name string) Schema {
	return Schema{Name: name, New: func() any { return new(T) }}
}

// Gate 将强类型校验函数包装为步骤门禁，类型不匹配视为未通过
func Gate[T any](fn func(*T) bool) func(any) bool {
	return func(v any) bool {
		t, ok := v.(*T)
		if !ok || t == nil {
			return false
		}
		return fn(t)
	}
}

// Step 工作流中的一步
type Step struct {
	ID         string
	Agent      string
	Output     Schema
	Gate       func(any) bool
	MaxRetries int
	OnFail     OnFail
}

// Workflow 有序步骤列表
type Workflow struct {
	ID    string
	Name  string
	Steps []Step
}

// AgentCall 单次 Agent 调用参数，Extra 为本次运行的显式上下文
type AgentCall struct {
	StepID string
	Input  any
	Output Schema
	Extra  map[string]any
}

// Agent 步骤执行者
type Agent interface {
	Execute(ctx context.Context, call AgentCall) (any, error)
}

// Notifier 通知
type Notifier interface {
	Send(ctx context.Context, text string) error
	Escalate(ctx context.Context, workflowName, stepID string, payload any, errText string) error
	SendRecommendation(ctx context.Context, rec *models.TradeRecommendation, thesis *models.Thesis) error
}

// RunResult 工作流成功结束时的结果
type RunResult struct {
	RunID       string         `json:"run_id"`
	FinalOutput any            `json:"final_output"`
	StepOutputs map[string]any `json:"step_outputs"`
}

type runOptions struct {
	trigger string
	extra   map[string]any
}

type RunOption func(*runOptions)

// WithTrigger 记录触发来源，如 premarket / manual / api
func WithTrigger(trigger string) RunOption {
	return func(o *runOptions) {
		o.trigger = trigger
	}
}

// WithAgentContext 传给每个 Agent 的附加上下文
func WithAgentContext(extra map[string]any) RunOption {
	return func(o *runOptions) {
		o.extra = extra
	}
}

type stepResult struct {
	output any
	passed bool
	err    string
}

// WorkflowEngine 顺序执行带门禁的步骤
type WorkflowEngine struct {
	logger   *zap.Logger
	store    WorkflowStore
	notifier Notifier

	mu     sync.RWMutex
	agents map[string]Agent
}

func NewWorkflowEngine(store WorkflowStore, notifier Notifier, logger *zap.Logger) *WorkflowEngine {
	return &WorkflowEngine{
		logger:   logger,
		store:    store,
		notifier: notifier,
		agents:   make(map[string]Agent),
	}
}

func (e *WorkflowEngine) RegisterAgent(name string, agent Agent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agents[name] = agent
}

// resolveAgents 在创建运行记录前检查所有 Agent 是否已注册
func (e *WorkflowEngine) resolveAgents(wf *Workflow) (map[string]Agent, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	resolved := make(map[string]Agent, len(wf.Steps))
	for _, step := range wf.Steps {
		agent, ok := e.agents[step.Agent]
		if !ok {
			return nil, fmt.Errorf("%w: %q (workflow %s, step %s)", ErrUnknownAgent, step.Agent, wf.ID, step.ID)
		}
		resolved[step.Agent] = agent
	}
	return resolved, nil
}

// Run 执行工作流，任一步骤最终未通过门禁时返回 nil, nil
func (e *WorkflowEngine) Run(ctx context.Context, wf *Workflow, input any, opts ...RunOption) (*RunResult, error) {
	options := runOptions{trigger: "manual"}
	for _, opt := range opts {
		opt(&options)
	}

	agents, err := e.resolveAgents(wf)
	if err != nil {
		return nil, err
	}

	runID, err := e.store.CreateWorkflowRun(ctx, wf.ID, options.trigger, input)
	if err != nil {
		return nil, err
	}
	e.logger.Info("workflow started",
		zap.String("workflow", wf.ID),
		zap.String("run_id", runID),
		zap.String("trigger", options.trigger))

	current := input
	outputs := make(map[string]any, len(wf.Steps))

	for i, step := range wf.Steps {
		e.logger.Info(fmt.Sprintf("[STEP %d/%d] %s", i+1, len(wf.Steps), step.ID),
			zap.String("run_id", runID),
			zap.String("agent", step.Agent))

		result := e.executeStep(ctx, runID, step, agents[step.Agent], current, options.extra)
		if result.passed {
			current = result.output
			outputs[step.ID] = result.output
			continue
		}

		e.logger.Warn("workflow step failed",
			zap.String("workflow", wf.ID),
			zap.String("run_id", runID),
			zap.String("step", step.ID),
			zap.String("on_fail", string(step.OnFail)),
			zap.String("error", result.err))

		if step.OnFail == OnFailEscalate && e.notifier != nil {
			errText := result.err
			if errText == "" {
				errText = "output failed validation gate"
			}
			if err := e.notifier.Escalate(ctx, wf.Name, step.ID, current, errText); err != nil {
				e.logger.Error("escalation failed", zap.String("run_id", runID), zap.Error(err))
			}
		}
		if err := e.store.CompleteWorkflowRun(ctx, runID, models.WorkflowRunFailed, map[string]any{
			"failed_step": step.ID,
			"error":       result.err,
		}); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := e.store.CompleteWorkflowRun(ctx, runID, models.WorkflowRunCompleted, current); err != nil {
		return nil, err
	}
	e.logger.Info("workflow completed", zap.String("workflow", wf.ID), zap.String("run_id", runID))

	return &RunResult{
		RunID:       runID,
		FinalOutput: current,
		StepOutputs: outputs,
	}, nil
}

// executeStep 最多尝试 MaxRetries+1 次，每次尝试都写一条步骤日志
func (e *WorkflowEngine) executeStep(ctx context.Context, runID string, step Step, agent Agent, input any, extra map[string]any) stepResult {
	var last stepResult
	attempts := step.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			last = stepResult{err: err.Error()}
			break
		}

		start := time.Now()
		output, err := agent.Execute(ctx, AgentCall{
			StepID: step.ID,
			Input:  input,
			Output: step.Output,
			Extra:  extra,
		})
		result := stepResult{output: output}
		if err != nil {
			result.output = nil
			result.err = err.Error()
		} else {
			result.passed = step.Gate == nil || step.Gate(output)
		}
		duration := time.Since(start)

		stepLog := &models.StepLog{
			RunID:      runID,
			StepID:     step.ID,
			Agent:      step.Agent,
			Attempt:    attempt,
			Input:      snapshot(input),
			Output:     snapshot(result.output),
			PassedGate: result.passed,
			Error:      result.err,
			DurationMs: duration.Milliseconds(),
		}
		if logErr := e.store.LogStep(ctx, stepLog); logErr != nil {
			e.logger.Error("failed to log step", zap.String("run_id", runID), zap.String("step", step.ID), zap.Error(logErr))
		}

		if result.passed {
			return result
		}
		e.logger.Warn("step attempt did not pass",
			zap.String("step", step.ID),
			zap.Int("attempt", attempt),
			zap.Duration("duration", duration),
			zap.String("error", result.err))
		last = result
	}
	return last
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dushixiang/strike/pkg/nostd"
	"go.uber.org/zap"
)

// normalizer 输出在结构校验前的归一化
type normalizer interface {
	Normalize() error
}

// LLMAgent 渲染提示词 → 调用模型 → 解析 JSON → 结构校验
type LLMAgent struct {
	name      string
	llm       LLMClient
	prompts   *PromptService
	validator *nostd.CustomValidator
	logger    *zap.Logger
}

func NewLLMAgent(name string, llm LLMClient, prompts *PromptService, validator *nostd.CustomValidator, logger *zap.Logger) *LLMAgent {
	return &LLMAgent{
		name:      name,
		llm:       llm,
		prompts:   prompts,
		validator: validator,
		logger:    logger.With(zap.String("agent", name)),
	}
}

func (a *LLMAgent) Execute(ctx context.Context, call AgentCall) (any, error) {
	if call.Output.New == nil {
		return nil, fmt.Errorf("step %s has no output schema", call.StepID)
	}
	prompt, err := a.prompts.Render(a.name, call.Input, call.Output, call.Extra)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	text, err := a.llm.Complete(ctx, a.prompts.System(a.name), prompt)
	if err != nil {
		return nil, err
	}

	output := call.Output.New()
	if err := json.Unmarshal([]byte(extractJSON(text)), output); err != nil {
		return nil, fmt.Errorf("decode %s: %w", call.Output.Name, err)
	}
	if n, ok := output.(normalizer); ok {
		if err := n.Normalize(); err != nil {
			return nil, fmt.Errorf("normalize %s: %w", call.Output.Name, err)
		}
	}
	if a.validator != nil {
		if err := a.validator.Validate(output); err != nil {
			return nil, fmt.Errorf("validate %s: %w", call.Output.Name, err)
		}
	}

	a.logger.Info("agent completed",
		zap.String("step", call.StepID),
		zap.String("schema", call.Output.Name),
		zap.Int("prompt_len", len(prompt)),
		zap.Int("response_len", len(text)),
		zap.Duration("elapsed", time.Since(start)))
	return output, nil
}

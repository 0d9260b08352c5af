package service

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasttemplate"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

// agentRoles 各 agent 的系统角色
var agentRoles = map[string]string{
	AgentResearcher:  "an equity options research analyst who gathers news, technicals, flow and catalysts",
	AgentAnalyst:     "an options strategist who scores trade theses and proposes specific contracts",
	AgentRiskChecker: "a risk officer who enforces position sizing and portfolio exposure limits",
	AgentReviewer:    "a portfolio manager reviewing open options positions",
}

// PromptService 按 agent 渲染提示词
type PromptService struct {
	templates map[string]*fasttemplate.Template
	now       func() time.Time
}

func NewPromptService() (*PromptService, error) {
	s := &PromptService{
		templates: make(map[string]*fasttemplate.Template, len(agentRoles)),
		now:       time.Now,
	}
	for name := range agentRoles {
		raw, err := promptTemplates.ReadFile("templates/" + name + ".txt")
		if err != nil {
			return nil, fmt.Errorf("load prompt template %s: %w", name, err)
		}
		tpl, err := fasttemplate.NewTemplate(string(raw), "{{", "}}")
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
		}
		s.templates[name] = tpl
	}
	return s, nil
}

// System 系统指令
func (s *PromptService) System(agent string) string {
	role, ok := agentRoles[agent]
	if !ok {
		role = "a trading assistant"
	}
	return fmt.Sprintf("You are %s. Always answer with a single JSON object and nothing else.", role)
}

// Render 渲染用户提示词，extra 为本次运行附带的上下文
func (s *PromptService) Render(agent string, input any, output Schema, extra map[string]any) (string, error) {
	tpl, ok := s.templates[agent]
	if !ok {
		return "", fmt.Errorf("no prompt template for agent %q", agent)
	}

	inputJSON, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal agent input: %w", err)
	}

	return tpl.ExecuteString(map[string]interface{}{
		"date":    s.now().Format(time.DateOnly),
		"ticker":  tickerOf(input),
		"input":   string(inputJSON),
		"schema":  describeSchema(output),
		"context": describeContext(extra),
	}), nil
}

// describeSchema 用零值 JSON 作为输出结构示例
func describeSchema(output Schema) string {
	if output.New == nil {
		return output.Name
	}
	example, err := json.MarshalIndent(output.New(), "", "  ")
	if err != nil {
		return output.Name
	}
	return fmt.Sprintf("the %s structure:\n%s", output.Name, example)
}

func describeContext(extra map[string]any) string {
	if len(extra) == 0 {
		return ""
	}
	b, err := json.MarshalIndent(extra, "", "  ")
	if err != nil {
		return ""
	}
	return "Additional context:\n" + string(b)
}

func tickerOf(input any) string {
	b, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	var probe struct {
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return ""
	}
	return strings.ToUpper(probe.Ticker)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

var ErrEmptyCompletion = errors.New("llm returned empty completion")

// LLMClient 单轮补全，每次调用都是全新上下文
type LLMClient interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// OpenAILLM 基于 openai-go，要求 JSON 输出
type OpenAILLM struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAILLM(client *openai.Client, model string, logger *zap.Logger) *OpenAILLM {
	return &OpenAILLM{client: client, model: model, logger: logger}
}

func (l *OpenAILLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(l.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call OpenAI API: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	l.logger.Debug("openai completion",
		zap.String("model", l.model),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens))
	return resp.Choices[0].Message.Content, nil
}

// GeminiLLM 基于 google genai SDK
type GeminiLLM struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewGeminiLLM(client *genai.Client, model string, logger *zap.Logger) *GeminiLLM {
	return &GeminiLLM{client: client, model: model, logger: logger}
}

func (l *GeminiLLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := l.client.Models.GenerateContent(ctx, l.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("failed to call Gemini API: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// extractJSON 去掉模型可能附带的 markdown 代码块与前后说明
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "}]")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

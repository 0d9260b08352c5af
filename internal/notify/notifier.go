// Package notify 通知扇出：每个渠道并发发送，互不影响
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dushixiang/strike/internal/models"
	"go.uber.org/zap"
)

const maxPayloadChars = 1500

// Channel 单个通知渠道
type Channel interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// MultiNotifier 向所有渠道广播，没有优先级
type MultiNotifier struct {
	logger   *zap.Logger
	channels []Channel
}

func NewMultiNotifier(logger *zap.Logger, channels ...Channel) *MultiNotifier {
	return &MultiNotifier{logger: logger, channels: channels}
}

func (n *MultiNotifier) Channels() []string {
	names := make([]string, 0, len(n.channels))
	for _, ch := range n.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Send 并发发送，只有全部渠道失败才返回错误
func (n *MultiNotifier) Send(ctx context.Context, text string) error {
	if len(n.channels) == 0 {
		return nil
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, ch := range n.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			if err := ch.Send(ctx, text); err != nil {
				n.logger.Warn("notification channel failed", zap.String("channel", ch.Name()), zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
				mu.Unlock()
			}
		}(ch)
	}
	wg.Wait()

	if len(errs) == len(n.channels) {
		return errors.Join(errs...)
	}
	return nil
}

// Escalate 工作流升级人工处理
func (n *MultiNotifier) Escalate(ctx context.Context, workflowName, stepID string, payload any, errText string) error {
	return n.Send(ctx, FormatEscalation(workflowName, stepID, payload, errText))
}

func (n *MultiNotifier) SendRecommendation(ctx context.Context, rec *models.TradeRecommendation, thesis *models.Thesis) error {
	return n.Send(ctx, FormatRecommendation(rec, thesis))
}

func FormatEscalation(workflowName, stepID string, payload any, errText string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Escalation: %s*\nStep: `%s`\nError: %s", workflowName, stepID, errText))
	if payload != nil {
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			data = []byte(fmt.Sprintf("%+v", payload))
		}
		text := string(data)
		if len(text) > maxPayloadChars {
			text = text[:maxPayloadChars] + "\n..."
		}
		sb.WriteString("\nContext:\n```\n")
		sb.WriteString(text)
		sb.WriteString("\n```")
	}
	return sb.String()
}

func FormatRecommendation(rec *models.TradeRecommendation, thesis *models.Thesis) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*New Recommendation: %s %s%s %s*\n",
		rec.Ticker, rec.Strike.String(), rec.Right.Letter(), rec.Expiry.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("ID: `%s`\n", rec.ID))
	if thesis != nil {
		sb.WriteString(fmt.Sprintf("Direction: %s | Score: %.1f\n", thesis.Direction, thesis.OverallScore))
		if thesis.ThesisText != "" {
			sb.WriteString("Thesis: " + thesis.ThesisText + "\n")
		}
	}
	sb.WriteString(fmt.Sprintf("Entry: $%s - $%s\n", rec.EntryPriceLow.StringFixed(2), rec.EntryPriceHigh.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Size: %s%% ($%s)\n", rec.PositionSizePct.StringFixed(2), rec.PositionSizeUSD.StringFixed(2)))
	if len(rec.ExitTargets) > 0 {
		sb.WriteString("Exit: " + strings.Join(rec.ExitTargets, ", ") + "\n")
	}
	if rec.StopLoss != "" {
		sb.WriteString("Stop: " + rec.StopLoss + "\n")
	}
	sb.WriteString(fmt.Sprintf("Reply `/approve %s` or `/reject %s <reason>`", rec.ID, rec.ID))
	return sb.String()
}

// LogChannel 未配置任何外部渠道时的兜底
type LogChannel struct {
	logger *zap.Logger
}

func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string {
	return "log"
}

func (c *LogChannel) Send(ctx context.Context, text string) error {
	c.logger.Info("notification", zap.String("text", text))
	return nil
}

// FormatStatus /status 回复
func FormatStatus(positions []models.OptionsPosition, pending []models.TradeRecommendation) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Open positions: %d*\n", len(positions)))
	for i := range positions {
		pos := &positions[i]
		sb.WriteString(fmt.Sprintf("• %dx %s @ $%s, now $%s (%s%%)\n",
			pos.Quantity, pos.Describe(), pos.AvgFillPrice.StringFixed(2),
			pos.CurrentPrice.StringFixed(2), pos.PnlPercent().StringFixed(1)))
	}
	sb.WriteString(fmt.Sprintf("*Pending recommendations: %d*", len(pending)))
	for _, rec := range pending {
		sb.WriteString(fmt.Sprintf("\n• `%s` %s %s%s", rec.ID, rec.Ticker, rec.Strike.String(), rec.Right.Letter()))
	}
	return sb.String()
}

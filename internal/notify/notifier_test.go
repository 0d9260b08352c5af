package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dushixiang/strike/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type recordingChannel struct {
	name  string
	err   error
	delay time.Duration

	mu   sync.Mutex
	sent []string
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(ctx context.Context, text string) error {
	time.Sleep(c.delay)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return c.err
}

func TestMultiNotifier_IsolatesFailures(t *testing.T) {
	ok := &recordingChannel{name: "ok"}
	broken := &recordingChannel{name: "broken", err: errors.New("rate limited")}
	n := NewMultiNotifier(zap.NewNop(), broken, ok)

	require.NoError(t, n.Send(context.Background(), "hello"))
	assert.Equal(t, []string{"hello"}, ok.sent)
	assert.Equal(t, []string{"hello"}, broken.sent)
	assert.Equal(t, []string{"broken", "ok"}, n.Channels())
}

func TestMultiNotifier_AllFailed(t *testing.T) {
	a := &recordingChannel{name: "a", err: errors.New("down")}
	b := &recordingChannel{name: "b", err: errors.New("down")}
	n := NewMultiNotifier(zap.NewNop(), a, b)

	err := n.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: down")
	assert.Contains(t, err.Error(), "b: down")
}

func TestMultiNotifier_SendsConcurrently(t *testing.T) {
	slow1 := &recordingChannel{name: "slow1", delay: 100 * time.Millisecond}
	slow2 := &recordingChannel{name: "slow2", delay: 100 * time.Millisecond}
	n := NewMultiNotifier(zap.NewNop(), slow1, slow2)

	start := time.Now()
	require.NoError(t, n.Send(context.Background(), "x"))
	assert.Less(t, time.Since(start), 190*time.Millisecond)
}

func TestMultiNotifier_NoChannels(t *testing.T) {
	assert.NoError(t, NewMultiNotifier(zap.NewNop()).Send(context.Background(), "x"))
}

func TestFormatEscalation(t *testing.T) {
	msg := FormatEscalation("Options Trade Thesis", "verify", map[string]any{"approved": false}, "output failed validation gate")
	assert.Contains(t, msg, "*Escalation: Options Trade Thesis*")
	assert.Contains(t, msg, "Step: `verify`")
	assert.Contains(t, msg, `"approved": false`)

	assert.NotContains(t, FormatEscalation("wf", "s", nil, "boom"), "Context:")
}

func TestFormatRecommendation(t *testing.T) {
	rec := &models.TradeRecommendation{
		ID:              "01HREC",
		Ticker:          "NVDA",
		Right:           models.OptionRightCall,
		Strike:          decimal.NewFromInt(140),
		Expiry:          time.Date(2026, 4, 17, 0, 0, 0, 0, time.UTC),
		EntryPriceLow:   decimal.RequireFromString("4.1"),
		EntryPriceHigh:  decimal.RequireFromString("4.4"),
		PositionSizePct: decimal.RequireFromString("1.5"),
		PositionSizeUSD: decimal.NewFromInt(3000),
		ExitTargets:     datatypes.JSONSlice[string]{"+50% sell half", "+100% close"},
		StopLoss:        "-50% hard stop",
	}
	msg := FormatRecommendation(rec, &models.Thesis{Direction: "bullish", OverallScore: 7.7})
	assert.Contains(t, msg, "NVDA 140C 2026-04-17")
	assert.Contains(t, msg, "Score: 7.7")
	assert.Contains(t, msg, "Entry: $4.10 - $4.40")
	assert.Contains(t, msg, "Size: 1.50% ($3000.00)")
	assert.Contains(t, msg, "/approve 01HREC")
}

func TestFormatStatus(t *testing.T) {
	positions := []models.OptionsPosition{{
		Ticker:        "AAPL",
		Right:         models.OptionRightPut,
		Strike:        decimal.NewFromInt(150),
		Expiry:        time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC),
		Quantity:      2,
		AvgFillPrice:  decimal.NewFromInt(2),
		CurrentPrice:  decimal.NewFromInt(3),
		CostBasis:     decimal.NewFromInt(400),
		UnrealizedPnl: decimal.NewFromInt(200),
	}}
	msg := FormatStatus(positions, nil)
	assert.Contains(t, msg, "*Open positions: 1*")
	assert.Contains(t, msg, "2x AAPL 150P 2026-05-15 @ $2.00, now $3.00 (50.0%)")
	assert.Contains(t, msg, "*Pending recommendations: 0*")
}

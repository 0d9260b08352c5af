package rules

import (
	"testing"
	"time"

	"github.com/dushixiang/strike/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)

func makePosition(pnl, costBasis string, dte, quantity int) *models.OptionsPosition {
	return &models.OptionsPosition{
		ID:            "pos-1",
		Ticker:        "NVDA",
		Right:         models.OptionRightCall,
		Strike:        decimal.NewFromInt(140),
		Expiry:        testNow.AddDate(0, 0, dte),
		Quantity:      quantity,
		AvgFillPrice:  decimal.RequireFromString("9.00"),
		CurrentPrice:  decimal.RequireFromString("9.00"),
		CostBasis:     decimal.RequireFromString(costBasis),
		UnrealizedPnl: decimal.RequireFromString(pnl),
		Status:        models.PositionStatusOpen,
	}
}

func TestCheckStopRules(t *testing.T) {
	cfg := DefaultManagerConfig()

	tests := []struct {
		name   string
		pos    *models.OptionsPosition
		reason models.CloseReason
	}{
		{name: "hard stop at 60% loss", pos: makePosition("-600", "1000", 30, 1), reason: models.CloseReasonHardStop},
		{name: "hard stop exactly at threshold", pos: makePosition("-500", "1000", 30, 1), reason: models.CloseReasonHardStop},
		{name: "no stop at 30% loss", pos: makePosition("-300", "1000", 30, 1)},
		{name: "time stop near expiry and losing", pos: makePosition("-100", "1000", 5, 1), reason: models.CloseReasonTimeStop},
		{name: "time stop on dte boundary", pos: makePosition("-1", "1000", 7, 1), reason: models.CloseReasonTimeStop},
		{name: "winner rides to expiry", pos: makePosition("200", "1000", 5, 1)},
		{name: "flat position near expiry", pos: makePosition("0", "1000", 2, 1)},
		{name: "both breached resolves to hard stop", pos: makePosition("-700", "1000", 3, 2), reason: models.CloseReasonHardStop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := CheckStopRules(tt.pos, cfg, testNow)
			if tt.reason == "" {
				assert.Nil(t, action)
				return
			}
			require.NotNil(t, action)
			assert.True(t, action.CloseAll)
			assert.Equal(t, tt.reason, action.Reason)
		})
	}
}

func TestCheckProfitTargets(t *testing.T) {
	cfg := DefaultManagerConfig()

	t.Run("target 2 closes all", func(t *testing.T) {
		action := CheckProfitTargets(makePosition("1100", "1000", 30, 4), cfg)
		require.NotNil(t, action)
		assert.True(t, action.CloseAll)
		assert.Equal(t, models.CloseReasonProfitTarget, action.Reason)
	})

	t.Run("target 1 sells half of four", func(t *testing.T) {
		pos := makePosition("2160", "3600", 30, 4)
		action := CheckProfitTargets(pos, cfg)
		require.NotNil(t, action)
		assert.False(t, action.CloseAll)
		assert.Equal(t, 2, action.Quantity)
		assert.Equal(t, 2, action.SellQuantity(pos.Quantity))
	})

	t.Run("target 1 floors odd quantity", func(t *testing.T) {
		action := CheckProfitTargets(makePosition("600", "1000", 30, 3), cfg)
		require.NotNil(t, action)
		assert.Equal(t, 1, action.Quantity)
	})

	t.Run("single contract never partially closes", func(t *testing.T) {
		assert.Nil(t, CheckProfitTargets(makePosition("600", "1000", 30, 1), cfg))
	})

	t.Run("below target 1", func(t *testing.T) {
		assert.Nil(t, CheckProfitTargets(makePosition("400", "1000", 30, 4), cfg))
	})

	t.Run("zero cost basis", func(t *testing.T) {
		assert.Nil(t, CheckProfitTargets(makePosition("400", "0", 30, 4), cfg))
	})
}

func TestCheckAllocation(t *testing.T) {
	cfg := DefaultManagerConfig()
	d := decimal.RequireFromString

	t.Run("within cap", func(t *testing.T) {
		ok, reason := CheckAllocation(d("2000"), d("5000"), d("200000"), cfg)
		assert.True(t, ok)
		assert.Equal(t, "Approved: 35.0% utilized, $13000 remaining capacity", reason)
	})

	t.Run("over cap", func(t *testing.T) {
		ok, reason := CheckAllocation(d("5000"), d("18000"), d("200000"), cfg)
		assert.False(t, ok)
		assert.Equal(t, "Rejected: would be 11.5% (current 9.0%, max 10%)", reason)
	})

	t.Run("exactly at cap", func(t *testing.T) {
		ok, _ := CheckAllocation(d("2000"), d("18000"), d("200000"), cfg)
		assert.True(t, ok)
	})

	t.Run("zero equity", func(t *testing.T) {
		ok, reason := CheckAllocation(d("100"), d("0"), d("0"), cfg)
		assert.False(t, ok)
		assert.Contains(t, reason, "equity is zero or negative")
	})

	t.Run("negative equity", func(t *testing.T) {
		ok, _ := CheckAllocation(d("100"), d("0"), d("-5"), cfg)
		assert.False(t, ok)
	})
}

func TestContractQuantity(t *testing.T) {
	d := decimal.RequireFromString
	assert.Equal(t, 4, ContractQuantity(d("4000"), d("9.50")))
	assert.Equal(t, 1, ContractQuantity(d("500"), d("9.50")))
	assert.Equal(t, 1, ContractQuantity(d("500"), d("0")))
}

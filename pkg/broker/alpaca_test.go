package broker

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTrading struct {
	accountErrs []error
	positions   []alpaca.Position
	orders      []*alpaca.Order // GetOrder 依次返回
	placed      []alpaca.PlaceOrderRequest
	cancelled   []string
}

func (f *fakeTrading) GetAccount() (*alpaca.Account, error) {
	if len(f.accountErrs) > 0 {
		err := f.accountErrs[0]
		f.accountErrs = f.accountErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &alpaca.Account{
		AccountNumber: "PA123",
		Equity:        decimal.NewFromInt(200000),
		BuyingPower:   decimal.NewFromInt(400000),
		Cash:          decimal.NewFromInt(150000),
	}, nil
}

func (f *fakeTrading) GetPositions() ([]alpaca.Position, error) {
	return f.positions, nil
}

func (f *fakeTrading) PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error) {
	f.placed = append(f.placed, req)
	return &alpaca.Order{ID: "ord-1", Status: "new"}, nil
}

func (f *fakeTrading) GetOrder(orderID string) (*alpaca.Order, error) {
	if len(f.orders) == 0 {
		return &alpaca.Order{ID: orderID, Status: "new"}, nil
	}
	o := f.orders[0]
	if len(f.orders) > 1 {
		f.orders = f.orders[1:]
	}
	return o, nil
}

func (f *fakeTrading) CancelOrder(orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

type fakeOptionData struct {
	snapshots []*marketdata.OptionSnapshot
	calls     int
}

func (f *fakeOptionData) GetOptionSnapshot(symbol string, req marketdata.GetOptionSnapshotRequest) (*marketdata.OptionSnapshot, error) {
	f.calls++
	if len(f.snapshots) == 0 {
		return nil, errors.New("no data")
	}
	s := f.snapshots[0]
	if len(f.snapshots) > 1 {
		f.snapshots = f.snapshots[1:]
	}
	return s, nil
}

func fastOptions() AlpacaOptions {
	return AlpacaOptions{
		ConnectMaxRetries: 3,
		ConnectBackoff:    time.Millisecond,
		ConnectBudget:     time.Second,
		OrderTimeout:      50 * time.Millisecond,
		QuoteTimeout:      50 * time.Millisecond,
		PollInterval:      5 * time.Millisecond,
	}
}

func connectedBroker(t *testing.T, trading *fakeTrading, data *fakeOptionData) *AlpacaBroker {
	b := newAlpacaBrokerWithAPI(fastOptions(), trading, data, zap.NewNop())
	require.NoError(t, b.Connect(context.Background()))
	return b
}

func TestAlpacaBroker_ConnectRetries(t *testing.T) {
	trading := &fakeTrading{accountErrs: []error{errors.New("boom"), errors.New("boom")}}
	b := newAlpacaBrokerWithAPI(fastOptions(), trading, &fakeOptionData{}, zap.NewNop())
	require.NoError(t, b.Connect(context.Background()))

	trading = &fakeTrading{accountErrs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	b = newAlpacaBrokerWithAPI(fastOptions(), trading, &fakeOptionData{}, zap.NewNop())
	err := b.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnectBudgetExhausted)

	_, err = b.AccountSummary(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestAlpacaBroker_Portfolio(t *testing.T) {
	price := decimal.RequireFromString("11.5")
	pl := decimal.RequireFromString("500")
	trading := &fakeTrading{positions: []alpaca.Position{
		{
			Symbol:        "NVDA250221C00140000",
			AssetClass:    alpaca.AssetClass("us_option"),
			Side:          "long",
			Qty:           decimal.NewFromInt(2),
			AvgEntryPrice: decimal.RequireFromString("9"),
			CurrentPrice:  &price,
			UnrealizedPL:  &pl,
		},
		{
			Symbol:        "AAPL",
			AssetClass:    alpaca.AssetClass("us_equity"),
			Side:          "long",
			Qty:           decimal.NewFromInt(10),
			AvgEntryPrice: decimal.NewFromInt(200),
		},
	}}
	b := connectedBroker(t, trading, &fakeOptionData{})

	items, err := b.Portfolio(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].IsLongOption())
	assert.Equal(t, "NVDA", items[0].Symbol)
	assert.Equal(t, "NVDA250221C00140000", items[0].BrokerRefID)
	assert.Equal(t, "call", items[0].Right)
	assert.True(t, price.Equal(items[0].MarketPrice))
	assert.False(t, items[1].IsLongOption())
}

func TestAlpacaBroker_GetOptionQuote(t *testing.T) {
	data := &fakeOptionData{snapshots: []*marketdata.OptionSnapshot{
		{LatestQuote: &marketdata.OptionQuote{BidPrice: math.NaN(), AskPrice: 0}},
		{
			LatestQuote:       &marketdata.OptionQuote{BidPrice: 2.0, AskPrice: 2.2},
			LatestTrade:       &marketdata.OptionTrade{Price: 2.1},
			ImpliedVolatility: 0.4,
		},
	}}
	b := connectedBroker(t, &fakeTrading{}, data)

	quote, err := b.GetOptionQuote(context.Background(), testContract())
	require.NoError(t, err)
	assert.True(t, quote.Valid())
	assert.Equal(t, "2.10", quote.Mid.StringFixed(2))
	assert.Equal(t, 2, data.calls)
}

func TestAlpacaBroker_GetOptionQuoteTimeout(t *testing.T) {
	data := &fakeOptionData{snapshots: []*marketdata.OptionSnapshot{
		{LatestQuote: &marketdata.OptionQuote{BidPrice: math.Inf(1)}},
	}}
	b := connectedBroker(t, &fakeTrading{}, data)

	quote, err := b.GetOptionQuote(context.Background(), testContract())
	require.NoError(t, err)
	assert.False(t, quote.Valid())
}

func TestAlpacaBroker_PlaceOrderFilled(t *testing.T) {
	avg := decimal.RequireFromString("9.05")
	filledAt := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
	trading := &fakeTrading{orders: []*alpaca.Order{
		{ID: "ord-1", Status: "partially_filled"},
		{ID: "ord-1", Status: "filled", FilledQty: decimal.NewFromInt(3), FilledAvgPrice: &avg, FilledAt: &filledAt},
	}}
	b := connectedBroker(t, trading, &fakeOptionData{})

	fill, err := b.PlaceOrder(context.Background(), OrderRequest{
		Contract:   testContract(),
		Side:       SideBuy,
		Quantity:   3,
		Type:       OrderTypeLimit,
		LimitPrice: decimal.RequireFromString("9.02"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, fill.Quantity)
	assert.True(t, avg.Equal(fill.AvgFillPrice))
	assert.Equal(t, filledAt, fill.FilledAt)
	assert.Equal(t, "NVDA250221C00140000", fill.BrokerRefID)

	require.Len(t, trading.placed, 1)
	assert.Equal(t, alpaca.Limit, trading.placed[0].Type)
	assert.Equal(t, "9.05", trading.placed[0].LimitPrice.StringFixed(2))
}

func TestAlpacaBroker_PlaceOrderTimeoutCancels(t *testing.T) {
	trading := &fakeTrading{}
	b := connectedBroker(t, trading, &fakeOptionData{})

	_, err := b.PlaceOrder(context.Background(), OrderRequest{
		Contract: testContract(),
		Side:     SideSell,
		Quantity: 1,
		Type:     OrderTypeMarket,
	})
	assert.ErrorIs(t, err, ErrFillTimeout)
	assert.Equal(t, []string{"ord-1"}, trading.cancelled)
}

func TestAlpacaBroker_PlaceOrderRejected(t *testing.T) {
	trading := &fakeTrading{orders: []*alpaca.Order{{ID: "ord-1", Status: "rejected"}}}
	b := connectedBroker(t, trading, &fakeOptionData{})

	_, err := b.PlaceOrder(context.Background(), OrderRequest{
		Contract: testContract(),
		Side:     SideSell,
		Quantity: 1,
		Type:     OrderTypeMarket,
	})
	assert.ErrorIs(t, err, ErrOrderRejected)
}

func TestAlpacaBroker_PendingLimitOrder(t *testing.T) {
	trading := &fakeTrading{orders: []*alpaca.Order{{ID: "ord-1", Status: "accepted"}}}
	b := connectedBroker(t, trading, &fakeOptionData{})

	fill, err := b.PlaceOrder(context.Background(), OrderRequest{
		Contract:   testContract(),
		Side:       SideBuy,
		Quantity:   2,
		Type:       OrderTypeLimit,
		LimitPrice: decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	assert.True(t, fill.Pending)
	assert.Empty(t, trading.cancelled)
}

package broker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// tradingAPI *alpaca.Client 中用到的部分
type tradingAPI interface {
	GetAccount() (*alpaca.Account, error)
	GetPositions() ([]alpaca.Position, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
	GetOrder(orderID string) (*alpaca.Order, error)
	CancelOrder(orderID string) error
}

// optionDataAPI *marketdata.Client 中用到的部分
type optionDataAPI interface {
	GetOptionSnapshot(symbol string, req marketdata.GetOptionSnapshotRequest) (*marketdata.OptionSnapshot, error)
}

// AlpacaOptions Alpaca 连接参数
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	BaseURL   string // 纸交易: https://paper-api.alpaca.markets
	DataURL   string

	ConnectMaxRetries int
	ConnectBackoff    time.Duration // 首次重试等待，之后翻倍
	ConnectBudget     time.Duration // 连接总时长上限
	OrderTimeout      time.Duration // 等待订单终态的最长时间
	QuoteTimeout      time.Duration // 等待首批行情的最长时间
	PollInterval      time.Duration
}

func (o *AlpacaOptions) applyDefaults() {
	if o.ConnectMaxRetries <= 0 {
		o.ConnectMaxRetries = 5
	}
	if o.ConnectBackoff <= 0 {
		o.ConnectBackoff = 2 * time.Second
	}
	if o.ConnectBudget <= 0 {
		o.ConnectBudget = 2 * time.Minute
	}
	if o.OrderTimeout <= 0 {
		o.OrderTimeout = 2 * time.Minute
	}
	if o.QuoteTimeout <= 0 {
		o.QuoteTimeout = 8 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
}

// AlpacaBroker 基于 Alpaca 的期权券商实现
// SDK 是同步 REST 调用，这里统一包装成「请求-轮询-快照」的有界等待
type AlpacaBroker struct {
	logger  *zap.Logger
	options AlpacaOptions

	trading tradingAPI
	data    optionDataAPI

	mu        sync.RWMutex
	connected bool
}

var _ BrokerClient = (*AlpacaBroker)(nil)

// NewAlpacaBroker 创建 Alpaca 券商
func NewAlpacaBroker(options AlpacaOptions, logger *zap.Logger) *AlpacaBroker {
	options.applyDefaults()
	return &AlpacaBroker{
		logger:  logger,
		options: options,
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    options.APIKey,
			APISecret: options.APISecret,
			BaseURL:   options.BaseURL,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    options.APIKey,
			APISecret: options.APISecret,
			BaseURL:   options.DataURL,
		}),
	}
}

func newAlpacaBrokerWithAPI(options AlpacaOptions, trading tradingAPI, data optionDataAPI, logger *zap.Logger) *AlpacaBroker {
	options.applyDefaults()
	return &AlpacaBroker{logger: logger, options: options, trading: trading, data: data}
}

// Connect 通过账户探测确认会话可用，指数退避重试
func (b *AlpacaBroker) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.options.ConnectBudget)
	defer cancel()

	backoff := b.options.ConnectBackoff
	var lastErr error
	for attempt := 1; attempt <= b.options.ConnectMaxRetries; attempt++ {
		b.logger.Info("connecting to alpaca",
			zap.String("base_url", b.options.BaseURL),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", b.options.ConnectMaxRetries))

		account, err := b.trading.GetAccount()
		if err == nil {
			b.mu.Lock()
			b.connected = true
			b.mu.Unlock()
			b.logger.Info("alpaca connected",
				zap.String("account", account.AccountNumber),
				zap.Stringer("equity", account.Equity))
			return nil
		}
		lastErr = err

		if attempt == b.options.ConnectMaxRetries {
			break
		}
		b.logger.Warn("alpaca connect attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v (last error: %v)", ErrConnectBudgetExhausted, ctx.Err(), lastErr)
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%w: %d attempts failed, last error: %v", ErrConnectBudgetExhausted, b.options.ConnectMaxRetries, lastErr)
}

func (b *AlpacaBroker) requireConnected() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.connected {
		return ErrNotConnected
	}
	return nil
}

// AccountSummary 账户概要
func (b *AlpacaBroker) AccountSummary(ctx context.Context) (*AccountSummary, error) {
	if err := b.requireConnected(); err != nil {
		return nil, err
	}
	account, err := b.trading.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &AccountSummary{
		NetLiquidation: account.Equity,
		BuyingPower:    account.BuyingPower,
		AvailableFunds: account.Cash,
	}, nil
}

// Portfolio 券商侧全部持仓，期权按 OCC 代码解析合约
func (b *AlpacaBroker) Portfolio(ctx context.Context) ([]*PortfolioItem, error) {
	if err := b.requireConnected(); err != nil {
		return nil, err
	}
	positions, err := b.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	items := make([]*PortfolioItem, 0, len(positions))
	for _, p := range positions {
		item := &PortfolioItem{
			BrokerRefID:   p.Symbol,
			Symbol:        p.Symbol,
			SecType:       SecTypeStock,
			Quantity:      int(p.Qty.IntPart()),
			AvgCost:       p.AvgEntryPrice,
			MarketPrice:   decimalOrZero(p.CurrentPrice),
			UnrealizedPnl: decimalOrZero(p.UnrealizedPL),
		}
		if strings.EqualFold(p.Side, "short") && item.Quantity > 0 {
			item.Quantity = -item.Quantity
		}
		if string(p.AssetClass) == "us_option" {
			contract, err := ParseOCC(p.Symbol)
			if err != nil {
				b.logger.Warn("skip unparseable option position", zap.String("symbol", p.Symbol), zap.Error(err))
				continue
			}
			item.SecType = SecTypeOption
			item.Symbol = contract.Ticker
			item.Right = contract.Right
			item.Strike = contract.Strike
			item.Expiry = contract.Expiry
		}
		items = append(items, item)
	}
	return items, nil
}

// GetOptionQuote 轮询期权快照直到出现有效数据或超过等待上限
func (b *AlpacaBroker) GetOptionQuote(ctx context.Context, contract Contract) (*OptionQuote, error) {
	if err := b.requireConnected(); err != nil {
		return nil, err
	}
	symbol, err := FormatOCC(contract)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.options.QuoteTimeout)
	defer cancel()

	var (
		quote   *OptionQuote
		lastErr error
	)
	for {
		snapshot, err := b.data.GetOptionSnapshot(symbol, marketdata.GetOptionSnapshotRequest{})
		if err != nil {
			lastErr = err
		} else if snapshot != nil {
			quote = quoteFromSnapshot(snapshot)
			if quote.Valid() {
				return quote, nil
			}
		}

		select {
		case <-ctx.Done():
			if quote != nil {
				b.logger.Warn("option quote not ready before timeout",
					zap.String("symbol", symbol),
					zap.Stringer("bid", quote.Bid),
					zap.Stringer("ask", quote.Ask),
					zap.Stringer("last", quote.Last))
				return quote, nil
			}
			if lastErr != nil {
				return nil, fmt.Errorf("failed to get option snapshot %s: %w", symbol, lastErr)
			}
			return nil, fmt.Errorf("%w: no data for %s", ErrInvalidQuote, symbol)
		case <-time.After(b.options.PollInterval):
		}
	}
}

func quoteFromSnapshot(s *marketdata.OptionSnapshot) *OptionQuote {
	q := &OptionQuote{}
	if s.LatestQuote != nil {
		q.Bid = positiveDecimal(s.LatestQuote.BidPrice)
		q.Ask = positiveDecimal(s.LatestQuote.AskPrice)
	}
	if s.LatestTrade != nil {
		q.Last = positiveDecimal(s.LatestTrade.Price)
		q.Volume = int64(s.LatestTrade.Size)
	}
	q.Mid = MidOf(q.Bid, q.Ask, q.Last)
	q.Greeks.IV = finiteOrZero(s.ImpliedVolatility)
	if s.Greeks != nil {
		q.Greeks.Delta = finiteOrZero(s.Greeks.Delta)
		q.Greeks.Gamma = finiteOrZero(s.Greeks.Gamma)
		q.Greeks.Theta = finiteOrZero(s.Greeks.Theta)
		q.Greeks.Vega = finiteOrZero(s.Greeks.Vega)
	}
	return q
}

// PlaceOrder 下单并轮询订单状态，超时后主动撤单
func (b *AlpacaBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*Fill, error) {
	if err := b.requireConnected(); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("invalid order quantity %d", req.Quantity)
	}
	symbol, err := FormatOCC(req.Contract)
	if err != nil {
		return nil, err
	}

	qty := decimal.NewFromInt(int64(req.Quantity))
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:      symbol,
		Qty:         &qty,
		Side:        alpaca.Buy,
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	}
	if req.Side == SideSell {
		orderReq.Side = alpaca.Sell
	}
	var limitPrice decimal.Decimal
	if req.Type == OrderTypeLimit {
		if !req.LimitPrice.IsPositive() {
			return nil, fmt.Errorf("%w: limit price %s", ErrInvalidQuote, req.LimitPrice)
		}
		limitPrice = RoundToTick(req.LimitPrice, req.Side)
		orderReq.Type = alpaca.Limit
		orderReq.LimitPrice = &limitPrice
	}

	order, err := b.trading.PlaceOrder(orderReq)
	if err != nil {
		return nil, fmt.Errorf("failed to place order %s: %w", symbol, err)
	}
	b.logger.Info("order submitted",
		zap.String("order_id", order.ID),
		zap.String("symbol", symbol),
		zap.String("side", req.Side.String()),
		zap.Int("quantity", req.Quantity),
		zap.String("type", req.Type.String()),
		zap.Stringer("limit_price", limitPrice))

	ctx, cancel := context.WithTimeout(ctx, b.options.OrderTimeout)
	defer cancel()

	for {
		switch order.Status {
		case "filled":
			return fillFromOrder(order, symbol, req), nil
		case "canceled", "expired", "rejected", "suspended":
			return nil, fmt.Errorf("%w: %s status %s", ErrOrderRejected, order.ID, order.Status)
		case "accepted", "pending_new":
			// 非交易时段的限价单会停留在 accepted，开盘后成交，由对账接管
			if req.Type == OrderTypeLimit && order.Status == "accepted" {
				b.logger.Info("order accepted, pending fill", zap.String("order_id", order.ID))
				return &Fill{
					OrderID:      order.ID,
					Symbol:       req.Contract.Ticker,
					Side:         req.Side,
					Quantity:     req.Quantity,
					AvgFillPrice: limitPrice,
					Commission:   decimal.Zero,
					FilledAt:     time.Now(),
					BrokerRefID:  symbol,
					Pending:      true,
				}, nil
			}
		}

		select {
		case <-ctx.Done():
			if cancelErr := b.trading.CancelOrder(order.ID); cancelErr != nil {
				b.logger.Error("failed to cancel timed out order", zap.String("order_id", order.ID), zap.Error(cancelErr))
			}
			return nil, fmt.Errorf("%w: order %s last status %s, cancelled", ErrFillTimeout, order.ID, order.Status)
		case <-time.After(b.options.PollInterval):
		}

		latest, err := b.trading.GetOrder(order.ID)
		if err != nil {
			b.logger.Warn("failed to poll order status", zap.String("order_id", order.ID), zap.Error(err))
			continue
		}
		order = latest
	}
}

func fillFromOrder(order *alpaca.Order, symbol string, req OrderRequest) *Fill {
	fill := &Fill{
		OrderID:      order.ID,
		Symbol:       req.Contract.Ticker,
		Side:         req.Side,
		Quantity:     int(order.FilledQty.IntPart()),
		AvgFillPrice: decimalOrZero(order.FilledAvgPrice),
		Commission:   decimal.Zero,
		FilledAt:     time.Now(),
		BrokerRefID:  symbol,
	}
	if fill.Quantity == 0 {
		fill.Quantity = req.Quantity
	}
	if order.FilledAt != nil {
		fill.FilledAt = *order.FilledAt
	}
	return fill
}

// CancelOrder 撤单
func (b *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	if err := b.requireConnected(); err != nil {
		return err
	}
	if err := b.trading.CancelOrder(orderID); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	b.logger.Info("order cancelled", zap.String("order_id", orderID))
	return nil
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func finiteOrZero(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// positiveDecimal NaN、Inf 与非正数统一视为无数据
func positiveDecimal(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

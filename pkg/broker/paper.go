package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	paperCommissionPerContract = decimal.RequireFromString("0.65")
	contractMultiplier         = decimal.NewFromInt(100)
)

type paperHolding struct {
	contract   Contract
	quantity   int
	avgCost    decimal.Decimal
	realized   decimal.Decimal
	occSymbol  string
	lastFillAt time.Time
}

// PaperBroker 模拟券商，记录自身成交，让对账看到一致的持仓
type PaperBroker struct {
	logger *zap.Logger

	mu       sync.RWMutex
	cash     decimal.Decimal
	holdings map[string]*paperHolding // occ -> holding
	marks    map[string]decimal.Decimal
	orderSeq int64
}

var _ BrokerClient = (*PaperBroker)(nil)

// NewPaperBroker 创建模拟券商
func NewPaperBroker(initialEquity decimal.Decimal, logger *zap.Logger) *PaperBroker {
	return &PaperBroker{
		logger:   logger,
		cash:     initialEquity,
		holdings: make(map[string]*paperHolding),
		marks:    make(map[string]decimal.Decimal),
		orderSeq: 1000000,
	}
}

func (p *PaperBroker) Connect(ctx context.Context) error {
	p.logger.Info("paper broker connected (simulated)", zap.Stringer("cash", p.cash))
	return nil
}

// SetMark 设置合约的模拟价格
func (p *PaperBroker) SetMark(contract Contract, price decimal.Decimal) error {
	symbol, err := FormatOCC(contract)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbol] = price
	return nil
}

// markLocked 调用方需持有锁
func (p *PaperBroker) markLocked(symbol string) decimal.Decimal {
	if mark, ok := p.marks[symbol]; ok {
		return mark
	}
	if h, ok := p.holdings[symbol]; ok {
		return h.avgCost
	}
	return decimal.Zero
}

func (p *PaperBroker) AccountSummary(ctx context.Context) (*AccountSummary, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	equity := p.cash
	for symbol, h := range p.holdings {
		equity = equity.Add(p.markLocked(symbol).Mul(decimal.NewFromInt(int64(h.quantity))).Mul(contractMultiplier))
	}
	return &AccountSummary{
		NetLiquidation: equity,
		BuyingPower:    p.cash,
		AvailableFunds: p.cash,
	}, nil
}

func (p *PaperBroker) Portfolio(ctx context.Context) ([]*PortfolioItem, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	items := make([]*PortfolioItem, 0, len(p.holdings))
	for symbol, h := range p.holdings {
		mark := p.markLocked(symbol)
		qty := decimal.NewFromInt(int64(h.quantity))
		items = append(items, &PortfolioItem{
			BrokerRefID:   symbol,
			Symbol:        h.contract.Ticker,
			SecType:       SecTypeOption,
			Right:         h.contract.Right,
			Strike:        h.contract.Strike,
			Expiry:        h.contract.Expiry,
			Quantity:      h.quantity,
			AvgCost:       h.avgCost,
			MarketPrice:   mark,
			UnrealizedPnl: mark.Sub(h.avgCost).Mul(qty).Mul(contractMultiplier),
			RealizedPnl:   h.realized,
		})
	}
	return items, nil
}

// GetOptionQuote 以模拟价格为中心构造 ±2.5% 的买卖价，无价格时返回零报价
func (p *PaperBroker) GetOptionQuote(ctx context.Context, contract Contract) (*OptionQuote, error) {
	symbol, err := FormatOCC(contract)
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	mark := p.markLocked(symbol)
	p.mu.RUnlock()

	if !mark.IsPositive() {
		return &OptionQuote{}, nil
	}
	spread := mark.Mul(decimal.RequireFromString("0.025"))
	return &OptionQuote{
		Bid:          mark.Sub(spread),
		Ask:          mark.Add(spread),
		Last:         mark,
		Mid:          mark,
		Volume:       500,
		OpenInterest: 2000,
		Greeks:       Greeks{IV: 0.35, Delta: 0.45, Gamma: 0.02, Theta: -0.15, Vega: 0.20},
	}, nil
}

// PlaceOrder 限价单按限价成交，市价单按模拟价格成交
func (p *PaperBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*Fill, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("invalid order quantity %d", req.Quantity)
	}
	symbol, err := FormatOCC(req.Contract)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	price := req.LimitPrice
	if req.Type == OrderTypeMarket || !price.IsPositive() {
		price = p.markLocked(symbol)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: no price for %s", ErrInvalidQuote, symbol)
	}

	qty := decimal.NewFromInt(int64(req.Quantity))
	notional := price.Mul(qty).Mul(contractMultiplier)
	commission := paperCommissionPerContract.Mul(qty)

	switch req.Side {
	case SideBuy:
		h, ok := p.holdings[symbol]
		if !ok {
			h = &paperHolding{contract: req.Contract, occSymbol: symbol}
			p.holdings[symbol] = h
		}
		total := h.avgCost.Mul(decimal.NewFromInt(int64(h.quantity))).Add(price.Mul(qty))
		h.quantity += req.Quantity
		h.avgCost = total.Div(decimal.NewFromInt(int64(h.quantity)))
		h.lastFillAt = time.Now()
		p.cash = p.cash.Sub(notional).Sub(commission)
	case SideSell:
		h, ok := p.holdings[symbol]
		if !ok || h.quantity < req.Quantity {
			return nil, fmt.Errorf("%w: insufficient paper holding for %s", ErrOrderRejected, symbol)
		}
		h.realized = h.realized.Add(price.Sub(h.avgCost).Mul(qty).Mul(contractMultiplier))
		h.quantity -= req.Quantity
		p.cash = p.cash.Add(notional).Sub(commission)
		if h.quantity == 0 {
			delete(p.holdings, symbol)
		}
	default:
		return nil, fmt.Errorf("unknown order side %q", req.Side)
	}

	p.orderSeq++
	fill := &Fill{
		OrderID:      fmt.Sprintf("paper-%d", p.orderSeq),
		Symbol:       req.Contract.Ticker,
		Side:         req.Side,
		Quantity:     req.Quantity,
		AvgFillPrice: price,
		Commission:   commission,
		FilledAt:     time.Now(),
		BrokerRefID:  symbol,
	}

	p.logger.Info("paper order filled",
		zap.String("order_id", fill.OrderID),
		zap.String("side", req.Side.String()),
		zap.Int("quantity", req.Quantity),
		zap.String("contract", req.Contract.String()),
		zap.Stringer("price", price),
		zap.Stringer("commission", commission))
	return fill, nil
}

func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	p.logger.Info("paper cancel order (no-op)", zap.String("order_id", orderID))
	return nil
}

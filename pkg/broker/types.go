package broker

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) String() string {
	return string(s)
}

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit  OrderType = "LMT"
	OrderTypeMarket OrderType = "MKT"
)

func (o OrderType) String() string {
	return string(o)
}

// SecType 证券类型
const (
	SecTypeOption = "OPT"
	SecTypeStock  = "STK"
)

// Contract 期权合约
type Contract struct {
	Ticker string          `json:"ticker"`
	Right  string          `json:"right"` // call / put
	Strike decimal.Decimal `json:"strike"`
	Expiry time.Time       `json:"expiry"`
}

func (c Contract) String() string {
	return fmt.Sprintf("%s %s%s %s", strings.ToUpper(c.Ticker), c.Strike.String(),
		rightLetter(c.Right), c.Expiry.Format(time.DateOnly))
}

// AccountSummary 账户概要
type AccountSummary struct {
	NetLiquidation decimal.Decimal `json:"net_liquidation"` // 账户净值
	BuyingPower    decimal.Decimal `json:"buying_power"`
	AvailableFunds decimal.Decimal `json:"available_funds"`
}

// PortfolioItem 券商侧持仓
type PortfolioItem struct {
	BrokerRefID   string          `json:"broker_ref_id"`
	Symbol        string          `json:"symbol"` // 标的代码
	SecType       string          `json:"sec_type"`
	Right         string          `json:"right"`
	Strike        decimal.Decimal `json:"strike"`
	Expiry        time.Time       `json:"expiry"`
	Quantity      int             `json:"quantity"` // 负数表示空头
	AvgCost       decimal.Decimal `json:"avg_cost"` // 每股权利金
	MarketPrice   decimal.Decimal `json:"market_price"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnl   decimal.Decimal `json:"realized_pnl"`
}

// IsLongOption 是否为期权多头
func (p *PortfolioItem) IsLongOption() bool {
	return p.SecType == SecTypeOption && p.Quantity > 0 && p.Right != ""
}

// Contract 转换为合约
func (p *PortfolioItem) Contract() Contract {
	return Contract{Ticker: p.Symbol, Right: p.Right, Strike: p.Strike, Expiry: p.Expiry}
}

// OptionQuote 期权报价
type OptionQuote struct {
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	Last         decimal.Decimal `json:"last"`
	Mid          decimal.Decimal `json:"mid"`
	Volume       int64           `json:"volume"`
	OpenInterest int64           `json:"open_interest"`
	Greeks       Greeks          `json:"greeks"`
}

// Greeks 希腊值
type Greeks struct {
	IV    float64 `json:"iv"`
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// Valid 报价是否可以用于决策
func (q *OptionQuote) Valid() bool {
	return q != nil && q.Mid.IsPositive()
}

// OrderRequest 下单请求
type OrderRequest struct {
	Contract   Contract
	Side       Side
	Quantity   int
	Type       OrderType
	LimitPrice decimal.Decimal // 仅限价单使用
}

// Fill 成交回报
type Fill struct {
	OrderID      string          `json:"order_id"`
	Symbol       string          `json:"symbol"`
	Side         Side            `json:"side"`
	Quantity     int             `json:"quantity"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`
	Commission   decimal.Decimal `json:"commission"`
	FilledAt     time.Time       `json:"filled_at"`
	BrokerRefID  string          `json:"broker_ref_id"`
	Pending      bool            `json:"pending"` // 已提交但未成交（如盘后限价单）
}

// MidOf 由买卖价计算中间价，缺一侧时退回到最新成交价
func MidOf(bid, ask, last decimal.Decimal) decimal.Decimal {
	if bid.IsPositive() && ask.IsPositive() {
		return bid.Add(ask).Div(decimal.NewFromInt(2))
	}
	if last.IsPositive() {
		return last
	}
	return decimal.Zero
}

// RoundToTick 期权最小报价单位：权利金 >= 3 为 0.05，否则 0.01；买单向上、卖单向下取整
func RoundToTick(price decimal.Decimal, side Side) decimal.Decimal {
	tick := decimal.RequireFromString("0.01")
	if price.GreaterThanOrEqual(decimal.NewFromInt(3)) {
		tick = decimal.RequireFromString("0.05")
	}
	steps := price.Div(tick)
	if side == SideBuy {
		steps = steps.Ceil()
	} else {
		steps = steps.Floor()
	}
	return steps.Mul(tick)
}

package broker

import (
	"context"
	"errors"
)

var (
	ErrNotConnected           = errors.New("broker not connected")
	ErrFillTimeout            = errors.New("order not filled before timeout")
	ErrInvalidQuote           = errors.New("invalid quote")
	ErrOrderRejected          = errors.New("order rejected")
	ErrConnectBudgetExhausted = errors.New("broker connect budget exhausted")
)

// BrokerClient 券商能力接口，隔离具体的券商 SDK
// 所有方法都是阻塞 I/O，调用方负责通过 ctx 控制超时
type BrokerClient interface {
	// Connect 建立会话，带有限次数的重试与总时长预算
	Connect(ctx context.Context) error

	// 账户与持仓
	AccountSummary(ctx context.Context) (*AccountSummary, error)
	Portfolio(ctx context.Context) ([]*PortfolioItem, error)

	// 行情，等待首批数据有上限
	GetOptionQuote(ctx context.Context, contract Contract) (*OptionQuote, error)

	// 订单，等待终态有上限，超时后主动撤单
	PlaceOrder(ctx context.Context, req OrderRequest) (*Fill, error)
	CancelOrder(ctx context.Context, orderID string) error
}

package config

import (
	"time"

	"github.com/dushixiang/strike/internal/rules"
	"github.com/shopspring/decimal"
)

type Config struct {
	Telegram  TelegramConf  `json:"telegram"`
	Discord   DiscordConf   `json:"discord"`
	Broker    BrokerConf    `json:"broker"`
	LLM       LlmConf       `json:"llm"`
	Manager   ManagerConf   `json:"manager"`
	Scheduler SchedulerConf `json:"scheduler"`
	API       APIConf       `json:"api"`
}

type TelegramConf struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token" validate:"required_if=Enabled true"`
	ChatID   string `json:"chat_id" validate:"required_if=Enabled true"`
	ProxyURL string `json:"proxy_url"` // 代理地址，例如: http://127.0.0.1:7890
}

type DiscordConf struct {
	Enabled   bool   `json:"enabled"`
	Token     string `json:"token" validate:"required_if=Enabled true"`
	ChannelID string `json:"channel_id" validate:"required_if=Enabled true"`
}

type BrokerConf struct {
	Provider string          `json:"provider" validate:"omitempty,oneof=alpaca paper"` // 默认 paper
	Alpaca   AlpacaConf      `json:"alpaca"`
	Paper    PaperBrokerConf `json:"paper"`
}

type AlpacaConf struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	BaseURL   string `json:"base_url"` // 纸交易: https://paper-api.alpaca.markets
	DataURL   string `json:"data_url"`
}

type PaperBrokerConf struct {
	InitialEquity float64 `json:"initial_equity"` // 初始资金（USD），默认200000
}

type LlmConf struct {
	Provider string `json:"provider" validate:"omitempty,oneof=openai gemini"` // 默认 openai
	BaseURL  string `json:"base_url"`                                          // LLM API基础URL
	APIKey   string `json:"api_key"`                                           // LLM API密钥
	Model    string `json:"model"`                                             // 模型名称
	ProxyURL string `json:"proxy_url"`
	Timeout  int    `json:"timeout_seconds"` // 单次请求超时，默认120
}

// ManagerConf 持仓管理参数
type ManagerConf struct {
	PollIntervalSeconds int     `json:"poll_interval_seconds"`
	HardStopPct         float64 `json:"hard_stop_pct"`
	ProfitTarget1Pct    float64 `json:"profit_target_1_pct"`
	ProfitTarget2Pct    float64 `json:"profit_target_2_pct"`
	TimeStopDTE         int     `json:"time_stop_dte"`
	MaxAllocationPct    float64 `json:"max_allocation_pct"`
	MaxPositionPct      float64 `json:"max_position_pct"`
	OrderTimeoutSeconds int     `json:"order_timeout_seconds"`
	QuoteTimeoutSeconds int     `json:"quote_timeout_seconds"`
	ConnectMaxRetries   int     `json:"connect_max_retries"`
}

// ToManagerConfig 转换为规则参数，未配置的字段使用默认值
func (c ManagerConf) ToManagerConfig() rules.ManagerConfig {
	cfg := rules.DefaultManagerConfig()
	if c.PollIntervalSeconds > 0 {
		cfg.PollInterval = time.Duration(c.PollIntervalSeconds) * time.Second
	}
	if c.HardStopPct > 0 {
		cfg.HardStopPct = decimal.NewFromFloat(c.HardStopPct)
	}
	if c.ProfitTarget1Pct > 0 {
		cfg.ProfitTarget1Pct = decimal.NewFromFloat(c.ProfitTarget1Pct)
	}
	if c.ProfitTarget2Pct > 0 {
		cfg.ProfitTarget2Pct = decimal.NewFromFloat(c.ProfitTarget2Pct)
	}
	if c.TimeStopDTE > 0 {
		cfg.TimeStopDTE = c.TimeStopDTE
	}
	if c.MaxAllocationPct > 0 {
		cfg.MaxAllocationPct = decimal.NewFromFloat(c.MaxAllocationPct)
	}
	if c.MaxPositionPct > 0 {
		cfg.MaxPositionPct = decimal.NewFromFloat(c.MaxPositionPct)
	}
	if c.OrderTimeoutSeconds > 0 {
		cfg.OrderTimeout = time.Duration(c.OrderTimeoutSeconds) * time.Second
	}
	if c.QuoteTimeoutSeconds > 0 {
		cfg.QuoteTimeout = time.Duration(c.QuoteTimeoutSeconds) * time.Second
	}
	if c.ConnectMaxRetries > 0 {
		cfg.ConnectMaxRetries = c.ConnectMaxRetries
	}
	return cfg
}

// SchedulerConf 调度参数，时间均为交易所时区
type SchedulerConf struct {
	Enabled          bool     `json:"enabled"`
	Timezone         string   `json:"timezone"`     // 默认 America/New_York
	MarketOpen       string   `json:"market_open"`  // 默认 09:30
	MarketClose      string   `json:"market_close"` // 默认 16:00
	PremarketCron    string   `json:"premarket_cron"`
	MiddayCron       string   `json:"midday_cron"`
	PostmarketCron   string   `json:"postmarket_cron"`
	WeeklyCron       string   `json:"weekly_cron"`
	AutoApprove      bool     `json:"auto_approve"`       // 跳过人工审批
	AutoCloseInvalid bool     `json:"auto_close_invalid"` // 复盘认为论点失效时自动平仓
	Watchlist        []string `json:"watchlist"`          // 关注列表为空时写入
}

func (c SchedulerConf) WithDefaults() SchedulerConf {
	if c.Timezone == "" {
		c.Timezone = "America/New_York"
	}
	if c.MarketOpen == "" {
		c.MarketOpen = "09:30"
	}
	if c.MarketClose == "" {
		c.MarketClose = "16:00"
	}
	if c.PremarketCron == "" {
		c.PremarketCron = "0 8 * * 1-5"
	}
	if c.MiddayCron == "" {
		c.MiddayCron = "30 12 * * 1-5"
	}
	if c.PostmarketCron == "" {
		c.PostmarketCron = "30 16 * * 1-5"
	}
	if c.WeeklyCron == "" {
		c.WeeklyCron = "0 10 * * 6"
	}
	return c
}

type APIConf struct {
	TokenHash string `json:"token_hash"` // bcrypt 哈希，为空时禁止所有写操作
}

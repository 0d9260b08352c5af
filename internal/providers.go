package internal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dushixiang/strike/internal/config"
	"github.com/dushixiang/strike/internal/discord"
	"github.com/dushixiang/strike/internal/models"
	"github.com/dushixiang/strike/internal/notify"
	"github.com/dushixiang/strike/internal/rules"
	"github.com/dushixiang/strike/internal/service"
	"github.com/dushixiang/strike/internal/telegram"
	"github.com/dushixiang/strike/pkg/broker"
	"github.com/dushixiang/strike/pkg/nostd"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	telegramHTTPTimeout     = 10 * time.Second
	discordHTTPTimeout      = 10 * time.Second
	defaultLLMTimeout       = 120 * time.Second
	defaultPaperEquity      = 200000
	openaiProviderName      = "openai"
	geminiProviderName      = "gemini"
	logFieldConfiguredModel = "model"
)

// newHTTPClient 带可选代理的 http 客户端
func newHTTPClient(timeout time.Duration, proxyURL string) (*http.Client, error) {
	client := &http.Client{Timeout: timeout}
	if proxyURL == "" {
		return client, nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy URL: %w", err)
	}
	client.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
	return client, nil
}

func provideManagerConfig(conf *config.Config) rules.ManagerConfig {
	return conf.Manager.ToManagerConfig()
}

// provideBroker 默认使用模拟券商
func provideBroker(conf *config.Config, cfg rules.ManagerConfig, logger *zap.Logger) broker.BrokerClient {
	if conf.Broker.Provider == "alpaca" {
		alpacaConf := conf.Broker.Alpaca
		if alpacaConf.APIKey == "" || alpacaConf.APISecret == "" {
			logger.Warn("Alpaca API credentials not configured; connect will fail")
		}
		logger.Info("Alpaca broker initialized", zap.String("base_url", alpacaConf.BaseURL))
		return broker.NewAlpacaBroker(broker.AlpacaOptions{
			APIKey:            alpacaConf.APIKey,
			APISecret:         alpacaConf.APISecret,
			BaseURL:           alpacaConf.BaseURL,
			DataURL:           alpacaConf.DataURL,
			ConnectMaxRetries: cfg.ConnectMaxRetries,
			OrderTimeout:      cfg.OrderTimeout,
			QuoteTimeout:      cfg.QuoteTimeout,
		}, logger)
	}

	equity := conf.Broker.Paper.InitialEquity
	if equity <= 0 {
		equity = defaultPaperEquity
	}
	logger.Info("paper broker initialized", zap.Float64("initial_equity", equity))
	return broker.NewPaperBroker(decimal.NewFromFloat(equity), logger)
}

// provideLLMClient 按 provider 选择 OpenAI 兼容接口或 Gemini
func provideLLMClient(conf *config.Config, logger *zap.Logger) (service.LLMClient, error) {
	timeout := defaultLLMTimeout
	if conf.LLM.Timeout > 0 {
		timeout = time.Duration(conf.LLM.Timeout) * time.Second
	}
	httpClient, err := newHTTPClient(timeout, conf.LLM.ProxyURL)
	if err != nil {
		return nil, err
	}

	if conf.LLM.Provider == geminiProviderName {
		clientConfig := &genai.ClientConfig{
			APIKey:     conf.LLM.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
		}
		if conf.LLM.BaseURL != "" {
			clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: conf.LLM.BaseURL}
		}
		client, err := genai.NewClient(context.Background(), clientConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to init gemini client: %w", err)
		}
		logger.Info("Gemini client initialized",
			zap.String(logFieldConfiguredModel, conf.LLM.Model),
			zap.String("provider", geminiProviderName))
		return service.NewGeminiLLM(client, conf.LLM.Model, logger), nil
	}

	var options = []option.RequestOption{
		option.WithAPIKey(conf.LLM.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if conf.LLM.BaseURL != "" {
		options = append(options, option.WithBaseURL(conf.LLM.BaseURL))
	}
	client := openai.NewClient(options...)

	logger.Info("OpenAI client initialized",
		zap.String(logFieldConfiguredModel, conf.LLM.Model),
		zap.String("provider", openaiProviderName),
	)
	return service.NewOpenAILLM(&client, conf.LLM.Model, logger), nil
}

func provideValidator() (*nostd.CustomValidator, error) {
	return nostd.NewValidator()
}

// provideWorkflowEngine 四个角色共用同一个 LLM 客户端，每次调用都是独立上下文
func provideWorkflowEngine(
	store *service.TradingStore,
	notifier service.Notifier,
	llm service.LLMClient,
	prompts *service.PromptService,
	validator *nostd.CustomValidator,
	logger *zap.Logger,
) *service.WorkflowEngine {
	engine := service.NewWorkflowEngine(store, notifier, logger)
	for _, name := range []string{
		service.AgentResearcher,
		service.AgentAnalyst,
		service.AgentRiskChecker,
		service.AgentReviewer,
	} {
		engine.RegisterAgent(name, service.NewLLMAgent(name, llm, prompts, validator, logger))
	}
	return engine
}

func provideTelegram(logger *zap.Logger, conf *config.Config, recommendations *service.RecommendationService, store *service.TradingStore) *telegram.Telegram {
	if !conf.Telegram.Enabled {
		return nil
	}

	httpClient, err := newHTTPClient(telegramHTTPTimeout, conf.Telegram.ProxyURL)
	if err != nil {
		logger.Error("failed to init telegram", zap.Error(err))
		return nil
	}

	status := func(ctx context.Context) (string, error) {
		positions, err := store.GetOpenPositions(ctx)
		if err != nil {
			return "", err
		}
		pending, err := recommendations.List(ctx, models.RecommendationPendingReview)
		if err != nil {
			return "", err
		}
		return notify.FormatStatus(positions, pending), nil
	}

	tg, err := telegram.NewTelegram(logger, telegram.Settings{
		Token:  conf.Telegram.Token,
		ChatID: conf.Telegram.ChatID,
		Client: httpClient,
	}, telegram.WithApprover(recommendations), telegram.WithStatus(status))
	if err != nil {
		logger.Error("failed to init telegram", zap.Error(err))
		return nil
	}

	return tg
}

func provideDiscord(logger *zap.Logger, conf *config.Config) *discord.Discord {
	if !conf.Discord.Enabled {
		return nil
	}
	dc, err := discord.NewDiscord(logger, discord.Settings{
		Token:     conf.Discord.Token,
		ChannelID: conf.Discord.ChannelID,
		Client:    &http.Client{Timeout: discordHTTPTimeout},
	})
	if err != nil {
		logger.Error("failed to init discord", zap.Error(err))
		return nil
	}
	return dc
}

// provideNotifier 没有外部渠道时只写日志
func provideNotifier(logger *zap.Logger, tg *telegram.Telegram, dc *discord.Discord) *notify.MultiNotifier {
	var channels []notify.Channel
	if tg != nil {
		channels = append(channels, tg)
	}
	if dc != nil {
		channels = append(channels, dc)
	}
	if len(channels) == 0 {
		channels = append(channels, notify.NewLogChannel(logger))
	}
	n := notify.NewMultiNotifier(logger, channels...)
	logger.Info("notifier initialized", zap.Strings("channels", n.Channels()))
	return n
}

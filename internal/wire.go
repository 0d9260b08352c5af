//go:build wireinject
// +build wireinject

package internal

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dushixiang/strike/internal/config"
	"github.com/dushixiang/strike/internal/handler"
	"github.com/dushixiang/strike/internal/notify"
	"github.com/dushixiang/strike/internal/service"
)

var (
	handlerSet = wire.NewSet(
		handler.NewAPIHandler,
	)

	notifySet = wire.NewSet(
		provideTelegram,
		provideDiscord,
		provideNotifier,
		wire.Bind(new(service.Notifier), new(*notify.MultiNotifier)),
	)

	tradingSet = wire.NewSet(
		provideManagerConfig,
		provideBroker,
		provideLLMClient,
		provideValidator,
		service.NewPromptService,
		service.NewTradingStore,
		wire.Bind(new(service.PositionStore), new(*service.TradingStore)),
		provideWorkflowEngine,
		service.NewPositionManager,
		wire.Bind(new(service.AccountProvider), new(*service.PositionManager)),
		service.NewRecommendationService,
		service.NewEquityService,
		service.NewResearchService,
		service.NewScheduler,
	)
)

// InitializeApp 初始化应用
func InitializeApp(logger *zap.Logger, db *gorm.DB, conf *config.Config) (*AppComponents, error) {
	wire.Build(
		handlerSet,
		notifySet,
		tradingSet,
		wire.Struct(new(AppComponents), "*"),
	)
	return nil, nil
}

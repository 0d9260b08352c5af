package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dushixiang/strike/internal/config"
	"github.com/dushixiang/strike/internal/handler"
	"github.com/dushixiang/strike/internal/middleware"
	"github.com/dushixiang/strike/internal/models"
	"github.com/dushixiang/strike/internal/notify"
	"github.com/dushixiang/strike/internal/service"
	"github.com/dushixiang/strike/internal/telegram"
	"github.com/dushixiang/strike/pkg/nostd"
	"github.com/go-orz/orz"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func Run(configPath string) error {
	app := NewStrikeApp()

	framework, err := orz.NewFramework(
		orz.WithConfig(configPath),
		orz.WithLoggerFromConfig(),
		orz.WithDatabase(),
		orz.WithHTTP(),
		orz.WithApplication(app),
	)
	if err != nil {
		return err
	}

	return framework.Run()
}

func NewStrikeApp() orz.Application {
	return &StrikeApp{}
}

var _ orz.Application = (*StrikeApp)(nil)

type AppComponents struct {
	APIHandler *handler.APIHandler

	Scheduler       *service.Scheduler
	Manager         *service.PositionManager
	Research        *service.ResearchService
	Recommendations *service.RecommendationService
	Notifier        *notify.MultiNotifier

	tg *telegram.Telegram
}

type StrikeApp struct {
	components *AppComponents
	conf       *config.Config
}

// GetComponents 获取应用组件
func (r *StrikeApp) GetComponents() *AppComponents {
	return r.components
}

func (r *StrikeApp) Configure(app *orz.App) error {
	logger := app.Logger()
	e := app.GetEcho()
	db := app.GetDatabase()

	var conf config.Config
	err := app.GetConfig().App.Unmarshal(&conf)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %v", err)
	}

	customValidator, err := nostd.NewValidator()
	if err != nil {
		logger.Sugar().Fatal("failed to init custom validator", zap.Error(err))
	}
	if err := customValidator.Validate(&conf); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := db.AutoMigrate(
		models.OptionsPosition{}, models.TradeRecommendation{}, models.Thesis{},
		models.WorkflowRun{}, models.StepLog{},
		models.ResearchSummary{}, models.PositionReview{},
		models.WatchlistItem{}, models.EquitySnapshot{},
	); err != nil {
		logger.Fatal("database auto migrate failed", zap.Error(err))
	}

	components, err := InitializeApp(logger, db, &conf)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %v", err)
	}
	r.components = components
	r.conf = &conf

	if err := r.Init(logger); err != nil {
		logger.Fatal("app init failed", zap.Error(err))
	}

	e.HidePort = true
	e.HideBanner = true

	e.Use(echomiddleware.Gzip())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		Skipper:      echomiddleware.DefaultSkipper,
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost},
	}))
	e.Use(echomiddleware.RecoverWithConfig(echomiddleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			sugar := logger.Sugar()
			sugar.Error(fmt.Sprintf("[PANIC RECOVER] %v %s\n", err, stack))
			return err
		},
	}))
	e.Use(WithErrorHandler(logger))
	e.Validator = customValidator

	auth := middleware.TokenAuth(middleware.TokenAuthConfig{
		TokenHash: conf.API.TokenHash,
		Logger:    logger,
	})
	if conf.API.TokenHash == "" {
		logger.Warn("api.token_hash not configured, mutating API routes are disabled")
	}

	api := e.Group("/api")
	{
		r.components.APIHandler.RegisterRoutes(api, auth)
	}

	return nil
}

func (r *StrikeApp) Init(logger *zap.Logger) error {
	logger.Info("=================================================")
	logger.Info("Strike Options Trading System Starting...")
	logger.Info("=================================================")

	components := r.GetComponents()
	if components == nil {
		return fmt.Errorf("components not initialized")
	}

	if components.tg != nil {
		components.tg.Start()
		logger.Info("telegram bot started")
	}

	if !r.conf.Scheduler.Enabled {
		logger.Info("scheduler disabled, API only")
		return nil
	}

	go func() {
		err := components.Scheduler.Start(context.Background())
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		// 券商连接预算耗尽等致命错误直接退出
		logger.Fatal("scheduler error", zap.Error(err))
	}()
	return nil
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/dushixiang/strike/internal/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	ModePremarket  = "premarket"
	ModeMidday     = "midday"
	ModePostmarket = "postmarket"
	ModeWeekly     = "weekly_deep_dive"
)

// SchedulerStatus 调度器运行状态
type SchedulerStatus struct {
	Running    bool          `json:"running"`
	MarketOpen bool          `json:"market_open"`
	StartedAt  time.Time     `json:"started_at"`
	Ticks      int           `json:"ticks"`
	LastTick   *TickReport   `json:"last_tick,omitempty"`
	Jobs       []ScheduleJob `json:"jobs"`
}

type ScheduleJob struct {
	Mode string    `json:"mode"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// Scheduler 两条独立节奏：盘中持仓轮询 + 日历触发的研究任务
type Scheduler struct {
	conf     config.SchedulerConf
	location *time.Location
	openAt   time.Duration
	closeAt  time.Duration

	manager  *PositionManager
	research *ResearchService
	equity   *EquityService
	logger   *zap.Logger

	mu        sync.Mutex
	isRunning bool
	startTime time.Time
	ticks     int
	lastTick  *TickReport
	jobs      map[cron.EntryID]ScheduleJob
	cron      *cron.Cron
	cancel    context.CancelFunc
	stopChan  chan struct{}
	loopDone  chan struct{}

	now func() time.Time
}

func NewScheduler(
	conf *config.Config,
	manager *PositionManager,
	research *ResearchService,
	equity *EquityService,
	logger *zap.Logger,
) (*Scheduler, error) {
	sc := conf.Scheduler.WithDefaults()
	location, err := time.LoadLocation(sc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", sc.Timezone, err)
	}
	openAt, err := parseClock(sc.MarketOpen)
	if err != nil {
		return nil, fmt.Errorf("market_open: %w", err)
	}
	closeAt, err := parseClock(sc.MarketClose)
	if err != nil {
		return nil, fmt.Errorf("market_close: %w", err)
	}
	if closeAt <= openAt {
		return nil, fmt.Errorf("market_close %s must be after market_open %s", sc.MarketClose, sc.MarketOpen)
	}
	return &Scheduler{
		conf:     sc,
		location: location,
		openAt:   openAt,
		closeAt:  closeAt,
		manager:  manager,
		research: research,
		equity:   equity,
		logger:   logger,
		jobs:     map[cron.EntryID]ScheduleJob{},
		now:      time.Now,
	}, nil
}

// parseClock 解析 HH:MM，返回距零点的时长
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// IsMarketOpen 工作日且在 [开盘, 收盘) 内，按交易所时区判断，不考虑节假日
func (s *Scheduler) IsMarketOpen(t time.Time) bool {
	local := t.In(s.location)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	offset := local.Sub(midnight)
	return offset >= s.openAt && offset < s.closeAt
}

// Start 连接券商后启动调度，阻塞直到 Stop 或 ctx 结束
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.isRunning = true
	s.startTime = s.now()
	s.stopChan = make(chan struct{})
	s.loopDone = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.manager.Connect(runCtx); err != nil {
		s.abort()
		return fmt.Errorf("broker connect: %w", err)
	}
	if err := s.research.SeedWatchlist(runCtx); err != nil {
		s.logger.Warn("failed to seed watchlist", zap.Error(err))
	}

	logger := cronLogger{logger: s.logger.Sugar()}
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	jobs := map[cron.EntryID]ScheduleJob{}
	for _, job := range []ScheduleJob{
		{Mode: ModePremarket, Spec: s.conf.PremarketCron},
		{Mode: ModeMidday, Spec: s.conf.MiddayCron},
		{Mode: ModePostmarket, Spec: s.conf.PostmarketCron},
		{Mode: ModeWeekly, Spec: s.conf.WeeklyCron},
	} {
		mode := job.Mode
		id, err := c.AddFunc(job.Spec, func() { s.runResearch(runCtx, mode) })
		if err != nil {
			s.abort()
			return fmt.Errorf("failed to add %s cron job %q: %w", mode, job.Spec, err)
		}
		jobs[id] = job
	}
	s.mu.Lock()
	s.cron = c
	s.jobs = jobs
	s.mu.Unlock()
	c.Start()

	s.logger.Info("scheduler started",
		zap.String("timezone", s.location.String()),
		zap.String("market_open", s.conf.MarketOpen),
		zap.String("market_close", s.conf.MarketClose),
		zap.Duration("poll_interval", s.manager.Config().PollInterval),
		zap.Bool("auto_approve", s.conf.AutoApprove))

	go s.tickLoop(runCtx)

	select {
	case <-s.stopChan:
		s.logger.Info("scheduler stopped by user")
		return nil
	case <-ctx.Done():
		s.Stop()
		s.logger.Info("scheduler stopped by context")
		return ctx.Err()
	}
}

// Stop 停止 cron 并等待进行中的任务退出
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	s.logger.Info("stopping scheduler...")
	s.cancel()
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
		s.logger.Info("cron scheduler stopped")
	}
	<-s.loopDone
	close(s.stopChan)
}

// abort 启动失败时回滚状态，tick 循环尚未启动
func (s *Scheduler) abort() {
	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
	s.cancel()
	close(s.loopDone)
}

// tickLoop 只在开盘时段轮询，每次 tick 完成后再等待下一个间隔
func (s *Scheduler) tickLoop(ctx context.Context) {
	defer close(s.loopDone)
	ticker := time.NewTicker(s.manager.Config().PollInterval)
	defer ticker.Stop()

	wasOpen := false
	for {
		open := s.IsMarketOpen(s.now())
		if open != wasOpen {
			s.logger.Info("market session changed", zap.Bool("open", open))
			wasOpen = open
		}
		if open {
			if _, err := s.RunTick(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("tick failed", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunTick 执行一次 tick 并记录权益快照
func (s *Scheduler) RunTick(ctx context.Context) (*TickReport, error) {
	report, err := s.manager.Tick(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ticks++
	s.lastTick = report
	s.mu.Unlock()

	if _, err := s.equity.Snapshot(ctx); err != nil {
		s.logger.Warn("failed to record equity snapshot", zap.Error(err))
	}
	return report, nil
}

func (s *Scheduler) runResearch(ctx context.Context, mode string) {
	start := time.Now()
	outcomes := s.research.RunWatchlist(ctx, mode)
	s.logger.Info("scheduled research finished",
		zap.String("mode", mode),
		zap.Int("tickers", len(outcomes)),
		zap.Duration("duration", time.Since(start)))
}

// Status 当前状态与各任务下次触发时间
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	status := SchedulerStatus{
		Running:    s.isRunning,
		MarketOpen: s.IsMarketOpen(s.now()),
		StartedAt:  s.startTime,
		Ticks:      s.ticks,
		LastTick:   s.lastTick,
	}
	c, jobs := s.cron, s.jobs
	s.mu.Unlock()

	if c != nil {
		for _, entry := range c.Entries() {
			job, ok := jobs[entry.ID]
			if !ok {
				continue
			}
			job.Next = entry.Next
			status.Jobs = append(status.Jobs, job)
		}
	}
	return status
}

// cronLogger 把 cron 的日志接到 zap
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

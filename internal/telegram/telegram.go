package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dushixiang/strike/internal/models"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
	"gopkg.in/telebot.v3/middleware"
)

const commandTimeout = 30 * time.Second

type Settings struct {
	Token  string
	ChatID string
	Client *http.Client
}

// Approver 建议审批入口
type Approver interface {
	Approve(ctx context.Context, id, via string) (*models.TradeRecommendation, error)
	Reject(ctx context.Context, id, via, reason string) (*models.TradeRecommendation, error)
}

// StatusFunc 生成 /status 的回复
type StatusFunc func(ctx context.Context) (string, error)

type Telegram struct {
	logger   *zap.Logger
	settings Settings
	client   *tele.Bot

	approver Approver
	status   StatusFunc
}

type Option func(telegram *Telegram)

func WithApprover(approver Approver) Option {
	return func(t *Telegram) {
		t.approver = approver
	}
}

func WithStatus(fn StatusFunc) Option {
	return func(t *Telegram) {
		t.status = fn
	}
}

func NewTelegram(logger *zap.Logger, settings Settings, options ...Option) (*Telegram, error) {
	chatID := cast.ToInt64(settings.ChatID)

	poller := &tele.LongPoller{Timeout: 10 * time.Second}

	// 只响应配置的会话
	chatFilter := tele.NewMiddlewarePoller(poller, func(u *tele.Update) bool {
		if u.Message == nil || u.Message.Chat == nil {
			return false
		}
		return u.Message.Chat.ID == chatID
	})

	client, err := tele.NewBot(tele.Settings{
		ParseMode: tele.ModeMarkdown,
		Token:     settings.Token,
		Poller:    chatFilter,
		Client:    settings.Client,
	})
	if err != nil {
		return nil, err
	}

	client.Use(middleware.AutoRespond())

	err = client.SetCommands([]tele.Command{
		{Text: "/approve", Description: "批准交易建议: /approve <id>"},
		{Text: "/reject", Description: "拒绝交易建议: /reject <id> [原因]"},
		{Text: "/status", Description: "查看账户与持仓状态"},
	})
	if err != nil {
		return nil, err
	}

	bot := &Telegram{
		logger:   logger,
		settings: settings,
		client:   client,
	}

	for _, option := range options {
		option(bot)
	}

	client.Handle("/approve", bot.handleApprove)
	client.Handle("/reject", bot.handleReject)
	client.Handle("/status", bot.handleStatus)

	return bot, nil
}

func (r *Telegram) Start() {
	go r.client.Start()
}

func (r *Telegram) Stop() {
	r.client.Stop()
}

func (r *Telegram) Name() string {
	return "telegram"
}

// Send 发送到配置的会话
func (r *Telegram) Send(ctx context.Context, msg string) error {
	return r.Notify(r.settings.ChatID, msg)
}

func (r *Telegram) Notify(chatId, msg string) error {
	_chatId := cast.ToInt64(chatId)
	_, err := r.client.Send(tele.ChatID(_chatId), msg, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
	return err
}

func (r *Telegram) handleApprove(c tele.Context) error {
	if r.approver == nil {
		return c.Send("Approvals are not enabled.")
	}
	args := c.Args()
	if len(args) < 1 {
		return c.Send("Usage: /approve <recommendation_id>")
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	rec, err := r.approver.Approve(ctx, args[0], "telegram")
	if err != nil {
		r.logger.Warn("telegram approve failed", zap.String("recommendation_id", args[0]), zap.Error(err))
		return c.Send("Approve failed: " + escapeMarkdown(err.Error()))
	}
	return c.Send(fmt.Sprintf("Approved `%s` (%s). It will execute on the next tick.", rec.ID, rec.Ticker))
}

func (r *Telegram) handleReject(c tele.Context) error {
	if r.approver == nil {
		return c.Send("Approvals are not enabled.")
	}
	args := c.Args()
	if len(args) < 1 {
		return c.Send("Usage: /reject <recommendation_id> [reason]")
	}
	reason := strings.Join(args[1:], " ")
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	rec, err := r.approver.Reject(ctx, args[0], "telegram", reason)
	if err != nil {
		r.logger.Warn("telegram reject failed", zap.String("recommendation_id", args[0]), zap.Error(err))
		return c.Send("Reject failed: " + escapeMarkdown(err.Error()))
	}
	return c.Send(fmt.Sprintf("Rejected `%s` (%s).", rec.ID, rec.Ticker))
}

func (r *Telegram) handleStatus(c tele.Context) error {
	if r.status == nil {
		return c.Send("Status is not available.")
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	text, err := r.status(ctx)
	if err != nil {
		return c.Send("Status failed: " + escapeMarkdown(err.Error()))
	}
	return c.Send(text)
}

package discord

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// discord 单条消息上限 2000 字符
const maxMessageLen = 2000

type Settings struct {
	Token     string
	ChannelID string
	Client    *http.Client
}

// Discord 只发不收的通知渠道，走 REST，不建立 gateway 连接
type Discord struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
}

func NewDiscord(logger *zap.Logger, settings Settings) (*Discord, error) {
	if settings.ChannelID == "" {
		return nil, fmt.Errorf("discord channel id is required")
	}
	session, err := discordgo.New("Bot " + settings.Token)
	if err != nil {
		return nil, err
	}
	if settings.Client != nil {
		session.Client = settings.Client
	}
	return &Discord{
		logger:    logger,
		session:   session,
		channelID: settings.ChannelID,
	}, nil
}

func (d *Discord) Name() string {
	return "discord"
}

func (d *Discord) Send(ctx context.Context, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if _, err := d.session.ChannelMessageSend(d.channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

// splitMessage 按长度切分，尽量在换行处断开
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 || len(chunks) == 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

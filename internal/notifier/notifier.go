// Package notifier 分发失败时通知运营
package notifier

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Alert 一条运营告警
type Alert struct {
	DistributionID string
	ProjectID      string
	Status         string
	Completed      int
	Failed         int
	Detail         string
}

// Notifier 运营告警接口
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Nop 不发送任何告警
type Nop struct{}

func (Nop) Notify(context.Context, Alert) error { return nil }

// TelegramNotifier 通过 Telegram 机器人向运营群发送告警
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID int64
}

// NewTelegram 创建 Telegram 告警器，opts 透传给 bot.New
func NewTelegram(token string, chatID int64, opts ...bot.Option) (*TelegramNotifier, error) {
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &TelegramNotifier{bot: b, chatID: chatID}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, alert Alert) error {
	disablePreview := true
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      formatAlert(alert),
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	})
	if err != nil {
		return fmt.Errorf("send alert for %s: %w", alert.DistributionID, err)
	}
	return nil
}

func formatAlert(a Alert) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Distribution %s</b>\n", html.EscapeString(a.Status))
	fmt.Fprintf(&sb, "id: <code>%s</code>\n", html.EscapeString(a.DistributionID))
	fmt.Fprintf(&sb, "project: <code>%s</code>\n", html.EscapeString(a.ProjectID))
	fmt.Fprintf(&sb, "payments: %d completed, %d failed", a.Completed, a.Failed)
	if a.Detail != "" {
		fmt.Fprintf(&sb, "\n%s", html.EscapeString(a.Detail))
	}
	return sb.String()
}

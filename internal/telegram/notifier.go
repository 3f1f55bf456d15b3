// Package telegram mirrors tag updates to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feed_notifier/internal/model"
)

// API is the subset of the Telegram bot API used by the notifier.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends a digest of each tag's new entries to one chat.
type Notifier struct {
	api    API
	chatID int64
	log    *slog.Logger
}

// New connects to the bot API with token.
func New(token string, chatID int64, log *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return NewWithAPI(api, chatID, log), nil
}

// NewWithAPI creates a Notifier around an existing API client.
func NewWithAPI(api API, chatID int64, log *slog.Logger) *Notifier {
	return &Notifier{api: api, chatID: chatID, log: log}
}

// Notify sends the digest for bucket. Failed parts are logged and skipped.
func (n *Notifier) Notify(_ context.Context, bucket model.TagBucket) model.Delivery {
	var d model.Delivery
	for i, part := range SplitMessage(FormatDigest(bucket)) {
		msg := tgbotapi.NewMessage(n.chatID, part)
		msg.DisableWebPagePreview = true
		if _, err := n.api.Send(msg); err != nil {
			d.Failed++
			n.log.Warn("telegram delivery failed", "tag", bucket.Tag, "chat_id", n.chatID, "part", i, "error", err)
			continue
		}
		d.Sent++
	}
	if d.Sent > 0 {
		n.log.Info("telegram delivery succeeded", "tag", bucket.Tag, "chat_id", n.chatID, "parts", d.Sent)
	}
	return d
}

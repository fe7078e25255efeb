// Package alerting forwards critical event-bus events to Telegram. Unlike
// the teacher's TelegramBot (bot/telegram.go), which runs an interactive
// command loop (/status, /pause, /resume), this is send-only: the execution
// core's control surface is the HTTP endpoints in internal/ingress, not a
// chat bot.
package alerting

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/oriongate/execcore/internal/eventbus"
)

// Notifier sends a formatted message for every Critical() event it observes.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// New builds a Notifier. An empty token disables sending; critical events
// are then only logged.
func New(token string, chatID int64) (*Notifier, error) {
	if token == "" {
		return &Notifier{}, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Notifier{api: api, chatID: chatID}, nil
}

// Run subscribes to bus and forwards every critical event until ctx is done.
func (n *Notifier) Run(ctx context.Context, bus *eventbus.Bus) {
	ch, unsubscribe := bus.Subscribe(64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Critical() {
				n.send(evt)
			}
		}
	}
}

func (n *Notifier) send(evt eventbus.Event) {
	text := fmt.Sprintf("[%s] %v", evt.Kind, evt.Payload)
	if n.api == nil {
		log.Warn().Str("kind", string(evt.Kind)).Msg("alerting: telegram disabled, logging critical event instead")
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		log.Error().Err(err).Str("kind", string(evt.Kind)).Msg("alerting: failed to send telegram notification")
	}
}

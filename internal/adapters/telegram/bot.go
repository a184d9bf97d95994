// Copyright 2025.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telegram is the chat front-end. It long-polls the Bot API, hands
// commands, text and button presses to a Handler and renders its replies.
package telegram

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Adembc/lazynode/internal/core/domain"
	"github.com/Adembc/lazynode/internal/core/ports"
)

// botAPI is the part of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Handler receives operator input. Implementations must not block on network
// I/O beyond replying, since updates are dispatched one at a time.
type Handler interface {
	HandleCommand(ctx context.Context, chatID, userID int64, action string, turn ports.Turn) error
	HandleText(ctx context.Context, chatID, userID int64, text string, turn ports.Turn) error
	HandleChoice(ctx context.Context, chatID, userID int64, data string, turn ports.Turn) error
}

// commands maps Bot API command names to handler actions.
var commands = map[string]string{
	"start":        domain.ActionStart,
	"add_panel":    domain.ActionAddPanel,
	"add_node":     domain.ActionAddNode,
	"list_panels":  domain.ActionListPanels,
	"delete_panel": domain.ActionDeletePanel,
	"cancel":       domain.ActionCancel,
}

type Bot struct {
	api         botAPI
	handler     Handler
	logger      *zap.SugaredLogger
	pollTimeout time.Duration
}

// New logs in with token and returns a bot ready to Run.
func New(logger *zap.SugaredLogger, token string, handler Handler, pollTimeout time.Duration) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	logger.Infow("authorized on telegram", "bot", api.Self.UserName)
	return newBot(logger, api, handler, pollTimeout), nil
}

func newBot(logger *zap.SugaredLogger, api botAPI, handler Handler, pollTimeout time.Duration) *Bot {
	if pollTimeout <= 0 {
		pollTimeout = 60 * time.Second
	}
	return &Bot{api: api, handler: handler, logger: logger, pollTimeout: pollTimeout}
}

// Run dispatches updates until ctx is cancelled or the update channel closes.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(b.pollTimeout.Seconds())
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := b.api.GetUpdatesChan(cfg)

	b.logger.Infow("polling for updates", "timeout", b.pollTimeout)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Infow("stopped polling for updates")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	var err error
	switch {
	case update.CallbackQuery != nil:
		err = b.dispatchCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.Chat != nil && update.Message.From != nil:
		err = b.dispatchMessage(ctx, update.Message)
	default:
		return
	}
	if err != nil {
		b.logger.Errorw("failed to handle update", "update", update.UpdateID, "error", err)
	}
}

func (b *Bot) dispatchMessage(ctx context.Context, msg *tgbotapi.Message) error {
	chatID, userID := msg.Chat.ID, msg.From.ID
	t := newTurn(b.api, chatID, 0)

	if msg.IsCommand() {
		action, ok := commands[msg.Command()]
		if !ok {
			action = msg.Command()
		}
		b.logger.Debugw("command received", "chat", chatID, "user", userID, "command", msg.Command())
		return b.handler.HandleCommand(ctx, chatID, userID, action, t)
	}
	return b.handler.HandleText(ctx, chatID, userID, msg.Text, t)
}

func (b *Bot) dispatchCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	// Acknowledge first so the client stops its spinner whatever happens next.
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.logger.Warnw("failed to answer callback query", "error", err)
	}
	if q.Message == nil || q.Message.Chat == nil || q.From == nil {
		return nil
	}

	chatID, userID := q.Message.Chat.ID, q.From.ID
	b.logger.Debugw("button pressed", "chat", chatID, "user", userID, "data", q.Data)
	return b.handler.HandleChoice(ctx, chatID, userID, q.Data, newTurn(b.api, chatID, q.Message.MessageID))
}

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

package telegram

import (
	"context"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Adembc/lazynode/internal/adapters/ui"
	"github.com/Adembc/lazynode/internal/core/domain"
)

const (
	// maxPreformatted leaves room for markup within the 4096-character message limit.
	maxPreformatted = 3500
	buttonsPerRow   = 2
)

// turn answers in one chat. messageID is the message whose button was
// pressed, or zero when the operator typed.
type turn struct {
	api       botAPI
	chatID    int64
	messageID int
}

func newTurn(api botAPI, chatID int64, messageID int) *turn {
	return &turn{api: api, chatID: chatID, messageID: messageID}
}

func (t *turn) Send(_ context.Context, reply domain.Reply) error {
	msg := tgbotapi.NewMessage(t.chatID, render(reply))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if kb := keyboard(reply.Choices); kb != nil {
		msg.ReplyMarkup = *kb
	}
	_, err := t.api.Send(msg)
	return err
}

// Edit replaces the pressed message. Without one it sends a new message.
func (t *turn) Edit(ctx context.Context, reply domain.Reply) error {
	if t.messageID == 0 {
		return t.Send(ctx, reply)
	}
	edit := tgbotapi.NewEditMessageText(t.chatID, t.messageID, render(reply))
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = keyboard(reply.Choices)

	_, err := t.api.Request(edit)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

func render(reply domain.Reply) string {
	var b strings.Builder
	if reply.Preformatted {
		b.WriteString("<pre>")
		b.WriteString(html.EscapeString(ui.TruncateLeft(reply.Text, maxPreformatted)))
		b.WriteString("</pre>")
	} else {
		b.WriteString(html.EscapeString(reply.Text))
	}
	if len(reply.Rows) > 0 {
		b.WriteString("\n<pre>")
		b.WriteString(html.EscapeString(ui.TruncateLeft(ui.Table(reply.Rows), maxPreformatted)))
		b.WriteString("</pre>")
	}
	return b.String()
}

func keyboard(choices []domain.Choice) *tgbotapi.InlineKeyboardMarkup {
	if len(choices) == 0 {
		return nil
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(choices); i += buttonsPerRow {
		end := min(i+buttonsPerRow, len(choices))
		row := make([]tgbotapi.InlineKeyboardButton, 0, end-i)
		for _, c := range choices[i:end] {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Data))
		}
		rows = append(rows, row)
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

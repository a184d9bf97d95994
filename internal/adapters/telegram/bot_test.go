package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Adembc/lazynode/internal/core/domain"
	"github.com/Adembc/lazynode/internal/core/ports"
)

type fakeAPI struct {
	mu        sync.Mutex
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
	updates   chan tgbotapi.Update
	stopped   bool
	config    tgbotapi.UpdateConfig
	editErr   error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 10)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, c)
	if _, ok := c.(tgbotapi.EditMessageTextConfig); ok && f.editErr != nil {
		return nil, f.editErr
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config = config
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

type call struct {
	kind   string
	chatID int64
	userID int64
	value  string
	turn   ports.Turn
}

type recordingHandler struct {
	calls chan call
}

func (h *recordingHandler) HandleCommand(_ context.Context, chatID, userID int64, action string, turn ports.Turn) error {
	h.calls <- call{"command", chatID, userID, action, turn}
	return nil
}

func (h *recordingHandler) HandleText(_ context.Context, chatID, userID int64, text string, turn ports.Turn) error {
	h.calls <- call{"text", chatID, userID, text, turn}
	return nil
}

func (h *recordingHandler) HandleChoice(_ context.Context, chatID, userID int64, data string, turn ports.Turn) error {
	h.calls <- call{"choice", chatID, userID, data, turn}
	return nil
}

func commandMessage(chatID, userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: userID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}
}

func receive(t *testing.T, calls <-chan call) call {
	t.Helper()
	select {
	case c := <-calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
		return call{}
	}
}

func TestBot_DispatchesUpdates(t *testing.T) {
	api := newFakeAPI()
	handler := &recordingHandler{calls: make(chan call, 10)}
	bot := newBot(zaptest.NewLogger(t).Sugar(), api, handler, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	api.updates <- tgbotapi.Update{UpdateID: 1, Message: commandMessage(10, 7, "/add_node")}
	api.updates <- tgbotapi.Update{UpdateID: 2, Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: 10}, From: &tgbotapi.User{ID: 7}, Text: "10.0.0.5",
	}}
	api.updates <- tgbotapi.Update{UpdateID: 3, CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: 7},
		Message: &tgbotapi.Message{MessageID: 55, Chat: &tgbotapi.Chat{ID: 10}},
		Data:    "panel:p.example.com:443",
	}}
	api.updates <- tgbotapi.Update{UpdateID: 4, Message: commandMessage(10, 7, "/unknown")}

	c := receive(t, handler.calls)
	assert.Equal(t, call{kind: "command", chatID: 10, userID: 7, value: domain.ActionAddNode, turn: c.turn}, c)

	c = receive(t, handler.calls)
	assert.Equal(t, "text", c.kind)
	assert.Equal(t, "10.0.0.5", c.value)

	c = receive(t, handler.calls)
	assert.Equal(t, "choice", c.kind)
	assert.Equal(t, "panel:p.example.com:443", c.value)
	assert.Equal(t, 55, c.turn.(*turn).messageID)

	c = receive(t, handler.calls)
	assert.Equal(t, "unknown", c.value)

	cancel()
	require.NoError(t, <-done)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.True(t, api.stopped)
	assert.Equal(t, 30, api.config.Timeout)
	require.NotEmpty(t, api.requested)
	ack, ok := api.requested[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "cb-1", ack.CallbackQueryID)
}

func TestBot_StopsWhenUpdatesClose(t *testing.T) {
	api := newFakeAPI()
	bot := newBot(zaptest.NewLogger(t).Sugar(), api, &recordingHandler{calls: make(chan call, 1)}, 0)
	close(api.updates)

	require.NoError(t, bot.Run(context.Background()))
	assert.Equal(t, 60, api.config.Timeout)
}

func TestTurn_SendRendersHTMLAndKeyboard(t *testing.T) {
	api := newFakeAPI()
	tr := newTurn(api, 10, 0)

	err := tr.Send(context.Background(), domain.Reply{
		Text: "Choose <one>:",
		Choices: []domain.Choice{
			{Label: "A", Data: "panel:a:1"},
			{Label: "B", Data: "panel:b:2"},
			{Label: "C", Data: "panel:c:3"},
		},
	})
	require.NoError(t, err)

	require.Len(t, api.sent, 1)
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(10), msg.ChatID)
	assert.Equal(t, "Choose &lt;one&gt;:", msg.Text)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)

	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Len(t, kb.InlineKeyboard[0], 2)
	assert.Len(t, kb.InlineKeyboard[1], 1)
	require.NotNil(t, kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "panel:c:3", *kb.InlineKeyboard[1][0].CallbackData)
}

func TestTurn_EditFallsBackToSend(t *testing.T) {
	api := newFakeAPI()

	require.NoError(t, newTurn(api, 10, 0).Edit(context.Background(), domain.Reply{Text: "hi"}))
	assert.Len(t, api.sent, 1)
	assert.Empty(t, api.requested)

	require.NoError(t, newTurn(api, 10, 55).Edit(context.Background(), domain.Reply{Text: "edited"}))
	require.Len(t, api.requested, 1)
	edit, ok := api.requested[0].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 55, edit.MessageID)
	assert.Equal(t, "edited", edit.Text)
	assert.Nil(t, edit.ReplyMarkup, "no choices removes the old keyboard")
}

func TestTurn_EditIgnoresNotModified(t *testing.T) {
	api := newFakeAPI()
	api.editErr = errors.New("Bad Request: message is not modified")
	assert.NoError(t, newTurn(api, 10, 55).Edit(context.Background(), domain.Reply{Text: "same"}))

	api.editErr = errors.New("Bad Request: message to edit not found")
	assert.Error(t, newTurn(api, 10, 55).Edit(context.Background(), domain.Reply{Text: "gone"}))
}

func TestRender(t *testing.T) {
	assert.Equal(t, "<pre>CMD: echo &#34;x&#34; &amp;&amp; ls</pre>",
		render(domain.Reply{Text: `CMD: echo "x" && ls`, Preformatted: true}))

	out := render(domain.Reply{Text: "Registered panels:", Rows: [][]string{
		{"PANEL", "PROTOCOL"},
		{"a.example.com:8000", "HTTP"},
	}})
	assert.Equal(t, "Registered panels:\n<pre>PANEL               PROTOCOL\na.example.com:8000  HTTP</pre>", out)

	long := render(domain.Reply{Text: strings.Repeat("x", 5000), Preformatted: true})
	assert.LessOrEqual(t, len([]rune(long)), maxPreformatted+len("<pre></pre>"))
}

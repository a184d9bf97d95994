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

package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Adembc/lazynode/internal/core/domain"
	"github.com/Adembc/lazynode/internal/core/ports"
	"go.uber.org/zap"
)

// failureTail is how much of the execution log an operator sees when a
// remote command fails.
const failureTail = 500

type chatFlow int

const (
	flowIdle chatFlow = iota
	flowAddPanel
	flowAddNode
	flowDeletePanel
)

type panelField int

const (
	fieldDomain panelField = iota
	fieldPort
	fieldUsername
	fieldPassword
	fieldHTTPS
)

// chatState is the conversation with one chat. Only one flow is active at a
// time.
type chatState struct {
	flow chatFlow

	field panelField
	draft domain.Panel

	session *domain.ProvisioningSession
	running bool

	// offered holds the panel IDs behind the buttons last shown, by index.
	offered []string
}

// response is what a handler decided while holding the lock; it is delivered
// after the lock is released.
type response struct {
	replies []domain.Reply
	// edit makes the first reply replace the message whose button was pressed.
	edit   bool
	launch *domain.ProvisioningSession
}

func say(text string, choices ...domain.Choice) response {
	return response{replies: []domain.Reply{{Text: text, Choices: choices}}}
}

// ConversationService routes operator commands, free text and button presses
// to the add-panel flow, the delete flow and the provisioning workflow.
// Provisioning runs off the caller's goroutine, at most maxInFlight at once.
type ConversationService struct {
	panels   ports.PanelService
	workflow *ProvisioningWorkflow
	logger   *zap.SugaredLogger
	allows   func(userID int64) bool

	sem chan struct{}
	wg  sync.WaitGroup

	mu    sync.Mutex
	chats map[int64]*chatState
}

func NewConversationService(logger *zap.SugaredLogger, panels ports.PanelService, workflow *ProvisioningWorkflow, cfg domain.Config) *ConversationService {
	maxInFlight := cfg.MaxInFlight
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &ConversationService{
		panels:   panels,
		workflow: workflow,
		logger:   logger,
		allows:   cfg.Allows,
		sem:      make(chan struct{}, maxInFlight),
		chats:    make(map[int64]*chatState),
	}
}

// Wait blocks until every provisioning run started so far has finished.
func (c *ConversationService) Wait() {
	c.wg.Wait()
}

// HandleCommand handles a slash command such as "add_node".
func (c *ConversationService) HandleCommand(ctx context.Context, chatID, userID int64, action string, turn ports.Turn) error {
	if !c.allows(userID) {
		return c.refuse(ctx, chatID, userID, turn)
	}
	c.mu.Lock()
	resp := c.command(ctx, chatID, action)
	c.mu.Unlock()
	return c.deliver(ctx, chatID, turn, resp)
}

// HandleText handles a free-text answer.
func (c *ConversationService) HandleText(ctx context.Context, chatID, userID int64, text string, turn ports.Turn) error {
	if !c.allows(userID) {
		return c.refuse(ctx, chatID, userID, turn)
	}
	c.mu.Lock()
	resp := c.text(ctx, chatID, text)
	c.mu.Unlock()
	return c.deliver(ctx, chatID, turn, resp)
}

// HandleChoice handles a button press carrying data.
func (c *ConversationService) HandleChoice(ctx context.Context, chatID, userID int64, data string, turn ports.Turn) error {
	if !c.allows(userID) {
		return c.refuse(ctx, chatID, userID, turn)
	}
	c.mu.Lock()
	resp := c.choice(ctx, chatID, data)
	c.mu.Unlock()
	resp.edit = true
	return c.deliver(ctx, chatID, turn, resp)
}

func (c *ConversationService) refuse(ctx context.Context, chatID, userID int64, turn ports.Turn) error {
	c.logger.Warnw("refused operator outside the allow-list", "chat", chatID, "user", userID)
	return turn.Send(ctx, domain.Reply{Text: "You are not allowed to use this bot."})
}

func (c *ConversationService) deliver(ctx context.Context, chatID int64, turn ports.Turn, resp response) error {
	var errs []error
	for i, reply := range resp.replies {
		var err error
		if i == 0 && resp.edit {
			err = turn.Edit(ctx, reply)
		} else {
			err = turn.Send(ctx, reply)
		}
		if err != nil {
			c.logger.Errorw("failed to deliver reply", "chat", chatID, "error", err)
			errs = append(errs, err)
		}
	}
	if resp.launch != nil {
		c.launch(ctx, chatID, resp.launch, turn)
	}
	return errors.Join(errs...)
}

func (c *ConversationService) chat(chatID int64) *chatState {
	st, ok := c.chats[chatID]
	if !ok {
		st = &chatState{}
		c.chats[chatID] = st
	}
	return st
}

// reset drops whatever flow the chat was in. A collecting provisioning
// session is cancelled.
func (c *ConversationService) reset(st *chatState) {
	if st.flow == flowAddNode && st.session != nil && !st.running {
		c.workflow.Cancel(st.session)
	}
	*st = chatState{}
}

func (c *ConversationService) command(ctx context.Context, chatID int64, action string) response {
	st := c.chat(chatID)
	if st.running && action != domain.ActionCancel && action != domain.ActionListPanels {
		return say(fmt.Sprintf("%s. Send /cancel to stop it after the current step.", capitalize(domain.ErrFlowBusy.Error())))
	}

	switch action {
	case domain.ActionStart:
		c.reset(st)
		return say("Welcome! I can register Marzban panels and set up new nodes for them.\nChoose an action:", menu()...)

	case domain.ActionAddPanel:
		c.reset(st)
		st.flow = flowAddPanel
		st.field = fieldDomain
		return say("Enter the panel domain (for example panel.example.com):")

	case domain.ActionAddNode:
		c.reset(st)
		return c.startAddNode(ctx, st)

	case domain.ActionListPanels:
		return c.listPanels()

	case domain.ActionDeletePanel:
		c.reset(st)
		panels, err := c.panels.ListPanels()
		if err != nil {
			return say("Could not read the panel registry: " + err.Error())
		}
		if len(panels) == 0 {
			return say(noPanelsText)
		}
		st.flow = flowDeletePanel
		return say("Choose the panel to delete:", st.offerPanels(domain.ChoiceDeletePanel, panels)...)

	case domain.ActionCancel:
		return c.cancel(st)

	default:
		return say("Unknown command. Send /start to see the menu.")
	}
}

const noPanelsText = "No Marzban panels are registered. Add one with /add_panel."

func (c *ConversationService) startAddNode(ctx context.Context, st *chatState) response {
	session, err := c.workflow.Start(ctx)
	switch {
	case errors.Is(err, domain.ErrNoPanels):
		return say(noPanelsText)
	case err != nil:
		return say("Could not read the panel registry: " + err.Error())
	}

	panels, err := c.panels.ListPanels()
	if err != nil {
		c.workflow.Cancel(session)
		return say("Could not read the panel registry: " + err.Error())
	}
	st.flow = flowAddNode
	st.session = session
	return say("Choose the panel the node belongs to:", st.offerPanels(domain.ChoicePanel, panels)...)
}

func (c *ConversationService) listPanels() response {
	panels, err := c.panels.ListPanels()
	if err != nil {
		return say("Could not read the panel registry: " + err.Error())
	}
	if len(panels) == 0 {
		return say(noPanelsText)
	}
	return response{replies: []domain.Reply{{Text: "Registered panels:", Rows: domain.PanelRows(panels)}}}
}

func (c *ConversationService) cancel(st *chatState) response {
	switch {
	case st.running:
		st.session.Cancel()
		c.logger.Infow("cancellation requested for running session", "session", st.session.ID)
		return say("Cancelling. The step in progress will finish first; nothing already applied on the node is rolled back.")
	case st.flow == flowIdle:
		return say("Nothing to cancel.")
	default:
		c.reset(st)
		return say("Cancelled.", menu()...)
	}
}

func (c *ConversationService) text(ctx context.Context, chatID int64, text string) response {
	st := c.chat(chatID)
	if st.running {
		return say("Provisioning is still running. Send /cancel to stop it after the current step.")
	}

	switch st.flow {
	case flowAddPanel:
		return c.collectPanelField(st, text)
	case flowAddNode:
		return c.collectNodeField(ctx, st, text)
	case flowDeletePanel:
		return c.deletePanel(st, strings.TrimSpace(text))
	default:
		return say("Send /start to see what I can do.")
	}
}

func (c *ConversationService) choice(ctx context.Context, chatID int64, data string) response {
	st := c.chat(chatID)

	switch {
	case strings.HasPrefix(data, domain.ChoiceMenu):
		return c.command(ctx, chatID, strings.TrimPrefix(data, domain.ChoiceMenu))

	case strings.HasPrefix(data, domain.ChoicePanel) && st.flow == flowAddNode && !st.running:
		if id, ok := st.offeredPanel(strings.TrimPrefix(data, domain.ChoicePanel)); ok {
			return c.collectNodeField(ctx, st, id)
		}

	case strings.HasPrefix(data, domain.ChoiceDeletePanel) && st.flow == flowDeletePanel:
		if id, ok := st.offeredPanel(strings.TrimPrefix(data, domain.ChoiceDeletePanel)); ok {
			return c.deletePanel(st, id)
		}

	case strings.HasPrefix(data, domain.ChoiceHTTPS) && st.flow == flowAddPanel && st.field == fieldHTTPS:
		return c.collectPanelField(st, strings.TrimPrefix(data, domain.ChoiceHTTPS))
	}

	c.logger.Debugw("stale button pressed", "chat", chatID, "data", data)
	return say("That button is no longer active. Send /start to see the menu.")
}

func (c *ConversationService) collectPanelField(st *chatState, input string) response {
	value := strings.TrimSpace(input)

	switch st.field {
	case fieldDomain:
		st.draft.Domain = value
		st.field = fieldPort
		return say("Enter the panel port (for example 443 or 8000):")

	case fieldPort:
		st.draft.Port = domain.PanelPort(value)
		st.field = fieldUsername
		return say("Enter the panel admin username:")

	case fieldUsername:
		st.draft.Username = value
		st.field = fieldPassword
		return say("Enter the panel admin password:")

	case fieldPassword:
		st.draft.Password = input
		st.field = fieldHTTPS
		return say("Does the panel use HTTPS?",
			domain.Choice{Label: "Yes", Data: domain.ChoiceHTTPS + "yes"},
			domain.Choice{Label: "No", Data: domain.ChoiceHTTPS + "no"})

	case fieldHTTPS:
		switch strings.ToLower(value) {
		case "yes", "y", "true":
			st.draft.HTTPS = true
		case "no", "n", "false":
			st.draft.HTTPS = false
		default:
			return say("Please answer yes or no.",
				domain.Choice{Label: "Yes", Data: domain.ChoiceHTTPS + "yes"},
				domain.Choice{Label: "No", Data: domain.ChoiceHTTPS + "no"})
		}

		panel := st.draft
		*st = chatState{}
		replaced, err := c.panels.SavePanel(panel)
		if err != nil {
			return say("Panel not saved: "+err.Error(), menu()...)
		}
		if replaced {
			return say(fmt.Sprintf("Panel %s already existed and was replaced with the new details.", panel.ID()), menu()...)
		}
		return say(fmt.Sprintf("Panel %s saved.", panel.ID()), menu()...)
	}
	return say("Send /start to see what I can do.")
}

var nodePrompts = map[domain.ProvisionState]string{
	domain.StateCollectNodeAddress:  "Enter the node server IP address:",
	domain.StateCollectNodePort:     "Enter the node SSH port (default 22):",
	domain.StateCollectNodeUser:     "Enter the node SSH username (default root):",
	domain.StateCollectNodePassword: "Enter the node SSH password:",
}

func (c *ConversationService) collectNodeField(ctx context.Context, st *chatState, input string) response {
	s := st.session
	if err := c.workflow.Collect(ctx, s, input); err != nil {
		if errors.Is(err, domain.ErrPanelNotFound) {
			panels, listErr := c.panels.ListPanels()
			if listErr != nil {
				return say("Unknown panel. Choose one of the registered panels.")
			}
			return say("Unknown panel. Choose one of the registered panels:", st.offerPanels(domain.ChoicePanel, panels)...)
		}
		c.reset(st)
		return say("Could not continue: " + err.Error())
	}

	if prompt, ok := nodePrompts[s.State]; ok {
		return say(prompt)
	}

	// All input collected.
	st.running = true
	return response{
		replies: []domain.Reply{{Text: fmt.Sprintf("Setting up node %s for panel %s. This can take several minutes.", s.Target.Host, s.PanelID)}},
		launch:  s,
	}
}

func (c *ConversationService) deletePanel(st *chatState, id string) response {
	*st = chatState{}
	if err := c.panels.DeletePanel(id); err != nil {
		if errors.Is(err, domain.ErrPanelNotFound) {
			return say(fmt.Sprintf("Panel %s is not registered.", id), menu()...)
		}
		return say("Panel not deleted: "+err.Error(), menu()...)
	}
	return say(fmt.Sprintf("Panel %s deleted.", id), menu()...)
}

// launch runs the workflow on its own goroutine once a worker slot is free.
func (c *ConversationService) launch(ctx context.Context, chatID int64, s *domain.ProvisioningSession, turn ports.Turn) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(chatID, s)

		select {
		case c.sem <- struct{}{}:
		default:
			c.notify(ctx, chatID, turn, "All workers are busy; your node is queued.")
			select {
			case c.sem <- struct{}{}:
			case <-ctx.Done():
				outcome := c.workflow.Run(ctx, s, nil)
				c.report(ctx, chatID, turn, outcome)
				return
			}
		}
		defer func() { <-c.sem }()

		outcome := c.workflow.Run(ctx, s, func(step domain.ProvisionState) {
			if text, ok := stepNarration[step]; ok {
				c.notify(ctx, chatID, turn, text)
			}
		})
		c.report(ctx, chatID, turn, outcome)
	}()
}

var stepNarration = map[domain.ProvisionState]string{
	domain.StateAuthenticate:          "Signing in to the panel...",
	domain.StateFetchCertificate:      "Fetching the node certificate from the panel...",
	domain.StateRunRemoteProvisioning: "Running the setup commands on the node...",
	domain.StateRegisterNode:          "Registering the node with the panel...",
}

// release returns the chat to idle unless it already moved on.
func (c *ConversationService) release(chatID int64, s *domain.ProvisioningSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.chats[chatID]; ok && st.session == s {
		delete(c.chats, chatID)
	}
}

func (c *ConversationService) notify(ctx context.Context, chatID int64, turn ports.Turn, text string) {
	if err := turn.Send(ctx, domain.Reply{Text: text}); err != nil {
		c.logger.Warnw("failed to send progress", "chat", chatID, "error", err)
	}
}

func (c *ConversationService) report(ctx context.Context, chatID int64, turn ports.Turn, outcome domain.Outcome) {
	replies := outcomeReplies(outcome)
	replies[len(replies)-1].Choices = menu()
	for _, reply := range replies {
		if err := turn.Send(ctx, reply); err != nil {
			c.logger.Errorw("failed to report outcome", "chat", chatID, "session", outcome.SessionID, "error", err)
			return
		}
	}
}

func outcomeReplies(o domain.Outcome) []domain.Reply {
	switch o.State {
	case domain.StateDone:
		return []domain.Reply{{Text: fmt.Sprintf("Node %s is set up and registered with panel %s.", o.Address, o.PanelID)}}
	case domain.StateCancelled:
		return []domain.Reply{{Text: "Provisioning cancelled. Changes already applied on the node were not rolled back."}}
	}

	var (
		authErr     *domain.AuthError
		certErr     *domain.CertError
		provErr     *domain.ProvisionError
		cmdErr      *domain.CommandError
		registerErr *domain.RegisterError
		text        string
	)
	switch {
	case errors.As(o.Err, &authErr):
		text = "Could not sign in to the panel. Check the panel details and credentials."
	case errors.As(o.Err, &certErr):
		text = "Could not fetch the node certificate from the panel."
	case errors.As(o.Err, &provErr):
		text = fmt.Sprintf("Could not open an SSH session to %s. Check the address, port, user and password.", o.Address)
	case errors.As(o.Err, &cmdErr):
		text = fmt.Sprintf("A setup command failed on %s (exit status %d). Output of the last commands:", o.Address, cmdErr.Result.ExitStatus)
		return []domain.Reply{
			{Text: text},
			{Text: o.Log.Tail(failureTail), Preformatted: true},
		}
	case errors.As(o.Err, &registerErr):
		text = fmt.Sprintf("Node %s was set up but the panel did not accept the registration.", o.Address)
	default:
		text = "Provisioning failed."
	}
	if o.Err != nil {
		text += "\n" + o.Err.Error()
	}
	return []domain.Reply{{Text: text}}
}

func menu() []domain.Choice {
	return []domain.Choice{
		{Label: "Add panel", Data: domain.ChoiceMenu + domain.ActionAddPanel},
		{Label: "Add node", Data: domain.ChoiceMenu + domain.ActionAddNode},
		{Label: "List panels", Data: domain.ChoiceMenu + domain.ActionListPanels},
		{Label: "Delete panel", Data: domain.ChoiceMenu + domain.ActionDeletePanel},
	}
}

// offerPanels builds one button per panel. Button data carries the panel's
// position in offered rather than its ID, which can exceed the 64 bytes
// Telegram allows in callback data.
func (st *chatState) offerPanels(prefix string, panels []domain.Panel) []domain.Choice {
	st.offered = make([]string, 0, len(panels))
	choices := make([]domain.Choice, 0, len(panels))
	for i, p := range panels {
		st.offered = append(st.offered, p.ID())
		choices = append(choices, domain.Choice{Label: p.ID(), Data: prefix + strconv.Itoa(i)})
	}
	return choices
}

func (st *chatState) offeredPanel(key string) (string, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= len(st.offered) {
		return "", false
	}
	return st.offered[i], true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

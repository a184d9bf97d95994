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
	"fmt"
	"strings"
	"time"

	"github.com/Adembc/lazynode/internal/core/domain"
	"github.com/Adembc/lazynode/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProvisioningWorkflow drives one add-node attempt from panel selection to
// registration. It holds no per-session state; every call works on the
// session it is given.
type ProvisioningWorkflow struct {
	panels      ports.PanelRepository
	api         ports.PanelAPI
	provisioner ports.Provisioner
	metrics     ports.Metrics
	logger      *zap.SugaredLogger

	// addAsNewHost is used when the panel record carries no override.
	addAsNewHost bool
}

// NewProvisioningWorkflow wires the workflow. A nil metrics records nothing.
func NewProvisioningWorkflow(
	logger *zap.SugaredLogger,
	panels ports.PanelRepository,
	api ports.PanelAPI,
	provisioner ports.Provisioner,
	metrics ports.Metrics,
	addAsNewHost bool,
) *ProvisioningWorkflow {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &ProvisioningWorkflow{
		panels:       panels,
		api:          api,
		provisioner:  provisioner,
		metrics:      metrics,
		logger:       logger,
		addAsNewHost: addAsNewHost,
	}
}

// Start opens a session in SelectPanel. With no panels registered the session
// is returned already Aborted together with domain.ErrNoPanels.
func (w *ProvisioningWorkflow) Start(ctx context.Context) (*domain.ProvisioningSession, error) {
	s := &domain.ProvisioningSession{ID: uuid.NewString(), State: domain.StateSelectPanel}

	panels, err := w.panels.LoadAll()
	if err != nil {
		w.logger.Errorw("failed to load panels", "session", s.ID, "error", err)
		w.finish(s, domain.StateAborted, err)
		return s, err
	}
	if len(panels) == 0 {
		w.logger.Warnw("add-node requested with no panels registered", "session", s.ID)
		w.finish(s, domain.StateAborted, domain.ErrNoPanels)
		return s, domain.ErrNoPanels
	}

	w.logger.Infow("provisioning session started", "session", s.ID, "panels", len(panels))
	return s, nil
}

// Collect consumes one answer for the session's current collection state and
// advances it. Port and user fall back to 22 and root when the answer is
// empty; nothing else is validated. An unknown panel id leaves the session in
// SelectPanel.
func (w *ProvisioningWorkflow) Collect(ctx context.Context, s *domain.ProvisioningSession, input string) error {
	switch s.State {
	case domain.StateSelectPanel:
		id := strings.TrimSpace(input)
		panels, err := w.panels.LoadAll()
		if err != nil {
			return err
		}
		panel, ok := panels[id]
		if !ok {
			w.logger.Warnw("unknown panel selected", "session", s.ID, "panel", id)
			return fmt.Errorf("%w: %s", domain.ErrPanelNotFound, id)
		}
		s.PanelID = id
		s.Panel = panel
		s.State = domain.StateCollectNodeAddress

	case domain.StateCollectNodeAddress:
		s.Target.Host = strings.TrimSpace(input)
		s.State = domain.StateCollectNodePort

	case domain.StateCollectNodePort:
		s.Target.Port = orDefault(input, domain.DefaultSSHPort)
		s.State = domain.StateCollectNodeUser

	case domain.StateCollectNodeUser:
		s.Target.User = orDefault(input, domain.DefaultSSHUser)
		s.State = domain.StateCollectNodePassword

	case domain.StateCollectNodePassword:
		s.Target.Password = input
		s.State = domain.StateAuthenticate

	default:
		return fmt.Errorf("session %s does not expect input in state %s", s.ID, s.State)
	}
	return nil
}

func orDefault(input, def string) string {
	if v := strings.TrimSpace(input); v != "" {
		return v
	}
	return def
}

// Cancel ends a session that is still collecting input. A session inside Run
// is stopped with s.Cancel instead, which takes effect before its next step.
func (w *ProvisioningWorkflow) Cancel(s *domain.ProvisioningSession) domain.Outcome {
	s.Cancel()
	return w.finish(s, domain.StateCancelled, domain.ErrCancelled)
}

type workflowStep struct {
	state domain.ProvisionState
	run   func(ctx context.Context, s *domain.ProvisioningSession) error
}

// Run executes the automated steps in order and stops at the first failure.
// progress, if set, is called as each step is entered. The session is
// discarded before Run returns.
func (w *ProvisioningWorkflow) Run(ctx context.Context, s *domain.ProvisioningSession, progress func(domain.ProvisionState)) domain.Outcome {
	if s.State != domain.StateAuthenticate {
		return w.finish(s, domain.StateAborted, fmt.Errorf("session %s is not ready to run (state %s)", s.ID, s.State))
	}

	steps := []workflowStep{
		{domain.StateAuthenticate, w.authenticate},
		{domain.StateFetchCertificate, w.fetchCertificate},
		{domain.StateRunRemoteProvisioning, w.provision},
		{domain.StateRegisterNode, w.registerNode},
	}

	for _, step := range steps {
		if s.Cancelled() {
			return w.finish(s, domain.StateCancelled, domain.ErrCancelled)
		}
		if err := ctx.Err(); err != nil {
			return w.finish(s, domain.StateCancelled, err)
		}

		s.State = step.state
		if progress != nil {
			progress(step.state)
		}
		w.logger.Infow("workflow step", "session", s.ID, "step", step.state.String(), "panel", s.PanelID)

		start := time.Now()
		err := step.run(ctx, s)
		w.metrics.ObserveStep(step.state, time.Since(start), err)
		if err != nil {
			w.logger.Errorw("workflow step failed", "session", s.ID, "step", step.state.String(), "error", err)
			return w.finish(s, domain.StateAborted, err)
		}
	}

	return w.finish(s, domain.StateDone, nil)
}

func (w *ProvisioningWorkflow) authenticate(ctx context.Context, s *domain.ProvisioningSession) error {
	token, err := w.api.Authenticate(ctx, s.Panel)
	if err != nil {
		return err
	}
	s.Token = token
	return nil
}

func (w *ProvisioningWorkflow) fetchCertificate(ctx context.Context, s *domain.ProvisioningSession) error {
	cert, err := w.api.FetchCertificate(ctx, s.Panel, s.Token)
	if err != nil {
		return err
	}
	s.Certificate = cert
	return nil
}

func (w *ProvisioningWorkflow) provision(ctx context.Context, s *domain.ProvisioningSession) error {
	log, err := w.provisioner.Provision(ctx, s.Target, s.Certificate)
	s.Log = log
	w.metrics.ObserveCommands(log)
	return err
}

func (w *ProvisioningWorkflow) registerNode(ctx context.Context, s *domain.ProvisioningSession) error {
	addAsNewHost := w.addAsNewHost
	if s.Panel.AddAsNewHost != nil {
		addAsNewHost = *s.Panel.AddAsNewHost
	}
	return w.api.RegisterNode(ctx, s.Panel, s.Token, domain.NewNodeRegistration(s.Target.Host, addAsNewHost))
}

// finish moves the session to a terminal state and drops its contents.
func (w *ProvisioningWorkflow) finish(s *domain.ProvisioningSession, state domain.ProvisionState, err error) domain.Outcome {
	s.State = state
	outcome := domain.Outcome{
		SessionID: s.ID,
		State:     state,
		PanelID:   s.PanelID,
		Address:   s.Target.Host,
		Log:       s.Log,
		Err:       err,
	}
	s.Discard()

	w.metrics.ObserveOutcome(state)
	w.logger.Infow("provisioning session finished",
		"session", s.ID,
		"state", state.String(),
		"panel", outcome.PanelID,
		"address", outcome.Address,
		"commands", len(outcome.Log))
	return outcome
}

type nopMetrics struct{}

func (nopMetrics) ObserveStep(domain.ProvisionState, time.Duration, error) {}
func (nopMetrics) ObserveOutcome(domain.ProvisionState)                    {}
func (nopMetrics) ObserveCommands(domain.ExecutionLog)                     {}

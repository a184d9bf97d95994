package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Adembc/lazynode/internal/core/domain"
)

type memoryPanelRepository struct {
	mu      sync.Mutex
	panels  domain.Panels
	loadErr error
	saveErr error
	saves   int
}

func newMemoryPanelRepository(panels ...domain.Panel) *memoryPanelRepository {
	r := &memoryPanelRepository{panels: domain.Panels{}}
	for _, p := range panels {
		r.panels[p.ID()] = p
	}
	return r
}

func (m *memoryPanelRepository) LoadAll() (domain.Panels, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.panels.Clone(), nil
}

func (m *memoryPanelRepository) SaveAll(panels domain.Panels) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.panels = panels.Clone()
	return nil
}

type fakePanelAPI struct {
	mu            sync.Mutex
	authErr       error
	certErr       error
	registerErr   error
	authCalls     int
	certCalls     int
	registrations []domain.NodeRegistration
	tokens        []domain.AccessToken

	// block, when set, holds Authenticate until closed.
	block chan struct{}
}

func (f *fakePanelAPI) Authenticate(ctx context.Context, panel domain.Panel) (domain.AccessToken, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	if f.authErr != nil {
		return "", f.authErr
	}
	return "token-" + domain.AccessToken(panel.Domain), nil
}

func (f *fakePanelAPI) FetchCertificate(_ context.Context, _ domain.Panel, token domain.AccessToken) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.certCalls++
	f.tokens = append(f.tokens, token)
	if f.certErr != nil {
		return "", f.certErr
	}
	return "CERT", nil
}

func (f *fakePanelAPI) RegisterNode(_ context.Context, _ domain.Panel, token domain.AccessToken, node domain.NodeRegistration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	f.registrations = append(f.registrations, node)
	return f.registerErr
}

func (f *fakePanelAPI) calls() (auth, cert, register int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authCalls, f.certCalls, len(f.registrations)
}

// fakeProvisioner pretends to run commands numbered 1..total, failing at
// failAt (1-based) when set.
type fakeProvisioner struct {
	mu      sync.Mutex
	total   int
	failAt  int
	calls   int
	targets []domain.NodeTarget
	certs   []string
	err     error
}

func (f *fakeProvisioner) Provision(_ context.Context, target domain.NodeTarget, certificate string) (domain.ExecutionLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.targets = append(f.targets, target)
	f.certs = append(f.certs, certificate)
	if f.err != nil {
		return nil, f.err
	}

	total := f.total
	if total == 0 {
		total = 10
	}
	var log domain.ExecutionLog
	for i := 1; i <= total; i++ {
		r := domain.CommandResult{Command: fmt.Sprintf("command %d", i), Stdout: "ok"}
		if i == f.failAt {
			r.ExitStatus = 100
			r.Stderr = "E: could not install"
			log = append(log, r)
			return log, &domain.CommandError{Address: target.Address(), Result: r}
		}
		log = append(log, r)
	}
	return log, nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	steps    []domain.ProvisionState
	outcomes []domain.ProvisionState
	commands int
}

func (m *recordingMetrics) ObserveStep(step domain.ProvisionState, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step)
}

func (m *recordingMetrics) ObserveOutcome(state domain.ProvisionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, state)
}

func (m *recordingMetrics) ObserveCommands(log domain.ExecutionLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands += len(log)
}

func (m *recordingMetrics) outcomeStates() []domain.ProvisionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ProvisionState(nil), m.outcomes...)
}

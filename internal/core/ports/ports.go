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

package ports

import (
	"context"
	"time"

	"github.com/Adembc/lazynode/internal/core/domain"
)

// PanelRepository persists the panel registry as a whole. There are no partial
// updates: read everything, change it in memory, write everything back.
type PanelRepository interface {
	LoadAll() (domain.Panels, error)
	SaveAll(panels domain.Panels) error
}

// PanelAPI talks to a panel's management API. Every call is a single attempt.
type PanelAPI interface {
	Authenticate(ctx context.Context, panel domain.Panel) (domain.AccessToken, error)
	FetchCertificate(ctx context.Context, panel domain.Panel, token domain.AccessToken) (string, error)
	RegisterNode(ctx context.Context, panel domain.Panel, token domain.AccessToken, node domain.NodeRegistration) error
}

// Provisioner configures a node host over a remote command session.
type Provisioner interface {
	Provision(ctx context.Context, target domain.NodeTarget, certificate string) (domain.ExecutionLog, error)
}

// Turn is how the core answers the operator. Send starts a new message; Edit
// replaces the message the operator just interacted with, falling back to Send
// when there is none.
type Turn interface {
	Send(ctx context.Context, reply domain.Reply) error
	Edit(ctx context.Context, reply domain.Reply) error
}

// Metrics records workflow observations.
type Metrics interface {
	ObserveStep(step domain.ProvisionState, elapsed time.Duration, err error)
	ObserveOutcome(state domain.ProvisionState)
	ObserveCommands(log domain.ExecutionLog)
}

type PanelService interface {
	ListPanels() ([]domain.Panel, error)
	SavePanel(panel domain.Panel) (replaced bool, err error)
	DeletePanel(id string) error
}

type FlagsProvider interface {
	IsDebug() bool
	GetFlag(name string) string
}

type ConfigProvider interface {
	HomeDir() string
	ConfigPath(elems ...string) string
	LogPath(filename string) string
	GetEnvOrDefault(envVar, defaultValue string) string
}

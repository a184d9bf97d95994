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

package domain

import (
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// Panel is a remote control-plane endpoint that nodes get registered with.
type Panel struct {
	Domain   string    `json:"domain"`
	Port     PanelPort `json:"port"`
	Username string    `json:"username"`
	Password string    `json:"password"`
	HTTPS    bool      `json:"https"`

	// AddAsNewHost overrides the configured default for node registration.
	AddAsNewHost *bool `json:"add_as_new_host,omitempty"`
}

// ID returns the registry identity of the panel: "domain:port".
func (p Panel) ID() string {
	return fmt.Sprintf("%s:%s", p.Domain, p.Port)
}

// Scheme is "https" or "http" depending on the panel's TLS setting.
func (p Panel) Scheme() string {
	if p.HTTPS {
		return "https"
	}
	return "http"
}

// PanelRows is the registry as table rows under a PANEL/PROTOCOL/USER header.
// Passwords are never included.
func PanelRows(panels []Panel) [][]string {
	rows := [][]string{{"PANEL", "PROTOCOL", "USER"}}
	for _, p := range panels {
		rows = append(rows, []string{p.ID(), strings.ToUpper(p.Scheme()), p.Username})
	}
	return rows
}

// BaseURL is the root of the panel's management API.
func (p Panel) BaseURL() string {
	return fmt.Sprintf("%s://%s", p.Scheme(), net.JoinHostPort(p.Domain, string(p.Port)))
}

// PanelPort is kept as the text the operator typed. Older registries wrote
// numbers, so both forms are accepted on load.
type PanelPort string

func (p *PanelPort) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PanelPort(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("panel port must be a string or number: %w", err)
	}
	*p = PanelPort(n.String())
	return nil
}

// Int parses the port as a number.
func (p PanelPort) Int() (int, error) {
	return strconv.Atoi(string(p))
}

// Panels is the whole registry keyed by Panel.ID.
type Panels map[string]Panel

// IDs returns the registry keys in a stable order.
func (ps Panels) IDs() []string {
	ids := make([]string, 0, len(ps))
	for id := range ps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a shallow copy so callers can mutate without touching the original.
func (ps Panels) Clone() Panels {
	out := make(Panels, len(ps))
	for id, p := range ps {
		out[id] = p
	}
	return out
}

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

import "net"

const (
	DefaultSSHPort = "22"
	DefaultSSHUser = "root"

	// Ports the node agent listens on once provisioned.
	NodeServicePort = 62050
	NodeAPIPort     = 62051
)

// NodeTarget is the host being provisioned. It lives only as long as one
// provisioning attempt.
type NodeTarget struct {
	Host     string
	Port     string
	User     string
	Password string
}

// Address is host:port suitable for dialing.
func (t NodeTarget) Address() string {
	return net.JoinHostPort(t.Host, t.Port)
}

// NodeRegistration describes a node to the panel's node API.
type NodeRegistration struct {
	Name             string  `json:"name"`
	Address          string  `json:"address"`
	Port             int     `json:"port"`
	APIPort          int     `json:"api_port"`
	AddAsNewHost     bool    `json:"add_as_new_host"`
	UsageCoefficient float64 `json:"usage_coefficient"`
}

// NewNodeRegistration fills in the fixed agent ports and a usage weight of 1.
func NewNodeRegistration(address string, addAsNewHost bool) NodeRegistration {
	return NodeRegistration{
		Name:             address,
		Address:          address,
		Port:             NodeServicePort,
		APIPort:          NodeAPIPort,
		AddAsNewHost:     addAsNewHost,
		UsageCoefficient: 1,
	}
}

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

import "sync/atomic"

// ProvisionState is a position in the add-node workflow.
type ProvisionState int

const (
	StateSelectPanel ProvisionState = iota
	StateCollectNodeAddress
	StateCollectNodePort
	StateCollectNodeUser
	StateCollectNodePassword
	StateAuthenticate
	StateFetchCertificate
	StateRunRemoteProvisioning
	StateRegisterNode
	StateDone
	StateCancelled
	StateAborted
)

var stateNames = map[ProvisionState]string{
	StateSelectPanel:           "select_panel",
	StateCollectNodeAddress:    "collect_node_address",
	StateCollectNodePort:       "collect_node_port",
	StateCollectNodeUser:       "collect_node_user",
	StateCollectNodePassword:   "collect_node_password",
	StateAuthenticate:          "authenticate",
	StateFetchCertificate:      "fetch_certificate",
	StateRunRemoteProvisioning: "run_remote_provisioning",
	StateRegisterNode:          "register_node",
	StateDone:                  "done",
	StateCancelled:             "cancelled",
	StateAborted:               "aborted",
}

func (s ProvisionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the workflow can no longer move.
func (s ProvisionState) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateAborted
}

// Collecting reports whether the state waits for operator input.
func (s ProvisionState) Collecting() bool {
	return s >= StateSelectPanel && s <= StateCollectNodePassword
}

// AccessToken is a bearer token issued by a panel.
type AccessToken string

// ProvisioningSession is the per-conversation state of one add-node attempt.
// It is built field by field as the operator answers, and is never persisted.
type ProvisioningSession struct {
	ID    string
	State ProvisionState

	PanelID string
	Panel   Panel
	Target  NodeTarget

	Token       AccessToken
	Certificate string
	Log         ExecutionLog

	cancelled atomic.Bool
}

// Cancel asks the workflow to stop before its next step. A step already in
// flight runs to completion.
func (s *ProvisioningSession) Cancel() {
	s.cancelled.Store(true)
}

func (s *ProvisioningSession) Cancelled() bool {
	return s.cancelled.Load()
}

// Discard drops everything collected, secrets included. State is kept so the
// caller can still tell how the attempt ended.
func (s *ProvisioningSession) Discard() {
	s.PanelID = ""
	s.Panel = Panel{}
	s.Target = NodeTarget{}
	s.Token = ""
	s.Certificate = ""
	s.Log = nil
}

// Outcome is what a finished workflow reports back.
type Outcome struct {
	SessionID string
	State     ProvisionState
	PanelID   string
	Address   string
	Log       ExecutionLog
	Err       error
}

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
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoPanels      = errors.New("no panels registered")
	ErrPanelNotFound = errors.New("panel not found")
	ErrCancelled     = errors.New("cancelled by operator")
	ErrFlowBusy      = errors.New("a provisioning run is already in progress")
)

// StorageError means the panel registry could not be read or written.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("panel registry %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// AuthError means the panel refused or failed the token exchange.
type AuthError struct {
	Panel string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authenticate against %s: %v", e.Panel, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// CertError means the node certificate could not be fetched.
type CertError struct {
	Panel string
	Err   error
}

func (e *CertError) Error() string {
	return fmt.Sprintf("fetch certificate from %s: %v", e.Panel, e.Err)
}

func (e *CertError) Unwrap() error { return e.Err }

// RegisterError means the panel did not accept the node.
type RegisterError struct {
	Panel   string
	Address string
	Err     error
}

func (e *RegisterError) Error() string {
	return fmt.Sprintf("register node %s with %s: %v", e.Address, e.Panel, e.Err)
}

func (e *RegisterError) Unwrap() error { return e.Err }

// ProvisionError means the remote session could not be established.
type ProvisionError struct {
	Address string
	Err     error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("open remote session to %s: %v", e.Address, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// CommandError is a remote command that exited non-zero, or whose session broke
// before an exit status arrived (Err is set and ExitStatus is -1).
type CommandError struct {
	Address string
	Result  CommandResult
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command %q on %s failed: %v", shortCommand(e.Result.Command), e.Address, e.Err)
	}
	return fmt.Sprintf("command %q on %s exited with status %d", shortCommand(e.Result.Command), e.Address, e.Result.ExitStatus)
}

// shortCommand keeps error strings to the first line of a command, which also
// keeps spliced certificates out of them.
func shortCommand(command string) string {
	const limit = 60
	if i := strings.IndexByte(command, '\n'); i >= 0 {
		command = command[:i] + " ..."
	}
	if r := []rune(command); len(r) > limit {
		command = string(r[:limit]) + "..."
	}
	return command
}

func (e *CommandError) Unwrap() error { return e.Err }

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
	"fmt"
	"strings"
)

// CommandResult is the outcome of one remote command.
type CommandResult struct {
	Command    string
	ExitStatus int
	Stdout     string
	Stderr     string
}

// OK reports whether the command exited with status zero.
func (r CommandResult) OK() bool {
	return r.ExitStatus == 0
}

func (r CommandResult) String() string {
	return fmt.Sprintf("CMD: %s\nEXIT_STATUS: %d\nSTDOUT: %s\nSTDERR: %s", r.Command, r.ExitStatus, r.Stdout, r.Stderr)
}

// ExecutionLog is the ordered list of commands run against a node. Entries are
// only ever appended.
type ExecutionLog []CommandResult

func (l ExecutionLog) String() string {
	parts := make([]string, 0, len(l))
	for _, r := range l {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, "\n")
}

// Tail returns at most the last n characters of the rendered log.
func (l ExecutionLog) Tail(n int) string {
	s := []rune(l.String())
	if n <= 0 || len(s) <= n {
		return string(s)
	}
	return string(s[len(s)-n:])
}

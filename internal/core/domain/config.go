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
	"path/filepath"
	"time"
)

// Config represents the application configuration
type Config struct {
	// PanelsFile is the JSON registry of panels
	PanelsFile string `yaml:"panels_file"`

	// AllowedUsers restricts the bot to these Telegram user ids. Empty allows everyone.
	AllowedUsers []int64 `yaml:"allowed_users"`

	// MaxInFlight bounds how many provisioning runs execute at once across all chats
	MaxInFlight int `yaml:"max_in_flight"`

	// AddAsNewHost is sent on node registration unless the panel record overrides it
	AddAsNewHost bool `yaml:"add_as_new_host"`

	// MetricsAddr serves Prometheus metrics when non-empty, e.g. "127.0.0.1:9310"
	MetricsAddr string `yaml:"metrics_addr"`

	// PollTimeout is the Telegram long-poll timeout
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// DefaultConfig returns the default configuration with the provided config directory
func DefaultConfig(configDirPath string) Config {
	var panelsPath string
	if configDirPath != "" {
		panelsPath = filepath.Join(configDirPath, "marzban_panels.json")
	} else {
		panelsPath = "marzban_panels.json"
	}

	return Config{
		PanelsFile:   panelsPath,
		MaxInFlight:  4,
		AddAsNewHost: true,
		PollTimeout:  60 * time.Second,
	}
}

// Allows reports whether the given Telegram user may operate the bot.
func (c Config) Allows(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

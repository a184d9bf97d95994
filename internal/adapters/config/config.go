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

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Adembc/lazynode/internal/core/ports"
)

// AppDir is the per-user directory holding config, the panel registry and logs.
const AppDir = ".lazynode"

type OSConfig struct {
	homeDir string
	baseDir string
}

// NewOSConfig resolves paths under ~/.lazynode, or under baseDir when it is
// set. A leading "~/" in baseDir is expanded.
func NewOSConfig(baseDir string) (ports.ConfigProvider, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	switch {
	case baseDir == "":
		baseDir = filepath.Join(home, AppDir)
	case strings.HasPrefix(baseDir, "~/"):
		baseDir = filepath.Join(home, baseDir[2:])
	}
	return &OSConfig{homeDir: home, baseDir: baseDir}, nil
}

func (c *OSConfig) HomeDir() string {
	return c.homeDir
}

func (c *OSConfig) ConfigPath(elems ...string) string {
	return filepath.Join(c.baseDir, filepath.Join(elems...))
}

func (c *OSConfig) LogPath(filename string) string {
	return c.ConfigPath("logs", filename)
}

func (c *OSConfig) GetEnvOrDefault(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	return defaultValue
}

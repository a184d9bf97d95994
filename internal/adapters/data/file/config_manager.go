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

package file

import (
	"errors"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Adembc/lazynode/internal/core/domain"
)

type ConfigManager struct {
	logger        *zap.SugaredLogger
	filePath      string
	configDirPath string
}

func NewConfigManager(logger *zap.SugaredLogger, filePath string) *ConfigManager {
	return &ConfigManager{
		logger:        logger,
		filePath:      filePath,
		configDirPath: filepath.Dir(filePath),
	}
}

// Load reads the bot configuration. A missing file is created with defaults;
// if that write fails the defaults are still returned. Fields absent from the
// file keep their default values.
func (cm *ConfigManager) Load() (domain.Config, error) {
	defaultConfig := domain.DefaultConfig(cm.configDirPath)

	data, err := os.ReadFile(cm.filePath)
	if errors.Is(err, os.ErrNotExist) {
		if err := cm.Save(defaultConfig); err != nil {
			cm.logger.Warnw("failed to write default config", "path", cm.filePath, "error", err)
		}
		return defaultConfig, nil
	}
	if err != nil {
		return defaultConfig, err
	}

	config := defaultConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return defaultConfig, err
	}

	if config.PanelsFile == "" {
		config.PanelsFile = defaultConfig.PanelsFile
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = defaultConfig.MaxInFlight
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = defaultConfig.PollTimeout
	}

	return config, nil
}

func (cm *ConfigManager) Save(config domain.Config) error {
	if err := cm.ensureDirectory(); err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(cm.filePath, data, 0o600)
}

func (cm *ConfigManager) ensureDirectory() error {
	return os.MkdirAll(cm.configDirPath, 0o700)
}

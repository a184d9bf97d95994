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

package services

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/Adembc/lazynode/internal/core/domain"
	"github.com/Adembc/lazynode/internal/core/ports"
	"go.uber.org/zap"
)

var hostLabelPattern = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)

type panelService struct {
	panelRepository ports.PanelRepository
	logger          *zap.SugaredLogger
}

// NewPanelService creates a new instance of panelService.
func NewPanelService(logger *zap.SugaredLogger, pr ports.PanelRepository) *panelService {
	return &panelService{
		logger:          logger,
		panelRepository: pr,
	}
}

// ListPanels returns every registered panel ordered by identity.
func (s *panelService) ListPanels() ([]domain.Panel, error) {
	panels, err := s.panelRepository.LoadAll()
	if err != nil {
		s.logger.Errorw("failed to list panels", "error", err)
		return nil, err
	}

	out := make([]domain.Panel, 0, len(panels))
	for _, id := range panels.IDs() {
		out = append(out, panels[id])
	}
	return out, nil
}

// validatePanel performs core validation of panel fields.
func validatePanel(p domain.Panel) error {
	host := strings.TrimSpace(p.Domain)
	if host == "" {
		return fmt.Errorf("domain is required")
	}
	if ip := net.ParseIP(host); ip == nil {
		if strings.Contains(host, " ") {
			return fmt.Errorf("domain must not contain spaces")
		}
		if !hostLabelPattern.MatchString(host) {
			return fmt.Errorf("domain contains invalid characters")
		}
		if strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
			return fmt.Errorf("domain must not start or end with a dot")
		}
		for _, lbl := range strings.Split(host, ".") {
			if lbl == "" {
				return fmt.Errorf("domain must not contain empty labels")
			}
			if strings.HasPrefix(lbl, "-") || strings.HasSuffix(lbl, "-") {
				return fmt.Errorf("domain labels must not start or end with a hyphen")
			}
		}
	}
	port, err := p.Port.Int()
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	if p.Username == "" {
		return fmt.Errorf("username is required")
	}
	if p.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

// SavePanel stores the panel under its identity. A panel with the same
// identity is replaced, and replaced reports that.
func (s *panelService) SavePanel(panel domain.Panel) (bool, error) {
	panel.Domain = strings.TrimSpace(panel.Domain)
	panel.Port = domain.PanelPort(strings.TrimSpace(string(panel.Port)))
	if err := validatePanel(panel); err != nil {
		s.logger.Warnw("validation failed on save", "error", err, "panel", panel.ID())
		return false, err
	}

	panels, err := s.panelRepository.LoadAll()
	if err != nil {
		s.logger.Errorw("failed to load panels", "error", err)
		return false, err
	}
	id := panel.ID()
	_, replaced := panels[id]
	panels = panels.Clone()
	panels[id] = panel

	if err := s.panelRepository.SaveAll(panels); err != nil {
		s.logger.Errorw("failed to save panel", "error", err, "panel", id)
		return false, err
	}
	s.logger.Infow("panel saved", "panel", id, "https", panel.HTTPS, "replaced", replaced)
	return replaced, nil
}

// DeletePanel removes a panel from the registry.
func (s *panelService) DeletePanel(id string) error {
	panels, err := s.panelRepository.LoadAll()
	if err != nil {
		s.logger.Errorw("failed to load panels", "error", err)
		return err
	}
	if _, ok := panels[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrPanelNotFound, id)
	}
	panels = panels.Clone()
	delete(panels, id)

	if err := s.panelRepository.SaveAll(panels); err != nil {
		s.logger.Errorw("failed to delete panel", "error", err, "panel", id)
		return err
	}
	s.logger.Infow("panel deleted", "panel", id)
	return nil
}

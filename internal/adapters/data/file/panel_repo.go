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
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Adembc/lazynode/internal/core/domain"
)

// panelRepo keeps the registry in a single JSON file. Concurrent SaveAll calls
// are last-writer-wins.
type panelRepo struct {
	filePath string
	logger   *zap.SugaredLogger
}

func NewPanelRepo(logger *zap.SugaredLogger, filePath string) *panelRepo {
	return &panelRepo{logger: logger, filePath: filePath}
}

// LoadAll reads the registry. A missing, empty or malformed file is an empty
// registry. Ports stored as JSON numbers are accepted but SaveAll writes them
// back as strings, so a hand-edited file with "port": 443 is not byte-stable
// across the first load and save; it is from then on.
func (r *panelRepo) LoadAll() (domain.Panels, error) {
	panels := make(domain.Panels)

	data, err := os.ReadFile(r.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return panels, nil
		}
		return nil, &domain.StorageError{Op: "read", Path: r.filePath, Err: err}
	}

	if len(data) == 0 {
		return panels, nil
	}

	if err := json.Unmarshal(data, &panels); err != nil {
		// A corrupt registry behaves like an empty one.
		r.logger.Warnw("panel registry is malformed, treating as empty", "path", r.filePath, "error", err)
		return make(domain.Panels), nil
	}

	return panels, nil
}

func (r *panelRepo) SaveAll(panels domain.Panels) error {
	if panels == nil {
		panels = make(domain.Panels)
	}

	dir := filepath.Dir(r.filePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &domain.StorageError{Op: "write", Path: r.filePath, Err: err}
	}

	data, err := json.MarshalIndent(panels, "", "    ")
	if err != nil {
		return &domain.StorageError{Op: "encode", Path: r.filePath, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.filePath)+".*.tmp")
	if err != nil {
		return &domain.StorageError{Op: "write", Path: r.filePath, Err: err}
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &domain.StorageError{Op: "write", Path: r.filePath, Err: err}
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return &domain.StorageError{Op: "write", Path: r.filePath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &domain.StorageError{Op: "write", Path: r.filePath, Err: err}
	}

	if err := r.backupCurrent(); err != nil {
		r.logger.Warnw("failed to back up panel registry", "path", r.filePath, "error", err)
	}

	if err := os.Rename(tmpPath, r.filePath); err != nil {
		return &domain.StorageError{Op: "write", Path: r.filePath, Err: err}
	}

	r.logger.Debugw("panel registry saved", "path", r.filePath, "count", len(panels))
	return nil
}

func (r *panelRepo) backupPath() string {
	return filepath.Join(filepath.Dir(r.filePath), "backups", filepath.Base(r.filePath)+".backup")
}

// backupCurrent copies the registry to backups/<name>.backup with 0600 perms,
// overwriting it each time, but only if the registry exists.
func (r *panelRepo) backupCurrent() error {
	src, err := os.Open(r.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = src.Close() }()

	backupPath := r.backupPath()
	if err := os.MkdirAll(filepath.Dir(backupPath), 0o700); err != nil {
		return err
	}

	// #nosec G304 -- backupPath is derived from the registry path
	dst, err := os.OpenFile(backupPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Sync()
}

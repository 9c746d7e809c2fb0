// SPDX-License-Identifier: AGPL-3.0-or-later

package publish

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bartekus/lockstep/internal/ecosystem"
	"github.com/bartekus/lockstep/internal/projection"
)

// DefaultStateDir is where run reports are kept, relative to the
// repository root.
const DefaultStateDir = ".lockstep/publish"

// StateStore handles reading and writing publish run reports.
type StateStore struct {
	baseDir string
}

// NewStateStore creates a store at the given base directory.
func NewStateStore(baseDir string) *StateStore {
	return &StateStore{baseDir: baseDir}
}

func (s *StateStore) lastRunPath() string {
	return filepath.Join(s.baseDir, "last-run.json")
}

func (s *StateStore) ecosystemPath(kind ecosystem.Kind) string {
	return filepath.Join(s.baseDir, "ecosystems", string(kind)+".json")
}

// ReadLastRun loads the last run report. A missing report is not an error.
func (s *StateStore) ReadLastRun() (*Report, error) {
	var r Report
	ok, err := readJSON(s.lastRunPath(), &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

// ReadEcosystem loads one ecosystem's result from the last run.
func (s *StateStore) ReadEcosystem(kind ecosystem.Kind) (*EcosystemResult, error) {
	var r EcosystemResult
	ok, err := readJSON(s.ecosystemPath(kind), &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

// WriteLastRun saves the run report.
func (s *StateStore) WriteLastRun(r Report) error {
	return writeJSON(s.lastRunPath(), r)
}

// WriteEcosystem saves one ecosystem's result.
func (s *StateStore) WriteEcosystem(r EcosystemResult) error {
	return writeJSON(s.ecosystemPath(r.Ecosystem), r)
}

// Reset clears the state directory.
func (s *StateStore) Reset() error {
	return os.RemoveAll(s.baseDir)
}

func readJSON(path string, v any) (bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", path, err)
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return projection.AtomicWrite(path, append(data, '\n'))
}

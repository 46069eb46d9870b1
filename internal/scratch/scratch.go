// Package scratch manages per-job transient directories. Every pipeline run
// gets its own uniquely named scope under a shared base directory, and the
// scope is removed recursively exactly once no matter how the run ends.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Manager hands out job-isolated scratch scopes under a base directory.
type Manager struct {
	base string
}

// NewManager prepares the base directory. An empty dir defaults to a
// service-specific folder under the system temp dir.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "pagesend")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create scratch base: %w", err)
	}
	return &Manager{base: dir}, nil
}

// OpenScope creates the directory for one job. Distinct job ids yield disjoint
// paths, so concurrent runs never collide.
func (m *Manager) OpenScope(jobID string) (*Scope, error) {
	if jobID == "" {
		return nil, fmt.Errorf("open scope: empty job id")
	}
	path := filepath.Join(m.base, jobID)
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("open scope %s: %w", jobID, err)
	}
	return &Scope{path: path}, nil
}

// Scope is a transient directory owned by exactly one pipeline run.
type Scope struct {
	path string
	once sync.Once
}

// Path returns the scope's directory.
func (s *Scope) Path() string {
	return s.path
}

// File returns the absolute path for a name inside the scope.
func (s *Scope) File(name string) string {
	return filepath.Join(s.path, name)
}

// WriteFile persists bytes into the scope and returns the resulting path.
func (s *Scope) WriteFile(name string, data []byte) (string, error) {
	path := s.File(name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("write scratch file %s: %w", name, err)
	}
	return path, nil
}

// Close removes the directory and all contents. It is idempotent; callers
// defer it immediately after OpenScope so cleanup runs on every exit path.
func (s *Scope) Close() error {
	var err error
	s.once.Do(func() {
		err = os.RemoveAll(s.path)
	})
	return err
}

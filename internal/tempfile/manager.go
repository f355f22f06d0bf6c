// Package tempfile owns the temp root: per-request working directories,
// best-effort release of spooled files, and the destructive purge that fires
// when free space on the temp volume drops below the configured floor.
//
// The purge removes the whole root, including files of requests still in
// flight. Those requests fail their reads and surface a conversion error.
// That trade is intentional: a full temp volume takes the service down for
// everyone, one interrupted request does not.
package tempfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/fileconverter/internal/diskspace"
	"github.com/local/fileconverter/internal/metrics"
)

// Manager owns the temp root directory.
type Manager struct {
	root       string
	free       diskspace.FreeSpace
	purgeBelow int64

	purgeMu sync.Mutex
}

// NewManager creates the temp root if absent and returns a manager over it.
// purgeBelow is the byte threshold under which Release purges the root.
func NewManager(root string, free diskspace.FreeSpace, purgeBelow int64) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("temp root not configured")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}
	return &Manager{root: root, free: free, purgeBelow: purgeBelow}, nil
}

// Root returns the temp root path.
func (m *Manager) Root() string { return m.root }

// NewSet creates a working directory for one request. Everything the request
// spools lives under it, so concurrent requests never share paths.
func (m *Manager) NewSet() (*FileSet, error) {
	dir := filepath.Join(m.root, uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create request dir: %w", err)
	}
	return &FileSet{mgr: m, dir: dir}, nil
}

// Release removes every path best-effort. Paths that no longer exist are
// skipped silently; removal failures are logged and collected into the
// returned slice, never raised. After the per-path pass the free space is
// re-read and the root purged if it fell below the floor. Release never
// panics regardless of input.
func (m *Manager) Release(paths []string) []error {
	errs := m.releasePaths(paths)
	m.purgeIfLow()
	return errs
}

func (m *Manager) releasePaths(paths []string) []error {
	var errs []error
	removed := 0
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case os.IsNotExist(err):
			// already gone, nothing to do
		default:
			log.Warn().Err(err).Str("path", p).Msg("temp file release failed")
			errs = append(errs, err)
		}
	}
	metrics.AddReleasedFiles(removed)
	return errs
}

// purgeIfLow re-reads free space and destroys the whole temp root when it is
// below the floor. A failed free-space read skips the purge: destroying the
// root without knowing the volume state is worse than deferring.
func (m *Manager) purgeIfLow() {
	free, err := m.free.FreeBytes()
	if err != nil {
		log.Warn().Err(err).Msg("free space check failed, skipping purge")
		return
	}
	metrics.SetDiskFree(free)
	if free >= m.purgeBelow {
		return
	}

	m.purgeMu.Lock()
	defer m.purgeMu.Unlock()

	log.Warn().
		Float64("free_gb", float64(free)/diskspace.GiB).
		Float64("purge_below_gb", float64(m.purgeBelow)/diskspace.GiB).
		Str("root", m.root).
		Msg("low disk space, purging temp root")

	if err := os.RemoveAll(m.root); err != nil {
		log.Error().Err(err).Str("root", m.root).Msg("temp root purge failed")
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		log.Error().Err(err).Str("root", m.root).Msg("temp root recreate failed")
		return
	}
	metrics.IncPurge()
}

// FileSet is one request's working directory and the paths registered in it.
type FileSet struct {
	mgr *Manager
	dir string

	mu    sync.Mutex
	paths []string
}

// Dir returns the set's working directory.
func (s *FileSet) Dir() string { return s.dir }

// Allocate reserves a unique path inside the set for the given extension.
// The file itself is not created. Concurrent calls always yield distinct
// paths.
func (s *FileSet) Allocate(ext string) string {
	name := uuid.NewString()
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		name += "." + ext
	}
	p := filepath.Join(s.dir, name)
	s.Add(p)
	return p
}

// Add registers a path created outside Allocate, e.g. an output file named
// by LibreOffice, so release sees it.
func (s *FileSet) Add(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
}

// Paths returns a copy of the registered paths.
func (s *FileSet) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}

// Release removes the registered paths, the set directory with anything a
// conversion tool left in it, and then runs the manager's purge check.
func (s *FileSet) Release() []error {
	errs := s.mgr.releasePaths(s.Paths())
	if err := os.RemoveAll(s.dir); err != nil {
		log.Warn().Err(err).Str("dir", s.dir).Msg("request dir removal failed")
		errs = append(errs, err)
	}
	s.mgr.purgeIfLow()
	return errs
}

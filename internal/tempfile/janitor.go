package tempfile

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/fileconverter/internal/metrics"
)

// Janitor periodically removes temp entries orphaned by crashes or kills.
// Normal requests clean up after themselves; the janitor only catches what
// they could not, so the stale age must comfortably exceed the longest
// legitimate conversion.
type Janitor struct {
	mgr      *Manager
	interval time.Duration
	staleAge time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewJanitor sweeps mgr's root every interval, removing entries whose mtime
// is older than staleAge.
func NewJanitor(mgr *Manager, interval, staleAge time.Duration) *Janitor {
	return &Janitor{
		mgr:      mgr,
		interval: interval,
		staleAge: staleAge,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (j *Janitor) Start() {
	log.Info().
		Dur("interval", j.interval).
		Dur("stale_age", j.staleAge).
		Str("root", j.mgr.Root()).
		Msg("temp janitor started")
	go j.run()
}

// Stop halts the loop and waits for an in-flight sweep to finish. Only valid
// after Start.
func (j *Janitor) Stop() {
	close(j.stop)
	<-j.done
}

func (j *Janitor) run() {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep runs one pass: stale entries under the root are removed and the
// disk-free gauge is refreshed.
func (j *Janitor) Sweep() {
	entries, err := os.ReadDir(j.mgr.Root())
	if err != nil {
		log.Warn().Err(err).Str("root", j.mgr.Root()).Msg("janitor read failed")
		return
	}

	now := time.Now()
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < j.staleAge {
			continue
		}
		p := filepath.Join(j.mgr.Root(), e.Name())
		if err := os.RemoveAll(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("janitor remove failed")
			metrics.IncJanitorSwept("error")
			continue
		}
		log.Info().Str("path", p).Msg("removed stale temp entry")
		metrics.IncJanitorSwept("removed")
	}

	if free, err := j.mgr.free.FreeBytes(); err == nil {
		metrics.SetDiskFree(free)
	}
}

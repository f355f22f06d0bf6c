// Package diskspace measures free space on the volume holding the temp root
// and decides whether a request may be admitted. Free space is re-read on
// every decision, never cached, so the gate tracks the volume as other
// requests fill and drain it.
package diskspace

import (
	"errors"
	"fmt"
)

// GiB is the unit all thresholds are expressed in.
const GiB = 1 << 30

// ErrInsufficientSpace marks admission rejections caused by low free space.
// Callers map it to 507 Insufficient Storage.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// FreeSpace reports available bytes on the volume under watch.
type FreeSpace interface {
	FreeBytes() (int64, error)
}

// Monitor is the production FreeSpace: statfs on the directory path.
type Monitor struct {
	path string
}

// NewMonitor watches the volume containing path.
func NewMonitor(path string) *Monitor {
	return &Monitor{path: path}
}

// FreeBytes returns bytes available to unprivileged users on the volume.
func (m *Monitor) FreeBytes() (int64, error) {
	return freeBytes(m.path)
}

// FreeGB returns free space in GiB for logs and the dashboard.
func (m *Monitor) FreeGB() (float64, error) {
	free, err := m.FreeBytes()
	if err != nil {
		return 0, err
	}
	return float64(free) / GiB, nil
}

// Thresholds hold the admission policy in bytes.
type Thresholds struct {
	ConvertMinFree int64 // fixed floor for /convert
	MergeMinFree   int64 // per spooled merge part
	PurgeBelow     int64 // temp root purged under this, also the derived-requirement floor
}

// ThresholdsFromGB converts configured GiB values to byte thresholds.
func ThresholdsFromGB(convertGB, mergeGB, purgeGB float64) Thresholds {
	return Thresholds{
		ConvertMinFree: int64(convertGB * GiB),
		MergeMinFree:   int64(mergeGB * GiB),
		PurgeBelow:     int64(purgeGB * GiB),
	}
}

// Gate evaluates admission against a FreeSpace. A statfs failure is an
// admission failure: better to reject than to spool onto a volume we cannot
// measure.
type Gate struct {
	free FreeSpace
	thr  Thresholds
}

// NewGate builds a gate over the given space reader and thresholds.
func NewGate(free FreeSpace, thr Thresholds) *Gate {
	return &Gate{free: free, thr: thr}
}

// AdmitConvert admits a conversion request. With no declared size the fixed
// threshold applies; space exactly at the threshold is admitted. When the
// client declares a Content-Length the requirement is derived from it
// instead: twice the declared size (input plus output copies), floored at
// the purge threshold so small uploads cannot be admitted onto a volume
// that is about to be purged anyway.
func (g *Gate) AdmitConvert(declaredSize int64) error {
	return g.admit(g.required(declaredSize, g.thr.ConvertMinFree))
}

// AdmitMerge is the upfront merge check. Merge part counts are unknown until
// the multipart body is consumed, so without a declared length the upfront
// check passes and AdmitMergePart carries the policy as parts land.
func (g *Gate) AdmitMerge(declaredSize int64) error {
	if declaredSize <= 0 {
		return nil
	}
	return g.admit(g.required(declaredSize, 0))
}

// AdmitMergePart admits spooling of one more merge part.
func (g *Gate) AdmitMergePart() error {
	return g.admit(g.thr.MergeMinFree)
}

func (g *Gate) required(declaredSize, fixed int64) int64 {
	if declaredSize <= 0 {
		return fixed
	}
	required := 2 * declaredSize
	if required < g.thr.PurgeBelow {
		required = g.thr.PurgeBelow
	}
	return required
}

func (g *Gate) admit(required int64) error {
	free, err := g.free.FreeBytes()
	if err != nil {
		return fmt.Errorf("free space check failed: %w", err)
	}
	if free < required {
		return fmt.Errorf("%w: %.2f GB free, %.2f GB required",
			ErrInsufficientSpace, float64(free)/GiB, float64(required)/GiB)
	}
	return nil
}

package statuscheck

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/local/fileconverter/internal/config"
	"github.com/local/fileconverter/internal/diskspace"
)

type stubSpace struct {
	free int64
	err  error
}

func (s *stubSpace) FreeBytes() (int64, error) { return s.free, s.err }

type stubPinger struct{ err error }

func (p *stubPinger) Ping(ctx context.Context) error { return p.err }

func TestCheckDiskThresholds(t *testing.T) {
	thr := diskspace.ThresholdsFromGB(10, 0.1, 5)

	c := New(Options{Free: &stubSpace{free: 20 * diskspace.GiB}, Thresholds: thr})
	st := c.checkDisk()
	require.True(t, st.OK)
	require.Contains(t, st.Message, "GB free")

	c = New(Options{Free: &stubSpace{free: 7 * diskspace.GiB}, Thresholds: thr})
	st = c.checkDisk()
	require.False(t, st.OK)
	require.Contains(t, st.Message, "below conversion threshold")

	c = New(Options{Free: &stubSpace{free: 1 * diskspace.GiB}, Thresholds: thr})
	st = c.checkDisk()
	require.False(t, st.OK)
	require.Contains(t, st.Message, "below purge threshold")

	c = New(Options{Free: &stubSpace{err: errors.New("statfs failed")}, Thresholds: thr})
	require.False(t, c.checkDisk().OK)
}

func TestCheckTempRoot(t *testing.T) {
	c := New(Options{TempRoot: t.TempDir()})
	require.True(t, c.checkTempRoot().OK)

	c = New(Options{TempRoot: filepath.Join(t.TempDir(), "does-not-exist")})
	require.False(t, c.checkTempRoot().OK)
}

func TestCheckRedis(t *testing.T) {
	c := New(Options{})
	st := c.checkRedis(context.Background())
	require.True(t, st.OK)
	require.Contains(t, st.Message, "Not configured")

	c = New(Options{Redis: &stubPinger{}})
	require.True(t, c.checkRedis(context.Background()).OK)

	c = New(Options{Redis: &stubPinger{err: errors.New("connection refused")}})
	require.False(t, c.checkRedis(context.Background()).OK)
}

func TestCheckS3NotConfigured(t *testing.T) {
	c := New(Options{S3: config.S3Config{}})
	st := c.checkS3(context.Background())
	require.True(t, st.OK)
	require.Contains(t, st.Message, "Not configured")
}

func TestSummaryOK(t *testing.T) {
	ok := Status{OK: true}
	bad := Status{OK: false}

	require.True(t, Summary{LibreOffice: ok, TempRoot: ok, Disk: ok, Redis: ok, S3: ok}.OK())
	require.False(t, Summary{LibreOffice: bad, TempRoot: ok, Disk: ok, Redis: ok, S3: ok}.OK())
	require.False(t, Summary{LibreOffice: ok, TempRoot: ok, Disk: bad, Redis: ok, S3: ok}.OK())
}

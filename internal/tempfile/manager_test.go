package tempfile

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/local/fileconverter/internal/diskspace"
)

type stubSpace struct {
	free int64
	err  error
}

func (s *stubSpace) FreeBytes() (int64, error) { return s.free, s.err }

func newTestManager(t *testing.T, free diskspace.FreeSpace) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "temp_files"), free, 5*diskspace.GiB)
	require.NoError(t, err)
	return m
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))
}

func TestNewManagerCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b", "temp_files")
	m, err := NewManager(root, &stubSpace{free: 100 * diskspace.GiB}, 5*diskspace.GiB)
	require.NoError(t, err)

	info, err := os.Stat(m.Root())
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestReleaseRemovesExistingAndSkipsMissing(t *testing.T) {
	m := newTestManager(t, &stubSpace{free: 100 * diskspace.GiB})
	set, err := m.NewSet()
	require.NoError(t, err)

	a := set.Allocate("pdf")
	b := set.Allocate("docx")
	writeFile(t, a)
	writeFile(t, b)
	missing := filepath.Join(set.Dir(), "never-created.pdf")

	errs := m.Release([]string{a, b, missing})
	require.Empty(t, errs)
	require.NoFileExists(t, a)
	require.NoFileExists(t, b)
}

func TestReleaseNeverPanicsAndAggregatesFailures(t *testing.T) {
	m := newTestManager(t, &stubSpace{free: 100 * diskspace.GiB})
	set, err := m.NewSet()
	require.NoError(t, err)

	// A non-empty directory cannot be removed with a plain remove, which is
	// exactly the kind of failure release must survive.
	stubborn := filepath.Join(set.Dir(), "stubborn")
	require.NoError(t, os.Mkdir(stubborn, 0o755))
	writeFile(t, filepath.Join(stubborn, "inner.txt"))

	removable := set.Allocate("txt")
	writeFile(t, removable)

	errs := m.Release([]string{stubborn, removable})
	require.Len(t, errs, 1)
	require.NoFileExists(t, removable)
	require.DirExists(t, stubborn)

	require.NotPanics(t, func() {
		require.Empty(t, m.Release(nil))
		require.Empty(t, m.Release([]string{""}))
	})
}

func TestReleasePurgesRootWhenSpaceLow(t *testing.T) {
	m := newTestManager(t, &stubSpace{free: 5*diskspace.GiB - 1})
	set, err := m.NewSet()
	require.NoError(t, err)

	kept := set.Allocate("pdf")
	writeFile(t, kept)
	loose := filepath.Join(m.Root(), "orphan.pdf")
	writeFile(t, loose)

	errs := m.Release([]string{kept})
	require.Empty(t, errs)

	// Root survives but everything under it is gone, the orphan included.
	entries, err := os.ReadDir(m.Root())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestReleaseSkipsPurgeWhenFreeUnknown(t *testing.T) {
	m := newTestManager(t, &stubSpace{err: os.ErrPermission})
	loose := filepath.Join(m.Root(), "orphan.pdf")
	writeFile(t, loose)

	errs := m.Release(nil)
	require.Empty(t, errs)
	require.FileExists(t, loose)
}

func TestAllocateConcurrentPathsAreDistinct(t *testing.T) {
	m := newTestManager(t, &stubSpace{free: 100 * diskspace.GiB})
	set, err := m.NewSet()
	require.NoError(t, err)

	const n = 50
	var (
		mu    sync.Mutex
		seen  = make(map[string]struct{}, n)
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			p := set.Allocate(".pdf")
			mu.Lock()
			seen[p] = struct{}{}
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, seen, n)
	require.Len(t, set.Paths(), n)
	for p := range seen {
		require.Equal(t, set.Dir(), filepath.Dir(p))
		require.Equal(t, ".pdf", filepath.Ext(p))
	}
}

func TestFileSetReleaseRemovesDirAndLeftovers(t *testing.T) {
	m := newTestManager(t, &stubSpace{free: 100 * diskspace.GiB})
	set, err := m.NewSet()
	require.NoError(t, err)

	input := set.Allocate("docx")
	writeFile(t, input)
	// Conversion tools drop lock files and the like next to the output.
	writeFile(t, filepath.Join(set.Dir(), ".~lock.converted.pdf#"))

	errs := set.Release()
	require.Empty(t, errs)
	require.NoDirExists(t, set.Dir())
	require.DirExists(t, m.Root())
}

func TestJanitorSweepRemovesOnlyStaleEntries(t *testing.T) {
	m := newTestManager(t, &stubSpace{free: 100 * diskspace.GiB})

	stale, err := m.NewSet()
	require.NoError(t, err)
	writeFile(t, stale.Allocate("pdf"))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale.Dir(), old, old))

	fresh, err := m.NewSet()
	require.NoError(t, err)
	writeFile(t, fresh.Allocate("pdf"))

	j := NewJanitor(m, time.Hour, time.Hour)
	j.Sweep()

	require.NoDirExists(t, stale.Dir())
	require.DirExists(t, fresh.Dir())
}

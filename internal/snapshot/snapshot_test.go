package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArena(t *testing.T, dir string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, "accounts.db")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func newIndexFiles(t *testing.T, root string, names ...string) []string {
	t.Helper()
	var paths []string
	for _, n := range names {
		p := filepath.Join(root, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("idx:"+n), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func TestSnapshotWritesArenaPrefixAndIndexFiles(t *testing.T) {
	base := t.TempDir()
	arenaDir := filepath.Join(base, "arena")
	indexRoot := filepath.Join(base, "index")
	snapDir := filepath.Join(base, "snapshots")
	require.NoError(t, os.MkdirAll(arenaDir, 0o755))

	arenaPath := newArena(t, arenaDir, []byte("0123456789abcdef"))
	idxPaths := newIndexFiles(t, indexRoot, "accounts/index.db", "owners/index.db")

	e, err := Open(snapDir, 4)
	require.NoError(t, err)

	require.NoError(t, e.Snapshot(100, arenaPath, 10, idxPaths, indexRoot))

	data, err := os.ReadFile(filepath.Join(snapDir, "100", "accounts.db"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	for _, n := range []string{"accounts/index.db", "owners/index.db"} {
		data, err := os.ReadFile(filepath.Join(snapDir, "100", n))
		require.NoError(t, err)
		assert.Equal(t, "idx:"+n, string(data))
	}

	assert.True(t, e.SnapshotExists(100))
	assert.Equal(t, 1, e.Held())
}

func TestSnapshotEvictsOldestWhenOverCapacity(t *testing.T) {
	base := t.TempDir()
	arenaDir := filepath.Join(base, "arena")
	indexRoot := filepath.Join(base, "index")
	snapDir := filepath.Join(base, "snapshots")
	require.NoError(t, os.MkdirAll(arenaDir, 0o755))

	arenaPath := newArena(t, arenaDir, []byte("data"))
	idxPaths := newIndexFiles(t, indexRoot, "owners/index.db")

	e, err := Open(snapDir, 2)
	require.NoError(t, err)

	require.NoError(t, e.Snapshot(10, arenaPath, 4, idxPaths, indexRoot))
	require.NoError(t, e.Snapshot(20, arenaPath, 4, idxPaths, indexRoot))
	require.NoError(t, e.Snapshot(30, arenaPath, 4, idxPaths, indexRoot))

	assert.False(t, e.SnapshotExists(10))
	assert.True(t, e.SnapshotExists(20))
	assert.True(t, e.SnapshotExists(30))
	assert.Equal(t, 2, e.Held())

	_, err = os.Stat(filepath.Join(snapDir, "10"))
	assert.True(t, os.IsNotExist(err))
}

func TestTrySwitchToSnapshotPicksFloorAndEvictsFuture(t *testing.T) {
	base := t.TempDir()
	arenaDir := filepath.Join(base, "arena")
	indexRoot := filepath.Join(base, "index")
	snapDir := filepath.Join(base, "snapshots")
	require.NoError(t, os.MkdirAll(arenaDir, 0o755))

	arenaPath := newArena(t, arenaDir, []byte("data"))
	idxPaths := newIndexFiles(t, indexRoot, "owners/index.db")

	e, err := Open(snapDir, 10)
	require.NoError(t, err)

	require.NoError(t, e.Snapshot(10, arenaPath, 4, idxPaths, indexRoot))
	require.NoError(t, e.Snapshot(20, arenaPath, 4, idxPaths, indexRoot))
	require.NoError(t, e.Snapshot(30, arenaPath, 4, idxPaths, indexRoot))

	rbSlot, path, err := e.TrySwitchToSnapshot(25)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), rbSlot)
	assert.Equal(t, filepath.Join(snapDir, "20"), path)

	assert.True(t, e.SnapshotExists(10))
	assert.True(t, e.SnapshotExists(20))
	assert.False(t, e.SnapshotExists(30))

	_, err = os.Stat(filepath.Join(snapDir, "30"))
	assert.True(t, os.IsNotExist(err))
}

func TestTrySwitchToSnapshotNoCandidateErrors(t *testing.T) {
	base := t.TempDir()
	snapDir := filepath.Join(base, "snapshots")

	e, err := Open(snapDir, 10)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(snapDir, "50"), 0o755))
	e.slots = []uint64{50}

	_, _, err = e.TrySwitchToSnapshot(10)
	assert.Error(t, err)
}

func TestOpenReloadsExistingSnapshotDirs(t *testing.T) {
	base := t.TempDir()
	snapDir := filepath.Join(base, "snapshots")
	require.NoError(t, os.MkdirAll(filepath.Join(snapDir, "5"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(snapDir, "15"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(snapDir, "not-a-slot"), 0o755))

	e, err := Open(snapDir, 10)
	require.NoError(t, err)

	var seen []uint64
	e.WithSnapshots(func(slots []uint64) { seen = append(seen, slots...) })
	assert.Equal(t, []uint64{5, 15}, seen)
}

func TestWithSnapshotsYieldsAscendingOrder(t *testing.T) {
	base := t.TempDir()
	arenaDir := filepath.Join(base, "arena")
	indexRoot := filepath.Join(base, "index")
	snapDir := filepath.Join(base, "snapshots")
	require.NoError(t, os.MkdirAll(arenaDir, 0o755))

	arenaPath := newArena(t, arenaDir, []byte("data"))
	idxPaths := newIndexFiles(t, indexRoot, "owners/index.db")

	e, err := Open(snapDir, 10)
	require.NoError(t, err)

	require.NoError(t, e.Snapshot(30, arenaPath, 4, idxPaths, indexRoot))
	require.NoError(t, e.Snapshot(10, arenaPath, 4, idxPaths, indexRoot))
	require.NoError(t, e.Snapshot(20, arenaPath, 4, idxPaths, indexRoot))

	var seen []uint64
	e.WithSnapshots(func(slots []uint64) { seen = append(seen, slots...) })
	assert.Equal(t, []uint64{10, 20, 30}, seen)
}

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesHeader(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, MinDBSize, Block256)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, uint32(Block256), s.BlockSize())
	assert.Equal(t, uint64(0), s.Head())
	assert.Equal(t, uint64(0), s.GetSlot())
	assert.Equal(t, uint64(0), s.DeallocatedBlocks())
	assert.Greater(t, s.TotalBlocks(), uint64(0))
}

func TestReopenPreservesHeader(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir, MinDBSize, Block256)
	require.NoError(t, err)
	s1.SetSlot(42)
	alloc := s1.Alloc(100)
	require.NoError(t, s1.Close())

	s2, err := Open(dir, MinDBSize, Block256)
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, uint64(42), s2.GetSlot())
	assert.Equal(t, uint64(alloc.Blocks), s2.Head())
}

func TestAllocBumpsHead(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, MinDBSize, Block256)
	require.NoError(t, err)
	defer s.Close()

	a1 := s.Alloc(100)
	a2 := s.Alloc(300)

	assert.Equal(t, uint32(0), a1.Offset)
	assert.Equal(t, a1.Offset+a1.Blocks, a2.Offset)
}

func TestAllocBoundaryBlockCounts(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, MinDBSize, Block256)
	require.NoError(t, err)
	defer s.Close()

	a1 := s.Alloc(256)
	assert.Equal(t, uint32(1), a1.Blocks)

	a2 := s.Alloc(257)
	assert.Equal(t, uint32(2), a2.Blocks)
}

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, MinDBSize, Block512)
	require.NoError(t, err)
	defer s.Close()

	acc := Account{
		Owner:      Pubkey{1, 2, 3},
		Lamports:   4425,
		Executable: false,
		RentEpoch:  7,
		Data:       []byte("hello world?"),
	}

	size := RecordSize(len(acc.Data))
	alloc := s.Alloc(size)
	buf := s.Offset(alloc.Offset, alloc.Blocks)
	require.NoError(t, EncodeInitial(buf, acc))

	got, err := s.ReadAccount(alloc.Offset, alloc.Blocks)
	require.NoError(t, err)
	assert.Equal(t, acc.Owner, got.Owner)
	assert.Equal(t, acc.Lamports, got.Lamports)
	assert.Equal(t, acc.RentEpoch, got.RentEpoch)
	assert.Equal(t, acc.Data, got.Data)
}

func TestUpdateInPlacePreservesOffset(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, MinDBSize, Block512)
	require.NoError(t, err)
	defer s.Close()

	acc := Account{Owner: Pubkey{9}, Lamports: 1, Data: []byte("abc")}
	alloc := s.Alloc(RecordSize(len(acc.Data)))
	buf := s.Offset(alloc.Offset, alloc.Blocks)
	require.NoError(t, EncodeInitial(buf, acc))

	updated := acc
	updated.Data = []byte("xyz")
	require.True(t, FitsInPlace(buf, len(updated.Data)))
	require.NoError(t, UpdateInPlace(buf, updated))

	got, err := s.ReadAccount(alloc.Offset, alloc.Blocks)
	require.NoError(t, err)
	assert.Equal(t, []byte("xyz"), got.Data)
}

func TestFitsInPlaceRejectsOversizedGrowth(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, MinDBSize, Block128)
	require.NoError(t, err)
	defer s.Close()

	acc := Account{Owner: Pubkey{1}, Lamports: 1, Data: make([]byte, 4)}
	alloc := s.Alloc(RecordSize(len(acc.Data)))
	buf := s.Offset(alloc.Offset, alloc.Blocks)
	require.NoError(t, EncodeInitial(buf, acc))

	assert.False(t, FitsInPlace(buf, 10_000))
}

func TestUtilizedMmapCoversHeadOnly(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, MinDBSize, Block256)
	require.NoError(t, err)
	defer s.Close()

	s.Alloc(1000)
	used := s.UtilizedMmap()
	assert.Equal(t, MetadataSize+int(s.Head())*256, len(used))
}

func TestIncrementDecrementDeallocations(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, MinDBSize, Block256)
	require.NoError(t, err)
	defer s.Close()

	s.IncrementDeallocations(5)
	assert.Equal(t, uint64(5), s.DeallocatedBlocks())

	s.DecrementDeallocations(2)
	assert.Equal(t, uint64(3), s.DeallocatedBlocks())
}

func TestReloadRepointsToNewFile(t *testing.T) {
	liveDir := t.TempDir()
	snapDir := t.TempDir()

	live, err := Open(liveDir, MinDBSize, Block256)
	require.NoError(t, err)
	live.SetSlot(5)
	live.Alloc(100)
	require.NoError(t, live.Flush(true))

	snap, err := Open(snapDir, MinDBSize, Block256)
	require.NoError(t, err)
	snap.SetSlot(99)
	require.NoError(t, snap.Close())

	require.NoError(t, live.Reload(snapDir))
	defer live.Close()

	assert.Equal(t, uint64(99), live.GetSlot())
}

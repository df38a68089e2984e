// Package storage implements the memory-mapped block arena: a fixed-block
// bump/recycle allocator over a single backing file, with a 256-byte
// metadata header shared by every reader and writer via atomic field
// access on the mapped bytes themselves.
package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"github.com/magicblock-labs/go-accountsdb/pkg/log"
	"github.com/magicblock-labs/go-accountsdb/pkg/metrics"
)

// MetadataSize is the fixed size, in bytes, of the arena's header prefix.
const MetadataSize = 256

// MinDBSize is the smallest arena file the engine will create.
const MinDBSize = 16 * 1024 * 1024

// Metadata header field offsets, little-endian, matching the on-disk layout.
const (
	metaOffHead         = 0
	metaOffSlot         = 8
	metaOffBlockSize    = 16
	metaOffTotalBlocks  = 20
	metaOffDeallocated  = 24
)

// BlockSize is one of the three allowed fixed block sizes.
type BlockSize uint32

// Allowed block sizes.
const (
	Block128 BlockSize = 128
	Block256 BlockSize = 256
	Block512 BlockSize = 512
)

// Valid reports whether b is one of the allowed block sizes.
func (b BlockSize) Valid() bool {
	switch b {
	case Block128, Block256, Block512:
		return true
	default:
		return false
	}
}

// Allocation is a freshly-reserved or recycled run of blocks, ready to be
// written into.
type Allocation struct {
	Offset uint32
	Blocks uint32
}

// ExistingAllocation identifies a previously-made allocation, e.g. one
// returned by the index for recycling or for freeing.
type ExistingAllocation struct {
	Offset uint32
	Blocks uint32
}

// Storage owns the memory-mapped arena file.
type Storage struct {
	path string
	file *os.File
	data []byte
}

// Open opens or creates the arena file at <dir>/accounts.db. dbSize and
// blockSize are only used on first creation; on reopen the persisted
// header values win, except total_blocks is grown (never shrunk) to match
// a larger configured dbSize.
func Open(dir string, dbSize uint64, blockSize BlockSize) (*Storage, error) {
	if !blockSize.Valid() {
		return nil, fmt.Errorf("storage: invalid block size %d: %w", blockSize, ErrInternal)
	}
	if dbSize < MinDBSize {
		dbSize = MinDBSize
	}

	path := filepath.Join(dir, "accounts.db")
	isNew := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		isNew = true
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	totalBlocks := calculateTotalBlocks(dbSize, uint32(blockSize))
	wantSize := MetadataSize + uint64(totalBlocks)*uint64(blockSize)

	if err := adjustFileSize(f, wantSize); err != nil {
		f.Close()
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage: stat %s: %w", path, err)
	}

	data, err := mmapFile(f, int(fi.Size()))
	if err != nil {
		f.Close()
		return nil, err
	}

	s := &Storage{path: path, file: f, data: data}

	if isNew {
		s.initHeader(uint32(blockSize), totalBlocks)
	} else {
		if err := s.validateHeader(); err != nil {
			munmapFile(data)
			f.Close()
			return nil, err
		}
		// grow-only: if the configured size now implies more total
		// blocks than persisted, recompute and persist the larger value.
		if recomputed := calculateTotalBlocksFromFileLen(uint64(fi.Size()), s.blockSizeRaw()); recomputed > s.totalBlocksRaw() {
			atomic.StoreUint32(s.totalBlocksPtr(), recomputed)
		}
	}

	return s, nil
}

func calculateTotalBlocks(dbSize uint64, blockSize uint32) uint32 {
	blocks := ceilDiv(dbSize, uint64(blockSize))
	metaBlocks := ceilDiv(MetadataSize, uint64(blockSize))
	return uint32(blocks + metaBlocks)
}

func calculateTotalBlocksFromFileLen(fileLen uint64, blockSize uint32) uint32 {
	if fileLen < MetadataSize || blockSize == 0 {
		return 0
	}
	return uint32((fileLen - MetadataSize) / uint64(blockSize))
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

// adjustFileSize grows f to at least wantSize bytes. Files are never
// shrunk, matching spec.md's explicit file-shrinking non-goal.
func adjustFileSize(f *os.File, wantSize uint64) error {
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("storage: stat: %w", err)
	}
	if uint64(fi.Size()) >= wantSize {
		return nil
	}
	if err := f.Truncate(int64(wantSize)); err != nil {
		return fmt.Errorf("storage: truncate to %d: %w", wantSize, err)
	}
	return nil
}

func (s *Storage) initHeader(blockSize uint32, totalBlocks uint32) {
	atomic.StoreUint64(s.headPtr(), 0)
	atomic.StoreUint64(s.slotPtr(), 0)
	binary.LittleEndian.PutUint32(s.data[metaOffBlockSize:], blockSize)
	atomic.StoreUint32(s.totalBlocksPtr(), totalBlocks)
	atomic.StoreUint32(s.deallocatedPtr(), 0)
}

func (s *Storage) validateHeader() error {
	if len(s.data) < MetadataSize {
		return fmt.Errorf("storage: mapping smaller than metadata prefix: %w", ErrInternal)
	}
	bs := s.blockSizeRaw()
	if !BlockSize(bs).Valid() {
		return fmt.Errorf("storage: persisted block size %d invalid: %w", bs, ErrInternal)
	}
	if s.totalBlocksRaw() == 0 {
		return fmt.Errorf("storage: persisted total_blocks is zero: %w", ErrInternal)
	}
	return nil
}

func (s *Storage) headPtr() *uint64 {
	return (*uint64)(unsafe.Pointer(&s.data[metaOffHead]))
}

func (s *Storage) slotPtr() *uint64 {
	return (*uint64)(unsafe.Pointer(&s.data[metaOffSlot]))
}

func (s *Storage) totalBlocksPtr() *uint32 {
	return (*uint32)(unsafe.Pointer(&s.data[metaOffTotalBlocks]))
}

func (s *Storage) deallocatedPtr() *uint32 {
	return (*uint32)(unsafe.Pointer(&s.data[metaOffDeallocated]))
}

func (s *Storage) blockSizeRaw() uint32 {
	return binary.LittleEndian.Uint32(s.data[metaOffBlockSize:])
}

func (s *Storage) totalBlocksRaw() uint32 {
	return atomic.LoadUint32(s.totalBlocksPtr())
}

// BlockSize returns the immutable block size chosen at creation.
func (s *Storage) BlockSize() uint32 {
	return s.blockSizeRaw()
}

// TotalBlocks returns the current total block capacity of the arena.
func (s *Storage) TotalBlocks() uint64 {
	return uint64(s.totalBlocksRaw())
}

// DeallocatedBlocks returns the number of blocks currently tracked on the
// free list.
func (s *Storage) DeallocatedBlocks() uint64 {
	return uint64(atomic.LoadUint32(s.deallocatedPtr()))
}

// Head returns the current bump cursor, in blocks.
func (s *Storage) Head() uint64 {
	return atomic.LoadUint64(s.headPtr())
}

// GetSlot returns the last-observed external slot.
func (s *Storage) GetSlot() uint64 {
	return atomic.LoadUint64(s.slotPtr())
}

// SetSlot stores the external slot.
func (s *Storage) SetSlot(slot uint64) {
	atomic.StoreUint64(s.slotPtr(), slot)
}

// IncrementDeallocations adds n to the deallocated-block counter.
func (s *Storage) IncrementDeallocations(n uint32) {
	atomic.AddUint32(s.deallocatedPtr(), n)
}

// DecrementDeallocations subtracts n from the deallocated-block counter.
func (s *Storage) DecrementDeallocations(n uint32) {
	atomic.AddUint32(s.deallocatedPtr(), uint32(-int32(n)))
}

// Alloc bump-allocates enough blocks to hold bytes. If the arena is
// exhausted it logs "database full" at fatal level, which exits the
// process — matching the original's process-fatal "database full"
// assertion.
func (s *Storage) Alloc(bytes uint64) Allocation {
	bs := uint64(s.blockSizeRaw())
	blocks := uint32(ceilDiv(bytes, bs))
	if blocks == 0 {
		blocks = 1
	}

	newHead := atomic.AddUint64(s.headPtr(), uint64(blocks))
	offset := uint32(newHead - uint64(blocks))

	if newHead > uint64(s.totalBlocksRaw()) {
		log.WithComponent("storage").Fatal().
			Uint64("head", newHead).
			Uint32("total_blocks", s.totalBlocksRaw()).
			Msg("database full")
	}

	return Allocation{Offset: offset, Blocks: blocks}
}

// Recycle returns an Allocation over a previously-freed run of blocks
// without touching head.
func (s *Storage) Recycle(existing ExistingAllocation) Allocation {
	return Allocation{Offset: existing.Offset, Blocks: existing.Blocks}
}

// Offset returns the raw byte slice for the given allocation, spanning its
// full block range. Callers must not retain this slice across a Reload.
func (s *Storage) Offset(offset, blocks uint32) []byte {
	bs := uint64(s.blockSizeRaw())
	start := MetadataSize + uint64(offset)*bs
	end := start + uint64(blocks)*bs
	return s.data[start:end]
}

// ReadAccount deserializes the account record stored at the given
// allocation.
func (s *Storage) ReadAccount(offset, blocks uint32) (Account, error) {
	return DecodeAccount(s.Offset(offset, blocks))
}

// UtilizedMmap returns the prefix of the arena that snapshotting must
// copy: the metadata header plus every block up to head.
func (s *Storage) UtilizedMmap() []byte {
	bs := uint64(s.blockSizeRaw())
	used := MetadataSize + s.Head()*bs
	return s.data[:used]
}

// Path returns the backing file's path.
func (s *Storage) Path() string {
	return s.path
}

// Size returns the full mapped size of the arena in bytes.
func (s *Storage) Size() uint64 {
	return uint64(len(s.data))
}

// Flush syncs the mapping to the backing file. sync selects a blocking
// msync; otherwise the flush is scheduled asynchronously.
func (s *Storage) Flush(sync bool) error {
	return msync(s.data, !sync)
}

// Close unmaps and closes the backing file.
func (s *Storage) Close() error {
	if err := munmapFile(s.data); err != nil {
		return err
	}
	return s.file.Close()
}

// Reload unmaps the current file and remaps the file at dir/accounts.db,
// which the caller must have already put in place (e.g. by copying a
// snapshot's truncated arena prefix over the live path). Since a snapshot
// only holds the used prefix, the file is grown back out to the capacity
// implied by its own persisted header before mapping, matching spec.md's
// "readjust file length to the configured size" reload contract. Must be
// called with the stop-the-world lock held exclusively.
func (s *Storage) Reload(dir string) error {
	if err := munmapFile(s.data); err != nil {
		return err
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("storage: close during reload: %w", err)
	}

	path := filepath.Join(dir, "accounts.db")
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("storage: reopen %s: %w", path, err)
	}

	header := make([]byte, MetadataSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		f.Close()
		return fmt.Errorf("storage: read header from %s: %w", path, err)
	}
	blockSize := binary.LittleEndian.Uint32(header[metaOffBlockSize:])
	totalBlocks := binary.LittleEndian.Uint32(header[metaOffTotalBlocks:])
	if !BlockSize(blockSize).Valid() || totalBlocks == 0 {
		f.Close()
		return fmt.Errorf("storage: reload header invalid (block_size=%d total_blocks=%d): %w", blockSize, totalBlocks, ErrInternal)
	}

	wantSize := MetadataSize + uint64(totalBlocks)*uint64(blockSize)
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("storage: stat %s: %w", path, err)
	}
	if uint64(fi.Size()) < wantSize {
		metrics.StorageGrowthsTotal.Inc()
	}
	if err := adjustFileSize(f, wantSize); err != nil {
		f.Close()
		return err
	}

	data, err := mmapFile(f, int(wantSize))
	if err != nil {
		f.Close()
		return err
	}

	s.path = path
	s.file = f
	s.data = data
	return s.validateHeader()
}

// Package accountsdb composes the memory-mapped arena (internal/storage),
// the four-part index stack (internal/index), the snapshot ring
// (internal/snapshot), and the stop-the-world gate (internal/stw) into the
// single account store and lifecycle driver the rest of the engine talks
// to.
package accountsdb

import (
	"errors"
	"fmt"
	"time"

	"github.com/magicblock-labs/go-accountsdb/internal/index"
	"github.com/magicblock-labs/go-accountsdb/internal/parallel"
	"github.com/magicblock-labs/go-accountsdb/internal/snapshot"
	"github.com/magicblock-labs/go-accountsdb/internal/storage"
	"github.com/magicblock-labs/go-accountsdb/internal/stw"
	"github.com/magicblock-labs/go-accountsdb/pkg/log"
	"github.com/magicblock-labs/go-accountsdb/pkg/metrics"
)

// Entry pairs an account key with its decoded record, the shape every
// scan/iteration operation yields.
type Entry struct {
	Key     storage.Pubkey
	Account storage.Account
}

// Params are the tunables needed to open a DB, the Go-native equivalent of
// the original's AccountsDbConfig.
type Params struct {
	DBSize                   uint64
	BlockSize                storage.BlockSize
	SnapshotFrequency        uint64
	MaxSnapshots             int
	PreemptiveFlushThreshold uint64
}

// DB is the account store and lifecycle driver. All mutating and reading
// operations acquire the stop-the-world lock in shared mode; only snapshot
// creation and rollback acquire it exclusively.
type DB struct {
	root string

	storage *storage.Storage
	index   *index.Index
	snap    *snapshot.Engine
	lock    *stw.Lock

	snapshotFrequency   uint64
	preemptiveThreshold uint64
}

// Open opens or creates an accounts database rooted at root, laying out
// accounts.db, the three index environments, and a snapshots/ directory
// beneath it.
func Open(root string, p Params) (*DB, error) {
	if p.SnapshotFrequency == 0 {
		log.WithComponent("accountsdb").Fatal().Msg("snapshot_frequency must be > 0")
	}

	st, err := storage.Open(root, p.DBSize, p.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("accountsdb: open storage: %w", err)
	}

	ix, err := index.Open(root)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("accountsdb: open index: %w", err)
	}

	maxSnapshots := p.MaxSnapshots
	if maxSnapshots <= 0 {
		maxSnapshots = 1
	}
	snap, err := snapshot.Open(root+"/snapshots", maxSnapshots)
	if err != nil {
		st.Close()
		ix.Close()
		return nil, fmt.Errorf("accountsdb: open snapshot engine: %w", err)
	}

	return &DB{
		root:                root,
		storage:             st,
		index:               ix,
		snap:                snap,
		lock:                &stw.Lock{},
		snapshotFrequency:   p.SnapshotFrequency,
		preemptiveThreshold: p.PreemptiveFlushThreshold,
	}, nil
}

// Get returns the decoded record for key, or ErrNotFound.
func (db *DB) Get(key storage.Pubkey) (storage.Account, error) {
	defer db.lock.Shared()()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AccountGetDuration)

	offset, blocks, found, err := db.index.GetAccountOffset(key)
	if err != nil {
		return storage.Account{}, &IndexIOError{Op: "get", Err: err}
	}
	if !found {
		return storage.Account{}, ErrNotFound
	}

	acc, err := db.storage.ReadAccount(offset, blocks)
	if err != nil {
		return storage.Account{}, fmt.Errorf("accountsdb: decode account: %w: %w", err, ErrInternal)
	}
	return acc, nil
}

// Contains reports whether key has a live primary-index entry.
func (db *DB) Contains(key storage.Pubkey) (bool, error) {
	defer db.lock.Shared()()

	_, _, found, err := db.index.GetAccountOffset(key)
	if err != nil {
		return false, &IndexIOError{Op: "contains", Err: err}
	}
	return found, nil
}

// Insert writes record under key. A zero-lamport record is routed to
// Remove, matching the original's "lamports == 0 means the account is
// closed" convention.
func (db *DB) Insert(key storage.Pubkey, record storage.Account) error {
	if record.Lamports == 0 {
		return db.Remove(key)
	}

	defer db.lock.Shared()()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AccountInsertDuration)

	return db.insertLocked(key, record)
}

func (db *DB) insertLocked(key storage.Pubkey, record storage.Account) error {
	offset, blocks, found, err := db.index.GetAccountOffset(key)
	if err != nil {
		return &IndexIOError{Op: "insert:lookup", Err: err}
	}

	if found && storage.FitsInPlace(db.storage.Offset(offset, blocks), len(record.Data)) {
		// Owner-index fix-up runs before the shadow-buffer publish, so a
		// reader that observes the new owner-index entry is guaranteed to
		// also observe the new record once it reads the arena.
		if err := db.index.EnsureCorrectOwner(key, record.Owner, offset); err != nil {
			log.WithOwner(fmt.Sprintf("%x", record.Owner)).With().Str("component", "accountsdb").Logger().
				Warn().Err(err).Msg("failed to repair owner index ahead of in-place update")
			return &IndexIOError{Op: "insert:ensure_owner", Err: err}
		}
		if err := storage.UpdateInPlace(db.storage.Offset(offset, blocks), record); err != nil {
			return fmt.Errorf("accountsdb: update in place: %w: %w", err, ErrInternal)
		}
		return nil
	}

	bytes := storage.RecordSize(len(record.Data))
	needed := uint32((bytes + uint64(db.storage.BlockSize()) - 1) / uint64(db.storage.BlockSize()))
	if needed == 0 {
		needed = 1
	}

	var alloc storage.Allocation
	recycled, err := db.index.TryRecycleAllocation(needed)
	if err != nil {
		return &IndexIOError{Op: "insert:recycle", Err: err}
	}
	if recycled != nil {
		alloc = db.storage.Recycle(*recycled)
		db.storage.DecrementDeallocations(recycled.Blocks)
		metrics.RecycledAllocationsTotal.Inc()
	} else {
		alloc = db.storage.Alloc(bytes)
	}

	if err := storage.EncodeInitial(db.storage.Offset(alloc.Offset, alloc.Blocks), record); err != nil {
		return fmt.Errorf("accountsdb: encode record: %w: %w", err, ErrInternal)
	}

	prior, err := db.index.InsertAccount(key, record.Owner, alloc.Offset, alloc.Blocks)
	if err != nil {
		return &IndexIOError{Op: "insert:update_index", Err: err}
	}

	if prior != nil {
		if err := db.index.PushFreeList(prior.Offset, prior.Blocks); err != nil {
			return &IndexIOError{Op: "insert:push_free_list", Err: err}
		}
		db.storage.IncrementDeallocations(prior.Blocks)

		log.WithPubkey(fmt.Sprintf("%x", key)).With().Str("component", "accountsdb").Logger().
			Debug().Uint32("offset", prior.Offset).Uint32("blocks", prior.Blocks).
			Msg("account grew past its allocation, prior blocks pushed to free list")
	}

	return nil
}

// Remove deletes key's entry, pushing its allocation to the free list.
// Removing an absent key returns ErrNotFound.
func (db *DB) Remove(key storage.Pubkey) error {
	defer db.lock.Shared()()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AccountRemoveDuration)

	offset, blocks, _, found, err := db.index.RemoveAccount(key)
	if err != nil {
		return &IndexIOError{Op: "remove", Err: err}
	}
	if !found {
		return ErrNotFound
	}

	if err := db.index.PushFreeList(offset, blocks); err != nil {
		log.WithPubkey(fmt.Sprintf("%x", key)).With().Str("component", "accountsdb").Logger().
			Warn().Err(err).Msg("failed to push removed account's allocation to the free list")
		return &IndexIOError{Op: "remove:push_free_list", Err: err}
	}
	db.storage.IncrementDeallocations(blocks)
	return nil
}

// MatchesAnyOwner reads key's owner directly from the arena, without
// decoding the full record, and returns the index of the first matching
// entry in owners. Returns ErrNotFound if key is absent or matches none.
func (db *DB) MatchesAnyOwner(key storage.Pubkey, owners []storage.Pubkey) (int, error) {
	defer db.lock.Shared()()

	offset, blocks, found, err := db.index.GetAccountOffset(key)
	if err != nil {
		return 0, &IndexIOError{Op: "matches_any_owner", Err: err}
	}
	if !found {
		return 0, ErrNotFound
	}

	owner, err := storage.ReadOwner(db.storage.Offset(offset, blocks))
	if err != nil {
		return 0, fmt.Errorf("accountsdb: read owner: %w: %w", err, ErrInternal)
	}

	for i, o := range owners {
		if o == owner {
			return i, nil
		}
	}
	return 0, ErrNotFound
}

// ScanProgram returns every (key, account) pair currently indexed under
// owner for which filter returns true. filter may be nil to keep everything.
func (db *DB) ScanProgram(owner storage.Pubkey, filter func(storage.Pubkey, storage.Account) bool) ([]Entry, error) {
	defer db.lock.Shared()()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ProgramScanDuration)

	progEntries, err := db.index.GetProgramAccountsIter(owner)
	if err != nil {
		return nil, &IndexIOError{Op: "scan_program", Err: err}
	}

	entries, err := db.readAndFilter(progEntries, filter)
	if err != nil {
		return nil, err
	}
	metrics.ProgramScanResultsTotal.Observe(float64(len(entries)))
	return entries, nil
}

// IterAll returns every indexed (key, account) pair.
func (db *DB) IterAll() ([]Entry, error) {
	defer db.lock.Shared()()

	progEntries, err := db.index.GetAllAccounts()
	if err != nil {
		return nil, &IndexIOError{Op: "iter_all", Err: err}
	}
	return db.readAndFilter(progEntries, nil)
}

func (db *DB) readAndFilter(progEntries []index.ProgramEntry, filter func(storage.Pubkey, storage.Account) bool) ([]Entry, error) {
	type decoded struct {
		entry Entry
		keep  bool
		err   error
	}

	decodedEntries := make([]decoded, len(progEntries))
	for i, pe := range progEntries {
		offset, blocks, found, err := db.index.GetAccountOffset(pe.Key)
		if err != nil {
			decodedEntries[i] = decoded{err: err}
			continue
		}
		if !found {
			continue
		}
		acc, err := db.storage.ReadAccount(offset, blocks)
		if err != nil {
			decodedEntries[i] = decoded{err: err}
			continue
		}
		decodedEntries[i] = decoded{entry: Entry{Key: pe.Key, Account: acc}, keep: true}
	}

	for _, d := range decodedEntries {
		if d.err != nil {
			return nil, &IndexIOError{Op: "scan:decode", Err: d.err}
		}
	}

	kept := parallel.Filter(decodedEntries, parallel.DefaultThreshold, func(d decoded) bool {
		return d.keep && (filter == nil || filter(d.entry.Key, d.entry.Account))
	})

	entries := make([]Entry, 0, len(kept))
	for _, d := range kept {
		entries = append(entries, d.entry)
	}
	return entries, nil
}

// Slot returns the last-observed external slot.
func (db *DB) Slot() uint64 {
	return db.storage.GetSlot()
}

// SetSlot records the external slot and drives the preemptive-flush and
// snapshot rules: an asynchronous flush fires at
// slot % frequency == frequency - preemptiveThreshold, and a synchronous
// flush plus a new snapshot fire at slot % frequency == 0.
func (db *DB) SetSlot(slot uint64) {
	db.storage.SetSlot(slot)

	r := slot % db.snapshotFrequency

	slotLog := log.WithSlot(slot).With().Str("component", "accountsdb").Logger()

	if db.preemptiveThreshold > 0 && r == db.snapshotFrequency-db.preemptiveThreshold {
		if err := db.Flush(false); err != nil {
			slotLog.Warn().Err(err).Msg("preemptive flush failed")
		}
	}

	if r == 0 {
		release := db.lock.Exclusive()
		err := db.Flush(true)
		if err == nil {
			timer := metrics.NewTimer()
			err = db.snap.Snapshot(slot, db.storage.Path(), uint64(len(db.storage.UtilizedMmap())), db.index.FilePaths(), db.index.Root())
			timer.ObserveDuration(metrics.SnapshotDuration)
		}
		release()

		if err != nil {
			slotLog.Warn().Err(err).Msg("snapshot failed")
		} else {
			metrics.SnapshotsTotal.Inc()
		}
	}
}

// EnsureAtMost rolls the database back to the newest snapshot at or before
// targetSlot if the current slot is more than one ahead of targetSlot;
// otherwise it is a no-op. Returns the slot the database ends up at.
func (db *DB) EnsureAtMost(targetSlot uint64) (uint64, error) {
	current := db.Slot()
	if current == 0 || targetSlot >= current-1 {
		return current, nil
	}

	release := db.lock.Exclusive()
	defer release()

	slotLog := log.WithSlot(targetSlot).With().Str("component", "accountsdb").Logger()

	start := time.Now()
	rbSlot, path, err := db.snap.TrySwitchToSnapshot(targetSlot)
	if err != nil {
		slotLog.Warn().Err(err).Msg("rollback failed: no snapshot at or before target slot")
		return 0, &SnapshotIOError{Op: "ensure_at_most:switch", Err: err}
	}

	if err := db.storage.Reload(path); err != nil {
		slotLog.Warn().Err(err).Msg("rollback failed: storage reload")
		return 0, &SnapshotIOError{Op: "ensure_at_most:storage_reload", Err: err}
	}
	if err := db.index.Reload(path); err != nil {
		slotLog.Warn().Err(err).Msg("rollback failed: index reload")
		return 0, &SnapshotIOError{Op: "ensure_at_most:index_reload", Err: err}
	}

	metrics.RollbacksTotal.Inc()
	metrics.RollbackDuration.Observe(time.Since(start).Seconds())
	return rbSlot, nil
}

// Flush persists the arena and, if sync is true, every index environment.
func (db *DB) Flush(sync bool) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FlushDuration)
	metrics.FlushesTotal.Inc()

	if err := db.storage.Flush(sync); err != nil {
		return fmt.Errorf("accountsdb: flush storage: %w", err)
	}
	if err := db.index.Flush(sync); err != nil {
		return &IndexIOError{Op: "flush", Err: err}
	}
	return nil
}

// Size returns the static byte size of the arena mapping.
func (db *DB) Size() uint64 {
	return db.storage.Size()
}

// AccountsCount returns the number of live primary-index entries. Index
// I/O failures are logged and reported as zero, matching the infallible
// accounts_count() contract the metrics collector and the inspect command
// rely on.
func (db *DB) AccountsCount() uint64 {
	n, err := db.index.AccountsCount()
	if err != nil {
		log.WithComponent("accountsdb").Warn().Err(err).Msg("accounts_count failed")
		return 0
	}
	return n
}

// TotalBlocks returns the arena's current total block capacity.
func (db *DB) TotalBlocks() uint64 {
	return db.storage.TotalBlocks()
}

// DeallocatedBlocks returns the number of blocks currently on the free list.
func (db *DB) DeallocatedBlocks() uint64 {
	return db.storage.DeallocatedBlocks()
}

// UtilizedBytes returns the byte length of the arena's used prefix.
func (db *DB) UtilizedBytes() uint64 {
	return uint64(len(db.storage.UtilizedMmap()))
}

// SizeBytes is an alias for Size, satisfying pkg/metrics.Stats.
func (db *DB) SizeBytes() uint64 {
	return db.Size()
}

// SnapshotsHeld returns the number of snapshots currently retained.
func (db *DB) SnapshotsHeld() int {
	return db.snap.Held()
}

// SnapshotExists reports whether a snapshot for slot is currently held.
func (db *DB) SnapshotExists(slot uint64) bool {
	return db.snap.SnapshotExists(slot)
}

// Close releases the arena mapping and all index environments.
func (db *DB) Close() error {
	var firstErr error
	if err := db.storage.Close(); err != nil {
		firstErr = err
	}
	if err := db.index.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Package index implements the four-part secondary index stack (primary,
// owner, free-list, reverse-owner) on top of go.etcd.io/bbolt, the one
// embedded ordered key/value engine in the example pack that offers
// cursors and byte-wise key ordering across independent environments —
// the properties the original LMDB-backed index relies on. bbolt has no
// native DUPSORT, so the owner multi-map and the free-list multi-map are
// each flattened into composite keys (see keys.go) walked with prefix
// seeks instead of MDB_NEXT_DUP/MDB_SET_RANGE.
package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/magicblock-labs/go-accountsdb/internal/storage"
	"github.com/magicblock-labs/go-accountsdb/pkg/log"
	"github.com/magicblock-labs/go-accountsdb/pkg/metrics"
	bolt "go.etcd.io/bbolt"
)

func observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.IndexOperationsTotal.WithLabelValues(op, outcome).Inc()
	metrics.IndexOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

var (
	bucketAccounts = []byte("accounts")
	bucketPrograms = []byte("programs")
	bucketDealloc  = []byte("deallocations")
	bucketOwners   = []byte("owners")
)

// ProgramEntry is one (offset, key) pair yielded by an owner-index scan.
type ProgramEntry struct {
	Offset uint32
	Key    storage.Pubkey
}

// Index owns the three bbolt environments backing the four logical
// indexes. The primary and owner indexes share one environment (as in the
// original, where they are two named databases in one LMDB environment);
// the free-list and reverse-owner indexes are each a standalone
// environment, matching the original's own standalone-environment design.
type Index struct {
	root       string
	accountsDB *bolt.DB
	deallocDB  *bolt.DB
	ownersDB   *bolt.DB
}

// Open opens (creating if absent) the index environments rooted at root.
func Open(root string) (*Index, error) {
	accountsDB, err := openBolt(filepath.Join(root, "accounts"), bucketAccounts, bucketPrograms)
	if err != nil {
		return nil, err
	}
	deallocDB, err := openBolt(filepath.Join(root, "deallocations"), bucketDealloc)
	if err != nil {
		accountsDB.Close()
		return nil, err
	}
	ownersDB, err := openBolt(filepath.Join(root, "owners"), bucketOwners)
	if err != nil {
		accountsDB.Close()
		deallocDB.Close()
		return nil, err
	}

	return &Index{
		root:       root,
		accountsDB: accountsDB,
		deallocDB:  deallocDB,
		ownersDB:   ownersDB,
	}, nil
}

func openBolt(dir string, buckets ...[]byte) (*bolt.DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("index: mkdir %s: %w", dir, err)
	}

	path := filepath.Join(dir, "index.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// GetAccountOffset returns the primary index entry for key.
func (ix *Index) GetAccountOffset(key storage.Pubkey) (offset, blocks uint32, found bool, err error) {
	start := time.Now()
	defer func() { observe("get_account_offset", start, err) }()

	err = ix.accountsDB.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAccounts).Get(key[:])
		if v == nil {
			return nil
		}
		offset, blocks = decodeOffsetBlocks(v)
		found = true
		return nil
	})
	return
}

// InsertAccount writes the primary entry for key and repoints the owner
// index to (owner, offset, key), returning the account's previous
// allocation if one existed so the caller can return it to the free list.
//
// The accounts+programs update and the owners-environment update are two
// separate bbolt transactions against two separate files; a crash between
// them leaves the reverse-owner index briefly stale. This mirrors the
// original's own use of a standalone LMDB environment for "owners" and is
// the accepted two-phase-commit-free trade-off documented in DESIGN.md.
func (ix *Index) InsertAccount(key, owner storage.Pubkey, offset, blocks uint32) (prior *storage.ExistingAllocation, err error) {
	start := time.Now()
	defer func() { observe("insert_account", start, err) }()

	if err := ix.accountsDB.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAccounts).Get(key[:])
		if v != nil {
			po, pb := decodeOffsetBlocks(v)
			prior = &storage.ExistingAllocation{Offset: po, Blocks: pb}
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("index: read prior account: %w", err)
	}

	var priorOwner storage.Pubkey
	hadPriorOwner := false
	if prior != nil {
		if err := ix.ownersDB.View(func(tx *bolt.Tx) error {
			v := tx.Bucket(bucketOwners).Get(key[:])
			if v != nil {
				copy(priorOwner[:], v)
				hadPriorOwner = true
			}
			return nil
		}); err != nil {
			return nil, fmt.Errorf("index: read prior owner: %w", err)
		}
		if !hadPriorOwner {
			log.WithComponent("index").Warn().
				Str("key", fmt.Sprintf("%x", key)).
				Msg("reverse-owner entry missing for existing account, owner-index cleanup skipped")
		}
	}

	err = ix.accountsDB.Update(func(tx *bolt.Tx) error {
		ab := tx.Bucket(bucketAccounts)
		pb := tx.Bucket(bucketPrograms)

		if err := ab.Put(key[:], encodeOffsetBlocks(offset, blocks)); err != nil {
			return err
		}
		if hadPriorOwner {
			if err := pb.Delete(programKey(priorOwner, key, prior.Offset)); err != nil {
				return err
			}
		}
		return pb.Put(programKey(owner, key, offset), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("index: update accounts/programs: %w", err)
	}

	if err := ix.ownersDB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOwners).Put(key[:], owner[:])
	}); err != nil {
		return nil, fmt.Errorf("index: update owners: %w", err)
	}

	return prior, nil
}

// RemoveAccount deletes the primary, owner, and reverse-owner entries for
// key, returning its last allocation so the caller can push it to the
// free list. found is false if the key was absent.
func (ix *Index) RemoveAccount(key storage.Pubkey) (offset, blocks uint32, owner storage.Pubkey, found bool, err error) {
	start := time.Now()
	defer func() { observe("remove_account", start, err) }()

	var ownerBuf []byte
	if err = ix.ownersDB.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketOwners).Get(key[:]); v != nil {
			ownerBuf = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		err = fmt.Errorf("index: read owner: %w", err)
		return
	}
	if ownerBuf != nil {
		copy(owner[:], ownerBuf)
	}

	err = ix.accountsDB.Update(func(tx *bolt.Tx) error {
		ab := tx.Bucket(bucketAccounts)
		pb := tx.Bucket(bucketPrograms)

		v := ab.Get(key[:])
		if v == nil {
			return nil
		}
		offset, blocks = decodeOffsetBlocks(v)
		found = true

		if err := ab.Delete(key[:]); err != nil {
			return err
		}
		if ownerBuf != nil {
			if err := pb.Delete(programKey(owner, key, offset)); err != nil {
				return err
			}
		} else {
			log.WithComponent("index").Warn().
				Str("key", fmt.Sprintf("%x", key)).
				Msg("reverse-owner entry missing on remove, owner-index cleanup skipped")
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("index: update accounts/programs: %w", err)
		return
	}
	if !found {
		return
	}

	if err = ix.ownersDB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOwners).Delete(key[:])
	}); err != nil {
		err = fmt.Errorf("index: delete owner: %w", err)
		return
	}
	return
}

// EnsureCorrectOwner repairs the owner index and reverse-owner entry for
// key if the reverse-owner entry currently disagrees with newOwner.
func (ix *Index) EnsureCorrectOwner(key, newOwner storage.Pubkey, offset uint32) (err error) {
	start := time.Now()
	defer func() { observe("ensure_correct_owner", start, err) }()

	var oldOwner storage.Pubkey
	hadOld := false
	if err = ix.ownersDB.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketOwners).Get(key[:])
		if v != nil {
			copy(oldOwner[:], v)
			hadOld = true
		}
		return nil
	}); err != nil {
		err = fmt.Errorf("index: read owner: %w", err)
		return err
	}

	if hadOld && oldOwner == newOwner {
		return nil
	}

	err = ix.accountsDB.Update(func(tx *bolt.Tx) error {
		pb := tx.Bucket(bucketPrograms)
		if hadOld {
			if err := pb.Delete(programKey(oldOwner, key, offset)); err != nil {
				return err
			}
		}
		return pb.Put(programKey(newOwner, key, offset), nil)
	})
	if err != nil {
		err = fmt.Errorf("index: rewrite owner entry: %w", err)
		return err
	}

	if err = ix.ownersDB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOwners).Put(key[:], newOwner[:])
	}); err != nil {
		err = fmt.Errorf("index: update owner: %w", err)
		return err
	}
	return nil
}

// GetProgramAccountsIter returns every (offset, key) entry for owner, in
// key order, via a prefix seek over the owner-index composite keys.
func (ix *Index) GetProgramAccountsIter(owner storage.Pubkey) (entries []ProgramEntry, err error) {
	start := time.Now()
	defer func() { observe("get_program_accounts_iter", start, err) }()

	err = ix.accountsDB.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPrograms).Cursor()
		prefix := owner[:]
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			_, offset, key := decodeProgramKey(k)
			entries = append(entries, ProgramEntry{Offset: offset, Key: key})
		}
		return nil
	})
	return entries, err
}

// GetAllAccounts returns every owner-index entry across all owners.
func (ix *Index) GetAllAccounts() (entries []ProgramEntry, err error) {
	start := time.Now()
	defer func() { observe("get_all_accounts", start, err) }()

	err = ix.accountsDB.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPrograms).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			_, offset, key := decodeProgramKey(k)
			entries = append(entries, ProgramEntry{Offset: offset, Key: key})
		}
		return nil
	})
	return entries, err
}

// TryRecycleAllocation looks for the smallest free-list hole with at
// least neededBlocks blocks, removing and returning it. It returns
// (nil, nil) if no such hole exists, matching the "fall back to alloc"
// contract in spec.md §4.4.
func (ix *Index) TryRecycleAllocation(neededBlocks uint32) (result *storage.ExistingAllocation, err error) {
	start := time.Now()
	defer func() { observe("try_recycle_allocation", start, err) }()

	err = ix.deallocDB.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketDealloc).Cursor()
		prefix := make([]byte, 4)
		binary.BigEndian.PutUint32(prefix, neededBlocks)

		k, _ := c.Seek(prefix)
		if k == nil {
			return nil
		}
		blocks, offset := decodeFreeListKey(k)
		result = &storage.ExistingAllocation{Offset: offset, Blocks: blocks}
		return c.Delete()
	})
	return result, err
}

// PushFreeList records a deallocated run of blocks for future recycling.
func (ix *Index) PushFreeList(offset, blocks uint32) (err error) {
	start := time.Now()
	defer func() { observe("push_free_list", start, err) }()

	err = ix.deallocDB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDealloc).Put(freeListKey(blocks, offset), nil)
	})
	return err
}

// AccountsCount returns the number of live primary-index entries.
func (ix *Index) AccountsCount() (n uint64, err error) {
	start := time.Now()
	defer func() { observe("accounts_count", start, err) }()

	err = ix.accountsDB.View(func(tx *bolt.Tx) error {
		n = uint64(tx.Bucket(bucketAccounts).Stats().KeyN)
		return nil
	})
	return n, err
}

// Flush fsyncs every index environment when sync is true; it is a no-op
// otherwise, since bbolt transactions are already durable on commit and
// there is no cheaper "schedule, don't wait" equivalent to expose.
func (ix *Index) Flush(sync bool) (err error) {
	if !sync {
		return nil
	}

	start := time.Now()
	defer func() { observe("flush", start, err) }()

	for _, db := range []*bolt.DB{ix.accountsDB, ix.deallocDB, ix.ownersDB} {
		if err = db.Sync(); err != nil {
			err = fmt.Errorf("index: sync: %w", err)
			return err
		}
	}
	return nil
}

// Root returns the index root directory, the base every FilePaths entry
// is relative to.
func (ix *Index) Root() string {
	return ix.root
}

// FilePaths returns the on-disk file for each of the three bbolt
// environments, for the snapshot engine to copy.
func (ix *Index) FilePaths() []string {
	return []string{
		filepath.Join(ix.root, "accounts", "index.db"),
		filepath.Join(ix.root, "deallocations", "index.db"),
		filepath.Join(ix.root, "owners", "index.db"),
	}
}

// Close closes all three bbolt environments.
func (ix *Index) Close() error {
	var firstErr error
	for _, db := range []*bolt.DB{ix.accountsDB, ix.deallocDB, ix.ownersDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Reload closes the current environments and reopens them at root, which
// the caller must have already populated (e.g. by copying a snapshot's
// index files over the live path). Must be called with the stop-the-world
// lock held exclusively.
func (ix *Index) Reload(root string) error {
	if err := ix.Close(); err != nil {
		return fmt.Errorf("index: close during reload: %w", err)
	}
	reopened, err := Open(root)
	if err != nil {
		return err
	}
	*ix = *reopened
	return nil
}

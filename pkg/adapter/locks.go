package adapter

import (
	"fmt"
	"sync"

	"github.com/magicblock-labs/go-accountsdb/internal/storage"
)

// ErrAccountInUse is returned when a requested lock conflicts with one
// already held, mirroring the original's TransactionError::AccountInUse.
var ErrAccountInUse = fmt.Errorf("adapter: account in use")

// LockSet is the account-lock table guarding concurrent access to account
// state ahead of a mutation, trimmed from the original's AccountLocks:
// one writer at a time per key, any number of concurrent readers per key,
// and a writer excludes all readers.
type LockSet struct {
	mu          sync.Mutex
	writeLocks  map[storage.Pubkey]struct{}
	readerCount map[storage.Pubkey]int
}

// NewLockSet returns an empty lock table.
func NewLockSet() *LockSet {
	return &LockSet{
		writeLocks:  make(map[storage.Pubkey]struct{}),
		readerCount: make(map[storage.Pubkey]int),
	}
}

func (l *LockSet) isLockedWrite(k storage.Pubkey) bool {
	_, ok := l.writeLocks[k]
	return ok
}

func (l *LockSet) isLockedReadonly(k storage.Pubkey) bool {
	return l.readerCount[k] > 0
}

// LockWritable attempts to take exclusive write locks on every key in
// writable and shared read locks on every key in readonly, atomically: if
// any key conflicts, no lock in the batch is taken and ErrAccountInUse is
// returned.
func (l *LockSet) LockWritable(writable, readonly []storage.Pubkey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, k := range writable {
		if l.isLockedWrite(k) || l.isLockedReadonly(k) {
			return fmt.Errorf("%w: %x", ErrAccountInUse, k)
		}
	}
	for _, k := range readonly {
		if l.isLockedWrite(k) {
			return fmt.Errorf("%w: %x", ErrAccountInUse, k)
		}
	}

	for _, k := range writable {
		l.writeLocks[k] = struct{}{}
	}
	for _, k := range readonly {
		l.readerCount[k]++
	}
	return nil
}

// LockReadonly takes shared read locks on every key, failing the whole
// batch if any key is currently write-locked.
func (l *LockSet) LockReadonly(readonly []storage.Pubkey) error {
	return l.LockWritable(nil, readonly)
}

// Unlock releases the write and read locks taken by a prior LockWritable
// (or LockReadonly, passing nil for writable) call.
func (l *LockSet) Unlock(writable, readonly []storage.Pubkey) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, k := range writable {
		delete(l.writeLocks, k)
	}
	for _, k := range readonly {
		if n := l.readerCount[k]; n <= 1 {
			delete(l.readerCount, k)
		} else {
			l.readerCount[k] = n - 1
		}
	}
}

package accountsdb

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get/Remove/MatchesAnyOwner lookups that miss.
// Callers are expected to treat it as benign. A free-list recycle miss is
// not an error: Insert falls back to a fresh bump allocation.
var ErrNotFound = errors.New("accountsdb: not found")

// ErrInternal signals a broken invariant in a stored record: an account
// that cannot be encoded into, decoded from, or have its owner read from
// its arena allocation. Arena open failures (mapping too small for its
// metadata header, block size outside the allowed set) wrap
// storage.ErrInternal instead.
var ErrInternal = errors.New("accountsdb: internal invariant violation")

// IndexIOError wraps any error surfaced by the underlying bbolt
// environments.
type IndexIOError struct {
	Op  string
	Err error
}

func (e *IndexIOError) Error() string {
	return fmt.Sprintf("accountsdb: index io (%s): %v", e.Op, e.Err)
}

func (e *IndexIOError) Unwrap() error {
	return e.Err
}

// SnapshotIOError wraps any error surfaced by the snapshot engine.
type SnapshotIOError struct {
	Op  string
	Err error
}

func (e *SnapshotIOError) Error() string {
	return fmt.Sprintf("accountsdb: snapshot io (%s): %v", e.Op, e.Err)
}

func (e *SnapshotIOError) Unwrap() error {
	return e.Err
}

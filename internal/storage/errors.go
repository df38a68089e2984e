package storage

import "errors"

// ErrInternal marks invariant violations discovered while opening or
// validating the arena: header too small, bad block size, zero total
// blocks. These are fatal at startup.
var ErrInternal = errors.New("storage: internal invariant violation")

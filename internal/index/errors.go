package index

import "errors"

// ErrNotFound names a benign miss. The lookups in this package do not
// return it: an absent key is reported as found == false, an empty owner
// scan as an empty slice, and a missing free-list hole as a nil
// allocation.
var ErrNotFound = errors.New("index: not found")

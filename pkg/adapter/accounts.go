// Package adapter is the external-interface boundary between an executor
// (out of scope here) and the accounts engine: it translates batches of
// executor-produced mutations into sequential store calls, and exposes the
// reverse-direction reads the executor needs. No persistence logic lives
// here — it is a thin translation layer over internal/accountsdb.
package adapter

import (
	"fmt"

	"github.com/magicblock-labs/go-accountsdb/internal/accountsdb"
	"github.com/magicblock-labs/go-accountsdb/internal/storage"
	"github.com/magicblock-labs/go-accountsdb/pkg/log"
)

// Mutation is one executor-produced account change to apply. An Account
// with zero lamports is a removal, matching the store's own convention.
type Mutation struct {
	Key     storage.Pubkey
	Account storage.Account
	Remove  bool
}

// Accounts wraps a *accountsdb.DB with the executor-facing surface:
// batched mutation application plus the read operations the executor
// needs to resolve account state and program ownership.
type Accounts struct {
	db *accountsdb.DB
}

// New wraps db for executor-facing use.
func New(db *accountsdb.DB) *Accounts {
	return &Accounts{db: db}
}

// ApplyMutations applies a batch of mutations in order, logging (but not
// aborting on) individual failures, and returns the keys that failed.
func (a *Accounts) ApplyMutations(slot uint64, muts []Mutation) []storage.Pubkey {
	a.db.SetSlot(slot)

	var failed []storage.Pubkey
	for _, m := range muts {
		var err error
		if m.Remove || m.Account.Lamports == 0 {
			err = a.db.Remove(m.Key)
		} else {
			err = a.db.Insert(m.Key, m.Account)
		}
		if err != nil && !accountsdb.IsNotFound(err) {
			log.WithComponent("adapter").Warn().
				Str("key", fmt.Sprintf("%x", m.Key)).
				Err(err).
				Msg("failed to apply account mutation")
			failed = append(failed, m.Key)
		}
	}
	return failed
}

// Load returns the current record for key, or ErrNotFound.
func (a *Accounts) Load(key storage.Pubkey) (storage.Account, error) {
	return a.db.Get(key)
}

// MatchesAnyOwner reports the index of the first owner in owners that key
// currently belongs to, or ErrNotFound.
func (a *Accounts) MatchesAnyOwner(key storage.Pubkey, owners []storage.Pubkey) (int, error) {
	return a.db.MatchesAnyOwner(key, owners)
}

// ScanProgram returns every account currently owned by owner matching
// filter (nil keeps everything).
func (a *Accounts) ScanProgram(owner storage.Pubkey, filter func(storage.Pubkey, storage.Account) bool) ([]accountsdb.Entry, error) {
	return a.db.ScanProgram(owner, filter)
}

// IterAll returns every indexed account.
func (a *Accounts) IterAll() ([]accountsdb.Entry, error) {
	return a.db.IterAll()
}

// Flush delegates to the underlying store.
func (a *Accounts) Flush(sync bool) error {
	return a.db.Flush(sync)
}

// EnsureAtMost delegates to the underlying store's rollback driver.
func (a *Accounts) EnsureAtMost(targetSlot uint64) (uint64, error) {
	return a.db.EnsureAtMost(targetSlot)
}

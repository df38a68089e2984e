// Package snapshot implements the on-disk snapshot ring: periodic copies
// of the arena's used prefix plus the three index environments, kept as a
// slot-ordered ring of at most maxSnapshots directories. The directory
// name is the sole source of truth for a snapshot's slot, exactly as
// spec.md §4.7 and §6 specify.
package snapshot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/magicblock-labs/go-accountsdb/pkg/log"
)

// Engine manages the snapshots/ directory under an accounts-db root.
type Engine struct {
	dir          string
	maxSnapshots int
	slots        []uint64 // ascending, acts as the original's slot-sorted deque
}

// Open scans dir for existing slot-named subdirectories and returns an
// Engine primed with them.
func Open(dir string, maxSnapshots int) (*Engine, error) {
	if maxSnapshots <= 0 {
		maxSnapshots = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: mkdir %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", dir, err)
	}

	var slots []uint64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		slot, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	return &Engine{dir: dir, maxSnapshots: maxSnapshots, slots: slots}, nil
}

func (e *Engine) slotDir(slot uint64) string {
	return filepath.Join(e.dir, strconv.FormatUint(slot, 10))
}

// Snapshot writes a new snapshot directory for slot, copying the arena's
// used prefix (usedBytes of arenaPath) and every file under indexPaths,
// then evicting the oldest snapshot if the ring is now over capacity.
func (e *Engine) Snapshot(slot uint64, arenaPath string, usedBytes uint64, indexPaths []string, indexRoot string) error {
	dst := e.slotDir(slot)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir %s: %w", dst, err)
	}

	if err := copyPrefix(arenaPath, filepath.Join(dst, "accounts.db"), usedBytes); err != nil {
		return fmt.Errorf("snapshot: copy arena: %w", err)
	}

	for _, src := range indexPaths {
		rel, err := filepath.Rel(indexRoot, src)
		if err != nil {
			return fmt.Errorf("snapshot: relativize %s: %w", src, err)
		}
		target := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("snapshot: mkdir %s: %w", filepath.Dir(target), err)
		}
		if err := copyFile(src, target); err != nil {
			return fmt.Errorf("snapshot: copy index %s: %w", src, err)
		}
	}

	e.slots = append(e.slots, slot)
	sort.Slice(e.slots, func(i, j int) bool { return e.slots[i] < e.slots[j] })

	for len(e.slots) > e.maxSnapshots {
		oldest := e.slots[0]
		e.slots = e.slots[1:]
		if err := os.RemoveAll(e.slotDir(oldest)); err != nil {
			log.WithComponent("snapshot").Warn().
				Uint64("slot", oldest).Err(err).
				Msg("failed to evict oldest snapshot")
		}
	}

	return nil
}

// TrySwitchToSnapshot locates the greatest snapshot slot <= targetSlot,
// evicts every snapshot strictly newer than it (they are now in the
// rolled-back state's future), and returns the surviving slot and its
// directory path.
func (e *Engine) TrySwitchToSnapshot(targetSlot uint64) (rbSlot uint64, path string, err error) {
	found := false
	for i := len(e.slots) - 1; i >= 0; i-- {
		if e.slots[i] <= targetSlot {
			rbSlot = e.slots[i]
			found = true
			break
		}
	}
	if !found {
		return 0, "", fmt.Errorf("snapshot: no snapshot at or before slot %d", targetSlot)
	}

	kept := e.slots[:0:0]
	for _, s := range e.slots {
		if s > rbSlot {
			if err := os.RemoveAll(e.slotDir(s)); err != nil {
				return 0, "", fmt.Errorf("snapshot: evict future snapshot %d: %w", s, err)
			}
			continue
		}
		kept = append(kept, s)
	}
	e.slots = kept

	return rbSlot, e.slotDir(rbSlot), nil
}

// WithSnapshots calls f with the current ascending slot list.
func (e *Engine) WithSnapshots(f func(slots []uint64)) {
	f(e.slots)
}

// SnapshotExists reports whether a snapshot for slot is currently held.
func (e *Engine) SnapshotExists(slot uint64) bool {
	for _, s := range e.slots {
		if s == slot {
			return true
		}
	}
	return false
}

// Held returns the number of snapshots currently retained.
func (e *Engine) Held() int {
	return len(e.slots)
}

func copyPrefix(src, dst string, n uint64) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.CopyN(out, in, int64(n))
	if err != nil && err != io.EOF {
		return err
	}
	return out.Sync()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

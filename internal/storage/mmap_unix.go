//go:build unix

package storage

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps the first size bytes of f into memory, read/write, shared
// with the backing file. The teacher's example pack reaches for bbolt for
// ordered storage but bbolt owns its own private mmap; nothing in the pack
// exposes a reusable Go mmap wrapper, so the arena talks to
// golang.org/x/sys/unix directly, mirroring the raw memmap2 use in the
// original Rust engine.
func mmapFile(f *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("storage: mmap: %w", err)
	}
	return data, nil
}

func munmapFile(data []byte) error {
	if data == nil {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("storage: munmap: %w", err)
	}
	return nil
}

// msync flushes dirty pages of data to the backing file. async selects
// MS_ASYNC (schedule, return immediately) over MS_SYNC (block until durable).
func msync(data []byte, async bool) error {
	flags := unix.MS_SYNC
	if async {
		flags = unix.MS_ASYNC
	}
	if err := unix.Msync(data, flags); err != nil {
		return fmt.Errorf("storage: msync: %w", err)
	}
	return nil
}

package adapter

import (
	"testing"

	"github.com/magicblock-labs/go-accountsdb/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockKey(b byte) storage.Pubkey {
	var k storage.Pubkey
	k[0] = b
	return k
}

func TestLockWritableExcludesConcurrentWriter(t *testing.T) {
	l := NewLockSet()
	k := lockKey(1)

	require.NoError(t, l.LockWritable([]storage.Pubkey{k}, nil))

	err := l.LockWritable([]storage.Pubkey{k}, nil)
	assert.ErrorIs(t, err, ErrAccountInUse)
}

func TestLockReadonlyAllowsMultipleReaders(t *testing.T) {
	l := NewLockSet()
	k := lockKey(2)

	require.NoError(t, l.LockReadonly([]storage.Pubkey{k}))
	require.NoError(t, l.LockReadonly([]storage.Pubkey{k}))

	err := l.LockWritable([]storage.Pubkey{k}, nil)
	assert.ErrorIs(t, err, ErrAccountInUse)
}

func TestUnlockReleasesWriteLock(t *testing.T) {
	l := NewLockSet()
	k := lockKey(3)

	require.NoError(t, l.LockWritable([]storage.Pubkey{k}, nil))
	l.Unlock([]storage.Pubkey{k}, nil)

	assert.NoError(t, l.LockWritable([]storage.Pubkey{k}, nil))
}

func TestUnlockDecrementsReaderCount(t *testing.T) {
	l := NewLockSet()
	k := lockKey(4)

	require.NoError(t, l.LockReadonly([]storage.Pubkey{k}))
	require.NoError(t, l.LockReadonly([]storage.Pubkey{k}))

	l.Unlock(nil, []storage.Pubkey{k})
	err := l.LockWritable([]storage.Pubkey{k}, nil)
	assert.ErrorIs(t, err, ErrAccountInUse, "one reader remains")

	l.Unlock(nil, []storage.Pubkey{k})
	assert.NoError(t, l.LockWritable([]storage.Pubkey{k}, nil))
}

func TestLockWritableBatchIsAllOrNothing(t *testing.T) {
	l := NewLockSet()
	k1, k2 := lockKey(5), lockKey(6)

	require.NoError(t, l.LockWritable([]storage.Pubkey{k1}, nil))

	err := l.LockWritable([]storage.Pubkey{k1, k2}, nil)
	assert.ErrorIs(t, err, ErrAccountInUse)

	// k2 must not have been locked by the failed batch.
	assert.NoError(t, l.LockWritable([]storage.Pubkey{k2}, nil))
}

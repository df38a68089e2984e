package index

import (
	"encoding/binary"

	"github.com/magicblock-labs/go-accountsdb/internal/storage"
)

// encodeOffsetBlocks packs the primary index value: offset then blocks,
// little-endian, 8 bytes total.
func encodeOffsetBlocks(offset, blocks uint32) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], offset)
	binary.LittleEndian.PutUint32(buf[4:8], blocks)
	return buf
}

func decodeOffsetBlocks(buf []byte) (offset, blocks uint32) {
	offset = binary.LittleEndian.Uint32(buf[0:4])
	blocks = binary.LittleEndian.Uint32(buf[4:8])
	return
}

// programKey packs the owner-index composite key: owner(32) || offset(4)
// || pubkey(32), 68 bytes. bbolt has no DUPSORT, so duplicate owner
// entries are distinguished by appending the offset and account key to
// the owner prefix; a Cursor.Seek on the 32-byte owner prefix followed by
// a bytes.HasPrefix loop reproduces LMDB's MDB_SET + MDB_NEXT_DUP walk.
func programKey(owner, key storage.Pubkey, offset uint32) []byte {
	buf := make([]byte, 32+4+32)
	copy(buf[0:32], owner[:])
	binary.LittleEndian.PutUint32(buf[32:36], offset)
	copy(buf[36:68], key[:])
	return buf
}

func decodeProgramKey(buf []byte) (owner storage.Pubkey, offset uint32, key storage.Pubkey) {
	copy(owner[:], buf[0:32])
	offset = binary.LittleEndian.Uint32(buf[32:36])
	copy(key[:], buf[36:68])
	return
}

// freeListKey packs the free-list composite key: blocks-big-endian(4) ||
// offset-big-endian(4) || blocks-little-endian(4), 12 bytes. The big-endian
// blocks prefix makes byte-wise key order match numeric block-count order,
// so a Cursor.Seek on a 4-byte big-endian prefix reproduces LMDB's
// MDB_SET_RANGE "first hole >= needed size" lookup; the offset field is
// also big-endian so that ties on blocks are broken by numeric offset
// order too, per the "smallest hole, ties broken by offset" contract. The
// count is repeated in little-endian at the tail purely so the full key
// stays unique and self-describing without a DUPSORT value lookup.
func freeListKey(blocks, offset uint32) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], blocks)
	binary.BigEndian.PutUint32(buf[4:8], offset)
	binary.LittleEndian.PutUint32(buf[8:12], blocks)
	return buf
}

func decodeFreeListKey(buf []byte) (blocks, offset uint32) {
	offset = binary.BigEndian.Uint32(buf[4:8])
	blocks = binary.LittleEndian.Uint32(buf[8:12])
	return
}

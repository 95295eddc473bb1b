package sstable

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// BlockEncoder packs entries into a single block under a size budget.
type BlockEncoder struct {
	blockSize int

	data    []byte   // encoded entries
	offsets []uint16 // entry offsets within data
}

// NewBlockEncoder returns an encoder for blocks of up to blockSize bytes.
func NewBlockEncoder(blockSize int) *BlockEncoder {
	return &BlockEncoder{blockSize: blockSize}
}

// Add appends an entry to the block. It returns false, leaving the block
// untouched, when the entry would push a non-empty block past its size
// budget. The first entry of a block is always accepted.
func (b *BlockEncoder) Add(key, value []byte) bool {
	if len(key) == 0 {
		panic("sstable: key must not be empty")
	}
	mustFitUint16("key", len(key))
	mustFitUint16("value", len(value))

	if b.EstimatedSize()+entrySize(key, value) > b.blockSize && !b.IsEmpty() {
		return false
	}

	b.offsets = append(b.offsets, uint16(len(b.data)))
	b.data = appendPrefixed(b.data, key)
	b.data = appendPrefixed(b.data, value)
	return true
}

// IsEmpty returns true if no entries were added.
func (b *BlockEncoder) IsEmpty() bool { return len(b.offsets) == 0 }

// NumEntries returns the number of entries added so far.
func (b *BlockEncoder) NumEntries() int { return len(b.offsets) }

// EstimatedSize returns the encoded size of the block in its current state.
func (b *BlockEncoder) EstimatedSize() int {
	return len(b.data) + sizeOfUint16*len(b.offsets) + sizeOfUint16
}

// Build finalizes the block. The encoder must not be used afterwards.
func (b *BlockEncoder) Build() *Block {
	if b.IsEmpty() {
		panic("sstable: cannot build an empty block")
	}

	blk := &Block{data: b.data, offsets: b.offsets}
	b.data, b.offsets = nil, nil
	return blk
}

// entrySize is the number of bytes an entry adds to a block, including its
// offset slot.
func entrySize(key, value []byte) int {
	return sizeOfUint16 + len(key) + sizeOfUint16 + len(value) + sizeOfUint16
}

// --------------------------------------------------------------------

// Block is an immutable, decoded block.
type Block struct {
	data    []byte
	offsets []uint16
}

// DecodeBlock parses an encoded block. The returned block retains p.
func DecodeBlock(p []byte) (*Block, error) {
	if len(p) < sizeOfUint16 {
		return nil, errors.Wrap(ErrCorruption, "block too short")
	}

	num := int(binary.BigEndian.Uint16(p[len(p)-sizeOfUint16:]))
	if num == 0 {
		return nil, errors.Wrap(ErrCorruption, "block has no entries")
	}

	dataEnd := len(p) - sizeOfUint16 - num*sizeOfUint16
	if dataEnd < 0 {
		return nil, errors.Wrapf(ErrCorruption, "block too short for %d entries", num)
	}

	offsets := make([]uint16, num)
	for i := range offsets {
		offsets[i] = binary.BigEndian.Uint16(p[dataEnd+i*sizeOfUint16:])
	}

	blk := &Block{data: p[:dataEnd], offsets: offsets}
	for i := range offsets {
		if _, _, ok := blk.entry(i); !ok {
			return nil, errors.Wrapf(ErrCorruption, "block entry %d out of bounds", i)
		}
	}
	return blk, nil
}

// Encode returns the binary form of the block.
func (b *Block) Encode() []byte {
	buf := make([]byte, 0, b.Size())
	buf = append(buf, b.data...)
	for _, o := range b.offsets {
		buf = binary.BigEndian.AppendUint16(buf, o)
	}
	return binary.BigEndian.AppendUint16(buf, uint16(len(b.offsets)))
}

// Size returns the encoded size of the block.
func (b *Block) Size() int {
	return len(b.data) + sizeOfUint16*len(b.offsets) + sizeOfUint16
}

// NumEntries returns the number of entries in the block.
func (b *Block) NumEntries() int { return len(b.offsets) }

// Entry returns the key and value of the n-th entry. Both slices point into
// the block and must not be modified.
func (b *Block) Entry(n int) (key, value []byte) {
	key, value, _ = b.entry(n)
	return
}

// FirstKey returns the first key of the block.
func (b *Block) FirstKey() []byte {
	key, _ := b.Entry(0)
	return key
}

// LastKey returns the last key of the block.
func (b *Block) LastKey() []byte {
	key, _ := b.Entry(len(b.offsets) - 1)
	return key
}

func (b *Block) entry(n int) ([]byte, []byte, bool) {
	off := int(b.offsets[n])
	if off > len(b.data) {
		return nil, nil, false
	}

	p := b.data[off:]
	key, p, ok := slicePrefixed(p)
	if !ok {
		return nil, nil, false
	}
	value, _, ok := slicePrefixed(p)
	if !ok {
		return nil, nil, false
	}
	return key, value, true
}

// slicePrefixed is like readPrefixed but returns a sub-slice of p instead of a copy.
func slicePrefixed(p []byte) ([]byte, []byte, bool) {
	if len(p) < sizeOfUint16 {
		return nil, p, false
	}
	n := int(binary.BigEndian.Uint16(p))
	p = p[sizeOfUint16:]
	if len(p) < n {
		return nil, p, false
	}
	return p[:n:n], p[n:], true
}

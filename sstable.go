package sstable

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

const (
	sizeOfUint16 = 2
	sizeOfUint32 = 4
)

const (
	blockNoCompression     = 0
	blockSnappyCompression = 1
)

var (
	// ErrCorruption is returned when table data cannot be decoded.
	ErrCorruption = errors.New("sstable: corrupted data")
	// ErrBadCompression is returned when a section carries an unknown codec.
	ErrBadCompression = errors.New("sstable: bad compression codec")
)

// BlockCache is an optional cache of decoded blocks that is stored on a
// Table for the read path. The write path never reads from or writes to it.
type BlockCache interface {
	Get(tableID uint64, blockIdx int) (*Block, bool)
	Add(tableID uint64, blockIdx int, block *Block)
}

// BlockMeta indexes a single block within a table.
type BlockMeta struct {
	Offset   int    // offset of the block within the block section
	FirstKey []byte // first key in the block
	LastKey  []byte // last key in the block
}

// EncodeBlockMeta appends the encoded index to dst and returns the extended
// buffer.
func EncodeBlockMeta(dst []byte, metas []BlockMeta) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(metas)))
	for _, m := range metas {
		dst = binary.BigEndian.AppendUint32(dst, uint32(m.Offset))
		dst = appendPrefixed(dst, m.FirstKey)
		dst = appendPrefixed(dst, m.LastKey)
	}
	return dst
}

// DecodeBlockMeta decodes an index encoded by EncodeBlockMeta.
func DecodeBlockMeta(p []byte) ([]BlockMeta, error) {
	if len(p) < sizeOfUint32 {
		return nil, errors.Wrap(ErrCorruption, "block index too short")
	}
	num := int(binary.BigEndian.Uint32(p))
	p = p[sizeOfUint32:]

	metas := make([]BlockMeta, 0, num)
	for i := 0; i < num; i++ {
		if len(p) < sizeOfUint32 {
			return nil, errors.Wrapf(ErrCorruption, "block index entry %d truncated", i)
		}
		m := BlockMeta{Offset: int(binary.BigEndian.Uint32(p))}
		p = p[sizeOfUint32:]

		var ok bool
		if m.FirstKey, p, ok = readPrefixed(p); !ok {
			return nil, errors.Wrapf(ErrCorruption, "block index entry %d truncated", i)
		}
		if m.LastKey, p, ok = readPrefixed(p); !ok {
			return nil, errors.Wrapf(ErrCorruption, "block index entry %d truncated", i)
		}
		metas = append(metas, m)
	}
	if len(p) != 0 {
		return nil, errors.Wrapf(ErrCorruption, "block index has %d trailing bytes", len(p))
	}
	return metas, nil
}

// --------------------------------------------------------------------

// appendPrefixed appends a u16 length-prefixed byte string.
func appendPrefixed(dst, p []byte) []byte {
	mustFitUint16("field", len(p))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(p)))
	return append(dst, p...)
}

// readPrefixed reads a u16 length-prefixed byte string and returns a copy of it
// together with the remaining input.
func readPrefixed(p []byte) ([]byte, []byte, bool) {
	if len(p) < sizeOfUint16 {
		return nil, p, false
	}
	n := int(binary.BigEndian.Uint16(p))
	p = p[sizeOfUint16:]
	if len(p) < n {
		return nil, p, false
	}
	return append([]byte(nil), p[:n]...), p[n:], true
}

func mustFitUint16(what string, n int) {
	if n > math.MaxUint16 {
		panic(fmt.Sprintf("sstable: %s length %d exceeds %d bytes", what, n, math.MaxUint16))
	}
}

package sstable

import (
	"bytes"
	"context"
	"encoding/binary"
	"sort"

	"github.com/bsm/bfs"
	"github.com/pkg/errors"
)

// Table is an immutable table. It is safe for concurrent use.
type Table struct {
	File       *FileObject // the backing file
	MetaOffset int         // offset of the block index, also the end of the block section
	ID         uint64
	Cache      BlockCache // optional, may be nil

	FirstKey []byte // first key of the table
	LastKey  []byte // last key of the table

	Meta   []BlockMeta
	Filter *Filter

	// MaxTS is a version marker carried for the surrounding engine. It is
	// always zero for tables built by TableEncoder.
	MaxTS uint64

	fingerprint Fingerprint
}

// OpenTable opens a table previously built into name. A nil fingerprint
// defaults to FarmFingerprint and must match the one the table was built
// with.
func OpenTable(ctx context.Context, bucket bfs.Bucket, name string, id uint64, cache BlockCache, fingerprint Fingerprint) (*Table, error) {
	file, err := OpenFileObject(ctx, bucket, name)
	if err != nil {
		return nil, err
	}
	if fingerprint == nil {
		fingerprint = FarmFingerprint
	}

	size := file.Size()
	if size < 2*sizeOfUint32 {
		return nil, errors.Wrapf(ErrCorruption, "table %s too short", name)
	}

	// read filter offset
	tmp, err := file.ReadAt(ctx, size-sizeOfUint32, sizeOfUint32)
	if err != nil {
		return nil, err
	}
	filterOffset := int64(binary.BigEndian.Uint32(tmp))
	if filterOffset < sizeOfUint32 || filterOffset > size-sizeOfUint32 {
		return nil, errors.Wrapf(ErrCorruption, "table %s has bad filter offset %d", name, filterOffset)
	}

	// read filter and meta offset
	raw, err := file.ReadAt(ctx, filterOffset-sizeOfUint32, int(size-filterOffset))
	if err != nil {
		return nil, err
	}
	metaOffset := int64(binary.BigEndian.Uint32(raw))
	if metaOffset > filterOffset-sizeOfUint32 {
		return nil, errors.Wrapf(ErrCorruption, "table %s has bad index offset %d", name, metaOffset)
	}

	filter, err := DecodeFilter(raw[sizeOfUint32:])
	if err != nil {
		return nil, err
	}

	// read block index
	raw, err = file.ReadAt(ctx, metaOffset, int(filterOffset-sizeOfUint32-metaOffset))
	if err != nil {
		return nil, err
	}
	meta, err := DecodeBlockMeta(raw)
	if err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, errors.Wrapf(ErrCorruption, "table %s has no blocks", name)
	}

	return &Table{
		File:        file,
		MetaOffset:  int(metaOffset),
		ID:          id,
		Cache:       cache,
		FirstKey:    meta[0].FirstKey,
		LastKey:     meta[len(meta)-1].LastKey,
		Meta:        meta,
		Filter:      filter,
		fingerprint: fingerprint,
	}, nil
}

// NumBlocks returns the number of stored blocks.
func (t *Table) NumBlocks() int {
	return len(t.Meta)
}

// Size returns the table file size in bytes.
func (t *Table) Size() int64 {
	return t.File.Size()
}

// MayContain returns false if key is definitely not in the table.
func (t *Table) MayContain(key []byte) bool {
	return t.Filter.MayContainKey(key, t.fingerprint)
}

// FindBlockIdx returns the index of the block that may contain key, which is
// the last block whose first key is <= key. Keys before the first block map
// to block 0.
func (t *Table) FindBlockIdx(key []byte) int {
	n := sort.Search(len(t.Meta), func(i int) bool {
		return bytes.Compare(t.Meta[i].FirstKey, key) > 0
	})
	if n > 0 {
		n--
	}
	return n
}

// ReadBlock reads and decodes the n-th block. It bypasses Cache.
func (t *Table) ReadBlock(ctx context.Context, n int) (*Block, error) {
	if n < 0 || n >= len(t.Meta) {
		return nil, errors.Errorf("sstable: block %d out of range [0,%d)", n, len(t.Meta))
	}

	min := t.Meta[n].Offset
	max := t.MetaOffset
	if next := n + 1; next < len(t.Meta) {
		max = t.Meta[next].Offset
	}
	if max < min {
		return nil, errors.Wrapf(ErrCorruption, "block %d has negative size", n)
	}

	raw, err := t.File.ReadAt(ctx, int64(min), max-min)
	if err != nil {
		return nil, err
	}
	return DecodeBlock(raw)
}

package sstable

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/bsm/bfs"
	"go.uber.org/zap"
)

// Options define table encoder specific options.
type Options struct {
	// BlockSize is the maximum encoded size in bytes of each table block.
	// Blocks holding a single oversized entry may exceed it.
	// Values above 65535 are capped, since entry offsets are 2 bytes wide.
	// Default: 4KiB.
	BlockSize int

	// FalsePositiveRate is the target false positive rate of the bloom filter.
	// Default: 0.01.
	FalsePositiveRate float64

	// Fingerprint hashes keys for the bloom filter.
	// Default: FarmFingerprint.
	Fingerprint Fingerprint

	// The compression codec applied to the filter section.
	// Default: SnappyCompression.
	FilterCompression Compression

	// Logger receives debug output about block rollovers and table builds.
	// Default: no-op.
	Logger *zap.Logger
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}

	if oo.BlockSize < 1 {
		oo.BlockSize = 1 << 12
	} else if oo.BlockSize > math.MaxUint16 {
		oo.BlockSize = math.MaxUint16
	}
	if oo.FalsePositiveRate <= 0 || oo.FalsePositiveRate >= 1 {
		oo.FalsePositiveRate = 0.01
	}
	if oo.Fingerprint == nil {
		oo.Fingerprint = FarmFingerprint
	}
	if !oo.FilterCompression.isValid() {
		oo.FilterCompression = SnappyCompression
	}
	if oo.Logger == nil {
		oo.Logger = zap.NewNop()
	}

	return &oo
}

type encoderState uint8

const (
	stateOpen encoderState = iota
	stateFinalizing
	stateConsumed
)

// TableEncoder builds a table from entries supplied in strictly ascending
// key order. It is not safe for concurrent use.
type TableEncoder struct {
	o     *Options
	state encoderState

	block    *BlockEncoder // the open block
	firstKey []byte        // first key of the open block
	lastKey  []byte        // last key of the open block

	buf  []byte      // finalized blocks
	meta []BlockMeta // one per finalized block
	fps  []uint32    // key fingerprints
}

// NewTableEncoder returns a new encoder.
func NewTableEncoder(o *Options) *TableEncoder {
	oo := o.norm()
	return &TableEncoder{
		o:     oo,
		block: NewBlockEncoder(oo.BlockSize),
	}
}

// Add appends an entry to the table. Keys must be non-empty and supplied in
// strictly ascending order; ordering is not verified.
func (t *TableEncoder) Add(key, value []byte) {
	t.mustBeOpen()

	if t.block.IsEmpty() {
		t.firstKey = append(t.firstKey[:0], key...)
	}
	t.fps = append(t.fps, t.o.Fingerprint(key))

	if t.block.Add(key, value) {
		t.lastKey = append(t.lastKey[:0], key...)
		return
	}

	t.finishBlock()
	if !t.block.Add(key, value) {
		panic("sstable: fresh block rejected an entry")
	}
	t.firstKey = append(t.firstKey[:0], key...)
	t.lastKey = append(t.lastKey[:0], key...)
}

// EstimatedSize returns the size of the finalized blocks. It excludes the
// open block, the index and the filter.
func (t *TableEncoder) EstimatedSize() int {
	return len(t.buf)
}

// NumBlocks returns the number of finalized blocks.
func (t *TableEncoder) NumBlocks() int {
	return len(t.meta)
}

// Build finalizes the table, writes it to name within bucket and returns it.
// Build may only be called once and must be preceded by at least one Add.
// The encoder cannot be reused afterwards, even if Build returns an error.
func (t *TableEncoder) Build(ctx context.Context, id uint64, cache BlockCache, bucket bfs.Bucket, name string) (*Table, error) {
	t.mustBeOpen()
	t.state = stateFinalizing
	defer func() { t.state = stateConsumed }()

	if !t.block.IsEmpty() {
		t.finishBlock()
	}
	if len(t.meta) == 0 {
		panic("sstable: cannot build an empty table")
	}

	buf := t.buf
	metaOffset := len(buf)
	buf = EncodeBlockMeta(buf, t.meta)
	buf = binary.BigEndian.AppendUint32(buf, uint32(metaOffset))

	filter := BuildFilter(t.fps, BloomBitsPerKey(len(t.fps), t.o.FalsePositiveRate))
	filter.comp = t.o.FilterCompression
	filterOffset := len(buf)
	buf = filter.Encode(buf)
	buf = binary.BigEndian.AppendUint32(buf, uint32(filterOffset))
	t.buf = nil

	file, err := CreateFileObject(ctx, bucket, name, buf)
	if err != nil {
		t.o.Logger.Error("table write failed",
			zap.Uint64("id", id),
			zap.String("name", name),
			zap.Error(err))
		return nil, err
	}

	t.o.Logger.Info("table built",
		zap.Uint64("id", id),
		zap.String("name", name),
		zap.Int("blocks", len(t.meta)),
		zap.Int("keys", len(t.fps)),
		zap.Int("size", len(buf)))

	return &Table{
		File:        file,
		MetaOffset:  metaOffset,
		ID:          id,
		Cache:       cache,
		FirstKey:    t.meta[0].FirstKey,
		LastKey:     t.meta[len(t.meta)-1].LastKey,
		Meta:        t.meta,
		Filter:      filter,
		fingerprint: t.o.Fingerprint,
	}, nil
}

func (t *TableEncoder) mustBeOpen() {
	if t.state != stateOpen {
		panic("sstable: encoder already consumed")
	}
}

// finishBlock replaces the open block with a fresh one and appends its
// encoded form to the table buffer.
func (t *TableEncoder) finishBlock() {
	enc := t.block
	t.block = NewBlockEncoder(t.o.BlockSize)

	blk := enc.Build()
	offset := len(t.buf)
	t.buf = append(t.buf, blk.Encode()...)
	t.meta = append(t.meta, BlockMeta{
		Offset:   offset,
		FirstKey: t.firstKey,
		LastKey:  t.lastKey,
	})
	t.firstKey, t.lastKey = nil, nil

	t.o.Logger.Debug("block finished",
		zap.Int("block", len(t.meta)-1),
		zap.Int("offset", offset),
		zap.Int("size", blk.Size()),
		zap.Int("entries", blk.NumEntries()))
}

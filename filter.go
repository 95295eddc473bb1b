package sstable

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/AndreasBriese/bbloom"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

const (
	minFilterBits = 64
	maxFilterLocs = 30
)

// Compression is the compression codec applied to the filter section.
type Compression byte

func (c Compression) isValid() bool {
	return c >= SnappyCompression && c < unknownCompression
}

// Supported compression codecs
const (
	SnappyCompression Compression = iota
	NoCompression
	unknownCompression
)

// BloomBitsPerKey returns the number of filter bits to allocate per key in
// order to reach the target false positive rate for n keys.
func BloomBitsPerKey(n int, fpr float64) int {
	if n < 1 {
		n = 1
	}
	size := -float64(n) * math.Log(fpr) / (math.Ln2 * math.Ln2)
	return int(math.Ceil(size / float64(n)))
}

// Filter is a bloom filter over key fingerprints.
type Filter struct {
	bloom bbloom.Bloom
	comp  Compression
}

// BuildFilter builds a filter from fingerprints, sized at bitsPerKey bits per
// fingerprint.
func BuildFilter(fingerprints []uint32, bitsPerKey int) *Filter {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}

	locs := int(float64(bitsPerKey) * math.Ln2)
	if locs < 1 {
		locs = 1
	} else if locs > maxFilterLocs {
		locs = maxFilterLocs
	}

	nbits := len(fingerprints) * bitsPerKey
	if nbits < minFilterBits {
		nbits = minFilterBits
	}

	f := &Filter{bloom: bbloom.New(float64(nbits), float64(locs))}
	var tmp [sizeOfUint32]byte
	for _, fp := range fingerprints {
		binary.BigEndian.PutUint32(tmp[:], fp)
		f.bloom.Add(tmp[:])
	}
	return f
}

// DecodeFilter decodes a filter encoded by Filter.Encode.
func DecodeFilter(p []byte) (*Filter, error) {
	if len(p) == 0 {
		return nil, errors.Wrap(ErrCorruption, "filter too short")
	}

	var raw []byte
	comp := NoCompression
	switch cPos := len(p) - 1; p[cPos] {
	case blockNoCompression:
		raw = p[:cPos]
	case blockSnappyCompression:
		comp = SnappyCompression
		var err error
		if raw, err = snappy.Decode(nil, p[:cPos]); err != nil {
			return nil, errors.Wrap(ErrCorruption, err.Error())
		}
	default:
		return nil, ErrBadCompression
	}

	// bbloom silently ignores malformed exports, so check the shape first.
	var export struct {
		FilterSet []byte
		SetLocs   uint64
	}
	if err := json.Unmarshal(raw, &export); err != nil {
		return nil, errors.Wrap(ErrCorruption, err.Error())
	}
	if len(export.FilterSet) < minFilterBits/8 || export.SetLocs == 0 {
		return nil, errors.Wrap(ErrCorruption, "filter export is empty")
	}

	return &Filter{bloom: bbloom.JSONUnmarshal(raw), comp: comp}, nil
}

// MayContain returns false if the fingerprint was definitely never added.
func (f *Filter) MayContain(fingerprint uint32) bool {
	var tmp [sizeOfUint32]byte
	binary.BigEndian.PutUint32(tmp[:], fingerprint)
	return f.bloom.Has(tmp[:])
}

// MayContainKey is a shortcut for MayContain(fn(key)).
func (f *Filter) MayContainKey(key []byte, fn Fingerprint) bool {
	return f.MayContain(fn(key))
}

// Encode appends the encoded filter to dst. The export is snappy compressed
// when the filter was built for SnappyCompression and compression saves at
// least a quarter of the bytes.
func (f *Filter) Encode(dst []byte) []byte {
	raw := f.bloom.JSONMarshal()

	if f.comp == SnappyCompression {
		snp := snappy.Encode(nil, raw)
		if len(snp) < len(raw)-len(raw)/4 {
			dst = append(dst, snp...)
			return append(dst, blockSnappyCompression)
		}
	}
	dst = append(dst, raw...)
	return append(dst, blockNoCompression)
}

package sstable_test

import (
	"context"
	"encoding/binary"

	"github.com/bsm/bfs"
	"github.com/bsm/sstable"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Table", func() {
	var bucket *bfs.InMem
	var built *sstable.Table
	var subject *sstable.Table
	var ents []testEntry
	var ctx = context.Background()

	BeforeEach(func() {
		var err error
		bucket = bfs.NewInMem()
		ents = seedEntries(300, 100)

		built, err = seedTable(bucket, "seed.sst", ents, &sstable.Options{BlockSize: 512})
		Expect(err).NotTo(HaveOccurred())

		subject, err = sstable.OpenTable(ctx, bucket, "seed.sst", 9, nil, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should open", func() {
		Expect(subject.ID).To(Equal(uint64(9)))
		Expect(subject.Size()).To(Equal(built.Size()))
		Expect(subject.MetaOffset).To(Equal(built.MetaOffset))
		Expect(subject.Meta).To(Equal(built.Meta))
		Expect(subject.FirstKey).To(Equal(ents[0].Key))
		Expect(subject.LastKey).To(Equal(ents[len(ents)-1].Key))
		Expect(subject.Filter.Encode(nil)).To(Equal(built.Filter.Encode(nil)))
		Expect(subject.File.Name()).To(Equal("seed.sst"))
	})

	It("should read all entries", func() {
		Expect(readEntries(subject)).To(Equal(ents))
	})

	It("should check membership", func() {
		for _, ent := range ents {
			Expect(subject.MayContain(ent.Key)).To(BeTrue(), "for %s", ent.Key)
		}
	})

	It("should find blocks", func() {
		Expect(subject.FindBlockIdx([]byte("a"))).To(Equal(0))
		Expect(subject.FindBlockIdx(ents[0].Key)).To(Equal(0))
		Expect(subject.FindBlockIdx([]byte("zzz"))).To(Equal(subject.NumBlocks() - 1))

		for i, m := range subject.Meta {
			Expect(subject.FindBlockIdx(m.FirstKey)).To(Equal(i))
			Expect(subject.FindBlockIdx(m.LastKey)).To(Equal(i))
		}
	})

	It("should reject out of range blocks", func() {
		_, err := subject.ReadBlock(ctx, -1)
		Expect(err).To(MatchError(ContainSubstring("out of range")))
		_, err = subject.ReadBlock(ctx, subject.NumBlocks())
		Expect(err).To(MatchError(ContainSubstring("out of range")))
	})

	It("should fail on missing files", func() {
		_, err := sstable.OpenTable(ctx, bucket, "missing.sst", 1, nil, nil)
		Expect(err).To(MatchError(ContainSubstring("sstable: open missing.sst")))
	})

	It("should detect corruption", func() {
		_, err := sstable.CreateFileObject(ctx, bucket, "short.sst", []byte{1, 2, 3})
		Expect(err).NotTo(HaveOccurred())
		_, err = sstable.OpenTable(ctx, bucket, "short.sst", 1, nil, nil)
		Expect(err).To(MatchError(sstable.ErrCorruption))

		raw, err := readFile(built)
		Expect(err).NotTo(HaveOccurred())
		binary.BigEndian.PutUint32(raw[len(raw)-4:], uint32(len(raw)))
		_, err = sstable.CreateFileObject(ctx, bucket, "bad.sst", raw)
		Expect(err).NotTo(HaveOccurred())
		_, err = sstable.OpenTable(ctx, bucket, "bad.sst", 1, nil, nil)
		Expect(err).To(MatchError(ContainSubstring("bad filter offset")))
	})
})

var _ = Describe("FileObject", func() {
	var bucket *bfs.InMem
	var subject *sstable.FileObject
	var ctx = context.Background()

	BeforeEach(func() {
		var err error
		bucket = bfs.NewInMem()
		subject, err = sstable.CreateFileObject(ctx, bucket, "data.bin", []byte("0123456789"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should create", func() {
		Expect(subject.Name()).To(Equal("data.bin"))
		Expect(subject.Size()).To(Equal(int64(10)))

		info, err := bucket.Head(ctx, "data.bin")
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Size).To(Equal(int64(10)))
	})

	It("should open", func() {
		obj, err := sstable.OpenFileObject(ctx, bucket, "data.bin")
		Expect(err).NotTo(HaveOccurred())
		Expect(obj.Size()).To(Equal(int64(10)))
	})

	It("should read ranges", func() {
		Expect(subject.ReadAt(ctx, 0, 10)).To(Equal([]byte("0123456789")))
		Expect(subject.ReadAt(ctx, 3, 4)).To(Equal([]byte("3456")))
		Expect(subject.ReadAt(ctx, 10, 0)).To(Equal([]byte{}))

		_, err := subject.ReadAt(ctx, 8, 4)
		Expect(err).To(MatchError(ContainSubstring("out of range")))
	})
})

package sstable

import (
	"context"
	"io"

	"github.com/bsm/bfs"
	"github.com/pkg/errors"
)

// FileObject is a durable, immutable table file stored in a bucket.
type FileObject struct {
	bucket bfs.Bucket
	name   string
	size   int64
}

// CreateFileObject writes data to name as a single unit. The object only
// becomes visible once all bytes were written; on failure the partial write
// is discarded.
func CreateFileObject(ctx context.Context, bucket bfs.Bucket, name string, data []byte) (*FileObject, error) {
	w, err := bucket.Create(ctx, name, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "sstable: create %s", name)
	}
	defer w.Discard()

	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrapf(err, "sstable: write %s", name)
	}
	if err := w.Commit(); err != nil {
		return nil, errors.Wrapf(err, "sstable: commit %s", name)
	}

	return &FileObject{bucket: bucket, name: name, size: int64(len(data))}, nil
}

// OpenFileObject opens an existing object.
func OpenFileObject(ctx context.Context, bucket bfs.Bucket, name string) (*FileObject, error) {
	info, err := bucket.Head(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "sstable: open %s", name)
	}
	return &FileObject{bucket: bucket, name: name, size: info.Size}, nil
}

// Name returns the object name within its bucket.
func (f *FileObject) Name() string { return f.name }

// Size returns the object size in bytes.
func (f *FileObject) Size() int64 { return f.size }

// ReadAt reads n bytes starting at off.
func (f *FileObject) ReadAt(ctx context.Context, off int64, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+int64(n) > f.size {
		return nil, errors.Errorf("sstable: read %s [%d,%d) out of range, size %d", f.name, off, off+int64(n), f.size)
	}

	r, err := f.bucket.Open(ctx, f.name)
	if err != nil {
		return nil, errors.Wrapf(err, "sstable: open %s", f.name)
	}
	defer r.Close()

	if _, err := io.CopyN(io.Discard, r, off); err != nil {
		return nil, errors.Wrapf(err, "sstable: seek %s", f.name)
	}

	p := make([]byte, n)
	if _, err := io.ReadFull(r, p); err != nil {
		return nil, errors.Wrapf(err, "sstable: read %s", f.name)
	}
	return p, nil
}

package vfs

import (
	"context"
	"io"
	"sync"

	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/types"
)

// ReadStreamOptions bound the streamed range and chunking.
type ReadStreamOptions struct {
	Start         int64
	End           int64 // inclusive; negative means through EOF
	HighWaterMark int64 // chunk size; 0 applies the configured default
}

// ReadStream is a lazy, finite, non-restartable byte stream over a file.
// Chunks are fetched from the blob store on demand, so a large cold file
// is never held in memory at once.
type ReadStream struct {
	fs  *FileSystem
	ns  string
	key string

	pos    int64
	end    int64 // exclusive
	chunk  int64
	closed bool
	mu     sync.Mutex
}

// CreateReadStream opens a streaming read over path.
func (fs *FileSystem) CreateReadStream(ctx context.Context, path string, opts *ReadStreamOptions) (*ReadStream, error) {
	p, err := fs.preparePath("read", path)
	if err != nil {
		return nil, err
	}
	ns := fs.ns(ctx)
	resolved, e, err := fs.resolveEntry(ctx, "read", ns, p, true)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fserrors.NoEnt("open", p)
	}
	if e.Type == types.EntryDirectory {
		return nil, fserrors.IsDir("read", p)
	}

	var o ReadStreamOptions
	o.End = -1
	if opts != nil {
		o = *opts
	}
	if o.Start < 0 || (o.End >= 0 && o.Start > o.End) {
		return nil, fserrors.Inval("read", p, "invalid range")
	}
	chunk := o.HighWaterMark
	if chunk <= 0 {
		chunk = fs.opts.StreamChunkSize
	}

	end := e.Size
	if o.End >= 0 && o.End+1 < end {
		end = o.End + 1
	}
	start := o.Start
	if start > end {
		start = end
	}

	return &ReadStream{
		fs:    fs,
		ns:    ns,
		key:   key(ns, resolved),
		pos:   start,
		end:   end,
		chunk: chunk,
	}, nil
}

// Next returns the next chunk, or (nil, io.EOF) when the stream is
// exhausted.
func (s *ReadStream) Next(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fserrors.BadF("read")
	}
	if s.pos >= s.end {
		return nil, io.EOF
	}
	chunkEnd := s.pos + s.chunk - 1
	if chunkEnd >= s.end {
		chunkEnd = s.end - 1
	}
	data, found, err := s.fs.blobs.GetRange(ctx, s.key, s.pos, chunkEnd)
	if err != nil {
		return nil, fserrors.IO("read", s.key, err)
	}
	if !found {
		return nil, fserrors.New(fserrors.ENOENT, "content removed during streaming")
	}
	s.pos += int64(len(data))
	if len(data) == 0 {
		return nil, io.EOF
	}
	return data, nil
}

// WriteTo drains the stream into w. Implements the common copy path
// without buffering the whole file.
func (s *ReadStream) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	var n int64
	for {
		chunk, err := s.Next(ctx)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		written, err := w.Write(chunk)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
}

// Close invalidates the stream.
func (s *ReadStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// WriteStreamOptions mirror WriteOptions for the streaming writer.
type WriteStreamOptions struct {
	Flag string
	Mode uint32
	Tier types.Tier
}

// WriteStream buffers written bytes and performs a single WriteFile on
// Close. A stream abandoned without Close writes nothing.
type WriteStream struct {
	fs   *FileSystem
	ns   string
	path string
	opts WriteStreamOptions

	mu     sync.Mutex
	buf    []byte
	closed bool
}

// CreateWriteStream opens a buffered writer on path.
func (fs *FileSystem) CreateWriteStream(ctx context.Context, path string, opts *WriteStreamOptions) (*WriteStream, error) {
	p, err := fs.preparePath("write", path)
	if err != nil {
		return nil, err
	}
	var o WriteStreamOptions
	if opts != nil {
		o = *opts
	}
	return &WriteStream{fs: fs, ns: fs.ns(ctx), path: p, opts: o}, nil
}

// Write appends p to the pending buffer.
func (s *WriteStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fserrors.BadF("write")
	}
	if int64(len(s.buf)+len(p)) > s.fs.opts.MaxFileSize {
		return 0, fserrors.New(fserrors.ENOSPC, "file exceeds maximum size").WithPath(s.path)
	}
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// Close flushes the buffer as one write.
func (s *WriteStream) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.fs.WriteFile(types.WithNamespace(ctx, s.ns), s.path, s.buf, &WriteOptions{
		Flag: s.opts.Flag,
		Mode: s.opts.Mode,
		Tier: s.opts.Tier,
	})
}

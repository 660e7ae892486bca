package vfs

import (
	"context"
	"sync"

	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/types"
)

// FileHandle is an in-process convenience over a path: it caches content,
// tracks a dirty bit, and writes back on Sync or Close. It weakly
// references the path; it does not pin the entry against a concurrent
// unlink, in which case a Sync or Close with unflushed writes recreates
// the file.
type FileHandle struct {
	fs   *FileSystem
	ns   string
	path string

	mu     sync.Mutex
	buf    []byte
	loaded bool
	dirty  bool
	closed bool

	appendMode bool
	mode       uint32
}

// Open returns a handle on path. Flags follow the writeFile flag set plus
// read: "r" (must exist), "r+", "w" (create or truncate), "wx" (exclusive
// create), "a"/"a+" (create, appends go to the end).
func (fs *FileSystem) Open(ctx context.Context, path, flags string) (*FileHandle, error) {
	p, err := fs.preparePath("open", path)
	if err != nil {
		return nil, err
	}
	ns := fs.ns(ctx)

	h := &FileHandle{fs: fs, ns: ns, path: p, mode: 0o644}

	resolved, e, err := fs.resolveEntry(ctx, "open", ns, p, true)
	if err != nil {
		return nil, err
	}
	if e != nil && e.Type == types.EntryDirectory {
		return nil, fserrors.IsDir("open", p)
	}
	h.path = resolved

	switch flags {
	case "r", "r+":
		if e == nil {
			return nil, fserrors.NoEnt("open", p)
		}
	case "w", "w+":
		if err := fs.WriteFile(ctx, resolved, nil, &WriteOptions{Flag: "w"}); err != nil {
			return nil, err
		}
		h.loaded = true
	case "wx":
		if err := fs.WriteFile(ctx, resolved, nil, &WriteOptions{Flag: "wx"}); err != nil {
			return nil, err
		}
		h.loaded = true
	case "a", "a+":
		h.appendMode = true
		if e == nil {
			if err := fs.WriteFile(ctx, resolved, nil, &WriteOptions{Flag: "w"}); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fserrors.Inval("open", p, "unknown flags "+flags)
	}
	return h, nil
}

// Path returns the resolved path the handle operates on.
func (h *FileHandle) Path() string { return h.path }

func (h *FileHandle) load(ctx context.Context) error {
	if h.loaded {
		return nil
	}
	data, _, err := h.fs.blobs.Get(ctx, key(h.ns, h.path))
	if err != nil {
		return fserrors.IO("read", h.path, err)
	}
	h.buf = data
	h.loaded = true
	return nil
}

// ReadAt copies up to len(p) bytes starting at pos, returning the count.
// Reads past EOF return 0.
func (h *FileHandle) ReadAt(ctx context.Context, p []byte, pos int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, fserrors.BadF("read")
	}
	if pos < 0 {
		return 0, fserrors.Inval("read", h.path, "negative position")
	}
	if err := h.load(ctx); err != nil {
		return 0, err
	}
	if pos >= int64(len(h.buf)) {
		return 0, nil
	}
	return copy(p, h.buf[pos:]), nil
}

// WriteAt writes data at pos, zero-padding any gap. In append mode the
// position is ignored and data lands at the end.
func (h *FileHandle) WriteAt(ctx context.Context, data []byte, pos int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, fserrors.BadF("write")
	}
	if err := h.load(ctx); err != nil {
		return 0, err
	}
	if h.appendMode {
		pos = int64(len(h.buf))
	}
	if pos < 0 {
		return 0, fserrors.Inval("write", h.path, "negative position")
	}
	end := pos + int64(len(data))
	if end > h.fs.opts.MaxFileSize {
		return 0, fserrors.New(fserrors.ENOSPC, "file exceeds maximum size").WithPath(h.path)
	}
	if int64(len(h.buf)) < end {
		grown := make([]byte, end)
		copy(grown, h.buf)
		h.buf = grown
	}
	copy(h.buf[pos:end], data)
	h.dirty = true
	return len(data), nil
}

// Stat returns the live stat record for the handle's path.
func (h *FileHandle) Stat(ctx context.Context) (*types.Stat, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, fserrors.BadF("fstat")
	}
	return h.fs.Stat(types.WithNamespace(ctx, h.ns), h.path)
}

// Truncate resizes the cached content.
func (h *FileHandle) Truncate(ctx context.Context, length int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fserrors.BadF("ftruncate")
	}
	if length < 0 {
		return fserrors.Inval("ftruncate", h.path, "negative length")
	}
	if err := h.load(ctx); err != nil {
		return err
	}
	switch {
	case int64(len(h.buf)) > length:
		h.buf = h.buf[:length]
	case int64(len(h.buf)) < length:
		h.buf = append(h.buf, make([]byte, length-int64(len(h.buf)))...)
	}
	h.dirty = true
	return nil
}

// Sync flushes the dirty buffer back through WriteFile.
func (h *FileHandle) Sync(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fserrors.BadF("fsync")
	}
	return h.flushLocked(ctx)
}

func (h *FileHandle) flushLocked(ctx context.Context) error {
	if !h.dirty {
		return nil
	}
	err := h.fs.WriteFile(types.WithNamespace(ctx, h.ns), h.path, h.buf, &WriteOptions{Mode: h.mode})
	if err != nil {
		return err
	}
	h.dirty = false
	return nil
}

// Close flushes if dirty and invalidates the handle. Every later
// operation returns EBADF. Close is idempotent.
func (h *FileHandle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	err := h.flushLocked(ctx)
	h.closed = true
	h.buf = nil
	return err
}

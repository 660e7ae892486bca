// Package vfs implements the filesystem kernel: the POSIX-shaped operation
// set over a metadata store and a tiered blob store, with per-path write
// serialization, symlink resolution, namespace isolation, and change
// notification.
package vfs

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/moby/locker"
	"github.com/sirupsen/logrus"

	"github.com/tierfs/tierfs/internal/pathutil"
	"github.com/tierfs/tierfs/internal/watch"
	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/types"
)

// maxSymlinkHops bounds one resolution pass.
const maxSymlinkHops = 40

const (
	blockSize   = 512
	ioBlockSize = 4096
)

// Access-check modes, mirroring the classic F_OK/X_OK/W_OK/R_OK values.
const (
	FOK = 0
	XOK = 1
	WOK = 2
	ROK = 4
)

// Options configure a FileSystem.
type Options struct {
	// DefaultNamespace is used when the request context carries none.
	DefaultNamespace string

	MaxFileSize   int64
	MaxPathLength int
	HotMaxSize    int64

	WarmEnabled bool
	ColdEnabled bool

	StreamChunkSize int64

	// Clock returns the current time in epoch milliseconds. Tests override
	// it for deterministic timestamps.
	Clock func() int64
}

func (o *Options) fill() {
	if o.DefaultNamespace == "" {
		o.DefaultNamespace = "default"
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = 100 << 20
	}
	if o.MaxPathLength <= 0 {
		o.MaxPathLength = 4096
	}
	if o.HotMaxSize <= 0 {
		o.HotMaxSize = 1 << 20
	}
	if o.StreamChunkSize <= 0 {
		o.StreamChunkSize = 16 << 10
	}
	if o.Clock == nil {
		o.Clock = func() int64 { return time.Now().UnixMilli() }
	}
}

// FileSystem is the engine. It owns its stores for the lifetime of the
// service; all mutation goes through per-path locks so that operations on
// the same path serialize while unrelated paths proceed concurrently.
type FileSystem struct {
	meta  types.MetadataStore
	blobs types.BlobStore
	watch *watch.Manager
	locks *locker.Locker
	log   logrus.FieldLogger
	opts  Options
}

// New assembles a FileSystem over the given stores.
func New(meta types.MetadataStore, blobs types.BlobStore, wm *watch.Manager, log logrus.FieldLogger, opts Options) *FileSystem {
	opts.fill()
	return &FileSystem{
		meta:  meta,
		blobs: blobs,
		watch: wm,
		locks: locker.New(),
		log:   log,
		opts:  opts,
	}
}

// Watch registers a listener for change events under the request's
// namespace.
func (fs *FileSystem) Watch(ctx context.Context, path string, recursive bool, listener watch.Listener) (*watch.Subscription, error) {
	p, err := fs.preparePath("watch", path)
	if err != nil {
		return nil, err
	}
	return fs.watch.Add(fs.ns(ctx), p, recursive, listener), nil
}

// Options exposes the effective configuration (after defaulting).
func (fs *FileSystem) Options() Options { return fs.opts }

// ns returns the tenant namespace for a request.
func (fs *FileSystem) ns(ctx context.Context) string {
	if ns := types.NamespaceFrom(ctx); ns != "" {
		return ns
	}
	return fs.opts.DefaultNamespace
}

// key composes the store key for a path within a namespace. The NUL
// separator cannot appear in either part, so prefix scans stay inside one
// tenant.
func key(ns, path string) string { return ns + "\x00" + path }

// now returns the engine clock in epoch milliseconds.
func (fs *FileSystem) now() int64 { return fs.opts.Clock() }

// preparePath validates and canonicalizes a caller-supplied path.
// Traversal attempts are rejected here, before any store access.
func (fs *FileSystem) preparePath(syscall, p string) (string, error) {
	if len(p) > fs.opts.MaxPathLength {
		return "", fserrors.NameTooLong(syscall, p)
	}
	if pathutil.IsTraversal(p) {
		return "", fserrors.Access(syscall, p)
	}
	return pathutil.Canonicalize(p), nil
}

// getEntry fetches the entry at a canonical path, nil when absent. The
// per-namespace root directory exists implicitly.
func (fs *FileSystem) getEntry(ctx context.Context, ns, path string) (*types.Entry, error) {
	if path == "/" {
		return fs.rootEntry(), nil
	}
	e, err := fs.meta.Get(ctx, key(ns, path))
	if err != nil {
		return nil, fserrors.IO("get", path, err)
	}
	return e, nil
}

func (fs *FileSystem) rootEntry() *types.Entry {
	return &types.Entry{
		Type:  types.EntryDirectory,
		Mode:  types.ModeDirectory | 0o755,
		Nlink: 1,
	}
}

// resolvePath walks path following intermediate symlinks, and the terminal
// one when followTerminal is set. It returns the fully resolved canonical
// path; the terminal entry may not exist (callers decide whether that is
// an error). A missing intermediate directory is ENOENT; exceeding the hop
// bound is ELOOP.
func (fs *FileSystem) resolvePath(ctx context.Context, syscall, ns, path string, followTerminal bool) (string, error) {
	if path == "/" {
		return "/", nil
	}
	hops := 0
	segs := strings.Split(path[1:], "/")
	resolved := "/"
	for i := 0; i < len(segs); i++ {
		cand := pathutil.Join(resolved, segs[i])
		terminal := i == len(segs)-1
		e, err := fs.getEntry(ctx, ns, cand)
		if err != nil {
			return "", err
		}
		if e == nil {
			if terminal {
				return cand, nil
			}
			return "", fserrors.NoEnt(syscall, path)
		}
		if e.Type == types.EntrySymlink && (!terminal || followTerminal) {
			hops++
			if hops > maxSymlinkHops {
				return "", fserrors.Loop(syscall, path)
			}
			target := e.LinkTarget
			if !strings.HasPrefix(target, "/") {
				target = pathutil.Join(pathutil.Parent(cand), target)
			}
			target = pathutil.Canonicalize(target)
			// Restart the walk from the substituted path.
			rest := segs[i+1:]
			if target == "/" {
				segs = append([]string{}, rest...)
			} else {
				segs = append(strings.Split(target[1:], "/"), rest...)
			}
			if len(segs) == 0 {
				return "/", nil
			}
			resolved = "/"
			i = -1
			continue
		}
		if !terminal && e.Type != types.EntryDirectory {
			return "", fserrors.NotDir(syscall, path)
		}
		resolved = cand
	}
	return resolved, nil
}

// resolveEntry resolves path and fetches the terminal entry.
func (fs *FileSystem) resolveEntry(ctx context.Context, syscall, ns, path string, followTerminal bool) (string, *types.Entry, error) {
	resolved, err := fs.resolvePath(ctx, syscall, ns, path, followTerminal)
	if err != nil {
		return "", nil, err
	}
	e, err := fs.getEntry(ctx, ns, resolved)
	if err != nil {
		return "", nil, err
	}
	return resolved, e, nil
}

// requireParentDir checks that the parent of path exists and is a
// directory, following symlinks on the way.
func (fs *FileSystem) requireParentDir(ctx context.Context, syscall, ns, path string) (string, error) {
	parent := pathutil.Parent(path)
	resolved, e, err := fs.resolveEntry(ctx, syscall, ns, parent, true)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", fserrors.NoEnt(syscall, path)
	}
	if e.Type != types.EntryDirectory {
		return "", fserrors.NotDir(syscall, path)
	}
	return resolved, nil
}

// lock serializes mutations on one namespaced path. Returns the unlock
// function.
func (fs *FileSystem) lock(ns, path string) func() {
	k := key(ns, path)
	fs.locks.Lock(k)
	return func() { fs.locks.Unlock(k) }
}

// lockPair locks two paths in lexical order, avoiding deadlock between
// concurrent renames in opposite directions.
func (fs *FileSystem) lockPair(ns, a, b string) func() {
	ka, kb := key(ns, a), key(ns, b)
	if ka == kb {
		fs.locks.Lock(ka)
		return func() { fs.locks.Unlock(ka) }
	}
	if ka > kb {
		ka, kb = kb, ka
	}
	fs.locks.Lock(ka)
	fs.locks.Lock(kb)
	return func() {
		fs.locks.Unlock(kb)
		fs.locks.Unlock(ka)
	}
}

// statOf builds the wire stat record for an entry at path.
func statOf(ns, path string, e *types.Entry) *types.Stat {
	size := e.Size
	return &types.Stat{
		Dev:         0,
		Ino:         inode(ns, path),
		Mode:        e.Mode,
		Nlink:       e.Nlink,
		UID:         e.UID,
		GID:         e.GID,
		Rdev:        0,
		Size:        size,
		Blksize:     ioBlockSize,
		Blocks:      (size + blockSize - 1) / blockSize,
		AtimeMs:     e.Atime,
		MtimeMs:     e.Mtime,
		CtimeMs:     e.Ctime,
		BirthtimeMs: e.Birthtime,
		Tier:        e.Tier,
		Type:        e.Type,
	}
}

// inode derives a stable 64-bit inode number from the namespaced path.
func inode(ns, path string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key(ns, path)))
	return h.Sum64()
}

// emit publishes a watch event for the request's namespace.
func (fs *FileSystem) emit(ns string, event watch.EventType, path string) {
	if fs.watch != nil {
		fs.watch.Emit(ns, event, path)
	}
}

// descendants collects every key strictly below dir, deepest first. Used
// by recursive removal.
func (fs *FileSystem) descendants(ctx context.Context, ns, dir string) ([]string, []*types.Entry, error) {
	type rec struct {
		path  string
		entry *types.Entry
	}
	var recs []rec
	err := fs.meta.Scan(ctx, key(ns, dir), true, func(k string, e *types.Entry) error {
		recs = append(recs, rec{path: strings.TrimPrefix(k, ns+"\x00"), entry: e})
		return nil
	})
	if err != nil {
		return nil, nil, fserrors.IO("scan", dir, err)
	}
	sort.Slice(recs, func(i, j int) bool {
		di, dj := pathutil.Depth(recs[i].path), pathutil.Depth(recs[j].path)
		if di != dj {
			return di > dj
		}
		return recs[i].path < recs[j].path
	})
	paths := make([]string, len(recs))
	entries := make([]*types.Entry, len(recs))
	for i, r := range recs {
		paths[i] = r.path
		entries[i] = r.entry
	}
	return paths, entries, nil
}

// pickTier applies the placement policy for new content: an explicit tier
// wins if enabled; otherwise size decides between hot and the first
// enabled colder tier.
func (fs *FileSystem) pickTier(requested types.Tier, size int64) (types.Tier, error) {
	if requested != "" {
		if !requested.Valid() {
			return "", fserrors.Inval("write", "", "unknown tier "+string(requested))
		}
		if requested == types.TierWarm && !fs.opts.WarmEnabled {
			return "", fserrors.Inval("write", "", "warm tier is disabled")
		}
		if requested == types.TierCold && !fs.opts.ColdEnabled {
			return "", fserrors.Inval("write", "", "cold tier is disabled")
		}
		return requested, nil
	}
	if size <= fs.opts.HotMaxSize {
		return types.TierHot, nil
	}
	if fs.opts.WarmEnabled {
		return types.TierWarm, nil
	}
	if fs.opts.ColdEnabled {
		return types.TierCold, nil
	}
	return types.TierHot, nil
}

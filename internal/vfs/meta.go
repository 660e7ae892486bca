package vfs

import (
	"context"

	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/types"
)

// Stat resolves symlinks and returns the full stat record of the target.
// A broken symlink surfaces as ENOENT.
func (fs *FileSystem) Stat(ctx context.Context, path string) (*types.Stat, error) {
	p, err := fs.preparePath("stat", path)
	if err != nil {
		return nil, err
	}
	ns := fs.ns(ctx)
	resolved, e, err := fs.resolveEntry(ctx, "stat", ns, p, true)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fserrors.NoEnt("stat", p)
	}
	return statOf(ns, resolved, e), nil
}

// Lstat is Stat without following a terminal symlink; intermediate
// segments still resolve.
func (fs *FileSystem) Lstat(ctx context.Context, path string) (*types.Stat, error) {
	p, err := fs.preparePath("lstat", path)
	if err != nil {
		return nil, err
	}
	ns := fs.ns(ctx)
	resolved, e, err := fs.resolveEntry(ctx, "lstat", ns, p, false)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fserrors.NoEnt("lstat", p)
	}
	return statOf(ns, resolved, e), nil
}

// Exists reports whether Stat succeeds. Only ENOENT maps to false; any
// other failure propagates.
func (fs *FileSystem) Exists(ctx context.Context, path string) (bool, error) {
	_, err := fs.Stat(ctx, path)
	if err != nil {
		if fserrors.IsCode(err, fserrors.ENOENT) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Access checks existence (mode 0) or permission bits against the caller
// identity carried in the context. The engine trusts that identity as
// supplied by the request layer.
func (fs *FileSystem) Access(ctx context.Context, path string, mode int) error {
	p, err := fs.preparePath("access", path)
	if err != nil {
		return err
	}
	ns := fs.ns(ctx)
	resolved, e, err := fs.resolveEntry(ctx, "access", ns, p, true)
	if err != nil {
		return err
	}
	if e == nil {
		return fserrors.NoEnt("access", p)
	}
	if mode == FOK {
		return nil
	}

	caller := types.CallerFrom(ctx)
	if caller.UID == 0 {
		return nil
	}
	var shift uint
	switch {
	case caller.UID == e.UID:
		shift = 6
	case caller.GID == e.GID:
		shift = 3
	default:
		shift = 0
	}
	perms := (e.Mode >> shift) & 0o7
	if uint32(mode)&perms != uint32(mode) {
		return fserrors.Access("access", resolved)
	}
	return nil
}

// Chmod replaces the permission bits, leaving the type bits intact.
func (fs *FileSystem) Chmod(ctx context.Context, path string, mode uint32) error {
	return fs.mutateEntry(ctx, "chmod", path, func(e *types.Entry, now int64) {
		e.Mode = (e.Mode & types.ModeTypeMask) | (mode & types.ModePermMask)
		e.Ctime = now
	})
}

// Chown sets ownership.
func (fs *FileSystem) Chown(ctx context.Context, path string, uid, gid int) error {
	return fs.mutateEntry(ctx, "chown", path, func(e *types.Entry, now int64) {
		e.UID = uid
		e.GID = gid
		e.Ctime = now
	})
}

// Utimes sets access and modification times (epoch ms). The change itself
// refreshes ctime, as classic POSIX does.
func (fs *FileSystem) Utimes(ctx context.Context, path string, atime, mtime int64) error {
	return fs.mutateEntry(ctx, "utimes", path, func(e *types.Entry, now int64) {
		e.Atime = atime
		e.Mtime = mtime
		e.Ctime = now
	})
}

// mutateEntry applies fn to the resolved entry under the path lock.
func (fs *FileSystem) mutateEntry(ctx context.Context, syscall, path string, fn func(e *types.Entry, now int64)) error {
	p, err := fs.preparePath(syscall, path)
	if err != nil {
		return err
	}
	ns := fs.ns(ctx)
	unlock := fs.lock(ns, p)
	defer unlock()

	resolved, e, err := fs.resolveEntry(ctx, syscall, ns, p, true)
	if err != nil {
		return err
	}
	if e == nil {
		return fserrors.NoEnt(syscall, p)
	}
	if resolved == "/" {
		// The implicit root is not materialized; its metadata is fixed.
		return fserrors.Perm(syscall, p)
	}
	fn(e, fs.now())
	if err := fs.meta.Put(ctx, key(ns, resolved), e); err != nil {
		return fserrors.IO(syscall, p, err)
	}
	return nil
}

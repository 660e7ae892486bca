package vfs

import (
	"context"

	"github.com/tierfs/tierfs/internal/watch"
	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/types"
)

// Symlink creates a symbolic link at path whose target string is stored
// uninterpreted; it is only resolved when the link is traversed.
func (fs *FileSystem) Symlink(ctx context.Context, target, path string) error {
	p, err := fs.preparePath("symlink", path)
	if err != nil {
		return err
	}
	if p == "/" {
		return fserrors.Exist("symlink", p)
	}
	if target == "" {
		return fserrors.Inval("symlink", p, "empty target")
	}

	ns := fs.ns(ctx)
	unlock := fs.lock(ns, p)
	defer unlock()

	e, err := fs.getEntry(ctx, ns, p)
	if err != nil {
		return err
	}
	if e != nil {
		return fserrors.Exist("symlink", p)
	}
	if _, err := fs.requireParentDir(ctx, "symlink", ns, p); err != nil {
		return err
	}

	now := fs.now()
	caller := types.CallerFrom(ctx)
	entry := &types.Entry{
		Type:       types.EntrySymlink,
		Mode:       types.ModeSymlink | 0o777,
		UID:        caller.UID,
		GID:        caller.GID,
		Nlink:      1,
		Size:       int64(len(target)),
		Atime:      now,
		Mtime:      now,
		Ctime:      now,
		Birthtime:  now,
		LinkTarget: target,
	}
	if err := fs.meta.Put(ctx, key(ns, p), entry); err != nil {
		return fserrors.IO("symlink", p, err)
	}

	fs.emit(ns, watch.EventRename, p)
	return nil
}

// Link creates a second directory entry for an existing file. Hard
// linking a directory is EPERM. Both entries' link counts rise; later
// moves do not re-synchronize the counts.
func (fs *FileSystem) Link(ctx context.Context, existingPath, newPath string) error {
	existing, err := fs.preparePath("link", existingPath)
	if err != nil {
		return err
	}
	newP, err := fs.preparePath("link", newPath)
	if err != nil {
		return err
	}

	ns := fs.ns(ctx)
	unlock := fs.lockPair(ns, existing, newP)
	defer unlock()

	e, err := fs.getEntry(ctx, ns, existing)
	if err != nil {
		return err
	}
	if e == nil {
		return fserrors.NoEnt("link", existing)
	}
	if e.Type == types.EntryDirectory {
		return fserrors.Perm("link", existing)
	}

	newE, err := fs.getEntry(ctx, ns, newP)
	if err != nil {
		return err
	}
	if newE != nil {
		return fserrors.Exist("link", newP)
	}
	if _, err := fs.requireParentDir(ctx, "link", ns, newP); err != nil {
		return err
	}

	now := fs.now()
	e.Nlink++
	e.Ctime = now

	linked := e.Clone()
	if e.Type == types.EntryFile {
		if err := fs.blobs.Copy(ctx, key(ns, existing), key(ns, newP)); err != nil {
			return fserrors.IO("link", newP, err)
		}
	}
	if err := fs.meta.Put(ctx, key(ns, existing), e); err != nil {
		return fserrors.IO("link", existing, err)
	}
	if err := fs.meta.Put(ctx, key(ns, newP), linked); err != nil {
		return fserrors.IO("link", newP, err)
	}

	fs.emit(ns, watch.EventRename, newP)
	return nil
}

// Readlink returns the stored target of a symlink; EINVAL otherwise.
func (fs *FileSystem) Readlink(ctx context.Context, path string) (string, error) {
	p, err := fs.preparePath("readlink", path)
	if err != nil {
		return "", err
	}
	ns := fs.ns(ctx)
	resolved, e, err := fs.resolveEntry(ctx, "readlink", ns, p, false)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", fserrors.NoEnt("readlink", p)
	}
	if e.Type != types.EntrySymlink {
		return "", fserrors.Inval("readlink", resolved, "not a symbolic link")
	}
	return e.LinkTarget, nil
}

// Realpath canonicalizes and fully resolves path, failing with ENOENT when
// the final target does not exist and ELOOP past the hop bound.
func (fs *FileSystem) Realpath(ctx context.Context, path string) (string, error) {
	p, err := fs.preparePath("realpath", path)
	if err != nil {
		return "", err
	}
	ns := fs.ns(ctx)
	resolved, e, err := fs.resolveEntry(ctx, "realpath", ns, p, true)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", fserrors.NoEnt("realpath", p)
	}
	return resolved, nil
}

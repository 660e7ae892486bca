package vfs

import (
	"context"

	"github.com/tierfs/tierfs/internal/pathutil"
	"github.com/tierfs/tierfs/internal/watch"
	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/types"
)

// ReadOptions select an inclusive byte range. Nil bounds mean "from the
// start" / "through the end".
type ReadOptions struct {
	Start *int64
	End   *int64
}

// WriteOptions control creation mode, write flag, and tier placement.
type WriteOptions struct {
	// Mode is the permission bits for a created file; 0 means 0o644.
	Mode uint32
	// Flag is "w" (create or truncate, the default), "wx" (exclusive
	// create), or "a" (create if absent, append).
	Flag string
	// Tier forces placement; empty applies the size policy.
	Tier types.Tier
}

// ReadFile returns the content of a regular file, optionally ranged.
// Symlinks are followed. Reading a directory is EISDIR; a range with
// start beyond end is EINVAL; a range beyond EOF yields empty content.
func (fs *FileSystem) ReadFile(ctx context.Context, path string, opts *ReadOptions) ([]byte, error) {
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

	if opts != nil && (opts.Start != nil || opts.End != nil) {
		start := int64(0)
		end := int64(-1)
		if opts.Start != nil {
			start = *opts.Start
		}
		if opts.End != nil {
			end = *opts.End
		}
		if start < 0 || (end >= 0 && start > end) {
			return nil, fserrors.Inval("read", p, "invalid range")
		}
		data, found, err := fs.blobs.GetRange(ctx, key(ns, resolved), start, end)
		if err != nil {
			return nil, fserrors.IO("read", p, err)
		}
		if !found {
			return nil, fserrors.NoEnt("open", p)
		}
		return data, nil
	}

	data, found, err := fs.blobs.Get(ctx, key(ns, resolved))
	if err != nil {
		return nil, fserrors.IO("read", p, err)
	}
	if !found {
		// Metadata without content: zero-length file whose blob was never
		// materialized.
		return []byte{}, nil
	}
	return data, nil
}

// WriteFile creates or replaces a regular file. The engine never creates
// missing parents; mkdir is the only operation that does.
func (fs *FileSystem) WriteFile(ctx context.Context, path string, data []byte, opts *WriteOptions) error {
	p, err := fs.preparePath("write", path)
	if err != nil {
		return err
	}
	if p == "/" {
		return fserrors.IsDir("write", p)
	}
	if int64(len(data)) > fs.opts.MaxFileSize {
		return fserrors.New(fserrors.ENOSPC, "file exceeds maximum size").WithPath(p).WithSyscall("write")
	}

	var o WriteOptions
	if opts != nil {
		o = *opts
	}
	switch o.Flag {
	case "", "w", "wx", "a":
	default:
		return fserrors.Inval("write", p, "unknown flag "+o.Flag)
	}

	ns := fs.ns(ctx)
	unlock := fs.lock(ns, p)
	defer unlock()

	resolved, e, err := fs.resolveEntry(ctx, "write", ns, p, true)
	if err != nil {
		return err
	}
	if e != nil && e.Type == types.EntryDirectory {
		return fserrors.IsDir("write", p)
	}
	if e == nil {
		if _, err := fs.requireParentDir(ctx, "write", ns, resolved); err != nil {
			return err
		}
	}

	created := e == nil
	now := fs.now()

	content := data
	if o.Flag == "a" && e != nil {
		prev, found, err := fs.blobs.Get(ctx, key(ns, resolved))
		if err != nil {
			return fserrors.IO("write", p, err)
		}
		if found {
			content = append(prev, data...)
		}
		if int64(len(content)) > fs.opts.MaxFileSize {
			return fserrors.New(fserrors.ENOSPC, "file exceeds maximum size").WithPath(p).WithSyscall("write")
		}
	} else if o.Flag == "wx" && e != nil {
		return fserrors.Exist("write", p)
	}

	tier, err := fs.pickTier(o.Tier, int64(len(content)))
	if err != nil {
		return fserrors.Convert(err).WithPath(p)
	}

	entry := e
	if created {
		mode := o.Mode
		if mode == 0 {
			mode = 0o644
		}
		caller := types.CallerFrom(ctx)
		entry = &types.Entry{
			Type:      types.EntryFile,
			Mode:      types.ModeRegular | (mode & types.ModePermMask),
			UID:       caller.UID,
			GID:       caller.GID,
			Nlink:     1,
			Atime:     now,
			Birthtime: now,
		}
	}
	entry.Size = int64(len(content))
	entry.Tier = tier
	entry.Mtime = now
	entry.Ctime = now
	entry.Checksum = ""

	// Content lands before metadata so a reader that sees the entry can
	// always fetch the bytes.
	if err := fs.blobs.Put(ctx, key(ns, resolved), content, tier); err != nil {
		return fserrors.IO("write", p, err)
	}
	if err := fs.meta.Put(ctx, key(ns, resolved), entry); err != nil {
		return fserrors.IO("write", p, err)
	}

	if created {
		fs.emit(ns, watch.EventRename, resolved)
	} else {
		fs.emit(ns, watch.EventChange, resolved)
	}
	return nil
}

// AppendFile appends data, creating the file when absent.
func (fs *FileSystem) AppendFile(ctx context.Context, path string, data []byte) error {
	return fs.WriteFile(ctx, path, data, &WriteOptions{Flag: "a"})
}

// Unlink removes a regular file or symlink. The entry's link count drops;
// content is released when it reaches zero.
func (fs *FileSystem) Unlink(ctx context.Context, path string) error {
	p, err := fs.preparePath("unlink", path)
	if err != nil {
		return err
	}
	ns := fs.ns(ctx)
	unlock := fs.lock(ns, p)
	defer unlock()

	e, err := fs.getEntry(ctx, ns, p)
	if err != nil {
		return err
	}
	if e == nil {
		return fserrors.NoEnt("unlink", p)
	}
	if e.Type == types.EntryDirectory {
		return fserrors.IsDir("unlink", p)
	}

	e.Nlink--
	if err := fs.meta.Delete(ctx, key(ns, p)); err != nil {
		return fserrors.IO("unlink", p, err)
	}
	if e.Nlink <= 0 && e.Type == types.EntryFile {
		if err := fs.blobs.Delete(ctx, key(ns, p)); err != nil {
			return fserrors.IO("unlink", p, err)
		}
	}

	fs.emit(ns, watch.EventRename, p)
	return nil
}

// RenameOptions control replacement of an existing destination.
type RenameOptions struct {
	Overwrite bool
}

// Rename moves an entry (and, for directories, its whole subtree) to a new
// path. The transition appears atomic to concurrent readers of either
// endpoint.
func (fs *FileSystem) Rename(ctx context.Context, oldPath, newPath string, opts *RenameOptions) error {
	oldP, err := fs.preparePath("rename", oldPath)
	if err != nil {
		return err
	}
	newP, err := fs.preparePath("rename", newPath)
	if err != nil {
		return err
	}
	if oldP == "/" || newP == "/" {
		return fserrors.Inval("rename", oldP, "cannot rename root")
	}
	if oldP == newP {
		return nil
	}
	if pathutil.IsAncestor(oldP, newP) {
		return fserrors.Inval("rename", newP, "cannot move a directory into itself")
	}
	overwrite := opts != nil && opts.Overwrite

	ns := fs.ns(ctx)
	unlock := fs.lockPair(ns, oldP, newP)
	defer unlock()

	oldE, err := fs.getEntry(ctx, ns, oldP)
	if err != nil {
		return err
	}
	if oldE == nil {
		return fserrors.NoEnt("rename", oldP)
	}

	newE, err := fs.getEntry(ctx, ns, newP)
	if err != nil {
		return err
	}
	if newE != nil {
		if !overwrite {
			return fserrors.Exist("rename", newP)
		}
		if newE.Type == types.EntryDirectory {
			children, err := fs.meta.ListChildren(ctx, key(ns, newP))
			if err != nil {
				return fserrors.IO("rename", newP, err)
			}
			if len(children) > 0 {
				return fserrors.NotEmpty("rename", newP)
			}
			if oldE.Type != types.EntryDirectory {
				return fserrors.IsDir("rename", newP)
			}
		}
		if err := fs.removeEntryContent(ctx, ns, newP, newE); err != nil {
			return err
		}
	} else {
		if _, err := fs.requireParentDir(ctx, "rename", ns, newP); err != nil {
			return err
		}
	}

	now := fs.now()

	// Move descendants first for directories, then flip the entry itself:
	// a reader of the new path only sees it once its subtree is in place.
	if oldE.Type == types.EntryDirectory {
		paths, entries, err := fs.descendants(ctx, ns, oldP)
		if err != nil {
			return err
		}
		// descendants is deepest-first; creation wants shallowest-first.
		for i := len(paths) - 1; i >= 0; i-- {
			src := paths[i]
			dst := pathutil.Join(newP, pathutil.Relative(oldP, src))
			if err := fs.moveOne(ctx, ns, src, dst, entries[i], now); err != nil {
				return err
			}
		}
		for _, src := range paths {
			if err := fs.deleteMoved(ctx, ns, src); err != nil {
				return err
			}
		}
	}
	if err := fs.moveOne(ctx, ns, oldP, newP, oldE, now); err != nil {
		return err
	}
	if err := fs.deleteMoved(ctx, ns, oldP); err != nil {
		return err
	}

	fs.emit(ns, watch.EventRename, oldP)
	fs.emit(ns, watch.EventRename, newP)
	return nil
}

// moveOne copies one entry (metadata plus content) to its new key.
// Tier is preserved across the move.
func (fs *FileSystem) moveOne(ctx context.Context, ns, src, dst string, e *types.Entry, now int64) error {
	if e.Type == types.EntryFile {
		if err := fs.blobs.Copy(ctx, key(ns, src), key(ns, dst)); err != nil {
			return fserrors.IO("rename", dst, err)
		}
	}
	moved := e.Clone()
	moved.Ctime = now
	if err := fs.meta.Put(ctx, key(ns, dst), moved); err != nil {
		return fserrors.IO("rename", dst, err)
	}
	return nil
}

func (fs *FileSystem) deleteMoved(ctx context.Context, ns, src string) error {
	if err := fs.meta.Delete(ctx, key(ns, src)); err != nil {
		return fserrors.IO("rename", src, err)
	}
	if err := fs.blobs.Delete(ctx, key(ns, src)); err != nil {
		return fserrors.IO("rename", src, err)
	}
	return nil
}

// removeEntryContent releases an entry being overwritten.
func (fs *FileSystem) removeEntryContent(ctx context.Context, ns, p string, e *types.Entry) error {
	if err := fs.meta.Delete(ctx, key(ns, p)); err != nil {
		return fserrors.IO("rename", p, err)
	}
	if e.Type == types.EntryFile {
		if err := fs.blobs.Delete(ctx, key(ns, p)); err != nil {
			return fserrors.IO("rename", p, err)
		}
	}
	return nil
}

// CopyOptions control file copying.
type CopyOptions struct {
	Overwrite bool
}

// CopyFile duplicates a regular file or symlink; the source is unmodified.
// Directories are EISDIR (CopyTree in the RPC layer handles trees).
func (fs *FileSystem) CopyFile(ctx context.Context, src, dest string, opts *CopyOptions) error {
	srcP, err := fs.preparePath("copyfile", src)
	if err != nil {
		return err
	}
	destP, err := fs.preparePath("copyfile", dest)
	if err != nil {
		return err
	}
	overwrite := opts != nil && opts.Overwrite

	ns := fs.ns(ctx)
	unlock := fs.lockPair(ns, srcP, destP)
	defer unlock()

	srcE, err := fs.getEntry(ctx, ns, srcP)
	if err != nil {
		return err
	}
	if srcE == nil {
		return fserrors.NoEnt("copyfile", srcP)
	}
	if srcE.Type == types.EntryDirectory {
		return fserrors.IsDir("copyfile", srcP)
	}

	destE, err := fs.getEntry(ctx, ns, destP)
	if err != nil {
		return err
	}
	if destE != nil {
		if !overwrite {
			return fserrors.Exist("copyfile", destP)
		}
		if destE.Type == types.EntryDirectory {
			return fserrors.IsDir("copyfile", destP)
		}
	} else {
		if _, err := fs.requireParentDir(ctx, "copyfile", ns, destP); err != nil {
			return err
		}
	}

	now := fs.now()
	copied := srcE.Clone()
	copied.Nlink = 1
	copied.Birthtime = now
	copied.Atime = now
	copied.Mtime = now
	copied.Ctime = now

	if srcE.Type == types.EntryFile {
		if err := fs.blobs.Copy(ctx, key(ns, srcP), key(ns, destP)); err != nil {
			return fserrors.IO("copyfile", destP, err)
		}
	}
	if err := fs.meta.Put(ctx, key(ns, destP), copied); err != nil {
		return fserrors.IO("copyfile", destP, err)
	}

	if destE == nil {
		fs.emit(ns, watch.EventRename, destP)
	} else {
		fs.emit(ns, watch.EventChange, destP)
	}
	return nil
}

// Truncate resizes a file to length, zero-padding on extension.
func (fs *FileSystem) Truncate(ctx context.Context, path string, length int64) error {
	p, err := fs.preparePath("truncate", path)
	if err != nil {
		return err
	}
	if length < 0 {
		return fserrors.Inval("truncate", p, "negative length")
	}
	if length > fs.opts.MaxFileSize {
		return fserrors.New(fserrors.ENOSPC, "file exceeds maximum size").WithPath(p).WithSyscall("truncate")
	}

	ns := fs.ns(ctx)
	unlock := fs.lock(ns, p)
	defer unlock()

	resolved, e, err := fs.resolveEntry(ctx, "truncate", ns, p, true)
	if err != nil {
		return err
	}
	if e == nil {
		return fserrors.NoEnt("truncate", p)
	}
	if e.Type != types.EntryFile {
		if e.Type == types.EntryDirectory {
			return fserrors.IsDir("truncate", p)
		}
		return fserrors.Inval("truncate", p, "not a regular file")
	}

	data, _, err := fs.blobs.Get(ctx, key(ns, resolved))
	if err != nil {
		return fserrors.IO("truncate", p, err)
	}
	switch {
	case int64(len(data)) > length:
		data = data[:length]
	case int64(len(data)) < length:
		data = append(data, make([]byte, length-int64(len(data)))...)
	}

	now := fs.now()
	e.Size = length
	e.Mtime = now
	e.Ctime = now
	e.Checksum = ""

	if err := fs.blobs.Put(ctx, key(ns, resolved), data, e.Tier); err != nil {
		return fserrors.IO("truncate", p, err)
	}
	if err := fs.meta.Put(ctx, key(ns, resolved), e); err != nil {
		return fserrors.IO("truncate", p, err)
	}

	fs.emit(ns, watch.EventChange, resolved)
	return nil
}

package vfs

import (
	"context"
	"sort"
	"strings"

	"github.com/tierfs/tierfs/internal/pathutil"
	"github.com/tierfs/tierfs/internal/watch"
	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/types"
)

// MkdirOptions control directory creation.
type MkdirOptions struct {
	Recursive bool
	// Mode is the permission bits; 0 means 0o755.
	Mode uint32
}

// Mkdir creates a directory. Without Recursive the parent must already be
// a directory and the path must not exist; with Recursive every missing
// ancestor is created and an existing directory is not an error.
func (fs *FileSystem) Mkdir(ctx context.Context, path string, opts *MkdirOptions) error {
	p, err := fs.preparePath("mkdir", path)
	if err != nil {
		return err
	}
	var o MkdirOptions
	if opts != nil {
		o = *opts
	}
	mode := o.Mode
	if mode == 0 {
		mode = 0o755
	}

	ns := fs.ns(ctx)

	if !o.Recursive {
		if p == "/" {
			return fserrors.Exist("mkdir", p)
		}
		unlock := fs.lock(ns, p)
		defer unlock()

		e, err := fs.getEntry(ctx, ns, p)
		if err != nil {
			return err
		}
		if e != nil {
			return fserrors.Exist("mkdir", p)
		}
		if _, err := fs.requireParentDir(ctx, "mkdir", ns, p); err != nil {
			return err
		}
		if err := fs.putDir(ctx, ns, p, mode); err != nil {
			return err
		}
		fs.emit(ns, watch.EventRename, p)
		return nil
	}

	// Recursive: walk down from the root creating whatever is missing.
	if p == "/" {
		return nil
	}
	cur := "/"
	for _, seg := range strings.Split(p[1:], "/") {
		cur = pathutil.Join(cur, seg)
		unlock := fs.lock(ns, cur)
		e, err := fs.getEntry(ctx, ns, cur)
		if err != nil {
			unlock()
			return err
		}
		if e != nil {
			unlock()
			if e.Type == types.EntrySymlink {
				// A symlink ancestor is fine if it leads to a directory.
				_, re, rerr := fs.resolveEntry(ctx, "mkdir", ns, cur, true)
				if rerr != nil {
					return rerr
				}
				if re == nil || re.Type != types.EntryDirectory {
					return fserrors.NotDir("mkdir", cur)
				}
				continue
			}
			if e.Type != types.EntryDirectory {
				return fserrors.NotDir("mkdir", cur)
			}
			continue
		}
		err = fs.putDir(ctx, ns, cur, mode)
		unlock()
		if err != nil {
			return err
		}
		fs.emit(ns, watch.EventRename, cur)
	}
	return nil
}

func (fs *FileSystem) putDir(ctx context.Context, ns, p string, mode uint32) error {
	now := fs.now()
	caller := types.CallerFrom(ctx)
	entry := &types.Entry{
		Type:      types.EntryDirectory,
		Mode:      types.ModeDirectory | (mode & types.ModePermMask),
		UID:       caller.UID,
		GID:       caller.GID,
		Nlink:     1,
		Atime:     now,
		Mtime:     now,
		Ctime:     now,
		Birthtime: now,
	}
	if err := fs.meta.Put(ctx, key(ns, p), entry); err != nil {
		return fserrors.IO("mkdir", p, err)
	}
	return nil
}

// RmdirOptions control directory removal.
type RmdirOptions struct {
	Recursive bool
}

// Rmdir removes a directory: ENOTEMPTY when it has children and Recursive
// is not set; with Recursive the subtree goes deepest-first.
func (fs *FileSystem) Rmdir(ctx context.Context, path string, opts *RmdirOptions) error {
	p, err := fs.preparePath("rmdir", path)
	if err != nil {
		return err
	}
	if p == "/" {
		return fserrors.Perm("rmdir", p)
	}
	recursive := opts != nil && opts.Recursive

	ns := fs.ns(ctx)
	unlock := fs.lock(ns, p)
	defer unlock()

	e, err := fs.getEntry(ctx, ns, p)
	if err != nil {
		return err
	}
	if e == nil {
		return fserrors.NoEnt("rmdir", p)
	}
	if e.Type != types.EntryDirectory {
		return fserrors.NotDir("rmdir", p)
	}

	children, err := fs.meta.ListChildren(ctx, key(ns, p))
	if err != nil {
		return fserrors.IO("rmdir", p, err)
	}
	if len(children) > 0 {
		if !recursive {
			return fserrors.NotEmpty("rmdir", p)
		}
		paths, entries, err := fs.descendants(ctx, ns, p)
		if err != nil {
			return err
		}
		for i, dp := range paths {
			if err := fs.deleteOne(ctx, ns, dp, entries[i]); err != nil {
				return err
			}
			fs.emit(ns, watch.EventRename, dp)
		}
	}

	if err := fs.meta.Delete(ctx, key(ns, p)); err != nil {
		return fserrors.IO("rmdir", p, err)
	}
	fs.emit(ns, watch.EventRename, p)
	return nil
}

func (fs *FileSystem) deleteOne(ctx context.Context, ns, p string, e *types.Entry) error {
	if err := fs.meta.Delete(ctx, key(ns, p)); err != nil {
		return fserrors.IO("rm", p, err)
	}
	if e.Type == types.EntryFile {
		if err := fs.blobs.Delete(ctx, key(ns, p)); err != nil {
			return fserrors.IO("rm", p, err)
		}
	}
	return nil
}

// RmOptions control the generic removal entry point.
type RmOptions struct {
	Recursive bool
	Force     bool
}

// Rm removes a path of any type, dispatching to Unlink or Rmdir. Force
// suppresses ENOENT.
func (fs *FileSystem) Rm(ctx context.Context, path string, opts *RmOptions) error {
	p, err := fs.preparePath("rm", path)
	if err != nil {
		return err
	}
	var o RmOptions
	if opts != nil {
		o = *opts
	}

	ns := fs.ns(ctx)
	e, err := fs.getEntry(ctx, ns, p)
	if err != nil {
		return err
	}
	if e == nil {
		if o.Force {
			return nil
		}
		return fserrors.NoEnt("rm", p)
	}
	if e.Type == types.EntryDirectory {
		if !o.Recursive {
			return fserrors.IsDir("rm", p)
		}
		return fs.Rmdir(ctx, p, &RmdirOptions{Recursive: true})
	}
	return fs.Unlink(ctx, p)
}

// ReaddirOptions control listing shape.
type ReaddirOptions struct {
	WithFileTypes bool
	Recursive     bool
}

// ReaddirResult carries either plain names or typed dirents, matching the
// withFileTypes switch.
type ReaddirResult struct {
	Names   []string
	Dirents []types.Dirent
}

// Readdir lists a directory. Recursive mode yields descendants; names are
// then paths relative to the listed directory. WithFileTypes returns typed
// dirent records instead.
func (fs *FileSystem) Readdir(ctx context.Context, path string, opts *ReaddirOptions) (*ReaddirResult, error) {
	p, err := fs.preparePath("readdir", path)
	if err != nil {
		return nil, err
	}
	var o ReaddirOptions
	if opts != nil {
		o = *opts
	}

	ns := fs.ns(ctx)
	resolved, e, err := fs.resolveEntry(ctx, "readdir", ns, p, true)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fserrors.NoEnt("scandir", p)
	}
	if e.Type != types.EntryDirectory {
		return nil, fserrors.NotDir("scandir", p)
	}

	res := &ReaddirResult{}
	prefix := ns + "\x00"
	err = fs.meta.Scan(ctx, key(ns, resolved), o.Recursive, func(k string, entry *types.Entry) error {
		full := strings.TrimPrefix(k, prefix)
		if o.WithFileTypes {
			res.Dirents = append(res.Dirents, types.Dirent{
				Name:       pathutil.Base(full),
				ParentPath: pathutil.Parent(full),
				Path:       full,
				Type:       entry.Type,
			})
		} else {
			res.Names = append(res.Names, pathutil.Relative(resolved, full))
		}
		return nil
	})
	if err != nil {
		return nil, fserrors.IO("scandir", p, err)
	}
	if o.WithFileTypes {
		sort.Slice(res.Dirents, func(i, j int) bool { return res.Dirents[i].Path < res.Dirents[j].Path })
	} else {
		sort.Strings(res.Names)
	}
	return res, nil
}

package vfs

import (
	"context"

	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/types"
)

// Promote moves a file's content to a hotter tier (hot or warm).
func (fs *FileSystem) Promote(ctx context.Context, path string, tier types.Tier) error {
	if tier != types.TierHot && tier != types.TierWarm {
		return fserrors.Inval("promote", path, "promote target must be hot or warm")
	}
	return fs.setTier(ctx, "promote", path, tier)
}

// Demote moves a file's content to a colder tier (warm or cold).
func (fs *FileSystem) Demote(ctx context.Context, path string, tier types.Tier) error {
	if tier != types.TierWarm && tier != types.TierCold {
		return fserrors.Inval("demote", path, "demote target must be warm or cold")
	}
	return fs.setTier(ctx, "demote", path, tier)
}

func (fs *FileSystem) setTier(ctx context.Context, syscall, path string, tier types.Tier) error {
	if tier == types.TierWarm && !fs.opts.WarmEnabled {
		return fserrors.Inval(syscall, path, "warm tier is disabled")
	}
	if tier == types.TierCold && !fs.opts.ColdEnabled {
		return fserrors.Inval(syscall, path, "cold tier is disabled")
	}

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
	if e.Type != types.EntryFile {
		return fserrors.Inval(syscall, p, "tiering applies to regular files")
	}

	if err := fs.blobs.SetTier(ctx, key(ns, resolved), tier); err != nil {
		return fserrors.IO(syscall, p, err)
	}
	e.Tier = tier
	e.Ctime = fs.now()
	if err := fs.meta.Put(ctx, key(ns, resolved), e); err != nil {
		return fserrors.IO(syscall, p, err)
	}
	return nil
}

// GetTier reports the current placement of a file's content.
func (fs *FileSystem) GetTier(ctx context.Context, path string) (types.Tier, error) {
	p, err := fs.preparePath("gettier", path)
	if err != nil {
		return "", err
	}
	ns := fs.ns(ctx)
	resolved, e, err := fs.resolveEntry(ctx, "gettier", ns, p, true)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", fserrors.NoEnt("gettier", p)
	}
	if e.Type != types.EntryFile {
		return "", fserrors.Inval("gettier", p, "tiering applies to regular files")
	}

	tier, found, err := fs.blobs.GetTier(ctx, key(ns, resolved))
	if err != nil {
		return "", fserrors.IO("gettier", p, err)
	}
	if found {
		return tier, nil
	}
	// Zero-length files may have no materialized blob; fall back to the
	// entry's record.
	if e.Tier != "" {
		return e.Tier, nil
	}
	return types.TierHot, nil
}

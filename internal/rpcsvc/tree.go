package rpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tierfs/tierfs/internal/pathutil"
	"github.com/tierfs/tierfs/internal/vfs"
	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/types"
)

type treeParams struct {
	Src              string `json:"src"`
	Dest             string `json:"dest"`
	Overwrite        bool   `json:"overwrite,omitempty"`
	PreserveMetadata bool   `json:"preserveMetadata,omitempty"`
}

type treeResult struct {
	Copied int `json:"copied"`
	Dirs   int `json:"dirs"`
}

func (s *Service) copyTree(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p treeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.copyTreeInner(ctx, p)
}

func (s *Service) copyTreeInner(ctx context.Context, p treeParams) (*treeResult, error) {
	srcStat, err := s.fs.Lstat(ctx, p.Src)
	if err != nil {
		return nil, err
	}

	// A plain file degenerates to a single copy.
	if !srcStat.IsDirectory() {
		err := s.fs.CopyFile(ctx, p.Src, p.Dest, &vfs.CopyOptions{Overwrite: p.Overwrite})
		if err != nil {
			return nil, err
		}
		if p.PreserveMetadata {
			if err := s.preserveMeta(ctx, p.Src, p.Dest, srcStat); err != nil {
				return nil, err
			}
		}
		return &treeResult{Copied: 1}, nil
	}

	if exists, err := s.fs.Exists(ctx, p.Dest); err != nil {
		return nil, err
	} else if exists && !p.Overwrite {
		return nil, fserrors.Exist("copytree", p.Dest)
	}
	if err := s.fs.Mkdir(ctx, p.Dest, &vfs.MkdirOptions{Recursive: true, Mode: srcStat.Mode & types.ModePermMask}); err != nil {
		return nil, err
	}

	listing, err := s.fs.Readdir(ctx, p.Src, &vfs.ReaddirOptions{WithFileTypes: true, Recursive: true})
	if err != nil {
		return nil, err
	}

	res := &treeResult{Dirs: 1}
	srcRoot := pathutil.Canonicalize(p.Src)
	destRoot := pathutil.Canonicalize(p.Dest)
	if srcRoot == destRoot || pathutil.IsAncestor(srcRoot, destRoot) {
		return nil, fserrors.Inval("copytree", p.Dest, "cannot copy a directory into itself")
	}

	// Directories first (shallow to deep), then files concurrently.
	var files []types.Dirent
	for _, d := range listing.Dirents {
		rel := pathutil.Relative(srcRoot, d.Path)
		target := pathutil.Join(destRoot, rel)
		switch d.Type {
		case types.EntryDirectory:
			if err := s.fs.Mkdir(ctx, target, &vfs.MkdirOptions{Recursive: true}); err != nil {
				return nil, err
			}
			res.Dirs++
		default:
			files = append(files, d)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.WriteParallelism)
	for _, d := range files {
		d := d
		g.Go(func() error {
			rel := pathutil.Relative(srcRoot, d.Path)
			target := pathutil.Join(destRoot, rel)
			if err := s.fs.CopyFile(gctx, d.Path, target, &vfs.CopyOptions{Overwrite: p.Overwrite}); err != nil {
				return err
			}
			if p.PreserveMetadata {
				st, err := s.fs.Lstat(gctx, d.Path)
				if err != nil {
					return err
				}
				return s.preserveMeta(gctx, d.Path, target, st)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.Copied = len(files)
	return res, nil
}

// preserveMeta carries mode, ownership, and times onto the copy.
func (s *Service) preserveMeta(ctx context.Context, src, dest string, st *types.Stat) error {
	if st.IsSymbolicLink() {
		return nil
	}
	if err := s.fs.Chmod(ctx, dest, st.Mode); err != nil {
		return err
	}
	if err := s.fs.Chown(ctx, dest, st.UID, st.GID); err != nil {
		return err
	}
	return s.fs.Utimes(ctx, dest, st.AtimeMs, st.MtimeMs)
}

func (s *Service) moveTree(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p treeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	// Rename already moves whole subtrees atomically with respect to the
	// endpoints; moveTree is its RPC face.
	err := s.fs.Rename(ctx, p.Src, p.Dest, &vfs.RenameOptions{Overwrite: p.Overwrite})
	if err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type dirSizeParams struct {
	Path string `json:"path"`
}

type dirSizeResult struct {
	TotalSize int64 `json:"totalSize"`
	FileCount int64 `json:"fileCount"`
	DirCount  int64 `json:"dirCount"`
}

func (s *Service) dirSize(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p dirSizeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	listing, err := s.fs.Readdir(ctx, p.Path, &vfs.ReaddirOptions{WithFileTypes: true, Recursive: true})
	if err != nil {
		return nil, err
	}
	res := &dirSizeResult{}
	for _, d := range listing.Dirents {
		switch d.Type {
		case types.EntryDirectory:
			res.DirCount++
		case types.EntryFile:
			st, err := s.fs.Lstat(ctx, d.Path)
			if err != nil {
				if fserrors.IsCode(err, fserrors.ENOENT) {
					continue // removed mid-walk
				}
				return nil, err
			}
			res.TotalSize += st.Size
			res.FileCount++
		}
	}
	return res, nil
}

type checksumParams struct {
	Path      string `json:"path"`
	Algorithm string `json:"algorithm,omitempty"`
}

func (s *Service) checksum(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p checksumParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	sum, err := s.checksumOf(ctx, p.Path, p.Algorithm)
	if err != nil {
		return nil, err
	}
	return map[string]string{"path": p.Path, "algorithm": "sha256", "checksum": sum}, nil
}

func (s *Service) checksumOf(ctx context.Context, path, algorithm string) (string, error) {
	switch strings.ToLower(algorithm) {
	case "", "sha256", "sha-256":
	case "md5":
		return "", fserrors.Inval("checksum", path, "md5 is not supported; use sha256")
	default:
		return "", fserrors.Inval("checksum", path, "unsupported algorithm "+algorithm)
	}
	data, err := s.fs.ReadFile(ctx, path, nil)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

type verifyParams struct {
	Path             string `json:"path"`
	ExpectedChecksum string `json:"expectedChecksum"`
	Algorithm        string `json:"algorithm,omitempty"`
}

func (s *Service) verify(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p verifyParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	sum, err := s.checksumOf(ctx, p.Path, p.Algorithm)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"path":     p.Path,
		"valid":    strings.EqualFold(sum, p.ExpectedChecksum),
		"checksum": sum,
	}, nil
}

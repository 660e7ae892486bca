// Package sparse provides a filtered view over the filesystem kernel:
// include/exclude glob rules gate every read, listing, and walk, and
// directory traversal short-circuits subtrees that cannot contain a match.
package sparse

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tierfs/tierfs/internal/pathutil"
	"github.com/tierfs/tierfs/internal/vfs"
	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/glob"
	"github.com/tierfs/tierfs/pkg/types"
)

// Config describes a sparse view.
type Config struct {
	// Patterns are the include globs, matched against paths relative to
	// Root. At least one is required.
	Patterns []string
	// ExcludePatterns remove matches from the view.
	ExcludePatterns []string
	// Root is the subtree the view is anchored at; default "/".
	Root string
	// GitignorePath names a gitignore-format file whose rules are loaded
	// into the exclude list at construction.
	GitignorePath string
}

type pattern struct {
	matcher *glob.Matcher
	// segMatchers match individual pattern segments, for the
	// could-contain test on directories.
	segs     []*glob.Matcher
	globstar []bool // segs[i] is "**"
}

// SparseFS wraps a kernel and enforces the view.
type SparseFS struct {
	fs       *vfs.FileSystem
	root     string
	includes []pattern
	excludes []*glob.Matcher
}

// New validates the configuration and builds the view. When a gitignore
// file is configured it is read through the wrapped filesystem.
func New(ctx context.Context, fs *vfs.FileSystem, cfg Config) (*SparseFS, error) {
	if len(cfg.Patterns) == 0 {
		return nil, fmt.Errorf("sparse view requires at least one include pattern")
	}
	root := "/"
	if cfg.Root != "" {
		root = pathutil.Canonicalize(cfg.Root)
	}

	s := &SparseFS{fs: fs, root: root}
	for _, p := range cfg.Patterns {
		compiled, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		s.includes = append(s.includes, compiled)
	}
	excludes := append([]string{}, cfg.ExcludePatterns...)

	if cfg.GitignorePath != "" {
		data, err := fs.ReadFile(ctx, cfg.GitignorePath, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to load gitignore: %w", err)
		}
		inc, exc := ParseGitignore(string(data))
		excludes = append(excludes, exc...)
		for _, p := range inc {
			compiled, err := compilePattern(p)
			if err != nil {
				return nil, err
			}
			s.includes = append(s.includes, compiled)
		}
	}

	for _, p := range excludes {
		m, err := glob.Compile(normalizePattern(p), glob.Options{Dot: true})
		if err != nil {
			return nil, err
		}
		s.excludes = append(s.excludes, m)
	}
	return s, nil
}

func compilePattern(p string) (pattern, error) {
	p = normalizePattern(p)
	m, err := glob.Compile(p, glob.Options{Dot: true})
	if err != nil {
		return pattern{}, err
	}
	out := pattern{matcher: m}
	for _, seg := range strings.Split(p, "/") {
		if seg == "**" {
			out.segs = append(out.segs, nil)
			out.globstar = append(out.globstar, true)
			continue
		}
		sm, err := glob.Compile(seg, glob.Options{Dot: true})
		if err != nil {
			return pattern{}, err
		}
		out.segs = append(out.segs, sm)
		out.globstar = append(out.globstar, false)
	}
	return out, nil
}

func normalizePattern(p string) string {
	return strings.TrimPrefix(p, "/")
}

// rel strips the view root from an absolute path; ok is false when the
// path lies outside the root entirely.
func (s *SparseFS) rel(p string) (string, bool) {
	p = pathutil.Canonicalize(p)
	if s.root == "/" {
		return strings.TrimPrefix(p, "/"), true
	}
	if p == s.root {
		return "", true
	}
	if !pathutil.IsAncestor(s.root, p) {
		return "", false
	}
	return p[len(s.root)+1:], true
}

// ShouldInclude is the core predicate: the path, relative to the root,
// must match at least one include pattern and no exclude pattern.
func (s *SparseFS) ShouldInclude(path string) bool {
	rel, ok := s.rel(path)
	if !ok {
		return false
	}
	matched := false
	for _, inc := range s.includes {
		if inc.matcher.Match(rel) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, exc := range s.excludes {
		if exc.Match(rel) {
			return false
		}
	}
	return true
}

// CouldContainMatch reports whether a directory might hold an included
// descendant, enabling short-circuit traversal. A directory passes when
// its relative segments are a prefix-match of some include pattern.
func (s *SparseFS) CouldContainMatch(dir string) bool {
	rel, ok := s.rel(dir)
	if !ok {
		return false
	}
	if rel == "" {
		return true
	}
	for _, exc := range s.excludes {
		if exc.Match(rel) {
			return false
		}
	}
	dirSegs := strings.Split(rel, "/")
	for _, inc := range s.includes {
		if prefixMatch(inc, dirSegs) {
			return true
		}
	}
	return false
}

func prefixMatch(p pattern, dirSegs []string) bool {
	for i, seg := range dirSegs {
		if i >= len(p.segs) {
			return false
		}
		if p.globstar[i] {
			// '**' swallows the rest of the directory path.
			return true
		}
		if !p.segs[i].Match(seg) {
			return false
		}
	}
	// All directory segments matched; the pattern needs more segments to
	// name something inside.
	return len(p.segs) > len(dirSegs)
}

// ReaddirOptions extend the kernel listing with view-level filters.
type ReaddirOptions struct {
	WithFileTypes bool
	// NameFilter is a glob applied to entry names.
	NameFilter string
	// TypeFilter keeps only entries of one type.
	TypeFilter types.EntryType
	// IncludeHidden keeps dot-names; they are dropped by default.
	IncludeHidden bool
}

// Readdir lists the included entries of a directory.
func (s *SparseFS) Readdir(ctx context.Context, path string, opts *ReaddirOptions) (*vfs.ReaddirResult, error) {
	var o ReaddirOptions
	if opts != nil {
		o = *opts
	}
	var nameMatcher *glob.Matcher
	if o.NameFilter != "" {
		m, err := glob.Compile(o.NameFilter, glob.Options{Dot: o.IncludeHidden})
		if err != nil {
			return nil, fserrors.Inval("readdir", path, "bad name filter: "+err.Error())
		}
		nameMatcher = m
	}

	raw, err := s.fs.Readdir(ctx, path, &vfs.ReaddirOptions{WithFileTypes: true})
	if err != nil {
		return nil, err
	}

	res := &vfs.ReaddirResult{}
	for _, d := range raw.Dirents {
		if !o.IncludeHidden && strings.HasPrefix(d.Name, ".") {
			continue
		}
		if nameMatcher != nil && !nameMatcher.Match(d.Name) {
			continue
		}
		if o.TypeFilter != "" && d.Type != o.TypeFilter {
			continue
		}
		if d.Type == types.EntryDirectory {
			if !s.ShouldInclude(d.Path) && !s.CouldContainMatch(d.Path) {
				continue
			}
		} else if !s.ShouldInclude(d.Path) {
			continue
		}
		if o.WithFileTypes {
			res.Dirents = append(res.Dirents, d)
		} else {
			res.Names = append(res.Names, d.Name)
		}
	}
	if !o.WithFileTypes {
		sort.Strings(res.Names)
	}
	return res, nil
}

// ReadFile reads a file the view includes; excluded paths are ENOENT, as
// if they did not exist.
func (s *SparseFS) ReadFile(ctx context.Context, path string, opts *vfs.ReadOptions) ([]byte, error) {
	if !s.ShouldInclude(path) {
		return nil, fserrors.NoEnt("open", pathutil.Canonicalize(path))
	}
	return s.fs.ReadFile(ctx, path, opts)
}

// Stat stats a file the view includes.
func (s *SparseFS) Stat(ctx context.Context, path string) (*types.Stat, error) {
	if !s.ShouldInclude(path) {
		return nil, fserrors.NoEnt("stat", pathutil.Canonicalize(path))
	}
	return s.fs.Stat(ctx, path)
}

// Exists reports existence within the view.
func (s *SparseFS) Exists(ctx context.Context, path string) (bool, error) {
	if !s.ShouldInclude(path) {
		return false, nil
	}
	return s.fs.Exists(ctx, path)
}

// WalkEntry is one record yielded by Walk.
type WalkEntry struct {
	Path  string
	Name  string
	Type  types.EntryType
	Depth int
}

// WalkOptions bound a walk.
type WalkOptions struct {
	// MaxDepth stops descent below this depth; 0 means unlimited.
	MaxDepth int
	// IncludeDotFiles visits dot-names.
	IncludeDotFiles bool
}

// Walk yields every included entry under root in depth-first pre-order,
// skipping directories that cannot contain a match. Returning an error
// from fn stops the walk.
func (s *SparseFS) Walk(ctx context.Context, root string, opts *WalkOptions, fn func(WalkEntry) error) error {
	var o WalkOptions
	if opts != nil {
		o = *opts
	}
	root = pathutil.Canonicalize(root)
	return s.walk(ctx, root, 1, o, fn)
}

func (s *SparseFS) walk(ctx context.Context, dir string, depth int, o WalkOptions, fn func(WalkEntry) error) error {
	if o.MaxDepth > 0 && depth > o.MaxDepth {
		return nil
	}
	listing, err := s.fs.Readdir(ctx, dir, &vfs.ReaddirOptions{WithFileTypes: true})
	if err != nil {
		return err
	}
	for _, d := range listing.Dirents {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !o.IncludeDotFiles && strings.HasPrefix(d.Name, ".") {
			continue
		}
		if d.Type == types.EntryDirectory {
			if !s.ShouldInclude(d.Path) && !s.CouldContainMatch(d.Path) {
				continue
			}
			if s.ShouldInclude(d.Path) {
				if err := fn(WalkEntry{Path: d.Path, Name: d.Name, Type: d.Type, Depth: depth}); err != nil {
					return err
				}
			}
			if err := s.walk(ctx, d.Path, depth+1, o, fn); err != nil {
				return err
			}
			continue
		}
		if !s.ShouldInclude(d.Path) {
			continue
		}
		if err := fn(WalkEntry{Path: d.Path, Name: d.Name, Type: d.Type, Depth: depth}); err != nil {
			return err
		}
	}
	return nil
}

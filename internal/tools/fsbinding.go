package tools

import (
	"context"
	"strings"

	"github.com/dop251/goja"

	"github.com/tierfs/tierfs/internal/pathutil"
	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/glob"
	"github.com/tierfs/tierfs/pkg/types"
)

// fsBinding is the capability surface sandboxed code sees as `fs`. Every
// method applies the permission predicates before touching storage;
// violations surface as thrown EACCES errors.
type fsBinding struct {
	vm      *goja.Runtime
	ctx     context.Context
	storage Storage
	opts    SandboxOptions
}

func (b *fsBinding) object() *goja.Object {
	obj := b.vm.NewObject()
	obj.Set("read", b.read)
	obj.Set("write", b.write)
	obj.Set("append", b.append)
	obj.Set("delete", b.delete)
	obj.Set("move", b.move)
	obj.Set("copy", b.copy)
	obj.Set("mkdir", b.mkdir)
	obj.Set("stat", b.stat)
	obj.Set("list", b.list)
	obj.Set("tree", b.tree)
	obj.Set("search", b.search)
	obj.Set("exists", b.exists)
	return obj
}

// throw converts a Go error into a JS exception.
func (b *fsBinding) throw(err error) {
	panic(b.vm.NewGoError(err))
}

// checkPath enforces the allowed-path restriction.
func (b *fsBinding) checkPath(p string) string {
	p = pathutil.Canonicalize(p)
	if len(b.opts.AllowedPaths) == 0 {
		return p
	}
	for _, allowed := range b.opts.AllowedPaths {
		allowed = pathutil.Canonicalize(allowed)
		if p == allowed || pathutil.IsAncestor(allowed, p) {
			return p
		}
	}
	b.throw(fserrors.Access("sandbox", p))
	return ""
}

func (b *fsBinding) checkWrite(p string) string {
	if !b.opts.AllowWrite {
		b.throw(fserrors.New(fserrors.EACCES, "writes are not permitted in this sandbox").WithPath(p))
	}
	return b.checkPath(p)
}

func (b *fsBinding) checkDelete(p string) string {
	if !b.opts.AllowDelete {
		b.throw(fserrors.New(fserrors.EACCES, "deletes are not permitted in this sandbox").WithPath(p))
	}
	return b.checkPath(p)
}

func (b *fsBinding) read(path string) string {
	p := b.checkPath(path)
	data, err := b.storage.Read(b.ctx, p)
	if err != nil {
		b.throw(err)
	}
	return string(data)
}

func (b *fsBinding) write(path, content string) bool {
	p := b.checkWrite(path)
	if err := b.storage.Write(b.ctx, p, []byte(content)); err != nil {
		b.throw(err)
	}
	return true
}

func (b *fsBinding) append(path, content string) bool {
	p := b.checkWrite(path)
	if err := b.storage.Append(b.ctx, p, []byte(content)); err != nil {
		b.throw(err)
	}
	return true
}

func (b *fsBinding) delete(path string) bool {
	p := b.checkDelete(path)
	if err := b.storage.Delete(b.ctx, p, true); err != nil {
		b.throw(err)
	}
	return true
}

func (b *fsBinding) move(src, dst string) bool {
	s := b.checkWrite(src)
	d := b.checkWrite(dst)
	if err := b.storage.Move(b.ctx, s, d); err != nil {
		b.throw(err)
	}
	return true
}

func (b *fsBinding) copy(src, dst string) bool {
	s := b.checkPath(src)
	d := b.checkWrite(dst)
	if err := b.storage.Copy(b.ctx, s, d); err != nil {
		b.throw(err)
	}
	return true
}

func (b *fsBinding) mkdir(path string) bool {
	p := b.checkWrite(path)
	if err := b.storage.Mkdir(b.ctx, p); err != nil {
		b.throw(err)
	}
	return true
}

func (b *fsBinding) stat(path string) map[string]interface{} {
	p := b.checkPath(path)
	st, err := b.storage.Stat(b.ctx, p)
	if err != nil {
		b.throw(err)
	}
	return map[string]interface{}{
		"size":        st.Size,
		"mode":        st.Mode,
		"type":        string(st.Type),
		"mtimeMs":     st.MtimeMs,
		"birthtimeMs": st.BirthtimeMs,
		"isFile":      st.IsFile(),
		"isDirectory": st.IsDirectory(),
		"isSymlink":   st.IsSymbolicLink(),
		"tier":        string(st.Tier),
		"permissions": pathutil.ModeToString(st.Mode),
	}
}

func (b *fsBinding) list(path string) []map[string]interface{} {
	p := b.checkPath(path)
	entries, err := b.storage.List(b.ctx, p)
	if err != nil {
		b.throw(err)
	}
	out := make([]map[string]interface{}, len(entries))
	for i, d := range entries {
		out[i] = map[string]interface{}{
			"name": d.Name,
			"path": d.Path,
			"type": string(d.Type),
		}
	}
	return out
}

func (b *fsBinding) tree(path string) []string {
	p := b.checkPath(path)
	var out []string
	err := b.storage.Walk(b.ctx, p, func(d types.Dirent) error {
		out = append(out, d.Path)
		return nil
	})
	if err != nil {
		b.throw(err)
	}
	return out
}

func (b *fsBinding) search(pattern string) []string {
	matcher, err := glob.Compile(strings.TrimPrefix(pattern, "/"), glob.Options{Dot: true})
	if err != nil {
		b.throw(fserrors.Inval("search", "", "bad glob pattern: "+err.Error()))
	}
	root := "/"
	if len(b.opts.AllowedPaths) == 1 {
		root = pathutil.Canonicalize(b.opts.AllowedPaths[0])
	}
	var out []string
	err = b.storage.Walk(b.ctx, root, func(d types.Dirent) error {
		if matcher.Match(strings.TrimPrefix(d.Path, "/")) {
			out = append(out, d.Path)
		}
		return nil
	})
	if err != nil {
		b.throw(err)
	}
	return out
}

func (b *fsBinding) exists(path string) bool {
	p := b.checkPath(path)
	ok, err := b.storage.Exists(b.ctx, p)
	if err != nil {
		b.throw(err)
	}
	return ok
}

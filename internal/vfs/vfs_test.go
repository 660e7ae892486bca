package vfs

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierfs/tierfs/internal/blob"
	"github.com/tierfs/tierfs/internal/logging"
	"github.com/tierfs/tierfs/internal/store"
	"github.com/tierfs/tierfs/internal/watch"
	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/types"
)

func newTestFS(t *testing.T, opts ...Options) *FileSystem {
	o := Options{WarmEnabled: true, ColdEnabled: true}
	if len(opts) > 0 {
		o = opts[0]
	}
	wm := watch.NewManager(logging.ForComponent(logging.Discard(), "watch"))
	t.Cleanup(wm.Close)
	return New(store.NewMemory(), blob.NewMemory(), wm, logging.ForComponent(logging.Discard(), "vfs"), o)
}

func assertCode(t *testing.T, err error, code fserrors.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, fserrors.CodeOf(err), "got error: %v", err)
}

// Create, read, overwrite, delete.
func TestWriteReadOverwriteUnlink(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/a.txt", []byte("Hello"), nil))

	data, err := fs.ReadFile(ctx, "/a.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(data))

	st, err := fs.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Size)
	assert.True(t, st.IsFile())
	assert.Equal(t, int64(1), st.Blocks)
	assert.Equal(t, int64(4096), st.Blksize)

	require.NoError(t, fs.WriteFile(ctx, "/a.txt", []byte("Hi"), nil))
	data, err = fs.ReadFile(ctx, "/a.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi", string(data))

	st, err = fs.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Size)

	require.NoError(t, fs.Unlink(ctx, "/a.txt"))
	_, err = fs.ReadFile(ctx, "/a.txt", nil)
	assertCode(t, err, fserrors.ENOENT)

	exists, err := fs.Exists(ctx, "/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWriteFlags(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/f", []byte("one"), &WriteOptions{Flag: "wx"}))
	assertCode(t, fs.WriteFile(ctx, "/f", []byte("two"), &WriteOptions{Flag: "wx"}), fserrors.EEXIST)

	require.NoError(t, fs.WriteFile(ctx, "/f", []byte("-two"), &WriteOptions{Flag: "a"}))
	data, err := fs.ReadFile(ctx, "/f", nil)
	require.NoError(t, err)
	assert.Equal(t, "one-two", string(data))

	require.NoError(t, fs.AppendFile(ctx, "/fresh", []byte("new")))
	data, err = fs.ReadFile(ctx, "/fresh", nil)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	assertCode(t, fs.WriteFile(ctx, "/f", nil, &WriteOptions{Flag: "rw"}), fserrors.EINVAL)
}

func TestWriteRequiresParent(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	assertCode(t, fs.WriteFile(ctx, "/no/such/dir/f", []byte("x"), nil), fserrors.ENOENT)

	require.NoError(t, fs.WriteFile(ctx, "/plain", []byte("x"), nil))
	assertCode(t, fs.WriteFile(ctx, "/plain/child", []byte("x"), nil), fserrors.ENOTDIR)
}

func TestReadRange(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()
	require.NoError(t, fs.WriteFile(ctx, "/r", []byte("0123456789"), nil))

	start, end := int64(2), int64(5)
	data, err := fs.ReadFile(ctx, "/r", &ReadOptions{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, "2345", string(data))

	// Past-EOF reads are empty, not an error.
	start = 100
	data, err = fs.ReadFile(ctx, "/r", &ReadOptions{Start: &start})
	require.NoError(t, err)
	assert.Empty(t, data)

	// start > end is EINVAL.
	start, end = 5, 2
	_, err = fs.ReadFile(ctx, "/r", &ReadOptions{Start: &start, End: &end})
	assertCode(t, err, fserrors.EINVAL)
}

func TestReadDirectoryFails(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()
	require.NoError(t, fs.Mkdir(ctx, "/d", nil))
	_, err := fs.ReadFile(ctx, "/d", nil)
	assertCode(t, err, fserrors.EISDIR)
}

// Recursive mkdir / rm.
func TestMkdirRecursiveAndRm(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Mkdir(ctx, "/a/b/c", &MkdirOptions{Recursive: true}))
	for _, p := range []string{"/a", "/a/b", "/a/b/c"} {
		st, err := fs.Stat(ctx, p)
		require.NoError(t, err, p)
		assert.True(t, st.IsDirectory(), p)
	}

	assertCode(t, fs.Mkdir(ctx, "/a/b/c", nil), fserrors.EEXIST)
	assertCode(t, fs.Mkdir(ctx, "/missing/child", nil), fserrors.ENOENT)

	// Recursive mkdir over an existing directory chain is not an error.
	require.NoError(t, fs.Mkdir(ctx, "/a/b/c", &MkdirOptions{Recursive: true}))

	// A file ancestor fails with ENOTDIR.
	require.NoError(t, fs.WriteFile(ctx, "/a/file", []byte("x"), nil))
	assertCode(t, fs.Mkdir(ctx, "/a/file/sub", &MkdirOptions{Recursive: true}), fserrors.ENOTDIR)

	require.NoError(t, fs.WriteFile(ctx, "/a/b/c/leaf", []byte("x"), nil))
	require.NoError(t, fs.Rm(ctx, "/a", &RmOptions{Recursive: true, Force: true}))
	exists, err := fs.Exists(ctx, "/a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRmdirSemantics(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Mkdir(ctx, "/d/sub", &MkdirOptions{Recursive: true}))
	assertCode(t, fs.Rmdir(ctx, "/d", nil), fserrors.ENOTEMPTY)
	require.NoError(t, fs.Rmdir(ctx, "/d", &RmdirOptions{Recursive: true}))

	require.NoError(t, fs.WriteFile(ctx, "/f", []byte("x"), nil))
	assertCode(t, fs.Rmdir(ctx, "/f", nil), fserrors.ENOTDIR)
	assertCode(t, fs.Rmdir(ctx, "/gone", nil), fserrors.ENOENT)

	assertCode(t, fs.Rm(ctx, "/gone", nil), fserrors.ENOENT)
	require.NoError(t, fs.Rm(ctx, "/gone", &RmOptions{Force: true}))
	assertCode(t, fs.Rm(ctx, "/f2", nil), fserrors.ENOENT)

	require.NoError(t, fs.Mkdir(ctx, "/dir2", nil))
	assertCode(t, fs.Rm(ctx, "/dir2", nil), fserrors.EISDIR)
}

// Rename overwrite.
func TestRenameOverwrite(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/x", []byte("1"), nil))
	require.NoError(t, fs.WriteFile(ctx, "/y", []byte("2"), nil))

	assertCode(t, fs.Rename(ctx, "/x", "/y", nil), fserrors.EEXIST)

	require.NoError(t, fs.Rename(ctx, "/x", "/y", &RenameOptions{Overwrite: true}))
	data, err := fs.ReadFile(ctx, "/y", nil)
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	exists, err := fs.Exists(ctx, "/x")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRenameDirectoryMovesSubtree(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Mkdir(ctx, "/src/deep", &MkdirOptions{Recursive: true}))
	require.NoError(t, fs.WriteFile(ctx, "/src/deep/f", []byte("payload"), nil))
	require.NoError(t, fs.Mkdir(ctx, "/dstparent", nil))

	require.NoError(t, fs.Rename(ctx, "/src", "/dstparent/moved", nil))

	data, err := fs.ReadFile(ctx, "/dstparent/moved/deep/f", nil)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	exists, err := fs.Exists(ctx, "/src")
	require.NoError(t, err)
	assert.False(t, exists)

	// A directory cannot move into its own subtree.
	assertCode(t, fs.Rename(ctx, "/dstparent", "/dstparent/moved/in", nil), fserrors.EINVAL)

	// Non-empty directory destination is ENOTEMPTY even with overwrite.
	require.NoError(t, fs.Mkdir(ctx, "/full/sub", &MkdirOptions{Recursive: true}))
	require.NoError(t, fs.Mkdir(ctx, "/other", nil))
	assertCode(t, fs.Rename(ctx, "/other", "/full", &RenameOptions{Overwrite: true}), fserrors.ENOTEMPTY)
}

func TestCopyFile(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/src", []byte("abc"), nil))
	require.NoError(t, fs.CopyFile(ctx, "/src", "/dst", nil))

	data, err := fs.ReadFile(ctx, "/dst", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	// Source untouched.
	data, err = fs.ReadFile(ctx, "/src", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	assertCode(t, fs.CopyFile(ctx, "/src", "/dst", nil), fserrors.EEXIST)
	require.NoError(t, fs.CopyFile(ctx, "/src", "/dst", &CopyOptions{Overwrite: true}))

	require.NoError(t, fs.Mkdir(ctx, "/d", nil))
	assertCode(t, fs.CopyFile(ctx, "/d", "/d2", nil), fserrors.EISDIR)
}

func TestTruncate(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/t", []byte("abcdef"), nil))

	require.NoError(t, fs.Truncate(ctx, "/t", 3))
	st, err := fs.Stat(ctx, "/t")
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Size)

	// Extension zero-pads.
	require.NoError(t, fs.Truncate(ctx, "/t", 6))
	data, err := fs.ReadFile(ctx, "/t", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', 'b', 'c', 0, 0, 0}, data)

	assertCode(t, fs.Truncate(ctx, "/t", -1), fserrors.EINVAL)
}

// Symlink chain.
func TestSymlinkChain(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/target", []byte("data"), nil))
	require.NoError(t, fs.Symlink(ctx, "/target", "/l1"))
	require.NoError(t, fs.Symlink(ctx, "/l1", "/l2"))

	data, err := fs.ReadFile(ctx, "/l2", nil)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	lst, err := fs.Lstat(ctx, "/l2")
	require.NoError(t, err)
	assert.True(t, lst.IsSymbolicLink())
	assert.Equal(t, int64(len("/l1")), lst.Size)

	st, err := fs.Stat(ctx, "/l2")
	require.NoError(t, err)
	assert.False(t, st.IsSymbolicLink())
	assert.True(t, st.IsFile())

	target, err := fs.Readlink(ctx, "/l2")
	require.NoError(t, err)
	assert.Equal(t, "/l1", target)

	resolved, err := fs.Realpath(ctx, "/l2")
	require.NoError(t, err)
	assert.Equal(t, "/target", resolved)

	_, err = fs.Readlink(ctx, "/target")
	assertCode(t, err, fserrors.EINVAL)
}

func TestSymlinkLoop(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Symlink(ctx, "/b", "/a"))
	require.NoError(t, fs.Symlink(ctx, "/a", "/b"))

	_, err := fs.Realpath(ctx, "/a")
	assertCode(t, err, fserrors.ELOOP)
}

func TestBrokenSymlink(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Symlink(ctx, "/nowhere", "/broken"))

	lst, err := fs.Lstat(ctx, "/broken")
	require.NoError(t, err)
	assert.True(t, lst.IsSymbolicLink())

	_, err = fs.Stat(ctx, "/broken")
	assertCode(t, err, fserrors.ENOENT)
}

func TestRelativeSymlink(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Mkdir(ctx, "/dir", nil))
	require.NoError(t, fs.WriteFile(ctx, "/dir/real", []byte("rel"), nil))
	require.NoError(t, fs.Symlink(ctx, "real", "/dir/alias"))

	data, err := fs.ReadFile(ctx, "/dir/alias", nil)
	require.NoError(t, err)
	assert.Equal(t, "rel", string(data))
}

func TestHardLink(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/orig", []byte("shared"), nil))
	require.NoError(t, fs.Link(ctx, "/orig", "/alias"))

	st, err := fs.Stat(ctx, "/alias")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Nlink)

	data, err := fs.ReadFile(ctx, "/alias", nil)
	require.NoError(t, err)
	assert.Equal(t, "shared", string(data))

	assertCode(t, fs.Link(ctx, "/orig", "/alias"), fserrors.EEXIST)
	assertCode(t, fs.Link(ctx, "/absent", "/new"), fserrors.ENOENT)

	require.NoError(t, fs.Mkdir(ctx, "/d", nil))
	assertCode(t, fs.Link(ctx, "/d", "/dlink"), fserrors.EPERM)

	// Unlinking one name leaves the other readable.
	require.NoError(t, fs.Unlink(ctx, "/orig"))
	data, err = fs.ReadFile(ctx, "/alias", nil)
	require.NoError(t, err)
	assert.Equal(t, "shared", string(data))
}

// Tiering.
func TestTierPlacementPolicy(t *testing.T) {
	fs := newTestFS(t, Options{HotMaxSize: 1024, WarmEnabled: true, ColdEnabled: true})
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/small", bytes.Repeat([]byte("a"), 512), nil))
	tier, err := fs.GetTier(ctx, "/small")
	require.NoError(t, err)
	assert.Equal(t, types.TierHot, tier)

	require.NoError(t, fs.WriteFile(ctx, "/big", bytes.Repeat([]byte("b"), 2048), nil))
	tier, err = fs.GetTier(ctx, "/big")
	require.NoError(t, err)
	assert.Equal(t, types.TierWarm, tier)

	require.NoError(t, fs.Demote(ctx, "/small", types.TierWarm))
	tier, err = fs.GetTier(ctx, "/small")
	require.NoError(t, err)
	assert.Equal(t, types.TierWarm, tier)

	require.NoError(t, fs.Promote(ctx, "/small", types.TierHot))
	tier, err = fs.GetTier(ctx, "/small")
	require.NoError(t, err)
	assert.Equal(t, types.TierHot, tier)

	assertCode(t, fs.Promote(ctx, "/small", types.TierCold), fserrors.EINVAL)
	assertCode(t, fs.Demote(ctx, "/small", types.TierHot), fserrors.EINVAL)
}

func TestTierDisabled(t *testing.T) {
	fs := newTestFS(t, Options{HotMaxSize: 1024, WarmEnabled: false, ColdEnabled: true})
	ctx := context.Background()

	// Policy skips the disabled warm tier.
	require.NoError(t, fs.WriteFile(ctx, "/big", bytes.Repeat([]byte("b"), 4096), nil))
	tier, err := fs.GetTier(ctx, "/big")
	require.NoError(t, err)
	assert.Equal(t, types.TierCold, tier)

	assertCode(t, fs.WriteFile(ctx, "/w", []byte("x"), &WriteOptions{Tier: types.TierWarm}), fserrors.EINVAL)
	assertCode(t, fs.Demote(ctx, "/big", types.TierWarm), fserrors.EINVAL)
}

// Rename preserves tier placement.
func TestRenamePreservesTier(t *testing.T) {
	fs := newTestFS(t, Options{HotMaxSize: 10, WarmEnabled: true})
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/f", bytes.Repeat([]byte("x"), 100), nil))
	require.NoError(t, fs.Rename(ctx, "/f", "/g", nil))
	tier, err := fs.GetTier(ctx, "/g")
	require.NoError(t, err)
	assert.Equal(t, types.TierWarm, tier)
}

func TestReaddir(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Mkdir(ctx, "/d/sub", &MkdirOptions{Recursive: true}))
	require.NoError(t, fs.WriteFile(ctx, "/d/b.txt", []byte("x"), nil))
	require.NoError(t, fs.WriteFile(ctx, "/d/a.txt", []byte("x"), nil))
	require.NoError(t, fs.WriteFile(ctx, "/d/sub/deep.txt", []byte("x"), nil))

	res, err := fs.Readdir(ctx, "/d", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "sub"}, res.Names)

	res, err = fs.Readdir(ctx, "/d", &ReaddirOptions{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "sub", "sub/deep.txt"}, res.Names)

	res, err = fs.Readdir(ctx, "/d", &ReaddirOptions{WithFileTypes: true})
	require.NoError(t, err)
	require.Len(t, res.Dirents, 3)
	assert.Equal(t, "a.txt", res.Dirents[0].Name)
	assert.Equal(t, "/d", res.Dirents[0].ParentPath)
	assert.Equal(t, "/d/a.txt", res.Dirents[0].Path)
	assert.Equal(t, types.EntryFile, res.Dirents[0].Type)
	assert.Equal(t, types.EntryDirectory, res.Dirents[2].Type)

	_, err = fs.Readdir(ctx, "/absent", nil)
	assertCode(t, err, fserrors.ENOENT)
	_, err = fs.Readdir(ctx, "/d/a.txt", nil)
	assertCode(t, err, fserrors.ENOTDIR)
}

func TestChmodChownUtimes(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()
	require.NoError(t, fs.WriteFile(ctx, "/f", []byte("x"), nil))

	require.NoError(t, fs.Chmod(ctx, "/f", 0o600))
	st, err := fs.Stat(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, types.ModeRegular|0o600, st.Mode)
	assert.True(t, st.IsFile(), "chmod must not clobber the type bits")

	require.NoError(t, fs.Chown(ctx, "/f", 42, 43))
	st, err = fs.Stat(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, 42, st.UID)
	assert.Equal(t, 43, st.GID)

	require.NoError(t, fs.Utimes(ctx, "/f", 1000, 2000))
	st, err = fs.Stat(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), st.AtimeMs)
	assert.Equal(t, int64(2000), st.MtimeMs)
}

func TestAccess(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()
	require.NoError(t, fs.WriteFile(ctx, "/f", []byte("x"), &WriteOptions{Mode: 0o640}))
	require.NoError(t, fs.Chown(ctx, "/f", 100, 200))

	// Existence check.
	require.NoError(t, fs.Access(ctx, "/f", FOK))
	assertCode(t, fs.Access(ctx, "/absent", FOK), fserrors.ENOENT)

	owner := types.WithCaller(ctx, types.Caller{UID: 100, GID: 1})
	require.NoError(t, fs.Access(owner, "/f", ROK|WOK))
	assertCode(t, fs.Access(owner, "/f", XOK), fserrors.EACCES)

	group := types.WithCaller(ctx, types.Caller{UID: 5, GID: 200})
	require.NoError(t, fs.Access(group, "/f", ROK))
	assertCode(t, fs.Access(group, "/f", WOK), fserrors.EACCES)

	other := types.WithCaller(ctx, types.Caller{UID: 5, GID: 5})
	assertCode(t, fs.Access(other, "/f", ROK), fserrors.EACCES)

	// Root bypasses permission bits.
	root := types.WithCaller(ctx, types.Caller{UID: 0, GID: 0})
	require.NoError(t, fs.Access(root, "/f", ROK|WOK|XOK))
}

// Path traversal is rejected at the boundary.
func TestTraversalRejected(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	_, err := fs.ReadFile(ctx, "/../etc/passwd", nil)
	assertCode(t, err, fserrors.EACCES)
	assertCode(t, fs.WriteFile(ctx, "/a/../../b", []byte("x"), nil), fserrors.EACCES)
	_, err = fs.Stat(ctx, "/..")
	assertCode(t, err, fserrors.EACCES)
}

func TestPathTooLong(t *testing.T) {
	fs := newTestFS(t, Options{MaxPathLength: 10})
	_, err := fs.Stat(context.Background(), "/very/long/path/exceeding")
	assertCode(t, err, fserrors.ENAMETOOLONG)
}

// Namespace isolation.
func TestNamespaceIsolation(t *testing.T) {
	fs := newTestFS(t)
	ns1 := types.WithNamespace(context.Background(), "tenant1")
	ns2 := types.WithNamespace(context.Background(), "tenant2")

	require.NoError(t, fs.WriteFile(ns1, "/shared-name", []byte("tenant1 data"), nil))

	_, err := fs.ReadFile(ns2, "/shared-name", nil)
	assertCode(t, err, fserrors.ENOENT)

	require.NoError(t, fs.WriteFile(ns2, "/shared-name", []byte("tenant2 data"), nil))
	data, err := fs.ReadFile(ns1, "/shared-name", nil)
	require.NoError(t, err)
	assert.Equal(t, "tenant1 data", string(data))

	res, err := fs.Readdir(ns2, "/", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared-name"}, res.Names)

	require.NoError(t, fs.Unlink(ns2, "/shared-name"))
	data, err = fs.ReadFile(ns1, "/shared-name", nil)
	require.NoError(t, err)
	assert.Equal(t, "tenant1 data", string(data))
}

func TestFileHandle(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/h", []byte("hello world"), nil))

	h, err := fs.Open(ctx, "/h", "r+")
	require.NoError(t, err)

	buf := make([]byte, 5)
	n, err := h.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	_, err = h.WriteAt(ctx, []byte("W"), 6)
	require.NoError(t, err)
	require.NoError(t, h.Sync(ctx))

	data, err := fs.ReadFile(ctx, "/h", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello World", string(data))

	require.NoError(t, h.Close(ctx))
	_, err = h.ReadAt(ctx, buf, 0)
	assertCode(t, err, fserrors.EBADF)
	require.NoError(t, h.Close(ctx), "close is idempotent")

	_, err = fs.Open(ctx, "/absent", "r")
	assertCode(t, err, fserrors.ENOENT)

	// Append-mode handle writes land at the end regardless of position.
	a, err := fs.Open(ctx, "/h", "a")
	require.NoError(t, err)
	_, err = a.WriteAt(ctx, []byte("!"), 0)
	require.NoError(t, err)
	require.NoError(t, a.Close(ctx))
	data, err = fs.ReadFile(ctx, "/h", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello World!", string(data))
}

func TestReadStream(t *testing.T) {
	fs := newTestFS(t, Options{StreamChunkSize: 4})
	ctx := context.Background()

	content := []byte("abcdefghij")
	require.NoError(t, fs.WriteFile(ctx, "/s", content, nil))

	rs, err := fs.CreateReadStream(ctx, "/s", nil)
	require.NoError(t, err)

	var got []byte
	var chunks int
	for {
		chunk, err := rs.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk...)
		chunks++
	}
	assert.Equal(t, content, got)
	assert.Equal(t, 3, chunks, "10 bytes in 4-byte chunks")

	// Ranged stream.
	rs, err = fs.CreateReadStream(ctx, "/s", &ReadStreamOptions{Start: 2, End: 5})
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = rs.WriteTo(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, "cdef", buf.String())
}

func TestWriteStream(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	ws, err := fs.CreateWriteStream(ctx, "/w", nil)
	require.NoError(t, err)
	_, err = ws.Write([]byte("part1-"))
	require.NoError(t, err)
	_, err = ws.Write([]byte("part2"))
	require.NoError(t, err)

	// Nothing visible until close.
	exists, err := fs.Exists(ctx, "/w")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, ws.Close(ctx))
	data, err := fs.ReadFile(ctx, "/w", nil)
	require.NoError(t, err)
	assert.Equal(t, "part1-part2", string(data))
}

func TestModeAndOwnershipOnCreate(t *testing.T) {
	fs := newTestFS(t)
	ctx := types.WithCaller(context.Background(), types.Caller{UID: 7, GID: 8})

	require.NoError(t, fs.WriteFile(ctx, "/f", []byte("x"), &WriteOptions{Mode: 0o600}))
	st, err := fs.Stat(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, types.ModeRegular|0o600, st.Mode)
	assert.Equal(t, 7, st.UID)
	assert.Equal(t, 8, st.GID)
	assert.Equal(t, 1, st.Nlink)
	assert.NotZero(t, st.BirthtimeMs)
}

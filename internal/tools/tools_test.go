package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierfs/tierfs/internal/auth"
	"github.com/tierfs/tierfs/internal/blob"
	"github.com/tierfs/tierfs/internal/config"
	"github.com/tierfs/tierfs/internal/logging"
	"github.com/tierfs/tierfs/internal/store"
	"github.com/tierfs/tierfs/internal/vfs"
	"github.com/tierfs/tierfs/internal/watch"
)

func testConfig() *config.Configuration {
	cfg := config.DefaultConfig()
	cfg.Auth.AllowAnonymousRead = true
	cfg.Auth.Tokens = []config.AuthToken{
		{Token: "reader", Scopes: []string{"read"}},
		{Token: "writer", Scopes: []string{"write"}},
		{Token: "root", Scopes: []string{"admin"}},
	}
	cfg.Sandbox.Timeout = 5 * time.Second
	return cfg
}

func newToolService(t *testing.T) (*Service, *vfs.FileSystem, *auth.Authenticator) {
	wm := watch.NewManager(logging.ForComponent(logging.Discard(), "watch"))
	t.Cleanup(wm.Close)
	fs := vfs.New(store.NewMemory(), blob.NewMemory(), wm,
		logging.ForComponent(logging.Discard(), "vfs"), vfs.Options{WarmEnabled: true})
	cfg := testConfig()
	svc, err := NewService(&KernelStorage{FS: fs}, cfg, logging.ForComponent(logging.Discard(), "tools"))
	require.NoError(t, err)
	return svc, fs, auth.New(cfg.Auth)
}

func seedFiles(t *testing.T, fs *vfs.FileSystem) {
	ctx := context.Background()
	require.NoError(t, fs.Mkdir(ctx, "/src/nested", &vfs.MkdirOptions{Recursive: true}))
	require.NoError(t, fs.WriteFile(ctx, "/src/main.go", []byte("package main // needle"), nil))
	require.NoError(t, fs.WriteFile(ctx, "/src/nested/util.go", []byte("package util"), nil))
	require.NoError(t, fs.WriteFile(ctx, "/readme.md", []byte("# hello"), nil))
}

func invoke(t *testing.T, svc *Service, name string, params map[string]interface{}, info *auth.Info) *Result {
	t.Helper()
	out, err := svc.Invoke(context.Background(), name, params, info)
	require.NoError(t, err)
	return out.(*Result)
}

func text(res *Result) string {
	if len(res.Content) == 0 {
		return ""
	}
	return res.Content[0].Text
}

func TestBuiltinsRegistered(t *testing.T) {
	svc, _, _ := newToolService(t)
	r := svc.Registry()
	for _, name := range []string{"search", "fetch", "do"} {
		assert.True(t, r.Has(name), name)
	}

	// Builtins survive a registry clear.
	r.Clear()
	assert.Equal(t, 3, r.Count())
}

func TestSearchGlob(t *testing.T) {
	svc, fs, _ := newToolService(t)
	seedFiles(t, fs)

	res := invoke(t, svc, "search", map[string]interface{}{"query": "**/*.go"}, auth.Anonymous())
	require.False(t, res.IsError, text(res))
	assert.Contains(t, text(res), "/src/main.go")
	assert.Contains(t, text(res), "/src/nested/util.go")
	assert.NotContains(t, text(res), "/readme.md")
}

func TestSearchGrep(t *testing.T) {
	svc, fs, _ := newToolService(t)
	seedFiles(t, fs)

	res := invoke(t, svc, "search", map[string]interface{}{"query": "grep:needle"}, auth.Anonymous())
	require.False(t, res.IsError, text(res))
	assert.Contains(t, text(res), "/src/main.go")
	assert.NotContains(t, text(res), "util.go")
}

func TestSearchScopedAndLimited(t *testing.T) {
	svc, fs, _ := newToolService(t)
	seedFiles(t, fs)

	res := invoke(t, svc, "search", map[string]interface{}{
		"query": "**/*.go", "path": "/src/nested",
	}, auth.Anonymous())
	require.False(t, res.IsError, text(res))
	assert.Contains(t, text(res), "util.go")
	assert.NotContains(t, text(res), "main.go")

	res = invoke(t, svc, "search", map[string]interface{}{
		"query": "**/*.go", "limit": 1.0,
	}, auth.Anonymous())
	require.False(t, res.IsError)
	assert.Contains(t, text(res), "limited to 1")
}

func TestFetchFile(t *testing.T) {
	svc, fs, _ := newToolService(t)
	seedFiles(t, fs)

	res := invoke(t, svc, "fetch", map[string]interface{}{"resource": "/readme.md"}, auth.Anonymous())
	require.False(t, res.IsError, text(res))
	assert.Contains(t, text(res), "# hello")
	assert.Contains(t, text(res), "size: 7")
	assert.Contains(t, text(res), "mime:")
}

func TestFetchDirectoryTree(t *testing.T) {
	svc, fs, _ := newToolService(t)
	seedFiles(t, fs)

	res := invoke(t, svc, "fetch", map[string]interface{}{"resource": "/src"}, auth.Anonymous())
	require.False(t, res.IsError, text(res))
	out := text(res)
	assert.Contains(t, out, "main.go")
	assert.Contains(t, out, "nested/")
	assert.Contains(t, out, "type: directory")
}

func TestFetchMissing(t *testing.T) {
	svc, _, _ := newToolService(t)
	res := invoke(t, svc, "fetch", map[string]interface{}{"resource": "/ghost"}, auth.Anonymous())
	assert.True(t, res.IsError)
}

// Anonymous reads allowed, anonymous writes rejected, scope escalation.
func TestToolAuthGating(t *testing.T) {
	svc, fs, authn := newToolService(t)
	seedFiles(t, fs)

	// Anonymous search is allowed with allow_anonymous_read.
	res := invoke(t, svc, "search", map[string]interface{}{"query": "*"}, auth.Anonymous())
	assert.False(t, res.IsError, text(res))

	// Anonymous do is AUTH_REQUIRED.
	code := map[string]interface{}{"code": `await fs.write("/a", "b")`}
	res = invoke(t, svc, "do", code, auth.Anonymous())
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "AUTH_REQUIRED")

	// Read scope is PERMISSION_DENIED for a write tool.
	res = invoke(t, svc, "do", code, authn.FromToken("reader"))
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "PERMISSION_DENIED")

	// Write scope runs the code and the write lands.
	res = invoke(t, svc, "do", code, authn.FromToken("writer"))
	assert.False(t, res.IsError, text(res))
	data, err := fs.ReadFile(context.Background(), "/a", nil)
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))

	// A bad token is not anonymous: reads are denied too.
	res = invoke(t, svc, "search", map[string]interface{}{"query": "*"}, authn.FromToken("wrong"))
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "AUTH_REQUIRED")

	// Unknown tools need admin.
	res = invoke(t, svc, "mystery", nil, authn.FromToken("writer"))
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "PERMISSION_DENIED")
	res = invoke(t, svc, "mystery", nil, authn.FromToken("root"))
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "UNKNOWN_TOOL", "admin passes auth and hits the missing tool")
}

func TestDoReadsAndLogs(t *testing.T) {
	svc, fs, authn := newToolService(t)
	seedFiles(t, fs)

	res := invoke(t, svc, "do", map[string]interface{}{
		"code": `
const content = fs.read("/readme.md");
console.log("length is", content.length);
return content;
`,
	}, authn.FromToken("writer"))
	require.False(t, res.IsError, text(res))
	assert.Contains(t, text(res), "# hello")
	assert.Contains(t, text(res), "length is 7")
}

func TestDoPermissionViolations(t *testing.T) {
	wm := watch.NewManager(logging.ForComponent(logging.Discard(), "watch"))
	t.Cleanup(wm.Close)
	fs := vfs.New(store.NewMemory(), blob.NewMemory(), wm,
		logging.ForComponent(logging.Discard(), "vfs"), vfs.Options{})
	require.NoError(t, fs.Mkdir(context.Background(), "/allowed", nil))
	require.NoError(t, fs.WriteFile(context.Background(), "/allowed/f", []byte("ok"), nil))
	require.NoError(t, fs.WriteFile(context.Background(), "/forbidden", []byte("no"), nil))

	storage := &KernelStorage{FS: fs}

	// Path restriction.
	_, err := RunSandbox(context.Background(), `return fs.read("/forbidden")`, storage, SandboxOptions{
		AllowedPaths: []string{"/allowed"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EACCES")

	res, err := RunSandbox(context.Background(), `return fs.read("/allowed/f")`, storage, SandboxOptions{
		AllowedPaths: []string{"/allowed"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Value)

	// Write permission.
	_, err = RunSandbox(context.Background(), `fs.write("/allowed/new", "x")`, storage, SandboxOptions{
		AllowedPaths: []string{"/allowed"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EACCES")

	// Delete permission is separate from write.
	_, err = RunSandbox(context.Background(), `fs.delete("/allowed/f")`, storage, SandboxOptions{
		AllowWrite: true, AllowedPaths: []string{"/allowed"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EACCES")
}

func TestSandboxTimeout(t *testing.T) {
	wm := watch.NewManager(logging.ForComponent(logging.Discard(), "watch"))
	t.Cleanup(wm.Close)
	fs := vfs.New(store.NewMemory(), blob.NewMemory(), wm,
		logging.ForComponent(logging.Discard(), "vfs"), vfs.Options{})

	start := time.Now()
	_, err := RunSandbox(context.Background(), `for (;;) {}`, &KernelStorage{FS: fs}, SandboxOptions{
		Timeout: 100 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSandboxHelpers(t *testing.T) {
	svc, fs, authn := newToolService(t)
	seedFiles(t, fs)

	res := invoke(t, svc, "do", map[string]interface{}{
		"code": `
fs.mkdir("/out");
fs.write("/out/a.txt", "alpha");
fs.copy("/out/a.txt", "/out/b.txt");
fs.move("/out/b.txt", "/out/c.txt");
const st = fs.stat("/out/a.txt");
const listing = fs.list("/out");
return st.size + ":" + listing.length + ":" + fs.exists("/out/c.txt");
`,
	}, authn.FromToken("writer"))
	require.False(t, res.IsError, text(res))
	assert.Contains(t, text(res), "5:2:true")
}

func TestRenderTreeDepthLimit(t *testing.T) {
	svc, fs, _ := newToolService(t)
	ctx := context.Background()
	require.NoError(t, fs.Mkdir(ctx, "/a/b/c/d", &vfs.MkdirOptions{Recursive: true}))
	require.NoError(t, fs.WriteFile(ctx, "/a/b/c/d/deep.txt", []byte("x"), nil))

	res := invoke(t, svc, "fetch", map[string]interface{}{"resource": "/a"}, auth.Anonymous())
	require.False(t, res.IsError, text(res))
	out := text(res)
	assert.Contains(t, out, "b/")
	assert.Contains(t, out, "c/")
	assert.False(t, strings.Contains(out, "deep.txt"), "tree stops at depth 2")
}

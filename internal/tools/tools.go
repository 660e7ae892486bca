package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tierfs/tierfs/internal/auth"
	"github.com/tierfs/tierfs/internal/config"
	"github.com/tierfs/tierfs/pkg/glob"
	"github.com/tierfs/tierfs/pkg/types"
)

const defaultSearchLimit = 100

// RegisterBuiltins installs the three core tools over a storage facade.
// They survive Registry.Clear.
func RegisterBuiltins(r *Registry, storage Storage, sandboxCfg config.SandboxConfig) error {
	builtins := []*Tool{
		{
			Name:        "search",
			Description: "Search for files by glob pattern, or by content with a grep: prefix.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{"type": "string", "description": "Glob pattern, or grep:<substring> for content search"},
					"limit": map[string]interface{}{"type": "number", "description": "Maximum results"},
					"path":  map[string]interface{}{"type": "string", "description": "Directory to search under"},
				},
				"required": []interface{}{"query"},
			},
			Handler: searchHandler(storage),
		},
		{
			Name:        "fetch",
			Description: "Fetch a file's content, or a tree view for a directory, with metadata.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"resource": map[string]interface{}{"type": "string", "description": "Path of the file or directory"},
				},
				"required": []interface{}{"resource"},
			},
			Handler: fetchHandler(storage),
		},
		{
			Name:        "do",
			Description: "Run JavaScript in a sandbox with an fs capability binding.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"code": map[string]interface{}{"type": "string", "description": "Code to execute"},
				},
				"required": []interface{}{"code"},
			},
			Handler: doHandler(storage, sandboxCfg),
		},
	}
	for _, t := range builtins {
		if err := r.Register(t, true); err != nil {
			return err
		}
	}
	return nil
}

// searchHandler implements the search tool: "grep:<s>" is a content
// substring search over every file, anything else is a glob over paths.
func searchHandler(storage Storage) Handler {
	return func(tc *Context, params map[string]interface{}) (*Result, error) {
		query, _ := params["query"].(string)
		if query == "" {
			return ErrorResult("INVALID_PARAMS", "query cannot be empty"), nil
		}
		limit := defaultSearchLimit
		if raw, ok := params["limit"].(float64); ok && raw > 0 {
			limit = int(raw)
		}
		root := "/"
		if p, ok := params["path"].(string); ok && p != "" {
			root = p
		}

		var matches []string
		var truncated bool

		if content, isGrep := strings.CutPrefix(query, "grep:"); isGrep {
			err := storage.Walk(tc.Ctx, root, func(d types.Dirent) error {
				if d.Type != types.EntryFile || len(matches) >= limit {
					if len(matches) >= limit {
						truncated = true
					}
					return nil
				}
				data, err := storage.Read(tc.Ctx, d.Path)
				if err != nil {
					return nil // unreadable entries are skipped, not fatal
				}
				if strings.Contains(string(data), content) {
					matches = append(matches, d.Path)
				}
				return nil
			})
			if err != nil {
				return ErrorResult("SEARCH_FAILED", err.Error()), nil
			}
		} else {
			matcher, err := glob.Compile(strings.TrimPrefix(query, "/"), glob.Options{Dot: true})
			if err != nil {
				return ErrorResult("INVALID_PARAMS", "bad glob pattern: "+err.Error()), nil
			}
			err = storage.Walk(tc.Ctx, root, func(d types.Dirent) error {
				if len(matches) >= limit {
					truncated = true
					return nil
				}
				rel := strings.TrimPrefix(d.Path, "/")
				if root != "/" {
					rel = strings.TrimPrefix(strings.TrimPrefix(d.Path, root), "/")
				}
				if matcher.Match(rel) {
					matches = append(matches, d.Path)
				}
				return nil
			})
			if err != nil {
				return ErrorResult("SEARCH_FAILED", err.Error()), nil
			}
		}

		sort.Strings(matches)
		var b strings.Builder
		fmt.Fprintf(&b, "Found %d match(es) for %q", len(matches), query)
		if truncated {
			fmt.Fprintf(&b, " (limited to %d)", limit)
		}
		b.WriteString("\n")
		for _, m := range matches {
			b.WriteString(m)
			b.WriteString("\n")
		}
		return TextResult(strings.TrimRight(b.String(), "\n")), nil
	}
}

// fetchHandler implements the fetch tool: file content plus a metadata
// trailer, or a two-level tree for directories.
func fetchHandler(storage Storage) Handler {
	return func(tc *Context, params map[string]interface{}) (*Result, error) {
		resource, _ := params["resource"].(string)
		if resource == "" {
			return ErrorResult("INVALID_PARAMS", "resource cannot be empty"), nil
		}
		st, err := storage.Stat(tc.Ctx, resource)
		if err != nil {
			return ErrorResult("NOT_FOUND", err.Error()), nil
		}

		if st.IsDirectory() {
			tree, err := renderTree(tc, storage, resource, 2)
			if err != nil {
				return ErrorResult("FETCH_FAILED", err.Error()), nil
			}
			meta := fmt.Sprintf("\n---\ntype: directory\npath: %s", resource)
			return TextResult(tree + meta), nil
		}

		data, err := storage.Read(tc.Ctx, resource)
		if err != nil {
			return ErrorResult("FETCH_FAILED", err.Error()), nil
		}
		mime := mimetype.Detect(data)
		meta := fmt.Sprintf("\n---\nsize: %d\ntype: %s\nmime: %s", len(data), st.Type, mime.String())
		return TextResult(string(data) + meta), nil
	}
}

// renderTree draws a depth-limited directory tree.
func renderTree(tc *Context, storage Storage, root string, maxDepth int) (string, error) {
	var b strings.Builder
	b.WriteString(root)
	b.WriteString("\n")
	var walk func(dir, indent string, depth int) error
	walk = func(dir, indent string, depth int) error {
		if depth > maxDepth {
			return nil
		}
		entries, err := storage.List(tc.Ctx, dir)
		if err != nil {
			return err
		}
		for i, d := range entries {
			connector := "├── "
			childIndent := indent + "│   "
			if i == len(entries)-1 {
				connector = "└── "
				childIndent = indent + "    "
			}
			name := d.Name
			if d.Type == types.EntryDirectory {
				name += "/"
			}
			b.WriteString(indent + connector + name + "\n")
			if d.Type == types.EntryDirectory {
				if err := walk(d.Path, childIndent, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(root, "", 1); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// doHandler implements the do tool: caller code runs in the sandbox with
// the fs binding; captured logs come back alongside the value.
func doHandler(storage Storage, cfg config.SandboxConfig) Handler {
	return func(tc *Context, params map[string]interface{}) (*Result, error) {
		code, _ := params["code"].(string)
		if code == "" {
			return ErrorResult("INVALID_PARAMS", "code cannot be empty"), nil
		}

		// A caller holding the write scope may mutate through the binding
		// even when the static sandbox default is read-only.
		opts := SandboxOptions{
			Timeout:      cfg.Timeout,
			AllowWrite:   cfg.AllowWrite,
			AllowDelete:  cfg.AllowDelete,
			AllowedPaths: cfg.AllowedPaths,
		}
		if tc.Auth != nil && tc.Auth.Has(auth.ScopeWrite) {
			opts.AllowWrite = true
			opts.AllowDelete = true
		}

		res, err := RunSandbox(tc.Ctx, code, storage, opts)
		if err != nil {
			out := formatSandboxOutput(nil, res)
			return &Result{
				Content: []ContentBlock{{Type: "text", Text: "execution failed: " + err.Error() + out}},
				IsError: true,
			}, nil
		}
		return TextResult(strings.TrimSpace(formatSandboxOutput(res.Value, res))), nil
	}
}

func formatSandboxOutput(value interface{}, res *SandboxResult) string {
	var b strings.Builder
	if value != nil {
		fmt.Fprintf(&b, "result: %v\n", value)
	}
	if res != nil && len(res.Logs) > 0 {
		b.WriteString("logs:\n")
		for _, l := range res.Logs {
			fmt.Fprintf(&b, "  [%s] %d %s\n", l.Level, l.Timestamp, l.Message)
		}
	}
	if b.Len() == 0 {
		return "ok"
	}
	return b.String()
}

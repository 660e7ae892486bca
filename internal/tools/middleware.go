package tools

import (
	"github.com/tierfs/tierfs/internal/auth"
)

// Tool access classes for the auth gate.
type accessClass int

const (
	classReadOnly accessClass = iota
	classWrite
	classAdmin
)

// classification covers the core tools plus the fs_* taxonomy used for
// middleware decisions.
var classification = map[string]accessClass{
	"search":    classReadOnly,
	"fetch":     classReadOnly,
	"fs_read":   classReadOnly,
	"fs_list":   classReadOnly,
	"fs_stat":   classReadOnly,
	"fs_tree":   classReadOnly,
	"fs_search": classReadOnly,
	"fs_exists": classReadOnly,

	"do":        classWrite,
	"fs_write":  classWrite,
	"fs_append": classWrite,
	"fs_delete": classWrite,
	"fs_move":   classWrite,
	"fs_copy":   classWrite,
	"fs_mkdir":  classWrite,
}

func classify(name string) accessClass {
	if c, ok := classification[NormalizeName(name)]; ok {
		return c
	}
	return classAdmin
}

// AuthMiddlewareConfig configures the gate.
type AuthMiddlewareConfig struct {
	AllowAnonymousRead bool
	// OnFailure is invoked with the tool name and failure code when an
	// invocation is denied.
	OnFailure func(tool, code string)
}

// AuthMiddleware gates tool invocations on the caller's scopes:
// read-only tools may run anonymously when configured, write tools need
// an authenticated caller with the write scope, unknown tools need admin.
func AuthMiddleware(cfg AuthMiddlewareConfig) Middleware {
	deny := func(tool, code, message string) (*Result, error) {
		if cfg.OnFailure != nil {
			cfg.OnFailure(tool, code)
		}
		return ErrorResult(code, message), nil
	}

	return func(tc *Context, params map[string]interface{}, next func() (*Result, error)) (*Result, error) {
		info := tc.Auth
		if info == nil {
			info = auth.Anonymous()
		}
		switch classify(tc.ToolName) {
		case classReadOnly:
			if info.Authenticated {
				if !info.Has(auth.ScopeRead) {
					return deny(tc.ToolName, "PERMISSION_DENIED", "read scope required")
				}
			} else if !cfg.AllowAnonymousRead || info.Token != "" {
				return deny(tc.ToolName, "AUTH_REQUIRED", "authentication required")
			}
		case classWrite:
			if !info.Authenticated {
				return deny(tc.ToolName, "AUTH_REQUIRED", "authentication required")
			}
			if !info.Has(auth.ScopeWrite) {
				return deny(tc.ToolName, "PERMISSION_DENIED", "write scope required")
			}
		case classAdmin:
			if !info.Authenticated {
				return deny(tc.ToolName, "AUTH_REQUIRED", "authentication required")
			}
			if !info.Has(auth.ScopeAdmin) {
				return deny(tc.ToolName, "PERMISSION_DENIED", "admin scope required")
			}
		}
		return next()
	}
}

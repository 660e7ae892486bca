// Package tools implements the AI-tool surface: a schema-validated tool
// registry with a middleware chain, the three core tools (search, fetch,
// do), the sandboxed code runner behind do, and the auth middleware that
// gates reads against writes.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tierfs/tierfs/internal/auth"
)

// ContentBlock is one piece of a tool result.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Result is what a tool invocation returns across the protocol boundary.
// Failures are results with IsError set, never transported exceptions.
type Result struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// TextResult builds a single-text-block result.
func TextResult(text string) *Result {
	return &Result{Content: []ContentBlock{{Type: "text", Text: text}}}
}

// ErrorResult builds a failed result with a coded message.
func ErrorResult(code, message string) *Result {
	return &Result{
		Content: []ContentBlock{{Type: "text", Text: code + ": " + message}},
		IsError: true,
	}
}

// Context is the per-invocation context handed to middleware and handlers.
type Context struct {
	Ctx       context.Context
	ToolName  string
	Timestamp int64
	Metadata  map[string]interface{}
	Auth      *auth.Info
}

// Handler executes a tool.
type Handler func(tc *Context, params map[string]interface{}) (*Result, error)

// Middleware wraps invocation: it may short-circuit, observe, rewrite
// params on the way in, or transform the result on the way out.
type Middleware func(tc *Context, params map[string]interface{}, next func() (*Result, error)) (*Result, error)

// Tool couples a schema with its handler.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Handler     Handler
}

// Registry stores tools by normalized name and runs the middleware chain
// on every invocation.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]*Tool
	builtins    map[string]bool
	middlewares []Middleware
	// Strict enables parameter type validation against the schema.
	Strict bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]*Tool),
		builtins: make(map[string]bool),
	}
}

// NormalizeName is the canonical form tools are stored under.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateName rejects names that cannot be dispatched: empty, containing
// spaces, dots, or slashes, or starting with a digit.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if strings.ContainsAny(name, " ./\\") {
		return fmt.Errorf("tool name %q contains forbidden characters", name)
	}
	if name[0] >= '0' && name[0] <= '9' {
		return fmt.Errorf("tool name %q cannot start with a digit", name)
	}
	return nil
}

// ValidateSchema requires an object schema with a properties map.
func ValidateSchema(schema map[string]interface{}) error {
	if schema == nil {
		return fmt.Errorf("input schema is required")
	}
	if t, _ := schema["type"].(string); t != "object" {
		return fmt.Errorf("input schema type must be \"object\"")
	}
	if _, ok := schema["properties"]; !ok {
		return fmt.Errorf("input schema must declare properties")
	}
	return nil
}

// Register adds a tool. Builtin registrations survive Clear.
func (r *Registry) Register(t *Tool, builtin bool) error {
	if err := ValidateName(t.Name); err != nil {
		return err
	}
	if err := ValidateSchema(t.InputSchema); err != nil {
		return err
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	name := NormalizeName(t.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = t
	if builtin {
		r.builtins[name] = true
	}
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) bool {
	name = NormalizeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return false
	}
	delete(r.tools, name)
	delete(r.builtins, name)
	return true
}

// Clear removes every non-builtin tool.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.tools {
		if !r.builtins[name] {
			delete(r.tools, name)
		}
	}
}

// Has reports whether name resolves to a tool.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[NormalizeName(name)]
	return ok
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[NormalizeName(name)]
	return t, ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// List returns the registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Filter returns the tools satisfying pred.
func (r *Registry) Filter(pred func(*Tool) bool) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Tool
	for _, t := range r.tools {
		if pred(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Schemas returns the wire descriptions of every tool.
func (r *Registry) Schemas() []map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		out = append(out, map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": t.InputSchema,
		})
	}
	return out
}

// Use appends a middleware; the chain runs in registration (FIFO) order.
func (r *Registry) Use(mw Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// Invoke runs a tool: normalize, look up, validate params, thread the
// middleware chain, then the handler. A handler panic becomes an error
// result rather than crossing the tool boundary.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]interface{}, info *auth.Info) (*Result, error) {
	normalized := NormalizeName(name)

	r.mu.RLock()
	tool, ok := r.tools[normalized]
	chain := make([]Middleware, len(r.middlewares))
	copy(chain, r.middlewares)
	strict := r.Strict
	r.mu.RUnlock()

	tc := &Context{
		Ctx:       ctx,
		ToolName:  normalized,
		Timestamp: time.Now().UnixMilli(),
		Metadata:  map[string]interface{}{},
		Auth:      info,
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	handler := func() (res *Result, err error) {
		if !ok {
			return ErrorResult("UNKNOWN_TOOL", fmt.Sprintf("no tool named %q", name)), nil
		}
		if res := validateParams(tool.InputSchema, params, strict); res != nil {
			return res, nil
		}
		defer func() {
			if rec := recover(); rec != nil {
				res = ErrorResult("TOOL_PANIC", fmt.Sprintf("%v", rec))
				err = nil
			}
		}()
		return tool.Handler(tc, params)
	}

	// Thread the chain outermost-first.
	next := handler
	for i := len(chain) - 1; i >= 0; i-- {
		mw := chain[i]
		inner := next
		next = func() (*Result, error) {
			return mw(tc, params, inner)
		}
	}
	res, err := next()
	if err != nil {
		return ErrorResult("TOOL_ERROR", err.Error()), nil
	}
	return res, nil
}

// validateParams checks required fields and, in strict mode, primitive
// types against the schema. Returns an error result or nil.
func validateParams(schema, params map[string]interface{}, strict bool) *Result {
	if required, ok := schema["required"].([]interface{}); ok {
		for _, raw := range required {
			field, _ := raw.(string)
			if field == "" {
				continue
			}
			if _, present := params[field]; !present {
				return ErrorResult("INVALID_PARAMS", "missing required parameter "+field)
			}
		}
	} else if required, ok := schema["required"].([]string); ok {
		for _, field := range required {
			if _, present := params[field]; !present {
				return ErrorResult("INVALID_PARAMS", "missing required parameter "+field)
			}
		}
	}
	if !strict {
		return nil
	}
	props, _ := schema["properties"].(map[string]interface{})
	for field, raw := range props {
		spec, _ := raw.(map[string]interface{})
		want, _ := spec["type"].(string)
		val, present := params[field]
		if !present || want == "" {
			continue
		}
		if !typeMatches(want, val) {
			return ErrorResult("INVALID_PARAMS", fmt.Sprintf("parameter %s must be %s", field, want))
		}
	}
	return nil
}

func typeMatches(want string, val interface{}) bool {
	switch want {
	case "string":
		_, ok := val.(string)
		return ok
	case "number", "integer":
		switch val.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "array":
		_, ok := val.([]interface{})
		return ok
	case "object":
		_, ok := val.(map[string]interface{})
		return ok
	}
	return true
}

package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierfs/tierfs/internal/auth"
)

func okSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
		},
	}
}

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echo",
		InputSchema: okSchema(),
		Handler: func(tc *Context, params map[string]interface{}) (*Result, error) {
			return TextResult("ok"), nil
		},
	}
}

func TestValidateName(t *testing.T) {
	for _, bad := range []string{"", " ", "has space", "dotted.name", "sla/sh", "back\\slash", "1starts"} {
		assert.Error(t, ValidateName(bad), bad)
	}
	for _, good := range []string{"search", "fs_read", "do", "Fetch", "tool-2"} {
		assert.NoError(t, ValidateName(good), good)
	}
}

func TestValidateSchema(t *testing.T) {
	assert.Error(t, ValidateSchema(nil))
	assert.Error(t, ValidateSchema(map[string]interface{}{"type": "array"}))
	assert.Error(t, ValidateSchema(map[string]interface{}{"type": "object"}))
	assert.NoError(t, ValidateSchema(okSchema()))
}

func TestRegisterLookupNormalization(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("MyTool"), false))

	assert.True(t, r.Has("mytool"))
	assert.True(t, r.Has("  MYTOOL  "))
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []string{"mytool"}, r.List())

	tool, ok := r.Get("MyTool")
	require.True(t, ok)
	assert.Equal(t, "MyTool", tool.Name)

	assert.True(t, r.Unregister("MYTOOL"))
	assert.False(t, r.Unregister("mytool"))
	assert.Equal(t, 0, r.Count())
}

func TestClearPreservesBuiltins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("builtin"), true))
	require.NoError(t, r.Register(echoTool("userTool"), false))
	require.Equal(t, 2, r.Count())

	r.Clear()
	assert.True(t, r.Has("builtin"))
	assert.False(t, r.Has("usertool"))
}

func TestInvokeValidatesRequired(t *testing.T) {
	r := NewRegistry()
	tool := echoTool("needy")
	tool.InputSchema["required"] = []interface{}{"name"}
	require.NoError(t, r.Register(tool, false))

	res, err := r.Invoke(context.Background(), "needy", map[string]interface{}{}, auth.Anonymous())
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "INVALID_PARAMS")

	res, err = r.Invoke(context.Background(), "needy", map[string]interface{}{"name": "x"}, auth.Anonymous())
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestInvokeStrictTypes(t *testing.T) {
	r := NewRegistry()
	r.Strict = true
	require.NoError(t, r.Register(echoTool("typed"), false))

	res, err := r.Invoke(context.Background(), "typed", map[string]interface{}{"name": 42.0}, auth.Anonymous())
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = r.Invoke(context.Background(), "typed", map[string]interface{}{"name": "fine"}, auth.Anonymous())
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestInvokeUnknownTool(t *testing.T) {
	r := NewRegistry()
	res, err := r.Invoke(context.Background(), "ghost", nil, auth.Anonymous())
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "UNKNOWN_TOOL")
}

func TestHandlerPanicBecomesErrorResult(t *testing.T) {
	r := NewRegistry()
	tool := echoTool("bomb")
	tool.Handler = func(tc *Context, params map[string]interface{}) (*Result, error) {
		panic("kaboom")
	}
	require.NoError(t, r.Register(tool, false))

	res, err := r.Invoke(context.Background(), "bomb", nil, auth.Anonymous())
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "kaboom")
}

// Middleware runs in FIFO order and can rewrite params and results.
func TestMiddlewareChain(t *testing.T) {
	r := NewRegistry()
	var order []string

	r.Use(func(tc *Context, params map[string]interface{}, next func() (*Result, error)) (*Result, error) {
		order = append(order, "first-in")
		params["tag"] = "set-by-first"
		res, err := next()
		order = append(order, "first-out")
		return res, err
	})
	r.Use(func(tc *Context, params map[string]interface{}, next func() (*Result, error)) (*Result, error) {
		order = append(order, "second-in")
		res, err := next()
		order = append(order, "second-out")
		return res, err
	})

	tool := echoTool("observed")
	tool.Handler = func(tc *Context, params map[string]interface{}) (*Result, error) {
		order = append(order, "handler")
		return TextResult(params["tag"].(string)), nil
	}
	require.NoError(t, r.Register(tool, false))

	res, err := r.Invoke(context.Background(), "observed", map[string]interface{}{}, auth.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, "set-by-first", res.Content[0].Text)
	assert.Equal(t, []string{"first-in", "second-in", "handler", "second-out", "first-out"}, order)
}

func TestMiddlewareShortCircuit(t *testing.T) {
	r := NewRegistry()
	r.Use(func(tc *Context, params map[string]interface{}, next func() (*Result, error)) (*Result, error) {
		return ErrorResult("BLOCKED", "nope"), nil
	})
	called := false
	tool := echoTool("guarded")
	tool.Handler = func(tc *Context, params map[string]interface{}) (*Result, error) {
		called = true
		return TextResult("ran"), nil
	}
	require.NoError(t, r.Register(tool, false))

	res, err := r.Invoke(context.Background(), "guarded", nil, auth.Anonymous())
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.False(t, called)
}

func TestSchemas(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("alpha"), false))
	require.NoError(t, r.Register(echoTool("beta"), false))

	schemas := r.Schemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, "alpha", schemas[0]["name"])
	assert.Equal(t, "beta", schemas[1]["name"])
	assert.NotNil(t, schemas[0]["inputSchema"])
}

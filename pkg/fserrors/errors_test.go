package fserrors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := NoEnt("open", "/a.txt")
	assert.Equal(t, "ENOENT: no such file or directory, open '/a.txt'", err.Error())

	err = New(EINVAL, "")
	assert.Equal(t, "EINVAL: invalid argument", err.Error())
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := NoEnt("stat", "/x")
	assert.True(t, errors.Is(err, New(ENOENT, "")))
	assert.False(t, errors.Is(err, New(EEXIST, "")))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, errors.Is(wrapped, New(ENOENT, "")))
	assert.Equal(t, ENOENT, CodeOf(wrapped))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, UNKNOWN, CodeOf(errors.New("boom")))
	assert.Equal(t, ETIMEDOUT, CodeOf(context.Canceled))
	assert.Equal(t, ETIMEDOUT, CodeOf(context.DeadlineExceeded))
	assert.Equal(t, EACCES, CodeOf(Access("read", "/p")))
}

func TestConvert(t *testing.T) {
	assert.Nil(t, Convert(nil))

	fe := Convert(errors.New("boom"))
	require.NotNil(t, fe)
	assert.Equal(t, UNKNOWN, fe.Code)
	assert.Equal(t, "boom", fe.Message)

	orig := Exist("mkdir", "/d")
	assert.Same(t, orig, Convert(orig))
}

func TestHTTPStatus(t *testing.T) {
	for _, test := range []struct {
		code Code
		want int
	}{
		{EINVAL, http.StatusBadRequest},
		{ENOTDIR, http.StatusBadRequest},
		{EISDIR, http.StatusBadRequest},
		{EAUTH, http.StatusUnauthorized},
		{EACCES, http.StatusForbidden},
		{EPERM, http.StatusForbidden},
		{ENOENT, http.StatusNotFound},
		{EEXIST, http.StatusConflict},
		{ENOTEMPTY, http.StatusConflict},
		{EIO, http.StatusInternalServerError},
		{UNKNOWN, http.StatusInternalServerError},
	} {
		assert.Equal(t, test.want, HTTPStatus(test.code), string(test.code))
	}
}

func TestWireShape(t *testing.T) {
	raw, err := json.Marshal(NoEnt("open", "/a"))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "ENOENT", decoded["code"])
	assert.Equal(t, "/a", decoded["path"])
	assert.Equal(t, "open", decoded["syscall"])
	_, hasCause := decoded["Cause"]
	assert.False(t, hasCause)
}

func TestWithHelpers(t *testing.T) {
	base := New(EIO, "disk error")
	annotated := base.WithPath("/p").WithSyscall("write").WithCause(errors.New("inner"))
	assert.Equal(t, "", base.Path, "WithPath must not mutate the original")
	assert.Equal(t, "/p", annotated.Path)
	assert.Equal(t, "write", annotated.Syscall)
	assert.EqualError(t, errors.Unwrap(annotated), "inner")
}

// Package fserrors provides the structured POSIX-shaped error system used
// across the tierfs engine and its protocol adapters.
package fserrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	contextCanceled = context.Canceled
	contextDeadline = context.DeadlineExceeded
)

// Code is a POSIX-style error code carried on every engine error.
type Code string

const (
	ENOENT       Code = "ENOENT"
	EEXIST       Code = "EEXIST"
	EISDIR       Code = "EISDIR"
	ENOTDIR      Code = "ENOTDIR"
	EACCES       Code = "EACCES"
	EPERM        Code = "EPERM"
	ENOTEMPTY    Code = "ENOTEMPTY"
	EBADF        Code = "EBADF"
	EINVAL       Code = "EINVAL"
	ELOOP        Code = "ELOOP"
	ENAMETOOLONG Code = "ENAMETOOLONG"
	ENOSPC       Code = "ENOSPC"
	EROFS        Code = "EROFS"
	EBUSY        Code = "EBUSY"
	EMFILE       Code = "EMFILE"
	ENFILE       Code = "ENFILE"
	EXDEV        Code = "EXDEV"
	EAUTH        Code = "EAUTH"
	ETIMEDOUT    Code = "ETIMEDOUT"
	EIO          Code = "EIO"
	UNKNOWN      Code = "UNKNOWN"
)

// Error is a structured filesystem error. The wire shape is
// {code, message, path?, syscall?}.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	Syscall string `json:"syscall,omitempty"`

	// Not serialized; preserved for errors.Unwrap chains.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Syscall != "" && e.Path != "":
		return fmt.Sprintf("%s: %s, %s '%s'", e.Code, e.Message, e.Syscall, e.Path)
	case e.Path != "":
		return fmt.Sprintf("%s: %s '%s'", e.Code, e.Message, e.Path)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap returns the underlying cause for error-chain inspection.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors by code so callers can write
// errors.Is(err, fserrors.New(fserrors.ENOENT, "")).
func (e *Error) Is(target error) bool {
	var fe *Error
	if errors.As(target, &fe) {
		return e.Code == fe.Code
	}
	return false
}

// WithPath returns a copy of the error annotated with a path.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

// WithSyscall returns a copy of the error annotated with the operation name.
func (e *Error) WithSyscall(syscall string) *Error {
	c := *e
	c.Syscall = syscall
	return &c
}

// WithCause returns a copy of the error wrapping an underlying cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}

// New creates an error with an explicit code and message. An empty message
// is replaced with the code's default text.
func New(code Code, message string) *Error {
	if message == "" {
		message = defaultMessage(code)
	}
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Constructor helpers for the common cases. Each takes the syscall name and
// the path involved, matching the classic errno formatting.

func NoEnt(syscall, path string) *Error {
	return &Error{Code: ENOENT, Message: "no such file or directory", Syscall: syscall, Path: path}
}

func Exist(syscall, path string) *Error {
	return &Error{Code: EEXIST, Message: "file already exists", Syscall: syscall, Path: path}
}

func IsDir(syscall, path string) *Error {
	return &Error{Code: EISDIR, Message: "illegal operation on a directory", Syscall: syscall, Path: path}
}

func NotDir(syscall, path string) *Error {
	return &Error{Code: ENOTDIR, Message: "not a directory", Syscall: syscall, Path: path}
}

func Access(syscall, path string) *Error {
	return &Error{Code: EACCES, Message: "permission denied", Syscall: syscall, Path: path}
}

func Perm(syscall, path string) *Error {
	return &Error{Code: EPERM, Message: "operation not permitted", Syscall: syscall, Path: path}
}

func NotEmpty(syscall, path string) *Error {
	return &Error{Code: ENOTEMPTY, Message: "directory not empty", Syscall: syscall, Path: path}
}

func BadF(syscall string) *Error {
	return &Error{Code: EBADF, Message: "bad file descriptor", Syscall: syscall}
}

func Inval(syscall, path, message string) *Error {
	if message == "" {
		message = "invalid argument"
	}
	return &Error{Code: EINVAL, Message: message, Syscall: syscall, Path: path}
}

func Loop(syscall, path string) *Error {
	return &Error{Code: ELOOP, Message: "too many levels of symbolic links", Syscall: syscall, Path: path}
}

func NameTooLong(syscall, path string) *Error {
	return &Error{Code: ENAMETOOLONG, Message: "path name too long", Syscall: syscall, Path: path}
}

func Timeout(syscall string) *Error {
	return &Error{Code: ETIMEDOUT, Message: "operation timed out", Syscall: syscall}
}

// IO wraps an unexpected underlying failure.
func IO(syscall, path string, cause error) *Error {
	msg := "i/o error"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Code: EIO, Message: msg, Syscall: syscall, Path: path, Cause: cause}
}

func defaultMessage(code Code) string {
	switch code {
	case ENOENT:
		return "no such file or directory"
	case EEXIST:
		return "file already exists"
	case EISDIR:
		return "illegal operation on a directory"
	case ENOTDIR:
		return "not a directory"
	case EACCES:
		return "permission denied"
	case EPERM:
		return "operation not permitted"
	case ENOTEMPTY:
		return "directory not empty"
	case EBADF:
		return "bad file descriptor"
	case EINVAL:
		return "invalid argument"
	case ELOOP:
		return "too many levels of symbolic links"
	case ENAMETOOLONG:
		return "path name too long"
	case ENOSPC:
		return "no space left on device"
	case EROFS:
		return "read-only file system"
	case EBUSY:
		return "resource busy"
	case EMFILE, ENFILE:
		return "too many open files"
	case EXDEV:
		return "cross-device link not permitted"
	case EAUTH:
		return "authentication failed"
	case ETIMEDOUT:
		return "operation timed out"
	case EIO:
		return "i/o error"
	}
	return "unknown error"
}

// CodeOf extracts the code from any error, mapping context cancellation to
// ETIMEDOUT and everything unrecognized to UNKNOWN.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if errors.Is(err, contextCanceled) || errors.Is(err, contextDeadline) {
		return ETIMEDOUT
	}
	return UNKNOWN
}

// Convert returns err as an *Error, wrapping foreign errors as UNKNOWN.
func Convert(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, contextCanceled) || errors.Is(err, contextDeadline) {
		return &Error{Code: ETIMEDOUT, Message: "operation cancelled", Cause: err}
	}
	return &Error{Code: UNKNOWN, Message: err.Error(), Cause: err}
}

// HTTPStatus maps an error code to the HTTP status the request layer uses.
func HTTPStatus(code Code) int {
	switch code {
	case EINVAL, ENOTDIR, EISDIR, ENAMETOOLONG:
		return http.StatusBadRequest
	case EAUTH:
		return http.StatusUnauthorized
	case EACCES, EPERM:
		return http.StatusForbidden
	case ENOENT:
		return http.StatusNotFound
	case EEXIST, ENOTEMPTY:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

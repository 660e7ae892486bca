package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/tierfs/tierfs/pkg/fserrors"
)

// SandboxOptions bound one execution.
type SandboxOptions struct {
	Timeout      time.Duration
	AllowWrite   bool
	AllowDelete  bool
	AllowedPaths []string
}

// LogEntry is one captured console line.
type LogEntry struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// SandboxResult carries the settled value and the captured logs.
type SandboxResult struct {
	Value interface{}
	Logs  []LogEntry
}

// RunSandbox executes caller-supplied JavaScript in an embedded
// interpreter with exactly two host objects: the fs capability binding
// and a captured console. There is no require, no process, no network.
// The code body may use await; it runs as an async function whose settled
// value is returned.
func RunSandbox(ctx context.Context, code string, storage Storage, opts SandboxOptions) (*SandboxResult, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	result := &SandboxResult{}
	console := newConsoleCapture(result)
	if err := vm.Set("console", console.object(vm)); err != nil {
		return result, err
	}

	binding := &fsBinding{vm: vm, ctx: ctx, storage: storage, opts: opts}
	if err := vm.Set("fs", binding.object()); err != nil {
		return result, err
	}

	// Interrupt on timeout or caller cancellation.
	execCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	done := make(chan struct{})
	go func() {
		select {
		case <-execCtx.Done():
			vm.Interrupt("execution timed out")
		case <-done:
		}
	}()
	defer close(done)

	wrapped := fmt.Sprintf("(async () => {\n%s\n})()", code)
	value, err := vm.RunString(wrapped)
	if err != nil {
		return result, normalizeSandboxError(err)
	}

	promise, ok := value.Export().(*goja.Promise)
	if !ok {
		result.Value = value.Export()
		return result, nil
	}
	switch promise.State() {
	case goja.PromiseStateFulfilled:
		result.Value = promise.Result().Export()
		return result, nil
	case goja.PromiseStateRejected:
		return result, normalizeSandboxError(errors.New(promise.Result().String()))
	default:
		// The fs binding is synchronous under the hood, so a pending
		// promise means the code awaits something that can never settle.
		return result, fserrors.New(fserrors.ETIMEDOUT, "sandboxed code never settled")
	}
}

func normalizeSandboxError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fserrors.Timeout("sandbox")
	}
	msg := err.Error()
	if strings.Contains(msg, string(fserrors.EACCES)) {
		return fserrors.New(fserrors.EACCES, msg)
	}
	return fmt.Errorf("sandbox: %s", msg)
}

// consoleCapture collects console output instead of printing it.
type consoleCapture struct {
	result *SandboxResult
}

func newConsoleCapture(result *SandboxResult) *consoleCapture {
	return &consoleCapture{result: result}
}

func (c *consoleCapture) log(level string) func(args ...interface{}) {
	return func(args ...interface{}) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprintf("%v", a)
		}
		c.result.Logs = append(c.result.Logs, LogEntry{
			Level:     level,
			Message:   strings.Join(parts, " "),
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

func (c *consoleCapture) object(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	obj.Set("log", c.log("info"))
	obj.Set("info", c.log("info"))
	obj.Set("warn", c.log("warn"))
	obj.Set("error", c.log("error"))
	obj.Set("debug", c.log("debug"))
	return obj
}

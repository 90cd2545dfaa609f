// Package yaegihost backs the execution host contract with a yaegi
// interpreter: one live Go namespace per host, evaluated incrementally.
package yaegihost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/basnijholt/kernelchat/kernel/host"
)

const (
	previewLimit    = 200
	traceFrameLimit = 20
)

var compileErrorRe = regexp.MustCompile(`^\d+:\d+:`)

// Host evaluates Go code fragments against a persistent interpreter
// namespace. One evaluation runs at a time; snapshots and inspections
// serialize against runs on the same mutex.
type Host struct {
	mu        sync.Mutex
	interp    *interp.Interpreter
	stdout    *switchWriter
	stderr    *switchWriter
	names     map[string]struct{}
	execCount int
	closed    bool
}

// New creates a host with stdlib symbols loaded into the interpreter.
func New() (*Host, error) {
	stdout := newSwitchWriter()
	stderr := newSwitchWriter()
	i := interp.New(interp.Options{Stdout: stdout, Stderr: stderr})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("yaegihost: load stdlib symbols: %w", err)
	}
	return &Host{
		interp: i,
		stdout: stdout,
		stderr: stderr,
		names:  make(map[string]struct{}),
	}, nil
}

func (h *Host) Available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed
}

// Close marks the host unavailable. Subsequent runs fail with
// HostUnavailable; the namespace is kept for post-mortem snapshots.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

// Run evaluates one code fragment. Interpreter failures come back inside
// the result; only host-level faults (closed host, ctx expiry) are
// returned as errors.
func (h *Host) Run(ctx context.Context, code string) (host.RunResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return host.RunResult{}, host.NewCodedError(host.ErrorCodeHostUnavailable, "interpreter host is closed")
	}
	h.execCount++
	if strings.TrimSpace(code) == "" {
		// Nothing to evaluate; the run still counts toward execCount.
		return host.RunResult{}, nil
	}

	var outBuf, errBuf bytes.Buffer
	h.stdout.redirect(&outBuf)
	h.stderr.redirect(&errBuf)
	defer h.stdout.restore()
	defer h.stderr.restore()

	value, err := h.interp.EvalWithContext(ctx, code)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return host.RunResult{}, host.WrapCodedError(host.ErrorCodeExecutionTimeout, err, "evaluation did not finish")
		}
		return host.RunResult{
			Stdout: outBuf.String(),
			Stderr: errBuf.String(),
			Err:    classifyEvalError(err),
		}, nil
	}

	for _, name := range topLevelNames(code) {
		h.names[name] = struct{}{}
	}
	res := host.RunResult{
		Stdout: outBuf.String(),
		Stderr: errBuf.String(),
	}
	if value.IsValid() && value.CanInterface() {
		res.Value = formatValue(value)
	}
	return res, nil
}

// SnapshotNamespace fingerprints every live binding. Names whose lookup
// fails (failed declarations, block-scoped shadows) drop out here.
func (h *Host) SnapshotNamespace() map[string]host.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]host.Handle, len(h.names))
	for name := range h.names {
		v, err := h.interp.Eval(name)
		if err != nil || !v.IsValid() || !v.CanInterface() {
			delete(h.names, name)
			continue
		}
		out[name] = host.HandleOf(v.Interface())
	}
	return out
}

func (h *Host) Inspect(name string, deep bool) (host.Inspection, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.names[name]; !ok {
		return host.Inspection{}, false
	}
	v, err := h.interp.Eval(name)
	if err != nil || !v.IsValid() || !v.CanInterface() {
		return host.Inspection{}, false
	}
	return inspectValue(name, v, deep), true
}

func (h *Host) Describe() host.Description {
	h.mu.Lock()
	defer h.mu.Unlock()
	return host.Description{
		Language:        "go",
		LanguageVersion: runtime.Version(),
		ExecutionCount:  h.execCount,
	}
}

func classifyEvalError(err error) *host.ErrorInfo {
	var p interp.Panic
	if errors.As(err, &p) {
		info := &host.ErrorInfo{
			Kind:    "Panic",
			Message: fmt.Sprint(p.Value),
		}
		frames := strings.Split(strings.TrimSpace(string(p.Stack)), "\n")
		if len(frames) > traceFrameLimit {
			frames = frames[:traceFrameLimit]
		}
		if len(frames) > 0 && frames[0] != "" {
			info.Trace = frames
		}
		return info
	}
	msg := err.Error()
	kind := "RuntimeError"
	if compileErrorRe.MatchString(msg) {
		kind = "CompileError"
	}
	return &host.ErrorInfo{Kind: kind, Message: msg}
}

func inspectValue(name string, v reflect.Value, deep bool) host.Inspection {
	ins := host.Inspection{
		Name:     name,
		TypeName: v.Type().String(),
		Kind:     v.Kind().String(),
		Size:     -1,
		Preview:  truncatePreview(formatValue(v)),
		Callable: v.Kind() == reflect.Func,
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan, reflect.String:
		ins.Size = v.Len()
	}
	if !deep {
		return ins
	}
	structType := v.Type()
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	if structType.Kind() == reflect.Struct {
		for i := 0; i < structType.NumField(); i++ {
			ins.Fields = append(ins.Fields, structType.Field(i).Name)
		}
	}
	for i := 0; i < v.Type().NumMethod(); i++ {
		ins.Methods = append(ins.Methods, v.Type().Method(i).Name)
	}
	return ins
}

func formatValue(v reflect.Value) string {
	if !v.IsValid() || !v.CanInterface() {
		return ""
	}
	if v.Kind() == reflect.String {
		return strconv.Quote(v.String())
	}
	return fmt.Sprintf("%v", v.Interface())
}

func truncatePreview(s string) string {
	if len(s) <= previewLimit {
		return s
	}
	return s[:previewLimit] + "..."
}

// switchWriter is the interpreter's fixed output sink with a swappable
// target, so each run captures into its own buffer and late writes after
// restore land in the void instead of a finished buffer.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newSwitchWriter() *switchWriter {
	return &switchWriter{w: io.Discard}
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) redirect(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

func (s *switchWriter) restore() {
	s.redirect(io.Discard)
}

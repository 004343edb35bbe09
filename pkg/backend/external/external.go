// Package external implements the Backend contract for an MCP server
// running as a child process, communicating over stdin/stdout. Grounded on
// the corpus's subprocess-stdio-to-socket proxy pattern: exec.CommandContext
// with a SIGTERM Cancel func and a WaitDelay grace period, stdin/stdout
// pipes, and a bufio.Scanner reading one JSON line per backend response.
package external

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	mcperr "github.com/stacklok/mcpmux/pkg/errors"
	"github.com/stacklok/mcpmux/pkg/jsonrpc"
	"github.com/stacklok/mcpmux/pkg/logger"
)

const maxScanBuffer = 10 * 1024 * 1024

// Backend is the Backend contract implemented by a child process. forward
// is serialized per backend by mu, held across the request/response pair,
// which is sufficient for correlation because the child is single-threaded
// from the proxy's perspective (spec.md §4.3).
type Backend struct {
	name string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Scanner
	timeout time.Duration

	gracePeriod time.Duration
	// waitResult delivers cmd.Wait's single result; both the immediate-exit
	// check in Spawn and Close reap through this channel since exec.Cmd
	// forbids calling Wait twice.
	waitResult chan error

	closeOnce sync.Once
}

// Spawn starts command/args with env/cwd and returns a running Backend, or
// BackendStartFailed if the child exits immediately. gracePeriod is how long
// Close waits after SIGTERM before escalating to SIGKILL.
func Spawn(ctx context.Context, name, command string, args []string, env []string, cwd string, gracePeriod time.Duration) (*Backend, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = env
	cmd.Dir = cwd

	// Graceful shutdown: SIGTERM first, give the child WaitDelay to exit
	// before Go force-closes pipes and sends SIGKILL.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = gracePeriod

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, mcperr.NewBackendStartFailedError("failed to open stdin pipe for "+name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, mcperr.NewBackendStartFailedError("failed to open stdout pipe for "+name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, mcperr.NewBackendStartFailedError("failed to open stderr pipe for "+name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, mcperr.NewBackendStartFailedError("failed to start backend "+name, err)
	}

	var stderrBuf strings.Builder
	go func() { _, _ = io.Copy(&stderrBuf, stderr) }()

	// cmd.Wait may only be called once for the process's lifetime; the
	// result is fanned out through waitResult so both the immediate-exit
	// check below and a later Close share the same call.
	waitResult := make(chan error, 1)
	go func() { waitResult <- cmd.Wait() }()

	select {
	case err := <-waitResult:
		return nil, mcperr.NewBackendStartFailedError(
			fmt.Sprintf("backend %s exited immediately: %s", name, strings.TrimSpace(stderrBuf.String())), err)
	case <-time.After(200 * time.Millisecond):
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxScanBuffer)

	return &Backend{
		name:        name,
		cmd:         cmd,
		stdin:       stdin,
		stdout:      scanner,
		timeout:     30 * time.Second,
		gracePeriod: gracePeriod,
		waitResult:  waitResult,
	}, nil
}

// Forward implements backend.Backend.
func (b *Backend) Forward(ctx context.Context, msg *jsonrpc.Message) (*jsonrpc.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	line, err := jsonrpc.Marshal(msg)
	if err != nil {
		return nil, mcperr.NewInternalError("failed to marshal request for "+b.name, err)
	}
	if _, err := b.stdin.Write(append(line, '\n')); err != nil {
		return nil, mcperr.NewBackendProtocolError("failed to write to backend "+b.name, err)
	}

	if msg.IsNotification() {
		return nil, nil
	}

	respLine, err := b.readLineWithTimeout(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := jsonrpc.Parse(respLine)
	if err != nil {
		return nil, mcperr.NewBackendProtocolError("backend "+b.name+" returned invalid JSON-RPC", err)
	}
	if !resp.IsResponse() {
		return nil, mcperr.NewBackendProtocolError("backend "+b.name+" returned a non-response message", nil)
	}
	if string(resp.ID) != string(msg.ID) {
		return nil, mcperr.NewBackendProtocolError("backend "+b.name+" returned mismatched id", nil)
	}
	return resp, nil
}

func (b *Backend) readLineWithTimeout(ctx context.Context) ([]byte, error) {
	type result struct {
		line []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		if b.stdout.Scan() {
			done <- result{line: append([]byte{}, b.stdout.Bytes()...)}
			return
		}
		err := b.stdout.Err()
		if err == nil {
			err = io.EOF
		}
		done <- result{err: err}
	}()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, mcperr.NewBackendProtocolError("backend "+b.name+" stdout closed", r.err)
		}
		return r.line, nil
	case <-timer.C:
		return nil, mcperr.NewBackendTimeoutError("backend "+b.name+" did not respond in time", nil)
	case <-ctx.Done():
		return nil, mcperr.NewBackendTimeoutError("request canceled waiting on backend "+b.name, ctx.Err())
	}
}

// Alive checks the cached ProcessState first (cheap, authoritative once
// Wait has returned), falling back to a gopsutil existence probe for the
// still-running case.
func (b *Backend) Alive() bool {
	if b.cmd.ProcessState != nil {
		return false
	}
	if b.cmd.Process == nil {
		return false
	}
	exists, err := process.PidExists(int32(b.cmd.Process.Pid))
	if err != nil {
		logger.Warnf("liveness probe failed for backend %s: %v", b.name, err)
		return true
	}
	return exists
}

// Close terminates the child process, sending terminate then kill after
// gracePeriod. Idempotent. Reaps through the single waitResult channel
// Spawn's goroutine delivers to, since exec.Cmd.Wait must not be called
// more than once.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		_ = b.stdin.Close()
		if b.cmd.Process == nil {
			return
		}
		_ = b.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-b.waitResult:
		case <-time.After(b.gracePeriod):
			_ = b.cmd.Process.Kill()
			<-b.waitResult
		}
	})
	return err
}

// BuildEnv constructs the child's environment per spec.md §6: when
// inheritEnv is false, only a sanitized PATH/LANG plus overlay; when true,
// the parent environment copied first, then overlaid with overlay.
func BuildEnv(inheritEnv bool, overlay map[string]string) []string {
	var base []string
	if inheritEnv {
		base = os.Environ()
	} else {
		base = []string{"PATH=" + os.Getenv("PATH"), "LANG=" + os.Getenv("LANG")}
	}
	merged := map[string]string{}
	for _, kv := range base {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range overlay {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

// Package toolchain is the process boundary to the native tools
// (xcodebuild, xcrun). It exposes a narrow capability interface so the
// orchestrator's logic is independent of how invocation happens and so
// tests can script tool behavior.
package toolchain

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Result is the outcome of a short, fully-buffered command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Process is a running command whose output is consumed as two
// independently read, continuously-flushed line streams. Lines are
// ordered within each stream; interleaving between the two streams is
// unspecified.
type Process interface {
	// Stdout yields standard-output lines as they are produced. The
	// channel is closed when the stream ends.
	Stdout() <-chan string
	// Stderr yields standard-error lines as they are produced.
	Stderr() <-chan string
	// Wait blocks until the process exits and both streams are
	// drained. A non-zero exit returns *ExitError.
	Wait() error
}

// ExitError reports an unsuccessful process exit. Signalled is true
// when the process was killed from outside rather than exiting on its
// own, which the orchestrator records as a cancelled build.
type ExitError struct {
	Code      int
	Signalled bool
	Signal    string
}

func (e *ExitError) Error() string {
	if e.Signalled {
		return fmt.Sprintf("process killed by signal %s", e.Signal)
	}
	return fmt.Sprintf("process exited with code %d", e.Code)
}

// Runner invokes external tools.
type Runner interface {
	// Start launches a streaming command in dir (empty for inherited
	// working directory).
	Start(ctx context.Context, dir, name string, args ...string) (Process, error)
	// Run executes a short command to completion, buffering output.
	// A non-zero exit is reported in Result, not as an error; the
	// error is reserved for failures to invoke the tool at all.
	Run(ctx context.Context, name string, args ...string) (*Result, error)
	// RunEnv is Run with extra environment variables appended to the
	// tool's environment.
	RunEnv(ctx context.Context, env map[string]string, name string, args ...string) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner creates a Runner backed by real subprocesses.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes a command to completion.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	return r.RunEnv(ctx, nil, name, args...)
}

// RunEnv executes a command to completion with extra environment.
func (r *ExecRunner) RunEnv(ctx context.Context, env map[string]string, name string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("running %s: %w", name, err)
	}
	return res, nil
}

// Start launches a streaming command.
func (r *ExecRunner) Start(ctx context.Context, dir, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}

	p := &execProcess{
		cmd:    cmd,
		stdout: make(chan string, 64),
		stderr: make(chan string, 64),
	}
	p.scanners.Add(2)
	go p.scanLines(stdoutPipe, p.stdout)
	go p.scanLines(stderrPipe, p.stderr)

	return p, nil
}

type execProcess struct {
	cmd      *exec.Cmd
	stdout   chan string
	stderr   chan string
	scanners sync.WaitGroup
}

func (p *execProcess) Stdout() <-chan string { return p.stdout }
func (p *execProcess) Stderr() <-chan string { return p.stderr }

func (p *execProcess) scanLines(r io.Reader, out chan<- string) {
	defer p.scanners.Done()
	defer close(out)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// Wait drains both streams then reaps the process. Killing the process
// out-of-band closes the pipes, so the scanners terminate and Wait
// observes the exit instead of hanging.
func (p *execProcess) Wait() error {
	p.scanners.Wait()
	err := p.cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			sig := ""
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				sig = ws.Signal().String()
			}
			return &ExitError{Code: code, Signalled: true, Signal: sig}
		}
		return &ExitError{Code: code}
	}
	return fmt.Errorf("waiting for %s: %w", p.cmd.Path, err)
}

package toolchain

import (
	"context"
	"fmt"
	"sync"
)

// Script describes one scripted invocation for the FakeRunner: the
// lines each stream emits, how the process exits, and optionally the
// buffered Result for Run calls.
type Script struct {
	StdoutLines []string
	StderrLines []string
	ExitCode    int
	Signalled   bool
	Signal      string
	StartErr    error

	Result *Result
	RunErr error
}

// FakeRunner replays scripts keyed by tool name. It exists for tests:
// the orchestrator and the simulator adapter are exercised against
// scripted output and exit codes without any real subprocess.
type FakeRunner struct {
	mu      sync.Mutex
	scripts map[string][]*Script
	// Calls records every invocation in order, as name followed by args.
	Calls [][]string
}

// NewFakeRunner creates an empty fake. Invoking a tool with no script
// queued fails loudly so tests cannot silently pass on missing setup.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{scripts: make(map[string][]*Script)}
}

// Stub queues a script for the next invocation of name. Multiple stubs
// for the same name are consumed in order.
func (f *FakeRunner) Stub(name string, script *Script) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[name] = append(f.scripts[name], script)
}

func (f *FakeRunner) next(name string, args []string) (*Script, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, append([]string{name}, args...))
	queue := f.scripts[name]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no script stubbed for %q", name)
	}
	f.scripts[name] = queue[1:]
	return queue[0], nil
}

// Run replays a buffered script.
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	return f.RunEnv(ctx, nil, name, args...)
}

// RunEnv replays a buffered script, ignoring the environment.
func (f *FakeRunner) RunEnv(ctx context.Context, env map[string]string, name string, args ...string) (*Result, error) {
	script, err := f.next(name, args)
	if err != nil {
		return nil, err
	}
	if script.RunErr != nil {
		return nil, script.RunErr
	}
	if script.Result != nil {
		return script.Result, nil
	}
	return &Result{ExitCode: script.ExitCode}, nil
}

// Start replays a streaming script. Stream lines are emitted from a
// goroutine per stream so tests observe the same concurrent shape as
// the real runner.
func (f *FakeRunner) Start(ctx context.Context, dir, name string, args ...string) (Process, error) {
	script, err := f.next(name, args)
	if err != nil {
		return nil, err
	}
	if script.StartErr != nil {
		return nil, script.StartErr
	}

	p := &fakeProcess{
		script: script,
		stdout: make(chan string),
		stderr: make(chan string),
	}
	go func() {
		for _, line := range script.StdoutLines {
			p.stdout <- line
		}
		close(p.stdout)
	}()
	go func() {
		for _, line := range script.StderrLines {
			p.stderr <- line
		}
		close(p.stderr)
	}()
	return p, nil
}

type fakeProcess struct {
	script *Script
	stdout chan string
	stderr chan string
}

func (p *fakeProcess) Stdout() <-chan string { return p.stdout }
func (p *fakeProcess) Stderr() <-chan string { return p.stderr }

func (p *fakeProcess) Wait() error {
	// Streams close once fully consumed; Wait does not need to drain
	// because the callers always read both channels to the end first.
	if p.script.Signalled {
		return &ExitError{Code: -1, Signalled: true, Signal: p.script.Signal}
	}
	if p.script.ExitCode != 0 {
		return &ExitError{Code: p.script.ExitCode}
	}
	return nil
}

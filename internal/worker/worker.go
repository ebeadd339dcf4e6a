// Package worker wraps external worker process invocation: spawn a
// named program with arguments, working directory and an environment
// overlay, capture bounded stdio, and terminate gracefully on
// cancellation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrProcess marks a worker that failed to spawn or exited
	// non-zero.
	ErrProcess = errors.New("worker process failed")

	// ErrAborted marks a worker terminated by cancellation. It is
	// distinct from ErrProcess so callers can tell "aborted" from
	// "other failure".
	ErrAborted = errors.New("worker aborted")
)

// DefaultGracePeriod is how long a cancelled worker gets between
// SIGTERM and SIGKILL.
const DefaultGracePeriod = 5 * time.Second

const maxCapturedOutput = 64000

// Spec describes one worker invocation.
type Spec struct {
	Program string
	Args    []string
	Dir     string

	// Env entries overlay the host environment.
	Env map[string]string

	Stdin string

	// GracePeriod overrides DefaultGracePeriod when positive.
	GracePeriod time.Duration
}

// Result summarizes a finished worker.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner runs worker specs. The interface exists so the job controller
// and extensions can be tested without spawning real processes.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// ExecRunner runs workers as real OS processes.
type ExecRunner struct{}

// Run spawns the worker and waits for it to settle. When ctx is
// cancelled the process receives SIGTERM, then SIGKILL after the grace
// period, and Run returns an error wrapping ErrAborted. A non-zero
// exit or spawn failure returns an error wrapping ErrProcess.
func (ExecRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	if spec.Program == "" {
		return Result{}, fmt.Errorf("%w: program is required", ErrProcess)
	}

	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		env := os.Environ()
		for k, v := range spec.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	stdout := newLimitedBuffer(maxCapturedOutput)
	stderr := newLimitedBuffer(maxCapturedOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%w: start %s: %v", ErrProcess, spec.Program, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	grace := spec.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	var waitErr error
	aborted := false
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		aborted = true
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}
		timer := time.NewTimer(grace)
		select {
		case waitErr = <-done:
		case <-timer.C:
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			waitErr = <-done
		}
		timer.Stop()
	}

	res := Result{
		ExitCode: exitCode(waitErr),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if aborted {
		return res, fmt.Errorf("%w: %s", ErrAborted, spec.Program)
	}
	if waitErr != nil {
		return res, fmt.Errorf("%w: %s exited %d: %v", ErrProcess, spec.Program, res.ExitCode, waitErr)
	}
	return res, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

type limitedBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 && len(b.buf) >= b.max {
		return len(p), nil
	}
	remaining := b.max - len(b.buf)
	if b.max > 0 && len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

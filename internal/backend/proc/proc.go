// Package proc starts and supervises checker processes for the bundled
// and external backends.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"prosa/internal/backend"
)

// Command describes how to start a process.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env is appended to the current environment.
	Env []string
	// Pipes connects stdin and stdout.
	Pipes bool
}

func (c Command) String() string {
	return filepath.Base(c.Path)
}

// Process is one running child.
type Process struct {
	cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	stderr *tail

	done chan struct{}
	err  error
}

// Start launches cmd.
func Start(c Command) (*Process, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	p := &Process{cmd: cmd, stderr: &tail{max: 4096}, done: make(chan struct{})}
	cmd.Stderr = p.stderr
	// stdout is a plain pipe so that Wait does not close it under a reader.
	var stdoutW *os.File
	if c.Pipes {
		var err error
		if p.Stdin, err = cmd.StdinPipe(); err != nil {
			return nil, err
		}
		r, w, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		p.Stdout, stdoutW = r, w
		cmd.Stdout = w
	}
	if err := cmd.Start(); err != nil {
		if stdoutW != nil {
			_ = stdoutW.Close()
			_ = p.Stdout.Close()
		}
		return nil, err
	}
	if stdoutW != nil {
		_ = stdoutW.Close()
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Pid returns the operating system process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether the process has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err returns the exit error, with the tail of stderr attached. Only valid
// after Done is closed.
func (p *Process) Err() error {
	if msg := p.stderr.String(); msg != "" {
		if p.err == nil {
			return fmt.Errorf("exited: %s", msg)
		}
		return fmt.Errorf("%w: %s", p.err, msg)
	}
	if p.err == nil {
		return errors.New("exited")
	}
	return p.err
}

// Stop asks the process to exit and kills it after grace.
func (p *Process) Stop(grace time.Duration) error {
	if p.Exited() {
		return nil
	}
	if p.Stdin != nil {
		_ = p.Stdin.Close()
	}
	_ = p.cmd.Process.Signal(os.Interrupt)
	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-p.done
	return nil
}

// LaunchOptions bound a Launch.
type LaunchOptions struct {
	// Attempts is the total number of starts tried.
	Attempts int
	Interval time.Duration
	// Ready waits until the process can serve requests. A nil Ready
	// treats a started process as ready.
	Ready  func(ctx context.Context, p *Process) error
	Logger *slog.Logger
}

const (
	DefaultAttempts = 3
	DefaultInterval = 500 * time.Millisecond
	StopGrace       = 3 * time.Second
)

// Launch starts c and waits for it to become ready, retrying with backoff.
// Exhausted attempts yield a *backend.LaunchError.
func Launch(ctx context.Context, c Command, opts LaunchOptions) (*Process, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = opts.Interval
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(opts.Attempts-1)), ctx)

	attempts := 0
	var proc *Process
	op := func() error {
		attempts++
		p, err := Start(c)
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
				return backoff.Permanent(err)
			}
			return err
		}
		if opts.Ready != nil {
			if err := opts.Ready(ctx, p); err != nil {
				_ = p.Stop(StopGrace)
				return err
			}
		}
		proc = p
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("checker failed to start", "command", c.String(), "attempt", attempts, "wait", wait, "err", err)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &backend.LaunchError{Command: c.String(), Attempts: attempts, Err: err}
	}
	log.Info("checker started", "command", c.String(), "pid", proc.Pid(), "attempts", attempts)
	return proc, nil
}

// Java resolves the java runtime: explicit path, then $JAVA_HOME/bin/java,
// then PATH. A missing runtime is a configuration error.
func Java(explicit string) (string, error) {
	if explicit != "" {
		path, err := exec.LookPath(explicit)
		if err != nil {
			return "", &backend.ConfigError{Field: "java", Msg: "java runtime not found", Err: err}
		}
		return path, nil
	}
	if home := os.Getenv("JAVA_HOME"); home != "" {
		candidate := filepath.Join(home, "bin", "java")
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	path, err := exec.LookPath("java")
	if err != nil {
		return "", &backend.ConfigError{Field: "java", Msg: "java runtime not found (install Java or set JAVA_HOME)", Err: err}
	}
	return path, nil
}

// tail keeps the last max bytes written to it.
type tail struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf))
}

// Package bundled runs a LanguageTool server from a bundled distribution
// as a child process and checks through it over loopback HTTP.
package bundled

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"prosa/internal/backend"
	"prosa/internal/backend/proc"
	"prosa/internal/backend/remote"
)

const (
	ServerJar   = "languagetool-server.jar"
	ServerClass = "org.languagetool.server.HTTPServer"

	// DefaultStartup bounds the wait for the first readiness answer.
	DefaultStartup = 90 * time.Second
)

// Options configure the bundled backend.
type Options struct {
	// Dir holds the distribution (languagetool-server.jar and its libs).
	Dir string
	// Java overrides runtime discovery.
	Java string
	// Port is the loopback port; 0 picks a free one per launch.
	Port    int
	Startup time.Duration
	// Remote tunes the HTTP client talking to the child.
	Remote remote.Options
	Launch proc.LaunchOptions
	// Env is passed to the child.
	Env    []string
	Logger *slog.Logger
}

// Backend owns one child server.
type Backend struct {
	opts Options
	java string
	jar  string
	log  *slog.Logger

	mu     sync.Mutex
	proc   *proc.Process
	client *remote.Client
	closed bool
}

// Open validates the distribution and starts the server. It blocks until
// the server answers or the launch attempts are exhausted.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	if opts.Dir == "" {
		return nil, &backend.ConfigError{Field: "bundled_dir", Msg: "no distribution directory configured"}
	}
	jar := filepath.Join(opts.Dir, ServerJar)
	if _, err := os.Stat(jar); err != nil {
		return nil, &backend.ConfigError{Field: "bundled_dir", Msg: "bundled server not found", Err: err}
	}
	java, err := proc.Java(opts.Java)
	if err != nil {
		return nil, err
	}
	if opts.Startup <= 0 {
		opts.Startup = DefaultStartup
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if opts.Launch.Logger == nil {
		opts.Launch.Logger = log
	}
	b := &Backend{opts: opts, java: java, jar: jar, log: log}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.start(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// start launches the child on a fresh port. Callers hold b.mu.
func (b *Backend) start(ctx context.Context) error {
	port := b.opts.Port
	if port == 0 {
		var err error
		if port, err = freePort(); err != nil {
			return &backend.LaunchError{Command: "java", Attempts: 0, Err: err}
		}
	}
	ro := b.opts.Remote
	ro.Endpoint = remote.Endpoint("127.0.0.1", port)
	ro.Name = "bundled"
	if ro.Logger == nil {
		ro.Logger = b.log
	}
	client, err := remote.New(ro)
	if err != nil {
		return err
	}

	cmd := proc.Command{
		Path: b.java,
		Args: []string{"-cp", b.jar, ServerClass, "--port", strconv.Itoa(port), "--allow-origin", "*"},
		Dir:  b.opts.Dir,
		Env:  b.opts.Env,
	}
	launch := b.opts.Launch
	launch.Ready = func(ctx context.Context, p *proc.Process) error {
		return b.waitReady(ctx, p, client)
	}
	p, err := proc.Launch(ctx, cmd, launch)
	if err != nil {
		_ = client.Close()
		return err
	}
	b.proc, b.client = p, client
	return nil
}

// waitReady polls the server until it answers. The first start of a JVM
// server takes seconds.
func (b *Backend) waitReady(ctx context.Context, p *proc.Process, client *remote.Client) error {
	ctx, cancel := context.WithTimeout(ctx, b.opts.Startup)
	defer cancel()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := client.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-p.Done():
			return fmt.Errorf("server exited during startup: %w", p.Err())
		case <-ctx.Done():
			return fmt.Errorf("server not ready after %s", b.opts.Startup)
		case <-tick.C:
		}
	}
}

// current returns a live client, restarting the child if it died.
func (b *Backend) current(ctx context.Context) (*remote.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.ErrClosed
	}
	if b.proc != nil && !b.proc.Exited() {
		return b.client, nil
	}
	if b.proc != nil {
		b.log.Warn("bundled server exited unexpectedly, restarting", "err", b.proc.Err())
		_ = b.client.Close()
		b.proc, b.client = nil, nil
	}
	if err := b.start(ctx); err != nil {
		return nil, err
	}
	return b.client, nil
}

// Check implements backend.Backend.
func (b *Backend) Check(ctx context.Context, req backend.Request) ([]backend.Match, error) {
	client, err := b.current(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := client.Check(ctx, req)
	if errors.Is(err, backend.ErrClosed) {
		// a concurrent restart replaced the client
		if client, err = b.current(ctx); err != nil {
			return nil, err
		}
		return client.Check(ctx, req)
	}
	return matches, err
}

// Capabilities implements backend.Backend.
func (b *Backend) Capabilities() backend.Capabilities {
	conc := b.opts.Remote.Concurrency
	if conc <= 0 {
		conc = remote.DefaultConcurrency
	}
	return backend.Capabilities{Name: "bundled", ServerSideDisabling: true, MaxConcurrent: conc}
}

// Close stops the child server.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.client != nil {
		_ = b.client.Close()
	}
	if b.proc != nil {
		return b.proc.Stop(proc.StopGrace)
	}
	return nil
}

// Pid returns the current child pid, or 0.
func (b *Backend) Pid() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.proc == nil || b.proc.Exited() {
		return 0
	}
	return b.proc.Pid()
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

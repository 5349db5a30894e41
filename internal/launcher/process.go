package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/DeskShell/backend/internal/shared/utils"
	"github.com/creack/pty"
	"go.uber.org/zap"
)

// ErrExitedEarly means the backend process exited before it became ready.
var ErrExitedEarly = errors.New("backend exited before becoming ready")

// Options configures a Process launcher.
type Options struct {
	Command string
	Args    []string
	WorkDir string
	Env     []string

	// Host and Port are handed to the backend and form the returned URL.
	Host string
	Port string

	// HealthPath is polled until it answers 2xx. Empty skips the probe.
	HealthPath   string
	ReadyTimeout time.Duration
	PollInterval time.Duration

	// UsePTY runs the backend on a pseudo-terminal so it line-buffers
	// its output like it would in a terminal.
	UsePTY bool

	// StopGrace is how long Stop waits after an interrupt before killing.
	StopGrace time.Duration

	Output func(line string)
	Logger *zap.Logger
	Client *httpclient.Client
}

type run struct {
	cmd    *exec.Cmd
	ptmx   *os.File
	done   chan struct{}
	exited chan error
}

// Process launches the backend as a child process.
type Process struct {
	opts   Options
	log    *zap.Logger
	client *httpclient.Client

	mu  sync.Mutex
	cur *run
}

// NewProcess creates a Process launcher.
func NewProcess(opts Options) *Process {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 10 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = httpclient.New(httpclient.Options{Timeout: 2 * time.Second})
	}
	return &Process{
		opts:   opts,
		log:    logging.OrNop(opts.Logger),
		client: client,
	}
}

// URL returns the address the backend is bound to.
func (p *Process) URL() string {
	return "http://" + net.JoinHostPort(p.opts.Host, p.opts.Port)
}

// Start launches the backend and waits until it is ready. A backend that is
// already running is reported as is.
func (p *Process) Start(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.cur != nil {
		p.mu.Unlock()
		return p.URL(), nil
	}

	r, err := p.spawn()
	if err != nil {
		p.mu.Unlock()
		return "", err
	}
	p.cur = r
	p.mu.Unlock()

	p.log.Info("Backend process started",
		zap.String("command", p.opts.Command),
		zap.Int("pid", r.cmd.Process.Pid),
		zap.Bool("pty", p.opts.UsePTY))

	if err := p.waitReady(ctx, r); err != nil {
		p.log.Warn("Backend did not become ready", zap.Error(err))
		p.Stop(context.WithoutCancel(ctx))
		return "", err
	}
	return p.URL(), nil
}

func (p *Process) spawn() (*run, error) {
	cmd := exec.Command(p.opts.Command, p.opts.Args...)
	cmd.Dir = p.opts.WorkDir
	cmd.Env = append(os.Environ(), p.opts.Env...)
	cmd.Env = append(cmd.Env, "HOST="+p.opts.Host, "PORT="+p.opts.Port)
	// Grandchildren holding the output pipe must not keep Wait blocked.
	cmd.WaitDelay = 2 * time.Second

	out := utils.NewLineWriter(p.output)
	r := &run{
		cmd:    cmd,
		done:   make(chan struct{}),
		exited: make(chan error, 1),
	}

	if p.opts.UsePTY {
		cmd.Env = append(cmd.Env, "TERM=xterm-256color")
		ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 40, Cols: 200})
		if err != nil {
			return nil, fmt.Errorf("failed to start PTY: %w", err)
		}
		r.ptmx = ptmx
		go func() {
			_, _ = io.Copy(out, ptmx)
			out.Flush()
		}()
	} else {
		cmd.Stdout = out
		cmd.Stderr = out
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start %s: %w", p.opts.Command, err)
		}
	}

	go p.monitor(r, out)
	return r, nil
}

// monitor waits for the process to exit and publishes the result.
func (p *Process) monitor(r *run, out *utils.LineWriter) {
	err := r.cmd.Wait()
	if r.ptmx != nil {
		r.ptmx.Close()
	} else {
		out.Flush()
	}

	p.mu.Lock()
	if p.cur == r {
		p.cur = nil
	}
	p.mu.Unlock()

	p.log.Info("Backend process exited", zap.Int("pid", r.cmd.Process.Pid), zap.Error(err))
	r.exited <- err
	close(r.exited)
	close(r.done)
}

func (p *Process) waitReady(ctx context.Context, r *run) error {
	if p.opts.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.ReadyTimeout)
		defer cancel()
	}

	if p.opts.HealthPath == "" {
		select {
		case <-r.done:
			return ErrExitedEarly
		default:
			return nil
		}
	}

	health := p.probeURL()
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		err := p.client.Probe(ctx, health)
		if err == nil {
			return nil
		}
		p.log.Debug("Backend not ready", zap.String("url", health), zap.Error(err))

		select {
		case <-r.done:
			return ErrExitedEarly
		case <-ctx.Done():
			return fmt.Errorf("backend not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// probeURL targets loopback when the backend binds a wildcard address.
func (p *Process) probeURL() string {
	host := p.opts.Host
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, p.opts.Port) + p.opts.HealthPath
}

// Exited returns the exit channel of the running process, or nil.
func (p *Process) Exited() <-chan error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return nil
	}
	return p.cur.exited
}

// Running reports whether a backend process is alive.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil
}

// Stop interrupts the backend, kills it after the grace period, and waits
// for it to exit. Stopping nothing is a no-op.
func (p *Process) Stop(ctx context.Context) {
	p.mu.Lock()
	r := p.cur
	p.mu.Unlock()
	if r == nil {
		return
	}

	proc := r.cmd.Process
	if runtime.GOOS == "windows" {
		_ = proc.Kill()
	} else if err := proc.Signal(os.Interrupt); err != nil {
		_ = proc.Kill()
	}

	grace := time.NewTimer(p.opts.StopGrace)
	defer grace.Stop()

	select {
	case <-r.done:
		return
	case <-grace.C:
		p.log.Warn("Backend ignored interrupt, killing", zap.Int("pid", proc.Pid))
	case <-ctx.Done():
		p.log.Warn("Stop cancelled, killing backend", zap.Int("pid", proc.Pid))
	}

	_ = proc.Kill()
	<-r.done
}

func (p *Process) output(line string) {
	if p.opts.Output != nil {
		p.opts.Output(line)
	}
}

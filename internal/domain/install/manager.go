package install

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/DeskShell/backend/internal/shared/utils"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"mvdan.cc/sh/v3/shell"
)

var (
	// ErrInstallFailure wraps every failure of the install collaborator.
	ErrInstallFailure = errors.New("install failure")
	// ErrExternalMode rejects install and remove against an external endpoint.
	ErrExternalMode = errors.New("not available in external mode")
)

// Options configures a Manager.
type Options struct {
	// Dir holds the manifest and is the working directory of the commands.
	Dir string
	// Command installs the backend. Empty means the backend is provided
	// by the system and installing only records the manifest.
	Command       string
	RemoveCommand string
	// Executable is the backend binary recorded in the manifest. A bare
	// name is resolved through PATH at install time.
	Executable string
	Version    string
	External   bool

	Logger *zap.Logger
	// Output receives install and remove command output line by line.
	Output func(line string)
}

// Manager is the installation gate plus its install and remove collaborators.
type Manager struct {
	opts   Options
	log    *zap.Logger
	flight singleflight.Group
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.Version == "" {
		opts.Version = "unknown"
	}
	return &Manager{
		opts: opts,
		log:  logging.OrNop(opts.Logger),
	}
}

// External reports whether the gate is bypassed.
func (m *Manager) External() bool {
	return m.opts.External
}

// Dir returns the install directory.
func (m *Manager) Dir() string {
	return m.opts.Dir
}

// IsInstalled evaluates the persisted installation state. Nothing is
// cached between calls. It is always true in external mode.
func (m *Manager) IsInstalled(ctx context.Context) bool {
	if m.opts.External {
		return true
	}

	man, err := ReadManifest(m.opts.Dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.log.Warn("Unreadable install manifest", zap.String("dir", m.opts.Dir), zap.Error(err))
		}
		return false
	}
	return man.Valid()
}

// Manifest returns the current manifest, or nil when there is none.
func (m *Manager) Manifest() *Manifest {
	man, err := ReadManifest(m.opts.Dir)
	if err != nil {
		return nil
	}
	return man
}

// Install runs the install command and records the manifest. Concurrent
// calls share one run. The caller's cancellation does not abort it.
func (m *Manager) Install(ctx context.Context) error {
	if m.opts.External {
		return ErrExternalMode
	}
	_, err, _ := m.flight.Do("install", func() (any, error) {
		return nil, m.install(context.WithoutCancel(ctx))
	})
	return err
}

func (m *Manager) install(ctx context.Context) error {
	started := time.Now()
	m.log.Info("Installing backend", zap.String("dir", m.opts.Dir), zap.String("command", m.opts.Command))

	if err := os.MkdirAll(m.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrInstallFailure, err)
	}

	if m.opts.Command != "" {
		if err := m.run(ctx, m.opts.Command); err != nil {
			m.output("Installation failed: " + err.Error())
			m.log.Error("Install command failed", zap.Error(err))
			return fmt.Errorf("%w: %w", ErrInstallFailure, err)
		}
	}

	man := &Manifest{
		Version:     m.opts.Version,
		InstalledAt: time.Now().UTC().Truncate(time.Second),
		Executable:  m.resolveExecutable(),
		Command:     m.opts.Command,
	}
	if err := WriteManifest(m.opts.Dir, man); err != nil {
		return fmt.Errorf("%w: %w", ErrInstallFailure, err)
	}

	m.output("Installation complete")
	m.log.Info("Backend installed", zap.String("executable", man.Executable), zap.Duration("took", time.Since(started)))
	return nil
}

// Remove runs the remove command and deletes the manifest. It does not
// touch a running backend or stop when the caller gives up.
func (m *Manager) Remove(ctx context.Context) error {
	if m.opts.External {
		return ErrExternalMode
	}
	_, err, _ := m.flight.Do("remove", func() (any, error) {
		return nil, m.remove(context.WithoutCancel(ctx))
	})
	return err
}

func (m *Manager) remove(ctx context.Context) error {
	m.log.Info("Removing backend", zap.String("dir", m.opts.Dir))

	if m.opts.RemoveCommand != "" {
		if err := m.run(ctx, m.opts.RemoveCommand); err != nil {
			m.log.Error("Remove command failed", zap.Error(err))
			return fmt.Errorf("remove: %w", err)
		}
	}
	if err := RemoveManifest(m.opts.Dir); err != nil {
		return fmt.Errorf("remove manifest: %w", err)
	}

	m.output("Backend removed")
	return nil
}

// Watch reports changes of IsInstalled caused by anything touching the
// install directory until ctx is done. It returns immediately in external
// mode.
func (m *Manager) Watch(ctx context.Context, onChange func(installed bool)) error {
	if m.opts.External {
		return nil
	}
	if err := os.MkdirAll(m.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("create install dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.opts.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", m.opts.Dir, err)
	}
	m.log.Info("Install watcher initialized", zap.String("dir", m.opts.Dir))

	last := m.IsInstalled(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			m.log.Debug("Install dir changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if now := m.IsInstalled(ctx); now != last {
				last = now
				m.log.Info("Install state changed", zap.Bool("installed", now))
				onChange(now)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("Install watcher error", zap.Error(err))
		}
	}
}

// run executes a configured command line inside the install directory,
// streaming its output.
func (m *Manager) run(ctx context.Context, command string) error {
	args, err := shell.Fields(command, os.Getenv)
	if err != nil {
		return fmt.Errorf("parse command: %w", err)
	}
	if len(args) == 0 {
		return errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = m.opts.Dir

	out := utils.NewLineWriter(m.output)
	cmd.Stdout = out
	cmd.Stderr = out

	m.output("$ " + command)
	err = cmd.Run()
	out.Flush()
	return err
}

func (m *Manager) resolveExecutable() string {
	exe := m.opts.Executable
	if exe == "" {
		return ""
	}
	if filepath.IsAbs(exe) {
		return exe
	}
	if path, err := exec.LookPath(exe); err == nil {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	m.log.Debug("Backend executable not on PATH", zap.String("executable", exe))
	return ""
}

func (m *Manager) output(line string) {
	if m.opts.Output != nil {
		m.opts.Output(line)
	}
}

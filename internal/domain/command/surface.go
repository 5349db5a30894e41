package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/DeskShell/backend/internal/shared/id"
	"github.com/GriffinCanCode/DeskShell/backend/internal/shared/utils"
	"go.uber.org/zap"
)

var (
	ErrAccessDenied   = errors.New("access denied")
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Command names. Each also answers to its colon alias.
const (
	Install       = "install"
	InstallStatus = "install-status"
	Remove        = "remove"
	ServerStatus  = "server-status"
	ServerStart   = "server-start"
	ServerStop    = "server-stop"
	ServerURL     = "server-url"
	Info          = "info"
	Notification  = "notification"
	WindowFocused = "window-focused"
)

var aliases = map[string]string{
	"install:status":   InstallStatus,
	"server:status":    ServerStatus,
	"server:start":     ServerStart,
	"server:stop":      ServerStop,
	"server:url":       ServerURL,
	"window:isFocused": WindowFocused,
	"window:focused":   WindowFocused,
}

// Request is one command surface call.
type Request struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Controller is the lifecycle the surface drives.
type Controller interface {
	Start(ctx context.Context) lifecycle.Snapshot
	Stop(ctx context.Context) lifecycle.Snapshot
	Query() lifecycle.Snapshot
	PublishInstallStatus(installed bool)
	External() bool
}

// Installer is the installation gate with its collaborators.
type Installer interface {
	IsInstalled(ctx context.Context) bool
	Install(ctx context.Context) error
	Remove(ctx context.Context) error
}

// Notifier delivers desktop notifications.
type Notifier interface {
	Notify(title, body string)
}

// FocusReporter reports whether the main window has focus.
type FocusReporter interface {
	Focused() bool
}

// Recorder receives per-command outcomes.
type Recorder interface {
	RecordCommand(command, outcome string)
}

// AppInfo is returned by the info command.
type AppInfo struct {
	Platform string `json:"platform"`
	Version  string `json:"version"`
	App      string `json:"app"`
}

// Options configures a Surface.
type Options struct {
	Controller Controller
	Installer  Installer
	Notifier   Notifier
	Window     FocusReporter
	Metrics    Recorder
	Logger     *zap.Logger
	Origins    OriginPolicy

	AppName    string
	AppVersion string
}

type handler struct {
	privileged bool
	run        func(ctx context.Context, payload json.RawMessage) (any, error)
}

// Surface dispatches commands with origin-based access control.
type Surface struct {
	opts     Options
	log      *zap.Logger
	handlers map[string]handler
}

// NewSurface creates a Surface.
func NewSurface(opts Options) *Surface {
	s := &Surface{
		opts: opts,
		log:  logging.OrNop(opts.Logger),
	}
	s.handlers = map[string]handler{
		Install:       {privileged: true, run: s.install},
		InstallStatus: {run: s.installStatus},
		Remove:        {privileged: true, run: s.remove},
		ServerStatus:  {run: s.serverStatus},
		ServerStart:   {privileged: true, run: s.serverStart},
		ServerStop:    {privileged: true, run: s.serverStop},
		ServerURL:     {run: s.serverURL},
		Info:          {run: s.info},
		Notification:  {run: s.notification},
		WindowFocused: {run: s.windowFocused},
	}
	return s
}

// Canonical resolves an alias to its command name.
func Canonical(name string) string {
	if c, ok := aliases[name]; ok {
		return c
	}
	return name
}

// Privileged reports whether a command requires a trusted origin.
func (s *Surface) Privileged(name string) bool {
	h, ok := s.handlers[Canonical(name)]
	return ok && h.privileged
}

// Commands lists the canonical command names.
func (s *Surface) Commands() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs req on behalf of a caller from origin. Privileged commands
// from an untrusted origin fail with ErrAccessDenied before anything runs.
func (s *Surface) Dispatch(ctx context.Context, req Request, origin string) (any, error) {
	reqID := id.NewRequestID()
	name := Canonical(req.Command)
	log := s.log.With(zap.String("request", reqID.String()), zap.String("command", name))

	if err := utils.ValidateCommand(name); err != nil {
		s.record("invalid", "unknown")
		return nil, fmt.Errorf("%w: %w", ErrUnknownCommand, err)
	}
	h, ok := s.handlers[name]
	if !ok {
		s.record("invalid", "unknown")
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, req.Command)
	}
	if h.privileged && !s.opts.Origins.Trusted(origin) {
		s.record(name, "denied")
		log.Warn("Privileged command from untrusted origin", zap.String("origin", origin))
		return nil, ErrAccessDenied
	}
	if err := utils.ValidatePayload(req.Payload); err != nil {
		s.record(name, "invalid")
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	log.Debug("Dispatching command", zap.String("origin", origin))
	result, err := h.run(ctx, req.Payload)
	if err != nil {
		s.record(name, "error")
		log.Error("Command failed", zap.Error(err))
		return nil, err
	}
	s.record(name, "ok")
	return result, nil
}

func (s *Surface) install(ctx context.Context, _ json.RawMessage) (any, error) {
	if s.opts.Controller.External() {
		s.log.Warn("Install requested in external mode")
		return false, nil
	}

	if err := s.opts.Installer.Install(ctx); err != nil {
		s.log.Error("Install failed", zap.Error(err))
		s.opts.Controller.PublishInstallStatus(false)
		return false, nil
	}

	s.opts.Controller.PublishInstallStatus(true)
	s.opts.Controller.Start(ctx)
	return true, nil
}

func (s *Surface) installStatus(ctx context.Context, _ json.RawMessage) (any, error) {
	if s.opts.Controller.External() {
		return true, nil
	}
	return s.opts.Installer.IsInstalled(ctx), nil
}

func (s *Surface) remove(ctx context.Context, _ json.RawMessage) (any, error) {
	if s.opts.Controller.External() {
		s.log.Warn("Remove requested in external mode")
		return nil, nil
	}
	if err := s.opts.Installer.Remove(ctx); err != nil {
		return nil, err
	}
	s.opts.Controller.PublishInstallStatus(s.opts.Installer.IsInstalled(ctx))
	return nil, nil
}

func (s *Surface) serverStatus(context.Context, json.RawMessage) (any, error) {
	return string(s.opts.Controller.Query().Status), nil
}

func (s *Surface) serverStart(ctx context.Context, _ json.RawMessage) (any, error) {
	s.opts.Controller.Start(ctx)
	return nil, nil
}

func (s *Surface) serverStop(ctx context.Context, _ json.RawMessage) (any, error) {
	s.opts.Controller.Stop(ctx)
	return nil, nil
}

func (s *Surface) serverURL(context.Context, json.RawMessage) (any, error) {
	if u := s.opts.Controller.Query().URL; u != "" {
		return u, nil
	}
	return nil, nil
}

func (s *Surface) info(context.Context, json.RawMessage) (any, error) {
	return AppInfo{
		Platform: runtime.GOOS,
		Version:  s.opts.AppVersion,
		App:      s.opts.AppName,
	}, nil
}

type notificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (s *Surface) notification(_ context.Context, payload json.RawMessage) (any, error) {
	var n notificationPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}
	if n.Title == "" && n.Body == "" {
		return nil, fmt.Errorf("%w: title or body is required", ErrInvalidPayload)
	}
	if s.opts.Notifier != nil {
		s.opts.Notifier.Notify(n.Title, n.Body)
	}
	return nil, nil
}

func (s *Surface) windowFocused(context.Context, json.RawMessage) (any, error) {
	focused := false
	if s.opts.Window != nil {
		focused = s.opts.Window.Focused()
	}
	return map[string]bool{"isFocused": focused}, nil
}

func (s *Surface) record(command, outcome string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordCommand(command, outcome)
	}
}

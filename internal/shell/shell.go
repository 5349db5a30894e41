package shell

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/broadcast"
	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/command"
	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"github.com/atotto/clipboard"
	"go.uber.org/zap"
)

// LocalOrigin is the origin the shell presents when it issues commands on
// the user's behalf.
const LocalOrigin = "file://"

// ErrNoServerURL means an action needs a running server and there is none.
var ErrNoServerURL = errors.New("server is not running")

// Controller is the part of the lifecycle controller the shell drives.
type Controller interface {
	Subscribe() (lifecycle.Snapshot, *broadcast.Subscription[lifecycle.Event])
	Query() lifecycle.Snapshot
	Start(ctx context.Context) lifecycle.Snapshot
	Stop(ctx context.Context) lifecycle.Snapshot
	HandleLoadFailure(ctx context.Context, failedURL string) lifecycle.Snapshot
}

// Dispatcher runs surface commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request, origin string) (any, error)
}

// Options configures a Shell.
type Options struct {
	Controller Controller
	Surface    Surface
	Tray       Tray
	Window     *Window
	Commands   Dispatcher
	Menu       MenuOptions
	Logger     *zap.Logger

	// Clipboard and Open default to the system clipboard and browser.
	Clipboard func(text string) error
	Open      func(url string) error
}

// Shell keeps the tray and the displayed page in step with the server.
type Shell struct {
	opts Options
	log  *zap.Logger

	loaded string
}

// New creates a Shell.
func New(opts Options) *Shell {
	if opts.Tray == nil {
		opts.Tray = NewLogTray(opts.Logger)
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.WriteAll
	}
	if opts.Open == nil {
		opts.Open = OpenURL
	}
	return &Shell{opts: opts, log: logging.OrNop(opts.Logger)}
}

// Run follows the controller until ctx is done or the event hub closes.
// Every server transition rebuilds the tray menu; a newly started URL is
// loaded into the surface, and a failed load is reported back to the
// controller.
func (s *Shell) Run(ctx context.Context) error {
	snap, sub := s.opts.Controller.Subscribe()
	defer sub.Close()

	s.apply(ctx, snap)
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, broadcast.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if ev.Type != lifecycle.EventServerStatus || ev.State == nil {
			continue
		}
		s.apply(ctx, *ev.State)
	}
}

func (s *Shell) apply(ctx context.Context, snap lifecycle.Snapshot) {
	s.opts.Tray.SetMenu(BuildMenu(snap, s.opts.Menu))
	s.opts.Tray.SetTooltip(Tooltip(snap, s.opts.Menu))

	if snap.Status != lifecycle.StatusStarted {
		s.loaded = ""
		return
	}
	if snap.URL == s.loaded || s.opts.Surface == nil {
		return
	}

	s.loaded = snap.URL
	// The controller loads the fallback URL itself before reporting it.
	if snap.Fallback {
		return
	}
	if err := s.opts.Surface.Load(ctx, snap.URL); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("Surface failed to load server", zap.String("url", snap.URL), zap.Error(err))
		s.opts.Controller.HandleLoadFailure(ctx, snap.URL)
	}
}

// HandleAction performs a tray menu action.
func (s *Shell) HandleAction(ctx context.Context, action Action) error {
	s.log.Debug("Tray action", zap.String("action", string(action)))

	switch action {
	case ActionShow:
		if s.opts.Window != nil {
			s.opts.Window.Show()
		}
	case ActionStart:
		if snap := s.opts.Controller.Start(ctx); snap.Status == lifecycle.StatusFailed {
			return fmt.Errorf("start server: %s", snap.LastError)
		}
	case ActionStop:
		s.opts.Controller.Stop(ctx)
	case ActionOpenURL:
		url, err := s.serverURL()
		if err != nil {
			return err
		}
		return s.opts.Open(url)
	case ActionCopyURL:
		url, err := s.serverURL()
		if err != nil {
			return err
		}
		return s.opts.Clipboard(url)
	case ActionRemove:
		if s.opts.Commands == nil {
			return errors.New("remove is not available")
		}
		_, err := s.opts.Commands.Dispatch(ctx, command.Request{Command: command.Remove}, LocalOrigin)
		return err
	case ActionQuit:
		if s.opts.Window != nil {
			s.opts.Window.Quit(ctx)
		} else {
			s.opts.Controller.Stop(ctx)
		}
	case ActionNone:
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return nil
}

func (s *Shell) serverURL() (string, error) {
	snap := s.opts.Controller.Query()
	if snap.Status != lifecycle.StatusStarted || snap.URL == "" {
		return "", ErrNoServerURL
	}
	return snap.URL, nil
}

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/broadcast"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/DeskShell/backend/internal/shared/id"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrLaunchFailure wraps every error returned by the launcher.
	ErrLaunchFailure = errors.New("launch failure")
	// ErrFallbackExhausted means the external endpoint and the local
	// fallback both failed to load.
	ErrFallbackExhausted = errors.New("fallback exhausted")
)

// Launcher starts and stops the backend process.
type Launcher interface {
	// Start launches the backend and returns its reachable address.
	Start(ctx context.Context) (string, error)
	// Stop is idempotent and never fails.
	Stop(ctx context.Context)
}

// ExitNotifier is implemented by launchers that report unexpected exits.
// Exited returns a channel for the process started by the last successful
// Start, or nil when nothing is running.
type ExitNotifier interface {
	Exited() <-chan error
}

// Loader loads an address in the main surface.
type Loader interface {
	Load(ctx context.Context, url string) error
}

// Recorder receives lifecycle metrics.
type Recorder interface {
	RecordTransition(status string)
	RecordLaunch(d time.Duration, err error)
}

// Options configures a Controller.
type Options struct {
	Launcher Launcher
	// Loader is used for the local fallback. Without one, a failed
	// external load goes straight to Failed.
	Loader Loader
	Events *broadcast.Hub[Event]
	Logs   *broadcast.Hub[string]
	Logger *zap.Logger

	Metrics Recorder

	// External starts the controller as Started on ExternalURL.
	External    bool
	ExternalURL string
	FallbackURL string

	// StartTimeout bounds a launcher start. Zero waits indefinitely.
	StartTimeout time.Duration
}

// Controller owns the server state and is its only writer.
type Controller struct {
	opts   Options
	log    *zap.Logger
	events *broadcast.Hub[Event]
	logs   *broadcast.Hub[string]

	state  atomic.Pointer[Snapshot]
	flight singleflight.Group

	// mu serializes transitions with their broadcast. It is never held
	// across a launcher or loader call.
	mu            sync.Mutex
	epoch         uint64
	fallbackTried bool
	// fallingBack is set while the fallback for fallbackEpoch is loading.
	fallingBack   bool
	fallbackEpoch uint64
}

// NewController creates a controller in its initial state.
func NewController(opts Options) *Controller {
	if opts.Events == nil {
		opts.Events = broadcast.NewHub[Event]("events", broadcast.Options{Logger: opts.Logger})
	}
	if opts.Logs == nil {
		opts.Logs = broadcast.NewHub[string]("logs", broadcast.Options{Logger: opts.Logger})
	}

	c := &Controller{
		opts:   opts,
		log:    logging.OrNop(opts.Logger),
		events: opts.Events,
		logs:   opts.Logs,
	}

	initial := &Snapshot{Status: StatusStopped, UpdatedAt: time.Now()}
	if opts.External && opts.ExternalURL != "" {
		initial.Status = StatusStarted
		initial.URL = NormalizeURL(opts.ExternalURL)
	}
	c.state.Store(initial)
	return c
}

// Events returns the hub that carries lifecycle events.
func (c *Controller) Events() *broadcast.Hub[Event] {
	return c.events
}

// Logs returns the hub that carries log lines.
func (c *Controller) Logs() *broadcast.Hub[string] {
	return c.logs
}

// External reports whether the controller runs against an external endpoint.
func (c *Controller) External() bool {
	return c.opts.External
}

// Query returns the current snapshot without blocking.
func (c *Controller) Query() Snapshot {
	return *c.state.Load()
}

// Subscribe returns the current snapshot together with a subscription
// that receives every event published after it.
func (c *Controller) Subscribe() (Snapshot, *broadcast.Subscription[Event]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Query(), c.events.Subscribe()
}

// Start launches the backend unless it is already starting or started.
// Concurrent callers share one launcher attempt and its outcome. An
// attempt superseded by Stop is never joined. The caller's cancellation
// does not abort the launch.
func (c *Controller) Start(ctx context.Context) Snapshot {
	c.mu.Lock()
	cur := c.Query()
	switch cur.Status {
	case StatusStarted:
		c.mu.Unlock()
		return cur
	case StatusStarting:
	default:
		c.epoch++
		c.transition(Snapshot{Status: StatusStarting})
	}
	// Starting always belongs to the current epoch, whose flight is
	// registered under c.mu before anyone can observe it.
	epoch := c.epoch
	ch := c.flight.DoChan(strconv.FormatUint(epoch, 10), func() (any, error) {
		return c.launch(context.WithoutCancel(ctx), epoch), nil
	})
	c.mu.Unlock()

	res := <-ch
	return res.Val.(Snapshot)
}

// launch runs the launcher for the attempt that moved to Starting at epoch.
func (c *Controller) launch(ctx context.Context, epoch uint64) Snapshot {
	attempt := id.NewAttemptID()
	log := c.log.With(zap.String("attempt", attempt.String()))
	log.Info("Starting backend")

	launchCtx := ctx
	if c.opts.StartTimeout > 0 {
		var cancel context.CancelFunc
		launchCtx, cancel = context.WithTimeout(ctx, c.opts.StartTimeout)
		defer cancel()
	}

	began := time.Now()
	addr, err := c.opts.Launcher.Start(launchCtx)
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordLaunch(time.Since(began), err)
	}
	if err == nil && addr == "" {
		err = errors.New("launcher returned an empty address")
	}

	c.mu.Lock()
	if c.epoch != epoch {
		cur := c.Query()
		c.mu.Unlock()
		log.Info("Discarding superseded start", zap.Error(err))
		// A newer attempt owns the launcher once it is starting.
		if err == nil && (cur.Status == StatusStopped || cur.Status == StatusFailed) {
			c.opts.Launcher.Stop(ctx)
		}
		return cur
	}

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrLaunchFailure, err)
		snap := c.transition(Snapshot{Status: StatusFailed, LastError: err.Error()})
		c.logs.Publish("Failed to start server: " + err.Error())
		c.mu.Unlock()
		log.Error("Backend failed to start", zap.Error(err))
		return snap
	}

	c.fallbackTried = false
	snap := c.transition(Snapshot{Status: StatusStarted, URL: NormalizeURL(addr)})
	c.watchExit(epoch)
	c.mu.Unlock()

	log.Info("Backend started", zap.String("url", snap.URL), zap.Duration("took", time.Since(began)))
	return snap
}

// Stop stops the backend and always ends in Stopped, broadcasting even
// when it was already stopped. An in-flight start is superseded.
func (c *Controller) Stop(ctx context.Context) Snapshot {
	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()

	c.opts.Launcher.Stop(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	snap := c.transition(Snapshot{Status: StatusStopped})
	c.log.Info("Backend stopped")
	return snap
}

// HandleLoadFailure reacts to the surface failing to load failedURL. A
// failed external endpoint is replaced by the local fallback once per load
// attempt. Any other failure of the current URL ends in Failed.
func (c *Controller) HandleLoadFailure(ctx context.Context, failedURL string) Snapshot {
	failed := NormalizeURL(failedURL)

	c.mu.Lock()
	cur := c.Query()
	if cur.Status != StatusStarted || cur.URL != failed {
		c.mu.Unlock()
		c.log.Debug("Ignoring stale load failure", zap.String("url", failedURL), zap.String("current", cur.URL))
		return cur
	}

	external := NormalizeURL(c.opts.ExternalURL)
	if c.fallingBack && c.fallbackEpoch == c.epoch && failed == external {
		c.mu.Unlock()
		c.log.Debug("Fallback already loading", zap.String("url", failedURL))
		return cur
	}
	canFallback := c.opts.External && c.opts.Loader != nil && c.opts.FallbackURL != "" &&
		!cur.Fallback && failed == external && !c.fallbackTried

	if !canFallback {
		if !c.opts.External {
			c.mu.Unlock()
			c.log.Warn("Backend page failed to load", zap.String("url", failedURL))
			return cur
		}
		err := fmt.Errorf("%w: %s", ErrFallbackExhausted, failedURL)
		snap := c.transition(Snapshot{Status: StatusFailed, LastError: err.Error(), LoadFailed: true})
		c.logs.Publish("Failed to load server: " + failedURL)
		c.mu.Unlock()
		c.log.Error("Server failed to load", zap.Error(err))
		return snap
	}

	// The state stays Started on the external URL while the fallback loads.
	c.fallbackTried = true
	c.fallingBack = true
	epoch := c.epoch
	c.fallbackEpoch = epoch
	c.mu.Unlock()

	fallback := NormalizeURL(c.opts.FallbackURL)
	c.log.Warn("External server failed to load, trying fallback",
		zap.String("external", failedURL), zap.String("fallback", fallback))
	err := c.opts.Loader.Load(context.WithoutCancel(ctx), fallback)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fallbackEpoch == epoch {
		c.fallingBack = false
	}
	if cur := c.Query(); c.epoch != epoch || cur.Status != StatusStarted || cur.URL != failed {
		return cur
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrFallbackExhausted, err)
		c.logs.Publish("Failed to load server: " + err.Error())
		c.log.Error("Fallback failed to load", zap.Error(err))
		return c.transition(Snapshot{Status: StatusFailed, LastError: err.Error(), LoadFailed: true})
	}
	return c.transition(Snapshot{Status: StatusStarted, URL: fallback, Fallback: true})
}

// PublishInstallStatus broadcasts the install state in order with
// lifecycle transitions.
func (c *Controller) PublishInstallStatus(installed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events.Publish(Event{Type: EventInstallStatus, Data: installed})
}

// Log publishes a line on the log channel.
func (c *Controller) Log(line string) {
	c.logs.Publish(line)
}

// transition stores next as the current state and broadcasts it.
// Callers hold c.mu.
func (c *Controller) transition(next Snapshot) Snapshot {
	prev := c.state.Load()

	if next.Status != StatusStarted {
		next.URL = ""
		next.Fallback = false
	} else if next.URL == "" {
		c.log.DPanic("Started without a URL")
		next.Status = StatusFailed
		next.LastError = ErrLaunchFailure.Error()
	}
	if next.Status != StatusFailed {
		next.LastError = ""
		next.LoadFailed = false
	}
	next.Seq = prev.Seq + 1
	next.UpdatedAt = time.Now()

	c.state.Store(&next)

	snap := next
	c.events.Publish(Event{Type: EventServerStatus, Data: string(next.Status), State: &snap})
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordTransition(string(next.Status))
	}

	c.log.Debug("Server state changed",
		zap.String("from", string(prev.Status)),
		zap.String("to", string(next.Status)),
		zap.Uint64("seq", next.Seq))
	return next
}

// watchExit moves a Started backend to Stopped if its process exits on its
// own. Callers hold c.mu.
func (c *Controller) watchExit(epoch uint64) {
	n, ok := c.opts.Launcher.(ExitNotifier)
	if !ok {
		return
	}
	exited := n.Exited()
	if exited == nil {
		return
	}

	go func() {
		err := <-exited

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.epoch != epoch || c.Query().Status != StatusStarted {
			return
		}
		c.epoch++
		c.transition(Snapshot{Status: StatusStopped})

		line := "Server exited unexpectedly"
		if err != nil {
			line += ": " + err.Error()
		}
		c.logs.Publish(line)
		c.log.Warn("Backend exited unexpectedly", zap.Error(err))
	}()
}

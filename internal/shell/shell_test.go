package shell

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/command"
	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubLauncher struct{ url string }

func (l stubLauncher) Start(context.Context) (string, error) { return l.url, nil }
func (l stubLauncher) Stop(context.Context)                  {}

// fakeSurface fails to load any URL in failing.
type fakeSurface struct {
	mu      sync.Mutex
	failing map[string]bool
	loads   []string
}

func (s *fakeSurface) Load(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = append(s.loads, url)
	if s.failing[url] {
		return errors.New("connection refused")
	}
	return nil
}

func (s *fakeSurface) Loads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.loads...)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req command.Request, origin string) (any, error) {
	args := m.Called(req.Command, origin)
	return args.Get(0), args.Error(1)
}

func runShell(t *testing.T, s *Shell) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Run did not return")
		}
	})
}

func statusLabel(tray *LogTray) string {
	menu := tray.Menu()
	if len(menu) < 3 {
		return ""
	}
	return menu[2].Label
}

func TestRunLoadsStartedURL(t *testing.T) {
	ctrl := lifecycle.NewController(lifecycle.Options{Launcher: stubLauncher{url: "http://0.0.0.0:8080"}})
	surface := &fakeSurface{}
	tray := NewLogTray(nil)

	runShell(t, New(Options{
		Controller: ctrl,
		Surface:    surface,
		Tray:       tray,
		Menu:       MenuOptions{AppName: "Open WebUI"},
	}))

	require.Eventually(t, func() bool { return statusLabel(tray) == "Open WebUI: Stopped" }, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, surface.Loads())

	ctrl.Start(context.Background())

	require.Eventually(t, func() bool { return statusLabel(tray) == "Open WebUI: Running on port 8080" }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(surface.Loads()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"http://localhost:8080"}, surface.Loads())
	assert.Equal(t, "Open WebUI is running on http://localhost:8080", tray.Tooltip())

	// A restart on the same URL loads it again.
	ctrl.Stop(context.Background())
	ctrl.Start(context.Background())
	require.Eventually(t, func() bool { return len(surface.Loads()) == 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestRunFallsBackWhenExternalFails(t *testing.T) {
	surface := &fakeSurface{failing: map[string]bool{"https://webui.example.com": true}}
	ctrl := lifecycle.NewController(lifecycle.Options{
		Launcher:    stubLauncher{url: "https://webui.example.com"},
		Loader:      surface,
		External:    true,
		ExternalURL: "https://webui.example.com",
		FallbackURL: "http://localhost:8080",
	})
	tray := NewLogTray(nil)

	runShell(t, New(Options{
		Controller: ctrl,
		Surface:    surface,
		Tray:       tray,
		Menu:       MenuOptions{AppName: "Open WebUI", External: true},
	}))

	require.Eventually(t, func() bool {
		return statusLabel(tray) == "Open WebUI: Fallback on http://localhost:8080"
	}, 5*time.Second, 10*time.Millisecond)

	snap := ctrl.Query()
	assert.Equal(t, lifecycle.StatusStarted, snap.Status)
	assert.True(t, snap.Fallback)
	// The fallback label is applied after the controller's own load.
	assert.Equal(t, []string{"https://webui.example.com", "http://localhost:8080"}, surface.Loads())
}

func TestRunFailsWhenFallbackFails(t *testing.T) {
	surface := &fakeSurface{failing: map[string]bool{
		"https://webui.example.com": true,
		"http://localhost:8080":     true,
	}}
	ctrl := lifecycle.NewController(lifecycle.Options{
		Launcher:    stubLauncher{url: "https://webui.example.com"},
		Loader:      surface,
		External:    true,
		ExternalURL: "https://webui.example.com",
		FallbackURL: "http://localhost:8080",
	})
	tray := NewLogTray(nil)

	runShell(t, New(Options{Controller: ctrl, Surface: surface, Tray: tray, Menu: MenuOptions{AppName: "Open WebUI", External: true}}))

	require.Eventually(t, func() bool {
		return statusLabel(tray) == "Open WebUI: Failed to load server"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, lifecycle.StatusFailed, ctrl.Query().Status)
}

func TestRunReturnsWhenHubCloses(t *testing.T) {
	ctrl := lifecycle.NewController(lifecycle.Options{Launcher: stubLauncher{url: "http://localhost:8080"}})
	s := New(Options{Controller: ctrl, Tray: NewLogTray(nil)})

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	require.Eventually(t, func() bool { return ctrl.Events().Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	ctrl.Events().Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestHandleAction(t *testing.T) {
	ctrl := lifecycle.NewController(lifecycle.Options{Launcher: stubLauncher{url: "http://127.0.0.1:8080"}})
	window := NewWindow(ctrl, nil)
	window.Hide()

	var copied, opened string
	s := New(Options{
		Controller: ctrl,
		Window:     window,
		Tray:       NewLogTray(nil),
		Clipboard:  func(text string) error { copied = text; return nil },
		Open:       func(url string) error { opened = url; return nil },
	})
	ctx := context.Background()

	assert.ErrorIs(t, s.HandleAction(ctx, ActionCopyURL), ErrNoServerURL)
	assert.ErrorIs(t, s.HandleAction(ctx, ActionOpenURL), ErrNoServerURL)

	require.NoError(t, s.HandleAction(ctx, ActionShow))
	assert.True(t, window.Visible())

	require.NoError(t, s.HandleAction(ctx, ActionStart))
	assert.Equal(t, lifecycle.StatusStarted, ctrl.Query().Status)

	require.NoError(t, s.HandleAction(ctx, ActionCopyURL))
	assert.Equal(t, "http://127.0.0.1:8080", copied)
	require.NoError(t, s.HandleAction(ctx, ActionOpenURL))
	assert.Equal(t, "http://127.0.0.1:8080", opened)

	require.NoError(t, s.HandleAction(ctx, ActionStop))
	assert.Equal(t, lifecycle.StatusStopped, ctrl.Query().Status)

	require.NoError(t, s.HandleAction(ctx, ActionNone))
	assert.Error(t, s.HandleAction(ctx, Action("explode")))
	assert.Error(t, s.HandleAction(ctx, ActionRemove), "no dispatcher configured")

	require.NoError(t, s.HandleAction(ctx, ActionStart))
	require.NoError(t, s.HandleAction(ctx, ActionQuit))
	assert.Equal(t, lifecycle.StatusStopped, ctrl.Query().Status)
	assert.True(t, window.Quitting())
	select {
	case <-window.Done():
	default:
		t.Fatal("quit did not finish")
	}
}

type failingLauncher struct{}

func (failingLauncher) Start(context.Context) (string, error) { return "", errors.New("exit status 1") }
func (failingLauncher) Stop(context.Context)                  {}

func TestHandleActionStartFailure(t *testing.T) {
	ctrl := lifecycle.NewController(lifecycle.Options{Launcher: failingLauncher{}})
	s := New(Options{Controller: ctrl, Tray: NewLogTray(nil)})

	err := s.HandleAction(context.Background(), ActionStart)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestHandleActionRemoveUsesLocalOrigin(t *testing.T) {
	d := new(MockDispatcher)
	d.On("Dispatch", command.Remove, LocalOrigin).Return(nil, nil)
	assert.True(t, command.TrustedOrigin(LocalOrigin))

	s := New(Options{
		Controller: lifecycle.NewController(lifecycle.Options{Launcher: stubLauncher{}}),
		Commands:   d,
		Tray:       NewLogTray(nil),
	})

	require.NoError(t, s.HandleAction(context.Background(), ActionRemove))
	d.AssertExpectations(t)
}

func TestHTTPSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSurface(httpclient.New(httpclient.Options{Timeout: time.Second}), nil)

	require.NoError(t, s.Load(context.Background(), srv.URL+"/"))
	assert.Equal(t, srv.URL+"/", s.Current())

	err := s.Load(context.Background(), srv.URL+"/down")
	assert.Error(t, err)
	assert.Equal(t, srv.URL+"/", s.Current())
}

package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/broadcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLauncher struct {
	addr string
	err  error
	gate chan struct{}

	starts atomic.Int32
	stops  atomic.Int32

	mu     sync.Mutex
	exited chan error
	ctxErr error
}

func (f *fakeLauncher) Start(ctx context.Context) (string, error) {
	f.starts.Add(1)
	f.mu.Lock()
	f.ctxErr = ctx.Err()
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.addr, nil
}

func (f *fakeLauncher) Stop(context.Context) {
	f.stops.Add(1)
}

func (f *fakeLauncher) Exited() <-chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exited == nil {
		return nil
	}
	return f.exited
}

type fakeLoader struct {
	mu    sync.Mutex
	urls  []string
	err   error
	calls int
	gate  chan struct{}
}

func (f *fakeLoader) Load(_ context.Context, url string) error {
	f.mu.Lock()
	f.calls++
	f.urls = append(f.urls, url)
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	return f.err
}

func (f *fakeLoader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecorder struct {
	mu          sync.Mutex
	transitions []string
	launches    int
}

func (r *fakeRecorder) RecordTransition(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, status)
}

func (r *fakeRecorder) RecordLaunch(time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launches++
}

func nextEvent(t *testing.T, sub *broadcast.Subscription[Event]) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	return ev
}

func statuses(t *testing.T, sub *broadcast.Subscription[Event], n int) []Status {
	t.Helper()
	out := make([]Status, 0, n)
	for i := 0; i < n; i++ {
		ev := nextEvent(t, sub)
		require.Equal(t, EventServerStatus, ev.Type)
		require.NotNil(t, ev.State)
		out = append(out, ev.State.Status)
	}
	return out
}

func assertConsistent(t *testing.T, s Snapshot) {
	t.Helper()
	assert.Equal(t, s.Status == StatusStarted, s.URL != "", "url must be set exactly when started: %+v", s)
	if s.Status != StatusFailed {
		assert.Empty(t, s.LastError)
	}
}

func TestInitialState(t *testing.T) {
	c := NewController(Options{Launcher: &fakeLauncher{}})
	snap := c.Query()
	assert.Equal(t, StatusStopped, snap.Status)
	assert.Empty(t, snap.URL)
	assert.False(t, c.External())

	ext := NewController(Options{
		Launcher:    &fakeLauncher{},
		External:    true,
		ExternalURL: "http://0.0.0.0:3000",
	})
	snap = ext.Query()
	assert.Equal(t, StatusStarted, snap.Status)
	assert.Equal(t, "http://localhost:3000", snap.URL)
	assert.True(t, ext.External())
}

func TestStartNormalizesWildcardAddress(t *testing.T) {
	launcher := &fakeLauncher{addr: "http://0.0.0.0:8080"}
	c := NewController(Options{Launcher: launcher})

	snap := c.Start(context.Background())

	assert.Equal(t, StatusStarted, snap.Status)
	assert.Equal(t, "http://localhost:8080", snap.URL)
	assert.Equal(t, snap, c.Query())
	assert.Equal(t, int32(1), launcher.starts.Load())
}

func TestStartWhenStartedIsNoop(t *testing.T) {
	launcher := &fakeLauncher{addr: "http://127.0.0.1:8080"}
	c := NewController(Options{Launcher: launcher})

	first := c.Start(context.Background())
	_, sub := c.Subscribe()
	defer sub.Close()

	second := c.Start(context.Background())

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), launcher.starts.Load())
	assert.Equal(t, 0, sub.Pending())
}

func TestConcurrentStartsLaunchOnce(t *testing.T) {
	launcher := &fakeLauncher{addr: "http://0.0.0.0:8080", gate: make(chan struct{})}
	c := NewController(Options{Launcher: launcher})

	const callers = 25
	results := make([]Snapshot, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Start(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool {
		return c.Query().Status == StatusStarting
	}, time.Second, time.Millisecond)

	// Queries stay responsive while the launch is blocked.
	assert.Equal(t, StatusStarting, c.Query().Status)

	close(launcher.gate)
	wg.Wait()

	assert.Equal(t, int32(1), launcher.starts.Load())
	for _, r := range results {
		assert.Equal(t, StatusStarted, r.Status)
		assert.Equal(t, "http://localhost:8080", r.URL)
	}
}

func TestStartFailure(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("port 8080 already in use")}
	c := NewController(Options{Launcher: launcher})

	logs := c.Logs().Subscribe()
	defer logs.Close()

	snap := c.Start(context.Background())

	assert.Equal(t, StatusFailed, snap.Status)
	assert.Empty(t, snap.URL)
	assert.Contains(t, snap.LastError, "port 8080 already in use")
	assert.Contains(t, snap.LastError, ErrLaunchFailure.Error())
	assert.False(t, snap.LoadFailed)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	line, err := logs.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Failed to start server: launch failure: port 8080 already in use", line)
}

func TestRetryAfterFailureClearsError(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("boom")}
	c := NewController(Options{Launcher: launcher})

	require.Equal(t, StatusFailed, c.Start(context.Background()).Status)

	launcher.err = nil
	launcher.addr = "http://127.0.0.1:8080"
	snap := c.Start(context.Background())

	assert.Equal(t, StatusStarted, snap.Status)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, int32(2), launcher.starts.Load())
}

func TestEmptyAddressIsFailure(t *testing.T) {
	c := NewController(Options{Launcher: &fakeLauncher{}})

	snap := c.Start(context.Background())

	assert.Equal(t, StatusFailed, snap.Status)
	assertConsistent(t, snap)
}

func TestStopIsIdempotent(t *testing.T) {
	launcher := &fakeLauncher{}
	c := NewController(Options{Launcher: launcher})

	_, sub := c.Subscribe()
	defer sub.Close()

	first := c.Stop(context.Background())
	second := c.Stop(context.Background())

	a := nextEvent(t, sub)
	b := nextEvent(t, sub)

	assert.Equal(t, a.Type, b.Type)
	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, a.State.Status, b.State.Status)
	assert.Equal(t, a.State.URL, b.State.URL)
	assert.Equal(t, a.State.LastError, b.State.LastError)
	assert.Equal(t, StatusStopped, second.Status)
	assert.Greater(t, second.Seq, first.Seq)
	assert.Equal(t, int32(2), launcher.stops.Load())
}

func TestStopClearsFailure(t *testing.T) {
	c := NewController(Options{Launcher: &fakeLauncher{err: errors.New("boom")}})
	require.Equal(t, StatusFailed, c.Start(context.Background()).Status)

	snap := c.Stop(context.Background())

	assert.Equal(t, StatusStopped, snap.Status)
	assert.Empty(t, snap.LastError)
}

func TestTransitionsBroadcastInOrder(t *testing.T) {
	rec := &fakeRecorder{}
	c := NewController(Options{Launcher: &fakeLauncher{addr: "http://0.0.0.0:8080"}, Metrics: rec})

	_, early := c.Subscribe()
	defer early.Close()

	c.Start(context.Background())

	initial, late := c.Subscribe()
	defer late.Close()
	assert.Equal(t, StatusStarted, initial.Status)

	c.Stop(context.Background())

	assert.Equal(t, []Status{StatusStarting, StatusStarted, StatusStopped}, statuses(t, early, 3))

	// The late observer starts from the first transition after joining.
	ev := nextEvent(t, late)
	assert.Equal(t, EventServerStatus, ev.Type)
	assert.Equal(t, "stopped", ev.Data)
	assert.Equal(t, initial.Seq+1, ev.State.Seq)
	assert.Equal(t, 0, late.Pending())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"starting", "started", "stopped"}, rec.transitions)
	assert.Equal(t, 1, rec.launches)
}

func TestObservedSnapshotsAreConsistent(t *testing.T) {
	launcher := &fakeLauncher{addr: "http://0.0.0.0:8080"}
	c := NewController(Options{Launcher: launcher})

	_, sub := c.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for ctx.Err() == nil {
			assertConsistent(t, c.Query())
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			c.Stop(context.Background())
		}()
	}
	wg.Wait()
	cancel()
	readers.Wait()

	var lastSeq uint64
	for sub.Pending() > 0 {
		ev := nextEvent(t, sub)
		assertConsistent(t, *ev.State)
		assert.Greater(t, ev.State.Seq, lastSeq)
		lastSeq = ev.State.Seq
	}
}

func TestStopDuringStartDiscardsLateResult(t *testing.T) {
	launcher := &fakeLauncher{addr: "http://127.0.0.1:8080", gate: make(chan struct{})}
	c := NewController(Options{Launcher: launcher})

	done := make(chan Snapshot, 1)
	go func() { done <- c.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		return c.Query().Status == StatusStarting
	}, time.Second, time.Millisecond)

	stopped := c.Stop(context.Background())
	assert.Equal(t, StatusStopped, stopped.Status)

	close(launcher.gate)
	result := <-done

	assert.Equal(t, StatusStopped, result.Status)
	assert.Equal(t, StatusStopped, c.Query().Status)
	// One stop from Stop and one for the superseded launch.
	assert.Equal(t, int32(2), launcher.stops.Load())
}

func TestStartAfterSupersededStartLaunchesAgain(t *testing.T) {
	launcher := &fakeLauncher{addr: "http://127.0.0.1:8080", gate: make(chan struct{})}
	c := NewController(Options{Launcher: launcher})

	first := make(chan Snapshot, 1)
	go func() { first <- c.Start(context.Background()) }()
	require.Eventually(t, func() bool { return launcher.starts.Load() == 1 }, time.Second, time.Millisecond)

	c.Stop(context.Background())

	second := make(chan Snapshot, 1)
	go func() { second <- c.Start(context.Background()) }()
	require.Eventually(t, func() bool { return launcher.starts.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, StatusStarting, c.Query().Status)

	close(launcher.gate)

	snap := <-second
	assert.Equal(t, StatusStarted, snap.Status)
	assert.Equal(t, "http://127.0.0.1:8080", snap.URL)
	assert.Equal(t, StatusStopped, (<-first).Status)
	assert.Equal(t, StatusStarted, c.Query().Status)
	// The superseded result does not stop the launcher the new attempt owns.
	assert.Equal(t, int32(1), launcher.stops.Load())
}

func TestStartIgnoresCallerCancellation(t *testing.T) {
	launcher := &fakeLauncher{addr: "http://127.0.0.1:8080"}
	c := NewController(Options{Launcher: launcher})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap := c.Start(ctx)

	assert.Equal(t, StatusStarted, snap.Status)
	launcher.mu.Lock()
	defer launcher.mu.Unlock()
	assert.NoError(t, launcher.ctxErr)
}

func TestStartTimeout(t *testing.T) {
	launcher := &fakeLauncher{gate: make(chan struct{})}
	defer close(launcher.gate)
	c := NewController(Options{Launcher: launcher, StartTimeout: 20 * time.Millisecond})

	snap := c.Start(context.Background())

	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.LastError, context.DeadlineExceeded.Error())
}

func TestUnexpectedExitStopsServer(t *testing.T) {
	launcher := &fakeLauncher{addr: "http://127.0.0.1:8080", exited: make(chan error, 1)}
	c := NewController(Options{Launcher: launcher})

	logs := c.Logs().Subscribe()
	defer logs.Close()

	require.Equal(t, StatusStarted, c.Start(context.Background()).Status)

	launcher.exited <- errors.New("exit status 1")

	require.Eventually(t, func() bool {
		return c.Query().Status == StatusStopped
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	line, err := logs.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Server exited unexpectedly: exit status 1", line)
}

func TestExitAfterStopIsIgnored(t *testing.T) {
	launcher := &fakeLauncher{addr: "http://127.0.0.1:8080", exited: make(chan error, 1)}
	c := NewController(Options{Launcher: launcher})

	require.Equal(t, StatusStarted, c.Start(context.Background()).Status)
	stopped := c.Stop(context.Background())

	_, sub := c.Subscribe()
	defer sub.Close()

	launcher.exited <- errors.New("signal: interrupt")
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, stopped.Seq, c.Query().Seq)
	assert.Equal(t, 0, sub.Pending())
}

func externalController(loader Loader) (*Controller, *fakeLauncher) {
	launcher := &fakeLauncher{addr: "https://webui.example.com"}
	return NewController(Options{
		Launcher:    launcher,
		Loader:      loader,
		External:    true,
		ExternalURL: "https://webui.example.com",
		FallbackURL: "http://localhost:8080",
	}), launcher
}

func TestFallbackSucceeds(t *testing.T) {
	loader := &fakeLoader{}
	c, _ := externalController(loader)

	_, sub := c.Subscribe()
	defer sub.Close()

	snap := c.HandleLoadFailure(context.Background(), "https://webui.example.com")

	assert.Equal(t, StatusStarted, snap.Status)
	assert.Equal(t, "http://localhost:8080", snap.URL)
	assert.True(t, snap.Fallback)
	assert.Equal(t, []string{"http://localhost:8080"}, loader.urls)
	assert.Equal(t, []Status{StatusStarted}, statuses(t, sub, 1))

	// The fallback failing too is terminal; there is no third attempt.
	snap = c.HandleLoadFailure(context.Background(), "http://localhost:8080")
	assert.Equal(t, StatusFailed, snap.Status)
	assert.True(t, snap.LoadFailed)
	assert.Contains(t, snap.LastError, ErrFallbackExhausted.Error())
	assert.Equal(t, 1, loader.calls)
}

func TestFallbackKeepsStartedWhileLoading(t *testing.T) {
	loader := &fakeLoader{gate: make(chan struct{})}
	c, _ := externalController(loader)

	_, sub := c.Subscribe()
	defer sub.Close()

	done := make(chan Snapshot, 1)
	go func() { done <- c.HandleLoadFailure(context.Background(), "https://webui.example.com") }()
	require.Eventually(t, func() bool { return loader.Calls() == 1 }, time.Second, time.Millisecond)

	cur := c.Query()
	assert.Equal(t, StatusStarted, cur.Status)
	assert.Equal(t, "https://webui.example.com", cur.URL)
	assert.Equal(t, 0, sub.Pending())

	// A repeated report of the same failure joins the running fallback.
	dup := c.HandleLoadFailure(context.Background(), "https://webui.example.com")
	assert.Equal(t, StatusStarted, dup.Status)
	assert.Equal(t, "https://webui.example.com", dup.URL)

	close(loader.gate)
	snap := <-done

	assert.Equal(t, StatusStarted, snap.Status)
	assert.Equal(t, "http://localhost:8080", snap.URL)
	assert.True(t, snap.Fallback)
	assert.Equal(t, []Status{StatusStarted}, statuses(t, sub, 1))
	assert.Equal(t, 1, loader.Calls())
}

func TestStopDuringFallbackDiscardsResult(t *testing.T) {
	loader := &fakeLoader{gate: make(chan struct{})}
	c, _ := externalController(loader)

	done := make(chan Snapshot, 1)
	go func() { done <- c.HandleLoadFailure(context.Background(), "https://webui.example.com") }()
	require.Eventually(t, func() bool { return loader.Calls() == 1 }, time.Second, time.Millisecond)

	c.Stop(context.Background())
	close(loader.gate)

	assert.Equal(t, StatusStopped, (<-done).Status)
	assert.Equal(t, StatusStopped, c.Query().Status)
}

func TestFallbackAttemptedExactlyOnce(t *testing.T) {
	loader := &fakeLoader{err: errors.New("connection refused")}
	c, _ := externalController(loader)

	snap := c.HandleLoadFailure(context.Background(), "https://webui.example.com")

	assert.Equal(t, StatusFailed, snap.Status)
	assert.True(t, snap.LoadFailed)
	assert.Contains(t, snap.LastError, "connection refused")
	assertConsistent(t, snap)

	snap = c.HandleLoadFailure(context.Background(), "https://webui.example.com")
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, 1, loader.calls)
}

func TestFallbackBudgetResetsOnStart(t *testing.T) {
	loader := &fakeLoader{err: errors.New("connection refused")}
	c, launcher := externalController(loader)

	c.HandleLoadFailure(context.Background(), "https://webui.example.com")
	require.Equal(t, StatusFailed, c.Query().Status)

	snap := c.Start(context.Background())
	require.Equal(t, StatusStarted, snap.Status)
	assert.Equal(t, "https://webui.example.com", snap.URL)
	assert.Equal(t, int32(1), launcher.starts.Load())

	c.HandleLoadFailure(context.Background(), "https://webui.example.com")
	assert.Equal(t, 2, loader.calls)
}

func TestStaleLoadFailureIgnored(t *testing.T) {
	loader := &fakeLoader{}
	c, _ := externalController(loader)

	before := c.Query()
	snap := c.HandleLoadFailure(context.Background(), "http://elsewhere:9999")

	assert.Equal(t, before, snap)
	assert.Equal(t, 0, loader.calls)
}

func TestLocalLoadFailureKeepsState(t *testing.T) {
	loader := &fakeLoader{}
	c := NewController(Options{Launcher: &fakeLauncher{addr: "http://0.0.0.0:8080"}, Loader: loader})
	started := c.Start(context.Background())

	snap := c.HandleLoadFailure(context.Background(), "http://0.0.0.0:8080")

	assert.Equal(t, started, snap)
	assert.Equal(t, 0, loader.calls)
}

func TestPublishInstallStatus(t *testing.T) {
	c := NewController(Options{Launcher: &fakeLauncher{}})
	_, sub := c.Subscribe()
	defer sub.Close()

	c.PublishInstallStatus(true)

	ev := nextEvent(t, sub)
	assert.Equal(t, EventInstallStatus, ev.Type)
	assert.Equal(t, true, ev.Data)
	assert.Nil(t, ev.State)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://0.0.0.0:8080", "http://localhost:8080"},
		{"http://[::]:8080", "http://localhost:8080"},
		{"http://0.0.0.0", "http://localhost"},
		{"http://0.0.0.0:8080/c/abc", "http://localhost:8080/c/abc"},
		{"http://127.0.0.1:8080", "http://127.0.0.1:8080"},
		{"https://webui.example.com", "https://webui.example.com"},
		{"not a url", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestSnapshotPort(t *testing.T) {
	assert.Equal(t, "8080", Snapshot{Status: StatusStarted, URL: "http://localhost:8080"}.Port())
	assert.Equal(t, "", Snapshot{Status: StatusStopped}.Port())
}

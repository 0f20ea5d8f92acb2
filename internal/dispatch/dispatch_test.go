// dispatch_test.go tests single-flight execution per path and the trailing
// rerun policy, using a controllable fake handler.
package dispatch

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewatch/codewatch/internal/handlers"
	"github.com/codewatch/codewatch/internal/history"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeHandler counts executions and can be told to block until released.
type fakeHandler struct {
	executions atomic.Int64
	inflight   atomic.Int64
	maxSeen    atomic.Int64
	block      chan struct{} // nil means run instantly
}

func (f *fakeHandler) Execute(ctx context.Context, path string) *handlers.ExecutionResult {
	cur := f.inflight.Add(1)
	defer f.inflight.Add(-1)

	// Track the highest concurrency observed for this handler
	for {
		prev := f.maxSeen.Load()
		if cur <= prev || f.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}

	f.executions.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}

	exit := 0
	return &handlers.ExecutionResult{
		FilePath:  path,
		Success:   true,
		Output:    "ok",
		Duration:  time.Millisecond,
		Timestamp: time.Now().UTC(),
		ExitCode:  &exit,
	}
}

func (f *fakeHandler) Name() string      { return "Fake" }
func (f *fakeHandler) Extension() string { return "py" }

func newTestDispatcher(t *testing.T, h handlers.Handler, onResult ResultFunc) (*Dispatcher, *history.Store) {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := handlers.NewRegistry()
	reg.Register("py", h)

	return New(reg, store, nopLogger(), onResult), store
}

func TestDispatcher_UnsupportedExtension(t *testing.T) {
	d, store := newTestDispatcher(t, &fakeHandler{}, nil)

	_, err := d.ExecuteNow(context.Background(), "/w/s/readme.txt")
	require.ErrorIs(t, err, handlers.ErrUnsupportedExtension)

	// Unsupported input is not a recorded execution attempt
	count, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDispatcher_RecordsExecution(t *testing.T) {
	d, store := newTestDispatcher(t, &fakeHandler{}, nil)

	res, err := d.ExecuteNow(context.Background(), "/w/s1/a.py")
	require.NoError(t, err)
	assert.True(t, res.Success)

	records, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "/w/s1/a.py", records[0].FilePath)
	assert.Equal(t, "s1", records[0].Section)
	assert.True(t, records[0].Success)
}

func TestDispatcher_SingleFlight(t *testing.T) {
	h := &fakeHandler{block: make(chan struct{})}

	var mu sync.Mutex
	var results []*handlers.ExecutionResult
	d, _ := newTestDispatcher(t, h, func(r *handlers.ExecutionResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	ctx := context.Background()
	path := "/w/s/a.py"

	// First dispatch starts running and blocks
	d.Dispatch(ctx, path)
	require.Eventually(t, func() bool { return d.InFlight(path) },
		time.Second, 5*time.Millisecond)

	// Three more signals while running: one trailing rerun, the rest no-ops
	d.Dispatch(ctx, path)
	d.Dispatch(ctx, path)
	d.Dispatch(ctx, path)

	// Release both the first run and the trailing rerun
	close(h.block)

	require.Eventually(t, func() bool { return !d.InFlight(path) },
		2*time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(2), h.executions.Load(),
		"mid-run saves must produce exactly one trailing rerun")
	assert.Equal(t, int64(1), h.maxSeen.Load(),
		"at most one execution in flight per path")

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, results, 2)
}

func TestDispatcher_DistinctPathsRunInParallel(t *testing.T) {
	h := &fakeHandler{block: make(chan struct{})}
	d, _ := newTestDispatcher(t, h, nil)

	ctx := context.Background()
	d.Dispatch(ctx, "/w/s/a.py")
	d.Dispatch(ctx, "/w/s/b.py")

	require.Eventually(t, func() bool { return h.inflight.Load() == 2 },
		time.Second, 5*time.Millisecond)

	close(h.block)
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestDispatcher_UnsupportedDuringWatch(t *testing.T) {
	var mu sync.Mutex
	var results []*handlers.ExecutionResult
	d, store := newTestDispatcher(t, &fakeHandler{}, func(r *handlers.ExecutionResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	d.Dispatch(context.Background(), "/w/s/notes.txt")
	require.NoError(t, d.Shutdown(context.Background()))

	mu.Lock()
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].ErrorMessage, "unsupported file extension")
	assert.False(t, results[0].Timestamp.IsZero(),
		"delivered results must carry a timestamp")
	mu.Unlock()

	count, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDispatcher_ShutdownWaitsForInFlight(t *testing.T) {
	h := &fakeHandler{block: make(chan struct{})}
	d, _ := newTestDispatcher(t, h, nil)

	d.Dispatch(context.Background(), "/w/s/a.py")
	require.Eventually(t, func() bool { return h.inflight.Load() == 1 },
		time.Second, 5*time.Millisecond)

	t.Run("deadline expires while running", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		assert.Error(t, d.Shutdown(ctx))
	})

	t.Run("returns once executions finish", func(t *testing.T) {
		close(h.block)
		assert.NoError(t, d.Shutdown(context.Background()))
	})
}

// session_test.go exercises the full pipeline end to end: real files on
// disk, real interpreters, a real bbolt store.
package session

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewatch/codewatch/internal/config"
	"github.com/codewatch/codewatch/internal/handlers"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T) *Session {
	t.Helper()

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	cfg.DatabasePath = filepath.Join(t.TempDir(), "history.db")

	sess, err := New(cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	return path
}

func TestNew_RegistersDefaultHandlers(t *testing.T) {
	sess := newTestSession(t)
	assert.Equal(t, []string{"go", "py", "sh"}, sess.Extensions())
}

func TestExecuteOnce_RecordsOutcome(t *testing.T) {
	sess := newTestSession(t)
	script := writeScript(t, t.TempDir(), "hello.sh", "#!/bin/bash\necho hi\n")

	res, err := sess.ExecuteOnce(context.Background(), script)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Output, "hi")

	recs, err := sess.History(10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, script, recs[0].FilePath)
	assert.True(t, recs[0].Success)
}

func TestExecuteOnce_UnsupportedExtension(t *testing.T) {
	sess := newTestSession(t)
	path := writeScript(t, t.TempDir(), "notes.txt", "plain text\n")

	_, err := sess.ExecuteOnce(context.Background(), path)
	require.ErrorIs(t, err, handlers.ErrUnsupportedExtension)

	recs, err := sess.History(10)
	require.NoError(t, err)
	assert.Empty(t, recs, "unsupported files must not be recorded")
}

func TestStartWatch_ExecutesOnSave(t *testing.T) {
	sess := newTestSession(t)
	root := t.TempDir()

	results := make(chan *handlers.ExecutionResult, 8)
	handle, err := sess.StartWatch(context.Background(), root, func(r *handlers.ExecutionResult) {
		results <- r
	})
	require.NoError(t, err)
	defer handle.Stop()

	// Give the watcher a moment to establish watches before writing
	time.Sleep(100 * time.Millisecond)
	script := writeScript(t, root, "run.sh", "#!/bin/bash\necho watched\n")

	select {
	case res := <-results:
		assert.Equal(t, script, res.FilePath)
		assert.True(t, res.Success)
		assert.Contains(t, res.Output, "watched")
	case <-time.After(5 * time.Second):
		t.Fatal("no execution result within deadline")
	}

	recs, err := sess.History(10)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, script, recs[0].FilePath)
}

func TestStartWatch_IgnoresUnsupportedFiles(t *testing.T) {
	sess := newTestSession(t)
	root := t.TempDir()

	results := make(chan *handlers.ExecutionResult, 8)
	handle, err := sess.StartWatch(context.Background(), root, func(r *handlers.ExecutionResult) {
		results <- r
	})
	require.NoError(t, err)
	defer handle.Stop()

	time.Sleep(100 * time.Millisecond)
	writeScript(t, root, "README.md", "# notes\n")

	select {
	case res := <-results:
		t.Fatalf("unexpected execution of %s", res.FilePath)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestStartWatch_SecondWatchRejected(t *testing.T) {
	sess := newTestSession(t)
	root := t.TempDir()

	handle, err := sess.StartWatch(context.Background(), root, nil)
	require.NoError(t, err)

	_, err = sess.StartWatch(context.Background(), root, nil)
	assert.Error(t, err)

	require.NoError(t, handle.Stop())

	// Stopping frees the slot for a new watch
	handle2, err := sess.StartWatch(context.Background(), root, nil)
	require.NoError(t, err)
	require.NoError(t, handle2.Stop())
}

func TestStartWatch_InvalidRoot(t *testing.T) {
	sess := newTestSession(t)

	_, err := sess.StartWatch(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)

	// The failed start must not leave the session stuck in watching state
	handle, err := sess.StartWatch(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, handle.Stop())
}

func TestHandle_StopLetsInFlightRunFinish(t *testing.T) {
	sess := newTestSession(t)
	root := t.TempDir()

	results := make(chan *handlers.ExecutionResult, 4)
	handle, err := sess.StartWatch(context.Background(), root, func(r *handlers.ExecutionResult) {
		results <- r
	})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	writeScript(t, root, "slow.sh", "#!/bin/bash\nsleep 1\necho finished\n")

	// Let the debounce fire and the run get underway, then stop mid-run
	time.Sleep(400 * time.Millisecond)
	start := time.Now()
	require.NoError(t, handle.Stop())
	assert.Less(t, time.Since(start), stopGrace)

	select {
	case res := <-results:
		assert.True(t, res.Success, "a run in flight at Stop must complete, not be killed: %s", res.ErrorMessage)
		assert.Contains(t, res.Output, "finished")
	case <-time.After(time.Second):
		t.Fatal("no result delivered for the in-flight run")
	}

	recs, err := sess.History(10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Success)
}

func TestHandle_StopIsIdempotent(t *testing.T) {
	sess := newTestSession(t)

	handle, err := sess.StartWatch(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, handle.Stop())
	require.NoError(t, handle.Stop())
}

func TestSections(t *testing.T) {
	sess := newTestSession(t)
	root := t.TempDir()

	basics := filepath.Join(root, "basics")
	require.NoError(t, os.Mkdir(basics, 0o755))
	writeScript(t, basics, "one.py", "print(1)\n")

	empty := filepath.Join(root, "drafts")
	require.NoError(t, os.Mkdir(empty, 0o755))
	writeScript(t, empty, "notes.txt", "nothing runnable\n")

	hidden := filepath.Join(root, ".cache")
	require.NoError(t, os.Mkdir(hidden, 0o755))
	writeScript(t, hidden, "x.sh", "echo no\n")

	// Nested supported files still count for the top-level section
	advanced := filepath.Join(root, "advanced", "nested")
	require.NoError(t, os.MkdirAll(advanced, 0o755))
	writeScript(t, advanced, "deep.go", "package main\nfunc main() {}\n")

	sections, err := sess.Sections(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"advanced", "basics"}, sections)
}

func TestSectionHistoryAndStats(t *testing.T) {
	sess := newTestSession(t)
	root := t.TempDir()

	basics := filepath.Join(root, "basics")
	require.NoError(t, os.Mkdir(basics, 0o755))
	ok := writeScript(t, basics, "ok.sh", "#!/bin/bash\nexit 0\n")
	bad := writeScript(t, basics, "bad.sh", "#!/bin/bash\nexit 1\n")

	advanced := filepath.Join(root, "advanced")
	require.NoError(t, os.Mkdir(advanced, 0o755))
	other := writeScript(t, advanced, "other.sh", "#!/bin/bash\nexit 0\n")

	for _, script := range []string{ok, bad, other} {
		_, err := sess.ExecuteOnce(context.Background(), script)
		require.NoError(t, err)
	}

	recs, err := sess.SectionHistory("basics", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, "basics", rec.Section)
	}

	stats, err := sess.SectionStats("basics")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.TotalExecutions)
	assert.Equal(t, uint64(1), stats.SuccessfulExecutions)
	assert.Equal(t, uint64(1), stats.FailedExecutions)
}

func TestClearHistory(t *testing.T) {
	sess := newTestSession(t)
	dir := t.TempDir()

	for i := 0; i < 3; i++ {
		script := writeScript(t, dir, "ok.sh", "#!/bin/bash\nexit 0\n")
		_, err := sess.ExecuteOnce(context.Background(), script)
		require.NoError(t, err)
	}

	deleted, err := sess.ClearHistory()
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	recs, err := sess.History(10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStats_AfterMixedRuns(t *testing.T) {
	sess := newTestSession(t)
	dir := t.TempDir()

	ok := writeScript(t, dir, "ok.sh", "#!/bin/bash\nexit 0\n")
	bad := writeScript(t, dir, "bad.sh", "#!/bin/bash\nexit 3\n")

	_, err := sess.ExecuteOnce(context.Background(), ok)
	require.NoError(t, err)
	_, err = sess.ExecuteOnce(context.Background(), ok)
	require.NoError(t, err)
	_, err = sess.ExecuteOnce(context.Background(), bad)
	require.NoError(t, err)

	stats, err := sess.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.TotalExecutions)
	assert.Equal(t, uint64(2), stats.SuccessfulExecutions)
	assert.Equal(t, uint64(1), stats.FailedExecutions)
	assert.Equal(t, ok, stats.MostExecutedFile)
	require.NotNil(t, stats.LastExecution)
}

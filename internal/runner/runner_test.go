// runner_test.go tests subprocess execution: exit codes, output capture,
// the output cap, timeout enforcement, and launch failures.
package runner

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// nopLogger returns a logger that discards all output, suitable for tests.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_Success(t *testing.T) {
	r := New(nopLogger())

	result, err := r.Run(context.Background(), "sh", []string{"-c", "echo hello"}, 10*time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Output, "hello") {
		t.Errorf("expected output to contain 'hello', got: %q", result.Output)
	}
	if result.TimedOut {
		t.Error("expected TimedOut to be false")
	}
	if result.Duration <= 0 {
		t.Error("expected positive duration")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := New(nopLogger())

	result, err := r.Run(context.Background(), "sh", []string{"-c", "echo oops >&2; exit 3"}, 10*time.Second)
	if err != nil {
		t.Fatalf("non-zero exit should not be a launch error: %v", err)
	}

	if result.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Output, "oops") {
		t.Errorf("expected stderr captured in combined output, got: %q", result.Output)
	}
}

func TestRun_CombinedOutputOrder(t *testing.T) {
	r := New(nopLogger())

	result, err := r.Run(context.Background(), "sh",
		[]string{"-c", "echo out; echo err >&2"}, 10*time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !strings.Contains(result.Output, "out") || !strings.Contains(result.Output, "err") {
		t.Errorf("expected both streams in combined output, got: %q", result.Output)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := New(nopLogger())

	timeout := 500 * time.Millisecond
	start := time.Now()
	result, err := r.Run(context.Background(), "sleep", []string{"30"}, timeout)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("timeout should not be a launch error: %v", err)
	}
	if !result.TimedOut {
		t.Fatal("expected TimedOut to be true")
	}
	if result.ExitCode != -1 {
		t.Errorf("expected exit code -1 on timeout, got %d", result.ExitCode)
	}
	// Duration should be close to the timeout, not the full sleep
	if elapsed > 5*time.Second {
		t.Errorf("runner did not enforce timeout, elapsed %v", elapsed)
	}
	if result.Duration < timeout {
		t.Errorf("expected duration >= timeout, got %v", result.Duration)
	}
}

func TestRun_KillsChildProcesses(t *testing.T) {
	r := New(nopLogger())

	// The shell spawns a grandchild; the whole group must die on timeout,
	// not just the shell.
	start := time.Now()
	result, err := r.Run(context.Background(), "sh",
		[]string{"-c", "sleep 30 & wait"}, 500*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected launch error: %v", err)
	}
	if !result.TimedOut {
		t.Fatal("expected timeout")
	}
	if elapsed > 10*time.Second {
		t.Errorf("grandchild kept runner alive for %v", elapsed)
	}
}

func TestRun_LaunchFailure(t *testing.T) {
	r := New(nopLogger())

	result, err := r.Run(context.Background(), "definitely-not-a-real-command-xyz", nil, 5*time.Second)
	if err == nil {
		t.Fatal("expected launch error for missing command")
	}
	if result != nil {
		t.Errorf("expected nil result on launch failure, got %+v", result)
	}
	if !strings.Contains(err.Error(), "not found in PATH") {
		t.Errorf("expected PATH resolution error, got: %v", err)
	}
}

func TestRun_ResolvesThroughCache(t *testing.T) {
	r := New(nopLogger())

	if _, err := r.Run(context.Background(), "sh", []string{"-c", "true"}, 10*time.Second); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The run above primed the cache with the resolved path
	path, err := r.Resolve("sh")
	if err != nil {
		t.Fatalf("Resolve after Run failed: %v", err)
	}
	if !strings.HasSuffix(path, "sh") {
		t.Errorf("unexpected resolved path: %s", path)
	}
}

func TestRun_OutputCap(t *testing.T) {
	r := New(nopLogger())
	r.OutputLimit = 1024

	result, err := r.Run(context.Background(), "sh",
		[]string{"-c", "yes | head -c 100000"}, 10*time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Output) > 1024 {
		t.Errorf("output exceeds cap: %d bytes", len(result.Output))
	}
	if !result.Truncated {
		t.Error("expected Truncated to be true")
	}
}

func TestCappedBuffer(t *testing.T) {
	t.Run("under limit", func(t *testing.T) {
		b := newCappedBuffer(16)
		n, err := b.Write([]byte("hello"))
		if err != nil || n != 5 {
			t.Fatalf("Write returned (%d, %v)", n, err)
		}
		if b.String() != "hello" {
			t.Errorf("got %q", b.String())
		}
		if b.Truncated() {
			t.Error("should not be truncated")
		}
	})

	t.Run("over limit reports full length", func(t *testing.T) {
		b := newCappedBuffer(4)
		n, err := b.Write([]byte("hello world"))
		if err != nil {
			t.Fatalf("Write error: %v", err)
		}
		// Must claim the full write so the pipe never stalls
		if n != 11 {
			t.Errorf("expected reported n=11, got %d", n)
		}
		if b.String() != "hell" {
			t.Errorf("expected capped content 'hell', got %q", b.String())
		}
		if !b.Truncated() {
			t.Error("expected truncated")
		}
	})
}

func TestCommandCache(t *testing.T) {
	cache := NewCommandCache()

	path1, err := cache.Resolve("sh")
	if err != nil {
		t.Fatalf("first lookup failed: %v", err)
	}
	if !strings.HasSuffix(path1, "sh") {
		t.Errorf("expected path ending in sh, got: %s", path1)
	}

	path2, err := cache.Resolve("sh")
	if err != nil {
		t.Fatalf("cached lookup failed: %v", err)
	}
	if path1 != path2 {
		t.Errorf("cache returned different paths: %s vs %s", path1, path2)
	}

	if _, err := cache.Resolve("definitely-not-a-real-command-xyz"); err == nil {
		t.Error("expected error for missing command")
	}

	if _, err := cache.Resolve(""); err == nil {
		t.Error("expected error for empty command name")
	}
}

// codewatch - Entry Point
//
// codewatch watches a directory of practice files and re-runs each file
// whenever it is saved, recording every execution in a local history
// database. It is a single-binary local tool with no network surface.
//
// Usage:
//
//	codewatch watch [-config path] [-dir path]   watch a directory and execute on save
//	codewatch run <file>                         execute one file immediately
//	codewatch history [-limit n] [-file path]    show recent executions
//	codewatch stats                              show aggregate statistics
//	codewatch sections [-dir path]               list sections with runnable files
//	codewatch clear [-force]                     delete all execution history
//	codewatch -version                           print version information
//
// Configuration is loaded from ./codewatch.yaml (or the path given with
// -config). A missing config file means defaults.
//
// Lifecycle of the watch command:
//  1. Load configuration from YAML file
//  2. Setup structured JSON logger (stderr; execution output owns stdout)
//  3. Open the history database and register language handlers
//  4. Start the watch pipeline and, if configured, the retention pruner
//  5. Wait for shutdown signal (SIGTERM/SIGINT)
//  6. Coordinated shutdown with timeout
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/codewatch/codewatch/internal/config"
	"github.com/codewatch/codewatch/internal/handlers"
	"github.com/codewatch/codewatch/internal/history"
	"github.com/codewatch/codewatch/internal/logging"
	"github.com/codewatch/codewatch/internal/retention"
	"github.com/codewatch/codewatch/internal/session"
	"github.com/codewatch/codewatch/internal/shutdown"
	"github.com/codewatch/codewatch/internal/version"
)

// Default shutdown timeout - how long to wait for graceful shutdown
const shutdownTimeout = 30 * time.Second

// defaultHistoryLimit bounds the history listing when -limit is not given.
const defaultHistoryLimit = 20

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Global flags apply before the subcommand
	global := flag.NewFlagSet("codewatch", flag.ExitOnError)
	configPath := global.String("config", config.DefaultConfigPath, "path to configuration file")
	showVersion := global.Bool("version", false, "print version information and exit")
	global.Usage = usage
	global.Parse(args)

	if *showVersion {
		fmt.Println(version.Info())
		return 0
	}

	rest := global.Args()
	if len(rest) == 0 {
		usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Use basic stderr logging before logger is configured
		fmt.Fprintf(os.Stderr, "ERROR: failed to load configuration from %s: %v\n", *configPath, err)
		return 1
	}

	logger := logging.SetupLogger(cfg.LogLevel)

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "watch":
		return cmdWatch(cfg, logger, *configPath, cmdArgs)
	case "run":
		return cmdRun(cfg, logger, cmdArgs)
	case "history":
		return cmdHistory(cfg, logger, cmdArgs)
	case "stats":
		return cmdStats(cfg, logger, cmdArgs)
	case "sections":
		return cmdSections(cfg, logger, cmdArgs)
	case "clear":
		return cmdClear(cfg, logger, cmdArgs)
	case "version":
		fmt.Println(version.Info())
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `codewatch - watch, execute, and record practice files

Usage:
  codewatch [-config path] <command> [flags]

Commands:
  watch      watch a directory and execute files on save
  run        execute one file immediately
  history    show recent executions
  stats      show aggregate execution statistics
  sections   list sections containing runnable files
  clear      delete all execution history
  version    print version information

Use "codewatch <command> -h" for command flags.
`)
}

// newSession builds a session and arranges its cleanup through the
// coordinator.
func newSession(cfg *config.Config, logger *slog.Logger, coord *shutdown.Coordinator) (*session.Session, error) {
	sess, err := session.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	coord.Register("session", sess)
	return sess, nil
}

// cmdWatch runs the watch loop until a shutdown signal arrives.
func cmdWatch(cfg *config.Config, logger *slog.Logger, configPath string, args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	dir := fs.String("dir", cfg.WatchDir, "directory to watch")
	fs.Parse(args)

	logger.Info("codewatch starting",
		slog.String("version", version.Version),
		slog.String("config_path", configPath),
		slog.String("watch_dir", *dir),
		slog.Int("debounce_ms", cfg.DebounceMs),
		slog.Int("exec_timeout_seconds", cfg.ExecTimeoutSeconds),
	)

	// Shutdown context that listens for SIGTERM and SIGINT
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	coordinator := shutdown.NewCoordinator(logger)

	sess, err := newSession(cfg, logger, coordinator)
	if err != nil {
		logger.Error("failed to initialize session", "error", err)
		return 1
	}

	handle, err := sess.StartWatch(ctx, *dir, printResult)
	if err != nil {
		logger.Error("failed to start watching", "error", err)
		return 1
	}
	coordinator.Register("watch", handle)

	// Retention pruner runs only when a max age is configured
	if cfg.RetentionEnabled() {
		pruner, err := retention.NewPruner(sess.Store(), cfg.RetentionSchedule, cfg.RetentionMaxAge(), logger)
		if err != nil {
			logger.Error("failed to configure retention", "error", err)
			return 1
		}
		coordinator.Register("retention", pruner)
		go pruner.Run(ctx)
	}

	fmt.Printf("Watching %s (extensions: .%s) - press Ctrl+C to stop\n",
		*dir, strings.Join(sess.Extensions(), ", ."))

	<-ctx.Done()
	logger.Info("shutdown signal received, starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}

// printResult renders one execution outcome on stdout as it happens.
func printResult(res *handlers.ExecutionResult) {
	ts := res.Timestamp.Format("15:04:05")
	if res.Success {
		fmt.Printf("[%s] PASS %s (%.2fs)\n", ts, res.FilePath, res.Duration.Seconds())
	} else {
		fmt.Printf("[%s] FAIL %s (%.2fs): %s\n", ts, res.FilePath, res.Duration.Seconds(), res.ErrorMessage)
	}
	if out := strings.TrimRight(res.Output, "\n"); out != "" {
		fmt.Println(out)
	}
}

// cmdRun executes a single file immediately and reports the outcome.
// The exit code mirrors the execution result.
func cmdRun(cfg *config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: codewatch run <file>")
		return 2
	}
	path := fs.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	sess, err := session.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize session", "error", err)
		return 1
	}
	defer sess.Close()

	res, err := sess.ExecuteOnce(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	printResult(res)
	if !res.Success {
		return 1
	}
	return 0
}

// cmdHistory lists recent executions, newest first.
func cmdHistory(cfg *config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", defaultHistoryLimit, "maximum records to show")
	file := fs.String("file", "", "only show executions of this file")
	section := fs.String("section", "", "only show executions from this section")
	fs.Parse(args)

	sess, err := session.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize session", "error", err)
		return 1
	}
	defer sess.Close()

	var recs []history.ExecutionRecord
	switch {
	case *file != "":
		recs, err = sess.FileHistory(*file, *limit)
	case *section != "":
		recs, err = sess.SectionHistory(*section, *limit)
	default:
		recs, err = sess.History(*limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	if len(recs) == 0 {
		fmt.Println("No executions recorded yet.")
		return 0
	}

	for _, rec := range recs {
		status := "PASS"
		if !rec.Success {
			status = "FAIL"
		}
		fmt.Printf("%s  %s  %-28s  %8.2fs  [%s]\n",
			rec.Timestamp.Local().Format("2006-01-02 15:04:05"),
			status,
			rec.FilePath,
			rec.ExecutionTime,
			rec.Section,
		)
		if rec.OutputPreview != "" {
			fmt.Printf("    %s\n", rec.OutputPreview)
		}
	}
	return 0
}

// cmdStats prints aggregate statistics, optionally scoped to one section.
func cmdStats(cfg *config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	section := fs.String("section", "", "only count executions from this section")
	fs.Parse(args)

	sess, err := session.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize session", "error", err)
		return 1
	}
	defer sess.Close()

	var stats history.ExecutionStats
	if *section != "" {
		stats, err = sess.SectionStats(*section)
	} else {
		stats, err = sess.Stats()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	if *section != "" {
		fmt.Printf("Section:               %s\n", *section)
	}
	fmt.Printf("Total executions:      %d\n", stats.TotalExecutions)
	fmt.Printf("Successful:            %d\n", stats.SuccessfulExecutions)
	fmt.Printf("Failed:                %d\n", stats.FailedExecutions)
	if stats.TotalExecutions > 0 {
		fmt.Printf("Success rate:          %.1f%%\n", stats.SuccessRate()*100)
		fmt.Printf("Average duration:      %.2fs\n", stats.AverageExecutionTime)
		fmt.Printf("Most executed file:    %s\n", stats.MostExecutedFile)
	}
	if stats.LastExecution != nil {
		fmt.Printf("Last execution:        %s\n", stats.LastExecution.Local().Format("2006-01-02 15:04:05"))
	}
	return 0
}

// cmdSections lists the watch directory's sections.
func cmdSections(cfg *config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("sections", flag.ExitOnError)
	dir := fs.String("dir", cfg.WatchDir, "directory to inspect")
	fs.Parse(args)

	sess, err := session.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize session", "error", err)
		return 1
	}
	defer sess.Close()

	sections, err := sess.Sections(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	if len(sections) == 0 {
		fmt.Printf("No sections with runnable files under %s\n", *dir)
		return 0
	}
	for _, s := range sections {
		fmt.Println(s)
	}
	return 0
}

// cmdClear deletes all history records after an interactive confirmation,
// unless -force is given.
func cmdClear(cfg *config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	force := fs.Bool("force", false, "skip the confirmation prompt")
	fs.Parse(args)

	if !*force && !confirm("Delete ALL execution history? [y/N] ") {
		fmt.Println("Aborted.")
		return 0
	}

	sess, err := session.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize session", "error", err)
		return 1
	}
	defer sess.Close()

	deleted, err := sess.ClearHistory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Printf("Deleted %d execution record(s).\n", deleted)
	return 0
}

// confirm asks a yes/no question on the terminal. Anything but "y"/"yes"
// counts as no.
func confirm(prompt string) bool {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

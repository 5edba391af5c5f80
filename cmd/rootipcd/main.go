// rootipcd - Entry Point
//
// rootipcd runs as an unprivileged service and opens a file-based command
// channel that a root shell can talk to. The root side learns where the
// channel lives from the shell variables rootipcd prints on stdout:
//
//	eval "$(rootipcd -config /etc/rootipc/config.yaml | head -3)"
//
// Lifecycle:
//  1. Load configuration (defaults when the default file is absent)
//  2. Setup structured JSON logger on stderr
//  3. Resolve su and build the root shell
//  4. Open the journal, the command channel and the optional mailbox
//  5. Print the channel's shell variables and notify systemd
//  6. Wait for SIGTERM/SIGINT
//  7. Coordinated shutdown with timeout
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/doughall/rootipc/internal/commands"
	"github.com/doughall/rootipc/internal/config"
	"github.com/doughall/rootipc/internal/executor"
	"github.com/doughall/rootipc/internal/filesocket"
	"github.com/doughall/rootipc/internal/journal"
	"github.com/doughall/rootipc/internal/logging"
	"github.com/doughall/rootipc/internal/reaper"
	"github.com/doughall/rootipc/internal/shellutil"
	"github.com/doughall/rootipc/internal/shutdown"
	"github.com/doughall/rootipc/internal/simpleipc"
	"github.com/doughall/rootipc/internal/systemd"
	"github.com/doughall/rootipc/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info("rootipcd"))
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to load configuration from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	logger := logging.SetupLogger(cfg.LogLevel, os.Stderr)
	logger.Info("rootipcd starting",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
		slog.String("config_path", *configPath),
		slog.String("base_dir", cfg.BaseDir),
		slog.Bool("socket_enabled", cfg.SocketEnabled()),
		slog.Bool("journal_enabled", cfg.JournalEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("rootipcd failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadConfig falls back to defaults only when the default file is missing.
func loadConfig(path string) (*config.Config, error) {
	if path == config.DefaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	coordinator := shutdown.NewCoordinator(logger)
	notifier := systemd.NewNotifier(logger)

	root := executor.NewRoot(cfg.SuPath)
	coordinator.Register("root-shell", shutdown.Func(func(context.Context) error {
		return root.Close()
	}))

	if path, err := shellutil.NewBusyboxDetector(root, nil).Detect(ctx); err == nil {
		logger.Info("busybox available", slog.String("path", path))
	} else {
		logger.Debug("busybox not available", slog.String("error", err.Error()))
	}

	handler := commands.NewHandler(logger)

	opts := []simpleipc.Option{
		simpleipc.WithLogger(logger),
		simpleipc.WithReadRetry(cfg.ReadAttempts, cfg.ReadDelay()),
	}

	var recorder *journal.Recorder
	if cfg.JournalEnabled() {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		coordinator.Register("journal", shutdown.Func(func(context.Context) error {
			return j.Close()
		}))
		recorder = journal.NewRecorder(j, cfg.JournalKeep, logger)
		handler.SetJournalCounter(recorder.Count)
		opts = append(opts, simpleipc.WithObserver(recorder.ObserveCommand))
	}

	ch, err := simpleipc.New(ctx, cfg.BaseDir, root, handler.OnCommand, opts...)
	if err != nil {
		shutdownAll(coordinator, logger)
		return fmt.Errorf("open command channel: %w", err)
	}
	handler.SetResponder(ch)
	coordinator.Register("channel", ch)

	shellCfg := ch.ShellConfig()
	rp := reaper.New(shellCfg.Dir, shellCfg.ResponsePrefix, cfg.ResponseMaxAge(), logger)
	if err := rp.Start(cfg.ReaperSchedule); err != nil {
		shutdownAll(coordinator, logger)
		return fmt.Errorf("start reaper: %w", err)
	}
	coordinator.Register("reaper", rp)

	if cfg.SocketEnabled() {
		sock, err := filesocket.New(ctx, cfg.SocketPath,
			filesocket.WithLogger(logger),
			filesocket.WithPollInterval(cfg.PollInterval()),
			filesocket.WithShellInitializer(func() (executor.Shell, error) {
				return executor.NewRoot(cfg.SuPath), nil
			}),
			filesocket.WithOnContentsChanged(socketConsumer(recorder, logger)),
		)
		if err != nil {
			shutdownAll(coordinator, logger)
			return fmt.Errorf("open socket: %w", err)
		}
		coordinator.Register("socket", sock)
	}

	printShellConfig(os.Stdout, shellCfg)

	notifier.Ready()
	notifier.Status("listening in " + shellCfg.Dir)
	notifier.StartWatchdog(ctx, func() bool {
		_, err := os.Stat(shellCfg.Dir)
		return err == nil
	})

	<-ctx.Done()
	logger.Info("shutdown signal received",
		slog.Int64("processed", handler.Processed()),
	)

	notifier.Stopping()
	return shutdownAll(coordinator, logger)
}

// printShellConfig writes the eval-able variable block. Export already ends
// each assignment with a newline.
func printShellConfig(w io.Writer, cfg simpleipc.ShellConfig) {
	fmt.Fprint(w, cfg.Export())
}

func socketConsumer(recorder *journal.Recorder, logger *slog.Logger) func(string) {
	socketLog := logging.WithComponent(logger, "socket-consumer")
	return func(content string) {
		socketLog.Info("mailbox message", slog.Int("bytes", len(content)))
		if recorder != nil {
			recorder.ObserveSocket(content)
		}
	}
}

func shutdownAll(coordinator *shutdown.Coordinator, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := coordinator.Shutdown(ctx); err != nil {
		logger.Error("shutdown completed with errors", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// ABOUTME: Entry point for coven-inbox, the terminal client for polled conversations
// ABOUTME: Runs the sync engine and the bubbletea UI side by side under one errgroup

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-inbox/internal/chat"
	"github.com/2389/coven-inbox/internal/chatsync"
	"github.com/2389/coven-inbox/internal/config"
	"github.com/2389/coven-inbox/internal/logging"
	"github.com/2389/coven-inbox/internal/remote"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	configPath := flag.String("config", config.Path(), "path to the config file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("coven-inbox", version)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if chat.IsAuth(err) {
			fmt.Fprintln(os.Stderr, "Mint a new token with: coven-inbox-server token --viewer <id>")
		}
		os.Exit(1)
	}
}

// getLogPath returns where the client logs when the config names no file.
// The terminal belongs to the UI, so logs never go to stderr.
func getLogPath() string {
	dataDir := os.Getenv("XDG_STATE_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "coven-inbox.log"
		}
		dataDir = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(dataDir, "coven", "inbox.log")
}

// sessionHandler logs the auth failure that halted the engine.
type sessionHandler struct {
	logger *slog.Logger
}

func (h sessionHandler) HandleAuthError(err error) {
	h.logger.Error("session rejected by remote, sync halted", "error", err)
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateClient(); err != nil {
		return err
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = getLogPath()
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
	}
	logger, closeLog, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("starting coven-inbox",
		"version", version,
		"config", configPath,
		"remote", cfg.Remote.URL,
		"viewer_id", cfg.Remote.ViewerID,
	)

	client, err := remote.New(cfg.Remote.URL, cfg.Remote.Token, remote.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating remote client: %w", err)
	}

	engine, err := chatsync.New(client, cfg.Remote.ViewerID,
		chatsync.WithLogger(logger),
		chatsync.WithIntervals(cfg.Sync.ListInterval, cfg.Sync.TimelineInterval),
		chatsync.WithRequestTimeout(cfg.Sync.RequestTimeout),
		chatsync.WithRetry(chatsync.RetryConfig{
			Strategy:    cfg.Sync.Backoff.Strategy,
			MaxInterval: cfg.Sync.Backoff.MaxInterval,
		}),
		chatsync.WithScrollTolerance(cfg.Scroll.BottomTolerance),
		chatsync.WithAuthHandler(sessionHandler{logger: logger}),
	)
	if err != nil {
		return fmt.Errorf("creating sync engine: %w", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	views := engine.Subscribe(runCtx)
	program := tea.NewProgram(
		newModel(runCtx, engine, views, cfg.Remote.ViewerID, logger),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	g := new(errgroup.Group)
	g.Go(func() error {
		return engine.Run(runCtx)
	})
	g.Go(func() error {
		// Quitting the UI stops the engine.
		defer stop()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})

	err = g.Wait()
	logger.Info("coven-inbox stopped", "error", err)
	return err
}

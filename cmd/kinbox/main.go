package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tracyhatemice/kinbox/internal/aggregator"
	"github.com/tracyhatemice/kinbox/internal/cache"
	"github.com/tracyhatemice/kinbox/internal/config"
	"github.com/tracyhatemice/kinbox/internal/message"
	"github.com/tracyhatemice/kinbox/internal/query"
	"github.com/tracyhatemice/kinbox/internal/receiver"
	"github.com/tracyhatemice/kinbox/internal/resolver"
	"github.com/tracyhatemice/kinbox/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "kinbox",
		Short:        "Kinbox serves recent messages from IMAP mailboxes over HTTP",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to configuration file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	})

	var email, sender string
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch one account's messages and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetch(cmd.Context(), configPath, email, sender)
		},
	}
	fetchCmd.Flags().StringVar(&email, "email", "", "account address (password is read from "+config.EnvPassword+")")
	fetchCmd.Flags().StringVar(&sender, "sender", "", "only print messages whose sender contains this term")
	_ = fetchCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(fetchCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   cache.Store
	queries *query.Service
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := setupLogger(cfg.LogLevel)

	var store cache.Store = cache.Nop{}
	if cfg.CacheEnabled {
		store = cache.NewMemory(cfg.CacheTTL())
	}

	agg := aggregator.New(
		aggregator.Config{
			FolderLimit: cfg.FolderLimit,
			Timeout:     cfg.Timeout(),
			Coalesce:    cfg.Coalesce,
		},
		resolver.New(cfg.Servers),
		receiver.NewIMAP(cfg.IMAPPort, nil, logger),
		store,
		logger,
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		queries: query.NewService(agg),
	}, nil
}

func serve(ctx context.Context, configPath string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           server.New(a.queries, a.store, a.logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      a.cfg.Timeout() + 10*time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("kinbox listening", "addr", a.cfg.Listen, "cache", a.cfg.CacheEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down, waiting for requests to finish...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	a.logger.Info("kinbox stopped")
	return err
}

func fetch(ctx context.Context, configPath, email, sender string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}

	creds := message.Credentials{Address: email, Secret: os.Getenv(config.EnvPassword)}
	if creds.Secret == "" {
		return fmt.Errorf("%s is not set", config.EnvPassword)
	}

	var out any
	if sender != "" {
		out, err = a.queries.SearchBySender(ctx, creds, sender)
	} else {
		out, err = a.queries.List(ctx, creds)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

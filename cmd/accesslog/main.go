package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ehrlich-b/accesslog/internal/cli"
	"github.com/ehrlich-b/accesslog/internal/config"
	"github.com/ehrlich-b/accesslog/internal/ingest"
	"github.com/ehrlich-b/accesslog/internal/server"
	"github.com/ehrlich-b/accesslog/internal/source"
	"github.com/ehrlich-b/accesslog/internal/storage"
	"github.com/ehrlich-b/accesslog/internal/version"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "accesslog",
		Short:        "Load web server access logs into a database and search them",
		Version:      version.Version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default: accesslog.{yaml,yml,toml,json} in the current directory)")
	rootCmd.PersistentFlags().String("db-driver", "", "Database driver: sqlite or postgres")
	rootCmd.PersistentFlags().String("db-dsn", "", "Database file path or connection URL")

	rootCmd.AddCommand(
		serveCmd(),
		loadCmd(),
		queryCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the access log if needed, then serve searches over HTTP",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "Address to listen on (default :5000)")
	cmd.Flags().String("source", "", "Log location: file path, - for stdin, or s3://bucket/key")
	return cmd
}

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the access log into the database and exit",
		RunE:  runLoad,
	}
	cmd.Flags().String("source", "", "Log location: file path, - for stdin, or s3://bucket/key")
	return cmd
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print stored entries with a response status",
		RunE:  runQuery,
	}
	cmd.Flags().Int("status", 0, "Response status to match")
	cmd.Flags().Int("limit", 20, "Maximum entries to print (0 for all)")
	cmd.MarkFlagRequired("status")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Version)
		},
	}
}

// loadConfig reads the config file, then applies flags, then ACCESSLOG_*
// environment variables.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, _, err = config.Find(".")
		if errors.Is(err, config.ErrNoConfig) {
			cfg, err = config.Default(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if f := flags.Lookup("addr"); f != nil && f.Changed {
		cfg.Addr = f.Value.String()
	}
	if f := flags.Lookup("source"); f != nil && f.Changed {
		cfg.Source = f.Value.String()
	}
	if f := flags.Lookup("db-driver"); f != nil && f.Changed {
		cfg.Database.Driver = f.Value.String()
	}
	if f := flags.Lookup("db-dsn"); f != nil && f.Changed {
		cfg.Database.DSN = f.Value.String()
	}

	// Allow env vars to override flags
	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, error) {
	if cfg.Database.Driver == "sqlite" && cfg.Database.DSN != ":memory:" {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	log.Info("initializing storage", "driver", cfg.Database.Driver)
	store, err := storage.Open(ctx, storage.Options{
		Driver:  cfg.Database.Driver,
		DSN:     cfg.Database.DSN,
		Retries: cfg.Database.Retries,
		Delay:   cfg.Database.Delay.Duration(),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}
	return store, nil
}

// ingestLogs runs one load of cfg.Source into store. The source is only
// opened if the store is empty.
func ingestLogs(ctx context.Context, cfg *config.Config, store storage.Store, log *slog.Logger) error {
	term := cli.NewTerminal(os.Stdout)
	term.PrintLoadStart(cfg.Source, cfg.Database.Driver)

	src := source.OpenLazy(ctx, cfg.Source, source.Options{S3: cfg.S3})
	defer src.Close()

	pipeline := ingest.NewPipeline(store, ingest.Options{
		BatchSize: cfg.BatchSize,
		Observer:  term,
		Logger:    log,
	})
	sum, err := pipeline.Run(ctx, src)
	term.PrintSummary(sum)
	if err != nil {
		return fmt.Errorf("load logs: %w", err)
	}
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	return ingestLogs(ctx, cfg, store, log)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	status, _ := cmd.Flags().GetInt("status")
	limit, _ := cmd.Flags().GetInt("limit")
	if status < 0 || limit < 0 {
		return errors.New("status and limit must be non-negative")
	}
	log := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := store.QueryByStatus(ctx, status, limit)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	cli.NewTerminal(os.Stdout).PrintStatusResult(res)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := slog.Default()

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := ingestLogs(ctx, cfg, store, log); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/", noCache(server.NewQueryHandler(store, log)))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("shutting down server")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Warn("shutdown error", "error", err)
		}
	}

	return nil
}

// noCache wraps a handler to add no-store cache headers.
func noCache(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		h.ServeHTTP(w, r)
	})
}

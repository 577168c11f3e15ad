package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/newthinker/presetd/internal/api"
	"github.com/newthinker/presetd/internal/api/job"
	"github.com/newthinker/presetd/internal/autosave"
	"github.com/newthinker/presetd/internal/backtest"
	"github.com/newthinker/presetd/internal/lifecycle"
	"github.com/newthinker/presetd/internal/logger"
	"github.com/newthinker/presetd/internal/metrics"
	"github.com/newthinker/presetd/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the presetd server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, closeStore, err := openStore(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer closeStore()

	var (
		reg      *metrics.Registry
		recorder lifecycle.Recorder
		observer store.Observer
	)
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
		recorder = reg
		observer = reg
	}
	st := store.NewInstrumented(base, observer)

	opts := lifecycle.Options{
		Recorder: recorder,
		Logger:   log,
		Autosave: autosave.Options{
			QuietPeriod: cfg.Autosave.QuietPeriod,
			MaxRetries:  cfg.Autosave.MaxRetries,
			Logger:      log,
		},
		PersistenceTimeout: cfg.Lifecycle.PersistenceTimeout,
		PurgeConcurrency:   cfg.Lifecycle.PurgeConcurrency,
	}
	if cfg.Backtest.URL != "" {
		opts.Backtester = backtest.NewClient(cfg.Backtest.URL, cfg.Backtest.Timeout)
	}
	manager := lifecycle.NewManager(st, opts)
	defer manager.Close()

	server, err := api.NewServer(api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		APIKey:      cfg.Server.APIKey,
		MetricsPath: cfg.Metrics.Path,
	}, api.Dependencies{
		Manager: manager,
		Store:   st,
		Jobs:    job.NewStore(cfg.Jobs.Max, cfg.Jobs.TTL),
		Metrics: reg,
	}, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	log.Info("starting presetd",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Backend),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	if cfg.Sweeper.Enabled {
		sweeper := lifecycle.NewSweeper(st, manager, lifecycle.SweeperOptions{
			Interval:    cfg.Sweeper.Interval,
			Namespaces:  cfg.Sweeper.Namespaces,
			Concurrency: cfg.Lifecycle.PurgeConcurrency,
			Recorder:    recorder,
			Logger:      log,
		})
		g.Go(func() error {
			if err := sweeper.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down presetd")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go-comment-notifier/internal/infrastructure/config"
	"go-comment-notifier/internal/infrastructure/hub"
	"go-comment-notifier/internal/infrastructure/logger"
	"go-comment-notifier/internal/infrastructure/queue"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:          "comment-notifier",
		Short:        "Pushes newly created comments to connected socket clients",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (yaml)")

	root.AddCommand(serveCmd(&cfgPath))
	root.AddCommand(workerCmd(&cfgPath))
	root.AddCommand(migrateCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the socket server, the API and the configured queue consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			ctx := WithSignal(context.Background())

			obs := newObservability()
			app, err := newServeApp(ctx, cfg, log, obs, hub.Process)
			if err != nil {
				log.Errorf("failed to start: %v", err)
				return err
			}
			if err := app.Run(ctx); err != nil {
				log.Errorf("failed to run application: %v", err)
				return err
			}
			return nil
		},
	}
}

func workerCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run queue consumers only; broadcast tasks are dropped without a socket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			ctx := WithSignal(context.Background())

			app, err := newWorkerApp(ctx, cfg, log, newObservability(), hub.Process)
			if err != nil {
				log.Errorf("failed to start: %v", err)
				return err
			}
			if err := app.Run(ctx); err != nil {
				log.Errorf("failed to run application: %v", err)
				return err
			}
			return nil
		},
	}
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres queue migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Queue.Driver != "postgres" {
				return fmt.Errorf("migrate needs queue.driver=postgres, got %q", cfg.Queue.Driver)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			pool, err := queue.Connect(ctx, cfg.Queue.PostgresDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := queue.ApplyMigrations(ctx, pool)
			if err != nil {
				return err
			}
			log.Infof("Applied %d migrations %v", len(applied), applied)
			return nil
		},
	}
}

func setup(cfgPath string) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewLogrusLogger(cfg.Logger()), nil
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}

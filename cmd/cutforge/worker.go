package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/keagan/cutforge/internal/ai"
	"github.com/keagan/cutforge/internal/autoedit"
	"github.com/keagan/cutforge/internal/blob"
	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/jobs"
	"github.com/keagan/cutforge/internal/logging"
	"github.com/keagan/cutforge/internal/pipeline"
	"github.com/keagan/cutforge/internal/queue"
	"github.com/keagan/cutforge/internal/store"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume jobs from the queue until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := store.Open(cfg.Database, log.Logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}

		blobs, err := blob.NewMinio(cfg.Storage, log.Logger)
		if err != nil {
			return err
		}
		if err := blobs.EnsureBuckets(ctx, cfg.Storage.SourceBucket, cfg.Storage.ExportBucket, cfg.Storage.ThumbnailBucket); err != nil {
			return err
		}

		broker, err := queue.Dial(cfg.AMQP, log.Logger)
		if err != nil {
			return err
		}
		defer broker.Close()

		exec, err := newExecutor(cfg)
		if err != nil {
			return err
		}
		models := ai.NewModelProvider(log.Logger, cfg.AI, exec, cfg.TempDir)
		defer models.Close()

		runner := jobs.NewRunner(log.Logger, db, blobs, broker, jobs.PolicyFromConfig(cfg))
		jobs.RegisterAll(runner, jobs.Deps{
			Logger:   log.Logger,
			Config:   cfg,
			Store:    db,
			Enqueuer: broker,
			Media:    exec,
			AutoEdit: autoedit.NewEngine(log.Logger, exec, cfg.FFmpeg.AutoEditorPath, cfg.TempDir),
			Analysis: pipeline.New(log.Logger, exec, models, cfg),
		})

		pool := queue.NewPool(log.Logger, broker, runner, cfg.Jobs.HeavyWorkers, cfg.Jobs.LightWorkers)
		wlog := logging.WithComponent("worker")
		wlog.Info().
			Str("heavy_queue", cfg.AMQP.HeavyQueue).
			Str("light_queue", cfg.AMQP.LightQueue).
			Msg("worker running")
		if err := pool.Run(ctx); err != nil {
			return err
		}
		wlog.Info().Msg("worker stopped")
		return nil
	},
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"netfinder/internal/dataset"
	"netfinder/internal/model"
	"netfinder/internal/repository"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the CSV dataset into PostgreSQL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ranges, _, err := dataset.NewLoader(logger).Load(cfg.DatasetPath)
		if err != nil {
			return err
		}
		if len(ranges) == 0 {
			return fmt.Errorf("%w: dataset %s has no usable ranges", model.ErrConfiguration, cfg.DatasetPath)
		}

		db, err := openPostgres(cfg)
		if err != nil {
			return err
		}
		repo := repository.NewPostgresRepository(db, logger)
		defer repo.Close()

		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}

		startTime := time.Now()
		if err := repo.SaveRanges(ctx, ranges); err != nil {
			logger.Error("Failed to save network ranges",
				zap.Error(err),
				zap.Duration("duration", time.Since(startTime)))
			return err
		}

		logger.Info("Successfully saved network ranges",
			zap.Int("total_ranges", len(ranges)),
			zap.Duration("duration", time.Since(startTime)))
		return nil
	},
}

func init() {
	// The import always targets PostgreSQL, whatever BACKEND says.
	importCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if cfg.PostgresURL == "" {
			return fmt.Errorf("%w: POSTGRES_URL is required", model.ErrConfiguration)
		}
		if _, err := os.Stat(cfg.DatasetPath); err != nil {
			return fmt.Errorf("%w: %v", model.ErrConfiguration, err)
		}
		return nil
	}
}

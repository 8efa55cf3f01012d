package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"netfinder/internal/model"
	"netfinder/internal/service"
)

var fetchURL string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the CSV dataset to DATASET_PATH",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url := fetchURL
		if url == "" {
			url = cfg.DatasetURL
		}
		if url == "" {
			return fmt.Errorf("%w: no dataset URL, set --url or DATASET_URL", model.ErrConfiguration)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stats, err := service.NewFetchService(logger).FetchDataset(ctx, url, cfg.DatasetPath)
		if err != nil {
			return err
		}

		logger.Info("Dataset downloaded",
			zap.String("path", cfg.DatasetPath),
			zap.Int("lines", stats.Lines))
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchURL, "url", "", "dataset URL (defaults to DATASET_URL)")
}

package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"netfinder/internal/handler"
)

var (
	lastLogTime atomic.Value
	logMutex    sync.Mutex
)

func init() {
	lastLogTime.Store(time.Now())

	serveCmd.Flags().String("port", "", "listen address (SERVER_PORT)")
	bindFlag("SERVER_PORT", serveCmd.Flags().Lookup("port"))
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve lookups over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info("Starting up server...")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		networkService, err := newNetworkService(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer networkService.Close()

		app := fiber.New(fiber.Config{
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		})

		app.Use(recover.New())
		app.Use(requestLogger(logger))

		h := handler.NewHandler(networkService, cfg.MaxBatchSize, logger)
		h.RegisterRoutes(app)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		errChan := make(chan error, 1)
		go func() {
			errChan <- app.Listen(cfg.ServerPort)
		}()

		select {
		case <-sigChan:
			logger.Info("Shutting down server...")
		case err := <-errChan:
			return err
		}

		if err := app.Shutdown(); err != nil {
			logger.Error("Error during server shutdown", zap.Error(err))
		}
		return nil
	},
}

// requestLogger logs failed and slow requests, and samples the rest at most
// once every 10 seconds.
func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		latency := time.Since(start)

		if err != nil || latency > 100*time.Millisecond || c.Response().StatusCode() != 200 {
			logger.Info("request",
				zap.Int("status", c.Response().StatusCode()),
				zap.Duration("latency", latency),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			return err
		}

		last := lastLogTime.Load().(time.Time)
		if time.Since(last) >= 10*time.Second {
			logMutex.Lock()
			if last := lastLogTime.Load().(time.Time); time.Since(last) >= 10*time.Second {
				logger.Info("sampled_request",
					zap.Int("status", c.Response().StatusCode()),
					zap.Duration("latency", latency),
					zap.String("method", c.Method()),
					zap.String("path", c.Path()),
				)
				lastLogTime.Store(time.Now())
			}
			logMutex.Unlock()
		}

		return err
	}
}

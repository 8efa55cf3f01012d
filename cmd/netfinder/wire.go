package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"netfinder/internal/config"
	"netfinder/internal/dataset"
	"netfinder/internal/model"
	"netfinder/internal/repository"
	"netfinder/internal/service"
)

// newNetworkService acquires the backend and the optional shared cache. The
// caller owns the returned service and must Close it.
func newNetworkService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*service.NetworkService, error) {
	if cfg.DatasetURL != "" && cfg.Backend == config.BackendMemory {
		fetcher := service.NewFetchService(logger)
		if _, err := fetcher.FetchDataset(ctx, cfg.DatasetURL, cfg.DatasetPath); err != nil {
			return nil, fmt.Errorf("%w: fetching dataset: %v", model.ErrConfiguration, err)
		}
	}

	backend, version, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	shared, err := openSharedCache(ctx, cfg, version, logger)
	if err != nil {
		if closer, ok := backend.(interface{ Close() error }); ok {
			closer.Close()
		}
		return nil, err
	}

	var sharedCache service.Cache
	if shared != nil {
		sharedCache = shared
	}

	return service.NewNetworkService(backend, sharedCache, cfg, logger), nil
}

// openBackend also returns a version string identifying the loaded dataset.
func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.Backend, string, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		ranges, stats, err := dataset.NewLoader(logger).Load(cfg.DatasetPath)
		if err != nil {
			return nil, "", err
		}

		startTime := time.Now()
		index := dataset.NewIndex(ranges)
		logger.Info("Built network index",
			zap.Int("ranges", index.Len()),
			zap.Int("segments", index.Segments()),
			zap.Duration("duration", time.Since(startTime)))
		return index, fmt.Sprintf("%016x", stats.Checksum), nil

	case config.BackendPostgres:
		db, err := openPostgres(cfg)
		if err != nil {
			return nil, "", err
		}
		repo := repository.NewPostgresRepository(db, logger)

		count, err := repo.GetRangesCount(ctx)
		if err != nil {
			db.Close()
			return nil, "", fmt.Errorf("%w: counting network ranges: %w", model.ErrResource, err)
		}
		if count == 0 {
			logger.Warn("No network ranges found in database, run the import command first")
		} else {
			logger.Info("Existing network ranges found in database", zap.Int64("ranges", count))
		}

		version, err := repo.Version(ctx)
		if err != nil {
			db.Close()
			return nil, "", fmt.Errorf("%w: hashing network ranges: %w", model.ErrResource, err)
		}
		return repo, version, nil

	case config.BackendMMDB:
		repo, err := repository.OpenMMDB(cfg.DatasetPath, logger)
		if err != nil {
			return nil, "", err
		}
		return repo, repo.Version(), nil
	}

	return nil, "", fmt.Errorf("%w: unknown backend %q", model.ErrConfiguration, cfg.Backend)
}

func openPostgres(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to PostgreSQL: %w", model.ErrResource, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

func openSharedCache(ctx context.Context, cfg *config.Config, version string, logger *zap.Logger) (*repository.RedisRepository, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing Redis URL: %v", model.ErrConfiguration, err)
	}

	repo := repository.NewRedisRepository(redis.NewClient(opt), version, cfg.RedisTTL, logger)
	if err := repo.Ping(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("%w: connecting to Redis: %w", model.ErrResource, err)
	}

	logger.Info("Using Redis as shared result cache",
		zap.String("dataset_version", version),
		zap.Duration("ttl", cfg.RedisTTL))
	return repo, nil
}

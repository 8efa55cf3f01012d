package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"netfinder/internal/cache"
	"netfinder/internal/config"
	"netfinder/internal/ipv4"
	"netfinder/internal/model"
)

// Backend finds the narrowest range containing ip. It returns nil without
// error when no range matches.
type Backend interface {
	FindRange(ctx context.Context, ip uint32) (*model.NetworkRange, error)
}

// Cache is a shared result cache consulted after the in-process LRU.
type Cache interface {
	GetResult(ctx context.Context, ip string) (*model.LookupResult, error)
	SetResult(ctx context.Context, ip string, result *model.LookupResult) error
}

type concurrentSafe interface {
	ConcurrentSafe() bool
}

type NetworkService struct {
	backend   Backend
	shared    Cache
	results   *cache.LRU
	group     singleflight.Group
	config    *config.Config
	logger    *zap.Logger
	serialize bool
	queryMux  sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewNetworkService wires a backend and an optional shared cache. Backends
// that don't report themselves as safe for concurrent use are queried under
// a mutex.
func NewNetworkService(
	backend Backend,
	shared Cache,
	config *config.Config,
	logger *zap.Logger,
) *NetworkService {
	serialize := true
	if cs, ok := backend.(concurrentSafe); ok && cs.ConcurrentSafe() {
		serialize = false
	}

	return &NetworkService{
		backend:   backend,
		shared:    shared,
		results:   cache.NewLRU(config.CacheSize),
		config:    config,
		logger:    logger,
		serialize: serialize,
	}
}

func (s *NetworkService) Lookup(ctx context.Context, address string) (*model.LookupResult, error) {
	if result, ok := s.results.Get(address); ok {
		return result, nil
	}

	value, err := ipv4.Parse(address)
	if err != nil {
		return nil, err
	}

	// Concurrent misses for the same key share one resolution, so it must
	// not end when the caller that happened to start it goes away.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(address, func() (interface{}, error) {
		return s.resolve(flightCtx, address, value)
	})
	if err != nil {
		return nil, err
	}

	result := *v.(*model.LookupResult)
	return &result, nil
}

func (s *NetworkService) resolve(ctx context.Context, address string, value uint32) (*model.LookupResult, error) {
	if result, ok := s.results.Get(address); ok {
		return result, nil
	}

	if s.shared != nil {
		result, err := s.shared.GetResult(ctx, address)
		if err != nil {
			s.logger.Warn("failed to read shared cache",
				zap.String("ip", address),
				zap.Error(err))
		} else if result != nil {
			s.results.Add(address, result)
			return result, nil
		}
	}

	ipRange, err := s.query(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("%w: looking up %s: %w", model.ErrResource, address, err)
	}

	var result *model.LookupResult
	if ipRange != nil {
		result = model.NewLookupResult(address, *ipRange)
	} else {
		result = model.UnknownResult(address, value)
	}

	s.results.Add(address, result)

	// Unknown results stay local so a later dataset can answer them.
	if s.shared != nil && !result.IsUnknown() {
		if err := s.shared.SetResult(ctx, address, result); err != nil {
			s.logger.Warn("failed to cache lookup result",
				zap.String("ip", address),
				zap.Error(err))
		}
	}

	return result, nil
}

func (s *NetworkService) query(ctx context.Context, value uint32) (*model.NetworkRange, error) {
	if !s.serialize {
		return s.backend.FindRange(ctx, value)
	}

	s.queryMux.Lock()
	defer s.queryMux.Unlock()
	return s.backend.FindRange(ctx, value)
}

// LookupBatch resolves addresses concurrently. Results keep the input order
// and a failed address does not stop the others.
func (s *NetworkService) LookupBatch(ctx context.Context, addresses []string) []model.BatchItem {
	items := make([]model.BatchItem, len(addresses))
	startTime := time.Now()

	var g errgroup.Group
	g.SetLimit(s.config.BatchConcurrency)

	for i, address := range addresses {
		i, address := i, address
		g.Go(func() error {
			items[i].IP = address
			result, err := s.Lookup(ctx, address)
			if err != nil {
				items[i].Error = err.Error()
				return nil
			}
			items[i].Result = result
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Debug("batch lookup finished",
		zap.Int("addresses", len(addresses)),
		zap.Duration("duration", time.Since(startTime)))

	return items
}

func (s *NetworkService) CacheStats() cache.Stats {
	return s.results.Stats()
}

// Close releases the backend and the shared cache. Only the first call has
// any effect.
func (s *NetworkService) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if c, ok := s.backend.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
		if c, ok := s.shared.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Info("Network service closed")
	})
	return s.closeErr
}

// Format renders result for terminals and logs.
func Format(result *model.LookupResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "IP: %s\n", result.IP)
	fmt.Fprintf(&b, "Network: %s\n", result.Network)
	fmt.Fprintf(&b, "ASN: %s\n", result.ASN)
	fmt.Fprintf(&b, "Organization: %s\n", result.Organization)
	fmt.Fprintf(&b, "Country: %s", result.Country)
	return b.String()
}

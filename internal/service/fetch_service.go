package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

type FetchService struct {
	logger     *zap.Logger
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

func NewFetchService(logger *zap.Logger) *FetchService {
	return &FetchService{
		logger: logger,
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConns:      10,
				IdleConnTimeout:   90 * time.Second,
				ForceAttemptHTTP2: true,
			},
		},
		maxRetries: 3,
		retryDelay: 5 * time.Second,
	}
}

type FetchStats struct {
	Bytes int64
	Lines int
}

// FetchDataset downloads the CSV at url into dest. The file is written next
// to dest and renamed into place, so a failed download leaves dest untouched.
func (s *FetchService) FetchDataset(ctx context.Context, url, dest string) (FetchStats, error) {
	var lastErr error

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * s.retryDelay
			select {
			case <-ctx.Done():
				return FetchStats{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		stats, err := s.fetchOnce(ctx, url, dest)
		if err == nil {
			return stats, nil
		}

		lastErr = err
		s.logger.Warn("Failed to fetch dataset, retrying...",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return FetchStats{}, fmt.Errorf("failed after %d attempts: %w", s.maxRetries, lastErr)
}

func (s *FetchService) fetchOnce(ctx context.Context, url, dest string) (FetchStats, error) {
	startTime := time.Now()
	var stats FetchStats

	s.logger.Info("Starting dataset fetch", zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return stats, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "netfinder/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return stats, fmt.Errorf("fetching dataset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return stats, fmt.Errorf("creating dataset directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.tmp")
	if err != nil {
		return stats, fmt.Errorf("creating temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	stats, err = copyDataset(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return stats, err
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return stats, fmt.Errorf("moving dataset into place: %w", err)
	}

	s.logger.Info("Finished dataset fetch",
		zap.String("url", url),
		zap.String("dest", dest),
		zap.Int64("bytes", stats.Bytes),
		zap.Int("lines", stats.Lines),
		zap.Duration("total_time", time.Since(startTime)))

	return stats, nil
}

// copyDataset copies r to w line by line and rejects bodies whose first line
// is not a CSV header naming the network column.
func copyDataset(w io.Writer, r io.Reader) (FetchStats, error) {
	var stats FetchStats

	scanner := bufio.NewScanner(r)
	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, maxCapacity), maxCapacity)

	bw := bufio.NewWriter(w)
	for scanner.Scan() {
		line := scanner.Text()
		if stats.Lines == 0 && !strings.Contains(strings.ToLower(line), "network") {
			return stats, fmt.Errorf("response does not look like a network dataset")
		}
		stats.Lines++

		n, err := bw.WriteString(line + "\n")
		stats.Bytes += int64(n)
		if err != nil {
			return stats, fmt.Errorf("writing dataset: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading dataset: %w", err)
	}
	if stats.Lines == 0 {
		return stats, fmt.Errorf("empty dataset")
	}

	return stats, bw.Flush()
}

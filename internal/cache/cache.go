// Package cache implements the idempotent fetch-or-reuse store for raw
// inputs. Every raw download is keyed by (provider, region, time range) and
// committed with write-to-temp + rename, so a crash mid-fetch never leaves
// a partially written record visible. A committed record suppresses all
// future provider contact for the same key unless the override flag is set.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/urbanclimate/pipeline/internal/domain"
	"github.com/urbanclimate/pipeline/internal/observability"
)

// Fetcher is implemented by data providers. Fetch streams the raw payload
// for (region, time range) into w; it is called only on a cache miss or
// override, inside the cache's retry loop.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, region domain.Region, tr domain.TimeRange, w io.Writer) error
}

const (
	recordFilename  = "record.json"
	payloadFilename = "payload.bin"
)

// Cache is the on-disk source cache. Safe for concurrent readers; callers
// must ensure a single writer per (provider, region, time range) key, which
// the orchestrator's per-region sequential execution guarantees.
type Cache struct {
	root    string
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock

	retryBudget int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// Option adjusts cache behavior.
type Option func(*Cache)

// WithClock injects a clock, letting tests fast-forward backoff sleeps.
func WithClock(c clockwork.Clock) Option {
	return func(ca *Cache) { ca.clock = c }
}

// WithRetryBudget sets the number of fetch attempts before the cache gives
// up with ErrSourceUnavailable.
func WithRetryBudget(attempts int) Option {
	return func(ca *Cache) { ca.retryBudget = attempts }
}

// New creates a source cache rooted at dir.
func New(dir string, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Cache {
	c := &Cache{
		root:        dir,
		logger:      logger,
		metrics:     metrics,
		clock:       clockwork.NewRealClock(),
		retryBudget: 3,
		baseBackoff: 500 * time.Millisecond,
		maxBackoff:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the cached record for (fetcher, region, tr) when one
// exists and override is false; otherwise it downloads the payload with
// bounded retries and commits a fresh record atomically.
func (c *Cache) Fetch(ctx context.Context, f Fetcher, region domain.Region, tr domain.TimeRange, override bool) (domain.SourceRecord, error) {
	if err := region.Validate(); err != nil {
		return domain.SourceRecord{}, err
	}

	dir := c.keyDir(f.Name(), region.Name, tr)
	recordPath := filepath.Join(dir, recordFilename)

	if !override {
		if rec, err := readRecord(recordPath); err == nil {
			c.metrics.CacheLookups.WithLabelValues(f.Name(), "hit").Inc()
			c.logger.Debug("source cache hit", "provider", f.Name(), "region", region.Name, "range", tr.Key())
			return rec, nil
		}
	}
	c.metrics.CacheLookups.WithLabelValues(f.Name(), "miss").Inc()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.SourceRecord{}, fmt.Errorf("create cache dir: %w", err)
	}

	payloadPath := filepath.Join(dir, payloadFilename)
	if err := c.download(ctx, f, region, tr, payloadPath); err != nil {
		return domain.SourceRecord{}, err
	}

	rec := domain.SourceRecord{
		Provider:    f.Name(),
		Region:      region.Name,
		Range:       tr,
		Path:        payloadPath,
		RetrievedAt: c.clock.Now().UTC(),
	}
	if err := writeRecord(recordPath, rec); err != nil {
		return domain.SourceRecord{}, err
	}

	c.logger.Info("source fetched", "provider", f.Name(), "region", region.Name, "range", tr.Key(), "path", payloadPath)
	return rec, nil
}

// download runs the provider fetch with exponential backoff, writing the
// payload to a temp file and renaming it into place on success.
func (c *Cache) download(ctx context.Context, f Fetcher, region domain.Region, tr domain.TimeRange, dst string) error {
	backoff := c.baseBackoff
	var lastErr error

	for attempt := 1; attempt <= c.retryBudget; attempt++ {
		err := c.fetchOnce(ctx, f, region, tr, dst)
		if err == nil {
			c.metrics.ProviderFetches.WithLabelValues(f.Name(), "success").Inc()
			return nil
		}
		c.metrics.ProviderFetches.WithLabelValues(f.Name(), "error").Inc()
		lastErr = err

		// Region resolution failures are permanent; retrying cannot help.
		if errors.Is(err, domain.ErrInvalidRegion) || ctx.Err() != nil {
			return err
		}

		c.logger.Warn("fetch attempt failed",
			"provider", f.Name(), "region", region.Name,
			"attempt", attempt, "budget", c.retryBudget, "error", err)

		if attempt < c.retryBudget {
			if !c.sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, c.maxBackoff)
		}
	}

	return fmt.Errorf("%w: provider %s after %d attempts: %v",
		domain.ErrSourceUnavailable, f.Name(), c.retryBudget, lastErr)
}

func (c *Cache) fetchOnce(ctx context.Context, f Fetcher, region domain.Region, tr domain.TimeRange, dst string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".fetch-*")
	if err != nil {
		return fmt.Errorf("create temp payload: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := f.Fetch(ctx, region, tr, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp payload: %w", err)
	}
	return os.Rename(tmpName, dst)
}

func (c *Cache) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(d):
		return true
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (c *Cache) keyDir(provider, region string, tr domain.TimeRange) string {
	return filepath.Join(c.root, region, provider, tr.Key())
}

func readRecord(path string) (domain.SourceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.SourceRecord{}, err
	}
	var rec domain.SourceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.SourceRecord{}, fmt.Errorf("decode source record %s: %w", path, err)
	}
	return rec, nil
}

// writeRecord commits the record file atomically. The record is the commit
// point of the whole cache entry: readers treat its presence as validity.
func writeRecord(path string, rec domain.SourceRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode source record: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".record-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp record: %w", err)
	}
	return os.Rename(tmpName, path)
}

package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"stockboard/internal/domain"
	"stockboard/internal/util"
)

// Load retry policy: the producer may be mid-rewrite of a file.
const (
	loadAttempts  = 3
	loadBaseDelay = 200 * time.Millisecond
)

// MaxViews bounds the number of filtered views memoized per table. The least
// recently used view is evicted first.
const MaxViews = 256

// Snapshot is an immutable pair of loaded tables with their versions.
type Snapshot struct {
	Prices             []domain.PricePoint
	Predictions        []domain.PredictionPoint
	PricesVersion      int64
	PredictionsVersion int64
	LoadedAt           time.Time
}

// Stats describes the cache contents.
type Stats struct {
	Source             string
	Loaded             bool
	PriceRows          int
	PredictionRows     int
	PricesVersion      int64
	PredictionsVersion int64
	PriceViews         int
	PredictionViews    int
	LoadedAt           time.Time
}

type viewKey struct {
	ticker  string
	rng     string
	version int64
}

// Cache holds the current Snapshot and memoizes filtered views. It is safe
// for concurrent use. Every read re-checks the source versions, so a view
// is never served from a stale table.
type Cache struct {
	source Source
	logger *slog.Logger

	// refreshMu serializes loads so concurrent readers trigger at most one.
	refreshMu sync.Mutex
	failed    *failure

	mu          sync.RWMutex
	snap        *Snapshot
	prices      *lru.Cache[viewKey, []domain.PricePoint]
	predictions *lru.Cache[viewKey, []domain.PredictionPoint]
	listeners   []func(Snapshot)
}

// failure remembers the last load error for a pair of versions so a broken
// file is not re-parsed on every request.
type failure struct {
	prices, predictions int64
	err                 error
}

// NewCache creates an empty Cache over source.
func NewCache(source Source, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		source:      source,
		logger:      logger,
		prices:      newViewCache[domain.PricePoint](),
		predictions: newViewCache[domain.PredictionPoint](),
	}
}

func newViewCache[T any]() *lru.Cache[viewKey, []T] {
	c, err := lru.New[viewKey, []T](MaxViews)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return c
}

// OnReload registers fn to be called after each successful load that
// changed at least one table.
func (c *Cache) OnReload(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Refresh reloads whichever tables changed since the last load, running
// both loads concurrently. It reports whether anything was reloaded. On
// failure the previous snapshot is kept.
func (c *Cache) Refresh(ctx context.Context) (bool, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	pv, qv, err := c.source.Versions(ctx)
	if err != nil {
		return false, fmt.Errorf("checking %s source: %w", c.source.Name(), err)
	}

	c.mu.RLock()
	cur := c.snap
	c.mu.RUnlock()

	needPrices := cur == nil || cur.PricesVersion != pv
	needPredictions := cur == nil || cur.PredictionsVersion != qv
	if !needPrices && !needPredictions {
		return false, nil
	}
	if f := c.failed; f != nil && f.prices == pv && f.predictions == qv {
		return false, f.err
	}

	next := Snapshot{PricesVersion: pv, PredictionsVersion: qv, LoadedAt: time.Now()}
	if cur != nil {
		next.Prices = cur.Prices
		next.Predictions = cur.Predictions
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	if needPrices {
		g.Go(func() error {
			return util.Retry(gctx, loadAttempts, loadBaseDelay, func() error {
				rows, err := c.source.LoadPrices(gctx)
				if err != nil {
					return fmt.Errorf("loading prices: %w", err)
				}
				next.Prices = rows
				return nil
			})
		})
	}
	if needPredictions {
		g.Go(func() error {
			return util.Retry(gctx, loadAttempts, loadBaseDelay, func() error {
				rows, err := c.source.LoadPredictions(gctx)
				if err != nil {
					return fmt.Errorf("loading predictions: %w", err)
				}
				next.Predictions = rows
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		c.failed = &failure{prices: pv, predictions: qv, err: err}
		c.logger.Error("dataset load failed", "source", c.source.Name(), "error", err)
		return false, err
	}
	c.failed = nil

	c.mu.Lock()
	c.snap = &next
	c.prices.Purge()
	c.predictions.Purge()
	listeners := append([]func(Snapshot){}, c.listeners...)
	c.mu.Unlock()

	c.logger.Info("dataset loaded",
		"source", c.source.Name(),
		"prices", len(next.Prices),
		"predictions", len(next.Predictions),
		"prices_version", pv,
		"predictions_version", qv,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	for _, fn := range listeners {
		fn(next)
	}
	return true, nil
}

// Snapshot returns the current tables, loading them first if necessary.
func (c *Cache) Snapshot(ctx context.Context) (Snapshot, error) {
	if _, err := c.Refresh(ctx); err != nil {
		return Snapshot{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.snap, nil
}

// Prices returns the price rows of ticker within r sorted by date, and the
// version of the table they came from.
func (c *Cache) Prices(ctx context.Context, ticker string, r domain.DateRange) ([]domain.PricePoint, int64, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	key := viewKey{ticker: ticker, rng: r.String(), version: snap.PricesVersion}

	if rows, ok := c.prices.Get(key); ok {
		return rows, key.version, nil
	}

	rows := domain.FilterPrices(snap.Prices, ticker, r)
	c.mu.RLock()
	if c.snap != nil && c.snap.PricesVersion == key.version {
		c.prices.Add(key, rows)
	}
	c.mu.RUnlock()
	return rows, key.version, nil
}

// Predictions returns the prediction rows of ticker within r sorted by
// date, and the version of the table they came from.
func (c *Cache) Predictions(ctx context.Context, ticker string, r domain.DateRange) ([]domain.PredictionPoint, int64, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	key := viewKey{ticker: ticker, rng: r.String(), version: snap.PredictionsVersion}

	if rows, ok := c.predictions.Get(key); ok {
		return rows, key.version, nil
	}

	rows := domain.FilterPredictions(snap.Predictions, ticker, r)
	c.mu.RLock()
	if c.snap != nil && c.snap.PredictionsVersion == key.version {
		c.predictions.Add(key, rows)
	}
	c.mu.RUnlock()
	return rows, key.version, nil
}

// Stats reports the cache contents without triggering a load.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Stats{
		Source:          c.source.Name(),
		PriceViews:      c.prices.Len(),
		PredictionViews: c.predictions.Len(),
	}
	if c.snap != nil {
		st.Loaded = true
		st.PriceRows = len(c.snap.Prices)
		st.PredictionRows = len(c.snap.Predictions)
		st.PricesVersion = c.snap.PricesVersion
		st.PredictionsVersion = c.snap.PredictionsVersion
		st.LoadedAt = c.snap.LoadedAt
	}
	return st
}

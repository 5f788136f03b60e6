// Package scheduler runs the periodic dataset refresh and the nightly
// report snapshot on seconds-enabled cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"stockboard/internal/dataset"
	"stockboard/internal/domain"
	"stockboard/internal/metrics"
	"stockboard/internal/store"
)

// snapshotWorkers bounds concurrent per-ticker computations.
const snapshotWorkers = 4

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron    *cron.Cron
	cache   *dataset.Cache
	reports store.ReportStore
	tickers []string
	log     *slog.Logger
	ctx     context.Context

	jobs atomic.Int32
}

// New creates a Scheduler. Jobs run with ctx and stop at the next
// cancellation point once it is cancelled.
func New(ctx context.Context, cache *dataset.Cache, reports store.ReportStore, tickers []string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if reports == nil {
		reports = store.NewNoopReportStore()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		cache:   cache,
		reports: reports,
		tickers: tickers,
		log:     logger,
		ctx:     ctx,
	}
}

// Register adds the refresh and snapshot jobs. An empty spec disables that
// job.
func (s *Scheduler) Register(refreshSpec, snapshotSpec string) error {
	if refreshSpec != "" {
		if _, err := s.cron.AddFunc(refreshSpec, s.refreshTask); err != nil {
			return fmt.Errorf("register refresh task %q: %w", refreshSpec, err)
		}
		s.jobs.Add(1)
	}
	if snapshotSpec != "" {
		if _, err := s.cron.AddFunc(snapshotSpec, s.snapshotTask); err != nil {
			return fmt.Errorf("register snapshot task %q: %w", snapshotSpec, err)
		}
		s.jobs.Add(1)
	}
	return nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return int(s.jobs.Load())
}

// Start starts the cron scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", s.Jobs())
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) refreshTask() {
	if _, err := s.RefreshNow(s.ctx); err != nil {
		s.log.Error("scheduled refresh", "error", err)
	}
}

func (s *Scheduler) snapshotTask() {
	n, err := s.SnapshotNow(s.ctx)
	if err != nil {
		s.log.Error("scheduled snapshot", "error", err)
		return
	}
	s.log.Info("snapshot recorded", "reports", n)
}

// RefreshNow reloads changed tables, reporting whether anything changed.
// Reload listeners fire from within the cache.
func (s *Scheduler) RefreshNow(ctx context.Context) (bool, error) {
	changed, err := s.cache.Refresh(ctx)
	if err != nil {
		return false, fmt.Errorf("refreshing dataset: %w", err)
	}
	if changed {
		s.log.Debug("dataset refreshed by schedule")
	}
	return changed, nil
}

// SnapshotNow computes the full-history price summary and prediction report
// of every ticker and records them. Tickers without data are skipped. It
// returns the number of reports recorded.
func (s *Scheduler) SnapshotNow(ctx context.Context) (int, error) {
	if _, err := s.cache.Snapshot(ctx); err != nil {
		return 0, fmt.Errorf("loading dataset: %w", err)
	}

	start := time.Now()
	var recorded atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotWorkers)
	for _, ticker := range s.tickers {
		g.Go(func() error {
			n, err := s.snapshotTicker(gctx, ticker)
			recorded.Add(int32(n))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return int(recorded.Load()), err
	}
	s.log.Debug("snapshot complete",
		"tickers", len(s.tickers),
		"reports", recorded.Load(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return int(recorded.Load()), nil
}

func (s *Scheduler) snapshotTicker(ctx context.Context, ticker string) (int, error) {
	var all domain.DateRange
	n := 0

	prices, pv, err := s.cache.Prices(ctx, ticker, all)
	if err != nil {
		return n, fmt.Errorf("loading %s prices: %w", ticker, err)
	}
	if len(prices) == 0 {
		s.log.Debug("no price history", "ticker", ticker)
	} else {
		sum, err := metrics.SummarizePrices(prices)
		if err != nil {
			return n, fmt.Errorf("summarizing %s prices: %w", ticker, err)
		}
		if err := s.reports.SaveReport(ctx, store.NewPriceReport(ticker, all, pv, sum)); err != nil {
			return n, fmt.Errorf("recording %s price report: %w", ticker, err)
		}
		n++
	}

	preds, qv, err := s.cache.Predictions(ctx, ticker, all)
	if err != nil {
		return n, fmt.Errorf("loading %s predictions: %w", ticker, err)
	}
	if !slices.ContainsFunc(preds, func(p domain.PredictionPoint) bool { return !p.IsFuture() }) {
		s.log.Debug("no prediction history", "ticker", ticker)
		return n, nil
	}
	rep, err := metrics.ComparePredictions(preds)
	if err != nil {
		return n, fmt.Errorf("comparing %s predictions: %w", ticker, err)
	}
	if err := s.reports.SaveReport(ctx, store.NewPredictionReport(ticker, all, qv, rep)); err != nil {
		return n, fmt.Errorf("recording %s prediction report: %w", ticker, err)
	}
	return n + 1, nil
}

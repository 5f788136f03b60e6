package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"stockboard/internal/config"
	"stockboard/internal/dataset"
	"stockboard/internal/scheduler"
	"stockboard/internal/store"
	"stockboard/internal/util"
)

const version = "0.3.0"

// options holds the persistent flags.
type options struct {
	configPath string
	serverURL  string
	logLevel   string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "stockboard",
		Short: "Stock price history and model prediction metrics",
		Long: `stockboard summarizes daily closing prices and evaluates next-day close
predictions for a fixed universe of tickers. It reads the CSV or Parquet
tables directly, or queries a running stockboard-server with --server.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.SetDefault(util.NewLoggerTo(os.Stderr, opts.logLevel, "text"))
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", config.Path(), "configuration file path")
	rootCmd.PersistentFlags().StringVar(&opts.serverURL, "server", "", "stockboard-server base URL (default: read local files)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newSummaryCmd(opts))
	rootCmd.AddCommand(newPredictionsCmd(opts))
	rootCmd.AddCommand(newReportsCmd(opts))
	rootCmd.AddCommand(newImportCmd(opts))
	rootCmd.AddCommand(newSnapshotCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newSummaryCmd(opts *options) *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "summary TICKER",
		Short: "Show low, mean and high closing prices",
		Example: `  stockboard summary AAPL
  stockboard summary MSFT --start 2024-01-01 --end 2024-06-30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, closeFn, err := openBackend(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			v, err := b.Prices(cmd.Context(), args[0], start, end)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPriceView(v))
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first date, YYYY-MM-DD (default: configured start date)")
	cmd.Flags().StringVar(&end, "end", "", "last date, YYYY-MM-DD (default: today)")
	return cmd
}

func newPredictionsCmd(opts *options) *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "predictions TICKER",
		Short: "Evaluate predicted against actual closing prices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, closeFn, err := openBackend(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			v, err := b.Predictions(cmd.Context(), args[0], start, end)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPredictionView(v))
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first date, YYYY-MM-DD (default: unbounded)")
	cmd.Flags().StringVar(&end, "end", "", "last date, YYYY-MM-DD (default: unbounded)")
	return cmd
}

func newReportsCmd(opts *options) *cobra.Command {
	var kind string
	var limit int
	cmd := &cobra.Command{
		Use:   "reports TICKER",
		Short: "List recorded metrics reports, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, closeFn, err := openBackend(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			resp, err := b.Reports(cmd.Context(), args[0], kind, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderReports(resp))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "report kind: prices or predictions (default: both)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of reports")
	return cmd
}

func newImportCmd(opts *options) *cobra.Command {
	var pricesPath, predictionsPath, outDir string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Convert the CSV tables into per-ticker Parquet files",
		Long: `import reads the prices and predictions CSV files and merges them into the
Parquet directory used by data.source: parquet. Rows already present for a
date are replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if pricesPath == "" {
				pricesPath = cfg.Data.PricesCSV
			}
			if predictionsPath == "" {
				predictionsPath = cfg.Data.PredictionsCSV
			}
			if outDir == "" {
				outDir = cfg.Data.ParquetDir
			}
			return runImport(cmd, pricesPath, predictionsPath, outDir)
		},
	}
	cmd.Flags().StringVar(&pricesPath, "prices", "", "prices CSV (default: data.prices_csv)")
	cmd.Flags().StringVar(&predictionsPath, "predictions", "", "predictions CSV (default: data.predictions_csv)")
	cmd.Flags().StringVar(&outDir, "out", "", "Parquet directory (default: data.parquet_dir)")
	return cmd
}

func runImport(cmd *cobra.Command, pricesPath, predictionsPath, outDir string) error {
	ctx := cmd.Context()
	prices, err := store.LoadPriceHistory(pricesPath)
	if err != nil {
		return err
	}
	preds, err := store.LoadPredictions(predictionsPath)
	if err != nil {
		return err
	}

	ps := store.NewParquetStore(outDir)
	if err := ps.WritePrices(ctx, prices); err != nil {
		return err
	}
	if err := ps.WritePredictions(ctx, preds); err != nil {
		return err
	}

	counts := make(map[string][2]int)
	for _, p := range prices {
		c := counts[p.Ticker]
		c[0]++
		counts[p.Ticker] = c
	}
	for _, p := range preds {
		c := counts[p.Ticker]
		c[1]++
		counts[p.Ticker] = c
	}
	tickers := make([]string, 0, len(counts))
	for t := range counts {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	out := cmd.OutOrStdout()
	for _, t := range tickers {
		fmt.Fprintf(out, "%-6s %6d prices %6d predictions\n", t, counts[t][0], counts[t][1])
	}
	fmt.Fprintf(out, "imported %d price rows and %d prediction rows into %s\n", len(prices), len(preds), outDir)
	return nil
}

func newSnapshotCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Compute and record full-history reports for every ticker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Storage.SQLitePath == "" {
				return fmt.Errorf("storage.sqlite_path is not configured")
			}
			src, err := dataset.NewSource(cfg.Data)
			if err != nil {
				return err
			}
			reports, err := store.OpenReportStore(cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer reports.Close()

			cache := dataset.NewCache(src, nil)
			s := scheduler.New(cmd.Context(), cache, reports, cfg.Tickers, nil)
			n, err := s.SnapshotNow(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %d reports for %d tickers\n", n, len(cfg.Tickers))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stockboard v%s\n", version)
		},
	}
}

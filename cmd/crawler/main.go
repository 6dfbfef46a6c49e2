package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-bookstore-crawler/config"
	"github.com/aluiziolira/go-bookstore-crawler/crawler"
	"github.com/aluiziolira/go-bookstore-crawler/models"
	"github.com/aluiziolira/go-bookstore-crawler/pipeline"
	"github.com/aluiziolira/go-bookstore-crawler/store"
)

func main() {
	defaultCfg := config.DefaultConfig()
	rootDefault := defaultCfg.RootURL
	if value, ok := config.EnvString("CRAWLER_ROOT_URL"); ok {
		rootDefault = value
	}
	concurrencyDefault := defaultCfg.MaxConcurrency
	if value, ok, err := config.EnvInt("CRAWLER_CONCURRENCY"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid CRAWLER_CONCURRENCY: %v\n", err)
		os.Exit(1)
	} else if ok {
		concurrencyDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("CRAWLER_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("CRAWLER_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	excludeDefault := strings.Join(defaultCfg.ExcludedCategories, ",")
	if value, ok := config.EnvList("CRAWLER_EXCLUDE"); ok {
		excludeDefault = strings.Join(value, ",")
	}
	dbDefault := defaultCfg.DBPath
	if value, ok := config.EnvString("CRAWLER_DB_PATH"); ok {
		dbDefault = value
	}
	pageDelayDefault := defaultCfg.PageDelay
	if value, ok, err := config.EnvDuration("CRAWLER_PAGE_DELAY"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid CRAWLER_PAGE_DELAY: %v\n", err)
		os.Exit(1)
	} else if ok {
		pageDelayDefault = value
	}

	rootURL := flag.String("root-url", rootDefault, "Catalog root URL")
	concurrency := flag.Int("concurrency", concurrencyDefault, "Shared cap on in-flight requests")
	itemLimit := flag.Int("item-limit", 0, "Soft cap on items before enrichment (0 = unlimited)")
	exclude := flag.String("exclude", excludeDefault, "Comma-separated category labels to skip")
	pageDelayMs := flag.Int("page-delay", int(pageDelayDefault/time.Millisecond), "Delay between listing pages (milliseconds)")
	batchDelayMs := flag.Int("batch-delay", int(defaultCfg.BatchDelay/time.Millisecond), "Pause between detail batches (milliseconds)")
	detailBatch := flag.Int("detail-batch", defaultCfg.DetailBatchSize, "Items per detail enrichment batch")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, json, dual, or sqlite")
	dbPath := flag.String("db", dbDefault, "SQLite path for the sqlite format")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.RootURL = *rootURL
	cfg.MaxConcurrency = *concurrency
	cfg.ItemLimit = *itemLimit
	cfg.ExcludedCategories = splitList(*exclude)
	cfg.PageDelay = time.Duration(*pageDelayMs) * time.Millisecond
	cfg.BatchDelay = time.Duration(*batchDelayMs) * time.Millisecond
	cfg.DetailBatchSize = *detailBatch
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.DBPath = *dbPath
	cfg.Verbose = *verbose
	cfg.MetricsAddr = *metricsAddr
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting crawl",
		slog.String("root_url", cfg.RootURL),
		slog.Int("concurrency", cfg.MaxConcurrency),
		slog.String("format", cfg.OutputFormat),
	)

	orch, err := crawler.NewOrchestrator(cfg)
	if err != nil {
		slog.Error("initialising crawler", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	writer, cleanup, err := createWriter(ctx, cfg)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer cleanup()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(orch.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p, err := pipeline.New(writer, cfg)
	if err != nil {
		slog.Error("initialising pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	p.Start(cfg.MaxConcurrency)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, err := orch.Crawl(ctx)
	if err != nil {
		slog.Error("crawl failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := p.Process(result.Items...); err != nil {
		slog.Error("pipeline process failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := writer.Close(); err != nil {
		slog.Error("closing writer", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, time.Since(startTime), cfg, p.GetMetrics())
}

// createWriter builds the configured sink. The sqlite format persists
// into the books table via a single collection replace; the file
// formats stream to disk. The cleanup closes any resources the writer
// itself does not own.
func createWriter(ctx context.Context, cfg *config.Config) (pipeline.OutputWriter, func(), error) {
	noop := func() {}
	switch cfg.OutputFormat {
	case "json":
		w, err := pipeline.NewJSONWriter(cfg.OutputFile)
		return w, noop, err
	case "csv":
		w, err := pipeline.NewCSVWriter(cfg.OutputFile)
		return w, noop, err
	case "dual":
		jsonFilename := strings.TrimSuffix(cfg.OutputFile, ".csv") + ".json"
		w, err := pipeline.NewDualWriter(cfg.OutputFile, jsonFilename)
		return w, noop, err
	case "sqlite":
		st, err := store.Open(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		cleanup := func() {
			if err := st.Close(); err != nil {
				slog.Error("closing database", slog.Any("error", err))
			}
		}
		return store.NewReplaceWriter(st, cfg.Collection), cleanup, nil
	default:
		return nil, noop, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func printSummary(result *models.CrawlResult, duration time.Duration, cfg *config.Config, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")

	totalItems := int64(0)
	if processed, ok := metrics["processed_items"].(int64); ok {
		totalItems = processed
	}

	fmt.Printf("  Total items:   %d\n", totalItems)
	fmt.Printf("  Pages crawled: %d\n", result.PageCount)
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	fmt.Printf("  Detail misses: %d\n", result.DetailErrors)
	fmt.Printf("  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if observations, ok := metrics["field_observations"].(map[string]int); ok && len(observations) > 0 {
		fmt.Printf("  Observations:  %v\n", observations)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(totalItems) / duration.Seconds()
	}
	fmt.Printf("  Items/sec:     %.2f\n", itemsPerSec)
	if cfg.OutputFormat == "sqlite" {
		fmt.Printf("  Database:      %s\n", cfg.DBPath)
	} else {
		fmt.Printf("  Output file:   %s\n", cfg.OutputFile)
	}
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

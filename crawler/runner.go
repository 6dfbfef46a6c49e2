package crawler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-bookstore-crawler/config"
	"github.com/aluiziolira/go-bookstore-crawler/models"
	"github.com/aluiziolira/go-bookstore-crawler/pipeline"
)

// WriterFactory builds a fresh sink for one crawl invocation.
type WriterFactory func() (pipeline.OutputWriter, error)

// Runner exposes the crawl as a single operation: crawl, push the
// result through the pipeline, flush to the sink, report the summary.
// A failing sink is logged but never invalidates the computed result;
// only an unreachable catalog root fails the operation.
type Runner struct {
	cfg       *config.Config
	orch      *Orchestrator
	newWriter WriterFactory

	mu sync.Mutex // one crawl at a time
}

// NewRunner wires an orchestrator to a sink factory.
func NewRunner(cfg *config.Config, orch *Orchestrator, newWriter WriterFactory) *Runner {
	return &Runner{
		cfg:       cfg,
		orch:      orch,
		newWriter: newWriter,
	}
}

// RunCrawl executes one complete crawl and returns its summary.
func (r *Runner) RunCrawl(ctx context.Context) (models.CrawlSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	result, err := r.orch.Crawl(ctx)
	if err != nil {
		return models.CrawlSummary{}, err
	}

	summary := models.CrawlSummary{
		ItemCount: len(result.Items),
		Duration:  time.Since(start),
	}

	slog.Info("crawl complete",
		slog.Int("items", summary.ItemCount),
		slog.Int("pages", result.PageCount),
		slog.Int("requests", result.RequestCount),
		slog.Int("errors", result.ErrorCount),
		slog.Int("detail_failures", result.DetailErrors),
		slog.Duration("duration", summary.Duration),
	)

	r.persist(result.Items)
	return summary, nil
}

func (r *Runner) persist(items []*models.EnrichedItem) {
	writer, err := r.newWriter()
	if err != nil {
		slog.Error("sink unavailable, crawl result not persisted", slog.Any("error", err))
		return
	}

	p, err := pipeline.New(writer, r.cfg)
	if err != nil {
		slog.Error("pipeline setup failed, crawl result not persisted", slog.Any("error", err))
		writer.Close()
		return
	}
	p.Start(r.cfg.MaxConcurrency)

	if err := p.Process(items...); err != nil {
		slog.Error("pipeline process failed", slog.Any("error", err))
	}
	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
	}
	if err := writer.Validate(); err != nil {
		slog.Warn("sink validation", slog.Any("error", err))
	}
	if err := writer.Close(); err != nil {
		slog.Error("sink write failed", slog.Any("error", err))
	}
}

// Package crawler implements the two-phase, bounded-concurrency catalog
// crawl: category discovery and listing collection first, then detail
// enrichment over the collected items in fixed-size batches. One shared
// semaphore caps in-flight fetches across both phases.
package crawler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/aluiziolira/go-bookstore-crawler/config"
	"github.com/aluiziolira/go-bookstore-crawler/models"
	"github.com/aluiziolira/go-bookstore-crawler/parser"
)

// Orchestrator drives a whole crawl invocation.
type Orchestrator struct {
	cfg     *config.Config
	fetcher *Fetcher
	sem     *semaphore.Weighted
	Metrics *Metrics

	requestCount int64
	errorCount   int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
}

// NewOrchestrator builds an orchestrator configured from cfg.
func NewOrchestrator(cfg *config.Config) (*Orchestrator, error) {
	if _, err := url.Parse(cfg.RootURL); err != nil {
		return nil, err
	}
	metrics := NewMetrics()
	return &Orchestrator{
		cfg:          cfg,
		fetcher:      NewFetcher(cfg, metrics),
		sem:          semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		Metrics:      metrics,
		errorsByType: make(map[string]int),
	}, nil
}

// WithTransport swaps the fetcher's round tripper; tests install mock
// transports through it.
func (o *Orchestrator) WithTransport(rt http.RoundTripper) {
	o.fetcher.WithTransport(rt)
}

// Crawl runs discovery, listing, and enrichment, returning the full
// enriched item set. Only an unreachable catalog root fails the crawl;
// every smaller failure is absorbed, logged, and reflected in the
// result's bookkeeping.
func (o *Orchestrator) Crawl(ctx context.Context) (*models.CrawlResult, error) {
	start := time.Now()

	categories, err := o.discover(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("categories discovered",
		slog.Int("total", len(categories)),
		slog.Int("excluded", len(o.cfg.ExcludedCategories)),
	)

	summaries, pages := o.collectListings(ctx, categories)

	// Soft cap: enforced only at the phase boundary, so concurrent
	// categories may individually overshoot before the check runs.
	if o.cfg.ItemLimit > 0 && len(summaries) > o.cfg.ItemLimit {
		slog.Info("truncating to item limit",
			slog.Int("collected", len(summaries)),
			slog.Int("limit", o.cfg.ItemLimit),
		)
		summaries = summaries[:o.cfg.ItemLimit]
	}

	enriched := o.enrich(ctx, summaries)

	return &models.CrawlResult{
		Items:        enriched,
		StartTime:    start,
		EndTime:      time.Now(),
		PageCount:    pages,
		RequestCount: int(atomic.LoadInt64(&o.requestCount)),
		ErrorCount:   int(atomic.LoadInt64(&o.errorCount)),
		DetailErrors: o.countDetailErrors(enriched),
		FailedURLs:   o.snapshotFailedURLs(),
		ErrorsByType: o.snapshotErrors(),
	}, nil
}

// discover fetches the root page and extracts the category set, minus
// the configured exclusions. Root failure is fatal.
func (o *Orchestrator) discover(ctx context.Context) ([]models.CategoryRef, error) {
	body, err := o.fetch(ctx, o.cfg.RootURL, PhaseDiscovery)
	if err != nil {
		return nil, &RootUnavailableError{URL: o.cfg.RootURL, Err: err}
	}

	refs, err := parser.Categories(body, o.cfg.RootURL)
	if err != nil {
		return nil, &RootUnavailableError{URL: o.cfg.RootURL, Err: err}
	}

	kept := refs[:0]
	for _, ref := range refs {
		if o.cfg.Excluded(ref.Label) {
			continue
		}
		kept = append(kept, ref)
	}
	return kept, nil
}

// collectListings runs one category crawler per category. The shared
// semaphore bounds in-flight page fetches; the errgroup is the phase
// barrier. Per-category results land in a pre-allocated slot each, then
// concatenate in category-discovery order.
func (o *Orchestrator) collectListings(ctx context.Context, categories []models.CategoryRef) ([]models.ItemSummary, int) {
	perCategory := make([][]models.ItemSummary, len(categories))
	var pageCount int64

	var g errgroup.Group
	for i, ref := range categories {
		g.Go(func() error {
			cc := &categoryCrawler{
				fetch:     o.fetch,
				sem:       o.sem,
				metrics:   o.Metrics,
				pageDelay: o.cfg.PageDelay,
			}
			items, pages := cc.run(ctx, ref)
			perCategory[i] = items
			atomic.AddInt64(&pageCount, int64(pages))
			return nil
		})
	}
	g.Wait()

	var all []models.ItemSummary
	for _, items := range perCategory {
		all = append(all, items...)
	}
	return all, int(atomic.LoadInt64(&pageCount))
}

// enrich fetches and parses each item's detail page in fixed-size
// batches. The whole batch drains before the next starts, with a
// politeness pause in between. A failed item keeps its summary fields
// and carries no detail.
func (o *Orchestrator) enrich(ctx context.Context, summaries []models.ItemSummary) []*models.EnrichedItem {
	enriched := make([]*models.EnrichedItem, 0, len(summaries))
	var mu sync.Mutex

	batchSize := o.cfg.DetailBatchSize
	totalBatches := (len(summaries) + batchSize - 1) / batchSize

	for offset := 0; offset < len(summaries); offset += batchSize {
		end := offset + batchSize
		if end > len(summaries) {
			end = len(summaries)
		}
		batch := summaries[offset:end]
		slog.Debug("enriching batch",
			slog.Int("batch", offset/batchSize+1),
			slog.Int("total_batches", totalBatches),
			slog.Int("size", len(batch)),
		)

		var g errgroup.Group
		for _, summary := range batch {
			g.Go(func() error {
				item := &models.EnrichedItem{
					ItemSummary: summary,
					ScrapedAt:   time.Now().UTC(),
				}
				item.Detail = o.fetchDetail(ctx, summary)

				mu.Lock()
				enriched = append(enriched, item)
				mu.Unlock()
				return nil
			})
		}
		g.Wait()

		if end < len(summaries) {
			if !sleepCtx(ctx, o.cfg.BatchDelay) {
				break
			}
		}
	}
	return enriched
}

// fetchDetail returns the parsed detail record for one item, or nil when
// the item has no detail URL or its fetch failed. Detail extraction is
// all-or-nothing: a non-nil record is always fully populated, with
// missing fields carrying the parser's sentinel.
func (o *Orchestrator) fetchDetail(ctx context.Context, summary models.ItemSummary) *models.ItemDetail {
	if summary.DetailURL == "" {
		o.Metrics.IncDetailFailure()
		return nil
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil
	}
	body, err := o.fetch(ctx, summary.DetailURL, PhaseDetail)
	o.sem.Release(1)
	if err != nil {
		o.Metrics.IncDetailFailure()
		slog.Warn("detail fetch failed, keeping bare summary",
			slog.String("title", summary.Title),
			slog.String("url", summary.DetailURL),
			slog.Any("error", err),
		)
		return nil
	}

	detail, err := parser.Details(body)
	if err != nil {
		o.Metrics.IncDetailFailure()
		slog.Warn("detail page unparseable",
			slog.String("url", summary.DetailURL),
			slog.Any("error", err),
		)
		return nil
	}
	return &detail
}

// fetch wraps the fetcher with request/error bookkeeping.
func (o *Orchestrator) fetch(ctx context.Context, pageURL, phase string) (string, error) {
	atomic.AddInt64(&o.requestCount, 1)
	body, err := o.fetcher.Fetch(ctx, pageURL, phase)
	if err != nil {
		atomic.AddInt64(&o.errorCount, 1)
		label := errorTypeLabel(err)
		if fe, ok := err.(*FetchError); ok {
			label = errorTypeLabel(fe.Err)
		}
		o.Metrics.IncError(label)

		o.mu.Lock()
		o.errorsByType[label]++
		o.failedURLs = append(o.failedURLs, pageURL)
		o.mu.Unlock()
		return "", err
	}
	return body, nil
}

func (o *Orchestrator) countDetailErrors(items []*models.EnrichedItem) int {
	count := 0
	for _, item := range items {
		if item.Detail == nil {
			count++
		}
	}
	return count
}

func (o *Orchestrator) snapshotFailedURLs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.failedURLs))
	copy(out, o.failedURLs)
	return out
}

func (o *Orchestrator) snapshotErrors() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]int, len(o.errorsByType))
	for k, v := range o.errorsByType {
		out[k] = v
	}
	return out
}

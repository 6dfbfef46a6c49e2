package crawler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aluiziolira/go-bookstore-crawler/models"
	"github.com/aluiziolira/go-bookstore-crawler/parser"
)

// categoryState tracks where a category crawl is in its page loop.
type categoryState int

const (
	stateFetchingPage categoryState = iota
	stateParsing
	stateDone
	stateFailed
)

// categoryCrawler walks one category's pagination chain. A concurrency
// slot is held for each page's fetch+parse and released between pages,
// so slow categories do not starve the shared cap.
type categoryCrawler struct {
	fetch     func(ctx context.Context, url, phase string) (string, error)
	sem       *semaphore.Weighted
	metrics   *Metrics
	pageDelay time.Duration
}

// run crawls every page of ref until pagination ends or a fetch fails.
// A fetch failure terminates the loop but keeps the pages accumulated so
// far: partial-category results are valid output, not errors.
func (c *categoryCrawler) run(ctx context.Context, ref models.CategoryRef) ([]models.ItemSummary, int) {
	var accumulated []models.ItemSummary
	pages := 0

	state := stateFetchingPage
	current := ref.URL
	var body string

	for {
		switch state {
		case stateFetchingPage:
			if err := c.sem.Acquire(ctx, 1); err != nil {
				return accumulated, pages
			}
			fetched, err := c.fetch(ctx, current, PhaseListing)
			if err != nil {
				c.sem.Release(1)
				slog.Warn("category page fetch failed, keeping partial results",
					slog.String("category", ref.Label),
					slog.String("url", current),
					slog.Int("pages_done", pages),
					slog.Any("error", err),
				)
				state = stateFailed
				continue
			}
			body = fetched
			state = stateParsing

		case stateParsing:
			items, err := parser.Items(body, ref.Label, current)
			if err != nil {
				c.sem.Release(1)
				slog.Warn("listing page unparseable",
					slog.String("category", ref.Label),
					slog.String("url", current),
					slog.Any("error", err),
				)
				state = stateFailed
				continue
			}
			accumulated = append(accumulated, items...)
			pages++
			c.metrics.IncPages()
			c.metrics.AddItems(len(items))

			next, err := parser.NextPageURL(body, current)
			c.sem.Release(1)
			if err != nil || next == "" {
				state = stateDone
				continue
			}

			// Pacing between pages of a single host.
			if !sleepCtx(ctx, c.pageDelay) {
				return accumulated, pages
			}
			current = next
			state = stateFetchingPage

		case stateDone:
			slog.Debug("category complete",
				slog.String("category", ref.Label),
				slog.Int("pages", pages),
				slog.Int("items", len(accumulated)),
			)
			return accumulated, pages

		case stateFailed:
			return accumulated, pages
		}
	}
}

// sleepCtx pauses for d unless the context ends first. It reports
// whether the full pause elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Package pipeline coordinates normalization, de-duplication, and sink
// writing for crawled items.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-bookstore-crawler/config"
	"github.com/aluiziolira/go-bookstore-crawler/models"
)

// ErrPipelineClosed is returned when Process is called after shutdown.
var ErrPipelineClosed = errors.New("pipeline: closed")

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(items []*models.EnrichedItem) error
	Close() error
	Validate() error
}

// Pipeline fans enriched items out to worker goroutines that normalize,
// de-duplicate, and batch them into an OutputWriter.
type Pipeline struct {
	writer    OutputWriter
	itemCh    chan *models.EnrichedItem
	batchSize int

	wg sync.WaitGroup

	seen *lru.Cache[string, struct{}]

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New builds a pipeline sized from cfg. The duplicate cache is bounded
// by cfg.DedupeMaxSize so unbounded crawls cannot grow it without limit.
func New(writer OutputWriter, cfg *config.Config) (*Pipeline, error) {
	seen, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("dedupe cache: %w", err)
	}
	return &Pipeline{
		writer:    writer,
		itemCh:    make(chan *models.EnrichedItem, cfg.PipelineBufferSize),
		batchSize: cfg.PipelineBatchSize,
		seen:      seen,
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}, nil
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues items for downstream processing.
func (p *Pipeline) Process(items ...*models.EnrichedItem) error {
	if len(items) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, item := range items {
		if item == nil {
			continue
		}
		if err := p.enqueue(item); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to finish and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.itemCh)
	})

	p.wg.Wait()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				processed := metrics["processed_items"].(int64)
				observations := metrics["field_observations"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Int("observation_kinds", len(observations)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.EnrichedItem, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for item := range p.itemCh {
		prepared := p.prepare(item)
		if prepared == nil {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

// prepare normalizes one item and drops exact duplicates. Items carrying
// placeholder title or price text are kept so page-level counts stay
// auditable, but they are counted in the field observations.
func (p *Pipeline) prepare(item *models.EnrichedItem) *models.EnrichedItem {
	item.Title = strings.TrimSpace(item.Title)
	item.Price = strings.TrimSpace(item.Price)

	if item.Title == "" || item.Title == "No title" {
		p.metrics.addObservation("placeholder_title")
	}
	if item.Price == "" || item.Price == "No price" {
		p.metrics.addObservation("placeholder_price")
	}
	if item.Detail == nil {
		p.metrics.addObservation("missing_detail")
	}

	if ok, _ := p.seen.ContainsOrAdd(p.dedupeKey(item), struct{}{}); ok {
		p.metrics.addObservation("duplicate_item")
		return nil
	}

	p.metrics.incrementProcessed()
	return item
}

func (p *Pipeline) dedupeKey(item *models.EnrichedItem) string {
	if item.DetailURL != "" {
		return item.DetailURL
	}
	return item.Category + "\x00" + item.Title + "\x00" + item.Price
}

func (p *Pipeline) enqueue(item *models.EnrichedItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.itemCh <- item:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.itemCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu           sync.Mutex
	processed    int64
	observations map[string]int
}

func newMetrics() metrics {
	return metrics{
		observations: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addObservation(kind string) {
	m.mu.Lock()
	m.observations[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyObservations := make(map[string]int, len(m.observations))
	for k, v := range m.observations {
		copyObservations[k] = v
	}

	return map[string]interface{}{
		"processed_items":    m.processed,
		"field_observations": copyObservations,
	}
}

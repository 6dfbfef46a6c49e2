package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-bookstore-crawler/models"
)

// ReplaceWriter adapts the store to the pipeline's OutputWriter. It
// buffers every batch and performs exactly one ReplaceAll when closed,
// so the sink sees the full result set once, after enrichment finishes.
type ReplaceWriter struct {
	store      *Store
	collection string

	mu      sync.Mutex
	pending []*models.EnrichedItem
	flushed int
	closed  bool
}

// NewReplaceWriter builds a writer targeting one collection.
func NewReplaceWriter(store *Store, collection string) *ReplaceWriter {
	return &ReplaceWriter{
		store:      store,
		collection: collection,
	}
}

// Write buffers a batch for the final replace.
func (rw *ReplaceWriter) Write(items []*models.EnrichedItem) error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.closed {
		return fmt.Errorf("replace writer: closed")
	}
	rw.pending = append(rw.pending, items...)
	return nil
}

// Close performs the single drop-then-insert against the store.
func (rw *ReplaceWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.closed {
		return nil
	}
	rw.closed = true

	count, err := rw.store.ReplaceAll(context.Background(), rw.collection, rw.pending)
	if err != nil {
		return fmt.Errorf("replace collection %s: %w", rw.collection, err)
	}
	rw.flushed = count
	rw.pending = nil
	return nil
}

// Validate ensures the writer has (or will) persist at least one record.
func (rw *ReplaceWriter) Validate() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.closed {
		if rw.flushed == 0 {
			return fmt.Errorf("replace writer: nothing persisted")
		}
		return nil
	}
	if len(rw.pending) == 0 {
		return fmt.Errorf("replace writer: no records buffered")
	}
	return nil
}

// Flushed reports how many records the final replace inserted.
func (rw *ReplaceWriter) Flushed() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.flushed
}

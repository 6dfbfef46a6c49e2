package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-bookstore-crawler/config"
	"github.com/aluiziolira/go-bookstore-crawler/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.ConnectRetries = 1
	cfg.ConnectRetryDelay = 10 * time.Millisecond

	st, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func enriched(category, title, price, availability string) *models.EnrichedItem {
	return &models.EnrichedItem{
		ItemSummary: models.ItemSummary{
			Category:  category,
			Title:     title,
			Price:     price,
			DetailURL: "http://example.test/catalogue/" + title + "/index.html",
		},
		Detail: &models.ItemDetail{
			Title:        title,
			Description:  "About " + title,
			CatalogCode:  "upc-" + title,
			Availability: availability,
		},
		ScrapedAt: time.Now().UTC(),
	}
}

func TestReplaceAllSwapsCollection(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	first := []*models.EnrichedItem{
		enriched("Travel", "Alpha", "£10.00", "In stock (3 available)"),
		enriched("Travel", "Beta", "£20.00", "In stock (1 available)"),
		enriched("Poetry", "Gamma", "£30.00", "Out of stock"),
	}
	if n, err := st.ReplaceAll(ctx, "books", first); err != nil || n != 3 {
		t.Fatalf("first replace = (%d, %v), want (3, nil)", n, err)
	}

	// A second crawl owns the collection wholesale.
	second := []*models.EnrichedItem{
		enriched("Poetry", "Delta", "£5.00", "In stock (9 available)"),
	}
	if n, err := st.ReplaceAll(ctx, "books", second); err != nil || n != 1 {
		t.Fatalf("second replace = (%d, %v), want (1, nil)", n, err)
	}

	items, total, err := st.ListBooks(ctx, "books", ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("after replace: total=%d len=%d, want 1/1", total, len(items))
	}
	if items[0].Title != "Delta" {
		t.Fatalf("surviving item = %q, want Delta", items[0].Title)
	}
	if items[0].PriceValue != 5.0 {
		t.Fatalf("price value = %v, want 5.0", items[0].PriceValue)
	}
	if !items[0].InStock {
		t.Fatalf("Delta should be in stock")
	}
}

func TestReplaceAllIsolatesCollections(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.ReplaceAll(ctx, "books", []*models.EnrichedItem{
		enriched("Travel", "Alpha", "£10.00", "In stock"),
	}); err != nil {
		t.Fatalf("replace books: %v", err)
	}
	if _, err := st.ReplaceAll(ctx, "archive", []*models.EnrichedItem{
		enriched("Poetry", "Old", "£1.00", "In stock"),
	}); err != nil {
		t.Fatalf("replace archive: %v", err)
	}

	if _, err := st.ReplaceAll(ctx, "books", nil); err != nil {
		t.Fatalf("clear books: %v", err)
	}

	_, total, err := st.ListBooks(ctx, "archive", ListOptions{})
	if err != nil {
		t.Fatalf("list archive: %v", err)
	}
	if total != 1 {
		t.Fatalf("archive total = %d, clearing books must not touch it", total)
	}
}

func TestListBooksFilters(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	seed := []*models.EnrichedItem{
		enriched("Travel", "Alpha", "£10.00", "In stock"),
		enriched("Travel", "Beta", "£25.50", "In stock"),
		enriched("Poetry", "Gamma", "£40.00", "In stock"),
	}
	if _, err := st.ReplaceAll(ctx, "books", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	items, total, err := st.ListBooks(ctx, "books", ListOptions{Category: "Travel"})
	if err != nil {
		t.Fatalf("filter category: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("travel books = %d/%d, want 2/2", total, len(items))
	}

	_, total, err = st.ListBooks(ctx, "books", ListOptions{MinPrice: 20, MaxPrice: 30})
	if err != nil {
		t.Fatalf("filter price: %v", err)
	}
	if total != 1 {
		t.Fatalf("price range match = %d, want 1", total)
	}

	items, total, err = st.ListBooks(ctx, "books", ListOptions{Limit: 2, Page: 2})
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if total != 3 || len(items) != 1 {
		t.Fatalf("page 2 = %d items of %d total, want 1 of 3", len(items), total)
	}
}

func TestGetBook(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.ReplaceAll(ctx, "books", []*models.EnrichedItem{
		enriched("Travel", "Alpha", "£10.00", "In stock"),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	items, _, err := st.ListBooks(ctx, "books", ListOptions{})
	if err != nil || len(items) != 1 {
		t.Fatalf("list: %v", err)
	}

	got, err := st.GetBook(ctx, "books", items[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Title != "Alpha" {
		t.Fatalf("get = %+v, want Alpha", got)
	}
	if got.Description != "About Alpha" {
		t.Fatalf("detail fields not stored: %+v", got)
	}

	missing, err := st.GetBook(ctx, "books", "no-such-id")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing id must return nil, got %+v", missing)
	}
}

func TestCategoryAndOverviewStats(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	seed := []*models.EnrichedItem{
		enriched("Travel", "Alpha", "£10.00", "In stock (3 available)"),
		enriched("Travel", "Beta", "£30.00", "Out of stock"),
		enriched("Poetry", "Gamma", "£40.00", "In stock (1 available)"),
	}
	// Placeholder price must not drag averages down.
	seed = append(seed, enriched("Travel", "NoPriceItem", "No price", "In stock"))

	if _, err := st.ReplaceAll(ctx, "books", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	stats, err := st.CategoryStats(ctx, "books")
	if err != nil {
		t.Fatalf("category stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("categories = %d, want 2", len(stats))
	}
	travel := stats[0]
	if travel.Category != "Travel" {
		t.Fatalf("largest category = %q, want Travel", travel.Category)
	}
	if travel.TotalItems != 3 {
		t.Fatalf("travel items = %d, want 3", travel.TotalItems)
	}
	if travel.AveragePrice != 20.0 {
		t.Fatalf("travel avg = %v, want 20.0 (placeholder excluded)", travel.AveragePrice)
	}
	if travel.MinPrice != 10.0 || travel.MaxPrice != 30.0 {
		t.Fatalf("travel min/max = %v/%v, want 10/30", travel.MinPrice, travel.MaxPrice)
	}
	if travel.TotalInStock != 2 {
		t.Fatalf("travel in stock = %d, want 2", travel.TotalInStock)
	}

	overview, err := st.Overview(ctx, "books")
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if overview.TotalItems != 4 || overview.TotalCategories != 2 {
		t.Fatalf("overview = %+v, want 4 items across 2 categories", overview)
	}
	if overview.TotalInStock != 3 {
		t.Fatalf("overview in stock = %d, want 3", overview.TotalInStock)
	}
}

func TestRequestLogs(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	entries := []models.RequestLog{
		{Timestamp: base, IPAddress: "1.1.1.1", User: "anonymous", Method: "GET", Path: "/api/v1/books", StatusCode: 200, ProcessTime: 0.01},
		{Timestamp: base.Add(time.Second), IPAddress: "2.2.2.2", User: "alice", IsAuthenticated: true, Method: "POST", Path: "/api/v1/scraping", StatusCode: 200, ProcessTime: 4.2},
		{Timestamp: base.Add(2 * time.Second), IPAddress: "3.3.3.3", User: "anonymous", Method: "GET", Path: "/api/v1/stats/overview", StatusCode: 200, ProcessTime: 0.02},
	}
	for _, e := range entries {
		if err := st.InsertRequestLog(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	logs, total, err := st.ListRequestLogs(ctx, LogFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(logs) != 3 {
		t.Fatalf("logs = %d/%d, want 3/3", len(logs), total)
	}
	if logs[0].IPAddress != "3.3.3.3" {
		t.Fatalf("logs not newest first: %q", logs[0].IPAddress)
	}

	authed := true
	logs, total, err = st.ListRequestLogs(ctx, LogFilter{IsAuthenticated: &authed})
	if err != nil {
		t.Fatalf("filter authed: %v", err)
	}
	if total != 1 || logs[0].User != "alice" {
		t.Fatalf("authed filter = %d/%q, want 1/alice", total, logs[0].User)
	}

	logs, total, err = st.ListRequestLogs(ctx, LogFilter{User: "anonymous"})
	if err != nil {
		t.Fatalf("filter user: %v", err)
	}
	if total != 2 {
		t.Fatalf("anonymous logs = %d, want 2", total)
	}
	_ = logs
}

func TestReplaceWriterFlushesOnce(t *testing.T) {
	st := openTestStore(t)

	rw := NewReplaceWriter(st, "books")
	if err := rw.Write([]*models.EnrichedItem{
		enriched("Travel", "Alpha", "£10.00", "In stock"),
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := rw.Write([]*models.EnrichedItem{
		enriched("Travel", "Beta", "£20.00", "In stock"),
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := rw.Validate(); err != nil {
		t.Fatalf("validate with buffered records: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if rw.Flushed() != 2 {
		t.Fatalf("flushed = %d, want 2", rw.Flushed())
	}
	if err := rw.Validate(); err != nil {
		t.Fatalf("validate after flush: %v", err)
	}

	// Closed writers refuse new batches and stay closed quietly.
	if err := rw.Write(nil); err == nil {
		t.Fatalf("write after close must fail")
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}

	_, total, err := st.ListBooks(context.Background(), "books", ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 {
		t.Fatalf("persisted = %d, want 2", total)
	}
}

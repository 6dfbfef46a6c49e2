package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aluiziolira/go-bookstore-crawler/config"
	"github.com/aluiziolira/go-bookstore-crawler/crawler"
	"github.com/aluiziolira/go-bookstore-crawler/models"
	"github.com/aluiziolira/go-bookstore-crawler/store"
)

type stubRunner struct {
	summary models.CrawlSummary
	err     error
	calls   int
}

func (r *stubRunner) RunCrawl(context.Context) (models.CrawlSummary, error) {
	r.calls++
	return r.summary, r.err
}

func newTestServer(t *testing.T, runner CrawlRunner) (*Server, *store.Store, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "api.db")
	cfg.ConnectRetries = 1
	cfg.ConnectRetryDelay = 10 * time.Millisecond
	cfg.JWTSecret = "test-secret"

	st, err := store.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	srv := NewServer(cfg, st, runner)
	return srv, st, srv.Router(nil)
}

func seedBooks(t *testing.T, st *store.Store) {
	t.Helper()
	items := []*models.EnrichedItem{
		{
			ItemSummary: models.ItemSummary{Category: "Travel", Title: "Alpha", Price: "£10.00", DetailURL: "http://example.test/a"},
			Detail:      &models.ItemDetail{Availability: "In stock (3 available)"},
			ScrapedAt:   time.Now().UTC(),
		},
		{
			ItemSummary: models.ItemSummary{Category: "Poetry", Title: "Beta", Price: "£20.00", DetailURL: "http://example.test/b"},
			Detail:      &models.ItemDetail{Availability: "Out of stock"},
			ScrapedAt:   time.Now().UTC(),
		},
	}
	if _, err := st.ReplaceAll(context.Background(), "books", items); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func registerAndLogin(t *testing.T, router *gin.Engine) string {
	t.Helper()

	body, _ := json.Marshal(gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "supersecret",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d (%s)", w.Code, w.Body.String())
	}

	body, _ = json.Marshal(gin.H{"email": "alice@example.com", "password": "supersecret"})
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d (%s)", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("login response missing token: %s", w.Body.String())
	}
	return resp.Token
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	_, _, router := newTestServer(t, &stubRunner{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/scraping"},
		{http.MethodGet, "/api/v1/logs"},
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s = %d, want 401", tc.method, tc.path, w.Code)
		}
	}
}

func TestTriggerScrape(t *testing.T) {
	runner := &stubRunner{summary: models.CrawlSummary{ItemCount: 42, Duration: 3 * time.Second}}
	_, _, router := newTestServer(t, runner)
	token := registerAndLogin(t, router)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scraping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if runner.calls != 1 {
		t.Fatalf("runner calls = %d, want 1", runner.calls)
	}

	var resp struct {
		Status          string  `json:"status"`
		ItemCount       int     `json:"item_count"`
		DurationSeconds float64 `json:"duration_seconds"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "completed" || resp.ItemCount != 42 || resp.DurationSeconds != 3.0 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestTriggerScrapeRootUnavailable(t *testing.T) {
	runner := &stubRunner{err: &crawler.RootUnavailableError{
		URL: "http://example.test/",
		Err: errors.New("connection refused"),
	}}
	_, _, router := newTestServer(t, runner)
	token := registerAndLogin(t, router)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scraping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
}

func TestBooksEndpoints(t *testing.T) {
	_, st, router := newTestServer(t, &stubRunner{})
	seedBooks(t, st)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/books?category=Travel", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list struct {
		Total int                `json:"total"`
		Items []models.StoredItem `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if list.Total != 1 || len(list.Items) != 1 || list.Items[0].Title != "Alpha" {
		t.Fatalf("list = %+v", list)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/books/"+list.Items[0].ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/books/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing book status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("categories status = %d", w.Code)
	}
	var cats struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &cats); err != nil {
		t.Fatalf("unmarshal categories: %v", err)
	}
	if len(cats.Categories) != 2 {
		t.Fatalf("categories = %v, want 2", cats.Categories)
	}
}

func TestStatsEndpoints(t *testing.T) {
	_, st, router := newTestServer(t, &stubRunner{})
	seedBooks(t, st)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats/overview", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("overview status = %d", w.Code)
	}
	var overview models.OverviewStats
	if err := json.Unmarshal(w.Body.Bytes(), &overview); err != nil {
		t.Fatalf("unmarshal overview: %v", err)
	}
	if overview.TotalItems != 2 || overview.TotalCategories != 2 || overview.TotalInStock != 1 {
		t.Fatalf("overview = %+v", overview)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats/categories", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("category stats status = %d", w.Code)
	}
	var perCat struct {
		Categories []models.CategoryStats `json:"categories"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &perCat); err != nil {
		t.Fatalf("unmarshal category stats: %v", err)
	}
	if len(perCat.Categories) != 2 {
		t.Fatalf("category stats = %+v", perCat.Categories)
	}
}

func TestRequestLoggingMiddleware(t *testing.T) {
	_, st, router := newTestServer(t, &stubRunner{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/books", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	router.ServeHTTP(w, req)

	// The insert is asynchronous.
	deadline := time.Now().Add(2 * time.Second)
	for {
		logs, total, err := st.ListRequestLogs(context.Background(), store.LogFilter{})
		if err != nil {
			t.Fatalf("list logs: %v", err)
		}
		if total == 1 {
			entry := logs[0]
			if entry.IPAddress != "203.0.113.9" {
				t.Fatalf("ip = %q, want first forwarded hop", entry.IPAddress)
			}
			if entry.Path != "/api/v1/books" || entry.Method != http.MethodGet {
				t.Fatalf("entry = %+v", entry)
			}
			if entry.IsAuthenticated || entry.User != "anonymous" {
				t.Fatalf("anonymous request logged as %q", entry.User)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("request log never appeared")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestHealthAndReady(t *testing.T) {
	_, _, router := newTestServer(t, &stubRunner{})

	for _, path := range []string{"/health", "/ready"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s = %d, want 200", path, w.Code)
		}
	}
}

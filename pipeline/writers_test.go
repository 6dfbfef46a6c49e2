package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-bookstore-crawler/models"
)

func sampleItems() []*models.EnrichedItem {
	return []*models.EnrichedItem{
		{
			ItemSummary: models.ItemSummary{
				Category:  "Travel",
				Title:     "Alpha",
				Price:     "£10.00",
				ImageURL:  "http://example.test/media/alpha.jpg",
				DetailURL: "http://example.test/catalogue/alpha/index.html",
			},
			Detail: &models.ItemDetail{
				Title:        "Alpha",
				Description:  "About Alpha",
				CatalogCode:  "upc-alpha",
				ProductType:  "Books",
				PriceExclTax: "£10.00",
				PriceInclTax: "£10.00",
				Tax:          "£0.00",
				Availability: "In stock (3 available)",
				ReviewCount:  "0",
			},
			ScrapedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			ItemSummary: models.ItemSummary{
				Category: "Travel",
				Title:    "Beta",
				Price:    "£20.00",
			},
			// Enrichment failed for this one.
			Detail:    nil,
			ScrapedAt: time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
		},
	}
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "books.csv")

	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("new csv writer: %v", err)
	}
	if err := w.Write(sampleItems()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(records))
	}
	if records[0][0] != "category" || records[0][6] != "catalog_code" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][1] != "Alpha" || records[1][6] != "upc-alpha" {
		t.Fatalf("unexpected first row: %v", records[1])
	}
	// Detail columns stay empty when enrichment failed.
	if records[2][1] != "Beta" || records[2][5] != "" || records[2][11] != "" {
		t.Fatalf("unexpected second row: %v", records[2])
	}
}

func TestJSONWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.jsonl")

	w, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("new json writer: %v", err)
	}
	if err := w.Write(sampleItems()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}

	var first models.EnrichedItem
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first line: %v", err)
	}
	if first.Title != "Alpha" || first.Detail == nil || first.Detail.CatalogCode != "upc-alpha" {
		t.Fatalf("unexpected first record: %+v", first)
	}

	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal second line: %v", err)
	}
	if _, present := second["details"]; present {
		t.Fatalf("nil detail must be omitted from json: %v", second)
	}
}

func TestDualWriter(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "books.csv")
	jsonPath := filepath.Join(dir, "books.jsonl")

	w, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("new dual writer: %v", err)
	}
	if err := w.Write(sampleItems()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, p := range []string{csvPath, jsonPath} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Fatalf("%s is empty", p)
		}
	}
}

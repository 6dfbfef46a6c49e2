// Package models defines data structures shared by the crawler, the
// pipeline, and the API layer.
package models

import "time"

// CategoryRef is one catalog category discovered on the root page.
// The label is the anchor text, the URL is absolute.
type CategoryRef struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// ItemSummary is one item as it appears on a category listing page.
// ImageURL and DetailURL may be empty when the listing markup lacks
// the image container; Title and Price fall back to placeholder text
// so page-level item counts stay auditable.
type ItemSummary struct {
	Category  string `csv:"category" json:"category"`
	ImageURL  string `csv:"image_url" json:"image_url,omitempty"`
	Title     string `csv:"title" json:"title"`
	Price     string `csv:"price" json:"price"`
	DetailURL string `csv:"detail_url" json:"detail_url,omitempty"`
}

// ItemDetail holds the enrichment attributes scraped from an item's
// detail page. All values are free-form strings with currency and unit
// formatting preserved; missing fields carry the sentinel emitted by
// the detail parser, never an empty string.
type ItemDetail struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	CatalogCode  string `json:"catalog_code"`
	ProductType  string `json:"product_type"`
	PriceExclTax string `json:"price_excl_tax"`
	PriceInclTax string `json:"price_incl_tax"`
	Tax          string `json:"tax"`
	Availability string `json:"availability"`
	ReviewCount  string `json:"review_count"`
}

// EnrichedItem is the unit handed to the persistence sink. Detail is
// nil when the detail fetch failed; it is never partially populated.
type EnrichedItem struct {
	ItemSummary
	Detail    *ItemDetail `json:"details,omitempty"`
	ScrapedAt time.Time   `json:"scraped_at"`
}

// CrawlSummary is what the crawl trigger reports back to its caller.
type CrawlSummary struct {
	ItemCount int           `json:"item_count"`
	Duration  time.Duration `json:"duration"`
}

// CrawlResult holds the outcome of one crawl invocation, including the
// bookkeeping the CLI summary prints.
type CrawlResult struct {
	Items        []*EnrichedItem
	StartTime    time.Time
	EndTime      time.Time
	PageCount    int
	RequestCount int
	ErrorCount   int
	DetailErrors int
	FailedURLs   []string
	ErrorsByType map[string]int
}

// StoredItem is the persisted shape of an EnrichedItem: a generated ID
// plus a numeric price column derived at write time for aggregation.
type StoredItem struct {
	ID           string    `json:"id"`
	Collection   string    `json:"-"`
	Category     string    `json:"category"`
	Title        string    `json:"title"`
	Price        string    `json:"price"`
	PriceValue   float64   `json:"price_value"`
	ImageURL     string    `json:"image_url,omitempty"`
	DetailURL    string    `json:"detail_url,omitempty"`
	Description  string    `json:"description,omitempty"`
	CatalogCode  string    `json:"catalog_code,omitempty"`
	ProductType  string    `json:"product_type,omitempty"`
	PriceExclTax string    `json:"price_excl_tax,omitempty"`
	PriceInclTax string    `json:"price_incl_tax,omitempty"`
	Tax          string    `json:"tax,omitempty"`
	Availability string    `json:"availability,omitempty"`
	ReviewCount  string    `json:"review_count,omitempty"`
	InStock      bool      `json:"in_stock"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

// CategoryStats aggregates the persisted collection per category.
type CategoryStats struct {
	Category     string  `json:"category"`
	TotalItems   int     `json:"total_items"`
	AveragePrice float64 `json:"average_price"`
	MinPrice     float64 `json:"min_price"`
	MaxPrice     float64 `json:"max_price"`
	TotalInStock int     `json:"total_in_stock"`
}

// OverviewStats summarizes the whole persisted collection.
type OverviewStats struct {
	TotalItems      int     `json:"total_items"`
	TotalCategories int     `json:"total_categories"`
	AveragePrice    float64 `json:"average_price"`
	TotalInStock    int     `json:"total_in_stock"`
}

// RequestLog is one request-logging middleware entry.
type RequestLog struct {
	ID              int64     `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	IPAddress       string    `json:"ip_address"`
	ISP             string    `json:"isp,omitempty"`
	Country         string    `json:"country,omitempty"`
	Region          string    `json:"region,omitempty"`
	City            string    `json:"city,omitempty"`
	User            string    `json:"user"`
	IsAuthenticated bool      `json:"is_authenticated"`
	Method          string    `json:"method"`
	Path            string    `json:"path"`
	QueryParams     string    `json:"query_params,omitempty"`
	UserAgent       string    `json:"user_agent,omitempty"`
	StatusCode      int       `json:"status_code"`
	ProcessTime     float64   `json:"process_time"`
}

package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds crawler, pipeline, store, and API configuration.
type Config struct {
	// Crawl target and limits.
	RootURL            string
	MaxConcurrency     int
	ExcludedCategories []string
	ItemLimit          int // 0 means no limit

	// Enrichment batching and pacing.
	DetailBatchSize int
	PageDelay       time.Duration
	BatchDelay      time.Duration

	// HTTP client.
	Timeout   time.Duration
	UserAgent string
	// InsecureTLS disables server certificate verification. The target
	// site mix includes self-signed test hosts, so this is an explicit,
	// documented switch rather than a hidden transport default.
	InsecureTLS bool

	// Pipeline.
	PipelineBufferSize int
	PipelineBatchSize  int
	DedupeMaxSize      int

	// File export (one-shot CLI).
	OutputFile   string
	OutputFormat string // csv, json, or dual

	// Persistence.
	DBPath            string
	Collection        string
	ConnectRetries    int
	ConnectRetryDelay time.Duration

	// API server.
	HTTPAddr     string
	MetricsAddr  string
	JWTSecret    string
	JWTIssuer    string
	TokenTTL     time.Duration
	GeoLookupURL string // empty disables ISP/geo enrichment of request logs

	Verbose bool
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		RootURL:            "https://books.toscrape.com/",
		MaxConcurrency:     10,
		ExcludedCategories: []string{"Books"},
		ItemLimit:          0,
		DetailBatchSize:    50,
		PageDelay:          100 * time.Millisecond,
		BatchDelay:         500 * time.Millisecond,
		Timeout:            10 * time.Second,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		InsecureTLS:        true,
		PipelineBufferSize: 512,
		PipelineBatchSize:  64,
		DedupeMaxSize:      100000,
		OutputFile:         "output/books.csv",
		OutputFormat:       "csv",
		DBPath:             "data/books.db",
		Collection:         "books",
		ConnectRetries:     15,
		ConnectRetryDelay:  2 * time.Second,
		HTTPAddr:           ":8080",
		MetricsAddr:        "",
		JWTSecret:          "change-me-in-production",
		JWTIssuer:          "bookstore-crawler",
		TokenTTL:           time.Hour,
		GeoLookupURL:       "",
		Verbose:            false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.RootURL == "" {
		return fmt.Errorf("root URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.RootURL)
	if err != nil {
		return fmt.Errorf("invalid root URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("root URL must include a host")
	}

	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive")
	}
	if c.ItemLimit < 0 {
		return fmt.Errorf("item limit cannot be negative")
	}
	if c.DetailBatchSize <= 0 {
		return fmt.Errorf("detail batch size must be positive")
	}
	if c.PageDelay < 0 {
		return fmt.Errorf("page delay cannot be negative")
	}
	if c.BatchDelay < 0 {
		return fmt.Errorf("batch delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.PipelineBatchSize <= 0 {
		return fmt.Errorf("pipeline batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.Collection == "" {
		return fmt.Errorf("collection cannot be empty")
	}
	if c.ConnectRetries <= 0 {
		return fmt.Errorf("connect retries must be positive")
	}
	if c.ConnectRetryDelay < 0 {
		return fmt.Errorf("connect retry delay cannot be negative")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}

	return nil
}

// Excluded reports whether a category label is configured to be skipped.
func (c *Config) Excluded(label string) bool {
	for _, skip := range c.ExcludedCategories {
		if skip == label {
			return true
		}
	}
	return false
}

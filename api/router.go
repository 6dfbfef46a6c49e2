// Package api exposes the crawler and its persisted catalog over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-bookstore-crawler/auth"
	"github.com/aluiziolira/go-bookstore-crawler/config"
	"github.com/aluiziolira/go-bookstore-crawler/models"
	"github.com/aluiziolira/go-bookstore-crawler/store"
)

// CrawlRunner triggers one full crawl and reports its summary.
type CrawlRunner interface {
	RunCrawl(ctx context.Context) (models.CrawlSummary, error)
}

// Server bundles the handler dependencies behind one router.
type Server struct {
	cfg    *config.Config
	store  *store.Store
	runner CrawlRunner
	tokens auth.TokenService
}

func NewServer(cfg *config.Config, st *store.Store, runner CrawlRunner) *Server {
	return &Server{
		cfg:    cfg,
		store:  st,
		runner: runner,
		tokens: auth.NewTokenService(cfg),
	}
}

// Router builds the full route table. The metrics registry is exposed
// on /metrics; pass nil to skip the endpoint.
func (s *Server) Router(registry *prometheus.Registry) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.store, s.cfg.GeoLookupURL))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", s.ready)
	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")

	authRepo := auth.NewRepo(s.store.DB())
	auth.NewHandler(authRepo, s.tokens).RegisterRoutes(v1.Group("/auth"))

	v1.GET("/books", s.listBooks)
	v1.GET("/books/:id", s.getBook)
	v1.GET("/categories", s.listCategories)
	v1.GET("/stats/categories", s.categoryStats)
	v1.GET("/stats/overview", s.overviewStats)

	protected := v1.Group("")
	protected.Use(auth.Middleware(s.tokens))
	protected.POST("/scraping", s.triggerScrape)
	protected.GET("/logs", s.listLogs)

	return router
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not_ready",
			"db_error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "db": "ok"})
}

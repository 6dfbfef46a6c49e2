package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aluiziolira/go-bookstore-crawler/crawler"
)

// triggerScrape runs one full crawl synchronously and returns its
// summary. Only an unreachable catalog root surfaces as a failure;
// partial crawls still report a summary.
func (s *Server) triggerScrape(c *gin.Context) {
	summary, err := s.runner.RunCrawl(c.Request.Context())
	if err != nil {
		var rootErr *crawler.RootUnavailableError
		if errors.As(err, &rootErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "catalog root unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scrape failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "completed",
		"item_count":       summary.ItemCount,
		"duration_seconds": summary.Duration.Seconds(),
	})
}

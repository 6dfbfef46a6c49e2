package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aluiziolira/go-bookstore-crawler/store"
)

func (s *Server) listBooks(c *gin.Context) {
	opts := store.ListOptions{
		Category: c.Query("category"),
		MinPrice: parseFloat(c.Query("min_price"), 0),
		MaxPrice: parseFloat(c.Query("max_price"), 0),
		Page:     parseInt(c.Query("page"), 1),
		Limit:    parseInt(c.Query("limit"), 20),
	}

	items, total, err := s.store.ListBooks(c.Request.Context(), s.cfg.Collection, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total": total,
		"page":  opts.Page,
		"limit": opts.Limit,
		"items": items,
	})
}

func (s *Server) getBook(c *gin.Context) {
	item, err := s.store.GetBook(c.Request.Context(), s.cfg.Collection, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) listCategories(c *gin.Context) {
	categories, err := s.store.Categories(c.Request.Context(), s.cfg.Collection)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (s *Server) categoryStats(c *gin.Context) {
	stats, err := s.store.CategoryStats(c.Request.Context(), s.cfg.Collection)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": stats})
}

func (s *Server) overviewStats(c *gin.Context) {
	overview, err := s.store.Overview(c.Request.Context(), s.cfg.Collection)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}
	c.JSON(http.StatusOK, overview)
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseFloat(s string, def float64) float64 {
	if strings.TrimSpace(s) == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

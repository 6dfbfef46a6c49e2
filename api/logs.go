package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aluiziolira/go-bookstore-crawler/store"
)

func (s *Server) listLogs(c *gin.Context) {
	filter := store.LogFilter{
		User:  c.Query("user"),
		Page:  parseInt(c.Query("page"), 1),
		Limit: parseInt(c.Query("limit"), 50),
	}
	if raw := c.Query("authenticated"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "authenticated must be a boolean"})
			return
		}
		filter.IsAuthenticated = &v
	}

	logs, total, err := s.store.ListRequestLogs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
		"items": logs,
	})
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aluiziolira/go-bookstore-crawler/auth"
	"github.com/aluiziolira/go-bookstore-crawler/models"
	"github.com/aluiziolira/go-bookstore-crawler/store"
)

// Paths excluded from request logging. Probes fire constantly and would
// drown the real traffic in the log table.
var unloggedPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

var geoClient = &http.Client{Timeout: 3 * time.Second}

// RequestLogger records every request into the request_logs table,
// including geo attribution of the client IP when a lookup service is
// configured. The insert runs in a goroutine so logging never adds
// latency to the response path.
func RequestLogger(st *store.Store, geoURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if unloggedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		entry := models.RequestLog{
			Timestamp:   start,
			IPAddress:   clientIP(c.Request),
			Method:      c.Request.Method,
			Path:        c.Request.URL.Path,
			QueryParams: c.Request.URL.RawQuery,
			UserAgent:   c.Request.UserAgent(),
			StatusCode:  c.Writer.Status(),
			ProcessTime: time.Since(start).Seconds(),
			User:        "anonymous",
		}
		if claims := auth.MustGetClaims(c); claims != nil {
			entry.User = claims.Username
			entry.IsAuthenticated = true
		}

		go func() {
			if geoURL != "" {
				annotateGeo(&entry, geoURL)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := st.InsertRequestLog(ctx, entry); err != nil {
				slog.Warn("request log insert failed", slog.Any("error", err))
			}
		}()
	}
}

// clientIP prefers the proxy headers over the socket peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type geoResponse struct {
	Status     string `json:"status"`
	ISP        string `json:"isp"`
	Country    string `json:"country"`
	RegionName string `json:"regionName"`
	City       string `json:"city"`
}

// annotateGeo fills the geo fields from the lookup service. Loopback
// and private addresses are skipped: the service cannot attribute them.
func annotateGeo(entry *models.RequestLog, geoURL string) {
	ip := net.ParseIP(entry.IPAddress)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return
	}

	url := fmt.Sprintf("%s/%s", strings.TrimRight(geoURL, "/"), entry.IPAddress)
	resp, err := geoClient.Get(url)
	if err != nil {
		slog.Debug("geo lookup failed", slog.String("ip", entry.IPAddress), slog.Any("error", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	var geo geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&geo); err != nil {
		return
	}
	if geo.Status != "" && geo.Status != "success" {
		return
	}

	entry.ISP = geo.ISP
	entry.Country = geo.Country
	entry.Region = geo.RegionName
	entry.City = geo.City
}

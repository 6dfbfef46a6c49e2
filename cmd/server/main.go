package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aluiziolira/go-bookstore-crawler/api"
	"github.com/aluiziolira/go-bookstore-crawler/config"
	"github.com/aluiziolira/go-bookstore-crawler/crawler"
	"github.com/aluiziolira/go-bookstore-crawler/pipeline"
	"github.com/aluiziolira/go-bookstore-crawler/store"
)

func main() {
	defaultCfg := config.DefaultConfig()
	addrDefault := defaultCfg.HTTPAddr
	if value, ok := config.EnvString("SERVER_ADDR"); ok {
		addrDefault = value
	}
	dbDefault := defaultCfg.DBPath
	if value, ok := config.EnvString("SERVER_DB_PATH"); ok {
		dbDefault = value
	}
	secretDefault := defaultCfg.JWTSecret
	if value, ok := config.EnvString("SERVER_JWT_SECRET"); ok {
		secretDefault = value
	}
	geoDefault := defaultCfg.GeoLookupURL
	if value, ok := config.EnvString("SERVER_GEO_URL"); ok {
		geoDefault = value
	}

	addr := flag.String("addr", addrDefault, "HTTP listen address")
	dbPath := flag.String("db", dbDefault, "SQLite database path")
	jwtSecret := flag.String("jwt-secret", secretDefault, "Token signing secret")
	geoURL := flag.String("geo-url", geoDefault, "Geo lookup service base URL (empty disables lookups)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfg := config.DefaultConfig()
	cfg.HTTPAddr = *addr
	cfg.DBPath = *dbPath
	cfg.JWTSecret = *jwtSecret
	cfg.GeoLookupURL = *geoURL
	cfg.OutputFormat = "sqlite"
	cfg.Verbose = *verbose
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("opening database", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	orch, err := crawler.NewOrchestrator(cfg)
	if err != nil {
		slog.Error("initialising crawler", slog.Any("error", err))
		os.Exit(1)
	}
	runner := crawler.NewRunner(cfg, orch, func() (pipeline.OutputWriter, error) {
		return store.NewReplaceWriter(st, cfg.Collection), nil
	})

	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := api.NewServer(cfg, st, runner)
	router := srv.Router(orch.Metrics.Registry)

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Error("server failed", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", slog.Any("error", err))
	}
	slog.Info("server stopped")
}

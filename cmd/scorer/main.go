package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"infra-risk-api/config"
	"infra-risk-api/risk"
	"infra-risk-api/services"
)

var (
	assessmentsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civic_scorer_assessments_generated_total",
		Help: "Total number of project risk assessments computed.",
	})
	assessmentsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civic_scorer_assessments_stored_total",
		Help: "Total number of assessments stored in DB.",
	})
	assessmentsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civic_scorer_assessments_failed_total",
		Help: "Total number of scoring or storage failures.",
	})
	assessmentsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civic_scorer_assessments_published_total",
		Help: "Total number of assessments published to Redis.",
	})
	escalationsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civic_scorer_escalations_total",
		Help: "Total number of projects whose risk label worsened between runs.",
	})
	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "civic_scorer_cycle_duration_seconds",
		Help:    "Duration of a full scoring cycle.",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
	})
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zap.L().Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := pgxpool.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		zap.L().Fatal("scorer: db pool init failed", zap.Error(err))
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		zap.L().Fatal("scorer: db ping failed", zap.Error(err))
	}
	zap.L().Info("scorer: db connected")

	// Redis is optional; without it assessments are stored but not streamed.
	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		zap.L().Warn("scorer: redis unavailable, live updates disabled", zap.Error(err))
	}
	defer cache.Close()

	loc, err := cfg.Risk.Location()
	if err != nil {
		zap.L().Fatal("scorer: invalid time zone", zap.Error(err))
	}

	go serveHTTP(cfg.Scorer.MetricsAddr)

	s := newScorer(dbPool, cache, risk.NewEngine(cfg.Risk.EngineConfig()), loc)
	interval := cfg.Scorer.Interval()

	zap.L().Info("scorer: running",
		zap.Duration("interval", interval),
		zap.String("timezone", loc.String()),
		zap.Bool("redis", cache.Available()),
	)

	// Run first cycle immediately
	cycle(ctx, s)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cycle(ctx, s)
		case <-ctx.Done():
			zap.L().Info("scorer: shutting down")
			return
		}
	}
}

func cycle(ctx context.Context, s *scorer) {
	if _, err := s.runCycle(ctx); err != nil {
		zap.L().Error("scorer: cycle failed", zap.Error(err))
	}
}

func serveHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	zap.L().Info("scorer: metrics server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zap.L().Fatal("scorer: metrics server failed", zap.Error(err))
	}
}

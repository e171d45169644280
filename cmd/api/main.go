package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"infra-risk-api/config"
	"infra-risk-api/handlers"
	"infra-risk-api/middleware"
	"infra-risk-api/risk"
	"infra-risk-api/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zap.L().Sync() }()

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
	if err != nil {
		zap.L().Fatal("api: failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		zap.L().Fatal("api: failed to get sql db handle", zap.Error(err))
	}
	if err := sqlDB.Ping(); err != nil {
		zap.L().Fatal("api: failed to ping database", zap.Error(err))
	}

	// Redis is optional
	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		zap.L().Warn("api: redis unavailable, caching and live updates disabled", zap.Error(err))
	}
	defer cache.Close()

	loc, err := cfg.Risk.Location()
	if err != nil {
		zap.L().Fatal("api: invalid time zone", zap.Error(err))
	}

	store := services.NewStore(db, services.RetryPolicy{
		Attempts: cfg.Store.RetryAttempts,
		Base:     cfg.Store.RetryBase(),
	})
	engine := risk.NewEngine(cfg.Risk.EngineConfig())
	riskService := services.NewRiskService(store, engine, cache, loc, cfg.Risk.CacheTTL())
	authService := services.NewAuthService(cfg.JWT)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewHTTPMetrics(reg)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(zap.L()))
	router.Use(metrics.Handler())
	router.Use(middleware.SetupCORS(cfg.CORS))

	handlers.RegisterRoutes(router, handlers.NewRiskHandler(riskService), cache, authService)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	zap.L().Info("api: starting server",
		zap.String("addr", addr),
		zap.String("timezone", loc.String()),
		zap.Bool("redis", cache.Available()),
	)
	if err := router.Run(addr); err != nil {
		zap.L().Fatal("api: failed to start server", zap.Error(err))
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"infra-risk-api/config"
	"infra-risk-api/services"
)

var (
	msgsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civic_collector_messages_received_total",
		Help: "Total number of MQTT report messages received by collector.",
	})
	msgsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civic_collector_messages_stored_total",
		Help: "Total number of reports inserted into the reports table.",
	})
	msgsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civic_collector_messages_duplicate_total",
		Help: "Total number of reports skipped because the id already exists.",
	})
	msgsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civic_collector_messages_failed_total",
		Help: "Total number of messages rejected or failed to store.",
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
		zap.L().Fatal("collector: db pool init failed", zap.Error(err))
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		zap.L().Fatal("collector: db ping failed", zap.Error(err))
	}

	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		zap.L().Warn("collector: redis unavailable, skipping publish", zap.Error(err))
	}
	defer cache.Close()

	go serveHTTP(cfg.Scorer.MetricsAddr)

	in := &ingester{db: dbPool, pub: cache}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.URL)
	opts.SetClientID("collector-" + time.Now().Format("20060102150405"))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, message mqtt.Message) {
		in.processMessage(ctx, message.Payload())
	})
	opts.OnConnect = func(client mqtt.Client) {
		token := client.Subscribe(cfg.MQTT.Topic, 0, nil)
		token.Wait()
		if token.Error() != nil {
			zap.L().Error("collector: mqtt subscribe failed", zap.Error(token.Error()))
			return
		}
		zap.L().Info("collector: subscribed", zap.String("topic", cfg.MQTT.Topic))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		zap.L().Warn("collector: mqtt connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if token.Error() != nil {
		zap.L().Fatal("collector: mqtt connection failed", zap.Error(token.Error()))
	}

	zap.L().Info("collector: running",
		zap.String("mqtt", cfg.MQTT.URL),
		zap.String("metrics", cfg.Scorer.MetricsAddr),
		zap.Bool("redis", cache.Available()),
	)

	<-ctx.Done()
	zap.L().Info("collector: shutting down")
	client.Disconnect(250)
}

func serveHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	zap.L().Info("collector: metrics server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zap.L().Fatal("collector: metrics server failed", zap.Error(err))
	}
}

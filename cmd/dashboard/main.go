package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/terminal-bench/careflow/internal/appointments"
	"github.com/terminal-bench/careflow/internal/auth"
	"github.com/terminal-bench/careflow/internal/capacity"
	"github.com/terminal-bench/careflow/internal/config"
	"github.com/terminal-bench/careflow/internal/dashboard"
	"github.com/terminal-bench/careflow/internal/metrics"
	"github.com/terminal-bench/careflow/internal/recommend"
	"github.com/terminal-bench/careflow/pkg/messaging"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.LoadDashboard()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	natsClient, err := messaging.NewClient(messaging.Config{
		URL:            cfg.NATSURL,
		Name:           "dashboard-service",
		ReconnectWait:  time.Second,
		MaxReconnects:  10,
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		logger.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer natsClient.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("invalid redis url", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	store := capacity.NewPostgresStore(db)
	repo := appointments.NewRepository(db)
	authService := auth.NewService(db, cfg.JWTSecret)

	aggOpts := []metrics.Option{
		metrics.WithRedis(redisClient),
		metrics.WithNATS(natsClient),
	}
	if cfg.InfluxURL != "" {
		influxClient := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		defer influxClient.Close()
		aggOpts = append(aggOpts,
			metrics.WithInflux(influxClient.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket)))
	}
	aggregator := metrics.NewAggregator(store, repo, logger, aggOpts...)
	recommender := recommend.NewEngine()

	server := dashboard.NewServer(dashboard.Config{
		Auth:        authService,
		Store:       store,
		Repo:        repo,
		Aggregator:  aggregator,
		Recommender: recommender,
		NATS:        natsClient,
		Logger:      logger,
	})
	if err := server.Start(); err != nil {
		logger.Fatal("failed to start metrics stream", zap.Error(err))
	}

	// Periodic recompute keeps the dashboard live even when intake is quiet.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ticker := time.NewTicker(cfg.RecomputeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if snap, err := aggregator.Recompute(ctx); err != nil {
					logger.Error("periodic metrics recompute failed", zap.Error(err))
				} else {
					recommender.Generate(snap)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Handler(),
	}

	go func() {
		logger.Info("dashboard service listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	natsClient.Drain()
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/terminal-bench/careflow/internal/allocator"
	"github.com/terminal-bench/careflow/internal/appointments"
	"github.com/terminal-bench/careflow/internal/capacity"
	"github.com/terminal-bench/careflow/internal/config"
	"github.com/terminal-bench/careflow/internal/intake"
	"github.com/terminal-bench/careflow/internal/metrics"
	"github.com/terminal-bench/careflow/internal/recommend"
	"github.com/terminal-bench/careflow/internal/triage"
	"github.com/terminal-bench/careflow/pkg/messaging"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.LoadIntake()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	natsClient, err := messaging.NewClient(messaging.Config{
		URL:            cfg.NATSURL,
		Name:           "intake-service",
		ReconnectWait:  time.Second,
		MaxReconnects:  10,
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		logger.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer natsClient.Close()

	store := capacity.NewPostgresStore(db)
	repo := appointments.NewRepository(db)
	aggregator := metrics.NewAggregator(store, repo, logger, metrics.WithNATS(natsClient))
	recommender := recommend.NewEngine()

	service := intake.NewService(intake.Config{
		Policy:      triage.PolicyFromName(cfg.TriagePolicy),
		Doctors:     allocator.NewDoctorAllocator(store, logger),
		Beds:        allocator.NewBedAllocator(store),
		Store:       store,
		Repo:        repo,
		NATS:        natsClient,
		Aggregator:  aggregator,
		Recommender: recommender,
		Logger:      logger,
	})

	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"nats":   natsClient.IsConnected(),
		})
	})

	r.POST("/api/v1/appointments", func(c *gin.Context) {
		var req intake.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := service.Submit(c.Request.Context(), req)
		if errors.Is(err, intake.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			logger.Error("intake failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "intake temporarily unavailable"})
			return
		}

		if result.Status == intake.StatusRejected {
			c.JSON(http.StatusOK, result)
			return
		}
		c.JSON(http.StatusCreated, result)
	})

	r.GET("/api/v1/appointments", func(c *gin.Context) {
		list, err := repo.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"appointments": list, "count": len(list)})
	})

	r.GET("/api/v1/doctors", func(c *gin.Context) {
		department := c.Query("department")
		doctors, err := store.ListDoctors(c.Request.Context(), department)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"doctors": doctors, "count": len(doctors)})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info("intake service listening", zap.String("port", cfg.Port))
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

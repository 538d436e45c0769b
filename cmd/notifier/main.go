package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/terminal-bench/careflow/internal/config"
	"github.com/terminal-bench/careflow/internal/notify"
	"github.com/terminal-bench/careflow/pkg/messaging"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.LoadNotifier()

	natsClient, err := messaging.NewClient(messaging.Config{
		URL:            cfg.NATSURL,
		Name:           "notifier-service",
		ReconnectWait:  time.Second,
		MaxReconnects:  10,
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		logger.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer natsClient.Close()

	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, logger)

	consumer := notify.NewConsumer(natsClient, mailer, logger)
	if err := consumer.Start(); err != nil {
		logger.Fatal("failed to subscribe", zap.Error(err))
	}

	logger.Info("notifier running",
		zap.String("nats_url", cfg.NATSURL),
		zap.Bool("smtp_configured", cfg.SMTPHost != ""))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	natsClient.Drain()
}

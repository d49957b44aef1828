package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"mailsync/internal/config"
	"mailsync/internal/gmail"
	"mailsync/internal/queue"
	"mailsync/internal/repository"
	"mailsync/internal/scheduler"
	"mailsync/internal/token"
	"mailsync/pkg/db"
	"mailsync/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting scheduler service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	accountRepo := repository.NewAccountRepository(dbConn)

	// Init provider access (for watch renewal)
	codec, err := token.NewCodec(cfg.Sync.TokenKey)
	if err != nil {
		log.Fatal("Token codec initialization failed", zap.Error(err))
	}
	tokens := token.NewProvider(accountRepo, codec, cfg.Provider, log)
	feed := gmail.NewClient(cfg.Provider.BaseURL, cfg.Provider.QPS, log)

	// Init dispatch queue
	publisher, err := queue.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Queue publisher initialization failed", zap.Error(err))
	}
	defer publisher.Close()

	sched := scheduler.New(accountRepo, publisher, tokens, feed, cfg.Provider.PushTopic, log)
	if err := sched.Start(cfg.Sync.Schedule); err != nil {
		log.Fatal("scheduler failed to start", zap.Error(err))
	}
	defer sched.Stop()

	<-ctx.Done()
	log.Info("Shutting down scheduler")
}

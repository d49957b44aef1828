package main

import (
	"time"

	"go.uber.org/zap"

	"mailsync/internal/api"
	"mailsync/internal/config"
	"mailsync/internal/gmail"
	"mailsync/internal/queue"
	"mailsync/internal/repository"
	syncengine "mailsync/internal/sync"
	"mailsync/internal/token"
	"mailsync/pkg/db"
	"mailsync/pkg/logger"
	redisclient "mailsync/pkg/redis"
	"mailsync/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting API server...")

	// Init Redis
	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Init repositories
	accountRepo := repository.NewAccountRepository(dbConn)
	messageRepo := repository.NewMessageRepository(dbConn)

	// Init provider access
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

	// Init sync engine for manual "sync now" calls
	lease := syncengine.NewLease(rdb, 10*time.Minute)
	engine := syncengine.NewEngine(
		accountRepo, messageRepo, tokens, feed, publisher, lease,
		syncengine.Options{
			MaxHistoryPages: cfg.Sync.MaxHistoryPages,
			BackfillSize:    cfg.Sync.BackfillSize,
		},
		log,
	)

	deduper := util.NewDeduper(rdb, time.Hour, log)

	webhookHandler := api.NewWebhookHandler(accountRepo, publisher, deduper, log)
	accountHandler := api.NewAccountHandler(engine, accountRepo, log)

	router := api.NewRouter(webhookHandler, accountHandler, cfg.Webhook.JWTSecret, cfg.Webhook.Audience)

	log.Info("API server listening", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mailsync/internal/config"
	"mailsync/internal/gmail"
	"mailsync/internal/mqhandler"
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

	log.Info("Starting worker service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	attachmentRepo := repository.NewAttachmentRepository(dbConn)

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

	// Init sync engine
	lease := syncengine.NewLease(rdb, 10*time.Minute)
	engine := syncengine.NewEngine(
		accountRepo, messageRepo, tokens, feed, publisher, lease,
		syncengine.Options{
			MaxHistoryPages: cfg.Sync.MaxHistoryPages,
			BackfillSize:    cfg.Sync.BackfillSize,
		},
		log,
	)

	// Init handlers
	syncHandler := mqhandler.NewSyncHistoryHandler(engine, accountRepo, log)
	fetchHandler := mqhandler.NewFetchMessageHandler(tokens, feed, messageRepo, accountRepo, publisher, log)
	attachmentHandler := mqhandler.NewDownloadAttachmentHandler(tokens, feed, attachmentRepo, accountRepo, log)
	fullSyncHandler := mqhandler.NewFullSyncHandler(tokens, feed, accountRepo, publisher, log)

	retries := util.NewRetryCounter(rdb, time.Hour)

	consumers := []struct {
		job     string
		handler queue.HandlerFunc
	}{
		{queue.JobSyncHistory, syncHandler.Handle},
		{queue.JobFetchMessage, fetchHandler.Handle},
		{queue.JobDownloadAttachment, attachmentHandler.Handle},
		{queue.JobFullSync, fullSyncHandler.Handle},
	}

	for _, c := range consumers {
		c := c
		consumer, err := queue.NewConsumer(cfg.MQ.URL, c.job, retries, log)
		if err != nil {
			log.Fatal("failed to init consumer", zap.String("job", c.job), zap.Error(err))
		}
		consumer.SetHandler(c.handler)
		defer consumer.Close()

		go func() {
			log.Info("Starting consumer", zap.String("job", c.job))
			if err := consumer.StartConsuming(ctx); err != nil && ctx.Err() == nil {
				log.Fatal("consumer failed", zap.String("job", c.job), zap.Error(err))
			}
		}()
	}

	log.Info("All consumers started, worker is ready to process jobs")

	<-ctx.Done()
	log.Info("Shutting down worker")
}

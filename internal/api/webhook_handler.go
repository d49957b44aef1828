package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsync/internal/model"
	"mailsync/internal/queue"
	"mailsync/pkg/logger"
	"mailsync/pkg/metrics"
	"mailsync/pkg/util"
)

// AccountLookup is the account read path the webhook needs.
type AccountLookup interface {
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
}

// WebhookHandler turns provider push notifications into sync-history jobs.
// The notification itself carries no changes, only "this mailbox moved";
// the actual delta comes from the change feed during the pass.
type WebhookHandler struct {
	accounts AccountLookup
	dispatch queue.Queue
	deduper  *util.Deduper
	logger   *zap.Logger
}

func NewWebhookHandler(accounts AccountLookup, dispatch queue.Queue, deduper *util.Deduper, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		accounts: accounts,
		dispatch: dispatch,
		deduper:  deduper,
		logger:   log,
	}
}

// pushEnvelope is the pub/sub push wrapper around the provider's
// notification payload.
type pushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type pushNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    string `json:"historyId"`
}

func (h *WebhookHandler) HandlePush(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.WithTrace(ctx, h.logger)

	var envelope pushEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		log.Warn("Malformed push envelope", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed envelope"})
		return
	}

	raw, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		log.Warn("Push payload is not base64", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	var note pushNotification
	if err := json.Unmarshal(raw, &note); err != nil || note.EmailAddress == "" {
		log.Warn("Push payload missing emailAddress", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	// The relay redelivers aggressively; collapse bursts for the same
	// mailbox position into one job.
	dedupeKey := note.EmailAddress + ":" + note.HistoryID
	if h.deduper != nil && !h.deduper.AcquireOnce(ctx, "webhook", dedupeKey) {
		c.Status(http.StatusNoContent)
		return
	}

	acct, err := h.accounts.FindByEmail(ctx, note.EmailAddress)
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			// Unknown mailbox: ack anyway, or the relay retries forever.
			log.Info("Push for unknown mailbox", zap.String("email", note.EmailAddress))
			c.Status(http.StatusNoContent)
			return
		}
		// Transient lookup failure: 5xx so the relay redelivers instead of
		// the notification being dropped.
		log.Error("Account lookup failed",
			zap.String("email", note.EmailAddress),
			zap.Error(err),
		)
		if h.deduper != nil {
			h.deduper.Release(ctx, "webhook", dedupeKey)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if !acct.SyncEnabled {
		log.Debug("Push for disabled account skipped", zap.String("account_id", acct.ID))
		c.Status(http.StatusNoContent)
		return
	}

	payload := queue.SyncHistoryPayload{
		AccountID: acct.ID,
		Trigger:   model.TriggerWebhook,
	}
	err = h.dispatch.Add(ctx, queue.JobSyncHistory, payload, queue.EnqueueOptions{
		Priority: queue.PrioritySyncHistory,
		Attempts: queue.DefaultAttempts,
	})
	if err != nil {
		log.Error("Failed to enqueue sync-history job",
			zap.String("account_id", acct.ID),
			zap.Error(err),
		)
		if h.deduper != nil {
			h.deduper.Release(ctx, "webhook", dedupeKey)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}
	metrics.IncrementJobPublished(queue.JobSyncHistory)

	log.Info("Webhook sync dispatched",
		zap.String("account_id", acct.ID),
		zap.String("notified_history_id", note.HistoryID),
	)
	c.Status(http.StatusNoContent)
}

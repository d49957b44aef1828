package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mailsync/internal/queue"
	syncengine "mailsync/internal/sync"
	"mailsync/pkg/metrics"
)

// SyncHistoryHandler consumes sync-history jobs and runs one reconciliation
// pass per job. Failures are recorded on the account before being returned,
// so error visibility never depends on the broker's own logging; the
// returned error then drives the queue's retry policy.
type SyncHistoryHandler struct {
	reconciler Reconciler
	accounts   AccountRecorder
	logger     *zap.Logger
}

func NewSyncHistoryHandler(reconciler Reconciler, accounts AccountRecorder, logger *zap.Logger) *SyncHistoryHandler {
	return &SyncHistoryHandler{
		reconciler: reconciler,
		accounts:   accounts,
		logger:     logger,
	}
}

func (h *SyncHistoryHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p queue.SyncHistoryPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal sync-history payload", zap.Error(err))
		return err
	}
	if p.AccountID == "" {
		return fmt.Errorf("sync-history payload missing accountId")
	}

	h.logger.Info("Processing history sync",
		zap.String("account_id", p.AccountID),
		zap.String("start_history_id", p.StartHistoryID),
		zap.String("trigger", string(p.Trigger)),
	)

	result, err := h.reconciler.Reconcile(ctx, p.AccountID, p.StartHistoryID)
	if err != nil {
		// Another pass holds the account; redelivery will land after it.
		if errors.Is(err, syncengine.ErrSyncInFlight) {
			h.logger.Info("Sync already in flight, will retry",
				zap.String("account_id", p.AccountID),
			)
			return err
		}

		msg := err.Error()
		if msg == "" {
			msg = "History sync failed"
		}
		if recErr := h.accounts.RecordSyncError(ctx, p.AccountID, msg); recErr != nil {
			h.logger.Error("Failed to record sync error",
				zap.String("account_id", p.AccountID),
				zap.Error(recErr),
			)
		}
		metrics.IncrementSyncPass(string(p.Trigger), "error")
		return err
	}

	h.logger.Info("History sync complete",
		zap.String("account_id", p.AccountID),
		zap.String("trigger", string(p.Trigger)),
		zap.Int("added", result.MessagesAdded),
		zap.Int("deleted", result.MessagesDeleted),
		zap.Int("label_changes", result.LabelChanges),
		zap.String("new_history_id", result.NewHistoryID),
	)
	metrics.IncrementSyncPass(string(p.Trigger), "success")
	return nil
}

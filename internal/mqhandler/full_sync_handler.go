package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"mailsync/internal/queue"
)

// FullSyncHandler consumes full-sync jobs: the bounded backfill that
// re-mirrors the most recent messages after a cold start or a stale
// cursor. It lists message ids directly and fans each one out as a
// fetch-message job; the heavy lifting stays per-message and individually
// retryable. On completion the account is marked healthy with the
// profile's current history id.
type FullSyncHandler struct {
	tokens   TokenSource
	feed     Fetcher
	accounts AccountRecorder
	dispatch queue.Queue
	logger   *zap.Logger
}

func NewFullSyncHandler(
	tokens TokenSource,
	feed Fetcher,
	accounts AccountRecorder,
	dispatch queue.Queue,
	logger *zap.Logger,
) *FullSyncHandler {
	return &FullSyncHandler{
		tokens:   tokens,
		feed:     feed,
		accounts: accounts,
		dispatch: dispatch,
		logger:   logger,
	}
}

func (h *FullSyncHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p queue.FullSyncPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal full-sync payload", zap.Error(err))
		return err
	}
	if p.AccountID == "" {
		return fmt.Errorf("full-sync payload missing accountId")
	}
	if p.MaxMessages <= 0 {
		p.MaxMessages = 100
	}

	token, err := h.tokens.FreshAccessToken(ctx, p.AccountID)
	if err != nil {
		return err
	}

	profile, err := h.feed.GetProfile(ctx, token)
	if err != nil {
		return h.fail(ctx, p.AccountID, "Full sync failed", err)
	}

	var (
		pageToken string
		enqueued  int64
	)
	for enqueued < p.MaxMessages {
		if err := ctx.Err(); err != nil {
			return err
		}

		list, err := h.feed.ListMessages(ctx, token, "", pageToken, p.MaxMessages-enqueued)
		if err != nil {
			return h.fail(ctx, p.AccountID, "Full sync failed", err)
		}

		for _, ref := range list.Messages {
			if ref.ID == "" {
				continue
			}
			payload := queue.FetchMessagePayload{
				AccountID: p.AccountID,
				MessageID: ref.ID,
				ThreadID:  ref.ThreadID,
			}
			err := h.dispatch.Add(ctx, queue.JobFetchMessage, payload, queue.EnqueueOptions{
				Priority: queue.PriorityFetchMessage,
				Attempts: queue.DefaultAttempts,
			})
			if err != nil {
				return h.fail(ctx, p.AccountID, "Full sync failed", err)
			}
			enqueued++
			if enqueued == p.MaxMessages {
				break
			}
		}

		pageToken = list.NextPageToken
		if pageToken == "" {
			break
		}
	}

	historyID := profile.HistoryID
	if historyID == "" {
		historyID = "1"
	}
	if err := h.accounts.RecordSuccessfulSync(ctx, p.AccountID, historyID); err != nil {
		return h.fail(ctx, p.AccountID, "Full sync failed", err)
	}

	h.logger.Info("Full sync backfill dispatched",
		zap.String("account_id", p.AccountID),
		zap.Int64("messages", enqueued),
		zap.String("history_id", historyID),
	)
	return nil
}

func (h *FullSyncHandler) fail(ctx context.Context, accountID, fallback string, err error) error {
	msg := err.Error()
	if msg == "" {
		msg = fallback
	}
	if recErr := h.accounts.RecordSyncError(ctx, accountID, msg); recErr != nil {
		h.logger.Error("Failed to record sync error",
			zap.String("account_id", accountID),
			zap.Error(recErr),
		)
	}
	return err
}

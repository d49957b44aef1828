package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mailsync/internal/queue"
	"mailsync/pkg/metrics"
)

// sentinelHistoryID seeds the cursor when the provider's profile reports
// none; "1" predates any real history id, so the next incremental pass
// sees the full feed.
const sentinelHistoryID = "1"

// FullResync is the public fallback entry point: re-seed the cursor from
// the provider's current profile and delegate the message backfill to a
// full-sync job. The account is re-checked here because it may have been
// disconnected since the caller last looked.
func (e *Engine) FullResync(ctx context.Context, accountID string) (*SyncResult, error) {
	unlock := e.locks.lock(accountID)
	defer unlock()

	if _, err := e.accounts.Find(ctx, accountID); err != nil {
		return nil, err
	}
	token, err := e.tokens.FreshAccessToken(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return e.fullResync(ctx, accountID, token, "manual")
}

// fullResync is the shared planner body, also invoked by Reconcile on cold
// start and stale-cursor fallback (which already hold the account lock).
//
// It deliberately does not fetch messages itself: the pass stays cheap and
// the bounded backfill runs out of band under the queue's retry policy. The
// cursor is persisted before the job runs so the next incremental pass has
// a valid starting point even if the backfill is still in flight.
func (e *Engine) fullResync(ctx context.Context, accountID, token, reason string) (*SyncResult, error) {
	profile, err := e.feed.GetProfile(ctx, token)
	if err != nil {
		_ = e.accounts.RecordSyncError(ctx, accountID, errorMessage(err, "Full resync failed"))
		return nil, fmt.Errorf("get profile: %w", err)
	}

	newHistoryID := profile.HistoryID
	if newHistoryID == "" {
		newHistoryID = sentinelHistoryID
	}

	payload := queue.FullSyncPayload{
		AccountID:   accountID,
		MaxMessages: e.opts.BackfillSize,
	}
	err = e.queue.Add(ctx, queue.JobFullSync, payload, queue.EnqueueOptions{
		Priority: queue.PriorityFullSync,
		Attempts: queue.DefaultAttempts,
	})
	if err != nil {
		_ = e.accounts.RecordSyncError(ctx, accountID, errorMessage(err, "Full resync failed"))
		return nil, fmt.Errorf("enqueue full-sync job: %w", err)
	}
	metrics.IncrementJobPublished(queue.JobFullSync)

	if err := e.accounts.UpdateCursor(ctx, accountID, newHistoryID); err != nil {
		return nil, fmt.Errorf("seed sync cursor: %w", err)
	}

	e.logger.Info("Full resync planned",
		zap.String("account_id", accountID),
		zap.String("reason", reason),
		zap.String("new_history_id", newHistoryID),
		zap.Int64("backfill_size", e.opts.BackfillSize),
	)
	metrics.IncrementFullResync(reason)

	// Counts are zero here: the backfill realizes them out of band.
	return &SyncResult{
		NewHistoryID: newHistoryID,
		EnqueuedJobs: []EnqueuedJob{{Name: queue.JobFullSync}},
	}, nil
}

// InitialBackfill mirrors a brand-new account's most recent messages
// directly, so the connect flow reports real counts immediately instead of
// deferring everything to a job. It lists up to BackfillSize messages,
// enqueues one fetch job per message, and seeds the cursor from the
// profile.
func (e *Engine) InitialBackfill(ctx context.Context, accountID string) (*SyncResult, error) {
	unlock := e.locks.lock(accountID)
	defer unlock()

	if _, err := e.accounts.Find(ctx, accountID); err != nil {
		return nil, err
	}
	token, err := e.tokens.FreshAccessToken(ctx, accountID)
	if err != nil {
		return nil, err
	}

	profile, err := e.feed.GetProfile(ctx, token)
	if err != nil {
		_ = e.accounts.RecordSyncError(ctx, accountID, errorMessage(err, "Initial backfill failed"))
		return nil, fmt.Errorf("get profile: %w", err)
	}

	newHistoryID := profile.HistoryID
	if newHistoryID == "" {
		newHistoryID = sentinelHistoryID
	}

	result := &SyncResult{NewHistoryID: newHistoryID}
	var (
		pageToken string
		remaining = e.opts.BackfillSize
	)

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		list, err := e.feed.ListMessages(ctx, token, "", pageToken, remaining)
		if err != nil {
			_ = e.accounts.RecordSyncError(ctx, accountID, errorMessage(err, "Initial backfill failed"))
			return nil, fmt.Errorf("list messages: %w", err)
		}

		for _, ref := range list.Messages {
			if ref.ID == "" {
				continue
			}
			payload := queue.FetchMessagePayload{
				AccountID: accountID,
				MessageID: ref.ID,
				ThreadID:  ref.ThreadID,
			}
			err := e.queue.Add(ctx, queue.JobFetchMessage, payload, queue.EnqueueOptions{
				Priority: queue.PriorityFetchMessage,
				Attempts: queue.DefaultAttempts,
			})
			if err != nil {
				_ = e.accounts.RecordSyncError(ctx, accountID, errorMessage(err, "Initial backfill failed"))
				return nil, fmt.Errorf("enqueue fetch-message job: %w", err)
			}
			metrics.IncrementJobPublished(queue.JobFetchMessage)
			result.MessagesAdded++
			result.EnqueuedJobs = append(result.EnqueuedJobs, EnqueuedJob{
				Name:      queue.JobFetchMessage,
				MessageID: ref.ID,
			})
			remaining--
			if remaining == 0 {
				break
			}
		}

		pageToken = list.NextPageToken
		if pageToken == "" {
			break
		}
	}

	if err := e.accounts.RecordSuccessfulSync(ctx, accountID, newHistoryID); err != nil {
		return nil, fmt.Errorf("seed sync cursor: %w", err)
	}

	e.logger.Info("Initial backfill planned",
		zap.String("account_id", accountID),
		zap.Int("messages", result.MessagesAdded),
		zap.String("new_history_id", newHistoryID),
	)
	return result, nil
}

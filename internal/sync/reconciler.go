package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mailsync/internal/gmail"
	"mailsync/internal/queue"
	"mailsync/pkg/metrics"
)

// Reconcile runs one incremental pass for an account: it drains the change
// feed from the effective cursor, applies deletes and label changes
// synchronously, enqueues a fetch job per added message, and advances the
// cursor. startHistoryID, when non-empty, overrides the account's stored
// cursor.
//
// A missing cursor delegates to FullResync (cold start). A cursor the feed
// rejects as stale also falls back to FullResync, silently: the caller sees
// the resync result, never the staleness error. Any other failure is
// recorded on the account and returned.
func (e *Engine) Reconcile(ctx context.Context, accountID, startHistoryID string) (*SyncResult, error) {
	unlock := e.locks.lock(accountID)
	defer unlock()

	if e.lease != nil {
		release, ok, err := e.lease.Acquire(ctx, accountID)
		if err != nil {
			e.logger.Warn("Sync lease unavailable, proceeding with local lock only",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
		}
		if !ok {
			return nil, ErrSyncInFlight
		}
		defer release()
	}

	// Account existence is checked before anything touches the network.
	acct, err := e.accounts.Find(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// Credential failures propagate unchanged; the token provider already
	// recorded them on the account.
	token, err := e.tokens.FreshAccessToken(ctx, accountID)
	if err != nil {
		return nil, err
	}

	cursor := startHistoryID
	if cursor == "" && acct.HistoryID != nil {
		cursor = *acct.HistoryID
	}
	if cursor == "" {
		e.logger.Info("No sync cursor, delegating to full resync",
			zap.String("account_id", accountID),
		)
		return e.fullResync(ctx, accountID, token, "cold_start")
	}

	log := e.logger.With(
		zap.String("account_id", accountID),
		zap.String("start_history_id", cursor),
	)

	changes, newHistoryID, pages, err := e.collectHistory(ctx, token, cursor)
	if err != nil {
		if isStaleCursorError(err) {
			log.Warn("Cursor rejected as stale, falling back to full resync",
				zap.Error(err),
			)
			return e.fullResync(ctx, accountID, token, "stale_cursor")
		}
		_ = e.accounts.RecordSyncError(ctx, accountID, errorMessage(err, "History sync failed"))
		return nil, err
	}
	metrics.ObserveFeedPages(pages)

	result := &SyncResult{NewHistoryID: newHistoryID}
	for _, rec := range changes {
		if err := e.applyChange(ctx, accountID, rec, result); err != nil {
			_ = e.accounts.RecordSyncError(ctx, accountID, errorMessage(err, "History sync failed"))
			return nil, err
		}
	}

	// A no-change feed may report no new cursor; the old one stays valid.
	if result.NewHistoryID == "" {
		result.NewHistoryID = cursor
	}

	// If the caller gave up mid-pass, do not advance the cursor: a partial
	// pass that moved the cursor would silently skip the unapplied tail.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := e.accounts.RecordSuccessfulSync(ctx, accountID, result.NewHistoryID); err != nil {
		return nil, fmt.Errorf("persist sync cursor: %w", err)
	}

	log.Info("Reconciliation pass complete",
		zap.Int("pages", pages),
		zap.Int("added", result.MessagesAdded),
		zap.Int("deleted", result.MessagesDeleted),
		zap.Int("label_changes", result.LabelChanges),
		zap.String("new_history_id", result.NewHistoryID),
	)
	return result, nil
}

// collectHistory drains the feed into one ordered change sequence. It
// tracks the last non-empty history id any page reported and enforces the
// pagination ceiling.
func (e *Engine) collectHistory(ctx context.Context, token, cursor string) ([]gmail.ChangeRecord, string, int, error) {
	var (
		changes      []gmail.ChangeRecord
		newHistoryID string
		pageToken    string
		pages        int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, "", pages, err
		}
		if pages >= e.opts.MaxHistoryPages {
			return nil, "", pages, &ProtocolError{Pages: pages}
		}

		page, err := e.feed.ListHistory(ctx, token, cursor, pageToken)
		if err != nil {
			return nil, "", pages, err
		}
		pages++

		changes = append(changes, page.Changes...)
		if page.HistoryID != "" {
			newHistoryID = page.HistoryID
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			return changes, newHistoryID, pages, nil
		}
	}
}

// applyChange dispatches one change record: additions become fetch jobs,
// deletions and label changes are applied to the local store immediately.
// The switch is exhaustive over the feed's record kinds; an unknown kind is
// tolerated and counted, since the upstream may grow new history types.
func (e *Engine) applyChange(ctx context.Context, accountID string, rec gmail.ChangeRecord, result *SyncResult) error {
	switch rec.Kind {
	case gmail.ChangeMessageAdded:
		// The feed may omit ids; such records are skipped, not failed.
		if rec.MessageID == "" || rec.ThreadID == "" {
			metrics.IncrementChangeApplied("skipped")
			return nil
		}
		payload := queue.FetchMessagePayload{
			AccountID: accountID,
			MessageID: rec.MessageID,
			ThreadID:  rec.ThreadID,
		}
		err := e.queue.Add(ctx, queue.JobFetchMessage, payload, queue.EnqueueOptions{
			Priority: queue.PriorityFetchMessage,
			Attempts: queue.DefaultAttempts,
		})
		if err != nil {
			return fmt.Errorf("enqueue fetch-message job: %w", err)
		}
		metrics.IncrementJobPublished(queue.JobFetchMessage)
		metrics.IncrementChangeApplied(rec.Kind.String())
		result.MessagesAdded++
		result.EnqueuedJobs = append(result.EnqueuedJobs, EnqueuedJob{
			Name:      queue.JobFetchMessage,
			MessageID: rec.MessageID,
		})
		return nil

	case gmail.ChangeMessageDeleted:
		if rec.MessageID == "" {
			metrics.IncrementChangeApplied("skipped")
			return nil
		}
		if err := e.messages.SoftDelete(ctx, accountID, rec.MessageID); err != nil {
			return fmt.Errorf("apply message delete: %w", err)
		}
		metrics.IncrementChangeApplied(rec.Kind.String())
		result.MessagesDeleted++
		return nil

	case gmail.ChangeLabelsAdded:
		if rec.MessageID == "" || len(rec.LabelIDs) == 0 {
			metrics.IncrementChangeApplied("skipped")
			return nil
		}
		if err := e.messages.AddLabels(ctx, accountID, rec.MessageID, rec.LabelIDs); err != nil {
			return fmt.Errorf("apply label add: %w", err)
		}
		metrics.IncrementChangeApplied(rec.Kind.String())
		result.LabelChanges++
		return nil

	case gmail.ChangeLabelsRemoved:
		if rec.MessageID == "" || len(rec.LabelIDs) == 0 {
			metrics.IncrementChangeApplied("skipped")
			return nil
		}
		if err := e.messages.RemoveLabels(ctx, accountID, rec.MessageID, rec.LabelIDs); err != nil {
			return fmt.Errorf("apply label remove: %w", err)
		}
		metrics.IncrementChangeApplied(rec.Kind.String())
		result.LabelChanges++
		return nil

	default:
		metrics.IncrementChangeApplied("unknown")
		e.logger.Warn("Unknown change record kind",
			zap.String("account_id", accountID),
			zap.Int("kind", int(rec.Kind)),
		)
		return nil
	}
}

// Package sync implements the incremental mailbox synchronization engine:
// the cursor-tracking reconciliation over the provider's change feed, the
// full-resync fallback when the cursor goes stale, and the dispatch of
// per-message fetch work onto the job queue.
package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mailsync/internal/gmail"
	"mailsync/internal/model"
	"mailsync/internal/queue"
)

// TokenProvider supplies a valid access token per account.
type TokenProvider interface {
	FreshAccessToken(ctx context.Context, accountID string) (string, error)
}

// FeedClient is the slice of the provider API the engine consumes.
type FeedClient interface {
	GetProfile(ctx context.Context, token string) (*gmail.Profile, error)
	ListHistory(ctx context.Context, token, startHistoryID, pageToken string) (*gmail.HistoryPage, error)
	ListMessages(ctx context.Context, token, query, pageToken string, maxResults int64) (*gmail.MessageList, error)
}

// AccountStore is the account bookkeeping the engine depends on.
type AccountStore interface {
	Find(ctx context.Context, id string) (*model.Account, error)
	RecordSuccessfulSync(ctx context.Context, id, historyID string) error
	RecordSyncError(ctx context.Context, id, message string) error
	UpdateCursor(ctx context.Context, id, historyID string) error
}

// MessageStore applies the cheap, synchronous local mutations of a pass.
type MessageStore interface {
	SoftDelete(ctx context.Context, accountID, providerID string) error
	AddLabels(ctx context.Context, accountID, providerID string, labelIDs []string) error
	RemoveLabels(ctx context.Context, accountID, providerID string, labelIDs []string) error
}

// EnqueuedJob describes one job a pass dispatched, so callers can tell the
// "deferred" half of the result from the counts applied synchronously.
type EnqueuedJob struct {
	Name      string `json:"name"`
	MessageID string `json:"messageId,omitempty"`
}

// SyncResult is the aggregate outcome of one reconciliation or resync pass.
type SyncResult struct {
	MessagesAdded   int    `json:"messagesAdded"`
	MessagesDeleted int    `json:"messagesDeleted"`
	LabelChanges    int    `json:"labelChanges"`
	NewHistoryID    string `json:"newHistoryId"`

	EnqueuedJobs []EnqueuedJob `json:"enqueuedJobs,omitempty"`
}

// Options bounds one engine instance.
type Options struct {
	// MaxHistoryPages is the pagination safety ceiling; a feed that never
	// returns a final page is a protocol violation.
	MaxHistoryPages int
	// BackfillSize is how many recent messages a full resync mirrors.
	BackfillSize int64
}

func DefaultOptions() Options {
	return Options{
		MaxHistoryPages: 10000,
		BackfillSize:    100,
	}
}

// Engine drives reconciliation for any number of accounts. Passes for
// different accounts run concurrently; passes for one account are
// serialized by a per-account mutex (in-process) plus an optional redis
// lease (across processes).
type Engine struct {
	accounts AccountStore
	messages MessageStore
	tokens   TokenProvider
	feed     FeedClient
	queue    queue.Queue
	lease    *Lease
	opts     Options
	logger   *zap.Logger
	locks    accountLocks
	now      func() time.Time
}

func NewEngine(
	accounts AccountStore,
	messages MessageStore,
	tokens TokenProvider,
	feed FeedClient,
	q queue.Queue,
	lease *Lease,
	opts Options,
	logger *zap.Logger,
) *Engine {
	if opts.MaxHistoryPages <= 0 {
		opts.MaxHistoryPages = DefaultOptions().MaxHistoryPages
	}
	if opts.BackfillSize <= 0 {
		opts.BackfillSize = DefaultOptions().BackfillSize
	}
	return &Engine{
		accounts: accounts,
		messages: messages,
		tokens:   tokens,
		feed:     feed,
		queue:    q,
		lease:    lease,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

package mqhandler

import (
	"context"

	"mailsync/internal/gmail"
	"mailsync/internal/model"
	"mailsync/internal/sync"
)

// Reconciler is the slice of the sync engine the history handler drives.
type Reconciler interface {
	Reconcile(ctx context.Context, accountID, startHistoryID string) (*sync.SyncResult, error)
}

// TokenSource supplies a valid access token per account.
type TokenSource interface {
	FreshAccessToken(ctx context.Context, accountID string) (string, error)
}

// Fetcher is the slice of the provider client the fetch handlers consume.
type Fetcher interface {
	GetProfile(ctx context.Context, token string) (*gmail.Profile, error)
	GetMessage(ctx context.Context, token, messageID string) (*gmail.Message, error)
	GetAttachment(ctx context.Context, token, messageID, attachmentID string) (*gmail.AttachmentData, error)
	ListMessages(ctx context.Context, token, query, pageToken string, maxResults int64) (*gmail.MessageList, error)
}

// AccountRecorder is the account bookkeeping handlers report into.
type AccountRecorder interface {
	RecordSuccessfulSync(ctx context.Context, id, historyID string) error
	RecordSyncError(ctx context.Context, id, message string) error
}

// MessageWriter persists mirrored messages.
type MessageWriter interface {
	Upsert(ctx context.Context, m *model.Message) error
}

// AttachmentWriter persists downloaded attachments.
type AttachmentWriter interface {
	Upsert(ctx context.Context, a *model.Attachment) error
}

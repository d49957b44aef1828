package queue

import (
	"context"

	"mailsync/internal/model"
)

// Job names. Each name gets its own durable queue.
const (
	JobSyncHistory        = "sync-history"
	JobFetchMessage       = "fetch-message"
	JobDownloadAttachment = "download-attachment"
	JobFullSync           = "full-sync"
)

// Job priorities; lower is more urgent. History reconciliation outranks
// message fetches, which outrank attachment downloads and backfills.
const (
	PrioritySyncHistory        = 1
	PriorityFetchMessage       = 2
	PriorityFullSync           = 3
	PriorityDownloadAttachment = 3
)

// DefaultAttempts is the standard retry budget for dispatched jobs.
const DefaultAttempts = 3

// EnqueueOptions carries per-job dispatch settings.
type EnqueueOptions struct {
	Priority int
	Attempts int
}

// Queue is the dispatch contract the sync core depends on. The broker
// delivers each job at least once; consumers must be idempotent.
type Queue interface {
	Add(ctx context.Context, name string, payload any, opts EnqueueOptions) error
}

// SyncHistoryPayload asks a worker to run one reconciliation pass.
type SyncHistoryPayload struct {
	AccountID      string            `json:"accountId"`
	StartHistoryID string            `json:"startHistoryId,omitempty"`
	EndHistoryID   string            `json:"endHistoryId,omitempty"`
	Trigger        model.SyncTrigger `json:"trigger"`
}

// FetchMessagePayload asks a worker to mirror one message body.
type FetchMessagePayload struct {
	AccountID string `json:"accountId"`
	MessageID string `json:"messageId"`
	ThreadID  string `json:"threadId"`
}

// DownloadAttachmentPayload asks a worker to store one attachment's bytes.
type DownloadAttachmentPayload struct {
	AccountID    string `json:"accountId"`
	MessageID    string `json:"messageId"`
	AttachmentID string `json:"attachmentId"`
	Filename     string `json:"filename"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

// FullSyncPayload asks a worker to backfill the most recent messages and
// re-seed the account's cursor.
type FullSyncPayload struct {
	AccountID   string `json:"accountId"`
	MaxMessages int64  `json:"maxMessages"`
}

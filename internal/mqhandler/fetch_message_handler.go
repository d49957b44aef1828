package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailsync/internal/gmail"
	"mailsync/internal/model"
	"mailsync/internal/queue"
	"mailsync/pkg/metrics"
)

// FetchMessageHandler consumes fetch-message jobs: it retrieves one message
// body from the provider and upserts the mirrored copy. The upsert keys on
// the provider message id, so an at-least-once redelivery lands on the same
// row. Attachments found on the message are fanned out as their own
// download jobs.
type FetchMessageHandler struct {
	tokens   TokenSource
	feed     Fetcher
	messages MessageWriter
	accounts AccountRecorder
	dispatch queue.Queue
	logger   *zap.Logger
}

func NewFetchMessageHandler(
	tokens TokenSource,
	feed Fetcher,
	messages MessageWriter,
	accounts AccountRecorder,
	dispatch queue.Queue,
	logger *zap.Logger,
) *FetchMessageHandler {
	return &FetchMessageHandler{
		tokens:   tokens,
		feed:     feed,
		messages: messages,
		accounts: accounts,
		dispatch: dispatch,
		logger:   logger,
	}
}

func (h *FetchMessageHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p queue.FetchMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal fetch-message payload", zap.Error(err))
		return err
	}
	if p.AccountID == "" || p.MessageID == "" {
		return fmt.Errorf("fetch-message payload missing accountId or messageId")
	}

	token, err := h.tokens.FreshAccessToken(ctx, p.AccountID)
	if err != nil {
		return err
	}

	msg, err := h.feed.GetMessage(ctx, token, p.MessageID)
	if err != nil {
		// The message may have been deleted between the history record and
		// this job; that is normal churn, not a failure worth retrying.
		if gmail.IsNotFound(err) {
			h.logger.Debug("Message gone upstream, skipping",
				zap.String("account_id", p.AccountID),
				zap.String("message_id", p.MessageID),
			)
			return nil
		}
		return h.fail(ctx, p.AccountID, "Message fetch failed", err)
	}

	if err := h.messages.Upsert(ctx, toModelMessage(p.AccountID, msg)); err != nil {
		return h.fail(ctx, p.AccountID, "Message store failed", err)
	}

	for _, att := range msg.Attachments {
		payload := queue.DownloadAttachmentPayload{
			AccountID:    p.AccountID,
			MessageID:    msg.ID,
			AttachmentID: att.AttachmentID,
			Filename:     att.Filename,
			MimeType:     att.MimeType,
			Size:         att.Size,
		}
		err := h.dispatch.Add(ctx, queue.JobDownloadAttachment, payload, queue.EnqueueOptions{
			Priority: queue.PriorityDownloadAttachment,
			Attempts: queue.DefaultAttempts,
		})
		if err != nil {
			return h.fail(ctx, p.AccountID, "Attachment dispatch failed", err)
		}
		metrics.IncrementJobPublished(queue.JobDownloadAttachment)
	}

	h.logger.Info("Message mirrored",
		zap.String("account_id", p.AccountID),
		zap.String("message_id", msg.ID),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}

func (h *FetchMessageHandler) fail(ctx context.Context, accountID, fallback string, err error) error {
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

// toModelMessage flattens a provider message into the mirrored row.
func toModelMessage(accountID string, m *gmail.Message) *model.Message {
	var to []string
	if raw := m.Headers["To"]; raw != "" {
		for _, addr := range strings.Split(raw, ",") {
			to = append(to, strings.TrimSpace(addr))
		}
	}
	return &model.Message{
		AccountID:  accountID,
		ProviderID: m.ID,
		ThreadID:   m.ThreadID,
		Subject:    m.Headers["Subject"],
		Snippet:    m.Snippet,
		FromAddr:   m.Headers["From"],
		ToAddrs:    to,
		LabelIDs:   m.LabelIDs,
		InternalAt: time.UnixMilli(m.InternalDate),
		SizeBytes:  m.SizeEstimate,
	}
}

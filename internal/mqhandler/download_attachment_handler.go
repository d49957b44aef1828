package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"mailsync/internal/gmail"
	"mailsync/internal/model"
	"mailsync/internal/queue"
)

// DownloadAttachmentHandler consumes download-attachment jobs and stores
// the attachment bytes, keyed by the provider attachment id. Redeliveries
// overwrite in place.
type DownloadAttachmentHandler struct {
	tokens      TokenSource
	feed        Fetcher
	attachments AttachmentWriter
	accounts    AccountRecorder
	logger      *zap.Logger
}

func NewDownloadAttachmentHandler(
	tokens TokenSource,
	feed Fetcher,
	attachments AttachmentWriter,
	accounts AccountRecorder,
	logger *zap.Logger,
) *DownloadAttachmentHandler {
	return &DownloadAttachmentHandler{
		tokens:      tokens,
		feed:        feed,
		attachments: attachments,
		accounts:    accounts,
		logger:      logger,
	}
}

func (h *DownloadAttachmentHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p queue.DownloadAttachmentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal download-attachment payload", zap.Error(err))
		return err
	}
	if p.AccountID == "" || p.MessageID == "" || p.AttachmentID == "" {
		return fmt.Errorf("download-attachment payload missing identifiers")
	}

	token, err := h.tokens.FreshAccessToken(ctx, p.AccountID)
	if err != nil {
		return err
	}

	data, err := h.feed.GetAttachment(ctx, token, p.MessageID, p.AttachmentID)
	if err != nil {
		if gmail.IsNotFound(err) {
			h.logger.Debug("Attachment gone upstream, skipping",
				zap.String("account_id", p.AccountID),
				zap.String("message_id", p.MessageID),
				zap.String("attachment_id", p.AttachmentID),
			)
			return nil
		}
		return h.fail(ctx, p.AccountID, "Attachment download failed", err)
	}

	att := &model.Attachment{
		AccountID:  p.AccountID,
		MessageID:  p.MessageID,
		ProviderID: p.AttachmentID,
		Filename:   p.Filename,
		MimeType:   p.MimeType,
		SizeBytes:  data.Size,
		Data:       data.Data,
	}
	if err := h.attachments.Upsert(ctx, att); err != nil {
		return h.fail(ctx, p.AccountID, "Attachment store failed", err)
	}

	h.logger.Info("Attachment stored",
		zap.String("account_id", p.AccountID),
		zap.String("message_id", p.MessageID),
		zap.String("attachment_id", p.AttachmentID),
		zap.Int64("size", data.Size),
	)
	return nil
}

func (h *DownloadAttachmentHandler) fail(ctx context.Context, accountID, fallback string, err error) error {
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

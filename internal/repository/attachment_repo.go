package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailsync/internal/model"
	"mailsync/pkg/metrics"
)

type AttachmentRepository struct {
	db *pgxpool.Pool
}

func NewAttachmentRepository(db *pgxpool.Pool) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Upsert stores one attachment, keyed by (account_id, provider_id).
// Redelivered download jobs overwrite in place instead of duplicating.
func (r *AttachmentRepository) Upsert(ctx context.Context, a *model.Attachment) error {
	defer metrics.TimeDBQuery("upsert", "attachments")()

	query := `
        INSERT INTO attachments (
            account_id, message_id, provider_id,
            filename, mime_type, size_bytes, data, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        ON CONFLICT (account_id, provider_id) DO UPDATE
        SET filename = EXCLUDED.filename,
            mime_type = EXCLUDED.mime_type,
            size_bytes = EXCLUDED.size_bytes,
            data = EXCLUDED.data
        RETURNING id
    `
	return r.db.QueryRow(ctx, query,
		a.AccountID, a.MessageID, a.ProviderID,
		a.Filename, a.MimeType, a.SizeBytes, a.Data,
	).Scan(&a.ID)
}

// Exists reports whether the attachment bytes are already stored.
func (r *AttachmentRepository) Exists(ctx context.Context, accountID, providerID string) (bool, error) {
	defer metrics.TimeDBQuery("exists", "attachments")()

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM attachments WHERE account_id = $1 AND provider_id = $2)`
	err := r.db.QueryRow(ctx, query, accountID, providerID).Scan(&exists)
	return exists, err
}

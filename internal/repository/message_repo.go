package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailsync/internal/model"
	"mailsync/pkg/metrics"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Upsert inserts or refreshes one mirrored message, keyed by
// (account_id, provider_id). Re-running the same fetch job lands on the
// conflict arm and leaves a single row.
func (r *MessageRepository) Upsert(ctx context.Context, m *model.Message) error {
	defer metrics.TimeDBQuery("upsert", "messages")()

	query := `
        INSERT INTO messages (
            account_id, provider_id, thread_id, subject, snippet,
            from_addr, to_addrs, label_ids, internal_at, size_bytes,
            created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
        ON CONFLICT (account_id, provider_id) DO UPDATE
        SET thread_id = EXCLUDED.thread_id,
            subject = EXCLUDED.subject,
            snippet = EXCLUDED.snippet,
            from_addr = EXCLUDED.from_addr,
            to_addrs = EXCLUDED.to_addrs,
            label_ids = EXCLUDED.label_ids,
            internal_at = EXCLUDED.internal_at,
            size_bytes = EXCLUDED.size_bytes,
            deleted_at = NULL,
            updated_at = NOW()
        RETURNING id
    `
	return r.db.QueryRow(ctx, query,
		m.AccountID, m.ProviderID, m.ThreadID, m.Subject, m.Snippet,
		m.FromAddr, m.ToAddrs, m.LabelIDs, m.InternalAt, m.SizeBytes,
	).Scan(&m.ID)
}

// SoftDelete marks one message deleted. A second call for the same message,
// or a call for a message never mirrored, is a no-op.
func (r *MessageRepository) SoftDelete(ctx context.Context, accountID, providerID string) error {
	defer metrics.TimeDBQuery("soft_delete", "messages")()

	query := `
        UPDATE messages
        SET deleted_at = COALESCE(deleted_at, NOW()), updated_at = NOW()
        WHERE account_id = $1 AND provider_id = $2
    `
	_, err := r.db.Exec(ctx, query, accountID, providerID)
	return err
}

// AddLabels merges label ids into a mirrored message. Duplicate labels are
// collapsed, so replaying the same change record is harmless. Unknown
// messages are skipped: the corresponding fetch job carries full state.
func (r *MessageRepository) AddLabels(ctx context.Context, accountID, providerID string, labelIDs []string) error {
	defer metrics.TimeDBQuery("add_labels", "messages")()

	query := `
        UPDATE messages
        SET label_ids = (
                SELECT ARRAY(SELECT DISTINCT l FROM unnest(label_ids || $3::text[]) AS l ORDER BY l)
            ),
            updated_at = NOW()
        WHERE account_id = $1 AND provider_id = $2
    `
	_, err := r.db.Exec(ctx, query, accountID, providerID, labelIDs)
	return err
}

// RemoveLabels drops label ids from a mirrored message. Removing a label
// that is already absent is a no-op.
func (r *MessageRepository) RemoveLabels(ctx context.Context, accountID, providerID string, labelIDs []string) error {
	defer metrics.TimeDBQuery("remove_labels", "messages")()

	query := `
        UPDATE messages
        SET label_ids = (
                SELECT COALESCE(ARRAY(SELECT l FROM unnest(label_ids) AS l WHERE NOT (l = ANY($3::text[]))), '{}')
            ),
            updated_at = NOW()
        WHERE account_id = $1 AND provider_id = $2
    `
	_, err := r.db.Exec(ctx, query, accountID, providerID, labelIDs)
	return err
}

// Exists reports whether a message is already mirrored (deleted or not).
func (r *MessageRepository) Exists(ctx context.Context, accountID, providerID string) (bool, error) {
	defer metrics.TimeDBQuery("exists", "messages")()

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM messages WHERE account_id = $1 AND provider_id = $2)`
	err := r.db.QueryRow(ctx, query, accountID, providerID).Scan(&exists)
	return exists, err
}

// CountSince returns how many live messages have been mirrored since the
// given time. Used by the status endpoint.
func (r *MessageRepository) CountSince(ctx context.Context, accountID string, since time.Time) (int64, error) {
	defer metrics.TimeDBQuery("count_since", "messages")()

	var n int64
	query := `
        SELECT COUNT(*)
        FROM messages
        WHERE account_id = $1 AND deleted_at IS NULL AND updated_at >= $2
    `
	err := r.db.QueryRow(ctx, query, accountID, since).Scan(&n)
	return n, err
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailsync/internal/model"
	"mailsync/pkg/metrics"
)

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `
	id, workspace_id, email_address,
	access_token, refresh_token, token_expiry,
	history_id, sync_status, sync_enabled,
	last_error, last_sync_at, watch_expiry,
	created_at, updated_at
`

// Create inserts a newly connected account.
func (r *AccountRepository) Create(ctx context.Context, a *model.Account) error {
	defer metrics.TimeDBQuery("create", "accounts")()

	query := `
        INSERT INTO accounts (
            id, workspace_id, email_address,
            access_token, refresh_token, token_expiry,
            history_id, sync_status, sync_enabled,
            created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
    `
	_, err := r.db.Exec(ctx, query,
		a.ID, a.WorkspaceID, a.EmailAddress,
		a.AccessToken, a.RefreshToken, a.TokenExpiry,
		a.HistoryID, a.SyncStatus, a.SyncEnabled,
	)
	return err
}

// Find returns one account by id.
func (r *AccountRepository) Find(ctx context.Context, id string) (*model.Account, error) {
	defer metrics.TimeDBQuery("find", "accounts")()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

// FindByEmail returns one account by mailbox address. Webhook notifications
// identify accounts by email, not id.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	defer metrics.TimeDBQuery("find_by_email", "accounts")()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email_address = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, email))
}

// ListScheduled returns the accounts eligible for scheduled reconciliation:
// sync enabled and not explicitly paused. ERROR accounts stay eligible so a
// transient upstream failure heals on the next tick.
func (r *AccountRepository) ListScheduled(ctx context.Context) ([]model.Account, error) {
	defer metrics.TimeDBQuery("list_scheduled", "accounts")()

	query := `
        SELECT ` + accountColumns + `
        FROM accounts
        WHERE sync_enabled = TRUE AND sync_status <> 'PAUSED'
        ORDER BY last_sync_at ASC NULLS FIRST
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// ListWatchExpiring returns accounts whose push registration expires before
// the given deadline (or was never set up).
func (r *AccountRepository) ListWatchExpiring(ctx context.Context, before time.Time) ([]model.Account, error) {
	defer metrics.TimeDBQuery("list_watch_expiring", "accounts")()

	query := `
        SELECT ` + accountColumns + `
        FROM accounts
        WHERE sync_enabled = TRUE
          AND sync_status <> 'PAUSED'
          AND (watch_expiry IS NULL OR watch_expiry < $1)
    `
	rows, err := r.db.Query(ctx, query, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// RecordSuccessfulSync advances the cursor and marks the account healthy.
// An empty historyID leaves the stored cursor untouched.
func (r *AccountRepository) RecordSuccessfulSync(ctx context.Context, id, historyID string) error {
	defer metrics.TimeDBQuery("record_successful_sync", "accounts")()

	query := `
        UPDATE accounts
        SET history_id = COALESCE(NULLIF($2, ''), history_id),
            sync_status = 'ACTIVE',
            last_error = NULL,
            last_sync_at = NOW(),
            updated_at = NOW()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, id, historyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

// RecordSyncError flips the account to ERROR with the given message.
func (r *AccountRepository) RecordSyncError(ctx context.Context, id, message string) error {
	defer metrics.TimeDBQuery("record_sync_error", "accounts")()

	query := `
        UPDATE accounts
        SET sync_status = 'ERROR',
            last_error = $2,
            updated_at = NOW()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, id, message)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

// UpdateCursor persists a new change-feed cursor without touching sync
// status. Used by the full-resync planner, which seeds the cursor before
// the backfill job has run.
func (r *AccountRepository) UpdateCursor(ctx context.Context, id, historyID string) error {
	defer metrics.TimeDBQuery("update_cursor", "accounts")()

	query := `
        UPDATE accounts
        SET history_id = $2, updated_at = NOW()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, id, historyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

// UpdateTokens stores a refreshed credential pair.
func (r *AccountRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error {
	defer metrics.TimeDBQuery("update_tokens", "accounts")()

	query := `
        UPDATE accounts
        SET access_token = $2,
            refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
            token_expiry = $4,
            updated_at = NOW()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, id, accessToken, refreshToken, expiry)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

// UpdateWatch records a renewed push-notification registration.
func (r *AccountRepository) UpdateWatch(ctx context.Context, id string, expiry time.Time) error {
	defer metrics.TimeDBQuery("update_watch", "accounts")()

	query := `
        UPDATE accounts
        SET watch_expiry = $2, updated_at = NOW()
        WHERE id = $1
    `
	_, err := r.db.Exec(ctx, query, id, expiry)
	return err
}

// SetSyncEnabled soft-disables or re-enables an account. Disabling also
// parks the status so schedulers skip it.
func (r *AccountRepository) SetSyncEnabled(ctx context.Context, id string, enabled bool) error {
	defer metrics.TimeDBQuery("set_sync_enabled", "accounts")()

	status := model.SyncStatusPaused
	if enabled {
		status = model.SyncStatusActive
	}
	query := `
        UPDATE accounts
        SET sync_enabled = $2, sync_status = $3, updated_at = NOW()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, id, enabled, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

// Delete removes a disconnected account.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	defer metrics.TimeDBQuery("delete", "accounts")()

	_, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}

func (r *AccountRepository) scanOne(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID, &a.WorkspaceID, &a.EmailAddress,
		&a.AccessToken, &a.RefreshToken, &a.TokenExpiry,
		&a.HistoryID, &a.SyncStatus, &a.SyncEnabled,
		&a.LastError, &a.LastSyncAt, &a.WatchExpiry,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepository) scanAll(rows pgx.Rows) ([]model.Account, error) {
	accounts := []model.Account{}
	for rows.Next() {
		var a model.Account
		err := rows.Scan(
			&a.ID, &a.WorkspaceID, &a.EmailAddress,
			&a.AccessToken, &a.RefreshToken, &a.TokenExpiry,
			&a.HistoryID, &a.SyncStatus, &a.SyncEnabled,
			&a.LastError, &a.LastSyncAt, &a.WatchExpiry,
			&a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

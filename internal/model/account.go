package model

import "time"

// SyncStatus is the account-level sync state surfaced to the API.
type SyncStatus string

const (
	SyncStatusActive SyncStatus = "ACTIVE"
	SyncStatusPaused SyncStatus = "PAUSED"
	SyncStatusError  SyncStatus = "ERROR"
)

// SyncTrigger records what caused a history sync pass.
type SyncTrigger string

const (
	TriggerWebhook   SyncTrigger = "webhook"
	TriggerManual    SyncTrigger = "manual"
	TriggerScheduled SyncTrigger = "scheduled"
)

// Account is one connected mailbox.
//
// HistoryID is the provider-side change-feed cursor; it is nil until the
// first successful sync seeds it and only advances on successful passes.
// SyncStatus flips to ERROR only together with a non-empty LastError and
// returns to ACTIVE (clearing LastError) on the next successful sync.
type Account struct {
	ID           string
	WorkspaceID  string
	EmailAddress string

	AccessToken  string
	RefreshToken string // stored encrypted, see internal/token
	TokenExpiry  time.Time

	HistoryID   *string
	SyncStatus  SyncStatus
	SyncEnabled bool
	LastError   *string
	LastSyncAt  *time.Time
	WatchExpiry *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenValid reports whether the stored access token is still usable,
// with a small safety margin for clock skew and request latency.
func (a *Account) TokenValid(now time.Time) bool {
	return a.AccessToken != "" && now.Add(time.Minute).Before(a.TokenExpiry)
}

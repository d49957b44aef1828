package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsync/internal/model"
	syncengine "mailsync/internal/sync"
	"mailsync/pkg/logger"
)

// SyncRunner is the slice of the sync engine the API drives.
type SyncRunner interface {
	Reconcile(ctx context.Context, accountID, startHistoryID string) (*syncengine.SyncResult, error)
	FullResync(ctx context.Context, accountID string) (*syncengine.SyncResult, error)
	InitialBackfill(ctx context.Context, accountID string) (*syncengine.SyncResult, error)
}

// AccountReader is the account read path for the status endpoint.
type AccountReader interface {
	Find(ctx context.Context, id string) (*model.Account, error)
}

// AccountHandler serves the manual "sync now" actions and the sync status
// surface. Manual syncs run inline so the caller gets the pass result back.
type AccountHandler struct {
	engine   SyncRunner
	accounts AccountReader
	logger   *zap.Logger
}

func NewAccountHandler(engine SyncRunner, accounts AccountReader, log *zap.Logger) *AccountHandler {
	return &AccountHandler{
		engine:   engine,
		accounts: accounts,
		logger:   log,
	}
}

// SyncNow runs one reconciliation pass for the account and returns its
// result. An optional startHistoryId query param overrides the stored
// cursor.
func (h *AccountHandler) SyncNow(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := c.Param("id")
	start := c.Query("startHistoryId")

	result, err := h.engine.Reconcile(ctx, accountID, start)
	if err != nil {
		h.writeSyncError(c, accountID, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ResyncNow forces the full-resync path regardless of cursor state.
func (h *AccountHandler) ResyncNow(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := c.Param("id")

	result, err := h.engine.FullResync(ctx, accountID)
	if err != nil {
		h.writeSyncError(c, accountID, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// BackfillNow seeds a freshly connected account: it lists the most recent
// messages directly and returns real counts, unlike ResyncNow which defers
// the listing to a queued job. The connect flow calls this once per account.
func (h *AccountHandler) BackfillNow(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := c.Param("id")

	result, err := h.engine.InitialBackfill(ctx, accountID)
	if err != nil {
		h.writeSyncError(c, accountID, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Status returns the account's sync state. This is the single user-visible
// error channel: syncStatus plus lastError.
func (h *AccountHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := c.Param("id")

	acct, err := h.accounts.Find(ctx, accountID)
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		logger.WithTrace(ctx, h.logger).Error("Account lookup failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accountId":    acct.ID,
		"emailAddress": acct.EmailAddress,
		"syncStatus":   acct.SyncStatus,
		"syncEnabled":  acct.SyncEnabled,
		"historyId":    acct.HistoryID,
		"lastError":    acct.LastError,
		"lastSyncAt":   acct.LastSyncAt,
		"watchExpiry":  acct.WatchExpiry,
	})
}

func (h *AccountHandler) writeSyncError(c *gin.Context, accountID string, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, model.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
	case errors.Is(err, syncengine.ErrSyncInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "sync already in flight"})
	default:
		logger.WithTrace(ctx, h.logger).Error("Manual sync failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

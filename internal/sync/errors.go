package sync

import (
	"errors"
	"fmt"
	"strings"

	"mailsync/internal/gmail"
)

// ErrSyncInFlight means another process holds the sync lease for this
// account. The caller (usually a queue redelivery) should try again later.
var ErrSyncInFlight = errors.New("sync already in flight for account")

// ProtocolError means the change feed kept returning page tokens past the
// safety ceiling. Fatal for the pass; never retried in a tight loop.
type ProtocolError struct {
	Pages int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("change feed returned %d pages without terminating", e.Pages)
}

// isStaleCursorError reports whether the feed rejected our cursor as too
// old. The provider signals this with a plain 404 or an error message
// mentioning "historyId"; there is no structured code for it, so this
// predicate is the single place the heuristic lives.
func isStaleCursorError(err error) bool {
	if err == nil {
		return false
	}
	if gmail.IsNotFound(err) {
		return true
	}
	return strings.Contains(err.Error(), "historyId")
}

// errorMessage extracts a human-readable message for account bookkeeping,
// substituting a generic one when the error text is empty.
func errorMessage(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}

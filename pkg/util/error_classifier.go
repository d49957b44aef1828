package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"

	"mailsync/internal/model"
	"mailsync/pkg/circuitbreaker"
)

// IsRetryableError determines if an error is worth another delivery attempt.
// Returns: (isRetryable, errorType)
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	errStr := err.Error()

	// JSON decode errors: malformed payload, retrying cannot help.
	if _, ok := err.(*json.SyntaxError); ok {
		return false, "json_decode_error"
	}
	if _, ok := err.(*json.UnmarshalTypeError); ok {
		return false, "json_decode_error"
	}
	if strings.Contains(errStr, "json:") {
		return false, "json_decode_error"
	}

	// A deleted account is terminal for every job that references it.
	if errors.Is(err, model.ErrAccountNotFound) {
		return false, "account_not_found"
	}

	// Database errors
	if errors.Is(err, pgx.ErrNoRows) {
		return false, "row_not_found"
	}
	if strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "UNIQUE constraint") {
		return false, "duplicate_key"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		return true, "db_connection_error"
	}

	// Context errors before net.Error: context.DeadlineExceeded satisfies
	// net.Error and would be misfiled as a network timeout.
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	// Network errors
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	// An open breaker clears once the provider recovers.
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return true, "provider_unavailable"
	}

	// Provider API errors: rate limits and server errors recover on their
	// own; auth and not-found do not.
	if strings.Contains(errStr, "http 429") {
		return true, "provider_rate_limited"
	}
	if strings.Contains(errStr, "http 5") {
		return true, "provider_server_error"
	}
	if strings.Contains(errStr, "http 401") || strings.Contains(errStr, "http 403") {
		return false, "provider_auth_error"
	}
	if strings.Contains(errStr, "http 404") {
		return false, "provider_not_found"
	}

	// A concurrent pass holds the account lease; the collision clears once
	// that pass finishes.
	if strings.Contains(errStr, "in flight") {
		return true, "sync_in_flight"
	}

	// Unknown errors: be conservative, do not retry.
	return false, "unknown_error"
}

// ShouldRetry reports whether a failed delivery gets another attempt, given
// how many attempts have already run against the job's budget.
func ShouldRetry(attempts, limit int64, isRetryable bool) bool {
	if !isRetryable {
		return false
	}
	return attempts < limit
}

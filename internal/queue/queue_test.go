package queue

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rabbitmq/amqp091-go"

	"mailsync/internal/model"
)

func TestBrokerPriorityInversion(t *testing.T) {
	cases := []struct {
		in   int
		want uint8
	}{
		{PrioritySyncHistory, 9},
		{PriorityFetchMessage, 8},
		{PriorityFullSync, 7},
		{PriorityDownloadAttachment, 7},
		{0, 10},
		{10, 0},
		{-5, 10}, // clamped
		{999, 0}, // clamped
	}
	for _, tc := range cases {
		if got := brokerPriority(tc.in); got != tc.want {
			t.Errorf("brokerPriority(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestBrokerPriorityOrdering(t *testing.T) {
	// History reconciliation must beat message fetches on the broker, and
	// fetches must beat backfills and attachment downloads.
	if brokerPriority(PrioritySyncHistory) <= brokerPriority(PriorityFetchMessage) {
		t.Error("sync-history must outrank fetch-message at the broker")
	}
	if brokerPriority(PriorityFetchMessage) <= brokerPriority(PriorityFullSync) {
		t.Error("fetch-message must outrank full-sync at the broker")
	}
}

func TestAttemptsLimit(t *testing.T) {
	cases := []struct {
		name string
		msg  amqp091.Delivery
		want int
	}{
		{"int32 header", amqp091.Delivery{Headers: amqp091.Table{"x-attempts-limit": int32(5)}}, 5},
		{"int64 header", amqp091.Delivery{Headers: amqp091.Table{"x-attempts-limit": int64(7)}}, 7},
		{"missing header", amqp091.Delivery{}, DefaultAttempts},
		{"wrong type", amqp091.Delivery{Headers: amqp091.Table{"x-attempts-limit": "3"}}, DefaultAttempts},
	}
	for _, tc := range cases {
		if got := attemptsLimit(tc.msg); got != tc.want {
			t.Errorf("%s: attemptsLimit = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestRetryKeyStableAcrossRedelivery(t *testing.T) {
	c := &Consumer{jobName: JobFetchMessage}
	body := []byte(`{"accountId": "acct-1", "messageId": "m1"}`)

	k1 := c.retryKey(body)
	k2 := c.retryKey(body)
	if k1 != k2 {
		t.Errorf("retry key must be stable for the same body: %q vs %q", k1, k2)
	}
	if !strings.HasPrefix(k1, JobFetchMessage+":") {
		t.Errorf("retry key must be scoped by job name: %q", k1)
	}

	other := c.retryKey([]byte(`{"accountId": "acct-1", "messageId": "m2"}`))
	if k1 == other {
		t.Error("different payloads must not share a retry key")
	}
}

func TestRetryDeliveryRouting(t *testing.T) {
	cases := []struct {
		name     string
		cause    error
		attempts int64
		retry    bool
		errType  string
	}{
		{"missing account parks on first attempt", fmt.Errorf("reconcile: %w", model.ErrAccountNotFound), 1, false, "account_not_found"},
		{"runaway feed parks on first attempt", errors.New("change feed returned 10000 pages without terminating"), 1, false, "unknown_error"},
		{"auth failure parks on first attempt", errors.New("gmail: http 401: invalid credentials"), 1, false, "provider_auth_error"},
		{"server error within budget requeues", errors.New("gmail: http 503: backendError"), 2, true, "provider_server_error"},
		{"server error at budget parks", errors.New("gmail: http 503: backendError"), 3, false, "provider_server_error"},
		{"lease collision requeues", errors.New("sync already in flight for account"), 1, true, "sync_in_flight"},
		{"counter unavailable falls back to requeue", errors.New("gmail: http 503: backendError"), 0, true, "provider_server_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retry, errType := retryDelivery(tc.cause, tc.attempts, DefaultAttempts)
			if retry != tc.retry || errType != tc.errType {
				t.Errorf("retryDelivery = (%v, %q), want (%v, %q)",
					retry, errType, tc.retry, tc.errType)
			}
		})
	}
}

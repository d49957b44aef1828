package mqhandler

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"mailsync/internal/gmail"
	"mailsync/internal/queue"
)

func TestFullSyncHandler(t *testing.T) {
	fetcher := &fakeFetcher{
		Profile: &gmail.Profile{HistoryID: "900"},
		Lists: map[string]*gmail.MessageList{
			"": {
				Messages:      []gmail.MessageRef{{ID: "m1", ThreadID: "t1"}, {ID: "m2", ThreadID: "t1"}},
				NextPageToken: "p2",
			},
			"p2": {
				Messages: []gmail.MessageRef{{ID: "m3", ThreadID: "t2"}},
			},
		},
	}
	accounts := &fakeRecorder{}
	dispatch := &fakeQueue{}
	h := NewFullSyncHandler(&fakeTokens{Token: "tok"}, fetcher, accounts, dispatch, zap.NewNop())

	raw := json.RawMessage(`{"accountId": "acct-1", "maxMessages": 100}`)
	if err := h.Handle(context.Background(), raw); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(dispatch.Jobs) != 3 {
		t.Fatalf("expected 3 fetch jobs, got %d", len(dispatch.Jobs))
	}
	for _, job := range dispatch.Jobs {
		if job.Name != queue.JobFetchMessage {
			t.Errorf("unexpected job name %q", job.Name)
		}
	}
	if len(accounts.SuccessCalls) != 1 || accounts.SuccessCalls[0].Value != "900" {
		t.Errorf("expected account marked healthy at cursor 900, got %v", accounts.SuccessCalls)
	}
}

func TestFullSyncHandlerCapsBackfill(t *testing.T) {
	fetcher := &fakeFetcher{
		Profile: &gmail.Profile{HistoryID: "900"},
		Lists: map[string]*gmail.MessageList{
			"": {
				Messages: []gmail.MessageRef{
					{ID: "m1"}, {ID: "m2"}, {ID: "m3"}, {ID: "m4"},
				},
				NextPageToken: "p2",
			},
		},
	}
	accounts := &fakeRecorder{}
	dispatch := &fakeQueue{}
	h := NewFullSyncHandler(&fakeTokens{Token: "tok"}, fetcher, accounts, dispatch, zap.NewNop())

	raw := json.RawMessage(`{"accountId": "acct-1", "maxMessages": 2}`)
	if err := h.Handle(context.Background(), raw); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(dispatch.Jobs) != 2 {
		t.Errorf("expected backfill capped at 2 jobs, got %d", len(dispatch.Jobs))
	}
	if fetcher.ListCalls != 1 {
		t.Errorf("expected listing to stop at the cap, got %d calls", fetcher.ListCalls)
	}
}

func TestFullSyncHandlerSentinelCursor(t *testing.T) {
	fetcher := &fakeFetcher{Profile: &gmail.Profile{}}
	accounts := &fakeRecorder{}
	h := NewFullSyncHandler(&fakeTokens{Token: "tok"}, fetcher, accounts, &fakeQueue{}, zap.NewNop())

	raw := json.RawMessage(`{"accountId": "acct-1"}`)
	if err := h.Handle(context.Background(), raw); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(accounts.SuccessCalls) != 1 || accounts.SuccessCalls[0].Value != "1" {
		t.Errorf("expected sentinel cursor, got %v", accounts.SuccessCalls)
	}
}

func TestFullSyncHandlerProfileFailure(t *testing.T) {
	fetcher := &fakeFetcher{ProfileErr: &gmail.StatusError{Code: 503, Reason: "backendError"}}
	accounts := &fakeRecorder{}
	h := NewFullSyncHandler(&fakeTokens{Token: "tok"}, fetcher, accounts, &fakeQueue{}, zap.NewNop())

	raw := json.RawMessage(`{"accountId": "acct-1"}`)
	if err := h.Handle(context.Background(), raw); err == nil {
		t.Fatal("expected failure to propagate for retry")
	}
	if len(accounts.ErrorCalls) != 1 {
		t.Errorf("expected error recorded, got %d", len(accounts.ErrorCalls))
	}
	if len(accounts.SuccessCalls) != 0 {
		t.Error("failed backfill must not mark the account healthy")
	}
}

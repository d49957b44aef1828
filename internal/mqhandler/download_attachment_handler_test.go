package mqhandler

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"mailsync/internal/gmail"
)

func TestDownloadAttachmentHandler(t *testing.T) {
	fetcher := &fakeFetcher{
		Attachment: &gmail.AttachmentData{Size: 4, Data: []byte("pdf!")},
	}
	attachments := &fakeAttachmentWriter{}
	accounts := &fakeRecorder{}
	h := NewDownloadAttachmentHandler(&fakeTokens{Token: "tok"}, fetcher, attachments, accounts, zap.NewNop())

	raw := json.RawMessage(`{
		"accountId": "acct-1",
		"messageId": "m1",
		"attachmentId": "att-1",
		"filename": "report.pdf",
		"mimeType": "application/pdf",
		"size": 4
	}`)
	if err := h.Handle(context.Background(), raw); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(attachments.Upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(attachments.Upserts))
	}
	att := attachments.Upserts[0]
	if att.AccountID != "acct-1" || att.MessageID != "m1" || att.ProviderID != "att-1" {
		t.Errorf("unexpected attachment keys: %+v", att)
	}
	if att.Filename != "report.pdf" || string(att.Data) != "pdf!" || att.SizeBytes != 4 {
		t.Errorf("unexpected attachment content: %+v", att)
	}
}

func TestDownloadAttachmentHandlerGoneUpstream(t *testing.T) {
	fetcher := &fakeFetcher{AttachmentErr: &gmail.StatusError{Code: 404, Reason: "notFound"}}
	attachments := &fakeAttachmentWriter{}
	accounts := &fakeRecorder{}
	h := NewDownloadAttachmentHandler(&fakeTokens{Token: "tok"}, fetcher, attachments, accounts, zap.NewNop())

	raw := json.RawMessage(`{"accountId": "acct-1", "messageId": "m1", "attachmentId": "att-1"}`)
	if err := h.Handle(context.Background(), raw); err != nil {
		t.Fatalf("a vanished attachment is normal churn, got %v", err)
	}
	if len(attachments.Upserts) != 0 || len(accounts.ErrorCalls) != 0 {
		t.Error("gone attachment must neither upsert nor record an error")
	}
}

func TestDownloadAttachmentHandlerFailure(t *testing.T) {
	fetcher := &fakeFetcher{AttachmentErr: &gmail.StatusError{Code: 500, Reason: "backendError"}}
	accounts := &fakeRecorder{}
	h := NewDownloadAttachmentHandler(&fakeTokens{Token: "tok"}, fetcher, &fakeAttachmentWriter{}, accounts, zap.NewNop())

	raw := json.RawMessage(`{"accountId": "acct-1", "messageId": "m1", "attachmentId": "att-1"}`)
	if err := h.Handle(context.Background(), raw); err == nil {
		t.Fatal("expected failure to propagate for retry")
	}
	if len(accounts.ErrorCalls) != 1 {
		t.Errorf("expected error recorded, got %d", len(accounts.ErrorCalls))
	}
}

func TestDownloadAttachmentHandlerMalformedPayload(t *testing.T) {
	fetcher := &fakeFetcher{}
	h := NewDownloadAttachmentHandler(&fakeTokens{Token: "tok"}, fetcher, &fakeAttachmentWriter{}, &fakeRecorder{}, zap.NewNop())

	if err := h.Handle(context.Background(), json.RawMessage(`{"accountId": "acct-1"}`)); err == nil {
		t.Error("expected error for missing identifiers")
	}
	if len(fetcher.GetAttachmentCalls) != 0 {
		t.Error("provider must not be called for bad payloads")
	}
}

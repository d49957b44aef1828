package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 0, zap.NewNop())
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"emailAddress": "user@example.com", "historyId": "42"}`)
	})

	profile, err := c.GetProfile(context.Background(), "tok-abc")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
	if profile.HistoryID != "42" {
		t.Errorf("unexpected profile: %+v", profile)
	}
}

func TestClientStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"code": 404, "message": "Requested entity was not found."}}`)
	})

	_, err := c.GetMessage(context.Background(), "tok", "missing")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != 404 {
		t.Errorf("expected 404, got %d", se.Code)
	}
	if se.Reason != "Requested entity was not found." {
		t.Errorf("expected envelope message, got %q", se.Reason)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound must match a provider 404")
	}
}

func TestClientStatusErrorRawBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream timeout")
	})

	_, err := c.GetProfile(context.Background(), "tok")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != 502 || se.Reason != "upstream timeout" {
		t.Errorf("expected raw body as reason, got %+v", se)
	}
}

func TestClientListHistoryQuery(t *testing.T) {
	var gotQuery map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{"historyId": "50"}`)
	})

	page, err := c.ListHistory(context.Background(), "tok", "40", "page-2")
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if page.HistoryID != "50" {
		t.Errorf("unexpected page: %+v", page)
	}
	if got := gotQuery["startHistoryId"]; len(got) != 1 || got[0] != "40" {
		t.Errorf("unexpected startHistoryId: %v", got)
	}
	if got := gotQuery["pageToken"]; len(got) != 1 || got[0] != "page-2" {
		t.Errorf("unexpected pageToken: %v", got)
	}
	if got := gotQuery["historyTypes"]; len(got) != 4 {
		t.Errorf("expected 4 history types subscribed, got %v", got)
	}
}

func TestClientGetAttachment(t *testing.T) {
	payload := []byte("binary attachment bytes")
	encoded := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(payload)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"size": %d, "data": %q}`, len(payload), encoded)
	})

	att, err := c.GetAttachment(context.Background(), "tok", "m1", "att-1")
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if string(att.Data) != string(payload) {
		t.Errorf("attachment bytes mismatch: %q", att.Data)
	}
	if att.Size != int64(len(payload)) {
		t.Errorf("unexpected size: %d", att.Size)
	}
}

func TestClientContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetProfile(ctx, "tok")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

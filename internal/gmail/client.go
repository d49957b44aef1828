package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mailsync/pkg/circuitbreaker"
)

const defaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

// historyTypes we subscribe to; everything else the feed may emit is ignored
// server-side.
var historyTypes = []string{"messageAdded", "messageDeleted", "labelAdded", "labelRemoved"}

// Client is the HTTP client for the provider's mailbox API. All calls take
// the bearer token explicitly so one client can serve every account.
type Client struct {
	httpc   *http.Client
	baseURL string
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a provider client. qps bounds outgoing request rate
// across all accounts sharing this client; qps <= 0 disables limiting.
func NewClient(baseURL string, qps float64, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	limit := rate.Inf
	burst := 1
	if qps > 0 {
		limit = rate.Limit(qps)
		burst = int(qps) + 1
	}
	return &Client{
		httpc:   &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(limit, burst),
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:  logger,
	}
}

// GetProfile returns the mailbox profile, including the current head of the
// change feed.
func (c *Client) GetProfile(ctx context.Context, token string) (*Profile, error) {
	var resp struct {
		EmailAddress  string `json:"emailAddress"`
		MessagesTotal int64  `json:"messagesTotal"`
		HistoryID     string `json:"historyId"`
	}
	if err := c.get(ctx, token, "/users/me/profile", nil, &resp); err != nil {
		return nil, err
	}
	return &Profile{
		EmailAddress:  resp.EmailAddress,
		HistoryID:     resp.HistoryID,
		MessagesTotal: resp.MessagesTotal,
	}, nil
}

// ListHistory returns one page of the change feed starting at
// startHistoryID. Pass the previous page's NextPageToken to continue.
func (c *Client) ListHistory(ctx context.Context, token, startHistoryID, pageToken string) (*HistoryPage, error) {
	q := url.Values{}
	q.Set("startHistoryId", startHistoryID)
	for _, t := range historyTypes {
		q.Add("historyTypes", t)
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	var resp historyListResponse
	if err := c.get(ctx, token, "/users/me/history", q, &resp); err != nil {
		return nil, err
	}
	return resp.toPage(), nil
}

// ListMessages returns one page of the mailbox's messages, newest first.
func (c *Client) ListMessages(ctx context.Context, token, query, pageToken string, maxResults int64) (*MessageList, error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	if maxResults > 0 {
		q.Set("maxResults", fmt.Sprintf("%d", maxResults))
	}

	var resp struct {
		Messages []struct {
			ID       string `json:"id"`
			ThreadID string `json:"threadId"`
		} `json:"messages"`
		NextPageToken string `json:"nextPageToken"`
	}
	if err := c.get(ctx, token, "/users/me/messages", q, &resp); err != nil {
		return nil, err
	}

	out := &MessageList{NextPageToken: resp.NextPageToken}
	for _, m := range resp.Messages {
		out.Messages = append(out.Messages, MessageRef{ID: m.ID, ThreadID: m.ThreadID})
	}
	return out, nil
}

// GetMessage fetches one message in full format and flattens the header and
// attachment metadata we mirror locally.
func (c *Client) GetMessage(ctx context.Context, token, messageID string) (*Message, error) {
	q := url.Values{}
	q.Set("format", "full")

	var resp wireMessage
	if err := c.get(ctx, token, "/users/me/messages/"+url.PathEscape(messageID), q, &resp); err != nil {
		return nil, err
	}
	return resp.toMessage(), nil
}

// GetAttachment downloads one attachment's bytes.
func (c *Client) GetAttachment(ctx context.Context, token, messageID, attachmentID string) (*AttachmentData, error) {
	path := "/users/me/messages/" + url.PathEscape(messageID) + "/attachments/" + url.PathEscape(attachmentID)

	var resp struct {
		Size int64  `json:"size"`
		Data string `json:"data"`
	}
	if err := c.get(ctx, token, path, nil, &resp); err != nil {
		return nil, err
	}

	data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment data: %w", err)
	}
	return &AttachmentData{Size: resp.Size, Data: data}, nil
}

// Watch registers push notifications for the mailbox.
func (c *Client) Watch(ctx context.Context, token, topicName string) (*WatchResult, error) {
	body := map[string]any{"topicName": topicName, "labelIds": []string{"INBOX"}}

	var resp struct {
		HistoryID  string `json:"historyId"`
		Expiration int64  `json:"expiration,string"`
	}
	if err := c.post(ctx, token, "/users/me/watch", body, &resp); err != nil {
		return nil, err
	}
	return &WatchResult{HistoryID: resp.HistoryID, Expiration: resp.Expiration}, nil
}

// StopWatch tears down the push-notification registration.
func (c *Client) StopWatch(ctx context.Context, token string) error {
	return c.post(ctx, token, "/users/me/stop", nil, nil)
}

func (c *Client) get(ctx context.Context, token, path string, query url.Values, out any) error {
	return c.do(ctx, token, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, token, path string, body, out any) error {
	return c.do(ctx, token, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, token, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = strings.NewReader(string(b))
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	var resp *http.Response
	err = c.breaker.Execute(func() error {
		r, derr := c.httpc.Do(req)
		if derr != nil {
			return fmt.Errorf("provider request failed: %w", derr)
		}
		resp = r
		// Server errors count against the breaker; client errors are the
		// caller's problem and do not.
		if r.StatusCode >= 500 {
			defer r.Body.Close()
			return &StatusError{Code: r.StatusCode, Reason: readAPIError(r.Body)}
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("provider call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Reason: readAPIError(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

// readAPIError extracts the provider's error message from an error body.
// Falls back to the raw body when the envelope doesn't parse.
func readAPIError(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 8192))
	if err != nil {
		return ""
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

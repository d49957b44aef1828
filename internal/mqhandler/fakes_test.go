package mqhandler

import (
	"context"

	"mailsync/internal/gmail"
	"mailsync/internal/model"
	"mailsync/internal/queue"
	"mailsync/internal/sync"
)

type fakeReconciler struct {
	Result *sync.SyncResult
	Err    error
	Calls  []reconcileCall
}

type reconcileCall struct {
	AccountID      string
	StartHistoryID string
}

func (f *fakeReconciler) Reconcile(ctx context.Context, accountID, startHistoryID string) (*sync.SyncResult, error) {
	f.Calls = append(f.Calls, reconcileCall{AccountID: accountID, StartHistoryID: startHistoryID})
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Result, nil
}

type fakeTokens struct {
	Token string
	Err   error
}

func (f *fakeTokens) FreshAccessToken(ctx context.Context, accountID string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return f.Token, nil
}

type fakeFetcher struct {
	Profile       *gmail.Profile
	ProfileErr    error
	Messages      map[string]*gmail.Message
	MessageErr    error
	Attachment    *gmail.AttachmentData
	AttachmentErr error
	Lists         map[string]*gmail.MessageList
	ListErr       error

	GetMessageCalls    []string
	GetAttachmentCalls []string
	ListCalls          int
}

func (f *fakeFetcher) GetProfile(ctx context.Context, token string) (*gmail.Profile, error) {
	if f.ProfileErr != nil {
		return nil, f.ProfileErr
	}
	return f.Profile, nil
}

func (f *fakeFetcher) GetMessage(ctx context.Context, token, messageID string) (*gmail.Message, error) {
	f.GetMessageCalls = append(f.GetMessageCalls, messageID)
	if f.MessageErr != nil {
		return nil, f.MessageErr
	}
	msg, ok := f.Messages[messageID]
	if !ok {
		return nil, &gmail.StatusError{Code: 404, Reason: "notFound"}
	}
	return msg, nil
}

func (f *fakeFetcher) GetAttachment(ctx context.Context, token, messageID, attachmentID string) (*gmail.AttachmentData, error) {
	f.GetAttachmentCalls = append(f.GetAttachmentCalls, attachmentID)
	if f.AttachmentErr != nil {
		return nil, f.AttachmentErr
	}
	return f.Attachment, nil
}

func (f *fakeFetcher) ListMessages(ctx context.Context, token, query, pageToken string, maxResults int64) (*gmail.MessageList, error) {
	f.ListCalls++
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	list, ok := f.Lists[pageToken]
	if !ok {
		return &gmail.MessageList{}, nil
	}
	return list, nil
}

type fakeRecorder struct {
	SuccessCalls []recorderCall
	ErrorCalls   []recorderCall
}

type recorderCall struct {
	AccountID string
	Value     string
}

func (f *fakeRecorder) RecordSuccessfulSync(ctx context.Context, id, historyID string) error {
	f.SuccessCalls = append(f.SuccessCalls, recorderCall{AccountID: id, Value: historyID})
	return nil
}

func (f *fakeRecorder) RecordSyncError(ctx context.Context, id, message string) error {
	f.ErrorCalls = append(f.ErrorCalls, recorderCall{AccountID: id, Value: message})
	return nil
}

type fakeMessageWriter struct {
	Upserts []*model.Message
	Err     error
}

func (f *fakeMessageWriter) Upsert(ctx context.Context, m *model.Message) error {
	if f.Err != nil {
		return f.Err
	}
	f.Upserts = append(f.Upserts, m)
	return nil
}

type fakeAttachmentWriter struct {
	Upserts []*model.Attachment
	Err     error
}

func (f *fakeAttachmentWriter) Upsert(ctx context.Context, a *model.Attachment) error {
	if f.Err != nil {
		return f.Err
	}
	f.Upserts = append(f.Upserts, a)
	return nil
}

type fakeQueue struct {
	Jobs   []dispatchedJob
	AddErr error
}

type dispatchedJob struct {
	Name    string
	Payload any
	Opts    queue.EnqueueOptions
}

func (f *fakeQueue) Add(ctx context.Context, name string, payload any, opts queue.EnqueueOptions) error {
	if f.AddErr != nil {
		return f.AddErr
	}
	f.Jobs = append(f.Jobs, dispatchedJob{Name: name, Payload: payload, Opts: opts})
	return nil
}

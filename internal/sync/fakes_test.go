package sync

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"mailsync/internal/gmail"
	"mailsync/internal/model"
	"mailsync/internal/queue"
)

// fakeAccounts is an in-memory AccountStore recording every mutation.
type fakeAccounts struct {
	accounts map[string]*model.Account

	FindCalls    int
	SuccessCalls []successCall
	ErrorCalls   []errorCall
	CursorCalls  []cursorCall

	SuccessErr error
	CursorErr  error
}

type successCall struct {
	AccountID string
	HistoryID string
}

type errorCall struct {
	AccountID string
	Message   string
}

type cursorCall struct {
	AccountID string
	HistoryID string
}

func newFakeAccounts(accounts ...*model.Account) *fakeAccounts {
	f := &fakeAccounts{accounts: map[string]*model.Account{}}
	for _, a := range accounts {
		f.accounts[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) Find(ctx context.Context, id string) (*model.Account, error) {
	f.FindCalls++
	a, ok := f.accounts[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAccounts) RecordSuccessfulSync(ctx context.Context, id, historyID string) error {
	f.SuccessCalls = append(f.SuccessCalls, successCall{AccountID: id, HistoryID: historyID})
	if f.SuccessErr != nil {
		return f.SuccessErr
	}
	a, ok := f.accounts[id]
	if !ok {
		return model.ErrAccountNotFound
	}
	if historyID != "" {
		h := historyID
		a.HistoryID = &h
	}
	a.SyncStatus = model.SyncStatusActive
	a.LastError = nil
	return nil
}

func (f *fakeAccounts) RecordSyncError(ctx context.Context, id, message string) error {
	f.ErrorCalls = append(f.ErrorCalls, errorCall{AccountID: id, Message: message})
	a, ok := f.accounts[id]
	if !ok {
		return model.ErrAccountNotFound
	}
	a.SyncStatus = model.SyncStatusError
	a.LastError = &message
	return nil
}

func (f *fakeAccounts) UpdateCursor(ctx context.Context, id, historyID string) error {
	f.CursorCalls = append(f.CursorCalls, cursorCall{AccountID: id, HistoryID: historyID})
	if f.CursorErr != nil {
		return f.CursorErr
	}
	a, ok := f.accounts[id]
	if !ok {
		return model.ErrAccountNotFound
	}
	h := historyID
	a.HistoryID = &h
	return nil
}

// fakeMessages records the synchronous mutations a pass applies.
type fakeMessages struct {
	Deleted       []string
	LabelsAdded   map[string][]string
	LabelsRemoved map[string][]string

	DeleteErr error
	LabelsErr error
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{
		LabelsAdded:   map[string][]string{},
		LabelsRemoved: map[string][]string{},
	}
}

func (f *fakeMessages) SoftDelete(ctx context.Context, accountID, providerID string) error {
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.Deleted = append(f.Deleted, providerID)
	return nil
}

func (f *fakeMessages) AddLabels(ctx context.Context, accountID, providerID string, labelIDs []string) error {
	if f.LabelsErr != nil {
		return f.LabelsErr
	}
	f.LabelsAdded[providerID] = append(f.LabelsAdded[providerID], labelIDs...)
	return nil
}

func (f *fakeMessages) RemoveLabels(ctx context.Context, accountID, providerID string, labelIDs []string) error {
	if f.LabelsErr != nil {
		return f.LabelsErr
	}
	f.LabelsRemoved[providerID] = append(f.LabelsRemoved[providerID], labelIDs...)
	return nil
}

// fakeTokens hands out one static token.
type fakeTokens struct {
	Token string
	Err   error
	Calls int
}

func (f *fakeTokens) FreshAccessToken(ctx context.Context, accountID string) (string, error) {
	f.Calls++
	if f.Err != nil {
		return "", f.Err
	}
	return f.Token, nil
}

// fakeFeed serves canned history pages keyed by page token and counts calls.
// An empty key holds the first page.
type fakeFeed struct {
	Profile    *gmail.Profile
	ProfileErr error

	Pages      map[string]*gmail.HistoryPage
	HistoryErr error

	Lists         map[string]*gmail.MessageList
	ListErr       error
	ListMax       []int64
	OnListHistory func(pageToken string)

	ProfileCalls int
	HistoryCalls int
	ListCalls    int
}

func (f *fakeFeed) GetProfile(ctx context.Context, token string) (*gmail.Profile, error) {
	f.ProfileCalls++
	if f.ProfileErr != nil {
		return nil, f.ProfileErr
	}
	return f.Profile, nil
}

func (f *fakeFeed) ListHistory(ctx context.Context, token, startHistoryID, pageToken string) (*gmail.HistoryPage, error) {
	f.HistoryCalls++
	if f.OnListHistory != nil {
		f.OnListHistory(pageToken)
	}
	if f.HistoryErr != nil {
		return nil, f.HistoryErr
	}
	page, ok := f.Pages[pageToken]
	if !ok {
		return &gmail.HistoryPage{}, nil
	}
	return page, nil
}

func (f *fakeFeed) ListMessages(ctx context.Context, token, query, pageToken string, maxResults int64) (*gmail.MessageList, error) {
	f.ListCalls++
	f.ListMax = append(f.ListMax, maxResults)
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	list, ok := f.Lists[pageToken]
	if !ok {
		return &gmail.MessageList{}, nil
	}
	return list, nil
}

// fakeQueue records every dispatched job.
type fakeQueue struct {
	Jobs   []enqueuedCall
	AddErr error
}

type enqueuedCall struct {
	Name    string
	Payload any
	Opts    queue.EnqueueOptions
}

func (f *fakeQueue) Add(ctx context.Context, name string, payload any, opts queue.EnqueueOptions) error {
	if f.AddErr != nil {
		return f.AddErr
	}
	f.Jobs = append(f.Jobs, enqueuedCall{Name: name, Payload: payload, Opts: opts})
	return nil
}

func (f *fakeQueue) named(name string) []enqueuedCall {
	var out []enqueuedCall
	for _, j := range f.Jobs {
		if j.Name == name {
			out = append(out, j)
		}
	}
	return out
}

type testEnv struct {
	Accounts *fakeAccounts
	Messages *fakeMessages
	Tokens   *fakeTokens
	Feed     *fakeFeed
	Queue    *fakeQueue
	Engine   *Engine
}

func newTestEnv(t *testing.T, accounts ...*model.Account) *testEnv {
	t.Helper()
	env := &testEnv{
		Accounts: newFakeAccounts(accounts...),
		Messages: newFakeMessages(),
		Tokens:   &fakeTokens{Token: "tok-1"},
		Feed: &fakeFeed{
			Profile: &gmail.Profile{EmailAddress: "user@example.com", HistoryID: "900"},
			Pages:   map[string]*gmail.HistoryPage{},
			Lists:   map[string]*gmail.MessageList{},
		},
		Queue: &fakeQueue{},
	}
	env.Engine = NewEngine(
		env.Accounts, env.Messages, env.Tokens, env.Feed, env.Queue,
		nil, Options{MaxHistoryPages: 50, BackfillSize: 10}, zap.NewNop(),
	)
	return env
}

func accountWithCursor(id, cursor string) *model.Account {
	a := &model.Account{
		ID:           id,
		EmailAddress: id + "@example.com",
		SyncStatus:   model.SyncStatusActive,
		SyncEnabled:  true,
	}
	if cursor != "" {
		a.HistoryID = &cursor
	}
	return a
}

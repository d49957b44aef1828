package model

import "time"

// Message is the locally mirrored copy of one provider message.
// (ProviderID, AccountID) is the upsert key: re-fetching the same message
// after an at-least-once job redelivery must not create a second row.
type Message struct {
	ID         int64
	AccountID  string
	ProviderID string
	ThreadID   string
	Subject    string
	Snippet    string
	FromAddr   string
	ToAddrs    []string
	LabelIDs   []string
	InternalAt time.Time
	SizeBytes  int64
	DeletedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Attachment is the metadata (and, once downloaded, the bytes) of one
// message attachment, keyed by the provider's attachment id.
type Attachment struct {
	ID         int64
	AccountID  string
	MessageID  string // provider message id
	ProviderID string // provider attachment id
	Filename   string
	MimeType   string
	SizeBytes  int64
	Data       []byte
	CreatedAt  time.Time
}

package gmail

// Profile is the provider-side snapshot of a mailbox. HistoryID is the
// current head of the change feed and is used to seed a fresh sync cursor.
type Profile struct {
	EmailAddress  string
	HistoryID     string
	MessagesTotal int64
}

// ChangeKind tags one variant of a change-feed record.
type ChangeKind int

const (
	ChangeMessageAdded ChangeKind = iota + 1
	ChangeMessageDeleted
	ChangeLabelsAdded
	ChangeLabelsRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeMessageAdded:
		return "message_added"
	case ChangeMessageDeleted:
		return "message_deleted"
	case ChangeLabelsAdded:
		return "labels_added"
	case ChangeLabelsRemoved:
		return "labels_removed"
	}
	return "unknown"
}

// ChangeRecord is a single entry in a change-feed page. The feed is allowed
// to omit fields, so consumers must tolerate empty MessageID/ThreadID.
type ChangeRecord struct {
	Kind      ChangeKind
	MessageID string
	ThreadID  string
	LabelIDs  []string
}

// HistoryPage is one page of the change feed. HistoryID is the cursor value
// reported by this page (may be empty); NextPageToken is empty on the last
// page. Order of Changes must match the feed's order.
type HistoryPage struct {
	Changes       []ChangeRecord
	HistoryID     string
	NextPageToken string
}

// MessageRef identifies one message in a listing.
type MessageRef struct {
	ID       string
	ThreadID string
}

// MessageList is one page of a message listing, newest first.
type MessageList struct {
	Messages      []MessageRef
	NextPageToken string
}

// Message is a fetched provider message. Headers carries the raw header
// values we mirror (Subject, From, To); body decoding is out of scope here.
type Message struct {
	ID           string
	ThreadID     string
	Snippet      string
	LabelIDs     []string
	HistoryID    string
	InternalDate int64 // epoch millis
	SizeEstimate int64
	Headers      map[string]string
	Attachments  []AttachmentRef
}

// AttachmentRef describes an attachment without its bytes.
type AttachmentRef struct {
	AttachmentID string
	Filename     string
	MimeType     string
	Size         int64
}

// AttachmentData is the downloaded bytes of one attachment.
type AttachmentData struct {
	Size int64
	Data []byte
}

// WatchResult is the provider's acknowledgement of a push-notification
// registration.
type WatchResult struct {
	HistoryID  string
	Expiration int64 // epoch millis
}

package gmail

// Wire shapes for the provider's JSON responses, flattened into the typed
// records the rest of the system consumes.

type historyListResponse struct {
	History       []historyRecord `json:"history"`
	HistoryID     string          `json:"historyId"`
	NextPageToken string          `json:"nextPageToken"`
}

type historyRecord struct {
	ID            string          `json:"id"`
	MessagesAdded []messageChange `json:"messagesAdded"`
	MessagesDel   []messageChange `json:"messagesDeleted"`
	LabelsAdded   []labelChange   `json:"labelsAdded"`
	LabelsRemoved []labelChange   `json:"labelsRemoved"`
}

type messageChange struct {
	Message wireMessageRef `json:"message"`
}

type labelChange struct {
	Message  wireMessageRef `json:"message"`
	LabelIDs []string       `json:"labelIds"`
}

type wireMessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// toPage flattens the nested history records into one ordered sequence of
// tagged change records. Order within a record follows the wire order
// (adds, deletes, label adds, label removes), which is what label-state
// reconstruction depends on.
func (r *historyListResponse) toPage() *HistoryPage {
	page := &HistoryPage{
		HistoryID:     r.HistoryID,
		NextPageToken: r.NextPageToken,
	}
	for _, rec := range r.History {
		for _, mc := range rec.MessagesAdded {
			page.Changes = append(page.Changes, ChangeRecord{
				Kind:      ChangeMessageAdded,
				MessageID: mc.Message.ID,
				ThreadID:  mc.Message.ThreadID,
			})
		}
		for _, mc := range rec.MessagesDel {
			page.Changes = append(page.Changes, ChangeRecord{
				Kind:      ChangeMessageDeleted,
				MessageID: mc.Message.ID,
			})
		}
		for _, lc := range rec.LabelsAdded {
			page.Changes = append(page.Changes, ChangeRecord{
				Kind:      ChangeLabelsAdded,
				MessageID: lc.Message.ID,
				ThreadID:  lc.Message.ThreadID,
				LabelIDs:  lc.LabelIDs,
			})
		}
		for _, lc := range rec.LabelsRemoved {
			page.Changes = append(page.Changes, ChangeRecord{
				Kind:      ChangeLabelsRemoved,
				MessageID: lc.Message.ID,
				ThreadID:  lc.Message.ThreadID,
				LabelIDs:  lc.LabelIDs,
			})
		}
	}
	return page
}

type wireMessage struct {
	ID           string   `json:"id"`
	ThreadID     string   `json:"threadId"`
	Snippet      string   `json:"snippet"`
	LabelIDs     []string `json:"labelIds"`
	HistoryID    string   `json:"historyId"`
	InternalDate int64    `json:"internalDate,string"`
	SizeEstimate int64    `json:"sizeEstimate"`
	Payload      *wirePart `json:"payload"`
}

type wirePart struct {
	PartID   string `json:"partId"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		AttachmentID string `json:"attachmentId"`
		Size         int64  `json:"size"`
	} `json:"body"`
	Parts []wirePart `json:"parts"`
}

func (m *wireMessage) toMessage() *Message {
	out := &Message{
		ID:           m.ID,
		ThreadID:     m.ThreadID,
		Snippet:      m.Snippet,
		LabelIDs:     m.LabelIDs,
		HistoryID:    m.HistoryID,
		InternalDate: m.InternalDate,
		SizeEstimate: m.SizeEstimate,
		Headers:      map[string]string{},
	}
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			out.Headers[h.Name] = h.Value
		}
		collectAttachments(m.Payload, &out.Attachments)
	}
	return out
}

// collectAttachments walks the part tree picking up parts that reference a
// downloadable attachment. Body content itself is not decoded here.
func collectAttachments(p *wirePart, out *[]AttachmentRef) {
	if p.Body.AttachmentID != "" && p.Filename != "" {
		*out = append(*out, AttachmentRef{
			AttachmentID: p.Body.AttachmentID,
			Filename:     p.Filename,
			MimeType:     p.MimeType,
			Size:         p.Body.Size,
		})
	}
	for i := range p.Parts {
		collectAttachments(&p.Parts[i], out)
	}
}

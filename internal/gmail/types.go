package gmail

import "time"

type MessageID string
type LabelID string

// Well-known system labels used by rule actions.
const (
	LabelTrash  LabelID = "TRASH"
	LabelUnread LabelID = "UNREAD"
	LabelInbox  LabelID = "INBOX"
)

// Query is a Gmail search query string, already formed
// (e.g. `from:@example.com is:unread older_than:90d`).
type Query struct {
	Raw string
}

// ListPage is one page of a paginated message search.
type ListPage struct {
	IDs            []MessageID
	NextPageToken  string
	EstimatedTotal int
}

// MessageSummary is the metadata slice of a single message used by the
// mailbox analyzer.
type MessageSummary struct {
	ID        MessageID
	ThreadID  string
	Sender    string
	Recipient string
	Subject   string
	Date      time.Time // zero when the Date header was absent or unparseable
	Labels    []LabelID
	Snippet   string
	IsUnread  bool
}

// ModifyOps describes one batch label mutation.
type ModifyOps struct {
	AddLabels    []LabelID
	RemoveLabels []LabelID
}

// BatchOutcome is the accounting result of one chunked gateway call.
// Errors are human-readable strings; they are surfaced, not
// programmatically interpreted.
type BatchOutcome struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Merge adds another outcome into o.
func (o *BatchOutcome) Merge(other BatchOutcome) {
	o.Processed += other.Processed
	o.Succeeded += other.Succeeded
	o.Failed += other.Failed
	o.Errors = append(o.Errors, other.Errors...)
}

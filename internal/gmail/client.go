package gmail

import (
	"context"
	"fmt"
)

// Client is the narrow Gmail surface required by mailgroom. The
// provider offers no transactional semantics; callers must tolerate
// concurrent external mutation of the mailbox (a stale id surfaces as
// a per-id failure in the BatchOutcome, not a hard error).
type Client interface {
	// Search returns one page of message ids matching q. pageSize must
	// not exceed 500.
	Search(ctx context.Context, q Query, pageToken string, pageSize int) (ListPage, error)
	// GetSummary returns metadata for one message, or (nil, nil) when
	// the message no longer exists.
	GetSummary(ctx context.Context, id MessageID) (*MessageSummary, error)
	// BatchModify applies label mutations to up to 1000 ids in one
	// call and reports per-call accounting.
	BatchModify(ctx context.Context, ids []MessageID, ops ModifyOps) (BatchOutcome, error)
	// Delete permanently deletes a single message. There is no bulk
	// permanent delete.
	Delete(ctx context.Context, id MessageID) error
	ListLabels(ctx context.Context) (map[string]LabelID, map[LabelID]string, error)
	EnsureLabel(ctx context.Context, name string) (LabelID, error)
}

// GatewayError wraps a provider failure with the operation that
// produced it. Always call- or chunk-scoped.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gmail %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

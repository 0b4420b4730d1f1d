package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	gc "github.com/ebuckley/mailgroom/internal/gmail"
)

const user = "me"

var summaryHeaders = []string{"From", "To", "Subject", "Date"}

type googleClient struct{ svc *gmailv1.Service }

// NewGoogleAPIClient adapts *gmailv1.Service to the gmail.Client
// interface.
func NewGoogleAPIClient(svc *gmailv1.Service) gc.Client { return &googleClient{svc} }

func (g *googleClient) Search(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ListPage, error) {
	call := g.svc.Users.Messages.List(user).Q(q.Raw).MaxResults(int64(pageSize))
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.ListPage{}, &gc.GatewayError{Op: "search", Err: err}
	}
	ids := make([]gc.MessageID, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, gc.MessageID(m.Id))
	}
	return gc.ListPage{
		IDs:            ids,
		NextPageToken:  res.NextPageToken,
		EstimatedTotal: int(res.ResultSizeEstimate),
	}, nil
}

func (g *googleClient) GetSummary(ctx context.Context, id gc.MessageID) (*gc.MessageSummary, error) {
	msg, err := g.svc.Users.Messages.Get(user, string(id)).
		Format("metadata").
		MetadataHeaders(summaryHeaders...).
		Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, &gc.GatewayError{Op: "get summary", Err: err}
	}
	headers := map[string]string{}
	if msg.Payload != nil {
		for _, hd := range msg.Payload.Headers {
			headers[hd.Name] = hd.Value
		}
	}
	labels := toLabelIDs(msg.LabelIds)
	return &gc.MessageSummary{
		ID:        id,
		ThreadID:  msg.ThreadId,
		Sender:    headers["From"],
		Recipient: headers["To"],
		Subject:   headers["Subject"],
		Date:      parseDate(headers["Date"]),
		Labels:    labels,
		Snippet:   msg.Snippet,
		IsUnread:  hasLabel(labels, gc.LabelUnread),
	}, nil
}

func (g *googleClient) BatchModify(ctx context.Context, ids []gc.MessageID, ops gc.ModifyOps) (gc.BatchOutcome, error) {
	if len(ids) == 0 {
		return gc.BatchOutcome{}, nil
	}
	req := &gmailv1.BatchModifyMessagesRequest{Ids: toStrings(ids)}
	if len(ops.AddLabels) > 0 {
		req.AddLabelIds = toStringsL(ops.AddLabels)
	}
	if len(ops.RemoveLabels) > 0 {
		req.RemoveLabelIds = toStringsL(ops.RemoveLabels)
	}
	if err := g.svc.Users.Messages.BatchModify(user, req).Context(ctx).Do(); err != nil {
		return gc.BatchOutcome{}, &gc.GatewayError{Op: "batch modify", Err: err}
	}
	return gc.BatchOutcome{Processed: len(ids), Succeeded: len(ids)}, nil
}

func (g *googleClient) Delete(ctx context.Context, id gc.MessageID) error {
	if err := g.svc.Users.Messages.Delete(user, string(id)).Context(ctx).Do(); err != nil {
		return &gc.GatewayError{Op: "delete", Err: err}
	}
	return nil
}

func (g *googleClient) ListLabels(ctx context.Context) (map[string]gc.LabelID, map[gc.LabelID]string, error) {
	lr, err := g.svc.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return nil, nil, &gc.GatewayError{Op: "list labels", Err: err}
	}
	byName := map[string]gc.LabelID{}
	byID := map[gc.LabelID]string{}
	for _, l := range lr.Labels {
		byName[l.Name] = gc.LabelID(l.Id)
		byID[gc.LabelID(l.Id)] = l.Name
	}
	return byName, byID, nil
}

func (g *googleClient) EnsureLabel(ctx context.Context, name string) (gc.LabelID, error) {
	byName, _, err := g.ListLabels(ctx)
	if err != nil {
		return "", err
	}
	if id, ok := byName[name]; ok {
		return id, nil
	}
	created, err := g.svc.Users.Labels.Create(user, &gmailv1.Label{Name: name}).Context(ctx).Do()
	if err != nil {
		return "", &gc.GatewayError{Op: fmt.Sprintf("create label %q", name), Err: err}
	}
	return gc.LabelID(created.Id), nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := mail.ParseDate(raw); err == nil {
		return t
	}
	return time.Time{}
}

func toStrings(ids []gc.MessageID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func toStringsL(ids []gc.LabelID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func toLabelIDs(raw []string) []gc.LabelID {
	out := make([]gc.LabelID, len(raw))
	for i, id := range raw {
		out[i] = gc.LabelID(id)
	}
	return out
}

func hasLabel(labels []gc.LabelID, want gc.LabelID) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}

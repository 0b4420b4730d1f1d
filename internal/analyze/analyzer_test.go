package analyze

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	gc "github.com/ebuckley/mailgroom/internal/gmail"
	"github.com/ebuckley/mailgroom/internal/rules"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClient struct {
	mu        sync.Mutex
	ids       []gc.MessageID
	summaries map[gc.MessageID]*gc.MessageSummary
	pageSize  int // page size observed on the last search
}

func (f *fakeClient) Search(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ListPage, error) {
	_ = ctx
	_ = q
	_ = pageToken
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageSize = pageSize
	return gc.ListPage{IDs: append([]gc.MessageID(nil), f.ids...)}, nil
}

func (f *fakeClient) GetSummary(ctx context.Context, id gc.MessageID) (*gc.MessageSummary, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summaries[id], nil
}

func (f *fakeClient) BatchModify(ctx context.Context, ids []gc.MessageID, ops gc.ModifyOps) (gc.BatchOutcome, error) {
	_ = ctx
	_ = ids
	_ = ops
	return gc.BatchOutcome{}, nil
}

func (f *fakeClient) Delete(ctx context.Context, id gc.MessageID) error {
	_ = ctx
	_ = id
	return nil
}

func (f *fakeClient) ListLabels(ctx context.Context) (map[string]gc.LabelID, map[gc.LabelID]string, error) {
	_ = ctx
	return nil, nil, nil
}

func (f *fakeClient) EnsureLabel(ctx context.Context, name string) (gc.LabelID, error) {
	_ = ctx
	_ = name
	return "", nil
}

// mailbox builds a fake client whose messages are produced by gen, one
// per index.
func mailbox(n int, gen func(i int) gc.MessageSummary) *fakeClient {
	f := &fakeClient{summaries: map[gc.MessageID]*gc.MessageSummary{}}
	for i := 0; i < n; i++ {
		s := gen(i)
		id := gc.MessageID(fmt.Sprintf("m-%04d", i))
		s.ID = id
		f.ids = append(f.ids, id)
		f.summaries[id] = &s
	}
	return f
}

func newTestAnalyzer(client gc.Client) *Analyzer {
	a := New(client, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.Clock = func() time.Time { return testNow }
	a.Pause = 0
	return a
}

func TestAnalyzeAggregates(t *testing.T) {
	fake := mailbox(10, func(i int) gc.MessageSummary {
		s := gc.MessageSummary{
			Sender: "alice@one.example.com",
			Date:   testNow.AddDate(0, -1, 0),
		}
		switch {
		case i < 3:
			s.Sender = "Bob <bob@two.example.com>"
			s.IsUnread = true
		case i < 5:
			s.Date = testNow.AddDate(-2, 0, 0)
		}
		return s
	})
	a := newTestAnalyzer(fake)

	rep, err := a.Analyze(context.Background(), 100)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if rep.TotalMessages != 10 {
		t.Fatalf("total: got %d want 10", rep.TotalMessages)
	}
	if rep.UnreadMessages != 3 {
		t.Fatalf("unread: got %d want 3", rep.UnreadMessages)
	}
	if rep.OldMessages != 2 {
		t.Fatalf("old: got %d want 2", rep.OldMessages)
	}
	if rep.UniqueSenders != 2 {
		t.Fatalf("unique senders: got %d want 2", rep.UniqueSenders)
	}
	if len(rep.TopDomains) != 2 {
		t.Fatalf("top domains: got %d want 2", len(rep.TopDomains))
	}
	if rep.TopDomains[0].Domain != "one.example.com" || rep.TopDomains[0].Count != 7 {
		t.Fatalf("top domain: got %+v", rep.TopDomains[0])
	}
	if rep.TopDomains[1].Domain != "two.example.com" || rep.TopDomains[1].Count != 3 {
		t.Fatalf("second domain: got %+v", rep.TopDomains[1])
	}
}

func TestAnalyzeRespectsLimit(t *testing.T) {
	fake := mailbox(40, func(i int) gc.MessageSummary {
		return gc.MessageSummary{Sender: "a@example.com", Date: testNow}
	})
	a := newTestAnalyzer(fake)

	rep, err := a.Analyze(context.Background(), 25)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if rep.TotalMessages != 25 {
		t.Fatalf("limit not applied: got %d", rep.TotalMessages)
	}
	if fake.pageSize != 25 {
		t.Fatalf("page size not capped to limit: got %d", fake.pageSize)
	}
}

func TestAnalyzeSkipsMissingMessages(t *testing.T) {
	fake := mailbox(6, func(i int) gc.MessageSummary {
		return gc.MessageSummary{Sender: "a@example.com", Date: testNow}
	})
	// Two messages vanish between search and fetch.
	delete(fake.summaries, "m-0001")
	delete(fake.summaries, "m-0004")
	a := newTestAnalyzer(fake)

	rep, err := a.Analyze(context.Background(), 100)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if rep.TotalMessages != 4 {
		t.Fatalf("missing messages not skipped: got %d want 4", rep.TotalMessages)
	}
}

func TestAnalyzeEmptyMailbox(t *testing.T) {
	fake := &fakeClient{}
	a := newTestAnalyzer(fake)

	rep, err := a.Analyze(context.Background(), 100)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if rep.TotalMessages != 0 || len(rep.Suggestions) != 0 {
		t.Fatalf("empty mailbox should yield an empty report: %+v", rep)
	}
	if rep.GeneratedAt.IsZero() {
		t.Fatalf("report timestamp missing")
	}
}

func TestSenderDomain(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{from: "alice@example.com", want: "example.com"},
		{from: "Alice Smith <Alice@Example.COM>", want: "example.com"},
		{from: "<noreply@mail.example.org>", want: "mail.example.org"},
		{from: "no-at-sign", want: ""},
		{from: "", want: ""},
		{from: "  spaced@example.net  ", want: "example.net"},
	}
	for _, tt := range tests {
		if got := SenderDomain(tt.from); got != tt.want {
			t.Errorf("SenderDomain(%q): got %q want %q", tt.from, got, tt.want)
		}
	}
}

func TestSuggestNotificationDomain(t *testing.T) {
	// 60 messages from noreply@x.com: the domain itself carries no
	// keyword, so the notifier flag from the sender address must drive
	// the auto-read suggestion, and the volume drives a cleanup one.
	fake := mailbox(60, func(i int) gc.MessageSummary {
		return gc.MessageSummary{Sender: "noreply@x.com", Date: testNow, IsUnread: true}
	})
	a := newTestAnalyzer(fake)

	rep, err := a.Analyze(context.Background(), 100)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	var autoRead, highVolume *rules.Suggestion
	for i := range rep.Suggestions {
		s := &rep.Suggestions[i]
		switch s.Kind {
		case "auto_read":
			autoRead = s
		case "high_volume_cleanup":
			highVolume = s
		}
	}
	if autoRead == nil {
		t.Fatalf("no auto_read suggestion in %+v", rep.Suggestions)
	}
	if autoRead.Criteria.FromDomain != "x.com" {
		t.Fatalf("auto_read domain: got %q", autoRead.Criteria.FromDomain)
	}
	if autoRead.Action.Type != rules.ActionMarkRead {
		t.Fatalf("auto_read action: got %q", autoRead.Action.Type)
	}
	if highVolume == nil {
		t.Fatalf("no high_volume_cleanup suggestion in %+v", rep.Suggestions)
	}
	if highVolume.Criteria.OlderThanDays == nil || *highVolume.Criteria.OlderThanDays != 90 {
		t.Fatalf("high volume age bound: got %+v", highVolume.Criteria.OlderThanDays)
	}
}

func TestSuggestOldCleanupFirst(t *testing.T) {
	rep := Report{
		OldMessages: 150,
		TopDomains: []DomainCount{
			{Domain: "newsletter.example.com", Count: 80},
		},
	}
	got := Suggest(rep)
	if len(got) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(got))
	}
	if got[0].Kind != "old_email_cleanup" {
		t.Fatalf("old cleanup must rank first, got %q", got[0].Kind)
	}
	if got[0].Criteria.OlderThanDays == nil || *got[0].Criteria.OlderThanDays != 365 {
		t.Fatalf("old cleanup age bound: got %+v", got[0].Criteria.OlderThanDays)
	}
	if got[1].Kind != "auto_read" || got[2].Kind != "high_volume_cleanup" {
		t.Fatalf("unexpected ordering: %q, %q", got[1].Kind, got[2].Kind)
	}
}

func TestSuggestThresholdsAndCap(t *testing.T) {
	rep := Report{OldMessages: 100} // at threshold, not above
	for i := 0; i < 15; i++ {
		rep.TopDomains = append(rep.TopDomains, DomainCount{
			Domain: fmt.Sprintf("alert%02d.example.com", i),
			Count:  51,
		})
	}
	got := Suggest(rep)
	if len(got) != 10 {
		t.Fatalf("suggestions not capped at 10: got %d", len(got))
	}
	for _, s := range got {
		if s.Kind == "old_email_cleanup" {
			t.Fatalf("old cleanup must require strictly more than 100 old messages")
		}
	}
}

func TestSuggestQuietMailbox(t *testing.T) {
	rep := Report{
		OldMessages: 5,
		TopDomains: []DomainCount{
			{Domain: "friends.example.com", Count: 12},
		},
	}
	if got := Suggest(rep); len(got) != 0 {
		t.Fatalf("quiet mailbox should produce no suggestions: %+v", got)
	}
}

func TestSuggestionsBecomeValidRules(t *testing.T) {
	rep := Report{
		OldMessages: 150,
		TopDomains: []DomainCount{
			{Domain: "updates.example.com", Count: 70, Notifier: true},
		},
	}
	store := rules.NewStore("test", "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, s := range Suggest(rep) {
		r, err := store.FromSuggestion(s)
		if err != nil {
			t.Fatalf("suggestion %q does not convert: %v", s.Kind, err)
		}
		if err := store.Add(r); err != nil {
			t.Fatalf("suggestion %q does not add: %v", s.Kind, err)
		}
	}
}

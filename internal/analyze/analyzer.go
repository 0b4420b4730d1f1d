package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	gc "github.com/ebuckley/mailgroom/internal/gmail"
	"github.com/ebuckley/mailgroom/internal/rate"
	"github.com/ebuckley/mailgroom/internal/rules"
)

const (
	defaultMaxMessages = 1000
	defaultFetchBatch  = 50
	defaultPause       = 100 * time.Millisecond
	topDomains         = 20

	// sampleQuery is deliberately broad; the report is derived from a
	// finite sample and never claims completeness.
	sampleQuery = "in:inbox OR in:sent"
)

// DomainCount is one entry of the sender-domain histogram. Notifier
// is set when any sender address for the domain looks like an
// automated notification source (noreply@, alerts@, ...).
type DomainCount struct {
	Domain   string `json:"domain"`
	Count    int    `json:"count"`
	Notifier bool   `json:"notifier,omitempty"`
}

// Report summarizes a bounded sample of the mailbox.
type Report struct {
	GeneratedAt    time.Time          `json:"generated_at"`
	TotalMessages  int                `json:"total_messages"`
	UnreadMessages int                `json:"unread_messages"`
	OldMessages    int                `json:"old_messages"` // older than one year
	UniqueSenders  int                `json:"unique_senders"`
	TopDomains     []DomainCount      `json:"top_sender_domains"`
	Suggestions    []rules.Suggestion `json:"suggestions"`
}

// Analyzer samples message summaries and aggregates them into a
// report with rule suggestions.
type Analyzer struct {
	Client  gc.Client
	Limiter rate.Limiter
	Log     *slog.Logger
	Clock   func() time.Time

	PageSize   int
	FetchBatch int           // summaries fetched per batch
	Pause      time.Duration // pause between batches, rate-limit courtesy
	Workers    int
	TopN       int // domains kept in the report
}

// New returns an analyzer with conservative defaults.
func New(client gc.Client, limiter rate.Limiter, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		Client:     client,
		Limiter:    limiter,
		Log:        logger,
		Clock:      time.Now,
		PageSize:   500,
		FetchBatch: defaultFetchBatch,
		Pause:      defaultPause,
		Workers:    4,
		TopN:       topDomains,
	}
}

// Analyze samples up to maxMessages summaries and aggregates them.
func (a *Analyzer) Analyze(ctx context.Context, maxMessages int) (Report, error) {
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	a.Log.Info("starting mailbox analysis", "max_messages", maxMessages)

	ids, err := a.sampleIDs(ctx, maxMessages)
	if err != nil {
		return Report{}, fmt.Errorf("sample messages: %w", err)
	}
	if len(ids) == 0 {
		return Report{GeneratedAt: a.Clock()}, nil
	}

	summaries, err := a.fetchSummaries(ctx, ids)
	if err != nil {
		return Report{}, fmt.Errorf("fetch summaries: %w", err)
	}
	a.Log.Info("analyzed messages", "count", len(summaries))

	rep := a.aggregate(summaries)
	rep.Suggestions = Suggest(rep)
	return rep, nil
}

func (a *Analyzer) sampleIDs(ctx context.Context, limit int) ([]gc.MessageID, error) {
	pageSize := a.PageSize
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 500
	}
	var (
		all   []gc.MessageID
		token string
	)
	for {
		size := pageSize
		if limit-len(all) < size {
			size = limit - len(all)
		}
		if err := a.wait(ctx); err != nil {
			return nil, err
		}
		page, err := a.Client.Search(ctx, gc.Query{Raw: sampleQuery}, token, size)
		if err != nil {
			return nil, err
		}
		all = append(all, page.IDs...)
		if page.NextPageToken == "" || len(all) >= limit {
			break
		}
		token = page.NextPageToken
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// fetchSummaries pulls metadata in fixed-size batches with a brief
// pause between batches. Within a batch, fetches run on a bounded
// worker pool. Missing messages (deleted since the search) are
// skipped.
func (a *Analyzer) fetchSummaries(ctx context.Context, ids []gc.MessageID) ([]gc.MessageSummary, error) {
	batch := a.FetchBatch
	if batch <= 0 {
		batch = defaultFetchBatch
	}
	var summaries []gc.MessageSummary
	for i := 0; i < len(ids); i += batch {
		j := i + batch
		if j > len(ids) {
			j = len(ids)
		}
		chunk, err := a.fetchBatch(ctx, ids[i:j])
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, chunk...)

		if j < len(ids) && a.Pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.Pause):
			}
		}
	}
	return summaries, nil
}

func (a *Analyzer) fetchBatch(ctx context.Context, ids []gc.MessageID) ([]gc.MessageSummary, error) {
	workers := a.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(ids) {
		workers = len(ids)
	}

	jobs := make(chan gc.MessageID, len(ids))
	type fetched struct {
		summary *gc.MessageSummary
		err     error
	}
	results := make(chan fetched, len(ids))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := a.wait(ctx); err != nil {
					results <- fetched{err: err}
					continue
				}
				s, err := a.Client.GetSummary(ctx, id)
				results <- fetched{summary: s, err: err}
			}
		}()
	}
	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]gc.MessageSummary, 0, len(ids))
	for r := range results {
		if r.err != nil {
			return nil, r.err
		}
		if r.summary != nil {
			out = append(out, *r.summary)
		}
	}
	return out, nil
}

func (a *Analyzer) aggregate(summaries []gc.MessageSummary) Report {
	now := a.Clock()
	oneYearAgo := now.AddDate(-1, 0, 0)

	domains := map[string]*DomainCount{}
	rep := Report{GeneratedAt: now, TotalMessages: len(summaries)}
	for _, s := range summaries {
		if addr := senderAddress(s.Sender); addr != "" {
			if dom := domainOf(addr); dom != "" {
				dc := domains[dom]
				if dc == nil {
					dc = &DomainCount{Domain: dom}
					domains[dom] = dc
				}
				dc.Count++
				if looksAutomated(addr) {
					dc.Notifier = true
				}
			}
		}
		if s.IsUnread {
			rep.UnreadMessages++
		}
		if !s.Date.IsZero() && s.Date.Before(oneYearAgo) {
			rep.OldMessages++
		}
	}
	topN := a.TopN
	if topN <= 0 {
		topN = topDomains
	}
	rep.UniqueSenders = len(domains)
	rep.TopDomains = rankDomains(domains, topN)
	return rep
}

// senderAddress normalizes a From header to a bare lower-cased
// address, preferring the angle-bracket address when one is present.
func senderAddress(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		from = addr.Address
	}
	return strings.ToLower(strings.Trim(from, "<> "))
}

// SenderDomain extracts the lower-cased domain from a From header.
func SenderDomain(from string) string {
	return domainOf(senderAddress(from))
}

func domainOf(address string) string {
	at := strings.LastIndex(address, "@")
	if at == -1 {
		return ""
	}
	return strings.Trim(address[at+1:], ">. ")
}

func rankDomains(m map[string]*DomainCount, topN int) []DomainCount {
	out := make([]DomainCount, 0, len(m))
	for _, dc := range m {
		out = append(out, *dc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Domain < out[j].Domain
		}
		return out[i].Count > out[j].Count
	})
	if topN < len(out) {
		out = out[:topN]
	}
	return out
}

func (a *Analyzer) wait(ctx context.Context) error {
	if a.Limiter == nil {
		return nil
	}
	return a.Limiter.Wait(ctx)
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gc "github.com/ebuckley/mailgroom/internal/gmail"
	"github.com/ebuckley/mailgroom/internal/rate"
	"github.com/ebuckley/mailgroom/internal/rules"
)

const (
	maxPageSize  = 500  // Gmail list page limit
	maxBatchSize = 1000 // Gmail batch-modify limit
)

// Options controls one engine run.
type Options struct {
	// DryRun computes matches without issuing any mutating call.
	DryRun bool
	// MaxMessagesPerRule caps the ids collected per rule on top of
	// each rule's own max_messages. 0 means no run-level cap.
	MaxMessagesPerRule int
}

// Result is the per-rule outcome of a run. Err is set only when the
// rule failed outside the per-chunk isolation (compile or search
// failure); partial failures live in Outcome and Stats.
type Result struct {
	Rule    rules.Rule       `json:"rule"`
	Query   string           `json:"query"`
	Matched []gc.MessageID   `json:"matched,omitempty"`
	Outcome gc.BatchOutcome  `json:"outcome"`
	Stats   ProcessingStats  `json:"stats"`
	Err     error            `json:"-"`
}

// Engine executes cleanup rules against a mailbox gateway. Rules run
// sequentially in priority order; within one rule, chunks are
// dispatched to a bounded worker pool.
type Engine struct {
	Client   gc.Client
	Rules    *rules.Store
	Limiter  rate.Limiter
	Log      *slog.Logger
	Reporter Reporter

	Workers   int // chunk worker pool width
	BatchSize int // ids per batch-modify call
	PageSize  int // ids per search page
	Clock     func() time.Time
}

// New returns an engine with provider-safe defaults.
func New(client gc.Client, store *rules.Store, limiter rate.Limiter, logger *slog.Logger) *Engine {
	return &Engine{
		Client:    client,
		Rules:     store,
		Limiter:   limiter,
		Log:       logger,
		Reporter:  LogReporter{Log: logger},
		Workers:   4,
		BatchSize: 100,
		PageSize:  maxPageSize,
		Clock:     time.Now,
	}
}

// ProcessAll runs every enabled rule in priority order. One rule's
// failure never halts subsequent rules; each result carries its own
// error accounting.
func (e *Engine) ProcessAll(ctx context.Context, opts Options) []Result {
	enabled := e.Rules.Enabled()
	if len(enabled) == 0 {
		e.Log.Warn("no enabled rules to process")
		return nil
	}
	e.Log.Info("processing rules", "count", len(enabled), "dry_run", opts.DryRun)

	results := make([]Result, 0, len(enabled))
	for _, rule := range enabled {
		res := e.ProcessRule(ctx, rule, opts)
		e.Rules.RecordRun(rule.ID, res.Stats.Map())
		results = append(results, res)
	}
	return results
}

// ProcessRule executes a single rule: compile, paged search, then
// either a dry-run count or a chunked live apply.
func (e *Engine) ProcessRule(ctx context.Context, rule rules.Rule, opts Options) Result {
	res := Result{Rule: rule}
	res.Stats.StartTime = e.Clock()

	query, err := rules.CompileQuery(rule.Criteria)
	if err != nil {
		// Store validation compiles the same criteria, so this only
		// trips for rules built outside the store.
		return e.fail(res, fmt.Errorf("compile query: %w", err))
	}
	res.Query = query
	e.Log.Debug("compiled query", "rule", rule.ID, "query", query)

	matched, skipped, err := e.searchAll(ctx, query, e.capFor(rule, opts))
	if err != nil {
		return e.fail(res, fmt.Errorf("search messages: %w", err))
	}
	res.Matched = matched
	res.Stats.TotalMessages = len(matched)
	res.Stats.SkippedMessages = skipped
	e.Log.Info("rule matched messages", "rule", rule.ID, "count", len(matched))

	switch {
	case len(matched) == 0:
		// nothing to do
	case opts.DryRun || rule.DryRun:
		res.Outcome = gc.BatchOutcome{Processed: len(matched), Succeeded: len(matched)}
	default:
		res.Outcome = e.apply(ctx, rule, matched)
	}

	res.Stats.ProcessedMessages = res.Outcome.Processed
	res.Stats.SuccessfulOperations = res.Outcome.Succeeded
	res.Stats.FailedOperations = res.Outcome.Failed
	res.Stats.EndTime = e.Clock()
	e.Reporter.RuleDone(rule.ID, res.Stats)
	return res
}

func (e *Engine) fail(res Result, err error) Result {
	res.Err = err
	res.Outcome.Errors = append(res.Outcome.Errors, err.Error())
	res.Stats.EndTime = e.Clock()
	e.Log.Error("rule failed", "rule", res.Rule.ID, "error", err)
	e.Reporter.RuleDone(res.Rule.ID, res.Stats)
	return res
}

// capFor combines the rule's own cap with the run-level cap.
func (e *Engine) capFor(rule rules.Rule, opts Options) int {
	limit := 0
	if rule.MaxMessages != nil && *rule.MaxMessages > 0 {
		limit = *rule.MaxMessages
	}
	if opts.MaxMessagesPerRule > 0 && (limit == 0 || opts.MaxMessagesPerRule < limit) {
		limit = opts.MaxMessagesPerRule
	}
	return limit
}

// searchAll paginates the search until exhaustion or the cap. Once
// capped, remaining pages are not fetched. skipped counts the ids
// already fetched that the cap dropped.
func (e *Engine) searchAll(ctx context.Context, query string, limit int) (ids []gc.MessageID, skipped int, err error) {
	pageSize := e.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var (
		all   []gc.MessageID
		token string
	)
	for {
		size := pageSize
		if limit > 0 && limit-len(all) < size {
			size = limit - len(all)
		}
		if err := e.wait(ctx); err != nil {
			return nil, 0, err
		}
		page, err := e.Client.Search(ctx, gc.Query{Raw: query}, token, size)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, page.IDs...)
		if page.NextPageToken == "" || (limit > 0 && len(all) >= limit) {
			break
		}
		token = page.NextPageToken
	}
	if limit > 0 && len(all) > limit {
		skipped = len(all) - limit
		all = all[:limit]
	}
	return all, skipped, nil
}

// apply splits ids into fixed-size chunks and dispatches them to the
// worker pool. A chunk's gateway failure is converted into failed
// accounting for that chunk only; the rest proceed.
func (e *Engine) apply(ctx context.Context, rule rules.Rule, ids []gc.MessageID) gc.BatchOutcome {
	ops, perID, err := e.resolveAction(ctx, rule.Action)
	if err != nil {
		return gc.BatchOutcome{
			Processed: len(ids),
			Failed:    len(ids),
			Errors:    []string{fmt.Sprintf("resolve action: %v", err)},
		}
	}

	chunks := chunkIDs(ids, e.batchSize())
	workers := e.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(chunks) {
		workers = len(chunks)
	}

	jobs := make(chan []gc.MessageID, len(chunks))
	outcomes := make(chan gc.BatchOutcome, len(chunks))
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for chunk := range jobs {
				outcomes <- e.applyChunk(ctx, chunk, ops, perID)
			}
		}()
	}
	for _, chunk := range chunks {
		jobs <- chunk
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	var total gc.BatchOutcome
	for o := range outcomes {
		total.Merge(o)
	}
	return total
}

func (e *Engine) applyChunk(ctx context.Context, chunk []gc.MessageID, ops gc.ModifyOps, perID bool) gc.BatchOutcome {
	if perID {
		return e.deleteChunk(ctx, chunk)
	}
	if err := e.wait(ctx); err != nil {
		return failedChunk(chunk, err)
	}
	outcome, err := e.Client.BatchModify(ctx, chunk, ops)
	if err != nil {
		return failedChunk(chunk, err)
	}
	return outcome
}

// deleteChunk issues per-id deletes; the provider has no bulk
// permanent delete.
func (e *Engine) deleteChunk(ctx context.Context, chunk []gc.MessageID) gc.BatchOutcome {
	out := gc.BatchOutcome{Processed: len(chunk)}
	for _, id := range chunk {
		if err := e.wait(ctx); err != nil {
			out.Failed++
			out.Errors = append(out.Errors, err.Error())
			continue
		}
		if err := e.Client.Delete(ctx, id); err != nil {
			out.Failed++
			out.Errors = append(out.Errors, fmt.Sprintf("delete %s: %v", id, err))
			continue
		}
		out.Succeeded++
	}
	return out
}

// resolveAction maps a rule action onto gateway label operations.
// perID is true for permanent delete, which has no batch call.
func (e *Engine) resolveAction(ctx context.Context, action rules.Action) (ops gc.ModifyOps, perID bool, err error) {
	switch action.Type {
	case rules.ActionDelete:
		return gc.ModifyOps{AddLabels: []gc.LabelID{gc.LabelTrash}}, false, nil
	case rules.ActionMarkRead:
		return gc.ModifyOps{RemoveLabels: []gc.LabelID{gc.LabelUnread}}, false, nil
	case rules.ActionArchive:
		return gc.ModifyOps{RemoveLabels: []gc.LabelID{gc.LabelInbox}}, false, nil
	case rules.ActionPermanentDelete:
		return gc.ModifyOps{}, true, nil
	case rules.ActionAddLabel:
		ids, err := e.ensureLabels(ctx, action.Labels)
		if err != nil {
			return gc.ModifyOps{}, false, err
		}
		return gc.ModifyOps{AddLabels: ids}, false, nil
	case rules.ActionRemoveLabel:
		ids, err := e.lookupLabels(ctx, action.Labels)
		if err != nil {
			return gc.ModifyOps{}, false, err
		}
		return gc.ModifyOps{RemoveLabels: ids}, false, nil
	default:
		return gc.ModifyOps{}, false, fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (e *Engine) ensureLabels(ctx context.Context, names []string) ([]gc.LabelID, error) {
	ids := make([]gc.LabelID, 0, len(names))
	for _, name := range names {
		if err := e.wait(ctx); err != nil {
			return nil, err
		}
		id, err := e.Client.EnsureLabel(ctx, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (e *Engine) lookupLabels(ctx context.Context, names []string) ([]gc.LabelID, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	byName, _, err := e.Client.ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]gc.LabelID, 0, len(names))
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("label %q not found", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (e *Engine) batchSize() int {
	if e.BatchSize <= 0 || e.BatchSize > maxBatchSize {
		return maxBatchSize
	}
	return e.BatchSize
}

func (e *Engine) wait(ctx context.Context) error {
	if e.Limiter == nil {
		return nil
	}
	return e.Limiter.Wait(ctx)
}

func chunkIDs(ids []gc.MessageID, size int) [][]gc.MessageID {
	chunks := make([][]gc.MessageID, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		j := i + size
		if j > len(ids) {
			j = len(ids)
		}
		chunks = append(chunks, ids[i:j])
	}
	return chunks
}

func failedChunk(chunk []gc.MessageID, err error) gc.BatchOutcome {
	return gc.BatchOutcome{
		Processed: len(chunk),
		Failed:    len(chunk),
		Errors:    []string{err.Error()},
	}
}

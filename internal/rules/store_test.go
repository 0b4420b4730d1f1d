package rules

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testRule(id string, priority int) Rule {
	return Rule{
		ID:          id,
		Name:        "Rule " + id,
		Description: "test rule " + id,
		Criteria:    Criteria{OlderThanDays: intPtr(30)},
		Action:      Action{Type: ActionDelete},
		Enabled:     true,
		Priority:    priority,
	}
}

func newTestStore() *Store {
	s := NewStore("test", "test rules", slogDiscard())
	s.Clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return s
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Rule)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Rule) {},
		},
		{
			name:    "empty name",
			mutate:  func(r *Rule) { r.Name = "" },
			wantErr: "name",
		},
		{
			name:    "empty description",
			mutate:  func(r *Rule) { r.Description = "" },
			wantErr: "description",
		},
		{
			name:    "empty criteria",
			mutate:  func(r *Rule) { r.Criteria = Criteria{} },
			wantErr: "at least one predicate",
		},
		{
			name:    "bad subject regex",
			mutate:  func(r *Rule) { r.Criteria.SubjectRegex = "(" },
			wantErr: "subject regex",
		},
		{
			name:    "bad body regex",
			mutate:  func(r *Rule) { r.Criteria.BodyRegex = "[z-a]" },
			wantErr: "body regex",
		},
		{
			name: "add label without labels",
			mutate: func(r *Rule) {
				r.Action = Action{Type: ActionAddLabel}
			},
			wantErr: "labels parameter",
		},
		{
			name: "remove label without labels",
			mutate: func(r *Rule) {
				r.Action = Action{Type: ActionRemoveLabel}
			},
			wantErr: "labels parameter",
		},
		{
			name: "inverted age bounds",
			mutate: func(r *Rule) {
				r.Criteria.OlderThanDays = intPtr(5)
				r.Criteria.NewerThanDays = intPtr(10)
			},
			wantErr: "older_than_days",
		},
		{
			name: "inverted size bounds",
			mutate: func(r *Rule) {
				r.Criteria.SizeLargerThan = int64Ptr(2048)
				r.Criteria.SizeSmallerThan = int64Ptr(1024)
			},
			wantErr: "size_larger_than",
		},
		{
			name:    "unknown action",
			mutate:  func(r *Rule) { r.Action.Type = "explode" },
			wantErr: "unknown action",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			r := testRule("r1", 0)
			tc.mutate(&r)
			err := Validate(r)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q missing %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestStoreAddDuplicate(t *testing.T) {
	s := newTestStore()
	if err := s.Add(testRule("r1", 0)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	err := s.Add(testRule("r1", 0))
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestStoreUpdate(t *testing.T) {
	s := newTestStore()
	if err := s.Add(testRule("r1", 0)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	created, _ := s.Get("r1")

	updated := testRule("r1", 7)
	updated.Name = "renamed"
	if err := s.Update("r1", updated); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, ok := s.Get("r1")
	if !ok {
		t.Fatalf("rule missing after update")
	}
	if got.Name != "renamed" || got.Priority != 7 {
		t.Fatalf("update not applied: %+v", got)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("created_at not preserved: %v vs %v", got.CreatedAt, created.CreatedAt)
	}

	if err := s.Update("missing", testRule("missing", 0)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRemoveIdempotent(t *testing.T) {
	s := newTestStore()
	if err := s.Add(testRule("r1", 0)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !s.Remove("r1") {
		t.Fatalf("expected removal to succeed")
	}
	if s.Remove("r1") {
		t.Fatalf("expected second removal to report false")
	}
}

func TestStoreEnabledOrdering(t *testing.T) {
	s := newTestStore()
	low := testRule("low", 5)
	high := testRule("high", 10)
	tieA := testRule("tie_a", 5)
	disabled := testRule("off", 99)
	disabled.Enabled = false
	for _, r := range []Rule{low, high, tieA, disabled} {
		if err := s.Add(r); err != nil {
			t.Fatalf("add %s failed: %v", r.ID, err)
		}
	}

	got := s.Enabled()
	wantOrder := []string{"high", "low", "tie_a"}
	if len(got) != len(wantOrder) {
		t.Fatalf("expected %d rules, got %d", len(wantOrder), len(got))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("position %d: got %s want %s", i, got[i].ID, id)
		}
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	s := newTestStore()
	r := testRule("r1", 3)
	r.MaxMessages = intPtr(200)
	r.Schedule = &Schedule{Enabled: true, Frequency: "weekly", DayOfWeek: intPtr(1)}
	if err := s.Add(r); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := s.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path, slogDiscard())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	got, ok := loaded.Get("r1")
	if !ok {
		t.Fatalf("rule missing after load")
	}
	want, _ := s.Get("r1")
	if got.Name != want.Name || got.Priority != want.Priority {
		t.Fatalf("rule mismatch: %+v vs %+v", got, want)
	}
	if got.MaxMessages == nil || *got.MaxMessages != 200 {
		t.Fatalf("max_messages lost: %+v", got.MaxMessages)
	}
	if got.Schedule == nil || got.Schedule.Frequency != "weekly" {
		t.Fatalf("schedule lost: %+v", got.Schedule)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("created_at changed: %v vs %v", got.CreatedAt, want.CreatedAt)
	}
}

func TestLoadRejectsInvalidRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	s := newTestStore()
	if err := s.Add(testRule("r1", 0)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := s.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	// corrupt the file by emptying the criteria through a raw edit
	s2 := newTestStore()
	bad := testRule("bad", 0)
	bad.Criteria = Criteria{SubjectRegex: "("}
	s2.set.Rules = append(s2.set.Rules, bad)
	if err := s2.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := Load(path, slogDiscard()); err == nil {
		t.Fatalf("expected load to reject invalid rule")
	}
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	s := newTestStore()
	// two rules under the same id, written past the Add guard
	s.set.Rules = append(s.set.Rules, testRule("dup", 1), testRule("dup", 2))
	if err := s.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	_, err := Load(path, slogDiscard())
	if err == nil {
		t.Fatalf("expected load to reject duplicate rule ids")
	}
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestGenerateID(t *testing.T) {
	s := newTestStore()
	id := s.GenerateID("Delete Old Emails!")
	if id != "delete_old_emails" {
		t.Fatalf("unexpected id %q", id)
	}
	r := testRule(id, 0)
	if err := s.Add(r); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	second := s.GenerateID("Delete Old Emails!")
	if second != "delete_old_emails_1" {
		t.Fatalf("unexpected second id %q", second)
	}
}

func TestRecordRun(t *testing.T) {
	s := newTestStore()
	if err := s.Add(testRule("r1", 0)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	s.RecordRun("r1", map[string]any{"successful_operations": 12})
	got, _ := s.Get("r1")
	if got.LastRunAt.IsZero() {
		t.Fatalf("last_run_at not stamped")
	}
	if got.Stats["successful_operations"] != 12 {
		t.Fatalf("stats not merged: %+v", got.Stats)
	}
}

func TestFromSuggestion(t *testing.T) {
	s := newTestStore()
	sug := Suggestion{
		Kind:        "auto_read",
		Title:       "Auto-read emails from x.com",
		Description: "Automatically mark emails from x.com as read",
		RuleName:    "Auto-read x.com",
		Criteria:    Criteria{FromDomain: "x.com"},
		Action:      Action{Type: ActionMarkRead},
	}
	r, err := s.FromSuggestion(sug)
	if err != nil {
		t.Fatalf("from suggestion failed: %v", err)
	}
	if r.ID == "" || !r.Enabled {
		t.Fatalf("unexpected rule: %+v", r)
	}
	if r.Criteria.FromDomain != "x.com" {
		t.Fatalf("criteria not carried: %+v", r.Criteria)
	}
}

func TestStoreExportImport(t *testing.T) {
	src := newTestStore()
	if err := src.Add(testRule("keep", 1)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := src.Add(testRule("incoming", 2)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	data, err := src.Export()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	dst := newTestStore()
	if err := dst.Add(testRule("keep", 1)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	added, err := dst.Import(data)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if added != 1 {
		t.Fatalf("added: got %d want 1", added)
	}
	if len(dst.Rules()) != 2 {
		t.Fatalf("rules after import: got %d want 2", len(dst.Rules()))
	}
	if _, ok := dst.Get("incoming"); !ok {
		t.Fatalf("imported rule missing")
	}
}

func TestStoreImportRejectsInvalid(t *testing.T) {
	s := newTestStore()
	doc := `{"name":"x","description":"x","version":"1.0","rules":[
		{"id":"broken","name":"Broken","description":"no predicates",
		 "criteria":{},"action":{"type":"delete"},"enabled":true}
	]}`
	if _, err := s.Import([]byte(doc)); err == nil {
		t.Fatalf("expected invalid rule to be rejected")
	}
	if len(s.Rules()) != 0 {
		t.Fatalf("rejected import must not add rules")
	}
}

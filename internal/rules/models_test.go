package rules

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestRuleJSONRoundTrip(t *testing.T) {
	created := time.Date(2025, time.March, 4, 12, 30, 0, 0, time.UTC)
	r := Rule{
		ID:          "newsletters",
		Name:        "Delete old newsletters",
		Description: "Delete newsletters older than 30 days",
		Criteria: Criteria{
			FromDomain:    "news.example.com",
			HasWords:      "unsubscribe",
			IsUnread:      boolPtr(false),
			OlderThanDays: intPtr(30),
			ExcludeLabels: []string{"keep"},
		},
		Action:      Action{Type: ActionAddLabel, Labels: []string{"expired"}},
		Enabled:     true,
		Priority:    4,
		MaxMessages: intPtr(500),
		DryRun:      true,
		Schedule:    &Schedule{Enabled: true, Frequency: "daily", TimeOfDay: "09:00"},
		CreatedAt:   created,
		UpdatedAt:   created.Add(time.Hour),
		LastRunAt:   created.Add(2 * time.Hour),
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var got Rule
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(r, got) {
		t.Fatalf("round trip mismatch:\n  in:  %+v\n  out: %+v", r, got)
	}
}

func TestRuleJSONOmitsAbsentFields(t *testing.T) {
	r := Rule{
		ID:          "minimal",
		Name:        "Minimal",
		Description: "minimal rule",
		Criteria:    Criteria{FromDomain: "example.com"},
		Action:      Action{Type: ActionMarkRead},
		Enabled:     true,
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	raw := string(data)
	for _, field := range []string{"max_messages", "schedule", "created_at", "last_run_at", "older_than_days", "labels"} {
		if strings.Contains(raw, `"`+field+`"`) {
			t.Fatalf("absent field %q serialized: %s", field, raw)
		}
	}
}

func TestRuleSetEnabledStable(t *testing.T) {
	rs := RuleSet{
		Rules: []Rule{
			{ID: "a", Priority: 5, Enabled: true},
			{ID: "b", Priority: 10, Enabled: true},
			{ID: "c", Priority: 5, Enabled: true},
			{ID: "d", Priority: 1, Enabled: false},
		},
	}
	got := rs.Enabled()
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %s want %s", i, got[i].ID, id)
		}
	}
}

func TestTemplatesAreValidRules(t *testing.T) {
	for _, tpl := range Templates() {
		r := tpl.Rule()
		if err := Validate(r); err != nil {
			t.Fatalf("template %s produces invalid rule: %v", tpl.ID, err)
		}
	}
}

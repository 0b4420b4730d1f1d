package rules

import (
	"sort"
	"time"
)

// ActionType identifies the mutating operation a rule applies to its
// matched messages.
type ActionType string

const (
	ActionDelete          ActionType = "delete" // move to trash
	ActionPermanentDelete ActionType = "permanent_delete"
	ActionMarkRead        ActionType = "mark_read"
	ActionAddLabel        ActionType = "add_label"
	ActionRemoveLabel     ActionType = "remove_label"
	ActionArchive         ActionType = "archive"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionDelete, ActionPermanentDelete, ActionMarkRead,
		ActionAddLabel, ActionRemoveLabel, ActionArchive:
		return true
	}
	return false
}

// Action is the single operation applied to all messages matched by a
// rule. Labels is required for add_label and remove_label and ignored
// otherwise.
type Action struct {
	Type   ActionType `json:"type"`
	Labels []string   `json:"labels,omitempty"`
}

// Criteria is a set of optional predicates defining which messages a
// rule targets. Pointer fields are three-valued: nil means the
// predicate is unset and emits no query clause.
type Criteria struct {
	FromEmail       string   `json:"from,omitempty"`
	FromDomain      string   `json:"from_domain,omitempty"`
	ToEmail         string   `json:"to,omitempty"`
	SubjectContains string   `json:"subject_contains,omitempty"`
	SubjectRegex    string   `json:"subject_regex,omitempty"`
	BodyContains    string   `json:"body_contains,omitempty"`
	BodyRegex       string   `json:"body_regex,omitempty"`
	HasWords        string   `json:"has_words,omitempty"`
	ExcludeWords    string   `json:"exclude_words,omitempty"`
	HasAttachment   *bool    `json:"has_attachment,omitempty"`
	IsUnread        *bool    `json:"is_unread,omitempty"`
	OlderThanDays   *int     `json:"older_than_days,omitempty"`
	NewerThanDays   *int     `json:"newer_than_days,omitempty"`
	SizeLargerThan  *int64   `json:"size_larger_than,omitempty"`  // bytes
	SizeSmallerThan *int64   `json:"size_smaller_than,omitempty"` // bytes
	Labels          []string `json:"labels,omitempty"`
	ExcludeLabels   []string `json:"exclude_labels,omitempty"`
}

// Empty reports whether no predicate is populated. Empty criteria
// would match the whole mailbox and is rejected by validation.
func (c Criteria) Empty() bool {
	return c.FromEmail == "" && c.FromDomain == "" && c.ToEmail == "" &&
		c.SubjectContains == "" && c.SubjectRegex == "" &&
		c.BodyContains == "" && c.BodyRegex == "" &&
		c.HasWords == "" && c.ExcludeWords == "" &&
		c.HasAttachment == nil && c.IsUnread == nil &&
		c.OlderThanDays == nil && c.NewerThanDays == nil &&
		c.SizeLargerThan == nil && c.SizeSmallerThan == nil &&
		len(c.Labels) == 0 && len(c.ExcludeLabels) == 0
}

// Schedule describes when a rule should run. It is carried through
// serialization but not interpreted by the execution engine.
type Schedule struct {
	Enabled    bool   `json:"enabled"`
	Frequency  string `json:"frequency,omitempty"` // daily, weekly, monthly
	TimeOfDay  string `json:"time_of_day,omitempty"`
	DayOfWeek  *int   `json:"day_of_week,omitempty"`
	DayOfMonth *int   `json:"day_of_month,omitempty"`
}

// Rule is one declarative cleanup rule. Rules are owned by their
// RuleSet and mutated only through the Store.
type Rule struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Criteria    Criteria       `json:"criteria"`
	Action      Action         `json:"action"`
	Enabled     bool           `json:"enabled"`
	Priority    int            `json:"priority"` // higher runs first
	MaxMessages *int           `json:"max_messages,omitempty"`
	DryRun      bool           `json:"dry_run"`
	Schedule    *Schedule      `json:"schedule,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitzero"`
	UpdatedAt   time.Time      `json:"updated_at,omitzero"`
	LastRunAt   time.Time      `json:"last_run_at,omitzero"`
	Stats       map[string]any `json:"stats,omitempty"`
}

// RuleSet is a named, versioned collection of rules.
type RuleSet struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Version     string         `json:"version"`
	Rules       []Rule         `json:"rules"`
	CreatedAt   time.Time      `json:"created_at,omitzero"`
	UpdatedAt   time.Time      `json:"updated_at,omitzero"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Enabled returns the enabled rules sorted by priority descending,
// preserving insertion order on ties.
func (rs RuleSet) Enabled() []Rule {
	out := make([]Rule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Suggestion is a system-derived candidate rule proposed from mailbox
// analysis. It carries everything needed to build a Rule without
// further user input.
type Suggestion struct {
	Kind        string   `json:"kind"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	RuleName    string   `json:"rule_name"`
	Criteria    Criteria `json:"criteria"`
	Action      Action   `json:"action"`
}

func intPtr(v int) *int { return &v }

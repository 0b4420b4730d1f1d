package rules

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Validate checks a rule against the model invariants. It returns a
// *ValidationError describing the first violation found.
func Validate(r Rule) error {
	if r.ID == "" {
		return validationf("id must not be empty")
	}
	if r.Name == "" {
		return validationf("name must not be empty")
	}
	if r.Description == "" {
		return validationf("description must not be empty")
	}
	if r.Criteria.Empty() {
		return validationf("criteria must have at least one predicate")
	}
	if r.Criteria.SubjectRegex != "" {
		if _, err := regexp.Compile(r.Criteria.SubjectRegex); err != nil {
			return validationf("subject regex: %v", err)
		}
	}
	if r.Criteria.BodyRegex != "" {
		if _, err := regexp.Compile(r.Criteria.BodyRegex); err != nil {
			return validationf("body regex: %v", err)
		}
	}
	if !r.Action.Type.Valid() {
		return validationf("unknown action type %q", r.Action.Type)
	}
	if r.Action.Type == ActionAddLabel || r.Action.Type == ActionRemoveLabel {
		if len(r.Action.Labels) == 0 {
			return validationf("action %s requires a labels parameter", r.Action.Type)
		}
	}
	if r.Criteria.OlderThanDays != nil && r.Criteria.NewerThanDays != nil &&
		*r.Criteria.OlderThanDays <= *r.Criteria.NewerThanDays {
		return validationf("older_than_days must be greater than newer_than_days")
	}
	if r.Criteria.SizeLargerThan != nil && r.Criteria.SizeSmallerThan != nil &&
		*r.Criteria.SizeLargerThan >= *r.Criteria.SizeSmallerThan {
		return validationf("size_larger_than must be less than size_smaller_than")
	}
	return nil
}

// Store holds a rule set in memory, guards its invariants, and
// persists it as a versioned JSON document.
type Store struct {
	mu    sync.Mutex
	set   RuleSet
	log   *slog.Logger
	Clock func() time.Time
}

// NewStore returns a store holding an empty rule set.
func NewStore(name, description string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now()
	return &Store{
		set: RuleSet{
			Name:        name,
			Description: description,
			Version:     "1.0",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		log:   logger,
		Clock: time.Now,
	}
}

// Load reads and validates a rule set document from path.
func Load(path string, logger *slog.Logger) (*Store, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var set RuleSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode rules file %s: %w", path, err)
	}
	if set.Version == "" {
		set.Version = "1.0"
	}
	seen := make(map[string]bool, len(set.Rules))
	for _, r := range set.Rules {
		if err := Validate(r); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.ID, err)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("rule %q: %w", r.ID, ErrDuplicateID)
		}
		seen[r.ID] = true
	}
	s := NewStore(set.Name, set.Description, logger)
	s.set = set
	s.log.Info("loaded rules", "path", path, "count", len(set.Rules))
	return s, nil
}

// Save writes the rule set document to path, creating parent
// directories as needed.
func (s *Store) Save(path string) error {
	s.mu.Lock()
	s.set.UpdatedAt = s.Clock()
	data, err := json.MarshalIndent(s.set, "", "  ")
	count := len(s.set.Rules)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create rules directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write rules file: %w", err)
	}
	s.log.Info("saved rules", "path", path, "count", count)
	return nil
}

// Export returns the rule set as an indented JSON document.
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(s.set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	return append(data, '\n'), nil
}

// Import merges rules from another rule set document. Every incoming
// rule is validated; rules whose id already exists are skipped. It
// returns the number of rules added.
func (s *Store) Import(data []byte) (int, error) {
	var set RuleSet
	if err := json.Unmarshal(data, &set); err != nil {
		return 0, fmt.Errorf("decode rules document: %w", err)
	}
	for _, r := range set.Rules {
		if err := Validate(r); err != nil {
			return 0, fmt.Errorf("rule %q: %w", r.ID, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	now := s.Clock()
	for _, r := range set.Rules {
		if s.indexOf(r.ID) >= 0 {
			s.log.Info("skipping existing rule on import", "id", r.ID)
			continue
		}
		r.CreatedAt = now
		r.UpdatedAt = now
		s.set.Rules = append(s.set.Rules, r)
		added++
	}
	if added > 0 {
		s.set.UpdatedAt = now
	}
	s.log.Info("imported rules", "added", added, "skipped", len(set.Rules)-added)
	return added, nil
}

// Add validates and inserts a new rule. It fails with a
// *ValidationError on a malformed rule and ErrDuplicateID when the id
// is taken.
func (s *Store) Add(r Rule) error {
	if err := Validate(r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(r.ID) >= 0 {
		return fmt.Errorf("rule %q: %w", r.ID, ErrDuplicateID)
	}
	now := s.Clock()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.set.Rules = append(s.set.Rules, r)
	s.set.UpdatedAt = now
	s.log.Info("added rule", "id", r.ID, "name", r.Name)
	return nil
}

// Update re-validates and replaces the rule with the given id,
// preserving its original created_at. It fails with ErrNotFound when
// the id is absent.
func (s *Store) Update(id string, r Rule) error {
	if err := Validate(r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("rule %q: %w", id, ErrNotFound)
	}
	now := s.Clock()
	r.CreatedAt = s.set.Rules[i].CreatedAt
	r.UpdatedAt = now
	s.set.Rules[i] = r
	s.set.UpdatedAt = now
	s.log.Info("updated rule", "id", id, "name", r.Name)
	return nil
}

// Remove deletes the rule with the given id. Removal is idempotent:
// it returns false, not an error, when the id is absent.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.set.Rules = append(s.set.Rules[:i], s.set.Rules[i+1:]...)
	s.set.UpdatedAt = s.Clock()
	return true
}

// Get returns the rule with the given id.
func (s *Store) Get(id string) (Rule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return Rule{}, false
	}
	return s.set.Rules[i], true
}

// Rules returns a copy of all rules in insertion order.
func (s *Store) Rules() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Rule(nil), s.set.Rules...)
}

// Enabled returns the enabled rules in execution order.
func (s *Store) Enabled() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Enabled()
}

// RecordRun stamps last_run_at on a rule and merges run statistics
// into its stats map. Unknown ids are ignored.
func (s *Store) RecordRun(id string, stats map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return
	}
	r := &s.set.Rules[i]
	r.LastRunAt = s.Clock()
	if r.Stats == nil {
		r.Stats = map[string]any{}
	}
	for k, v := range stats {
		r.Stats[k] = v
	}
}

// FromSuggestion turns an analyzer suggestion into a validated rule
// with a fresh id. The rule is returned, not added; callers decide
// whether to keep it.
func (s *Store) FromSuggestion(sug Suggestion) (Rule, error) {
	r := Rule{
		ID:          s.GenerateID(sug.RuleName),
		Name:        sug.RuleName,
		Description: sug.Description,
		Criteria:    sug.Criteria,
		Action:      sug.Action,
		Enabled:     true,
	}
	if err := Validate(r); err != nil {
		return Rule{}, err
	}
	return r, nil
}

var idSanitizeRe = regexp.MustCompile(`[^a-z0-9]+`)

// GenerateID derives a unique slug id from a rule name.
func (s *Store) GenerateID(name string) string {
	base := idSanitizeRe.ReplaceAllString(strings.ToLower(name), "_")
	base = strings.Trim(base, "_")
	if base == "" {
		base = "rule"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := base
	for n := 1; s.indexOf(id) >= 0; n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	return id
}

// indexOf returns the position of a rule id, or -1. Callers hold mu.
func (s *Store) indexOf(id string) int {
	for i, r := range s.set.Rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

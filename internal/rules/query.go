package rules

import (
	"fmt"
	"strings"
)

// CompileQuery translates criteria into the Gmail search-query
// dialect. It is deterministic for identical input: clauses are
// emitted in a fixed field order and joined with single spaces (the
// provider treats the query as an unordered AND).
//
// from takes precedence over from_domain when both are set. Regex
// predicates have no query-language counterpart; they are enforced at
// validation time only and emit no clause. Age bounds use relative-day
// tokens so the query stays correct regardless of compile time.
func CompileQuery(c Criteria) (string, error) {
	if c.Empty() {
		return "", validationf("criteria has no predicates")
	}

	var parts []string
	if c.FromEmail != "" {
		parts = append(parts, fmt.Sprintf("from:%q", c.FromEmail))
	} else if c.FromDomain != "" {
		parts = append(parts, "from:@"+c.FromDomain)
	}
	if c.ToEmail != "" {
		parts = append(parts, fmt.Sprintf("to:%q", c.ToEmail))
	}
	if c.SubjectContains != "" {
		parts = append(parts, fmt.Sprintf("subject:%q", c.SubjectContains))
	}
	if c.BodyContains != "" {
		parts = append(parts, fmt.Sprintf("%q", c.BodyContains))
	}
	if c.HasWords != "" {
		parts = append(parts, fmt.Sprintf("%q", c.HasWords))
	}
	if c.ExcludeWords != "" {
		parts = append(parts, fmt.Sprintf("-%q", c.ExcludeWords))
	}
	if c.HasAttachment != nil {
		if *c.HasAttachment {
			parts = append(parts, "has:attachment")
		} else {
			parts = append(parts, "-has:attachment")
		}
	}
	if c.IsUnread != nil {
		if *c.IsUnread {
			parts = append(parts, "is:unread")
		} else {
			parts = append(parts, "is:read")
		}
	}
	if c.OlderThanDays != nil {
		parts = append(parts, fmt.Sprintf("older_than:%dd", *c.OlderThanDays))
	}
	if c.NewerThanDays != nil {
		parts = append(parts, fmt.Sprintf("newer_than:%dd", *c.NewerThanDays))
	}
	if c.SizeLargerThan != nil {
		parts = append(parts, fmt.Sprintf("larger:%d", *c.SizeLargerThan))
	}
	if c.SizeSmallerThan != nil {
		parts = append(parts, fmt.Sprintf("smaller:%d", *c.SizeSmallerThan))
	}
	for _, label := range c.Labels {
		parts = append(parts, "label:"+label)
	}
	for _, label := range c.ExcludeLabels {
		parts = append(parts, "-label:"+label)
	}

	if len(parts) == 0 {
		// Only regex predicates were set; an empty query would match
		// the whole mailbox.
		return "", validationf("criteria compiles to an empty query")
	}
	return strings.Join(parts, " "), nil
}

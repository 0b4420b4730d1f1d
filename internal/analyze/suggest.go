package analyze

import (
	"fmt"
	"strings"

	"github.com/ebuckley/mailgroom/internal/rules"
)

const (
	maxSuggestions      = 10
	oldMessageThreshold = 100
	highVolumeThreshold = 50
	oldCleanupDays      = 365
	highVolumeDays      = 90
)

var notificationKeywords = []string{
	"noreply", "no-reply", "donotreply", "notification", "alert",
	"update", "newsletter",
}

// Suggest derives ranked rule suggestions from a report. It is a pure
// function of the aggregates; suggestions are capped to 10, with
// old-mail cleanup first, then notification mark-read rules, then
// high-volume per-domain cleanups.
func Suggest(rep Report) []rules.Suggestion {
	var out []rules.Suggestion

	if rep.OldMessages > oldMessageThreshold {
		out = append(out, rules.Suggestion{
			Kind:        "old_email_cleanup",
			Title:       "Clean up old messages",
			Description: fmt.Sprintf("You have %d messages older than 1 year", rep.OldMessages),
			RuleName:    "Delete old messages",
			Criteria:    rules.Criteria{OlderThanDays: intPtr(oldCleanupDays)},
			Action:      rules.Action{Type: rules.ActionDelete},
		})
	}

	for _, dc := range rep.TopDomains {
		if len(out) >= maxSuggestions {
			return out
		}
		if !dc.Notifier && !looksAutomated(dc.Domain) {
			continue
		}
		out = append(out, rules.Suggestion{
			Kind:        "auto_read",
			Title:       fmt.Sprintf("Auto-read emails from %s", dc.Domain),
			Description: fmt.Sprintf("Automatically mark %d emails from %s as read", dc.Count, dc.Domain),
			RuleName:    fmt.Sprintf("Auto-read %s", dc.Domain),
			Criteria:    rules.Criteria{FromDomain: dc.Domain},
			Action:      rules.Action{Type: rules.ActionMarkRead},
		})
	}

	for _, dc := range rep.TopDomains {
		if len(out) >= maxSuggestions {
			return out
		}
		if dc.Count <= highVolumeThreshold {
			continue
		}
		out = append(out, rules.Suggestion{
			Kind:        "high_volume_cleanup",
			Title:       fmt.Sprintf("Clean up emails from %s", dc.Domain),
			Description: fmt.Sprintf("You have %d emails from %s; delete those older than %d days", dc.Count, dc.Domain, highVolumeDays),
			RuleName:    fmt.Sprintf("Delete old emails from %s", dc.Domain),
			Criteria: rules.Criteria{
				FromDomain:    dc.Domain,
				OlderThanDays: intPtr(highVolumeDays),
			},
			Action: rules.Action{Type: rules.ActionDelete},
		})
	}

	return out
}

// looksAutomated reports whether an address or domain matches the
// notification keyword heuristics.
func looksAutomated(s string) bool {
	s = strings.ToLower(s)
	for _, kw := range notificationKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func intPtr(v int) *int { return &v }

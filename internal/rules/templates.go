package rules

import "fmt"

// Template is a prebuilt rule for a common cleanup scenario. Templates
// ship disabled-by-default material; callers turn them into rules and
// decide whether to enable them.
type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	RiskLevel   string   `json:"risk_level"` // low, medium, high
	Criteria    Criteria `json:"criteria"`
	Action      Action   `json:"action"`
}

// Rule materializes the template as a disabled rule.
func (t Template) Rule() Rule {
	return Rule{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Criteria:    t.Criteria,
		Action:      t.Action,
	}
}

// Templates returns the built-in rule templates.
func Templates() []Template {
	return []Template{
		{
			ID:          "delete_old_emails",
			Name:        "Delete emails older than 365 days",
			Description: "Delete emails older than 365 days to free up storage space",
			Category:    "storage",
			RiskLevel:   "medium",
			Criteria:    Criteria{OlderThanDays: intPtr(365)},
			Action:      Action{Type: ActionDelete},
		},
		{
			ID:          "auto_read_notifications",
			Name:        "Auto-read notification emails",
			Description: "Mark unread notification emails as read",
			Category:    "productivity",
			RiskLevel:   "low",
			Criteria:    Criteria{FromDomain: "notifications.example.com", IsUnread: boolPtr(true)},
			Action:      Action{Type: ActionMarkRead},
		},
		{
			ID:          "delete_newsletters",
			Name:        "Delete newsletters older than 30 days",
			Description: "Delete newsletter and marketing emails older than 30 days",
			Category:    "marketing",
			RiskLevel:   "low",
			Criteria:    Criteria{HasWords: "unsubscribe", OlderThanDays: intPtr(30)},
			Action:      Action{Type: ActionDelete},
		},
		{
			ID:          "delete_promotional",
			Name:        "Delete promotional emails older than 7 days",
			Description: "Delete promotional and sales emails older than 7 days",
			Category:    "marketing",
			RiskLevel:   "low",
			Criteria:    Criteria{Labels: []string{"CATEGORY_PROMOTIONS"}, OlderThanDays: intPtr(7)},
			Action:      Action{Type: ActionDelete},
		},
		{
			ID:          "archive_receipts",
			Name:        "Archive receipt emails",
			Description: "Move order confirmations and receipts out of the inbox",
			Category:    "organization",
			RiskLevel:   "low",
			Criteria:    Criteria{HasWords: "receipt", OlderThanDays: intPtr(7)},
			Action:      Action{Type: ActionArchive},
		},
		{
			ID:          "delete_large_attachments",
			Name:        "Delete old emails with large attachments",
			Description: "Delete emails larger than 10 MB that are older than 180 days",
			Category:    "storage",
			RiskLevel:   "high",
			Criteria: Criteria{
				HasAttachment:  boolPtr(true),
				SizeLargerThan: int64Ptr(10 * 1024 * 1024),
				OlderThanDays:  intPtr(180),
			},
			Action: Action{Type: ActionDelete},
		},
		{
			ID:          "delete_spam_keywords",
			Name:        "Delete spam emails older than 1 day",
			Description: "Delete emails containing common spam keywords",
			Category:    "spam",
			RiskLevel:   "low",
			Criteria: Criteria{
				HasWords:      "urgent action required OR limited time offer OR act now",
				OlderThanDays: intPtr(1),
			},
			Action: Action{Type: ActionDelete},
		},
		{
			ID:          "auto_read_automated",
			Name:        "Auto-read automated emails",
			Description: "Mark automated no-reply emails as read",
			Category:    "productivity",
			RiskLevel:   "low",
			Criteria:    Criteria{FromEmail: "noreply@example.com", IsUnread: boolPtr(true)},
			Action:      Action{Type: ActionMarkRead},
		},
		{
			ID:          "label_by_domain",
			Name:        "Label emails by sender domain",
			Description: "Apply a label to all mail from a given domain",
			Category:    "organization",
			RiskLevel:   "low",
			Criteria:    Criteria{FromDomain: "example.com"},
			Action:      Action{Type: ActionAddLabel, Labels: []string{"by-domain/example.com"}},
		},
	}
}

// TemplateByID looks up one built-in template.
func TemplateByID(id string) (Template, error) {
	for _, t := range Templates() {
		if t.ID == id {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("unknown template %q", id)
}

func boolPtr(v bool) *bool    { return &v }
func int64Ptr(v int64) *int64 { return &v }

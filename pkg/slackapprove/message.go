package slackapprove

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

// BuildRequestedMessage renders the initial approval-gate notification
// (§4.A "Any action of tier >= configured threshold creates an
// ApprovalGate").
func BuildRequestedMessage(investigationID, severity, action string, deadlineUTC string, dashboardURL string) []goslack.Block {
	url := fmt.Sprintf("%s/investigations/%s", dashboardURL, investigationID)
	text := fmt.Sprintf(
		":rotating_light: *Approval needed* — `%s` (severity: %s)\naction: `%s` · deadline: %s\n<%s|View in Dashboard>",
		investigationID, severity, action, deadlineUTC, url,
	)
	return []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil),
	}
}

// BuildEscalationMessage renders the one-shot 50%-of-interval escalation
// reminder (§4.A "At 50% of the interval, a one-shot escalation signal
// is produced").
func BuildEscalationMessage(investigationID, severity string, dashboardURL string) []goslack.Block {
	url := fmt.Sprintf("%s/investigations/%s", dashboardURL, investigationID)
	text := fmt.Sprintf(
		":hourglass_flowing_sand: *Still waiting on approval* for `%s` (severity: %s) — half the deadline has elapsed.\n<%s|View in Dashboard>",
		investigationID, severity, url,
	)
	return []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil),
	}
}

// BuildResolvedMessage renders the terminal outcome of an approval gate:
// approved, rejected (medium/low timeout), or escalated (critical/high
// timeout, §4.A "On expiry").
func BuildResolvedMessage(investigationID, resolution string) []goslack.Block {
	emoji := map[string]string{
		"approved":  ":white_check_mark:",
		"rejected":  ":x:",
		"escalated": ":warning:",
	}[resolution]
	if emoji == "" {
		emoji = ":question:"
	}
	text := fmt.Sprintf("%s Approval gate for `%s` resolved: *%s*", emoji, investigationID, resolution)
	return []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil),
	}
}

package slackapprove

import "fmt"

// Fingerprint returns the stable identifier used to thread every Slack
// notification about one approval gate under the same message (§D.4
// supplemented feature: "approval requests posted to Slack are
// deduplicated/threaded by a stable fingerprint of (investigation_id,
// action) so re-notifications on escalation land in the same thread
// instead of spamming a channel"), grounded on the teacher's
// pkg/slack/fingerprint.go role of matching a stable text token against
// channel history. In this package it is used only as the search token
// of NotifyEscalation's history lookup; the messages this package builds
// do not include it.
func Fingerprint(investigationID, action string) string {
	return fmt.Sprintf("aluskort-approval:%s:%s", investigationID, action)
}

package gateway

import (
	"regexp"
	"strings"
)

// entityPatterns extract the factual, non-instructional tokens worth
// keeping from untrusted text even when it must be summarized: IPs,
// hashes, domains, emails (§4.B item 3).
var (
	ipPattern     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	hashPattern   = regexp.MustCompile(`\b[a-fA-F0-9]{32,64}\b`)
	domainPattern = regexp.MustCompile(`\b[a-zA-Z0-9][a-zA-Z0-9-]*(?:\.[a-zA-Z0-9][a-zA-Z0-9-]*)+\b`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// neutralPlaceholder is what quarantined content becomes. It is
// deliberately NOT shaped like "[REDACTED_*]" -- the spec forbids any
// [REDACTED_INJECTION_ATTEMPT] / [REDACTED_MARKUP] substring surviving
// into LLM input, to deny an attacker a tuning oracle for what got caught
// (§4.B item 3, §8 "No [REDACTED_INJECTION_ATTEMPT]... appears").
const neutralPlaceholder = "(content withheld)"

// instructionLike is a coarse filter reusing the injection pattern set to
// drop instruction-shaped sentences during summarization, distinct from
// the classifier decision itself.
func instructionLike(sentence string) bool {
	return ClassifyRegex(sentence) != RiskBenign
}

// splitSentences is a simple, dependency-free sentence splitter -- good
// enough for the lossy "keep factual sentences" extraction the spec
// describes; it is not meant to be linguistically precise.
func splitSentences(text string) []string {
	raw := regexp.MustCompile(`[.!?]+(?:\s+|$)|\n+`).Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ExtractEntities pulls IPs, hashes, domains, and emails out of text,
// deduplicated and in first-seen order.
func ExtractEntities(text string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(matches []string) {
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	add(emailPattern.FindAllString(text, -1))
	add(ipPattern.FindAllString(text, -1))
	add(hashPattern.FindAllString(text, -1))
	add(domainPattern.FindAllString(text, -1))
	return out
}

// Transform applies the action a risk verdict dictates to untrusted text
// (§4.B item 3 "Transform instead of redact"):
//   - pass: text is returned unchanged.
//   - summarize: lossily extract entities and keep only sentences that
//     don't look instruction-shaped, dropping the rest.
//   - quarantine: the entire content becomes a neutral placeholder.
//
// Entities extracted are returned alongside the transformed text so
// callers can fold them into case_facts without re-scanning.
func Transform(text string, action Action) (transformed string, entities []string) {
	switch action {
	case ActionPass:
		return text, nil
	case ActionSummarize:
		entities = ExtractEntities(text)
		var kept []string
		for _, s := range splitSentences(text) {
			if !instructionLike(s) {
				kept = append(kept, s)
			}
		}
		summary := strings.Join(kept, ". ")
		if summary == "" && len(entities) > 0 {
			summary = "extracted entities only: " + strings.Join(entities, ", ")
		}
		return summary, entities
	case ActionQuarantine:
		return neutralPlaceholder, nil
	default:
		return text, nil
	}
}

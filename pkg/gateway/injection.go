package gateway

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/aluskort/platform/pkg/obs"
)

// InjectionRisk is the tagged verdict the classifier produces, replacing
// a duck-typed risk score with a fixed table (§9 "Tagged variants...
// InjectionRisk∈{benign,suspicious,malicious} maps to
// Action∈{pass,summarize,quarantine} via a fixed table").
type InjectionRisk string

const (
	RiskBenign     InjectionRisk = "benign"
	RiskSuspicious InjectionRisk = "suspicious"
	RiskMalicious  InjectionRisk = "malicious"
)

// Action is what the gateway does with content at a given risk level.
type Action string

const (
	ActionPass      Action = "pass"
	ActionSummarize Action = "summarize"
	ActionQuarantine Action = "quarantine"
)

// riskToAction is the fixed table §9 calls for.
var riskToAction = map[InjectionRisk]Action{
	RiskBenign:     ActionPass,
	RiskSuspicious: ActionSummarize,
	RiskMalicious:  ActionQuarantine,
}

// ActionFor returns the fixed action for a risk verdict.
func ActionFor(r InjectionRisk) Action {
	return riskToAction[r]
}

// injectionPatterns is the closed set of 14+ regex patterns the cheap
// classifier counts matches of (§4.B item 2: "instruction override,
// role-change, jailbreak, system-prompt extraction, developer mode,
// fenced-role markup, etc."). Grounded in the teacher's
// pkg/masking/pattern.go CompiledPattern approach of naming+compiling a
// fixed pattern set once at construction.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions|rules)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|in)\s+`),
	regexp.MustCompile(`(?i)act\s+as\s+(if\s+you\s+are\s+)?`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)dan\s+mode`),
	regexp.MustCompile(`(?i)developer\s+mode`),
	regexp.MustCompile(`(?i)system\s+prompt`),
	regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(instructions|system\s+prompt|prompt)`),
	regexp.MustCompile(`(?i)print\s+(your|the)\s+(instructions|system\s+prompt)`),
	regexp.MustCompile("(?i)```(system|assistant|user)"),
	regexp.MustCompile(`(?i)<\s*/?\s*(system|assistant|instructions)\s*>`),
	regexp.MustCompile(`(?i)new\s+instructions\s*:`),
	regexp.MustCompile(`(?i)override\s+(your|the)\s+(rules|guardrails|safety)`),
	regexp.MustCompile(`(?i)do\s+not\s+follow\s+(your|the)\s+(rules|guidelines)`),
	regexp.MustCompile(`(?i)this\s+is\s+a\s+(test|simulation)\s*,?\s*ignore`),
}

// ClassifyRegex counts matches against the closed pattern set and maps the
// count to a verdict: 0 -> benign, 1-2 -> suspicious, >=3 -> malicious
// (§4.B item 2).
func ClassifyRegex(text string) InjectionRisk {
	count := 0
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			count++
			if count >= 3 {
				return RiskMalicious
			}
		}
	}
	switch {
	case count == 0:
		return RiskBenign
	default:
		return RiskSuspicious
	}
}

// SecondOpinionClassifier is an optional LLM-backed classifier invoked on
// "suspicious" inputs. The stricter verdict wins (§4.B item 2); a failed
// call is contained and the regex verdict is used instead.
type SecondOpinionClassifier interface {
	Classify(ctx context.Context, text string) (InjectionRisk, error)
}

var riskRank = map[InjectionRisk]int{RiskBenign: 0, RiskSuspicious: 1, RiskMalicious: 2}

func stricter(a, b InjectionRisk) InjectionRisk {
	if riskRank[a] >= riskRank[b] {
		return a
	}
	return b
}

// Classify runs the full injection classification step (§4.B item 2): the
// regex classifier always runs; if the verdict is "suspicious" and a
// second-opinion classifier is configured, it is also consulted, with the
// stricter of the two verdicts winning. A failing second opinion is
// contained and falls back to the regex verdict (§4.B "Failure of the LLM
// call is contained -- fall back to the regex verdict"). metrics may be
// nil.
func Classify(ctx context.Context, text string, second SecondOpinionClassifier, metrics *obs.Metrics) InjectionRisk {
	verdict := ClassifyRegex(text)
	if verdict != RiskSuspicious || second == nil {
		recordVerdict(metrics, verdict, "regex")
		return verdict
	}

	llmVerdict, err := second.Classify(ctx, text)
	if err != nil {
		slog.Warn("gateway: second-opinion injection classifier failed, falling back to regex verdict", "error", err)
		recordVerdict(metrics, verdict, "regex")
		return verdict
	}
	final := stricter(verdict, llmVerdict)
	recordVerdict(metrics, final, "second_opinion")
	return final
}

func recordVerdict(metrics *obs.Metrics, risk InjectionRisk, source string) {
	if metrics != nil {
		metrics.RecordInjectionVerdict(string(risk), source)
	}
}

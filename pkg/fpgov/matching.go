package fpgov

import (
	"net"
	"regexp"
	"sync"
)

// MatchInput is what the orchestrator's fp_check state feeds the matcher
// (§4.A "received -> parsing -> fp_check", §4.D "Matching. Given
// GraphState and the active, non-shadow, scope-matching patterns").
type MatchInput struct {
	AlertName string
	Entities  []string
	Scope     Scope
}

// MatchResult names the best-matching pattern and its composite
// confidence (§4.D "return best match and mark fp_matched=true").
type MatchResult struct {
	Pattern    *Pattern
	Confidence float64
}

// compiledCondition caches a condition's compiled regex or parsed CIDR so
// repeated matches against the same pattern don't recompile on every
// alert.
type compiledCondition struct {
	regex *regexp.Regexp
	cidr  *net.IPNet
}

var (
	compileCache   = map[string]compiledCondition{}
	compileCacheMu sync.Mutex
)

func compile(c EntityCondition) compiledCondition {
	key := c.Regex + "\x00" + c.CIDR
	compileCacheMu.Lock()
	defer compileCacheMu.Unlock()
	if cc, ok := compileCache[key]; ok {
		return cc
	}
	var cc compiledCondition
	if c.Regex != "" {
		if re, err := regexp.Compile(c.Regex); err == nil {
			cc.regex = re
		}
	}
	if c.CIDR != "" {
		if _, ipnet, err := net.ParseCIDR(c.CIDR); err == nil {
			cc.cidr = ipnet
		}
	}
	compileCache[key] = cc
	return cc
}

// nameMatchScore is 1.0 when the alert name is a member of the pattern's
// configured name set (empty set matches any name, consistent with the
// empty-scope-matches-any convention elsewhere in §4.D), else 0.0.
func nameMatchScore(p *Pattern, alertName string) float64 {
	if len(p.Conditions.AlertNames) == 0 {
		return 1.0
	}
	for _, n := range p.Conditions.AlertNames {
		if n == alertName {
			return 1.0
		}
	}
	return 0.0
}

// entityMatchScore is the fraction of input entities matched by at least
// one of the pattern's regex/CIDR conditions; an empty condition set
// matches any entity set (empty scope/condition = match-any convention).
func entityMatchScore(p *Pattern, entities []string) float64 {
	if len(p.Conditions.Entities) == 0 {
		return 1.0
	}
	if len(entities) == 0 {
		return 0.0
	}
	compiled := make([]compiledCondition, 0, len(p.Conditions.Entities))
	for _, c := range p.Conditions.Entities {
		compiled = append(compiled, compile(c))
	}

	matched := 0
	for _, e := range entities {
		for _, cc := range compiled {
			if cc.regex != nil && cc.regex.MatchString(e) {
				matched++
				break
			}
			if cc.cidr != nil {
				if ip := net.ParseIP(e); ip != nil && cc.cidr.Contains(ip) {
					matched++
					break
				}
			}
		}
	}
	return float64(matched) / float64(len(entities))
}

// CompositeConfidence computes the mean of name-match and entity-match
// scores (§4.D "compute a composite confidence as the mean of name-match
// score and entity-match score").
func CompositeConfidence(p *Pattern, in MatchInput) float64 {
	return (nameMatchScore(p, in.AlertName) + entityMatchScore(p, in.Entities)) / 2.0
}

// Matcher evaluates MatchInput against a candidate pattern set, honoring
// the effective threshold and kill switches (§4.D "Matching").
type Matcher struct {
	adjuster    *ThresholdAdjuster
	killSwitches *KillSwitchManager
}

// NewMatcher constructs a Matcher.
func NewMatcher(adjuster *ThresholdAdjuster, killSwitches *KillSwitchManager) *Matcher {
	return &Matcher{adjuster: adjuster, killSwitches: killSwitches}
}

// Match finds the highest-confidence active, non-shadow, scope-matching
// pattern whose composite confidence clears the effective threshold,
// unless any kill switch suppresses the short-circuit for this class
// (§4.D "Kill switches... any active switch suppresses the FP
// short-circuit for that class").
func (m *Matcher) Match(patterns []*Pattern, in MatchInput, techniqueID, source string) (*MatchResult, bool) {
	if m.killSwitches != nil && m.killSwitches.AnyActive(in.Scope.TenantID, "", techniqueID, source) {
		return nil, false
	}

	threshold := m.adjuster.Effective()

	var best *MatchResult
	for _, p := range patterns {
		if p.Status != StatusActive {
			continue
		}
		if !p.Scope.Matches(in.Scope) {
			continue
		}
		if m.killSwitches != nil && m.killSwitches.AnyActive("", p.PatternID, "", "") {
			continue
		}
		conf := CompositeConfidence(p, in)
		if conf < threshold {
			continue
		}
		if best == nil || conf > best.Confidence {
			best = &MatchResult{Pattern: p, Confidence: conf}
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

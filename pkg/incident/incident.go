// Package incident owns the incident memory: closed investigations
// summarized into durable records the pipeline retrieves as "similar
// prior incidents" during enrichment (spec.md §3 "similar prior
// incidents", §6 "incident memory (with rare_important flag)"). Records
// live in the relational incident_memory table; their embeddings live in
// the vector store's incidents collection, and retrieval ranks vector
// similarity against a recency score so an old incident only surfaces
// when it is either recent enough or flagged rare-but-important.
package incident

import (
	"math"
	"time"
)

// Incident is one remembered closed investigation. Playbook references
// are flat ID strings, never embedded objects, so a playbook citing a
// technique citing this incident can never form a stored cycle (§9
// "Cyclic references ... are flattened to ID references").
type Incident struct {
	IncidentID     string    `json:"incident_id"`
	TenantID       string    `json:"tenant_id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	RuleFamily     string    `json:"rule_family"`
	Severity       string    `json:"severity"`
	Classification string    `json:"classification"`
	Techniques     []string  `json:"techniques,omitempty"`
	PlaybookIDs    []string  `json:"playbook_ids,omitempty"`
	RareImportant  bool      `json:"rare_important"`
	ClosedAt       time.Time `json:"closed_at"`
}

// Recency weighting: a fast-decaying short-term component dominates, a
// slow logarithmic long-term component keeps months-old incidents from
// vanishing entirely, and rare-but-important incidents never score below
// the floor at any age.
const (
	shortTermWeight      = 0.7
	longTermWeight       = 0.3
	shortTermDecayPerDay = 0.023
	rareImportantFloor   = 0.1
)

// Recency computes the composite recency score for an incident closed
// ageDays ago. At age 0 the score is exactly 1.0; at 30 days it has
// roughly halved its short-term component; by a year the long-term
// component is all that remains.
func Recency(ageDays float64, rareImportant bool) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	shortTerm := math.Exp(-shortTermDecayPerDay * ageDays)
	longTerm := 1 / (1 + math.Log(1+ageDays/365))
	score := shortTermWeight*shortTerm + longTermWeight*longTerm
	if rareImportant && score < rareImportantFloor {
		return rareImportantFloor
	}
	return score
}

// RecencyAt is Recency evaluated against an explicit clock, the form the
// searcher uses so tests can pin "now".
func RecencyAt(closedAt, now time.Time, rareImportant bool) float64 {
	return Recency(now.Sub(closedAt).Hours()/24, rareImportant)
}

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// genesisHash is "previous_hash" for sequence_number=0 (§4.E "creating a
// genesis record (sequence_number=0, previous_hash = 64 x "0")").
var genesisHash = strings.Repeat("0", 64)

// Actor identifies who or what produced a record (§3 "actor{type,id,
// permissions}").
type Actor struct {
	Type        string   `json:"type"`
	ID          string   `json:"id"`
	Permissions []string `json:"permissions,omitempty"`
}

// Context is the nested context block a record carries (§3 "nested
// context (LLM, retrieval, taxonomy versions, environment)").
type Context struct {
	LLMProvider     string `json:"llm_provider,omitempty"`
	LLMModel        string `json:"llm_model,omitempty"`
	RetrievalTier   string `json:"retrieval_tier,omitempty"`
	TaxonomyVersion string `json:"taxonomy_version,omitempty"`
	Environment     string `json:"environment,omitempty"`
}

// Record is one audit ledger entry (§3 "Audit Record"). RecordHash is
// serialized as record_hash in ordinary JSON but is never part of the
// canonical payload a hash is computed over (§4.E "SHA-256(canonical
// JSON(record minus record_hash) ...)"): CanonicalJSON below marshals
// every other field through canonicalRecord, which has no record_hash.
type Record struct {
	AuditID         string         `json:"audit_id" db:"audit_id"`
	TenantID        string         `json:"tenant_id" db:"tenant_id"`
	SequenceNumber  int64          `json:"sequence_number" db:"sequence_number"`
	PreviousHash    string         `json:"previous_hash" db:"previous_hash"`
	Timestamp       time.Time      `json:"timestamp" db:"timestamp"`
	IngestedAt      time.Time      `json:"ingested_at" db:"ingested_at"`
	EventType       string         `json:"event_type" db:"event_type"`
	EventCategory   EventCategory  `json:"event_category" db:"event_category"`
	Severity        string         `json:"severity" db:"severity"`
	Actor           Actor          `json:"actor" db:"actor"`
	InvestigationID string         `json:"investigation_id,omitempty" db:"investigation_id"`
	AlertID         string         `json:"alert_id,omitempty" db:"alert_id"`
	EntityIDs       []string       `json:"entity_ids,omitempty" db:"entity_ids"`
	Context         Context        `json:"context" db:"context"`
	Decision        map[string]any `json:"decision,omitempty" db:"decision"`
	Outcome         map[string]any `json:"outcome,omitempty" db:"outcome"`
	EvidenceRefs    []EvidenceRef  `json:"evidence_refs,omitempty" db:"evidence_refs"`
	RecordVersion   int            `json:"record_version" db:"record_version"`

	RecordHash string `json:"record_hash" db:"record_hash"`
}

// EvidenceRef points at a large artifact stored off the hot path (§4.E
// "Evidence store").
type EvidenceRef struct {
	Kind        string `json:"kind"`
	URI         string `json:"uri"`
	ContentHash string `json:"content_hash"`
}

// canonicalRecord is the hashable projection of Record: every field
// except record_hash, field-ordered by Go's own struct field order which
// CanonicalJSON then re-sorts by key regardless (§4.E "sort_keys=true").
type canonicalRecord struct {
	AuditID         string         `json:"audit_id"`
	TenantID        string         `json:"tenant_id"`
	SequenceNumber  int64          `json:"sequence_number"`
	PreviousHash    string         `json:"previous_hash"`
	Timestamp       string         `json:"timestamp"`
	IngestedAt      string         `json:"ingested_at"`
	EventType       string         `json:"event_type"`
	EventCategory   string         `json:"event_category"`
	Severity        string         `json:"severity"`
	Actor           Actor          `json:"actor"`
	InvestigationID string         `json:"investigation_id,omitempty"`
	AlertID         string         `json:"alert_id,omitempty"`
	EntityIDs       []string       `json:"entity_ids,omitempty"`
	Context         Context        `json:"context"`
	Decision        map[string]any `json:"decision,omitempty"`
	Outcome         map[string]any `json:"outcome,omitempty"`
	EvidenceRefs    []EvidenceRef  `json:"evidence_refs,omitempty"`
	RecordVersion   int            `json:"record_version"`
}

// CanonicalJSON serializes r (minus record_hash) with sorted object keys
// and the tightest separators, the exact input the chain hash is
// computed over (§4.E). encoding/json emits struct fields in declaration
// order with no extra whitespace, so the marshalled canonicalRecord is
// decoded into a generic value (numbers kept verbatim) and marshalled
// again, which emits every object's keys in sorted order; sortedCopy
// below copies the two map[string]any fields beforehand.
func (r Record) CanonicalJSON() ([]byte, error) {
	cr := canonicalRecord{
		AuditID:         r.AuditID,
		TenantID:        r.TenantID,
		SequenceNumber:  r.SequenceNumber,
		PreviousHash:    r.PreviousHash,
		Timestamp:       r.Timestamp.UTC().Format(time.RFC3339Nano),
		IngestedAt:      r.IngestedAt.UTC().Format(time.RFC3339Nano),
		EventType:       r.EventType,
		EventCategory:   string(r.EventCategory),
		Severity:        r.Severity,
		Actor:           r.Actor,
		InvestigationID: r.InvestigationID,
		AlertID:         r.AlertID,
		EntityIDs:       r.EntityIDs,
		Context:         r.Context,
		Decision:        sortedCopy(r.Decision),
		Outcome:         sortedCopy(r.Outcome),
		EvidenceRefs:    r.EvidenceRefs,
		RecordVersion:   r.RecordVersion,
	}
	raw, err := json.Marshal(cr)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// sortedCopy returns m re-keyed through an ordered map encoding so
// encoding/json's own (already sorted since Go 1.12) map key ordering
// is made explicit rather than relied upon implicitly.
func sortedCopy(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(m))
	for _, k := range keys {
		out[k] = m[k]
	}
	return out
}

// ComputeHash returns the SHA-256 hex digest of r's canonical JSON (§4.E
// "record_hash = SHA-256(canonical JSON(record minus record_hash) ...)").
func (r Record) ComputeHash() (string, error) {
	canon, err := r.CanonicalJSON()
	if err != nil {
		return "", fmt.Errorf("audit: canonicalize record: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// NewGenesis constructs the sequence_number=0 record for a tenant that
// has never ingested an event before (§4.E "creating a genesis record").
func NewGenesis(tenantID string, now time.Time) (Record, error) {
	r := Record{
		AuditID:        newAuditID(),
		TenantID:       tenantID,
		SequenceNumber: 0,
		PreviousHash:   genesisHash,
		Timestamp:      now,
		IngestedAt:     now,
		EventType:      EventSystemGenesis,
		EventCategory:  CategorySystem,
		Severity:       "info",
		Actor:          Actor{Type: "system", ID: "audit-service"},
		RecordVersion:  1,
	}
	hash, err := r.ComputeHash()
	if err != nil {
		return Record{}, err
	}
	r.RecordHash = hash
	return r, nil
}

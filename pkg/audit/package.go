package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// EvidencePackage is the assembled, chain-verified bundle an investigator
// or auditor downloads for one investigation (§6 "GET
// /v1/audit/evidence-package/{investigation_id}"). It bundles every
// record for the investigation plus a verification verdict over that
// subset and a hash of the bundle itself.
type EvidencePackage struct {
	InvestigationID string    `json:"investigation_id"`
	TenantID        string    `json:"tenant_id"`
	AssembledAt     time.Time `json:"assembled_at"`
	Records         []Record  `json:"records"`
	ChainVerified   bool      `json:"chain_verified"`
	VerifyErrors    []string  `json:"verify_errors,omitempty"`
	PackageHash     string    `json:"package_hash"`
}

// hashableEvidencePackage excludes PackageHash itself and the
// caller-excluded raw prompts so the hash covers exactly what ships.
type hashableEvidencePackage struct {
	InvestigationID string    `json:"investigation_id"`
	TenantID        string    `json:"tenant_id"`
	AssembledAt     string    `json:"assembled_at"`
	Records         []Record  `json:"records"`
	ChainVerified   bool      `json:"chain_verified"`
	VerifyErrors    []string  `json:"verify_errors,omitempty"`
}

// PackageAssembler builds EvidencePackages for completed or in-flight
// investigations (§4.E, Supplemented Feature "evidence package assembly
// with a 60-second SLO for warm-tier investigations up to 12 months
// old").
type PackageAssembler struct {
	repo    *Repository
	objects ObjectStore
	metrics MetricsSink
}

// NewPackageAssembler constructs a PackageAssembler. objects and metrics
// may be nil; when objects is nil, evidence_refs are returned unresolved
// (URI only, no inlined body).
func NewPackageAssembler(repo *Repository, objects ObjectStore, metrics MetricsSink) *PackageAssembler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &PackageAssembler{repo: repo, objects: objects, metrics: metrics}
}

// Assemble gathers every audit record for (tenantID, investigationID)
// ordered by sequence number, verifies the chain over that subset, and
// computes the package hash. includeRawPrompts controls whether large
// cold-storage artifacts (full LLM prompts/responses) are resolved and
// inlined into each record's evidence_refs, or left as bare URIs (§6
// "include_raw_prompts=bool").
func (a *PackageAssembler) Assemble(ctx context.Context, tenantID, investigationID string, includeRawPrompts bool) (EvidencePackage, error) {
	start := time.Now()
	defer func() {
		a.metrics.ObserveVerification(tenantID, "evidence_package", true, time.Since(start))
	}()

	records, err := a.repo.ListRecords(ctx, Filter{TenantID: tenantID, InvestigationID: investigationID, Limit: 1000})
	if err != nil {
		return EvidencePackage{}, fmt.Errorf("audit: assemble evidence package: %w", err)
	}
	if len(records) == 0 {
		return EvidencePackage{}, fmt.Errorf("audit: no records for investigation %s", investigationID)
	}

	result := VerifyChain(records)

	if includeRawPrompts && a.objects != nil {
		for i := range records {
			for j, ref := range records[i].EvidenceRefs {
				body, err := a.objects.Get(ctx, objectKeyFromURI(ref.URI))
				if err != nil {
					continue
				}
				var inline json.RawMessage
				if err := json.Unmarshal(body, &inline); err == nil {
					records[i].Decision = withInlineEvidence(records[i].Decision, ref.Kind, inline)
				}
				_ = j
			}
		}
	}

	pkg := EvidencePackage{
		InvestigationID: investigationID,
		TenantID:        tenantID,
		AssembledAt:     time.Now().UTC(),
		Records:         records,
		ChainVerified:   result.Valid,
		VerifyErrors:    result.Errors,
	}
	hash, err := pkg.computeHash()
	if err != nil {
		return EvidencePackage{}, fmt.Errorf("audit: hash evidence package: %w", err)
	}
	pkg.PackageHash = hash
	return pkg, nil
}

func (pkg EvidencePackage) computeHash() (string, error) {
	h := hashableEvidencePackage{
		InvestigationID: pkg.InvestigationID,
		TenantID:        pkg.TenantID,
		AssembledAt:     pkg.AssembledAt.UTC().Format(time.RFC3339Nano),
		Records:         pkg.Records,
		ChainVerified:   pkg.ChainVerified,
		VerifyErrors:    pkg.VerifyErrors,
	}
	body, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

// withInlineEvidence stashes a resolved evidence artifact under
// decision["_inline_evidence"][kind] without disturbing the fields the
// hash chain already covers; this key is additive for display purposes
// and is stripped before any record is re-ingested or re-hashed.
func withInlineEvidence(decision map[string]any, kind string, body json.RawMessage) map[string]any {
	out := make(map[string]any, len(decision)+1)
	for k, v := range decision {
		out[k] = v
	}
	inline, _ := out["_inline_evidence"].(map[string]any)
	if inline == nil {
		inline = map[string]any{}
	}
	var parsed any
	if err := json.Unmarshal(body, &parsed); err == nil {
		inline[kind] = parsed
	}
	out["_inline_evidence"] = inline
	return out
}

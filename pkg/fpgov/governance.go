package fpgov

import (
	"fmt"
	"time"
)

// patternExpiryWindow is how long an approved pattern remains active
// before reaffirmation is required (§4.D "On second approval... set
// expiry_date = now + 90d").
const patternExpiryWindow = 90 * 24 * time.Hour

// GovernanceService owns the two-person approval workflow for FP
// patterns (§3 "Lifecycle & ownership... FP patterns are owned by a
// governance API: creation requires two distinct approvers; expiry/
// revocation is one-way within a version").
type GovernanceService struct {
	nowFn func() time.Time
}

// NewGovernanceService constructs a GovernanceService.
func NewGovernanceService() *GovernanceService {
	return &GovernanceService{nowFn: time.Now}
}

// Propose registers a new pattern in pending status (§4.D "A new pattern
// enters pending").
func (g *GovernanceService) Propose(p *Pattern) {
	p.Status = StatusPending
}

// Approve records one approval. The first call sets ApprovedBy1; a
// second call by a distinct approver sets ApprovedBy2, activates the
// pattern, and starts its 90-day expiry clock (§4.D "approve(pattern_id,
// approver) sets approved_by_1 on first call and approved_by_2 on a call
// by a distinct approver... same approver twice is rejected. On second
// approval, set status=active and expiry_date = now + 90d").
func (g *GovernanceService) Approve(p *Pattern, approver string) error {
	if p.Status != StatusPending {
		return fmt.Errorf("%w: pattern %s is %s", ErrPatternNotPending, p.PatternID, p.Status)
	}

	switch {
	case p.Governance.ApprovedBy1 == "":
		p.Governance.ApprovedBy1 = approver
		return nil
	case p.Governance.ApprovedBy1 == approver:
		return fmt.Errorf("%w: %s already approved", ErrSameApprover, approver)
	case p.Governance.ApprovedBy2 == "":
		p.Governance.ApprovedBy2 = approver
		p.Status = StatusActive
		p.Governance.ExpiryDate = g.nowFn().Add(patternExpiryWindow)
		return nil
	default:
		return fmt.Errorf("%w: pattern %s already has two approvers", ErrPatternNotPending, p.PatternID)
	}
}

// Reaffirm extends an active pattern's expiry by another 90 days (§4.D
// "reaffirm extends expiry by 90d").
func (g *GovernanceService) Reaffirm(p *Pattern, approver string) error {
	if p.Status.Terminal() {
		return fmt.Errorf("%w: pattern %s is %s", ErrPatternTerminal, p.PatternID, p.Status)
	}
	p.Governance.ReaffirmedDate = g.nowFn()
	p.Governance.ReaffirmedBy = approver
	p.Governance.ExpiryDate = p.Governance.ExpiryDate.Add(patternExpiryWindow)
	return nil
}

// CheckExpiry transitions an expired active pattern to expired status,
// with no enforcement effect beyond this call (§4.D "check_expiry
// transitions expired active patterns to expired (no enforcement outside
// this call)"). Returns whether a transition occurred.
func (g *GovernanceService) CheckExpiry(p *Pattern) bool {
	if p.Status != StatusActive {
		return false
	}
	if p.Governance.ExpiryDate.IsZero() || g.nowFn().Before(p.Governance.ExpiryDate) {
		return false
	}
	p.Status = StatusExpired
	return true
}

// Revoke is a one-way transition to revoked status, available from any
// non-terminal status (§3 "expiry/revocation is one-way within a
// version").
func (g *GovernanceService) Revoke(p *Pattern) error {
	if p.Status.Terminal() {
		return fmt.Errorf("%w: pattern %s is %s", ErrPatternTerminal, p.PatternID, p.Status)
	}
	p.Status = StatusRevoked
	return nil
}

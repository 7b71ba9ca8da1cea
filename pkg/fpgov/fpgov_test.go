package fpgov

import (
	"testing"
	"time"
)

func TestCompositeConfidence_MeanOfNameAndEntityScores(t *testing.T) {
	p := &Pattern{
		Conditions: MatchConditions{
			AlertNames: []string{"HighCPU"},
			Entities:   []EntityCondition{{CIDR: "10.0.0.0/8"}},
		},
	}
	in := MatchInput{AlertName: "HighCPU", Entities: []string{"10.1.2.3", "203.0.113.5"}}
	got := CompositeConfidence(p, in)
	want := (1.0 + 0.5) / 2.0
	if got != want {
		t.Fatalf("CompositeConfidence = %v, want %v", got, want)
	}
}

func TestMatcher_KillSwitchSuppressesMatch(t *testing.T) {
	ks := NewKillSwitchManager(nil)
	ks.Activate(DimensionTenant, "acme", "op", "incident response")
	adj := NewThresholdAdjuster(0.90, 0.95)
	m := NewMatcher(adj, ks)

	p := &Pattern{PatternID: "p1", Status: StatusActive, Conditions: MatchConditions{}}
	in := MatchInput{AlertName: "x", Scope: Scope{TenantID: "acme"}}

	if _, ok := m.Match([]*Pattern{p}, in, "", ""); ok {
		t.Fatal("expected kill switch to suppress match")
	}
}

func TestMatcher_RespectsElevatedThreshold(t *testing.T) {
	adj := NewThresholdAdjuster(0.90, 0.95)
	adj.SetDrift(DriftElevated)
	m := NewMatcher(adj, nil)

	p := &Pattern{
		PatternID: "p1",
		Status:    StatusActive,
		Conditions: MatchConditions{
			AlertNames: []string{"HighCPU"},
			Entities:   []EntityCondition{{CIDR: "10.0.0.0/8"}},
		},
	}
	in := MatchInput{AlertName: "HighCPU", Entities: []string{"203.0.113.5"}}

	if _, ok := m.Match([]*Pattern{p}, in, "", ""); ok {
		t.Fatal("expected match to fail composite (0.5) against elevated threshold (0.95)")
	}
}

func TestGovernance_RejectsSameApproverTwice(t *testing.T) {
	g := NewGovernanceService()
	p := &Pattern{PatternID: "p1", Status: StatusPending}

	if err := g.Approve(p, "alice"); err != nil {
		t.Fatalf("first approval: %v", err)
	}
	if err := g.Approve(p, "alice"); err == nil {
		t.Fatal("expected ErrSameApprover")
	}
}

func TestGovernance_SecondDistinctApprovalActivates(t *testing.T) {
	g := NewGovernanceService()
	p := &Pattern{PatternID: "p1", Status: StatusPending}

	if err := g.Approve(p, "alice"); err != nil {
		t.Fatalf("first approval: %v", err)
	}
	if err := g.Approve(p, "bob"); err != nil {
		t.Fatalf("second approval: %v", err)
	}
	if p.Status != StatusActive {
		t.Fatalf("status = %s, want active", p.Status)
	}
	if p.Governance.ExpiryDate.IsZero() {
		t.Fatal("expected expiry date to be set")
	}
}

func TestGovernance_CheckExpiryTransitionsOnlyWhenPast(t *testing.T) {
	g := NewGovernanceService()
	p := &Pattern{Status: StatusActive, Governance: Governance{ExpiryDate: time.Now().Add(time.Hour)}}
	if g.CheckExpiry(p) {
		t.Fatal("should not expire before deadline")
	}
	p.Governance.ExpiryDate = time.Now().Add(-time.Hour)
	if !g.CheckExpiry(p) {
		t.Fatal("should expire past deadline")
	}
	if p.Status != StatusExpired {
		t.Fatalf("status = %s, want expired", p.Status)
	}
}

func TestCanaryPromoter_PromotesOnCleanRecord(t *testing.T) {
	promoter := NewCanaryPromoter(50, 0.05)
	p := &Pattern{Status: StatusShadow}
	for i := 0; i < 50; i++ {
		promoter.Record(p, true)
	}
	if !promoter.Evaluate(p) {
		t.Fatal("expected promotion")
	}
	if p.Status != StatusActive {
		t.Fatalf("status = %s, want active", p.Status)
	}
}

func TestCanaryPromoter_StaysShadowOnHighDisagreement(t *testing.T) {
	promoter := NewCanaryPromoter(50, 0.05)
	p := &Pattern{Status: StatusShadow}
	for i := 0; i < 40; i++ {
		promoter.Record(p, true)
	}
	for i := 0; i < 10; i++ {
		promoter.Record(p, false)
	}
	if promoter.Evaluate(p) {
		t.Fatal("expected no promotion at 20% disagreement")
	}
	if p.Status != StatusShadow {
		t.Fatalf("status = %s, want shadow", p.Status)
	}
}

func TestRolloutManager_RollbackActivatesKillSwitch(t *testing.T) {
	ks := NewKillSwitchManager(nil)
	var events []RolloutEvent
	rm := NewRolloutManager(ks, func(e RolloutEvent) { events = append(events, e) })

	s := &RolloutSlice{Dimension: SliceTenant, Value: "acme", Status: SliceCanary, Precision: 0.80}
	rm.Evaluate(s)

	if s.Status != SliceShadow {
		t.Fatalf("status = %s, want shadow", s.Status)
	}
	if !ks.IsActive(DimensionTenant, "acme") {
		t.Fatal("expected kill switch activated on rollback")
	}
	if len(events) != 1 || events[0].Kind != "rollback" {
		t.Fatalf("events = %+v, want one rollback", events)
	}
}

func TestRolloutManager_PromotesAfterWindowAndPrecision(t *testing.T) {
	rm := NewRolloutManager(nil, nil)
	rm.nowFn = func() time.Time { return time.Unix(0, 0).Add(8 * 24 * time.Hour) }

	s := &RolloutSlice{Dimension: SliceTenant, Value: "acme", Status: SliceCanary, Precision: 0.99, CanaryStartedAt: time.Unix(0, 0)}
	rm.Evaluate(s)

	if s.Status != SliceActive {
		t.Fatalf("status = %s, want active", s.Status)
	}
}

func TestShadowState_DisableRequiresFullCriteria(t *testing.T) {
	s := NewTenantShadowState("acme", true)
	err := s.Disable(GoLiveCriteria{
		SignedOff:                true,
		AgreementWindowSatisfied: true,
		AgreementRate:            0.96,
		FPPrecision:              0.99,
		MissedCriticalTPs:        0,
		CostWithinProjection:     true,
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if s.Active {
		t.Fatal("expected shadow mode disabled")
	}
}

func TestShadowState_DisableRejectsMissingSignOff(t *testing.T) {
	s := NewTenantShadowState("acme", true)
	err := s.Disable(GoLiveCriteria{
		SignedOff:                false,
		AgreementWindowSatisfied: true,
		AgreementRate:            0.99,
		FPPrecision:              0.99,
		CostWithinProjection:     true,
	})
	if err != ErrGoLiveCriteriaNotMet {
		t.Fatalf("err = %v, want ErrGoLiveCriteriaNotMet", err)
	}
	if !s.Active {
		t.Fatal("expected shadow mode to remain active")
	}
}

func TestShadowState_EnableRollsBackWithoutCriteria(t *testing.T) {
	s := NewTenantShadowState("acme", true)
	if err := s.Disable(GoLiveCriteria{
		SignedOff:                true,
		AgreementWindowSatisfied: true,
		AgreementRate:            0.96,
		FPPrecision:              0.99,
		CostWithinProjection:     true,
	}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	s.Enable()
	if !s.Active {
		t.Fatal("expected shadow mode re-enabled")
	}
}

func TestAgreementRate_RequiresFullWindowOfHistory(t *testing.T) {
	now := time.Now()
	decisions := []ShadowDecision{
		{InvestigationID: "i1", RecordedAt: now.Add(-2 * 24 * time.Hour), PipelineAction: "close", AnalystAction: "close"},
	}
	_, satisfied := AgreementRate(decisions, now)
	if satisfied {
		t.Fatal("expected window not satisfied with only 2 days of history")
	}
}

func TestSampleForReview_NovelPatternsGetFullReview(t *testing.T) {
	now := time.Now()
	closures := []Closure{
		{InvestigationID: "novel-1", PatternCreated: now.Add(-time.Hour)},
		{InvestigationID: "novel-2", PatternCreated: now.Add(-time.Hour)},
	}
	sampled := SampleForReview(closures, now)
	if len(sampled) != 2 {
		t.Fatalf("len(sampled) = %d, want 2 (all novel closures reviewed)", len(sampled))
	}
}

func TestDailyCrossCheck_FlagsEscalatedAutoClosures(t *testing.T) {
	closures := []Closure{{InvestigationID: "inv-1"}}
	escalations := []EscalationRecord{{InvestigationID: "inv-1", Source: "edr"}, {InvestigationID: "inv-2", Source: "edr"}}
	flagged := DailyCrossCheck(closures, escalations)
	if len(flagged) != 1 || flagged[0].InvestigationID != "inv-1" {
		t.Fatalf("flagged = %+v, want exactly inv-1", flagged)
	}
}

func TestAutonomyGuard_RaisesThresholdOnLowPrecision(t *testing.T) {
	adj := NewThresholdAdjuster(0.90, 0.95)
	guard := NewAutonomyGuard(adj)
	guard.Evaluate(AutonomyMetrics{Precision: 0.95, FNR: 0.001}, 0.95)
	if adj.Effective() != 0.95 {
		t.Fatalf("Effective() = %v, want 0.95 after precision breach", adj.Effective())
	}
}

package llmrouter

import (
	"sync"
	"time"
)

// TenantTier names a billing/quota tier (§4.C "premium:500, standard:100,
// trial:20").
type TenantTier string

const (
	TenantTierPremium  TenantTier = "premium"
	TenantTierStandard TenantTier = "standard"
	TenantTierTrial    TenantTier = "trial"
)

// QuotaController enforces a per-tenant hourly sliding-window quota,
// scoped by the tenant's configured tier.
type QuotaController struct {
	mu       sync.Mutex
	limits   map[TenantTier]int
	tenants  map[string]*slidingWindow
	tenantTier map[string]TenantTier
}

// NewQuotaController builds a controller with the reference per-tier
// hourly limits from §4.C.
func NewQuotaController(limits map[TenantTier]int) *QuotaController {
	return &QuotaController{
		limits:     limits,
		tenants:    make(map[string]*slidingWindow),
		tenantTier: make(map[string]TenantTier),
	}
}

// SetTenantTier registers which quota tier a tenant belongs to; defaults
// to trial if never called.
func (q *QuotaController) SetTenantTier(tenantID string, tier TenantTier) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tenantTier[tenantID] = tier
}

func (q *QuotaController) windowFor(tenantID string) *slidingWindow {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w, ok := q.tenants[tenantID]; ok {
		return w
	}
	tier, ok := q.tenantTier[tenantID]
	if !ok {
		tier = TenantTierTrial
	}
	limit, ok := q.limits[tier]
	if !ok {
		limit = q.limits[TenantTierTrial]
	}
	w := newSlidingWindow(time.Hour, limit)
	q.tenants[tenantID] = w
	return w
}

// Allow reports whether tenantID has quota remaining this hour, consuming
// one unit of quota if so. Exceeding the quota should be surfaced to the
// caller as ErrQuotaExceeded.
func (q *QuotaController) Allow(tenantID string) bool {
	return q.windowFor(tenantID).Allow()
}

package obs

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Warning categories surfaced through the system warnings endpoint.
const (
	WarningCategoryCircuitBreaker = "circuit_breaker" // a provider's breaker tripped OPEN
	WarningCategoryDrift          = "drift"           // the weighted JS drift score crossed threshold
	WarningCategoryShadowMode     = "shadow_mode"      // a tenant is running in shadow mode
)

// SystemWarning is a non-fatal, transient condition worth surfacing to an
// operator without paging anyone.
type SystemWarning struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Subject   string    `json:"subject,omitempty"` // provider name, drift dimension, or tenant ID
	CreatedAt time.Time `json:"created_at"`
}

// WarningsService holds the current set of active system warnings,
// in-memory and unpersisted -- a crash or restart clears them, since
// they describe live process state rather than history (§4.G degradation
// surfaces). Grounded on the teacher's services/system_warnings.go: a
// mutex-guarded map keyed by a generated ID, replacing same-category/
// same-subject entries instead of accumulating duplicates.
type WarningsService struct {
	mu       sync.RWMutex
	warnings map[string]*SystemWarning
}

// NewWarningsService constructs an empty warnings store.
func NewWarningsService() *WarningsService {
	return &WarningsService{warnings: make(map[string]*SystemWarning)}
}

// AddWarning records a warning, replacing any existing one with the same
// category and subject so a flapping condition doesn't accumulate
// duplicate entries.
func (s *WarningsService) AddWarning(category, message, details, subject string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range s.warnings {
		if w.Category == category && w.Subject == subject {
			delete(s.warnings, id)
			break
		}
	}

	id := uuid.New().String()
	s.warnings[id] = &SystemWarning{
		ID:        id,
		Category:  category,
		Message:   message,
		Details:   details,
		Subject:   subject,
		CreatedAt: time.Now(),
	}
	return id
}

// ClearBySubject removes the warning matching category+subject, if any,
// reporting whether one was found. Called once the underlying condition
// (an open breaker, elevated drift) clears.
func (s *WarningsService) ClearBySubject(category, subject string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range s.warnings {
		if w.Category == category && w.Subject == subject {
			delete(s.warnings, id)
			return true
		}
	}
	return false
}

// GetWarnings returns value copies of every active warning; callers may
// read or compare them without holding the service's lock.
func (s *WarningsService) GetWarnings() []*SystemWarning {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*SystemWarning, 0, len(s.warnings))
	for _, w := range s.warnings {
		cp := *w
		out = append(out, &cp)
	}
	return out
}

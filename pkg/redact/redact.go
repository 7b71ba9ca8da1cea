// Package redact implements the PII redaction step of the Context Gateway
// (spec.md §4.B item 4): email addresses, username-HOST patterns,
// /home/USER/-style path segments, and chat handles are replaced with
// stable placeholders via a reusable bidirectional map, so the same
// identity always gets the same placeholder within a map's lifetime and
// the mapping can be reversed later to deanonymize an LLM response. A
// username standing on its own, outside those patterns, is not detected
// and stays in the text. IPs and hashes are explicitly not PII here and
// are left untouched (§4.B).
//
// Grounded in the teacher's pkg/masking (Masker interface, CompiledPattern
// pattern-group resolution) generalized from one-way secret masking to a
// reversible identity map, plus the PII-map encryption law from
// other_examples' aumos-sdks-style at-rest protection.
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// kind distinguishes the two placeholder families the spec names.
type kind string

const (
	kindUser kind = "USER"
	kindHost kind = "HOST"
)

// Map is a reusable bidirectional PII placeholder map. Zero value is not
// usable; construct with NewMap. Safe for concurrent use.
type Map struct {
	mu       sync.Mutex
	forward  map[string]string // original value -> placeholder
	reverse  map[string]string // placeholder -> original value
	counters map[kind]int
}

// NewMap constructs an empty redaction map.
func NewMap() *Map {
	return &Map{
		forward:  make(map[string]string),
		reverse:  make(map[string]string),
		counters: make(map[kind]int),
	}
}

func (m *Map) placeholderFor(k kind, value string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ph, ok := m.forward[value]; ok {
		return ph
	}
	m.counters[k]++
	ph := fmt.Sprintf("%s_%d", k, m.counters[k])
	m.forward[value] = ph
	m.reverse[ph] = value
	return ph
}

// Resolve returns the original value for a placeholder, and whether it was
// known to this map.
func (m *Map) Resolve(placeholder string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.reverse[placeholder]
	return v, ok
}

// patterns are applied most-specific-first so e.g. "alice@corp.example"
// is consumed as a single email match before the chat-handle pattern has
// a chance to partially match its "@corp.example" part.
var (
	emailPattern      = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	userHostPattern   = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9._\-]{1,31}-[a-zA-Z0-9][a-zA-Z0-9.\-]{2,}\b`)
	homePathPattern   = regexp.MustCompile(`/home/([a-zA-Z0-9._\-]+)/`)
	chatHandlePattern = regexp.MustCompile(`@[a-zA-Z][a-zA-Z0-9._\-]{1,31}\b`)
)

// Redact replaces PII in text with stable placeholders drawn from m,
// returning the transformed text. Calling Redact repeatedly with the same
// map yields the same placeholder for a repeated identity, which is what
// makes Deanonymize a true inverse (§8 "deanonymise(redact(text)) == text
// (modulo deterministic placeholders)").
func Redact(text string, m *Map) string {
	text = emailPattern.ReplaceAllStringFunc(text, func(match string) string {
		return m.placeholderFor(kindUser, match)
	})

	text = homePathPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := homePathPattern.FindStringSubmatch(match)
		user := sub[1]
		ph := m.placeholderFor(kindUser, user)
		return "/home/" + ph + "/"
	})

	text = userHostPattern.ReplaceAllStringFunc(text, func(match string) string {
		return m.placeholderFor(kindHost, match)
	})

	text = chatHandlePattern.ReplaceAllStringFunc(text, func(match string) string {
		return "@" + m.placeholderFor(kindUser, strings.TrimPrefix(match, "@"))
	})

	return text
}

// placeholderPattern matches any USER_N / HOST_N placeholder this package
// generates, used to drive Deanonymize without needing to know which
// patterns produced them.
var placeholderPattern = regexp.MustCompile(`\b(USER|HOST)_(\d+)\b`)

// Deanonymize reverses every placeholder in text back to its original
// value using m. Placeholders unknown to m (e.g. from a different map
// instance) are left untouched rather than silently dropped.
func Deanonymize(text string, m *Map) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		if original, ok := m.Resolve(match); ok {
			return original
		}
		return match
	})
}

// entries returns the map's contents sorted by placeholder, for
// deterministic serialization ahead of encryption.
func (m *Map) entries() []mapEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mapEntry, 0, len(m.reverse))
	for ph, orig := range m.reverse {
		out = append(out, mapEntry{Placeholder: ph, Original: orig})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Placeholder < out[j].Placeholder
	})
	return out
}

type mapEntry struct {
	Placeholder string `json:"placeholder"`
	Original    string `json:"original"`
}

// counterSnapshot captures the per-kind counters so a decrypted map
// resumes minting placeholders from the right sequence number instead of
// restarting at 1 and colliding with existing placeholders.
func (m *Map) counterSnapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.counters))
	for k, v := range m.counters {
		out[string(k)] = v
	}
	return out
}

func (m *Map) restore(entries []mapEntry, counters map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.forward[e.Original] = e.Placeholder
		m.reverse[e.Placeholder] = e.Original
	}
	for k, v := range counters {
		m.counters[kind(k)] = v
	}
}

// Len reports how many distinct identities the map currently holds.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.forward)
}

package store

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// Consequence is one zone's static fallback consequence/severity mapping
// (§4.F "a graph client for consequence reasoning that, on outage, falls
// back to a static YAML zone->consequence->severity table").
type Consequence struct {
	Consequence string `yaml:"consequence"`
	Severity    string `yaml:"severity"`
}

// GraphQuerier is the live graph database contract this module never
// implements (§1 Non-goals); callers code against this interface and
// Graph below supplies the fallback when it's unavailable.
type GraphQuerier interface {
	ConsequenceForZone(ctx context.Context, zone string) (Consequence, error)
}

// Graph wraps an optional GraphQuerier with the static fallback table
// required when the live graph store is unreachable. Grounded in the
// teacher's pattern of fail-open degradation paired with a named,
// explicit fallback rather than a silent empty result (pkg/masking's
// fail-open alert-masking branch).
type Graph struct {
	live     GraphQuerier // nil if no live graph store is configured
	fallback map[string]Consequence
}

// NewGraph constructs a Graph, parsing the static zone table from YAML
// (§4.F). live may be nil to always use the fallback table.
func NewGraph(live GraphQuerier, staticTableYAML []byte) (*Graph, error) {
	var fallback map[string]Consequence
	if err := yaml.Unmarshal(staticTableYAML, &fallback); err != nil {
		return nil, fmt.Errorf("store: parse static consequence table: %w", err)
	}
	return &Graph{live: live, fallback: fallback}, nil
}

// ConsequenceForZone queries the live graph store if configured, falling
// back to the static table on any error or when no live store is
// configured (§4.F).
func (g *Graph) ConsequenceForZone(ctx context.Context, zone string) (Consequence, bool) {
	if g.live != nil {
		c, err := g.live.ConsequenceForZone(ctx, zone)
		if err == nil {
			return c, true
		}
		slog.Warn("store: graph store query failed, falling back to static consequence table", "zone", zone, "error", err)
	}
	c, ok := g.fallback[zone]
	return c, ok
}

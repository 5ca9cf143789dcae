// Package registry holds the static time source and zone tables.
//
// Both tables are built once at startup and never change afterwards. Accessors
// hand out copies so callers cannot mutate the shared data.
package registry

import (
	"fmt"
	"strings"
)

// TimeSource is a labelled NTP server address
type TimeSource struct {
	Label   string `json:"label"`
	Address string `json:"address"` // hostname or IP, optionally host:port
}

// ZoneDefinition maps an IANA zone identifier to a display label
type ZoneDefinition struct {
	Identifier string `json:"id"`
	Label      string `json:"label"`
}

// Registry is an immutable, ordered set of time sources
type Registry struct {
	sources []TimeSource
}

// Catalog is an immutable, ordered set of zone definitions
type Catalog struct {
	zones []ZoneDefinition
}

// NewRegistry validates sources and returns a registry preserving their order
func NewRegistry(sources []TimeSource) (*Registry, error) {
	seen := make(map[string]bool, len(sources))
	out := make([]TimeSource, 0, len(sources))

	for i, src := range sources {
		label := strings.TrimSpace(src.Label)
		addr := strings.TrimSpace(src.Address)
		if label == "" {
			return nil, fmt.Errorf("source[%d]: label is required", i)
		}
		if addr == "" {
			return nil, fmt.Errorf("source[%d] %q: address is required", i, label)
		}
		if seen[label] {
			return nil, fmt.Errorf("source[%d]: duplicate label: %s", i, label)
		}
		seen[label] = true
		out = append(out, TimeSource{Label: label, Address: addr})
	}

	return &Registry{sources: out}, nil
}

// NewCatalog validates zone definitions and returns a catalog preserving their order.
// Identifiers are not resolved here; unknown zones surface as empty projection entries.
func NewCatalog(zones []ZoneDefinition) (*Catalog, error) {
	seenID := make(map[string]bool, len(zones))
	seenLabel := make(map[string]bool, len(zones))
	out := make([]ZoneDefinition, 0, len(zones))

	for i, z := range zones {
		id := strings.TrimSpace(z.Identifier)
		label := strings.TrimSpace(z.Label)
		if id == "" {
			return nil, fmt.Errorf("zone[%d]: id is required", i)
		}
		if label == "" {
			label = id
		}
		if seenID[id] {
			return nil, fmt.Errorf("zone[%d]: duplicate id: %s", i, id)
		}
		if seenLabel[label] {
			return nil, fmt.Errorf("zone[%d]: duplicate label: %s", i, label)
		}
		seenID[id] = true
		seenLabel[label] = true
		out = append(out, ZoneDefinition{Identifier: id, Label: label})
	}

	return &Catalog{zones: out}, nil
}

// Sources returns a copy of the registered sources in registration order
func (r *Registry) Sources() []TimeSource {
	if r == nil {
		return nil
	}
	out := make([]TimeSource, len(r.sources))
	copy(out, r.sources)
	return out
}

// Len returns the number of registered sources
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.sources)
}

// Zones returns a copy of the catalog entries in catalog order
func (c *Catalog) Zones() []ZoneDefinition {
	if c == nil {
		return nil
	}
	out := make([]ZoneDefinition, len(c.zones))
	copy(out, c.zones)
	return out
}

// Len returns the number of cataloged zones
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.zones)
}

// Package zones projects UTC instants into cataloged IANA time zones.
package zones

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	// Embedded zone database so projections do not depend on the host's tzdata
	_ "time/tzdata"

	"github.com/ntpzones/ntpzones/internal/registry"
)

// Layout renders local civil time followed by the zone abbreviation and UTC offset
const Layout = "2006-01-02 15:04:05 MST-0700"

// Entry is one zone in a projection. Value is nil when the zone could not be resolved.
type Entry struct {
	Zone  string
	Label string
	Value *string
}

// Projection maps zone labels to formatted local times, in catalog order
type Projection struct {
	entries []Entry
}

// Entries returns the projection entries in catalog order
func (p Projection) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Get returns the formatted time for a label; ok is false when the label is
// unknown or its zone failed to resolve
func (p Projection) Get(label string) (string, bool) {
	for _, e := range p.entries {
		if e.Label == label {
			if e.Value == nil {
				return "", false
			}
			return *e.Value, true
		}
	}
	return "", false
}

// Len returns the number of entries
func (p Projection) Len() int {
	return len(p.entries)
}

// Failed returns the zone identifiers that could not be resolved
func (p Projection) Failed() []string {
	var out []string
	for _, e := range p.entries {
		if e.Value == nil {
			out = append(out, e.Zone)
		}
	}
	return out
}

// MarshalJSON writes the projection as an object keyed by label, keeping
// catalog order. Failed zones are written as null.
func (p Projection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range p.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Projector converts instants into each cataloged zone. Loaded locations are
// cached; the zero value is ready to use and safe for concurrent use.
type Projector struct {
	locations sync.Map // zone id -> *time.Location
	load      func(name string) (*time.Location, error)
}

// NewProjector creates a projector backed by time.LoadLocation
func NewProjector() *Projector {
	return &Projector{load: time.LoadLocation}
}

// Project formats instant in every zone of catalog. A zone that cannot be
// loaded gets a nil entry; the remaining zones are unaffected.
func (p *Projector) Project(instant time.Time, catalog []registry.ZoneDefinition) Projection {
	entries := make([]Entry, 0, len(catalog))

	for _, z := range catalog {
		entry := Entry{Zone: z.Identifier, Label: z.Label}

		loc, err := p.location(z.Identifier)
		if err == nil {
			s := Format(instant, loc)
			entry.Value = &s
		}

		entries = append(entries, entry)
	}

	return Projection{entries: entries}
}

// Format renders t in loc using Layout. The offset is the one in force at t.
func Format(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(Layout)
}

func (p *Projector) location(id string) (*time.Location, error) {
	if cached, ok := p.locations.Load(id); ok {
		return cached.(*time.Location), nil
	}

	load := p.load
	if load == nil {
		load = time.LoadLocation
	}

	// "Local" would silently follow the host setting; catalog entries must name a zone
	if id == "" || id == "Local" {
		return nil, fmt.Errorf("unsupported zone %q", id)
	}

	loc, err := load(id)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", id, err)
	}

	p.locations.Store(id, loc)
	return loc, nil
}

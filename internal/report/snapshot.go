package report

import (
	"encoding/json"
	"time"

	"github.com/ntpzones/ntpzones/internal/sntp"
	"github.com/ntpzones/ntpzones/internal/zones"
)

// SourceReport pairs a query result with its zone projections.
// Converted is nil when the query failed.
type SourceReport struct {
	Result    sntp.QueryResult
	Converted *zones.Projection
}

// Snapshot is one aggregated view across all sources
type Snapshot struct {
	QueriedAt  time.Time
	Servers    []SourceReport
	LocalZones zones.Projection
}

// SourcesOK counts sources that returned a server time
func (s Snapshot) SourcesOK() int {
	n := 0
	for _, sr := range s.Servers {
		if sr.Result.OK() {
			n++
		}
	}
	return n
}

// timestampLayout is RFC 3339 with fractional seconds, always in UTC
const timestampLayout = time.RFC3339Nano

type snapshotDoc struct {
	QueriedAt  string           `json:"queried_at"`
	Servers    []serverDoc      `json:"servers"`
	LocalZones zones.Projection `json:"local_zones"`
}

type serverDoc struct {
	ServerName    string            `json:"server_name"`
	Server        string            `json:"server"`
	NTPUTC        *string           `json:"ntp_utc,omitempty"`
	LocalUTC      string            `json:"local_utc"`
	OffsetSeconds *float64          `json:"offset_seconds,omitempty"`
	Stratum       *uint8            `json:"stratum,omitempty"`
	Delay         *float64          `json:"delay,omitempty"`
	Error         *string           `json:"error,omitempty"`
	ErrorKind     string            `json:"error_kind,omitempty"`
	Converted     *zones.Projection `json:"converted,omitempty"`
}

// MarshalJSON writes the snapshot document served to the presentation layer
func (s Snapshot) MarshalJSON() ([]byte, error) {
	doc := snapshotDoc{
		QueriedAt:  formatTimestamp(s.QueriedAt),
		Servers:    make([]serverDoc, 0, len(s.Servers)),
		LocalZones: s.LocalZones,
	}

	for _, sr := range s.Servers {
		doc.Servers = append(doc.Servers, newServerDoc(sr))
	}

	return json.Marshal(doc)
}

func newServerDoc(sr SourceReport) serverDoc {
	r := sr.Result
	d := serverDoc{
		ServerName:    r.SourceLabel,
		Server:        r.Address,
		LocalUTC:      formatTimestamp(r.LocalReferenceUTC),
		OffsetSeconds: r.OffsetSeconds,
		Stratum:       r.Stratum,
		Delay:         r.RoundTripDelay,
		Converted:     sr.Converted,
	}

	if r.ServerUTC != nil {
		s := formatTimestamp(*r.ServerUTC)
		d.NTPUTC = &s
	}
	if r.Err != nil {
		msg := r.Err.Message
		d.Error = &msg
		d.ErrorKind = string(r.Err.Kind)
	}

	return d
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

package sntp

import (
	"time"
)

// ErrorKind classifies why a query produced no time
type ErrorKind string

const (
	KindResolution   ErrorKind = "resolution"   // host name could not be resolved
	KindConnectivity ErrorKind = "connectivity" // socket or routing failure
	KindTimeout      ErrorKind = "timeout"      // no reply within the deadline
	KindMalformed    ErrorKind = "malformed"    // reply failed protocol checks
	KindCanceled     ErrorKind = "canceled"     // caller gave up before the query ran
)

// OffsetMode selects how the offset is estimated from a single reply
type OffsetMode string

const (
	// OffsetSingleSample compares the server transmit time with the local
	// clock sampled after the reply arrived
	OffsetSingleSample OffsetMode = "single_sample"

	// OffsetDelayCorrected adds half the round-trip delay to the server
	// transmit time before comparing
	OffsetDelayCorrected OffsetMode = "delay_corrected"
)

// DefaultTimeout caps the wait for a single server
const DefaultTimeout = 5 * time.Second

// DefaultVersion is the NTP protocol version sent in requests
const DefaultVersion = 3

// QueryError describes a failed query
type QueryError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	return e.Message
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// QueryResult is the outcome of one query against one source.
// Either ServerUTC and OffsetSeconds are set, or Err is.
type QueryResult struct {
	SourceLabel       string
	Address           string
	ServerUTC         *time.Time
	LocalReferenceUTC time.Time
	OffsetSeconds     *float64
	Stratum           *uint8
	RoundTripDelay    *float64 // seconds
	Err               *QueryError
	Elapsed           time.Duration // wall time spent on the query, not serialized
}

// OK reports whether the query produced a server time
func (r QueryResult) OK() bool {
	return r.Err == nil && r.ServerUTC != nil
}

// ErrorMessage returns the failure cause, or "" on success
func (r QueryResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Message
}

// Config configures the query client
type Config struct {
	TimeoutSeconds int
	Version        int
	OffsetMode     OffsetMode
}

// Package sntp performs single-shot NTP queries against registered time sources.
package sntp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/beevik/ntp"

	"github.com/ntpzones/ntpzones/internal/logger"
	"github.com/ntpzones/ntpzones/internal/registry"
)

// QueryFunc sends one NTP request; ntp.QueryWithOptions in production
type QueryFunc func(address string, opt ntp.QueryOptions) (*ntp.Response, error)

// Client queries NTP servers, one request per call, no retries.
// Safe for concurrent use: it holds no mutable state.
type Client struct {
	timeout time.Duration
	version int
	mode    OffsetMode
	query   QueryFunc
	now     func() time.Time
	log     *logger.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithQueryFunc replaces the network query, mainly for tests
func WithQueryFunc(fn QueryFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.query = fn
		}
	}
}

// WithClock replaces the local clock used for the reference sample
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the client logger
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a query client
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	version := cfg.Version
	if version == 0 {
		version = DefaultVersion
	}

	mode := cfg.OffsetMode
	if mode == "" {
		mode = OffsetSingleSample
	}

	c := &Client{
		timeout: timeout,
		version: version,
		mode:    mode,
		query:   ntp.QueryWithOptions,
		now:     time.Now,
		log:     logger.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query sends one request to src and returns its result. Failures are
// reported in the result, never as a returned error.
func (c *Client) Query(ctx context.Context, src registry.TimeSource) QueryResult {
	result := QueryResult{
		SourceLabel: src.Label,
		Address:     src.Address,
	}

	if err := ctx.Err(); err != nil {
		result.LocalReferenceUTC = c.now().UTC()
		result.Err = newQueryError(fmt.Errorf("NTP query not started: %w", err))
		return result
	}

	// A caller deadline tighter than our own timeout wins
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		result.LocalReferenceUTC = c.now().UTC()
		result.Err = newQueryError(fmt.Errorf("NTP query not started: %w", context.DeadlineExceeded))
		return result
	}

	start := time.Now()
	response, err := c.query(src.Address, ntp.QueryOptions{
		Timeout: timeout,
		Version: c.version,
	})

	// Sample the local clock as soon as the reply is in hand; the offset is
	// only meaningful against this instant
	local := c.now().UTC()
	result.LocalReferenceUTC = local
	result.Elapsed = time.Since(start)

	if err == nil {
		err = checkResponse(response)
	}
	if err != nil {
		result.Err = newQueryError(fmt.Errorf("NTP query failed: %w", err))
		c.log.Debug("NTP query failed",
			"source", src.Label,
			"server", src.Address,
			"kind", result.Err.Kind,
			"error", result.Err.Message)
		return result
	}

	serverUTC := response.Time.UTC()
	rtt := response.RTT
	if rtt < 0 {
		rtt = 0
	}

	estimate := serverUTC
	if c.mode == OffsetDelayCorrected {
		estimate = estimate.Add(rtt / 2)
	}
	offset := estimate.Sub(local).Seconds()
	delay := rtt.Seconds()
	stratum := response.Stratum

	result.ServerUTC = &serverUTC
	result.OffsetSeconds = &offset
	result.RoundTripDelay = &delay
	result.Stratum = &stratum

	c.log.Debug("NTP query completed",
		"source", src.Label,
		"server", src.Address,
		"offset_seconds", offset,
		"rtt", rtt,
		"stratum", stratum)

	return result
}

// maxStratum is the highest stratum a server may report; 16 means unsynchronized
const maxStratum = 16

// checkResponse rejects replies that carry no usable time: a kiss-of-death
// packet or a stratum outside the protocol range. Unsynchronized or stale
// servers still answer with a transmit time and are reported as such.
func checkResponse(r *ntp.Response) error {
	if r == nil {
		return errMalformed{errors.New("empty response")}
	}
	if r.IsKissOfDeath() {
		return errMalformed{fmt.Errorf("kiss of death received: %s", r.KissCode)}
	}
	if r.Stratum > maxStratum {
		return errMalformed{fmt.Errorf("invalid stratum %d in response", r.Stratum)}
	}
	if r.Time.IsZero() {
		return errMalformed{errors.New("reply has no transmit time")}
	}
	return nil
}

// errMalformed marks protocol-level failures detected after a reply arrived
type errMalformed struct {
	err error
}

func (e errMalformed) Error() string { return e.err.Error() }
func (e errMalformed) Unwrap() error { return e.err }

func newQueryError(err error) *QueryError {
	return &QueryError{
		Kind:    classify(err),
		Message: err.Error(),
		Err:     err,
	}
}

// classify maps an error from the query path onto an ErrorKind
func classify(err error) ErrorKind {
	var malformed errMalformed
	if errors.As(err, &malformed) {
		return KindMalformed
	}

	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindResolution
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var opErr *net.OpError
	var addrErr *net.AddrError
	var errno syscall.Errno
	switch {
	case errors.As(err, &opErr), errors.As(err, &addrErr), errors.As(err, &errno):
		return KindConnectivity
	}

	// Anything else came out of reply decoding
	return KindMalformed
}

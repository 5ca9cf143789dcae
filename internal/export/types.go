// Package export publishes snapshot documents to a remote SFTP or FTPS server.
package export

import (
	"fmt"
	"time"
)

// Client stores files on a remote server
type Client interface {
	// Upload writes data to remotePath atomically: a .tmp file first, then a rename
	Upload(remotePath string, data []byte) error

	// TestConnection checks connectivity and authentication
	TestConnection() error
}

// Protocols accepted by NewClientFromConfig
const (
	ProtocolSFTP = "sftp"
	ProtocolFTPS = "ftps"
)

// Config holds the connection settings shared by both protocols
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	BasePath       string
	ConnectTimeout time.Duration

	// SFTP only
	KnownHostsPath string

	// FTPS only
	CABundlePath string
	TLSInsecure  bool
}

// ConnectionError means the remote server could not be reached or
// refused the session
type ConnectionError struct {
	Message string
	Err     error
}

// AuthError means the server rejected the configured credentials
type AuthError struct {
	Message string
	Err     error
}

// UploadError is a failed step while writing one remote file
type UploadError struct {
	RemotePath string
	Message    string // the step that failed
	Err        error
}

// TimeoutError is a connect or transfer that ran past its deadline
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
	Err       error
}

func (e *ConnectionError) Error() string { return withCause("export connect: "+e.Message, e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *AuthError) Error() string { return withCause("export auth: "+e.Message, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

func (e *UploadError) Error() string {
	return withCause(fmt.Sprintf("export %s: %s", e.RemotePath, e.Message), e.Err)
}
func (e *UploadError) Unwrap() error { return e.Err }

func (e *TimeoutError) Error() string {
	return withCause(fmt.Sprintf("export %s: timed out after %s", e.Operation, e.Timeout), e.Err)
}
func (e *TimeoutError) Unwrap() error { return e.Err }

func withCause(msg string, err error) string {
	if err == nil {
		return msg
	}
	return msg + ": " + err.Error()
}

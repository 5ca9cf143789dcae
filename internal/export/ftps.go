package export

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/secsy/goftp"
)

// FTPSClient implements Client over explicit-TLS FTP
type FTPSClient struct {
	config    Config
	tlsConfig *tls.Config
}

// NewFTPSClient creates a new FTPS client
func NewFTPSClient(cfg Config) (*FTPSClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("password is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	tlsConfig := &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.TLSInsecure,
		MinVersion:         tls.VersionTLS12,
	}
	if cfg.CABundlePath != "" {
		caCert, err := os.ReadFile(cfg.CABundlePath)
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA bundle")
		}
		tlsConfig.RootCAs = pool
	}

	return &FTPSClient{
		config:    cfg,
		tlsConfig: tlsConfig,
	}, nil
}

// Upload stores data under a .tmp name and renames it into place
func (c *FTPSClient) Upload(remotePath string, data []byte) error {
	remotePath = c.resolve(remotePath)
	tmpPath := remotePath + ".tmp"

	conn, err := c.connect()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if dir := path.Dir(remotePath); dir != "." && dir != "" {
		if err := ensureDirectory(conn, dir); err != nil {
			return &UploadError{RemotePath: remotePath, Message: "ensure directory", Err: err}
		}
	}

	if err := conn.Store(tmpPath, bytes.NewReader(data)); err != nil {
		_ = conn.Delete(tmpPath)
		if isTimeoutError(err) {
			return &TimeoutError{Operation: "upload " + remotePath, Timeout: c.config.ConnectTimeout, Err: err}
		}
		return &UploadError{RemotePath: remotePath, Message: "upload to .tmp", Err: err}
	}

	// RNTO does not overwrite on every server
	_ = conn.Delete(remotePath)
	if err := conn.Rename(tmpPath, remotePath); err != nil {
		_ = conn.Delete(tmpPath)
		return &UploadError{RemotePath: remotePath, Message: "rename .tmp to final", Err: err}
	}

	return nil
}

// TestConnection tests the FTPS connection and authentication
func (c *FTPSClient) TestConnection() error {
	conn, err := c.connect()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	testPath := "."
	if c.config.BasePath != "" {
		testPath = c.config.BasePath
	}
	if _, err := conn.ReadDir(testPath); err != nil {
		return &ConnectionError{Message: "test connection failed (path: " + testPath + ")", Err: err}
	}
	return nil
}

func (c *FTPSClient) resolve(remotePath string) string {
	remotePath = strings.TrimPrefix(path.Clean("/"+remotePath), "/")
	if c.config.BasePath != "" {
		remotePath = path.Join(c.config.BasePath, remotePath)
	}
	return remotePath
}

// connect opens a control connection; goftp dials lazily, so an empty
// directory listing forces the login
func (c *FTPSClient) connect() (*goftp.Client, error) {
	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))

	conn, err := goftp.DialConfig(goftp.Config{
		User:      c.config.Username,
		Password:  c.config.Password,
		Timeout:   c.config.ConnectTimeout,
		TLSConfig: c.tlsConfig,
		TLSMode:   goftp.TLSExplicit,
	}, addr)
	if err != nil {
		return nil, classifyFTPError(addr, c.config.ConnectTimeout, err)
	}

	if _, err := conn.Getwd(); err != nil {
		_ = conn.Close()
		return nil, classifyFTPError(addr, c.config.ConnectTimeout, err)
	}
	return conn, nil
}

func classifyFTPError(addr string, timeout time.Duration, err error) error {
	switch {
	case isTimeoutError(err):
		return &TimeoutError{Operation: "connect " + addr, Timeout: timeout, Err: err}
	case isAuthError(err):
		return &AuthError{Message: addr, Err: err}
	default:
		return &ConnectionError{Message: "dial " + addr, Err: err}
	}
}

// ensureDirectory creates each component of remoteDir; servers that report
// an error for an existing directory are tolerated when the directory reads back
func ensureDirectory(conn *goftp.Client, remoteDir string) error {
	current := ""
	for _, part := range strings.Split(strings.Trim(remoteDir, "/"), "/") {
		if part == "" {
			continue
		}
		current = path.Join(current, part)

		if _, err := conn.Mkdir(current); err != nil {
			if _, readErr := conn.ReadDir(current); readErr != nil {
				return fmt.Errorf("create directory %s: %w", current, err)
			}
		}
	}
	return nil
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "530") || // Not logged in
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "login")
}

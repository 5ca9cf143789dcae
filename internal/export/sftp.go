package export

import (
	"errors"
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultConnectTimeout = 10 * time.Second

// SFTPClient implements Client over SSH.
// A mutex serializes Upload and TestConnection; each call opens and closes its own session.
type SFTPClient struct {
	mu         sync.Mutex
	config     Config
	hostKey    ssh.HostKeyCallback
	sshClient  *ssh.Client
	sftpClient *sftp.Client
}

// NewSFTPClient creates a new SFTP client
func NewSFTPClient(cfg Config) (*SFTPClient, error) {
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
		cfg.Port = 22
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKey = cb
	}

	return &SFTPClient{
		config:  cfg,
		hostKey: hostKey,
	}, nil
}

// Upload uploads a file with atomic write (tmp + rename)
func (c *SFTPClient) Upload(remotePath string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(); err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	remotePath = c.resolve(remotePath)

	// Missing permission on parents is fine as long as the directory already exists
	_ = c.sftpClient.MkdirAll(path.Dir(remotePath))

	tmpPath := fmt.Sprintf("%s.tmp.%d", remotePath, time.Now().UnixNano())

	remote, err := c.sftpClient.Create(tmpPath)
	if err != nil {
		return &UploadError{RemotePath: remotePath, Message: "create remote file", Err: err}
	}

	_, err = remote.Write(data)
	_ = remote.Close()
	if err != nil {
		_ = c.sftpClient.Remove(tmpPath)
		return &UploadError{RemotePath: remotePath, Message: "write", Err: err}
	}

	// PosixRename replaces an existing target; plain Rename fails on most servers
	if err := c.sftpClient.PosixRename(tmpPath, remotePath); err != nil {
		_ = c.sftpClient.Remove(tmpPath)
		return &UploadError{RemotePath: remotePath, Message: "rename", Err: err}
	}

	return nil
}

// TestConnection tests the SFTP connection and authentication
func (c *SFTPClient) TestConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(); err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	testPath := "."
	if c.config.BasePath != "" {
		testPath = c.config.BasePath
	}
	if _, err := c.sftpClient.Stat(testPath); err != nil {
		return fmt.Errorf("connection test failed (path: %s): %w", testPath, err)
	}

	return nil
}

// resolve normalizes remotePath under the configured base path.
// SFTP always uses forward slashes, so this is path rather than filepath.
func (c *SFTPClient) resolve(remotePath string) string {
	remotePath = strings.TrimPrefix(path.Clean("/"+remotePath), "/")
	if c.config.BasePath != "" {
		remotePath = path.Join(c.config.BasePath, remotePath)
	}
	return remotePath
}

// connect establishes SSH and SFTP connections
func (c *SFTPClient) connect() error {
	sshConfig := &ssh.ClientConfig{
		User: c.config.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(c.config.Password),
		},
		HostKeyCallback: c.hostKey,
		Timeout:         c.config.ConnectTimeout,
	}

	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
	var err error
	c.sshClient, err = ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return c.dialError(addr, err)
	}

	c.sftpClient, err = sftp.NewClient(c.sshClient)
	if err != nil {
		_ = c.sshClient.Close()
		c.sshClient = nil
		return &ConnectionError{Message: "sftp session", Err: err}
	}

	return nil
}

func (c *SFTPClient) dialError(addr string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Operation: "ssh dial " + addr, Timeout: c.config.ConnectTimeout, Err: err}
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return &AuthError{Message: c.config.Username + "@" + addr, Err: err}
	}
	return &ConnectionError{Message: "ssh dial " + addr, Err: err}
}

// Close closes SFTP and SSH connections
func (c *SFTPClient) Close() error {
	var errs []error

	if c.sftpClient != nil {
		if err := c.sftpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sftp close: %w", err))
		}
		c.sftpClient = nil
	}

	if c.sshClient != nil {
		if err := c.sshClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("ssh close: %w", err))
		}
		c.sshClient = nil
	}

	return errors.Join(errs...)
}

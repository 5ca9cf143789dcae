package export

import (
	"fmt"

	"github.com/ntpzones/ntpzones/internal/config"
)

// NewClientFromConfig creates an upload client from the export section of the
// config file, picking the transport by protocol
func NewClientFromConfig(cfg *config.Export) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("export is not configured")
	}

	c := Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Username:       cfg.Username,
		Password:       cfg.Password,
		BasePath:       cfg.BasePath,
		ConnectTimeout: cfg.ConnectTimeout(),
		KnownHostsPath: cfg.KnownHostsPath,
		CABundlePath:   cfg.CABundlePath,
		TLSInsecure:    cfg.TLSInsecure,
	}

	switch cfg.Protocol {
	case "", ProtocolSFTP:
		return NewSFTPClient(c)
	case ProtocolFTPS:
		return NewFTPSClient(c)
	default:
		return nil, fmt.Errorf("unsupported protocol %q", cfg.Protocol)
	}
}

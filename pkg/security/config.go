// Package security holds the TLS settings shared by the telemetry source
// dialers and the display server.
package security

import (
	"fmt"

	"github.com/c360/telemetrystream/errors"
)

// ServerTLS configures TLS for the display and metrics HTTP server.
type ServerTLS struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	CertFile   string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	MinVersion string `json:"min_version,omitempty" yaml:"min_version,omitempty"` // "1.2" or "1.3"
}

// ClientTLS configures TLS for outbound telemetry connections. The system CA
// bundle is always trusted; CAFiles are additional roots.
type ClientTLS struct {
	CAFiles            []string `json:"ca_files,omitempty" yaml:"ca_files,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"` // DEV/TEST ONLY
	MinVersion         string   `json:"min_version,omitempty" yaml:"min_version,omitempty"`
}

// Validate checks the configuration
func (s ServerTLS) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.CertFile == "" || s.KeyFile == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: server TLS requires cert_file and key_file", errors.ErrMissingConfig),
			"security", "Validate", "validate server TLS")
	}
	return validateVersion(s.MinVersion)
}

// Validate checks the configuration
func (c ClientTLS) Validate() error {
	return validateVersion(c.MinVersion)
}

func validateVersion(v string) error {
	switch v {
	case "", "1.2", "1.3":
		return nil
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: unsupported TLS version %q", errors.ErrInvalidConfig, v),
			"security", "Validate", "validate TLS version")
	}
}

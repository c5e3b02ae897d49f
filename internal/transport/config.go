// Package transport manages the SMTP session used to deliver the send
// queue. One parameterized session covers authenticated relays and
// allow-listed (IP-authorized) relays.
package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/prospector/internal/prospect"
)

// AuthMode selects how the relay authorizes this client.
type AuthMode string

// Supported auth modes.
const (
	AuthAuthenticated AuthMode = "authenticated"
	AuthAllowListed   AuthMode = "allow_listed"
)

// AddressFamily restricts which addresses the relay is dialed on.
type AddressFamily string

// Supported address families.
const (
	FamilyAny  AddressFamily = "any"
	FamilyIPv4 AddressFamily = "ipv4"
)

// TLSMode selects how the connection is secured.
type TLSMode string

// Supported TLS modes.
const (
	TLSStartTLS TLSMode = "starttls"
	TLSImplicit TLSMode = "implicit"
	TLSNone     TLSMode = "none"
)

// ErrMissingCredentials is returned before dialing when authenticated mode
// has no username or password.
var ErrMissingCredentials = fmt.Errorf("smtp credentials are not configured: %w", prospect.ErrPrecondition)

// Config describes the relay and session policy.
type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	AuthMode      AuthMode
	AddressFamily AddressFamily
	// HeloIdentity is sent in EHLO/HELO. Empty uses the local hostname.
	HeloIdentity       string
	TLSMode            TLSMode
	InsecureSkipVerify bool
	DialTimeout        time.Duration
	// CommandTimeout bounds each SMTP transaction.
	CommandTimeout time.Duration
	// IdleProbe sends NOOP before a transaction when the session has been
	// idle at least this long. Zero disables probing.
	IdleProbe time.Duration
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = 587
	}
	if c.AuthMode == "" {
		c.AuthMode = AuthAuthenticated
	}
	if c.AddressFamily == "" {
		c.AddressFamily = FamilyAny
	}
	if c.TLSMode == "" {
		c.TLSMode = TLSStartTLS
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 30 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 60 * time.Second
	}
	return c
}

// Validate checks the configuration without touching the network.
func (c Config) Validate() error {
	c = c.WithDefaults()
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("smtp host is not configured: %w", prospect.ErrPrecondition)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("smtp port %d out of range", c.Port)
	}
	switch c.AuthMode {
	case AuthAuthenticated:
		if strings.TrimSpace(c.Username) == "" || c.Password == "" {
			return ErrMissingCredentials
		}
	case AuthAllowListed:
	default:
		return fmt.Errorf("unknown smtp auth mode %q", c.AuthMode)
	}
	switch c.AddressFamily {
	case FamilyAny, FamilyIPv4:
	default:
		return fmt.Errorf("unknown smtp address family %q", c.AddressFamily)
	}
	switch c.TLSMode {
	case TLSStartTLS, TLSImplicit, TLSNone:
	default:
		return fmt.Errorf("unknown smtp tls mode %q", c.TLSMode)
	}
	return nil
}

// IsMissingCredentials reports whether err is ErrMissingCredentials.
func IsMissingCredentials(err error) bool {
	return errors.Is(err, ErrMissingCredentials)
}

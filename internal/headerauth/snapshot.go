package headerauth

import (
	"fmt"
	"regexp"
	"sync/atomic"
)

// Default values for the header authentication settings
const (
	DefaultLoginCookie            = "mod_auth_openidc_session"
	DefaultRemoteUserHeader       = "REMOTE_USER"
	SharedSecretHeader            = "X-Auth-Header-Shared-Secret"
	DefaultUsernameWhitelist      = `^[A-Za-z0-9+_.-]+@(.+)$`
	DefaultProfileHeaderWhitelist = `^OIDC_CLAIM_(.+)$`
)

// Settings holds the raw, uncompiled header authentication settings
type Settings struct {
	SharedSecret           string
	AllowEmptySharedSecret bool
	RemoteUserHeader       string
	UsernameWhitelist      string
	ProfileHeaderWhitelist string
	LoginCookie            string
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		RemoteUserHeader:       DefaultRemoteUserHeader,
		UsernameWhitelist:      DefaultUsernameWhitelist,
		ProfileHeaderWhitelist: DefaultProfileHeaderWhitelist,
		LoginCookie:            DefaultLoginCookie,
	}
}

// Snapshot is an immutable, validated view of the header authentication
// configuration. A reconfiguration builds a new Snapshot; fields are never
// mutated after NewSnapshot returns.
type Snapshot struct {
	sharedSecret           string
	allowEmptySharedSecret bool
	remoteUserHeader       string
	usernamePattern        *regexp.Regexp
	profileHeaderPattern   *regexp.Regexp
	loginCookie            string
}

// NewSnapshot compiles the allow-list patterns and freezes the settings.
// Patterns are anchored so that only full matches are accepted.
func NewSnapshot(s Settings) (*Snapshot, error) {
	if s.RemoteUserHeader == "" {
		s.RemoteUserHeader = DefaultRemoteUserHeader
	}
	if s.UsernameWhitelist == "" {
		s.UsernameWhitelist = DefaultUsernameWhitelist
	}
	if s.ProfileHeaderWhitelist == "" {
		s.ProfileHeaderWhitelist = DefaultProfileHeaderWhitelist
	}

	usernamePattern, err := regexp.Compile(`^(?:` + s.UsernameWhitelist + `)$`)
	if err != nil {
		return nil, fmt.Errorf("invalid username whitelist pattern: %w", err)
	}

	// Header names are case-insensitive on the wire and net/http canonicalizes
	// them, so the profile pattern is matched without regard to case.
	profilePattern, err := regexp.Compile(`(?i)^(?:` + s.ProfileHeaderWhitelist + `)$`)
	if err != nil {
		return nil, fmt.Errorf("invalid user profile header whitelist pattern: %w", err)
	}

	return &Snapshot{
		sharedSecret:           s.SharedSecret,
		allowEmptySharedSecret: s.AllowEmptySharedSecret,
		remoteUserHeader:       s.RemoteUserHeader,
		usernamePattern:        usernamePattern,
		profileHeaderPattern:   profilePattern,
		loginCookie:            s.LoginCookie,
	}, nil
}

// RemoteUserHeader returns the header carrying the asserted user id
func (s *Snapshot) RemoteUserHeader() string { return s.remoteUserHeader }

// SharedSecretHeader returns the header carrying the trust token
func (s *Snapshot) SharedSecretHeader() string { return SharedSecretHeader }

// LoginCookie returns the login cookie name, possibly empty
func (s *Snapshot) LoginCookie() string { return s.loginCookie }

// UsernamePattern returns the compiled username allow-list
func (s *Snapshot) UsernamePattern() *regexp.Regexp { return s.usernamePattern }

// ProfileHeaderPattern returns the compiled profile header allow-list
func (s *Snapshot) ProfileHeaderPattern() *regexp.Regexp { return s.profileHeaderPattern }

// secretRequired reports whether requests must present the shared secret header
func (s *Snapshot) secretRequired() bool {
	return s.sharedSecret != "" || !s.allowEmptySharedSecret
}

// SnapshotHolder publishes the active Snapshot. Store swaps the whole
// snapshot atomically so readers always observe a complete configuration.
type SnapshotHolder struct {
	current atomic.Pointer[Snapshot]
}

// NewSnapshotHolder creates a holder with an initial snapshot
func NewSnapshotHolder(initial *Snapshot) *SnapshotHolder {
	h := &SnapshotHolder{}
	h.current.Store(initial)
	return h
}

// Load returns the active snapshot
func (h *SnapshotHolder) Load() *Snapshot {
	return h.current.Load()
}

// Store replaces the active snapshot. A nil snapshot is ignored.
func (h *SnapshotHolder) Store(s *Snapshot) {
	if s == nil {
		return
	}
	h.current.Store(s)
}

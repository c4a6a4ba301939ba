package idp

import (
	"errors"
	"strings"
)

// Common identity provider errors
var (
	ErrInvalidUserID          = errors.New("invalid user id")
	ErrUnsupportedCredentials = errors.New("unsupported credentials")
	ErrNotImplemented         = errors.New("operation not implemented by provider")
	ErrProviderNotFound       = errors.New("identity provider not found")
)

// ExternalIdentityRef identifies an identity within a named provider
type ExternalIdentityRef struct {
	ID           string `json:"id"`
	ProviderName string `json:"providerName"`
}

var refEscaper = strings.NewReplacer("%", "%25", ";", "%3B")

// String returns the stable string form "id;provider". Separator and escape
// characters inside either part are percent-encoded so the form is unambiguous.
func (r ExternalIdentityRef) String() string {
	if r.ProviderName == "" {
		return refEscaper.Replace(r.ID)
	}
	return refEscaper.Replace(r.ID) + ";" + refEscaper.Replace(r.ProviderName)
}

// ExternalIdentity is a transient projection of an asserted user. It is built
// on demand and never persisted by the provider itself.
type ExternalIdentity struct {
	Ref            ExternalIdentityRef   `json:"ref"`
	ID             string                `json:"id"`
	ProviderName   string                `json:"providerName"`
	PrincipalName  string                `json:"principalName"`
	DeclaredGroups []ExternalIdentityRef `json:"declaredGroups"`
	Properties     map[string]string     `json:"properties"`
}

// ExternalGroup represents a group known to an external provider
type ExternalGroup struct {
	Ref  ExternalIdentityRef `json:"ref"`
	Name string              `json:"name"`
}

// ProviderConfig describes a provider instance to be built by a registered factory
type ProviderConfig struct {
	Name string            `json:"name"`
	Type string            `json:"type"`
	Opts map[string]string `json:"opts,omitempty"`
}

// Provider type constants
const (
	TypeHeader = "header"
)

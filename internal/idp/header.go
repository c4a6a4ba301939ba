package idp

import (
	"context"
	"strings"

	"github.com/maxiofs/headerauth/internal/headerauth"
	"github.com/sirupsen/logrus"
)

// HeaderProviderName is the name under which the header provider registers
const HeaderProviderName = "HeaderExternalIdentityProvider"

// principalPrefix is prepended to the reference string to form principal names
const principalPrefix = "p_"

func init() {
	RegisterProvider(TypeHeader, func(cfg ProviderConfig) (Provider, error) {
		return NewHeaderProvider(cfg.Name), nil
	})
}

// HeaderProvider projects header-asserted user ids into external identities.
// It performs no existence check: the id was already validated by the
// header extractor. It is an identity-assertion provider, not a directory.
type HeaderProvider struct {
	name string
}

// NewHeaderProvider creates a header provider. An empty name selects HeaderProviderName.
func NewHeaderProvider(name string) *HeaderProvider {
	if name == "" {
		name = HeaderProviderName
	}
	logrus.WithField("name", name).Debug("Header identity provider created")
	return &HeaderProvider{name: name}
}

// Name implements Provider
func (p *HeaderProvider) Name() string {
	return p.name
}

// GetUser implements Provider
func (p *HeaderProvider) GetUser(ctx context.Context, userID string) (*ExternalIdentity, error) {
	return p.project(userID, nil)
}

// GetIdentity implements Provider
func (p *HeaderProvider) GetIdentity(ctx context.Context, ref ExternalIdentityRef) (*ExternalIdentity, error) {
	if ref.ProviderName != p.name {
		return nil, nil
	}
	return p.GetUser(ctx, ref.ID)
}

// GetGroup implements Provider. Header identities carry no groups.
func (p *HeaderProvider) GetGroup(ctx context.Context, name string) (*ExternalGroup, error) {
	return nil, nil
}

// Authenticate implements Provider. Only validated header credentials are
// accepted; their profile becomes the identity's properties.
func (p *HeaderProvider) Authenticate(ctx context.Context, credentials any) (*ExternalIdentity, error) {
	cred, ok := credentials.(*headerauth.ValidatedCredential)
	if !ok || cred == nil {
		return nil, ErrUnsupportedCredentials
	}
	return p.project(cred.UserID, cred.ProfileCopy())
}

// ListUsers implements Provider
func (p *HeaderProvider) ListUsers(ctx context.Context) ([]*ExternalIdentity, error) {
	return nil, ErrNotImplemented
}

// ListGroups implements Provider
func (p *HeaderProvider) ListGroups(ctx context.Context) ([]*ExternalGroup, error) {
	return nil, ErrNotImplemented
}

func (p *HeaderProvider) project(userID string, properties map[string]string) (*ExternalIdentity, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}
	if properties == nil {
		properties = map[string]string{}
	}

	ref := ExternalIdentityRef{ID: userID, ProviderName: p.name}
	return &ExternalIdentity{
		Ref:            ref,
		ID:             userID,
		ProviderName:   p.name,
		PrincipalName:  principalPrefix + ref.String(),
		DeclaredGroups: []ExternalIdentityRef{},
		Properties:     properties,
	}, nil
}

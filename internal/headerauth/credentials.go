package headerauth

// ValidatedCredential is the sanitized identity extracted from a trusted
// proxy request. It is created once per request and never shared.
type ValidatedCredential struct {
	UserID  string
	Profile map[string]string
}

// NewValidatedCredential builds a credential, copying the profile
func NewValidatedCredential(userID string, profile map[string]string) *ValidatedCredential {
	p := make(map[string]string, len(profile))
	for k, v := range profile {
		p[k] = v
	}
	return &ValidatedCredential{UserID: userID, Profile: p}
}

// ProfileCopy returns a copy of the profile attributes
func (c *ValidatedCredential) ProfileCopy() map[string]string {
	p := make(map[string]string, len(c.Profile))
	for k, v := range c.Profile {
		p[k] = v
	}
	return p
}

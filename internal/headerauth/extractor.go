package headerauth

import (
	"crypto/subtle"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/sirupsen/logrus"
)

// reservedUsername can never be asserted through a header, whatever the allow-list says
const reservedUsername = "admin"

// Extract decides whether headers carry a legitimate pre-authenticated
// identity. It returns a ValidatedCredential, or a *RejectedError whose
// reason is one of not-applicable, bad-secret or bad-username. Extract never
// touches request or response state.
func Extract(headers http.Header, snap *Snapshot) (*ValidatedCredential, error) {
	remoteUser, hasUser := lookupHeader(headers, snap.remoteUserHeader)
	secret, hasSecret := lookupHeader(headers, SharedSecretHeader)

	if !hasUser || (!hasSecret && snap.secretRequired()) {
		logrus.WithFields(logrus.Fields{
			"remote_user_header":   hasUser,
			"shared_secret_header": hasSecret,
		}).Debug("Request not addressed to header authentication")
		return nil, ErrNotApplicable
	}

	if snap.secretRequired() {
		if snap.sharedSecret == "" {
			logrus.Warn("Header authentication has no shared secret configured; rejecting request")
			return nil, reject(ReasonBadSecret, "no shared secret configured")
		}
		if subtle.ConstantTimeCompare([]byte(secret), []byte(snap.sharedSecret)) != 1 {
			logrus.WithField("remote_user", remoteUser).Warn("Shared secret mismatch")
			return nil, reject(ReasonBadSecret, "shared secret mismatch")
		}
	}

	if strings.TrimSpace(remoteUser) == "" {
		logrus.Warn("Blank remote user header")
		return nil, reject(ReasonBadUsername, "blank username")
	}
	if strings.EqualFold(remoteUser, reservedUsername) {
		logrus.WithField("remote_user", remoteUser).Warn("Reserved username asserted through header")
		return nil, reject(ReasonBadUsername, "reserved username")
	}
	if !snap.usernamePattern.MatchString(remoteUser) {
		logrus.WithField("remote_user", remoteUser).Warn("Username does not match whitelist pattern")
		return nil, reject(ReasonBadUsername, "username not whitelisted")
	}

	logrus.WithField("remote_user", remoteUser).Debug("Found pre-authenticated remote user header")

	return &ValidatedCredential{
		UserID:  remoteUser,
		Profile: extractProfile(headers, snap),
	}, nil
}

// extractProfile copies whitelisted headers verbatim
func extractProfile(headers http.Header, snap *Snapshot) map[string]string {
	profile := make(map[string]string)
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		if snap.profileHeaderPattern.MatchString(name) {
			profile[name] = values[0]
		}
	}
	return profile
}

// lookupHeader finds the first value of a header by case-insensitive name.
// Requests built by net/http have canonical keys; maps built by hand may not.
func lookupHeader(headers http.Header, name string) (string, bool) {
	if values, ok := headers[textproto.CanonicalMIMEHeaderKey(name)]; ok && len(values) > 0 {
		return values[0], true
	}
	for key, values := range headers {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return values[0], true
		}
	}
	return "", false
}

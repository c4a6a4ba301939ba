package headerauth

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// AuthType identifies credentials produced by this package
const AuthType = "HEADER"

// Handler is the HTTP-facing side of header authentication. It reads the
// active configuration from a SnapshotHolder on every call so that
// reconfiguration takes effect between requests.
type Handler struct {
	snapshots *SnapshotHolder
}

// NewHandler creates a Handler bound to a snapshot holder
func NewHandler(snapshots *SnapshotHolder) *Handler {
	return &Handler{snapshots: snapshots}
}

// Snapshot returns the configuration currently in effect
func (h *Handler) Snapshot() *Snapshot {
	return h.snapshots.Load()
}

// ExtractCredentials validates the request headers against the active snapshot
func (h *Handler) ExtractCredentials(r *http.Request) (*ValidatedCredential, error) {
	return Extract(r.Header, h.snapshots.Load())
}

// RequestCredentials never issues a challenge: identities are asserted by
// the upstream proxy, so there is nothing to ask the client for.
func (h *Handler) RequestCredentials(w http.ResponseWriter, r *http.Request) bool {
	return false
}

// DropCredentials expires the configured login cookie, if any
func (h *Handler) DropCredentials(w http.ResponseWriter, r *http.Request) {
	cookie := h.snapshots.Load().LoginCookie()
	if cookie == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:   cookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// AuthenticationFailed records a failed authentication for a request that
// carried header credentials
func (h *Handler) AuthenticationFailed(r *http.Request, err error) {
	logrus.WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"reason": ReasonOf(err),
		"error":  err,
	}).Warn("Header authentication failed")
}

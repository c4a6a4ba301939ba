package middleware

import (
	"context"
	"net/http"

	"github.com/maxiofs/headerauth/internal/headerauth"
	"github.com/maxiofs/headerauth/internal/login"
	"github.com/sirupsen/logrus"
)

// Authenticator runs an authentication chain for a credential
type Authenticator interface {
	Authenticate(ctx context.Context, cred any) *login.ChainResult
}

// AuthRecorder counts authentication attempts by result
type AuthRecorder interface {
	RecordAuthAttempt(result string)
}

// HeaderAuth authenticates requests carrying trusted proxy headers. Requests
// that are not applicable or rejected continue unauthenticated; this
// middleware never answers with a challenge.
func HeaderAuth(handler *headerauth.Handler, chain Authenticator, recorder AuthRecorder) func(http.Handler) http.Handler {
	record := func(result string) {
		if recorder != nil {
			recorder.RecordAuthAttempt(result)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred, err := handler.ExtractCredentials(r)
			if err != nil {
				reason := headerauth.ReasonOf(err)
				if reason != headerauth.ReasonNotApplicable {
					handler.AuthenticationFailed(r, err)
				}
				record(string(reason))
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), cred)
			if !res.Authenticated() {
				if res.Outcome.Kind == login.OutcomeRejected {
					record(string(res.Outcome.Reason))
				} else {
					record("deferred")
				}
				next.ServeHTTP(w, r)
				return
			}

			record("authenticated")
			logrus.WithFields(logrus.Fields{
				"request_id": GetRequestID(r.Context()),
				"user_id":    res.Principal.UserID,
				"auth_type":  headerauth.AuthType,
			}).Debug("Request authenticated")

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), res.Principal)))
		})
	}
}

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p *login.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetPrincipal returns the authenticated principal, if any
func GetPrincipal(ctx context.Context) (*login.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*login.Principal)
	return p, ok && p != nil
}

package login

import (
	"fmt"

	"github.com/maxiofs/headerauth/internal/headerauth"
	"github.com/maxiofs/headerauth/internal/repository"
	"github.com/maxiofs/headerauth/internal/usersync"
)

// OutcomeKind discriminates Outcome
type OutcomeKind int

const (
	// OutcomeDeferred means the step did not handle the credential
	OutcomeDeferred OutcomeKind = iota
	// OutcomePreAuthenticated means the user was asserted by a trusted upstream
	OutcomePreAuthenticated
	// OutcomeRejected means the credential was examined and refused
	OutcomeRejected
)

// Outcome is the result of one authentication step
type Outcome struct {
	Kind   OutcomeKind
	UserID string
	Reason headerauth.RejectReason
}

// Deferred returns the "not mine" outcome
func Deferred() Outcome {
	return Outcome{Kind: OutcomeDeferred}
}

// PreAuthenticated returns an outcome asserting userID
func PreAuthenticated(userID string) Outcome {
	return Outcome{Kind: OutcomePreAuthenticated, UserID: userID}
}

// Rejected returns a refusal with reason
func Rejected(reason headerauth.RejectReason) Outcome {
	return Outcome{Kind: OutcomeRejected, Reason: reason}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomePreAuthenticated:
		return fmt.Sprintf("pre-authenticated(%s)", o.UserID)
	case OutcomeRejected:
		return fmt.Sprintf("rejected(%s)", o.Reason)
	default:
		return "deferred"
	}
}

// State is a step of the login state machine
type State string

const (
	StateIdle                State = "idle"
	StateCredentialPresented State = "credential-presented"
	StateAccepted            State = "accepted"
	StateRejected            State = "rejected"
	StateSyncAttempted       State = "sync-attempted"
	StateDone                State = "done"
)

// PreAuthenticatedLogin marks a login asserted by a trusted upstream. A later
// chain step completes authentication when it finds this marker.
type PreAuthenticatedLogin struct {
	UserID string
}

// SimpleCredentials is the least-privilege credential substitute staged for
// later steps. The password is always empty.
type SimpleCredentials struct {
	UserID   string
	Password []byte
}

// SharedState is the per-request state passed between chain steps
type SharedState struct {
	PreAuthLogin *PreAuthenticatedLogin
	Credentials  *SimpleCredentials
	LoginName    string
}

// Staged reports whether a pre-authenticated login has been staged
func (s *SharedState) Staged() bool {
	return s != nil && s.PreAuthLogin != nil
}

// Result is what Module.Login reports back to the caller
type Result struct {
	Outcome Outcome
	Sync    *usersync.Outcome
	Trace   []State
}

// Principal is an authenticated user
type Principal struct {
	UserID        string                 `json:"userId"`
	PrincipalName string                 `json:"principalName"`
	Record        *repository.UserRecord `json:"record,omitempty"`
}

package headerauth

import "errors"

// RejectReason classifies why a request did not yield a credential
type RejectReason string

const (
	ReasonNotApplicable RejectReason = "not-applicable"
	ReasonBadSecret     RejectReason = "bad-secret"
	ReasonBadUsername   RejectReason = "bad-username"
)

// RejectedError is returned by Extract when a request carries no usable
// pre-authenticated identity
type RejectedError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return "header credentials rejected: " + string(e.Reason)
	}
	return "header credentials rejected: " + string(e.Reason) + ": " + e.Detail
}

// Is matches any RejectedError with the same reason, so the sentinels below
// work with errors.Is regardless of detail.
func (e *RejectedError) Is(target error) bool {
	var t *RejectedError
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

// Sentinel rejections
var (
	ErrNotApplicable = &RejectedError{Reason: ReasonNotApplicable}
	ErrBadSecret     = &RejectedError{Reason: ReasonBadSecret}
	ErrBadUsername   = &RejectedError{Reason: ReasonBadUsername}
)

// ReasonOf returns the rejection reason carried by err, or "" if err is not a rejection
func ReasonOf(err error) RejectReason {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}

func reject(reason RejectReason, detail string) error {
	return &RejectedError{Reason: reason, Detail: detail}
}

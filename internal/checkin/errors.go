package checkin

import "fmt"

// Kind classifies a failed submission.
type Kind string

const (
	KindInvalidImage       Kind = "invalid_image"
	KindRecognitionFailure Kind = "recognition_failure"
	KindPolicyRejection    Kind = "policy_rejection"
	KindDataIntegrity      Kind = "data_integrity"
	KindUnavailable        Kind = "unavailable"
)

// Retryable reports whether the same submission may succeed later.
func (k Kind) Retryable() bool {
	return k == KindUnavailable
}

// Error is the single failure type returned by Service.Mark. Reason is safe to
// show to the person in front of the camera.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

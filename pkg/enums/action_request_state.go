package enums

import "fmt"

// ActionRequestState is the review state of an action request.
type ActionRequestState string

const (
	ActionRequestPending  ActionRequestState = "PENDING"
	ActionRequestApproved ActionRequestState = "APPROVED"
	ActionRequestRejected ActionRequestState = "REJECTED"
)

var validActionRequestStates = []ActionRequestState{
	ActionRequestPending,
	ActionRequestApproved,
	ActionRequestRejected,
}

// String implements fmt.Stringer.
func (a ActionRequestState) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ActionRequestState.
func (a ActionRequestState) IsValid() bool {
	for _, candidate := range validActionRequestStates {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActionRequestState converts raw input into a ActionRequestState.
func ParseActionRequestState(value string) (ActionRequestState, error) {
	for _, candidate := range validActionRequestStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid action request state %q", value)
}

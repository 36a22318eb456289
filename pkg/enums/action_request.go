package enums

import "fmt"

// ActionRequestKind is the kind of customer request awaiting staff review.
type ActionRequestKind string

const (
	ActionRequestCancel ActionRequestKind = "CANCEL"
	ActionRequestReturn ActionRequestKind = "RETURN"
)

var validActionRequestKinds = []ActionRequestKind{
	ActionRequestCancel,
	ActionRequestReturn,
}

// String implements fmt.Stringer.
func (a ActionRequestKind) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ActionRequestKind.
func (a ActionRequestKind) IsValid() bool {
	for _, candidate := range validActionRequestKinds {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActionRequestKind converts raw input into a ActionRequestKind.
func ParseActionRequestKind(value string) (ActionRequestKind, error) {
	for _, candidate := range validActionRequestKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid action request kind %q", value)
}

package enums

import "fmt"

// CancellationReason is the customer-selected reason for cancelling an item.
type CancellationReason string

const (
	CancellationReasonOrderByMistake  CancellationReason = "ORDER_BY_MISTAKE"
	CancellationReasonFoundCheaper    CancellationReason = "FOUND_CHEAPER"
	CancellationReasonDeliveryTooLate CancellationReason = "DELIVERY_TOO_LATE"
	CancellationReasonChangedMind     CancellationReason = "CHANGED_MIND"
	CancellationReasonWrongItem       CancellationReason = "ORDERED_WRONG_ITEM"
	CancellationReasonDuplicateOrder  CancellationReason = "DUPLICATE_ORDER"
	CancellationReasonOther           CancellationReason = "OTHER"
)

var validCancellationReasons = []CancellationReason{
	CancellationReasonOrderByMistake,
	CancellationReasonFoundCheaper,
	CancellationReasonDeliveryTooLate,
	CancellationReasonChangedMind,
	CancellationReasonWrongItem,
	CancellationReasonDuplicateOrder,
	CancellationReasonOther,
}

// String implements fmt.Stringer.
func (c CancellationReason) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CancellationReason.
func (c CancellationReason) IsValid() bool {
	for _, candidate := range validCancellationReasons {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCancellationReason converts raw input into a CancellationReason.
func ParseCancellationReason(value string) (CancellationReason, error) {
	for _, candidate := range validCancellationReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cancellation reason %q", value)
}

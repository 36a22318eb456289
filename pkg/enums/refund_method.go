package enums

import "fmt"

// RefundMethod is the channel a refund was paid through.
type RefundMethod string

const (
	RefundMethodGateway     RefundMethod = "GATEWAY"
	RefundMethodWallet      RefundMethod = "WALLET"
	RefundMethodStoreCredit RefundMethod = "STORE_CREDIT"
)

var validRefundMethods = []RefundMethod{
	RefundMethodGateway,
	RefundMethodWallet,
	RefundMethodStoreCredit,
}

// String implements fmt.Stringer.
func (r RefundMethod) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RefundMethod.
func (r RefundMethod) IsValid() bool {
	for _, candidate := range validRefundMethods {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRefundMethod converts raw input into a RefundMethod.
func ParseRefundMethod(value string) (RefundMethod, error) {
	for _, candidate := range validRefundMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund method %q", value)
}

package enums

import "fmt"

// WalletTransactionKind is the direction of a wallet ledger row.
type WalletTransactionKind string

const (
	WalletCredit WalletTransactionKind = "CREDIT"
	WalletDebit  WalletTransactionKind = "DEBIT"
)

var validWalletTransactionKinds = []WalletTransactionKind{
	WalletCredit,
	WalletDebit,
}

// String implements fmt.Stringer.
func (w WalletTransactionKind) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletTransactionKind.
func (w WalletTransactionKind) IsValid() bool {
	for _, candidate := range validWalletTransactionKinds {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWalletTransactionKind converts raw input into a WalletTransactionKind.
func ParseWalletTransactionKind(value string) (WalletTransactionKind, error) {
	for _, candidate := range validWalletTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction kind %q", value)
}

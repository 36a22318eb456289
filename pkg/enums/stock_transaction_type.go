package enums

import "fmt"

// StockTransactionType classifies a stock ledger movement.
type StockTransactionType string

const (
	StockTxnReserve        StockTransactionType = "RESERVE"
	StockTxnRelease        StockTransactionType = "RELEASE"
	StockTxnManualAdd      StockTransactionType = "MANUAL_ADD"
	StockTxnManualSubtract StockTransactionType = "MANUAL_SUBTRACT"
	StockTxnRestock        StockTransactionType = "RESTOCK"
)

var validStockTransactionTypes = []StockTransactionType{
	StockTxnReserve,
	StockTxnRelease,
	StockTxnManualAdd,
	StockTxnManualSubtract,
	StockTxnRestock,
}

// String implements fmt.Stringer.
func (s StockTransactionType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StockTransactionType.
func (s StockTransactionType) IsValid() bool {
	for _, candidate := range validStockTransactionTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStockTransactionType converts raw input into a StockTransactionType.
func ParseStockTransactionType(value string) (StockTransactionType, error) {
	for _, candidate := range validStockTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock transaction type %q", value)
}

// Decrements reports whether the movement removes units from stock.
func (s StockTransactionType) Decrements() bool {
	return s == StockTxnReserve || s == StockTxnManualSubtract
}

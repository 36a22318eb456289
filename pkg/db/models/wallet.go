package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// WalletAccount holds a user's store balance. BalanceCents never goes negative.
type WalletAccount struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_wallet_accounts_user"`
	BalanceCents int64     `gorm:"column:balance_cents;not null;default:0;check:chk_wallet_accounts_balance,balance_cents >= 0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *WalletAccount) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}

// WalletTransaction is an immutable wallet ledger row.
type WalletTransaction struct {
	ID                uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	AccountID         uuid.UUID                   `gorm:"column:account_id;type:uuid;not null;index;uniqueIndex:ux_wallet_transactions_idempotency,where:idempotency_key IS NOT NULL"`
	TransactionRef    string                      `gorm:"column:transaction_ref;not null;uniqueIndex:ux_wallet_transactions_ref"`
	Kind              enums.WalletTransactionKind `gorm:"column:kind;type:text;not null"`
	AmountCents       int64                       `gorm:"column:amount_cents;not null;check:chk_wallet_transactions_amount,amount_cents > 0"`
	BalanceAfterCents int64                       `gorm:"column:balance_after_cents;not null"`
	IdempotencyKey    *string                     `gorm:"column:idempotency_key;uniqueIndex:ux_wallet_transactions_idempotency,where:idempotency_key IS NOT NULL"`
	Reference         string                      `gorm:"column:reference"`
	Description       string                      `gorm:"column:description"`
	Meta              json.RawMessage             `gorm:"column:meta;type:jsonb"`
	CreatedAt         time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

func (w *WalletTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}

package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

const idempotencyIndex = "ux_wallet_transactions_idempotency"

// Repository covers wallet accounts and their append-only ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureAccount(ctx context.Context, userID uuid.UUID) error
	LockAccount(ctx context.Context, userID uuid.UUID) (*models.WalletAccount, error)
	FindAccount(ctx context.Context, userID uuid.UUID) (*models.WalletAccount, error)
	SetBalance(ctx context.Context, accountID uuid.UUID, balanceCents int64) error
	FindByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*models.WalletTransaction, error)
	AppendTransaction(ctx context.Context, txn *models.WalletTransaction) error
	ListTransactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureAccount inserts an empty account unless the user already has one.
func (r *repository) EnsureAccount(ctx context.Context, userID uuid.UUID) error {
	account := &models.WalletAccount{UserID: userID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(account).Error
}

func (r *repository) LockAccount(ctx context.Context, userID uuid.UUID) (*models.WalletAccount, error) {
	var account models.WalletAccount
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&account, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindAccount(ctx context.Context, userID uuid.UUID) (*models.WalletAccount, error) {
	var account models.WalletAccount
	if err := r.db.WithContext(ctx).First(&account, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) SetBalance(ctx context.Context, accountID uuid.UUID, balanceCents int64) error {
	return r.db.WithContext(ctx).
		Model(&models.WalletAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]any{"balance_cents": balanceCents, "updated_at": time.Now().UTC()}).Error
}

// FindByIdempotencyKey returns nil, nil when the key has not been applied.
func (r *repository) FindByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND idempotency_key = ?", accountID, key).
		First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) AppendTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// ListTransactions pages an account's ledger newest first.
func (r *repository) ListTransactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	var rows []models.WalletTransaction
	query := r.db.WithContext(ctx).
		Where("account_id = ?", accountID)
	if err := pagination.Newest(query, cursor, limit).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Trim(rows, limit, func(row models.WalletTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return rows, next, nil
}

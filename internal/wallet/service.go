package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/db"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
	"github.com/angelmondragon/shopcore-backend/pkg/money"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreditInput adds money to a user's wallet. IdempotencyKey is optional; when
// set, a second credit with the same key is skipped.
type CreditInput struct {
	UserID         uuid.UUID
	AmountCents    int64
	Description    string
	Reference      string
	IdempotencyKey string
	Meta           map[string]any
}

// DebitInput removes money from a user's wallet.
type DebitInput struct {
	UserID         uuid.UUID
	AmountCents    int64
	Description    string
	Reference      string
	IdempotencyKey string
	Meta           map[string]any
}

// Summary is the read model returned to wallet owners.
type Summary struct {
	UserID       uuid.UUID                  `json:"user_id"`
	BalanceCents int64                      `json:"balance_cents"`
	Balance      string                     `json:"balance"`
	Transactions []models.WalletTransaction `json:"transactions"`
	NextCursor   string                     `json:"next_cursor,omitempty"`
}

type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
}

// Service is the wallet ledger.
type Service struct {
	repo    Repository
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:    params.Repo,
		tx:      params.Tx,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// Credit applies a credit in its own transaction. A nil transaction with a nil
// error means the idempotency key was already applied.
func (s *Service) Credit(ctx context.Context, input CreditInput) (*models.WalletTransaction, error) {
	var txn *models.WalletTransaction
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		var err error
		txn, err = s.CreditTx(ctx, tx, input)
		return err
	})
	return txn, err
}

// Debit applies a debit in its own transaction.
func (s *Service) Debit(ctx context.Context, input DebitInput) (*models.WalletTransaction, error) {
	var txn *models.WalletTransaction
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		var err error
		txn, err = s.DebitTx(ctx, tx, input)
		return err
	})
	return txn, err
}

// CreditTx applies a credit inside the caller's transaction.
func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.WalletTransaction, error) {
	return s.apply(ctx, tx, entry{
		kind:           enums.WalletCredit,
		userID:         input.UserID,
		amount:         input.AmountCents,
		description:    input.Description,
		reference:      input.Reference,
		idempotencyKey: input.IdempotencyKey,
		meta:           input.Meta,
	})
}

// DebitTx applies a debit inside the caller's transaction.
func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, input DebitInput) (*models.WalletTransaction, error) {
	return s.apply(ctx, tx, entry{
		kind:           enums.WalletDebit,
		userID:         input.UserID,
		amount:         input.AmountCents,
		description:    input.Description,
		reference:      input.Reference,
		idempotencyKey: input.IdempotencyKey,
		meta:           input.Meta,
	})
}

// Balance returns the user's balance; users without an account have zero.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	account, err := s.repo.FindAccount(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet account")
	}
	return account.BalanceCents, nil
}

// ListTransactions pages the user's wallet history newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*Summary, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	summary := &Summary{UserID: userID, Balance: money.Format(0), Transactions: []models.WalletTransaction{}}
	account, err := s.repo.FindAccount(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return summary, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet account")
	}
	rows, next, err := s.repo.ListTransactions(ctx, account.ID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet transactions")
	}
	summary.BalanceCents = account.BalanceCents
	summary.Balance = money.Format(account.BalanceCents)
	summary.Transactions = rows
	summary.NextCursor = next
	return summary, nil
}

type entry struct {
	kind           enums.WalletTransactionKind
	userID         uuid.UUID
	amount         int64
	description    string
	reference      string
	idempotencyKey string
	meta           map[string]any
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, e entry) (*models.WalletTransaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for wallet movement")
	}
	if e.userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if e.amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	e.idempotencyKey = strings.TrimSpace(e.idempotencyKey)

	var meta json.RawMessage
	if len(e.meta) > 0 {
		raw, err := json.Marshal(e.meta)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid wallet meta")
		}
		meta = raw
	}

	var result *models.WalletTransaction
	// The savepoint keeps the caller's transaction usable if the insert loses
	// a race on the idempotency index.
	err := tx.Transaction(func(inner *gorm.DB) error {
		repo := s.repo.WithTx(inner)
		if err := repo.EnsureAccount(ctx, e.userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet account")
		}
		account, err := repo.LockAccount(ctx, e.userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet account")
		}

		if e.idempotencyKey != "" {
			existing, err := repo.FindByIdempotencyKey(ctx, account.ID, e.idempotencyKey)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check wallet idempotency")
			}
			if existing != nil {
				return errAlreadyApplied
			}
		}

		balance := account.BalanceCents
		switch e.kind {
		case enums.WalletCredit:
			balance += e.amount
		case enums.WalletDebit:
			if e.amount > account.BalanceCents {
				return pkgerrors.New(pkgerrors.CodeInsufficientBalance,
					fmt.Sprintf("Insufficient wallet balance. Available: %s", money.Format(account.BalanceCents)))
			}
			balance -= e.amount
		}

		row := &models.WalletTransaction{
			AccountID:         account.ID,
			TransactionRef:    NewTransactionRef(),
			Kind:              e.kind,
			AmountCents:       e.amount,
			BalanceAfterCents: balance,
			Reference:         e.reference,
			Description:       e.description,
			Meta:              meta,
		}
		if e.idempotencyKey != "" {
			key := e.idempotencyKey
			row.IdempotencyKey = &key
		}
		if err := repo.AppendTransaction(ctx, row); err != nil {
			if db.IsUniqueViolation(err, idempotencyIndex) {
				return errAlreadyApplied
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append wallet transaction")
		}
		if err := repo.SetBalance(ctx, account.ID, balance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
		}
		result = row
		return nil
	})
	if errors.Is(err, errAlreadyApplied) {
		s.metrics.WalletDuplicate()
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"user_id":         e.userID.String(),
			"idempotency_key": e.idempotencyKey,
		}), "wallet movement already applied")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.metrics.WalletMovement(e.kind.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"user_id":         e.userID.String(),
		"kind":            e.kind.String(),
		"amount_cents":    e.amount,
		"transaction_ref": result.TransactionRef,
		"reference":       e.reference,
	}), "wallet movement recorded")
	return result, nil
}

var errAlreadyApplied = errors.New("wallet movement already applied")

// NewTransactionRef returns "TXN" followed by eight upper-case hex characters.
func NewTransactionRef() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TXN" + strings.ToUpper(raw[:8])
}

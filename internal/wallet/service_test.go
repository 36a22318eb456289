package wallet

import (
	"context"
	"io"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/db"
	"github.com/angelmondragon/shopcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

func newTestService(t *testing.T) (*Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t, "wallet")
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(client.DB()),
		Tx:     client,
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc, client
}

func TestCreditCreatesAccountAndLedgerRow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	txn, err := svc.Credit(ctx, CreditInput{UserID: user, AmountCents: 25000, Description: "Refund", Reference: "ORD-1"})
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, enums.WalletCredit, txn.Kind)
	assert.Equal(t, int64(25000), txn.BalanceAfterCents)
	assert.Regexp(t, regexp.MustCompile(`^TXN[0-9A-F]{8}$`), txn.TransactionRef)
	assert.Nil(t, txn.IdempotencyKey)

	balance, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), balance)
}

func TestCreditIsIdempotentPerKey(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	key := "refund:cancel:item:" + uuid.NewString()

	first, err := svc.Credit(ctx, CreditInput{UserID: user, AmountCents: 117000, IdempotencyKey: key})
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.Credit(ctx, CreditInput{UserID: user, AmountCents: 117000, IdempotencyKey: key})
	require.NoError(t, err)
	assert.Nil(t, second)

	balance, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(117000), balance)

	var count int64
	require.NoError(t, client.DB().Model(&models.WalletTransaction{}).Where("idempotency_key = ?", key).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDuplicateInsideCallerTransactionKeepsItUsable(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := svc.CreditTx(ctx, tx, CreditInput{UserID: user, AmountCents: 500, IdempotencyKey: "k1"}); err != nil {
			return err
		}
		dup, err := svc.CreditTx(ctx, tx, CreditInput{UserID: user, AmountCents: 500, IdempotencyKey: "k1"})
		if err != nil {
			return err
		}
		assert.Nil(t, dup)
		_, err = svc.CreditTx(ctx, tx, CreditInput{UserID: user, AmountCents: 300, IdempotencyKey: "k2"})
		return err
	})
	require.NoError(t, err)

	balance, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(800), balance)
}

func TestDebit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	_, err := svc.Credit(ctx, CreditInput{UserID: user, AmountCents: 1000})
	require.NoError(t, err)

	_, err = svc.Debit(ctx, DebitInput{UserID: user, AmountCents: 1500})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientBalance))

	txn, err := svc.Debit(ctx, DebitInput{UserID: user, AmountCents: 400, Reference: "ORD-2"})
	require.NoError(t, err)
	assert.Equal(t, enums.WalletDebit, txn.Kind)
	assert.Equal(t, int64(600), txn.BalanceAfterCents)

	balance, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(600), balance)
}

func TestDebitWithoutAccountIsInsufficient(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Debit(context.Background(), DebitInput{UserID: uuid.New(), AmountCents: 1})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientBalance))
}

func TestAmountMustBePositive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, CreditInput{UserID: uuid.New(), AmountCents: 0})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.Debit(ctx, DebitInput{UserID: uuid.New(), AmountCents: -5})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.Credit(ctx, CreditInput{AmountCents: 10})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestListTransactionsPages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	empty, err := svc.ListTransactions(ctx, user, pagination.Params{})
	require.NoError(t, err)
	assert.Zero(t, empty.BalanceCents)
	assert.Empty(t, empty.Transactions)

	for i := 0; i < 3; i++ {
		_, err := svc.Credit(ctx, CreditInput{UserID: user, AmountCents: 100})
		require.NoError(t, err)
	}

	page, err := svc.ListTransactions(ctx, user, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(300), page.BalanceCents)
	assert.Len(t, page.Transactions, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.ListTransactions(ctx, user, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Transactions, 1)
	assert.Empty(t, rest.NextCursor)

	_, err = svc.ListTransactions(ctx, user, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestNewTransactionRef(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		ref := NewTransactionRef()
		if len(ref) != 11 {
			t.Fatalf("unexpected ref %q", ref)
		}
		seen[ref] = struct{}{}
	}
	if len(seen) < 50 {
		t.Fatalf("expected unique refs, got %d", len(seen))
	}
}

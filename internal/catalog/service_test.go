package catalog

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestEnsureDefaultVariantPromotesOldest(t *testing.T) {
	client := dbtest.Open(t, "catalog")
	conn := client.DB()
	svc, err := NewService(NewRepository(conn), client, testLogger())
	require.NoError(t, err)

	product := dbtest.Product(t, conn, "Kurta", 90000, 90000, 0)
	oldest := dbtest.Variant(t, conn, product.ID, "white", 3, false)
	dbtest.Variant(t, conn, product.ID, "black", 2, false)
	require.NoError(t, conn.Model(&models.ProductVariant{}).Where("id = ?", oldest.ID).
		Update("created_at", time.Now().Add(-time.Hour)).Error)
	// drift the cached total to prove it is re-derived
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", product.ID).Update("stock_quantity", 99).Error)

	res, err := svc.EnsureDefaultVariant(context.Background(), product.ID)
	require.NoError(t, err)
	assert.True(t, res.Promoted)
	require.NotNil(t, res.DefaultVariantID)
	assert.Equal(t, oldest.ID, *res.DefaultVariantID)
	assert.Equal(t, 5, res.StockQuantity)

	var reloaded []models.ProductVariant
	require.NoError(t, conn.Where("product_id = ?", product.ID).Find(&reloaded).Error)
	for _, v := range reloaded {
		assert.Equal(t, v.ID == oldest.ID, v.IsDefault, "variant %s", v.Color)
	}

	var p models.Product
	require.NoError(t, conn.First(&p, "id = ?", product.ID).Error)
	assert.Equal(t, 5, p.StockQuantity)

	again, err := svc.EnsureDefaultVariant(context.Background(), product.ID)
	require.NoError(t, err)
	assert.False(t, again.Promoted)
	assert.Empty(t, again.Demoted)
}

func TestEnsureDefaultVariantWithoutVariants(t *testing.T) {
	client := dbtest.Open(t, "catalog")
	svc, err := NewService(NewRepository(client.DB()), client, testLogger())
	require.NoError(t, err)

	product := dbtest.Product(t, client.DB(), "Dupatta", 20000, 25000, 7)
	res, err := svc.EnsureDefaultVariant(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Nil(t, res.DefaultVariantID)
	assert.Equal(t, 7, res.StockQuantity)
}

func TestEnsureDefaultVariantUnknownProduct(t *testing.T) {
	client := dbtest.Open(t, "catalog")
	svc, err := NewService(NewRepository(client.DB()), client, testLogger())
	require.NoError(t, err)

	_, err = svc.EnsureDefaultVariant(context.Background(), uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = svc.EnsureDefaultVariant(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

// stubRepo lets the test hold several defaults, which the partial unique
// index would refuse in a real database.
type stubRepo struct {
	variants []models.ProductVariant
	calls    []string
}

func (s *stubRepo) WithTx(*gorm.DB) Repository { return s }

func (s *stubRepo) LockProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	return &models.Product{ID: id}, nil
}

func (s *stubRepo) ListVariants(context.Context, uuid.UUID) ([]models.ProductVariant, error) {
	return s.variants, nil
}

func (s *stubRepo) SetDefault(_ context.Context, ids []uuid.UUID, isDefault bool) error {
	if len(ids) == 0 {
		return nil
	}
	if isDefault {
		s.calls = append(s.calls, "promote")
	} else {
		s.calls = append(s.calls, "demote")
	}
	for i := range s.variants {
		for _, id := range ids {
			if s.variants[i].ID == id {
				s.variants[i].IsDefault = isDefault
			}
		}
	}
	return nil
}

func (s *stubRepo) SyncProductStock(context.Context, uuid.UUID) (int, error) {
	total := 0
	for _, v := range s.variants {
		total += v.Stock
	}
	return total, nil
}

type directTx struct{}

func (directTx) WithRetryTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestEnsureDefaultVariantDemotesExtras(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	repo := &stubRepo{variants: []models.ProductVariant{
		{ID: a, IsDefault: false, Stock: 1},
		{ID: b, IsDefault: true, Stock: 2},
		{ID: c, IsDefault: true, Stock: 3},
	}}
	svc, err := NewService(repo, directTx{}, testLogger())
	require.NoError(t, err)

	res, err := svc.EnsureDefaultVariant(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, res.Promoted)
	require.NotNil(t, res.DefaultVariantID)
	assert.Equal(t, b, *res.DefaultVariantID)
	assert.Equal(t, []uuid.UUID{c}, res.Demoted)
	assert.Equal(t, 6, res.StockQuantity)
	assert.Equal(t, []string{"demote"}, repo.calls)
	assert.False(t, repo.variants[2].IsDefault)
}

func TestNewServiceRequiresDeps(t *testing.T) {
	if _, err := NewService(nil, directTx{}, testLogger()); err == nil {
		t.Fatal("expected error for nil repo")
	}
	if _, err := NewService(&stubRepo{}, nil, testLogger()); err == nil {
		t.Fatal("expected error for nil tx")
	}
	if _, err := NewService(&stubRepo{}, directTx{}, nil); err == nil {
		t.Fatal("expected error for nil logger")
	}
}

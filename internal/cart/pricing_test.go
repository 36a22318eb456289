package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopcore-backend/pkg/db"
	"github.com/angelmondragon/shopcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
)

func newPricer(t *testing.T) (*Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t, "cart")
	svc, err := NewService(NewRepository(client.DB()))
	require.NoError(t, err)
	return svc, client
}

func TestSnapshotValidate(t *testing.T) {
	productID := uuid.New()
	nilVariant := uuid.Nil
	cases := []struct {
		name string
		snap Snapshot
	}{
		{"empty", Snapshot{}},
		{"missing product", Snapshot{Lines: []Line{{Quantity: 1}}}},
		{"nil variant", Snapshot{Lines: []Line{{ProductID: productID, VariantID: &nilVariant, Quantity: 1}}}},
		{"zero quantity", Snapshot{Lines: []Line{{ProductID: productID}}}},
		{"too many", Snapshot{Lines: []Line{{ProductID: productID, Quantity: maxLineQuantity + 1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.snap.Validate()
			if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSnapshotMergeFoldsDuplicates(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	variant := uuid.New()
	merged := Snapshot{Lines: []Line{
		{ProductID: a, Quantity: 1},
		{ProductID: b, VariantID: &variant, Quantity: 2},
		{ProductID: a, Quantity: 3},
		{ProductID: b, Quantity: 1},
	}}.Merge()

	require.Len(t, merged.Lines, 3)
	assert.Equal(t, a, merged.Lines[0].ProductID)
	assert.Equal(t, 4, merged.Lines[0].Quantity)
	assert.Equal(t, 2, merged.Lines[1].Quantity)
	assert.Nil(t, merged.Lines[2].VariantID)
}

func TestPriceSnapshotsCatalog(t *testing.T) {
	svc, client := newPricer(t)
	conn := client.DB()

	saree := dbtest.Product(t, conn, "Saree", 130000, 150000, 0)
	green := dbtest.Variant(t, conn, saree.ID, "green", 4, true)
	red := dbtest.Variant(t, conn, saree.ID, "red", 2, false)
	override := int64(125000)
	require.NoError(t, conn.Model(&models.ProductVariant{}).Where("id = ?", red.ID).Update("price_cents", override).Error)

	scarf := dbtest.Product(t, conn, "Scarf", 35000, 35000, 10)

	priced, err := svc.Price(context.Background(), nil, Snapshot{Lines: []Line{
		{ProductID: saree.ID, Quantity: 1},
		{ProductID: saree.ID, VariantID: &red.ID, Quantity: 1},
		{ProductID: scarf.ID, Quantity: 2},
	}})
	require.NoError(t, err)
	require.Len(t, priced.Lines, 3)

	first := priced.Lines[0]
	require.NotNil(t, first.VariantID)
	assert.Equal(t, green.ID, *first.VariantID)
	assert.Equal(t, "green", first.VariantColor)
	assert.Equal(t, int64(130000), first.LineTotalCents)
	assert.True(t, first.Discounted)

	assert.Equal(t, int64(125000), priced.Lines[1].UnitPriceCents)
	assert.Equal(t, "red", priced.Lines[1].VariantColor)

	assert.Nil(t, priced.Lines[2].VariantID)
	assert.Equal(t, int64(70000), priced.Lines[2].LineTotalCents)
	assert.False(t, priced.Lines[2].Discounted)

	assert.Equal(t, int64(325000), priced.SubtotalCents)
	assert.Equal(t, 4, priced.ItemCount)
	assert.True(t, priced.HasDiscountedLine)

	summary := priced.Summary()
	assert.Equal(t, 4, summary.ItemCount)
	assert.Equal(t, int64(325000), summary.TotalCents)
	assert.True(t, summary.HasDiscountedLine)
}

func TestPriceRejectsUnknownAndInactive(t *testing.T) {
	svc, client := newPricer(t)
	conn := client.DB()
	ctx := context.Background()

	_, err := svc.Price(ctx, nil, Snapshot{Lines: []Line{{ProductID: uuid.New(), Quantity: 1}}})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	gone := dbtest.Product(t, conn, "Retired", 1000, 1000, 5)
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", gone.ID).Update("is_active", false).Error)
	_, err = svc.Price(ctx, nil, Snapshot{Lines: []Line{{ProductID: gone.ID, Quantity: 1}}})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "Retired is no longer available")
}

func TestPriceRejectsForeignVariant(t *testing.T) {
	svc, client := newPricer(t)
	conn := client.DB()

	a := dbtest.Product(t, conn, "A", 1000, 1000, 0)
	b := dbtest.Product(t, conn, "B", 1000, 1000, 0)
	bVariant := dbtest.Variant(t, conn, b.ID, "blue", 1, true)

	_, err := svc.Price(context.Background(), nil, Snapshot{Lines: []Line{{ProductID: a.ID, VariantID: &bVariant.ID, Quantity: 1}}})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

// Package dbtest opens throwaway sqlite databases carrying the full schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/shopcore-backend/pkg/db"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
)

// Open returns a client over a private in-memory database migrated from the
// gorm models. Row locks are ignored by the sqlite dialect.
func Open(t testing.TB, name string) *db.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db.NewFromGorm(conn)
}

// Product inserts a product without variants.
func Product(t testing.TB, conn *gorm.DB, name string, priceCents, mrpCents int64, stock int) models.Product {
	t.Helper()
	p := models.Product{Name: name, PriceCents: priceCents, MRPCents: mrpCents, StockQuantity: stock, IsActive: true}
	if err := conn.Create(&p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

// Variant inserts a variant and re-derives the product total.
func Variant(t testing.TB, conn *gorm.DB, productID uuid.UUID, color string, stock int, isDefault bool) models.ProductVariant {
	t.Helper()
	v := models.ProductVariant{ProductID: productID, Color: color, Stock: stock, IsDefault: isDefault}
	if err := conn.Create(&v).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	if err := conn.Exec(
		"UPDATE products SET stock_quantity = (SELECT COALESCE(SUM(stock), 0) FROM product_variants WHERE product_id = ?) WHERE id = ?",
		productID, productID,
	).Error; err != nil {
		t.Fatalf("sync product stock: %v", err)
	}
	return v
}

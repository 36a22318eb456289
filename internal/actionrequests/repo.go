package actionrequests

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

// Repository persists action requests and reads the items they target.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *models.ActionRequest) error
	Find(ctx context.Context, id uuid.UUID) (*models.ActionRequest, error)
	Lock(ctx context.Context, id uuid.UUID) (*models.ActionRequest, error)
	FindPending(ctx context.Context, itemID uuid.UUID, kind enums.ActionRequestKind) (*models.ActionRequest, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListPending(ctx context.Context, params pagination.Params) ([]models.ActionRequest, string, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, req *models.ActionRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.ActionRequest, error) {
	var req models.ActionRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) Lock(ctx context.Context, id uuid.UUID) (*models.ActionRequest, error) {
	var req models.ActionRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// FindPending returns nil, nil when no pending request exists.
func (r *repository) FindPending(ctx context.Context, itemID uuid.UUID, kind enums.ActionRequestKind) (*models.ActionRequest, error) {
	var req models.ActionRequest
	err := r.db.WithContext(ctx).
		Where("order_item_id = ? AND kind = ? AND state = ?", itemID, kind, enums.ActionRequestPending).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.ActionRequest{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListPending pages pending requests oldest first, the order staff work them.
func (r *repository) ListPending(ctx context.Context, params pagination.Params) ([]models.ActionRequest, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	var rows []models.ActionRequest
	query := r.db.WithContext(ctx).
		Where("state = ?", enums.ActionRequestPending)
	if err := pagination.Oldest(query, cursor, limit).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Trim(rows, limit, func(row models.ActionRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return rows, next, nil
}

func (r *repository) FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", itemID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

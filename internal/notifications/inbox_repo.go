package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

// InboxRepository persists customer notifications.
type InboxRepository interface {
	Create(ctx context.Context, n *models.Notification) (bool, error)
	OrderOwner(ctx context.Context, orderID uuid.UUID) (OrderOwner, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]models.Notification, string, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID, now time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}

// OrderOwner is the slice of an order a notification needs.
type OrderOwner struct {
	UserID      uuid.UUID
	OrderNumber string
}

type ListParams struct {
	pagination.Params
	UnreadOnly bool
}

var ErrOrderNotFound = errors.New("order not found")

type inboxRepository struct {
	db *gorm.DB
}

func NewInboxRepository(db *gorm.DB) InboxRepository {
	return &inboxRepository{db: db}
}

// Create inserts n unless a row for the same event already exists. It
// reports whether a row was written.
func (r *inboxRepository) Create(ctx context.Context, n *models.Notification) (bool, error) {
	if !n.Type.IsValid() {
		return false, fmt.Errorf("invalid notification type %q", n.Type)
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(n)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *inboxRepository) OrderOwner(ctx context.Context, orderID uuid.UUID) (OrderOwner, error) {
	var row struct {
		UserID      uuid.UUID
		OrderNumber string
	}
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("user_id", "order_number").
		Where("id = ?", orderID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OrderOwner{}, ErrOrderNotFound
	}
	if err != nil {
		return OrderOwner{}, err
	}
	return OrderOwner{UserID: row.UserID, OrderNumber: row.OrderNumber}, nil
}

func (r *inboxRepository) ListForUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]models.Notification, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if params.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	var rows []models.Notification
	if err := pagination.Newest(query, cursor, limit).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Trim(rows, limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return rows, next, nil
}

// MarkRead stamps one notification; false means it does not belong to userID.
func (r *inboxRepository) MarkRead(ctx context.Context, userID, id uuid.UUID, now time.Time) (bool, error) {
	var n models.Notification
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Take(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if n.ReadAt != nil {
		return true, nil
	}
	return true, r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		Update("read_at", now).Error
}

func (r *inboxRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", now)
	return res.RowsAffected, res.Error
}

package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	"github.com/angelmondragon/marketcart-backend/pkg/pagination"
)

// Repository persists inbox rows.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) error
	Page(ctx context.Context, scope inboxScope, cursor *pagination.Cursor, limit int) ([]models.Notification, *pagination.Cursor, error)
	CountUnread(ctx context.Context, scope inboxScope) (int64, error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, now time.Time) (markOutcome, error)
	MarkAllRead(ctx context.Context, scope inboxScope, now time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// inboxScope narrows queries to one recipient, optionally to one role and to
// unread rows.
type inboxScope struct {
	UserID     uuid.UUID
	Role       enums.Role
	UnreadOnly bool
}

func (s inboxScope) apply(q *gorm.DB) *gorm.DB {
	q = q.Where("user_id = ?", s.UserID)
	if s.Role != "" {
		q = q.Where("role = ?", s.Role)
	}
	if s.UnreadOnly {
		q = q.Where("read_at IS NULL")
	}
	return q
}

type markOutcome struct {
	Owned   int64
	Updated int64
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) rows(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{})
}

func (r *gormRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *gormRepository) Page(ctx context.Context, scope inboxScope, cursor *pagination.Cursor, limit int) ([]models.Notification, *pagination.Cursor, error) {
	var rows []models.Notification
	if err := pagination.Apply(scope.apply(r.rows(ctx)), cursor, limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return page, next, nil
}

func (r *gormRepository) CountUnread(ctx context.Context, scope inboxScope) (int64, error) {
	scope.UnreadOnly = true
	var count int64
	err := scope.apply(r.rows(ctx)).Count(&count).Error
	return count, err
}

// MarkRead stamps ids as read only when every id belongs to userID; otherwise
// nothing is written and Owned reports how many did.
func (r *gormRepository) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, now time.Time) (markOutcome, error) {
	var out markOutcome
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&models.Notification{}).Where("user_id = ? AND id IN ?", userID, ids)
		if err := owned.Count(&out.Owned).Error; err != nil {
			return err
		}
		if out.Owned != int64(len(ids)) {
			return nil
		}
		res := tx.Model(&models.Notification{}).
			Where("user_id = ? AND id IN ? AND read_at IS NULL", userID, ids).
			UpdateColumn("read_at", now)
		out.Updated = res.RowsAffected
		return res.Error
	})
	return out, err
}

func (r *gormRepository) MarkAllRead(ctx context.Context, scope inboxScope, now time.Time) (int64, error) {
	scope.UnreadOnly = true
	res := scope.apply(r.rows(ctx)).UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}

// DeleteReadBefore prunes read rows older than cutoff. Unread rows stay.
func (r *gormRepository) DeleteReadBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	res := conn.WithContext(ctx).
		Where("read_at IS NOT NULL AND created_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

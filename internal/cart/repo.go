package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
)

// Repository persists customer cart lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided DB handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at ASC, id ASC").
		Find(&lines).Error
	return lines, err
}

func (r *Repository) Create(ctx context.Context, line *models.CartLine) error {
	return r.db.WithContext(ctx).Create(line).Error
}

// Delete removes one line owned by customerID and reports whether it existed.
func (r *Repository) Delete(ctx context.Context, customerID, lineID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND customer_id = ?", lineID, customerID).
		Delete(&models.CartLine{})
	return result.RowsAffected > 0, result.Error
}

// DeleteByIDs drops converted lines once their order is paid.
func (r *Repository) DeleteByIDs(ctx context.Context, customerID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("customer_id = ? AND id IN ?", customerID, ids).
		Delete(&models.CartLine{})
	return result.RowsAffected, result.Error
}

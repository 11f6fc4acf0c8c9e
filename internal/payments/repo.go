package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
)

// Repository persists the seller's processor account linkage.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) FindSeller(ctx context.Context, sellerID uuid.UUID) (*models.Seller, error) {
	var seller models.Seller
	if err := r.db.WithContext(ctx).Where("id = ?", sellerID).First(&seller).Error; err != nil {
		return nil, err
	}
	return &seller, nil
}

func (r *Repository) FindSellerByAccount(ctx context.Context, accountID string) (*models.Seller, error) {
	var seller models.Seller
	if err := r.db.WithContext(ctx).Where("processor_account_id = ?", accountID).First(&seller).Error; err != nil {
		return nil, err
	}
	return &seller, nil
}

// AttachAccount stores accountID only when the seller has none yet.
func (r *Repository) AttachAccount(ctx context.Context, sellerID uuid.UUID, accountID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Seller{}).
		Where("id = ? AND processor_account_id IS NULL", sellerID).
		Updates(map[string]any{"processor_account_id": accountID, "updated_at": now})
	return result.RowsAffected > 0, result.Error
}

// SetPayoutsEnabled reports whether the flag actually changed.
func (r *Repository) SetPayoutsEnabled(ctx context.Context, sellerID uuid.UUID, enabled bool, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Seller{}).
		Where("id = ? AND payouts_enabled <> ?", sellerID, enabled).
		Updates(map[string]any{"payouts_enabled": enabled, "updated_at": now})
	return result.RowsAffected > 0, result.Error
}

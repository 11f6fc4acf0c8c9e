package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
)

// Reader is the read-only catalog surface the checkout engine depends on.
// Catalog writes live outside this service.
type Reader interface {
	GetStock(ctx context.Context, productID uuid.UUID) (int, error)
	GetServiceDuration(ctx context.Context, serviceID uuid.UUID) (int, error)
	GetSellerInfo(ctx context.Context, sellerID uuid.UUID) (*models.Seller, error)
	ProductsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	ServicesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Service, error)
}

type Repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog reader bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) GetStock(ctx context.Context, productID uuid.UUID) (int, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Select("id", "stock").Where("id = ?", productID).First(&product).Error
	if err != nil {
		return 0, notFoundOr(err, "product not found", "load product stock")
	}
	return product.Stock, nil
}

func (r *Repository) GetServiceDuration(ctx context.Context, serviceID uuid.UUID) (int, error) {
	var service models.Service
	err := r.db.WithContext(ctx).Select("id", "duration_minutes").Where("id = ?", serviceID).First(&service).Error
	if err != nil {
		return 0, notFoundOr(err, "service not found", "load service duration")
	}
	return service.DurationMinutes, nil
}

func (r *Repository) GetSellerInfo(ctx context.Context, sellerID uuid.UUID) (*models.Seller, error) {
	var seller models.Seller
	if err := r.db.WithContext(ctx).Where("id = ?", sellerID).First(&seller).Error; err != nil {
		return nil, notFoundOr(err, "seller not found", "load seller")
	}
	return &seller, nil
}

func (r *Repository) ProductsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *Repository) ServicesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Service, error) {
	out := make(map[uuid.UUID]models.Service, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Service
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load services")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// SellerLocation resolves the seller's IANA timezone, falling back to UTC when the
// stored name is empty or unknown.
func SellerLocation(seller *models.Seller) *time.Location {
	if seller == nil || seller.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(seller.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

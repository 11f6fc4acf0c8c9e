package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	"github.com/angelmondragon/marketcart-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their snapshots.
// Every state change is a single conditional statement; callers read
// RowsAffected-style booleans to learn whether their guard held.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	CreateServiceItems(ctx context.Context, items []models.OrderServiceItem) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindDetail(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByCheckout(ctx context.Context, checkoutID uuid.UUID) ([]models.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	List(ctx context.Context, params listParams) ([]models.Order, *pagination.Cursor, error)
	Transition(ctx context.Context, orderID uuid.UUID, from []enums.OrderStatus, to enums.OrderStatus, extra map[string]any, now time.Time) (bool, error)
	CancelUnpaid(ctx context.Context, orderID uuid.UUID, reason string, now time.Time) (bool, error)
	MarkScanned(ctx context.Context, orderID, scannedBy uuid.UUID, now time.Time) (bool, error)
	FreezeCommission(ctx context.Context, orderID uuid.UUID, rate decimal.Decimal, sellerCents, commissionCents int64, now time.Time) (bool, error)
	SetPaymentReference(ctx context.Context, orderID uuid.UUID, expected *string, reference string, kind enums.PaymentReferenceKind, client enums.ClientType, now time.Time) (bool, error)
	ClearPaymentReference(ctx context.Context, orderID uuid.UUID, reference string, now time.Time) (bool, error)
	FindAbandonable(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error)
	FindStaleReferenced(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error)
	DeleteItems(ctx context.Context, orderID uuid.UUID) error
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int, now time.Time) (bool, error)
	RestoreStock(ctx context.Context, productID uuid.UUID, qty int, now time.Time) error
	SetStockDecremented(ctx context.Context, itemID uuid.UUID, decremented bool) error
}

type listParams struct {
	CustomerID *uuid.UUID
	SellerID   *uuid.UUID
	Statuses   []enums.OrderStatus
	Limit      int
	Cursor     *pagination.Cursor
}

package discounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

// QuoteInput describes the cart-level reductions a customer asked for.
type QuoteInput struct {
	CustomerID uuid.UUID
	Code       string
	Points     int64
	Sellers    []SellerSubtotal
}

// Quote is the priced result for every seller group, aligned with QuoteInput.Sellers.
type Quote struct {
	Code                *models.DiscountCode
	DiscountCents       int64
	Points              int64
	PointsDiscountCents int64
	Allocations         []Allocation
}

// OrderApplication ties one created order to its share of the quote.
type OrderApplication struct {
	OrderID             uuid.UUID
	DiscountCents       int64
	PointsRedeemed      int64
	PointsDiscountCents int64
}

// Applications is written once per checkout after its orders commit.
type Applications struct {
	CheckoutID uuid.UUID
	CustomerID uuid.UUID
	Code       *models.DiscountCode
	Orders     []OrderApplication
}

// ServiceParams wires the allocator.
type ServiceParams struct {
	DB              *gorm.DB
	Logger          *logger.Logger
	PointValueCents int64
	PointsPerUnit   int64
	Now             func() time.Time
}

// Service resolves discount codes and point balances and tracks their use.
type Service struct {
	db              *gorm.DB
	logg            *logger.Logger
	pointValueCents int64
	pointsPerUnit   int64
	now             func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("db required")
	}
	if params.PointValueCents <= 0 {
		params.PointValueCents = 1
	}
	if params.PointsPerUnit < 0 {
		params.PointsPerUnit = 0
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		db:              params.DB,
		logg:            params.Logger,
		pointValueCents: params.PointValueCents,
		pointsPerUnit:   params.PointsPerUnit,
		now:             params.Now,
	}, nil
}

// NormalizeCode trims and upper-cases a code as entered by a customer.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ResolveCode loads an applicable code. Usage is counted per distinct checkout so
// one multi-seller checkout consumes a single use.
func (s *Service) ResolveCode(ctx context.Context, raw string) (*models.DiscountCode, error) {
	code := NormalizeCode(raw)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount code required")
	}

	var row models.DiscountCode
	err := s.db.WithContext(ctx).Preload("Sellers").Where("code = ?", code).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidCode(code, "unknown")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount code")
	}
	if err := CheckUsable(&row, s.now().UTC()); err != nil {
		return nil, err
	}
	if row.UsageLimit != nil {
		var used int64
		if err := s.db.WithContext(ctx).Model(&models.DiscountCodeUsage{}).
			Where("discount_code_id = ?", row.ID).
			Distinct("checkout_id").
			Count(&used).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count discount usage")
		}
		if used >= int64(*row.UsageLimit) {
			return nil, invalidCode(code, "usage_limit_reached")
		}
	}
	return &row, nil
}

// Balance returns the customer's point balance, zero when no account exists.
func (s *Service) Balance(ctx context.Context, customerID uuid.UUID) (int64, error) {
	var account models.PointsAccount
	err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load points balance")
	}
	return account.Balance, nil
}

// Quote prices a checkout. Nothing is written.
func (s *Service) Quote(ctx context.Context, input QuoteInput) (*Quote, error) {
	if len(input.Sellers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one seller group required")
	}
	if input.Points < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points must not be negative")
	}

	quote := &Quote{}
	var discounts []int64
	if strings.TrimSpace(input.Code) != "" {
		code, err := s.ResolveCode(ctx, input.Code)
		if err != nil {
			return nil, err
		}
		amount, allocation, err := ComputeDiscount(code, input.Sellers)
		if err != nil {
			return nil, err
		}
		quote.Code = code
		quote.DiscountCents = amount
		discounts = allocation
	}

	if input.Points > 0 {
		balance, err := s.Balance(ctx, input.CustomerID)
		if err != nil {
			return nil, err
		}
		if balance < input.Points {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient points balance").
				WithDetails(map[string]any{"requested": input.Points, "available": balance})
		}
		quote.Points = input.Points
		quote.PointsDiscountCents = input.Points * s.pointValueCents
	}

	quote.Allocations = Allocate(input.Sellers, discounts, quote.Points, s.pointValueCents)
	return quote, nil
}

// Record writes usage and reserved redemption rows for committed orders. Each row
// is attempted independently and every failure is returned combined.
func (s *Service) Record(ctx context.Context, apps Applications) error {
	var errs error
	conn := s.db.WithContext(ctx)
	for _, order := range apps.Orders {
		if apps.Code != nil && order.DiscountCents > 0 {
			usage := &models.DiscountCodeUsage{
				DiscountCodeID: apps.Code.ID,
				OrderID:        order.OrderID,
				CheckoutID:     apps.CheckoutID,
				CustomerID:     apps.CustomerID,
				AmountCents:    order.DiscountCents,
			}
			if err := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(usage).Error; err != nil {
				errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record discount usage"))
			}
		}
		if order.PointsRedeemed > 0 {
			redemption := &models.PointsRedemption{
				OrderID:     order.OrderID,
				CheckoutID:  apps.CheckoutID,
				CustomerID:  apps.CustomerID,
				Points:      order.PointsRedeemed,
				AmountCents: order.PointsDiscountCents,
				Status:      enums.PointsRedemptionReserved,
			}
			if err := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(redemption).Error; err != nil {
				errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record points redemption"))
			}
		}
	}
	return errs
}

// AwardFor returns the points earned on a paid order total.
func (s *Service) AwardFor(totalCents int64) int64 {
	if totalCents <= 0 {
		return 0
	}
	return (totalCents / 100) * s.pointsPerUnit
}

// DebitReserved settles the order's reserved redemption inside tx. The balance
// update only succeeds while it still covers the points; otherwise the
// redemption is marked failed and the order keeps its discount.
func (s *Service) DebitReserved(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.PointsRedemptionStatus, error) {
	var redemption models.PointsRedemption
	err := tx.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.PointsRedemptionReserved).
		First(&redemption).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load points redemption")
	}

	now := s.now().UTC()
	debit := tx.WithContext(ctx).Model(&models.PointsAccount{}).
		Where("customer_id = ? AND balance >= ?", redemption.CustomerID, redemption.Points).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", redemption.Points),
			"updated_at": now,
		})
	if debit.Error != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, debit.Error, "debit points")
	}

	status := enums.PointsRedemptionDebited
	if debit.RowsAffected == 0 {
		status = enums.PointsRedemptionFailed
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"order_id":    orderID.String(),
			"customer_id": redemption.CustomerID.String(),
			"points":      redemption.Points,
		}), "points balance no longer covers redemption")
	}
	if err := s.setRedemptionStatus(ctx, tx, orderID, status, now); err != nil {
		return "", err
	}
	return status, nil
}

// ReleaseReserved marks an unpaid order's reservation released. tx may be nil.
func (s *Service) ReleaseReserved(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.setRedemptionStatus(ctx, tx, orderID, enums.PointsRedemptionReleased, s.now().UTC())
}

func (s *Service) setRedemptionStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PointsRedemptionStatus, now time.Time) error {
	conn := s.db
	if tx != nil {
		conn = tx
	}
	err := conn.WithContext(ctx).Model(&models.PointsRedemption{}).
		Where("order_id = ? AND status = ?", orderID, enums.PointsRedemptionReserved).
		Updates(map[string]any{"status": status, "updated_at": now}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update points redemption")
	}
	return nil
}

// Award credits points to the customer inside tx, creating the account on first use.
func (s *Service) Award(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, points int64) error {
	if points <= 0 {
		return nil
	}
	conn := s.db
	if tx != nil {
		conn = tx
	}
	account := &models.PointsAccount{CustomerID: customerID, Balance: points, UpdatedAt: s.now().UTC()}
	err := conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance":    gorm.Expr("points_accounts.balance + excluded.balance"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(account).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "award points")
	}
	return nil
}

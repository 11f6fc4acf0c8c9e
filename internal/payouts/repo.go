package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketcart-backend/pkg/db"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
)

// Orders in these statuses have been paid and count toward seller revenue.
var revenueStatuses = []enums.OrderStatus{
	enums.OrderStatusProcessing,
	enums.OrderStatusReady,
	enums.OrderStatusComplete,
}

var inFlightStatuses = []enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusProcessing}

// Totals are the components of a seller's available balance in base-currency cents.
type Totals struct {
	RevenueCents   int64
	CompletedCents int64
	InFlightCents  int64
}

// AvailableCents is revenue minus everything paid out or on its way.
func (t Totals) AvailableCents() int64 {
	return t.RevenueCents - t.CompletedCents - t.InFlightCents
}

// Repository persists payouts and computes balances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindSeller(ctx context.Context, sellerID uuid.UUID, lock bool) (*models.Seller, error)
	Totals(ctx context.Context, sellerID uuid.UUID) (Totals, error)
	InsertIfCovered(ctx context.Context, payout *models.Payout) (bool, error)
	MarkProcessing(ctx context.Context, payoutID uuid.UUID, reference string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string, now time.Time) (bool, error)
	SettleByReference(ctx context.Context, reference string, to enums.PayoutStatus, reason *string, now time.Time) (*models.Payout, error)
	FindByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.Payout, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindSeller loads the seller, taking a row lock on Postgres when lock is set.
func (r *repository) FindSeller(ctx context.Context, sellerID uuid.UUID, lock bool) (*models.Seller, error) {
	query := r.db.WithContext(ctx)
	if lock && db.IsPostgres(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var seller models.Seller
	if err := query.Where("id = ?", sellerID).First(&seller).Error; err != nil {
		return nil, err
	}
	return &seller, nil
}

const revenueSQL = `SELECT COALESCE(SUM(seller_amount_cents), 0) FROM orders
WHERE seller_id = ? AND commission_frozen_at IS NOT NULL AND status IN ?`

const payoutSumSQL = `SELECT COALESCE(SUM(base_amount_cents), 0) FROM payouts
WHERE seller_id = ? AND status IN ?`

func (r *repository) Totals(ctx context.Context, sellerID uuid.UUID) (Totals, error) {
	var totals Totals
	conn := r.db.WithContext(ctx)
	if err := conn.Raw(revenueSQL, sellerID, revenueStatuses).Scan(&totals.RevenueCents).Error; err != nil {
		return Totals{}, err
	}
	if err := conn.Raw(payoutSumSQL, sellerID, []enums.PayoutStatus{enums.PayoutStatusCompleted}).Scan(&totals.CompletedCents).Error; err != nil {
		return Totals{}, err
	}
	if err := conn.Raw(payoutSumSQL, sellerID, inFlightStatuses).Scan(&totals.InFlightCents).Error; err != nil {
		return Totals{}, err
	}
	return totals, nil
}

// InsertIfCovered inserts payout only when the seller's available balance, computed
// in the same statement, covers BaseAmountCents. It reports whether a row was written.
func (r *repository) InsertIfCovered(ctx context.Context, payout *models.Payout) (bool, error) {
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	idParam, tsParam := "?", "?"
	if db.IsPostgres(r.db) {
		idParam, tsParam = "CAST(? AS uuid)", "CAST(? AS timestamptz)"
	}
	query := fmt.Sprintf(`INSERT INTO payouts
(id, seller_id, amount_cents, currency, base_amount_cents, base_currency, status, created_at, updated_at)
SELECT %[1]s, %[1]s, ?, ?, ?, ?, ?, %[2]s, %[2]s
WHERE (%[3]s) - (%[4]s) >= ?`, idParam, tsParam, revenueSQL, payoutSumSQL)

	result := r.db.WithContext(ctx).Exec(query,
		payout.ID, payout.SellerID, payout.AmountCents, payout.Currency,
		payout.BaseAmountCents, payout.BaseCurrency, payout.Status, payout.CreatedAt, payout.UpdatedAt,
		payout.SellerID, revenueStatuses,
		payout.SellerID, []enums.PayoutStatus{enums.PayoutStatusCompleted, enums.PayoutStatusPending, enums.PayoutStatusProcessing},
		payout.BaseAmountCents,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) MarkProcessing(ctx context.Context, payoutID uuid.UUID, reference string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", payoutID, enums.PayoutStatusPending).
		Updates(map[string]any{
			"status":              enums.PayoutStatusProcessing,
			"processor_reference": reference,
			"updated_at":          now,
		})
	return result.RowsAffected == 1, result.Error
}

func (r *repository) MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status IN ?", payoutID, inFlightStatuses).
		Updates(map[string]any{
			"status":         enums.PayoutStatusFailed,
			"failure_reason": reason,
			"updated_at":     now,
		})
	return result.RowsAffected == 1, result.Error
}

// SettleByReference moves an in-flight payout to a terminal status. A payout that
// already left the in-flight states is returned as-is together with errUnchanged.
func (r *repository) SettleByReference(ctx context.Context, reference string, to enums.PayoutStatus, reason *string, now time.Time) (*models.Payout, error) {
	updates := map[string]any{"status": to, "updated_at": now}
	if reason != nil {
		updates["failure_reason"] = *reason
	}
	result := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("processor_reference = ? AND status IN ?", reference, inFlightStatuses).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where("processor_reference = ?", reference).First(&payout).Error; err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return &payout, errUnchanged
	}
	return &payout, nil
}

func (r *repository) FindByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where("id = ?", payoutID).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) ListBySeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&payouts).Error
	return payouts, err
}

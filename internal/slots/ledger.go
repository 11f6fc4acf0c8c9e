package slots

import (
	"context"
	"errors"
	"iter"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/metrics"
	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

// lockUpsert takes or refreshes a lock in one statement. The update branch only
// fires when the current lock is expired or already belongs to the caller, so
// RowsAffected is 0 exactly when a different customer holds a live lock.
const lockUpsert = `
INSERT INTO slot_locks (seller_id, slot_date, slot_minute, customer_id, duration_minutes, locked_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (seller_id, slot_date, slot_minute) DO UPDATE SET
	customer_id = excluded.customer_id,
	duration_minutes = excluded.duration_minutes,
	locked_at = excluded.locked_at,
	expires_at = excluded.expires_at
WHERE slot_locks.expires_at <= ? OR slot_locks.customer_id = excluded.customer_id`

// Ledger owns schedules, blocks and short-lived slot locks.
type Ledger struct {
	db      *gorm.DB
	ttl     time.Duration
	logg    *logger.Logger
	metrics *metrics.CheckoutMetrics
	now     func() time.Time
}

type LedgerParams struct {
	DB      *gorm.DB
	LockTTL time.Duration
	Logger  *logger.Logger
	Metrics *metrics.CheckoutMetrics
	Now     func() time.Time
}

func NewLedger(params LedgerParams) (*Ledger, error) {
	if params.DB == nil {
		return nil, errors.New("db required")
	}
	if params.LockTTL <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Ledger{
		db:      params.DB,
		ttl:     params.LockTTL,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     params.Now,
	}, nil
}

// LockSlot takes the slot for customerID. It returns false without side effects
// when another customer holds a live lock on the same key. Re-locking as the same
// customer refreshes the expiry.
func (l *Ledger) LockSlot(ctx context.Context, key Key, customerID uuid.UUID, durationMinutes int) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if customerID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if durationMinutes <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "duration must be positive")
	}

	now := l.now().UTC()
	acquired, err := upsertLock(l.db.WithContext(ctx), key, customerID, durationMinutes, now, now.Add(l.ttl))
	if err != nil {
		return false, err
	}
	l.metrics.SlotLock(acquired)
	if !acquired {
		l.logg.Debug(l.logg.WithFields(ctx, map[string]any{
			"seller_id": key.SellerID.String(),
			"slot_date": key.Date,
			"slot_time": types.ClockTime(key.Minute).String(),
		}), "slot lock contended")
	}
	return acquired, nil
}

// ExtendLock keeps key held by customerID until the given time, retaking a lapsed
// lock. It returns false when another customer holds a live lock on key. Locks
// that already run past until are left alone.
func (l *Ledger) ExtendLock(ctx context.Context, key Key, customerID uuid.UUID, durationMinutes int, until time.Time) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if customerID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if durationMinutes <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "duration must be positive")
	}
	now := l.now().UTC()
	if floor := now.Add(l.ttl); until.Before(floor) {
		until = floor
	}
	conn := l.db.WithContext(ctx)
	var current models.SlotLock
	err := conn.Where("seller_id = ? AND slot_date = ? AND slot_minute = ? AND customer_id = ? AND expires_at >= ?",
		key.SellerID, key.Date, key.Minute, customerID, until).
		Limit(1).Find(&current).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load slot lock")
	}
	if current.CustomerID == customerID {
		return true, nil
	}
	return upsertLock(conn, key, customerID, durationMinutes, now, until.UTC())
}

func upsertLock(conn *gorm.DB, key Key, customerID uuid.UUID, durationMinutes int, now, expiresAt time.Time) (bool, error) {
	result := conn.Exec(lockUpsert,
		key.SellerID, key.Date, key.Minute, customerID, durationMinutes, now, expiresAt,
		now,
	)
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "lock slot")
	}
	return result.RowsAffected > 0, nil
}

// ReleaseLock deletes the lock on key regardless of holder. Missing locks are fine.
func (l *Ledger) ReleaseLock(ctx context.Context, key Key) error {
	err := l.db.WithContext(ctx).
		Where("seller_id = ? AND slot_date = ? AND slot_minute = ?", key.SellerID, key.Date, key.Minute).
		Delete(&models.SlotLock{}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release slot lock")
	}
	return nil
}

// ReleaseHeldLock deletes the lock on key only while customerID holds it. tx may be nil.
func (l *Ledger) ReleaseHeldLock(ctx context.Context, tx *gorm.DB, key Key, customerID uuid.UUID) error {
	conn := l.db
	if tx != nil {
		conn = tx
	}
	err := conn.WithContext(ctx).
		Where("seller_id = ? AND slot_date = ? AND slot_minute = ? AND customer_id = ?", key.SellerID, key.Date, key.Minute, customerID).
		Delete(&models.SlotLock{}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release slot lock")
	}
	return nil
}

// AvailableSlots returns a restartable sequence of open candidates. Live locks
// count as taken, as do seller blocks and bookings.
func (l *Ledger) AvailableSlots(ctx context.Context, q Query) (iter.Seq[Slot], error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}
	snap, err := l.load(ctx, q)
	if err != nil {
		return nil, err
	}
	return snap.available(q.DurationMinutes, q.IntervalMinutes), nil
}

// SlotGrid classifies every candidate in the range for the seller calendar.
func (l *Ledger) SlotGrid(ctx context.Context, q Query) ([]GridCell, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}
	q.Location = nil
	snap, err := l.load(ctx, q)
	if err != nil {
		return nil, err
	}
	cells := snap.grid(q.DurationMinutes, q.IntervalMinutes)
	if cells == nil {
		cells = []GridCell{}
	}
	return cells, nil
}

// IsBookable reports whether key falls inside the seller's offered hours and
// does not overlap a block, a booking, or a live lock held by someone other
// than customerID.
func (l *Ledger) IsBookable(ctx context.Context, key Key, durationMinutes int, customerID uuid.UUID) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if durationMinutes <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "duration must be positive")
	}
	snap, err := l.load(ctx, Query{SellerID: key.SellerID, StartDate: key.Date, EndDate: key.Date})
	if err != nil {
		return false, err
	}
	if !snap.inWindow(key.Date, key.Minute, durationMinutes) {
		return false, nil
	}
	return snap.classify(key.Date, key.Minute, durationMinutes, customerID) == StatusAvailable, nil
}

func (l *Ledger) load(ctx context.Context, q Query) (*snapshot, error) {
	start, _ := types.ParseDate(q.StartDate)
	end, _ := types.ParseDate(q.EndDate)
	snap := newSnapshot(expandDates(start, end))
	now := l.now().UTC()
	snap.setNow(now, q.Location)

	conn := l.db.WithContext(ctx)

	var weekly []models.WeeklySchedule
	if err := conn.Where("seller_id = ?", q.SellerID).Find(&weekly).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load weekly schedule")
	}
	for _, row := range weekly {
		snap.weekly[row.Weekday] = row
	}

	var daySlots []models.DaySlot
	if err := conn.Where("seller_id = ? AND slot_date BETWEEN ? AND ?", q.SellerID, q.StartDate, q.EndDate).
		Order("slot_date ASC, slot_minute ASC").
		Find(&daySlots).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load day slots")
	}
	for _, row := range daySlots {
		snap.daySlots[row.SlotDate] = append(snap.daySlots[row.SlotDate], row.SlotMinute)
	}
	for date := range snap.daySlots {
		sort.Ints(snap.daySlots[date])
	}

	var blocks []models.AvailabilityBlock
	if err := conn.Where("seller_id = ? AND block_date BETWEEN ? AND ?", q.SellerID, q.StartDate, q.EndDate).
		Find(&blocks).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load availability blocks")
	}
	for _, block := range blocks {
		snap.addBlock(block)
	}

	var locks []models.SlotLock
	if err := conn.Where("seller_id = ? AND slot_date BETWEEN ? AND ? AND expires_at > ?", q.SellerID, q.StartDate, q.EndDate, now).
		Find(&locks).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load slot locks")
	}
	for _, lock := range locks {
		snap.addLock(lock)
	}
	return snap, nil
}

func normalizeQuery(q Query) (Query, error) {
	if q.SellerID == uuid.Nil {
		return q, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	start, err := types.ParseDate(q.StartDate)
	if err != nil {
		return q, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid start date")
	}
	if q.EndDate == "" {
		q.EndDate = q.StartDate
	}
	end, err := types.ParseDate(q.EndDate)
	if err != nil {
		return q, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid end date")
	}
	if end.Before(start) {
		return q, pkgerrors.New(pkgerrors.CodeValidation, "end date before start date")
	}
	if end.Sub(start) > maxRangeDays*24*time.Hour {
		return q, pkgerrors.New(pkgerrors.CodeValidation, "date range too large").
			WithDetails(map[string]any{"max_days": maxRangeDays})
	}
	if q.DurationMinutes <= 0 {
		return q, pkgerrors.New(pkgerrors.CodeValidation, "duration must be positive")
	}
	if q.IntervalMinutes == 0 {
		q.IntervalMinutes = defaultInterval
	}
	if q.IntervalMinutes < 0 {
		return q, pkgerrors.New(pkgerrors.CodeValidation, "interval must be positive")
	}
	return q, nil
}

func validateKey(key Key) error {
	if key.SellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if _, err := types.ParseDate(key.Date); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid slot date")
	}
	if key.Minute < 0 || key.Minute >= minutesPerDay {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid slot time")
	}
	return nil
}

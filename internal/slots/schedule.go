package slots

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

// UpsertWeeklySchedule writes one row per provided weekday, replacing any
// existing row for the same (seller, weekday).
func (l *Ledger) UpsertWeeklySchedule(ctx context.Context, sellerID uuid.UUID, days []DaySchedule) ([]models.WeeklySchedule, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if len(days) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one weekday required")
	}
	seen := map[int]bool{}
	rows := make([]models.WeeklySchedule, 0, len(days))
	now := l.now().UTC()
	for _, day := range days {
		if day.Weekday < 0 || day.Weekday > 6 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "weekday must be between 0 and 6")
		}
		if seen[day.Weekday] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate weekday").
				WithDetails(map[string]any{"weekday": day.Weekday})
		}
		seen[day.Weekday] = true
		if (day.Start == nil) != (day.End == nil) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "start and end must be set together")
		}
		if day.Start != nil && *day.Start >= *day.End {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "start must be before end").
				WithDetails(map[string]any{"weekday": day.Weekday})
		}
		rows = append(rows, models.WeeklySchedule{
			SellerID:    sellerID,
			Weekday:     day.Weekday,
			StartMinute: clockMinutes(day.Start),
			EndMinute:   clockMinutes(day.End),
			IsAvailable: day.IsAvailable,
			UpdatedAt:   now,
		})
	}

	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "seller_id"}, {Name: "weekday"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_minute", "end_minute", "is_available", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert weekly schedule")
	}

	var stored []models.WeeklySchedule
	if err := l.db.WithContext(ctx).Where("seller_id = ?", sellerID).Order("weekday ASC").Find(&stored).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load weekly schedule")
	}
	return stored, nil
}

// ReplaceDaySlots swaps the explicit start list for one date. An empty list
// clears the override so the weekly schedule applies again.
func (l *Ledger) ReplaceDaySlots(ctx context.Context, sellerID uuid.UUID, date string, starts []types.ClockTime) error {
	if sellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if _, err := types.ParseDate(date); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date")
	}
	seen := map[int]bool{}
	rows := make([]models.DaySlot, 0, len(starts))
	for _, start := range starts {
		minute := start.Minutes()
		if minute < 0 || minute >= minutesPerDay {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid slot time")
		}
		if seen[minute] {
			continue
		}
		seen[minute] = true
		rows = append(rows, models.DaySlot{SellerID: sellerID, SlotDate: date, SlotMinute: minute})
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("seller_id = ? AND slot_date = ?", sellerID, date).Delete(&models.DaySlot{}).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear day slots")
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert day slots")
		}
		return nil
	})
}

// CreateBlock records seller unavailability. Nil start and end block the whole day.
func (l *Ledger) CreateBlock(ctx context.Context, input BlockInput) (*models.AvailabilityBlock, error) {
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if _, err := types.ParseDate(input.Date); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date")
	}
	if (input.Start == nil) != (input.End == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start and end must be set together")
	}
	if input.Start != nil && *input.Start >= *input.End {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start must be before end")
	}
	block := &models.AvailabilityBlock{
		SellerID:    input.SellerID,
		BlockDate:   input.Date,
		StartMinute: clockMinutes(input.Start),
		EndMinute:   clockMinutes(input.End),
		Kind:        enums.BlockKindSeller,
	}
	if input.Reason != "" {
		reason := input.Reason
		block.Reason = &reason
	}
	if err := l.db.WithContext(ctx).Create(block).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create availability block")
	}
	return block, nil
}

// DeleteBlock removes a seller block. Booking blocks are owned by their order and
// cannot be deleted here.
func (l *Ledger) DeleteBlock(ctx context.Context, sellerID, blockID uuid.UUID) error {
	var block models.AvailabilityBlock
	err := l.db.WithContext(ctx).Where("id = ? AND seller_id = ?", blockID, sellerID).First(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "block not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load availability block")
	}
	if block.Kind == enums.BlockKindBooking {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "booking blocks are released by cancelling the order")
	}
	if err := l.db.WithContext(ctx).Delete(&block).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete availability block")
	}
	return nil
}

// Booking is a paid service slot being turned into a permanent block.
type Booking struct {
	OrderID         uuid.UUID
	CustomerID      uuid.UUID
	Key             Key
	DurationMinutes int
}

// ConvertLockToBooking writes the booking block for a paid order and drops the
// customer's lock on the same key. Runs inside the fulfillment transaction. A
// lapsed lock is retaken first; the conversion fails with a state conflict when
// another customer holds the slot or an overlapping booking already exists.
func (l *Ledger) ConvertLockToBooking(ctx context.Context, tx *gorm.DB, booking Booking) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	conn := tx.WithContext(ctx)
	key := booking.Key
	start := key.Minute
	end := start + booking.DurationMinutes
	taken := pkgerrors.New(pkgerrors.CodeStateConflict, "slot is no longer available").
		WithDetails(map[string]any{
			"seller_id": key.SellerID.String(),
			"slot_date": key.Date,
			"slot_time": types.ClockTime(key.Minute).String(),
		})

	held, err := l.deleteHeldLock(conn, key, booking.CustomerID)
	if err != nil {
		return err
	}
	if !held {
		now := l.now().UTC()
		acquired, err := upsertLock(conn, key, booking.CustomerID, booking.DurationMinutes, now, now.Add(l.ttl))
		if err != nil {
			return err
		}
		if !acquired {
			l.metrics.SlotLock(false)
			return taken
		}
		if _, err := l.deleteHeldLock(conn, key, booking.CustomerID); err != nil {
			return err
		}
	}

	var overlapping int64
	err = conn.Model(&models.AvailabilityBlock{}).
		Where("seller_id = ? AND block_date = ? AND kind = ?", key.SellerID, key.Date, enums.BlockKindBooking).
		Where("start_minute < ? AND end_minute > ?", end, start).
		Where("(order_id IS NULL OR order_id <> ?)", booking.OrderID).
		Count(&overlapping).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check overlapping bookings")
	}
	if overlapping > 0 {
		return taken
	}

	orderID := booking.OrderID
	block := &models.AvailabilityBlock{
		SellerID:    key.SellerID,
		BlockDate:   key.Date,
		StartMinute: &start,
		EndMinute:   &end,
		Kind:        enums.BlockKindBooking,
		OrderID:     &orderID,
	}
	if err := conn.Create(block).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create booking block")
	}
	return nil
}

func (l *Ledger) deleteHeldLock(conn *gorm.DB, key Key, customerID uuid.UUID) (bool, error) {
	result := conn.
		Where("seller_id = ? AND slot_date = ? AND slot_minute = ? AND customer_id = ?", key.SellerID, key.Date, key.Minute, customerID).
		Delete(&models.SlotLock{})
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "release slot lock")
	}
	return result.RowsAffected == 1, nil
}

// ReleaseBooking deletes the booking blocks owned by orderID.
func (l *Ledger) ReleaseBooking(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	conn := l.db
	if tx != nil {
		conn = tx
	}
	err := conn.WithContext(ctx).
		Where("order_id = ? AND kind = ?", orderID, enums.BlockKindBooking).
		Delete(&models.AvailabilityBlock{}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release booking")
	}
	return nil
}

// Now exposes the ledger clock for callers that evaluate "today" consistently.
func (l *Ledger) Now() time.Time {
	return l.now()
}

func clockMinutes(c *types.ClockTime) *int {
	if c == nil {
		return nil
	}
	minutes := c.Minutes()
	return &minutes
}

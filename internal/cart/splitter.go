package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/internal/cutoff"
	"github.com/angelmondragon/marketcart-backend/internal/slots"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

type catalogReader interface {
	GetSellerInfo(ctx context.Context, sellerID uuid.UUID) (*models.Seller, error)
	ProductsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	ServicesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Service, error)
}

type slotLocker interface {
	LockSlot(ctx context.Context, key slots.Key, customerID uuid.UUID, durationMinutes int) (bool, error)
	ReleaseHeldLock(ctx context.Context, tx *gorm.DB, key slots.Key, customerID uuid.UUID) error
	IsBookable(ctx context.Context, key slots.Key, durationMinutes int, customerID uuid.UUID) (bool, error)
}

type sameDayPolicy interface {
	IsSameDayAllowed(seller *models.Seller) (cutoff.Decision, error)
	IsToday(seller *models.Seller, date string) bool
	HasStarted(seller *models.Seller, date string, minute int) bool
}

// Splitter turns a customer's cart lines into per-seller groups, checks stock and
// takes slot locks for every service line.
type Splitter struct {
	catalog catalogReader
	slots   slotLocker
	policy  sameDayPolicy
	logg    *logger.Logger
}

func NewSplitter(catalog catalogReader, locker slotLocker, policy sameDayPolicy, logg *logger.Logger) (*Splitter, error) {
	if catalog == nil {
		return nil, errors.New("catalog reader required")
	}
	if locker == nil {
		return nil, errors.New("slot locker required")
	}
	if policy == nil {
		return nil, errors.New("cutoff policy required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Splitter{catalog: catalog, slots: locker, policy: policy, logg: logg}, nil
}

// Split groups lines by seller in first-seen order. Stock shortfalls abort the
// whole cart with an itemized conflict. Service lines are then checked and locked
// in cart order; any failure releases every lock taken by this call.
func (s *Splitter) Split(ctx context.Context, customerID uuid.UUID, lines []models.CartLine, bookings map[uuid.UUID]Booking) (*SplitResult, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	productIDs, serviceIDs, err := collectIDs(lines)
	if err != nil {
		return nil, err
	}
	products, err := s.catalog.ProductsByID(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	services, err := s.catalog.ServicesByID(ctx, serviceIDs)
	if err != nil {
		return nil, err
	}

	result := &SplitResult{CustomerID: customerID}
	index := map[uuid.UUID]int{}
	groupFor := func(sellerID uuid.UUID) *SellerGroup {
		if i, ok := index[sellerID]; ok {
			return &result.Groups[i]
		}
		index[sellerID] = len(result.Groups)
		result.Groups = append(result.Groups, SellerGroup{SellerID: sellerID})
		return &result.Groups[len(result.Groups)-1]
	}

	requested := map[uuid.UUID]int{}
	for _, line := range lines {
		switch line.Kind {
		case enums.CartLineKindProduct:
			product, ok := products[*line.ProductID]
			if !ok {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"cart_line_id": line.ID, "product_id": *line.ProductID})
			}
			group := groupFor(product.SellerID)
			group.Products = append(group.Products, ProductLine{
				CartLineID:     line.ID,
				ProductID:      product.ID,
				Name:           product.Name,
				Quantity:       line.Quantity,
				UnitPriceCents: product.PriceCents,
			})
			requested[product.ID] += line.Quantity
		case enums.CartLineKindService:
			service, ok := services[*line.ServiceID]
			if !ok {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service not found").
					WithDetails(map[string]any{"cart_line_id": line.ID, "service_id": *line.ServiceID})
			}
			booking, err := bookingFor(line, bookings)
			if err != nil {
				return nil, err
			}
			group := groupFor(service.SellerID)
			group.Services = append(group.Services, ServiceLine{
				CartLineID:      line.ID,
				ServiceID:       service.ID,
				Name:            service.Name,
				Quantity:        line.Quantity,
				UnitPriceCents:  service.PriceCents,
				Date:            booking.Date,
				Minute:          booking.Minute,
				DurationMinutes: service.DurationMinutes,
			})
		}
	}

	if shortfalls := checkStock(lines, products, requested); len(shortfalls) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
			WithDetails(map[string]any{"items": shortfalls})
	}

	for i := range result.Groups {
		group := &result.Groups[i]
		seller, err := s.catalog.GetSellerInfo(ctx, group.SellerID)
		if err != nil {
			return nil, err
		}
		group.Seller = seller
		for _, line := range group.Products {
			group.SubtotalCents += line.TotalCents()
		}
		for _, line := range group.Services {
			group.SubtotalCents += line.TotalCents()
		}
		result.SubtotalCents += group.SubtotalCents
	}

	if err := s.lockServices(ctx, result, lines); err != nil {
		s.Release(ctx, result)
		return nil, err
	}
	return result, nil
}

// lockServices walks service lines in cart order so locks are always taken in the
// same sequence for the same cart.
func (s *Splitter) lockServices(ctx context.Context, result *SplitResult, lines []models.CartLine) error {
	byLine := map[uuid.UUID]ServiceLine{}
	sellers := map[uuid.UUID]*models.Seller{}
	for _, group := range result.Groups {
		for _, line := range group.Services {
			byLine[line.CartLineID] = line
			sellers[line.CartLineID] = group.Seller
		}
	}

	type taken struct {
		key slots.Key
		end int
	}
	var held []taken

	for _, raw := range lines {
		line, ok := byLine[raw.ID]
		if !ok {
			continue
		}
		seller := sellers[raw.ID]
		key := slots.Key{SellerID: seller.ID, Date: line.Date, Minute: line.Minute}
		slotDetails := map[string]any{
			"cart_line_id": line.CartLineID,
			"service_id":   line.ServiceID,
			"date":         line.Date,
			"time":         types.ClockTime(line.Minute).String(),
		}

		if s.policy.HasStarted(seller, line.Date, line.Minute) {
			return pkgerrors.New(pkgerrors.CodeValidation, "booking time has already passed").WithDetails(slotDetails)
		}
		if s.policy.IsToday(seller, line.Date) {
			decision, err := s.policy.IsSameDayAllowed(seller)
			if err != nil {
				return err
			}
			if !decision.Allowed {
				slotDetails["reason"] = decision.Reason
				return pkgerrors.New(pkgerrors.CodeConflict, "same-day booking not available").WithDetails(slotDetails)
			}
		}

		end := line.Minute + line.DurationMinutes
		for _, prior := range held {
			if prior.key.SellerID == key.SellerID && prior.key.Date == key.Date &&
				line.Minute < prior.end && prior.key.Minute < end {
				return pkgerrors.New(pkgerrors.CodeConflict, "cart books overlapping slots").WithDetails(slotDetails)
			}
		}

		bookable, err := s.slots.IsBookable(ctx, key, line.DurationMinutes, result.CustomerID)
		if err != nil {
			return err
		}
		if !bookable {
			return pkgerrors.New(pkgerrors.CodeConflict, "slot unavailable").WithDetails(slotDetails)
		}

		locked, err := s.slots.LockSlot(ctx, key, result.CustomerID, line.DurationMinutes)
		if err != nil {
			return err
		}
		if !locked {
			return pkgerrors.New(pkgerrors.CodeConflict, "slot already locked").WithDetails(slotDetails)
		}
		held = append(held, taken{key: key, end: end})
		result.Locks = append(result.Locks, key)
	}
	return nil
}

// Release drops every lock recorded on result. Errors are logged so the caller's
// original failure is the one reported.
func (s *Splitter) Release(ctx context.Context, result *SplitResult) {
	if result == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, key := range result.Locks {
		if err := s.slots.ReleaseHeldLock(ctx, nil, key, result.CustomerID); err != nil {
			s.logg.Error(s.logg.WithFields(ctx, map[string]any{
				"seller_id": key.SellerID.String(),
				"slot_date": key.Date,
				"slot_time": types.ClockTime(key.Minute).String(),
			}), "release slot lock", err)
		}
	}
	result.Locks = nil
}

func collectIDs(lines []models.CartLine) ([]uuid.UUID, []uuid.UUID, error) {
	var productIDs, serviceIDs []uuid.UUID
	seenProducts := map[uuid.UUID]bool{}
	seenServices := map[uuid.UUID]bool{}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"cart_line_id": line.ID})
		}
		switch line.Kind {
		case enums.CartLineKindProduct:
			if line.ProductID == nil {
				return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "product line missing product id").
					WithDetails(map[string]any{"cart_line_id": line.ID})
			}
			if !seenProducts[*line.ProductID] {
				seenProducts[*line.ProductID] = true
				productIDs = append(productIDs, *line.ProductID)
			}
		case enums.CartLineKindService:
			if line.ServiceID == nil {
				return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "service line missing service id").
					WithDetails(map[string]any{"cart_line_id": line.ID})
			}
			if !seenServices[*line.ServiceID] {
				seenServices[*line.ServiceID] = true
				serviceIDs = append(serviceIDs, *line.ServiceID)
			}
		default:
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown cart line kind").
				WithDetails(map[string]any{"cart_line_id": line.ID, "kind": line.Kind})
		}
	}
	return productIDs, serviceIDs, nil
}

func bookingFor(line models.CartLine, overrides map[uuid.UUID]Booking) (Booking, error) {
	if booking, ok := overrides[line.ID]; ok {
		if _, err := types.ParseDate(booking.Date); err != nil {
			return Booking{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking date")
		}
		return booking, nil
	}
	if line.BookingDate == nil || line.BookingMinute == nil {
		return Booking{}, pkgerrors.New(pkgerrors.CodeValidation, "service line requires a booking slot").
			WithDetails(map[string]any{"cart_line_id": line.ID})
	}
	if _, err := types.ParseDate(*line.BookingDate); err != nil {
		return Booking{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking date")
	}
	return Booking{Date: *line.BookingDate, Minute: *line.BookingMinute}, nil
}

// checkStock reports every product line whose product is oversubscribed by the cart.
func checkStock(lines []models.CartLine, products map[uuid.UUID]models.Product, requested map[uuid.UUID]int) []StockShortfall {
	var shortfalls []StockShortfall
	for _, line := range lines {
		if line.Kind != enums.CartLineKindProduct {
			continue
		}
		product := products[*line.ProductID]
		if requested[product.ID] <= product.Stock {
			continue
		}
		shortfalls = append(shortfalls, StockShortfall{
			CartLineID: line.ID,
			ProductID:  product.ID,
			Name:       product.Name,
			Requested:  requested[product.ID],
			Available:  product.Stock,
		})
	}
	return shortfalls
}

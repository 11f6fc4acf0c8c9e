package cart

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

type lineStore interface {
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.CartLine, error)
	Create(ctx context.Context, line *models.CartLine) error
	Delete(ctx context.Context, customerID, lineID uuid.UUID) (bool, error)
}

type listingReader interface {
	ProductsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	ServicesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Service, error)
}

// AddLineInput is a request to put one product or service in the cart.
type AddLineInput struct {
	CustomerID  uuid.UUID
	Kind        enums.CartLineKind
	ProductID   *uuid.UUID
	ServiceID   *uuid.UUID
	Quantity    int
	BookingDate *string
	BookingTime *types.ClockTime
}

// Service manages the cart lines a customer builds before checkout.
type Service struct {
	lines   lineStore
	catalog listingReader
}

func NewService(lines lineStore, catalog listingReader) (*Service, error) {
	if lines == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cart repository required")
	}
	if catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog reader required")
	}
	return &Service{lines: lines, catalog: catalog}, nil
}

func (s *Service) List(ctx context.Context, customerID uuid.UUID) ([]models.CartLine, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	lines, err := s.lines.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart lines")
	}
	if lines == nil {
		lines = []models.CartLine{}
	}
	return lines, nil
}

// AddLine validates the listing exists before storing the line. Stock and slot
// availability are only enforced at checkout.
func (s *Service) AddLine(ctx context.Context, input AddLineInput) (*models.CartLine, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	line := &models.CartLine{
		CustomerID: input.CustomerID,
		Kind:       input.Kind,
		Quantity:   input.Quantity,
	}
	switch input.Kind {
	case enums.CartLineKindProduct:
		if input.ProductID == nil || input.ServiceID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product line requires product_id only")
		}
		products, err := s.catalog.ProductsByID(ctx, []uuid.UUID{*input.ProductID})
		if err != nil {
			return nil, err
		}
		if _, ok := products[*input.ProductID]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		line.ProductID = input.ProductID
	case enums.CartLineKindService:
		if input.ServiceID == nil || input.ProductID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "service line requires service_id only")
		}
		if input.BookingDate == nil || input.BookingTime == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "service line requires booking_date and booking_time")
		}
		if _, err := types.ParseDate(*input.BookingDate); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking date")
		}
		services, err := s.catalog.ServicesByID(ctx, []uuid.UUID{*input.ServiceID})
		if err != nil {
			return nil, err
		}
		if _, ok := services[*input.ServiceID]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service not found")
		}
		minute := input.BookingTime.Minutes()
		line.ServiceID = input.ServiceID
		line.BookingDate = input.BookingDate
		line.BookingMinute = &minute
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "kind must be product or service")
	}

	if err := s.lines.Create(ctx, line); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart line")
	}
	return line, nil
}

func (s *Service) RemoveLine(ctx context.Context, customerID, lineID uuid.UUID) error {
	removed, err := s.lines.Delete(ctx, customerID, lineID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart line")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	return nil
}

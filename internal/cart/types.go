package cart

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/internal/slots"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
)

// Booking selects the slot for one service cart line, overriding the slot stored on the line.
type Booking struct {
	Date   string
	Minute int
}

// ProductLine is a priced purchasable line.
type ProductLine struct {
	CartLineID     uuid.UUID
	ProductID      uuid.UUID
	Name           string
	Quantity       int
	UnitPriceCents int64
}

func (l ProductLine) TotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// ServiceLine is a priced bookable line with its locked slot.
type ServiceLine struct {
	CartLineID      uuid.UUID
	ServiceID       uuid.UUID
	Name            string
	Quantity        int
	UnitPriceCents  int64
	Date            string
	Minute          int
	DurationMinutes int
}

func (l ServiceLine) TotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// SellerGroup is every line of the cart that belongs to one seller.
type SellerGroup struct {
	SellerID      uuid.UUID
	Seller        *models.Seller
	Products      []ProductLine
	Services      []ServiceLine
	SubtotalCents int64
}

// SplitResult is the per-seller view of a cart plus the slot locks taken for it.
// Groups keep the order in which sellers first appear in the cart.
type SplitResult struct {
	CustomerID    uuid.UUID
	Groups        []SellerGroup
	Locks         []slots.Key
	SubtotalCents int64
}

// SellerIDs lists sellers in cart order.
func (r *SplitResult) SellerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Groups))
	for _, group := range r.Groups {
		ids = append(ids, group.SellerID)
	}
	return ids
}

// StockShortfall is one itemized line of an insufficient-stock conflict.
type StockShortfall struct {
	CartLineID uuid.UUID `json:"cart_line_id"`
	ProductID  uuid.UUID `json:"product_id"`
	Name       string    `json:"name"`
	Requested  int       `json:"requested"`
	Available  int       `json:"available"`
}

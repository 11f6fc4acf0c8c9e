package discounts

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
)

const basisPoints = 10000

// SellerSubtotal is one seller group of a checkout, in cart order.
type SellerSubtotal struct {
	SellerID      uuid.UUID
	SubtotalCents int64
}

// Allocation is the money one seller's order carries after discounts and points.
type Allocation struct {
	SellerID            uuid.UUID `json:"seller_id"`
	SubtotalCents       int64     `json:"subtotal_cents"`
	DiscountCents       int64     `json:"discount_cents"`
	PointsRedeemed      int64     `json:"points_redeemed"`
	PointsDiscountCents int64     `json:"points_discount_cents"`
	TotalCents          int64     `json:"total_cents"`
}

// Participates reports whether sellerID is in the code's seller set.
func Participates(code *models.DiscountCode, sellerID uuid.UUID) bool {
	if code.AnySeller {
		return true
	}
	for _, seller := range code.Sellers {
		if seller.SellerID == sellerID {
			return true
		}
	}
	return false
}

// CheckUsable rejects codes that can never apply regardless of the cart.
func CheckUsable(code *models.DiscountCode, now time.Time) error {
	if !code.Active {
		return invalidCode(code.Code, "inactive")
	}
	if code.ExpiresAt != nil && !now.Before(*code.ExpiresAt) {
		return invalidCode(code.Code, "expired")
	}
	if !code.AnySeller && len(code.Sellers) == 0 {
		return invalidCode(code.Code, "no_participating_sellers")
	}
	if code.Value <= 0 {
		return invalidCode(code.Code, "no_value")
	}
	return nil
}

// ComputeDiscount evaluates code against the qualifying subtotal of sellers and
// returns the discount plus its per-seller allocation aligned with sellers.
func ComputeDiscount(code *models.DiscountCode, sellers []SellerSubtotal) (int64, []int64, error) {
	weights := make([]int64, len(sellers))
	var qualifying int64
	for i, seller := range sellers {
		if Participates(code, seller.SellerID) {
			weights[i] = seller.SubtotalCents
			qualifying += seller.SubtotalCents
		}
	}
	if qualifying <= 0 {
		return 0, nil, invalidCode(code.Code, "no_participating_sellers_in_cart")
	}
	if qualifying < code.MinPurchaseCents {
		return 0, nil, pkgerrors.New(pkgerrors.CodeValidation, "discount code minimum purchase not met").
			WithDetails(map[string]any{"code": code.Code, "min_purchase_cents": code.MinPurchaseCents, "qualifying_cents": qualifying})
	}

	var amount int64
	switch code.Kind {
	case enums.DiscountKindPercentage:
		amount = qualifying * code.Value / basisPoints
	case enums.DiscountKindFixed:
		amount = code.Value
	default:
		return 0, nil, invalidCode(code.Code, "unknown_kind")
	}
	if code.MaxDiscountCents != nil && amount > *code.MaxDiscountCents {
		amount = *code.MaxDiscountCents
	}
	if amount > qualifying {
		amount = qualifying
	}
	return amount, AllocateProportional(amount, weights), nil
}

// AllocateProportional splits amount across weights by floor(amount*w/sum) and
// hands the leftover cents to the largest fractional remainders. Ties go to the
// earlier index. The result always sums to amount when sum > 0.
func AllocateProportional(amount int64, weights []int64) []int64 {
	out := make([]int64, len(weights))
	var sum int64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if amount <= 0 || sum == 0 {
		return out
	}

	type remainder struct {
		index int
		rem   int64
	}
	rems := make([]remainder, 0, len(weights))
	var given int64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		share := amount * w
		out[i] = share / sum
		given += out[i]
		rems = append(rems, remainder{index: i, rem: share % sum})
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].rem > rems[b].rem })
	for k := 0; given < amount; k++ {
		out[rems[k%len(rems)].index]++
		given++
	}
	return out
}

// SplitEven divides amount into n parts; the first amount%n parts get one more.
func SplitEven(amount int64, n int) []int64 {
	out := make([]int64, n)
	if n == 0 || amount <= 0 {
		return out
	}
	base := amount / int64(n)
	extra := amount % int64(n)
	for i := range out {
		out[i] = base
		if int64(i) < extra {
			out[i]++
		}
	}
	return out
}

// Allocate combines the discount allocation with an even points split and
// floors each seller total at zero. Points are split first and each seller's
// cents follow from its own points, so redeemed points and their value agree
// per order.
func Allocate(sellers []SellerSubtotal, discounts []int64, points, pointValueCents int64) []Allocation {
	pointShares := SplitEven(points, len(sellers))

	out := make([]Allocation, len(sellers))
	for i, seller := range sellers {
		alloc := Allocation{
			SellerID:            seller.SellerID,
			SubtotalCents:       seller.SubtotalCents,
			PointsRedeemed:      pointShares[i],
			PointsDiscountCents: pointShares[i] * pointValueCents,
		}
		if i < len(discounts) {
			alloc.DiscountCents = discounts[i]
		}
		alloc.TotalCents = max(0, seller.SubtotalCents-alloc.DiscountCents-alloc.PointsDiscountCents)
		out[i] = alloc
	}
	return out
}

func invalidCode(code, reason string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "discount code not applicable").
		WithDetails(map[string]any{"code": code, "reason": reason})
}

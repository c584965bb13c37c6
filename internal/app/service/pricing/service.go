package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dogparkjp/paygate/internal/models"
	"github.com/dogparkjp/paygate/pkg/apperr"
	cfgpkg "github.com/dogparkjp/paygate/pkg/config"
	"github.com/dogparkjp/paygate/pkg/types"
)

// Reservation is the tiered per-head purchase shape. Totals are always
// recomputed server-side from the headcount; client-supplied amounts are
// never trusted.
type Reservation struct {
	SelectedDogs []string `json:"selectedDogs"`
	ParkID       string   `json:"park_id"`
}

// Input carries exactly one of the four purchase shapes.
type Input struct {
	CustomAmount int64
	CustomName   string
	CartItemIDs  []string
	Reservation  *Reservation
	PriceID      string
	// PointsUse is the requested point redemption; the effective discount may
	// be smaller after clamping and proration.
	PointsUse int64
}

// Result is a fully priced purchase ready for session building.
type Result struct {
	Items []types.LineItem
	// Subtotal is the sum over all line totals (shipping included) before
	// the point discount.
	Subtotal int64
	// PointsUse is the redemption recorded in session metadata; the ledger
	// deduction at confirmation uses this value. It always equals the
	// effective discount, so a request larger than the subtotal never burns
	// the difference.
	PointsUse int64
	// EffectiveDiscount is what the clamped, prorated reduction actually
	// removed from the line items.
	EffectiveDiscount int64
	ShippingFee       int64
}

// Service turns purchase shapes into priced line items.
type Service struct {
	db  *gorm.DB
	cfg *cfgpkg.Config
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Service {
	return &Service{db: db, cfg: cfg, log: log}
}

// Price validates the input shape, builds line items, applies the point
// discount and enforces the gateway minimum-charge floor.
func (s *Service) Price(ctx context.Context, userID string, in *Input) (*Result, error) {
	shapes := 0
	if in.CustomAmount > 0 || in.CustomName != "" {
		shapes++
	}
	if len(in.CartItemIDs) > 0 {
		shapes++
	}
	if in.Reservation != nil {
		shapes++
	}
	if in.PriceID != "" {
		shapes++
	}
	if shapes != 1 {
		return nil, apperr.Validation("exactly one of custom amount, cart items, reservation data or price_id is required")
	}

	res := &Result{}
	switch {
	case in.CustomAmount > 0 || in.CustomName != "":
		if in.CustomAmount <= 0 || in.CustomName == "" {
			return nil, apperr.Validation("custom_amount and custom_name are both required")
		}
		res.Items = []types.LineItem{{Name: in.CustomName, UnitAmount: in.CustomAmount, Quantity: 1}}
	case len(in.CartItemIDs) > 0:
		items, shipping, err := s.priceCart(ctx, userID, in.CartItemIDs)
		if err != nil {
			return nil, err
		}
		res.Items = items
		res.ShippingFee = shipping
	case in.Reservation != nil:
		res.Items = s.priceReservation(in.Reservation)
	default:
		res.Items = []types.LineItem{{PriceID: in.PriceID, Quantity: 1}}
	}

	res.Subtotal = lo.SumBy(res.Items, func(li types.LineItem) int64 { return li.Total() })

	// Static price references are priced gateway-side; there is nothing to
	// prorate locally.
	if in.PriceID == "" && in.PointsUse > 0 {
		res.EffectiveDiscount, res.Items = ApplyPoints(res.Items, in.PointsUse)
	}
	res.PointsUse = res.EffectiveDiscount

	total := res.Subtotal - res.EffectiveDiscount
	if in.PriceID == "" && total > 0 && total <= s.cfg.Stripe.MinimumCharge {
		return nil, apperr.Validation(fmt.Sprintf("discounted total %d is at or below the minimum chargeable amount %d", total, s.cfg.Stripe.MinimumCharge))
	}
	return res, nil
}

// IsMember reports whether the user currently holds an active or trialing
// subscription.
func (s *Service) IsMember(ctx context.Context, userID string) (bool, error) {
	var mapping models.PaymentCustomer
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch customer mapping: %w", err)
	}
	var sub models.Subscription
	err = s.db.WithContext(ctx).Where("customer_id = ?", mapping.CustomerID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch subscription: %w", err)
	}
	return sub.Status.Member(), nil
}

func (s *Service) priceCart(ctx context.Context, userID string, cartItemIDs []string) ([]types.LineItem, int64, error) {
	var rows []struct {
		models.CartItem
		ProductName  string
		ProductPrice int64
		ImageURL     string
	}
	err := s.db.WithContext(ctx).
		Table("cart_items").
		Select("cart_items.*, products.name AS product_name, products.price AS product_price, products.image_url AS image_url").
		Joins("JOIN products ON products.id = cart_items.product_id").
		Where("cart_items.id IN ? AND cart_items.user_id = ?", cartItemIDs, userID).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindGateway, "failed to fetch cart items", err)
	}
	if len(rows) == 0 {
		return nil, 0, apperr.Validation("no cart items found")
	}

	member, err := s.IsMember(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	items := make([]types.LineItem, 0, len(rows)+1)
	var subtotal int64
	for _, row := range rows {
		price := row.ProductPrice
		if member {
			price = memberPrice(price, s.cfg.Pricing.MemberDiscountPercent)
		}
		items = append(items, types.LineItem{
			ProductID:  row.ProductID,
			Name:       row.ProductName,
			ImageURL:   row.ImageURL,
			UnitAmount: price,
			Quantity:   row.Quantity,
		})
		subtotal += price * row.Quantity
	}

	shipping := s.cfg.Pricing.ShippingFee
	if subtotal >= s.cfg.Pricing.FreeShippingThreshold || member {
		shipping = 0
	}
	if shipping > 0 {
		items = append(items, types.LineItem{Name: "送料", UnitAmount: shipping, Quantity: 1})
	}
	return items, shipping, nil
}

func (s *Service) priceReservation(r *Reservation) []types.LineItem {
	count := int64(len(r.SelectedDogs))
	if count == 0 {
		count = 1
	}
	total := s.cfg.Pricing.ReservationBaseFee + (count-1)*s.cfg.Pricing.ReservationExtraFee
	return []types.LineItem{{
		Name:       fmt.Sprintf("ドッグラン1日券 (%d頭)", count),
		UnitAmount: total,
		Quantity:   1,
	}}
}

// memberPrice applies the membership discount with round-half-up, matching
// how the shop front displays member prices.
func memberPrice(price, discountPercent int64) int64 {
	return (price*(100-discountPercent) + 50) / 100
}

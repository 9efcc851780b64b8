package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/craftstore-system/internal/model"
	"github.com/mmeshcher/craftstore-system/internal/repository"
)

// CouponResult — итог проверки купона. При Valid=false Message объясняет причину.
type CouponResult struct {
	Valid         bool
	Message       string
	DiscountCents int64
	Coupon        *model.Coupon
}

// ValidateCoupon проверяет применимость купона к корзине с указанной суммой.
// Правила проверяются по порядку, первая неудача выигрывает. Проверка только
// читает: счётчик использований инкрементируется при оформлении заказа.
func (s *Service) ValidateCoupon(ctx context.Context, code string, subtotalCents int64) (*CouponResult, error) {
	coupon, err := s.repo.GetCouponByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			return &CouponResult{Valid: false, Message: "Invalid coupon code"}, nil
		}
		return nil, err
	}

	if !coupon.IsActive {
		return &CouponResult{Valid: false, Message: "Invalid coupon code"}, nil
	}

	now := time.Now()
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return &CouponResult{Valid: false, Message: "Coupon is not active yet"}, nil
	}
	if coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt) {
		return &CouponResult{Valid: false, Message: "Coupon has expired"}, nil
	}

	if coupon.MaxUses != nil && coupon.UsedCount >= *coupon.MaxUses {
		return &CouponResult{Valid: false, Message: "Coupon usage limit reached"}, nil
	}

	if coupon.MinAmountCents != nil && subtotalCents < *coupon.MinAmountCents {
		return &CouponResult{
			Valid: false,
			Message: fmt.Sprintf("Minimum order amount of %.2f required",
				model.FloatFromCents(*coupon.MinAmountCents)),
		}, nil
	}

	return &CouponResult{
		Valid:         true,
		Message:       "Coupon applied",
		DiscountCents: discountCents(coupon, subtotalCents),
		Coupon:        coupon,
	}, nil
}

// discountCents вычисляет сумму скидки по типу купона. FREE_SHIPPING не даёт
// денежной скидки: доставку обнуляет вызывающая сторона.
func discountCents(c *model.Coupon, subtotalCents int64) int64 {
	switch c.Type {
	case model.CouponPercentage:
		return decimal.NewFromInt(subtotalCents).
			Mul(decimal.NewFromInt(c.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	case model.CouponFixedAmount:
		return c.Value
	default:
		return 0
	}
}

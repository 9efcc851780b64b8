package service

import (
	"context"
	"testing"
	"time"

	"github.com/mmeshcher/craftstore-system/internal/model"
)

func TestValidateCouponRules(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-24 * time.Hour)
	maxUses := 5
	minAmount := int64(5000)

	tests := []struct {
		name        string
		coupon      *model.Coupon
		subtotal    int64
		wantValid   bool
		wantMessage string
	}{
		{
			name:        "unknown code",
			coupon:      nil,
			subtotal:    10000,
			wantMessage: "Invalid coupon code",
		},
		{
			name:        "inactive coupon looks unknown",
			coupon:      &model.Coupon{Code: "OFF", Type: model.CouponPercentage, Value: 10},
			subtotal:    10000,
			wantMessage: "Invalid coupon code",
		},
		{
			name: "not started yet",
			coupon: &model.Coupon{
				Code: "SOON", Type: model.CouponPercentage, Value: 10,
				IsActive: true, StartsAt: &future,
			},
			subtotal:    10000,
			wantMessage: "Coupon is not active yet",
		},
		{
			name: "expired",
			coupon: &model.Coupon{
				Code: "OLD", Type: model.CouponPercentage, Value: 10,
				IsActive: true, ExpiresAt: &past,
			},
			subtotal:    10000,
			wantMessage: "Coupon has expired",
		},
		{
			name: "usage limit reached",
			coupon: &model.Coupon{
				Code: "USED", Type: model.CouponPercentage, Value: 10,
				IsActive: true, MaxUses: &maxUses, UsedCount: 5,
			},
			subtotal:    10000,
			wantMessage: "Coupon usage limit reached",
		},
		{
			name: "below minimum amount",
			coupon: &model.Coupon{
				Code: "BIG", Type: model.CouponPercentage, Value: 10,
				IsActive: true, MinAmountCents: &minAmount,
			},
			subtotal:    4999,
			wantMessage: "Minimum order amount of 50.00 required",
		},
		{
			name: "valid at minimum amount",
			coupon: &model.Coupon{
				Code: "BIG", Type: model.CouponPercentage, Value: 10,
				IsActive: true, MinAmountCents: &minAmount,
			},
			subtotal:    5000,
			wantValid:   true,
			wantMessage: "Coupon applied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&stubRepo{coupon: tt.coupon}, nil)

			res, err := svc.ValidateCoupon(context.Background(), "CODE", tt.subtotal)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if res.Valid != tt.wantValid {
				t.Errorf("valid = %v, want %v", res.Valid, tt.wantValid)
			}
			if res.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", res.Message, tt.wantMessage)
			}
		})
	}
}

func TestDiscountCents(t *testing.T) {
	tests := []struct {
		name     string
		coupon   *model.Coupon
		subtotal int64
		want     int64
	}{
		{"percentage", &model.Coupon{Type: model.CouponPercentage, Value: 10}, 10000, 1000},
		{"percentage rounds", &model.Coupon{Type: model.CouponPercentage, Value: 3}, 9999, 300},
		{"fixed amount", &model.Coupon{Type: model.CouponFixedAmount, Value: 1500}, 10000, 1500},
		{"free shipping has no money discount", &model.Coupon{Type: model.CouponFreeShipping}, 10000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := discountCents(tt.coupon, tt.subtotal); got != tt.want {
				t.Errorf("discountCents = %d, want %d", got, tt.want)
			}
		})
	}
}

package service

import (
	"context"

	"github.com/mmeshcher/craftstore-system/internal/model"
	"github.com/mmeshcher/craftstore-system/internal/repository"
)

// Статусы, устанавливаемые администратором вручную. SHIPPED, DELIVERED и
// REFUNDED достижимы только этим путём, сверка платежей их не трогает.
var adminOrderStatuses = map[model.OrderStatus]bool{
	model.OrderStatusPending:    true,
	model.OrderStatusConfirmed:  true,
	model.OrderStatusProcessing: true,
	model.OrderStatusShipped:    true,
	model.OrderStatusDelivered:  true,
	model.OrderStatusCancelled:  true,
	model.OrderStatusRefunded:   true,
}

// ListOrders возвращает заказы для административной панели.
func (s *Service) ListOrders(ctx context.Context, status model.OrderStatus, limit, offset int) ([]model.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListOrders(ctx, status, limit, offset)
}

// OverrideOrderStatus устанавливает статус заказа вручную.
func (s *Service) OverrideOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	if !adminOrderStatuses[status] {
		return Validationf("unknown order status: %s", status)
	}
	return s.repo.UpdateOrderStatus(ctx, orderID, status)
}

// DeleteOrder удаляет заказ вместе с зависимыми записями.
func (s *Service) DeleteOrder(ctx context.Context, orderID int64) error {
	return s.repo.DeleteOrder(ctx, orderID)
}

// ListUsers возвращает пользователей для административной панели.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]model.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListUsers(ctx, limit, offset)
}

// CreateProduct создаёт товар каталога.
func (s *Service) CreateProduct(ctx context.Context, p *model.Product) (int64, error) {
	if p.Name == "" {
		return 0, Validationf("Missing required field: name")
	}
	if p.PriceCents < 0 {
		return 0, Validationf("price must not be negative")
	}
	return s.repo.CreateProduct(ctx, p)
}

// UpdateProduct обновляет товар каталога.
func (s *Service) UpdateProduct(ctx context.Context, p *model.Product) error {
	if p.Name == "" {
		return Validationf("Missing required field: name")
	}
	if p.PriceCents < 0 {
		return Validationf("price must not be negative")
	}
	return s.repo.UpdateProduct(ctx, p)
}

// DeleteProduct удаляет товар каталога.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	return s.repo.DeleteProduct(ctx, id)
}

// ListCoupons возвращает купоны для административной панели.
func (s *Service) ListCoupons(ctx context.Context) ([]model.Coupon, error) {
	return s.repo.ListCoupons(ctx)
}

// CreateCoupon создаёт купон.
func (s *Service) CreateCoupon(ctx context.Context, c *model.Coupon) (int64, error) {
	if c.Code == "" {
		return 0, Validationf("Missing required field: code")
	}
	switch c.Type {
	case model.CouponPercentage, model.CouponFixedAmount, model.CouponFreeShipping:
	default:
		return 0, Validationf("unknown coupon type: %s", c.Type)
	}
	if c.Type == model.CouponPercentage && (c.Value <= 0 || c.Value > 100) {
		return 0, Validationf("percentage value must be between 1 and 100")
	}
	return s.repo.CreateCoupon(ctx, c)
}

// UpdateCoupon обновляет купон.
func (s *Service) UpdateCoupon(ctx context.Context, c *model.Coupon) error {
	switch c.Type {
	case model.CouponPercentage, model.CouponFixedAmount, model.CouponFreeShipping:
	default:
		return Validationf("unknown coupon type: %s", c.Type)
	}
	return s.repo.UpdateCoupon(ctx, c)
}

// DeleteCoupon удаляет купон.
func (s *Service) DeleteCoupon(ctx context.Context, id int64) error {
	return s.repo.DeleteCoupon(ctx, id)
}

// GetSalesSummary возвращает сводку продаж.
func (s *Service) GetSalesSummary(ctx context.Context) (*repository.SalesSummary, error) {
	return s.repo.GetSalesSummary(ctx, 10)
}

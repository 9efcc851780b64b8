package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/craftstore-system/internal/model"
	"github.com/mmeshcher/craftstore-system/internal/repository"
	"github.com/mmeshcher/craftstore-system/internal/validation"
)

// Стоимость доставки по способу в центах. Неизвестный способ — бесплатно.
var shippingRates = map[string]int64{
	"express":  3000,
	"standard": 1500,
}

const orderNumberAttempts = 5

// CheckoutRequest — данные формы оформления заказа. Цены, присланные
// клиентом, игнорируются: цена каждой позиции берётся из каталога.
type CheckoutRequest struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Address   string
	City      string
	State     string
	ZipCode   string
	Country   string

	PaymentMethod  model.PaymentMethod
	ShippingMethod string

	// CartItems — корзина гостя. Для авторизованного пользователя
	// игнорируется: позиции берутся из серверной корзины.
	CartItems []model.CartItem

	CouponCode string

	// UserID авторизованного пользователя; 0 для гостя.
	UserID int64
}

// CheckoutResult — результат успешного оформления заказа.
type CheckoutResult struct {
	OrderID     int64
	OrderNumber string
}

// Checkout оформляет заказ: валидирует форму, повторно сверяет корзину с
// каталогом, пересчитывает суммы на стороне сервера и атомарно сохраняет
// агрегат заказа. Письмо-подтверждение отправляется по принципу best effort.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if missing := validation.FirstMissing([]validation.Field{
		{Name: "email", Value: req.Email},
		{Name: "firstName", Value: req.FirstName},
		{Name: "lastName", Value: req.LastName},
		{Name: "address", Value: req.Address},
		{Name: "city", Value: req.City},
		{Name: "state", Value: req.State},
		{Name: "zipCode", Value: req.ZipCode},
		{Name: "country", Value: req.Country},
	}); missing != "" {
		return nil, Validationf("Missing required field: %s", missing)
	}
	if !validation.IsValidEmail(req.Email) {
		return nil, Validationf("Invalid email address")
	}

	items, err := s.resolveCart(ctx, req)
	if err != nil {
		return nil, err
	}

	orderItems, subtotalCents, err := s.priceItems(ctx, items)
	if err != nil {
		return nil, err
	}

	shippingCents := shippingRates[req.ShippingMethod]
	taxCents := model.TaxCents(subtotalCents, s.settings.TaxRateBP)

	var (
		discountCents int64
		couponID      *int64
	)
	if req.CouponCode != "" {
		res, err := s.ValidateCoupon(ctx, req.CouponCode, subtotalCents)
		if err != nil {
			return nil, err
		}
		if !res.Valid {
			return nil, Validationf("%s", res.Message)
		}
		discountCents = res.DiscountCents
		if discountCents > subtotalCents {
			discountCents = subtotalCents
		}
		if res.Coupon.Type == model.CouponFreeShipping {
			shippingCents = 0
		}
		couponID = &res.Coupon.ID
	}

	totalCents := subtotalCents + shippingCents + taxCents - discountCents

	userID, err := s.repo.FindOrCreateUserByEmail(ctx, req.Email, req.FirstName, req.LastName, req.Phone)
	if err != nil {
		return nil, err
	}

	params := repository.CreateOrderParams{
		UserID: userID,
		Address: model.Address{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
			Street:    req.Address,
			City:      req.City,
			State:     req.State,
			ZipCode:   req.ZipCode,
			Country:   req.Country,
		},
		Items:          orderItems,
		PaymentMethod:  req.PaymentMethod,
		ShippingMethod: req.ShippingMethod,
		SubtotalCents:  subtotalCents,
		ShippingCents:  shippingCents,
		TaxCents:       taxCents,
		DiscountCents:  discountCents,
		TotalCents:     totalCents,
		CouponCode:     req.CouponCode,
		CouponID:       couponID,
	}

	orderID, number, err := s.createOrderWithNumber(ctx, params)
	if err != nil {
		return nil, err
	}

	if req.UserID != 0 {
		if err := s.repo.ClearCart(ctx, req.UserID); err != nil {
			s.logger.Warn("clear cart after checkout failed", zap.Error(err), zap.Int64("userID", req.UserID))
		}
	}

	s.sendConfirmation(ctx, req.Email, &model.Order{
		ID:         orderID,
		Number:     number,
		TotalCents: totalCents,
		Items:      orderItems,
	})

	return &CheckoutResult{OrderID: orderID, OrderNumber: number}, nil
}

// resolveCart определяет источник позиций заказа: серверная корзина для
// авторизованного пользователя, тело запроса для гостя. Клиентским данным
// доверяются только идентификатор товара и количество.
func (s *Service) resolveCart(ctx context.Context, req CheckoutRequest) ([]model.CartItem, error) {
	if req.UserID != 0 {
		items, err := s.repo.GetCartItems(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, Validationf("cart is empty")
		}
		return items, nil
	}

	if len(req.CartItems) == 0 {
		return nil, Validationf("cart is empty")
	}
	return req.CartItems, nil
}

// priceItems повторно сверяет каждую позицию с каталогом и формирует снимки
// позиций с авторитетной ценой. Любая недоступная позиция отклоняет заказ целиком.
func (s *Service) priceItems(ctx context.Context, items []model.CartItem) ([]model.OrderItem, int64, error) {
	orderItems := make([]model.OrderItem, 0, len(items))
	var subtotalCents int64

	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, 0, Validationf("Invalid quantity for product %d", it.ProductID)
		}

		p, err := s.repo.GetProduct(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				return nil, 0, Validationf("Product %d is unavailable", it.ProductID)
			}
			return nil, 0, err
		}
		if !p.IsActive {
			return nil, 0, Validationf("Product %s is unavailable", p.Name)
		}
		if p.Stock < it.Quantity {
			return nil, 0, Validationf("Insufficient stock for %s", p.Name)
		}

		orderItems = append(orderItems, model.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			PriceCents:  p.PriceCents,
			Quantity:    it.Quantity,
		})
		subtotalCents += p.PriceCents * int64(it.Quantity)
	}

	return orderItems, subtotalCents, nil
}

// createOrderWithNumber сохраняет заказ, повторяя попытку с новым номером
// при коллизии по уникальному ограничению.
func (s *Service) createOrderWithNumber(ctx context.Context, params repository.CreateOrderParams) (int64, string, error) {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		params.Number = generateOrderNumber()

		orderID, err := s.repo.CreateOrder(ctx, params)
		if err == nil {
			return orderID, params.Number, nil
		}
		if errors.Is(err, repository.ErrOrderNumberTaken) {
			continue
		}
		if errors.Is(err, repository.ErrInsufficientStock) {
			return 0, "", Validationf("%s", friendlyStockError(err))
		}
		if errors.Is(err, repository.ErrCouponExhausted) {
			return 0, "", Validationf("Coupon usage limit reached")
		}
		return 0, "", err
	}

	return 0, "", fmt.Errorf("generate order number: attempts exhausted")
}

func friendlyStockError(err error) string {
	name := err.Error()
	prefix := repository.ErrInsufficientStock.Error() + ": "
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return "Insufficient stock for " + name[len(prefix):]
	}
	return "Insufficient stock"
}

// generateOrderNumber собирает человекочитаемый номер заказа из метки времени
// и случайного суффикса. Уникальность гарантируется ограничением в БД
// с повторной генерацией при коллизии.
func generateOrderNumber() string {
	return "TAC" + strconv.FormatInt(time.Now().UnixMilli(), 10) + fmt.Sprintf("%04d", rand.IntN(10000))
}

func (s *Service) sendConfirmation(ctx context.Context, to string, order *model.Order) {
	if s.sender == nil {
		return
	}
	if err := s.sender.SendOrderConfirmation(ctx, to, order); err != nil {
		s.logger.Warn("order confirmation email failed",
			zap.Error(err), zap.String("order", order.Number))
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/mmeshcher/craftstore-system/internal/model"
	"github.com/mmeshcher/craftstore-system/internal/repository"
)

func validCheckoutRequest() CheckoutRequest {
	return CheckoutRequest{
		Email:          "buyer@example.com",
		FirstName:      "Jane",
		LastName:       "Doe",
		Address:        "1 Main st",
		City:           "Nairobi",
		State:          "NB",
		ZipCode:        "00100",
		Country:        "KE",
		PaymentMethod:  model.PaymentMethodPesapal,
		ShippingMethod: "standard",
		CartItems: []model.CartItem{
			{ProductID: 1, Quantity: 2},
		},
	}
}

func checkoutRepo() *stubRepo {
	return &stubRepo{
		products: map[int64]*model.Product{
			1: {ID: 1, Name: "Ceramic Vase", PriceCents: 5000, Stock: 10, IsActive: true},
		},
		findOrCreateID: 42,
		createOrderID:  7,
	}
}

func TestCheckoutTotalsComputedServerSide(t *testing.T) {
	repo := checkoutRepo()
	svc := newTestService(repo, nil)

	res, err := svc.Checkout(context.Background(), validCheckoutRequest())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.OrderID != 7 {
		t.Errorf("order id = %d, want 7", res.OrderID)
	}

	if len(repo.createOrderCalls) != 1 {
		t.Fatalf("CreateOrder calls = %d, want 1", len(repo.createOrderCalls))
	}
	p := repo.createOrderCalls[0]

	// 2 x 50.00, доставка standard 15.00, налог 8% = 8.00, итого 123.00.
	if p.SubtotalCents != 10000 || p.ShippingCents != 1500 || p.TaxCents != 800 || p.TotalCents != 12300 {
		t.Errorf("totals = subtotal %d, shipping %d, tax %d, total %d",
			p.SubtotalCents, p.ShippingCents, p.TaxCents, p.TotalCents)
	}

	// Цена позиции — снимок из каталога.
	if len(p.Items) != 1 || p.Items[0].PriceCents != 5000 || p.Items[0].ProductName != "Ceramic Vase" {
		t.Errorf("unexpected items: %+v", p.Items)
	}
	if p.UserID != 42 {
		t.Errorf("user id = %d, want 42", p.UserID)
	}
}

func TestCheckoutMissingField(t *testing.T) {
	svc := newTestService(checkoutRepo(), nil)

	req := validCheckoutRequest()
	req.Email = "   "

	_, err := svc.Checkout(context.Background(), req)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Error() != "Missing required field: email" {
		t.Errorf("message = %q", ve.Error())
	}
}

func TestCheckoutInvalidEmail(t *testing.T) {
	svc := newTestService(checkoutRepo(), nil)

	req := validCheckoutRequest()
	req.Email = "not-an-email"

	_, err := svc.Checkout(context.Background(), req)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc := newTestService(checkoutRepo(), nil)

	req := validCheckoutRequest()
	req.CartItems = nil

	_, err := svc.Checkout(context.Background(), req)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Error() != "cart is empty" {
		t.Errorf("message = %q", ve.Error())
	}
}

func TestCheckoutInactiveProductRejected(t *testing.T) {
	repo := checkoutRepo()
	repo.products[1].IsActive = false
	svc := newTestService(repo, nil)

	_, err := svc.Checkout(context.Background(), validCheckoutRequest())
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Error() != "Product Ceramic Vase is unavailable" {
		t.Errorf("message = %q", ve.Error())
	}
}

func TestCheckoutStockValidatedAgainstCatalog(t *testing.T) {
	repo := checkoutRepo()
	repo.products[1].Stock = 1
	svc := newTestService(repo, nil)

	_, err := svc.Checkout(context.Background(), validCheckoutRequest())
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Error() != "Insufficient stock for Ceramic Vase" {
		t.Errorf("message = %q", ve.Error())
	}
}

func TestCheckoutServerCartWinsForAuthenticatedUser(t *testing.T) {
	repo := checkoutRepo()
	repo.products[2] = &model.Product{ID: 2, Name: "Basket", PriceCents: 2000, Stock: 5, IsActive: true}
	repo.cartItems = []model.CartItem{{ProductID: 2, Quantity: 1}}
	svc := newTestService(repo, nil)

	req := validCheckoutRequest()
	req.UserID = 42

	if _, err := svc.Checkout(context.Background(), req); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	p := repo.createOrderCalls[0]
	if len(p.Items) != 1 || p.Items[0].ProductID != 2 {
		t.Errorf("expected server cart items, got %+v", p.Items)
	}
	if repo.clearedUserID != 42 {
		t.Errorf("cart not cleared for user 42, cleared %d", repo.clearedUserID)
	}
}

func TestCheckoutRetriesOnOrderNumberCollision(t *testing.T) {
	repo := checkoutRepo()
	repo.createOrderErrs = []error{repository.ErrOrderNumberTaken}
	svc := newTestService(repo, nil)

	res, err := svc.Checkout(context.Background(), validCheckoutRequest())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if len(repo.createOrderCalls) != 2 {
		t.Fatalf("CreateOrder calls = %d, want 2", len(repo.createOrderCalls))
	}
	if res.OrderNumber != repo.createOrderCalls[1].Number {
		t.Errorf("result number %q, last attempt %q", res.OrderNumber, repo.createOrderCalls[1].Number)
	}
}

func TestCheckoutInsufficientStockAtCommit(t *testing.T) {
	repo := checkoutRepo()
	repo.createOrderErrs = []error{
		fmt.Errorf("%w: %s", repository.ErrInsufficientStock, "Ceramic Vase"),
	}
	svc := newTestService(repo, nil)

	_, err := svc.Checkout(context.Background(), validCheckoutRequest())
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Error() != "Insufficient stock for Ceramic Vase" {
		t.Errorf("message = %q", ve.Error())
	}
}

func TestCheckoutCouponApplied(t *testing.T) {
	repo := checkoutRepo()
	repo.coupon = &model.Coupon{
		ID:       3,
		Code:     "SAVE10",
		Type:     model.CouponPercentage,
		Value:    10,
		IsActive: true,
	}
	svc := newTestService(repo, nil)

	req := validCheckoutRequest()
	req.CouponCode = "SAVE10"

	if _, err := svc.Checkout(context.Background(), req); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	p := repo.createOrderCalls[0]
	if p.DiscountCents != 1000 {
		t.Errorf("discount = %d, want 1000", p.DiscountCents)
	}
	if p.TotalCents != 11300 {
		t.Errorf("total = %d, want 11300", p.TotalCents)
	}
	if p.CouponID == nil || *p.CouponID != 3 {
		t.Errorf("coupon id not passed for in-transaction increment: %v", p.CouponID)
	}
}

func TestCheckoutFreeShippingCoupon(t *testing.T) {
	repo := checkoutRepo()
	repo.coupon = &model.Coupon{
		ID:       4,
		Code:     "SHIPFREE",
		Type:     model.CouponFreeShipping,
		IsActive: true,
	}
	svc := newTestService(repo, nil)

	req := validCheckoutRequest()
	req.CouponCode = "SHIPFREE"

	if _, err := svc.Checkout(context.Background(), req); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	p := repo.createOrderCalls[0]
	if p.ShippingCents != 0 {
		t.Errorf("shipping = %d, want 0", p.ShippingCents)
	}
	if p.DiscountCents != 0 {
		t.Errorf("discount = %d, want 0", p.DiscountCents)
	}
}

func TestCheckoutInvalidCouponRejectsOrder(t *testing.T) {
	repo := checkoutRepo()
	svc := newTestService(repo, nil)

	req := validCheckoutRequest()
	req.CouponCode = "NOPE"

	_, err := svc.Checkout(context.Background(), req)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Error() != "Invalid coupon code" {
		t.Errorf("message = %q", ve.Error())
	}
	if len(repo.createOrderCalls) != 0 {
		t.Error("order must not be created with invalid coupon")
	}
}

func TestGenerateOrderNumberFormat(t *testing.T) {
	re := regexp.MustCompile(`^TAC\d{17}$`)
	for i := 0; i < 10; i++ {
		n := generateOrderNumber()
		if !re.MatchString(n) {
			t.Fatalf("order number %q does not match format", n)
		}
	}
}

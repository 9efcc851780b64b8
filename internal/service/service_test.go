package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/craftstore-system/internal/gateway"
	"github.com/mmeshcher/craftstore-system/internal/model"
	"github.com/mmeshcher/craftstore-system/internal/repository"
)

type stubRepo struct {
	products map[int64]*model.Product

	cartItems []model.CartItem
	cartErr   error

	clearedUserID int64

	findOrCreateID  int64
	findOrCreateErr error

	// createOrderErrs возвращаются по одной на каждый вызов CreateOrder;
	// после исчерпания списка вызов успешен.
	createOrderErrs  []error
	createOrderID    int64
	createOrderCalls []repository.CreateOrderParams

	orderByID        *model.Order
	orderByIDErr     error
	orderByNumber    *model.Order
	orderByNumberErr error
	orderByTxn       *model.Order
	orderByTxnErr    error

	upserted  []model.Payment
	upsertErr error

	stateCalls   int
	stateOrderID int64
	stateOrder   model.OrderStatus
	statePayment model.PaymentStatus

	coupon    *model.Coupon
	couponErr error

	stalePayments []model.Payment
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, email string, passwordHash []byte) (int64, error) {
	return 0, nil
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, repository.ErrUserNotFound
}

func (s *stubRepo) FindOrCreateUserByEmail(ctx context.Context, email, firstName, lastName, phone string) (int64, error) {
	return s.findOrCreateID, s.findOrCreateErr
}

func (s *stubRepo) GetUserRoleByID(ctx context.Context, id int64) (model.UserRole, error) {
	return model.RoleCustomer, nil
}

func (s *stubRepo) ListUsers(ctx context.Context, limit, offset int) ([]model.User, error) {
	return nil, nil
}

func (s *stubRepo) ListProducts(ctx context.Context, categorySlug string) ([]model.ProductView, error) {
	return nil, nil
}

func (s *stubRepo) GetProductView(ctx context.Context, id int64) (*model.ProductView, error) {
	return nil, repository.ErrProductNotFound
}

func (s *stubRepo) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (s *stubRepo) ListCategories(ctx context.Context) ([]model.Category, error) { return nil, nil }

func (s *stubRepo) CreateProduct(ctx context.Context, p *model.Product) (int64, error) {
	return 0, nil
}

func (s *stubRepo) UpdateProduct(ctx context.Context, p *model.Product) error { return nil }

func (s *stubRepo) DeleteProduct(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) GetCartItems(ctx context.Context, userID int64) ([]model.CartItem, error) {
	return s.cartItems, s.cartErr
}

func (s *stubRepo) SetCartItem(ctx context.Context, userID, productID int64, quantity int) error {
	return nil
}

func (s *stubRepo) RemoveCartItem(ctx context.Context, userID, productID int64) error { return nil }

func (s *stubRepo) ClearCart(ctx context.Context, userID int64) error {
	s.clearedUserID = userID
	return nil
}

func (s *stubRepo) MergeCart(ctx context.Context, userID int64, items []model.CartItem) error {
	return nil
}

func (s *stubRepo) CreateOrder(ctx context.Context, p repository.CreateOrderParams) (int64, error) {
	s.createOrderCalls = append(s.createOrderCalls, p)
	if len(s.createOrderErrs) > 0 {
		err := s.createOrderErrs[0]
		s.createOrderErrs = s.createOrderErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	return s.createOrderID, nil
}

func (s *stubRepo) GetOrderByID(ctx context.Context, id int64) (*model.Order, error) {
	if s.orderByIDErr != nil {
		return nil, s.orderByIDErr
	}
	if s.orderByID == nil {
		return nil, repository.ErrOrderNotFound
	}
	return s.orderByID, nil
}

func (s *stubRepo) GetOrderByNumber(ctx context.Context, number string) (*model.Order, error) {
	if s.orderByNumberErr != nil {
		return nil, s.orderByNumberErr
	}
	if s.orderByNumber == nil {
		return nil, repository.ErrOrderNotFound
	}
	return s.orderByNumber, nil
}

func (s *stubRepo) GetOrderByTransactionID(ctx context.Context, method model.PaymentMethod, transactionID string) (*model.Order, error) {
	if s.orderByTxnErr != nil {
		return nil, s.orderByTxnErr
	}
	if s.orderByTxn == nil {
		return nil, repository.ErrOrderNotFound
	}
	return s.orderByTxn, nil
}

func (s *stubRepo) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) ListOrders(ctx context.Context, status model.OrderStatus, limit, offset int) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) UpdateOrderPaymentState(ctx context.Context, orderID int64, status model.OrderStatus, paymentStatus model.PaymentStatus) error {
	s.stateCalls++
	s.stateOrderID = orderID
	s.stateOrder = status
	s.statePayment = paymentStatus
	return nil
}

func (s *stubRepo) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	return nil
}

func (s *stubRepo) DeleteOrder(ctx context.Context, orderID int64) error { return nil }

func (s *stubRepo) UpsertPayment(ctx context.Context, p *model.Payment) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserted = append(s.upserted, *p)
	return nil
}

func (s *stubRepo) GetPayment(ctx context.Context, orderID int64, method model.PaymentMethod) (*model.Payment, error) {
	return nil, repository.ErrPaymentNotFound
}

func (s *stubRepo) GetStalePendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]model.Payment, error) {
	return s.stalePayments, nil
}

func (s *stubRepo) GetCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	if s.couponErr != nil {
		return nil, s.couponErr
	}
	if s.coupon == nil {
		return nil, repository.ErrCouponNotFound
	}
	return s.coupon, nil
}

func (s *stubRepo) ListCoupons(ctx context.Context) ([]model.Coupon, error) { return nil, nil }

func (s *stubRepo) CreateCoupon(ctx context.Context, c *model.Coupon) (int64, error) { return 0, nil }

func (s *stubRepo) UpdateCoupon(ctx context.Context, c *model.Coupon) error { return nil }

func (s *stubRepo) DeleteCoupon(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) GetSalesSummary(ctx context.Context, topLimit int) (*repository.SalesSummary, error) {
	return &repository.SalesSummary{}, nil
}

type stubGateway struct {
	verification *gateway.Verification
	verifyErr    error
	verifyCalls  int

	createResp *gateway.CreatePaymentResponse
	createErr  error
	createReq  gateway.CreatePaymentRequest
}

func (g *stubGateway) CreatePayment(ctx context.Context, req gateway.CreatePaymentRequest) (*gateway.CreatePaymentResponse, error) {
	g.createReq = req
	return g.createResp, g.createErr
}

func (g *stubGateway) VerifyPayment(ctx context.Context, trackingID, merchantReference string) (*gateway.Verification, error) {
	g.verifyCalls++
	return g.verification, g.verifyErr
}

func newTestService(repo *stubRepo, gateways map[model.PaymentMethod]gateway.Gateway) *Service {
	return NewService(repo, gateways, nil, zap.NewNop(), Settings{
		TaxRateBP:     800,
		Currency:      "USD",
		PublicBaseURL: "https://shop.example.com",
	})
}

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user@example.com", "pass")
	b := hashPassword("user@example.com", "pass")
	c := hashPassword("user@example.com", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

func TestSetCartItemValidation(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil)

	if err := svc.SetCartItem(context.Background(), 1, 0, 1); err == nil {
		t.Error("expected error for zero product id")
	}
	if err := svc.SetCartItem(context.Background(), 1, 2, -5); err == nil {
		t.Error("expected error for negative quantity")
	}
}

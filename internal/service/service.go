// Package service реализует бизнес-логику интернет-магазина.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/craftstore-system/internal/email"
	"github.com/mmeshcher/craftstore-system/internal/gateway"
	"github.com/mmeshcher/craftstore-system/internal/model"
	"github.com/mmeshcher/craftstore-system/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, email string, passwordHash []byte) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindOrCreateUserByEmail(ctx context.Context, email, firstName, lastName, phone string) (int64, error)
	GetUserRoleByID(ctx context.Context, id int64) (model.UserRole, error)
	ListUsers(ctx context.Context, limit, offset int) ([]model.User, error)

	ListProducts(ctx context.Context, categorySlug string) ([]model.ProductView, error)
	GetProductView(ctx context.Context, id int64) (*model.ProductView, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateProduct(ctx context.Context, p *model.Product) (int64, error)
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	GetCartItems(ctx context.Context, userID int64) ([]model.CartItem, error)
	SetCartItem(ctx context.Context, userID, productID int64, quantity int) error
	RemoveCartItem(ctx context.Context, userID, productID int64) error
	ClearCart(ctx context.Context, userID int64) error
	MergeCart(ctx context.Context, userID int64, items []model.CartItem) error

	CreateOrder(ctx context.Context, p repository.CreateOrderParams) (int64, error)
	GetOrderByID(ctx context.Context, id int64) (*model.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*model.Order, error)
	GetOrderByTransactionID(ctx context.Context, method model.PaymentMethod, transactionID string) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	ListOrders(ctx context.Context, status model.OrderStatus, limit, offset int) ([]model.Order, error)
	UpdateOrderPaymentState(ctx context.Context, orderID int64, status model.OrderStatus, paymentStatus model.PaymentStatus) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
	DeleteOrder(ctx context.Context, orderID int64) error

	UpsertPayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, orderID int64, method model.PaymentMethod) (*model.Payment, error)
	GetStalePendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]model.Payment, error)

	GetCouponByCode(ctx context.Context, code string) (*model.Coupon, error)
	ListCoupons(ctx context.Context) ([]model.Coupon, error)
	CreateCoupon(ctx context.Context, c *model.Coupon) (int64, error)
	UpdateCoupon(ctx context.Context, c *model.Coupon) error
	DeleteCoupon(ctx context.Context, id int64) error

	GetSalesSummary(ctx context.Context, topLimit int) (*repository.SalesSummary, error)
}

// ValidationError — ошибка валидации входных данных с сообщением для покупателя.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Validationf создаёт ValidationError с форматированным сообщением.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Settings — параметры расчётов сервиса.
type Settings struct {
	// Ставка налога в базисных пунктах.
	TaxRateBP int64
	// Валюта расчётов магазина.
	Currency string
	// Публичный базовый URL магазина для callback-адресов шлюзов.
	PublicBaseURL string
}

// Service содержит бизнес-логику интернет-магазина.
type Service struct {
	repo     Repository
	gateways map[model.PaymentMethod]gateway.Gateway
	sender   email.Sender
	logger   *zap.Logger
	settings Settings
}

// NewService создаёт сервис с указанным репозиторием, платёжными шлюзами и отправителем писем.
func NewService(repo Repository, gateways map[model.PaymentMethod]gateway.Gateway, sender email.Sender, logger *zap.Logger, settings Settings) *Service {
	if settings.Currency == "" {
		settings.Currency = "USD"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		gateways: gateways,
		sender:   sender,
		logger:   logger,
		settings: settings,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового покупателя. Клиентская корзина, накопленная
// до регистрации, сливается в серверную.
func (s *Service) RegisterUser(ctx context.Context, emailAddr, password string, cart []model.CartItem) (int64, error) {
	hashed := hashPassword(emailAddr, password)
	id, err := s.repo.CreateUser(ctx, emailAddr, hashed)
	if err != nil {
		return 0, err
	}

	if err := s.repo.MergeCart(ctx, id, cart); err != nil {
		s.logger.Warn("merge cart after register failed", zap.Error(err), zap.Int64("userID", id))
	}

	return id, nil
}

// AuthenticateUser проверяет email и пароль пользователя и возвращает его
// идентификатор. Клиентская корзина сливается в серверную.
func (s *Service) AuthenticateUser(ctx context.Context, emailAddr, password string, cart []model.CartItem) (int64, error) {
	u, err := s.repo.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(emailAddr, password)
	if len(u.PasswordHash) == 0 || hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, errors.New("invalid credentials")
	}

	if err := s.repo.MergeCart(ctx, u.ID, cart); err != nil {
		s.logger.Warn("merge cart after login failed", zap.Error(err), zap.Int64("userID", u.ID))
	}

	return u.ID, nil
}

// IsAdmin сообщает, обладает ли пользователь правами администратора.
func (s *Service) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	role, err := s.repo.GetUserRoleByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return role == model.RoleAdmin, nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

// ListProducts возвращает витрину товаров.
func (s *Service) ListProducts(ctx context.Context, categorySlug string) ([]model.ProductView, error) {
	return s.repo.ListProducts(ctx, categorySlug)
}

// GetProductView возвращает витринное представление товара.
func (s *Service) GetProductView(ctx context.Context, id int64) (*model.ProductView, error) {
	return s.repo.GetProductView(ctx, id)
}

// ListCategories возвращает категории каталога.
func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.repo.ListCategories(ctx)
}

// GetCart возвращает серверную корзину пользователя.
func (s *Service) GetCart(ctx context.Context, userID int64) ([]model.CartItem, error) {
	return s.repo.GetCartItems(ctx, userID)
}

// SetCartItem устанавливает количество товара в корзине, предварительно
// проверив, что товар существует и активен.
func (s *Service) SetCartItem(ctx context.Context, userID, productID int64, quantity int) error {
	if quantity < 0 {
		return Validationf("quantity must not be negative")
	}

	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return Validationf("Product %d is unavailable", productID)
		}
		return err
	}
	if !p.IsActive {
		return Validationf("Product %s is unavailable", p.Name)
	}

	return s.repo.SetCartItem(ctx, userID, productID, quantity)
}

// RemoveCartItem удаляет позицию из корзины пользователя.
func (s *Service) RemoveCartItem(ctx context.Context, userID, productID int64) error {
	return s.repo.RemoveCartItem(ctx, userID, productID)
}

// GetOrder возвращает заказ с позициями и адресом для страницы статуса.
func (s *Service) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.repo.GetOrderByID(ctx, id)
}

// GetOrdersByUser возвращает заказы пользователя.
func (s *Service) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, userID)
}

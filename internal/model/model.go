// Package model содержит доменные сущности интернет-магазина.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserRole описывает роль пользователя.
type UserRole string

const (
	RoleCustomer UserRole = "CUSTOMER"
	RoleAdmin    UserRole = "ADMIN"
)

// User представляет покупателя или администратора магазина.
// PasswordHash пуст для пользователей, созданных при гостевом оформлении заказа.
type User struct {
	ID           int64
	Email        string
	FirstName    string
	LastName     string
	Phone        string
	PasswordHash []byte
	Role         UserRole
	CreatedAt    time.Time
}

// Category представляет категорию каталога.
type Category struct {
	ID   int64
	Name string
	Slug string
}

// Artisan представляет мастера, изготовившего товар.
type Artisan struct {
	ID       int64
	Name     string
	Location string
}

// Product представляет товар каталога. PriceCents — актуальная цена в центах,
// единственный авторитетный источник цены при оформлении заказа.
type Product struct {
	ID          int64
	Name        string
	Description string
	PriceCents  int64
	Stock       int
	IsActive    bool
	CategoryID  *int64
	ArtisanID   *int64
	ImageURL    string
	CreatedAt   time.Time
}

// ProductView — денормализованное представление товара для витрины.
type ProductView struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Price        float64 `json:"price"`
	Stock        int     `json:"stock"`
	CategoryName string  `json:"category"`
	ArtisanName  string  `json:"artisan"`
	ImageURL     string  `json:"imageUrl,omitempty"`
}

// CartItem — позиция серверной корзины авторизованного пользователя.
type CartItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

// PaymentStatus описывает статус оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// PaymentMethod описывает платёжный шлюз, выбранный для заказа.
type PaymentMethod string

const (
	PaymentMethodPesapal PaymentMethod = "pesapal"
	PaymentMethodPayPal  PaymentMethod = "paypal"
	PaymentMethodCOD     PaymentMethod = "cod"
)

// Order — агрегат заказа. Денежные поля хранятся в центах единой валюты расчётов.
type Order struct {
	ID             int64
	Number         string
	UserID         int64
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	PaymentMethod  PaymentMethod
	ShippingMethod string
	SubtotalCents  int64
	ShippingCents  int64
	TaxCents       int64
	DiscountCents  int64
	TotalCents     int64
	CouponCode     string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Items   []OrderItem
	Address *Address
	// UserEmail заполняется при загрузке заказа с деталями.
	UserEmail string
}

// OrderItem — позиция заказа. Название и цена — снимок на момент покупки,
// последующие изменения товара на них не влияют.
type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	PriceCents  int64
	Quantity    int
}

// Address — адрес доставки, создаваемый вместе с заказом.
type Address struct {
	ID        int64
	FirstName string
	LastName  string
	Phone     string
	Street    string
	City      string
	State     string
	ZipCode   string
	Country   string
}

// Payment — запись о попытке оплаты заказа через шлюз.
// Для пары (OrderID, Method) хранится одна актуальная запись,
// обновляемая при повторных уведомлениях шлюза.
type Payment struct {
	ID            int64
	OrderID       int64
	Method        PaymentMethod
	Status        PaymentStatus
	TransactionID string
	AmountCents   int64
	Currency      string
	RawResponse   []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CouponType описывает тип скидки купона.
type CouponType string

const (
	CouponPercentage   CouponType = "PERCENTAGE"
	CouponFixedAmount  CouponType = "FIXED_AMOUNT"
	CouponFreeShipping CouponType = "FREE_SHIPPING"
)

// Coupon — правило скидки. Value интерпретируется по типу купона:
// для PERCENTAGE это проценты, для FIXED_AMOUNT — сумма в центах.
type Coupon struct {
	ID             int64
	Code           string
	Type           CouponType
	Value          int64
	MinAmountCents *int64
	MaxUses        *int
	UsedCount      int
	IsActive       bool
	StartsAt       *time.Time
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// CentsFromFloat переводит денежную сумму из долларов в центы без потери точности.
func CentsFromFloat(v float64) int64 {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FloatFromCents переводит сумму из центов в доллары для JSON-ответов.
func FloatFromCents(c int64) float64 {
	f, _ := decimal.NewFromInt(c).Div(decimal.NewFromInt(100)).Float64()
	return f
}

// TaxCents вычисляет налог от суммы по ставке в базисных пунктах.
func TaxCents(subtotalCents int64, rateBP int64) int64 {
	return decimal.NewFromInt(subtotalCents).
		Mul(decimal.NewFromInt(rateBP)).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()
}

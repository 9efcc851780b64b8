// Package gateway определяет контракт платёжного шлюза.
// Конкретные реализации находятся в подпакетах pesapal и paypal
// и выбираются по методу оплаты заказа.
package gateway

import "context"

// Нормализованный словарь статусов шлюза. Реализации приводят
// собственную терминологию шлюза к этим значениям.
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// CreatePaymentRequest — данные для инициализации платежа на стороне шлюза.
type CreatePaymentRequest struct {
	OrderNumber string
	AmountCents int64
	Currency    string
	Description string
	CallbackURL string
	Email       string
	Phone       string
	FirstName   string
	LastName    string
}

// CreatePaymentResponse — результат инициализации платежа.
type CreatePaymentResponse struct {
	TrackingID  string
	RedirectURL string
}

// Verification — авторитетный результат проверки транзакции у шлюза.
// Это единственный источник истины о статусе платежа: параметры
// callback-запросов не аутентифицированы и не используются для статуса.
type Verification struct {
	TrackingID        string
	MerchantReference string
	Status            string
	Amount            float64
	Currency          string
	Raw               []byte
}

// Gateway — платёжный шлюз. CreatePayment регистрирует платёж и возвращает
// URL перенаправления покупателя; VerifyPayment запрашивает у шлюза
// актуальный статус транзакции.
type Gateway interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error)
	VerifyPayment(ctx context.Context, trackingID, merchantReference string) (*Verification, error)
}

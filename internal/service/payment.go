package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/craftstore-system/internal/gateway"
	"github.com/mmeshcher/craftstore-system/internal/model"
	"github.com/mmeshcher/craftstore-system/internal/repository"
)

// ErrVerificationFailed возвращается, когда шлюз не смог подтвердить статус
// транзакции. Путь IPN отдаёт по нему повторяемую ошибку, чтобы шлюз
// доставил уведомление ещё раз.
var ErrVerificationFailed = errors.New("payment verification failed")

// ErrNoGateway возвращается, если для способа оплаты заказа не настроен шлюз.
var ErrNoGateway = errors.New("no gateway configured for payment method")

// InitiatePaymentResult — результат инициализации платежа на стороне шлюза.
type InitiatePaymentResult struct {
	TrackingID  string
	RedirectURL string
}

// InitiatePayment регистрирует платёж заказа в шлюзе и сохраняет запись
// Payment в статусе PENDING с идентификатором транзакции. Возвращает URL,
// на который нужно перенаправить покупателя.
func (s *Service) InitiatePayment(ctx context.Context, orderID int64) (*InitiatePaymentResult, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	gw, ok := s.gateways[order.PaymentMethod]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGateway, order.PaymentMethod)
	}

	res, err := gw.CreatePayment(ctx, gateway.CreatePaymentRequest{
		OrderNumber: order.Number,
		AmountCents: order.TotalCents,
		Currency:    s.settings.Currency,
		Description: "Order " + order.Number,
		CallbackURL: s.settings.PublicBaseURL + "/api/payments/callback?orderId=" + fmt.Sprint(order.ID),
		Email:       order.UserEmail,
		FirstName:   order.Address.FirstName,
		LastName:    order.Address.LastName,
		Phone:       order.Address.Phone,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	payment := &model.Payment{
		OrderID:       order.ID,
		Method:        order.PaymentMethod,
		Status:        model.PaymentStatusPending,
		TransactionID: res.TrackingID,
		AmountCents:   order.TotalCents,
		Currency:      s.settings.Currency,
	}
	if err := s.repo.UpsertPayment(ctx, payment); err != nil {
		return nil, err
	}

	return &InitiatePaymentResult{TrackingID: res.TrackingID, RedirectURL: res.RedirectURL}, nil
}

// ReconcileInput — идентификаторы, извлечённые из callback- или IPN-запроса.
type ReconcileInput struct {
	// OrderID задан на пути redirect-callback: магазин кодировал его в return URL.
	OrderID int64
	// MerchantReference — номер заказа, возвращённый шлюзом.
	MerchantReference string
	// TrackingID — идентификатор транзакции на стороне шлюза.
	TrackingID string
}

// ReconcileResult — итог сверки платежа.
type ReconcileResult struct {
	OrderID       int64
	OrderNumber   string
	TrackingID    string
	OrderStatus   model.OrderStatus
	PaymentStatus model.PaymentStatus
	// LandingStatus — человекочитаемый статус для страницы результата,
	// производный от ответа шлюза, а не от сохранённого статуса заказа.
	LandingStatus string
}

// ReconcilePayment сверяет записи магазина с авторитетным состоянием
// транзакции в шлюзе. Операция идемпотентна: повторная или пришедшая в другом
// порядке доставка того же события сходится к одному и тому же состоянию,
// потому что статус каждый раз запрашивается у шлюза заново и применяется
// детерминированно через upsert по ключу (заказ, шлюз).
func (s *Service) ReconcilePayment(ctx context.Context, in ReconcileInput) (*ReconcileResult, error) {
	order, err := s.resolveOrder(ctx, in)
	if err != nil {
		return nil, err
	}

	gw, ok := s.gateways[order.PaymentMethod]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGateway, order.PaymentMethod)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	v, err := gw.VerifyPayment(verifyCtx, in.TrackingID, order.Number)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, err)
	}

	paymentStatus := mapPaymentStatus(v.Status)
	orderStatus := nextOrderStatus(order.Status, paymentStatus)

	payment := &model.Payment{
		OrderID:       order.ID,
		Method:        order.PaymentMethod,
		Status:        paymentStatus,
		TransactionID: v.TrackingID,
		AmountCents:   model.CentsFromFloat(v.Amount),
		Currency:      v.Currency,
		RawResponse:   v.Raw,
	}
	if err := s.repo.UpsertPayment(ctx, payment); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateOrderPaymentState(ctx, order.ID, orderStatus, paymentStatus); err != nil {
		return nil, err
	}

	return &ReconcileResult{
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		TrackingID:    v.TrackingID,
		OrderStatus:   orderStatus,
		PaymentStatus: paymentStatus,
		LandingStatus: landingStatus(v.Status),
	}, nil
}

// resolveOrder находит заказ по прямому идентификатору, затем по номеру из
// merchant reference, затем по идентификатору транзакции ранее сохранённого
// платежа: IPN не обязан надёжно возвращать исходный номер заказа.
func (s *Service) resolveOrder(ctx context.Context, in ReconcileInput) (*model.Order, error) {
	if in.OrderID != 0 {
		return s.repo.GetOrderByID(ctx, in.OrderID)
	}

	if in.MerchantReference != "" {
		order, err := s.repo.GetOrderByNumber(ctx, in.MerchantReference)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return nil, err
		}
	}

	for method := range s.gateways {
		order, err := s.repo.GetOrderByTransactionID(ctx, method, in.TrackingID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return nil, err
		}
	}

	return nil, repository.ErrOrderNotFound
}

// mapPaymentStatus переводит нормализованный словарь шлюза во внутренний
// статус оплаты. Любое неизвестное значение считается неуспехом.
func mapPaymentStatus(gatewayStatus string) model.PaymentStatus {
	switch gatewayStatus {
	case gateway.StatusCompleted:
		return model.PaymentStatusCompleted
	case gateway.StatusPending:
		return model.PaymentStatusPending
	case gateway.StatusCancelled:
		return model.PaymentStatusCancelled
	default:
		return model.PaymentStatusFailed
	}
}

// nextOrderStatus — таблица переходов статуса заказа по новому статусу оплаты.
// Чистая функция текущей пары: PENDING-платёж никогда не меняет статус заказа,
// чтобы устаревший дубликат уведомления не откатил подтверждённый заказ.
func nextOrderStatus(current model.OrderStatus, payment model.PaymentStatus) model.OrderStatus {
	if payment == model.PaymentStatusPending {
		return current
	}

	if current == model.OrderStatusPending {
		switch payment {
		case model.PaymentStatusCompleted:
			return model.OrderStatusConfirmed
		case model.PaymentStatusCancelled, model.PaymentStatusFailed:
			return model.OrderStatusCancelled
		}
	}

	return current
}

func landingStatus(gatewayStatus string) string {
	switch gatewayStatus {
	case gateway.StatusCompleted:
		return "success"
	case gateway.StatusPending:
		return "pending"
	case gateway.StatusCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// StartPaymentSweeper запускает фоновый процесс повторной сверки платежей,
// зависших в PENDING: страховка на случай потерянных уведомлений шлюза.
func (s *Service) StartPaymentSweeper(ctx context.Context) {
	if len(s.gateways) == 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepPendingPayments(ctx)
			}
		}
	}()
}

func (s *Service) sweepPendingPayments(ctx context.Context) {
	payments, err := s.repo.GetStalePendingPayments(ctx, 15*time.Minute, 50)
	if err != nil {
		s.logger.Warn("select stale payments failed", zap.Error(err))
		return
	}

	for _, p := range payments {
		_, err := s.ReconcilePayment(ctx, ReconcileInput{
			OrderID:    p.OrderID,
			TrackingID: p.TransactionID,
		})
		if err != nil {
			s.logger.Warn("sweep reconcile failed",
				zap.Error(err), zap.Int64("orderID", p.OrderID), zap.String("trackingID", p.TransactionID))
		}
	}
}

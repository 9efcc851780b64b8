package service

import (
	"context"
	"errors"
	"testing"

	"github.com/mmeshcher/craftstore-system/internal/gateway"
	"github.com/mmeshcher/craftstore-system/internal/model"
)

func pendingOrder() *model.Order {
	return &model.Order{
		ID:            12,
		Number:        "TAC17000000000001234",
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
		PaymentMethod: model.PaymentMethodPesapal,
		TotalCents:    12300,
		Address:       &model.Address{FirstName: "Jane", LastName: "Doe"},
		UserEmail:     "buyer@example.com",
	}
}

func completedVerification() *gateway.Verification {
	return &gateway.Verification{
		TrackingID:        "trk-1",
		MerchantReference: "TAC17000000000001234",
		Status:            gateway.StatusCompleted,
		Amount:            123.00,
		Currency:          "USD",
	}
}

func TestNextOrderStatus(t *testing.T) {
	tests := []struct {
		name    string
		current model.OrderStatus
		payment model.PaymentStatus
		want    model.OrderStatus
	}{
		{"pending order confirmed on completed payment", model.OrderStatusPending, model.PaymentStatusCompleted, model.OrderStatusConfirmed},
		{"pending order cancelled on failed payment", model.OrderStatusPending, model.PaymentStatusFailed, model.OrderStatusCancelled},
		{"pending order cancelled on cancelled payment", model.OrderStatusPending, model.PaymentStatusCancelled, model.OrderStatusCancelled},
		{"pending payment never changes order", model.OrderStatusPending, model.PaymentStatusPending, model.OrderStatusPending},
		{"shipped order untouched by late completion", model.OrderStatusShipped, model.PaymentStatusCompleted, model.OrderStatusShipped},
		{"confirmed order untouched by pending duplicate", model.OrderStatusConfirmed, model.PaymentStatusPending, model.OrderStatusConfirmed},
		{"confirmed order untouched by failed duplicate", model.OrderStatusConfirmed, model.PaymentStatusFailed, model.OrderStatusConfirmed},
		{"delivered order untouched", model.OrderStatusDelivered, model.PaymentStatusCancelled, model.OrderStatusDelivered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextOrderStatus(tt.current, tt.payment); got != tt.want {
				t.Errorf("nextOrderStatus(%s, %s) = %s, want %s", tt.current, tt.payment, got, tt.want)
			}
		})
	}
}

func TestReconcilePaymentCompleted(t *testing.T) {
	repo := &stubRepo{orderByID: pendingOrder()}
	gw := &stubGateway{verification: completedVerification()}
	svc := newTestService(repo, map[model.PaymentMethod]gateway.Gateway{
		model.PaymentMethodPesapal: gw,
	})

	res, err := svc.ReconcilePayment(context.Background(), ReconcileInput{
		OrderID:    12,
		TrackingID: "trk-1",
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if res.PaymentStatus != model.PaymentStatusCompleted {
		t.Errorf("payment status = %s", res.PaymentStatus)
	}
	if res.OrderStatus != model.OrderStatusConfirmed {
		t.Errorf("order status = %s", res.OrderStatus)
	}
	if res.LandingStatus != "success" {
		t.Errorf("landing status = %q", res.LandingStatus)
	}

	if len(repo.upserted) != 1 {
		t.Fatalf("upserts = %d, want 1", len(repo.upserted))
	}
	p := repo.upserted[0]
	if p.OrderID != 12 || p.Method != model.PaymentMethodPesapal || p.Status != model.PaymentStatusCompleted {
		t.Errorf("unexpected payment upsert: %+v", p)
	}
	if p.AmountCents != 12300 {
		t.Errorf("amount = %d, want 12300", p.AmountCents)
	}

	if repo.stateOrderID != 12 || repo.stateOrder != model.OrderStatusConfirmed || repo.statePayment != model.PaymentStatusCompleted {
		t.Errorf("unexpected order state update: %d %s %s", repo.stateOrderID, repo.stateOrder, repo.statePayment)
	}
}

func TestReconcilePaymentIdempotentDelivery(t *testing.T) {
	repo := &stubRepo{orderByID: pendingOrder()}
	gw := &stubGateway{verification: completedVerification()}
	svc := newTestService(repo, map[model.PaymentMethod]gateway.Gateway{
		model.PaymentMethodPesapal: gw,
	})

	in := ReconcileInput{OrderID: 12, TrackingID: "trk-1"}

	// Callback и IPN доставляют одно и то же событие дважды.
	first, err := svc.ReconcilePayment(context.Background(), in)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	second, err := svc.ReconcilePayment(context.Background(), in)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	if first.PaymentStatus != second.PaymentStatus || first.OrderStatus != second.OrderStatus {
		t.Errorf("deliveries diverged: %+v vs %+v", first, second)
	}

	// Оба раза upsert по одному и тому же ключу (заказ, метод).
	if len(repo.upserted) != 2 {
		t.Fatalf("upserts = %d, want 2", len(repo.upserted))
	}
	if repo.upserted[0].OrderID != repo.upserted[1].OrderID || repo.upserted[0].Method != repo.upserted[1].Method {
		t.Errorf("upsert keys differ: %+v vs %+v", repo.upserted[0], repo.upserted[1])
	}
	if gw.verifyCalls != 2 {
		t.Errorf("verify calls = %d, want 2: each delivery re-queries the gateway", gw.verifyCalls)
	}
}

func TestReconcilePaymentConvergesInEitherDeliveryOrder(t *testing.T) {
	// Callback несёт orderId из return URL, IPN — merchant reference.
	// Какой из каналов придёт первым, заранее неизвестно.
	callback := ReconcileInput{OrderID: 12, TrackingID: "trk-1"}
	ipn := ReconcileInput{MerchantReference: "TAC17000000000001234", TrackingID: "trk-1"}

	deliver := func(t *testing.T, inputs ...ReconcileInput) (model.OrderStatus, model.PaymentStatus) {
		t.Helper()

		order := pendingOrder()
		repo := &stubRepo{orderByID: order, orderByNumber: order}
		gw := &stubGateway{verification: completedVerification()}
		svc := newTestService(repo, map[model.PaymentMethod]gateway.Gateway{
			model.PaymentMethodPesapal: gw,
		})

		for _, in := range inputs {
			res, err := svc.ReconcilePayment(context.Background(), in)
			if err != nil {
				t.Fatalf("reconcile %+v: %v", in, err)
			}
			// Вторая доставка видит заказ уже в состоянии после первой.
			order.Status = res.OrderStatus
			order.PaymentStatus = res.PaymentStatus
		}

		return repo.stateOrder, repo.statePayment
	}

	gotOrder1, gotPayment1 := deliver(t, callback, ipn)
	gotOrder2, gotPayment2 := deliver(t, ipn, callback)

	if gotOrder1 != gotOrder2 || gotPayment1 != gotPayment2 {
		t.Fatalf("delivery orders diverged: (%s, %s) vs (%s, %s)",
			gotOrder1, gotPayment1, gotOrder2, gotPayment2)
	}
	if gotOrder1 != model.OrderStatusConfirmed || gotPayment1 != model.PaymentStatusCompleted {
		t.Errorf("final state = (%s, %s), want (CONFIRMED, COMPLETED)", gotOrder1, gotPayment1)
	}
}

func TestReconcilePaymentPendingKeepsOrderStatus(t *testing.T) {
	repo := &stubRepo{orderByID: pendingOrder()}
	v := completedVerification()
	v.Status = gateway.StatusPending
	gw := &stubGateway{verification: v}
	svc := newTestService(repo, map[model.PaymentMethod]gateway.Gateway{
		model.PaymentMethodPesapal: gw,
	})

	res, err := svc.ReconcilePayment(context.Background(), ReconcileInput{OrderID: 12, TrackingID: "trk-1"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if res.OrderStatus != model.OrderStatusPending {
		t.Errorf("order status = %s, want PENDING", res.OrderStatus)
	}
	if res.LandingStatus != "pending" {
		t.Errorf("landing status = %q", res.LandingStatus)
	}
}

func TestReconcilePaymentVerificationFailure(t *testing.T) {
	repo := &stubRepo{orderByID: pendingOrder()}
	gw := &stubGateway{verifyErr: errors.New("gateway timeout")}
	svc := newTestService(repo, map[model.PaymentMethod]gateway.Gateway{
		model.PaymentMethodPesapal: gw,
	})

	_, err := svc.ReconcilePayment(context.Background(), ReconcileInput{OrderID: 12, TrackingID: "trk-1"})
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}

	// Недоказанный статус ничего не меняет в заказе.
	if len(repo.upserted) != 0 || repo.stateCalls != 0 {
		t.Error("failed verification must not touch stored state")
	}
}

func TestReconcilePaymentResolvesByMerchantReference(t *testing.T) {
	order := pendingOrder()
	repo := &stubRepo{orderByNumber: order}
	gw := &stubGateway{verification: completedVerification()}
	svc := newTestService(repo, map[model.PaymentMethod]gateway.Gateway{
		model.PaymentMethodPesapal: gw,
	})

	res, err := svc.ReconcilePayment(context.Background(), ReconcileInput{
		MerchantReference: order.Number,
		TrackingID:        "trk-1",
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.OrderID != order.ID {
		t.Errorf("order id = %d, want %d", res.OrderID, order.ID)
	}
}

func TestReconcilePaymentResolvesByTransactionID(t *testing.T) {
	order := pendingOrder()
	repo := &stubRepo{orderByTxn: order}
	gw := &stubGateway{verification: completedVerification()}
	svc := newTestService(repo, map[model.PaymentMethod]gateway.Gateway{
		model.PaymentMethodPesapal: gw,
	})

	res, err := svc.ReconcilePayment(context.Background(), ReconcileInput{TrackingID: "trk-1"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.OrderID != order.ID {
		t.Errorf("order id = %d, want %d", res.OrderID, order.ID)
	}
}

func TestInitiatePaymentStoresPendingRecord(t *testing.T) {
	repo := &stubRepo{orderByID: pendingOrder()}
	gw := &stubGateway{
		createResp: &gateway.CreatePaymentResponse{
			TrackingID:  "trk-1",
			RedirectURL: "https://pay.example.com/redirect",
		},
	}
	svc := newTestService(repo, map[model.PaymentMethod]gateway.Gateway{
		model.PaymentMethodPesapal: gw,
	})

	res, err := svc.InitiatePayment(context.Background(), 12)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if res.RedirectURL != "https://pay.example.com/redirect" {
		t.Errorf("redirect url = %q", res.RedirectURL)
	}

	if len(repo.upserted) != 1 {
		t.Fatalf("upserts = %d, want 1", len(repo.upserted))
	}
	p := repo.upserted[0]
	if p.Status != model.PaymentStatusPending || p.TransactionID != "trk-1" || p.AmountCents != 12300 {
		t.Errorf("unexpected payment record: %+v", p)
	}

	if gw.createReq.Email != "buyer@example.com" || gw.createReq.AmountCents != 12300 {
		t.Errorf("unexpected create request: %+v", gw.createReq)
	}
}

func TestInitiatePaymentNoGateway(t *testing.T) {
	order := pendingOrder()
	order.PaymentMethod = model.PaymentMethodCOD
	repo := &stubRepo{orderByID: order}
	svc := newTestService(repo, map[model.PaymentMethod]gateway.Gateway{})

	_, err := svc.InitiatePayment(context.Background(), 12)
	if !errors.Is(err, ErrNoGateway) {
		t.Fatalf("expected ErrNoGateway, got %v", err)
	}
}

func TestMapPaymentStatusUnknownIsFailed(t *testing.T) {
	if got := mapPaymentStatus("weird"); got != model.PaymentStatusFailed {
		t.Errorf("mapPaymentStatus(weird) = %s, want FAILED", got)
	}
}

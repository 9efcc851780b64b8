package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/craftstore-system/internal/repository"
	"github.com/mmeshcher/craftstore-system/internal/service"
)

// Шлюзы исторически присылали одни и те же параметры в разных написаниях.
// Таблицы перечисляют варианты в порядке приоритета.
var (
	trackingIDAliases = []string{
		"orderTrackingId",
		"OrderTrackingId",
		"pesapal_transaction_tracking_id",
	}
	merchantRefAliases = []string{
		"orderMerchantReference",
		"OrderMerchantReference",
		"pesapal_merchant_reference",
	}
	orderIDAliases = []string{
		"orderId",
		"order_id",
	}
)

func firstAlias(values url.Values, aliases []string) string {
	for _, name := range aliases {
		if v := values.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// gatewayParams извлекает параметры уведомления шлюза из query-строки,
// а для POST-запросов дополнительно из JSON-тела. Query имеет приоритет.
func gatewayParams(r *http.Request) (orderID int64, trackingID, merchantRef string) {
	q := r.URL.Query()

	merged := url.Values{}
	for k, v := range q {
		merged[k] = v
	}

	if r.Method == http.MethodPost && r.Body != nil {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			for k, v := range body {
				if merged.Get(k) != "" {
					continue
				}
				switch val := v.(type) {
				case string:
					merged.Set(k, val)
				case float64:
					merged.Set(k, strconv.FormatFloat(val, 'f', -1, 64))
				}
			}
		}
	}

	if raw := firstAlias(merged, orderIDAliases); raw != "" {
		orderID, _ = strconv.ParseInt(raw, 10, 64)
	}
	trackingID = firstAlias(merged, trackingIDAliases)
	merchantRef = firstAlias(merged, merchantRefAliases)
	return orderID, trackingID, merchantRef
}

type initiatePaymentRequest struct {
	OrderID int64 `json:"orderId"`
}

// InitiatePayment создаёт платёж во внешнем шлюзе и возвращает URL для редиректа покупателя.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == 0 {
		errorJSON(w, http.StatusBadRequest, "orderId is required")
		return
	}

	res, err := h.service.InitiatePayment(r.Context(), req.OrderID)
	if err != nil {
		if errors.Is(err, service.ErrNoGateway) {
			errorJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		h.serviceError(w, err, "initiate payment error", zap.Int64("orderID", req.OrderID))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"redirectUrl": res.RedirectURL,
		"trackingId":  res.TrackingID,
	})
}

// landingRedirect перенаправляет покупателя на страницу подтверждения заказа.
func (h *Handler) landingRedirect(w http.ResponseWriter, r *http.Request, params url.Values) {
	target := fmt.Sprintf("%s/order-confirmation?%s", h.publicBaseURL, params.Encode())
	http.Redirect(w, r, target, http.StatusFound)
}

// PaymentCallback обрабатывает возврат покупателя со страницы шлюза.
// Любая ошибка сверки заканчивается редиректом на страницу заказа
// со статусом failed, а не HTTP-ошибкой: покупатель не должен увидеть
// голый ответ API.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	orderID, trackingID, merchantRef := gatewayParams(r)

	if trackingID == "" {
		h.logger.Warn("payment callback without tracking id", zap.Int64("orderID", orderID))
		h.landingRedirect(w, r, url.Values{
			"status":  {"failed"},
			"message": {"Missing payment tracking information"},
		})
		return
	}

	res, err := h.service.ReconcilePayment(r.Context(), service.ReconcileInput{
		OrderID:           orderID,
		MerchantReference: merchantRef,
		TrackingID:        trackingID,
	})
	if err != nil {
		h.logger.Error("payment callback reconciliation error",
			zap.Int64("orderID", orderID),
			zap.String("trackingID", trackingID),
			zap.Error(err))

		msg := "Could not verify payment, please contact support"
		if errors.Is(err, repository.ErrOrderNotFound) {
			msg = "Order not found"
		}
		h.landingRedirect(w, r, url.Values{
			"status":     {"failed"},
			"message":    {msg},
			"trackingId": {trackingID},
		})
		return
	}

	h.landingRedirect(w, r, url.Values{
		"status":     {res.LandingStatus},
		"orderId":    {strconv.FormatInt(res.OrderID, 10)},
		"trackingId": {trackingID},
	})
}

// PaymentIPN обрабатывает server-to-server уведомление шлюза. В отличие от
// callback отвечает машиночитаемым JSON; при сбое проверки у шлюза возвращает
// 502, чтобы шлюз повторил доставку.
func (h *Handler) PaymentIPN(w http.ResponseWriter, r *http.Request) {
	orderID, trackingID, merchantRef := gatewayParams(r)

	if trackingID == "" {
		errorJSON(w, http.StatusBadRequest, "missing payment tracking id")
		return
	}

	res, err := h.service.ReconcilePayment(r.Context(), service.ReconcileInput{
		OrderID:           orderID,
		MerchantReference: merchantRef,
		TrackingID:        trackingID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			errorJSON(w, http.StatusNotFound, "order not found")
			return
		}
		if errors.Is(err, service.ErrVerificationFailed) {
			h.logger.Warn("ipn verification failed",
				zap.Int64("orderID", orderID),
				zap.String("trackingID", trackingID),
				zap.Error(err))
			errorJSON(w, http.StatusBadGateway, "payment verification failed")
			return
		}
		h.serviceError(w, err, "ipn reconciliation error",
			zap.Int64("orderID", orderID),
			zap.String("trackingID", trackingID))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  string(res.PaymentStatus),
	})
}

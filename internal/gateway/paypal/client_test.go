package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmeshcher/craftstore-system/internal/gateway"
)

func TestVerifyPayment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			t.Fatalf("basic auth = %q:%q, want client:secret", user, pass)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "pp-token", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/checkout/orders/pp-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "pp-1",
			"status": "COMPLETED",
			"purchase_units": []map[string]any{{
				"reference_id": "TAC1001",
				"amount":       map[string]string{"currency_code": "USD", "value": "123.00"},
			}},
		})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := NewClient(ts.URL, "client", "secret")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := client.VerifyPayment(ctx, "pp-1", "")
	if err != nil {
		t.Fatalf("VerifyPayment error: %v", err)
	}
	if v.Status != gateway.StatusCompleted {
		t.Fatalf("status = %q, want %q", v.Status, gateway.StatusCompleted)
	}
	if v.Amount != 123.0 {
		t.Fatalf("amount = %v, want 123.0", v.Amount)
	}
	if v.MerchantReference != "TAC1001" {
		t.Fatalf("merchant reference = %q, want TAC1001", v.MerchantReference)
	}
}

func TestCreatePayment_ReturnsApproveLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "pp-token", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode create request: %v", err)
		}
		if len(req.PurchaseUnits) != 1 || req.PurchaseUnits[0].Amount.Value != "123.00" {
			t.Fatalf("unexpected purchase units: %+v", req.PurchaseUnits)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "pp-2",
			"status": "CREATED",
			"links": []map[string]string{
				{"href": "https://paypal.test/self", "rel": "self"},
				{"href": "https://paypal.test/approve", "rel": "approve"},
			},
		})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := NewClient(ts.URL, "client", "secret")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := client.CreatePayment(ctx, gateway.CreatePaymentRequest{
		OrderNumber: "TAC1001",
		AmountCents: 12300,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("CreatePayment error: %v", err)
	}
	if res.TrackingID != "pp-2" {
		t.Fatalf("tracking id = %q, want pp-2", res.TrackingID)
	}
	if res.RedirectURL != "https://paypal.test/approve" {
		t.Fatalf("redirect url = %q, want approve link", res.RedirectURL)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"COMPLETED", gateway.StatusCompleted},
		{"APPROVED", gateway.StatusPending},
		{"CREATED", gateway.StatusPending},
		{"VOIDED", gateway.StatusCancelled},
		{"DECLINED", gateway.StatusFailed},
	}

	for _, tt := range tests {
		if got := normalizeStatus(tt.in); got != tt.want {
			t.Fatalf("normalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Package paypal предоставляет клиент платёжного шлюза PayPal (Orders API v2).
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/craftstore-system/internal/gateway"
)

// Client инкапсулирует HTTP-взаимодействие с PayPal.
type Client struct {
	baseURL    string
	clientID   string
	secret     string
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient создаёт клиент PayPal с ретраями и таймаутом исходящих запросов.
func NewClient(baseURL, clientID, secret string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		secret:     secret,
		httpClient: rc.StandardClient(),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request token: unexpected status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("request token: empty token")
	}

	c.token = tr.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn-60) * time.Second)

	return c.token, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) ([]byte, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}

	return raw, nil
}

type amountPayload struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string        `json:"reference_id"`
	Amount      amountPayload `json:"amount"`
}

type applicationContext struct {
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type createOrderRequest struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type orderLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type orderResponse struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	Links         []orderLink    `json:"links"`
}

// CreatePayment создаёт заказ PayPal и возвращает ссылку одобрения для покупателя.
func (c *Client) CreatePayment(ctx context.Context, req gateway.CreatePaymentRequest) (*gateway.CreatePaymentResponse, error) {
	payload := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.OrderNumber,
			Amount: amountPayload{
				CurrencyCode: req.Currency,
				Value:        decimal.NewFromInt(req.AmountCents).Div(decimal.NewFromInt(100)).StringFixed(2),
			},
		}},
		ApplicationContext: applicationContext{
			ReturnURL: req.CallbackURL,
			CancelURL: req.CallbackURL,
		},
	}

	var res orderResponse
	if _, err := c.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", payload, &res); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if res.ID == "" {
		return nil, fmt.Errorf("create order: empty order id")
	}

	var approveURL string
	for _, l := range res.Links {
		if l.Rel == "approve" {
			approveURL = l.Href
			break
		}
	}
	if approveURL == "" {
		return nil, fmt.Errorf("create order: no approve link")
	}

	return &gateway.CreatePaymentResponse{
		TrackingID:  res.ID,
		RedirectURL: approveURL,
	}, nil
}

// VerifyPayment запрашивает у PayPal актуальное состояние заказа и приводит
// его словарь статусов к нормализованному словарю пакета gateway.
func (c *Client) VerifyPayment(ctx context.Context, trackingID, merchantReference string) (*gateway.Verification, error) {
	var res orderResponse
	raw, err := c.doJSON(ctx, http.MethodGet, "/v2/checkout/orders/"+trackingID, nil, &res)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	var (
		amount   float64
		currency string
		ref      = merchantReference
	)
	if len(res.PurchaseUnits) > 0 {
		pu := res.PurchaseUnits[0]
		if d, err := decimal.NewFromString(pu.Amount.Value); err == nil {
			amount, _ = d.Float64()
		}
		currency = pu.Amount.CurrencyCode
		if pu.ReferenceID != "" {
			ref = pu.ReferenceID
		}
	}

	return &gateway.Verification{
		TrackingID:        res.ID,
		MerchantReference: ref,
		Status:            normalizeStatus(res.Status),
		Amount:            amount,
		Currency:          currency,
		Raw:               raw,
	}, nil
}

func normalizeStatus(s string) string {
	switch strings.ToUpper(s) {
	case "COMPLETED":
		return gateway.StatusCompleted
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED":
		return gateway.StatusPending
	case "VOIDED":
		return gateway.StatusCancelled
	default:
		return gateway.StatusFailed
	}
}

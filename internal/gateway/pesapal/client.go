// Package pesapal предоставляет клиент платёжного шлюза Pesapal (API 3.0).
package pesapal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/craftstore-system/internal/gateway"
)

// Client инкапсулирует HTTP-взаимодействие с Pesapal.
// Токен авторизации кэшируется до истечения срока действия.
type Client struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	httpClient     *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time

	ipnID string
}

// NewClient создаёт клиент Pesapal с ретраями и таймаутом исходящих запросов.
func NewClient(baseURL, consumerKey, consumerSecret string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		httpClient:     rc.StandardClient(),
	}
}

type tokenResponse struct {
	Token      string `json:"token"`
	ExpiryDate string `json:"expiryDate"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"consumer_key":    c.consumerKey,
		"consumer_secret": c.consumerSecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/Auth/RequestToken", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

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
	if tr.Error != nil {
		return "", fmt.Errorf("request token: %s", tr.Error.Message)
	}
	if tr.Token == "" {
		return "", fmt.Errorf("request token: empty token")
	}

	c.token = tr.Token
	// Pesapal выдаёт токен на 5 минут; обновляем заранее.
	c.tokenExpiry = time.Now().Add(4 * time.Minute)

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
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}

	return raw, nil
}

type registerIPNResponse struct {
	IPNID string `json:"ipn_id"`
	URL   string `json:"url"`
}

// RegisterIPN регистрирует URL серверных уведомлений и запоминает
// полученный идентификатор для последующих платежей.
func (c *Client) RegisterIPN(ctx context.Context, ipnURL string) error {
	var res registerIPNResponse
	_, err := c.doJSON(ctx, http.MethodPost, "/api/URLSetup/RegisterIPN", map[string]string{
		"url":                   ipnURL,
		"ipn_notification_type": "GET",
	}, &res)
	if err != nil {
		return fmt.Errorf("register ipn: %w", err)
	}
	if res.IPNID == "" {
		return fmt.Errorf("register ipn: empty ipn id")
	}

	c.mu.Lock()
	c.ipnID = res.IPNID
	c.mu.Unlock()

	return nil
}

type submitOrderRequest struct {
	ID             string         `json:"id"`
	Currency       string         `json:"currency"`
	Amount         float64        `json:"amount"`
	Description    string         `json:"description"`
	CallbackURL    string         `json:"callback_url"`
	NotificationID string         `json:"notification_id"`
	BillingAddress billingAddress `json:"billing_address"`
}

type billingAddress struct {
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

type submitOrderResponse struct {
	OrderTrackingID string `json:"order_tracking_id"`
	RedirectURL     string `json:"redirect_url"`
	Error           *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreatePayment регистрирует платёж в Pesapal и возвращает URL страницы оплаты.
func (c *Client) CreatePayment(ctx context.Context, req gateway.CreatePaymentRequest) (*gateway.CreatePaymentResponse, error) {
	c.mu.Lock()
	ipnID := c.ipnID
	c.mu.Unlock()

	amount, _ := decimal.NewFromInt(req.AmountCents).Div(decimal.NewFromInt(100)).Float64()

	payload := submitOrderRequest{
		ID:             req.OrderNumber,
		Currency:       req.Currency,
		Amount:         amount,
		Description:    req.Description,
		CallbackURL:    req.CallbackURL,
		NotificationID: ipnID,
		BillingAddress: billingAddress{
			EmailAddress: req.Email,
			PhoneNumber:  req.Phone,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
		},
	}

	var res submitOrderResponse
	if _, err := c.doJSON(ctx, http.MethodPost, "/api/Transactions/SubmitOrderRequest", payload, &res); err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}
	if res.Error != nil {
		return nil, fmt.Errorf("submit order: %s", res.Error.Message)
	}
	if res.OrderTrackingID == "" || res.RedirectURL == "" {
		return nil, fmt.Errorf("submit order: incomplete response")
	}

	return &gateway.CreatePaymentResponse{
		TrackingID:  res.OrderTrackingID,
		RedirectURL: res.RedirectURL,
	}, nil
}

type transactionStatusResponse struct {
	PaymentMethod            string  `json:"payment_method"`
	Amount                   float64 `json:"amount"`
	Currency                 string  `json:"currency"`
	PaymentStatusDescription string  `json:"payment_status_description"`
	MerchantReference        string  `json:"merchant_reference"`
	ConfirmationCode         string  `json:"confirmation_code"`
}

// VerifyPayment запрашивает у Pesapal авторитетный статус транзакции.
// Статус приводится к нормализованному словарю пакета gateway.
func (c *Client) VerifyPayment(ctx context.Context, trackingID, merchantReference string) (*gateway.Verification, error) {
	q := url.Values{}
	q.Set("orderTrackingId", trackingID)

	var res transactionStatusResponse
	raw, err := c.doJSON(ctx, http.MethodGet, "/api/Transactions/GetTransactionStatus?"+q.Encode(), nil, &res)
	if err != nil {
		return nil, fmt.Errorf("get transaction status: %w", err)
	}

	ref := res.MerchantReference
	if ref == "" {
		ref = merchantReference
	}

	return &gateway.Verification{
		TrackingID:        trackingID,
		MerchantReference: ref,
		Status:            normalizeStatus(res.PaymentStatusDescription),
		Amount:            res.Amount,
		Currency:          res.Currency,
		Raw:               raw,
	}, nil
}

func normalizeStatus(s string) string {
	switch strings.ToLower(s) {
	case "completed":
		return gateway.StatusCompleted
	case "pending":
		return gateway.StatusPending
	case "cancelled", "reversed":
		return gateway.StatusCancelled
	default:
		return gateway.StatusFailed
	}
}

// Package handler содержит HTTP-обработчики API интернет-магазина.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/craftstore-system/internal/middleware"
	"github.com/mmeshcher/craftstore-system/internal/model"
	"github.com/mmeshcher/craftstore-system/internal/repository"
	"github.com/mmeshcher/craftstore-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, email, password string, cart []model.CartItem) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string, cart []model.CartItem) (int64, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)

	ListProducts(ctx context.Context, categorySlug string) ([]model.ProductView, error)
	GetProductView(ctx context.Context, id int64) (*model.ProductView, error)
	ListCategories(ctx context.Context) ([]model.Category, error)

	GetCart(ctx context.Context, userID int64) ([]model.CartItem, error)
	SetCartItem(ctx context.Context, userID, productID int64, quantity int) error
	RemoveCartItem(ctx context.Context, userID, productID int64) error

	Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)

	InitiatePayment(ctx context.Context, orderID int64) (*service.InitiatePaymentResult, error)
	ReconcilePayment(ctx context.Context, in service.ReconcileInput) (*service.ReconcileResult, error)

	ValidateCoupon(ctx context.Context, code string, subtotalCents int64) (*service.CouponResult, error)

	ListOrders(ctx context.Context, status model.OrderStatus, limit, offset int) ([]model.Order, error)
	OverrideOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
	DeleteOrder(ctx context.Context, orderID int64) error
	ListUsers(ctx context.Context, limit, offset int) ([]model.User, error)
	CreateProduct(ctx context.Context, p *model.Product) (int64, error)
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	ListCoupons(ctx context.Context) ([]model.Coupon, error)
	CreateCoupon(ctx context.Context, c *model.Coupon) (int64, error)
	UpdateCoupon(ctx context.Context, c *model.Coupon) error
	DeleteCoupon(ctx context.Context, id int64) error
	GetSalesSummary(ctx context.Context) (*repository.SalesSummary, error)
}

// Handler реализует HTTP-обработчики API интернет-магазина.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	publicBaseURL  string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, publicBaseURL string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		publicBaseURL:  publicBaseURL,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// serviceError переводит ошибку сервиса в HTTP-ответ: ошибки валидации — 400
// с сообщением для покупателя, отсутствие сущности — 404, остальное — 500.
func (h *Handler) serviceError(w http.ResponseWriter, err error, logMsg string, fields ...zap.Field) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		errorJSON(w, http.StatusBadRequest, ve.Error())
		return
	}

	switch {
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrCouponNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		errorJSON(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.Error(logMsg, append(fields, zap.Error(err))...)
	errorJSON(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

type credentialsRequest struct {
	Email     string           `json:"email"`
	Password  string           `json:"password"`
	CartItems []model.CartItem `json:"cartItems"`
}

// Register обрабатывает регистрацию нового покупателя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		errorJSON(w, http.StatusBadRequest, "email and password are required")
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Email, req.Password, req.CartItems)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			errorJSON(w, http.StatusConflict, "user already exists")
			return
		}
		h.serviceError(w, err, "register user error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Login выполняет аутентификацию покупателя и слияние клиентской корзины с серверной.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		errorJSON(w, http.StatusBadRequest, "email and password are required")
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password, req.CartItems)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ListProducts возвращает витрину товаров, опционально по категории.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.serviceError(w, err, "list products error")
		return
	}
	if products == nil {
		products = []model.ProductView{}
	}
	writeJSON(w, http.StatusOK, products)
}

// GetProduct возвращает витринное представление одного товара.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := h.service.GetProductView(r.Context(), id)
	if err != nil {
		h.serviceError(w, err, "get product error", zap.Int64("productID", id))
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// ListCategories возвращает категории каталога.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.serviceError(w, err, "list categories error")
		return
	}
	if categories == nil {
		categories = []model.Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}

// GetCart возвращает серверную корзину текущего пользователя.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	items, err := h.service.GetCart(r.Context(), userID)
	if err != nil {
		h.serviceError(w, err, "get cart error", zap.Int64("userID", userID))
		return
	}
	if items == nil {
		items = []model.CartItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

type cartItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// SetCartItem устанавливает количество товара в корзине текущего пользователя.
func (h *Handler) SetCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.SetCartItem(r.Context(), userID, req.ProductID, req.Quantity); err != nil {
		h.serviceError(w, err, "set cart item error", zap.Int64("userID", userID))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// RemoveCartItem удаляет позицию из корзины текущего пользователя.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	productID, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.service.RemoveCartItem(r.Context(), userID, productID); err != nil {
		h.serviceError(w, err, "remove cart item error", zap.Int64("userID", userID))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type checkoutItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
	// Price принимается для совместимости с клиентом, но игнорируется:
	// цена всегда берётся из каталога.
	Price float64 `json:"price"`
}

type checkoutRequest struct {
	Email          string                `json:"email"`
	FirstName      string                `json:"firstName"`
	LastName       string                `json:"lastName"`
	Phone          string                `json:"phone"`
	Address        string                `json:"address"`
	City           string                `json:"city"`
	State          string                `json:"state"`
	ZipCode        string                `json:"zipCode"`
	Country        string                `json:"country"`
	PaymentMethod  string                `json:"paymentMethod"`
	ShippingMethod string                `json:"shippingMethod"`
	CartItems      []checkoutItemRequest `json:"cartItems"`
	CouponCode     string                `json:"couponCode"`
	CouponDiscount float64               `json:"couponDiscount"`
}

// Checkout оформляет заказ. Для авторизованного пользователя позиции берутся
// из серверной корзины; присланные клиентом цены и суммы скидок игнорируются.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]model.CartItem, 0, len(req.CartItems))
	for _, it := range req.CartItems {
		items = append(items, model.CartItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	userID, _ := middleware.GetUserIDFromContext(r.Context())

	res, err := h.service.Checkout(r.Context(), service.CheckoutRequest{
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		Address:        req.Address,
		City:           req.City,
		State:          req.State,
		ZipCode:        req.ZipCode,
		Country:        req.Country,
		PaymentMethod:  model.PaymentMethod(req.PaymentMethod),
		ShippingMethod: req.ShippingMethod,
		CartItems:      items,
		CouponCode:     req.CouponCode,
		UserID:         userID,
	})
	if err != nil {
		h.serviceError(w, err, "checkout error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"orderId":     res.OrderID,
		"orderNumber": res.OrderNumber,
	})
}

type orderItemResponse struct {
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

type orderResponse struct {
	ID            int64               `json:"id"`
	Number        string              `json:"number"`
	Status        string              `json:"status"`
	PaymentStatus string              `json:"paymentStatus"`
	PaymentMethod string              `json:"paymentMethod"`
	Subtotal      float64             `json:"subtotal"`
	Shipping      float64             `json:"shipping"`
	Tax           float64             `json:"tax"`
	Discount      float64             `json:"discount"`
	Total         float64             `json:"total"`
	Items         []orderItemResponse `json:"items,omitempty"`
	CreatedAt     string              `json:"createdAt"`
}

func toOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		Number:        o.Number,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		PaymentMethod: string(o.PaymentMethod),
		Subtotal:      model.FloatFromCents(o.SubtotalCents),
		Shipping:      model.FloatFromCents(o.ShippingCents),
		Tax:           model.FloatFromCents(o.TaxCents),
		Discount:      model.FloatFromCents(o.DiscountCents),
		Total:         model.FloatFromCents(o.TotalCents),
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Price:       model.FloatFromCents(it.PriceCents),
			Quantity:    it.Quantity,
		})
	}
	return resp
}

// GetOrder возвращает заказ для страницы статуса.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.serviceError(w, err, "get order error", zap.Int64("orderID", id))
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// GetMyOrders возвращает заказы текущего пользователя.
func (h *Handler) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), userID)
	if err != nil {
		h.serviceError(w, err, "get user orders error", zap.Int64("userID", userID))
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type validateCouponRequest struct {
	Code     string  `json:"code"`
	Subtotal float64 `json:"subtotal"`
}

// ValidateCoupon проверяет купон для корзины с указанной суммой.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		errorJSON(w, http.StatusBadRequest, "coupon code is required")
		return
	}

	res, err := h.service.ValidateCoupon(r.Context(), req.Code, model.CentsFromFloat(req.Subtotal))
	if err != nil {
		h.serviceError(w, err, "validate coupon error", zap.String("code", req.Code))
		return
	}

	resp := map[string]any{
		"valid":   res.Valid,
		"message": res.Message,
	}
	if res.Valid {
		resp["discount"] = model.FloatFromCents(res.DiscountCents)
		resp["type"] = string(res.Coupon.Type)
		if res.Coupon.Type == model.CouponFixedAmount {
			resp["value"] = model.FloatFromCents(res.Coupon.Value)
		} else {
			resp["value"] = res.Coupon.Value
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

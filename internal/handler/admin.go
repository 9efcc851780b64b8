package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/craftstore-system/internal/model"
	"github.com/mmeshcher/craftstore-system/internal/repository"
)

func parseListWindow(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// AdminListOrders возвращает заказы для админ-панели, опционально по статусу.
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseListWindow(r)
	status := model.OrderStatus(r.URL.Query().Get("status"))

	orders, err := h.service.ListOrders(r.Context(), status, limit, offset)
	if err != nil {
		h.serviceError(w, err, "admin list orders error")
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

// AdminUpdateOrderStatus вручную переводит заказ в указанный статус.
func (h *Handler) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req orderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.OverrideOrderStatus(r.Context(), id, model.OrderStatus(req.Status)); err != nil {
		h.serviceError(w, err, "admin update order status error", zap.Int64("orderID", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// AdminDeleteOrder удаляет заказ вместе с позициями, платежами и адресом.
func (h *Handler) AdminDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if err := h.service.DeleteOrder(r.Context(), id); err != nil {
		h.serviceError(w, err, "admin delete order error", zap.Int64("orderID", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type userResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

// AdminListUsers возвращает список зарегистрированных пользователей.
func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseListWindow(r)

	users, err := h.service.ListUsers(r.Context(), limit, offset)
	if err != nil {
		h.serviceError(w, err, "admin list users error")
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userResponse{
			ID:        u.ID,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Role:      string(u.Role),
			CreatedAt: u.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type productRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"imageUrl"`
	CategoryID  *int64  `json:"categoryId"`
	ArtisanID   *int64  `json:"artisanId"`
	Stock       int     `json:"stock"`
	IsActive    bool    `json:"isActive"`
}

func (req *productRequest) toModel(id int64) *model.Product {
	return &model.Product{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  model.CentsFromFloat(req.Price),
		ImageURL:    req.ImageURL,
		CategoryID:  req.CategoryID,
		ArtisanID:   req.ArtisanID,
		Stock:       req.Stock,
		IsActive:    req.IsActive,
	}
}

// AdminCreateProduct добавляет товар в каталог.
func (h *Handler) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.service.CreateProduct(r.Context(), req.toModel(0))
	if err != nil {
		h.serviceError(w, err, "admin create product error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

// AdminUpdateProduct обновляет товар каталога.
func (h *Handler) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.UpdateProduct(r.Context(), req.toModel(id)); err != nil {
		h.serviceError(w, err, "admin update product error", zap.Int64("productID", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// AdminDeleteProduct убирает товар из каталога.
func (h *Handler) AdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		h.serviceError(w, err, "admin delete product error", zap.Int64("productID", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type couponRequest struct {
	Code      string   `json:"code"`
	Type      string   `json:"type"`
	Value     float64  `json:"value"`
	MinAmount *float64 `json:"minAmount"`
	MaxUses   *int     `json:"maxUses"`
	IsActive  bool     `json:"isActive"`
	StartsAt  *string  `json:"startsAt"`
	ExpiresAt *string  `json:"expiresAt"`
}

func (req *couponRequest) toModel(id int64) (*model.Coupon, error) {
	c := &model.Coupon{
		ID:       id,
		Code:     req.Code,
		Type:     model.CouponType(req.Type),
		MaxUses:  req.MaxUses,
		IsActive: req.IsActive,
	}

	// Для фиксированной скидки значение задаётся в долларах, для процентной —
	// самим процентом.
	if c.Type == model.CouponFixedAmount {
		c.Value = model.CentsFromFloat(req.Value)
	} else {
		c.Value = int64(req.Value)
	}
	if req.MinAmount != nil {
		cents := model.CentsFromFloat(*req.MinAmount)
		c.MinAmountCents = &cents
	}

	for _, f := range []struct {
		raw string
		dst **time.Time
	}{
		{raw: stringOrEmpty(req.StartsAt), dst: &c.StartsAt},
		{raw: stringOrEmpty(req.ExpiresAt), dst: &c.ExpiresAt},
	} {
		if f.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, f.raw)
		if err != nil {
			return nil, err
		}
		*f.dst = &t
	}
	return c, nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type couponResponse struct {
	ID        int64    `json:"id"`
	Code      string   `json:"code"`
	Type      string   `json:"type"`
	Value     float64  `json:"value"`
	MinAmount *float64 `json:"minAmount,omitempty"`
	MaxUses   *int     `json:"maxUses,omitempty"`
	UsedCount int      `json:"usedCount"`
	IsActive  bool     `json:"isActive"`
	StartsAt  *string  `json:"startsAt,omitempty"`
	ExpiresAt *string  `json:"expiresAt,omitempty"`
}

func toCouponResponse(c *model.Coupon) couponResponse {
	resp := couponResponse{
		ID:        c.ID,
		Code:      c.Code,
		Type:      string(c.Type),
		UsedCount: c.UsedCount,
		MaxUses:   c.MaxUses,
		IsActive:  c.IsActive,
	}
	if c.Type == model.CouponFixedAmount {
		resp.Value = model.FloatFromCents(c.Value)
	} else {
		resp.Value = float64(c.Value)
	}
	if c.MinAmountCents != nil {
		v := model.FloatFromCents(*c.MinAmountCents)
		resp.MinAmount = &v
	}
	if c.StartsAt != nil {
		v := c.StartsAt.Format(time.RFC3339)
		resp.StartsAt = &v
	}
	if c.ExpiresAt != nil {
		v := c.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &v
	}
	return resp
}

// AdminListCoupons возвращает все купоны.
func (h *Handler) AdminListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.service.ListCoupons(r.Context())
	if err != nil {
		h.serviceError(w, err, "admin list coupons error")
		return
	}

	resp := make([]couponResponse, 0, len(coupons))
	for i := range coupons {
		resp = append(resp, toCouponResponse(&coupons[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// AdminCreateCoupon создаёт купон.
func (h *Handler) AdminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	coupon, err := req.toModel(0)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid date format, expected RFC3339")
		return
	}

	id, err := h.service.CreateCoupon(r.Context(), coupon)
	if err != nil {
		if errors.Is(err, repository.ErrCouponExists) {
			errorJSON(w, http.StatusConflict, "coupon code already exists")
			return
		}
		h.serviceError(w, err, "admin create coupon error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

// AdminUpdateCoupon обновляет купон.
func (h *Handler) AdminUpdateCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid coupon id")
		return
	}

	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	coupon, err := req.toModel(id)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid date format, expected RFC3339")
		return
	}

	if err := h.service.UpdateCoupon(r.Context(), coupon); err != nil {
		h.serviceError(w, err, "admin update coupon error", zap.Int64("couponID", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// AdminDeleteCoupon удаляет купон.
func (h *Handler) AdminDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid coupon id")
		return
	}

	if err := h.service.DeleteCoupon(r.Context(), id); err != nil {
		h.serviceError(w, err, "admin delete coupon error", zap.Int64("couponID", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// AdminSalesSummary возвращает сводку продаж для дашборда.
func (h *Handler) AdminSalesSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetSalesSummary(r.Context())
	if err != nil {
		h.serviceError(w, err, "admin sales summary error")
		return
	}

	top := make([]map[string]any, 0, len(summary.TopProducts))
	for _, p := range summary.TopProducts {
		top = append(top, map[string]any{
			"productId":   p.ProductID,
			"productName": p.ProductName,
			"quantity":    p.Quantity,
			"revenue":     model.FloatFromCents(p.RevenueCents),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"revenue":        model.FloatFromCents(summary.RevenueCents),
		"ordersByStatus": summary.OrdersByStatus,
		"topProducts":    top,
	})
}

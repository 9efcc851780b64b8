package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/craftstore-system/internal/middleware"
)

// SetupRouter собирает маршруты API магазина с цепочкой middleware.
func (h *Handler) SetupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.GzipMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/categories", h.ListCategories)

		r.Post("/coupons/validate", h.ValidateCoupon)

		// Оформление заказа доступно и гостю: авторизация опциональна,
		// но при её наличии корзина берётся с сервера.
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.OptionalAuth)
			r.Post("/orders", h.Checkout)
			r.Get("/orders/{id}", h.GetOrder)
		})

		r.Post("/payments/initiate", h.InitiatePayment)
		r.Get("/payments/callback", h.PaymentCallback)
		r.Get("/payments/ipn", h.PaymentIPN)
		r.Post("/payments/ipn", h.PaymentIPN)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/cart", h.GetCart)
			r.Post("/cart", h.SetCartItem)
			r.Delete("/cart/{productId}", h.RemoveCartItem)
			r.Get("/orders", h.GetMyOrders)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(h.authMiddleware.RequireAdmin(h.service))

			r.Get("/orders", h.AdminListOrders)
			r.Put("/orders/{id}/status", h.AdminUpdateOrderStatus)
			r.Delete("/orders/{id}", h.AdminDeleteOrder)

			r.Get("/users", h.AdminListUsers)

			r.Post("/products", h.AdminCreateProduct)
			r.Put("/products/{id}", h.AdminUpdateProduct)
			r.Delete("/products/{id}", h.AdminDeleteProduct)

			r.Get("/coupons", h.AdminListCoupons)
			r.Post("/coupons", h.AdminCreateCoupon)
			r.Put("/coupons/{id}", h.AdminUpdateCoupon)
			r.Delete("/coupons/{id}", h.AdminDeleteCoupon)

			r.Get("/analytics/summary", h.AdminSalesSummary)
		})
	})

	return r
}

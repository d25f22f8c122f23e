package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/khaman-storefront/internal/middleware"
)

// SetupRouter настраивает маршруты HTTP-сервера витрины заказов.
func (h *Handler) SetupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.CartSession)

	r.Get("/api/menu", h.GetMenu)
	r.Get("/api/rewards", h.GetRewards)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Get("/profile", h.GetProfile)
			r.Get("/orders", h.GetOrders)
		})
	})

	r.Route("/api/cart", func(r chi.Router) {
		r.Use(h.authMiddleware.Optional)
		r.Get("/", h.GetCart)
		r.Post("/items", h.AddCartItem)
		r.Delete("/items/{lineID}", func(w http.ResponseWriter, req *http.Request) {
			h.RemoveCartItem(w, req, chi.URLParam(req, "lineID"))
		})
		r.Post("/rewards", h.RedeemReward)
		r.Post("/checkout", h.Checkout)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deliverycart/internal/checkout"
	"deliverycart/internal/config"
	"deliverycart/internal/events"
	"deliverycart/internal/handler"
	"deliverycart/internal/mw"
)

func newRouter(cfg *config.Config, loc *time.Location, svc services, mgr *checkout.Manager, bus *events.Bus) http.Handler {
	clock := time.Now

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/api/user/register", handler.RegisterHandler(svc.auth, cfg.JWTSecret, cfg.TokenTTL))
		r.Post("/api/user/login", handler.LoginHandler(svc.auth, cfg.JWTSecret, cfg.TokenTTL))
	})
	r.Get("/api/cities", handler.CitiesHandler(svc.catalog))
	r.Get("/api/menu", handler.MenuHandler(svc.catalog))
	r.Get("/api/highlights", handler.HighlightsHandler(svc.catalog))
	r.Get("/api/store/status", handler.StoreStatusHandler(svc.settings, loc, clock))

	// Checkout works for guests; submit needs a logged-in customer.
	r.Group(func(r chi.Router) {
		r.Use(mw.OptionalAuth(cfg.JWTSecret))
		r.Post("/api/checkout", handler.CreateCheckoutHandler(mgr))
		r.Route("/api/checkout/{id}", func(r chi.Router) {
			r.Get("/", handler.GetCheckoutHandler(mgr))
			r.Post("/items", handler.AddItemHandler(mgr))
			r.Patch("/items/{productID}", handler.SetQuantityHandler(mgr))
			r.Delete("/items/{productID}", handler.RemoveItemHandler(mgr))
			r.Put("/delivery", handler.SetDeliveryHandler(mgr))
			r.Post("/coupon", handler.ApplyCouponHandler(mgr))
			r.Delete("/coupon", handler.RemoveCouponHandler(mgr))
			r.Put("/payment", handler.SelectPaymentHandler(mgr))
			r.Post("/pix/instructions/dismiss", handler.DismissPixInstructionsHandler(mgr))
			r.Post("/pix/return/dismiss", handler.DismissPixReturnHandler(mgr))
			r.Post("/card/acknowledge", handler.AcknowledgeCardHandler(mgr))
			r.Post("/visibility", handler.VisibilityHandler(mgr))
			r.Post("/city", handler.SelectCityHandler(mgr))
			r.Delete("/flags", handler.ResetPaymentHandler(mgr))
			r.Post("/submit", handler.SubmitHandler(mgr, svc.auth))
		})
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.JWTSecret))

		r.Get("/api/user/me", handler.MeHandler(svc.auth))
		r.Get("/api/user/orders", handler.ListOrdersHandler(svc.orders))
		r.Get("/api/user/orders/{id}", handler.GetOrderHandler(svc.orders))
		r.Get("/api/user/coupons", handler.ListCouponsHandler(svc.coupons, clock))

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(mw.RequireAdmin(svc.auth))

			r.Get("/products", handler.AdminListProductsHandler(svc.catalog))
			r.Post("/products", handler.CreateProductHandler(svc.catalog))
			r.Put("/products/{id}", handler.UpdateProductHandler(svc.catalog))
			r.Delete("/products/{id}", handler.DeleteProductHandler(svc.catalog))

			r.Get("/highlights", handler.HighlightsHandler(svc.catalog))
			r.Post("/highlights", handler.CreateHighlightHandler(svc.catalog))
			r.Put("/highlights/{id}", handler.UpdateHighlightHandler(svc.catalog))
			r.Delete("/highlights/{id}", handler.DeleteHighlightHandler(svc.catalog))

			r.Get("/cities", handler.AdminListCitiesHandler(svc.catalog))
			r.Post("/cities", handler.CreateCityHandler(svc.catalog))
			r.Put("/cities/{id}/active", handler.SetCityActiveHandler(svc.catalog))
			r.Delete("/cities/{id}", handler.DeleteCityHandler(svc.catalog))

			r.Get("/coupons", handler.AdminListCouponsHandler(svc.coupons))
			r.Post("/coupons", handler.CreateCouponHandler(svc.coupons))
			r.Post("/coupons/{id}/approve", handler.ApproveCouponHandler(svc.coupons))
			r.Put("/coupons/{id}/active", handler.SetCouponActiveHandler(svc.coupons))
			r.Delete("/coupons/{id}", handler.DeleteCouponHandler(svc.coupons))

			r.Get("/settings", handler.GetSettingsHandler(svc.settings))
			r.Put("/settings/{key}", handler.SetSettingHandler(svc.settings))
			r.Get("/hours", handler.GetHoursHandler(svc.settings))
			r.Put("/hours", handler.SetHoursHandler(svc.settings))

			r.Get("/dashboard", handler.DashboardHandler(svc.orders, loc, clock))
			r.Get("/orders", handler.AdminListOrdersHandler(svc.orders))
			r.Get("/orders/feed", handler.OrderFeedHandler(bus, cfg.CORSOrigins))
			r.Post("/orders/{id}/advance", handler.AdvanceOrderHandler(svc.orders, bus))

			r.Get("/customers", handler.AdminCustomersHandler(svc.auth))
			r.Put("/users/{id}/role", handler.SetRoleHandler(svc.auth))
		})
	})

	return r
}

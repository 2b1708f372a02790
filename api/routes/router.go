package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	discountcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/discounts"
	inventorycontrollers "github.com/angelmondragon/storefront-backend/api/controllers/inventory"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    *redis.Client
	Gatherer prometheus.Gatherer

	Inventory inventorycontrollers.Ledger
	Carts     cartcontrollers.ReservationService
	Orders    ordercontrollers.OrderService
	Discounts discountcontrollers.Previewer
	Razorpay  webhookcontrollers.RazorpayWebhookService
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	idempotent := middleware.Idempotency(deps.Redis, logg)
	standard, critical := idempotent(middleware.ReplayStandard), idempotent(middleware.ReplayCritical)
	discountLimit := middleware.RateLimit(
		middleware.NewRateLimitPolicy(
			"discount-validate",
			cfg.RateLimit.DiscountWindow,
			cfg.RateLimit.DiscountIPLimit,
			cfg.RateLimit.DiscountUserLimit,
		),
		deps.Redis,
		logg,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	razorpayWebhook := webhookcontrollers.RazorpayWebhook(deps.Razorpay, logg)
	r.Post("/api/webhooks/razorpay", razorpayWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/razorpay", razorpayWebhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))

			r.Get("/inventory/{productID}", inventorycontrollers.ProductStock(deps.Inventory, logg))

			r.Get("/carts/{cartID}/reservations", cartcontrollers.CartHolds(deps.Carts, logg))
			r.With(standard).Post("/carts/{cartID}/reservations", cartcontrollers.ReserveCart(deps.Carts, logg))
			r.Delete("/carts/{cartID}/reservations", cartcontrollers.ReleaseCart(deps.Carts, logg))
			r.Post("/carts/{cartID}/reservations/extend", cartcontrollers.ExtendCart(deps.Carts, logg))

			r.With(discountLimit).Post("/discounts/validate", discountcontrollers.Validate(deps.Discounts, logg))

			r.With(critical).Post("/orders", ordercontrollers.PlaceOrder(deps.Orders, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Get("/orders/{orderID}", ordercontrollers.GetOrder(deps.Orders, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.RoleStaff, enums.RoleAdmin))
				r.With(critical).Post("/orders/{orderID}/cancel", ordercontrollers.CancelOrder(deps.Orders, logg))
				r.With(standard).Post("/orders/{orderID}/fulfill", ordercontrollers.FulfillOrder(deps.Orders, logg))
				r.With(standard).Post("/orders/{orderID}/return", ordercontrollers.ReturnOrder(deps.Orders, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
				r.With(critical).Post("/orders", ordercontrollers.DirectOrder(deps.Orders, logg))
				r.With(standard).Post("/inventory/{itemID}/adjust", inventorycontrollers.AdjustStock(deps.Inventory, logg))
			})
		})
	})

	return r
}

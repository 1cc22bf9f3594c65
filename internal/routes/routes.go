package routes

import (
	"checkout_back_end/internal/config"
	"checkout_back_end/internal/handlers"
	"checkout_back_end/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Deps — tout ce que le routeur branche
type Deps struct {
	Settings    config.Settings
	Checkout    *handlers.CheckoutHandlers
	Products    *handlers.ProductHandlers
	RateLimiter *middleware.RateLimiter
	Idempotency *middleware.IdempotencyGuard
}

// RegisterRoutes monte le protocole sous /api/v1.
// Ordre sur les endpoints mutants : rate limit → garde d'idempotence →
// handler, comme le veut le flux de contrôle du protocole.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	v1 := r.Group("/api/v1")
	v1.Use(middleware.APIVersion())

	// Flux catalogue public
	v1.GET("/products",
		deps.RateLimiter.Limit("products_feed"),
		deps.Products.Feed,
	)

	// Endpoints de checkout : bearer token obligatoire
	sessions := v1.Group("/checkout_sessions")
	sessions.Use(middleware.AuthRequired(deps.Settings.JWTSecret))

	sessions.POST("",
		deps.RateLimiter.Limit("checkout_create"),
		deps.Idempotency.Guard("checkout_create"),
		deps.Checkout.Create,
	)
	sessions.GET("/:id",
		deps.RateLimiter.Limit("checkout_get"),
		deps.Checkout.Get,
	)
	sessions.POST("/:id",
		deps.RateLimiter.Limit("checkout_update"),
		deps.Idempotency.Guard("checkout_update"),
		deps.Checkout.Update,
	)
	sessions.POST("/:id/cancel",
		deps.RateLimiter.Limit("checkout_cancel"),
		deps.Idempotency.Guard("checkout_cancel"),
		deps.Checkout.Cancel,
	)
	sessions.POST("/:id/complete",
		deps.RateLimiter.Limit("checkout_complete"),
		deps.Idempotency.Guard("checkout_complete"),
		deps.Checkout.Complete,
	)
}

package main

import (
	"context"
	"log"
	"os"

	"checkout_back_end/internal/catalog"
	"checkout_back_end/internal/checkout"
	"checkout_back_end/internal/config"
	"checkout_back_end/internal/database"
	"checkout_back_end/internal/handlers"
	"checkout_back_end/internal/kv"
	"checkout_back_end/internal/middleware"
	"checkout_back_end/internal/payment"
	"checkout_back_end/internal/pricing"
	"checkout_back_end/internal/reaper"
	"checkout_back_end/internal/routes"
	"checkout_back_end/internal/store"
	"checkout_back_end/internal/utils"
	"checkout_back_end/internal/webhook"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v83"
)

func main() {
	config.Load()
	settings := config.LoadSettings()

	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	if stripe.Key == "" {
		log.Fatal("❌ Impossible d'initialiser Stripe : clé manquante")
	}
	log.Println("✅ Stripe initialisé")

	if len(settings.JWTSecret) == 0 {
		log.Fatal("❌ JWT_SECRET manquant dans .env")
	}

	var kvStore kv.Store
	var productCatalog catalog.Catalog
	var couponSource pricing.CouponSource

	if os.Getenv("KV_BACKEND") == "memory" {
		// Mode dev : tout en mémoire, pas de Redis/Scylla requis
		log.Println("⚠️ KV_BACKEND=memory — stores en mémoire (mode dev)")
		kvStore = kv.NewMemoryStore()
		productCatalog = catalog.NewMemoryCatalog()
		couponSource = pricing.NewMemoryCouponSource()
	} else {
		database.ConnectDatabases()
		kvStore = kv.NewRedisStore(database.Redis)

		productsSession, err := database.GetProductsSession()
		if err != nil {
			log.Fatalf("❌ Keyspace produits indisponible: %v", err)
		}
		productCatalog = catalog.NewScyllaCatalog(productsSession)

		ordersSession, err := database.GetOrdersSession()
		if err != nil {
			log.Fatalf("❌ Keyspace commandes indisponible: %v", err)
		}
		couponSource = pricing.NewScyllaCouponSource(ordersSession)
	}

	sessions := store.NewSessionStore(kvStore, settings.SessionTTL)
	engine := pricing.NewEngine(
		pricing.NewStaticShippingRater(),
		pricing.NewTableTaxRater(),
		pricing.Options{
			ShippingTaxEnabled: true,
			ShippingTaxClass:   "inherit",
		},
	)
	provider := payment.NewStripeProvider(settings.PermalinkBase)
	dispatcher := webhook.NewDispatcher(kvStore, settings)
	mailer := utils.NewMailer(settings)

	svc := checkout.NewService(sessions, productCatalog, engine, couponSource, provider, dispatcher, mailer, settings)

	// Balayage périodique : TTL retardataires, rétention d'audit, abandons
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reaper.New(kvStore, settings).Run(ctx)

	r := gin.Default()
	r.Use(cors.Default())

	routes.RegisterRoutes(r, routes.Deps{
		Settings:    settings,
		Checkout:    handlers.NewCheckoutHandlers(svc),
		Products:    handlers.NewProductHandlers(productCatalog),
		RateLimiter: middleware.NewRateLimiter(kvStore, settings.RateLimits),
		Idempotency: middleware.NewIdempotencyGuard(kvStore, settings.IdempotencyRetention),
	})

	log.Println("🚀 Serveur checkout lancé sur le port", settings.Port)
	if err := r.Run(":" + settings.Port); err != nil {
		log.Fatalf("❌ Serveur arrêté: %v", err)
	}
}

package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load charge le .env s'il existe, sinon on continue avec
// les variables d'environnement du système
func Load() {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("⚠️  Aucun fichier .env trouvé — on continue avec les variables d'environnement du système")
	} else {
		log.Println("✅ Fichier .env chargé avec succès")
	}
}

// RateQuota — quota d'un endpoint sur la fenêtre de 60 secondes
type RateQuota struct {
	Limit  int
	Window time.Duration
}

// Settings regroupe tous les réglages process-wide. Construit une fois
// dans main et injecté dans chaque composant à la construction — pas de
// lecture d'env ailleurs.
type Settings struct {
	Port string

	// Sessions de checkout
	SessionTTL     time.Duration // TTL dur d'une session
	AuditRetention time.Duration // completed/failed conservées pour audit
	AbandonAfter   time.Duration // active sans commande = abandonnée
	ReaperInterval time.Duration

	// Idempotence
	IdempotencyRetention time.Duration

	// Rate limiting par endpoint
	RateLimits map[string]RateQuota

	// Webhooks sortants
	WebhookURL        string
	WebhookSecret     string
	WebhookMaxTries   int
	WebhookBaseDelay  time.Duration
	WebhookRetryGrace time.Duration // fenêtre de re-tentative après un échec re-tentable

	// Divers
	Currency      string
	PermalinkBase string
	JWTSecret     []byte

	// SMTP (email de confirmation)
	SMTPHost     string
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
}

// LoadSettings lit les réglages depuis l'environnement avec des
// valeurs par défaut raisonnables
func LoadSettings() Settings {
	return Settings{
		Port: getEnv("PORT", "8080"),

		SessionTTL:     getDuration("SESSION_TTL", 24*time.Hour),
		AuditRetention: getDuration("SESSION_AUDIT_RETENTION", 7*24*time.Hour),
		AbandonAfter:   getDuration("SESSION_ABANDON_AFTER", 6*time.Hour),
		ReaperInterval: getDuration("REAPER_INTERVAL", 15*time.Minute),

		IdempotencyRetention: getDuration("IDEMPOTENCY_RETENTION", 24*time.Hour),

		RateLimits: map[string]RateQuota{
			"checkout_create":   {Limit: getInt("RATE_CHECKOUT_CREATE", 30), Window: time.Minute},
			"checkout_get":      {Limit: getInt("RATE_CHECKOUT_GET", 120), Window: time.Minute},
			"checkout_update":   {Limit: getInt("RATE_CHECKOUT_UPDATE", 60), Window: time.Minute},
			"checkout_cancel":   {Limit: getInt("RATE_CHECKOUT_CANCEL", 30), Window: time.Minute},
			"checkout_complete": {Limit: getInt("RATE_CHECKOUT_COMPLETE", 20), Window: time.Minute},
			"products_feed":     {Limit: getInt("RATE_PRODUCTS_FEED", 60), Window: time.Minute},
		},

		WebhookURL:        os.Getenv("MERCHANT_WEBHOOK_URL"),
		WebhookSecret:     os.Getenv("MERCHANT_WEBHOOK_SECRET"),
		WebhookMaxTries:   getInt("WEBHOOK_MAX_TRIES", 3),
		WebhookBaseDelay:  getDuration("WEBHOOK_BASE_DELAY", 2*time.Second),
		WebhookRetryGrace: getDuration("WEBHOOK_RETRY_GRACE", time.Hour),

		Currency:      getEnv("CURRENCY", "eur"),
		PermalinkBase: getEnv("PERMALINK_BASE", "https://shop.example.com/orders"),
		JWTSecret:     []byte(os.Getenv("JWT_SECRET")),

		SMTPHost:     getEnv("SMTP_HOST", "ssl0.ovh.net"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     getEnv("MAIL_FROM", "noreply@eldocam.com"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("⚠️ %s invalide, valeur par défaut %d utilisée", key, fallback)
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("⚠️ %s invalide, valeur par défaut %s utilisée", key, fallback)
	}
	return fallback
}

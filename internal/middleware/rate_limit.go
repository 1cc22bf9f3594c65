package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"time"

	"checkout_back_end/internal/config"
	"checkout_back_end/internal/kv"

	"github.com/gin-gonic/gin"
)

// RateLimiter borne le volume de requêtes par (endpoint, client) sur
// une fenêtre glissante de 60 secondes. Comptage simple : INCR + TTL
// posé à la première requête de la fenêtre.
type RateLimiter struct {
	store  kv.Store
	quotas map[string]config.RateQuota
}

func NewRateLimiter(store kv.Store, quotas map[string]config.RateQuota) *RateLimiter {
	return &RateLimiter{store: store, quotas: quotas}
}

// clientKey — principal authentifié si présent, sinon hash de l'IP
func clientKey(c *gin.Context) string {
	if principal := c.GetString("principal_id"); principal != "" {
		return principal
	}
	sum := sha256.Sum256([]byte(c.ClientIP()))
	return hex.EncodeToString(sum[:8])
}

// Limit protège un endpoint nommé selon la table de quotas
func (r *RateLimiter) Limit(endpoint string) gin.HandlerFunc {
	quota, ok := r.quotas[endpoint]
	if !ok {
		quota = config.RateQuota{Limit: 60, Window: time.Minute}
	}

	return func(c *gin.Context) {
		ctx := context.Background()
		key := fmt.Sprintf("ratelimit:%s:%s", endpoint, clientKey(c))

		count, remaining, err := r.store.Incr(ctx, key, quota.Window)
		if err != nil {
			// Le rate limiter ne doit jamais faire tomber le endpoint
			log.Printf("⚠️ Rate limiter indisponible sur %s: %v", endpoint, err)
			c.Next()
			return
		}
		if remaining <= 0 {
			remaining = quota.Window
		}
		reset := time.Now().Add(remaining).Unix()

		if count > int64(quota.Limit) {
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", quota.Limit))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", reset))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Trop de requêtes. Réessayez plus tard",
				"limit":       quota.Limit,
				"remaining":   0,
				"reset":       reset,
				"retry_after": int(remaining.Seconds()),
			})
			c.Abort()
			return
		}

		left := int64(quota.Limit) - count
		if left < 0 {
			left = 0
		}
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", quota.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", left))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", reset))

		c.Next()
	}
}

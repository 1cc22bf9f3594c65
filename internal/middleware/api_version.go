package middleware

import "github.com/gin-gonic/gin"

// APIVersion lit le header API-Version, purement consultatif : on
// l'annote dans le contexte et on le renvoie, on ne rejette jamais
func APIVersion() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := c.GetHeader("API-Version"); v != "" {
			c.Set("api_version", v)
			c.Header("API-Version", v)
		}
		c.Next()
	}
}

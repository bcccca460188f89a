package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvester/config"
	"github.com/use-agent/harvester/models"
)

// Auth returns API-key authentication middleware. The accepted header
// styles are
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//
// With auth disabled or no keys configured, the middleware passes
// everything through.
func Auth(cfg config.AuthConfig) gin.HandlerFunc {
	keySet := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keySet[k] = struct{}{}
		}
	}
	if !cfg.Enabled || len(keySet) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := callerKey(c)
		if key == "" {
			reject(c, "missing API key: provide X-API-Key header or Authorization: Bearer <key>")
			return
		}
		if _, valid := keySet[key]; !valid {
			reject(c, "invalid API key")
			return
		}

		// Downstream middleware keys its state on the caller identity.
		c.Set("api_key", key)
		c.Next()
	}
}

func reject(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ScrapeResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeUnauthorized,
			Message: msg,
		},
	})
}

// callerKey tries X-API-Key first, then Authorization: Bearer.
func callerKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

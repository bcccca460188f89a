package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvester/cache"
	"github.com/use-agent/harvester/models"
	"github.com/use-agent/harvester/scrape"
)

// Scrape returns the handler for POST /api/v1/scrape.
//
// Flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup when the caller allows a max age.
//  3. Scraper.Scrape drives the full strategy chain.
//  4. Cache successful results, map failures to HTTP status, respond.
func Scrape(sc *scrape.Scraper, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		// ── 2. Cache lookup ─────────────────────────────────────────
		if cc != nil && req.MaxAge > 0 {
			key := cache.Key(req.URL, req.ExtractionSpec)
			if cached, hit := cc.Get(key, req.MaxAge); hit {
				// The cached response is shared across requests; stamp
				// the marker on a copy, never the stored object.
				out := *cached
				out.CacheStatus = "hit"
				c.JSON(http.StatusOK, &out)
				return
			}
		}

		// ── 3. Scrape ───────────────────────────────────────────────
		resp := sc.Scrape(c.Request.Context(), &req)

		// ── 4. Cache store + respond ────────────────────────────────
		if !resp.Success {
			c.JSON(statusFor(resp.Error), resp)
			return
		}
		if cc != nil && req.MaxAge > 0 {
			// Stamp before Set: once stored, the response may be read
			// by concurrent hits.
			resp.CacheStatus = "miss"
			cc.Set(cache.Key(req.URL, req.ExtractionSpec), resp)
		}
		c.JSON(http.StatusOK, resp)
	}
}

// statusFor translates terminal error codes to HTTP status codes.
func statusFor(e *models.ErrorDetail) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeProxy:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeBotDetected, models.ErrCodeCaptcha:
		return http.StatusConflict // 409: the target refused automation
	default:
		return http.StatusInternalServerError // 500
	}
}

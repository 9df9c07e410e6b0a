package middleware

import (
	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/eaglebank/banking/shared/config"
	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware limits requests per client IP. It is a no-op when the
// configured rate is zero.
func RateLimitMiddleware(cfg config.RateLimit) gin.HandlerFunc {
	if !cfg.Enabled() {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	lmt := tollbooth.NewLimiter(cfg.RequestsPerSecond, &limiter.ExpirableOptions{
		DefaultExpirationTTL: cfg.CleanupInterval,
	})
	lmt.SetBurst(cfg.EffectiveBurst())

	return func(c *gin.Context) {
		if httpError := tollbooth.LimitByRequest(lmt, c.Writer, c.Request); httpError != nil {
			RespondWithError(c, httpError.StatusCode, httpError.Message)
			c.Abort()
			return
		}
		c.Next()
	}
}

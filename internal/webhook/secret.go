package webhook

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/logger"
)

const (
	HeaderSecret = "X-Webhook-Secret"
	HeaderToken  = "X-Webhook-Token"
)

// SecretPolicy decides which webhook requests are authentic.
type SecretPolicy struct {
	Secret string
	// AllowUnsigned admits every request when Secret is empty. Config only
	// enables it outside production.
	AllowUnsigned bool
}

// RequireSecret rejects requests whose shared secret header does not match.
// With no secret configured it fails closed unless AllowUnsigned is set.
func RequireSecret(p SecretPolicy) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(p.Secret))
	return func(c *gin.Context) {
		if len(expected) == 0 {
			if p.AllowUnsigned {
				c.Next()
				return
			}
			logger.FromGin(c).Error("webhook secret not configured; rejecting request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		provided := c.GetHeader(HeaderSecret)
		if provided == "" {
			provided = c.GetHeader(HeaderToken)
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(provided)), expected) != 1 {
			logger.FromGin(c).Warn("webhook secret mismatch", "path", c.FullPath(), "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

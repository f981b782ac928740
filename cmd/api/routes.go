package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/httpapi"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/webhook"
	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/logger"
)

type routeDeps struct {
	Webhook webhook.Handlers
	Secret  webhook.SecretPolicy
	Admin   httpapi.Handlers
	// Ready reports whether the database answers.
	Ready func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if d.Ready != nil {
			if err := d.Ready(c.Request.Context()); err != nil {
				logger.FromGin(c).Warn("health check failed", "err", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Voice platform webhooks, protected by the shared secret.
	d.Webhook.Register(r, webhook.RequireSecret(d.Secret))

	// Admin portal API; handlers apply their own token and role checks.
	d.Admin.Register(r)
}

package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/audit"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/auth"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/phoneconfig"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/rbac"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/reporting"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/templates"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/users"
	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/logger"
)

// Handlers groups the admin HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth        *auth.Manager
	Users       *users.Service
	Reporting   *reporting.Service
	Templates   *templates.Service
	PhoneConfig *phoneconfig.Service
	Audit       *audit.Service

	// Now defaults to time.Now.
	Now func() time.Time
}

// Register mounts the admin API under /admin.
func (h Handlers) Register(r gin.IRouter) {
	admin := r.Group("/admin")
	admin.POST("/login", h.Login)
	admin.POST("/refresh", h.Refresh)

	staff := admin.Group("", auth.RequireAccessToken(h.Auth), rbac.RequireAnyRole(rbac.RoleStaff))
	staff.GET("/stats", h.Stats)
	staff.GET("/calls", h.ListCalls)
	staff.GET("/calls/:id", h.GetCall)
	staff.GET("/transcripts", h.SearchTranscripts)
	staff.GET("/export", h.ExportCalls)

	staff.GET("/email-templates", h.ListTemplates)
	staff.PUT("/email-templates/:type", h.UpdateTemplate)
	staff.GET("/phone-config", h.GetPhoneConfig)
	staff.PUT("/phone-config", h.UpdatePhoneConfig)

	super := staff.Group("", rbac.RequireSuperuser())
	super.GET("/users", h.ListUsers)
	super.POST("/users", h.SetUserPassword)
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// internalError logs err and answers 500 without leaking it.
func internalError(c *gin.Context, msg string, err error) {
	logger.FromGin(c).Error(msg, "err", err)
	abort(c, http.StatusInternalServerError, msg)
}

// recordChange appends an audit event. Failures are logged only.
func (h Handlers) recordChange(c *gin.Context, typ audit.EventType, target, message string) {
	if h.Audit == nil {
		return
	}
	ctx := c.Request.Context()
	userID, _ := auth.UserID(ctx)
	actor := audit.Actor{UserID: userID, Username: auth.Username(ctx), IP: c.ClientIP()}

	if err := h.Audit.LogChange(context.WithoutCancel(ctx), actor, typ, target, message, ""); err != nil {
		logger.FromGin(c).Warn("audit append failed", "type", typ, "target", target, "err", err)
	}
}

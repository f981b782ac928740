package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/audit"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/phoneconfig"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/templates"
)

// ListTemplates seeds any missing defaults and returns every template.
func (h Handlers) ListTemplates(c *gin.Context) {
	out, err := h.Templates.List(c.Request.Context())
	if err != nil {
		internalError(c, "template listing failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}

type templateRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h Handlers) UpdateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json")
		return
	}
	typ := c.Param("type")

	t, err := h.Templates.Update(c.Request.Context(), typ, req.Subject, req.Body)
	switch {
	case errors.Is(err, templates.ErrUnknownType):
		abort(c, http.StatusNotFound, "unknown template type")
		return
	case errors.Is(err, templates.ErrInvalidTemplate):
		abort(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		internalError(c, "template update failed", err)
		return
	}

	h.recordChange(c, audit.EventTemplateUpdated, "email_template:"+t.TemplateType, "email template updated")
	c.JSON(http.StatusOK, t)
}

func (h Handlers) GetPhoneConfig(c *gin.Context) {
	cfg, err := h.PhoneConfig.Get(c.Request.Context())
	if err != nil {
		internalError(c, "phone configuration lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h Handlers) UpdatePhoneConfig(c *gin.Context) {
	var req phoneconfig.Configuration
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json")
		return
	}

	cfg, err := h.PhoneConfig.Update(c.Request.Context(), req)
	if errors.Is(err, phoneconfig.ErrInvalid) {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(c, "phone configuration update failed", err)
		return
	}

	h.recordChange(c, audit.EventPhoneConfigUpdated, "phone_config", "phone configuration updated")
	c.JSON(http.StatusOK, cfg)
}

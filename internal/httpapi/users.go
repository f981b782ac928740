package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/audit"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/users"
)

func (h Handlers) ListUsers(c *gin.Context) {
	out, err := h.Users.List(c.Request.Context())
	if err != nil {
		internalError(c, "user listing failed", err)
		return
	}
	if out == nil {
		out = []users.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

type setPasswordRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// SetUserPassword creates an account or resets the password of an existing one.
// RBAC: superuser.
func (h Handlers) SetUserPassword(c *gin.Context) {
	var req setPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json")
		return
	}

	u, created, err := h.Users.SetPassword(c.Request.Context(), req.Username, req.Password, req.Role)
	if errors.Is(err, users.ErrInvalidInput) {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(c, "user update failed", err)
		return
	}

	status, msg := http.StatusOK, "password reset"
	if created {
		status, msg = http.StatusCreated, "user created"
	}
	h.recordChange(c, audit.EventUserPasswordSet, "user:"+u.Username, msg)
	c.JSON(status, gin.H{"user": u, "created": created})
}

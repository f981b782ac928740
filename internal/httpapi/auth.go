package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/auth"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/users"
	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/logger"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login checks credentials and issues a JWT token pair.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || h.Users == nil {
		abort(c, http.StatusInternalServerError, "auth not configured")
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Username == "" || req.Password == "" {
		abort(c, http.StatusBadRequest, "username and password required")
		return
	}

	u, err := h.Users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		logger.FromGin(c).Info("login rejected", "username", req.Username)
		abort(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		internalError(c, "login failed", err)
		return
	}

	h.issue(c, u)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a new pair. The role is re-read so
// that demoted or deactivated accounts lose access.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil || h.Users == nil {
		abort(c, http.StatusInternalServerError, "auth not configured")
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		abort(c, http.StatusBadRequest, "refresh_token required")
		return
	}

	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, h.now())
	if err != nil {
		abort(c, http.StatusUnauthorized, "invalid token")
		return
	}
	u, err := h.Users.Get(c.Request.Context(), claims.UserID)
	if errors.Is(err, users.ErrNotFound) {
		abort(c, http.StatusUnauthorized, "invalid token")
		return
	}
	if err != nil {
		internalError(c, "refresh failed", err)
		return
	}

	h.issue(c, u)
}

func (h Handlers) issue(c *gin.Context, u users.User) {
	pair, err := h.Auth.IssuePair(h.now(), auth.Identity{UserID: u.ID, Username: u.Username, Role: u.Role})
	if err != nil {
		internalError(c, "token issuance failed", err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

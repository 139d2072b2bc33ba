package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/documind/user-service/internal/model"
	"github.com/documind/user-service/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Login godoc
// @Summary Login
// @Description Authenticates by username or email and issues an access/refresh token pair.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.LoginRequest true "Username or email, and password"
// @Success 200 {object} model.LoginResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req.UsernameOrEmail, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Refresh godoc
// @Summary Refresh tokens
// @Description Exchanges the current refresh token for a new access/refresh pair.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RefreshRequest true "Refresh token"
// @Success 200 {object} model.LoginResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req model.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	resp, err := h.svc.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Logout godoc
// @Summary Logout
// @Description Blacklists the presented bearer token and clears the cached session. Always succeeds.
// @Tags auth
// @Produce json
// @Success 200 {object} model.LogoutResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	revoked := false
	if tok := bearerToken(c); tok != "" {
		revoked = h.svc.Logout(c.Request.Context(), tok)
	}
	c.JSON(http.StatusOK, model.LogoutResponse{Status: "logged_out", Revoked: revoked})
}

// Validate godoc
// @Summary Validate token
// @Description Reports whether the presented bearer token is currently valid.
// @Tags auth
// @Produce json
// @Success 200 {object} model.ValidateResponse
// @Router /api/v1/auth/validate [post]
func (h *AuthHandler) Validate(c *gin.Context) {
	valid := false
	if tok := bearerToken(c); tok != "" {
		valid = h.svc.ValidateToken(c.Request.Context(), tok)
	}
	c.JSON(http.StatusOK, model.ValidateResponse{Valid: valid})
}

// Me godoc
// @Summary Get current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.MeResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, model.MeResponse{
		UserID:   user.ID.String(),
		Username: user.Username,
		Role:     string(user.Role),
	})
}

// Lock godoc
// @Summary Lock an account
// @Description Administrative override that starts a lockout window immediately.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param usernameOrEmail path string true "Username or email"
// @Success 200 {object} model.StatusResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/admin/accounts/{usernameOrEmail}/lock [post]
func (h *AuthHandler) Lock(c *gin.Context) {
	if err := h.svc.LockAccount(c.Request.Context(), c.Param("usernameOrEmail")); err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{Status: "locked"})
}

// Unlock godoc
// @Summary Unlock an account
// @Description Clears the lockout window and resets the failed-attempt counter.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param usernameOrEmail path string true "Username or email"
// @Success 200 {object} model.StatusResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/admin/accounts/{usernameOrEmail}/unlock [post]
func (h *AuthHandler) Unlock(c *gin.Context) {
	if err := h.svc.UnlockAccount(c.Request.Context(), c.Param("usernameOrEmail")); err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{Status: "unlocked"})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
	}
}

package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/identity-api/internal/domain/entity"
	"github.com/yourusername/identity-api/internal/middleware"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
	"github.com/yourusername/identity-api/internal/service"
	"github.com/yourusername/identity-api/internal/session"
)

// AuthHandler serves the federated login, registration and activation
// endpoints.
type AuthHandler struct {
	resolver     *service.AuthResolver
	registration *service.RegistrationService
	throttle     *service.LoginThrottle
	registry     *service.ProviderRegistry
	accounts     *service.AccountService
}

func NewAuthHandler(
	resolver *service.AuthResolver,
	registration *service.RegistrationService,
	throttle *service.LoginThrottle,
	registry *service.ProviderRegistry,
	accounts *service.AccountService,
) *AuthHandler {
	return &AuthHandler{
		resolver:     resolver,
		registration: registration,
		throttle:     throttle,
		registry:     registry,
		accounts:     accounts,
	}
}

// TokenRequest carries either a verifiable provider token or an OAuth
// authorization code to exchange for one.
type TokenRequest struct {
	Token       string `json:"token" binding:"omitempty"`
	Code        string `json:"code" binding:"omitempty"`
	RedirectURI string `json:"redirect_uri" binding:"omitempty,url"`
}

// UserResponse is the public account representation.
type UserResponse struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty"`
	Active        bool       `json:"active"`
	EmailVerified bool       `json:"email_verified"`
	CreatedAt     time.Time  `json:"created_at"`
	VerifiedAt    *time.Time `json:"email_verified_at,omitempty"`
}

func newUserResponse(user *entity.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		Active:        user.Active,
		EmailVerified: user.EmailVerifiedAt != nil,
		CreatedAt:     user.CreatedAt,
		VerifiedAt:    user.EmailVerifiedAt,
	}
}

// resolveToken returns the verifiable token from the request, exchanging the
// authorization code when no token was sent directly.
func (h *AuthHandler) resolveToken(c *gin.Context, providerTag string, req *TokenRequest) (string, bool) {
	token := strings.TrimSpace(req.Token)
	if token != "" {
		return token, true
	}
	if strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token or code is required", "error_type": "invalid_request"})
		return "", false
	}

	provider, err := h.registry.Get(providerTag)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "invalid_request"})
		return "", false
	}
	token, err = provider.ExchangeCode(c.Request.Context(), req.Code, req.RedirectURI)
	if err != nil {
		h.handleAuthError(c, err)
		return "", false
	}
	return token, true
}

// Login authenticates with a provider token and binds the account to the
// session. Failed attempts count against the per-session throttle.
func (h *AuthHandler) Login(c *gin.Context) {
	providerTag := c.Param("provider")

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "invalid_request"})
		return
	}

	sess, ok := middleware.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable", "error_type": "internal_error"})
		return
	}

	token, ok := h.resolveToken(c, providerTag, &req)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	pendingUserID, err := sess.Get(ctx, session.KeyPendingUserID)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	userID, err := h.resolver.Authenticate(ctx, providerTag, token, pendingUserID)
	if err != nil {
		if isLoginFailure(err) {
			destroyed, throttleErr := h.throttle.RecordFailure(ctx, sess, providerTag)
			if throttleErr != nil {
				log.Printf("[AuthHandler] throttle update failed: %v", throttleErr)
			}
			h.handleLoginFailure(c, err, destroyed)
			return
		}
		h.handleAuthError(c, err)
		return
	}

	user, err := h.accounts.GetByID(ctx, userID)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}
	if !user.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "account is not activated", "error_type": "account_inactive"})
		return
	}

	if err := sess.Set(ctx, session.KeyUserID, userID); err != nil {
		h.handleAuthError(c, err)
		return
	}
	if err := sess.Delete(ctx, session.KeyPendingUserID); err != nil {
		log.Printf("[AuthHandler] failed to clear pending login: %v", err)
	}
	if err := h.throttle.Reset(ctx, sess, providerTag); err != nil {
		log.Printf("[AuthHandler] failed to reset login error counter: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"user": newUserResponse(user)})
}

// Register creates a new account from a provider token and links the
// identity. The account still has to log in (and possibly activate) after.
func (h *AuthHandler) Register(c *gin.Context) {
	providerTag := c.Param("provider")

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "invalid_request"})
		return
	}

	token, ok := h.resolveToken(c, providerTag, &req)
	if !ok {
		return
	}

	user, err := h.registration.Register(c.Request.Context(), providerTag, token)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": newUserResponse(user)})
}

// ActivateRequest carries a mailed activation code.
type ActivateRequest struct {
	Code string `json:"code" binding:"required"`
}

// Activate consumes a mailed activation code.
func (h *AuthHandler) Activate(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "invalid_request"})
		return
	}

	if err := h.registration.Activate(c.Request.Context(), req.Code); err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "account activated"})
}

// LoginErrors reports the session's failed attempt count for a provider so
// clients can warn before the forced logout.
func (h *AuthHandler) LoginErrors(c *gin.Context) {
	providerTag := c.Param("provider")

	sess, ok := middleware.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable", "error_type": "internal_error"})
		return
	}

	count, err := h.throttle.Failures(c.Request.Context(), sess, providerTag)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider": providerTag,
		"failures": count,
		"limit":    h.throttle.Limit(),
	})
}

// Logout destroys the session.
func (h *AuthHandler) Logout(c *gin.Context) {
	sess, ok := middleware.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable", "error_type": "internal_error"})
		return
	}

	if err := sess.Destroy(c.Request.Context()); err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// GetMe returns the authenticated account.
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	user, err := h.accounts.GetByID(c.Request.Context(), userID)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": newUserResponse(user)})
}

// DeleteMe deletes the authenticated account after removing its links, then
// destroys the session.
func (h *AuthHandler) DeleteMe(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	caller := service.Caller{UserID: userID}

	if err := h.accounts.Delete(c.Request.Context(), caller, userID); err != nil {
		h.handleAuthError(c, err)
		return
	}

	if sess, ok := middleware.SessionFromContext(c); ok {
		if err := sess.Destroy(c.Request.Context()); err != nil {
			log.Printf("[AuthHandler] failed to destroy session after account deletion: %v", err)
		}
	}
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)

	c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
}

// isLoginFailure reports whether the error is a failed login attempt that
// counts against the throttle (as opposed to a transport or server problem).
func isLoginFailure(err error) bool {
	return errors.Is(err, service.ErrInvalidToken) ||
		errors.Is(err, service.ErrNoAccountConnected) ||
		errors.Is(err, service.ErrAccountMismatch)
}

func (h *AuthHandler) handleLoginFailure(c *gin.Context, err error, sessionDestroyed bool) {
	status := http.StatusUnauthorized
	errType := "invalid_token"
	switch {
	case errors.Is(err, service.ErrNoAccountConnected):
		errType = "no_account_connected"
	case errors.Is(err, service.ErrAccountMismatch):
		errType = "account_mismatch"
	}

	c.JSON(status, gin.H{
		"error":             err.Error(),
		"error_type":        errType,
		"session_destroyed": sessionDestroyed,
	})
}

// handleAuthError maps service errors to HTTP responses with a stable
// error_type. Unexpected errors stay opaque.
func (h *AuthHandler) handleAuthError(c *gin.Context, err error) {
	var alreadyLinked *service.AlreadyLinkedError

	switch {
	case errors.As(err, &alreadyLinked):
		c.JSON(http.StatusConflict, gin.H{
			"error":      alreadyLinked.Error(),
			"error_type": "account_already_connected",
			"provider":   alreadyLinked.Provider,
			"email":      alreadyLinked.Email,
		})
	case errors.Is(err, service.ErrEmailAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "an account with this email already exists", "error_type": "email_already_exists"})
	case errors.Is(err, service.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": "the provider email address is not verified", "error_type": "email_not_verified"})
	case errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid provider token", "error_type": "invalid_token"})
	case errors.Is(err, service.ErrNoAccountConnected):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no account connected to this identity", "error_type": "no_account_connected"})
	case errors.Is(err, service.ErrAccountMismatch):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity belongs to a different account", "error_type": "account_mismatch"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "invalid_request"})
	case errors.Is(err, apperrors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_type": "unauthorized"})
	case errors.Is(err, apperrors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_type": "forbidden"})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "error_type": "not_found"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "error_type": "conflict"})
	default:
		log.Printf("[AuthHandler] internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "error_type": "internal_error"})
	}
}

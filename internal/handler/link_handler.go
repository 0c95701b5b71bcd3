package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/identity-api/internal/domain/entity"
	"github.com/yourusername/identity-api/internal/middleware"
	"github.com/yourusername/identity-api/internal/service"
)

// LinkHandler serves the per-account connection management endpoints.
type LinkHandler struct {
	linkService *service.LinkService
	registry    *service.ProviderRegistry
	auth        *AuthHandler
}

func NewLinkHandler(linkService *service.LinkService, registry *service.ProviderRegistry, auth *AuthHandler) *LinkHandler {
	return &LinkHandler{
		linkService: linkService,
		registry:    registry,
		auth:        auth,
	}
}

// LinkResponse is the public representation of a federated link.
type LinkResponse struct {
	Provider      string    `json:"provider"`
	ProviderEmail string    `json:"provider_email,omitempty"`
	DisplayName   string    `json:"display_name,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	ConnectedAt   time.Time `json:"connected_at"`
}

func newLinkResponse(link *entity.FederatedLink) LinkResponse {
	return LinkResponse{
		Provider:      link.Provider,
		ProviderEmail: link.ProviderEmail,
		DisplayName:   link.DisplayName,
		EmailVerified: link.EmailVerified,
		ConnectedAt:   link.CreatedAt,
	}
}

// Connect links a provider identity to the authenticated account.
func (h *LinkHandler) Connect(c *gin.Context) {
	providerTag := c.Param("provider")
	userID := middleware.UserIDFromContext(c)

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "invalid_request"})
		return
	}

	token, ok := h.auth.resolveToken(c, providerTag, &req)
	if !ok {
		return
	}

	caller := service.Caller{UserID: userID}
	link, err := h.linkService.Connect(c.Request.Context(), caller, userID, providerTag, token, true)
	if err != nil {
		h.auth.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"link": newLinkResponse(link)})
}

// Disconnect removes the provider link of the authenticated account.
// Succeeds even when no link exists.
func (h *LinkHandler) Disconnect(c *gin.Context) {
	providerTag := c.Param("provider")
	userID := middleware.UserIDFromContext(c)

	caller := service.Caller{UserID: userID}
	if err := h.linkService.Disconnect(c.Request.Context(), caller, userID, providerTag, true); err != nil {
		h.auth.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "disconnected"})
}

// List returns the connection state of the authenticated account for every
// configured provider.
func (h *LinkHandler) List(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	ctx := c.Request.Context()

	connections := make(map[string]interface{}, len(h.registry.Tags()))
	for _, tag := range h.registry.Tags() {
		link, err := h.linkService.LinkByUser(ctx, userID, tag)
		if err != nil {
			connections[tag] = nil
			continue
		}
		resp := newLinkResponse(link)
		connections[tag] = resp
	}

	c.JSON(http.StatusOK, gin.H{"connections": connections})
}

package provider

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"webconf-backend/internal/domain"
	"webconf-backend/internal/service/provider"
	"webconf-backend/pkg/response"
)

// Handler exposes provider configurations
type Handler struct {
	registry *provider.Registry
}

// NewHandler creates a new provider handler
func NewHandler(registry *provider.Registry) *Handler {
	return &Handler{registry: registry}
}

// SaveConfigurationRequest switches a provider on or off
type SaveConfigurationRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// RegisterRoutes mounts the provider endpoints on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	providers := rg.Group("/providers")
	providers.GET("", h.ListConfigurations)
	providers.GET("/:type", h.GetConfiguration)
	providers.PUT("/:type", h.SaveConfiguration)
}

// ListConfigurations returns the configuration of every provider
// GET /v1/providers
func (h *Handler) ListConfigurations(c *gin.Context) {
	response.Success(c, http.StatusOK, h.registry.ListConfigurations(c.Request.Context(), locale(c)))
}

// GetConfiguration returns the configuration of one provider
// GET /v1/providers/:type
func (h *Handler) GetConfiguration(c *gin.Context) {
	conf, err := h.registry.Configuration(c.Request.Context(), c.Param("type"), locale(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conf)
}

// SaveConfiguration stores the active flag of a provider. Admin only.
// PUT /v1/providers/:type
func (h *Handler) SaveConfiguration(c *gin.Context) {
	if c.GetString("role") != "admin" {
		response.Forbidden(c, "Admin role required")
		return
	}

	var req SaveConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	providerType := c.Param("type")
	if _, err := h.registry.Resolve(ctx, providerType); err != nil {
		response.FromError(c, err)
		return
	}
	if err := h.registry.SaveConfiguration(ctx, domain.ProviderConfiguration{Type: providerType, Active: *req.Active}); err != nil {
		response.FromError(c, err)
		return
	}

	conf, err := h.registry.Configuration(ctx, providerType, locale(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, conf)
}

// locale picks the lang query parameter, then Accept-Language, then English
func locale(c *gin.Context) language.Tag {
	if lang := c.Query("lang"); lang != "" {
		if tag, err := language.Parse(lang); err == nil {
			return tag
		}
	}
	if tags, _, err := language.ParseAcceptLanguage(c.GetHeader("Accept-Language")); err == nil && len(tags) > 0 {
		return tags[0]
	}
	return language.English
}

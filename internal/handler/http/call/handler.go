package call

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"webconf-backend/internal/service/call"
	"webconf-backend/pkg/response"
)

// Handler handles call HTTP requests
type Handler struct {
	callService *call.Service
}

// NewHandler creates a new call handler
func NewHandler(callService *call.Service) *Handler {
	return &Handler{
		callService: callService,
	}
}

// ClientRequest carries the client session acting on a call
type ClientRequest struct {
	ClientID string `json:"client_id" binding:"max=255"`
}

// RegisterRoutes mounts the call endpoints on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	calls := rg.Group("/calls")
	calls.POST("", h.AddCall)
	calls.GET("/:id", h.GetCall)
	calls.POST("/:id/start", h.StartCall)
	calls.POST("/:id/join", h.JoinCall)
	calls.POST("/:id/leave", h.LeaveCall)
	calls.POST("/:id/stop", h.StopCall)
	calls.DELETE("/:id", h.DeleteCall)

	rg.GET("/users/:id/calls", h.GetUserCalls)
}

// AddCall creates a call
// POST /v1/calls
func (h *Handler) AddCall(c *gin.Context) {
	var req call.AddCallInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	created, err := h.callService.AddCall(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, created)
}

// GetCall returns a call
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	found, err := h.callService.GetCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, found)
}

// StartCall starts a call with the caller joined
// POST /v1/calls/:id/start
func (h *Handler) StartCall(c *gin.Context) {
	req, ok := bindClient(c)
	if !ok {
		return
	}

	started, err := h.callService.StartCall(c.Request.Context(), c.Param("id"), req.ClientID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, started)
}

// JoinCall joins the caller to a call
// POST /v1/calls/:id/join
func (h *Handler) JoinCall(c *gin.Context) {
	req, ok := bindClient(c)
	if !ok {
		return
	}

	joined, err := h.callService.JoinCall(c.Request.Context(), c.Param("id"), c.GetString("user_id"), req.ClientID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, joined)
}

// LeaveCall removes the caller from a call. A missing call answers with null data.
// POST /v1/calls/:id/leave
func (h *Handler) LeaveCall(c *gin.Context) {
	req, ok := bindClient(c)
	if !ok {
		return
	}

	left, err := h.callService.LeaveCall(c.Request.Context(), c.Param("id"), c.GetString("user_id"), req.ClientID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, left)
}

// StopCall stops a call and keeps its record
// POST /v1/calls/:id/stop
func (h *Handler) StopCall(c *gin.Context) {
	h.stop(c, false)
}

// DeleteCall stops a call and deletes its record
// DELETE /v1/calls/:id
func (h *Handler) DeleteCall(c *gin.Context) {
	h.stop(c, true)
}

func (h *Handler) stop(c *gin.Context, remove bool) {
	stopped, err := h.callService.StopCall(c.Request.Context(), c.Param("id"), remove)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, stopped)
}

// GetUserCalls lists the group calls of a user. Only the user or an admin may ask.
// GET /v1/users/:id/calls
func (h *Handler) GetUserCalls(c *gin.Context) {
	userID := c.Param("id")
	if userID != c.GetString("user_id") && c.GetString("role") != "admin" {
		response.Forbidden(c, "Cannot read calls of another user")
		return
	}

	calls, err := h.callService.GetUserCalls(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user_id": userID,
		"calls":   calls,
	})
}

// bindClient reads an optional client body
func bindClient(c *gin.Context) (ClientRequest, bool) {
	var req ClientRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return req, false
	}
	return req, true
}

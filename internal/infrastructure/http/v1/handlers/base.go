// Package handlers provides HTTP request handlers.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmledger/internal/core/apperror"
	appctx "pharmledger/internal/core/context"
	"pharmledger/internal/core/id"
	"pharmledger/internal/infrastructure/http/v1/middleware"
	"pharmledger/pkg/logger"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, middleware.ValidationError("invalid request body", err))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, middleware.ValidationError("invalid query parameters", err))
		return false
	}
	return true
}

// ParamID parses a UUID path parameter.
func (h *BaseHandler) ParamID(c *gin.Context, name string) (id.ID, bool) {
	raw := c.Param(name)
	v, err := id.Parse(raw)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format").WithDetail(name, raw))
		return id.ID{}, false
	}
	return v, true
}

// Error registers error on Gin context and aborts request.
// The JSON response is produced by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// GetUserID extracts user ID from request context.
func (h *BaseHandler) GetUserID(c *gin.Context) string {
	return appctx.GetUserID(c.Request.Context())
}

// CompleteIdempotency stores the response against the request's idempotency
// key so a retry replays the same status, content type and body.
func (h *BaseHandler) CompleteIdempotency(c *gin.Context, statusCode int, contentType string, response any) {
	key, store, ok := middleware.IdempotencyFromContext(c)
	if !ok {
		return
	}
	var body []byte
	if response != nil {
		raw, err := json.Marshal(response)
		if err != nil {
			logger.Warn(c.Request.Context(), "encode idempotent response", "key", key, "error", err)
			return
		}
		body = raw
	}
	if err := store.CompleteKey(c.Request.Context(), key, statusCode, contentType, body); err != nil {
		logger.Warn(c.Request.Context(), "complete idempotency key", "key", key, "error", err)
	}
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	h.CompleteIdempotency(c, http.StatusCreated, "application/json", data)
	c.JSON(http.StatusCreated, data)
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	h.CompleteIdempotency(c, http.StatusOK, "application/json", data)
	c.JSON(http.StatusOK, data)
}

// NoContent sends 204 response.
func (h *BaseHandler) NoContent(c *gin.Context) {
	// 204 must replay as 204 with empty body.
	h.CompleteIdempotency(c, http.StatusNoContent, "", nil)
	c.Status(http.StatusNoContent)
}

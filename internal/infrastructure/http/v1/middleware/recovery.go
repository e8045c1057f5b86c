// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"pharmledger/internal/core/apperror"
	"pharmledger/pkg/logger"
)

// Recovery turns a panic into a 500 response.
// A panic unwinds past ErrorHandler, so the response is written here and any
// idempotency key taken by the request is released for a retry.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ctx := c.Request.Context()
			logger.Error(ctx, "panic recovered",
				"method", c.Request.Method,
				"route", c.FullPath(),
				"panic", rec,
				"stack", string(debug.Stack()),
			)

			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", rec)))
			body := gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{"request_id": c.GetString("request_id")},
			}
			settleIdempotency(c, http.StatusInternalServerError, apperror.CodeInternal, body)
			if !c.Writer.Written() {
				c.AbortWithStatusJSON(http.StatusInternalServerError, body)
				return
			}
			c.Abort()
		}()
		c.Next()
	}
}

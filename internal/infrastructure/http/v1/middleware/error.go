package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmledger/internal/core/apperror"
	"pharmledger/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}

			body := gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			}
			settleIdempotency(c, appErr.HTTPStatus, appErr.Code, body)
			c.JSON(appErr.HTTPStatus, body)
			return
		}

		logger.Error(c.Request.Context(), "unhandled error",
			"error", err,
		)

		body := gin.H{
			"code":    apperror.CodeInternal,
			"message": "Internal server error",
			"details": map[string]any{
				"request_id": c.GetString("request_id"),
			},
		}
		settleIdempotency(c, http.StatusInternalServerError, apperror.CodeInternal, body)
		c.JSON(http.StatusInternalServerError, body)
	}
}

// settleIdempotency records a failed response against the request's
// idempotency key. Client errors are replayed. Server errors and lock
// conflicts free the key so a retry with the same key runs again.
func settleIdempotency(c *gin.Context, status int, code string, body gin.H) {
	key, store, ok := IdempotencyFromContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if retryable(status, code) {
		if err := store.ReleaseKey(ctx, key); err != nil {
			logger.Warn(ctx, "release idempotency key", "key", key, "error", err)
		}
		return
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return
	}
	if err := store.FailKey(ctx, key, status, "application/json", raw); err != nil {
		logger.Warn(ctx, "fail idempotency key", "key", key, "error", err)
	}
}

func retryable(status int, code string) bool {
	return status >= http.StatusInternalServerError || code == apperror.CodeConcurrentModification
}

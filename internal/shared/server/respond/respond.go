package respond

import (
	"github.com/gin-gonic/gin"

	"jobbot/internal/shared/telemetry"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

// JSON writes v with the given status.
func JSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

// Error logs the failure and aborts the request with a JSON error body.
func Error(c *gin.Context, status int, code, message string, details any) {
	requestID := c.GetString("request_id")
	telemetry.Error("http.error", map[string]any{
		"request_id": requestID,
		"method":     c.Request.Method,
		"path":       c.FullPath(),
		"status":     status,
		"code":       code,
		"message":    message,
	})
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     ErrorBody{Code: code, Message: message, Details: details},
		RequestID: requestID,
	})
}

package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"jobbot/internal/shared/server/respond"
	"jobbot/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				telemetry.Error("http.panic", map[string]any{
					"request_id": RequestIDFromContext(c),
					"panic":      fmt.Sprint(rec),
				})
				respond.Error(c, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			}
		}()
		c.Next()
	}
}

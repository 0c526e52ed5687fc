package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/mkarlsen/depot/internal/reporting"
)

// Recovery returns the error-boundary middleware. A panic escaping a
// route handler is converted into a 500 JSON response; the error
// descriptor (dynamic type, message, stack) is recorded for the
// Lifecycle completion stage and forwarded to the reporter when one is
// configured. The client always receives a well-formed HTTP response.
//
// Recovery itself does not log: the per-request record is emitted once
// by Lifecycle, which must be installed before this middleware.
func Recovery(reporter *reporting.Reporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if v := recover(); v != nil {
				desc := ErrorDescriptor{
					Kind:       fmt.Sprintf("%T", v),
					Message:    panicMessage(v),
					Stacktrace: string(debug.Stack()),
				}
				setError(c, desc)

				reporter.Notify(c.Request.Context(), desc.Kind, desc.Message, desc.Stacktrace)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "internal server error",
					"request_id": RequestID(c),
				})
			}
		}()

		c.Next()
	}
}

// panicMessage renders the recovered value as a message string.
func panicMessage(v interface{}) string {
	switch val := v.(type) {
	case error:
		return val.Error()
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

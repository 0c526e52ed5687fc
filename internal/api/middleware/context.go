package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Gin context keys for per-request instrumentation state. The state is
// created at the start of the pipeline and read at the completion
// stage; nothing outside this package writes it.
const (
	timingKey = "depot.timing"
	errorKey  = "depot.error"
)

// Timing is the per-request context created on arrival. It carries the
// monotonic start marker used to derive elapsed time and the request ID
// echoed in logs and response headers.
type Timing struct {
	Start     time.Time
	RequestID string
}

// ErrorDescriptor describes an unhandled error that the boundary
// converted into an HTTP error response.
type ErrorDescriptor struct {
	Kind       string
	Message    string
	Stacktrace string
}

// timingFrom reads the Timing attached to the request, if any.
func timingFrom(c *gin.Context) (*Timing, bool) {
	v, ok := c.Get(timingKey)
	if !ok {
		return nil, false
	}
	t, ok := v.(*Timing)
	return t, ok && t != nil
}

// setError records the error descriptor for the completion stage.
func setError(c *gin.Context, desc ErrorDescriptor) {
	c.Set(errorKey, desc)
}

// ErrorFrom reads the recorded error descriptor, falling back to gin's
// collected errors when a handler aborted with c.Error.
func ErrorFrom(c *gin.Context) (ErrorDescriptor, bool) {
	if v, ok := c.Get(errorKey); ok {
		if desc, ok := v.(ErrorDescriptor); ok {
			return desc, true
		}
	}
	if last := c.Errors.Last(); last != nil {
		return ErrorDescriptor{
			Kind:    "error",
			Message: last.Error(),
		}, true
	}
	return ErrorDescriptor{}, false
}

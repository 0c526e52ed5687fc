package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mkarlsen/depot/internal/logger"
)

// Lifecycle returns the request-lifecycle instrumentation middleware.
// It attaches a Timing to every request on arrival and emits exactly
// one completion record per request through the structured logger:
//
//   - status < 500: record with status, elapsed time, and size; no
//     error fields.
//   - status >= 500 via an unhandled error: the same record plus the
//     error descriptor left by the recovery boundary. Logged at info
//     severity; the record documents that an error was handled, not
//     that the system failed.
//
// The two paths are mutually exclusive. The middleware never touches
// the response status, headers written by handlers, or the body.
// Parameters:
//   - log: base logger to enrich with request fields.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func Lifecycle(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.GetDefault()
	}
	return func(c *gin.Context) {
		// Arrival: one Timing per request, created before any handler
		// runs and never reattached.
		t := &Timing{Start: time.Now(), RequestID: uuid.New().String()}
		c.Set(timingKey, t)

		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		reqLog := log.WithFields(logger.Fields{
			logger.FieldRequestID: t.RequestID,
			logger.FieldComponent: "api",
		})
		ctx := reqLog.WithContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", t.RequestID)

		c.Next()

		status := c.Writer.Status()

		var elapsed int64
		if tm, ok := timingFrom(c); ok {
			elapsed = time.Since(tm.Start).Milliseconds()
		} else {
			// A request that short-circuited before arrival state was
			// attached still gets its completion record, with zero
			// elapsed and a diagnostic.
			logger.CtxWarn(ctx, "request timing missing, reporting zero elapsed: method=%s path=%s",
				c.Request.Method, path)
		}

		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}

		fields := logger.Fields{
			logger.FieldHTTPStatus:    status,
			logger.FieldRequestTimeMs: elapsed,
			logger.FieldSize:          c.Writer.Size(),
		}

		// Exactly one record per request. The error branch fires only
		// when the boundary converted an unhandled error into a 5xx
		// response; handled application errors (status < 500) always
		// take the plain branch.
		desc, hasErr := ErrorFrom(c)
		if hasErr && status >= http.StatusInternalServerError {
			logger.With(fields).With(logger.Fields{
				logger.FieldErrorKind:    desc.Kind,
				logger.FieldErrorMessage: desc.Message,
				logger.FieldStacktrace:   desc.Stacktrace,
			}).Info(ctx, "request failed: method=%s, path=%s", c.Request.Method, fullPath)
		} else {
			logger.With(fields).Info(ctx, "request completed: method=%s, path=%s", c.Request.Method, fullPath)
		}
	}
}

// RequestID extracts the request ID assigned by Lifecycle, or "" when
// the middleware is not installed.
func RequestID(c *gin.Context) string {
	if t, ok := timingFrom(c); ok {
		return t.RequestID
	}
	return ""
}

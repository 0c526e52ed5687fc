// Package fatal captures errors that escape all request-scoped
// handling. A captured panic is logged once at error severity and
// optionally forwarded to the error tracker; the process keeps running.
//
// The handler is constructed explicitly and holds its logger, rather
// than hooking ambient process state. Request correlation is not
// captured for process-wide fatals; the capture has no way to know
// which request, if any, was responsible.
package fatal

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/mkarlsen/depot/internal/logger"
	"github.com/mkarlsen/depot/internal/reporting"
)

// Handler captures panics from background goroutines and synchronous
// scopes outside any request.
type Handler struct {
	log      *logger.Logger
	reporter *reporting.Reporter
}

// NewHandler creates a Handler bound to the given logger and optional
// reporter (nil disables forwarding).
func NewHandler(log *logger.Logger, reporter *reporting.Reporter) *Handler {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Handler{log: log, reporter: reporter}
}

// Go runs fn on a new goroutine. A panic in fn is captured, logged, and
// swallowed; the process continues serving.
func (h *Handler) Go(fn func()) {
	go func() {
		defer h.Capture()
		fn()
	}()
}

// Capture recovers a panic in the calling goroutine. Use deferred in
// synchronous scopes that run outside any request:
//
//	defer handler.Capture()
func (h *Handler) Capture() {
	if v := recover(); v != nil {
		h.handle(v, debug.Stack())
	}
}

// handle emits exactly one error-severity log entry for the fatal and
// forwards it to the reporter when one is configured.
func (h *Handler) handle(v interface{}, stack []byte) {
	kind := fmt.Sprintf("%T", v)
	message := panicMessage(v)

	h.log.WithFields(logger.Fields{
		logger.FieldErrorKind:    kind,
		logger.FieldErrorMessage: message,
		logger.FieldStacktrace:   string(stack),
	}).Errorf("fatal error captured outside request scope")

	h.reporter.Notify(context.Background(), kind, message, string(stack))
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

// Package reporting forwards otherwise-unhandled errors to an external
// error-tracking service. The integration is conditional: an empty DSN
// yields a nil Reporter, and all methods are nil-safe no-ops so callers
// never need to branch.
package reporting

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mkarlsen/depot/internal/config"
	"github.com/mkarlsen/depot/internal/logger"
)

// Event is the payload delivered to the tracking service for one
// captured error.
type Event struct {
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	Stacktrace  string    `json:"stacktrace"`
	Severity    string    `json:"severity"`
	Environment string    `json:"environment"`
	Timestamp   time.Time `json:"timestamp"`
}

// Reporter delivers error events to the configured DSN.
type Reporter struct {
	client  *resty.Client
	dsn     string
	env     string
	timeout time.Duration
	log     *logger.Logger
}

// New creates a Reporter from configuration. Returns nil when no DSN is
// configured; the nil Reporter disables forwarding.
func New(cfg *config.ReportingConfig, log *logger.Logger) *Reporter {
	if cfg == nil || cfg.DSN == "" {
		return nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	return &Reporter{
		client:  client,
		dsn:     cfg.DSN,
		env:     cfg.Environment,
		timeout: timeout,
		log:     log,
	}
}

// Enabled reports whether events will actually be delivered.
func (r *Reporter) Enabled() bool {
	return r != nil && r.dsn != ""
}

// Notify delivers one error event. Delivery is fire-and-forget on a
// separate goroutine; a delivery failure is logged and never propagates
// to the caller.
func (r *Reporter) Notify(ctx context.Context, kind, message, stacktrace string) {
	if !r.Enabled() {
		return
	}

	event := Event{
		Kind:        kind,
		Message:     message,
		Stacktrace:  stacktrace,
		Severity:    "error",
		Environment: r.env,
		Timestamp:   time.Now().UTC(),
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		resp, err := r.client.R().
			SetContext(sendCtx).
			SetBody(event).
			Post(r.dsn)
		if err != nil {
			r.logWarn("error report delivery failed: %v", err)
			return
		}
		if resp.IsError() {
			r.logWarn("error report rejected: status=%d", resp.StatusCode())
		}
	}()
}

func (r *Reporter) logWarn(format string, args ...interface{}) {
	if r.log != nil {
		r.log.Warnf(format, args...)
		return
	}
	logger.Warn(format, args...)
}

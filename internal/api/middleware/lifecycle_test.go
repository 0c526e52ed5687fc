package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mkarlsen/depot/internal/logger"
)

// safeBuffer guards concurrent reads against logrus writes.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestEngine(t *testing.T) (*gin.Engine, *safeBuffer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	buf := &safeBuffer{}
	log := logger.New(&logger.Config{
		Level:       "debug",
		Format:      "json",
		Output:      buf,
		ServiceName: "test",
	})

	r := gin.New()
	r.Use(Lifecycle(log))
	r.Use(Recovery(nil))
	return r, buf
}

// completionRecords parses the log output and returns only the entries
// carrying an http_status field.
func completionRecords(t *testing.T, buf *safeBuffer) []map[string]interface{} {
	t.Helper()

	var records []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse log line %q: %v", line, err)
		}
		if _, ok := entry[logger.FieldHTTPStatus]; ok {
			records = append(records, entry)
		}
	}
	return records
}

func doRequest(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestLifecycleSuccess(t *testing.T) {
	r, buf := newTestEngine(t)
	r.GET("/ok", func(c *gin.Context) {
		time.Sleep(20 * time.Millisecond)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := doRequest(r, http.MethodGet, "/ok")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	records := completionRecords(t, buf)
	if len(records) != 1 {
		t.Fatalf("expected exactly one completion record, got %d", len(records))
	}

	rec := records[0]
	if got := rec[logger.FieldHTTPStatus].(float64); got != 200 {
		t.Errorf("expected http_status 200, got %v", got)
	}
	if elapsed := rec[logger.FieldRequestTimeMs].(float64); elapsed < 20 {
		t.Errorf("expected request_time_ms >= 20, got %v", elapsed)
	}
	if _, ok := rec[logger.FieldErrorKind]; ok {
		t.Error("expected no error descriptor on success path")
	}
	if rec["level"] != "info" {
		t.Errorf("expected info severity, got %v", rec["level"])
	}
	if id, _ := rec[logger.FieldRequestID].(string); id == "" {
		t.Error("expected request_id field")
	}
}

func TestLifecycleHandledErrorBelow500(t *testing.T) {
	r, buf := newTestEngine(t)
	r.GET("/missing", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	w := doRequest(r, http.MethodGet, "/missing")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}

	records := completionRecords(t, buf)
	if len(records) != 1 {
		t.Fatalf("expected exactly one completion record, got %d", len(records))
	}
	rec := records[0]
	if got := rec[logger.FieldHTTPStatus].(float64); got != 404 {
		t.Errorf("expected http_status 404, got %v", got)
	}
	if _, ok := rec[logger.FieldErrorKind]; ok {
		t.Error("404 is a handled application error; no error descriptor expected")
	}
}

func TestLifecycleUnhandledError(t *testing.T) {
	r, buf := newTestEngine(t)
	r.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := doRequest(r, http.MethodGet, "/boom")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "internal server error") {
		t.Errorf("expected error response body, got %q", w.Body.String())
	}

	records := completionRecords(t, buf)
	if len(records) != 1 {
		t.Fatalf("expected exactly one completion record, got %d", len(records))
	}

	rec := records[0]
	if got := rec[logger.FieldHTTPStatus].(float64); got != 500 {
		t.Errorf("expected http_status 500, got %v", got)
	}
	if kind, _ := rec[logger.FieldErrorKind].(string); kind != "string" {
		t.Errorf("expected error_kind %q, got %q", "string", kind)
	}
	if msg, _ := rec[logger.FieldErrorMessage].(string); msg != "boom" {
		t.Errorf("expected error_message %q, got %q", "boom", msg)
	}
	stack, _ := rec[logger.FieldStacktrace].(string)
	if !strings.Contains(stack, "goroutine") {
		t.Errorf("expected stacktrace to be captured, got %q", stack)
	}
	// Error completion records stay at info severity: the record says
	// the error was handled, not that the system failed.
	if rec["level"] != "info" {
		t.Errorf("expected info severity, got %v", rec["level"])
	}
}

func TestLifecycleEmissionPathsMutuallyExclusive(t *testing.T) {
	r, buf := newTestEngine(t)
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	doRequest(r, http.MethodGet, "/ok")
	doRequest(r, http.MethodGet, "/boom")
	doRequest(r, http.MethodGet, "/missing")

	records := completionRecords(t, buf)
	if len(records) != 3 {
		t.Fatalf("expected one record per request (3), got %d", len(records))
	}

	withError := 0
	for _, rec := range records {
		if elapsed := rec[logger.FieldRequestTimeMs].(float64); elapsed < 0 {
			t.Errorf("elapsed time must be non-negative, got %v", elapsed)
		}
		if _, ok := rec[logger.FieldErrorKind]; ok {
			withError++
			if status := rec[logger.FieldHTTPStatus].(float64); status < 500 {
				t.Errorf("error descriptor on status %v record", status)
			}
		}
	}
	if withError != 1 {
		t.Errorf("expected exactly one error-path record, got %d", withError)
	}
}

func TestLifecycleMissingTimingGuard(t *testing.T) {
	r, buf := newTestEngine(t)
	r.GET("/clobber", func(c *gin.Context) {
		// Simulate a request whose arrival state was never attached.
		c.Set(timingKey, "bogus")
		c.Status(http.StatusOK)
	})

	w := doRequest(r, http.MethodGet, "/clobber")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	records := completionRecords(t, buf)
	if len(records) != 1 {
		t.Fatalf("expected exactly one completion record, got %d", len(records))
	}
	if elapsed := records[0][logger.FieldRequestTimeMs].(float64); elapsed != 0 {
		t.Errorf("expected zero elapsed with missing timing, got %v", elapsed)
	}
	if !strings.Contains(buf.String(), "request timing missing") {
		t.Error("expected a diagnostic for the missing timing")
	}
}

func TestLifecycleConcurrentRequestsIndependentTimers(t *testing.T) {
	r, buf := newTestEngine(t)
	r.GET("/slow", func(c *gin.Context) {
		time.Sleep(60 * time.Millisecond)
		c.Status(http.StatusOK)
	})
	r.GET("/fast", func(c *gin.Context) {
		time.Sleep(5 * time.Millisecond)
		c.Status(http.StatusOK)
	})

	var wg sync.WaitGroup
	for _, path := range []string{"/slow", "/fast"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			doRequest(r, http.MethodGet, p)
		}(path)
	}
	wg.Wait()

	records := completionRecords(t, buf)
	if len(records) != 2 {
		t.Fatalf("expected 2 completion records, got %d", len(records))
	}

	ids := make(map[string]bool)
	for _, rec := range records {
		id, _ := rec[logger.FieldRequestID].(string)
		if id == "" {
			t.Error("expected request_id on every record")
		}
		ids[id] = true

		msg, _ := rec["message"].(string)
		elapsed := rec[logger.FieldRequestTimeMs].(float64)
		switch {
		case strings.Contains(msg, "/slow"):
			if elapsed < 60 {
				t.Errorf("slow request elapsed %v, want >= 60 (timer cross-contamination?)", elapsed)
			}
		case strings.Contains(msg, "/fast"):
			if elapsed < 5 || elapsed >= 60 {
				t.Errorf("fast request elapsed %v, want in [5, 60)", elapsed)
			}
		default:
			t.Errorf("unexpected completion record message %q", msg)
		}
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 distinct request IDs, got %d", len(ids))
	}
}

func TestLifecycleDoesNotMutateResponse(t *testing.T) {
	r, buf := newTestEngine(t)
	r.GET("/body", func(c *gin.Context) {
		c.Header("X-Custom", "kept")
		c.String(http.StatusTeapot, "teapot body")
	})

	w := doRequest(r, http.MethodGet, "/body")
	if w.Code != http.StatusTeapot {
		t.Errorf("status changed: got %d", w.Code)
	}
	if w.Body.String() != "teapot body" {
		t.Errorf("body changed: got %q", w.Body.String())
	}
	if w.Header().Get("X-Custom") != "kept" {
		t.Error("handler header dropped")
	}
	if got := len(completionRecords(t, buf)); got != 1 {
		t.Fatalf("expected one completion record, got %d", got)
	}
}

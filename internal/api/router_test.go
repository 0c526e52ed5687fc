package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mkarlsen/depot/internal/config"
	"github.com/mkarlsen/depot/internal/repository"
	"github.com/mkarlsen/depot/internal/service"
	"github.com/mkarlsen/depot/internal/storage"
)

func newTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()

	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         ":memory:",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}

	artifactRepo := repository.NewArtifactRepository(db)
	deltaRepo := repository.NewDeltaRepository(db)
	store := storage.NewMemoryStore()

	return SetupRouter(Deps{
		Config:    cfg,
		Log:       nil,
		Reporter:  nil,
		Artifacts: service.NewArtifactService(artifactRepo, deltaRepo, store, nil),
		Deltas:    service.NewDeltaService(deltaRepo, artifactRepo, store, nil),
	})
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Mode: "test",
			CORS: config.CORSConfig{AllowAllOrigins: true},
			Admin: config.AdminConfig{
				Username: "admin",
				Password: "secret",
			},
		},
	}
}

func multipartBody(t *testing.T, fields map[string]string, fileContent []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := w.CreateFormFile("file", "payload.bin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(fileContent); err != nil {
		t.Fatal(err)
	}
	w.Close()
	return buf, w.FormDataContentType()
}

func publishVersion(t *testing.T, r *gin.Engine, name, version string, content []byte) {
	t.Helper()
	body, contentType := multipartBody(t, map[string]string{"version": version}, content)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/artifacts/"+name+"/versions", body)
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth("admin", "secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("publish %s@%s: status %d body %s", name, version, w.Code, w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t, testConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	r := newTestRouter(t, testConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs/openapi.json", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON document: %v", err)
	}
	if doc["openapi"] != "3.0.3" {
		t.Errorf("unexpected openapi version %v", doc["openapi"])
	}
}

func TestAdminRequiresBasicAuth(t *testing.T) {
	r := newTestRouter(t, testConfig())

	body, contentType := multipartBody(t, map[string]string{"version": "1.0.0"}, []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/artifacts/tool/versions", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without credentials, got %d", w.Code)
	}
}

func TestAdminGroupAbsentWithoutCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Admin = config.AdminConfig{}
	r := newTestRouter(t, cfg)

	body, contentType := multipartBody(t, map[string]string{"version": "1.0.0"}, []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/artifacts/tool/versions", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected admin routes unmounted (404), got %d", w.Code)
	}
}

func TestPublishAndDownloadBlob(t *testing.T) {
	r := newTestRouter(t, testConfig())
	content := []byte("artifact payload for download")

	publishVersion(t, r, "tool", "1.0.0", content)

	sum := sha256.Sum256(content)
	checksum := hex.EncodeToString(sum[:])

	// Metadata
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/tool", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("artifact get: %d", w.Code)
	}

	// HEAD
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/api/v1/blobs/"+checksum, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("blob head: %d", w.Code)
	}

	// GET
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/blobs/"+checksum, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("blob get: %d", w.Code)
	}
	got, _ := io.ReadAll(w.Body)
	if !bytes.Equal(got, content) {
		t.Errorf("downloaded blob differs from uploaded content")
	}
}

func TestDeltaLookupFallback(t *testing.T) {
	r := newTestRouter(t, testConfig())

	v2 := []byte("v2 payload")
	publishVersion(t, r, "tool", "1.0.0", []byte("v1 payload"))
	publishVersion(t, r, "tool", "1.1.0", v2)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deltas/tool/1.0.0/1.1.0", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with fallback hint, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(v2)
	wantFallback := "/api/v1/blobs/" + hex.EncodeToString(sum[:])
	if body["fallback"] != wantFallback {
		t.Errorf("fallback = %v, want %q", body["fallback"], wantFallback)
	}
}

func TestDeltaRegisterAndFetch(t *testing.T) {
	r := newTestRouter(t, testConfig())

	publishVersion(t, r, "tool", "1.0.0", []byte("v1"))
	publishVersion(t, r, "tool", "1.1.0", []byte("v2"))

	payload := []byte("delta payload")
	body, contentType := multipartBody(t, nil, payload)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/deltas/tool/1.0.0/1.1.0", body)
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth("admin", "secret")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("delta register: %d body %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deltas/tool/1.0.0/1.1.0", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("delta lookup: %d", w.Code)
	}

	var delta map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &delta); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(payload)
	if delta["checksum"] != hex.EncodeToString(sum[:]) {
		t.Errorf("delta checksum = %v", delta["checksum"])
	}
}

func TestDeleteVersion(t *testing.T) {
	r := newTestRouter(t, testConfig())

	publishVersion(t, r, "tool", "1.0.0", []byte("doomed"))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/artifacts/tool/versions/1.0.0", nil)
	req.SetBasicAuth("admin", "secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/tool/versions/1.0.0", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected deleted version to 404, got %d", w.Code)
	}
}

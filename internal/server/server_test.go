package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"vehicle-registry/internal/api"
	"vehicle-registry/internal/auth"
	"vehicle-registry/internal/media"
	"vehicle-registry/internal/storage"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	admin, err := auth.NewPrincipal("admin@example.com", "s3cret")
	if err != nil {
		t.Fatalf("NewPrincipal: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager, err := media.NewManager(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	tokens := auth.NewTokenService([]byte("test-secret"), time.Hour)
	handler := api.NewHandler(storage.NewMemoryStore(), tokens, admin, manager, logger)
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func login(t *testing.T, handler http.Handler) string {
	t.Helper()
	form := url.Values{"username": {"admin@example.com"}, "password": {"s3cret"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var response map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return response["access_token"]
}

func TestServerServesVehicleAndMediaRoutes(t *testing.T) {
	srv := newTestServer(t, Config{})
	handler := srv.Handler()
	token := login(t, handler)

	var buf strings.Builder
	writer := multipart.NewWriter(&buf)
	for key, value := range map[string]string{
		"reg": "KA01AB1234", "brand": "Honda", "model": "City",
		"year": "2020", "price": "850000", "kms": "42000",
		"fuel": "petrol", "transmission": "manual",
		"owner": "first", "description": "clean",
	} {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	part, err := writer.CreateFormFile("images", "front.jpg")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("jpeg-bytes")); err != nil {
		t.Fatalf("write image: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/cars", strings.NewReader(buf.String()))
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Images []string `json:"images"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode vehicle: %v", err)
	}
	if len(created.Images) != 1 {
		t.Fatalf("expected 1 image URL, got %d", len(created.Images))
	}

	// The uploaded file is served back through the static media route.
	req = httptest.NewRequest(http.MethodGet, created.Images[0], nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("media fetch: expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "jpeg-bytes" {
		t.Fatalf("unexpected media body %q", rec.Body.String())
	}
}

func TestServerAppliesSecurityHeadersAndRequestID(t *testing.T) {
	srv := newTestServer(t, Config{})
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff, got %q", got)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-1234")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "req-1234" {
		t.Fatalf("expected echoed request ID, got %q", got)
	}
}

func TestServerThrottlesLoginAttempts(t *testing.T) {
	srv := newTestServer(t, Config{
		RateLimit: RateLimitConfig{LoginLimit: 2, LoginWindow: time.Minute},
	})
	handler := srv.Handler()

	form := url.Values{"username": {"admin@example.com"}, "password": {"wrong"}}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "198.51.100.7:1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected status 401, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "198.51.100.7:1000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}

	// A different client IP gets its own bucket.
	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "203.0.113.9:1000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for fresh IP, got %d", rec.Code)
	}
}

func TestServerBlocksUnknownCORSOrigin(t *testing.T) {
	srv := newTestServer(t, Config{
		CORS: CORSConfig{AllowedOrigins: []string{"https://admin.example.com"}},
	})
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/cars", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/cars", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestServerRootAndUnknownPath(t *testing.T) {
	srv := newTestServer(t, Config{})
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Vehicle Registry") {
		t.Fatalf("unexpected root body: %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

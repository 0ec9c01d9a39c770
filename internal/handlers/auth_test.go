package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alertsync/alertsync/internal/middleware"
)

func setupAuthMux(t *testing.T) (*http.ServeMux, *middleware.JWTAuthMiddleware) {
	hash, err := middleware.HashPassword("secret-password")
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	jwtAuth := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-jwt-secret",
		JWTExpiryHours:    24,
	})

	mux := http.NewServeMux()
	NewAuthHandler(jwtAuth, 24).SetupRoutes(mux)
	return mux, jwtAuth
}

func TestLogin(t *testing.T) {
	mux, jwtAuth := setupAuthMux(t)

	body := strings.NewReader(`{"username":"admin","password":"secret-password"}`)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("POST", "/auth/login", body))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Token == "" || resp.Username != "admin" || resp.ExpiresIn != 24*60*60 {
		t.Errorf("Unexpected login response: %+v", resp)
	}

	claims, err := jwtAuth.ValidateToken(resp.Token)
	if err != nil || claims.Username != "admin" {
		t.Errorf("Expected issued token to validate, got %v / %v", claims, err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	mux, _ := setupAuthMux(t)

	body := strings.NewReader(`{"username":"admin","password":"wrong"}`)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("POST", "/auth/login", body))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	mux, _ := setupAuthMux(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("POST", "/auth/login", strings.NewReader(`{"username":"admin"}`)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestVerifyWithoutUser(t *testing.T) {
	mux, _ := setupAuthMux(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/auth/verify", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

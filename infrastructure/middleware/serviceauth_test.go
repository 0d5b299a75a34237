package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func generateTestKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key pair: %v", err)
	}
	return privateKey, &privateKey.PublicKey
}

// =============================================================================
// ServiceTokenGenerator Tests
// =============================================================================

func TestServiceTokenGenerator_GenerateToken(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	generator := NewServiceTokenGenerator(privateKey, "gateway", time.Hour)

	tokenString, err := generator.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(token *jwt.Token) (interface{}, error) {
		return publicKey, nil
	})
	if err != nil {
		t.Fatalf("Failed to parse token: %v", err)
	}

	claims, ok := token.Claims.(*ServiceClaims)
	if !ok {
		t.Fatal("Invalid claims type")
	}

	if claims.ServiceID != "gateway" {
		t.Errorf("Expected service_id 'gateway', got '%s'", claims.ServiceID)
	}
}

func TestServiceTokenGenerator_DefaultExpiry(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	generator := NewServiceTokenGenerator(privateKey, "gateway", 0)

	tokenString, err := generator.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(token *jwt.Token) (interface{}, error) {
		return publicKey, nil
	})
	if err != nil {
		t.Fatalf("Failed to parse token: %v", err)
	}

	claims, ok := token.Claims.(*ServiceClaims)
	if !ok {
		t.Fatal("Invalid claims type")
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		t.Fatalf("expected issued_at and expires_at to be set")
	}
	if got := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time); got != DefaultServiceTokenExpiry {
		t.Errorf("Expected default expiry %v, got %v", DefaultServiceTokenExpiry, got)
	}
}

// =============================================================================
// Helper Function Tests
// =============================================================================

func TestIsValidUserID(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		expected bool
	}{
		{"valid UUID", "550e8400-e29b-41d4-a716-446655440000", true},
		{"valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", true},
		{"valid UUID uppercase", "550E8400-E29B-41D4-A716-446655440000", true},
		{"invalid - too short", "550e8400-e29b-41d4-a716", false},
		{"invalid - too long", "550e8400-e29b-41d4-a716-4466554400001", false},
		{"invalid - no dashes", "550e8400e29b41d4a716446655440000", false},
		{"invalid - wrong format", "550e8400-e29b-41d4-a716446655440000", false},
		{"invalid - non-hex chars", "550e8400-e29b-41d4-a716-44665544000g", false},
		{"empty string", "", false},
		{"random string", "not-a-uuid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isValidUserID(tt.userID)
			if result != tt.expected {
				t.Errorf("isValidUserID(%q) = %v, want %v", tt.userID, result, tt.expected)
			}
		})
	}
}

func TestGetServiceID(t *testing.T) {
	ctx := context.Background()

	if id := GetServiceID(ctx); id != "" {
		t.Errorf("Expected empty string, got '%s'", id)
	}

	ctx = WithServiceID(ctx, "gateway")
	if id := GetServiceID(ctx); id != "gateway" {
		t.Errorf("Expected 'gateway', got '%s'", id)
	}
}

func TestGetUserIDFromContext(t *testing.T) {
	ctx := context.Background()

	if id := GetUserIDFromContext(ctx); id != "" {
		t.Errorf("Expected empty string, got '%s'", id)
	}

	ctx = WithUserID(ctx, "user-123")
	if id := GetUserIDFromContext(ctx); id != "user-123" {
		t.Errorf("Expected 'user-123', got '%s'", id)
	}
}

// =============================================================================
// RequireServiceAuth Middleware Tests
// =============================================================================

func TestRequireServiceAuth_WithServiceID(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/test", nil)
	ctx := WithServiceID(req.Context(), "gateway")
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	called := false
	handler := RequireServiceAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(rr, req)

	if !called {
		t.Error("Handler should be called")
	}
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
}

func TestRequireServiceAuth_WithoutServiceID(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/test", nil)
	rr := httptest.NewRecorder()

	handler := RequireServiceAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
}

// =============================================================================
// RequireUserIDHeader Middleware Tests
// =============================================================================

func TestRequireUserIDHeader_Valid(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/test", nil)
	req.Header.Set(UserIDHeader, "550e8400-e29b-41d4-a716-446655440000")

	rr := httptest.NewRecorder()
	called := false
	handler := RequireUserIDHeader(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(rr, req)

	if !called {
		t.Error("Handler should be called")
	}
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
}

func TestRequireUserIDHeader_Missing(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/test", nil)
	rr := httptest.NewRecorder()

	handler := RequireUserIDHeader(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
}

func TestRequireUserIDHeader_Invalid(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/test", nil)
	req.Header.Set(UserIDHeader, "invalid")

	rr := httptest.NewRecorder()
	handler := RequireUserIDHeader(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

// =============================================================================
// Constants Tests
// =============================================================================

func TestConstants(t *testing.T) {
	if ServiceTokenHeader != "X-Service-Token" {
		t.Errorf("ServiceTokenHeader = %s, want X-Service-Token", ServiceTokenHeader)
	}
	if ServiceIDHeader != "X-Service-ID" {
		t.Errorf("ServiceIDHeader = %s, want X-Service-ID", ServiceIDHeader)
	}
	if UserIDHeader != "X-User-ID" {
		t.Errorf("UserIDHeader = %s, want X-User-ID", UserIDHeader)
	}
	if DefaultServiceTokenExpiry != time.Hour {
		t.Errorf("DefaultServiceTokenExpiry = %v, want 1h", DefaultServiceTokenExpiry)
	}
}

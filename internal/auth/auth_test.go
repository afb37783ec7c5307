package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nikhilbhutani/whisperapi/internal/config"
)

const testSecret = "jwt-test-secret"

func signToken(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(PrincipalID(r.Context())))
	})
}

func TestAuthenticate(t *testing.T) {
	a := NewAuthenticator(config.AuthConfig{
		APIKeys:      []string{"sk-alpha", "sk-beta"},
		APIKeyHeader: "X-API-Key",
		JWTSecret:    testSecret,
	})
	h := a.Authenticate(echoPrincipal())

	valid := signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}, testSecret)
	expired := signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}}, testSecret)
	wrongKey := signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-7"}}, "other")
	noSubject := signToken(t, Claims{}, testSecret)
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x"}}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantID     string
	}{
		{"api key header", "X-API-Key", "sk-alpha", http.StatusOK, "key:" + HashAPIKey("sk-alpha")[:12]},
		{"api key as bearer", "Authorization", "Bearer sk-beta", http.StatusOK, "key:" + HashAPIKey("sk-beta")[:12]},
		{"jwt", "Authorization", "Bearer " + valid, http.StatusOK, "jwt:user-7"},
		{"wrong api key", "X-API-Key", "sk-gamma", http.StatusUnauthorized, ""},
		{"no credentials", "", "", http.StatusUnauthorized, ""},
		{"expired jwt", "Authorization", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"jwt signed with other secret", "Authorization", "Bearer " + wrongKey, http.StatusUnauthorized, ""},
		{"jwt without subject", "Authorization", "Bearer " + noSubject, http.StatusUnauthorized, ""},
		{"unsigned jwt", "Authorization", "Bearer " + unsigned, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/audio/transcriptions", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK && rec.Body.String() != tt.wantID {
				t.Errorf("expected principal %q, got %q", tt.wantID, rec.Body.String())
			}
		})
	}
}

func TestAuthenticate_DisabledIsOpen(t *testing.T) {
	a := NewAuthenticator(config.AuthConfig{})
	if a.Enabled() {
		t.Fatal("expected authentication to be disabled")
	}

	rec := httptest.NewRecorder()
	a.Authenticate(echoPrincipal()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Errorf("unexpected response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequireScope(t *testing.T) {
	a := NewAuthenticator(config.AuthConfig{JWTSecret: testSecret})
	h := a.Authenticate(RequireScope(ScopeAdmin)(echoPrincipal()))

	tests := []struct {
		name       string
		claims     Claims
		wantStatus int
	}{
		{"admin role", Claims{Role: "admin"}, http.StatusOK},
		{"admin scope", Claims{Scope: "transcribe admin"}, http.StatusOK},
		{"default scopes", Claims{}, http.StatusForbidden},
		{"transcribe only", Claims{Scope: "transcribe"}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.claims.Subject = "u1"
			req := httptest.NewRequest(http.MethodGet, "/v1/admin/usage", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, tt.claims, testSecret))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestAPIKeys_Lookup(t *testing.T) {
	keys := NewAPIKeys([]string{"a", "", "b"})
	if keys.Len() != 2 {
		t.Errorf("expected 2 keys, got %d", keys.Len())
	}
	if _, ok := keys.Lookup(""); ok {
		t.Error("empty key must not match")
	}
	if _, ok := keys.Lookup("b"); !ok {
		t.Error("expected b to match")
	}
}

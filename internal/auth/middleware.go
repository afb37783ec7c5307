// Package auth authenticates API callers by static API key or HMAC-signed JWT.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nikhilbhutani/whisperapi/internal/config"
)

type Claims struct {
	Scope string `json:"scope,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	ID     string
	Scopes []string
}

// Anonymous is used when authentication is disabled.
var Anonymous = &Principal{ID: "anonymous", Scopes: []string{ScopeAll}}

type Authenticator struct {
	keys      *APIKeys
	header    string
	jwtSecret []byte
}

func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}
	return &Authenticator{
		keys:      NewAPIKeys(cfg.APIKeys),
		header:    header,
		jwtSecret: []byte(cfg.JWTSecret),
	}
}

// Enabled reports whether any credential is configured. Without one the API is open.
func (a *Authenticator) Enabled() bool {
	return a.keys.Len() > 0 || len(a.jwtSecret) > 0
}

func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), Anonymous)))
			return
		}

		p, err := a.principal(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="whisperapi"`)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (a *Authenticator) principal(r *http.Request) (*Principal, error) {
	bearer := extractBearerToken(r)

	if key := r.Header.Get(a.header); key != "" {
		if id, ok := a.keys.Lookup(key); ok {
			return &Principal{ID: id, Scopes: []string{ScopeAll}}, nil
		}
		return nil, fmt.Errorf("invalid API key")
	}
	if bearer == "" {
		return nil, fmt.Errorf("missing credentials")
	}
	if id, ok := a.keys.Lookup(bearer); ok {
		return &Principal{ID: id, Scopes: []string{ScopeAll}}, nil
	}
	if len(a.jwtSecret) == 0 {
		return nil, fmt.Errorf("invalid API key")
	}
	return a.parseToken(bearer)
}

func (a *Authenticator) parseToken(tokenStr string) (*Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return &Principal{ID: "jwt:" + claims.Subject, Scopes: claims.scopes()}, nil
}

type ctxKey string

const principalKey ctxKey = "principal"

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// PrincipalID returns the caller id, or "" for unauthenticated contexts.
func PrincipalID(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.ID
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

package auth

import (
	"net/http"
	"slices"
	"strings"
)

const (
	ScopeTranscribe = "transcribe"
	ScopeJobs       = "jobs"
	ScopeAdmin      = "admin"
	ScopeAll        = "*"
)

// scopes reads the space-separated scope claim. An admin role grants everything;
// a token without scopes may transcribe and use jobs.
func (c *Claims) scopes() []string {
	if c.Role == "admin" {
		return []string{ScopeAll}
	}
	s := strings.Fields(c.Scope)
	if len(s) == 0 {
		return []string{ScopeTranscribe, ScopeJobs}
	}
	return s
}

func (p *Principal) Has(scope string) bool {
	return slices.Contains(p.Scopes, ScopeAll) || slices.Contains(p.Scopes, scope)
}

// RequireScope rejects callers whose principal lacks scope. It must run after Authenticate.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				writeError(w, http.StatusForbidden, "no principal in context")
				return
			}
			if !p.Has(scope) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

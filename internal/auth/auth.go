// Package auth extracts the calling Principal from identity-provider tokens.
// Token issuance belongs to the external identity provider; this package only
// verifies and never embeds an identity constant.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the authenticated actor invoking an engine entry point.
type Principal struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type principalKey struct{}

// FromContext returns the Principal stored by Middleware, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// WithPrincipal injects a principal into the context. Used by Middleware and
// by tests.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

type claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens minted by the identity provider.
type Verifier struct {
	secret  []byte
	devMode bool
}

// NewVerifier creates a Verifier. In dev mode requests without a token are
// granted an admin principal so local development works without the identity
// provider.
func NewVerifier(secret string, devMode bool) *Verifier {
	return &Verifier{secret: []byte(secret), devMode: devMode}
}

// Parse validates the token signature and extracts the Principal.
func (v *Verifier) Parse(tokenString string) (Principal, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid {
		return Principal{}, fmt.Errorf("invalid token")
	}
	return Principal{Subject: c.Subject, Email: c.Email, Roles: c.Roles}, nil
}

// Middleware authenticates the request and stores the Principal in the
// context. Requests without a valid token are rejected with 401.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			if v.devMode {
				ctx := WithPrincipal(r.Context(), Principal{Subject: "dev", Roles: []string{"admin"}})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		principal, err := v.Parse(tokenString)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequireRole guards a route group behind a role carried by the Principal.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok || !p.HasRole(role) {
				writeAuthError(w, http.StatusForbidden, "requires role "+role)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

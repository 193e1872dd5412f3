package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

// tenantKey is the context key for the authenticated tenant.
const tenantKey contextKey = "tenant"

// authTokenTTL is the lifetime of an API bearer token.
const authTokenTTL = 24 * time.Hour

// Tenant is the authenticated caller stored in the request context. The
// project is optional: requests without one operate at account level.
type Tenant struct {
	OwnerID   string
	ProjectID string
}

// TenantClaims holds the JWT claims for API authentication. The owner is
// the registered Subject; the project travels as a private claim.
type TenantClaims struct {
	ProjectID string `json:"project_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed bearer token for an owner, optionally
// pinned to one project.
func GenerateToken(secret []byte, ownerID, projectID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(authTokenTTL)

	claims := TenantClaims{
		ProjectID: projectID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "voiceops",
			Subject:   ownerID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// RequireAuth returns middleware that validates JWT bearer tokens and stores
// the resolved tenant in the request context. A project pinned in the token
// wins; otherwise the optional X-Project-ID header selects one per request.
func RequireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeAuthError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			claims := &TenantClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				slog.Debug("auth: invalid jwt", "error", err)
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if claims.Subject == "" {
				writeAuthError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			tenant := Tenant{OwnerID: claims.Subject, ProjectID: claims.ProjectID}
			if tenant.ProjectID == "" {
				tenant.ProjectID = strings.TrimSpace(r.Header.Get("X-Project-ID"))
			}

			ctx := context.WithValue(r.Context(), tenantKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext retrieves the authenticated tenant from the request
// context. The zero Tenant is returned when no auth middleware ran.
func TenantFromContext(ctx context.Context) Tenant {
	t, _ := ctx.Value(tenantKey).(Tenant)
	return t
}

// authEnvelope matches the api package's envelope format for error responses.
type authEnvelope struct {
	Error string `json:"error,omitempty"`
}

// writeAuthError writes a JSON error matching the API envelope format.
func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(authEnvelope{Error: msg}) //nolint:errcheck
}

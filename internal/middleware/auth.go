package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/courierchat/courier/internal/auth"
	"github.com/courierchat/courier/internal/cache"
	"github.com/courierchat/courier/internal/repository"
)

const (
	// minAuthDuration is the minimum time to spend on auth to prevent timing attacks.
	minAuthDuration = 200 * time.Millisecond
)

// SessionAuthConfig holds configuration for the session auth middleware.
type SessionAuthConfig struct {
	Logger     *slog.Logger
	Gate       *auth.Gate
	Repository *repository.Repository
	Cache      *cache.Cache
}

// SessionAuth returns a middleware that authenticates requests carrying a
// session token in the Authorization header. The token signature and
// expiry are checked first, then its credential fingerprint is compared
// against the account's current password hash — cache-first, falling back
// to the database — so a password change revokes outstanding tokens even
// though they are stateless.
func SessionAuth(cfg SessionAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			// Ensure consistent timing regardless of outcome
			defer func() {
				elapsed := time.Since(startTime)
				if elapsed < minAuthDuration {
					time.Sleep(minAuthDuration - elapsed)
				}
			}()

			raw := extractBearerToken(r)
			if raw == "" {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "missing_token"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			claims, err := cfg.Gate.Verify(raw)
			if err != nil {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "invalid_token"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			currentHash, cacheHit := lookupFingerprint(r, cfg, claims.Email)
			if currentHash == "" {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "unknown_account"),
					slog.String("email", claims.Email),
					slog.String("ip", r.RemoteAddr),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			if subtle.ConstantTimeCompare([]byte(claims.PasswordHash), []byte(currentHash)) != 1 {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "stale_credential"),
					slog.String("email", claims.Email),
					slog.String("ip", r.RemoteAddr),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			cfg.Logger.Info("authentication successful",
				slog.String("email", claims.Email),
				slog.String("ip", r.RemoteAddr),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.Bool("cache_hit", cacheHit),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			ctx := auth.ContextWithIdentity(r.Context(), &auth.Identity{Email: claims.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// lookupFingerprint returns the account's current password hash, reading
// the short-TTL cache before the database. An empty return means the
// account does not exist.
func lookupFingerprint(r *http.Request, cfg SessionAuthConfig, email string) (string, bool) {
	if cfg.Cache != nil {
		if fp, err := cfg.Cache.GetCredentialFingerprint(r.Context(), email); err == nil && fp != "" {
			return fp, true
		}
	}

	user, err := cfg.Repository.GetUserByEmail(r.Context(), email)
	if err != nil {
		return "", false
	}

	if cfg.Cache != nil {
		_ = cfg.Cache.SetCredentialFingerprint(r.Context(), email, user.PasswordHash)
	}

	return user.PasswordHash, false
}

// extractBearerToken extracts the session token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid or missing session token"}}`))
}

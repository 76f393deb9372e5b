package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

type contextKey string

const webhookCallIDKey contextKey = "webhook_call_id"

// webhookTokenTTL bounds how old a webhook signature may be. Providers sign
// each delivery at send time; anything older is a replay.
const webhookTokenTTL = 5 * time.Minute

// WebhookClaims holds the JWT claims carried by a signed telephony webhook.
type WebhookClaims struct {
	CallID string `json:"call_id,omitempty"`
	jwt.RegisteredClaims
}

// SignWebhook creates a signed webhook token for a delivery. Used by tests
// and by provider simulators.
func SignWebhook(secret []byte, callID string) (string, error) {
	now := time.Now()
	claims := WebhookClaims{
		CallID: callID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(webhookTokenTTL)),
			Issuer:    "telephony",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyWebhook returns middleware that validates the X-Voxbridge-Signature
// header on telephony webhook deliveries. With an empty secret, verification
// is disabled and every delivery is accepted.
func VerifyWebhook(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secret) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := r.Header.Get("X-Voxbridge-Signature")
			if tokenString == "" {
				writeMWError(w, http.StatusUnauthorized, "missing webhook signature")
				return
			}

			claims := &WebhookClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				slog.Debug("webhook auth: invalid signature", "error", err)
				writeMWError(w, http.StatusUnauthorized, "invalid webhook signature")
				return
			}

			ctx := context.WithValue(r.Context(), webhookCallIDKey, claims.CallID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WebhookCallIDFromContext retrieves the signed call id from the request
// context. Empty when verification is disabled or the claim was absent.
func WebhookCallIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(webhookCallIDKey).(string)
	return id
}

// RequireBearerAuth returns middleware that validates JWT bearer tokens on
// the admin API.
func RequireBearerAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeMWError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeMWError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			token, err := jwt.Parse(parts[1], func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				slog.Debug("admin auth: invalid jwt", "error", err)
				writeMWError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// errEnvelope matches the api package's envelope format for error responses.
type errEnvelope struct {
	Error string `json:"error,omitempty"`
}

// writeMWError writes a JSON error matching the API envelope format.
func writeMWError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errEnvelope{Error: msg}) //nolint:errcheck
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CodeUnauthorized is the business code sent along with HTTP 401.
const CodeUnauthorized = 401

// AccessClaims are carried by the mock service's access tokens. Epoch lets
// the service revoke every outstanding access token at once.
type AccessClaims struct {
	jwt.RegisteredClaims
	Epoch int64 `json:"epoch"`
}

type userKey string

const (
	userIDKey userKey = "user"
)

// SignAccessToken issues an HS256 access token for subject.
func SignAccessToken(secret, subject string, epoch int64, ttl time.Duration, now time.Time) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Epoch: epoch,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyAccessToken parses token and checks signature, expiry and epoch.
func VerifyAccessToken(secret, token string, epoch int64) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Epoch != epoch {
		return nil, errors.New("token revoked")
	}
	return claims, nil
}

// AuthJWT rejects calls without a valid bearer token with HTTP 401.
func AuthJWT(secret string, epoch func() int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteEnvelope(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization", nil)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				WriteEnvelope(w, http.StatusUnauthorized, CodeUnauthorized, "invalid authorization", nil)
				return
			}
			claims, err := VerifyAccessToken(secret, parts[1], epoch())
			if err != nil {
				WriteEnvelope(w, http.StatusUnauthorized, CodeUnauthorized, "token expired", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), claims.Subject)))
		})
	}
}

func UserFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithUser(ctx context.Context, user string) context.Context {
	if strings.TrimSpace(user) == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, user)
}

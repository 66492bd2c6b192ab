package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

type contextKey string

const claimsKey contextKey = "claims"

// DefaultTTL is how long a session token stays valid.
const DefaultTTL = 24 * time.Hour

// Claims is the portal session carried by the token.
type Claims struct {
	Username    string   `json:"username"`
	UserID      string   `json:"userId"`
	Access      string   `json:"access"`
	Permissions []string `json:"permissions"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Avatar      string   `json:"avatar"`
	IsActive    bool     `json:"is_active"`
	jwt.RegisteredClaims
}

// Can reports whether the session holds permission.
func (c *Claims) Can(permission string) bool {
	return set.NewStrings(c.Permissions...).Contains(permission)
}

// ErrorWriter answers a request rejected by the middleware.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

type JWTConfig struct {
	SecretKey string
	TTL       time.Duration
	Clock     clock.Clock
	OnError   ErrorWriter
}

func NewJWTConfig(secretKey string, ttl time.Duration, clk clock.Clock) *JWTConfig {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &JWTConfig{SecretKey: secretKey, TTL: ttl, Clock: clk}
}

// Issue signs a token for claims and returns it with its expiry.
func (c *JWTConfig) Issue(claims Claims) (string, time.Time, error) {
	now := c.Clock.Now()
	expires := now.Add(c.TTL)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// Parse verifies a token. Any failure is Unauthorized.
func (c *JWTConfig) Parse(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.Clock.Now),
		jwt.WithExpirationRequired(),
	)
	var claims Claims
	token, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(c.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.Unauthorizedf("invalid session token")
	}
	return &claims, nil
}

func (c *JWTConfig) fail(w http.ResponseWriter, r *http.Request, err error) {
	if c.OnError != nil {
		c.OnError(w, r, err)
		return
	}
	status := http.StatusUnauthorized
	if errors.Is(err, errors.Forbidden) {
		status = http.StatusForbidden
	}
	http.Error(w, err.Error(), status)
}

// Middleware requires a valid bearer token and stores its claims in the
// request context.
func (c *JWTConfig) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			// browsers cannot set headers on WebSocket upgrades
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			c.fail(w, r, errors.Unauthorizedf("missing session token"))
			return
		}

		claims, err := c.Parse(tokenString)
		if err != nil {
			c.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireActive rejects sessions of deactivated portal users.
func (c *JWTConfig) RequireActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok {
			c.fail(w, r, errors.Unauthorizedf("missing session"))
			return
		}
		if !claims.IsActive {
			c.fail(w, r, errors.Forbiddenf("portal user %q is inactive", claims.Username))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission rejects sessions lacking permission.
func (c *JWTConfig) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFrom(r.Context())
			if !ok || !claims.Can(permission) {
				c.fail(w, r, errors.Forbiddenf("permission %q required", permission))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// GetUserID returns the portal user id of the session, or "".
func GetUserID(ctx context.Context) string {
	if claims, ok := ClaimsFrom(ctx); ok {
		return claims.UserID
	}
	return ""
}

package middleware

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"overflow.app/questions/core/config"
	"overflow.app/questions/internal/model"
)

type contextKey string

const callerContextKey contextKey = "caller"

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Claims are the identity provider claims the API consumes.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// TokenVerifier checks bearer tokens issued by the identity provider.
type TokenVerifier struct {
	method    jwt.SigningMethod
	publicKey *rsa.PublicKey
	secret    []byte
	issuer    string
	audience  []string
}

func NewTokenVerifier(cfg config.AuthConfig) (*TokenVerifier, error) {
	v := &TokenVerifier{issuer: cfg.Issuer, audience: cfg.Audience}

	switch cfg.SigningMethod {
	case "RS256":
		if cfg.PublicKeyPEM == "" {
			return nil, errors.New("public key required for RS256")
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parsing public key: %w", err)
		}
		v.method = jwt.SigningMethodRS256
		v.publicKey = key
	case "HS256":
		if cfg.Secret == "" {
			return nil, errors.New("secret required for HS256")
		}
		v.method = jwt.SigningMethodHS256
		v.secret = []byte(cfg.Secret)
	default:
		return nil, fmt.Errorf("unsupported signing method: %s", cfg.SigningMethod)
	}

	return v, nil
}

// Verify parses a raw token into the caller it identifies.
func (v *TokenVerifier) Verify(raw string) (model.Caller, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		if v.publicKey != nil {
			return v.publicKey, nil
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return model.Caller{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return model.Caller{}, ErrInvalidToken
	}

	if claims.Subject == "" {
		return model.Caller{}, fmt.Errorf("%w: missing sub", ErrInvalidClaims)
	}
	if len(v.audience) > 0 && !slices.ContainsFunc(claims.Audience, func(aud string) bool {
		return slices.Contains(v.audience, aud)
	}) {
		return model.Caller{}, fmt.Errorf("%w: audience mismatch", ErrInvalidClaims)
	}

	return model.Caller{ID: claims.Subject, DisplayName: claims.Name}, nil
}

// Authenticate attaches the caller named by the bearer token. Requests without a token
// proceed anonymously so read routes stay public; operations that need an identity
// reject the anonymous caller themselves. A token that is present but invalid is a 401.
func Authenticate(v *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			c.Next()
			return
		}

		caller, err := v.Verify(raw)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "rejecting bearer token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Request = c.Request.WithContext(WithCaller(c.Request.Context(), caller))
		c.Next()
	}
}

func WithCaller(ctx context.Context, caller model.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFrom returns the request's caller, or the anonymous caller.
func CallerFrom(ctx context.Context) model.Caller {
	caller, _ := ctx.Value(callerContextKey).(model.Caller)
	return caller
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

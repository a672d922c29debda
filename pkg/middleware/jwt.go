package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	"github.com/prohmpiriya/gym-platform/pkg/response"
	"go.uber.org/zap"
)

var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthFormat = errors.New("invalid authorization header format")
	ErrInvalidToken      = errors.New("invalid token")
	ErrNoSubject         = errors.New("token carries no subject")
)

// Context keys set by BearerAuth
const (
	ContextKeyUserID = "user_id"
	ContextKeyToken  = "access_token"
)

// TokenLookup resolves a raw access token to a subject through the identity
// service. It is the slow path used when local claim extraction fails.
type TokenLookup interface {
	LookupToken(ctx context.Context, token string) (string, error)
}

// JWTConfig holds configuration for token authentication
type JWTConfig struct {
	// Secret is the HS256 key the identity service signs access tokens with.
	// Empty disables the local fast path.
	Secret string
	// Issuer, when set, must match the iss claim on the fast path.
	Issuer string
	// SkipPaths bypass authentication entirely.
	SkipPaths []string
}

// TokenAuthenticator turns a bearer token into a subject identifier.
type TokenAuthenticator struct {
	secret []byte
	issuer string
	lookup TokenLookup
	log    *logger.Logger
}

// NewTokenAuthenticator builds an authenticator. lookup may be nil, in which
// case a failed fast path is final.
func NewTokenAuthenticator(cfg *JWTConfig, lookup TokenLookup, log *logger.Logger) *TokenAuthenticator {
	if log == nil {
		log = logger.Nop()
	}
	return &TokenAuthenticator{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		lookup: lookup,
		log:    log,
	}
}

// Authenticate returns the caller's subject or an authentication error.
// Claim extraction is tried first; on any failure the identity service is
// asked. There is no third outcome.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", apperror.Authentication("Missing bearer token")
	}

	subject, err := a.extractSubject(raw)
	if err == nil {
		return subject, nil
	}
	a.log.DebugContext(ctx, "token fast path failed", zap.Error(err))

	if a.lookup != nil {
		subject, lookupErr := a.lookup.LookupToken(ctx, raw)
		if lookupErr == nil && subject != "" {
			return subject, nil
		}
		if lookupErr != nil {
			a.log.WarnContext(ctx, "identity token lookup failed", zap.Error(lookupErr))
		}
	}

	return "", apperror.Wrap(apperror.KindAuthentication, "Invalid or expired token", err)
}

func (a *TokenAuthenticator) extractSubject(raw string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("fast path disabled")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if sub, _ := claims["sub"].(string); sub != "" {
		return sub, nil
	}
	if uid, _ := claims["user_id"].(string); uid != "" {
		return uid, nil
	}
	return "", ErrNoSubject
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthHeader
	}
	const bearerPrefix = "bearer "
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrInvalidAuthFormat
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrInvalidAuthFormat
	}
	return token, nil
}

// BearerAuth rejects requests without a valid bearer token before any
// handler logic runs.
func BearerAuth(auth *TokenAuthenticator, config *JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, path := range config.SkipPaths {
			if c.Request.URL.Path == path {
				c.Next()
				return
			}
		}

		token, err := BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			msg := "Authorization header is required"
			if errors.Is(err, ErrInvalidAuthFormat) {
				msg = "Invalid authorization header format"
			}
			response.AbortWithError(c, apperror.Authentication(msg))
			return
		}

		userID, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		c.Set(ContextKeyUserID, userID)
		c.Set(ContextKeyToken, token)
		ctx := context.WithValue(c.Request.Context(), logger.ActorIDKey, userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetUserID extracts user ID from gin context
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok && id != ""
}

package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/pkg/apperror"
	"github.com/quocanhngo/hubtalk/pkg/auth"
	"github.com/redis/go-redis/v9"
)

// Context keys set by AuthMiddleware
const (
	UserIDKey   = "user_id"
	UserNameKey = "user_name"
	UserRoleKey = "user_role"
)

const revokedPrefix = "blacklist:"

// TokenVerifier checks bearer tokens issued by the sign-in service.
// Revoked tokens are listed in Redis; a nil client disables the revocation check.
type TokenVerifier struct {
	jwt *auth.JWTManager
	rdb *redis.Client
}

func NewTokenVerifier(jwtManager *auth.JWTManager, rdb *redis.Client) *TokenVerifier {
	return &TokenVerifier{jwt: jwtManager, rdb: rdb}
}

// Verify returns the token's claims. Failures wrap ErrUnauthenticated, or are transient if Redis is down.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	if token == "" {
		return nil, apperror.ErrUnauthenticated
	}

	if v.rdb != nil {
		exists, err := v.rdb.Exists(ctx, revokedPrefix+token).Result()
		if err != nil {
			// fail closed
			return nil, apperror.Transient(err)
		}
		if exists > 0 {
			return nil, fmt.Errorf("token revoked: %w", apperror.ErrUnauthenticated)
		}
	}

	claims, err := v.jwt.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperror.ErrUnauthenticated)
	}
	return claims, nil
}

func abortUnauthenticated(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{
		Error: "please sign in",
		Code:  "unauthenticated",
	})
}

// AuthMiddleware validates the bearer token and injects the caller identity into the gin context
func AuthMiddleware(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abortUnauthenticated(c)
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			if !errors.Is(err, apperror.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, model.ErrorResponse{
					Error: "auth server error",
					Code:  "transient_store_error",
				})
				return
			}
			abortUnauthenticated(c)
			return
		}

		SetIdentity(c, claims)
		c.Next()
	}
}

// SetIdentity stores the caller identity for downstream handlers
func SetIdentity(c *gin.Context, claims *auth.Claims) {
	c.Set(UserIDKey, claims.UserID)
	c.Set(UserNameKey, claims.Name)
	c.Set(UserRoleKey, claims.Role)
}

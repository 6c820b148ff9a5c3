package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	pkgcontext "webconf-backend/pkg/context"
	"webconf-backend/pkg/jwt"
	"webconf-backend/pkg/logger"
	"webconf-backend/pkg/response"
)

// RevocationChecker defines interface for checking if a token is revoked (blacklisted)
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, claims *jwt.Claims) (bool, error)
}

// AuthMiddleware validates the bearer token and binds the caller to the request.
// The user id is set in the gin context and in the request context, where the call service reads it.
// revocationChecker may be nil.
func AuthMiddleware(jwtManager *jwt.JWTManager, revocationChecker RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if errors.Is(err, jwt.ErrTokenExpired) {
			response.Error(c, 401, "EXPIRED_TOKEN", "Token has expired")
			c.Abort()
			return
		}
		if err != nil {
			response.Error(c, 401, "INVALID_TOKEN", "Invalid token")
			c.Abort()
			return
		}

		if revocationChecker != nil {
			revoked, err := revocationChecker.IsTokenRevoked(c.Request.Context(), claims)
			if err != nil {
				// Fail-open when Redis is unavailable, the signature already checked out
				logger.Warn("Token revocation check failed",
					zap.String("user_id", claims.UserID),
					zap.Error(err))
			} else if revoked {
				response.Error(c, 401, "INVALID_TOKEN", "Token revoked")
				c.Abort()
				return
			}
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Request = c.Request.WithContext(pkgcontext.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// WebSocket upgrades, so the access_token query parameter is accepted too.
func bearerToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return ""
		}
		return parts[1]
	}
	return c.Query("access_token")
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/unitedwerise/backend/internal/auth"
)

// AuthMiddleware validates the Bearer token and loads the user into the context.
// Handlers read it back via util.GetUserFromContext.
func AuthMiddleware(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no token provided"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header || tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set("user", claims.User)
		c.Set("user_id", claims.User.ID)
		c.Set("totp_verified", claims.TOTPVerified)
		c.Next()
	}
}

// OptionalAuthMiddleware loads the user when a valid token is present but
// lets anonymous requests through. Used for public endpoints that
// personalize when authenticated.
func OptionalAuthMiddleware(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header || tokenString == "" {
			c.Next()
			return
		}

		if claims, err := authService.ValidateToken(tokenString); err == nil {
			c.Set("user", claims.User)
			c.Set("user_id", claims.User.ID)
			c.Set("totp_verified", claims.TOTPVerified)
		}
		c.Next()
	}
}

package middleware

import (
	"context"
	"net/http" // HTTP status codes
	"strings"  // String manipulation

	"tipytap/internal/auth"  // Claims context helpers
	"tipytap/internal/utils" // JWT utility functions

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// JWTAuthMiddleware validates JWT tokens and extracts user information
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization") // Get Authorization header
		// Check if the Authorization header is present and properly formatted
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ") // Extract the token string and parse it
		claims, err := utils.ParseJWT(tokenStr, secret)       // Parse the JWT token
		if err != nil {
			// If parsing fails, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set("userID", claims.UserID)                                                  // Store userID in context
		c.Set("role", claims.Role)                                                      // Store role in context
		c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims)) // Claims for the identity provider
		c.Next()                                                                        // Proceed to the next handler
	}
}

// SessionChecker reports whether the token in ctx belongs to a live session.
type SessionChecker interface {
	IsAuthenticated(ctx context.Context) (bool, error)
}

// RequireSession rejects tokens whose session was ended by logout or a newer login
func RequireSession(sessions SessionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := sessions.IsAuthenticated(c.Request.Context())
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": c.GetString("userID"),
				"error":   err.Error(),
			}).Error("Session check failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Session check failed"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			return
		}
		c.Next()
	}
}

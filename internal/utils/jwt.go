package utils

import (
	"errors"
	"time" // Time for token expiration

	"github.com/golang-jwt/jwt/v5" // JWT library
)

// Claims carried by a session token. RegisteredClaims.ID is the session id.
type Claims struct {
	UserID               string `json:"user_id"` // Custom claim for user ID
	Role                 string `json:"role"`    // user or admin
	jwt.RegisteredClaims        // Standard JWT claims
}

// SessionID returns the id of the session the token belongs to.
func (c *Claims) SessionID() string {
	return c.ID
}

// GenerateJWT creates a JWT token for a given user and session
func GenerateJWT(userID, role, sessionID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	// Set token claims
	claims := Claims{
		UserID: userID, // Custom claim for user ID
		Role:   role,   // Custom claim for role
		// Standard claims
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,                        // Session id
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)), // Token expiry
			IssuedAt:  jwt.NewNumericDate(now),          // Issued at current time
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims) // Create token with claims
	return token.SignedString([]byte(secret))                  // Sign the token with the secret
}

// ParseJWT parses and validates a JWT token string
func ParseJWT(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil // Return the secret key for validation
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	// Check for parsing errors
	if err != nil {
		return nil, err // Return error if parsing fails
	}
	// Validate token and extract claims
	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil // Return claims if valid
	}
	// Return error if token is invalid
	return nil, errors.Join(jwt.ErrTokenInvalidClaims, jwt.ErrSignatureInvalid)
}

package api

import (
	"errors"
	"net/http" // HTTP status codes

	"tipytap/internal/auth" // Auth service

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// RegisterRequest is the sign-up form
type RegisterRequest struct {
	Email       string `json:"email" binding:"required"`    // Email must be provided
	Password    string `json:"password" binding:"required"` // Password must be provided
	Name        string `json:"name" binding:"required"`     // Display name
	PhoneNumber string `json:"phone_number"`                // Optional South African mobile number
	UserType    string `json:"user_type"`                   // tipper (default) or guard
	GuardID     string `json:"guard_id"`                    // Guard profile to link
}

// LoginRequest is the sign-in form
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`    // Email must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// PINRequest carries a 4 digit PIN
type PINRequest struct {
	PIN string `json:"pin" binding:"required"`
}

func authStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrEmailTaken), errors.Is(err, auth.ErrGuardTaken):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidPIN):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrPINNotSet):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func abortAuth(c *gin.Context, err error, what string) {
	status := authStatus(err)
	if status == http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"user_id":    c.GetString("userID"),
			"request_id": c.GetString("requestID"),
			"error":      err.Error(),
		}).Error(what + " failed")
		c.JSON(status, gin.H{"error": what + " failed"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// RegisterHandler creates a user with an empty wallet and returns a session
func RegisterHandler(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		session, err := svc.Register(c.Request.Context(), auth.RegisterInput{
			Email:       req.Email,
			Password:    req.Password,
			Name:        req.Name,
			PhoneNumber: req.PhoneNumber,
			UserType:    req.UserType,
			GuardID:     req.GuardID,
		})
		if err != nil {
			abortAuth(c, err, "Registration")
			return
		}
		c.JSON(http.StatusCreated, session)
	}
}

// LoginHandler authenticates a user and returns a JWT token
func LoginHandler(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		session, err := svc.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			abortAuth(c, err, "Login")
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

// LogoutHandler ends the caller's session
func LogoutHandler(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc.Logout(c.Request.Context(), c.GetString("userID"))
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// SetPINHandler enables PIN re-entry for the caller
func SetPINHandler(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PINRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if err := svc.SetPIN(c.Request.Context(), c.GetString("userID"), req.PIN); err != nil {
			abortAuth(c, err, "Set PIN")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "PIN enabled"})
	}
}

// DisablePINHandler removes the caller's PIN
func DisablePINHandler(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DisablePIN(c.Request.Context(), c.GetString("userID")); err != nil {
			abortAuth(c, err, "Disable PIN")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "PIN disabled"})
	}
}

// VerifyPINHandler checks the caller's PIN. It needs a live session; a PIN
// never replaces one.
func VerifyPINHandler(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PINRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if err := svc.VerifyPIN(c.Request.Context(), c.GetString("userID"), req.PIN); err != nil {
			abortAuth(c, err, "Verify PIN")
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": true})
	}
}

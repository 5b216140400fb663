package api

import (
	"errors"
	"net/http" // HTTP status codes
	"strconv"

	"tipytap/internal/ledger" // Ledger errors

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// ledgerStatus maps a ledger failure to an HTTP status
func ledgerStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidQRFormat),
		errors.Is(err, ledger.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrWalletNotFound),
		errors.Is(err, ledger.ErrGuardNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// abortLedger writes the error response for a failed ledger call. Storage
// details stay in the log.
func abortLedger(c *gin.Context, err error, what string) {
	status := ledgerStatus(err)
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

// pagination reads page and page_size, defaulting to 1 and 20
func pagination(c *gin.Context) (page, pageSize int) {
	page = 1                          // Default page
	pageSize = ledger.DefaultPageSize // Default page size
	// If page exists in query
	if p := c.Query("page"); p != "" {
		// Convert page to integer
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v // Set page if valid
		}
	}
	// If page_size exists in query
	if ps := c.Query("page_size"); ps != "" {
		// Convert page_size to integer
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= ledger.MaxPageSize {
			pageSize = v // Set page size if valid
		}
	}
	return page, pageSize
}

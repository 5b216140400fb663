package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Time durations

	"tipytap/internal/domain"     // Importing domain models
	"tipytap/internal/ledger"     // Wallet operations
	"tipytap/internal/utils"      // Utility functions
	"tipytap/internal/validation" // Input checks

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

const cacheTTL = 60 * time.Second // Wallet and history cache lifetime

func walletCacheKey(userID string) string {
	return "wallet:user:" + userID
}

func historyCacheKey(userID string, page, pageSize int) string {
	return "txhistory:user:" + userID + ":page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
}

// invalidateWallet drops the cached wallet and every cached history page of the user
func invalidateWallet(c *gin.Context, rdb redis.Cmdable, userID string) {
	ctx := c.Request.Context()
	if err := utils.DeleteCache(ctx, rdb, walletCacheKey(userID)); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Failed to invalidate wallet cache")
	}
	if err := utils.DeleteCachePattern(ctx, rdb, "txhistory:user:"+userID+":*"); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Failed to invalidate history cache")
	}
}

// GetWalletHandler returns wallet info for the authenticated user
func GetWalletHandler(engine *ledger.Engine, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")    // Get userID from context
		cacheKey := walletCacheKey(userID) // Cache key for wallet
		var wallet domain.Wallet           // Wallet struct to hold data
		found, err := utils.GetCache(c.Request.Context(), rdb, cacheKey, &wallet)
		// If found in cache, return it
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"wallet": wallet, "cached": true})
			return
		}
		// If not in cache, fetch through the ledger
		w, err := engine.GetWallet(c.Request.Context())
		if err != nil {
			abortLedger(c, err, "Get wallet")
			return
		}
		_ = utils.SetCache(c.Request.Context(), rdb, cacheKey, w, cacheTTL) // Cache the wallet
		c.JSON(http.StatusOK, gin.H{"wallet": w, "cached": false})          // Return wallet info
	}
}

// GetBalanceHandler returns the current balance, never cached
func GetBalanceHandler(engine *ledger.Engine, currency, symbol string) gin.HandlerFunc {
	return func(c *gin.Context) {
		balance, err := engine.GetWalletBalance(c.Request.Context())
		if err != nil {
			abortLedger(c, err, "Get balance")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"balance":  balance,                 // Decimal string
			"currency": currency,                // ISO code
			"display":  balance.Display(symbol), // e.g. R50.00
		})
	}
}

// DepositRequest represents a deposit request
type DepositRequest struct {
	Amount        domain.Amount `json:"amount"`                           // Deposit amount, "50.00" or 50
	PaymentMethod string        `json:"payment_method" binding:"max=128"` // Card or EFT reference
}

// DepositHandler adds funds to the authenticated user's wallet
func DepositHandler(engine *ledger.Engine, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DepositRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		tx, err := engine.AddFunds(c.Request.Context(), req.Amount, req.PaymentMethod)
		if err != nil {
			abortLedger(c, err, "Deposit")
			return
		}
		invalidateWallet(c, rdb, c.GetString("userID"))
		c.JSON(http.StatusOK, gin.H{"message": "Deposit successful", "transaction": tx})
	}
}

// WithdrawRequest represents a withdrawal request
type WithdrawRequest struct {
	Amount      domain.Amount `json:"amount"`                                  // Withdrawal amount
	BankAccount string        `json:"bank_account" binding:"required,max=128"` // Destination account number
}

// WithdrawHandler pays funds out to the user's bank account
func WithdrawHandler(engine *ledger.Engine, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req WithdrawRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if !validation.BankAccount(req.BankAccount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid bank account number"})
			return
		}
		tx, err := engine.WithdrawFunds(c.Request.Context(), req.Amount, req.BankAccount)
		if err != nil {
			abortLedger(c, err, "Withdrawal")
			return
		}
		invalidateWallet(c, rdb, c.GetString("userID"))
		c.JSON(http.StatusOK, gin.H{"message": "Withdrawal successful", "transaction": tx})
	}
}

// TipRequest names the guard by id or by scanned QR payload
type TipRequest struct {
	Amount  domain.Amount `json:"amount"`   // Tip amount
	GuardID string        `json:"guard_id"` // Known guard id
	QRCode  string        `json:"qr_code"`  // Scanned QR payload
}

// TipHandler tips a car guard from the user's wallet
func TipHandler(engine *ledger.Engine, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TipRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil || (req.GuardID == "" && req.QRCode == "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		var (
			tx  *domain.Transaction
			err error
		)
		if req.QRCode != "" {
			tx, err = engine.ProcessTipQR(c.Request.Context(), req.Amount, req.QRCode)
		} else {
			tx, err = engine.ProcessTip(c.Request.Context(), req.Amount, req.GuardID)
		}
		if err != nil {
			abortLedger(c, err, "Tip")
			return
		}
		invalidateWallet(c, rdb, c.GetString("userID"))
		c.JSON(http.StatusOK, gin.H{"message": "Tip sent", "transaction": tx})
	}
}

// QRRequest carries a scanned QR payload
type QRRequest struct {
	QRCode string `json:"qr_code" binding:"required"` // Scanned payload
}

// ValidateQRHandler resolves the guard behind a QR payload without paying
func ValidateQRHandler(engine *ledger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req QRRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		g, err := engine.ValidateQRCode(c.Request.Context(), req.QRCode)
		if err != nil {
			abortLedger(c, err, "QR validation")
			return
		}
		c.JSON(http.StatusOK, gin.H{"guard": g})
	}
}

// MyQRHandler returns the caller's guard profile and the payload of their QR code
func MyQRHandler(engine *ledger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, err := engine.MyGuardProfile(c.Request.Context())
		if err != nil {
			abortLedger(c, err, "Guard profile")
			return
		}
		c.JSON(http.StatusOK, gin.H{"guard": g, "qr_payload": engine.QRPayload(g.ID)})
	}
}

// GetTransactionHistoryHandler returns the user's transactions, most recent
// first. Without page parameters the whole history is returned.
func GetTransactionHistoryHandler(engine *ledger.Engine, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("page") == "" && c.Query("page_size") == "" {
			txs, err := engine.GetTransactionHistory(c.Request.Context())
			if err != nil {
				abortLedger(c, err, "Transaction history")
				return
			}
			c.JSON(http.StatusOK, gin.H{"transactions": txs, "total": len(txs)})
			return
		}

		page, pageSize := pagination(c)
		cacheKey := historyCacheKey(c.GetString("userID"), page, pageSize)
		var cached ledger.Page
		// Try to get from cache
		found, err := utils.GetCache(c.Request.Context(), rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"transactions": cached.Transactions, // Cached transactions
				"page":         cached.Page,         // Current page
				"page_size":    cached.PageSize,     // Page size
				"total":        cached.Total,        // Total transactions
				"total_pages":  cached.TotalPages,   // Total pages
				"cached":       true,
			})
			return
		}
		p, err := engine.GetTransactionPage(c.Request.Context(), page, pageSize)
		if err != nil {
			abortLedger(c, err, "Transaction history")
			return
		}
		_ = utils.SetCache(c.Request.Context(), rdb, cacheKey, p, cacheTTL) // Cache the page
		c.JSON(http.StatusOK, gin.H{
			"transactions": p.Transactions, // List of transactions
			"page":         p.Page,         // Current page
			"page_size":    p.PageSize,     // Page size
			"total":        p.Total,        // Total transactions
			"total_pages":  p.TotalPages,   // Total pages
			"cached":       false,          // Not from cache
		})
	}
}

// parseStatementTime accepts RFC3339 or a plain date. A plain end date covers the whole day.
func parseStatementTime(v string, end bool) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), true
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, false
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, true
}

// StatementHandler totals the user's transactions between from and to. The
// range defaults to the current month.
func StatementHandler(engine *ledger.Engine, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		t := now().UTC()
		from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		to := t
		if v := c.Query("from"); v != "" {
			parsed, ok := parseStatementTime(v, false)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date"})
				return
			}
			from = parsed
		}
		if v := c.Query("to"); v != "" {
			parsed, ok := parseStatementTime(v, true)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date"})
				return
			}
			to = parsed
		}
		st, err := engine.Statement(c.Request.Context(), from, to)
		if err != nil {
			abortLedger(c, err, "Statement")
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

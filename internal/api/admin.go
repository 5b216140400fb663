package api

import (
	"net/http" // HTTP status codes
	"strings"  // String manipulation
	"time"     // Date filters

	"tipytap/internal/domain"     // Importing domain models
	"tipytap/internal/guard"      // Guard directory
	"tipytap/internal/utils"      // Utility functions
	"tipytap/internal/validation" // Input checks

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

// UserAdminResponse represents the user data returned to admin
type UserAdminResponse struct {
	ID       string         `json:"id"`               // User ID
	Email    string         `json:"email"`            // Email
	Name     string         `json:"name"`             // Display name
	UserType string         `json:"user_type"`        // tipper or guard
	Role     string         `json:"role"`             // User role
	Wallet   *domain.Wallet `json:"wallet,omitempty"` // Associated wallet, sql backend only
}

// ListUsersHandler returns all users with their wallet info
func ListUsersHandler(db *gorm.DB, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize := pagination(c)
		// Create a cache key based on pagination parameters
		cacheKey := "admin:users:page=" + c.DefaultQuery("page", "1") + ":size=" + c.DefaultQuery("page_size", "20")
		var cached struct {
			Users      []UserAdminResponse `json:"users"`       // List of users
			Page       int                 `json:"page"`        // Current page
			PageSize   int                 `json:"page_size"`   // Page size
			Total      int64               `json:"total"`       // Total number of users
			TotalPages int                 `json:"total_pages"` // Total pages
		}
		// If cached data found, return it
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"users":       cached.Users,      // List of users
				"page":        cached.Page,       // Current page
				"page_size":   cached.PageSize,   // Page size
				"total":       cached.Total,      // Total number of users
				"total_pages": cached.TotalPages, // Total pages
				"cached":      true,              // Indicate response is from cache
			})
			return
		}
		offset := (page - 1) * pageSize // Calculate offset for pagination
		var total int64                 // Total user count
		if err := db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count users"}) // Return on error
			return
		}
		var users []domain.User // Slice to hold users
		// Preload Wallet relation, apply offset and limit for pagination
		if err := db.WithContext(ctx).Preload("Wallet").Order("created_at asc").Offset(offset).Limit(pageSize).Find(&users).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"}) // Return on error
			return
		}
		totalPages := (int(total) + pageSize - 1) / pageSize // Calculate total pages
		resp := make([]UserAdminResponse, len(users))
		// Map users to response format
		for i, u := range users {
			resp[i] = UserAdminResponse{
				ID:       u.ID,
				Email:    u.Email,
				Name:     u.Name,
				UserType: u.UserType,
				Role:     u.Role,
				Wallet:   u.Wallet,
			}
		}
		respData := gin.H{
			"users":       resp,       // List of users
			"page":        page,       // Current page
			"page_size":   pageSize,   // Page size
			"total":       total,      // Total number of users
			"total_pages": totalPages, // Total pages
			"cached":      false,      // Indicate response is not from cache
		}
		// Cache the response for future requests
		_ = utils.SetCache(ctx, rdb, cacheKey, respData, cacheTTL)
		c.JSON(http.StatusOK, respData) // Return the response
	}
}

// ListTransactionsHandler returns all transactions, with optional filtering by user, type, or date
func ListTransactionsHandler(db *gorm.DB, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		// Build cache key from all query params
		var keyParts []string
		for _, k := range []string{"user_id", "type", "from", "to", "page", "page_size"} {
			keyParts = append(keyParts, k+"="+c.DefaultQuery(k, "")) // Append key-value pair
		}
		cacheKey := "admin:txs:" + strings.Join(keyParts, ":")
		var cached struct {
			Transactions []domain.Transaction `json:"transactions"` // List of transactions
			Page         int                  `json:"page"`         // Current page
			PageSize     int                  `json:"page_size"`    // Page size
			Total        int64                `json:"total"`        // Total number of transactions
			TotalPages   int                  `json:"total_pages"`  // Total pages
		}
		// If cached data found, return it
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"transactions": cached.Transactions, // List of transactions
				"page":         cached.Page,         // Current page
				"page_size":    cached.PageSize,     // Page size
				"total":        cached.Total,        // Total number of transactions
				"total_pages":  cached.TotalPages,   // Total pages
				"cached":       true,                // Indicate response is from cache
			})
			return
		}
		page, pageSize := pagination(c)
		offset := (page - 1) * pageSize // Calculate offset for pagination
		var from, to time.Time
		if v := c.Query("from"); v != "" {
			t, ok := parseStatementTime(v, false)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date"})
				return
			}
			from = t
		}
		if v := c.Query("to"); v != "" {
			t, ok := parseStatementTime(v, true)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date"})
				return
			}
			to = t
		}
		// Fresh query per use so Count does not leak into Find
		filtered := func() *gorm.DB {
			query := db.WithContext(ctx).Model(&domain.Transaction{})
			if userID := c.Query("user_id"); userID != "" {
				query = query.Where("from_user_id = ? OR to_user_id = ?", userID, userID) // Filter by user ID
			}
			if txType := c.Query("type"); txType != "" {
				query = query.Where("type = ?", txType) // Filter by transaction type
			}
			if !from.IsZero() {
				query = query.Where("timestamp >= ?", from) // Filter by start date
			}
			if !to.IsZero() {
				query = query.Where("timestamp <= ?", to) // Filter by end date
			}
			return query
		}
		var total int64 // Total transaction count
		if err := filtered().Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count transactions"})
			return
		}
		var txs []domain.Transaction // Slice to hold transactions
		if err := filtered().Order("timestamp desc").Order("id desc").Offset(offset).Limit(pageSize).Find(&txs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		totalPages := (int(total) + pageSize - 1) / pageSize
		respData := gin.H{
			"transactions": txs,        // List of transactions
			"page":         page,       // Current page
			"page_size":    pageSize,   // Page size
			"total":        total,      // Total number of transactions
			"total_pages":  totalPages, // Total pages
			"cached":       false,      // Indicate response is not from cache
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, respData, cacheTTL)
		c.JSON(http.StatusOK, respData) // Return the response
	}
}

// GuardRequest registers or updates a car guard
type GuardRequest struct {
	ID          string   `json:"id" binding:"required,max=64"`    // Guard id, encoded in the QR code
	Name        string   `json:"name" binding:"required,max=128"` // Display name
	Location    string   `json:"location" binding:"max=255"`      // Where the guard works
	PhoneNumber string   `json:"phone_number"`                    // Optional contact number
	Verified    bool     `json:"verified"`                        // Identity checked
	IDNumber    string   `json:"id_number"`                       // SA ID number, marks the guard verified; not stored
	Rating      *float64 `json:"rating"`                          // Optional rating
}

// RegisterGuardHandler creates or replaces a guard profile
func RegisterGuardHandler(dir *guard.Directory, qrPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GuardRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if strings.ContainsAny(req.ID, " \t\n") || !validation.Name(req.Name) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid guard id or name"})
			return
		}
		if req.PhoneNumber != "" && !validation.PhoneNumber(req.PhoneNumber) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid South African phone number"})
			return
		}
		if req.IDNumber != "" {
			if !validation.IDNumber(req.IDNumber) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid South African ID number"})
				return
			}
			req.Verified = true
		}
		g := &domain.CarGuard{
			ID:          req.ID,
			Name:        req.Name,
			QRCode:      qrPrefix + req.ID,
			Location:    req.Location,
			PhoneNumber: req.PhoneNumber,
			Verified:    req.Verified,
			Rating:      req.Rating,
		}
		if err := dir.Register(c.Request.Context(), g); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save guard"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"guard": g})
	}
}

// ListGuardsHandler returns one page of guards
func ListGuardsHandler(dir *guard.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := pagination(c)
		guards, total, err := dir.List(c.Request.Context(), pageSize, (page-1)*pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch guards"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"guards":      guards,
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": (int(total) + pageSize - 1) / pageSize,
		})
	}
}

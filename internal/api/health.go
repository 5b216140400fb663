package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// HealthHandler reports whether the database and Redis answer
func HealthHandler(db *gorm.DB, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{"database": "ok", "redis": "ok"}
		healthy := true
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status["database"] = "unavailable"
			healthy = false
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			status["redis"] = "unavailable"
			healthy = false
		}
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

package middleware

import (
    "github.com/gin-contrib/cors"
    "github.com/gin-gonic/gin"
)

// CORS 允许的来源来自配置, "*" 表示全部
func CORS(origins []string) gin.HandlerFunc {
    config := cors.DefaultConfig()
    if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
        config.AllowAllOrigins = true
    } else {
        config.AllowOrigins = origins
    }
    config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
    config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", RequestIDHeader}
    config.ExposeHeaders = []string{RequestIDHeader}

    return cors.New(config)
}

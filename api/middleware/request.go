package middleware

import (
    "net/http"
    "strconv"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/google/uuid"

    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/metrics"
)

const RequestIDHeader = "X-Request-ID"

// RequestLogger 为每个请求分配 request id, 记录访问日志和延迟指标
func RequestLogger(log logger.Logger) gin.HandlerFunc {
    return func(c *gin.Context) {
        start := time.Now()

        requestID := c.GetHeader(RequestIDHeader)
        if requestID == "" {
            requestID = uuid.New().String()
        }
        c.Header(RequestIDHeader, requestID)
        c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), requestID))

        c.Next()

        route := c.FullPath()
        if route == "" {
            route = "unmatched"
        }
        status := c.Writer.Status()
        elapsed := time.Since(start)
        metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())

        if route == "/health" || route == "/metrics" {
            return
        }
        logger.FromContext(c.Request.Context(), log).Info("HTTP request",
            logger.String("method", c.Request.Method),
            logger.String("path", c.Request.URL.Path),
            logger.Int("status", status),
            logger.Duration("latency", elapsed),
        )
    }
}

// MaxBodySize 限制请求体大小
func MaxBodySize(limit int64) gin.HandlerFunc {
    return func(c *gin.Context) {
        if limit > 0 {
            c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
        }
        c.Next()
    }
}

// Recovery 捕获 handler 中的 panic
func Recovery(log logger.Logger) gin.HandlerFunc {
    return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
        logger.FromContext(c.Request.Context(), log).Error("Handler panicked",
            logger.String("path", c.Request.URL.Path),
            logger.Any("panic", recovered),
        )
        c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
    })
}

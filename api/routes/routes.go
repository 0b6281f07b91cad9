package routes

import (
    "github.com/gin-gonic/gin"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/feichai0017/plc-program-processor/api/handlers"
    "github.com/feichai0017/plc-program-processor/api/middleware"
    "github.com/feichai0017/plc-program-processor/config"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, cfg *config.AppConfig, log logger.Logger) {
    // 全局中间件
    r.Use(middleware.Recovery(log))
    r.Use(middleware.RequestLogger(log))
    r.Use(middleware.CORS(cfg.CORSOrigins))

    r.GET("/health", h.Health.Health)
    r.GET("/metrics", gin.WrapH(promhttp.Handler()))

    // API 版本组
    v1 := r.Group("/api/v1")

    programs := v1.Group("/programs")
    {
        upload := middleware.MaxBodySize(cfg.MaxUploadMB << 20)
        programs.POST("", upload, h.Program.Register)
        programs.POST("/validate", upload, h.Program.Validate)
        programs.GET("/:programId", h.Program.GetProgram)
        programs.GET("/:programId/progress", h.Program.GetProgress)
        programs.GET("/:programId/failures", h.Program.GetFailures)
        programs.POST("/:programId/retry", h.Program.Retry)
        programs.DELETE("/:programId", h.Program.Delete)
        programs.POST("/:programId/knowledge-sync", h.Knowledge.SyncProgram)
    }

    v1.POST("/knowledge-references/:referenceId/sync", h.Knowledge.SyncReference)
    v1.GET("/master/hierarchy", h.MasterData.Hierarchy)
}

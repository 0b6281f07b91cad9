package handlers

import (
    "context"
    "net/http"

    "github.com/gin-gonic/gin"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/service/knowledge"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

type KnowledgeHandler struct {
    sync   knowledge.Synchronizer
    logger logger.Logger
}

func NewKnowledgeHandler(sync knowledge.Synchronizer, log logger.Logger) *KnowledgeHandler {
    return &KnowledgeHandler{sync: sync, logger: log}
}

func (h *KnowledgeHandler) SyncProgram(c *gin.Context) {
    programID := c.Param("programId")
    res, err := h.sync.SyncProgram(c.Request.Context(), programID)
    if err != nil {
        handleError(c, h.logger, statusFor(err), "Failed to sync program", err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"program_id": programID, "result": res})
}

func (h *KnowledgeHandler) SyncReference(c *gin.Context) {
    referenceID := c.Param("referenceId")
    res, err := h.sync.SyncReference(c.Request.Context(), referenceID)
    if err != nil {
        handleError(c, h.logger, statusFor(err), "Failed to sync knowledge reference", err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"reference_id": referenceID, "result": res})
}

// HierarchyProvider 主数据查询
type HierarchyProvider interface {
    Hierarchy(ctx context.Context) ([]models.Plant, error)
}

type MasterDataHandler struct {
    provider HierarchyProvider
    logger   logger.Logger
}

func NewMasterDataHandler(p HierarchyProvider, log logger.Logger) *MasterDataHandler {
    return &MasterDataHandler{provider: p, logger: log}
}

func (h *MasterDataHandler) Hierarchy(c *gin.Context) {
    plants, err := h.provider.Hierarchy(c.Request.Context())
    if err != nil {
        handleError(c, h.logger, statusFor(err), "Failed to load master data", err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"plants": plants})
}

// HealthCheck returns an error when a dependency is unavailable.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
    check HealthCheck
}

func NewHealthHandler(check HealthCheck) *HealthHandler {
    return &HealthHandler{check: check}
}

func (h *HealthHandler) Health(c *gin.Context) {
    if h.check != nil {
        if err := h.check(c.Request.Context()); err != nil {
            c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
            return
        }
    }
    c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

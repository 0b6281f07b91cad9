package handlers

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "strings"

    "github.com/gin-gonic/gin"
    "github.com/go-playground/validator/v10"

    kb "github.com/feichai0017/plc-program-processor/internal/agent/knowledge"
    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/repository"
    "github.com/feichai0017/plc-program-processor/internal/service/knowledge"
    "github.com/feichai0017/plc-program-processor/internal/service/program"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

type Handlers struct {
    Program    *ProgramHandler
    Knowledge  *KnowledgeHandler
    MasterData *MasterDataHandler
    Health     *HealthHandler
}

func NewHandlers(
    programService program.ProgramService,
    synchronizer knowledge.Synchronizer,
    hierarchy HierarchyProvider,
    health HealthCheck,
    log logger.Logger,
) *Handlers {
    return &Handlers{
        Program:    NewProgramHandler(programService, log),
        Knowledge:  NewKnowledgeHandler(synchronizer, log),
        MasterData: NewMasterDataHandler(hierarchy, log),
        Health:     NewHealthHandler(health),
    }
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
    Error   string   `json:"error,omitempty"`
    Message string   `json:"message"`
    Fields  []string `json:"fields,omitempty"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
    var verrs validator.ValidationErrors
    switch {
    case err == nil:
        return http.StatusInternalServerError
    case errors.As(err, &verrs):
        return http.StatusBadRequest
    case errors.Is(err, repository.ErrNotFound):
        return http.StatusNotFound
    case errors.Is(err, program.ErrInvalidRetryType):
        return http.StatusBadRequest
    case errors.Is(err, models.ErrInvalidTransition):
        return http.StatusConflict
    case errors.Is(err, program.ErrDispatcherStopped),
        errors.Is(err, knowledge.ErrNoRepository),
        errors.Is(err, kb.ErrNotConfigured):
        return http.StatusServiceUnavailable
    case errors.Is(err, context.DeadlineExceeded):
        return http.StatusGatewayTimeout
    }
    return http.StatusInternalServerError
}

// handleError 统一错误处理
func handleError(c *gin.Context, log logger.Logger, status int, message string, err error) {
    l := logger.FromContext(c.Request.Context(), log)
    fields := []logger.Field{
        logger.String("path", c.Request.URL.Path),
        logger.Int("status", status),
    }
    if err != nil {
        fields = append(fields, logger.Error(err))
    }
    if status >= http.StatusInternalServerError {
        l.Error(message, fields...)
    } else {
        l.Warn(message, fields...)
    }

    response := ErrorResponse{Message: message}
    if err != nil {
        response.Error = err.Error()
        var verrs validator.ValidationErrors
        if errors.As(err, &verrs) {
            response.Fields = describe(verrs)
        }
    }
    c.AbortWithStatusJSON(status, response)
}

func describe(verrs validator.ValidationErrors) []string {
    out := make([]string, 0, len(verrs))
    for _, fe := range verrs {
        msg := fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag())
        if fe.Param() != "" {
            msg += "=" + fe.Param()
        }
        out = append(out, msg)
    }
    return out
}

package handlers

import (
    "fmt"
    "io"
    "mime/multipart"
    "net/http"

    "github.com/gin-gonic/gin"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/service/program"
    "github.com/feichai0017/plc-program-processor/internal/utils/validator"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

type ProgramHandler struct {
    service program.ProgramService
    logger  logger.Logger
}

func NewProgramHandler(service program.ProgramService, log logger.Logger) *ProgramHandler {
    return &ProgramHandler{service: service, logger: log}
}

// UploadForm 三个上传文件
type UploadForm struct {
    LadderZip      *multipart.FileHeader `form:"ladder_zip" binding:"required"`
    Classification *multipart.FileHeader `form:"classification_xlsx" binding:"required"`
    Comment        *multipart.FileHeader `form:"comment_csv" binding:"required"`
}

type RegisterForm struct {
    UploadForm
    Title       string `form:"program_title" binding:"required,max=255"`
    Description string `form:"program_description" binding:"max=4000"`
    UserID      string `form:"user_id" binding:"required,max=64"`
    ProcessID   string `form:"process_id" binding:"omitempty,max=64"`
}

type RetryRequest struct {
    UserID    string `json:"user_id" binding:"required"`
    RetryType string `json:"retry_type" binding:"omitempty,oneof=preprocessing document all"`
}

type FailureFilter struct {
    FailureType string `form:"failure_type" binding:"omitempty,oneof=preprocessing document_storage vector_indexing"`
    Status      string `form:"status" binding:"omitempty,oneof=pending retrying resolved failed deleted"`
}

// DeleteQuery user_id 可选, 只用于记录删除人
type DeleteQuery struct {
    UserID string `form:"user_id"`
}

func readUpload(fh *multipart.FileHeader) (validator.File, error) {
    f, err := fh.Open()
    if err != nil {
        return validator.File{}, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
    }
    defer f.Close()

    data, err := io.ReadAll(f)
    if err != nil {
        return validator.File{}, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
    }
    return validator.File{Name: fh.Filename, Data: data}, nil
}

func (f *UploadForm) files() (zip, cls, comment validator.File, err error) {
    if zip, err = readUpload(f.LadderZip); err != nil {
        return
    }
    if cls, err = readUpload(f.Classification); err != nil {
        return
    }
    comment, err = readUpload(f.Comment)
    return
}

// Register 注册 PLC 程序, 校验通过后立即返回, 预处理和索引在后台执行
func (h *ProgramHandler) Register(c *gin.Context) {
    var form RegisterForm
    if err := c.ShouldBind(&form); err != nil {
        handleError(c, h.logger, http.StatusBadRequest, "Invalid registration form", err)
        return
    }
    zip, cls, comment, err := form.files()
    if err != nil {
        handleError(c, h.logger, http.StatusBadRequest, "Invalid file upload", err)
        return
    }

    ctx := logger.ContextWithUserID(c.Request.Context(), form.UserID)
    res, err := h.service.Register(ctx, &program.RegisterRequest{
        Title:          form.Title,
        Description:    form.Description,
        UserID:         form.UserID,
        ProcessID:      form.ProcessID,
        LadderZip:      zip,
        Classification: cls,
        Comment:        comment,
    })
    if err != nil {
        handleError(c, h.logger, statusFor(err), "Failed to register program", err)
        return
    }

    status := http.StatusAccepted
    if res.Status == program.ResultValidationFailed {
        status = http.StatusUnprocessableEntity
    }
    c.JSON(status, res)
}

// Validate 只校验上传文件
func (h *ProgramHandler) Validate(c *gin.Context) {
    var form UploadForm
    if err := c.ShouldBind(&form); err != nil {
        handleError(c, h.logger, http.StatusBadRequest, "Invalid validation form", err)
        return
    }
    zip, cls, comment, err := form.files()
    if err != nil {
        handleError(c, h.logger, http.StatusBadRequest, "Invalid file upload", err)
        return
    }

    report := h.service.Validate(&program.RegisterRequest{
        LadderZip:      zip,
        Classification: cls,
        Comment:        comment,
    })
    c.JSON(http.StatusOK, report)
}

func (h *ProgramHandler) GetProgram(c *gin.Context) {
    view, err := h.service.GetProgram(c.Request.Context(), c.Param("programId"))
    if err != nil {
        handleError(c, h.logger, statusFor(err), "Failed to get program", err)
        return
    }
    c.JSON(http.StatusOK, view)
}

func (h *ProgramHandler) GetProgress(c *gin.Context) {
    view, err := h.service.GetProgress(c.Request.Context(), c.Param("programId"))
    if err != nil {
        handleError(c, h.logger, statusFor(err), "Failed to get progress", err)
        return
    }
    c.JSON(http.StatusOK, view)
}

func (h *ProgramHandler) GetFailures(c *gin.Context) {
    var filter FailureFilter
    if err := c.ShouldBindQuery(&filter); err != nil {
        handleError(c, h.logger, http.StatusBadRequest, "Invalid failure filter", err)
        return
    }

    programID := c.Param("programId")
    failures, err := h.service.GetFailures(c.Request.Context(), programID, program.FailureQuery{
        FailureType: models.FailureType(filter.FailureType),
        Status:      models.FailureStatus(filter.Status),
    })
    if err != nil {
        handleError(c, h.logger, statusFor(err), "Failed to list failures", err)
        return
    }
    c.JSON(http.StatusOK, gin.H{
        "program_id": programID,
        "total":      len(failures),
        "failures":   failures,
    })
}

// Retry 重试 pending 的失败项
func (h *ProgramHandler) Retry(c *gin.Context) {
    var req RetryRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        handleError(c, h.logger, http.StatusBadRequest, "Invalid retry request", err)
        return
    }

    ctx := logger.ContextWithUserID(c.Request.Context(), req.UserID)
    res, err := h.service.RetryFailures(ctx, c.Param("programId"), req.UserID, req.RetryType)
    if err != nil {
        handleError(c, h.logger, statusFor(err), "Failed to retry failures", err)
        return
    }
    c.JSON(http.StatusOK, res)
}

func (h *ProgramHandler) Delete(c *gin.Context) {
    var q DeleteQuery
    if err := c.ShouldBindQuery(&q); err != nil {
        handleError(c, h.logger, http.StatusBadRequest, "Invalid query", err)
        return
    }

    ctx := logger.ContextWithUserID(c.Request.Context(), q.UserID)
    res, err := h.service.DeleteProgram(ctx, c.Param("programId"), q.UserID)
    if err != nil {
        handleError(c, h.logger, statusFor(err), "Failed to delete program", err)
        return
    }
    c.JSON(http.StatusOK, res)
}

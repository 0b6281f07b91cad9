package program

import (
    "context"
    "fmt"
    "strings"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/utils/validator"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/metrics"
)

// 同步响应中的状态
const (
    ResultSuccess          = "success"
    ResultValidationFailed = "validation_failed"
)

const (
    idTimeLayout    = "20060102150405"
    fallbackIDStem  = "PGM"
    maxIDCollisions = 100
)

// RegisterRequest 一次注册请求的三件套和元信息
type RegisterRequest struct {
    Title          string
    Description    string
    UserID         string
    ProcessID      string
    LadderZip      validator.File
    Classification validator.File
    Comment        validator.File
}

// ValidationReport is the validator result plus grouped errors.
type ValidationReport struct {
    *validator.Result
    ErrorGroups []validator.ErrorGroup `json:"error_groups,omitempty"`
}

type RegisterData struct {
    ProgramID string               `json:"program_id"`
    Title     string               `json:"title"`
    Status    models.ProgramStatus `json:"status"`
}

type RegisterResult struct {
    ProgramID        string            `json:"program_id"`
    Status           string            `json:"status"`
    Message          string            `json:"message"`
    Data             *RegisterData     `json:"data,omitempty"`
    ValidationResult *ValidationReport `json:"validation_result,omitempty"`
}

// Validate 只做校验, 不落库
func (s *Service) Validate(req *RegisterRequest) *ValidationReport {
    res := s.validator.Validate(req.LadderZip, req.Classification, req.Comment)
    return &ValidationReport{Result: res, ErrorGroups: validator.GroupErrors(res.Errors)}
}

// Register 同步校验后立即返回, 其余步骤交给调度器异步完成
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*RegisterResult, error) {
    programID, err := s.newProgramID(ctx, req.ProcessID)
    if err != nil {
        metrics.RegistrationsTotal.WithLabelValues("error").Inc()
        return nil, err
    }
    log := s.logger.With(logger.ProgramID(programID))

    report := s.Validate(req)
    s.checkProcess(ctx, req.ProcessID, report)

    if !report.IsValid {
        log.Info("Registration rejected by validation",
            logger.Int("errors", len(report.Errors)),
            logger.Int("warnings", len(report.Warnings)),
        )
        metrics.RegistrationsTotal.WithLabelValues(ResultValidationFailed).Inc()
        return &RegisterResult{
            ProgramID:        programID,
            Status:           ResultValidationFailed,
            Message:          fmt.Sprintf("validation failed with %d error(s)", len(report.Errors)),
            ValidationResult: report,
        }, nil
    }

    job := &RegistrationJob{
        ProgramID:      programID,
        Title:          req.Title,
        Description:    req.Description,
        ProcessID:      req.ProcessID,
        UserID:         req.UserID,
        LadderZip:      JobFile{Name: req.LadderZip.Name, Data: req.LadderZip.Data},
        Classification: JobFile{Name: req.Classification.Name, Data: req.Classification.Data},
        Comment:        JobFile{Name: req.Comment.Name, Data: req.Comment.Data},
        validated:      report.Result,
    }
    if err := s.dispatcher.Dispatch(ctx, job); err != nil {
        metrics.RegistrationsTotal.WithLabelValues("error").Inc()
        return nil, fmt.Errorf("failed to dispatch registration %s: %w", programID, err)
    }

    log.Info("Registration accepted",
        logger.String("title", req.Title),
        logger.Int("declaredFiles", len(report.Declarations)),
    )
    metrics.RegistrationsTotal.WithLabelValues("accepted").Inc()

    return &RegisterResult{
        ProgramID: programID,
        Status:    ResultSuccess,
        Message:   "program registration started",
        Data: &RegisterData{
            ProgramID: programID,
            Title:     req.Title,
            Status:    models.ProgramStatusPreprocessing,
        },
        ValidationResult: report,
    }, nil
}

// checkProcess 工程不在主数据中时只给警告
func (s *Service) checkProcess(ctx context.Context, processID string, report *ValidationReport) {
    if processID == "" {
        return
    }
    ok, err := s.store.MasterData.ProcessExists(ctx, processID)
    if err != nil {
        s.logger.Warn("Failed to check process in master data",
            logger.String("processId", processID),
            logger.Error(err),
        )
        return
    }
    if !ok {
        report.Warnings = append(report.Warnings, fmt.Sprintf("process %s is not registered in master data", processID))
    }
}

// newProgramID 生成 {process_id}_{YYYYMMDDHHMMSS}, 同一秒内冲突时追加序号
func (s *Service) newProgramID(ctx context.Context, processID string) (string, error) {
    stem := sanitizeIDPart(processID)
    if stem == "" {
        stem = fallbackIDStem
    }
    base := fmt.Sprintf("%s_%s", stem, s.now().Format(idTimeLayout))

    for n := 1; n <= maxIDCollisions; n++ {
        id := base
        if n > 1 {
            id = fmt.Sprintf("%s_%d", base, n)
        }
        taken, err := s.idTaken(ctx, id)
        if err != nil {
            return "", err
        }
        if !taken {
            return id, nil
        }
    }
    return "", fmt.Errorf("failed to allocate program id for %s", base)
}

func (s *Service) idTaken(ctx context.Context, id string) (bool, error) {
    exists, err := s.store.Programs.IDInUse(ctx, id)
    if err != nil {
        return false, err
    }
    if exists {
        return true, nil
    }
    pending, err := s.dispatcher.Pending(ctx, id)
    if err != nil {
        // 查询失败不阻塞注册
        s.logger.Warn("Failed to check dispatch state", logger.ProgramID(id), logger.Error(err))
        return false, nil
    }
    return pending, nil
}

// sanitizeIDPart keeps the id usable as a storage path segment.
func sanitizeIDPart(s string) string {
    s = strings.TrimSpace(s)
    return strings.Map(func(r rune) rune {
        switch {
        case r == '/' || r == '\\' || r == ' ':
            return '-'
        case r < 0x20:
            return -1
        }
        return r
    }, s)
}

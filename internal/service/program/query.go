package program

import (
    "context"
    "errors"
    "fmt"
    "strings"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/repository"
    "github.com/feichai0017/plc-program-processor/internal/service/progress"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

// ProgramView 程序详情: 记录、显示阶段、百分比与统计
type ProgramView struct {
    ProgramID   string                `json:"program_id"`
    Status      models.ProgramStatus  `json:"status"`
    Phase       progress.Phase        `json:"phase,omitempty"`
    Percentage  *int                  `json:"percentage"`
    Stats       *models.DocumentStats `json:"stats,omitempty"`
    Program     *models.Program       `json:"program,omitempty"`
    IndexingJob *models.IndexingJob   `json:"indexing_job,omitempty"`
    // Dispatched is set while the job is queued and no row exists yet.
    Dispatched bool `json:"dispatched,omitempty"`
}

type ProgressView struct {
    ProgramID  string               `json:"program_id"`
    Status     models.ProgramStatus `json:"status"`
    Phase      progress.Phase       `json:"phase,omitempty"`
    Percentage *int                 `json:"percentage"`
    Stats      models.DocumentStats `json:"stats"`
}

// FailureQuery 失败列表过滤条件, 空值表示不过滤
type FailureQuery struct {
    FailureType models.FailureType
    Status      models.FailureStatus
}

type FailureView struct {
    models.ProcessingFailure
    CanRetry bool `json:"can_retry"`
}

func (s *Service) GetProgram(ctx context.Context, programID string) (*ProgramView, error) {
    prog, err := s.store.Programs.Get(ctx, programID)
    if errors.Is(err, repository.ErrNotFound) {
        return s.dispatchedView(ctx, programID)
    }
    if err != nil {
        return nil, err
    }

    // 查询只读, document_stats 由流水线和重试写入
    stats, err := s.calculator.Stats(ctx, programID)
    if err != nil {
        return nil, s.programNotFound(err, programID)
    }
    phase := progress.PhaseFor(prog.Status, *stats)

    view := &ProgramView{
        ProgramID:  prog.ID,
        Status:     prog.Status,
        Phase:      phase,
        Percentage: progress.Percentage(phase, *stats),
        Stats:      stats,
        Program:    prog,
    }
    job, err := s.store.IndexingJobs.Latest(ctx, programID)
    switch {
    case err == nil:
        view.IndexingJob = job
    case !errors.Is(err, repository.ErrNotFound):
        s.logger.Warn("Failed to load indexing job", logger.ProgramID(programID), logger.Error(err))
    }
    return view, nil
}

// dispatchedView 任务已受理但程序记录尚未写入时的回退
func (s *Service) dispatchedView(ctx context.Context, programID string) (*ProgramView, error) {
    pending, err := s.dispatcher.Pending(ctx, programID)
    if err != nil {
        s.logger.Warn("Failed to check dispatch state", logger.ProgramID(programID), logger.Error(err))
    }
    if !pending {
        return nil, fmt.Errorf("program %s: %w", programID, ErrProgramNotFound)
    }
    stats := models.DocumentStats{TotalUpload: progress.TotalUpload}
    return &ProgramView{
        ProgramID:  programID,
        Status:     models.ProgramStatusPreparing,
        Phase:      progress.PhaseUploading,
        Percentage: progress.Percentage(progress.PhaseUploading, stats),
        Stats:      &stats,
        Dispatched: true,
    }, nil
}

func (s *Service) GetProgress(ctx context.Context, programID string) (*ProgressView, error) {
    view, err := s.GetProgram(ctx, programID)
    if err != nil {
        return nil, err
    }
    return &ProgressView{
        ProgramID:  view.ProgramID,
        Status:     view.Status,
        Phase:      view.Phase,
        Percentage: view.Percentage,
        Stats:      *view.Stats,
    }, nil
}

func (s *Service) GetFailures(ctx context.Context, programID string, q FailureQuery) ([]FailureView, error) {
    exists, err := s.store.Programs.Exists(ctx, programID)
    if err != nil {
        return nil, err
    }
    if !exists {
        return nil, fmt.Errorf("program %s: %w", programID, ErrProgramNotFound)
    }

    failures, err := s.ledger.GetFailures(ctx, models.ProgramSource(programID),
        models.FailureType(strings.TrimSpace(string(q.FailureType))),
        models.FailureStatus(strings.TrimSpace(string(q.Status))),
    )
    if err != nil {
        return nil, err
    }

    out := make([]FailureView, 0, len(failures))
    for _, f := range failures {
        out = append(out, FailureView{
            ProcessingFailure: f,
            CanRetry:          f.Status == models.FailureStatusPending && !f.RetriesExhausted(),
        })
    }
    return out, nil
}

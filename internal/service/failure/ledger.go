// Package failure keeps the per-file failure ledger with retry bookkeeping.
package failure

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/google/uuid"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/repository"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

// ErrFailureNotFound wraps repository.ErrNotFound.
var ErrFailureNotFound = fmt.Errorf("processing failure not found: %w", repository.ErrNotFound)

const DefaultMaxRetryCount = 3

// Record describes a new failure.
type Record struct {
    Source        models.FailureSource
    Type          models.FailureType
    FileIndex     int
    FilePath      string
    FileName      string
    StorageKey    string
    Err           error
    Detail        map[string]interface{}
    MaxRetryCount int
}

type Ledger struct {
    repo   repository.FailureRepository
    logger logger.Logger
    now    func() time.Time
}

func NewLedger(repo repository.FailureRepository, log logger.Logger) *Ledger {
    return &Ledger{repo: repo, logger: log, now: time.Now}
}

// Build turns a Record into a pending ProcessingFailure without saving it,
// for callers that stage failures into their own transaction.
func (l *Ledger) Build(r Record) *models.ProcessingFailure {
    maxRetry := r.MaxRetryCount
    if maxRetry <= 0 {
        maxRetry = DefaultMaxRetryCount
    }
    msg := ""
    if r.Err != nil {
        msg = r.Err.Error()
    }
    now := l.now()
    f := &models.ProcessingFailure{
        ID:            uuid.New().String(),
        FailureType:   r.Type,
        FileIndex:     r.FileIndex,
        FilePath:      r.FilePath,
        FileName:      r.FileName,
        StorageKey:    r.StorageKey,
        ErrorMessage:  msg,
        ErrorDetail:   r.Detail,
        MaxRetryCount: maxRetry,
        Status:        models.FailureStatusPending,
        CreatedAt:     now,
        UpdatedAt:     now,
    }
    f.SetSource(r.Source)
    return f
}

func (l *Ledger) CreateFailure(ctx context.Context, r Record) (*models.ProcessingFailure, error) {
    f := l.Build(r)
    if err := l.repo.Create(ctx, f); err != nil {
        return nil, err
    }
    l.logger.Warn("Processing failure recorded",
        logger.String("source", f.Source().String()),
        logger.String("failureType", string(f.FailureType)),
        logger.String("file", f.FileName),
        logger.String("error", f.ErrorMessage),
    )
    return f, nil
}

// GetFailures lists failures of a source. Empty filters match everything.
func (l *Ledger) GetFailures(ctx context.Context, source models.FailureSource, failureType models.FailureType, status models.FailureStatus) ([]models.ProcessingFailure, error) {
    return l.repo.List(ctx, repository.FailureFilter{
        Source:      source,
        FailureType: failureType,
        Status:      status,
    })
}

func (l *Ledger) Get(ctx context.Context, id string) (*models.ProcessingFailure, error) {
    f, err := l.repo.Get(ctx, id)
    if err != nil {
        return nil, mapNotFound(err, id)
    }
    return f, nil
}

// IncrementRetry bumps the retry counter and moves the failure to retrying.
func (l *Ledger) IncrementRetry(ctx context.Context, id string) (*models.ProcessingFailure, error) {
    f, err := l.Get(ctx, id)
    if err != nil {
        return nil, err
    }
    if f.Status.IsTerminal() {
        return nil, fmt.Errorf("failure %s is already %s", id, f.Status)
    }

    f.RetryCount++
    f.Status = models.FailureStatusRetrying
    f.UpdatedAt = l.now()
    err = l.repo.Update(ctx, id, map[string]interface{}{
        "retry_count": f.RetryCount,
        "status":      f.Status,
        "updated_at":  f.UpdatedAt,
    })
    if err != nil {
        return nil, mapNotFound(err, id)
    }
    return f, nil
}

func (l *Ledger) MarkResolved(ctx context.Context, id, resolvedBy string) error {
    now := l.now()
    err := l.repo.Update(ctx, id, map[string]interface{}{
        "status":      models.FailureStatusResolved,
        "resolved_by": resolvedBy,
        "resolved_at": now,
        "updated_at":  now,
    })
    return mapNotFound(err, id)
}

// UpdateStatus sets the status and, when errMsg is non-empty, replaces the
// error message.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, status models.FailureStatus, errMsg string) error {
    fields := map[string]interface{}{
        "status":     status,
        "updated_at": l.now(),
    }
    if errMsg != "" {
        fields["error_message"] = errMsg
    }
    return mapNotFound(l.repo.Update(ctx, id, fields), id)
}

func mapNotFound(err error, id string) error {
    if err == nil {
        return nil
    }
    if errors.Is(err, repository.ErrNotFound) {
        return fmt.Errorf("failure %s: %w", id, ErrFailureNotFound)
    }
    return err
}

package repository

import (
    "context"
    "fmt"
    "time"

    "gorm.io/gorm"

    "github.com/feichai0017/plc-program-processor/internal/models"
)

// FailureFilter narrows a failure listing. Zero values match everything.
type FailureFilter struct {
    Source      models.FailureSource
    FailureType models.FailureType
    Status      models.FailureStatus
}

type FailureRepository interface {
    Create(ctx context.Context, f *models.ProcessingFailure) error
    Get(ctx context.Context, id string) (*models.ProcessingFailure, error)
    List(ctx context.Context, filter FailureFilter) ([]models.ProcessingFailure, error)
    Update(ctx context.Context, id string, fields map[string]interface{}) error
    MarkDeletedBySource(ctx context.Context, source models.FailureSource) (int64, error)
}

type failureRepository struct {
    db *gorm.DB
}

func NewFailureRepository(db *gorm.DB) FailureRepository {
    return &failureRepository{db: db}
}

func (r *failureRepository) Create(ctx context.Context, f *models.ProcessingFailure) error {
    if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
        return fmt.Errorf("failed to record failure for %s: %w", f.Source(), err)
    }
    return nil
}

func (r *failureRepository) Get(ctx context.Context, id string) (*models.ProcessingFailure, error) {
    var f models.ProcessingFailure
    if err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
        return nil, notFound(err, "failure", id)
    }
    return &f, nil
}

func (r *failureRepository) List(ctx context.Context, filter FailureFilter) ([]models.ProcessingFailure, error) {
    q := r.db.WithContext(ctx).
        Where("source_type = ? AND source_id = ?", filter.Source.Kind, filter.Source.ID)
    if filter.FailureType != "" {
        q = q.Where("failure_type = ?", filter.FailureType)
    }
    if filter.Status != "" {
        q = q.Where("status = ?", filter.Status)
    }

    var failures []models.ProcessingFailure
    if err := q.Order("created_at, file_index").Find(&failures).Error; err != nil {
        return nil, fmt.Errorf("failed to list failures of %s: %w", filter.Source, err)
    }
    return failures, nil
}

func (r *failureRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
    if _, ok := fields["updated_at"]; !ok {
        fields["updated_at"] = time.Now()
    }
    res := r.db.WithContext(ctx).Model(&models.ProcessingFailure{}).Where("id = ?", id).Updates(fields)
    if res.Error != nil {
        return fmt.Errorf("failed to update failure %s: %w", id, res.Error)
    }
    if res.RowsAffected == 0 {
        return fmt.Errorf("failure %s: %w", id, ErrNotFound)
    }
    return nil
}

func (r *failureRepository) MarkDeletedBySource(ctx context.Context, source models.FailureSource) (int64, error) {
    res := r.db.WithContext(ctx).Model(&models.ProcessingFailure{}).
        Where("source_type = ? AND source_id = ? AND status <> ?", source.Kind, source.ID, models.FailureStatusDeleted).
        Updates(map[string]interface{}{"status": models.FailureStatusDeleted, "updated_at": time.Now()})
    if res.Error != nil {
        return 0, fmt.Errorf("failed to delete failures of %s: %w", source, res.Error)
    }
    return res.RowsAffected, nil
}

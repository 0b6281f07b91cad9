package repository

import (
    "context"
    "fmt"
    "time"

    "gorm.io/gorm"
    "gorm.io/gorm/clause"

    "github.com/feichai0017/plc-program-processor/internal/models"
)

type DocumentRepository interface {
    Create(ctx context.Context, doc *models.Document) error
    Save(ctx context.Context, doc *models.Document) error
    // UpdateStorage writes the storage columns of a live document.
    UpdateStorage(ctx context.Context, doc *models.Document) error
    Get(ctx context.Context, id string) (*models.Document, error)
    // FindByType returns the newest live document of the given type.
    FindByType(ctx context.Context, programID string, docType models.DocumentType) (*models.Document, error)
    ListByProgram(ctx context.Context, programID string, types ...models.DocumentType) ([]models.Document, error)
    ListByKnowledgeReference(ctx context.Context, referenceID string) ([]models.Document, error)
    // UpsertLogic inserts per-logic documents keyed by
    // (program_id, document_type, logic_key), updating rows that exist.
    UpsertLogic(ctx context.Context, docs []*models.Document) error
    CountTypesPresent(ctx context.Context, programID string, types []models.DocumentType) (int, error)
    CountProcessed(ctx context.Context, programID string) (int64, error)
    CountEmbedded(ctx context.Context, programID string) (int64, error)
    // UpdateEmbedding leaves status untouched when it is empty.
    UpdateEmbedding(ctx context.Context, id string, embedded bool, vectorCount int, status models.DocumentStatus) error
    SoftDeleteByProgram(ctx context.Context, programID string, at time.Time) (int64, error)
    DetachKnowledge(ctx context.Context, programID string) (int64, error)
}

type documentRepository struct {
    db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
    return &documentRepository{db: db}
}

// 冲突时更新的列
var logicUpsertColumns = []string{
    "name", "original_filename", "storage_key", "storage_location", "size", "mime_type",
    "extension", "content_hash", "status", "logic_type", "source_document_id",
    "is_deleted", "deleted_at", "updated_at",
}

func (r *documentRepository) live(ctx context.Context) *gorm.DB {
    return r.db.WithContext(ctx).Where("is_deleted = ?", false)
}

func (r *documentRepository) Create(ctx context.Context, doc *models.Document) error {
    if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
        return fmt.Errorf("failed to create document %s: %w", doc.Name, err)
    }
    return nil
}

func (r *documentRepository) Save(ctx context.Context, doc *models.Document) error {
    if err := r.db.WithContext(ctx).Save(doc).Error; err != nil {
        return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
    }
    return nil
}

func (r *documentRepository) UpdateStorage(ctx context.Context, doc *models.Document) error {
    res := r.live(ctx).Model(&models.Document{}).Where("id = ?", doc.ID).
        Updates(map[string]interface{}{
            "storage_key":      doc.StorageKey,
            "storage_location": doc.StorageLocation,
            "updated_at":       doc.UpdatedAt,
        })
    if res.Error != nil {
        return fmt.Errorf("failed to update storage of document %s: %w", doc.ID, res.Error)
    }
    if res.RowsAffected == 0 {
        return fmt.Errorf("document %s: %w", doc.ID, ErrNotFound)
    }
    return nil
}

func (r *documentRepository) Get(ctx context.Context, id string) (*models.Document, error) {
    var doc models.Document
    if err := r.live(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
        return nil, notFound(err, "document", id)
    }
    return &doc, nil
}

func (r *documentRepository) FindByType(ctx context.Context, programID string, docType models.DocumentType) (*models.Document, error) {
    var doc models.Document
    err := r.live(ctx).
        Where("program_id = ? AND document_type = ?", programID, docType).
        Order("created_at DESC").
        First(&doc).Error
    if err != nil {
        return nil, notFound(err, "document", fmt.Sprintf("%s/%s", programID, docType))
    }
    return &doc, nil
}

func (r *documentRepository) ListByProgram(ctx context.Context, programID string, types ...models.DocumentType) ([]models.Document, error) {
    var docs []models.Document
    q := r.live(ctx).Where("program_id = ?", programID)
    if len(types) > 0 {
        q = q.Where("document_type IN ?", types)
    }
    if err := q.Order("created_at, logic_key").Find(&docs).Error; err != nil {
        return nil, fmt.Errorf("failed to list documents of %s: %w", programID, err)
    }
    return docs, nil
}

func (r *documentRepository) ListByKnowledgeReference(ctx context.Context, referenceID string) ([]models.Document, error) {
    var docs []models.Document
    if err := r.live(ctx).Where("knowledge_reference_id = ?", referenceID).Order("created_at").Find(&docs).Error; err != nil {
        return nil, fmt.Errorf("failed to list documents of reference %s: %w", referenceID, err)
    }
    return docs, nil
}

func (r *documentRepository) UpsertLogic(ctx context.Context, docs []*models.Document) error {
    return upsertLogic(r.db.WithContext(ctx), docs)
}

func upsertLogic(db *gorm.DB, docs []*models.Document) error {
    if len(docs) == 0 {
        return nil
    }
    err := db.Clauses(clause.OnConflict{
        Columns:   []clause.Column{{Name: "program_id"}, {Name: "document_type"}, {Name: "logic_key"}},
        DoUpdates: clause.AssignmentColumns(logicUpsertColumns),
    }).Create(&docs).Error
    if err != nil {
        return fmt.Errorf("failed to upsert %d logic documents: %w", len(docs), err)
    }
    return nil
}

func (r *documentRepository) CountTypesPresent(ctx context.Context, programID string, types []models.DocumentType) (int, error) {
    var present []models.DocumentType
    err := r.live(ctx).Model(&models.Document{}).
        Where("program_id = ? AND document_type IN ?", programID, types).
        Distinct().
        Pluck("document_type", &present).Error
    if err != nil {
        return 0, fmt.Errorf("failed to count uploaded documents of %s: %w", programID, err)
    }
    return len(present), nil
}

func (r *documentRepository) CountProcessed(ctx context.Context, programID string) (int64, error) {
    var count int64
    err := r.live(ctx).Model(&models.Document{}).
        Where("program_id = ? AND document_type = ?", programID, models.DocumentTypeLogicJSON).
        Where("logic_type IS NOT NULL AND status IN ?", models.ProcessedStatuses).
        Count(&count).Error
    if err != nil {
        return 0, fmt.Errorf("failed to count processed documents of %s: %w", programID, err)
    }
    return count, nil
}

func (r *documentRepository) CountEmbedded(ctx context.Context, programID string) (int64, error) {
    var count int64
    err := r.live(ctx).Model(&models.Document{}).
        Where("program_id = ? AND is_embedded = ?", programID, true).
        Count(&count).Error
    if err != nil {
        return 0, fmt.Errorf("failed to count embedded documents of %s: %w", programID, err)
    }
    return count, nil
}

func (r *documentRepository) UpdateEmbedding(ctx context.Context, id string, embedded bool, vectorCount int, status models.DocumentStatus) error {
    fields := map[string]interface{}{
        "is_embedded":  embedded,
        "vector_count": vectorCount,
        "updated_at":   time.Now(),
    }
    // 空状态表示保持原值
    if status != "" {
        fields["status"] = status
    }
    err := r.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).Updates(fields).Error
    if err != nil {
        return fmt.Errorf("failed to update embedding of document %s: %w", id, err)
    }
    return nil
}

func (r *documentRepository) SoftDeleteByProgram(ctx context.Context, programID string, at time.Time) (int64, error) {
    res := r.live(ctx).Model(&models.Document{}).
        Where("program_id = ?", programID).
        Updates(map[string]interface{}{"is_deleted": true, "deleted_at": at, "updated_at": at})
    if res.Error != nil {
        return 0, fmt.Errorf("failed to delete documents of %s: %w", programID, res.Error)
    }
    return res.RowsAffected, nil
}

func (r *documentRepository) DetachKnowledge(ctx context.Context, programID string) (int64, error) {
    res := r.db.WithContext(ctx).Model(&models.Document{}).
        Where("program_id = ? AND knowledge_reference_id IS NOT NULL", programID).
        Update("knowledge_reference_id", nil)
    if res.Error != nil {
        return 0, fmt.Errorf("failed to detach knowledge references of %s: %w", programID, res.Error)
    }
    return res.RowsAffected, nil
}

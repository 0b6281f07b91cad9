package repository

import (
    "context"
    "fmt"

    "gorm.io/gorm"

    "github.com/feichai0017/plc-program-processor/internal/models"
)

// LogicEntryRepository 分类表结构表
type LogicEntryRepository interface {
    // Replace swaps the program's entries for entries.
    Replace(ctx context.Context, programID string, entries []models.LogicEntry) error
    List(ctx context.Context, programID string) ([]models.LogicEntry, error)
    Count(ctx context.Context, programID string) (int64, error)
}

type logicEntryRepository struct {
    db *gorm.DB
}

func NewLogicEntryRepository(db *gorm.DB) LogicEntryRepository {
    return &logicEntryRepository{db: db}
}

func (r *logicEntryRepository) Replace(ctx context.Context, programID string, entries []models.LogicEntry) error {
    return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        if err := tx.Where("program_id = ?", programID).Delete(&models.LogicEntry{}).Error; err != nil {
            return fmt.Errorf("failed to clear logic entries of %s: %w", programID, err)
        }
        if len(entries) == 0 {
            return nil
        }
        for i := range entries {
            entries[i].ProgramID = programID
        }
        if err := tx.CreateInBatches(&entries, 200).Error; err != nil {
            return fmt.Errorf("failed to create logic entries of %s: %w", programID, err)
        }
        return nil
    })
}

func (r *logicEntryRepository) List(ctx context.Context, programID string) ([]models.LogicEntry, error) {
    var entries []models.LogicEntry
    if err := r.db.WithContext(ctx).Where("program_id = ?", programID).Order("ordinal").Find(&entries).Error; err != nil {
        return nil, fmt.Errorf("failed to list logic entries of %s: %w", programID, err)
    }
    return entries, nil
}

func (r *logicEntryRepository) Count(ctx context.Context, programID string) (int64, error) {
    var count int64
    if err := r.db.WithContext(ctx).Model(&models.LogicEntry{}).Where("program_id = ?", programID).Count(&count).Error; err != nil {
        return 0, fmt.Errorf("failed to count logic entries of %s: %w", programID, err)
    }
    return count, nil
}

type IndexingJobRepository interface {
    Create(ctx context.Context, job *models.IndexingJob) error
    Save(ctx context.Context, job *models.IndexingJob) error
    Latest(ctx context.Context, programID string) (*models.IndexingJob, error)
}

type indexingJobRepository struct {
    db *gorm.DB
}

func NewIndexingJobRepository(db *gorm.DB) IndexingJobRepository {
    return &indexingJobRepository{db: db}
}

func (r *indexingJobRepository) Create(ctx context.Context, job *models.IndexingJob) error {
    if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
        return fmt.Errorf("failed to create indexing job for %s: %w", job.ProgramID, err)
    }
    return nil
}

func (r *indexingJobRepository) Save(ctx context.Context, job *models.IndexingJob) error {
    if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
        return fmt.Errorf("failed to save indexing job %s: %w", job.ID, err)
    }
    return nil
}

func (r *indexingJobRepository) Latest(ctx context.Context, programID string) (*models.IndexingJob, error) {
    var job models.IndexingJob
    if err := r.db.WithContext(ctx).Where("program_id = ?", programID).Order("created_at DESC").First(&job).Error; err != nil {
        return nil, notFound(err, "indexing job of", programID)
    }
    return &job, nil
}

type KnowledgeReferenceRepository interface {
    Create(ctx context.Context, ref *models.KnowledgeReference) error
    Get(ctx context.Context, id string) (*models.KnowledgeReference, error)
}

type knowledgeReferenceRepository struct {
    db *gorm.DB
}

func NewKnowledgeReferenceRepository(db *gorm.DB) KnowledgeReferenceRepository {
    return &knowledgeReferenceRepository{db: db}
}

func (r *knowledgeReferenceRepository) Create(ctx context.Context, ref *models.KnowledgeReference) error {
    if err := r.db.WithContext(ctx).Create(ref).Error; err != nil {
        return fmt.Errorf("failed to create knowledge reference %s: %w", ref.Name, err)
    }
    return nil
}

func (r *knowledgeReferenceRepository) Get(ctx context.Context, id string) (*models.KnowledgeReference, error) {
    var ref models.KnowledgeReference
    if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ref).Error; err != nil {
        return nil, notFound(err, "knowledge reference", id)
    }
    return &ref, nil
}

// MasterDataRepository 工厂 / 工序 / 产线
type MasterDataRepository interface {
    Hierarchy(ctx context.Context) ([]models.Plant, error)
    ProcessExists(ctx context.Context, processID string) (bool, error)
    CreatePlant(ctx context.Context, plant *models.Plant) error
}

type masterDataRepository struct {
    db *gorm.DB
}

func NewMasterDataRepository(db *gorm.DB) MasterDataRepository {
    return &masterDataRepository{db: db}
}

func (r *masterDataRepository) Hierarchy(ctx context.Context) ([]models.Plant, error) {
    var plants []models.Plant
    err := r.db.WithContext(ctx).
        Preload("Processes", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order, id") }).
        Preload("Processes.Lines", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order, id") }).
        Order("sort_order, id").
        Find(&plants).Error
    if err != nil {
        return nil, fmt.Errorf("failed to load master data: %w", err)
    }
    return plants, nil
}

func (r *masterDataRepository) ProcessExists(ctx context.Context, processID string) (bool, error) {
    var count int64
    if err := r.db.WithContext(ctx).Model(&models.Process{}).Where("id = ?", processID).Count(&count).Error; err != nil {
        return false, fmt.Errorf("failed to check process %s: %w", processID, err)
    }
    return count > 0, nil
}

func (r *masterDataRepository) CreatePlant(ctx context.Context, plant *models.Plant) error {
    if err := r.db.WithContext(ctx).Create(plant).Error; err != nil {
        return fmt.Errorf("failed to create plant %s: %w", plant.ID, err)
    }
    return nil
}

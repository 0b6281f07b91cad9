package repository

import (
    "context"
    "fmt"
    "time"

    "gorm.io/gorm"
    "gorm.io/gorm/clause"

    "github.com/feichai0017/plc-program-processor/internal/models"
)

type ProgramRepository interface {
    // CreateIfAbsent inserts p unless a row with the same id exists, in which
    // case p is loaded from it.
    CreateIfAbsent(ctx context.Context, p *models.Program) (bool, error)
    Get(ctx context.Context, id string) (*models.Program, error)
    Exists(ctx context.Context, id string) (bool, error)
    // IDInUse also counts soft-deleted rows.
    IDInUse(ctx context.Context, id string) (bool, error)
    Save(ctx context.Context, p *models.Program) error
    // UpdateStatus writes only the status columns of p. Deleted programs are
    // not found.
    UpdateStatus(ctx context.Context, p *models.Program) error
    // UpdateMeta applies fn to the stored metadata under a row lock and
    // writes back only the metadata column. Deleted programs are not found.
    UpdateMeta(ctx context.Context, id string, fn func(m *models.ProgramMetadata)) (*models.ProgramMetadata, error)
    SoftDelete(ctx context.Context, id string, at time.Time) error
}

type programRepository struct {
    db *gorm.DB
}

func NewProgramRepository(db *gorm.DB) ProgramRepository {
    return &programRepository{db: db}
}

func (r *programRepository) CreateIfAbsent(ctx context.Context, p *models.Program) (bool, error) {
    var existing models.Program
    err := r.db.WithContext(ctx).Where("id = ?", p.ID).Limit(1).Find(&existing).Error
    if err != nil {
        return false, fmt.Errorf("failed to check program %s: %w", p.ID, err)
    }
    if existing.ID != "" {
        *p = existing
        return false, nil
    }

    if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
        return false, fmt.Errorf("failed to create program %s: %w", p.ID, err)
    }
    return true, nil
}

func (r *programRepository) Get(ctx context.Context, id string) (*models.Program, error) {
    var p models.Program
    if err := r.db.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&p).Error; err != nil {
        return nil, notFound(err, "program", id)
    }
    return &p, nil
}

func (r *programRepository) Exists(ctx context.Context, id string) (bool, error) {
    var count int64
    err := r.db.WithContext(ctx).Model(&models.Program{}).
        Where("id = ? AND is_deleted = ?", id, false).
        Count(&count).Error
    if err != nil {
        return false, fmt.Errorf("failed to check program %s: %w", id, err)
    }
    return count > 0, nil
}

func (r *programRepository) IDInUse(ctx context.Context, id string) (bool, error) {
    var count int64
    if err := r.db.WithContext(ctx).Model(&models.Program{}).Where("id = ?", id).Count(&count).Error; err != nil {
        return false, fmt.Errorf("failed to check program id %s: %w", id, err)
    }
    return count > 0, nil
}

func (r *programRepository) Save(ctx context.Context, p *models.Program) error {
    if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
        return fmt.Errorf("failed to save program %s: %w", p.ID, err)
    }
    return nil
}

func (r *programRepository) UpdateStatus(ctx context.Context, p *models.Program) error {
    res := r.db.WithContext(ctx).Model(&models.Program{}).
        Where("id = ? AND is_deleted = ?", p.ID, false).
        Updates(map[string]interface{}{
            "status":       p.Status,
            "error_msg":    p.ErrorMsg,
            "completed_at": p.CompletedAt,
            "updated_at":   time.Now(),
        })
    if res.Error != nil {
        return fmt.Errorf("failed to update status of program %s: %w", p.ID, res.Error)
    }
    if res.RowsAffected == 0 {
        return fmt.Errorf("program %s: %w", p.ID, ErrNotFound)
    }
    return nil
}

func (r *programRepository) UpdateMeta(ctx context.Context, id string, fn func(m *models.ProgramMetadata)) (*models.ProgramMetadata, error) {
    var out models.ProgramMetadata
    err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        var p models.Program
        // 行锁, 防止并发的读改写互相覆盖
        err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
            Where("id = ? AND is_deleted = ?", id, false).
            First(&p).Error
        if err != nil {
            return notFound(err, "program", id)
        }
        meta := p.Meta()
        fn(&meta)
        p.SetMeta(meta)
        out = meta
        return tx.Model(&models.Program{}).Where("id = ?", id).
            Updates(map[string]interface{}{"metadata": p.Metadata, "updated_at": time.Now()}).Error
    })
    if err != nil {
        return nil, fmt.Errorf("failed to update metadata of program %s: %w", id, err)
    }
    return &out, nil
}

func (r *programRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
    res := r.db.WithContext(ctx).Model(&models.Program{}).
        Where("id = ? AND is_deleted = ?", id, false).
        Updates(map[string]interface{}{"is_deleted": true, "deleted_at": at, "updated_at": at})
    if res.Error != nil {
        return fmt.Errorf("failed to delete program %s: %w", id, res.Error)
    }
    if res.RowsAffected == 0 {
        return fmt.Errorf("program %s: %w", id, ErrNotFound)
    }
    return nil
}

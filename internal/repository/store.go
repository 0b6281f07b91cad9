package repository

import (
    "context"
    "fmt"

    "gorm.io/gorm"
    "gorm.io/gorm/clause"

    "github.com/feichai0017/plc-program-processor/internal/models"
)

// ChunkCommitter persists one preprocessing chunk atomically. It returns
// ErrNotFound when the program is gone.
type ChunkCommitter interface {
    CommitChunk(ctx context.Context, programID string, docs []*models.Document, failures []*models.ProcessingFailure) error
}

// Store 持有所有仓储, 与 gorm.DB 同生命周期
type Store struct {
    DB            *gorm.DB
    Programs      ProgramRepository
    Documents     DocumentRepository
    Failures      FailureRepository
    LogicEntries  LogicEntryRepository
    IndexingJobs  IndexingJobRepository
    KnowledgeRefs KnowledgeReferenceRepository
    MasterData    MasterDataRepository
}

func NewStore(db *gorm.DB) *Store {
    return &Store{
        DB:            db,
        Programs:      NewProgramRepository(db),
        Documents:     NewDocumentRepository(db),
        Failures:      NewFailureRepository(db),
        LogicEntries:  NewLogicEntryRepository(db),
        IndexingJobs:  NewIndexingJobRepository(db),
        KnowledgeRefs: NewKnowledgeReferenceRepository(db),
        MasterData:    NewMasterDataRepository(db),
    }
}

// Transaction runs fn with a Store bound to one transaction. fn must only
// use the Store it is given.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
    return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        return fn(NewStore(tx))
    })
}

// CommitChunk upserts the staged logic documents and inserts the staged
// failures in one transaction, holding the program row so a concurrent
// delete either sees the chunk or rejects it.
func (s *Store) CommitChunk(ctx context.Context, programID string, docs []*models.Document, failures []*models.ProcessingFailure) error {
    err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        if err := lockLiveProgram(tx, programID); err != nil {
            return err
        }
        if err := upsertLogic(tx, docs); err != nil {
            return err
        }
        if len(failures) > 0 {
            if err := tx.Create(&failures).Error; err != nil {
                return fmt.Errorf("failed to record %d failures: %w", len(failures), err)
            }
        }
        return nil
    })
    if err != nil {
        return fmt.Errorf("failed to commit chunk: %w", err)
    }
    return nil
}

// lockLiveProgram 锁定未删除的程序行
func lockLiveProgram(tx *gorm.DB, programID string) error {
    var p models.Program
    err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
        Select("id").
        Where("id = ? AND is_deleted = ?", programID, false).
        First(&p).Error
    if err != nil {
        return notFound(err, "program", programID)
    }
    return nil
}

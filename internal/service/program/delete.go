package program

import (
    "context"
    "fmt"
    "time"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/repository"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

type DeleteResult struct {
    ProgramID              string    `json:"program_id"`
    DeletedBy              string    `json:"deleted_by,omitempty"`
    DeletedAt              time.Time `json:"deleted_at"`
    DocumentsDeleted       int64     `json:"documents_deleted"`
    FailuresDeleted        int64     `json:"failures_deleted"`
    KnowledgeLinksDetached int64     `json:"knowledge_links_detached"`
    ObjectsPurged          int       `json:"objects_purged"`
    PurgeError             string    `json:"purge_error,omitempty"`
}

// DeleteProgram 软删除程序及其文档, 失败记录置为 deleted, 可选清理对象存储
func (s *Service) DeleteProgram(ctx context.Context, programID, userID string) (*DeleteResult, error) {
    if _, err := s.store.Programs.Get(ctx, programID); err != nil {
        return nil, s.programNotFound(err, programID)
    }

    now := s.now()
    result := &DeleteResult{ProgramID: programID, DeletedBy: userID, DeletedAt: now}

    err := s.store.Transaction(ctx, func(tx *repository.Store) error {
        // 先更新程序行: 与 CommitChunk 相同的加锁顺序, 之后的分块提交会看到已删除
        if err := tx.Programs.SoftDelete(ctx, programID, now); err != nil {
            return err
        }
        var err error
        if result.KnowledgeLinksDetached, err = tx.Documents.DetachKnowledge(ctx, programID); err != nil {
            return err
        }
        if result.DocumentsDeleted, err = tx.Documents.SoftDeleteByProgram(ctx, programID, now); err != nil {
            return err
        }
        result.FailuresDeleted, err = tx.Failures.MarkDeletedBySource(ctx, models.ProgramSource(programID))
        return err
    })
    if err != nil {
        return nil, fmt.Errorf("failed to delete program %s: %w", programID, s.programNotFound(err, programID))
    }

    log := s.logger.With(logger.ProgramID(programID))
    if s.config.PurgeOnDelete {
        prefix := s.objectKey(programID) + "/"
        n, err := s.storage.DeletePrefix(ctx, prefix)
        result.ObjectsPurged = n
        if err != nil {
            // 数据库已提交, 对象清理失败只报告
            result.PurgeError = err.Error()
            log.Error("Failed to purge program objects", logger.String("prefix", prefix), logger.Error(err))
        }
    }

    log.Info("Program deleted",
        logger.String("userId", userID),
        logger.Int64("documents", result.DocumentsDeleted),
        logger.Int64("failures", result.FailuresDeleted),
        logger.Int("objects", result.ObjectsPurged),
    )
    return result, nil
}

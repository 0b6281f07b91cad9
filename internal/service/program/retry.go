package program

import (
    "context"
    "errors"
    "fmt"

    "github.com/google/uuid"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/repository"
    "github.com/feichai0017/plc-program-processor/internal/utils/validator"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/metrics"
)

// 请求中的重试类型
const (
    RetryPreprocessing = "preprocessing"
    RetryDocument      = "document"
    RetryAll           = "all"
)

func retryTypes(retryType string) ([]models.FailureType, error) {
    switch retryType {
    case RetryPreprocessing:
        return []models.FailureType{models.FailureTypePreprocessing}, nil
    case RetryDocument:
        return []models.FailureType{models.FailureTypeDocumentStorage}, nil
    case RetryAll, "":
        return []models.FailureType{models.FailureTypePreprocessing, models.FailureTypeDocumentStorage}, nil
    }
    return nil, fmt.Errorf("%w: %q", ErrInvalidRetryType, retryType)
}

type RetryResult struct {
    ProgramID string                        `json:"program_id"`
    RetryType string                        `json:"retry_type"`
    Results   map[string]models.RetryCounts `json:"results"`
}

// retrySource 预处理重试需要的原始输入, 按需加载一次
type retrySource struct {
    loaded   bool
    err      error
    zipDocID string
    archive  *validator.Archive
    comments map[string]string
    entries  map[string]models.LogicEntry
}

// RetryFailures 重试程序的 pending 失败项. 单项失败回到 pending, 不影响其它项.
func (s *Service) RetryFailures(ctx context.Context, programID, userID, retryType string) (*RetryResult, error) {
    types, err := retryTypes(retryType)
    if err != nil {
        return nil, err
    }
    if retryType == "" {
        retryType = RetryAll
    }
    if _, err := s.store.Programs.Get(ctx, programID); err != nil {
        return nil, s.programNotFound(err, programID)
    }

    log := s.logger.With(logger.ProgramID(programID), logger.String("retryType", retryType))
    result := &RetryResult{
        ProgramID: programID,
        RetryType: retryType,
        Results:   make(map[string]models.RetryCounts, len(types)),
    }
    src := &retrySource{}
    var recovered int

    for _, ft := range types {
        items, err := s.ledger.GetFailures(ctx, models.ProgramSource(programID), ft, models.FailureStatusPending)
        if err != nil {
            return nil, err
        }

        var counts models.RetryCounts
        for i := range items {
            item := &items[i]
            if item.RetriesExhausted() {
                if err := s.ledger.UpdateStatus(ctx, item.ID, models.FailureStatusFailed, ""); err != nil {
                    log.Error("Failed to close exhausted failure", logger.String("failureId", item.ID), logger.Error(err))
                }
                counts.Failed++
                metrics.RetryItemsTotal.WithLabelValues(string(ft), "failed").Inc()
                continue
            }

            counts.Retried++
            if err := s.retryItem(ctx, programID, item, src); err != nil {
                counts.Failed++
                metrics.RetryItemsTotal.WithLabelValues(string(ft), "pending").Inc()
                log.Warn("Retry item failed",
                    logger.String("failureId", item.ID),
                    logger.String("file", item.FileName),
                    logger.Error(err),
                )
                if uerr := s.ledger.UpdateStatus(ctx, item.ID, models.FailureStatusPending, err.Error()); uerr != nil {
                    log.Error("Failed to revert failure to pending", logger.String("failureId", item.ID), logger.Error(uerr))
                }
                continue
            }

            if err := s.ledger.MarkResolved(ctx, item.ID, userID); err != nil {
                log.Error("Failed to resolve failure", logger.String("failureId", item.ID), logger.Error(err))
                counts.Failed++
                continue
            }
            counts.Success++
            metrics.RetryItemsTotal.WithLabelValues(string(ft), "resolved").Inc()
            if ft == models.FailureTypePreprocessing {
                recovered++
            }
        }
        result.Results[string(ft)] = counts
    }

    limit := s.config.RetryHistoryLimit
    _, err = s.store.Programs.UpdateMeta(ctx, programID, func(m *models.ProgramMetadata) {
        if recovered > 0 && m.PreprocessingSummary != nil {
            m.PreprocessingSummary.Success += recovered
            m.PreprocessingSummary.Failed -= recovered
            if m.PreprocessingSummary.Failed < 0 {
                m.PreprocessingSummary.Failed = 0
            }
            m.HasPartialFailure = m.PreprocessingSummary.Failed > 0
        }
        m.TotalSuccessfulDocuments += recovered
        m.AppendRetry(models.RetryHistoryEntry{
            RetryType: retryType,
            UserID:    userID,
            Timestamp: s.now(),
            Results:   result.Results,
        }, limit)
    })
    if err != nil {
        return nil, err
    }
    if recovered > 0 {
        s.refreshStats(ctx, programID)
    }

    log.Info("Retry finished", logger.Any("results", result.Results))
    return result, nil
}

// retryItem moves one failure to retrying and remediates it.
func (s *Service) retryItem(ctx context.Context, programID string, item *models.ProcessingFailure, src *retrySource) (err error) {
    if _, err := s.ledger.IncrementRetry(ctx, item.ID); err != nil {
        return err
    }
    defer func() {
        if r := recover(); r != nil {
            err = fmt.Errorf("retry panicked: %v", r)
        }
    }()

    switch item.FailureType {
    case models.FailureTypePreprocessing:
        return s.retryPreprocessing(ctx, programID, item, src)
    case models.FailureTypeDocumentStorage:
        return s.retryDocumentStorage(ctx, programID, item)
    }
    return fmt.Errorf("failure type %s cannot be retried", item.FailureType)
}

// retryPreprocessing 从存储中的 ZIP 和注释表重新处理单个文件
func (s *Service) retryPreprocessing(ctx context.Context, programID string, item *models.ProcessingFailure, src *retrySource) error {
    if err := s.loadRetrySource(ctx, programID, src); err != nil {
        return err
    }

    decl := validator.Declaration{
        Ordinal:  item.FileIndex,
        FileName: item.FileName,
    }
    if e, ok := src.entries[item.FileName]; ok {
        decl.LogicName = e.LogicName
        decl.Category = e.Category
    } else {
        decl.LogicName = item.DetailString("logic_name")
        decl.Category = item.DetailString("category")
    }
    if decl.FileName == "" {
        decl.FileName = item.FilePath
    }

    doc, err := s.preprocessFile(ctx, programID, src.zipDocID, src.archive, decl, src.comments)
    if err != nil {
        return err
    }
    return s.committer.CommitChunk(ctx, programID, []*models.Document{doc}, nil)
}

func (s *Service) loadRetrySource(ctx context.Context, programID string, src *retrySource) error {
    if src.loaded {
        return src.err
    }
    src.loaded = true
    src.err = func() error {
        zipDoc, err := s.store.Documents.FindByType(ctx, programID, models.DocumentTypeLadderZip)
        if err != nil {
            return fmt.Errorf("ladder ZIP document is missing: %w", err)
        }
        if zipDoc.StorageKey == "" {
            return fmt.Errorf("ladder ZIP %s was never stored", zipDoc.OriginalFilename)
        }
        data, err := s.storage.Download(ctx, zipDoc.StorageKey)
        if err != nil {
            return fmt.Errorf("failed to download ladder ZIP: %w", err)
        }
        archive, err := validator.OpenArchive(data)
        if err != nil {
            return fmt.Errorf("failed to open ladder ZIP: %w", err)
        }
        src.zipDocID = zipDoc.ID
        src.archive = archive

        // 注释表缺失时不带注释继续
        if commentDoc, err := s.store.Documents.FindByType(ctx, programID, models.DocumentTypeComment); err == nil && commentDoc.StorageKey != "" {
            if data, err := s.storage.Download(ctx, commentDoc.StorageKey); err == nil {
                if table, err := validator.ParseComments(data, s.config.CommentColumns); err == nil {
                    src.comments = table.Comments
                }
            }
        }

        entries, err := s.store.LogicEntries.List(ctx, programID)
        if err != nil {
            return err
        }
        src.entries = make(map[string]models.LogicEntry, len(entries))
        for _, e := range entries {
            src.entries[e.FileName] = e
        }
        return nil
    }()
    return src.err
}

// retryDocumentStorage 用失败记录中的存储键重建或修复文档记录
func (s *Service) retryDocumentStorage(ctx context.Context, programID string, item *models.ProcessingFailure) error {
    if item.StorageKey == "" {
        return errors.New("failure has no storage key")
    }
    location := item.DetailString("storage_location")
    docID := item.DetailString("document_id")
    now := s.now()

    if docID != "" {
        doc, err := s.store.Documents.Get(ctx, docID)
        if err == nil {
            doc.StorageKey = item.StorageKey
            if location != "" {
                doc.StorageLocation = location
            }
            doc.UpdatedAt = now
            return s.store.Documents.UpdateStorage(ctx, doc)
        }
        if !errors.Is(err, repository.ErrNotFound) {
            return err
        }
    }

    docType := models.DocumentType(item.DetailString("document_type"))
    if docType == "" {
        return errors.New("failure has no document type")
    }
    if docID == "" {
        docID = uuid.New().String()
    }
    doc := &models.Document{
        ID:               docID,
        ProgramID:        models.StringPtr(programID),
        DocumentType:     docType,
        Name:             item.FilePath,
        OriginalFilename: item.FileName,
        StorageKey:       item.StorageKey,
        StorageLocation:  location,
        CreatedAt:        now,
        UpdatedAt:        now,
    }
    return s.store.Documents.Create(ctx, doc)
}

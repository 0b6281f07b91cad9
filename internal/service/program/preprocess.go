package program

import (
    "context"
    "fmt"
    "path"
    "strings"

    "github.com/google/uuid"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/repository"
    "github.com/feichai0017/plc-program-processor/internal/service/failure"
    "github.com/feichai0017/plc-program-processor/internal/utils/validator"
    "github.com/feichai0017/plc-program-processor/pkg/converters"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/metrics"
)

const defaultChunkSize = 50

// chunkAccumulator stages logic documents and failures and commits them
// every size documents.
type chunkAccumulator struct {
    committer repository.ChunkCommitter
    programID string
    size      int
    docs      []*models.Document
    failures  []*models.ProcessingFailure
}

func newChunkAccumulator(c repository.ChunkCommitter, programID string, size int) *chunkAccumulator {
    if size <= 0 {
        size = defaultChunkSize
    }
    return &chunkAccumulator{committer: c, programID: programID, size: size}
}

func (c *chunkAccumulator) add(ctx context.Context, doc *models.Document) error {
    c.docs = append(c.docs, doc)
    if len(c.docs) >= c.size {
        return c.flush(ctx)
    }
    return nil
}

func (c *chunkAccumulator) addFailure(f *models.ProcessingFailure) {
    c.failures = append(c.failures, f)
}

func (c *chunkAccumulator) flush(ctx context.Context) error {
    if len(c.docs) == 0 && len(c.failures) == 0 {
        return nil
    }
    if err := c.committer.CommitChunk(ctx, c.programID, c.docs, c.failures); err != nil {
        return err
    }
    metrics.ChunkCommitsTotal.Inc()
    c.docs = nil
    c.failures = nil
    return nil
}

// preprocess 逐个处理分类表声明的梯形图文件, 单个文件失败只记录不中断
func (s *Service) preprocess(
    ctx context.Context,
    programID string,
    zipDoc *models.Document,
    archive *validator.Archive,
    decls []validator.Declaration,
    comments map[string]string,
) (models.PreprocessingSummary, error) {
    summary := models.PreprocessingSummary{Total: len(decls)}
    chunk := newChunkAccumulator(s.committer, programID, s.config.ChunkCommitSize)

    for _, decl := range decls {
        if err := ctx.Err(); err != nil {
            return summary, err
        }

        doc, err := s.preprocessFile(ctx, programID, zipDoc.ID, archive, decl, comments)
        if err != nil {
            summary.Failed++
            metrics.PreprocessedFilesTotal.WithLabelValues("failed").Inc()
            s.logger.Warn("Ladder file preprocessing failed",
                logger.ProgramID(programID),
                logger.String("file", decl.FileName),
                logger.Error(err),
            )
            chunk.addFailure(s.preprocessFailure(programID, archive, decl, err))
            continue
        }

        summary.Success++
        metrics.PreprocessedFilesTotal.WithLabelValues("success").Inc()
        if err := chunk.add(ctx, doc); err != nil {
            return summary, err
        }
    }

    if err := chunk.flush(ctx); err != nil {
        return summary, err
    }
    return summary, nil
}

// preprocessFile 解析一个梯形图文件, 转换为逻辑 JSON 并上传, 返回待提交的文档
func (s *Service) preprocessFile(
    ctx context.Context,
    programID, zipDocID string,
    archive *validator.Archive,
    decl validator.Declaration,
    comments map[string]string,
) (*models.Document, error) {
    name, ok := archive.Resolve(decl.FileName)
    if !ok {
        return nil, fmt.Errorf("ladder file %s is not in the archive", decl.FileName)
    }
    data, err := archive.Read(name)
    if err != nil {
        return nil, err
    }

    proc, err := s.factory.GetProcessor(name)
    if err != nil {
        return nil, err
    }
    ladder, err := proc.Process(ctx, name, data)
    if err != nil {
        return nil, err
    }

    logic, err := s.converter.Convert(ladder, converters.LogicMeta{
        ProgramID:  programID,
        FileName:   decl.FileName,
        LogicKey:   name,
        LogicName:  decl.LogicName,
        Category:   decl.Category,
        Attributes: decl.Extra,
    }, comments)
    if err != nil {
        return nil, err
    }
    payload, err := s.converter.Marshal(logic)
    if err != nil {
        return nil, err
    }

    key := s.objectKey(programID, "logic", strings.TrimSuffix(name, path.Ext(name))+".json")
    location, err := s.upload(ctx, payload, key, mimeTypeOf(".json"), models.DocumentTypeLogicJSON)
    if err != nil {
        return nil, fmt.Errorf("failed to upload logic document: %w", err)
    }

    now := s.now()
    doc := &models.Document{
        ID:               uuid.New().String(),
        ProgramID:        models.StringPtr(programID),
        DocumentType:     models.DocumentTypeLogicJSON,
        LogicKey:         models.StringPtr(name),
        Name:             logic.LogicName,
        OriginalFilename: decl.FileName,
        StorageKey:       key,
        StorageLocation:  location,
        Size:             int64(len(payload)),
        MimeType:         mimeTypeOf(".json"),
        Extension:        ".json",
        ContentHash:      contentHash(payload),
        LogicType:        models.StringPtr(decl.Category),
        SourceDocumentID: models.StringPtr(zipDocID),
        CreatedAt:        now,
        UpdatedAt:        now,
    }
    doc.SetStatus(models.DocumentStatusPreprocessed)
    return doc, nil
}

func (s *Service) preprocessFailure(programID string, archive *validator.Archive, decl validator.Declaration, cause error) *models.ProcessingFailure {
    filePath := decl.FileName
    if name, ok := archive.Resolve(decl.FileName); ok {
        filePath = name
    }
    return s.ledger.Build(failure.Record{
        Source:    models.ProgramSource(programID),
        Type:      models.FailureTypePreprocessing,
        FileIndex: decl.Ordinal,
        FilePath:  filePath,
        FileName:  decl.FileName,
        Err:       cause,
        Detail: map[string]interface{}{
            "logic_name": decl.LogicName,
            "category":   decl.Category,
        },
        MaxRetryCount: s.config.MaxRetryCount,
    })
}

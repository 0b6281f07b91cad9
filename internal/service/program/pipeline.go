package program

import (
    "context"
    "crypto/sha256"
    "encoding/hex"
    "errors"
    "fmt"
    "path"
    "strings"
    "time"

    "github.com/cenkalti/backoff/v4"
    "github.com/google/uuid"
    "golang.org/x/sync/errgroup"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/repository"
    "github.com/feichai0017/plc-program-processor/internal/service/failure"
    "github.com/feichai0017/plc-program-processor/internal/utils/validator"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/metrics"
)

var mimeTypes = map[string]string{
    ".zip":  "application/zip",
    ".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
    ".csv":  "text/csv",
    ".tsv":  "text/tab-separated-values",
    ".json": "application/json",
}

func mimeTypeOf(ext string) string {
    if m, ok := mimeTypes[ext]; ok {
        return m
    }
    return "application/octet-stream"
}

func contentHash(data []byte) string {
    sum := sha256.Sum256(data)
    return hex.EncodeToString(sum[:])
}

// artifacts 注册时上传的三个原始文件
type artifacts struct {
    template *models.Document
    zip      *models.Document
    comment  *models.Document
}

// CompleteRegistration 异步完成注册, 顺序固定: 元数据 → 文档 → 上传 → 预处理 → 索引.
// 除索引调用异常外, 任何错误都转换为 failed 状态.
func (s *Service) CompleteRegistration(ctx context.Context, job *RegistrationJob) error {
    begin := time.Now()
    metrics.PipelinesInFlight.Inc()
    defer func() {
        metrics.PipelinesInFlight.Dec()
        metrics.PipelineDuration.Observe(time.Since(begin).Seconds())
    }()

    log := s.logger.With(logger.ProgramID(job.ProgramID))
    log.Info("Registration pipeline started")

    // a. 程序记录
    prog, err := s.persistProgram(ctx, job)
    if err != nil {
        log.Error("Failed to persist program", logger.Error(err))
        return err
    }
    if prog.Status.IsTerminal() {
        log.Info("Program already finished, skipping", logger.String("status", string(prog.Status)))
        return nil
    }

    res := job.validated
    if res == nil {
        res = s.validator.Validate(job.LadderZip.file(), job.Classification.file(), job.Comment.file())
    }
    if !res.IsValid {
        return s.fail(ctx, prog.ID, fmt.Errorf("registration files are invalid: %s", strings.Join(res.Errors, "; ")))
    }
    archive, err := validator.OpenArchive(job.LadderZip.Data)
    if err != nil {
        return s.fail(ctx, prog.ID, fmt.Errorf("failed to open ladder archive: %w", err))
    }

    // b. 文档记录与结构表
    docs, err := s.createDocuments(ctx, prog.ID, job, res.Declarations)
    if err != nil {
        return s.fail(ctx, prog.ID, err)
    }

    // c. 元数据计数
    _, err = s.store.Programs.UpdateMeta(ctx, prog.ID, func(m *models.ProgramMetadata) {
        m.CommentFileCount = 1
        m.TotalExpected = len(res.Declarations)
    })
    if err != nil {
        return s.fail(ctx, prog.ID, err)
    }

    // d. 上传原始文件
    if err := s.uploadArtifacts(ctx, prog.ID, docs, job); err != nil {
        return s.fail(ctx, prog.ID, err)
    }

    // e. 预处理
    var comments map[string]string
    if res.Comments != nil {
        comments = res.Comments.Comments
    }
    summary, err := s.preprocess(ctx, prog.ID, docs.zip, archive, res.Declarations, comments)
    if err != nil {
        return s.fail(ctx, prog.ID, err)
    }

    // f. 汇总
    _, err = s.store.Programs.UpdateMeta(ctx, prog.ID, func(m *models.ProgramMetadata) {
        sum := summary
        m.PreprocessingSummary = &sum
        m.HasPartialFailure = summary.Failed > 0
        m.TotalSuccessfulDocuments = summary.Success
        m.LadderFileCount = archive.Len()
    })
    if err != nil {
        return s.fail(ctx, prog.ID, err)
    }
    log.Info("Preprocessing finished",
        logger.Int("total", summary.Total),
        logger.Int("success", summary.Success),
        logger.Int("failed", summary.Failed),
    )
    if summary.Total > 0 && summary.Success == 0 {
        return s.fail(ctx, prog.ID, fmt.Errorf("none of the %d ladder files could be preprocessed", summary.Total))
    }

    // g. 索引
    err = s.index(ctx, prog.ID)
    s.refreshStats(ctx, prog.ID)
    return err
}

// FailProgram moves a non-terminal program to failed. Errors are logged.
func (s *Service) FailProgram(ctx context.Context, programID string, cause error) {
    log := s.logger.With(logger.ProgramID(programID))
    prog, err := s.store.Programs.Get(ctx, programID)
    if err != nil {
        log.Error("Failed to load program to mark it failed",
            logger.Error(err),
            logger.String("cause", cause.Error()),
        )
        return
    }
    if prog.Status.IsTerminal() {
        return
    }
    if err := s.setStatus(ctx, prog, models.ProgramStatusFailed, cause.Error()); err != nil {
        log.Error("Failed to mark program failed", logger.Error(err), logger.String("cause", cause.Error()))
        return
    }
    log.Error("Registration failed", logger.String("cause", cause.Error()))
}

func (s *Service) fail(ctx context.Context, programID string, cause error) error {
    if errors.Is(cause, repository.ErrNotFound) {
        if live, err := s.store.Programs.Exists(ctx, programID); err == nil && !live {
            return s.abandon(ctx, programID, cause)
        }
    }
    s.FailProgram(ctx, programID, cause)
    s.refreshStats(ctx, programID)
    return cause
}

// abandon 程序在流水线运行中被删除: 停止处理, 按配置清理删除之后写入的对象
func (s *Service) abandon(ctx context.Context, programID string, cause error) error {
    log := s.logger.With(logger.ProgramID(programID))
    log.Warn("Program deleted during registration, pipeline stopped", logger.Error(cause))
    if s.config.PurgeOnDelete {
        prefix := s.objectKey(programID) + "/"
        if _, err := s.storage.DeletePrefix(ctx, prefix); err != nil {
            log.Error("Failed to purge program objects", logger.String("prefix", prefix), logger.Error(err))
        }
    }
    metrics.PipelineOutcomesTotal.WithLabelValues("deleted").Inc()
    return fmt.Errorf("registration stopped: %w", s.programNotFound(cause, programID))
}

func (s *Service) setStatus(ctx context.Context, prog *models.Program, next models.ProgramStatus, errMsg string) error {
    prev := prog.Status
    if err := prog.Transition(next, errMsg, s.now()); err != nil {
        return err
    }
    if prev == next {
        return nil
    }
    if err := s.store.Programs.UpdateStatus(ctx, prog); err != nil {
        return err
    }
    if next.IsTerminal() {
        metrics.PipelineOutcomesTotal.WithLabelValues(string(next)).Inc()
    }
    return nil
}

func (s *Service) refreshStats(ctx context.Context, programID string) {
    if _, err := s.calculator.ComputeStats(ctx, programID); err != nil {
        s.logger.Warn("Failed to refresh document stats", logger.ProgramID(programID), logger.Error(err))
    }
}

func (s *Service) persistProgram(ctx context.Context, job *RegistrationJob) (*models.Program, error) {
    now := s.now()
    prog := &models.Program{
        ID:          job.ProgramID,
        Title:       job.Title,
        Description: job.Description,
        ProcessID:   job.ProcessID,
        Status:      models.ProgramStatusPreprocessing,
        CreatedBy:   job.UserID,
        CreatedAt:   now,
        UpdatedAt:   now,
    }
    prog.SetMeta(models.ProgramMetadata{})

    created, err := s.store.Programs.CreateIfAbsent(ctx, prog)
    if err != nil {
        return nil, err
    }
    if created {
        return prog, nil
    }

    // 重复执行 (例如队列重试)
    if prog.IsDeleted {
        return nil, fmt.Errorf("program %s was deleted: %w", prog.ID, ErrProgramNotFound)
    }
    if prog.Status == models.ProgramStatusPreparing {
        if err := s.setStatus(ctx, prog, models.ProgramStatusPreprocessing, ""); err != nil {
            return nil, err
        }
    }
    return prog, nil
}

func (s *Service) createDocuments(ctx context.Context, programID string, job *RegistrationJob, decls []validator.Declaration) (*artifacts, error) {
    set := &artifacts{}
    err := s.store.Transaction(ctx, func(tx *repository.Store) error {
        var err error
        if set.template, err = s.ensureDocument(ctx, tx, programID, models.DocumentTypeTemplate, job.Classification); err != nil {
            return err
        }
        if set.zip, err = s.ensureDocument(ctx, tx, programID, models.DocumentTypeLadderZip, job.LadderZip); err != nil {
            return err
        }
        if set.comment, err = s.ensureDocument(ctx, tx, programID, models.DocumentTypeComment, job.Comment); err != nil {
            return err
        }

        entries := make([]models.LogicEntry, 0, len(decls))
        for _, d := range decls {
            e := models.LogicEntry{
                ProgramID: programID,
                Ordinal:   d.Ordinal,
                FileName:  d.FileName,
                LogicName: d.LogicName,
                Category:  d.Category,
            }
            if len(d.Extra) > 0 {
                e.Extra = make(map[string]interface{}, len(d.Extra))
                for k, v := range d.Extra {
                    e.Extra[k] = v
                }
            }
            entries = append(entries, e)
        }
        return tx.LogicEntries.Replace(ctx, programID, entries)
    })
    if err != nil {
        return nil, fmt.Errorf("failed to create documents: %w", err)
    }
    return set, nil
}

// ensureDocument 重复执行时复用已有记录
func (s *Service) ensureDocument(ctx context.Context, tx *repository.Store, programID string, typ models.DocumentType, f JobFile) (*models.Document, error) {
    existing, err := tx.Documents.FindByType(ctx, programID, typ)
    if err == nil {
        return existing, nil
    }
    if !errors.Is(err, repository.ErrNotFound) {
        return nil, err
    }

    now := s.now()
    name := path.Base(validator.NormalizePath(f.Name))
    ext := strings.ToLower(path.Ext(name))
    doc := &models.Document{
        ID:               uuid.New().String(),
        ProgramID:        models.StringPtr(programID),
        DocumentType:     typ,
        Name:             name,
        OriginalFilename: f.Name,
        Size:             int64(len(f.Data)),
        MimeType:         mimeTypeOf(ext),
        Extension:        ext,
        ContentHash:      contentHash(f.Data),
        CreatedAt:        now,
        UpdatedAt:        now,
    }
    if err := tx.Documents.Create(ctx, doc); err != nil {
        return nil, err
    }
    return doc, nil
}

// objectKey {program_prefix}/{program_id}/{file}
func (s *Service) objectKey(programID string, parts ...string) string {
    elems := append([]string{s.config.ProgramPrefix, programID}, parts...)
    return path.Join(elems...)
}

func (s *Service) uploadArtifacts(ctx context.Context, programID string, set *artifacts, job *RegistrationJob) error {
    uploads := []struct {
        doc  *models.Document
        data []byte
    }{
        {set.template, job.Classification.Data},
        {set.zip, job.LadderZip.Data},
        {set.comment, job.Comment.Data},
    }

    g, gctx := errgroup.WithContext(ctx)
    for _, u := range uploads {
        u := u
        g.Go(func() error {
            key := s.objectKey(programID, u.doc.Name)
            location, err := s.upload(gctx, u.data, key, u.doc.MimeType, u.doc.DocumentType)
            if err != nil {
                return fmt.Errorf("failed to upload %s: %w", u.doc.OriginalFilename, err)
            }

            u.doc.StorageKey = key
            u.doc.StorageLocation = location
            u.doc.UpdatedAt = s.now()
            if err := s.store.Documents.UpdateStorage(gctx, u.doc); err != nil {
                if errors.Is(err, repository.ErrNotFound) {
                    return err
                }
                // 对象已上传, 只是记录没更新, 交给重试修复
                _, ferr := s.ledger.CreateFailure(gctx, failure.Record{
                    Source:     models.ProgramSource(programID),
                    Type:       models.FailureTypeDocumentStorage,
                    FileName:   u.doc.OriginalFilename,
                    FilePath:   u.doc.Name,
                    StorageKey: key,
                    Err:        err,
                    Detail: map[string]interface{}{
                        "document_id":      u.doc.ID,
                        "document_type":    string(u.doc.DocumentType),
                        "storage_location": location,
                    },
                    MaxRetryCount: s.config.MaxRetryCount,
                })
                return ferr
            }
            return nil
        })
    }
    return g.Wait()
}

// upload 带退避重试的上传
func (s *Service) upload(ctx context.Context, data []byte, key, contentType string, docType models.DocumentType) (string, error) {
    var location string
    attempt := 0
    op := func() error {
        attempt++
        loc, err := s.storage.Upload(ctx, data, key, contentType)
        if err != nil {
            return err
        }
        location = loc
        return nil
    }
    notify := func(err error, wait time.Duration) {
        metrics.UploadRetriesTotal.WithLabelValues(string(docType)).Inc()
        s.logger.Warn("Upload failed, retrying",
            logger.String("key", key),
            logger.Int("attempt", attempt),
            logger.Duration("wait", wait),
            logger.Error(err),
        )
    }
    if err := backoff.RetryNotify(op, backoff.WithContext(s.uploadBackOff(), ctx), notify); err != nil {
        return "", err
    }
    return location, nil
}

func (s *Service) index(ctx context.Context, programID string) error {
    prog, err := s.store.Programs.Get(ctx, programID)
    if err != nil {
        return s.fail(ctx, programID, err)
    }
    if err := s.setStatus(ctx, prog, models.ProgramStatusIndexing, ""); err != nil {
        return s.fail(ctx, programID, err)
    }

    docs, err := s.store.Documents.ListByProgram(ctx, programID, models.DocumentTypeLogicJSON)
    if err != nil {
        return s.fail(ctx, programID, err)
    }
    locations := make([]string, 0, len(docs))
    for _, d := range docs {
        if d.StorageLocation != "" {
            locations = append(locations, d.StorageLocation)
        }
    }

    started := s.now()
    job := &models.IndexingJob{
        ID:            uuid.New().String(),
        ProgramID:     programID,
        Status:        models.IndexingJobRunning,
        ArtifactCount: len(locations),
        StartedAt:     &started,
    }
    if err := s.store.IndexingJobs.Create(ctx, job); err != nil {
        return s.fail(ctx, programID, err)
    }

    ok, callErr := s.indexer.RequestIndexing(ctx, programID, locations)

    finished := s.now()
    job.FinishedAt = &finished
    log := s.logger.With(logger.ProgramID(programID), logger.String("indexingJobId", job.ID))

    switch {
    case callErr != nil:
        job.Status = models.IndexingJobFailed
        job.Error = callErr.Error()
        s.saveJob(ctx, job)
        if err := s.setStatus(ctx, prog, models.ProgramStatusIndexingFailed, callErr.Error()); err != nil {
            log.Error("Failed to mark program indexing_failed", logger.Error(err))
        }
        log.Error("Indexing call failed", logger.Error(callErr))
        return fmt.Errorf("%w: %w", ErrIndexingFailed, callErr)

    case !ok:
        job.Status = models.IndexingJobFailed
        job.Error = "indexing service reported failure"
        s.saveJob(ctx, job)
        if err := s.setStatus(ctx, prog, models.ProgramStatusFailed, job.Error); err != nil {
            log.Error("Failed to mark program failed", logger.Error(err))
        }
        log.Warn("Indexing reported failure")
        return nil
    }

    job.Status = models.IndexingJobSucceeded
    s.saveJob(ctx, job)
    _, err = s.store.Programs.UpdateMeta(ctx, programID, func(m *models.ProgramMetadata) {
        m.VectorIndexed = true
        m.IndexingJobID = job.ID
    })
    if err != nil {
        return s.fail(ctx, programID, err)
    }
    if err := s.setStatus(ctx, prog, models.ProgramStatusCompleted, ""); err != nil {
        return s.fail(ctx, programID, err)
    }
    log.Info("Registration completed", logger.Int("artifacts", len(locations)))
    return nil
}

func (s *Service) saveJob(ctx context.Context, job *models.IndexingJob) {
    if err := s.store.IndexingJobs.Save(ctx, job); err != nil {
        s.logger.Error("Failed to save indexing job", logger.String("indexingJobId", job.ID), logger.Error(err))
    }
}

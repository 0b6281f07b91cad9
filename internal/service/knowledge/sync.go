// Package knowledge keeps the embedding state of documents in step with the
// knowledge base.
package knowledge

import (
    "context"
    "errors"
    "fmt"
    "sync"

    "golang.org/x/sync/errgroup"

    "github.com/feichai0017/plc-program-processor/config"
    kb "github.com/feichai0017/plc-program-processor/internal/agent/knowledge"
    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/repository"
    "github.com/feichai0017/plc-program-processor/internal/service/progress"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/metrics"
)

const defaultConcurrency = 4

var (
    ErrProgramNotFound   = fmt.Errorf("program not found: %w", repository.ErrNotFound)
    ErrReferenceNotFound = fmt.Errorf("knowledge reference not found: %w", repository.ErrNotFound)
    ErrNoRepository      = errors.New("no knowledge repository configured")
)

// SyncResult 一次同步的计数
type SyncResult struct {
    Checked     int `json:"checked"`
    Embedded    int `json:"embedded"`
    NotEmbedded int `json:"not_embedded"`
    Failed      int `json:"failed"`
}

type Synchronizer interface {
    SyncProgram(ctx context.Context, programID string) (*SyncResult, error)
    SyncReference(ctx context.Context, referenceID string) (*SyncResult, error)
}

type Service struct {
    store       *repository.Store
    client      kb.Client
    calculator  *progress.Calculator
    repoID      string
    concurrency int
    logger      logger.Logger
}

func NewService(store *repository.Store, client kb.Client, calc *progress.Calculator, cfg *config.KnowledgeConfig, log logger.Logger) *Service {
    return &Service{
        store:       store,
        client:      client,
        calculator:  calc,
        repoID:      cfg.ProgramRepoID,
        concurrency: defaultConcurrency,
        logger:      log.Named("knowledge-sync"),
    }
}

// SyncProgram 同步程序的 logic_json 文档, 完成后刷新文档统计
func (s *Service) SyncProgram(ctx context.Context, programID string) (*SyncResult, error) {
    if _, err := s.store.Programs.Get(ctx, programID); err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return nil, fmt.Errorf("program %s: %w", programID, ErrProgramNotFound)
        }
        return nil, err
    }
    if s.repoID == "" {
        return nil, ErrNoRepository
    }

    docs, err := s.store.Documents.ListByProgram(ctx, programID, models.DocumentTypeLogicJSON)
    if err != nil {
        return nil, err
    }
    res := s.sync(ctx, s.repoID, docs, s.logger.With(logger.ProgramID(programID)))

    if s.calculator != nil {
        if _, err := s.calculator.ComputeStats(ctx, programID); err != nil {
            s.logger.Warn("Failed to refresh stats after sync", logger.ProgramID(programID), logger.Error(err))
        }
    }
    return res, nil
}

func (s *Service) SyncReference(ctx context.Context, referenceID string) (*SyncResult, error) {
    ref, err := s.store.KnowledgeRefs.Get(ctx, referenceID)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return nil, fmt.Errorf("reference %s: %w", referenceID, ErrReferenceNotFound)
        }
        return nil, err
    }
    if ref.RepoID == "" {
        return nil, ErrNoRepository
    }

    docs, err := s.store.Documents.ListByKnowledgeReference(ctx, referenceID)
    if err != nil {
        return nil, err
    }
    return s.sync(ctx, ref.RepoID, docs, s.logger.With(logger.String("referenceId", referenceID))), nil
}

func fileID(d *models.Document) string {
    if d.ExternalFileID != "" {
        return d.ExternalFileID
    }
    return d.ID
}

// sync 先批量查询, 批量失败时逐个 GET
func (s *Service) sync(ctx context.Context, repoID string, docs []models.Document, log logger.Logger) *SyncResult {
    res := &SyncResult{}
    if len(docs) == 0 {
        return res
    }

    ids := make([]string, 0, len(docs))
    for i := range docs {
        ids = append(ids, fileID(&docs[i]))
    }

    statuses, err := s.client.BatchStatus(ctx, repoID, ids)
    if err != nil {
        log.Warn("Batch status failed, falling back to single lookups", logger.Error(err))
        statuses = s.lookupEach(ctx, repoID, ids, log)
    }

    for i := range docs {
        doc := &docs[i]
        res.Checked++
        st, ok := statuses[fileID(doc)]
        if !ok || st == nil {
            res.Failed++
            metrics.KnowledgeSyncTotal.WithLabelValues("failed").Inc()
            continue
        }

        var next models.DocumentStatus
        switch {
        case st.IsEmbedded:
            next = models.DocumentStatusEmbedded
        case st.Found:
            next = models.DocumentStatusEmbedding
        }
        if !doc.DocumentType.TracksStatus() {
            next = ""
        }
        if err := s.store.Documents.UpdateEmbedding(ctx, doc.ID, st.IsEmbedded, st.VectorCount, next); err != nil {
            log.Error("Failed to update embedding state", logger.String("documentId", doc.ID), logger.Error(err))
            res.Failed++
            metrics.KnowledgeSyncTotal.WithLabelValues("failed").Inc()
            continue
        }

        if st.IsEmbedded {
            res.Embedded++
            metrics.KnowledgeSyncTotal.WithLabelValues("embedded").Inc()
        } else {
            res.NotEmbedded++
            metrics.KnowledgeSyncTotal.WithLabelValues("not_embedded").Inc()
        }
    }

    log.Info("Knowledge sync finished",
        logger.Int("checked", res.Checked),
        logger.Int("embedded", res.Embedded),
        logger.Int("notEmbedded", res.NotEmbedded),
        logger.Int("failed", res.Failed),
    )
    return res
}

// lookupEach 失败或超时的文件不出现在结果中
func (s *Service) lookupEach(ctx context.Context, repoID string, ids []string, log logger.Logger) map[string]*kb.Status {
    var mu sync.Mutex
    out := make(map[string]*kb.Status, len(ids))

    g, gctx := errgroup.WithContext(ctx)
    g.SetLimit(s.concurrency)
    for _, id := range ids {
        id := id
        g.Go(func() error {
            st, err := s.client.DocumentStatus(gctx, repoID, id)
            if err != nil {
                log.Warn("Document status lookup failed", logger.String("fileId", id), logger.Error(err))
                return nil
            }
            mu.Lock()
            out[id] = st
            mu.Unlock()
            return nil
        })
    }
    _ = g.Wait()
    return out
}

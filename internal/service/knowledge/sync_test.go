package knowledge

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/feichai0017/plc-program-processor/config"
    kb "github.com/feichai0017/plc-program-processor/internal/agent/knowledge"
    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/repository"
    "github.com/feichai0017/plc-program-processor/internal/service/progress"
    "github.com/feichai0017/plc-program-processor/internal/testutil"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

type fakeClient struct {
    mu       sync.Mutex
    batchErr error
    statuses map[string]*kb.Status
    errs     map[string]error
    gets     int
    repos    []string
}

func (c *fakeClient) DocumentStatus(_ context.Context, repoID, fileID string) (*kb.Status, error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.gets++
    c.repos = append(c.repos, repoID)
    if err := c.errs[fileID]; err != nil {
        return nil, err
    }
    if st, ok := c.statuses[fileID]; ok {
        return st, nil
    }
    return &kb.Status{FileID: fileID}, nil
}

func (c *fakeClient) BatchStatus(_ context.Context, repoID string, fileIDs []string) (map[string]*kb.Status, error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.repos = append(c.repos, repoID)
    if c.batchErr != nil {
        return nil, c.batchErr
    }
    out := make(map[string]*kb.Status, len(fileIDs))
    for _, id := range fileIDs {
        if st, ok := c.statuses[id]; ok {
            out[id] = st
        } else {
            out[id] = &kb.Status{FileID: id}
        }
    }
    return out, nil
}

func seedProgram(t *testing.T, store *repository.Store, id string, logicIDs ...string) {
    t.Helper()
    ctx := context.Background()
    prog := &models.Program{ID: id, Title: "t", Status: models.ProgramStatusCompleted}
    prog.SetMeta(models.ProgramMetadata{})
    _, err := store.Programs.CreateIfAbsent(ctx, prog)
    require.NoError(t, err)

    docs := make([]*models.Document, 0, len(logicIDs))
    for _, docID := range logicIDs {
        d := &models.Document{
            ID:           docID,
            ProgramID:    models.StringPtr(id),
            DocumentType: models.DocumentTypeLogicJSON,
            LogicKey:     models.StringPtr(docID + ".csv"),
            StorageKey:   "programs/" + id + "/logic/" + docID + ".json",
            CreatedAt:    time.Now(),
            UpdatedAt:    time.Now(),
        }
        d.SetStatus(models.DocumentStatusPreprocessed)
        docs = append(docs, d)
    }
    require.NoError(t, store.Documents.UpsertLogic(ctx, docs))
}

func newService(t *testing.T, client kb.Client) (*Service, *repository.Store) {
    t.Helper()
    store := testutil.NewStore(t)
    log := logger.NewNop()
    cfg := &config.KnowledgeConfig{ProgramRepoID: "plc-programs"}
    return NewService(store, client, progress.NewCalculator(store, log), cfg, log), store
}

func TestSyncProgramUpdatesDocuments(t *testing.T) {
    client := &fakeClient{statuses: map[string]*kb.Status{
        "d1": {FileID: "d1", Found: true, IsEmbedded: true, VectorCount: 12},
        "d2": {FileID: "d2", Found: true},
    }}
    svc, store := newService(t, client)
    seedProgram(t, store, "P1", "d1", "d2", "d3")
    ctx := context.Background()

    res, err := svc.SyncProgram(ctx, "P1")
    require.NoError(t, err)
    assert.Equal(t, &SyncResult{Checked: 3, Embedded: 1, NotEmbedded: 2}, res)
    assert.Equal(t, []string{"plc-programs"}, client.repos)

    d1, err := store.Documents.Get(ctx, "d1")
    require.NoError(t, err)
    assert.True(t, d1.IsEmbedded)
    assert.Equal(t, 12, d1.VectorCount)
    assert.Equal(t, models.DocumentStatusEmbedded, d1.StatusValue())

    d2, err := store.Documents.Get(ctx, "d2")
    require.NoError(t, err)
    assert.Equal(t, models.DocumentStatusEmbedding, d2.StatusValue())

    // 404 不改变状态
    d3, err := store.Documents.Get(ctx, "d3")
    require.NoError(t, err)
    assert.False(t, d3.IsEmbedded)
    assert.Equal(t, models.DocumentStatusPreprocessed, d3.StatusValue())

    prog, err := store.Programs.Get(ctx, "P1")
    require.NoError(t, err)
    require.NotNil(t, prog.Meta().DocumentStats)
    assert.Equal(t, 1, prog.Meta().DocumentStats.Embedded)
}

func TestSyncFallsBackToSingleLookups(t *testing.T) {
    client := &fakeClient{
        batchErr: errors.New("502 bad gateway"),
        statuses: map[string]*kb.Status{
            "d1": {FileID: "d1", Found: true, IsEmbedded: true, VectorCount: 3},
        },
        errs: map[string]error{"d2": context.DeadlineExceeded},
    }
    svc, store := newService(t, client)
    seedProgram(t, store, "P1", "d1", "d2")

    res, err := svc.SyncProgram(context.Background(), "P1")
    require.NoError(t, err)
    assert.Equal(t, &SyncResult{Checked: 2, Embedded: 1, Failed: 1}, res)
    assert.Equal(t, 2, client.gets)
}

func TestSyncReference(t *testing.T) {
    client := &fakeClient{statuses: map[string]*kb.Status{
        "ext-1": {FileID: "ext-1", Found: true, IsEmbedded: true, VectorCount: 40},
    }}
    svc, store := newService(t, client)
    ctx := context.Background()

    ref := &models.KnowledgeReference{ID: "ref-1", Name: "Manual", Kind: models.KnowledgeManual, RepoID: "manuals"}
    require.NoError(t, store.KnowledgeRefs.Create(ctx, ref))
    doc := &models.Document{
        ID:                   "k1",
        DocumentType:         models.DocumentTypeKnowledgeManual,
        Name:                 "manual.pdf",
        ExternalFileID:       "ext-1",
        KnowledgeReferenceID: models.StringPtr("ref-1"),
    }
    require.NoError(t, store.Documents.Create(ctx, doc))

    res, err := svc.SyncReference(ctx, "ref-1")
    require.NoError(t, err)
    assert.Equal(t, &SyncResult{Checked: 1, Embedded: 1}, res)
    assert.Equal(t, []string{"manuals"}, client.repos)

    got, err := store.Documents.Get(ctx, "k1")
    require.NoError(t, err)
    assert.Equal(t, 40, got.VectorCount)
    assert.Equal(t, models.DocumentStatusEmbedded, got.StatusValue())
}

func TestSyncNotFound(t *testing.T) {
    svc, _ := newService(t, &fakeClient{})
    ctx := context.Background()

    _, err := svc.SyncProgram(ctx, "missing")
    assert.ErrorIs(t, err, ErrProgramNotFound)
    assert.ErrorIs(t, err, repository.ErrNotFound)

    _, err = svc.SyncReference(ctx, "missing")
    assert.ErrorIs(t, err, ErrReferenceNotFound)
}

func TestSyncEmptyProgram(t *testing.T) {
    client := &fakeClient{}
    svc, store := newService(t, client)
    seedProgram(t, store, "P1")

    res, err := svc.SyncProgram(context.Background(), "P1")
    require.NoError(t, err)
    assert.Equal(t, &SyncResult{}, res)
    assert.Empty(t, client.repos)
}

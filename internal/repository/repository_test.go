package repository_test

import (
    "context"
    "testing"
    "time"

    "github.com/google/uuid"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/repository"
    "github.com/feichai0017/plc-program-processor/internal/testutil"
)

func seedProgram(t *testing.T, store *repository.Store, id string) *models.Program {
    t.Helper()
    p := &models.Program{ID: id, Title: "Line A", Status: models.ProgramStatusPreprocessing}
    created, err := store.Programs.CreateIfAbsent(context.Background(), p)
    require.NoError(t, err)
    require.True(t, created)
    return p
}

func logicDoc(programID, key string) *models.Document {
    d := &models.Document{
        ID:           uuid.NewString(),
        ProgramID:    models.StringPtr(programID),
        DocumentType: models.DocumentTypeLogicJSON,
        LogicKey:     models.StringPtr(key),
        LogicType:    models.StringPtr("sequence"),
        Name:         key + ".json",
    }
    d.SetStatus(models.DocumentStatusPreprocessed)
    return d
}

func TestProgramCreateIfAbsentIsIdempotent(t *testing.T) {
    ctx := context.Background()
    store := testutil.NewStore(t)
    p := seedProgram(t, store, "P1_20240101000000")

    meta := p.Meta()
    meta.TotalExpected = 4
    p.SetMeta(meta)
    require.NoError(t, store.Programs.Save(ctx, p))

    again := &models.Program{ID: p.ID, Title: "ignored"}
    created, err := store.Programs.CreateIfAbsent(ctx, again)
    require.NoError(t, err)
    assert.False(t, created)
    assert.Equal(t, "Line A", again.Title)
    assert.Equal(t, 4, again.Meta().TotalExpected)
}

func TestProgramSoftDelete(t *testing.T) {
    ctx := context.Background()
    store := testutil.NewStore(t)
    p := seedProgram(t, store, "P1")

    require.NoError(t, store.Programs.SoftDelete(ctx, p.ID, time.Now()))

    _, err := store.Programs.Get(ctx, p.ID)
    assert.ErrorIs(t, err, repository.ErrNotFound)
    exists, err := store.Programs.Exists(ctx, p.ID)
    require.NoError(t, err)
    assert.False(t, exists)
    inUse, err := store.Programs.IDInUse(ctx, p.ID)
    require.NoError(t, err)
    assert.True(t, inUse)

    assert.ErrorIs(t, store.Programs.SoftDelete(ctx, p.ID, time.Now()), repository.ErrNotFound)
}

func TestUpsertLogicDoesNotDuplicate(t *testing.T) {
    ctx := context.Background()
    store := testutil.NewStore(t)
    p := seedProgram(t, store, "P1")

    require.NoError(t, store.Documents.UpsertLogic(ctx, []*models.Document{logicDoc(p.ID, "L1.csv"), logicDoc(p.ID, "L2.csv")}))

    rerun := logicDoc(p.ID, "L1.csv")
    rerun.StorageKey = "programs/P1/logic/L1.json"
    require.NoError(t, store.Documents.UpsertLogic(ctx, []*models.Document{rerun}))

    docs, err := store.Documents.ListByProgram(ctx, p.ID, models.DocumentTypeLogicJSON)
    require.NoError(t, err)
    require.Len(t, docs, 2)
    assert.Equal(t, "programs/P1/logic/L1.json", docs[0].StorageKey)

    processed, err := store.Documents.CountProcessed(ctx, p.ID)
    require.NoError(t, err)
    assert.EqualValues(t, 2, processed)
}

func TestCountTypesPresentIsPerType(t *testing.T) {
    ctx := context.Background()
    store := testutil.NewStore(t)
    p := seedProgram(t, store, "P1")

    for _, typ := range []models.DocumentType{models.DocumentTypeLadderZip, models.DocumentTypeLadderZip, models.DocumentTypeComment} {
        require.NoError(t, store.Documents.Create(ctx, &models.Document{
            ID: uuid.NewString(), ProgramID: models.StringPtr(p.ID), DocumentType: typ, Name: string(typ),
        }))
    }

    n, err := store.Documents.CountTypesPresent(ctx, p.ID, models.RequiredUploadTypes)
    require.NoError(t, err)
    assert.Equal(t, 2, n)
}

func TestCommitChunkIsAtomic(t *testing.T) {
    ctx := context.Background()
    store := testutil.NewStore(t)
    p := seedProgram(t, store, "P1")

    failure := &models.ProcessingFailure{
        ID:            uuid.NewString(),
        FailureType:   models.FailureTypePreprocessing,
        FileName:      "L3.csv",
        ErrorMessage:  "bad file",
        MaxRetryCount: 3,
        Status:        models.FailureStatusPending,
    }
    failure.SetSource(models.ProgramSource(p.ID))
    require.NoError(t, store.CommitChunk(ctx, p.ID, []*models.Document{logicDoc(p.ID, "L1.csv")}, []*models.ProcessingFailure{failure}))

    // duplicate failure id rolls back the documents of the same chunk
    err := store.CommitChunk(ctx, p.ID, []*models.Document{logicDoc(p.ID, "L2.csv")}, []*models.ProcessingFailure{failure})
    require.Error(t, err)

    docs, err := store.Documents.ListByProgram(ctx, p.ID)
    require.NoError(t, err)
    assert.Len(t, docs, 1)

    failures, err := store.Failures.List(ctx, repository.FailureFilter{Source: models.ProgramSource(p.ID)})
    require.NoError(t, err)
    assert.Len(t, failures, 1)
}

func TestCommitChunkRejectsDeletedProgram(t *testing.T) {
    ctx := context.Background()
    store := testutil.NewStore(t)
    p := seedProgram(t, store, "P1")
    require.NoError(t, store.Programs.SoftDelete(ctx, p.ID, time.Now()))

    err := store.CommitChunk(ctx, p.ID, []*models.Document{logicDoc(p.ID, "L1.csv")}, nil)
    assert.ErrorIs(t, err, repository.ErrNotFound)

    var count int64
    require.NoError(t, store.DB.Model(&models.Document{}).Where("program_id = ?", p.ID).Count(&count).Error)
    assert.Zero(t, count)

    err = store.CommitChunk(ctx, "missing", nil, nil)
    assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdatesSkipDeletedProgram(t *testing.T) {
    ctx := context.Background()
    store := testutil.NewStore(t)
    p := seedProgram(t, store, "P1")
    doc := logicDoc(p.ID, "L1.csv")
    require.NoError(t, store.Documents.Create(ctx, doc))

    _, err := store.Programs.UpdateMeta(ctx, p.ID, func(m *models.ProgramMetadata) { m.TotalExpected = 2 })
    require.NoError(t, err)

    require.NoError(t, store.Programs.SoftDelete(ctx, p.ID, time.Now()))
    _, err = store.Documents.SoftDeleteByProgram(ctx, p.ID, time.Now())
    require.NoError(t, err)

    p.Status = models.ProgramStatusFailed
    assert.ErrorIs(t, store.Programs.UpdateStatus(ctx, p), repository.ErrNotFound)
    _, err = store.Programs.UpdateMeta(ctx, p.ID, func(m *models.ProgramMetadata) { m.TotalExpected = 9 })
    assert.ErrorIs(t, err, repository.ErrNotFound)

    doc.StorageKey = "programs/P1/logic/L1.json"
    assert.ErrorIs(t, store.Documents.UpdateStorage(ctx, doc), repository.ErrNotFound)

    var stored models.Program
    require.NoError(t, store.DB.Where("id = ?", p.ID).First(&stored).Error)
    assert.Equal(t, models.ProgramStatusPreprocessing, stored.Status)
    assert.Equal(t, 2, stored.Meta().TotalExpected)
}

func TestFailureFilterAndUpdate(t *testing.T) {
    ctx := context.Background()
    store := testutil.NewStore(t)
    src := models.ProgramSource("P1")

    for i, typ := range []models.FailureType{models.FailureTypePreprocessing, models.FailureTypeDocumentStorage} {
        f := &models.ProcessingFailure{ID: uuid.NewString(), FailureType: typ, FileIndex: i, MaxRetryCount: 3, Status: models.FailureStatusPending}
        f.SetSource(src)
        require.NoError(t, store.Failures.Create(ctx, f))
    }
    other := &models.ProcessingFailure{ID: uuid.NewString(), FailureType: models.FailureTypePreprocessing, MaxRetryCount: 3, Status: models.FailureStatusPending}
    other.SetSource(models.KnowledgeReferenceSource("P1"))
    require.NoError(t, store.Failures.Create(ctx, other))

    list, err := store.Failures.List(ctx, repository.FailureFilter{Source: src, FailureType: models.FailureTypePreprocessing})
    require.NoError(t, err)
    require.Len(t, list, 1)

    require.NoError(t, store.Failures.Update(ctx, list[0].ID, map[string]interface{}{"status": models.FailureStatusResolved}))
    got, err := store.Failures.Get(ctx, list[0].ID)
    require.NoError(t, err)
    assert.Equal(t, models.FailureStatusResolved, got.Status)

    n, err := store.Failures.MarkDeletedBySource(ctx, src)
    require.NoError(t, err)
    assert.EqualValues(t, 2, n)

    remaining, err := store.Failures.List(ctx, repository.FailureFilter{Source: models.KnowledgeReferenceSource("P1")})
    require.NoError(t, err)
    assert.Equal(t, models.FailureStatusPending, remaining[0].Status)

    assert.ErrorIs(t, store.Failures.Update(ctx, "missing", map[string]interface{}{"status": models.FailureStatusFailed}), repository.ErrNotFound)
}

func TestLogicEntriesReplace(t *testing.T) {
    ctx := context.Background()
    store := testutil.NewStore(t)

    require.NoError(t, store.LogicEntries.Replace(ctx, "P1", []models.LogicEntry{{Ordinal: 0, FileName: "L1.csv"}, {Ordinal: 1, FileName: "L2.csv"}}))
    require.NoError(t, store.LogicEntries.Replace(ctx, "P1", []models.LogicEntry{{Ordinal: 0, FileName: "L1.csv"}}))

    n, err := store.LogicEntries.Count(ctx, "P1")
    require.NoError(t, err)
    assert.EqualValues(t, 1, n)
}

func TestMasterDataHierarchy(t *testing.T) {
    ctx := context.Background()
    store := testutil.NewStore(t)

    require.NoError(t, store.MasterData.CreatePlant(ctx, &models.Plant{
        ID: "PL1", Name: "Plant 1",
        Processes: []models.Process{
            {ID: "PR2", Name: "Painting", SortOrder: 2},
            {ID: "PR1", Name: "Welding", SortOrder: 1, Lines: []models.Line{{ID: "LN1", Name: "Line 1"}}},
        },
    }))

    plants, err := store.MasterData.Hierarchy(ctx)
    require.NoError(t, err)
    require.Len(t, plants, 1)
    require.Len(t, plants[0].Processes, 2)
    assert.Equal(t, "Welding", plants[0].Processes[0].Name)
    assert.Len(t, plants[0].Processes[0].Lines, 1)

    ok, err := store.MasterData.ProcessExists(ctx, "PR1")
    require.NoError(t, err)
    assert.True(t, ok)
}

package progress

import (
    "context"
    "testing"

    "github.com/google/uuid"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/testutil"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

func TestPercentageBounds(t *testing.T) {
    // phase entry with zero progress
    assert.Equal(t, 0, *Percentage(PhaseUploading, models.DocumentStats{TotalUpload: 3}))
    assert.Equal(t, 31, *Percentage(PhaseProcessing, models.DocumentStats{TotalProcessed: 10}))
    assert.Equal(t, 61, *Percentage(PhaseEmbedding, models.DocumentStats{TotalProcessed: 10}))

    // zero expected files gives the flat floor
    assert.Equal(t, 31, *Percentage(PhaseProcessing, models.DocumentStats{Processed: 4}))
    assert.Equal(t, 61, *Percentage(PhaseEmbedding, models.DocumentStats{Embedded: 4}))

    assert.Nil(t, Percentage("", models.DocumentStats{}))
    assert.Nil(t, Percentage("completed", models.DocumentStats{}))
}

func TestPercentageMonotonic(t *testing.T) {
    prev := -1
    for u := 0; u <= 5; u++ {
        p := *Percentage(PhaseUploading, models.DocumentStats{TotalUpload: 3, Uploaded: u})
        assert.GreaterOrEqual(t, p, prev)
        assert.True(t, p >= 0 && p <= 30, "uploading %d", p)
        prev = p
    }
    assert.Equal(t, 30, prev)

    for _, total := range []int{1, 7, 101} {
        prevP, prevE := -1, -1
        for n := 0; n <= total+2; n++ {
            p := *Percentage(PhaseProcessing, models.DocumentStats{TotalProcessed: total, Processed: n})
            e := *Percentage(PhaseEmbedding, models.DocumentStats{TotalProcessed: total, Embedded: n})
            assert.True(t, p >= 31 && p <= 61, "processing %d", p)
            assert.True(t, e >= 61 && e <= 100, "embedding %d", e)
            assert.GreaterOrEqual(t, p, prevP)
            assert.GreaterOrEqual(t, e, prevE)
            prevP, prevE = p, e
        }
        assert.Equal(t, 61, prevP)
        assert.Equal(t, 100, prevE)
    }
}

func TestPhaseFor(t *testing.T) {
    assert.Equal(t, PhaseUploading, PhaseFor(models.ProgramStatusPreparing, models.DocumentStats{}))
    assert.Equal(t, PhaseUploading, PhaseFor(models.ProgramStatusPreprocessing, models.DocumentStats{Uploaded: 2}))
    assert.Equal(t, PhaseProcessing, PhaseFor(models.ProgramStatusPreprocessing, models.DocumentStats{Uploaded: 3}))
    assert.Equal(t, PhaseEmbedding, PhaseFor(models.ProgramStatusIndexing, models.DocumentStats{}))
    assert.Equal(t, Phase(""), PhaseFor(models.ProgramStatusCompleted, models.DocumentStats{}))
}

func TestComputeStats(t *testing.T) {
    ctx := context.Background()
    store := testutil.NewStore(t)
    log := logger.NewTestLogger()
    calc := NewCalculator(store, log)

    prog := &models.Program{ID: "P1", Title: "t", Status: models.ProgramStatusPreprocessing}
    prog.SetMeta(models.ProgramMetadata{TotalExpected: 4})
    _, err := store.Programs.CreateIfAbsent(ctx, prog)
    require.NoError(t, err)

    newDoc := func(typ models.DocumentType, key string, status models.DocumentStatus, embedded bool) {
        d := &models.Document{ID: uuid.New().String(), ProgramID: models.StringPtr("P1"), DocumentType: typ, IsEmbedded: embedded}
        if key != "" {
            d.LogicKey = models.StringPtr(key)
            d.LogicType = models.StringPtr("sequence")
        }
        d.SetStatus(status)
        require.NoError(t, store.Documents.Create(ctx, d))
    }
    newDoc(models.DocumentTypeLadderZip, "", "", false)
    newDoc(models.DocumentTypeComment, "", "", false)
    newDoc(models.DocumentTypeLogicJSON, "L1.csv", models.DocumentStatusPreprocessed, false)
    newDoc(models.DocumentTypeLogicJSON, "L2.csv", models.DocumentStatusEmbedded, true)
    newDoc(models.DocumentTypeLogicJSON, "L3.csv", models.DocumentStatusFailed, false)

    stats, err := calc.ComputeStats(ctx, "P1")
    require.NoError(t, err)
    assert.Equal(t, models.DocumentStats{TotalUpload: 3, TotalProcessed: 4, Uploaded: 2, Processed: 2, Embedded: 1}, *stats)

    // structural table wins over total_expected
    require.NoError(t, store.LogicEntries.Replace(ctx, "P1", []models.LogicEntry{
        {ProgramID: "P1", Ordinal: 1, FileName: "L1.csv"},
        {ProgramID: "P1", Ordinal: 2, FileName: "L2.csv"},
    }))
    stats, err = calc.ComputeStats(ctx, "P1")
    require.NoError(t, err)
    assert.Equal(t, 2, stats.TotalProcessed)

    saved, err := store.Programs.Get(ctx, "P1")
    require.NoError(t, err)
    meta := saved.Meta()
    require.NotNil(t, meta.DocumentStats)
    assert.Equal(t, 2, meta.DocumentStats.TotalProcessed)
    assert.NotNil(t, meta.DocumentStatsUpdatedAt)
    assert.Equal(t, 4, meta.TotalExpected)
}

func TestComputeStatsLogsZeroExpected(t *testing.T) {
    ctx := context.Background()
    store := testutil.NewStore(t)
    log := logger.NewTestLogger()

    _, err := store.Programs.CreateIfAbsent(ctx, &models.Program{ID: "P0", Title: "t", Status: models.ProgramStatusIndexing})
    require.NoError(t, err)

    stats, err := NewCalculator(store, log).ComputeStats(ctx, "P0")
    require.NoError(t, err)
    assert.Equal(t, 0, stats.TotalProcessed)
    assert.True(t, log.Contains("WARN", "no expected logic files"))
}

func TestStatsIsReadOnly(t *testing.T) {
    ctx := context.Background()
    store := testutil.NewStore(t)

    prog := &models.Program{ID: "P2", Title: "t", Status: models.ProgramStatusPreprocessing}
    prog.SetMeta(models.ProgramMetadata{
        TotalExpected:        3,
        HasPartialFailure:    true,
        PreprocessingSummary: &models.PreprocessingSummary{Total: 3, Success: 2, Failed: 1},
    })
    _, err := store.Programs.CreateIfAbsent(ctx, prog)
    require.NoError(t, err)
    before, err := store.Programs.Get(ctx, "P2")
    require.NoError(t, err)

    stats, err := NewCalculator(store, logger.NewNop()).Stats(ctx, "P2")
    require.NoError(t, err)
    assert.Equal(t, 3, stats.TotalProcessed)

    after, err := store.Programs.Get(ctx, "P2")
    require.NoError(t, err)
    assert.Nil(t, after.Meta().DocumentStats)
    assert.Equal(t, before.Meta(), after.Meta())
    assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
}

// Package progress derives display phases, document statistics and the
// progress percentage of a program.
package progress

import (
    "context"
    "math"
    "time"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/repository"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

// Phase is a display-only sub label of a running program.
type Phase string

const (
    PhaseUploading  Phase = "uploading"
    PhaseProcessing Phase = "processing"
    PhaseEmbedding  Phase = "embedding"
)

// TotalUpload is the number of artifacts every registration uploads.
var TotalUpload = len(models.RequiredUploadTypes)

// 各阶段的百分比区间
const (
    uploadingMax    = 30
    processingFloor = 31
    processingSpan  = 30
    embeddingFloor  = 61
    embeddingSpan   = 39
)

// Percentage maps a phase and the document stats to 0..100. Phases other
// than uploading, processing and embedding have no percentage.
func Percentage(phase Phase, s models.DocumentStats) *int {
    var p int
    switch phase {
    case PhaseUploading:
        total := s.TotalUpload
        if total <= 0 {
            total = TotalUpload
        }
        p = int(math.Round(ratio(s.Uploaded, total) * uploadingMax))
    case PhaseProcessing:
        p = processingFloor
        if s.TotalProcessed > 0 {
            p += int(math.Round(ratio(s.Processed, s.TotalProcessed) * processingSpan))
        }
    case PhaseEmbedding:
        p = embeddingFloor
        if s.TotalProcessed > 0 {
            p += int(math.Round(ratio(s.Embedded, s.TotalProcessed) * embeddingSpan))
        }
    default:
        return nil
    }
    return &p
}

// ratio clamps n/d to [0, 1].
func ratio(n, d int) float64 {
    if n <= 0 || d <= 0 {
        return 0
    }
    if n >= d {
        return 1
    }
    return float64(n) / float64(d)
}

// PhaseFor derives the display phase from the stored status.
func PhaseFor(status models.ProgramStatus, s models.DocumentStats) Phase {
    switch status {
    case models.ProgramStatusPreparing:
        return PhaseUploading
    case models.ProgramStatusPreprocessing:
        if s.Uploaded < TotalUpload {
            return PhaseUploading
        }
        return PhaseProcessing
    case models.ProgramStatusIndexing:
        return PhaseEmbedding
    }
    return ""
}

type Calculator struct {
    store  *repository.Store
    logger logger.Logger
    now    func() time.Time
}

func NewCalculator(store *repository.Store, log logger.Logger) *Calculator {
    return &Calculator{store: store, logger: log, now: time.Now}
}

// ComputeStats counts the program's documents and persists the result as
// document_stats on the program metadata.
func (c *Calculator) ComputeStats(ctx context.Context, programID string) (*models.DocumentStats, error) {
    stats, err := c.Stats(ctx, programID)
    if err != nil {
        return nil, err
    }

    now := c.now()
    _, err = c.store.Programs.UpdateMeta(ctx, programID, func(m *models.ProgramMetadata) {
        copied := *stats
        m.DocumentStats = &copied
        m.DocumentStatsUpdatedAt = &now
    })
    if err != nil {
        // 统计结果仍然可用
        c.logger.Warn("Failed to persist document stats",
            logger.ProgramID(programID),
            logger.Error(err),
        )
    }
    return stats, nil
}

// Stats counts the program's documents without writing anything.
func (c *Calculator) Stats(ctx context.Context, programID string) (*models.DocumentStats, error) {
    program, err := c.store.Programs.Get(ctx, programID)
    if err != nil {
        return nil, err
    }

    uploaded, err := c.store.Documents.CountTypesPresent(ctx, programID, models.RequiredUploadTypes)
    if err != nil {
        return nil, err
    }
    processed, err := c.store.Documents.CountProcessed(ctx, programID)
    if err != nil {
        return nil, err
    }
    embedded, err := c.store.Documents.CountEmbedded(ctx, programID)
    if err != nil {
        return nil, err
    }
    totalProcessed, err := c.totalProcessed(ctx, program)
    if err != nil {
        return nil, err
    }

    return &models.DocumentStats{
        TotalUpload:    TotalUpload,
        TotalProcessed: totalProcessed,
        Uploaded:       uploaded,
        Processed:      int(processed),
        Embedded:       int(embedded),
    }, nil
}

// totalProcessed prefers the structural table and falls back to the stored
// total_expected.
func (c *Calculator) totalProcessed(ctx context.Context, program *models.Program) (int, error) {
    count, err := c.store.LogicEntries.Count(ctx, program.ID)
    if err != nil {
        return 0, err
    }
    if count > 0 {
        return int(count), nil
    }

    expected := program.Meta().TotalExpected
    if expected == 0 && program.Status != models.ProgramStatusPreparing {
        c.logger.Warn("Program has no expected logic files",
            logger.ProgramID(program.ID),
            logger.String("status", string(program.Status)),
        )
    }
    return expected, nil
}

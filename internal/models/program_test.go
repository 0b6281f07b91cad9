package models

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestProgramTransitionForwardOnly(t *testing.T) {
    now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
    p := &Program{ID: "P1_20240501100000", Status: ProgramStatusPreparing}

    require.NoError(t, p.Transition(ProgramStatusPreprocessing, "", now))
    require.NoError(t, p.Transition(ProgramStatusIndexing, "", now))
    require.NoError(t, p.Transition(ProgramStatusCompleted, "", now))
    require.NotNil(t, p.CompletedAt)
    assert.Equal(t, now, *p.CompletedAt)

    for _, back := range []ProgramStatus{ProgramStatusPreparing, ProgramStatusPreprocessing, ProgramStatusIndexing, ProgramStatusFailed} {
        err := p.Transition(back, "boom", now.Add(time.Hour))
        assert.ErrorIs(t, err, ErrInvalidTransition, "completed -> %s", back)
        assert.Equal(t, ProgramStatusCompleted, p.Status)
    }

    // same-state is a no-op and keeps the original completion time
    require.NoError(t, p.Transition(ProgramStatusCompleted, "", now.Add(time.Hour)))
    assert.Equal(t, now, *p.CompletedAt)
}

func TestProgramTransitionFailureBranches(t *testing.T) {
    now := time.Now()

    tests := []struct {
        from    ProgramStatus
        to      ProgramStatus
        allowed bool
    }{
        {ProgramStatusPreparing, ProgramStatusFailed, true},
        {ProgramStatusPreprocessing, ProgramStatusFailed, true},
        {ProgramStatusIndexing, ProgramStatusFailed, true},
        {ProgramStatusIndexing, ProgramStatusIndexingFailed, true},
        {ProgramStatusPreprocessing, ProgramStatusIndexingFailed, false},
        {ProgramStatusIndexing, ProgramStatusPreprocessing, false},
        {ProgramStatusFailed, ProgramStatusPreprocessing, false},
        {ProgramStatusIndexingFailed, ProgramStatusCompleted, false},
        {ProgramStatusPreparing, ProgramStatus("bogus"), false},
    }

    for _, tt := range tests {
        t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
            p := &Program{Status: tt.from}
            err := p.Transition(tt.to, "captured", now)
            if tt.allowed {
                require.NoError(t, err)
                assert.Equal(t, tt.to, p.Status)
                assert.Equal(t, "captured", p.ErrorMsg)
                assert.Nil(t, p.CompletedAt)
            } else {
                assert.ErrorIs(t, err, ErrInvalidTransition)
                assert.Equal(t, tt.from, p.Status)
            }
        })
    }
}

func TestProgramTransitionClearsErrorMessage(t *testing.T) {
    p := &Program{Status: ProgramStatusPreparing, ErrorMsg: "stale"}
    require.NoError(t, p.Transition(ProgramStatusPreprocessing, "ignored", time.Now()))
    assert.Empty(t, p.ErrorMsg)
}

func TestProgramMetadataRoundTrip(t *testing.T) {
    p := &Program{}
    m := p.Meta()
    m.TotalExpected = 7
    m.PreprocessingSummary = &PreprocessingSummary{Total: 7, Success: 6, Failed: 1}
    p.SetMeta(m)

    assert.Equal(t, 7, p.Meta().TotalExpected)
    assert.Equal(t, 1, p.Meta().PreprocessingSummary.Failed)
}

func TestAppendRetryKeepsNewest(t *testing.T) {
    var m ProgramMetadata
    for i := 0; i < 5; i++ {
        m.AppendRetry(RetryHistoryEntry{RetryType: string(rune('a' + i))}, 3)
    }
    require.Len(t, m.RetryHistory, 3)
    assert.Equal(t, "c", m.RetryHistory[0].RetryType)
    assert.Equal(t, "e", m.RetryHistory[2].RetryType)
}

func TestDocumentStatusOnlyForTrackedTypes(t *testing.T) {
    zip := &Document{DocumentType: DocumentTypeLadderZip}
    zip.SetStatus(DocumentStatusPreprocessed)
    assert.Nil(t, zip.Status)
    assert.Equal(t, DocumentStatus(""), zip.StatusValue())

    logic := &Document{DocumentType: DocumentTypeLogicJSON}
    logic.SetStatus(DocumentStatusPreprocessed)
    assert.Equal(t, DocumentStatusPreprocessed, logic.StatusValue())
}

package models

import (
    "errors"
    "fmt"
    "time"

    "gorm.io/datatypes"
)

// ProgramStatus 程序注册生命周期状态
type ProgramStatus string

const (
    ProgramStatusPreparing      ProgramStatus = "preparing"
    ProgramStatusPreprocessing  ProgramStatus = "preprocessing"
    ProgramStatusIndexing       ProgramStatus = "indexing"
    ProgramStatusCompleted      ProgramStatus = "completed"
    ProgramStatusFailed         ProgramStatus = "failed"
    ProgramStatusIndexingFailed ProgramStatus = "indexing_failed"
)

// ErrInvalidTransition is returned when a status change would move a
// Program backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid program status transition")

// forward order of the non-failure states
var statusRank = map[ProgramStatus]int{
    ProgramStatusPreparing:     0,
    ProgramStatusPreprocessing: 1,
    ProgramStatusIndexing:      2,
    ProgramStatusCompleted:     3,
}

func (s ProgramStatus) IsTerminal() bool {
    switch s {
    case ProgramStatusCompleted, ProgramStatusFailed, ProgramStatusIndexingFailed:
        return true
    }
    return false
}

func (s ProgramStatus) IsFailure() bool {
    return s == ProgramStatusFailed || s == ProgramStatusIndexingFailed
}

func (s ProgramStatus) Valid() bool {
    _, ok := statusRank[s]
    return ok || s.IsFailure()
}

// CanTransitionTo reports whether s may move to next. Same-state moves are
// allowed and are no-ops.
func (s ProgramStatus) CanTransitionTo(next ProgramStatus) bool {
    if s == next {
        return true
    }
    if s.IsTerminal() || !next.Valid() {
        return false
    }
    switch next {
    case ProgramStatusFailed:
        return true
    case ProgramStatusIndexingFailed:
        return s == ProgramStatusIndexing
    }
    return statusRank[next] > statusRank[s]
}

// Program 一次 PLC 程序注册单元
type Program struct {
    ID          string                             `gorm:"primaryKey;size:128" json:"id"`
    Title       string                             `gorm:"size:255;not null" json:"title"`
    Description string                             `gorm:"type:text" json:"description,omitempty"`
    ProcessID   string                             `gorm:"size:64;index" json:"processId,omitempty"`
    Status      ProgramStatus                      `gorm:"size:32;index;not null" json:"status"`
    ErrorMsg    string                             `gorm:"type:text" json:"errorMessage,omitempty"`
    Metadata    datatypes.JSONType[ProgramMetadata] `json:"metadata"`
    CreatedBy   string                             `gorm:"size:64" json:"createdBy,omitempty"`
    CreatedAt   time.Time                          `json:"createdAt"`
    UpdatedAt   time.Time                          `json:"updatedAt"`
    CompletedAt *time.Time                         `json:"completedAt,omitempty"`
    IsDeleted   bool                               `gorm:"index;not null;default:false" json:"isDeleted"`
    DeletedAt   *time.Time                         `json:"deletedAt,omitempty"`
}

func (Program) TableName() string {
    return "programs"
}

// Transition applies the state machine to p. completed_at is stamped once
// on entry to completed; the error message is set on failure states and
// cleared otherwise.
func (p *Program) Transition(next ProgramStatus, errMsg string, now time.Time) error {
    if !p.Status.CanTransitionTo(next) {
        return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
    }
    if p.Status == next {
        return nil
    }

    p.Status = next
    if next.IsFailure() {
        p.ErrorMsg = errMsg
    } else {
        p.ErrorMsg = ""
    }
    if next == ProgramStatusCompleted && p.CompletedAt == nil {
        completed := now
        p.CompletedAt = &completed
    }
    p.UpdatedAt = now
    return nil
}

// Meta returns a copy of the typed metadata.
func (p *Program) Meta() ProgramMetadata {
    return p.Metadata.Data()
}

// SetMeta replaces the typed metadata.
func (p *Program) SetMeta(m ProgramMetadata) {
    p.Metadata = datatypes.NewJSONType(m)
}

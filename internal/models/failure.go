package models

import (
    "fmt"
    "time"

    "gorm.io/datatypes"
)

// SourceKind tags the owner of a ProcessingFailure.
type SourceKind string

const (
    SourceProgram            SourceKind = "program"
    SourceKnowledgeReference SourceKind = "knowledge_reference"
)

// FailureSource is the tagged owner reference. It is stored as the
// source_type / source_id column pair.
type FailureSource struct {
    Kind SourceKind
    ID   string
}

func ProgramSource(programID string) FailureSource {
    return FailureSource{Kind: SourceProgram, ID: programID}
}

func KnowledgeReferenceSource(referenceID string) FailureSource {
    return FailureSource{Kind: SourceKnowledgeReference, ID: referenceID}
}

func (s FailureSource) String() string {
    return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

type FailureType string

const (
    FailureTypePreprocessing   FailureType = "preprocessing"
    FailureTypeDocumentStorage FailureType = "document_storage"
    FailureTypeVectorIndexing  FailureType = "vector_indexing"
)

type FailureStatus string

const (
    FailureStatusPending  FailureStatus = "pending"
    FailureStatusRetrying FailureStatus = "retrying"
    FailureStatusResolved FailureStatus = "resolved"
    FailureStatusFailed   FailureStatus = "failed"
    FailureStatusDeleted  FailureStatus = "deleted"
)

func (s FailureStatus) IsTerminal() bool {
    return s == FailureStatusResolved || s == FailureStatusFailed || s == FailureStatusDeleted
}

// ProcessingFailure 记录单个文件在一次处理中的失败, 支持后续重试
type ProcessingFailure struct {
    ID            string            `gorm:"primaryKey;size:36" json:"id"`
    SourceType    SourceKind        `gorm:"size:32;not null;index:idx_failures_source,priority:1" json:"sourceType"`
    SourceID      string            `gorm:"size:128;not null;index:idx_failures_source,priority:2" json:"sourceId"`
    FailureType   FailureType       `gorm:"size:32;not null;index" json:"failureType"`
    FileIndex     int               `json:"fileIndex"`
    FilePath      string            `gorm:"size:1024" json:"filePath,omitempty"`
    FileName      string            `gorm:"size:512" json:"fileName,omitempty"`
    StorageKey    string            `gorm:"size:1024" json:"storageKey,omitempty"`
    ErrorMessage  string            `gorm:"type:text" json:"errorMessage"`
    ErrorDetail   datatypes.JSONMap `json:"errorDetail,omitempty"`
    RetryCount    int               `gorm:"not null;default:0" json:"retryCount"`
    MaxRetryCount int               `gorm:"not null;default:3" json:"maxRetryCount"`
    Status        FailureStatus     `gorm:"size:20;not null;index" json:"status"`
    ResolvedBy    string            `gorm:"size:64" json:"resolvedBy,omitempty"`
    ResolvedAt    *time.Time        `json:"resolvedAt,omitempty"`
    CreatedAt     time.Time         `json:"createdAt"`
    UpdatedAt     time.Time         `json:"updatedAt"`
}

func (ProcessingFailure) TableName() string {
    return "processing_failures"
}

func (f *ProcessingFailure) Source() FailureSource {
    return FailureSource{Kind: f.SourceType, ID: f.SourceID}
}

func (f *ProcessingFailure) SetSource(s FailureSource) {
    f.SourceType = s.Kind
    f.SourceID = s.ID
}

// RetriesExhausted reports whether another retry would exceed the limit.
func (f *ProcessingFailure) RetriesExhausted() bool {
    return f.RetryCount >= f.MaxRetryCount
}

// DetailString reads a string value from the structured error detail.
func (f *ProcessingFailure) DetailString(key string) string {
    if f.ErrorDetail == nil {
        return ""
    }
    if v, ok := f.ErrorDetail[key].(string); ok {
        return v
    }
    return ""
}

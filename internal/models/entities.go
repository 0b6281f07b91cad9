package models

import (
    "time"

    "gorm.io/datatypes"
)

// LogicEntry is one logic file declared by the classification spreadsheet.
// The per-program row count is the number of per-logic artifacts expected.
type LogicEntry struct {
    ID        uint              `gorm:"primaryKey" json:"id"`
    ProgramID string            `gorm:"size:128;not null;index" json:"programId"`
    Ordinal   int               `json:"ordinal"`
    FileName  string            `gorm:"size:512;not null" json:"fileName"`
    LogicName string            `gorm:"size:255" json:"logicName"`
    Category  string            `gorm:"size:128" json:"category"`
    Extra     datatypes.JSONMap `json:"extra,omitempty"`
    CreatedAt time.Time         `json:"createdAt"`
}

func (LogicEntry) TableName() string {
    return "program_logic_entries"
}

type IndexingJobStatus string

const (
    IndexingJobPending   IndexingJobStatus = "pending"
    IndexingJobRunning   IndexingJobStatus = "running"
    IndexingJobSucceeded IndexingJobStatus = "succeeded"
    IndexingJobFailed    IndexingJobStatus = "failed"
)

type IndexingJob struct {
    ID            string            `gorm:"primaryKey;size:36" json:"id"`
    ProgramID     string            `gorm:"size:128;not null;index" json:"programId"`
    Status        IndexingJobStatus `gorm:"size:20;not null" json:"status"`
    ArtifactCount int               `json:"artifactCount"`
    Error         string            `gorm:"type:text" json:"error,omitempty"`
    StartedAt     *time.Time        `json:"startedAt,omitempty"`
    FinishedAt    *time.Time        `json:"finishedAt,omitempty"`
    CreatedAt     time.Time         `json:"createdAt"`
    UpdatedAt     time.Time         `json:"updatedAt"`
}

func (IndexingJob) TableName() string {
    return "indexing_jobs"
}

type KnowledgeKind string

const (
    KnowledgeManual   KnowledgeKind = "manual"
    KnowledgeGlossary KnowledgeKind = "glossary"
    KnowledgePLC      KnowledgeKind = "plc"
)

// KnowledgeReference 外部知识库实体 (手册 / 术语表 / PLC 语料)
type KnowledgeReference struct {
    ID        string        `gorm:"primaryKey;size:36" json:"id"`
    Name      string        `gorm:"size:255;not null" json:"name"`
    Kind      KnowledgeKind `gorm:"size:32;not null" json:"kind"`
    RepoID    string        `gorm:"size:255;not null" json:"repoId"`
    CreatedAt time.Time     `json:"createdAt"`
    UpdatedAt time.Time     `json:"updatedAt"`
}

func (KnowledgeReference) TableName() string {
    return "knowledge_references"
}

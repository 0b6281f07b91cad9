package models

import (
    "time"
)

// DocumentType 文档类型
type DocumentType string

const (
    DocumentTypeLadderZip         DocumentType = "ladder_zip"
    DocumentTypeLogicJSON         DocumentType = "logic_json"
    DocumentTypeComment           DocumentType = "comment_csv"
    DocumentTypeTemplate          DocumentType = "template_xlsx"
    DocumentTypeKnowledgeManual   DocumentType = "knowledge_manual"
    DocumentTypeKnowledgeGlossary DocumentType = "knowledge_glossary"
    DocumentTypeKnowledgePLC      DocumentType = "knowledge_plc"
)

// RequiredUploadTypes are the three artifacts every registration uploads.
var RequiredUploadTypes = []DocumentType{
    DocumentTypeLadderZip,
    DocumentTypeComment,
    DocumentTypeTemplate,
}

// TracksStatus reports whether documents of this type carry a pipeline status.
func (t DocumentType) TracksStatus() bool {
    switch t {
    case DocumentTypeLogicJSON, DocumentTypeKnowledgeManual, DocumentTypeKnowledgeGlossary, DocumentTypeKnowledgePLC:
        return true
    }
    return false
}

// DocumentStatus 仅用于 logic_json 和知识库类型
type DocumentStatus string

const (
    DocumentStatusPreprocessed DocumentStatus = "preprocessed"
    DocumentStatusEmbedding    DocumentStatus = "embedding"
    DocumentStatusEmbedded     DocumentStatus = "embedded"
    DocumentStatusFailed       DocumentStatus = "failed"
)

// ProcessedStatuses are the statuses a per-logic document holds once
// preprocessing has produced it.
var ProcessedStatuses = []DocumentStatus{
    DocumentStatusPreprocessed,
    DocumentStatusEmbedding,
    DocumentStatusEmbedded,
}

type Document struct {
    ID                   string          `gorm:"primaryKey;size:36" json:"id"`
    ProgramID            *string         `gorm:"size:128;index;uniqueIndex:idx_documents_logic,priority:1" json:"programId,omitempty"`
    DocumentType         DocumentType    `gorm:"size:32;not null;index;uniqueIndex:idx_documents_logic,priority:2" json:"documentType"`
    LogicKey             *string         `gorm:"size:512;uniqueIndex:idx_documents_logic,priority:3" json:"logicKey,omitempty"`
    Name                 string          `gorm:"size:255" json:"name"`
    OriginalFilename     string          `gorm:"size:512" json:"originalFilename"`
    StorageKey           string          `gorm:"size:1024" json:"storageKey,omitempty"`
    StorageLocation      string          `gorm:"size:1024" json:"storageLocation,omitempty"`
    Size                 int64           `json:"size"`
    MimeType             string          `gorm:"size:128" json:"mimeType,omitempty"`
    Extension            string          `gorm:"size:16" json:"extension,omitempty"`
    ContentHash          string          `gorm:"size:64;index" json:"contentHash,omitempty"`
    Status               *DocumentStatus `gorm:"size:32;index" json:"status,omitempty"`
    LogicType            *string         `gorm:"size:128" json:"logicType,omitempty"`
    IsEmbedded           bool            `gorm:"not null;default:false" json:"isEmbedded"`
    VectorCount          int             `gorm:"not null;default:0" json:"vectorCount"`
    ExternalFileID       string          `gorm:"size:255" json:"externalFileId,omitempty"`
    SourceDocumentID     *string         `gorm:"size:36;index" json:"sourceDocumentId,omitempty"`
    KnowledgeReferenceID *string         `gorm:"size:36;index" json:"knowledgeReferenceId,omitempty"`
    IsDeleted            bool            `gorm:"index;not null;default:false" json:"isDeleted"`
    DeletedAt            *time.Time      `json:"deletedAt,omitempty"`
    CreatedAt            time.Time       `json:"createdAt"`
    UpdatedAt            time.Time       `json:"updatedAt"`
}

func (Document) TableName() string {
    return "documents"
}

// SetStatus sets the pipeline status, ignoring types that do not track one.
func (d *Document) SetStatus(s DocumentStatus) {
    if !d.DocumentType.TracksStatus() {
        d.Status = nil
        return
    }
    d.Status = &s
}

// StatusValue returns the status or "" when unset.
func (d *Document) StatusValue() DocumentStatus {
    if d.Status == nil {
        return ""
    }
    return *d.Status
}

// StringPtr is a small helper for the optional string columns.
func StringPtr(s string) *string {
    return &s
}

package models

import "time"

// ProgramMetadata is the typed form of the free-form metadata bag kept on a
// Program. JSON names match the persisted shape.
type ProgramMetadata struct {
    LadderFileCount          int                   `json:"ladder_file_count"`
    CommentFileCount         int                   `json:"comment_file_count"`
    TotalExpected            int                   `json:"total_expected"`
    TotalSuccessfulDocuments int                   `json:"total_successful_documents"`
    HasPartialFailure        bool                  `json:"has_partial_failure"`
    VectorIndexed            bool                  `json:"vector_indexed"`
    IndexingJobID            string                `json:"indexing_job_id,omitempty"`
    PreprocessingSummary     *PreprocessingSummary `json:"preprocessing_summary,omitempty"`
    DocumentStats            *DocumentStats        `json:"document_stats,omitempty"`
    DocumentStatsUpdatedAt   *time.Time            `json:"document_stats_updated_at,omitempty"`
    RetryHistory             []RetryHistoryEntry   `json:"retry_history,omitempty"`
}

type PreprocessingSummary struct {
    Total   int `json:"total"`
    Success int `json:"success"`
    Failed  int `json:"failed"`
}

type DocumentStats struct {
    TotalUpload    int `json:"total_upload"`
    TotalProcessed int `json:"total_processed"`
    Uploaded       int `json:"uploaded"`
    Processed      int `json:"processed"`
    Embedded       int `json:"embedded"`
}

// RetryCounts is the outcome of one retry invocation for one failure type.
type RetryCounts struct {
    Retried int `json:"retried"`
    Success int `json:"success"`
    Failed  int `json:"failed"`
}

type RetryHistoryEntry struct {
    RetryType string                 `json:"retry_type"`
    UserID    string                 `json:"user_id,omitempty"`
    Timestamp time.Time              `json:"timestamp"`
    Results   map[string]RetryCounts `json:"results"`
}

// AppendRetry adds e and keeps only the newest limit entries.
func (m *ProgramMetadata) AppendRetry(e RetryHistoryEntry, limit int) {
    m.RetryHistory = append(m.RetryHistory, e)
    if limit > 0 && len(m.RetryHistory) > limit {
        m.RetryHistory = append([]RetryHistoryEntry(nil), m.RetryHistory[len(m.RetryHistory)-limit:]...)
    }
}

package config

import (
    "fmt"
    "log"
    "os"
    "sync"

    "gopkg.in/yaml.v3"
)

var (
    pipelineOnce   sync.Once
    pipelineConfig *PipelineConfig
)

// PipelineConfig tunes the registration pipeline. Values come from the
// environment and may be overridden by the YAML file at PIPELINE_CONFIG_FILE.
type PipelineConfig struct {
    ConfigFile string `env:"PIPELINE_CONFIG_FILE" yaml:"-"`

    ProgramPrefix     string `env:"PROGRAM_STORAGE_PREFIX" envDefault:"programs" yaml:"program_prefix"`
    ChunkCommitSize   int    `env:"CHUNK_COMMIT_SIZE" envDefault:"50" yaml:"chunk_commit_size"`
    MaxRetryCount     int    `env:"FAILURE_MAX_RETRY_COUNT" envDefault:"3" yaml:"max_retry_count"`
    RetryHistoryLimit int    `env:"RETRY_HISTORY_LIMIT" envDefault:"20" yaml:"retry_history_limit"`
    UploadAttempts    int    `env:"UPLOAD_ATTEMPTS" envDefault:"3" yaml:"upload_attempts"`
    PurgeOnDelete     bool   `env:"PURGE_OBJECTS_ON_DELETE" envDefault:"false" yaml:"purge_on_delete"`

    ClassificationColumns []string `env:"CLASSIFICATION_REQUIRED_COLUMNS" envSeparator:"," envDefault:"file_name,logic_name,category" yaml:"classification_columns"`
    CommentColumns        []string `env:"COMMENT_REQUIRED_COLUMNS" envSeparator:"," envDefault:"device,comment" yaml:"comment_columns"`
}

func GetPipelineConfig() *PipelineConfig {
    pipelineOnce.Do(func() {
        cfg := parse(&PipelineConfig{})
        if cfg.ConfigFile != "" {
            if err := cfg.LoadFile(cfg.ConfigFile); err != nil {
                log.Printf("Warning: %v, using environment values", err)
            }
        }
        pipelineConfig = cfg
    })
    return pipelineConfig
}

// LoadFile overlays the non-zero values of a YAML file onto c.
func (c *PipelineConfig) LoadFile(path string) error {
    data, err := os.ReadFile(path)
    if err != nil {
        return fmt.Errorf("failed to read pipeline config %s: %w", path, err)
    }

    var overlay PipelineConfig
    if err := yaml.Unmarshal(data, &overlay); err != nil {
        return fmt.Errorf("failed to parse pipeline config %s: %w", path, err)
    }

    if overlay.ProgramPrefix != "" {
        c.ProgramPrefix = overlay.ProgramPrefix
    }
    if overlay.ChunkCommitSize > 0 {
        c.ChunkCommitSize = overlay.ChunkCommitSize
    }
    if overlay.MaxRetryCount > 0 {
        c.MaxRetryCount = overlay.MaxRetryCount
    }
    if overlay.RetryHistoryLimit > 0 {
        c.RetryHistoryLimit = overlay.RetryHistoryLimit
    }
    if overlay.UploadAttempts > 0 {
        c.UploadAttempts = overlay.UploadAttempts
    }
    if overlay.PurgeOnDelete {
        c.PurgeOnDelete = true
    }
    if len(overlay.ClassificationColumns) > 0 {
        c.ClassificationColumns = overlay.ClassificationColumns
    }
    if len(overlay.CommentColumns) > 0 {
        c.CommentColumns = overlay.CommentColumns
    }
    return nil
}

// DefaultPipelineConfig returns the built-in defaults without touching the
// environment.
func DefaultPipelineConfig() *PipelineConfig {
    return &PipelineConfig{
        ProgramPrefix:         "programs",
        ChunkCommitSize:       50,
        MaxRetryCount:         3,
        RetryHistoryLimit:     20,
        UploadAttempts:        3,
        ClassificationColumns: []string{"file_name", "logic_name", "category"},
        CommentColumns:        []string{"device", "comment"},
    }
}

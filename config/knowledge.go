package config

import (
    "sync"
    "time"
)

var (
    knowledgeOnce   sync.Once
    knowledgeConfig *KnowledgeConfig
)

// KnowledgeConfig covers both outbound AI services: the vector indexer and
// the knowledge status API.
type KnowledgeConfig struct {
    IndexingEndpoint string        `env:"INDEXING_ENDPOINT"`
    IndexingTimeout  time.Duration `env:"INDEXING_TIMEOUT" envDefault:"30s"`
    BaseURL          string        `env:"KNOWLEDGE_API_BASE_URL"`
    APIKey           string        `env:"KNOWLEDGE_API_KEY"`
    Timeout          time.Duration `env:"KNOWLEDGE_API_TIMEOUT" envDefault:"30s"`
    // ProgramRepoID is the knowledge repository holding per-logic documents.
    ProgramRepoID string `env:"KNOWLEDGE_PROGRAM_REPO_ID" envDefault:"plc-programs"`
}

func GetKnowledgeConfig() *KnowledgeConfig {
    knowledgeOnce.Do(func() {
        knowledgeConfig = parse(&KnowledgeConfig{})
    })
    return knowledgeConfig
}

// Package indexing submits processed logic documents to the vector
// indexing service.
package indexing

import (
    "bytes"
    "context"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/goccy/go-json"

    "github.com/feichai0017/plc-program-processor/config"
    "github.com/feichai0017/plc-program-processor/internal/agent/resilience"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/metrics"
)

// Indexer requests indexing of a program's artifacts. A false result is a
// failure reported by the service; an error means the call itself failed.
type Indexer interface {
    RequestIndexing(ctx context.Context, programID string, locations []string) (bool, error)
}

// New returns the HTTP indexer, or the stub when no endpoint is configured.
func New(cfg *config.KnowledgeConfig, log logger.Logger) Indexer {
    if cfg.IndexingEndpoint == "" {
        log.Warn("INDEXING_ENDPOINT not set, using stub indexer")
        return &StubIndexer{logger: log}
    }
    return NewHTTPIndexer(cfg.IndexingEndpoint, cfg.APIKey, cfg.IndexingTimeout, log)
}

type indexRequest struct {
    ProgramID string   `json:"program_id"`
    Artifacts []string `json:"artifacts"`
}

type indexResponse struct {
    Success bool   `json:"success"`
    JobID   string `json:"job_id,omitempty"`
    Message string `json:"message,omitempty"`
}

type HTTPIndexer struct {
    endpoint string
    apiKey   string
    timeout  time.Duration
    client   *http.Client
    breaker  *resilience.Breaker[*indexResponse]
    logger   logger.Logger
}

func NewHTTPIndexer(endpoint, apiKey string, timeout time.Duration, log logger.Logger) *HTTPIndexer {
    if timeout <= 0 {
        timeout = 30 * time.Second
    }
    return &HTTPIndexer{
        endpoint: strings.TrimRight(endpoint, "/"),
        apiKey:   apiKey,
        timeout:  timeout,
        client:   &http.Client{},
        breaker:  resilience.NewBreaker[*indexResponse]("vector-indexer", log),
        logger:   log,
    }
}

func (i *HTTPIndexer) RequestIndexing(ctx context.Context, programID string, locations []string) (bool, error) {
    ctx, cancel := context.WithTimeout(ctx, i.timeout)
    defer cancel()

    resp, err := i.breaker.Execute(func() (*indexResponse, error) {
        return i.post(ctx, indexRequest{ProgramID: programID, Artifacts: locations})
    })
    if err != nil {
        result := "error"
        if resilience.IsRejected(err) {
            result = "rejected"
        }
        metrics.IndexingRequestsTotal.WithLabelValues(result).Inc()
        return false, fmt.Errorf("indexing request for %s failed: %w", programID, err)
    }

    if resp.Success {
        metrics.IndexingRequestsTotal.WithLabelValues("success").Inc()
    } else {
        metrics.IndexingRequestsTotal.WithLabelValues("reported_failure").Inc()
        i.logger.Warn("Indexing service reported failure",
            logger.ProgramID(programID),
            logger.String("message", resp.Message),
        )
    }
    return resp.Success, nil
}

func (i *HTTPIndexer) post(ctx context.Context, body indexRequest) (*indexResponse, error) {
    payload, err := json.Marshal(body)
    if err != nil {
        return nil, fmt.Errorf("failed to marshal index request: %w", err)
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.endpoint+"/index", bytes.NewReader(payload))
    if err != nil {
        return nil, fmt.Errorf("failed to create request: %w", err)
    }
    req.Header.Set("Content-Type", "application/json")
    if i.apiKey != "" {
        req.Header.Set("Authorization", "Bearer "+i.apiKey)
    }

    res, err := i.client.Do(req)
    if err != nil {
        return nil, err
    }
    defer res.Body.Close()

    data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
    if err != nil {
        return nil, fmt.Errorf("failed to read index response: %w", err)
    }
    if res.StatusCode < 200 || res.StatusCode >= 300 {
        return nil, fmt.Errorf("indexing service returned %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
    }

    var out indexResponse
    if err := json.Unmarshal(data, &out); err != nil {
        return nil, fmt.Errorf("failed to decode index response: %w", err)
    }
    return &out, nil
}

// StubIndexer accepts every request.
type StubIndexer struct {
    logger logger.Logger
}

func (s *StubIndexer) RequestIndexing(ctx context.Context, programID string, locations []string) (bool, error) {
    s.logger.Info("Stub indexing accepted",
        logger.ProgramID(programID),
        logger.Int("artifacts", len(locations)),
    )
    metrics.IndexingRequestsTotal.WithLabelValues("success").Inc()
    return true, nil
}

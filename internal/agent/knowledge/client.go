// Package knowledge is a small client for the knowledge base API used to
// check whether documents have been embedded.
package knowledge

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/goccy/go-json"

    "github.com/feichai0017/plc-program-processor/config"
    "github.com/feichai0017/plc-program-processor/internal/agent/resilience"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

// ErrNotConfigured is returned when no base URL is set.
var ErrNotConfigured = errors.New("knowledge API is not configured")

// Status is the embedding state of one document. Found is false when the
// API answered 404.
type Status struct {
    FileID      string `json:"file_id"`
    Found       bool   `json:"-"`
    IsEmbedded  bool   `json:"is_embedded"`
    VectorCount int    `json:"vector_count"`
}

// Client is the interface the synchronizer depends on.
type Client interface {
    DocumentStatus(ctx context.Context, repoID, fileID string) (*Status, error)
    BatchStatus(ctx context.Context, repoID string, fileIDs []string) (map[string]*Status, error)
}

type HTTPClient struct {
    baseURL string
    apiKey  string
    timeout time.Duration
    client  *http.Client
    breaker *resilience.Breaker[[]byte]
    logger  logger.Logger
}

func NewClient(cfg *config.KnowledgeConfig, log logger.Logger) *HTTPClient {
    timeout := cfg.Timeout
    if timeout <= 0 {
        timeout = 30 * time.Second
    }
    return &HTTPClient{
        baseURL: strings.TrimRight(cfg.BaseURL, "/"),
        apiKey:  cfg.APIKey,
        timeout: timeout,
        client:  &http.Client{},
        breaker: resilience.NewBreaker[[]byte]("knowledge-api", log),
        logger:  log,
    }
}

// DocumentStatus fetches the status of a single document. A 404 yields a
// Status with Found=false and no error.
func (c *HTTPClient) DocumentStatus(ctx context.Context, repoID, fileID string) (*Status, error) {
    if c.baseURL == "" {
        return nil, ErrNotConfigured
    }
    path := fmt.Sprintf("/repos/%s/documents/%s", url.PathEscape(repoID), url.PathEscape(fileID))

    body, err := c.do(ctx, http.MethodGet, path, nil)
    if errors.Is(err, errNotFound) {
        return &Status{FileID: fileID}, nil
    }
    if err != nil {
        return nil, err
    }

    var st Status
    if err := json.Unmarshal(body, &st); err != nil {
        return nil, fmt.Errorf("failed to decode document status: %w", err)
    }
    st.FileID = fileID
    st.Found = true
    return &st, nil
}

type batchRequest struct {
    FileIDs []string `json:"file_ids"`
}

type batchResponse struct {
    Documents []Status `json:"documents"`
}

// BatchStatus asks for many documents at once. Files absent from the
// response are reported as not found.
func (c *HTTPClient) BatchStatus(ctx context.Context, repoID string, fileIDs []string) (map[string]*Status, error) {
    if c.baseURL == "" {
        return nil, ErrNotConfigured
    }
    payload, err := json.Marshal(batchRequest{FileIDs: fileIDs})
    if err != nil {
        return nil, fmt.Errorf("failed to marshal batch request: %w", err)
    }

    body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/documents", url.PathEscape(repoID)), payload)
    if err != nil {
        return nil, err
    }

    var resp batchResponse
    if err := json.Unmarshal(body, &resp); err != nil {
        return nil, fmt.Errorf("failed to decode batch status: %w", err)
    }

    out := make(map[string]*Status, len(fileIDs))
    for _, id := range fileIDs {
        out[id] = &Status{FileID: id}
    }
    for i := range resp.Documents {
        st := resp.Documents[i]
        if _, ok := out[st.FileID]; !ok {
            continue
        }
        st.Found = true
        out[st.FileID] = &st
    }
    return out, nil
}

var errNotFound = errors.New("not found")

func (c *HTTPClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
    ctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()

    var notFound bool
    body, err := c.breaker.Execute(func() ([]byte, error) {
        var reader io.Reader
        if payload != nil {
            reader = bytes.NewReader(payload)
        }
        req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
        if err != nil {
            return nil, fmt.Errorf("failed to create request: %w", err)
        }
        if payload != nil {
            req.Header.Set("Content-Type", "application/json")
        }
        if c.apiKey != "" {
            req.Header.Set("X-API-Key", c.apiKey)
        }

        res, err := c.client.Do(req)
        if err != nil {
            return nil, err
        }
        defer res.Body.Close()

        data, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
        if err != nil {
            return nil, fmt.Errorf("failed to read response: %w", err)
        }
        // 404 是正常结果，不计入熔断
        if res.StatusCode == http.StatusNotFound {
            notFound = true
            return nil, nil
        }
        if res.StatusCode < 200 || res.StatusCode >= 300 {
            return nil, fmt.Errorf("knowledge API %s %s returned %d", method, path, res.StatusCode)
        }
        return data, nil
    })
    if err != nil {
        return nil, fmt.Errorf("knowledge API request failed: %w", err)
    }
    if notFound {
        return nil, errNotFound
    }
    return body, nil
}

package knowledge

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/feichai0017/plc-program-processor/config"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
    srv := httptest.NewServer(h)
    t.Cleanup(srv.Close)
    return NewClient(&config.KnowledgeConfig{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second}, logger.NewNop())
}

func TestDocumentStatus(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "k", r.Header.Get("X-API-Key"))
        switch r.URL.Path {
        case "/repos/r1/documents/f1":
            w.Write([]byte(`{"is_embedded":true,"vector_count":12}`))
        default:
            w.WriteHeader(http.StatusNotFound)
        }
    })

    st, err := c.DocumentStatus(context.Background(), "r1", "f1")
    require.NoError(t, err)
    assert.True(t, st.Found)
    assert.True(t, st.IsEmbedded)
    assert.Equal(t, 12, st.VectorCount)

    st, err = c.DocumentStatus(context.Background(), "r1", "missing")
    require.NoError(t, err)
    assert.False(t, st.Found)
    assert.False(t, st.IsEmbedded)
}

func TestBatchStatus(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, http.MethodPost, r.Method)
        w.Write([]byte(`{"documents":[{"file_id":"a","is_embedded":true,"vector_count":3},{"file_id":"zzz","is_embedded":true}]}`))
    })

    out, err := c.BatchStatus(context.Background(), "r1", []string{"a", "b"})
    require.NoError(t, err)
    require.Len(t, out, 2)
    assert.True(t, out["a"].IsEmbedded)
    assert.Equal(t, 3, out["a"].VectorCount)
    assert.False(t, out["b"].Found)
}

func TestServerErrorAndTimeout(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path == "/repos/r1/documents/slow" {
            time.Sleep(200 * time.Millisecond)
        }
        w.WriteHeader(http.StatusInternalServerError)
    })
    c.timeout = 50 * time.Millisecond

    _, err := c.DocumentStatus(context.Background(), "r1", "f1")
    assert.ErrorContains(t, err, "returned 500")

    _, err = c.DocumentStatus(context.Background(), "r1", "slow")
    assert.Error(t, err)
}

func TestNotConfigured(t *testing.T) {
    c := NewClient(&config.KnowledgeConfig{}, logger.NewNop())
    _, err := c.DocumentStatus(context.Background(), "r", "f")
    assert.ErrorIs(t, err, ErrNotConfigured)
}

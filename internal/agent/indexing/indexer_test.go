package indexing

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/goccy/go-json"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/feichai0017/plc-program-processor/config"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

func TestHTTPIndexer(t *testing.T) {
    var got indexRequest
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "/index", r.URL.Path)
        assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
        if got.ProgramID == "P-bad" {
            w.Write([]byte(`{"success":false,"message":"no artifacts"}`))
            return
        }
        if got.ProgramID == "P-err" {
            w.WriteHeader(http.StatusBadGateway)
            return
        }
        w.Write([]byte(`{"success":true,"job_id":"j1"}`))
    }))
    defer srv.Close()

    idx := NewHTTPIndexer(srv.URL+"/", "", time.Second, logger.NewNop())

    ok, err := idx.RequestIndexing(context.Background(), "P1", []string{"memory://a", "memory://b"})
    require.NoError(t, err)
    assert.True(t, ok)
    assert.Equal(t, []string{"memory://a", "memory://b"}, got.Artifacts)

    ok, err = idx.RequestIndexing(context.Background(), "P-bad", nil)
    require.NoError(t, err)
    assert.False(t, ok)

    _, err = idx.RequestIndexing(context.Background(), "P-err", nil)
    assert.ErrorContains(t, err, "502")
}

func TestHTTPIndexerTimeout(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        time.Sleep(200 * time.Millisecond)
        w.Write([]byte(`{"success":true}`))
    }))
    defer srv.Close()

    idx := NewHTTPIndexer(srv.URL, "", 20*time.Millisecond, logger.NewNop())
    _, err := idx.RequestIndexing(context.Background(), "P1", nil)
    assert.Error(t, err)
}

func TestNewFallsBackToStub(t *testing.T) {
    idx := New(&config.KnowledgeConfig{}, logger.NewNop())
    require.IsType(t, &StubIndexer{}, idx)

    ok, err := idx.RequestIndexing(context.Background(), "P1", []string{"x"})
    require.NoError(t, err)
    assert.True(t, ok)
}

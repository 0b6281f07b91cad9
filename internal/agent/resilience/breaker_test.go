package resilience

import (
    "errors"
    "testing"

    "github.com/prometheus/client_golang/prometheus/testutil"
    gobreaker "github.com/sony/gobreaker/v2"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/metrics"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
    log := logger.NewTestLogger()
    b := NewBreaker[int]("test-open", log)
    boom := errors.New("boom")

    for i := 0; i < 5; i++ {
        _, err := b.Execute(func() (int, error) { return 0, boom })
        require.ErrorIs(t, err, boom)
    }
    assert.Equal(t, gobreaker.StateOpen, b.State())

    called := false
    _, err := b.Execute(func() (int, error) {
        called = true
        return 1, nil
    })
    assert.True(t, IsRejected(err))
    assert.False(t, called)

    assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("test-open")))
    assert.Equal(t, 5.0, testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues("test-open", "failure")))
    assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues("test-open", "rejected")))
    assert.True(t, log.Contains("WARN", "state transition"))
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
    b := NewBreaker[string]("test-closed", logger.NewNop())

    for i := 0; i < 3; i++ {
        res, err := b.Execute(func() (string, error) { return "ok", nil })
        require.NoError(t, err)
        assert.Equal(t, "ok", res)
    }
    assert.Equal(t, gobreaker.StateClosed, b.State())
    assert.Equal(t, 3.0, testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues("test-closed", "success")))
    assert.False(t, IsRejected(errors.New("other")))
}

// Package resilience wraps outbound calls in circuit breakers.
package resilience

import (
    "errors"
    "time"

    gobreaker "github.com/sony/gobreaker/v2"

    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/metrics"
)

// Breaker is a circuit breaker with metrics and logging attached.
type Breaker[T any] struct {
    cb   *gobreaker.CircuitBreaker[T]
    name string
    log  logger.Logger
}

// NewBreaker opens after 5 consecutive failures, or a 60% failure rate over
// at least 10 requests, and probes again after 30s.
func NewBreaker[T any](name string, log logger.Logger) *Breaker[T] {
    metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

    b := &Breaker[T]{name: name, log: log}
    b.cb = gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
        Name:        name,
        MaxRequests: 2,
        Interval:    time.Minute,
        Timeout:     30 * time.Second,
        ReadyToTrip: func(counts gobreaker.Counts) bool {
            if counts.ConsecutiveFailures >= 5 {
                return true
            }
            if counts.Requests < 10 {
                return false
            }
            return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
        },
        OnStateChange: func(name string, from, to gobreaker.State) {
            log.Warn("Circuit breaker state transition",
                logger.String("breaker", name),
                logger.String("from", from.String()),
                logger.String("to", to.String()),
            )
            metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
            metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
        },
    })
    return b
}

// Execute runs fn through the breaker.
func (b *Breaker[T]) Execute(fn func() (T, error)) (T, error) {
    res, err := b.cb.Execute(fn)
    switch {
    case err == nil:
        metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
    case IsRejected(err):
        metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
        b.log.Warn("Request rejected by circuit breaker", logger.String("breaker", b.name))
    default:
        metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
    }
    return res, err
}

func (b *Breaker[T]) State() gobreaker.State {
    return b.cb.State()
}

// IsRejected reports whether err came from an open or saturated breaker.
func IsRejected(err error) bool {
    return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateValue(s gobreaker.State) float64 {
    switch s {
    case gobreaker.StateClosed:
        return 0
    case gobreaker.StateHalfOpen:
        return 1
    case gobreaker.StateOpen:
        return 2
    }
    return -1
}

package worker

import (
    "context"
    "time"

    "github.com/hibiken/asynq"

    "github.com/feichai0017/plc-program-processor/config"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/queue"
)

type Worker interface {
    Start(ctx context.Context) error
    Stop() error
}

type Config struct {
    Redis       asynq.RedisClientOpt
    Concurrency int
    Queues      map[string]int
    RetryDelay  time.Duration
}

// ConfigFromRedis 队列权重 critical:6 default:3 low:1
func ConfigFromRedis(cfg *config.RedisConfig) *Config {
    return &Config{
        Redis:       queue.RedisOpt(cfg),
        Concurrency: cfg.Concurrency,
        Queues: map[string]int{
            queue.QueueCritical: 6,
            queue.QueueDefault:  3,
            queue.QueueLow:      1,
        },
        RetryDelay: cfg.RetryDelay,
    }
}

type BaseWorker struct {
    server *asynq.Server
    mux    *asynq.ServeMux
    logger logger.Logger
}

func newServer(cfg *Config, log logger.Logger) *asynq.Server {
    delay := cfg.RetryDelay
    if delay <= 0 {
        delay = time.Minute
    }
    return asynq.NewServer(cfg.Redis, asynq.Config{
        Concurrency: cfg.Concurrency,
        Queues:      cfg.Queues,
        RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
            return time.Duration(n) * delay
        },
        ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
            log.Error("Task failed", logger.String("type", task.Type()), logger.Error(err))
        }),
    })
}

// Start runs the server in the background until ctx is done.
func (w *BaseWorker) Start(ctx context.Context) error {
    if err := w.server.Start(w.mux); err != nil {
        return err
    }
    go func() {
        <-ctx.Done()
        _ = w.Stop()
    }()
    return nil
}

// Stop waits for running tasks up to the server's shutdown timeout.
func (w *BaseWorker) Stop() error {
    w.server.Shutdown()
    return nil
}

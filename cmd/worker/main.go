package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"

    "github.com/feichai0017/plc-program-processor/config"
    "github.com/feichai0017/plc-program-processor/internal/service/program"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/queue"
    "github.com/feichai0017/plc-program-processor/pkg/worker"
)

func main() {
    app := config.GetAppConfig()

    // 初始化日志
    log, err := logger.NewLogger(
        logger.WithLevel(app.LogLevel),
        logger.WithEncoding(app.LogEncoding),
        logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
        logger.WithService(app.Name+"-worker"),
    )
    if err != nil {
        panic(err)
    }
    defer log.Sync()

    // 创建程序服务
    programService, err := program.GetService(log)
    if err != nil {
        log.Error("Failed to create program service", logger.Error(err))
        os.Exit(1)
    }

    // 状态缓存与 API 进程共用
    q, err := queue.GetQueue()
    if err != nil {
        log.Error("Failed to connect task queue", logger.Error(err))
        os.Exit(1)
    }
    defer q.Close()

    redisCfg := config.GetRedisConfig()
    programWorker := worker.NewProgramWorker(worker.ConfigFromRedis(redisCfg), programService, q, log)

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // 启动 worker
    if err := programWorker.Start(ctx); err != nil {
        log.Error("Failed to start worker", logger.Error(err))
        os.Exit(1)
    }
    log.Info("Worker started", logger.Int("concurrency", redisCfg.Concurrency))

    // 等待中断信号
    sigChan := make(chan os.Signal, 1)
    signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
    <-sigChan

    // 优雅关闭
    log.Info("Shutting down worker...")
    programWorker.Stop()
    log.Info("Worker stopped")
}

package worker

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/goccy/go-json"
    "github.com/hibiken/asynq"

    "github.com/feichai0017/plc-program-processor/internal/service/program"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/queue"
)

// ProgramWorker 消费 program:register 任务, 完成注册的异步阶段
type ProgramWorker struct {
    BaseWorker
    completer program.Completer
    statuses  queue.Queue
}

func NewProgramWorker(cfg *Config, completer program.Completer, statuses queue.Queue, log logger.Logger) *ProgramWorker {
    w := &ProgramWorker{
        BaseWorker: BaseWorker{
            server: newServer(cfg, log),
            mux:    asynq.NewServeMux(),
            logger: log,
        },
        completer: completer,
        statuses:  statuses,
    }
    w.mux.HandleFunc(queue.TaskTypeProgramRegister, w.handleProgramRegister)
    return w
}

func (w *ProgramWorker) handleProgramRegister(ctx context.Context, t *asynq.Task) error {
    var task queue.Task
    if err := json.Unmarshal(t.Payload(), &task); err != nil {
        w.logger.Error("Failed to unmarshal task", logger.Error(err))
        return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
    }
    job, err := program.DecodeJob(&task)
    if err != nil {
        w.logger.Error("Invalid registration task", logger.String("taskId", task.ID), logger.Error(err))
        return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
    }

    log := w.logger.With(logger.ProgramID(job.ProgramID))
    started := time.Now()
    log.Info("Processing registration task", logger.String("taskId", task.ID))
    w.saveStatus(ctx, &queue.TaskStatus{TaskID: task.ID, Status: queue.StatusRunning, StartedAt: started})

    err = w.completer.CompleteRegistration(ctx, job)
    if err == nil {
        w.saveStatus(ctx, &queue.TaskStatus{
            TaskID:     task.ID,
            Status:     queue.StatusCompleted,
            StartedAt:  started,
            FinishedAt: time.Now(),
        })
        return nil
    }

    w.saveStatus(ctx, &queue.TaskStatus{
        TaskID:     task.ID,
        Status:     queue.StatusFailed,
        Error:      err.Error(),
        StartedAt:  started,
        FinishedAt: time.Now(),
    })

    // indexing_failed 已落库, 重试只会被跳过; 程序已删除时重试也没有意义
    if errors.Is(err, program.ErrIndexingFailed) || errors.Is(err, program.ErrProgramNotFound) {
        return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
    }
    if lastAttempt(ctx) {
        w.completer.FailProgram(context.WithoutCancel(ctx), job.ProgramID, err)
    }
    return err
}

func lastAttempt(ctx context.Context) bool {
    retried, ok := asynq.GetRetryCount(ctx)
    if !ok {
        return false
    }
    maxRetry, ok := asynq.GetMaxRetry(ctx)
    return ok && retried >= maxRetry
}

func (w *ProgramWorker) saveStatus(ctx context.Context, st *queue.TaskStatus) {
    if w.statuses == nil {
        return
    }
    if err := w.statuses.SaveFinalStatus(ctx, st); err != nil {
        w.logger.Error("Failed to save task status",
            logger.String("taskId", st.TaskID),
            logger.String("status", st.Status),
            logger.Error(err),
        )
    }
}

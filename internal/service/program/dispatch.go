package program

import (
    "context"
    "errors"
    "fmt"
    "runtime/debug"
    "sync"
    "time"

    "github.com/goccy/go-json"

    "github.com/feichai0017/plc-program-processor/internal/utils/validator"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/queue"
)

// JobFile 随任务传递的上传文件
type JobFile struct {
    Name string `json:"name"`
    Data []byte `json:"data"`
}

func (f JobFile) file() validator.File {
    return validator.File{Name: f.Name, Data: f.Data}
}

// RegistrationJob carries everything the asynchronous completion needs.
type RegistrationJob struct {
    ProgramID      string  `json:"program_id"`
    Title          string  `json:"title"`
    Description    string  `json:"description,omitempty"`
    ProcessID      string  `json:"process_id,omitempty"`
    UserID         string  `json:"user_id"`
    LadderZip      JobFile `json:"ladder_zip"`
    Classification JobFile `json:"classification"`
    Comment        JobFile `json:"comment"`

    // 本地调度时复用同步校验的结果
    validated *validator.Result
}

// Dispatcher runs CompleteRegistration outside the request.
type Dispatcher interface {
    Dispatch(ctx context.Context, job *RegistrationJob) error
    // Pending reports whether a job for programID is queued or running.
    Pending(ctx context.Context, programID string) (bool, error)
}

// Completer is the part of the service a dispatcher drives.
type Completer interface {
    CompleteRegistration(ctx context.Context, job *RegistrationJob) error
    FailProgram(ctx context.Context, programID string, cause error)
}

// LocalDispatcher 在进程内 goroutine 中运行任务, 带 panic 恢复
type LocalDispatcher struct {
    completer Completer
    logger    logger.Logger

    wg      sync.WaitGroup
    mu      sync.Mutex
    pending map[string]struct{}
    closed  bool
}

func NewLocalDispatcher(c Completer, log logger.Logger) *LocalDispatcher {
    return &LocalDispatcher{
        completer: c,
        logger:    log,
        pending:   make(map[string]struct{}),
    }
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, job *RegistrationJob) error {
    d.mu.Lock()
    if d.closed {
        d.mu.Unlock()
        return ErrDispatcherStopped
    }
    if _, ok := d.pending[job.ProgramID]; ok {
        d.mu.Unlock()
        return fmt.Errorf("registration %s is already running", job.ProgramID)
    }
    d.pending[job.ProgramID] = struct{}{}
    d.wg.Add(1)
    d.mu.Unlock()

    // 与请求生命周期解耦
    bg := context.WithoutCancel(ctx)
    go d.run(bg, job)
    return nil
}

func (d *LocalDispatcher) run(ctx context.Context, job *RegistrationJob) {
    defer func() {
        d.mu.Lock()
        delete(d.pending, job.ProgramID)
        d.mu.Unlock()
        d.wg.Done()
    }()
    defer func() {
        if r := recover(); r != nil {
            d.logger.Error("Registration panicked",
                logger.ProgramID(job.ProgramID),
                logger.Any("panic", r),
                logger.String("stack", string(debug.Stack())),
            )
            d.completer.FailProgram(ctx, job.ProgramID, fmt.Errorf("internal error: %v", r))
        }
    }()

    if err := d.completer.CompleteRegistration(ctx, job); err != nil {
        d.logger.Error("Registration finished with error",
            logger.ProgramID(job.ProgramID),
            logger.Error(err),
        )
    }
}

func (d *LocalDispatcher) Pending(_ context.Context, programID string) (bool, error) {
    d.mu.Lock()
    defer d.mu.Unlock()
    _, ok := d.pending[programID]
    return ok, nil
}

// Wait blocks until every dispatched job has finished.
func (d *LocalDispatcher) Wait() {
    d.wg.Wait()
}

// Shutdown stops accepting jobs and waits for running ones until ctx ends.
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
    d.mu.Lock()
    d.closed = true
    d.mu.Unlock()

    done := make(chan struct{})
    go func() {
        d.wg.Wait()
        close(done)
    }()
    select {
    case <-done:
        return nil
    case <-ctx.Done():
        return fmt.Errorf("registrations still running at shutdown: %w", ctx.Err())
    }
}

// QueueDispatcher 把任务投递到 asynq, 由 cmd/worker 消费
type QueueDispatcher struct {
    queue  queue.Queue
    logger logger.Logger
}

func NewQueueDispatcher(q queue.Queue, log logger.Logger) *QueueDispatcher {
    return &QueueDispatcher{queue: q, logger: log}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, job *RegistrationJob) error {
    payload, err := json.Marshal(job)
    if err != nil {
        return fmt.Errorf("failed to marshal registration job: %w", err)
    }

    now := time.Now()
    task := &queue.Task{
        ID:        job.ProgramID,
        Type:      queue.TaskTypeProgramRegister,
        Priority:  2,
        Payload:   payload,
        Metadata:  map[string]string{"programId": job.ProgramID, "userId": job.UserID},
        CreatedAt: now,
    }
    if err := d.queue.Enqueue(ctx, task); err != nil {
        return err
    }

    if err := d.queue.SaveFinalStatus(ctx, &queue.TaskStatus{
        TaskID:    job.ProgramID,
        Status:    queue.StatusPending,
        StartedAt: now,
    }); err != nil {
        d.logger.Error("Failed to save initial status",
            logger.ProgramID(job.ProgramID),
            logger.Error(err),
        )
    }
    return nil
}

func (d *QueueDispatcher) Pending(ctx context.Context, programID string) (bool, error) {
    st, err := d.queue.GetTaskStatus(ctx, programID)
    if errors.Is(err, queue.ErrTaskNotFound) {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    return st.Active(), nil
}

// DecodeJob 解析队列任务中的注册任务
func DecodeJob(task *queue.Task) (*RegistrationJob, error) {
    var job RegistrationJob
    if err := json.Unmarshal(task.Payload, &job); err != nil {
        return nil, fmt.Errorf("failed to unmarshal registration job: %w", err)
    }
    if job.ProgramID == "" {
        return nil, fmt.Errorf("registration job %s has no program id", task.ID)
    }
    return &job, nil
}

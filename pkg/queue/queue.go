// pkg/queue/queue.go
package queue

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/goccy/go-json"
    "github.com/hibiken/asynq"
    "github.com/redis/go-redis/v9"

    "github.com/feichai0017/plc-program-processor/config"
)

// TaskType 定义任务类型
const (
    TaskTypeProgramRegister = "program:register"
)

// 队列名
const (
    QueueCritical = "critical"
    QueueDefault  = "default"
    QueueLow      = "low"
)

var queueNames = []string{QueueCritical, QueueDefault, QueueLow}

// ErrTaskNotFound 任务在 redis 和所有队列中都不存在
var ErrTaskNotFound = errors.New("task not found")

// Queue 接口定义
type Queue interface {
    Enqueue(ctx context.Context, task *Task) error
    GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
    CancelTask(ctx context.Context, taskID string) error
    SaveFinalStatus(ctx context.Context, status *TaskStatus) error
}

// Task 定义任务结构
type Task struct {
    ID        string            `json:"id"`
    Type      string            `json:"type"`
    Priority  int               `json:"priority"`
    Payload   json.RawMessage   `json:"payload"`
    Metadata  map[string]string `json:"metadata,omitempty"`
    CreatedAt time.Time         `json:"createdAt"`
}

// TaskStatus 定义任务状态
type TaskStatus struct {
    TaskID     string    `json:"taskId"`
    Status     string    `json:"status"`
    Error      string    `json:"error,omitempty"`
    StartedAt  time.Time `json:"startedAt"`
    FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// 任务状态值
const (
    StatusPending   = "pending"
    StatusRunning   = "running"
    StatusCompleted = "completed"
    StatusFailed    = "failed"
)

// Active reports whether the task has not finished yet.
func (s *TaskStatus) Active() bool {
    return s.Status == StatusPending || s.Status == StatusRunning
}

// AsynqQueue 实现
type AsynqQueue struct {
    client    *asynq.Client
    inspector *asynq.Inspector
    redis     *redis.Client
    cfg       *config.RedisConfig
}

// GetQueue 获取队列实例
func GetQueue() (*AsynqQueue, error) {
    return NewAsynqQueue(config.GetRedisConfig())
}

// RedisOpt 返回 asynq 使用的 redis 连接参数
func RedisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
    return asynq.RedisClientOpt{
        Addr:     cfg.Addr,
        Password: cfg.Password,
        DB:       cfg.DB,
    }
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(cfg *config.RedisConfig) (*AsynqQueue, error) {
    redisClient := redis.NewClient(&redis.Options{
        Addr:     cfg.Addr,
        Password: cfg.Password,
        DB:       cfg.DB,
    })

    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := redisClient.Ping(ctx).Err(); err != nil {
        redisClient.Close()
        return nil, fmt.Errorf("failed to connect to redis %s: %w", cfg.Addr, err)
    }

    return &AsynqQueue{
        client:    asynq.NewClient(RedisOpt(cfg)),
        inspector: asynq.NewInspector(RedisOpt(cfg)),
        redis:     redisClient,
        cfg:       cfg,
    }, nil
}

// Enqueue 将任务加入队列
func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
    payload, err := json.Marshal(task)
    if err != nil {
        return fmt.Errorf("failed to marshal task: %w", err)
    }

    opts := []asynq.Option{
        asynq.MaxRetry(q.cfg.MaxRetries),
        asynq.Timeout(q.cfg.ProcessTimeout),
        asynq.TaskID(task.ID),
        asynq.Queue(queueFor(task.Priority)),
    }

    t := asynq.NewTask(task.Type, payload, opts...)
    info, err := q.client.EnqueueContext(ctx, t)
    if err != nil {
        return fmt.Errorf("failed to enqueue task: %w", err)
    }
    task.ID = info.ID
    return nil
}

// 根据优先级选择队列
func queueFor(priority int) string {
    switch priority {
    case 1:
        return QueueCritical
    case 2:
        return QueueDefault
    default:
        return QueueLow
    }
}

func statusKey(taskID string) string {
    return fmt.Sprintf("task_status:%s", taskID)
}

// GetTaskStatus 先查 redis 缓存, 再查 asynq 各队列
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
    data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
    if err != nil && !errors.Is(err, redis.Nil) {
        return nil, fmt.Errorf("failed to get status from redis: %w", err)
    }
    if err == nil {
        var status TaskStatus
        if err := json.Unmarshal(data, &status); err != nil {
            return nil, fmt.Errorf("failed to unmarshal status: %w", err)
        }
        return &status, nil
    }

    for _, name := range queueNames {
        info, err := q.inspector.GetTaskInfo(name, taskID)
        if err == nil {
            return convertAsynqStatus(info), nil
        }
    }
    return nil, fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
}

// CancelTask 取消任务
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
    var lastErr error
    for _, name := range queueNames {
        err := q.inspector.DeleteTask(name, taskID)
        if err == nil {
            return q.redis.Del(ctx, statusKey(taskID)).Err()
        }
        lastErr = err
    }
    return fmt.Errorf("failed to cancel task: %w", lastErr)
}

// SaveFinalStatus 保存任务状态, 过期时间由 QUEUE_STATUS_TTL 决定
func (q *AsynqQueue) SaveFinalStatus(ctx context.Context, status *TaskStatus) error {
    data, err := json.Marshal(status)
    if err != nil {
        return fmt.Errorf("failed to marshal status: %w", err)
    }
    if err := q.redis.Set(ctx, statusKey(status.TaskID), data, q.cfg.StatusTTL).Err(); err != nil {
        return fmt.Errorf("failed to save status: %w", err)
    }
    return nil
}

func (q *AsynqQueue) Close() error {
    if err := q.client.Close(); err != nil {
        return err
    }
    if err := q.inspector.Close(); err != nil {
        return err
    }
    return q.redis.Close()
}

// convertAsynqStatus 将 asynq 状态转换为 TaskStatus
func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
    status := &TaskStatus{
        TaskID:    info.ID,
        StartedAt: info.NextProcessAt,
    }

    switch info.State {
    case asynq.TaskStateActive:
        status.Status = StatusRunning
    case asynq.TaskStateCompleted:
        status.Status = StatusCompleted
        status.FinishedAt = info.CompletedAt
    case asynq.TaskStateArchived:
        status.Status = StatusFailed
        status.Error = info.LastErr
    default:
        // pending / scheduled / retry 都视为等待
        status.Status = StatusPending
        status.Error = info.LastErr
    }
    return status
}

package program

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/cenkalti/backoff/v4"

    "github.com/feichai0017/plc-program-processor/config"
    "github.com/feichai0017/plc-program-processor/internal/agent"
    "github.com/feichai0017/plc-program-processor/internal/agent/indexing"
    "github.com/feichai0017/plc-program-processor/internal/repository"
    "github.com/feichai0017/plc-program-processor/internal/service/failure"
    "github.com/feichai0017/plc-program-processor/internal/service/progress"
    "github.com/feichai0017/plc-program-processor/internal/utils/validator"
    "github.com/feichai0017/plc-program-processor/pkg/converters"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/storage"
)

var (
    // ErrProgramNotFound wraps repository.ErrNotFound.
    ErrProgramNotFound   = fmt.Errorf("program not found: %w", repository.ErrNotFound)
    ErrInvalidRetryType  = errors.New("invalid retry type")
    ErrIndexingFailed    = errors.New("vector indexing failed")
    ErrDispatcherStopped = errors.New("dispatcher is shutting down")
)

// ProgramService 程序注册、重试、删除与查询
type ProgramService interface {
    Register(ctx context.Context, req *RegisterRequest) (*RegisterResult, error)
    Validate(req *RegisterRequest) *ValidationReport
    CompleteRegistration(ctx context.Context, job *RegistrationJob) error
    RetryFailures(ctx context.Context, programID, userID, retryType string) (*RetryResult, error)
    DeleteProgram(ctx context.Context, programID, userID string) (*DeleteResult, error)
    GetProgram(ctx context.Context, programID string) (*ProgramView, error)
    GetProgress(ctx context.Context, programID string) (*ProgressView, error)
    GetFailures(ctx context.Context, programID string, filter FailureQuery) ([]FailureView, error)
}

type Service struct {
    store      *repository.Store
    committer  repository.ChunkCommitter
    storage    storage.Storage
    indexer    indexing.Indexer
    factory    *agent.ProcessorFactory
    converter  *converters.JSONConverter
    validator  *validator.ProgramValidator
    ledger     *failure.Ledger
    calculator *progress.Calculator
    dispatcher Dispatcher
    config     *config.PipelineConfig
    logger     logger.Logger

    now           func() time.Time
    uploadBackOff func() backoff.BackOff
}

type Option func(*Service)

// WithClock 替换时间源, 测试用
func WithClock(now func() time.Time) Option {
    return func(s *Service) { s.now = now }
}

// WithUploadBackOff 替换上传重试的退避策略
func WithUploadBackOff(fn func() backoff.BackOff) Option {
    return func(s *Service) { s.uploadBackOff = fn }
}

// WithChunkCommitter 替换预处理分块提交
func WithChunkCommitter(c repository.ChunkCommitter) Option {
    return func(s *Service) { s.committer = c }
}

func NewService(
    store *repository.Store,
    objects storage.Storage,
    indexer indexing.Indexer,
    log logger.Logger,
    cfg *config.PipelineConfig,
    opts ...Option,
) *Service {
    if cfg == nil {
        cfg = config.DefaultPipelineConfig()
    }

    s := &Service{
        store:     store,
        committer: store,
        storage:   objects,
        indexer:   indexer,
        factory:   agent.NewProcessorFactory(log),
        converter: converters.NewJSONConverter(),
        validator: validator.NewProgramValidator(log, &validator.Config{
            ClassificationColumns: cfg.ClassificationColumns,
            CommentColumns:        cfg.CommentColumns,
        }),
        ledger:     failure.NewLedger(store.Failures, log),
        calculator: progress.NewCalculator(store, log),
        config:     cfg,
        logger:     log,
        now:        time.Now,
    }
    s.uploadBackOff = s.defaultUploadBackOff
    for _, opt := range opts {
        opt(s)
    }
    s.converter = s.converter.WithClock(s.now)
    s.dispatcher = NewLocalDispatcher(s, log)
    return s
}

// GetService 按配置组装完整的服务
func GetService(log logger.Logger) (*Service, error) {
    db, err := repository.Open(config.GetDatabaseConfig(), log)
    if err != nil {
        return nil, fmt.Errorf("failed to initialize database: %w", err)
    }

    objects, err := storage.NewStorage(storage.StorageType(config.GetAppConfig().StorageType), log)
    if err != nil {
        return nil, fmt.Errorf("failed to initialize storage: %w", err)
    }

    idx := indexing.New(config.GetKnowledgeConfig(), log)
    return NewService(repository.NewStore(db), objects, idx, log, config.GetPipelineConfig()), nil
}

// SetDispatcher 替换默认的本地调度器 (例如队列模式)
func (s *Service) SetDispatcher(d Dispatcher) {
    s.dispatcher = d
}

func (s *Service) Dispatcher() Dispatcher {
    return s.dispatcher
}

func (s *Service) Store() *repository.Store {
    return s.store
}

func (s *Service) Calculator() *progress.Calculator {
    return s.calculator
}

func (s *Service) defaultUploadBackOff() backoff.BackOff {
    b := backoff.NewExponentialBackOff()
    b.InitialInterval = 200 * time.Millisecond
    b.MaxInterval = 2 * time.Second
    attempts := s.config.UploadAttempts
    if attempts < 1 {
        attempts = 1
    }
    return backoff.WithMaxRetries(b, uint64(attempts-1))
}

func (s *Service) programNotFound(err error, programID string) error {
    if errors.Is(err, repository.ErrNotFound) {
        return fmt.Errorf("program %s: %w", programID, ErrProgramNotFound)
    }
    return err
}

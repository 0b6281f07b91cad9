package repository

import (
    "context"
    "errors"
    "fmt"
    "time"

    "gorm.io/driver/postgres"
    "gorm.io/gorm"
    gormlogger "gorm.io/gorm/logger"

    "github.com/feichai0017/plc-program-processor/config"
    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

// ErrNotFound is returned for missing or soft-deleted rows.
var ErrNotFound = errors.New("record not found")

const slowQueryThreshold = 200 * time.Millisecond

// Open 连接 Postgres 并按配置执行自动迁移
func Open(dbCfg *config.DatabaseConfig, log logger.Logger) (*gorm.DB, error) {
    db, err := gorm.Open(postgres.Open(dbCfg.DSN), &gorm.Config{
        Logger: NewGormLogger(log.Named("gorm")),
    })
    if err != nil {
        return nil, fmt.Errorf("failed to open database: %w", err)
    }

    sqlDB, err := db.DB()
    if err != nil {
        return nil, fmt.Errorf("failed to get sql.DB: %w", err)
    }
    sqlDB.SetMaxOpenConns(dbCfg.MaxOpenConns)
    sqlDB.SetMaxIdleConns(dbCfg.MaxIdleConns)
    sqlDB.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)

    if dbCfg.AutoMigrate {
        if err := Migrate(db); err != nil {
            return nil, err
        }
        log.Info("Database schema migrated")
    }
    return db, nil
}

// Migrate 建表或补齐字段
func Migrate(db *gorm.DB) error {
    if err := db.AutoMigrate(
        &models.Program{},
        &models.Document{},
        &models.ProcessingFailure{},
        &models.LogicEntry{},
        &models.IndexingJob{},
        &models.KnowledgeReference{},
        &models.Plant{},
        &models.Process{},
        &models.Line{},
    ); err != nil {
        return fmt.Errorf("schema migration failed: %w", err)
    }
    return nil
}

func notFound(err error, what, id string) error {
    if errors.Is(err, gorm.ErrRecordNotFound) {
        return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
    }
    return fmt.Errorf("failed to load %s %s: %w", what, id, err)
}

// gormLogger 把 GORM 日志转到 zap
type gormLogger struct {
    log   logger.Logger
    level gormlogger.LogLevel
}

func NewGormLogger(log logger.Logger) gormlogger.Interface {
    return &gormLogger{log: log, level: gormlogger.Warn}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
    return &gormLogger{log: l.log, level: level}
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
    if l.level >= gormlogger.Info {
        l.log.Info(fmt.Sprintf(msg, args...))
    }
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
    if l.level >= gormlogger.Warn {
        l.log.Warn(fmt.Sprintf(msg, args...))
    }
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
    if l.level >= gormlogger.Error {
        l.log.Error(fmt.Sprintf(msg, args...))
    }
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
    if l.level <= gormlogger.Silent {
        return
    }
    elapsed := time.Since(begin)
    switch {
    case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
        sql, rows := fc()
        l.log.Error("Query failed",
            logger.String("sql", sql),
            logger.Int64("rows", rows),
            logger.Duration("elapsed", elapsed),
            logger.Error(err),
        )
    case elapsed > slowQueryThreshold && l.level >= gormlogger.Warn:
        sql, rows := fc()
        l.log.Warn("Slow query",
            logger.String("sql", sql),
            logger.Int64("rows", rows),
            logger.Duration("elapsed", elapsed),
        )
    case l.level >= gormlogger.Info:
        sql, rows := fc()
        l.log.Debug("Query",
            logger.String("sql", sql),
            logger.Int64("rows", rows),
            logger.Duration("elapsed", elapsed),
        )
    }
}

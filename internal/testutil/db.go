package testutil

import (
    "testing"

    "github.com/glebarez/sqlite"
    "gorm.io/gorm"
    gormlogger "gorm.io/gorm/logger"

    "github.com/feichai0017/plc-program-processor/internal/repository"
)

// NewDB opens a private in-memory SQLite database with the schema migrated.
// A single connection keeps the in-memory database alive for the test.
func NewDB(t testing.TB) *gorm.DB {
    t.Helper()
    db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
        Logger: gormlogger.Discard,
    })
    if err != nil {
        t.Fatalf("open sqlite: %v", err)
    }

    sqlDB, err := db.DB()
    if err != nil {
        t.Fatalf("sql db: %v", err)
    }
    sqlDB.SetMaxOpenConns(1)
    t.Cleanup(func() { _ = sqlDB.Close() })

    if err := repository.Migrate(db); err != nil {
        t.Fatalf("migrate: %v", err)
    }
    return db
}

// NewStore is NewDB wrapped in a repository.Store.
func NewStore(t testing.TB) *repository.Store {
    return repository.NewStore(NewDB(t))
}

package storage_test

import (
    "context"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/storage"
)

func TestNewStorageMemoryNotFound(t *testing.T) {
    s, err := storage.NewStorage(storage.StorageTypeMemory, logger.NewNop())
    require.NoError(t, err)

    _, err = s.Download(context.Background(), "programs/P1/missing.zip")
    require.Error(t, err)
    assert.True(t, storage.IsNotFound(err))
}

func TestNewStorageRejectsUnknownType(t *testing.T) {
    _, err := storage.NewStorage("ftp", logger.NewNop())
    assert.Error(t, err)
}

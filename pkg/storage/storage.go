package storage

import (
    "context"
    "errors"
    "fmt"

    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/storage/errdefs"
    "github.com/feichai0017/plc-program-processor/pkg/storage/memory"
    "github.com/feichai0017/plc-program-processor/pkg/storage/minio"
    "github.com/feichai0017/plc-program-processor/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
    StorageTypeS3     StorageType = "s3"
    StorageTypeMinio  StorageType = "minio"
    StorageTypeMemory StorageType = "memory"
)

// ErrNotFound is returned by Download when the key does not exist.
var ErrNotFound = errdefs.ErrNotFound

// Storage 对象存储网关
type Storage interface {
    // Upload 上传字节, 返回存储位置
    Upload(ctx context.Context, data []byte, key, contentType string) (string, error)
    // Download 下载对象
    Download(ctx context.Context, key string) ([]byte, error)
    // Delete 删除单个对象
    Delete(ctx context.Context, key string) error
    // DeletePrefix 删除前缀下所有对象, 返回删除数量
    DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(storageType StorageType, log logger.Logger) (Storage, error) {
    switch storageType {
    case StorageTypeS3:
        return s3.GetClient(log)
    case StorageTypeMinio:
        return minio.GetClient(log)
    case StorageTypeMemory:
        log.Warn("Using in-memory object storage, uploads are not persisted")
        return memory.New(), nil
    default:
        return nil, fmt.Errorf("unsupported storage type: %s", storageType)
    }
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
    return errors.Is(err, ErrNotFound)
}

package minio

import (
    "bytes"
    "context"
    "fmt"
    "io"

    "github.com/minio/minio-go/v7"
    "github.com/minio/minio-go/v7/pkg/credentials"

    cfg "github.com/feichai0017/plc-program-processor/config"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/storage/errdefs"
)

type MinioStorage struct {
    client     *minio.Client
    bucketName string
    logger     logger.Logger
}

// Upload implements Storage.Upload
func (m *MinioStorage) Upload(ctx context.Context, data []byte, key, contentType string) (string, error) {
    _, err := m.client.PutObject(ctx, m.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
        ContentType: contentType,
    })
    if err != nil {
        m.logger.Error("Failed to store file to MinIO",
            logger.String("bucket", m.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return "", fmt.Errorf("failed to store file: %w", err)
    }

    return fmt.Sprintf("%s/%s/%s", m.client.EndpointURL().String(), m.bucketName, key), nil
}

// Download implements Storage.Download
func (m *MinioStorage) Download(ctx context.Context, key string) ([]byte, error) {
    obj, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
    if err != nil {
        m.logger.Error("Failed to get file from MinIO",
            logger.String("bucket", m.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return nil, fmt.Errorf("failed to get file: %w", err)
    }
    defer obj.Close()

    data, err := io.ReadAll(obj)
    if err != nil {
        if minio.ToErrorResponse(err).Code == "NoSuchKey" {
            return nil, fmt.Errorf("failed to get file %s: %w", key, errdefs.ErrNotFound)
        }
        return nil, fmt.Errorf("failed to read file body: %w", err)
    }
    return data, nil
}

// Delete implements Storage.Delete
func (m *MinioStorage) Delete(ctx context.Context, key string) error {
    err := m.client.RemoveObject(ctx, m.bucketName, key, minio.RemoveObjectOptions{})
    if err != nil {
        m.logger.Error("Failed to delete file from MinIO",
            logger.String("bucket", m.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return fmt.Errorf("failed to delete file: %w", err)
    }

    return nil
}

// DeletePrefix implements Storage.DeletePrefix
func (m *MinioStorage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
    listed := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
        Prefix:    prefix,
        Recursive: true,
    })

    toRemove := make(chan minio.ObjectInfo)
    total := 0
    var listErr error
    go func() {
        defer close(toRemove)
        for obj := range listed {
            if obj.Err != nil {
                listErr = obj.Err
                continue
            }
            total++
            toRemove <- obj
        }
    }()

    failed := 0
    for e := range m.client.RemoveObjects(ctx, m.bucketName, toRemove, minio.RemoveObjectsOptions{}) {
        failed++
        m.logger.Warn("Failed to delete object",
            logger.String("key", e.ObjectName),
            logger.Error(e.Err),
        )
    }
    // RemoveObjects drains toRemove before its error channel closes
    if listErr != nil {
        return total - failed, fmt.Errorf("failed to list objects: %w", listErr)
    }

    return total - failed, nil
}

func NewMinioStorage(log logger.Logger) (*MinioStorage, error) {
    minioConfig := cfg.GetMinioConfig()
    client, err := minio.New(minioConfig.Endpoint, &minio.Options{
        Creds:  credentials.NewStaticV4(minioConfig.AccessKey, minioConfig.SecretKey, ""),
        Secure: minioConfig.UseSSL,
        Region: minioConfig.Region,
    })
    if err != nil {
        return nil, fmt.Errorf("failed to create MinIO client: %w", err)
    }

    exists, err := client.BucketExists(context.Background(), minioConfig.BucketName)
    if err != nil {
        return nil, fmt.Errorf("failed to check bucket existence: %w", err)
    }

    if !exists {
        err = client.MakeBucket(context.Background(), minioConfig.BucketName, minio.MakeBucketOptions{
            Region: minioConfig.Region,
        })
        if err != nil {
            return nil, fmt.Errorf("failed to create bucket: %w", err)
        }
        log.Info("Created MinIO bucket", logger.String("bucket", minioConfig.BucketName))
    }

    return &MinioStorage{
        client:     client,
        bucketName: minioConfig.BucketName,
        logger:     log,
    }, nil
}

func GetClient(logger logger.Logger) (*MinioStorage, error) {
    return NewMinioStorage(logger)
}

package s3

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "io"

    "github.com/aws/aws-sdk-go-v2/aws"
    "github.com/aws/aws-sdk-go-v2/config"
    "github.com/aws/aws-sdk-go-v2/credentials"
    "github.com/aws/aws-sdk-go-v2/service/s3"
    "github.com/aws/aws-sdk-go-v2/service/s3/types"

    cfg "github.com/feichai0017/plc-program-processor/config"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/storage/errdefs"
)

// S3 DeleteObjects 单次最多 1000 个 key
const deleteBatchSize = 1000

type S3Storage struct {
    client     *s3.Client
    bucketName string
    region     string
    logger     logger.Logger
}

// Upload 上传对象
func (s *S3Storage) Upload(ctx context.Context, data []byte, key, contentType string) (string, error) {
    input := &s3.PutObjectInput{
        Bucket:        aws.String(s.bucketName),
        Key:           aws.String(key),
        Body:          bytes.NewReader(data),
        ContentLength: aws.Int64(int64(len(data))),
    }
    if contentType != "" {
        input.ContentType = aws.String(contentType)
    }

    if _, err := s.client.PutObject(ctx, input); err != nil {
        s.logger.Error("Failed to store file to S3",
            logger.String("bucket", s.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return "", fmt.Errorf("failed to store file: %w", err)
    }

    return fmt.Sprintf("s3://%s/%s", s.bucketName, key), nil
}

// Download 下载对象
func (s *S3Storage) Download(ctx context.Context, key string) ([]byte, error) {
    result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
        Bucket: aws.String(s.bucketName),
        Key:    aws.String(key),
    })
    if err != nil {
        var nsk *types.NoSuchKey
        if errors.As(err, &nsk) {
            return nil, fmt.Errorf("failed to get file %s: %w", key, errdefs.ErrNotFound)
        }
        s.logger.Error("Failed to get file from S3",
            logger.String("bucket", s.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return nil, fmt.Errorf("failed to get file: %w", err)
    }
    defer result.Body.Close()

    data, err := io.ReadAll(result.Body)
    if err != nil {
        return nil, fmt.Errorf("failed to read file body: %w", err)
    }
    return data, nil
}

// Delete 删除单个对象
func (s *S3Storage) Delete(ctx context.Context, key string) error {
    _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
        Bucket: aws.String(s.bucketName),
        Key:    aws.String(key),
    })
    if err != nil {
        s.logger.Error("Failed to delete file from S3",
            logger.String("bucket", s.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return fmt.Errorf("failed to delete file: %w", err)
    }

    return nil
}

// DeletePrefix 分页列出前缀下的对象并批量删除
func (s *S3Storage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
    paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
        Bucket: aws.String(s.bucketName),
        Prefix: aws.String(prefix),
    })

    deleted := 0
    for paginator.HasMorePages() {
        page, err := paginator.NextPage(ctx)
        if err != nil {
            s.logger.Error("Failed to list objects",
                logger.String("bucket", s.bucketName),
                logger.String("prefix", prefix),
                logger.Error(err),
            )
            return deleted, fmt.Errorf("failed to list objects: %w", err)
        }

        ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
        for _, obj := range page.Contents {
            ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
        }

        for start := 0; start < len(ids); start += deleteBatchSize {
            end := min(start+deleteBatchSize, len(ids))
            out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
                Bucket: aws.String(s.bucketName),
                Delete: &types.Delete{Objects: ids[start:end], Quiet: aws.Bool(true)},
            })
            if err != nil {
                return deleted, fmt.Errorf("failed to delete objects: %w", err)
            }
            for _, e := range out.Errors {
                s.logger.Warn("Failed to delete object",
                    logger.String("key", aws.ToString(e.Key)),
                    logger.String("error", aws.ToString(e.Message)),
                )
            }
            deleted += end - start - len(out.Errors)
        }
    }

    s.logger.Info("Deleted objects by prefix",
        logger.String("bucket", s.bucketName),
        logger.String("prefix", prefix),
        logger.Int("count", deleted),
    )
    return deleted, nil
}

func NewS3Storage(log logger.Logger) (*S3Storage, error) {
    s3Config := cfg.GetS3Config()

    log.Info("S3 Configuration",
        logger.String("bucket", s3Config.BucketName),
        logger.String("region", s3Config.Region),
        logger.String("endpoint", s3Config.Endpoint),
    )

    awsCfg, err := config.LoadDefaultConfig(context.TODO(),
        config.WithRegion(s3Config.Region),
        config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
            s3Config.AccessKey,
            s3Config.SecretKey,
            "",
        )),
    )
    if err != nil {
        return nil, fmt.Errorf("failed to load AWS config: %w", err)
    }

    client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
        if s3Config.Endpoint != "" {
            o.BaseEndpoint = aws.String(s3Config.Endpoint)
        }
        o.UsePathStyle = s3Config.UsePathStyle
    })

    // 验证 bucket 是否存在
    _, err = client.HeadBucket(context.Background(), &s3.HeadBucketInput{
        Bucket: aws.String(s3Config.BucketName),
    })
    if err != nil {
        return nil, fmt.Errorf("failed to verify bucket existence: %w", err)
    }

    return &S3Storage{
        client:     client,
        bucketName: s3Config.BucketName,
        region:     s3Config.Region,
        logger:     log,
    }, nil
}

func GetClient(logger logger.Logger) (*S3Storage, error) {
    return NewS3Storage(logger)
}

package config

import "sync"

var (
    s3Once   sync.Once
    s3Config *S3Config
)

type S3Config struct {
    BucketName string `env:"AWS_S3_BUCKET_NAME"`
    Region     string `env:"AWS_REGION" envDefault:"ap-northeast-1"`
    Endpoint   string `env:"AWS_ENDPOINT"`
    AccessKey  string `env:"AWS_ACCESS_KEY"`
    SecretKey  string `env:"AWS_SECRET_KEY"`
    // UsePathStyle is required by most S3-compatible endpoints.
    UsePathStyle bool `env:"AWS_S3_USE_PATH_STYLE" envDefault:"false"`
}

func GetS3Config() *S3Config {
    s3Once.Do(func() {
        s3Config = parse(&S3Config{})
    })
    return s3Config
}

package config

import "sync"

var (
    minioOnce   sync.Once
    minioConfig *MinioConfig
)

type MinioConfig struct {
    AccessKey  string `env:"MINIO_ACCESS_KEY"`
    SecretKey  string `env:"MINIO_SECRET_KEY"`
    Endpoint   string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
    UseSSL     bool   `env:"MINIO_USE_SSL" envDefault:"false"`
    Region     string `env:"MINIO_REGION"`
    BucketName string `env:"MINIO_BUCKET_NAME" envDefault:"plc-programs"`
}

func GetMinioConfig() *MinioConfig {
    minioOnce.Do(func() {
        minioConfig = parse(&MinioConfig{})
    })
    return minioConfig
}

package config

import (
    "log"
    "os"
    "path/filepath"
    "runtime"
    "sync"

    "github.com/caarlos0/env/v11"
    "github.com/joho/godotenv"
)

var (
    envOnce   sync.Once
    appOnce   sync.Once
    appConfig *AppConfig
)

// DispatchMode selects how the asynchronous registration phase is run.
type DispatchMode string

const (
    DispatchLocal DispatchMode = "local"
    DispatchQueue DispatchMode = "queue"
)

type AppConfig struct {
    Name         string       `env:"APP_NAME" envDefault:"plc-program-processor"`
    Address      string       `env:"HTTP_ADDRESS" envDefault:":8080"`
    LogLevel     string       `env:"LOG_LEVEL" envDefault:"info"`
    LogEncoding  string       `env:"LOG_ENCODING" envDefault:"json"`
    StorageType  string       `env:"STORAGE_TYPE" envDefault:"s3"`
    DispatchMode DispatchMode `env:"DISPATCH_MODE" envDefault:"local"`
    CORSOrigins  []string     `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
    // MaxUploadMB caps the multipart body of a registration request.
    MaxUploadMB int64 `env:"MAX_UPLOAD_MB" envDefault:"200"`
    // MasterDataFile seeds plants/processes/lines at startup when set.
    MasterDataFile string `env:"MASTER_DATA_FILE"`
}

// loadEnv 加载项目根目录下的 .env, 只执行一次
func loadEnv() {
    envOnce.Do(func() {
        _, filename, _, _ := runtime.Caller(0)
        rootDir := filepath.Dir(filepath.Dir(filename))
        envPath := filepath.Join(rootDir, ".env")
        if custom := os.Getenv("ENV_FILE"); custom != "" {
            envPath = custom
        }

        if err := godotenv.Load(envPath); err != nil {
            log.Printf("Warning: .env file not found at %s, falling back to environment variables", envPath)
        }
    })
}

// parse fills out from the environment; a parse error is fatal at startup.
func parse[T any](out *T) *T {
    loadEnv()
    if err := env.Parse(out); err != nil {
        log.Fatalf("failed to parse configuration %T: %v", out, err)
    }
    return out
}

func GetAppConfig() *AppConfig {
    appOnce.Do(func() {
        appConfig = parse(&AppConfig{})
    })
    return appConfig
}

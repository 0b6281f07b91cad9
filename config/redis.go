package config

import (
    "sync"
    "time"
)

var (
    redisOnce   sync.Once
    redisConfig *RedisConfig
)

type RedisConfig struct {
    Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
    Password string `env:"REDIS_PASSWORD"`
    DB       int    `env:"REDIS_DB" envDefault:"0"`
    // worker side
    Concurrency    int           `env:"WORKER_CONCURRENCY" envDefault:"10"`
    MaxRetries     int           `env:"QUEUE_MAX_RETRIES" envDefault:"3"`
    RetryDelay     time.Duration `env:"QUEUE_RETRY_DELAY" envDefault:"1m"`
    ProcessTimeout time.Duration `env:"QUEUE_PROCESS_TIMEOUT" envDefault:"30m"`
    StatusTTL      time.Duration `env:"QUEUE_STATUS_TTL" envDefault:"24h"`
}

func GetRedisConfig() *RedisConfig {
    redisOnce.Do(func() {
        redisConfig = parse(&RedisConfig{})
    })
    return redisConfig
}

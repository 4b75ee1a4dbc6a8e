package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type WorkerRedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
}

type QueueConfig struct {
	ClaimInterval time.Duration
}

type WorkerConfig struct {
	Environment string
	LogLevel    string
	Redis       WorkerRedisConfig
	Postgres    PostgresConfig
	Queues      QueueConfig
	Audit       AuditConfig
}

func LoadWorker() (*WorkerConfig, error) {
	v := newViper("worker", "PUBDETECT_WORKER")
	setWorkerDefaults(v)
	_ = v.BindEnv("postgres.dsn", "PUBDETECT_WORKER_POSTGRES_DSN", "DATABASE_URL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg, decodeHooks); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}

	return &cfg, nil
}

func setWorkerDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "info")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "dashboard:audit")
	v.SetDefault("redis.group", "audit-workers")
	v.SetDefault("redis.consumer", "worker-1")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 5)
	v.SetDefault("postgres.maxidle", 1)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("queues.claiminterval", "30s")

	v.SetDefault("audit.stream", "dashboard:audit")
	v.SetDefault("audit.retention", "720h")
}

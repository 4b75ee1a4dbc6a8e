package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// BackendConfig points at the FastAPI prediction service.
type BackendConfig struct {
	BaseURL     string
	PredictPath string
	Timeout     time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type SessionConfig struct {
	CookieName string
	Secret     string
	TTL        time.Duration
	Secure     bool
}

type CaptureConfig struct {
	MaxUploadBytes int64
	PreviewWidth   uint
	BufferTTL      time.Duration
}

type AuditConfig struct {
	Stream    string
	Retention time.Duration
}

type AppConfig struct {
	Environment      string
	LogLevel         string
	HTTP             HTTPConfig
	Relay            HTTPConfig
	Gateway          HTTPConfig
	Backend          BackendConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Session          SessionConfig
	Capture          CaptureConfig
	Audit            AuditConfig
	AllowCORSOrigins []string
}

const defaultSessionSecret = "change-me"

var (
	ErrBackendRequired  = errors.New("backend.baseurl is required")
	ErrPostgresRequired = errors.New("postgres.dsn is required")
	ErrInsecureSecret   = errors.New("session.secret must be set in production")
)

// Load reads the configuration of the binaries that call the backend.
func Load() (*AppConfig, error) {
	cfg, err := load(newViper("config", "PUBDETECT"))
	if err != nil {
		return nil, err
	}
	if cfg.Backend.BaseURL == "" {
		return nil, ErrBackendRequired
	}
	return cfg, nil
}

// LoadDashboard is Load plus the checks for the cookie-issuing server.
func LoadDashboard() (*AppConfig, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if cfg.IsProduction() {
		secret := strings.TrimSpace(cfg.Session.Secret)
		if secret == "" || secret == defaultSessionSecret {
			return nil, ErrInsecureSecret
		}
	}
	return cfg, nil
}

// LoadGateway only needs the relational store.
func LoadGateway() (*AppConfig, error) {
	cfg, err := load(newViper("config", "PUBDETECT"))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return nil, ErrPostgresRequired
	}
	return cfg, nil
}

func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func newViper(name, prefix string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func load(v *viper.Viper) (*AppConfig, error) {
	setDefaults(v)

	// Deployments also set these without a prefix.
	_ = v.BindEnv("postgres.dsn", "PUBDETECT_POSTGRES_DSN", "DATABASE_URL")
	_ = v.BindEnv("backend.baseurl", "PUBDETECT_BACKEND_BASEURL", "BACKEND_URL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, decodeHooks); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func decodeHooks(dc *mapstructure.DecoderConfig) {
	dc.TagName = "mapstructure"
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "30s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("relay.host", "0.0.0.0")
	v.SetDefault("relay.port", 8787)
	v.SetDefault("relay.readtimeout", "10s")
	v.SetDefault("relay.writetimeout", "30s")
	v.SetDefault("relay.idletimeout", "60s")

	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 3001)
	v.SetDefault("gateway.readtimeout", "5s")
	v.SetDefault("gateway.writetimeout", "5s")
	v.SetDefault("gateway.idletimeout", "60s")

	v.SetDefault("backend.baseurl", "")
	v.SetDefault("backend.predictpath", "/predict/")
	v.SetDefault("backend.timeout", "20s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 10)
	v.SetDefault("postgres.maxidle", 2)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucket", "pubdetect-captures")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("session.cookiename", "pubdetect_sid")
	v.SetDefault("session.secret", defaultSessionSecret)
	v.SetDefault("session.ttl", "12h")
	v.SetDefault("session.secure", false)

	v.SetDefault("capture.maxuploadbytes", 5<<20)
	v.SetDefault("capture.previewwidth", 320)
	v.SetDefault("capture.bufferttl", "15m")

	v.SetDefault("audit.stream", "dashboard:audit")
	v.SetDefault("audit.retention", "720h") // 30 days

	v.SetDefault("allowcorsorigins", []string{})
}

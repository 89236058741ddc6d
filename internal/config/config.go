package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileEnv names the environment variable holding an optional config file path.
const FileEnv = "EVERCONNECT_CONFIG"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Alert     AlertConfig     `mapstructure:"alert"`
}

type ServerConfig struct {
	Port       int `mapstructure:"port"`
	MaxWorkers int `mapstructure:"max_workers"`
	// WorkerLifetime is how long a worker serves before it is recycled.
	WorkerLifetime  time.Duration `mapstructure:"worker_lifetime"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type CacheConfig struct {
	Namespace   string        `mapstructure:"namespace"`
	RunLocalTTL time.Duration `mapstructure:"run_local_ttl"`
	PayloadTTL  time.Duration `mapstructure:"payload_ttl"`
	Capacity    int           `mapstructure:"capacity"`
	// RedisURL enables the shared response store when set.
	RedisURL string `mapstructure:"redis_url"`
}

type UpstreamConfig struct {
	SDKBridgeURL   string        `mapstructure:"sdk_bridge_url"`
	DefaultNetwork string        `mapstructure:"default_network"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RPS            float64       `mapstructure:"rps"`
	Burst          int           `mapstructure:"burst"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// UploadConfig is accepted for compatibility with older deployments. Nothing
// serves uploads.
type UploadConfig struct {
	Dir        string   `mapstructure:"dir"`
	AllowedExt []string `mapstructure:"allowed_ext"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// File, when set, receives logs through a rotating writer.
	File string `mapstructure:"file"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type AlertConfig struct {
	SlackWebhookURL string        `mapstructure:"slack_webhook_url"`
	WebhookURL      string        `mapstructure:"webhook_url"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	// CrashLoopExits consecutive short-lived workers mark a slot as crash looping.
	CrashLoopExits int           `mapstructure:"crash_loop_exits"`
	MinUptime      time.Duration `mapstructure:"min_uptime"`
}

var envBindings = map[string][]string{
	"server.port":              {"PORT", "BIND_PORT"},
	"server.max_workers":       {"MAX_WORKERS", "WORKERS"},
	"server.worker_lifetime":   {"WORKER_LIFETIME"},
	"server.shutdown_timeout":  {"SHUTDOWN_TIMEOUT"},
	"cache.namespace":          {"CACHE_NAMESPACE", "SHARED_CACHE_NAME"},
	"cache.run_local_ttl":      {"RUNLOCAL_TTL"},
	"cache.payload_ttl":        {"PAYLOAD_TTL"},
	"cache.capacity":           {"CACHE_CAPACITY"},
	"cache.redis_url":          {"REDIS_URL"},
	"upstream.sdk_bridge_url":  {"SDK_BRIDGE_URL"},
	"upstream.default_network": {"DEFAULT_NETWORK"},
	"upstream.timeout":         {"UPSTREAM_TIMEOUT"},
	"upstream.rps":             {"UPSTREAM_RPS"},
	"upstream.burst":           {"UPSTREAM_BURST"},
	"rate_limit.rps":           {"RATE_LIMIT_RPS"},
	"rate_limit.burst":         {"RATE_LIMIT_BURST"},
	"upload.dir":               {"UPLOAD_DIR"},
	"upload.allowed_ext":       {"ALLOWED_EXT"},
	"log.level":                {"LOG_LEVEL"},
	"log.file":                 {"LOG_FILE"},
	"tracing.endpoint":         {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	"tracing.insecure":         {"OTEL_INSECURE"},
	"tracing.sample_ratio":     {"OTEL_SAMPLE_RATIO"},
	"alert.slack_webhook_url":  {"ALERT_SLACK_WEBHOOK_URL"},
	"alert.webhook_url":        {"ALERT_WEBHOOK_URL"},
	"alert.cooldown":           {"ALERT_COOLDOWN"},
	"alert.crash_loop_exits":   {"ALERT_CRASH_LOOP_EXITS"},
	"alert.min_uptime":         {"ALERT_MIN_UPTIME"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3019)
	v.SetDefault("server.max_workers", 2*runtime.NumCPU())
	v.SetDefault("server.worker_lifetime", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("cache.namespace", "everscaleConnect")
	v.SetDefault("cache.run_local_ttl", 5*time.Second)
	v.SetDefault("cache.payload_ttl", time.Minute)
	v.SetDefault("cache.capacity", 10_000)
	v.SetDefault("upstream.sdk_bridge_url", "http://localhost:8081/rpc")
	v.SetDefault("upstream.default_network", "eri01.main.everos.dev")
	v.SetDefault("upstream.timeout", 8*time.Second)
	v.SetDefault("upstream.rps", 50.0)
	v.SetDefault("upstream.burst", 100)
	v.SetDefault("rate_limit.rps", 20.0)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("upload.dir", "public/uploads")
	v.SetDefault("upload.allowed_ext", []string{"jpg", "jpeg", "png"})
	v.SetDefault("log.level", "info")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("alert.cooldown", 30*time.Minute)
	v.SetDefault("alert.crash_loop_exits", 3)
	v.SetDefault("alert.min_uptime", 10*time.Second)
}

// Load reads the environment and, when EVERCONNECT_CONFIG points at an
// existing file, that file. Environment values win over the file.
func Load() (*Config, error) {
	return load(os.Getenv(FileEnv))
}

func load(filePath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	if filePath != "" {
		v.SetConfigFile(filePath)
		if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", filePath, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Upload.AllowedExt = splitList(cfg.Upload.AllowedExt)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		if err := v.BindEnv(slices.Insert(slices.Clone(envs), 0, key)...); err != nil {
			return err
		}
	}
	return nil
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.MaxWorkers < 1 {
		return fmt.Errorf("MAX_WORKERS must be positive, got %d", c.Server.MaxWorkers)
	}
	if c.Server.WorkerLifetime <= 0 {
		return fmt.Errorf("WORKER_LIFETIME must be positive")
	}
	if c.Upstream.SDKBridgeURL == "" {
		return fmt.Errorf("SDK_BRIDGE_URL is required")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.Cache.RunLocalTTL <= 0 || c.Cache.PayloadTTL <= 0 {
		return fmt.Errorf("RUNLOCAL_TTL and PAYLOAD_TTL must be positive")
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("CACHE_CAPACITY must be positive, got %d", c.Cache.Capacity)
	}
	if c.Cache.Namespace == "" {
		return fmt.Errorf("CACHE_NAMESPACE is required")
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be in [0,1], got %g", c.Tracing.SampleRatio)
	}
	if c.Alert.CrashLoopExits < 1 {
		return fmt.Errorf("ALERT_CRASH_LOOP_EXITS must be positive, got %d", c.Alert.CrashLoopExits)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

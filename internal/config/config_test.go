package config

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envBindings {
		for _, env := range envs {
			t.Setenv(env, "")
		}
	}
	t.Setenv(FileEnv, "")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3019, cfg.Server.Port)
	assert.Equal(t, 2*runtime.NumCPU(), cfg.Server.MaxWorkers)
	assert.Equal(t, 5*time.Minute, cfg.Server.WorkerLifetime)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "everscaleConnect", cfg.Cache.Namespace)
	assert.Equal(t, 5*time.Second, cfg.Cache.RunLocalTTL)
	assert.Equal(t, time.Minute, cfg.Cache.PayloadTTL)
	assert.Equal(t, 10_000, cfg.Cache.Capacity)
	assert.Empty(t, cfg.Cache.RedisURL)
	assert.Equal(t, "eri01.main.everos.dev", cfg.Upstream.DefaultNetwork)
	assert.Equal(t, 8*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "public/uploads", cfg.Upload.Dir)
	assert.Equal(t, []string{"jpg", "jpeg", "png"}, cfg.Upload.AllowedExt)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Log.File)
	assert.Empty(t, cfg.Tracing.Endpoint)
	assert.Empty(t, cfg.Alert.SlackWebhookURL)
	assert.Equal(t, 30*time.Minute, cfg.Alert.Cooldown)
	assert.Equal(t, 3, cfg.Alert.CrashLoopExits)
	assert.Equal(t, 10*time.Second, cfg.Alert.MinUptime)
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("MAX_WORKERS", "3")
	t.Setenv("WORKER_LIFETIME", "20m")
	t.Setenv("RUNLOCAL_TTL", "2s")
	t.Setenv("REDIS_URL", "redis://redis:6379/0")
	t.Setenv("RATE_LIMIT_RPS", "0")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_INSECURE", "true")
	t.Setenv("ALERT_WEBHOOK_URL", "https://hooks.example/everconnect")
	t.Setenv("ALERT_COOLDOWN", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Server.MaxWorkers)
	assert.Equal(t, 20*time.Minute, cfg.Server.WorkerLifetime)
	assert.Equal(t, 2*time.Second, cfg.Cache.RunLocalTTL)
	assert.Equal(t, "redis://redis:6379/0", cfg.Cache.RedisURL)
	assert.Zero(t, cfg.RateLimit.RPS)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "otel:4317", cfg.Tracing.Endpoint)
	assert.True(t, cfg.Tracing.Insecure)
	assert.Equal(t, "https://hooks.example/everconnect", cfg.Alert.WebhookURL)
	assert.Equal(t, 5*time.Minute, cfg.Alert.Cooldown)
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("BIND_PORT", "4000")
	t.Setenv("WORKERS", "5")
	t.Setenv("SHARED_CACHE_NAME", "legacy")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Server.MaxWorkers)
	assert.Equal(t, "legacy", cfg.Cache.Namespace)
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "everconnect.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 5000
  max_workers: 4
cache:
  namespace: fromfile
upstream:
  default_network: net.ton.dev
`), 0o600))
	t.Setenv(FileEnv, path)
	t.Setenv("MAX_WORKERS", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Server.MaxWorkers, "env wins over file")
	assert.Equal(t, "fromfile", cfg.Cache.Namespace)
	assert.Equal(t, "net.ton.dev", cfg.Upstream.DefaultNetwork)
}

func TestLoad_MissingConfigFileIsIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3019, cfg.Server.Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"no workers", map[string]string{"MAX_WORKERS": "0"}},
		{"negative rate", map[string]string{"RATE_LIMIT_RPS": "-1"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"bad sample ratio", map[string]string{"OTEL_SAMPLE_RATIO": "2"}},
		{"zero capacity", map[string]string{"CACHE_CAPACITY": "0"}},
		{"malformed duration", map[string]string{"WORKER_LIFETIME": "soon"}},
		{"no crash loop threshold", map[string]string{"ALERT_CRASH_LOOP_EXITS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a, b", " ", "c"}))
	assert.Empty(t, splitList(nil))
}

// configKeys lists the dotted mapstructure path of every leaf field.
func configKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := prefix + f.Tag.Get("mapstructure")
		if f.Type.Kind() == reflect.Struct {
			keys = append(keys, configKeys(f.Type, key+".")...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func TestEnvBindings_MatchConfigFields(t *testing.T) {
	bound := make([]string, 0, len(envBindings))
	for key := range envBindings {
		bound = append(bound, key)
	}
	sort.Strings(bound)

	fields := configKeys(reflect.TypeOf(Config{}), "")
	sort.Strings(fields)

	assert.Equal(t, fields, bound)
	assert.NotContains(t, bound, "upstream.abi_registry_urls")
}

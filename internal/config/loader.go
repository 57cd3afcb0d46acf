// Package config loads the layered mesosproxy configuration.
//
// Precedence, lowest to highest: defaults, config file, MESOSPROXY_* env
// vars, runtime overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the config file, env prefix and data directory.
	AppName = "mesosproxy"

	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "MESOSPROXY"
)

// Session backends.
const (
	BackendFile = "file"
	BackendS3   = "s3"
)

// Config is the complete application configuration.
type Config struct {
	Mesos    MesosConfig    `mapstructure:"mesos"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// MesosConfig configures the master client.
type MesosConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Gzip        bool          `mapstructure:"gzip"`

	// RateLimit caps requests per second; zero disables pacing.
	RateLimit float64 `mapstructure:"rate_limit"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`
}

// ProxyConfig configures the process proxy state machine.
type ProxyConfig struct {
	LaunchTimeout       time.Duration `mapstructure:"launch_timeout"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts     int           `mapstructure:"max_poll_attempts"`
	ShutdownWaitTime    time.Duration `mapstructure:"shutdown_wait_time"`
	MinShutdownWaitTime time.Duration `mapstructure:"min_shutdown_wait_time"`
	LocalIP             string        `mapstructure:"local_ip"`
}

// SessionsConfig selects where kernel session records are kept.
type SessionsConfig struct {
	Backend string          `mapstructure:"backend"`
	Dir     string          `mapstructure:"dir"`
	S3      SessionS3Config `mapstructure:"s3"`
}

// SessionS3Config configures the S3 session backend. Credentials come from
// the AWS default chain unless a profile is named.
type SessionS3Config struct {
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// ServerConfig configures the HTTP server started by serve.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig toggles the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// Load builds the configuration from defaults, the default config file,
// env vars and runtime overrides.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile is Load with an explicit config file. An explicit file must exist;
// the default file is optional.
func LoadFile(ctx context.Context, path string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		for _, dir := range configSearchPaths() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	for _, o := range overrides {
		for key, value := range flatten("", o) {
			v.Set(key, value)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// DataDir returns the application data directory.
func DataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

func configSearchPaths() []string {
	return []string{".", DataDir()}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mesos.endpoint", "http://localhost:5050")
	v.SetDefault("mesos.timeout", "30s")
	v.SetDefault("mesos.max_attempts", 3)
	v.SetDefault("mesos.gzip", true)
	v.SetDefault("mesos.rate_limit", 0)
	v.SetDefault("mesos.username", "")
	v.SetDefault("mesos.password", "")
	v.SetDefault("mesos.token", "")

	v.SetDefault("proxy.launch_timeout", "30s")
	v.SetDefault("proxy.poll_interval", "500ms")
	v.SetDefault("proxy.max_poll_attempts", 10)
	v.SetDefault("proxy.shutdown_wait_time", "5s")
	v.SetDefault("proxy.min_shutdown_wait_time", "15s")
	v.SetDefault("proxy.local_ip", "")

	v.SetDefault("sessions.backend", BackendFile)
	v.SetDefault("sessions.dir", filepath.Join(DataDir(), "sessions"))
	v.SetDefault("sessions.s3.bucket", "")
	v.SetDefault("sessions.s3.prefix", "mesosproxy/sessions/")
	v.SetDefault("sessions.s3.region", "")
	v.SetDefault("sessions.s3.endpoint", "")
	v.SetDefault("sessions.s3.profile", "")
	v.SetDefault("sessions.s3.force_path_style", false)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", AppName)

	v.SetDefault("logging.level", "info")
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// Validate checks values that cannot be fixed by falling back to defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Mesos.Endpoint) == "" {
		return errors.New("mesos.endpoint is required")
	}
	if c.Mesos.MaxAttempts < 1 {
		return fmt.Errorf("mesos.max_attempts must be at least 1, got %d", c.Mesos.MaxAttempts)
	}
	if c.Mesos.RateLimit < 0 {
		return fmt.Errorf("mesos.rate_limit must not be negative, got %v", c.Mesos.RateLimit)
	}
	if c.Mesos.Token != "" && c.Mesos.Username != "" {
		return errors.New("mesos.token and mesos.username are mutually exclusive")
	}
	switch c.Sessions.Backend {
	case BackendFile:
		if c.Sessions.Dir == "" {
			return errors.New("sessions.dir is required for the file backend")
		}
	case BackendS3:
		if c.Sessions.S3.Bucket == "" {
			return errors.New("sessions.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown sessions.backend %q (want %s or %s)", c.Sessions.Backend, BackendFile, BackendS3)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the daemon configuration, loaded from file, environment and
// flags in that order of precedence.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	TrustProxy      bool          `mapstructure:"trust_proxy"` // rate-limit on X-Forwarded-For
	TLSEnabled      bool          `mapstructure:"tls_enabled"`
	TLSCertFile     string        `mapstructure:"tls_cert_file"`
	TLSKeyFile      string        `mapstructure:"tls_key_file"`
}

type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres or memory
	Path string `mapstructure:"path"` // sqlite file
	DSN  string `mapstructure:"dsn"`  // postgres connection string
}

type PathsConfig struct {
	Workers      string `mapstructure:"workers"`
	Assets       string `mapstructure:"assets"`
	CustomModels string `mapstructure:"custom_models"`
	Uploads      string `mapstructure:"uploads"`
	Logs         string `mapstructure:"logs"`
	Usecases     string `mapstructure:"usecases"` // optional catalog override file
}

type WorkersConfig struct {
	PortBase     int           `mapstructure:"port_base"`
	PortCount    int           `mapstructure:"port_count"`
	StopGrace    time.Duration `mapstructure:"stop_grace"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	AutoSetup    bool          `mapstructure:"auto_setup"`
}

type MonitorConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Retention time.Duration `mapstructure:"retention"`
}

type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Environment  string `mapstructure:"environment"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Load reads configuration. path may be empty, in which case the default
// locations are searched; a missing config file is not an error because
// every value has a default.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("INFERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("inferd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/inferd")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit_rps", 50.0)
	v.SetDefault("server.rate_limit_burst", 100)
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.tls_enabled", false)
	v.SetDefault("server.tls_cert_file", "inferd.crt")
	v.SetDefault("server.tls_key_file", "inferd.key")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "inferd.db")

	v.SetDefault("paths.workers", "./workers")
	v.SetDefault("paths.assets", "./assets")
	v.SetDefault("paths.custom_models", "./custom_models")
	v.SetDefault("paths.uploads", "./uploads")
	v.SetDefault("paths.logs", "./logs")

	v.SetDefault("workers.port_base", 5000)
	v.SetDefault("workers.port_count", 200)
	v.SetDefault("workers.stop_grace", 10*time.Second)
	v.SetDefault("workers.poll_interval", 5*time.Second)
	v.SetDefault("workers.auto_setup", false)

	v.SetDefault("monitor.interval", 2*time.Second)
	v.SetDefault("monitor.retention", time.Hour)

	v.SetDefault("auth.api_key", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.json", false)
}

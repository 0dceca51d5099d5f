package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Backend    BackendConfig    `mapstructure:"backend"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Retention  RetentionConfig  `mapstructure:"retention"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BackendConfig struct {
	Type     string         `mapstructure:"type"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	MySQL    DatabaseConfig `mapstructure:"mysql"`
	Postgres DatabaseConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`

	// Monoprocess wakes the local scheduler as soon as a job becomes due.
	Monoprocess bool `mapstructure:"monoprocess"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	Notifications bool   `mapstructure:"notifications"`
}

// RedisConfig configures redis for locks and jobs. Instances, bookmarks and definitions are kept
// in the sqlite database at StorePath.
type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	StorePath string `mapstructure:"store_path"`
}

type TracingConfig struct {
	// Exporter is one of none, stdout or otlp.
	Exporter string `mapstructure:"exporter"`
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type DispatcherConfig struct {
	LockTimeout        time.Duration `mapstructure:"lock_timeout"`
	LockLease          time.Duration `mapstructure:"lock_lease"`
	MaxParallelResumes int           `mapstructure:"max_parallel_resumes"`
	MaxSteps           int           `mapstructure:"max_steps"`
}

type SchedulerConfig struct {
	NodeID            string        `mapstructure:"node_id"`
	Pollers           int           `mapstructure:"pollers"`
	MaxParallelJobs   int           `mapstructure:"max_parallel_jobs"`
	PollingInterval   time.Duration `mapstructure:"polling_interval"`
	ClaimTimeout      time.Duration `mapstructure:"claim_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
}

type RetentionConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Retention time.Duration `mapstructure:"retention"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("backend.type", "sqlite")
	v.SetDefault("backend.sqlite.path", "dispatch.db")
	v.SetDefault("backend.mysql.host", "localhost")
	v.SetDefault("backend.mysql.port", 3306)
	v.SetDefault("backend.mysql.user", "root")
	v.SetDefault("backend.mysql.database", "dispatch")
	v.SetDefault("backend.postgres.host", "localhost")
	v.SetDefault("backend.postgres.port", 5432)
	v.SetDefault("backend.postgres.user", "postgres")
	v.SetDefault("backend.postgres.database", "dispatch")
	v.SetDefault("backend.redis.address", "localhost:6379")
	v.SetDefault("backend.redis.store_path", "dispatch.db")

	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.endpoint", "localhost:4318")

	v.SetDefault("dispatcher.lock_timeout", 5*time.Second)
	v.SetDefault("dispatcher.lock_lease", 30*time.Second)
	v.SetDefault("dispatcher.max_parallel_resumes", 8)
	v.SetDefault("dispatcher.max_steps", 1000)

	v.SetDefault("scheduler.pollers", 1)
	v.SetDefault("scheduler.max_parallel_jobs", 8)
	v.SetDefault("scheduler.polling_interval", time.Second)
	v.SetDefault("scheduler.claim_timeout", 30*time.Second)
	v.SetDefault("scheduler.heartbeat_interval", 10*time.Second)
	v.SetDefault("scheduler.retry_delay", 5*time.Second)

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.retention", 7*24*time.Hour)
	v.SetDefault("retention.interval", time.Hour)
	v.SetDefault("retention.batch_size", 100)
}

func loadConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return &cfg, nil
}

func newLogger(cfg LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

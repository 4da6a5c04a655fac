package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig controls persistence.
type DatabaseConfig struct {
	Driver          string `json:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" env:"DATABASE_PORT"`
	User            string `json:"user" env:"DATABASE_USER"`
	Password        string `json:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// TracingConfig configures OTLP/Tracing exporters.
type TracingConfig struct {
	Endpoint           string            `json:"endpoint" env:"TRACING_OTLP_ENDPOINT"`
	Insecure           bool              `json:"insecure" env:"TRACING_OTLP_INSECURE"`
	ServiceName        string            `json:"service_name" env:"TRACING_SERVICE_NAME"`
	ResourceAttributes map[string]string `json:"resource_attributes" mapstructure:"resource_attributes"`
	AttributesEnv      string            `json:"-" yaml:"-" env:"TRACING_OTLP_ATTRIBUTES"`
}

// SchedulerConfig controls the token-flow interpreter's worker pool and the
// retry budget applied to a work unit before it is parked as an incident.
type SchedulerConfig struct {
	// Workers is the number of concurrent work-unit executors. Zero means
	// "size from host resources" (see infrastructure/runtime.SizeWorkerPool).
	Workers int `json:"workers" env:"SCHEDULER_WORKERS"`
	// QueueSize bounds the in-memory dispatch queue per scheduler shard.
	QueueSize int `json:"queue_size" env:"SCHEDULER_QUEUE_SIZE"`
	// MaxRetries is the number of work-unit retries before an incident is raised.
	MaxRetries int `json:"max_retries" env:"SCHEDULER_MAX_RETRIES"`
	// RetryInitialDelay/RetryMaxDelay feed infrastructure/resilience.RetryConfig.
	RetryInitialDelay time.Duration `json:"retry_initial_delay" env:"SCHEDULER_RETRY_INITIAL_DELAY"`
	RetryMaxDelay     time.Duration `json:"retry_max_delay" env:"SCHEDULER_RETRY_MAX_DELAY"`
}

// TimerConfig controls the timer-subscription polling loop.
type TimerConfig struct {
	// PollInterval is how often the scheduler looks for due timer subscriptions.
	PollInterval time.Duration `json:"poll_interval" env:"TIMER_POLL_INTERVAL"`
	// CronDialect names the dialect accepted for cyclic timers; "standard"
	// selects robfig/cron's 5-field parser (no seconds field).
	CronDialect string `json:"cron_dialect" env:"TIMER_CRON_DIALECT"`
}

// OutboxConfig controls the lifecycle-event outbox publisher and janitor.
type OutboxConfig struct {
	BatchSize          int           `json:"batch_size" env:"OUTBOX_BATCH_SIZE"`
	TickInterval       time.Duration `json:"tick_interval" env:"OUTBOX_TICK_INTERVAL"`
	RetryTickInterval  time.Duration `json:"retry_tick_interval" env:"OUTBOX_RETRY_TICK_INTERVAL"`
	MaxRetries         int           `json:"max_retries" env:"OUTBOX_MAX_RETRIES"`
	PublishRatePerSec  float64       `json:"publish_rate_per_sec" env:"OUTBOX_PUBLISH_RATE_PER_SEC"`
	JanitorInterval    time.Duration `json:"janitor_interval" env:"OUTBOX_JANITOR_INTERVAL"`
	ProcessedRetention time.Duration `json:"processed_retention" env:"OUTBOX_PROCESSED_RETENTION"`
}

// Config is the top-level configuration structure.
type Config struct {
	Database  DatabaseConfig  `json:"database"`
	Logging   LoggingConfig   `json:"logging"`
	Tracing   TracingConfig   `json:"tracing"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Timer     TimerConfig     `json:"timer"`
	Outbox    OutboxConfig    `json:"outbox"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "flowlayer",
		},
		Tracing: TracingConfig{},
		Scheduler: SchedulerConfig{
			Workers:           0,
			QueueSize:         256,
			MaxRetries:        3,
			RetryInitialDelay: 500 * time.Millisecond,
			RetryMaxDelay:     30 * time.Second,
		},
		Timer: TimerConfig{
			PollInterval: 5 * time.Second,
			CronDialect:  "standard",
		},
		Outbox: OutboxConfig{
			BatchSize:          100,
			TickInterval:       2 * time.Second,
			RetryTickInterval:  time.Minute,
			MaxRetries:         8,
			PublishRatePerSec:  50,
			JanitorInterval:    time.Hour,
			ProcessedRetention: 30 * 24 * time.Hour,
		},
	}
}

// ConnectionString builds a PostgreSQL connection string using host parameters.
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Load loads configuration from file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when no tagged fields are present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)
	cfg.normalize()

	return cfg, nil
}

// LoadFile reads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	cfg.normalize()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}

// LoadConfig is a helper used by tests to load JSON config snippets.
func LoadConfig(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	cfg.normalize()
	return cfg, nil
}

// applyDatabaseURLOverride lets DATABASE_URL override any file-based DSN, so
// a single env var is enough to point the worker at a database.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}

func (t *TracingConfig) normalize() {
	if t == nil {
		return
	}
	t.MergeAttributes(t.AttributesEnv)
}

// MergeAttributes merges comma-separated key=value pairs into ResourceAttributes.
func (t *TracingConfig) MergeAttributes(raw string) {
	if t == nil {
		return
	}
	pairs := parseAttributePairs(raw)
	if len(pairs) == 0 {
		return
	}
	if t.ResourceAttributes == nil {
		t.ResourceAttributes = make(map[string]string, len(pairs))
	}
	for k, v := range pairs {
		if k == "" {
			continue
		}
		t.ResourceAttributes[k] = v
	}
}

func parseAttributePairs(raw string) map[string]string {
	result := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		key := strings.TrimSpace(kv[0])
		if key == "" {
			continue
		}
		val := ""
		if len(kv) > 1 {
			val = strings.TrimSpace(kv[1])
		}
		result[key] = val
	}
	return result
}

func (c *Config) normalize() {
	if c == nil {
		return
	}
	c.Tracing.normalize()
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram channel settings.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"TELEGRAM_ENABLED"`
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	// TokenParam names an SSM parameter holding the token; resolved at bootstrap when Token is empty.
	TokenParam string `yaml:"token_param" envconfig:"BOT_TOKEN_PARAM"`
	RunMode    string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// HTTPConfig configures the HTTP/WebSocket channel. An empty Listen disables it.
type HTTPConfig struct {
	Listen         string   `yaml:"listen" envconfig:"HTTP_LISTEN"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"HTTP_ALLOWED_ORIGINS"`
	BotID          string   `yaml:"bot_id" envconfig:"HTTP_BOT_ID"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	// MigrationsDir is resolved against the working directory when relative.
	MigrationsDir string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// RedisConfig holds Redis backend settings.
type RedisConfig struct {
	Addr     string        `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string        `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string        `yaml:"prefix" envconfig:"REDIS_PREFIX"`
	TTL      time.Duration `yaml:"ttl" envconfig:"REDIS_TTL"`
}

// DynamoConfig holds DynamoDB backend settings.
type DynamoConfig struct {
	Table string        `yaml:"table" envconfig:"STATE_TABLE"`
	TTL   time.Duration `yaml:"ttl" envconfig:"STATE_TABLE_TTL"`
}

// StateConfig selects and configures the conversation/user state backend.
type StateConfig struct {
	Backend  string         `yaml:"backend" envconfig:"STATE_BACKEND"`
	Postgres DatabaseConfig `yaml:"postgres"`
	SQLite   string         `yaml:"sqlite_path" envconfig:"STATE_SQLITE_PATH"`
	Redis    RedisConfig    `yaml:"redis"`
	DynamoDB DynamoConfig   `yaml:"dynamodb"`
}

// DialogConfig controls the booking script and stale dialog expiry.
type DialogConfig struct {
	Confirm bool `yaml:"confirm" envconfig:"DIALOG_CONFIRM"`
	Card    bool `yaml:"card" envconfig:"DIALOG_CARD"`
	// TTL bounds how long a dialog may wait for a reply; 0 disables the sweeper.
	TTL           time.Duration `yaml:"ttl" envconfig:"DIALOG_TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"DIALOG_SWEEP_INTERVAL"`
}

// SenderConfig tunes the outbound dispatcher.
type SenderConfig struct {
	Workers      int           `yaml:"workers" envconfig:"SENDER_WORKERS"`
	QueueSize    int           `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoff time.Duration `yaml:"retry_backoff" envconfig:"SENDER_RETRY_BACKOFF"`
	// EnqueueWait bounds how long a reply waits for room in a full chat queue.
	EnqueueWait time.Duration `yaml:"enqueue_wait" envconfig:"SENDER_ENQUEUE_WAIT"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// BackendMemory keeps state in process memory.
	BackendMemory = "memory"
	// BackendPostgres stores state in PostgreSQL.
	BackendPostgres = "postgres"
	// BackendSQLite stores state in a SQLite file.
	BackendSQLite = "sqlite"
	// BackendRedis stores state in Redis.
	BackendRedis = "redis"
	// BackendDynamoDB stores state in a DynamoDB table.
	BackendDynamoDB = "dynamodb"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateMember identifies chat member updates for rate limit exclusions.
	UpdateMember = "member"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "member": users joining a chat
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	State     StateConfig     `yaml:"state"`
	Dialog    DialogConfig    `yaml:"dialog"`
	Sender    SenderConfig    `yaml:"sender"`
}

// Load reads configuration from a YAML file, an optional .env file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	loadDotEnv()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv builds configuration from environment variables only (serverless deployments).
func LoadEnv() (*Config, error) {
	var cfg Config
	loadDotEnv()
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv() {
	for _, p := range []string{".env", "../.env"} {
		if err := godotenv.Load(p); err == nil {
			return
		}
	}
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}

	if err := normalizeTelegram(cfg); err != nil {
		return err
	}
	if err := normalizeState(&cfg.State); err != nil {
		return err
	}

	if cfg.Dialog.TTL < 0 {
		return errors.New("dialog.ttl must be >= 0")
	}
	if cfg.Dialog.TTL > 0 && cfg.Dialog.SweepInterval <= 0 {
		cfg.Dialog.SweepInterval = time.Minute
	}
	if strings.TrimSpace(cfg.HTTP.BotID) == "" {
		cfg.HTTP.BotID = "airbot"
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
		UpdateMember:   {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, member", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

func normalizeTelegram(cfg *Config) error {
	if !cfg.Telegram.Enabled {
		return nil
	}
	if cfg.Telegram.Token == "" && cfg.Telegram.TokenParam == "" {
		return errors.New("telegram token or token_param is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return errors.New("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return errors.New("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return errors.New("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return errors.New("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	return nil
}

func normalizeState(st *StateConfig) error {
	backend := strings.ToLower(strings.TrimSpace(st.Backend))
	if backend == "" {
		backend = BackendMemory
	}
	switch backend {
	case BackendMemory:
	case BackendPostgres:
		if strings.TrimSpace(st.Postgres.Host) == "" || strings.TrimSpace(st.Postgres.Name) == "" {
			return errors.New("state.postgres.host and state.postgres.name are required for the postgres backend")
		}
		if st.Postgres.Port == "" {
			st.Postgres.Port = "5432"
		}
		if st.Postgres.SSLMode == "" {
			st.Postgres.SSLMode = "disable"
		}
		if st.Postgres.MaxConnections <= 0 {
			st.Postgres.MaxConnections = 10
		}
		if st.Postgres.MigrationsDir == "" {
			st.Postgres.MigrationsDir = "migrations"
		}
	case BackendSQLite:
		if strings.TrimSpace(st.SQLite) == "" {
			st.SQLite = "./data/airbot.db"
		}
	case BackendRedis:
		if strings.TrimSpace(st.Redis.Addr) == "" {
			return errors.New("state.redis.addr is required for the redis backend")
		}
		if st.Redis.Prefix == "" {
			st.Redis.Prefix = "airbot"
		}
		if st.Redis.TTL < 0 {
			return errors.New("state.redis.ttl must be >= 0")
		}
	case BackendDynamoDB:
		if strings.TrimSpace(st.DynamoDB.Table) == "" {
			return errors.New("state.dynamodb.table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("invalid state.backend %q; allowed: memory, postgres, sqlite, redis, dynamodb", st.Backend)
	}
	st.Backend = backend
	return nil
}

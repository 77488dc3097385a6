// Package config loads the RelayPoint router configuration. Values come
// from RELAYPOINT_-prefixed environment variables, optionally layered over
// a TOML file (see loader.go). Precedence: defaults < file < environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the RelayPoint router
type Config struct {
	// HTTP server configuration
	HTTP HTTPConfig

	// Queue configuration (embedded NATS, external NATS, SQS, or ActiveMQ)
	Queue QueueConfig

	// Router holds control plane sync and pool limit configuration
	Router RouterConfig

	// Standby holds warm-standby leader election configuration
	Standby StandbyConfig

	// Traffic holds traffic management configuration
	Traffic TrafficConfig

	// Notifications holds warning notification configuration
	Notifications NotificationConfig

	// Data directory for embedded services
	DataDir string

	// Development mode
	DevMode bool
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port        int
	CORSOrigins []string
}

// QueueConfig holds message broker configuration
type QueueConfig struct {
	Type string // "embedded", "nats", "sqs", "activemq"

	NATS     NATSConfig
	SQS      SQSConfig
	ActiveMQ ActiveMQConfig
}

// NATSConfig holds NATS configuration, for both the embedded server and an
// external cluster
type NATSConfig struct {
	URL          string
	DataDir      string
	StreamName   string
	ConsumerName string
	Subjects     []string
}

// SQSConfig holds AWS SQS configuration
type SQSConfig struct {
	QueueURL            string
	Region              string
	WaitTimeSeconds     int
	VisibilityTimeout   int
	MaxNumberOfMessages int
	MetricsPollSeconds  int
}

// ActiveMQConfig holds ActiveMQ STOMP configuration
type ActiveMQConfig struct {
	BrokerAddr string
	QueueName  string
	Username   string
	Password   string
	HeartBeat  time.Duration
	Prefetch   int
}

// RouterConfig holds control plane sync and pool limit configuration
type RouterConfig struct {
	// ConfigURL is the control plane base URL serving the routing document
	ConfigURL string

	// AuthToken authenticates config fetches. A "secret://name" value is
	// resolved through the secrets provider at startup.
	AuthToken string

	// SyncInterval is how often to re-fetch and apply the routing document
	SyncInterval time.Duration

	// MaxPools caps how many processing pools a config document may define
	MaxPools int

	// PoolWarnThreshold raises a warning when the pool count exceeds it
	PoolWarnThreshold int
}

// StandbyConfig holds warm-standby leader election configuration
type StandbyConfig struct {
	// Enabled controls whether leader election is active
	Enabled bool

	// InstanceID uniquely identifies this instance (defaults to HOSTNAME)
	InstanceID string

	// RedisURL is the Redis connection URL backing the leader lock
	RedisURL string

	// LockKey is the distributed lock key
	LockKey string

	// LockTTL is how long the lock is valid before expiring
	LockTTL time.Duration

	// RefreshInterval is how often to refresh the lock while primary
	RefreshInterval time.Duration
}

// TrafficConfig holds traffic management configuration
type TrafficConfig struct {
	Enabled  bool
	Strategy string
}

// NotificationConfig holds warning notification configuration
type NotificationConfig struct {
	Enabled     bool
	MinSeverity string
	BatchWindow time.Duration

	Email EmailConfig
	Teams TeamsConfig
}

// EmailConfig holds SMTP notification configuration
type EmailConfig struct {
	Enabled     bool
	SMTPHost    string
	SMTPPort    int
	Username    string
	Password    string
	FromAddress string
	ToAddress   string
}

// TeamsConfig holds Microsoft Teams webhook configuration
type TeamsConfig struct {
	Enabled    bool
	WebhookURL string
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := defaultConfig()
	applyEnv(cfg)
	return cfg, nil
}

// defaultConfig returns the built-in defaults before any file or
// environment overrides
func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:4200"},
		},
		Queue: QueueConfig{
			Type: "embedded",
			NATS: NATSConfig{
				URL:          "nats://localhost:4222",
				DataDir:      "./data/nats",
				StreamName:   "ROUTER",
				ConsumerName: "relaypoint-router",
				Subjects:     []string{"route.>"},
			},
			SQS: SQSConfig{
				Region:              "us-east-1",
				WaitTimeSeconds:     20,
				VisibilityTimeout:   120,
				MaxNumberOfMessages: 10,
				MetricsPollSeconds:  300,
			},
			ActiveMQ: ActiveMQConfig{
				BrokerAddr: "localhost:61613",
				QueueName:  "relaypoint.dispatch",
				HeartBeat:  10 * time.Second,
				Prefetch:   10,
			},
		},
		Router: RouterConfig{
			SyncInterval:      5 * time.Minute,
			MaxPools:          2000,
			PoolWarnThreshold: 1000,
		},
		Standby: StandbyConfig{
			RedisURL:        "redis://localhost:6379",
			LockKey:         "relaypoint:router:leader",
			LockTTL:         30 * time.Second,
			RefreshInterval: 10 * time.Second,
		},
		Traffic: TrafficConfig{
			Strategy: "noop",
		},
		Notifications: NotificationConfig{
			MinSeverity: "WARN",
			BatchWindow: 5 * time.Minute,
			Email: EmailConfig{
				SMTPPort: 587,
			},
		},
		DataDir: "./data",
	}
}

// applyEnv overlays environment variables onto cfg. Unset variables keep
// the current value, so this layers correctly over file-loaded configs.
func applyEnv(cfg *Config) {
	cfg.HTTP.Port = getEnvInt("RELAYPOINT_HTTP_PORT", cfg.HTTP.Port)
	cfg.HTTP.CORSOrigins = getEnvSlice("RELAYPOINT_CORS_ORIGINS", cfg.HTTP.CORSOrigins)

	cfg.Queue.Type = getEnv("RELAYPOINT_QUEUE_TYPE", cfg.Queue.Type)
	cfg.Queue.NATS.URL = getEnv("RELAYPOINT_NATS_URL", cfg.Queue.NATS.URL)
	cfg.Queue.NATS.DataDir = getEnv("RELAYPOINT_NATS_DATA_DIR", cfg.Queue.NATS.DataDir)
	cfg.Queue.NATS.StreamName = getEnv("RELAYPOINT_NATS_STREAM", cfg.Queue.NATS.StreamName)
	cfg.Queue.NATS.ConsumerName = getEnv("RELAYPOINT_NATS_CONSUMER", cfg.Queue.NATS.ConsumerName)
	cfg.Queue.NATS.Subjects = getEnvSlice("RELAYPOINT_NATS_SUBJECTS", cfg.Queue.NATS.Subjects)
	cfg.Queue.SQS.QueueURL = getEnv("RELAYPOINT_SQS_QUEUE_URL", cfg.Queue.SQS.QueueURL)
	cfg.Queue.SQS.Region = getEnv("AWS_REGION", cfg.Queue.SQS.Region)
	cfg.Queue.SQS.WaitTimeSeconds = getEnvInt("RELAYPOINT_SQS_WAIT_TIME_SECONDS", cfg.Queue.SQS.WaitTimeSeconds)
	cfg.Queue.SQS.VisibilityTimeout = getEnvInt("RELAYPOINT_SQS_VISIBILITY_TIMEOUT", cfg.Queue.SQS.VisibilityTimeout)
	cfg.Queue.SQS.MaxNumberOfMessages = getEnvInt("RELAYPOINT_SQS_MAX_MESSAGES", cfg.Queue.SQS.MaxNumberOfMessages)
	cfg.Queue.SQS.MetricsPollSeconds = getEnvInt("RELAYPOINT_SQS_METRICS_POLL_SECONDS", cfg.Queue.SQS.MetricsPollSeconds)
	cfg.Queue.ActiveMQ.BrokerAddr = getEnv("RELAYPOINT_ACTIVEMQ_ADDR", cfg.Queue.ActiveMQ.BrokerAddr)
	cfg.Queue.ActiveMQ.QueueName = getEnv("RELAYPOINT_ACTIVEMQ_QUEUE", cfg.Queue.ActiveMQ.QueueName)
	cfg.Queue.ActiveMQ.Username = getEnv("RELAYPOINT_ACTIVEMQ_USERNAME", cfg.Queue.ActiveMQ.Username)
	cfg.Queue.ActiveMQ.Password = getEnv("RELAYPOINT_ACTIVEMQ_PASSWORD", cfg.Queue.ActiveMQ.Password)
	cfg.Queue.ActiveMQ.HeartBeat = getEnvDuration("RELAYPOINT_ACTIVEMQ_HEARTBEAT", cfg.Queue.ActiveMQ.HeartBeat)
	cfg.Queue.ActiveMQ.Prefetch = getEnvInt("RELAYPOINT_ACTIVEMQ_PREFETCH", cfg.Queue.ActiveMQ.Prefetch)

	cfg.Router.ConfigURL = getEnv("RELAYPOINT_CONFIG_URL", cfg.Router.ConfigURL)
	cfg.Router.AuthToken = getEnv("RELAYPOINT_CONFIG_AUTH_TOKEN", cfg.Router.AuthToken)
	cfg.Router.SyncInterval = getEnvDuration("RELAYPOINT_CONFIG_SYNC_INTERVAL", cfg.Router.SyncInterval)
	cfg.Router.MaxPools = getEnvInt("RELAYPOINT_MAX_POOLS", cfg.Router.MaxPools)
	cfg.Router.PoolWarnThreshold = getEnvInt("RELAYPOINT_POOL_WARN_THRESHOLD", cfg.Router.PoolWarnThreshold)

	cfg.Standby.Enabled = getEnvBool("RELAYPOINT_STANDBY_ENABLED", cfg.Standby.Enabled)
	cfg.Standby.InstanceID = getEnv("RELAYPOINT_INSTANCE_ID", getEnv("HOSTNAME", cfg.Standby.InstanceID))
	cfg.Standby.RedisURL = getEnv("RELAYPOINT_REDIS_URL", cfg.Standby.RedisURL)
	cfg.Standby.LockKey = getEnv("RELAYPOINT_STANDBY_LOCK_KEY", cfg.Standby.LockKey)
	cfg.Standby.LockTTL = getEnvDuration("RELAYPOINT_STANDBY_LOCK_TTL", cfg.Standby.LockTTL)
	cfg.Standby.RefreshInterval = getEnvDuration("RELAYPOINT_STANDBY_REFRESH_INTERVAL", cfg.Standby.RefreshInterval)

	cfg.Traffic.Enabled = getEnvBool("RELAYPOINT_TRAFFIC_ENABLED", cfg.Traffic.Enabled)
	cfg.Traffic.Strategy = getEnv("RELAYPOINT_TRAFFIC_STRATEGY", cfg.Traffic.Strategy)

	cfg.Notifications.Enabled = getEnvBool("RELAYPOINT_NOTIFICATIONS_ENABLED", cfg.Notifications.Enabled)
	cfg.Notifications.MinSeverity = getEnv("RELAYPOINT_NOTIFY_MIN_SEVERITY", cfg.Notifications.MinSeverity)
	cfg.Notifications.BatchWindow = getEnvDuration("RELAYPOINT_NOTIFY_BATCH_WINDOW", cfg.Notifications.BatchWindow)
	cfg.Notifications.Email.Enabled = getEnvBool("RELAYPOINT_EMAIL_ENABLED", cfg.Notifications.Email.Enabled)
	cfg.Notifications.Email.SMTPHost = getEnv("RELAYPOINT_SMTP_HOST", cfg.Notifications.Email.SMTPHost)
	cfg.Notifications.Email.SMTPPort = getEnvInt("RELAYPOINT_SMTP_PORT", cfg.Notifications.Email.SMTPPort)
	cfg.Notifications.Email.Username = getEnv("RELAYPOINT_SMTP_USERNAME", cfg.Notifications.Email.Username)
	cfg.Notifications.Email.Password = getEnv("RELAYPOINT_SMTP_PASSWORD", cfg.Notifications.Email.Password)
	cfg.Notifications.Email.FromAddress = getEnv("RELAYPOINT_SMTP_FROM", cfg.Notifications.Email.FromAddress)
	cfg.Notifications.Email.ToAddress = getEnv("RELAYPOINT_SMTP_TO", cfg.Notifications.Email.ToAddress)
	cfg.Notifications.Teams.Enabled = getEnvBool("RELAYPOINT_TEAMS_ENABLED", cfg.Notifications.Teams.Enabled)
	cfg.Notifications.Teams.WebhookURL = getEnv("RELAYPOINT_TEAMS_WEBHOOK_URL", cfg.Notifications.Teams.WebhookURL)

	cfg.DataDir = getEnv("RELAYPOINT_DATA_DIR", cfg.DataDir)
	cfg.DevMode = getEnvBool("RELAYPOINT_DEV", cfg.DevMode)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

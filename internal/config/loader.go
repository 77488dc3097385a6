package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// TOMLConfig mirrors the TOML configuration file structure
type TOMLConfig struct {
	DataDir string `toml:"data_dir"`
	DevMode bool   `toml:"dev_mode"`

	HTTP          TOMLHTTPConfig         `toml:"http"`
	Queue         TOMLQueueConfig        `toml:"queue"`
	Router        TOMLRouterConfig       `toml:"router"`
	Standby       TOMLStandbyConfig      `toml:"standby"`
	Traffic       TOMLTrafficConfig      `toml:"traffic"`
	Notifications TOMLNotificationConfig `toml:"notifications"`
}

// TOMLHTTPConfig represents HTTP configuration in TOML
type TOMLHTTPConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// TOMLQueueConfig represents broker configuration in TOML
type TOMLQueueConfig struct {
	Type     string             `toml:"type"`
	NATS     TOMLNATSConfig     `toml:"nats"`
	SQS      TOMLSQSConfig      `toml:"sqs"`
	ActiveMQ TOMLActiveMQConfig `toml:"activemq"`
}

// TOMLNATSConfig represents NATS configuration in TOML
type TOMLNATSConfig struct {
	URL          string   `toml:"url"`
	DataDir      string   `toml:"data_dir"`
	StreamName   string   `toml:"stream_name"`
	ConsumerName string   `toml:"consumer_name"`
	Subjects     []string `toml:"subjects"`
}

// TOMLSQSConfig represents SQS configuration in TOML
type TOMLSQSConfig struct {
	QueueURL            string `toml:"queue_url"`
	Region              string `toml:"region"`
	WaitTimeSeconds     int    `toml:"wait_time_seconds"`
	VisibilityTimeout   int    `toml:"visibility_timeout"`
	MaxNumberOfMessages int    `toml:"max_messages"`
	MetricsPollSeconds  int    `toml:"metrics_poll_seconds"`
}

// TOMLActiveMQConfig represents ActiveMQ STOMP configuration in TOML
type TOMLActiveMQConfig struct {
	BrokerAddr string `toml:"broker_addr"`
	QueueName  string `toml:"queue_name"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	HeartBeat  string `toml:"heartbeat"`
	Prefetch   int    `toml:"prefetch"`
}

// TOMLRouterConfig represents control plane sync configuration in TOML
type TOMLRouterConfig struct {
	ConfigURL         string `toml:"config_url"`
	AuthToken         string `toml:"auth_token"`
	SyncInterval      string `toml:"sync_interval"`
	MaxPools          int    `toml:"max_pools"`
	PoolWarnThreshold int    `toml:"pool_warn_threshold"`
}

// TOMLStandbyConfig represents warm-standby configuration in TOML
type TOMLStandbyConfig struct {
	Enabled         bool   `toml:"enabled"`
	InstanceID      string `toml:"instance_id"`
	RedisURL        string `toml:"redis_url"`
	LockKey         string `toml:"lock_key"`
	LockTTL         string `toml:"lock_ttl"`
	RefreshInterval string `toml:"refresh_interval"`
}

// TOMLTrafficConfig represents traffic management configuration in TOML
type TOMLTrafficConfig struct {
	Enabled  bool   `toml:"enabled"`
	Strategy string `toml:"strategy"`
}

// TOMLNotificationConfig represents notification configuration in TOML
type TOMLNotificationConfig struct {
	Enabled     bool   `toml:"enabled"`
	MinSeverity string `toml:"min_severity"`
	BatchWindow string `toml:"batch_window"`

	Email TOMLEmailConfig `toml:"email"`
	Teams TOMLTeamsConfig `toml:"teams"`
}

// TOMLEmailConfig represents SMTP notification configuration in TOML
type TOMLEmailConfig struct {
	Enabled     bool   `toml:"enabled"`
	SMTPHost    string `toml:"smtp_host"`
	SMTPPort    int    `toml:"smtp_port"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	FromAddress string `toml:"from_address"`
	ToAddress   string `toml:"to_address"`
}

// TOMLTeamsConfig represents Teams webhook configuration in TOML
type TOMLTeamsConfig struct {
	Enabled    bool   `toml:"enabled"`
	WebhookURL string `toml:"webhook_url"`
}

// ConfigPaths lists the paths searched for a config file, in order
var ConfigPaths = []string{
	"config.toml",
	"application.toml",
	"relaypoint.toml",
	"./config/config.toml",
	"./config/application.toml",
	"/etc/relaypoint/config.toml",
}

// LoadFromFile loads configuration from a TOML file over the built-in
// defaults, without environment overrides
func LoadFromFile(path string) (*Config, error) {
	var tc TOMLConfig
	if _, err := toml.DecodeFile(path, &tc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := defaultConfig()
	applyTOML(cfg, &tc)
	return cfg, nil
}

// LoadWithFile loads configuration with precedence defaults < file <
// environment. RELAYPOINT_CONFIG selects the file explicitly; otherwise
// ConfigPaths is searched and the first existing file wins.
func LoadWithFile() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("RELAYPOINT_CONFIG")
	if configPath == "" {
		for _, path := range ConfigPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
	}

	if configPath != "" {
		var tc TOMLConfig
		if _, err := toml.DecodeFile(configPath, &tc); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		applyTOML(cfg, &tc)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyTOML overlays file values onto cfg. Absent keys keep the current
// value; an empty or zero value in the file cannot unset a default.
func applyTOML(cfg *Config, tc *TOMLConfig) {
	setString(&cfg.DataDir, tc.DataDir)
	cfg.DevMode = cfg.DevMode || tc.DevMode

	setInt(&cfg.HTTP.Port, tc.HTTP.Port)
	setStrings(&cfg.HTTP.CORSOrigins, tc.HTTP.CORSOrigins)

	setString(&cfg.Queue.Type, tc.Queue.Type)
	setString(&cfg.Queue.NATS.URL, tc.Queue.NATS.URL)
	setString(&cfg.Queue.NATS.DataDir, tc.Queue.NATS.DataDir)
	setString(&cfg.Queue.NATS.StreamName, tc.Queue.NATS.StreamName)
	setString(&cfg.Queue.NATS.ConsumerName, tc.Queue.NATS.ConsumerName)
	setStrings(&cfg.Queue.NATS.Subjects, tc.Queue.NATS.Subjects)
	setString(&cfg.Queue.SQS.QueueURL, tc.Queue.SQS.QueueURL)
	setString(&cfg.Queue.SQS.Region, tc.Queue.SQS.Region)
	setInt(&cfg.Queue.SQS.WaitTimeSeconds, tc.Queue.SQS.WaitTimeSeconds)
	setInt(&cfg.Queue.SQS.VisibilityTimeout, tc.Queue.SQS.VisibilityTimeout)
	setInt(&cfg.Queue.SQS.MaxNumberOfMessages, tc.Queue.SQS.MaxNumberOfMessages)
	setInt(&cfg.Queue.SQS.MetricsPollSeconds, tc.Queue.SQS.MetricsPollSeconds)
	setString(&cfg.Queue.ActiveMQ.BrokerAddr, tc.Queue.ActiveMQ.BrokerAddr)
	setString(&cfg.Queue.ActiveMQ.QueueName, tc.Queue.ActiveMQ.QueueName)
	setString(&cfg.Queue.ActiveMQ.Username, tc.Queue.ActiveMQ.Username)
	setString(&cfg.Queue.ActiveMQ.Password, tc.Queue.ActiveMQ.Password)
	setDuration(&cfg.Queue.ActiveMQ.HeartBeat, tc.Queue.ActiveMQ.HeartBeat)
	setInt(&cfg.Queue.ActiveMQ.Prefetch, tc.Queue.ActiveMQ.Prefetch)

	setString(&cfg.Router.ConfigURL, tc.Router.ConfigURL)
	setString(&cfg.Router.AuthToken, tc.Router.AuthToken)
	setDuration(&cfg.Router.SyncInterval, tc.Router.SyncInterval)
	setInt(&cfg.Router.MaxPools, tc.Router.MaxPools)
	setInt(&cfg.Router.PoolWarnThreshold, tc.Router.PoolWarnThreshold)

	cfg.Standby.Enabled = cfg.Standby.Enabled || tc.Standby.Enabled
	setString(&cfg.Standby.InstanceID, tc.Standby.InstanceID)
	setString(&cfg.Standby.RedisURL, tc.Standby.RedisURL)
	setString(&cfg.Standby.LockKey, tc.Standby.LockKey)
	setDuration(&cfg.Standby.LockTTL, tc.Standby.LockTTL)
	setDuration(&cfg.Standby.RefreshInterval, tc.Standby.RefreshInterval)

	cfg.Traffic.Enabled = cfg.Traffic.Enabled || tc.Traffic.Enabled
	setString(&cfg.Traffic.Strategy, tc.Traffic.Strategy)

	cfg.Notifications.Enabled = cfg.Notifications.Enabled || tc.Notifications.Enabled
	setString(&cfg.Notifications.MinSeverity, tc.Notifications.MinSeverity)
	setDuration(&cfg.Notifications.BatchWindow, tc.Notifications.BatchWindow)
	cfg.Notifications.Email.Enabled = cfg.Notifications.Email.Enabled || tc.Notifications.Email.Enabled
	setString(&cfg.Notifications.Email.SMTPHost, tc.Notifications.Email.SMTPHost)
	setInt(&cfg.Notifications.Email.SMTPPort, tc.Notifications.Email.SMTPPort)
	setString(&cfg.Notifications.Email.Username, tc.Notifications.Email.Username)
	setString(&cfg.Notifications.Email.Password, tc.Notifications.Email.Password)
	setString(&cfg.Notifications.Email.FromAddress, tc.Notifications.Email.FromAddress)
	setString(&cfg.Notifications.Email.ToAddress, tc.Notifications.Email.ToAddress)
	cfg.Notifications.Teams.Enabled = cfg.Notifications.Teams.Enabled || tc.Notifications.Teams.Enabled
	setString(&cfg.Notifications.Teams.WebhookURL, tc.Notifications.Teams.WebhookURL)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setStrings(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

// WriteExampleConfig writes a commented example configuration file
func WriteExampleConfig(path string) error {
	example := `# RelayPoint Router Configuration
# Environment variables override these settings

data_dir = "./data"
dev_mode = false

[http]
port = 8080
cors_origins = ["http://localhost:4200"]

[queue]
type = "embedded"  # embedded, nats, sqs, or activemq

[queue.nats]
url = "nats://localhost:4222"
data_dir = "./data/nats"
stream_name = "ROUTER"
consumer_name = "relaypoint-router"
subjects = ["route.>"]

[queue.sqs]
queue_url = ""
region = "us-east-1"
wait_time_seconds = 20
visibility_timeout = 120
max_messages = 10
metrics_poll_seconds = 300

[queue.activemq]
broker_addr = "localhost:61613"
queue_name = "relaypoint.dispatch"
username = ""
password = ""  # supports "secret://name" references
heartbeat = "10s"
prefetch = 10

[router]
config_url = "http://localhost:8081"
auth_token = ""  # supports "secret://name" references
sync_interval = "5m"
max_pools = 2000
pool_warn_threshold = 1000

[standby]
enabled = false
instance_id = ""
redis_url = "redis://localhost:6379"
lock_key = "relaypoint:router:leader"
lock_ttl = "30s"
refresh_interval = "10s"

[traffic]
enabled = false
strategy = "noop"

[notifications]
enabled = false
min_severity = "WARN"  # INFO, WARN, ERROR, CRITICAL
batch_window = "5m"

[notifications.email]
enabled = false
smtp_host = ""
smtp_port = 587
username = ""
password = ""
from_address = ""
to_address = ""

[notifications.teams]
enabled = false
webhook_url = ""
`

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	return os.WriteFile(path, []byte(example), 0644)
}

package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database       DatabaseConfig       `yaml:"database"`
	Kafka          KafkaConfig          `yaml:"kafka"`
	Redis          RedisConfig          `yaml:"redis"`
	SeventeenTrack SeventeenTrackConfig `yaml:"seventeentrack"`
	TrackSync      TrackSyncConfig      `yaml:"tracksync"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	SnapshotsTopicName string `yaml:"snapshots_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type SeventeenTrackConfig struct {
	APIKey                string `yaml:"api_key"`
	BaseURL               string `yaml:"base_url"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	ShowArchived          bool   `yaml:"show_archived"`
	ShowDelivered         bool   `yaml:"show_delivered"`
}

type TrackSyncConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	WorkerHTTPAddr     string `yaml:"worker_http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	SnapshotTTLSeconds int    `yaml:"snapshot_ttl_seconds"`
	SummaryTTLSeconds  int    `yaml:"summary_ttl_seconds"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	// Retry delays after consecutive failed refreshes; defaults are 1/2/5 minutes.
	Backoff1Seconds int `yaml:"backoff_1_seconds"`
	Backoff2Seconds int `yaml:"backoff_2_seconds"`
	Backoff3Seconds int `yaml:"backoff_3_seconds"`

	WorkerRateLimitPerMinute int `yaml:"worker_rate_limit_per_minute"`

	ClientMode string `yaml:"client_mode"` // "live" | "fake"
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := applyEnvOverrides(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyEnvOverrides lets secrets and a few knobs come from the environment (or .env)
// instead of the YAML file. Set variables win over the file.
func applyEnvOverrides(cfg *Config) error {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("TRACKSYNC_", ".", func(s string) string { return s }), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	if v := k.String("TRACKSYNC_API_KEY"); v != "" {
		cfg.SeventeenTrack.APIKey = v
	}
	if v := k.String("TRACKSYNC_BASE_URL"); v != "" {
		cfg.SeventeenTrack.BaseURL = v
	}
	if v := k.String("TRACKSYNC_POLL_INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRACKSYNC_POLL_INTERVAL_SECONDS: %w", err)
		}
		cfg.TrackSync.PollIntervalSeconds = n
	}
	if v := k.String("TRACKSYNC_CLIENT_MODE"); v != "" {
		cfg.TrackSync.ClientMode = v
	}
	return nil
}

func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode)
}

func (c KafkaConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Femasflow FemasflowConfig `yaml:"femasflow"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Polling   PollingConfig   `yaml:"polling"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Recorder  RecorderConfig  `yaml:"recorder"`
}

type FemasflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// GatewayConfig is the connection surface of the two sessions.
type GatewayConfig struct {
	UserID           string   `yaml:"user_id"`
	Password         string   `yaml:"password"`
	BrokerID         string   `yaml:"broker_id"`
	TdAddress        string   `yaml:"td_address"`
	MdAddress        string   `yaml:"md_address"`
	AppID            string   `yaml:"app_id"`
	AuthCode         string   `yaml:"auth_code"`
	FlowPath         string   `yaml:"flow_path"`
	Symbols          []string `yaml:"symbols"`
	QueriesPerSecond float64  `yaml:"queries_per_second"`
}

type BridgeConfig struct {
	PingIntervalSec   int `yaml:"ping_interval_sec"`
	ReconnectDelaySec int `yaml:"reconnect_delay_sec"`
}

func (b BridgeConfig) PingInterval() time.Duration {
	return time.Duration(b.PingIntervalSec) * time.Second
}

func (b BridgeConfig) ReconnectDelay() time.Duration {
	return time.Duration(b.ReconnectDelaySec) * time.Second
}

type PollingConfig struct {
	IntervalMS int `yaml:"interval_ms"`
}

// Interval is the host timer cadence driving the query poller.
func (p PollingConfig) Interval() time.Duration {
	if p.IntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(p.IntervalMS) * time.Millisecond
}

type ChannelsConfig struct {
	EventBuffer int `yaml:"event_buffer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	Topic          string   `yaml:"topic"`
	BatchTimeoutMS int      `yaml:"batch_timeout_ms"`
}

func (k KafkaConfig) BatchTimeout() time.Duration {
	if k.BatchTimeoutMS <= 0 {
		return time.Second
	}
	return time.Duration(k.BatchTimeoutMS) * time.Millisecond
}

type RecorderConfig struct {
	Enabled          bool     `yaml:"enabled"`
	FlushIntervalSec int      `yaml:"flush_interval_sec"`
	MaxRows          int      `yaml:"max_rows"`
	S3               S3Config `yaml:"s3"`
}

func (r RecorderConfig) FlushInterval() time.Duration {
	if r.FlushIntervalSec <= 0 {
		return time.Minute
	}
	return time.Duration(r.FlushIntervalSec) * time.Second
}

type S3Config struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Load reads the YAML configuration, applies .env and environment
// overrides for credentials, normalizes the front addresses and
// validates the result.
func Load(path string) (*Config, error) {
	// A missing .env file is fine; explicit environment still applies.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Channels: ChannelsConfig{EventBuffer: 1000},
		Gateway:  GatewayConfig{QueriesPerSecond: 1},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	config.Gateway.TdAddress = NormalizeAddress(config.Gateway.TdAddress)
	config.Gateway.MdAddress = NormalizeAddress(config.Gateway.MdAddress)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"FEMAS_USER_ID", &cfg.Gateway.UserID},
		{"FEMAS_PASSWORD", &cfg.Gateway.Password},
		{"FEMAS_BROKER_ID", &cfg.Gateway.BrokerID},
		{"FEMAS_TD_ADDRESS", &cfg.Gateway.TdAddress},
		{"FEMAS_MD_ADDRESS", &cfg.Gateway.MdAddress},
		{"FEMAS_APP_ID", &cfg.Gateway.AppID},
		{"FEMAS_AUTH_CODE", &cfg.Gateway.AuthCode},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = strings.TrimSpace(v)
		}
	}

	if cfg.Recorder.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Recorder.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Recorder.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Recorder.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Recorder.S3.Bucket = strings.TrimSpace(v)
		}
	}
}

// NormalizeAddress prefixes the transport scheme when absent. Front
// addresses are commonly configured as bare host:port pairs.
func NormalizeAddress(addr string) string {
	if addr == "" {
		return addr
	}
	if strings.Contains(addr, "://") {
		return addr
	}
	return "tcp://" + addr
}

func validateConfig(cfg *Config) error {
	if cfg.Femasflow.Name == "" {
		return fmt.Errorf("femasflow.name is required")
	}

	if cfg.Gateway.UserID == "" {
		return fmt.Errorf("gateway.user_id is required")
	}
	if cfg.Gateway.BrokerID == "" {
		return fmt.Errorf("gateway.broker_id is required")
	}
	if cfg.Gateway.TdAddress == "" {
		return fmt.Errorf("gateway.td_address is required")
	}
	if cfg.Gateway.MdAddress == "" {
		return fmt.Errorf("gateway.md_address is required")
	}

	if cfg.Channels.EventBuffer <= 0 {
		return fmt.Errorf("channels.event_buffer must be greater than 0")
	}

	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if cfg.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}

	if cfg.Recorder.Enabled {
		bucket := strings.TrimSpace(cfg.Recorder.S3.Bucket)
		if bucket == "" {
			return fmt.Errorf("recorder.s3.bucket is required when the recorder is enabled")
		}
		if cfg.Recorder.S3.Region == "" {
			return fmt.Errorf("recorder.s3.region is required when the recorder is enabled")
		}
		if !isValidS3Bucket(bucket) {
			return fmt.Errorf("recorder.s3.bucket %q is invalid", bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}

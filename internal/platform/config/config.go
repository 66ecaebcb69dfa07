package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configPathEnv = "FREIGHTDESK_CONFIG"

// Duration parses YAML values in time.ParseDuration notation ("30m", "5s").
// The stdlib duration type decodes only from integers, which nobody writes in
// a config file.
type Duration time.Duration

// Std converts to the stdlib duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds the settings required across the application. Values come from
// an optional YAML file (FREIGHTDESK_CONFIG) with environment variables taking
// precedence, so deployments can ship a base file and override per instance.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig configures the shared Redis client. Empty URL disables Redis
// and with it the reconcile run-lock.
type RedisConfig struct {
	URL          string   `yaml:"url"`
	PoolSize     int      `yaml:"poolSize"`
	MinIdleConns int      `yaml:"minIdleConns"`
	DialTimeout  Duration `yaml:"dialTimeout"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
}

// KafkaConfig configures the audit outbox relay. Empty brokers disable the
// relay; outbox rows then simply accumulate until one is enabled.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ReconcileConfig drives the date-based reconciliation job.
type ReconcileConfig struct {
	Interval   Duration `yaml:"interval"`
	BatchLimit int      `yaml:"batchLimit"`
}

// Load builds the configuration from the optional YAML file plus environment
// overrides, applying defaults last.
func Load() (Config, error) {
	var cfg Config

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FREIGHTDESK_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitCSV(v)
	}
	if v := os.Getenv("KAFKA_AUDIT_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("RECONCILE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Reconcile.Interval = Duration(d)
		}
	}
	if v := os.Getenv("RECONCILE_BATCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reconcile.BatchLimit = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "freightdesk.shipment-audit"
	}
	if cfg.Reconcile.Interval <= 0 {
		cfg.Reconcile.Interval = Duration(time.Hour)
	}
	if cfg.Reconcile.BatchLimit <= 0 {
		cfg.Reconcile.BatchLimit = 1000
	}
	if cfg.Redis.PoolSize <= 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.DialTimeout <= 0 {
		cfg.Redis.DialTimeout = Duration(5 * time.Second)
	}
	if cfg.Redis.ReadTimeout <= 0 {
		cfg.Redis.ReadTimeout = Duration(3 * time.Second)
	}
	if cfg.Redis.WriteTimeout <= 0 {
		cfg.Redis.WriteTimeout = Duration(3 * time.Second)
	}
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

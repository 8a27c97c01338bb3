package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/example/clictopay-gateway/internal/gateway"
)

const EnvPrefix = "CLICTOPAY_"

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Merchant struct {
	Username string         `koanf:"username"`
	Password gateway.Secret `koanf:"password"`
	TestMode bool           `koanf:"test_mode"`
}

type Gateway struct {
	Timeout  time.Duration `koanf:"timeout"`
	Language string        `koanf:"language"`
}

type HTTP struct {
	Addr           string        `koanf:"addr"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
}

type Store struct {
	Driver        string        `koanf:"driver"`
	PostgresDSN   string        `koanf:"postgres_dsn"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisTTL      time.Duration `koanf:"redis_ttl"`
}

type Kafka struct {
	Brokers     []string `koanf:"brokers"`
	CheckTopic  string   `koanf:"check_topic"`
	ResultTopic string   `koanf:"result_topic"`
	GroupID     string   `koanf:"group_id"`
}

type Worker struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`
	BatchSize     int           `koanf:"batch_size"`
	MaxPendingAge time.Duration `koanf:"max_pending_age"`
	GRPCAddr      string        `koanf:"grpc_addr"`
	MetricsAddr   string        `koanf:"metrics_addr"`
}

type Log struct {
	Level string `koanf:"level"`
}

type Config struct {
	Merchant Merchant `koanf:"merchant"`
	Gateway  Gateway  `koanf:"gateway"`
	HTTP     HTTP     `koanf:"http"`
	Store    Store    `koanf:"store"`
	Kafka    Kafka    `koanf:"kafka"`
	Worker   Worker   `koanf:"worker"`
	Log      Log      `koanf:"log"`
}

// Load reads <dir>/base.yaml, then the optional <dir>/<envName>.yaml, then
// CLICTOPAY_* environment variables (nested with __, e.g.
// CLICTOPAY_MERCHANT__PASSWORD). An empty dir skips the files.
func Load(dir, envName string) (Config, error) {
	k := koanf.New(".")

	if dir != "" {
		base := filepath.Join(dir, "base.yaml")
		if err := k.Load(file.Provider(base), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load base: %w", err)
		}
		if envName != "" {
			overlay := filepath.Join(dir, envName+".yaml")
			if _, err := os.Stat(overlay); err == nil {
				if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
					return Config{}, fmt.Errorf("load %s: %w", envName, err)
				}
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.Gateway.Timeout <= 0 {
		c.Gateway.Timeout = gateway.DefaultTimeout
	}
	if c.Gateway.Language == "" {
		c.Gateway.Language = gateway.DefaultLanguage
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		// must outlive one gateway call
		c.HTTP.WriteTimeout = c.Gateway.Timeout + 5*time.Second
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Kafka.CheckTopic == "" {
		c.Kafka.CheckTopic = "payments.check"
	}
	if c.Kafka.ResultTopic == "" {
		c.Kafka.ResultTopic = "payments.result"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "clictopay-reconciler"
	}
	if c.Worker.SweepInterval <= 0 {
		c.Worker.SweepInterval = time.Minute
	}
	if c.Worker.BatchSize <= 0 {
		c.Worker.BatchSize = 50
	}
	if c.Worker.MaxPendingAge <= 0 {
		c.Worker.MaxPendingAge = 24 * time.Hour
	}
	if c.Worker.GRPCAddr == "" {
		c.Worker.GRPCAddr = ":9090"
	}
	if c.Worker.MetricsAddr == "" {
		c.Worker.MetricsAddr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return c
}

func (c Config) Validate() error {
	if err := c.Credentials().Validate(); err != nil {
		return errors.New("merchant.username and merchant.password required")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn required for the postgres driver")
		}
	case DriverRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	return nil
}

func (c Config) Credentials() gateway.Credentials {
	return gateway.Credentials{
		Username: c.Merchant.Username,
		Password: c.Merchant.Password,
		TestMode: c.Merchant.TestMode,
	}
}

// KafkaEnabled reports whether any broker is configured.
func (c Config) KafkaEnabled() bool {
	for _, b := range c.Kafka.Brokers {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}

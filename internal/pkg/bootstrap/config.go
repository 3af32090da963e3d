// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是服务的全部配置，来自 YAML 文件，并可被环境变量覆盖
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
}

type AppConfig struct {
	Name              string        `yaml:"name"`
	Port              int           `yaml:"port"`
	LogLevel          string        `yaml:"logLevel"`
	PrettyLog         bool          `yaml:"prettyLog"`
	StoreDriver       string        `yaml:"storeDriver"` // mysql | memory
	ProcessingTimeout time.Duration `yaml:"processingTimeout"`
	FeatureFlags      FeatureFlags  `yaml:"featureFlags"`
}

type FeatureFlags struct {
	PublishOrderEvents bool `yaml:"publishOrderEvents"`
	UseRedisCart       bool `yaml:"useRedisCart"`
}

type InfraConfig struct {
	MySQL   MySQLConfig   `yaml:"mysql"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Jaeger  JaegerConfig  `yaml:"jaeger"`
	Payment PaymentConfig `yaml:"payment"`
}

type MySQLConfig struct {
	Addr            string        `yaml:"addr"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	// LockWaitTimeout 对应 innodb_lock_wait_timeout（秒级精度）
	LockWaitTimeout time.Duration `yaml:"lockWaitTimeout"`
	AutoMigrate     bool          `yaml:"autoMigrate"`
}

type RedisConfig struct {
	Addrs    string `yaml:"addrs"` // 格式为 "host1:port1,host2:port2"
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers          string `yaml:"brokers"`
	OrderPlacedTopic string `yaml:"orderPlacedTopic"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

type PaymentConfig struct {
	AuthorizeURL string        `yaml:"authorizeUrl"`
	VoidURL      string        `yaml:"voidUrl"`
	Timeout      time.Duration `yaml:"timeout"`
}

var current atomic.Pointer[Config]

// DefaultConfig 返回本地开发使用的默认配置
func DefaultConfig() Config {
	return Config{
		App: AppConfig{
			Name:              "order-service",
			Port:              8081,
			LogLevel:          "info",
			StoreDriver:       "mysql",
			ProcessingTimeout: 10 * time.Second,
			FeatureFlags: FeatureFlags{
				PublishOrderEvents: true,
				UseRedisCart:       true,
			},
		},
		Infra: InfraConfig{
			MySQL: MySQLConfig{
				Addr:            "localhost:3306",
				User:            "storefront",
				Password:        "storefront",
				Database:        "storefront",
				MaxOpenConns:    32,
				MaxIdleConns:    8,
				ConnMaxLifetime: 30 * time.Minute,
				LockWaitTimeout: 5 * time.Second,
			},
			Redis: RedisConfig{Addrs: "localhost:6379"},
			Kafka: KafkaConfig{
				Brokers:          "localhost:9092",
				OrderPlacedTopic: "order-placed-v1",
			},
			Jaeger: JaegerConfig{SampleRatio: 1},
			Payment: PaymentConfig{
				AuthorizeURL: "http://localhost:8090/authorize",
				VoidURL:      "http://localhost:8090/void",
				Timeout:      3 * time.Second,
			},
		},
	}
}

// Load 读取配置文件（path 为空时只使用默认值），再应用环境变量覆盖
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init 加载配置并设置为当前配置
func Init(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	current.Store(cfg)
	return cfg, nil
}

// GetCurrentConfig 返回当前生效的配置，未初始化时返回默认配置
func GetCurrentConfig() *Config {
	if cfg := current.Load(); cfg != nil {
		return cfg
	}
	cfg := DefaultConfig()
	return &cfg
}

func (c *Config) Validate() error {
	switch c.App.StoreDriver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("invalid app.storeDriver %q: want mysql or memory", c.App.StoreDriver)
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid app.port %d", c.App.Port)
	}
	if c.App.ProcessingTimeout < 0 {
		return fmt.Errorf("invalid app.processingTimeout %s", c.App.ProcessingTimeout)
	}
	if c.Infra.MySQL.LockWaitTimeout < time.Second {
		return fmt.Errorf("infra.mysql.lockWaitTimeout must be at least 1s, got %s", c.Infra.MySQL.LockWaitTimeout)
	}
	if c.Infra.Jaeger.SampleRatio < 0 || c.Infra.Jaeger.SampleRatio > 1 {
		return fmt.Errorf("infra.jaeger.sampleRatio must be within [0,1], got %v", c.Infra.Jaeger.SampleRatio)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.App.StoreDriver = getEnv("STORE_DRIVER", cfg.App.StoreDriver)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	if port, err := strconv.Atoi(getEnv("PORT", "")); err == nil {
		cfg.App.Port = port
	}
	cfg.Infra.MySQL.Addr = getEnv("MYSQL_ADDR", cfg.Infra.MySQL.Addr)
	cfg.Infra.MySQL.User = getEnv("MYSQL_USER", cfg.Infra.MySQL.User)
	cfg.Infra.MySQL.Password = getEnv("MYSQL_PASSWORD", cfg.Infra.MySQL.Password)
	cfg.Infra.MySQL.Database = getEnv("MYSQL_DATABASE", cfg.Infra.MySQL.Database)
	cfg.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", cfg.Infra.Redis.Addrs)
	cfg.Infra.Kafka.Brokers = getEnv("KAFKA_BROKERS", cfg.Infra.Kafka.Brokers)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.Payment.AuthorizeURL = getEnv("PAYMENT_AUTHORIZE_URL", cfg.Infra.Payment.AuthorizeURL)
	cfg.Infra.Payment.VoidURL = getEnv("PAYMENT_VOID_URL", cfg.Infra.Payment.VoidURL)
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

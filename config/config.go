package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Distribution DistributionConfig `mapstructure:"distribution"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Sentry       SentryConfig       `mapstructure:"sentry"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// RedisConfig Redis 配置，Addr 为空时分布式锁与查询缓存退化为进程内实现
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// LedgerConfig 链上账本客户端配置
type LedgerConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"` // 每秒请求数
	Burst         int           `mapstructure:"burst"`
	AddressFormat string        `mapstructure:"address_format"` // raw, evm, ton
}

// DistributionConfig 分红分发引擎配置
type DistributionConfig struct {
	RunnerWorkers   int           `mapstructure:"runner_workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	PaymentWorkers  int           `mapstructure:"payment_workers"`
	SnapshotTimeout time.Duration `mapstructure:"snapshot_timeout"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	SweepBatch      int           `mapstructure:"sweep_batch"`
}

// JWTConfig 运营端 JWT 配置
type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// KafkaConfig 分发终态事件配置，Brokers 为空时不发布
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// TelegramConfig 运营告警配置，Token 为空时不告警
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// SentryConfig 错误上报配置
type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// TracingConfig OpenTelemetry 配置
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

// Load 加载配置：.env -> config.yaml -> 环境变量（PAYOUT_ 前缀）
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAYOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验关键配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Ledger.AddressFormat {
	case "raw", "evm", "ton":
	default:
		return fmt.Errorf("unsupported ledger address format %q", c.Ledger.AddressFormat)
	}
	if c.Distribution.PaymentWorkers <= 0 {
		return errors.New("distribution.payment_workers must be positive")
	}
	// 锁过期前巡检不得重新提交仍在执行的分发
	if c.Redis.LockTTL > 0 && c.Distribution.StaleAfter <= c.Redis.LockTTL {
		return fmt.Errorf("distribution.stale_after (%s) must exceed redis.lock_ttl (%s)", c.Distribution.StaleAfter, c.Redis.LockTTL)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=payout port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.cache_ttl", 10*time.Minute)
	v.SetDefault("redis.lock_ttl", 10*time.Minute)

	v.SetDefault("ledger.base_url", "http://localhost:9000/v1")
	v.SetDefault("ledger.timeout", 30*time.Second)
	v.SetDefault("ledger.rate_limit", 20.0)
	v.SetDefault("ledger.burst", 5)
	v.SetDefault("ledger.address_format", "raw")

	v.SetDefault("distribution.runner_workers", 4)
	v.SetDefault("distribution.queue_size", 1024)
	v.SetDefault("distribution.payment_workers", 8)
	v.SetDefault("distribution.snapshot_timeout", 30*time.Second)
	v.SetDefault("distribution.transfer_timeout", 15*time.Second)
	v.SetDefault("distribution.sweep_interval", time.Minute)
	v.SetDefault("distribution.stale_after", 15*time.Minute)
	v.SetDefault("distribution.sweep_batch", 32)

	v.SetDefault("jwt.issuer", "payout-engine")
	v.SetDefault("jwt.ttl", 12*time.Hour)

	v.SetDefault("kafka.topic", "distribution_events")

	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("tracing.service_name", "payout-engine")
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

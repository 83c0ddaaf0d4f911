package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	Database               string `mapstructure:"database"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	LockWaitTimeoutSeconds int    `mapstructure:"lock_wait_timeout_seconds"`
}

type RedisConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	BoardTTLSeconds int    `mapstructure:"board_ttl_seconds"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	SaleEvents        string `mapstructure:"sale_events"`
	ReservationEvents string `mapstructure:"reservation_events"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BusinessConfig struct {
	ReservationTTLMinutes int    `mapstructure:"reservation_ttl_minutes"`
	PendingHoldHours      int    `mapstructure:"pending_hold_hours"`
	SweepIntervalSeconds  int    `mapstructure:"sweep_interval_seconds"`
	SweepBatchSize        int    `mapstructure:"sweep_batch_size"`
	Currency              string `mapstructure:"currency"`
	MaxTicketsPerBooking  int    `mapstructure:"max_tickets_per_booking"`
	MaxRetryCount         int    `mapstructure:"max_retry_count"`
}

// ReservationTTL 公开预订的保留时长
func (b BusinessConfig) ReservationTTL() time.Duration {
	return time.Duration(b.ReservationTTLMinutes) * time.Minute
}

// PendingHold 已下单但未付款的票为该销售保留的时长
func (b BusinessConfig) PendingHold() time.Duration {
	return time.Duration(b.PendingHoldHours) * time.Hour
}

func (b BusinessConfig) SweepInterval() time.Duration {
	return time.Duration(b.SweepIntervalSeconds) * time.Second
}

// Default 返回全部使用默认值的配置（测试使用）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "rifas")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.lock_wait_timeout_seconds", 5)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.board_ttl_seconds", 30)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic.sale_events", "rifas.sale-events")
	v.SetDefault("kafka.topic.reservation_events", "rifas.reservation-events")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("business.reservation_ttl_minutes", 15)
	v.SetDefault("business.pending_hold_hours", 24)
	v.SetDefault("business.sweep_interval_seconds", 300)
	v.SetDefault("business.sweep_batch_size", 500)
	v.SetDefault("business.currency", "COP")
	v.SetDefault("business.max_tickets_per_booking", 50)
	v.SetDefault("business.max_retry_count", 5)
}

// LoadConfig 加载配置文件
//
// 环境变量可覆盖配置项，前缀 RIFAS_，例如 RIFAS_MYSQL_PASSWORD 覆盖 mysql.password
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RIFAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Business.ReservationTTLMinutes <= 0 {
		return fmt.Errorf("business.reservation_ttl_minutes must be positive")
	}
	if c.Business.PendingHoldHours <= 0 {
		return fmt.Errorf("business.pending_hold_hours must be positive")
	}
	if c.Business.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("business.sweep_interval_seconds must be positive")
	}
	if c.Business.SweepBatchSize <= 0 {
		return fmt.Errorf("business.sweep_batch_size must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka.enabled is true")
	}
	return nil
}

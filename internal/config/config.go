package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Leader    LeaderConfig    `mapstructure:"leader"`
	Instance  InstanceConfig  `mapstructure:"instance"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Gateways  GatewaysConfig  `mapstructure:"gateways"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

type LeaderConfig struct {
	Key string        `mapstructure:"key"`
	TTL time.Duration `mapstructure:"ttl"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

type SchedulerConfig struct {
	SweepSpec     string `mapstructure:"sweep_spec"`
	ReconcileSpec string `mapstructure:"reconcile_spec"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	GuestPrefix   string        `mapstructure:"guest_prefix"`
	GuestTokenTTL time.Duration `mapstructure:"guest_token_ttl"`
}

type GatewaysConfig struct {
	PaymentURL  string        `mapstructure:"payment_url"`
	ShippingURL string        `mapstructure:"shipping_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

var envBindings = map[string]string{
	"server.port":              "SERVER_PORT",
	"server.host":              "SERVER_HOST",
	"redis.address":            "REDIS_ADDRESS",
	"redis.password":           "REDIS_PASSWORD",
	"redis.db":                 "REDIS_DB",
	"mysql.dsn":                "MYSQL_DSN",
	"mysql.max_open_conns":     "MYSQL_MAX_OPEN_CONNS",
	"mysql.max_idle_conns":     "MYSQL_MAX_IDLE_CONNS",
	"mysql.conn_max_lifetime":  "MYSQL_CONN_MAX_LIFETIME",
	"mysql.migrate":            "MYSQL_MIGRATE",
	"leader.key":               "LEADER_KEY",
	"leader.ttl":               "LEADER_TTL",
	"instance.id":              "INSTANCE_ID",
	"scheduler.sweep_spec":     "SCHEDULER_SWEEP_SPEC",
	"scheduler.reconcile_spec": "SCHEDULER_RECONCILE_SPEC",
	"auth.jwt_secret":          "AUTH_JWT_SECRET",
	"auth.guest_prefix":        "AUTH_GUEST_PREFIX",
	"auth.guest_token_ttl":     "AUTH_GUEST_TOKEN_TTL",
	"gateways.payment_url":     "PAYMENT_GATEWAY_URL",
	"gateways.shipping_url":    "SHIPPING_GATEWAY_URL",
	"gateways.timeout":         "GATEWAY_TIMEOUT",
	"log.level":                "LOG_LEVEL",
	"log.file":                 "LOG_FILE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mysql.dsn", "sales_user:sales_pass@tcp(localhost:3306)/sales_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("mysql.migrate", true)
	v.SetDefault("leader.key", "sales_engine_leader")
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("instance.id", "sales-service-1")
	v.SetDefault("scheduler.sweep_spec", "@every 10s")
	v.SetDefault("scheduler.reconcile_spec", "@every 1m")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.guest_prefix", "guest-")
	v.SetDefault("auth.guest_token_ttl", 24*time.Hour)
	v.SetDefault("gateways.payment_url", "http://localhost:8091")
	v.SetDefault("gateways.shipping_url", "http://localhost:8092")
	v.SetDefault("gateways.timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
}

// Load reads defaults, an optional config.yaml and environment variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/sales-service/")

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	// Config file is optional; defaults and environment variables still apply
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return decode(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}

	return decode(v)
}

func bindEnv(v *viper.Viper) error {
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive, got %d", c.Server.Port)
	}
	if c.Leader.TTL <= 0 {
		return errors.New("leader.ttl must be positive")
	}
	if c.Auth.GuestTokenTTL <= 0 {
		return errors.New("auth.guest_token_ttl must be positive")
	}
	if c.Gateways.Timeout <= 0 {
		return errors.New("gateways.timeout must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s, Redis: %s, Payment: %s, Shipping: %s, Instance: %s",
		c.Addr(),
		c.Redis.Address,
		c.Gateways.PaymentURL,
		c.Gateways.ShippingURL,
		c.Instance.ID,
	)
}

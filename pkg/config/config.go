package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "DOCINDEX"

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	Provisioner   ProvisionerConfig   `mapstructure:"provisioner"`
}

type ServerConfig struct {
	Port            int    `mapstructure:"port"`
	Host            string `mapstructure:"host"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	// EnsurePerMinute throttles POST /ensure; 0 disables the limit.
	EnsurePerMinute int `mapstructure:"ensure_per_minute"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres or sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"ssl_mode"`
	Path         string `mapstructure:"path"` // sqlite file
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	APIKey     string   `mapstructure:"api_key"`
	MaxRetries int      `mapstructure:"max_retries"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	JaegerURL    string  `mapstructure:"jaeger_url"`
	ServiceName  string  `mapstructure:"service_name"`
	Environment  string  `mapstructure:"environment"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddCaller  bool   `mapstructure:"add_caller"`
	Stacktrace bool   `mapstructure:"stacktrace"`
}

type ProvisionerConfig struct {
	// Backend selects the store: memory, sql or elasticsearch.
	Backend        string        `mapstructure:"backend"`
	Manifest       string        `mapstructure:"manifest"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
	CreateRate     float64       `mapstructure:"create_rate"`
	CreateBurst    int           `mapstructure:"create_burst"`
	RequirePrimary bool          `mapstructure:"require_primary"`
	Serve          bool          `mapstructure:"serve"`
	Schedule       string        `mapstructure:"schedule"`
	Retry          RetryConfig   `mapstructure:"retry"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
	Cache          CacheConfig   `mapstructure:"cache"`
	Lock           LockConfig    `mapstructure:"lock"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

type BreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// LockConfig guards scheduled runs with a Redis lease shared by replicas.
type LockConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Key     string        `mapstructure:"key"`
	TTL     time.Duration `mapstructure:"ttl"`
}

var validBackends = map[string]bool{"memory": true, "sql": true, "elasticsearch": true}

// Load reads configs/<serviceName>.yaml (or /etc/docindex), then applies
// DOCINDEX_* environment variables over defaults.
func Load(serviceName string, extraPaths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	for _, p := range extraPaths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/docindex")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	if err := v.ReadInConfig(); err != nil {
		// Defaults and env vars are enough when there is no file.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(v, &config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.shutdown_timeout", 30)
	v.SetDefault("server.ensure_per_minute", 6)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "docindex")
	v.SetDefault("database.password", "docindex")
	v.SetDefault("database.name", "docindex")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "docindex.db")
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.api_key", "")
	v.SetDefault("elasticsearch.max_retries", 0)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 5)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "docindex.outcomes")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.jaeger_url", "http://localhost:14268/api/traces")
	v.SetDefault("telemetry.service_name", "docindex-provisioner")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.add_caller", true)
	v.SetDefault("logger.stacktrace", false)

	v.SetDefault("provisioner.backend", "sql")
	v.SetDefault("provisioner.manifest", "./configs/entities.yaml")
	v.SetDefault("provisioner.call_timeout", 30*time.Second)
	v.SetDefault("provisioner.run_timeout", 10*time.Minute)
	v.SetDefault("provisioner.create_rate", 0.0)
	v.SetDefault("provisioner.create_burst", 1)
	v.SetDefault("provisioner.require_primary", true)
	v.SetDefault("provisioner.serve", false)
	v.SetDefault("provisioner.schedule", "@every 10m")
	v.SetDefault("provisioner.retry.max_attempts", 3)
	v.SetDefault("provisioner.retry.initial_delay", 200*time.Millisecond)
	v.SetDefault("provisioner.retry.max_delay", 5*time.Second)
	v.SetDefault("provisioner.breaker.enabled", true)
	v.SetDefault("provisioner.breaker.min_requests", 5)
	v.SetDefault("provisioner.breaker.failure_ratio", 0.6)
	v.SetDefault("provisioner.breaker.timeout", 30*time.Second)
	v.SetDefault("provisioner.cache.enabled", false)
	v.SetDefault("provisioner.cache.ttl", 10*time.Minute)
	v.SetDefault("provisioner.lock.enabled", false)
	v.SetDefault("provisioner.lock.key", "docindex:drift-repair")
	v.SetDefault("provisioner.lock.ttl", 15*time.Minute)
}

// overrideFromEnv handles list values, which viper does not split.
func overrideFromEnv(v *viper.Viper, cfg *Config) {
	if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	if addrs := v.GetString("ELASTICSEARCH_ADDRESSES"); addrs != "" {
		cfg.Elasticsearch.Addresses = splitList(addrs)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if !validBackends[c.Provisioner.Backend] {
		return fmt.Errorf("invalid provisioner.backend %q: want memory, sql or elasticsearch", c.Provisioner.Backend)
	}
	if c.Provisioner.Manifest == "" {
		return errors.New("provisioner.manifest is required")
	}
	if c.Provisioner.CreateRate < 0 {
		return errors.New("provisioner.create_rate must not be negative")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("invalid database.driver %q: want postgres or sqlite", c.Database.Driver)
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

package config

import (
	"github.com/docindex-go/pkg/database"
	"github.com/docindex-go/pkg/events"
	"github.com/docindex-go/pkg/logger"
	"github.com/docindex-go/pkg/resilience"
	"github.com/docindex-go/pkg/telemetry"
	"github.com/elastic/go-elasticsearch/v8"
)

// ToLoggerConfig converts LoggerConfig to logger.Config
func (c LoggerConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		AddCaller:  c.AddCaller,
		Stacktrace: c.Stacktrace,
	}
}

// ToDatabaseConfig converts DatabaseConfig to database.Config
func (c DatabaseConfig) ToDatabaseConfig() database.Config {
	return database.Config{
		Driver:       c.Driver,
		DSN:          c.DSN(),
		MaxOpenConns: c.MaxOpenConns,
		MaxIdleConns: c.MaxIdleConns,
		LogLevel:     c.LogLevel,
	}
}

// ToClientConfig converts ElasticsearchConfig to an elasticsearch client config
func (c ElasticsearchConfig) ToClientConfig() elasticsearch.Config {
	return elasticsearch.Config{
		Addresses:  c.Addresses,
		Username:   c.Username,
		Password:   c.Password,
		APIKey:     c.APIKey,
		MaxRetries: c.MaxRetries,
	}
}

// ToKafkaConfig converts KafkaConfig to events.KafkaConfig
func (c KafkaConfig) ToKafkaConfig() events.KafkaConfig {
	return events.KafkaConfig{
		Brokers: c.Brokers,
		Topic:   c.Topic,
	}
}

// ToTelemetryConfig converts TelemetryConfig to telemetry.Config
func (c TelemetryConfig) ToTelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:      c.Enabled,
		JaegerURL:    c.JaegerURL,
		ServiceName:  c.ServiceName,
		Environment:  c.Environment,
		SamplingRate: c.SamplingRate,
	}
}

// ToRetryConfig converts RetryConfig to resilience.RetryConfig
func (c RetryConfig) ToRetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = c.MaxAttempts
	if c.InitialDelay > 0 {
		cfg.InitialDelay = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		cfg.MaxDelay = c.MaxDelay
	}
	return cfg
}

// ToBreakerConfig converts BreakerConfig to a breaker template, or nil when
// breakers are disabled.
func (c BreakerConfig) ToBreakerConfig() *resilience.CircuitBreakerConfig {
	if !c.Enabled {
		return nil
	}
	cfg := resilience.DefaultCircuitBreakerConfig("")
	if c.MinRequests > 0 {
		cfg.MinRequests = c.MinRequests
	}
	if c.FailureRatio > 0 {
		cfg.FailureRatio = c.FailureRatio
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	return &cfg
}

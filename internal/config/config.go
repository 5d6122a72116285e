package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Kafka
	KafkaHost          string        `env:"KAFKA_HOST"`
	KafkaPort          string        `env:"KAFKA_PORT" envDefault:"9092"`
	KafkaBrokers       []string      `env:"KAFKA_BROKERS" envSeparator:","`
	AutoCommitInterval time.Duration `env:"EVENTBUS_AUTO_COMMIT_INTERVAL" envDefault:"1s"`

	// Listener job
	PollTimeout       time.Duration `env:"EVENTBUS_POLL_TIMEOUT" envDefault:"59s"`
	PollLinger        time.Duration `env:"EVENTBUS_POLL_LINGER" envDefault:"250ms"`
	MaxPollRecords    int           `env:"EVENTBUS_MAX_POLL_RECORDS" envDefault:"500"`
	JobInterval       time.Duration `env:"EVENTBUS_JOB_INTERVAL" envDefault:"1s"`
	SubscriptionsFile string        `env:"EVENTBUS_SUBSCRIPTIONS_FILE"`

	// Handler workers
	Workers        int           `env:"EVENTBUS_WORKERS" envDefault:"16"`
	QueueSize      int           `env:"EVENTBUS_QUEUE_SIZE" envDefault:"1024"`
	HandlerTimeout time.Duration `env:"EVENTBUS_HANDLER_TIMEOUT" envDefault:"0s"`

	// Observability
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text"`
	OTelEndpoint string `env:"EVENTBUS_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"EVENTBUS_OTEL_ENABLED" envDefault:"true"`
}

// Load reads an optional .env file from the working directory and then
// parses the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env.Parse cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.PollTimeout <= 0 {
		errs = append(errs, errors.New("EVENTBUS_POLL_TIMEOUT must be positive"))
	}
	if c.PollLinger < 0 {
		errs = append(errs, errors.New("EVENTBUS_POLL_LINGER must not be negative"))
	}
	if c.MaxPollRecords <= 0 {
		errs = append(errs, errors.New("EVENTBUS_MAX_POLL_RECORDS must be positive"))
	}
	if c.JobInterval <= 0 {
		errs = append(errs, errors.New("EVENTBUS_JOB_INTERVAL must be positive"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("EVENTBUS_WORKERS must be positive"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("EVENTBUS_QUEUE_SIZE must be positive"))
	}
	if c.HandlerTimeout < 0 {
		errs = append(errs, errors.New("EVENTBUS_HANDLER_TIMEOUT must not be negative"))
	}
	if c.AutoCommitInterval <= 0 {
		errs = append(errs, errors.New("EVENTBUS_AUTO_COMMIT_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// Brokers returns the Kafka bootstrap addresses. KAFKA_BROKERS wins over
// KAFKA_HOST/KAFKA_PORT; an empty result selects the in-memory broker.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range c.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	if len(out) > 0 {
		return out
	}
	if c.KafkaHost == "" {
		return nil
	}
	return []string{net.JoinHostPort(c.KafkaHost, c.KafkaPort)}
}

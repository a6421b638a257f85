package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "FITLOG"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabaseDriver     = "sqlite"
	defaultDatabasePath       = "fitlog.db"
	defaultLogLevel           = "info"
	defaultLogEncoding        = "json"
	defaultTokenTTLMinutes    = 60 * 24 * 7
	defaultGoogleJWKSURL      = "https://www.googleapis.com/oauth2/v3/certs"
	defaultAllowedOrigins     = "*"
	defaultLoginMax           = 5
	defaultLoginWindowMinutes = 15
	defaultFoodsBaseURL       = "https://world.openfoodfacts.org"
	defaultFoodsTimeout       = 10
	defaultFoodsUserAgent     = "FitLog/1.0 (+https://fitlog.app)"
	defaultEventsDriver       = "log"
	defaultKafkaTopic         = "fitlog-events"
	defaultS3Region           = "us-east-1"
)

// Supported values for database.driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Supported values for events.driver.
const (
	EventsDriverLog   = "log"
	EventsDriverKafka = "kafka"
	EventsDriverSQS   = "sqs"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string
	LogLevel       string
	LogEncoding    string
	SigningSecret  string
	TokenTTL       time.Duration
	GoogleClientID string
	GoogleJWKSURL  string
	AllowedOrigins []string
	LoginMax       int
	LoginWindow    time.Duration
	FoodsBaseURL   string
	FoodsTimeout   time.Duration
	FoodsUserAgent string
	Media          MediaConfig
	Events         EventsConfig
	FirestoreID    string
}

// MediaConfig describes the object storage used for uploaded images.
type MediaConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
}

// Enabled reports whether uploads have somewhere to go.
func (m MediaConfig) Enabled() bool {
	return strings.TrimSpace(m.Bucket) != ""
}

// EventsConfig selects and configures the domain event publisher.
type EventsConfig struct {
	Driver       string
	KafkaBrokers []string
	KafkaTopic   string
	SQSQueueURL  string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("google.client_id", "")
	configViper.SetDefault("google.jwks_url", defaultGoogleJWKSURL)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("ratelimit.login_max", defaultLoginMax)
	configViper.SetDefault("ratelimit.login_window_minutes", defaultLoginWindowMinutes)
	configViper.SetDefault("foods.base_url", defaultFoodsBaseURL)
	configViper.SetDefault("foods.timeout_seconds", defaultFoodsTimeout)
	configViper.SetDefault("foods.user_agent", defaultFoodsUserAgent)
	configViper.SetDefault("media.s3_bucket", "")
	configViper.SetDefault("media.s3_region", defaultS3Region)
	configViper.SetDefault("media.s3_endpoint", "")
	configViper.SetDefault("media.public_base_url", "")
	configViper.SetDefault("events.driver", defaultEventsDriver)
	configViper.SetDefault("events.kafka_brokers", "")
	configViper.SetDefault("events.kafka_topic", defaultKafkaTopic)
	configViper.SetDefault("events.sqs_queue_url", "")
	configViper.SetDefault("firestore.project_id", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:   configViper.GetString("database.path"),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		LogLevel:       configViper.GetString("log.level"),
		LogEncoding:    configViper.GetString("log.encoding"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		TokenTTL:       time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		GoogleClientID: strings.TrimSpace(configViper.GetString("google.client_id")),
		GoogleJWKSURL:  strings.TrimSpace(configViper.GetString("google.jwks_url")),
		AllowedOrigins: splitList(configViper.GetString("cors.allowed_origins")),
		LoginMax:       configViper.GetInt("ratelimit.login_max"),
		LoginWindow:    time.Duration(configViper.GetInt("ratelimit.login_window_minutes")) * time.Minute,
		FoodsBaseURL:   strings.TrimRight(strings.TrimSpace(configViper.GetString("foods.base_url")), "/"),
		FoodsTimeout:   time.Duration(configViper.GetInt("foods.timeout_seconds")) * time.Second,
		FoodsUserAgent: configViper.GetString("foods.user_agent"),
		Media: MediaConfig{
			Bucket:        strings.TrimSpace(configViper.GetString("media.s3_bucket")),
			Region:        strings.TrimSpace(configViper.GetString("media.s3_region")),
			Endpoint:      strings.TrimSpace(configViper.GetString("media.s3_endpoint")),
			PublicBaseURL: strings.TrimRight(strings.TrimSpace(configViper.GetString("media.public_base_url")), "/"),
		},
		Events: EventsConfig{
			Driver:       strings.ToLower(strings.TrimSpace(configViper.GetString("events.driver"))),
			KafkaBrokers: splitList(configViper.GetString("events.kafka_brokers")),
			KafkaTopic:   strings.TrimSpace(configViper.GetString("events.kafka_topic")),
			SQSQueueURL:  strings.TrimSpace(configViper.GetString("events.sqs_queue_url")),
		},
		FirestoreID: strings.TrimSpace(configViper.GetString("firestore.project_id")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres, DriverMySQL:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the %s driver", c.DatabaseDriver)
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if c.LoginMax <= 0 || c.LoginWindow <= 0 {
		return fmt.Errorf("ratelimit.login_max and ratelimit.login_window_minutes must be positive")
	}
	if c.FoodsBaseURL == "" {
		return fmt.Errorf("foods.base_url is required")
	}
	if c.FoodsTimeout <= 0 {
		return fmt.Errorf("foods.timeout_seconds must be positive")
	}
	switch c.Events.Driver {
	case EventsDriverLog:
	case EventsDriverKafka:
		if len(c.Events.KafkaBrokers) == 0 || c.Events.KafkaTopic == "" {
			return fmt.Errorf("events.kafka_brokers and events.kafka_topic are required for the kafka driver")
		}
	case EventsDriverSQS:
		if c.Events.SQSQueueURL == "" {
			return fmt.Errorf("events.sqs_queue_url is required for the sqs driver")
		}
	default:
		return fmt.Errorf("events.driver %q is not supported", c.Events.Driver)
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

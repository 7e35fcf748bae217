package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"roomres/pkg/client"
	"roomres/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string

	StoreDriver string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string

	UsersServiceURL string
	RoomsServiceURL string
	OracleTimeout   time.Duration

	OracleBreakerFailures int
	OracleBreakerTimeout  time.Duration

	KafkaEnabled          bool
	KafkaBookingsTopic    string
	KafkaBookingsDLQTopic string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

// Load reads the configuration from the environment, seeding it from a .env
// file in the working directory when one exists. Invalid configuration is
// fatal.
func Load(serviceName string) *Config {
	_ = godotenv.Load()

	cfg := FromEnv()
	cfg.Log = logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Format:    logger.JSON,
		AddSource: true,
		Service:   serviceName,
	})
	cfg.Client = client.NewClient()

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// FromEnv builds a Config from environment variables without validating it
// or creating the logger and clients.
func FromEnv() *Config {
	return &Config{
		Port:     getEnvStr(EnvPort, DefaultPort),
		LogLevel: getEnvStr(EnvLogLevel, DefaultLogLevel),

		StoreDriver: strings.ToLower(getEnvStr(EnvStoreDriver, DefaultStoreDriver)),

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		PostgresDSN: getEnvStr(EnvPostgresDSN, ""),

		RedisAddr:     getEnvStr(EnvRedisAddr, ""),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, 0),

		JWTSecret: getEnvStr(EnvJWTSecret, ""),

		UsersServiceURL: getEnvStr(EnvUsersServiceURL, DefaultUsersServiceURL),
		RoomsServiceURL: getEnvStr(EnvRoomsServiceURL, DefaultRoomsServiceURL),
		OracleTimeout:   getEnvDuration(EnvOracleTimeout, DefaultOracleTimeout),

		OracleBreakerFailures: getEnvNum(EnvOracleBreakerFailures, DefaultOracleBreakerFailures),
		OracleBreakerTimeout:  getEnvDuration(EnvOracleBreakerTimeout, DefaultOracleBreakerTimeout),

		KafkaEnabled:          getEnvBool(EnvKafkaEnabled, DefaultKafkaEnabled),
		KafkaBookingsTopic:    getEnvStr(EnvKafkaBookingsTopic, DefaultKafkaBookingsTopic),
		KafkaBookingsDLQTopic: getEnvStr(EnvKafkaBookingsDLQTopic, DefaultKafkaBookingsDLQTopic),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),
	}
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetPostgres() {
	cfg.Client.SetPostgres(cfg.Log, cfg.PostgresDSN, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StoreDriver {
	case StoreMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	case StorePostgres:
		if !regexp.MustCompile(`^postgres(ql)?://`).MatchString(cfg.PostgresDSN) {
			errors = append(errors, "PostgresDSN must start with 'postgres://' or 'postgresql://'")
		}
	case StoreMemory:
	default:
		errors = append(errors, fmt.Sprintf("StoreDriver must be one of [%s, %s, %s], got: %s", StoreMongo, StorePostgres, StoreMemory, cfg.StoreDriver))
	}

	if len(cfg.JWTSecret) < MinJWTSecretLength {
		errors = append(errors, fmt.Sprintf("JWTSecret must be at least %d characters long", MinJWTSecretLength))
	}

	for name, raw := range map[string]string{"UsersServiceURL": cfg.UsersServiceURL, "RoomsServiceURL": cfg.RoomsServiceURL} {
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("%s must be an absolute http(s) URL, got: %s", name, raw))
		}
	}

	if cfg.KafkaEnabled && cfg.KafkaBookingsTopic == "" {
		errors = append(errors, "KafkaBookingsTopic cannot be empty when Kafka is enabled")
	}
	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"MongoConnTimeout", cfg.MongoConnTimeout},
		{"OracleTimeout", cfg.OracleTimeout},
		{"OracleBreakerTimeout", cfg.OracleBreakerTimeout},
		{"RateLimitWindow", cfg.RateLimitWindow},
		{"RequestTimeout", cfg.RequestTimeout},
		{"IdempotencyTTL", cfg.IdempotencyTTL},
		{"ReadTimeout", cfg.ReadTimeout},
		{"WriteTimeout", cfg.WriteTimeout},
		{"IdleTimeout", cfg.IdleTimeout},
		{"ShutdownTimeout", cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", d.name, d.value))
		}
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.OracleBreakerFailures <= 0 {
		errors = append(errors, fmt.Sprintf("OracleBreakerFailures must be positive, got: %d", cfg.OracleBreakerFailures))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"port", cfg.Port,
		"log_level", cfg.LogLevel,
		"store_driver", cfg.StoreDriver,
		"mongo_uri", redactURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"postgres_dsn", redactURI(cfg.PostgresDSN),
		"redis_addr", cfg.RedisAddr,
		"redis_db", cfg.RedisDB,
		"jwt_secret_set", cfg.JWTSecret != "",
		"users_service_url", cfg.UsersServiceURL,
		"rooms_service_url", cfg.RoomsServiceURL,
		"oracle_timeout", cfg.OracleTimeout,
		"oracle_breaker_failures", cfg.OracleBreakerFailures,
		"oracle_breaker_timeout", cfg.OracleBreakerTimeout,
		"kafka_enabled", cfg.KafkaEnabled,
		"kafka_bookings_topic", cfg.KafkaBookingsTopic,
		"kafka_bookings_dlq_topic", cfg.KafkaBookingsDLQTopic,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

var credentialRegex = regexp.MustCompile(`(\w+(\+srv)?://)[^:@/]+:[^@]+@`)

func redactURI(uri string) string {
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}

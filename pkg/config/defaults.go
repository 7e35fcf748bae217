package config

import "time"

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

const (
	DefaultPort     = "8003"
	DefaultLogLevel = "info"

	DefaultStoreDriver = StoreMongo

	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "roomres"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultUsersServiceURL = "http://localhost:8001"
	DefaultRoomsServiceURL = "http://localhost:8002"
	DefaultOracleTimeout   = 5 * time.Second

	DefaultOracleBreakerFailures = 5
	DefaultOracleBreakerTimeout  = 60 * time.Second

	DefaultKafkaEnabled          = false
	DefaultKafkaBookingsTopic    = "bookings.events"
	DefaultKafkaBookingsDLQTopic = "dlq-bookings"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100

	MinJWTSecretLength = 16
)

package config

const (
	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvStoreDriver = "STORE_DRIVER"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPostgresDSN = "POSTGRES_DSN"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvJWTSecret = "JWT_SECRET"

	EnvUsersServiceURL = "USERS_SERVICE_URL"
	EnvRoomsServiceURL = "ROOMS_SERVICE_URL"
	EnvOracleTimeout   = "ORACLE_TIMEOUT"

	EnvOracleBreakerFailures = "ORACLE_BREAKER_FAILURES"
	EnvOracleBreakerTimeout  = "ORACLE_BREAKER_TIMEOUT"

	EnvKafkaEnabled          = "KAFKA_ENABLED"
	EnvKafkaBookingsTopic    = "KAFKA_BOOKINGS_TOPIC"
	EnvKafkaBookingsDLQTopic = "KAFKA_BOOKINGS_DLQ_TOPIC"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)

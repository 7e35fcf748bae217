package kafka_config

import "time"

const (
	// Default Kafka broker
	DefaultKafkaBrokers = "localhost:9092"

	// Producer defaults
	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 10 * time.Millisecond
	DefaultProducerRequireAcks  = -1 // Require all replicas
	DefaultProducerCompression  = "snappy"
	DefaultProducerAsync        = false
	DefaultProducerWriteTimeout = 5 * time.Second

	// Middleware defaults
	DefaultEnableMiddleware = true
)

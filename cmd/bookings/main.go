package main

import (
	"roomres/internal/bookings/events"
	"roomres/internal/bookings/handler"
	"roomres/internal/bookings/oracle"
	"roomres/internal/bookings/repository"
	"roomres/internal/bookings/service"
	"roomres/internal/bookings/validator"
	"roomres/pkg/app"
	"roomres/pkg/auth"
	"roomres/pkg/config"
	"roomres/pkg/kafka"
	kafka_config "roomres/pkg/kafka/config"
	kafka_middleware "roomres/pkg/kafka/middleware"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting Bookings service")

	repo := initRepository(cfg)
	breaker := oracle.BreakerConfig{
		Failures: uint32(cfg.OracleBreakerFailures),
		Timeout:  cfg.OracleBreakerTimeout,
	}
	users := oracle.NewHTTPIdentityOracle(cfg.UsersServiceURL, cfg.OracleTimeout, breaker, cfg.Log)
	rooms := oracle.NewHTTPRoomOracle(cfg.RoomsServiceURL, cfg.OracleTimeout, breaker, cfg.Log)
	publisher := initPublisher(cfg)

	bookingService := service.NewBookingService(repo, users, rooms, publisher, cfg)
	bookingHandler := handler.NewBookingHandler(bookingService, validator.NewBookingValidator(cfg.Log), cfg.Log)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		auth.NewJWTAuthenticator(cfg.JWTSecret, users),
		handler.NewHealthHandler(repo, cfg.Log),
		bookingHandler,
	)
	serverApp.OnShutdown(publisher.Close)
	serverApp.Run()
}

func initRepository(cfg *config.Config) repository.BookingRepository {
	if cfg.RedisAddr != "" {
		cfg.SetRedis()
	}

	switch cfg.StoreDriver {
	case config.StorePostgres:
		cfg.SetPostgres()
		cfg.Log.Info("Booking store initialized", "driver", cfg.StoreDriver)
		return repository.NewPostgresBookingRepository(cfg.Client.Postgres, cfg.ReadTimeout, cfg.WriteTimeout)
	case config.StoreMemory:
		cfg.Log.Warn("Using in-memory booking store, data is lost on restart")
		return repository.NewMemoryBookingRepository()
	default:
		cfg.SetMongo()
		cfg.Log.Info("Booking store initialized", "driver", cfg.StoreDriver, "database", cfg.MongoDatabaseName)
		return repository.NewMongoBookingRepository(cfg)
	}
}

func initPublisher(cfg *config.Config) events.Publisher {
	if !cfg.KafkaEnabled {
		cfg.Log.Info("Kafka disabled, booking events are not published")
		return events.Noop{}
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.KafkaBookingsTopic, cfg.KafkaBookingsDLQTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	}

	cfg.Log.Info("Kafka producer initialized", "topic", producer.Topic())
	return events.NewKafkaPublisher(producer)
}

package client

import (
	"context"
	"time"

	"roomres/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client holds the shared connections of a service. Only the connections the
// service asked for are set.
type Client struct {
	Mongo    *mongo.Client
	Postgres *pgxpool.Pool
	Redis    *redis.Client
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) SetMongo(log *logger.Logger, mongoURI string, mongoConnTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB", "error", err)
	}

	log.Info("Successfully connected to MongoDB")
	c.Mongo = client
}

func (c *Client) SetPostgres(log *logger.Logger, dsn string, connTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", "error", err)
	}

	if err := pool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping Postgres", "error", err)
	}

	log.Info("Successfully connected to Postgres")
	c.Postgres = pool
}

// SetRedis connects to Redis. A failed ping is not fatal: callers check
// c.Redis and fall back to in-process state.
func (c *Client) SetRedis(log *logger.Logger, addr, password string, db int) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unreachable, continuing without it", "addr", addr, "error", err)
		_ = client.Close()
		return
	}

	log.Info("Successfully connected to Redis", "addr", addr)
	c.Redis = client
}

func (c *Client) GracefulShutdown(log *logger.Logger, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if c.Mongo != nil {
		if err := c.Mongo.Disconnect(ctx); err != nil {
			log.Error("Failed to disconnect from MongoDB", "error", err)
		} else {
			log.Info("Disconnected from MongoDB")
		}
	}
	if c.Postgres != nil {
		c.Postgres.Close()
		log.Info("Closed Postgres pool")
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Error("Failed to close Redis client", "error", err)
		}
	}
}

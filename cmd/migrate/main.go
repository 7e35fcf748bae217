package main

import (
	"context"
	"time"

	mongoMigration "roomres/internal/migrations/mongo"
	postgresMigration "roomres/internal/migrations/postgres"
	"roomres/pkg/config"
)

const (
	JobName          = "bookings-migration"
	migrationTimeout = 120 * time.Second
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), migrationTimeout)
	defer cancel()

	cfg := config.Load(JobName)
	defer cfg.GracefulShutdown()

	var err error
	switch cfg.StoreDriver {
	case config.StorePostgres:
		cfg.SetPostgres()
		err = postgresMigration.RunMigration(ctx, cfg.Client.Postgres, cfg.Log)
	case config.StoreMongo:
		cfg.SetMongo()
		err = mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log)
	default:
		cfg.Log.Info("Store needs no migration", "driver", cfg.StoreDriver)
		return
	}

	if err != nil {
		cfg.GracefulShutdown()
		cfg.Log.Fatal("Migration failed", "driver", cfg.StoreDriver, "error", err)
	}
	cfg.Log.Info("Migration completed successfully", "driver", cfg.StoreDriver)
}

package postgres

import (
	"context"
	"fmt"

	"roomres/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// statements are idempotent and applied in order inside one transaction.
var statements = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id         uuid        PRIMARY KEY,
		username   text        NOT NULL CHECK (length(username) > 0),
		room_id    bigint      NOT NULL CHECK (room_id > 0),
		date       date        NOT NULL,
		start_time time        NOT NULL,
		end_time   time        NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		CONSTRAINT bookings_time_range_check CHECK (start_time < end_time)
	)`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'bookings_no_overlap') THEN
			ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap EXCLUDE USING gist (
				room_id WITH =,
				date WITH =,
				tsrange(date + start_time, date + end_time, '[)') WITH &&
			);
		END IF;
	END
	$$`,
	`CREATE INDEX IF NOT EXISTS bookings_username_idx ON bookings (username, date, start_time)`,
	`CREATE INDEX IF NOT EXISTS bookings_room_date_idx ON bookings (room_id, date, start_time)`,
}

// RunMigration creates the bookings table with the constraints that back
// the service's conflict checks.
func RunMigration(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	log.Info("Running Postgres migrations")

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d failed: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}

	log.Info("All Postgres migrations applied", "statements", len(statements))
	return nil
}

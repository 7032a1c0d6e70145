package migrations

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/traffical/traffical-go/pkg/db"
)

var addOutboxAttempts = db.Migration{
	Version:     20260301090001,
	Description: "track delivery attempts on event_outbox",
	Up: func(ctx context.Context, tx *sqlx.Tx) error {
		exists, err := db.ColumnExists(ctx, tx, "event_outbox", "attempts")
		if err != nil || exists {
			return err
		}
		return db.Exec(`ALTER TABLE event_outbox ADD COLUMN attempts INTEGER NOT NULL DEFAULT 0`)(ctx, tx)
	},
}

package migrations

import "github.com/traffical/traffical-go/pkg/db"

var createEventOutbox = db.Migration{
	Version:     20260301090000,
	Description: "create event_outbox",
	Up: db.Exec(
		`CREATE TABLE IF NOT EXISTS event_outbox (
			id          TEXT PRIMARY KEY,
			project_id  TEXT NOT NULL,
			environment TEXT NOT NULL,
			payload     TEXT NOT NULL,
			created_at  DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_outbox_created_at ON event_outbox(created_at)`,
	),
}

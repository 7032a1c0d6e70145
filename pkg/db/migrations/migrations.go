// Package migrations holds the schema of the local SDK store.
package migrations

import "github.com/traffical/traffical-go/pkg/db"

// All returns every migration. Append new ones at the end.
func All() []db.Migration {
	return []db.Migration{
		createEventOutbox,
		addOutboxAttempts,
	}
}

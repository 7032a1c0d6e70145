// Package sqlite implements events.Outbox on the local SQLite store.
package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/traffical/traffical-go/pkg/db"
	"github.com/traffical/traffical-go/pkg/db/migrations"
	"github.com/traffical/traffical-go/pkg/events"
)

// Outbox stores undelivered batches for one project environment. Several
// processes may share the database file.
type Outbox struct {
	db          *sqlx.DB
	projectID   string
	environment string
}

var _ events.Outbox = (*Outbox)(nil)

// Open opens (and migrates) the database at path.
func Open(ctx context.Context, path, projectID, environment string) (*Outbox, error) {
	conn, err := db.Open(ctx, path, migrations.All()...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open event outbox")
	}
	return &Outbox{db: conn, projectID: projectID, environment: environment}, nil
}

// Close closes the database.
func (o *Outbox) Close() error {
	return o.db.Close()
}

type outboxRow struct {
	ID        string    `db:"id"`
	Payload   string    `db:"payload"`
	Attempts  int       `db:"attempts"`
	CreatedAt time.Time `db:"created_at"`
}

// Save persists batch as one row.
func (o *Outbox) Save(ctx context.Context, batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return errors.Wrap(err, "failed to encode events")
	}
	_, err = o.db.ExecContext(ctx, `
		INSERT INTO event_outbox (id, project_id, environment, payload, created_at, attempts)
		VALUES (?, ?, ?, ?, ?, 0)
	`, uuid.NewString(), o.projectID, o.environment, string(payload), time.Now().UTC())
	return errors.Wrap(err, "failed to insert outbox batch")
}

// Pending returns up to limit batches, oldest first.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]events.Batch, error) {
	var rows []outboxRow
	err := o.db.SelectContext(ctx, &rows, `
		SELECT id, payload, attempts, created_at
		FROM event_outbox
		WHERE project_id = ? AND environment = ?
		ORDER BY created_at, rowid
		LIMIT ?
	`, o.projectID, o.environment, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query outbox")
	}

	batches := make([]events.Batch, 0, len(rows))
	for _, r := range rows {
		var evs []events.Event
		if err := json.Unmarshal([]byte(r.Payload), &evs); err != nil {
			return nil, errors.Wrapf(err, "corrupt outbox batch %s", r.ID)
		}
		batches = append(batches, events.Batch{
			ID:        r.ID,
			Events:    evs,
			Attempts:  r.Attempts,
			CreatedAt: r.CreatedAt,
		})
	}
	return batches, nil
}

// Delete removes a delivered or abandoned batch.
func (o *Outbox) Delete(ctx context.Context, id string) error {
	_, err := o.db.ExecContext(ctx, `DELETE FROM event_outbox WHERE id = ?`, id)
	return errors.Wrapf(err, "failed to delete outbox batch %s", id)
}

// MarkAttempt increments the delivery attempt counter of a batch.
func (o *Outbox) MarkAttempt(ctx context.Context, id string) error {
	_, err := o.db.ExecContext(ctx, `UPDATE event_outbox SET attempts = attempts + 1 WHERE id = ?`, id)
	return errors.Wrapf(err, "failed to update outbox batch %s", id)
}

// Count returns the number of stored batches for this project environment.
func (o *Outbox) Count(ctx context.Context) (int, error) {
	var n int
	err := o.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM event_outbox WHERE project_id = ? AND environment = ?
	`, o.projectID, o.environment)
	return n, errors.Wrap(err, "failed to count outbox batches")
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffical/traffical-go/pkg/events"
)

func openOutbox(t *testing.T, path, project, env string) *Outbox {
	t.Helper()
	o, err := Open(context.Background(), path, project, env)
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })
	return o
}

func TestOutbox_Lifecycle(t *testing.T) {
	ctx := context.Background()
	o := openOutbox(t, filepath.Join(t.TempDir(), "outbox.db"), "proj", "production")

	require.NoError(t, o.Save(ctx, nil), "empty batches are ignored")
	require.NoError(t, o.Save(ctx, []events.Event{{ID: "1", Type: events.TypeTrack, Name: "first"}}))
	require.NoError(t, o.Save(ctx, []events.Event{{ID: "2", Type: events.TypeTrack, Name: "second"}, {ID: "3", Type: events.TypeTrack, Name: "third"}}))

	n, err := o.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := o.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "first", pending[0].Events[0].Name)
	assert.Len(t, pending[1].Events, 2)
	assert.False(t, pending[0].CreatedAt.IsZero())

	require.NoError(t, o.MarkAttempt(ctx, pending[0].ID))
	require.NoError(t, o.MarkAttempt(ctx, pending[0].ID))
	pending, err = o.Pending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)

	require.NoError(t, o.Delete(ctx, pending[0].ID))
	n, err = o.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOutbox_ScopedByEnvironment(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outbox.db")

	prod := openOutbox(t, path, "proj", "production")
	require.NoError(t, prod.Save(ctx, []events.Event{{ID: "1", Type: events.TypeTrack}}))
	require.NoError(t, prod.Close())

	staging := openOutbox(t, path, "proj", "staging")
	n, err := staging.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	reopened := openOutbox(t, path, "proj", "production")
	n, err = reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "batches survive reopening")
}

func TestOutbox_WithEmitter(t *testing.T) {
	ctx := context.Background()
	o := openOutbox(t, filepath.Join(t.TempDir(), "outbox.db"), "proj", "production")

	var sent []events.Event
	fail := true
	sink := events.SinkFunc(func(_ context.Context, batch []events.Event) error {
		if fail {
			return context.DeadlineExceeded
		}
		sent = append(sent, batch...)
		return nil
	})

	e := events.NewEmitter(ctx, sink, events.Options{FlushInterval: time.Hour, Outbox: o})
	e.Enqueue(ctx, events.Event{ID: "1", Type: events.TypeTrack, Name: "offline"})
	require.Error(t, e.Flush(ctx))

	fail = false
	require.NoError(t, e.Close(ctx))

	require.Len(t, sent, 1)
	assert.Equal(t, "offline", sent[0].Name)
	n, err := o.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

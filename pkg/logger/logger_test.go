package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger := newLogger()

	formatter, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
}

func TestGetLogger_WithoutContextLogger(t *testing.T) {
	retrieved := G(context.Background())

	assert.NotNil(t, retrieved)
	assert.Equal(t, L.Logger, retrieved.Logger)
}

func TestGetLogger_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is tolerated on purpose
	assert.Equal(t, L, G(nil))
}

func TestWithProjectAndComponent(t *testing.T) {
	ctx := WithLogger(context.Background(), logrus.NewEntry(logrus.New()))
	ctx = WithProject(ctx, "proj_1", "production")
	ctx = WithComponent(ctx, "emitter")

	entry := G(ctx)
	assert.Equal(t, "proj_1", entry.Data[FieldProject])
	assert.Equal(t, "production", entry.Data[FieldEnvironment])
	assert.Equal(t, "emitter", entry.Data[FieldComponent])
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	applyFormat(l, FormatJSON)

	ctx := WithLogger(context.Background(), logrus.NewEntry(l))
	G(ctx).WithField("decision_id", "d-1").Info("decision recorded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["logLevel"])
	assert.Equal(t, "decision recorded", entry["message"])
	assert.Equal(t, "d-1", entry["decision_id"])

	ts, ok := entry["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339Nano, ts)
	assert.NoError(t, err)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"FMT", FormatText, false},
		{" json ", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigure(t *testing.T) {
	origLevel, origFormatter := L.Logger.GetLevel(), L.Logger.Formatter
	defer func() {
		L.Logger.SetLevel(origLevel)
		L.Logger.Formatter = origFormatter
	}()

	require.NoError(t, Configure("debug", "json"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, L.Logger.Formatter)

	assert.Error(t, Configure("chatty", "json"))
	assert.Error(t, Configure("info", "xml"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel(), "invalid input leaves settings alone")
}

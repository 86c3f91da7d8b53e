package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationID(t *testing.T) {
	ctx := WithCorrelationID(context.Background())
	id := GetCorrelationID(ctx)
	require.NotEmpty(t, id)

	assert.Equal(t, id, GetCorrelationID(WithCorrelationID(ctx)), "existing id is kept")
	assert.Equal(t, "req-1", GetCorrelationID(ContextWithCorrelationID(ctx, "req-1")))
	assert.Empty(t, GetCorrelationID(context.Background()))
}

func TestLoggerAddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo)

	logger.Info(ContextWithCorrelationID(context.Background(), "req-7"), "hello", "code", "ex1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "req-7", entry["correlation_id"])
	assert.Equal(t, "ex1", entry["code"])
}

func TestLevels(t *testing.T) {
	tests := []struct {
		level     LogLevel
		debugSeen bool
		warnSeen  bool
	}{
		{LevelDebug, true, true},
		{LevelInfo, false, true},
		{LevelError, false, false},
		{"bogus", false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(&buf, tt.level)
			ctx := context.Background()

			logger.Debug(ctx, "d")
			assert.Equal(t, tt.debugSeen, bytes.Contains(buf.Bytes(), []byte(`"msg":"d"`)))
			logger.Warn(ctx, "w")
			assert.Equal(t, tt.warnSeen, bytes.Contains(buf.Bytes(), []byte(`"msg":"w"`)))
		})
	}
}

func TestLogClickFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo)
	at := time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)

	logger.LogClickFailure(context.Background(), "ex1", at, 5, errors.New("db down"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "click not recorded", entry["msg"])
	assert.Equal(t, "ex1", entry["code"])
	assert.Equal(t, "2024-03-10T23:59:00Z", entry["clicked_at"])
	assert.EqualValues(t, 5, entry["attempts"])
	assert.Equal(t, "db down", entry["error"])
}

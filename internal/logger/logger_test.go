package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		env string
	}{
		{"development"},
		{"production"},
		{""},
	}

	for _, tt := range tests {
		t.Run("env="+tt.env, func(t *testing.T) {
			log, err := New(tt.env)
			require.NoError(t, err)
			require.NotNil(t, log)
			log.Info("probe")
		})
	}
}

func TestNewWithDefaultsNeverNil(t *testing.T) {
	log := NewWithDefaults()
	require.NotNil(t, log)
}

func TestLogEntriesAreStructuredJSON(t *testing.T) {
	var buf bytes.Buffer

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(&buf),
		zapcore.DebugLevel,
	)
	log := zap.New(core)

	log.Info("order created",
		zap.String("order_id", "a-b-c"),
		zap.String("status", "paid"),
	)
	require.NoError(t, log.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "order created", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "a-b-c", entry["order_id"])
	assert.Equal(t, "paid", entry["status"])
}

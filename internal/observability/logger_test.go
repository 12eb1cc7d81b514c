package observability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/piwi3910/taskforge/internal/config"
	"github.com/piwi3910/taskforge/internal/observability"
)

func testAppConfig() config.AppConfig {
	return config.AppConfig{
		Name:        "taskforge-api",
		Version:     "1.0.0",
		Environment: "test",
	}
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{
			name: "json format",
			cfg:  config.LoggingConfig{Level: "info", Format: "json"},
		},
		{
			name: "console format",
			cfg:  config.LoggingConfig{Level: "debug", Format: "console"},
		},
		{
			name: "warn level",
			cfg:  config.LoggingConfig{Level: "warn", Format: "json"},
		},
		{
			name:    "invalid level",
			cfg:     config.LoggingConfig{Level: "verbose", Format: "json"},
			wantErr: true,
		},
		{
			name:    "invalid format",
			cfg:     config.LoggingConfig{Level: "info", Format: "xml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := observability.InitLogger(tt.cfg, testAppConfig())
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, logger)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := &observability.Logger{Logger: zap.New(core)}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "warn message", entries[0].Message)
	assert.Equal(t, "error message", entries[1].Message)
}

func TestLoggerWithFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := &observability.Logger{Logger: zap.New(core)}

	child := logger.WithFields(zap.String("request_id", "req-123"))
	child.Info("request started")

	// Fields on the child must not leak back to the parent.
	logger.Info("plain event")

	entries := logs.All()
	require.Len(t, entries, 2)

	fields := entries[0].ContextMap()
	assert.Equal(t, "req-123", fields["request_id"])
	assert.NotContains(t, entries[1].ContextMap(), "request_id")
}

func TestLoggerWithError(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := &observability.Logger{Logger: zap.New(core)}

	logger.WithError(errors.New("boom")).Error("operation failed")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].ContextMap()["error"])
}

func TestLoggerWithComponent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := &observability.Logger{Logger: zap.New(core)}

	logger.WithComponent("storage").Info("connected")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "storage", entries[0].ContextMap()["component"])
}

func TestContextWithLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := &observability.Logger{Logger: zap.New(core)}

	ctx := observability.ContextWithLogger(context.Background(), logger)
	retrieved := observability.LoggerFromContext(ctx)
	require.NotNil(t, retrieved)

	retrieved.Info("via context")
	require.Len(t, logs.All(), 1)
}

func TestLoggerFromContextMissing(t *testing.T) {
	// A bare context must yield a usable no-op logger, never nil.
	logger := observability.LoggerFromContext(context.Background())
	require.NotNil(t, logger)
	logger.Info("discarded")
}

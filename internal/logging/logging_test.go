package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"INFO", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"bogus", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			logger := Initialize(tt.input)
			assert.Equal(t, tt.expected, logger.GetLevel())
		})
	}
}

func TestJSONFieldsAndServiceHook(t *testing.T) {
	logger := Initialize("info")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	NewServiceLogger(logger, "engine").WithField("device_id", "cam-1").Info("Alert created")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Alert created", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.NotEmpty(t, line["timestamp"])
	assert.Equal(t, ServiceName, line["service"])
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "cam-1", line["device_id"])
}

func TestFieldsHookDoesNotOverride(t *testing.T) {
	logger := Initialize("info")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.WithField("service", "custom").Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "custom", line["service"])
}

func TestSetupFileLogging(t *testing.T) {
	logger := Initialize("info")
	path := filepath.Join(t.TempDir(), "logs", "monitor.log")

	require.NoError(t, SetupFileLogging(logger, path))
	logger.Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")

	assert.NoError(t, SetupFileLogging(logger, ""))
}

package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/villacare/planning-engine/config"
	"github.com/villacare/planning-engine/logging"
)

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := logging.NewWithOutput(config.LogConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))
	require.NoError(t, err)
	defer closeFn()

	logger.Info("dropped")
	logger.Warn("kept", zap.String("shift_id", "s1"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "s1", entry["shift_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := logging.NewWithOutput(config.LogConfig{Level: "info", Format: "console"}, zapcore.AddSync(&buf))
	require.NoError(t, err)
	defer closeFn()

	logger.Info("published", zap.Int("deducted", 5))
	assert.Contains(t, buf.String(), "published")
	assert.Contains(t, buf.String(), `"deducted": 5`)
}

func TestNew_FileTee(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "planning.log")
	var buf bytes.Buffer
	logger, closeFn, err := logging.NewWithOutput(config.LogConfig{Level: "info", Format: "console", File: path}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Debug("file only")
	logger.Info("both")
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"file only"`)
	assert.Contains(t, string(data), `"msg":"both"`)
	assert.NotContains(t, buf.String(), "file only")
	assert.Contains(t, buf.String(), "both")
}

func TestNew_Rejects(t *testing.T) {
	_, _, err := logging.New(config.LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)

	_, _, err = logging.New(config.LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

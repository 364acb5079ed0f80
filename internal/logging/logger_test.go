package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" Warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, TRACE, ParseLevel("trace"))
	assert.Equal(t, INFO, ParseLevel("verbose"))
	assert.Equal(t, "WARN", WARN.String())
}

func TestWriterLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("engine", &buf, WARN)

	l.Info("скрыто")
	l.Warn("видно %d", 42)

	out := buf.String()
	assert.NotContains(t, out, "скрыто")
	assert.Contains(t, out, "[WARN] [engine] видно 42")
}

func TestNewLoggerWritesFile(t *testing.T) {
	prev := LogDir
	LogDir = t.TempDir()
	defer func() { LogDir = prev }()

	l, err := NewLogger("unit")
	require.NoError(t, err)
	l.Trace("trace line")
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	files, err := filepath.Glob(filepath.Join(LogDir, "unit_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "[TRACE] [unit] trace line")
}

func TestLoggerManagerSetLevel(t *testing.T) {
	prev := LogDir
	LogDir = t.TempDir()
	defer func() { LogDir = prev }()

	lm := &LoggerManager{loggers: make(map[string]*Logger)}
	l := lm.MustGetLogger("api")
	assert.Same(t, l, lm.MustGetLogger("api"))
	assert.Equal(t, []string{"api"}, lm.ListComponents())

	require.NoError(t, lm.SetLogLevel("api", ERROR, ERROR))
	assert.Equal(t, ERROR, l.minConsoleLevel)
	assert.Error(t, lm.SetLogLevel("missing", INFO, INFO))
	require.NoError(t, lm.CloseAll())
}

package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should create logger with defaults", func(t *testing.T) {
		l, err := New(DefaultConfig())
		require.NoError(t, err)
		defer l.Close()

		assert.NotNil(t, l)
	})

	t.Run("should fall back to info on bad level", func(t *testing.T) {
		l, err := New(Config{Level: "nonsense", Console: true})
		require.NoError(t, err)
		defer l.Close()
	})

	t.Run("should create log file and directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		logFile := filepath.Join(tmpDir, "logs", "loom.log")

		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		l.Info().Msg("hello")
		require.NoError(t, l.Close())

		_, err = os.Stat(logFile)
		assert.NoError(t, err)
	})
}

func TestRedactor(t *testing.T) {
	r := NewRedactor()

	t.Run("should redact API keys", func(t *testing.T) {
		out := r.Redact("key is sk-ant-REDACTED")
		assert.NotContains(t, out, "sk-ant-")
		assert.Contains(t, out, "[REDACTED]")
	})

	t.Run("should redact bearer tokens", func(t *testing.T) {
		out := r.Redact("Authorization: Bearer abc.def.ghi")
		assert.Contains(t, out, "[REDACTED]")
	})

	t.Run("should leave plain text alone", func(t *testing.T) {
		out := r.Redact("nothing secretive here")
		assert.Equal(t, "nothing secretive here", out)
	})

	t.Run("should accept custom patterns", func(t *testing.T) {
		require.NoError(t, r.AddPattern(`conv-[0-9]+`))
		assert.Contains(t, r.Redact("conv-12345"), "[REDACTED]")
	})

	t.Run("should reject invalid pattern", func(t *testing.T) {
		assert.Error(t, r.AddPattern(`([`))
	})
}

package observability

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitAuditLoggerWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	require.NoError(t, InitAuditLogger(path))
	defer GetAuditLogger().Close()

	ctx := context.Background()
	RecordToolAudit(ctx, "read_file", "model", "success", map[string]interface{}{
		"duration_ms": 12,
	})
	RecordFileWriteAudit(ctx, "notes/todo.md", "llm_request", "model", "success", map[string]interface{}{
		"bytes_written": 42,
	})

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	for _, line := range lines {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "each audit line is standalone JSON")
		assert.NotEmpty(t, entry["type"])
		assert.Equal(t, "success", entry["status"])
	}

	var fileWrite map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &fileWrite))
	assert.Equal(t, "write", fileWrite["action"])
	assert.Equal(t, "file", fileWrite["type"])
}

func TestRecordWithoutInitDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordStoreAudit(context.Background(), "delete", "conv-1", "success", nil)
	})
}

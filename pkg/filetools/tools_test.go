package filetools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawane/loom/pkg/toolexec"
)

func newRegisteredExecutor(t *testing.T) (*toolexec.Executor, *Provider) {
	t.Helper()
	provider := newTestProvider(t)
	executor := toolexec.New()
	require.NoError(t, Register(executor, provider))
	return executor, provider
}

func TestRegister(t *testing.T) {
	executor, _ := newRegisteredExecutor(t)

	assert.Equal(t, []string{
		"list_project_files",
		"read_file",
		"run_static_analysis",
		"search_in_files",
		"write_file_safe",
	}, executor.List())
}

func TestReadFileTool(t *testing.T) {
	executor, provider := newRegisteredExecutor(t)
	seed(t, provider, "main.go", "package main\n")

	result, err := executor.Execute(context.Background(), "read_file",
		map[string]interface{}{"path": "main.go"}, toolexec.ExecContext{})
	require.NoError(t, err)

	assert.Contains(t, result.Output, "package main")
	assert.Contains(t, result.Output, `"truncated":false`)
}

func TestSearchInFilesTool(t *testing.T) {
	executor, provider := newRegisteredExecutor(t)
	seed(t, provider, "a.go", "var needle = 1\n")

	t.Run("should return matches", func(t *testing.T) {
		result, err := executor.Execute(context.Background(), "search_in_files",
			map[string]interface{}{"query": "needle"}, toolexec.ExecContext{})
		require.NoError(t, err)
		assert.Contains(t, result.Output, `"a.go"`)
	})

	t.Run("missing query fails validation", func(t *testing.T) {
		_, err := executor.Execute(context.Background(), "search_in_files",
			map[string]interface{}{}, toolexec.ExecContext{})
		assert.ErrorIs(t, err, toolexec.ErrInvalidArguments)
	})
}

func TestWriteFileSafeTool(t *testing.T) {
	executor, provider := newRegisteredExecutor(t)
	seed(t, provider, "target.txt", "old")

	result, err := executor.Execute(context.Background(), "write_file_safe",
		map[string]interface{}{
			"path":        "target.txt",
			"new_content": "new",
			"reason":      "apply requested fix",
		}, toolexec.ExecContext{})
	require.NoError(t, err)

	assert.Contains(t, result.Output, `"path":"target.txt"`)
	assert.Contains(t, result.Output, `"bytes_written":3`)
	assert.Contains(t, result.Output, `"backup_path"`)

	content, _, err := provider.ReadFile("target.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, "new", content)
}

func TestRunStaticAnalysisTool(t *testing.T) {
	executor, provider := newRegisteredExecutor(t)
	seed(t, provider, "notes.go", "// TODO fix this later\n")

	result, err := executor.Execute(context.Background(), "run_static_analysis",
		map[string]interface{}{}, toolexec.ExecContext{})
	require.NoError(t, err)

	assert.Contains(t, result.Output, `"annotations"`)
	assert.Contains(t, result.Output, `"notes.go"`)
}

package filetools

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawane/loom/internal/observability"
	"github.com/sawane/loom/pkg/scanner"
	"github.com/sawane/loom/pkg/toolexec"
)

// Register registers the project file tools on the executor.
func Register(executor *toolexec.Executor, provider *Provider) error {
	if executor == nil {
		return fmt.Errorf("tool executor is required")
	}
	if provider == nil {
		return fmt.Errorf("file provider is required")
	}

	tools := []toolexec.Definition{
		readFileTool(provider),
		listProjectFilesTool(provider),
		searchInFilesTool(provider),
		writeFileSafeTool(provider),
		runStaticAnalysisTool(provider),
	}

	for _, tool := range tools {
		if err := executor.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

func readFileTool(provider *Provider) toolexec.Definition {
	return toolexec.Definition{
		Name:        "read_file",
		Description: "Read the content of a file inside the project.",
		Parameters: []toolexec.Parameter{
			{Name: "path", Type: "string", Description: "File path relative to the project root", Required: true},
			{Name: "max_bytes", Type: "number", Description: "Maximum bytes to read (default 200000)", Required: false, Default: DefaultMaxReadBytes},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			pathValue, _ := params["path"].(string)

			maxBytes := int64(0)
			if raw, ok := params["max_bytes"].(float64); ok && raw > 0 {
				maxBytes = int64(raw)
			}

			content, truncated, err := provider.ReadFile(pathValue, maxBytes)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"path":      pathValue,
				"content":   content,
				"truncated": truncated,
				"bytes":     len(content),
			}, nil
		},
	}
}

func listProjectFilesTool(provider *Provider) toolexec.Definition {
	return toolexec.Definition{
		Name:        "list_project_files",
		Description: "List files inside the project, optionally filtered by a glob pattern.",
		Parameters: []toolexec.Parameter{
			{Name: "pattern", Type: "string", Description: "File name glob, e.g. *.go", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			pattern, _ := params["pattern"].(string)

			files, err := provider.ListFiles(pattern)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{"files": files}, nil
		},
	}
}

func searchInFilesTool(provider *Provider) toolexec.Definition {
	return toolexec.Definition{
		Name:        "search_in_files",
		Description: "Search project files for a text query.",
		Parameters: []toolexec.Parameter{
			{Name: "query", Type: "string", Description: "Text to match", Required: true},
			{Name: "directory", Type: "string", Description: "Optional start directory", Required: false},
			{Name: "max_results", Type: "integer", Description: "Maximum results to return (default 50)", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			query, _ := params["query"].(string)
			directory, _ := params["directory"].(string)

			maxResults := 0
			if raw, ok := params["max_results"].(float64); ok {
				maxResults = int(raw)
			}

			matches, err := provider.Search(query, directory, maxResults)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{"results": matches}, nil
		},
	}
}

func writeFileSafeTool(provider *Provider) toolexec.Definition {
	return toolexec.Definition{
		Name:        "write_file_safe",
		Description: "Write a file safely, backing up the previous content first.",
		Parameters: []toolexec.Parameter{
			{Name: "path", Type: "string", Description: "File path relative to the project root", Required: true},
			{Name: "new_content", Type: "string", Description: "Complete content to write", Required: true},
			{Name: "reason", Type: "string", Description: "Why the file is being written, recorded in the audit log", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			pathValue, _ := params["path"].(string)
			content, _ := params["new_content"].(string)
			reason, _ := params["reason"].(string)
			if reason == "" {
				reason = "llm_request"
			}

			info, err := provider.WriteFileSafe(pathValue, content)
			if err != nil {
				observability.RecordFileWriteAudit(ctx, pathValue, reason, "model", "failed", map[string]interface{}{
					"error": err.Error(),
				})
				return nil, err
			}

			observability.RecordFileWriteAudit(ctx, info.Path, reason, "model", "success", map[string]interface{}{
				"bytes_written": info.BytesWritten,
				"backup_path":   info.BackupPath,
			})

			log.Info().
				Str("path", info.Path).
				Str("reason", reason).
				Int("bytes", info.BytesWritten).
				Msg("File written by model")

			return info, nil
		},
	}
}

func runStaticAnalysisTool(provider *Provider) toolexec.Definition {
	return toolexec.Definition{
		Name:        "run_static_analysis",
		Description: "Run the built-in static scanners over the project and return every issue.",
		Parameters:  []toolexec.Parameter{},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			issues, err := scanner.RunAll(provider.Root())
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{"issues": issues}, nil
		},
	}
}

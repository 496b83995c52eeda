package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/sawane/loom/internal/observability"
	"github.com/sawane/loom/pkg/provider"
)

// Parameter defines a parameter for a tool
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Definition defines a tool's metadata and handler
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// Handler is the function signature for tool execution
type Handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// ExecContext provides runtime information for tool execution
type ExecContext struct {
	ConversationID string
	ProjectRoot    string
	Timeout        time.Duration
}

// Result represents the outcome of a successful tool execution
type Result struct {
	Output    string `json:"output"`
	Truncated bool   `json:"truncated,omitempty"`
	Duration  time.Duration
}

// Executor manages and executes tools
type Executor struct {
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	mu      sync.RWMutex
}

// New creates a new Executor
func New() *Executor {
	observability.EnsureRegistered()

	return &Executor{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register registers a new tool
func (e *Executor) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tools[def.Name]; exists {
		return fmt.Errorf("tool %s is already registered", def.Name)
	}

	e.tools[def.Name] = &def
	e.schemas[def.Name] = schema

	log.Info().Str("tool", def.Name).Msg("Tool registered")

	return nil
}

// Unregister removes a tool
func (e *Executor) Unregister(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.tools, name)
	delete(e.schemas, name)
}

// List returns all registered tool names in sorted order.
func (e *Executor) List() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Specs returns provider-facing tool specifications for the model call.
func (e *Executor) Specs() []provider.ToolSpec {
	e.mu.RLock()
	defer e.mu.RUnlock()

	specs := make([]provider.ToolSpec, 0, len(e.tools))
	for _, def := range e.tools {
		specs = append(specs, provider.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schemaMap(*def),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	return specs
}

// Execute runs a tool. An ErrUnknownTool or ErrInvalidArguments error is
// returned before the handler ever runs; handler errors come back verbatim.
func (e *Executor) Execute(ctx context.Context, toolName string, params map[string]interface{}, execCtx ExecContext) (*Result, error) {
	startTime := time.Now()

	e.mu.RLock()
	tool := e.tools[toolName]
	schema := e.schemas[toolName]
	e.mu.RUnlock()

	if tool == nil {
		log.Error().Str("tool", toolName).Msg("Tool not found")
		observability.RecordToolExecution(toolName, time.Since(startTime), false)
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, toolName)
	}

	if err := validateParams(schema, params); err != nil {
		log.Warn().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		observability.RecordToolExecution(toolName, time.Since(startTime), false)
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	log.Debug().
		Str("tool", toolName).
		Str("conversation_id", execCtx.ConversationID).
		Msg("Executing tool")

	timeout := 30 * time.Second
	if execCtx.Timeout > 0 {
		timeout = execCtx.Timeout
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		result, err := tool.Handler(timeoutCtx, params)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- result
		}
	}()

	select {
	case raw := <-resultChan:
		duration := time.Since(startTime)

		output, err := renderOutput(raw)
		if err != nil {
			observability.RecordToolExecution(toolName, duration, false)
			return nil, fmt.Errorf("tool %s returned unserializable output: %w", toolName, err)
		}
		output, truncated := truncateOutput(output)

		log.Debug().
			Str("tool", toolName).
			Dur("duration", duration).
			Bool("truncated", truncated).
			Msg("Tool execution completed")

		observability.RecordToolExecution(toolName, duration, true)
		observability.RecordToolAudit(ctx, toolName, execCtx.ConversationID, "success", map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
			"truncated":   truncated,
		})

		return &Result{
			Output:    output,
			Truncated: truncated,
			Duration:  duration,
		}, nil

	case err := <-errChan:
		duration := time.Since(startTime)

		log.Error().
			Str("tool", toolName).
			Dur("duration", duration).
			Err(err).
			Msg("Tool execution failed")

		observability.RecordToolExecution(toolName, duration, false)
		observability.RecordToolAudit(ctx, toolName, execCtx.ConversationID, "failure", map[string]interface{}{
			"error": err.Error(),
		})

		return nil, err

	case <-timeoutCtx.Done():
		duration := time.Since(startTime)

		log.Error().
			Str("tool", toolName).
			Dur("duration", duration).
			Msg("Tool execution timeout")

		observability.RecordToolExecution(toolName, duration, false)

		return nil, fmt.Errorf("tool %s timed out after %v", toolName, timeout)
	}
}

// validateDefinition validates a tool definition
func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}

		validTypes := map[string]bool{
			"string": true, "number": true, "boolean": true,
			"object": true, "array": true, "integer": true,
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

// schemaMap builds the JSON Schema map form of a tool's parameters.
func schemaMap(def Definition) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []interface{}{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}

		if param.Default != nil {
			paramSchema["default"] = param.Default
		}

		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// compileSchema generates a validating JSON Schema from tool parameters
func compileSchema(def Definition) (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap(def)))
}

// validateParams validates parameters against a JSON Schema
func validateParams(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errors := []string{}
		for _, err := range result.Errors() {
			errors = append(errors, err.String())
		}
		return fmt.Errorf("validation errors: %v", errors)
	}

	return nil
}

// renderOutput converts a handler's return value into model-visible text.
func renderOutput(raw interface{}) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// truncateOutput truncates output if it exceeds the size limit
func truncateOutput(output string) (string, bool) {
	const maxSize = 10 * 1024 // 10KB

	if len(output) <= maxSize {
		return output, false
	}

	log.Warn().
		Int("original", len(output)).
		Int("truncated", maxSize).
		Msg("Tool output truncated")

	return output[:maxSize] + "\n... [output truncated]", true
}

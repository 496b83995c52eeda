package toolexec

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() Definition {
	return Definition{
		Name:        "echo",
		Description: "Echoes the input text back",
		Parameters: []Parameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return params["text"], nil
		},
	}
}

func TestExecutor_Register(t *testing.T) {
	t.Run("should register a valid tool", func(t *testing.T) {
		e := New()
		require.NoError(t, e.Register(echoTool()))
		assert.Equal(t, []string{"echo"}, e.List())
	})

	t.Run("should reject duplicate names", func(t *testing.T) {
		e := New()
		require.NoError(t, e.Register(echoTool()))
		assert.Error(t, e.Register(echoTool()))
	})

	t.Run("should reject missing handler", func(t *testing.T) {
		e := New()
		def := echoTool()
		def.Handler = nil
		assert.Error(t, e.Register(def))
	})

	t.Run("should reject invalid parameter type", func(t *testing.T) {
		e := New()
		def := echoTool()
		def.Parameters[0].Type = "varchar"
		assert.Error(t, e.Register(def))
	})
}

func TestExecutor_Execute(t *testing.T) {
	e := New()
	require.NoError(t, e.Register(echoTool()))

	t.Run("should execute with valid arguments", func(t *testing.T) {
		result, err := e.Execute(context.Background(), "echo", map[string]interface{}{"text": "hello"}, ExecContext{})
		require.NoError(t, err)
		assert.Equal(t, "hello", result.Output)
		assert.False(t, result.Truncated)
	})

	t.Run("should fail with ErrUnknownTool for unregistered tool", func(t *testing.T) {
		_, err := e.Execute(context.Background(), "nope", nil, ExecContext{})
		assert.ErrorIs(t, err, ErrUnknownTool)
	})

	t.Run("should fail with ErrInvalidArguments for missing required param", func(t *testing.T) {
		_, err := e.Execute(context.Background(), "echo", map[string]interface{}{}, ExecContext{})
		assert.ErrorIs(t, err, ErrInvalidArguments)
	})

	t.Run("should fail with ErrInvalidArguments for wrong type", func(t *testing.T) {
		_, err := e.Execute(context.Background(), "echo", map[string]interface{}{"text": 42}, ExecContext{})
		assert.ErrorIs(t, err, ErrInvalidArguments)
	})

	t.Run("should fail with ErrInvalidArguments for unexpected param", func(t *testing.T) {
		_, err := e.Execute(context.Background(), "echo", map[string]interface{}{"text": "x", "extra": true}, ExecContext{})
		assert.ErrorIs(t, err, ErrInvalidArguments)
	})

	t.Run("should pass handler errors through", func(t *testing.T) {
		handlerErr := errors.New("disk on fire")
		require.NoError(t, e.Register(Definition{
			Name:        "failing",
			Description: "Always fails",
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return nil, handlerErr
			},
		}))

		_, err := e.Execute(context.Background(), "failing", nil, ExecContext{})
		assert.ErrorIs(t, err, handlerErr)
		assert.NotErrorIs(t, err, ErrInvalidArguments)
	})
}

func TestExecutor_ExecuteTimeout(t *testing.T) {
	e := New()
	require.NoError(t, e.Register(Definition{
		Name:        "sleepy",
		Description: "Sleeps until cancelled",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	_, err := e.Execute(context.Background(), "sleepy", nil, ExecContext{Timeout: 20 * time.Millisecond})
	assert.Error(t, err)
}

func TestExecutor_OutputHandling(t *testing.T) {
	e := New()

	t.Run("should serialize structured output as JSON", func(t *testing.T) {
		require.NoError(t, e.Register(Definition{
			Name:        "structured",
			Description: "Returns a map",
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return map[string]interface{}{"path": "a.go", "bytes_written": 10}, nil
			},
		}))

		result, err := e.Execute(context.Background(), "structured", nil, ExecContext{})
		require.NoError(t, err)
		assert.Contains(t, result.Output, `"path":"a.go"`)
	})

	t.Run("should truncate oversized output", func(t *testing.T) {
		require.NoError(t, e.Register(Definition{
			Name:        "huge",
			Description: "Returns a large payload",
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return strings.Repeat("x", 20*1024), nil
			},
		}))

		result, err := e.Execute(context.Background(), "huge", nil, ExecContext{})
		require.NoError(t, err)
		assert.True(t, result.Truncated)
		assert.Contains(t, result.Output, "[output truncated]")
	})
}

func TestExecutor_Specs(t *testing.T) {
	e := New()
	require.NoError(t, e.Register(echoTool()))

	specs := e.Specs()
	require.Len(t, specs, 1)
	assert.Equal(t, "echo", specs[0].Name)

	properties, ok := specs[0].InputSchema["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, properties, "text")
	assert.Equal(t, []interface{}{"text"}, specs[0].InputSchema["required"])
}

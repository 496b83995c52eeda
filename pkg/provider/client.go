package provider

import (
	"context"
	"fmt"
	"strings"
)

// Client is an interface for LLM API providers
type Client interface {
	// Complete makes a blocking model call.
	Complete(ctx context.Context, request Request) (*Completion, error)

	// CompleteStream makes a model call and feeds text deltas to onChunk as
	// they arrive. The returned Completion's Content equals the
	// concatenation of all chunks.
	CompleteStream(ctx context.Context, request Request, onChunk ChunkHandler) (*Completion, error)

	// Name returns the provider name
	Name() string
}

// New creates a Client for the named provider.
func New(name, apiKey string) (Client, error) {
	switch name {
	case "anthropic":
		return NewAnthropicClient(apiKey), nil
	case "openai":
		return NewOpenAIClient(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

// IsRetryable checks if a provider error is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	// Network errors
	if strings.Contains(msg, "ECONNRESET") || strings.Contains(msg, "ETIMEDOUT") || strings.Contains(msg, "connection refused") {
		return true
	}

	// Rate limits
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") {
		return true
	}

	// Server errors
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}

	return false
}

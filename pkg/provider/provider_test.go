package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should create anthropic client", func(t *testing.T) {
		client, err := New("anthropic", "test-key")
		require.NoError(t, err)
		assert.Equal(t, "anthropic", client.Name())
	})

	t.Run("should create openai client", func(t *testing.T) {
		client, err := New("openai", "test-key")
		require.NoError(t, err)
		assert.Equal(t, "openai", client.Name())
	})

	t.Run("should reject unknown provider", func(t *testing.T) {
		_, err := New("carrier-pigeon", "test-key")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported provider")
	})
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("invalid api key")))

	assert.True(t, IsRetryable(errors.New("request failed with status 429")))
	assert.True(t, IsRetryable(errors.New("rate limit exceeded")))
	assert.True(t, IsRetryable(errors.New("upstream returned 503")))
	assert.True(t, IsRetryable(errors.New("read tcp: ECONNRESET")))
}

func TestUsageAdd(t *testing.T) {
	total := Usage{InputTokens: 10, OutputTokens: 5}
	total.Add(Usage{InputTokens: 3, OutputTokens: 7})

	assert.Equal(t, 13, total.InputTokens)
	assert.Equal(t, 12, total.OutputTokens)
}

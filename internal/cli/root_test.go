package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	root := GetRootCmd()
	require.NotNil(t, root)
	assert.Equal(t, "loom", root.Use)
	assert.Equal(t, version, root.Version)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range GetRootCmd().Commands() {
		names[cmd.Name()] = true
	}

	assert.True(t, names["chat"])
	assert.True(t, names["conversations"])
	assert.True(t, names["serve"])
}

func TestConversationsSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range conversationsCmd.Commands() {
		names[cmd.Name()] = true
	}

	assert.True(t, names["list"])
	assert.True(t, names["show"])
	assert.True(t, names["delete"])
}

func TestChatFlags(t *testing.T) {
	for _, name := range []string{"conversation", "focus", "no-stream"} {
		require.NotNil(t, chatCmd.Flags().Lookup(name), name)
	}
}

package filetools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	provider, err := NewProvider(t.TempDir())
	require.NoError(t, err)
	return provider
}

func seed(t *testing.T, provider *Provider, name, content string) {
	t.Helper()
	path := filepath.Join(provider.Root(), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestNewProvider(t *testing.T) {
	t.Run("should reject empty root", func(t *testing.T) {
		_, err := NewProvider("")
		assert.Error(t, err)
	})

	t.Run("should reject missing root", func(t *testing.T) {
		_, err := NewProvider(filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, err)
	})
}

func TestProviderResolve(t *testing.T) {
	provider := newTestProvider(t)

	t.Run("should reject escape via dotdot", func(t *testing.T) {
		_, _, err := provider.ReadFile("../outside.txt", 0)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "outside the project root")
	})

	t.Run("should reject absolute paths outside the root", func(t *testing.T) {
		_, _, err := provider.ReadFile("/etc/passwd", 0)
		assert.Error(t, err)
	})

	t.Run("should reject URLs", func(t *testing.T) {
		_, _, err := provider.ReadFile("https://example.com/x", 0)
		assert.Error(t, err)
	})
}

func TestProviderReadFile(t *testing.T) {
	provider := newTestProvider(t)
	seed(t, provider, "main.go", "package main\n")

	t.Run("should read full content", func(t *testing.T) {
		content, truncated, err := provider.ReadFile("main.go", 0)
		require.NoError(t, err)
		assert.Equal(t, "package main\n", content)
		assert.False(t, truncated)
	})

	t.Run("should truncate at max bytes", func(t *testing.T) {
		seed(t, provider, "big.txt", strings.Repeat("a", 100))

		content, truncated, err := provider.ReadFile("big.txt", 10)
		require.NoError(t, err)
		assert.Len(t, content, 10)
		assert.True(t, truncated)
	})

	t.Run("should fail on missing file", func(t *testing.T) {
		_, _, err := provider.ReadFile("nope.go", 0)
		assert.Error(t, err)
	})
}

func TestProviderListFiles(t *testing.T) {
	provider := newTestProvider(t)
	seed(t, provider, "a.go", "package a\n")
	seed(t, provider, "sub/b.go", "package b\n")
	seed(t, provider, "sub/c.txt", "text\n")
	seed(t, provider, ".git/config", "noise\n")

	t.Run("should list everything without a pattern", func(t *testing.T) {
		files, err := provider.ListFiles("")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.go", filepath.Join("sub", "b.go"), filepath.Join("sub", "c.txt")}, files)
	})

	t.Run("should filter by glob", func(t *testing.T) {
		files, err := provider.ListFiles("*.go")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.go", filepath.Join("sub", "b.go")}, files)
	})

	t.Run("should reject malformed glob", func(t *testing.T) {
		_, err := provider.ListFiles("[")
		assert.Error(t, err)
	})
}

func TestProviderSearch(t *testing.T) {
	provider := newTestProvider(t)
	seed(t, provider, "one.go", "package one\nvar needle = 1\n")
	seed(t, provider, "sub/two.go", "package two\n// needle here too\n")

	t.Run("should find matches with line numbers", func(t *testing.T) {
		matches, err := provider.Search("needle", "", 0)
		require.NoError(t, err)

		require.Len(t, matches, 2)
		assert.Equal(t, "one.go", matches[0].Path)
		assert.Equal(t, 2, matches[0].Line)
	})

	t.Run("should scope to a directory", func(t *testing.T) {
		matches, err := provider.Search("needle", "sub", 0)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, filepath.Join("sub", "two.go"), matches[0].Path)
	})

	t.Run("should stop at max results", func(t *testing.T) {
		matches, err := provider.Search("needle", "", 1)
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("should require a query", func(t *testing.T) {
		_, err := provider.Search("  ", "", 0)
		assert.Error(t, err)
	})
}

func TestProviderWriteFileSafe(t *testing.T) {
	provider := newTestProvider(t)

	t.Run("first write has no backup", func(t *testing.T) {
		info, err := provider.WriteFileSafe("fresh.go", "package fresh\n")
		require.NoError(t, err)

		assert.Equal(t, "fresh.go", info.Path)
		assert.Equal(t, len("package fresh\n"), info.BytesWritten)
		assert.Empty(t, info.BackupPath)
	})

	t.Run("rewrite backs up the previous content", func(t *testing.T) {
		seed(t, provider, "config.json", "{\"old\":true}")

		info, err := provider.WriteFileSafe("config.json", "{\"new\":true}")
		require.NoError(t, err)
		require.NotEmpty(t, info.BackupPath)

		backup, err := os.ReadFile(filepath.Join(provider.Root(), info.BackupPath))
		require.NoError(t, err)
		assert.Equal(t, "{\"old\":true}", string(backup))

		current, err := os.ReadFile(filepath.Join(provider.Root(), "config.json"))
		require.NoError(t, err)
		assert.Equal(t, "{\"new\":true}", string(current))
	})

	t.Run("should refuse writes outside the root", func(t *testing.T) {
		_, err := provider.WriteFileSafe("../evil.sh", "#!/bin/sh\n")
		assert.Error(t, err)
	})

	t.Run("should create parent directories", func(t *testing.T) {
		info, err := provider.WriteFileSafe("deep/nested/file.txt", "hi")
		require.NoError(t, err)
		assert.Equal(t, 2, info.BytesWritten)
	})
}

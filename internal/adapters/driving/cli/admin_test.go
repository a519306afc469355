package cli

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

// ==================== ledger ====================

func recordTestEntries(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, env.ledger.Record(ctx, domain.CostEntry{
		ID: "e1", SessionID: "session-a", Model: "claude-sonnet-4-5", Operation: "extract_chunk",
		Usage: domain.TokenUsage{InputTokens: 1200, OutputTokens: 300}, CostUSD: 0.0081, RecordedAt: at,
	}))
	require.NoError(t, env.ledger.Record(ctx, domain.CostEntry{
		ID: "e2", SessionID: "session-a", Model: "claude-sonnet-4-5", Operation: "extract_chunk",
		CacheHit: true, RecordedAt: at.Add(time.Minute),
	}))
	require.NoError(t, env.ledger.Record(ctx, domain.CostEntry{
		ID: "e3", SessionID: "session-b", Model: "gpt-4o", Operation: "extract_chunk",
		Usage: domain.TokenUsage{InputTokens: 800, OutputTokens: 100}, CostUSD: 0.003, RecordedAt: at,
	}))
}

func TestLedgerCmd(t *testing.T) {
	t.Run("summary across sessions", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()
		recordTestEntries(t, env)

		out, err := execute(t, "ledger")
		require.NoError(t, err)
		assert.Contains(t, out, "all sessions")
		assert.Contains(t, out, "extract_chunk")
	})

	t.Run("summary for one session as json", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()
		recordTestEntries(t, env)

		out, err := execute(t, "ledger", "session-a", "--json")
		require.NoError(t, err)

		var summary domain.CostSummary
		require.NoError(t, json.Unmarshal([]byte(out), &summary))
		assert.Equal(t, 1, summary.CacheHits)
		assert.InDelta(t, 0.0081, summary.TotalCostUSD, 1e-9)
	})

	t.Run("entries", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()
		recordTestEntries(t, env)

		out, err := execute(t, "ledger", "session-a", "--entries")
		require.NoError(t, err)
		assert.Contains(t, out, "cache hit")
		assert.Contains(t, out, "$0.00810")
		assert.NotContains(t, out, "gpt-4o")
	})

	t.Run("no entries", func(t *testing.T) {
		_, cleanup := setupTestServices(t)
		defer cleanup()

		out, err := execute(t, "ledger", "--entries")
		require.NoError(t, err)
		assert.Contains(t, out, "No ledger entries")
	})

	t.Run("not configured", func(t *testing.T) {
		SetServices(nil)
		_, err := execute(t, "ledger")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ledger service not configured")
	})
}

// ==================== cache ====================

func TestCacheClearCmd(t *testing.T) {
	t.Run("clears every namespace", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()
		ctx := context.Background()
		require.NoError(t, env.cache.Set(ctx, driven.CacheNamespaceChunk, "k1", []byte("x"), time.Hour))
		require.NoError(t, env.cache.Set(ctx, driven.CacheNamespaceConversion, "k2", []byte("y"), time.Hour))

		out, err := execute(t, "cache", "clear")
		require.NoError(t, err)
		assert.Contains(t, out, "Cleared llm_chunk")
		assert.Contains(t, out, "Cleared conversion")
		assert.Zero(t, env.cache.Len())
	})

	t.Run("clears one namespace", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()
		ctx := context.Background()
		require.NoError(t, env.cache.Set(ctx, driven.CacheNamespaceChunk, "k1", []byte("x"), time.Hour))
		require.NoError(t, env.cache.Set(ctx, driven.CacheNamespaceConversion, "k2", []byte("y"), time.Hour))

		_, err := execute(t, "cache", "clear", driven.CacheNamespaceChunk)
		require.NoError(t, err)

		_, ok := env.cache.Get(ctx, driven.CacheNamespaceConversion, "k2")
		assert.True(t, ok)
		_, ok = env.cache.Get(ctx, driven.CacheNamespaceChunk, "k1")
		assert.False(t, ok)
	})

	t.Run("unknown namespace clears nothing", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()
		ctx := context.Background()
		require.NoError(t, env.cache.Set(ctx, driven.CacheNamespaceChunk, "k1", []byte("x"), time.Hour))

		_, err := execute(t, "cache", "clear", driven.CacheNamespaceChunk, "bogus")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown cache namespace "bogus"`)
		assert.Equal(t, 1, env.cache.Len())
	})
}

// ==================== config ====================

func TestConfigShowCmd(t *testing.T) {
	_, cleanup := setupTestServices(t)
	defer cleanup()

	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[extraction]")
	assert.Contains(t, out, "max_concurrent_documents")
	assert.Contains(t, out, "default")
	assert.Contains(t, out, "(not set)")
}

func TestConfigSetCmd(t *testing.T) {
	t.Run("persists value", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()

		out, err := execute(t, "config", "set", "extraction.max_concurrent_documents", "8")
		require.NoError(t, err)
		assert.Contains(t, out, "Set extraction.max_concurrent_documents = 8")

		_, ok := env.config.Get("extraction.max_concurrent_documents")
		assert.True(t, ok)

		out, err = execute(t, "config", "show")
		require.NoError(t, err)
		assert.Contains(t, out, "file")
	})

	t.Run("secret read from input and masked", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()

		rootCmd.SetIn(strings.NewReader("sk-ant-1234567890abcdef\n"))
		defer rootCmd.SetIn(nil)

		out, err := execute(t, "config", "set", "llm.anthropic_api_key")
		require.NoError(t, err)
		assert.Contains(t, out, "sk-a...cdef")
		assert.NotContains(t, out, "1234567890")

		_, ok := env.config.Get("llm.anthropic_api_key")
		assert.True(t, ok)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, cleanup := setupTestServices(t)
		defer cleanup()

		_, err := execute(t, "config", "set", "extraction.colour", "blue")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("value required for plain keys", func(t *testing.T) {
		_, cleanup := setupTestServices(t)
		defer cleanup()

		_, err := execute(t, "config", "set", "extraction.model")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "a value is required")
	})
}

func TestConfigCheckCmd(t *testing.T) {
	_, cleanup := setupTestServices(t)
	defer cleanup()

	_, err := execute(t, "config", "set", "extraction.backend", "pattern")
	require.NoError(t, err)

	out, err := execute(t, "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid.")
	assert.Contains(t, out, "pattern matching")
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"short key", "abc123", "****"},
		{"exactly 8 chars", "12345678", "****"},
		{"long key", "sk-1234567890abcdef", "sk-1...cdef"},
		{"empty key", "", "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, maskAPIKey(tt.input))
		})
	}
}

// ==================== mcp ====================

func TestMCPCmd(t *testing.T) {
	t.Run("has http flag", func(t *testing.T) {
		flag := mcpCmd.Flags().Lookup("http")
		require.NotNil(t, flag)
		assert.Equal(t, "", flag.DefValue)
	})

	t.Run("not configured", func(t *testing.T) {
		SetServices(nil)
		_, err := execute(t, "mcp")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "review services not configured")
	})
}

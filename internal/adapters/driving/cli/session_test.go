package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

func TestSessionCmd_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range sessionCmd.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["create"])
	assert.True(t, names["load"])
	assert.True(t, names["list"])
	assert.True(t, names["delete"])
}

func TestSessionCmd_NotConfigured(t *testing.T) {
	SetServices(nil)

	for _, args := range [][]string{
		{"session", "create", "/tmp"},
		{"session", "load", "session-x"},
		{"session", "list"},
		{"session", "delete", "session-x"},
	} {
		_, err := execute(t, args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "session service not configured")
	}
}

func TestSessionCreateCmd(t *testing.T) {
	t.Run("creates session", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()

		out, err := execute(t, "session", "create", env.project,
			"--name", "Ranch Soil Carbon", "--methodology", "soil-carbon-v1")
		require.NoError(t, err)
		assert.Contains(t, out, "Created session session-")
		assert.Contains(t, out, "Methodology: soil-carbon-v1")
		assert.Contains(t, out, "registry-review discover")

		summaries, err := env.sessions.List(context.Background())
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, "Ranch Soil Carbon", summaries[0].ProjectName)
	})

	t.Run("requires a name", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()

		_, err := execute(t, "session", "create", env.project, "--methodology", "soil-carbon-v1")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("duplicate path names the existing session", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()
		existing := env.createTestSession(t)

		_, err := execute(t, "session", "create", env.project,
			"--name", "Again", "--methodology", "soil-carbon-v1")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
		assert.Contains(t, err.Error(), "session load "+existing.ID)
	})

	t.Run("requires exactly one arg", func(t *testing.T) {
		_, err := execute(t, "session", "create")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "accepts 1 arg(s)")
	})
}

func TestSessionLoadCmd(t *testing.T) {
	t.Run("shows stages", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()
		session := env.createTestSession(t)

		out, err := execute(t, "session", "load", session.ID)
		require.NoError(t, err)
		assert.Contains(t, out, "Ranch Soil Carbon")
		assert.Contains(t, out, "initialize")
		assert.Contains(t, out, "completed")
		assert.Contains(t, out, "document_discovery")
		assert.Contains(t, out, "pending")
	})

	t.Run("json output", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()
		session := env.createTestSession(t)

		out, err := execute(t, "session", "load", session.ID, "--json")
		require.NoError(t, err)

		var decoded domain.Session
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Equal(t, session.ID, decoded.ID)
	})

	t.Run("missing session", func(t *testing.T) {
		_, cleanup := setupTestServices(t)
		defer cleanup()

		_, err := execute(t, "session", "load", "session-missing")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestSessionListCmd(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, cleanup := setupTestServices(t)
		defer cleanup()

		out, err := execute(t, "session", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "No sessions")
	})

	t.Run("lists sessions", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()
		session := env.createTestSession(t)

		out, err := execute(t, "session", "list")
		require.NoError(t, err)
		assert.Contains(t, out, session.ID)
		assert.Contains(t, out, "soil-carbon-v1")
	})

	t.Run("json output", func(t *testing.T) {
		env, cleanup := setupTestServices(t)
		defer cleanup()
		env.createTestSession(t)

		out, err := execute(t, "session", "list", "--json")
		require.NoError(t, err)

		var rows []domain.SessionSummary
		require.NoError(t, json.Unmarshal([]byte(out), &rows))
		assert.Len(t, rows, 1)
	})
}

func TestSessionDeleteCmd(t *testing.T) {
	env, cleanup := setupTestServices(t)
	defer cleanup()
	session := env.createTestSession(t)

	out, err := execute(t, "session", "delete", session.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted session "+session.ID)

	_, err = env.sessions.Load(context.Background(), session.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

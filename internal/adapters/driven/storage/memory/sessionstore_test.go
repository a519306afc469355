package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

func newSession(id, path string) *domain.Session {
	return domain.NewSession(id, domain.ProjectMetadata{
		Name: "p", MethodologyID: "m", DocumentsPath: path,
	}, time.Now().UTC())
}

func TestSessionStore_CreateLoad(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newSession("s1", "/a")))
	err := s.Create(ctx, newSession("s1", "/a"))
	assert.True(t, errors.Is(err, domain.ErrAlreadyExists))

	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.StageStatus(domain.StageInitialize))

	_, err = s.Load(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
}

func TestSessionStore_UpdateSerialised(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newSession("s1", "/a")))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "s1", func(sess *domain.Session) error {
				sess.Statistics.APICalls++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 20, got.Statistics.APICalls)
}

func TestSessionStore_UpdateErrorWritesNothing(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newSession("s1", "/a")))

	_, err := s.Update(ctx, "s1", func(sess *domain.Session) error {
		sess.Statistics.APICalls = 99
		return errors.New("nope")
	})
	require.Error(t, err)

	got, _ := s.Load(ctx, "s1")
	assert.Zero(t, got.Statistics.APICalls)
}

func TestSessionStore_DeleteAndIDs(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newSession("b", "/b")))
	require.NoError(t, s.Create(ctx, newSession("a", "/a")))

	ids, err := s.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, s.Delete(ctx, "a"))
	assert.True(t, errors.Is(s.Delete(ctx, "a"), domain.ErrSessionNotFound))
}

func TestSessionIndex_ClaimHeldPath(t *testing.T) {
	idx := NewSessionIndex()
	ctx := context.Background()

	require.NoError(t, idx.Claim(ctx, domain.SessionSummary{ID: "a", DocumentsPath: "/docs"}))

	dup, ok := domain.IsDuplicateSession(idx.Claim(ctx, domain.SessionSummary{ID: "b", DocumentsPath: "/docs"}))
	require.True(t, ok)
	assert.Equal(t, "a", dup.ExistingID)

	_, ok = domain.IsDuplicateSession(idx.Put(ctx, domain.SessionSummary{ID: "b", DocumentsPath: "/docs"}))
	assert.True(t, ok)

	err := idx.Claim(ctx, domain.SessionSummary{ID: "a", DocumentsPath: "/elsewhere"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	require.NoError(t, idx.Put(ctx, domain.SessionSummary{ID: "a", DocumentsPath: "/docs", ProjectName: "renamed"}))
}

func TestSessionIndex_FindAndOrder(t *testing.T) {
	idx := NewSessionIndex()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, idx.Put(ctx, domain.SessionSummary{ID: "late", DocumentsPath: "/b", CreatedAt: t0.Add(time.Hour)}))
	require.NoError(t, idx.Put(ctx, domain.SessionSummary{ID: "early", DocumentsPath: "/a", CreatedAt: t0}))

	id, ok, err := idx.FindByPath(ctx, "/b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "late", id)

	var order []string
	for s, err := range idx.All(ctx) {
		require.NoError(t, err)
		order = append(order, s.ID)
	}
	assert.Equal(t, []string{"early", "late"}, order)

	require.NoError(t, idx.Remove(ctx, "late"))
	_, ok, _ = idx.FindByPath(ctx, "/b")
	assert.False(t, ok)
}

package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driven/storage/memory"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/ratelimit"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/retry"
)

// ==================== Mocks ====================

// mockBackend is a scripted extraction backend.
type mockBackend struct {
	mu       sync.Mutex
	model    string
	requests []driven.CompletionRequest
	respond  func(req driven.CompletionRequest, call int) (*driven.Completion, error)
}

func (m *mockBackend) Complete(_ context.Context, req driven.CompletionRequest) (*driven.Completion, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	call := len(m.requests)
	m.mu.Unlock()
	return m.respond(req, call)
}

func (m *mockBackend) ModelName() string            { return m.model }
func (m *mockBackend) Ping(_ context.Context) error { return nil }
func (m *mockBackend) Close() error                 { return nil }

func (m *mockBackend) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func replyWith(text string) func(driven.CompletionRequest, int) (*driven.Completion, error) {
	return func(driven.CompletionRequest, int) (*driven.Completion, error) {
		return &driven.Completion{Text: text, Usage: domain.TokenUsage{InputTokens: 1000, OutputTokens: 100}}, nil
	}
}

// mockConverter serves converted documents by path.
type mockConverter struct {
	mu    sync.Mutex
	docs  map[string]*domain.ConvertedDocument
	calls int
}

func (m *mockConverter) Convert(_ context.Context, path string) (*domain.ConvertedDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	doc, ok := m.docs[path]
	if !ok {
		return nil, &domain.ConversionError{Path: path, Err: domain.ErrUnsupportedType}
	}
	return doc, nil
}

func (m *mockConverter) Supports(path string) bool {
	for _, ext := range []string{".md", ".txt", ".pdf"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

type mockPromptStore struct {
	prompts map[string]string
}

func (m *mockPromptStore) Load(name string) (string, error) {
	if p, ok := m.prompts[name]; ok {
		return p, nil
	}
	return "", domain.ErrNotFound
}

func (m *mockPromptStore) Reload() {}

// ==================== Helpers ====================

const testModel = "claude-sonnet-4-20250514"

const planText = "# Project Plan\n\nProject ID: C06-4997\n\nProject start date: 2022-03-15. The land is owned by Smith Ranch, LLC."

const planReply = `{"fields": [
  {"field_type": "project_id", "value": "C06-4997", "confidence": 0.9, "excerpt": "Project ID: C06-4997"},
  {"field_type": "project_start_date", "value": "2021-01-01", "confidence": 0.8, "excerpt": "started 2021"},
  {"field_type": "soil_colour", "value": "brown", "confidence": 0.9}
]}`

func testSettings() domain.Settings {
	return domain.DefaultSettings("/tmp/registry-review-test")
}

func instantRetry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.Sleep = func(context.Context, time.Duration) error { return nil }
	return cfg
}

func testEngineOptions() []EngineOption {
	return []EngineOption{
		WithRetryConfig(instantRetry()),
		WithLimiter(ratelimit.New(0, ratelimit.WithCooldown(0))),
		WithEngineClock(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }),
	}
}

func planDocument() domain.DocumentRecord {
	return domain.DocumentRecord{ID: "doc-1", Filename: "plan.md", Path: "/docs/plan.md", Fingerprint: "abc123"}
}

func planConverter() *mockConverter {
	return &mockConverter{docs: map[string]*domain.ConvertedDocument{
		"/docs/plan.md": {Text: planText, PageCount: 1, Format: "markdown"},
	}}
}

var requestedTypes = []domain.FieldType{domain.FieldProjectID, domain.FieldProjectStartDate}

// ==================== Model Path Tests ====================

func TestExtractionEngine_VerifiesAndDropsRejected(t *testing.T) {
	backend := &mockBackend{model: testModel, respond: replyWith(planReply)}
	ledger := memory.NewCostLedger()
	engine := NewExtractionEngine(testSettings(), backend, planConverter(), memory.NewCache(), NewCostRecorder(ledger), testEngineOptions()...)

	result, err := engine.ExtractDocument(context.Background(), "s1", planDocument(), requestedTypes)
	require.NoError(t, err)

	assert.Equal(t, domain.BackendLLM, result.Backend)
	require.Len(t, result.Fields, 1)
	f := result.Fields[0]
	assert.Equal(t, domain.FieldProjectID, f.FieldType)
	assert.Equal(t, "C06-4997", f.Value)
	assert.Equal(t, domain.VerificationVerified, f.Verification)
	assert.Equal(t, domain.BackendLLM, f.Backend)
	assert.Equal(t, "doc-1", f.DocumentID)
	assert.Equal(t, "Project Plan", f.Citation.Section)
	assert.InDelta(t, 0.9, f.Confidence, 1e-9)

	assert.Equal(t, 1, result.Rejected)
	assert.Equal(t, 1, result.ModelCalls)
	assert.Equal(t, 1, result.ChunksProcessed)
	assert.Equal(t, 1, result.Document.PageCount)
	assert.Equal(t, 1, result.Document.ChunkCount)

	entries, err := ledger.Entries(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].CacheHit)
	assert.Greater(t, entries[0].CostUSD, 0.0)
}

func TestExtractionEngine_RequestCarriesPromptsAndImages(t *testing.T) {
	backend := &mockBackend{model: testModel, respond: replyWith(`{"fields": []}`)}
	conv := &mockConverter{docs: map[string]*domain.ConvertedDocument{
		"/docs/plan.md": {
			Text:   planText,
			Images: []domain.Image{{MediaType: "image/png", Data: []byte{1, 2, 3}, Page: 1}},
		},
	}}
	engine := NewExtractionEngine(testSettings(), backend, conv, nil, nil, testEngineOptions()...)

	_, err := engine.ExtractDocument(context.Background(), "s1", planDocument(), requestedTypes)
	require.NoError(t, err)

	require.Len(t, backend.requests, 1)
	req := backend.requests[0]
	assert.Contains(t, req.SystemPrompt, "registry reviewer")
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "- project_id (identifier)")
	assert.Contains(t, req.Messages[0].Content, "Document: plan.md")
	assert.Contains(t, req.Messages[0].Content, "Project ID: C06-4997")
	assert.Len(t, req.Messages[0].Images, 1)
	assert.Equal(t, 4096, req.MaxTokens)
	assert.Equal(t, 60*time.Second, req.Timeout)
}

func TestExtractionEngine_CustomPrompts(t *testing.T) {
	backend := &mockBackend{model: testModel, respond: replyWith(`{"fields": []}`)}
	engine := NewExtractionEngine(testSettings(), backend, planConverter(), nil, nil, testEngineOptions()...)
	engine.SetPromptStore(&mockPromptStore{prompts: map[string]string{
		driven.PromptExtractionSystem: "custom system",
		driven.PromptExtractionUser:   "only %s here",
	}})

	_, err := engine.ExtractDocument(context.Background(), "s1", planDocument(), requestedTypes)
	require.NoError(t, err)

	req := backend.requests[0]
	assert.Equal(t, "custom system", req.SystemPrompt)
	// a template with the wrong placeholders falls back to the built-in one
	assert.Contains(t, req.Messages[0].Content, "Document: plan.md")
}

func TestExtractionEngine_SecondRunServedFromCache(t *testing.T) {
	backend := &mockBackend{model: testModel, respond: replyWith(planReply)}
	ledger := memory.NewCostLedger()
	cache := memory.NewCache()
	conv := planConverter()
	engine := NewExtractionEngine(testSettings(), backend, conv, cache, NewCostRecorder(ledger), testEngineOptions()...)
	ctx := context.Background()

	first, err := engine.ExtractDocument(ctx, "s1", planDocument(), requestedTypes)
	require.NoError(t, err)

	second, err := engine.ExtractDocument(ctx, "s1", planDocument(), requestedTypes)
	require.NoError(t, err)

	assert.True(t, second.FromCache)
	assert.Equal(t, 1, second.CacheHits)
	assert.Zero(t, second.ModelCalls)
	assert.Equal(t, first.Fields, second.Fields)
	assert.Equal(t, 1, backend.calls())
	assert.Equal(t, 1, conv.calls)

	entries, err := ledger.Entries(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[1].CacheHit)
	assert.Equal(t, OperationExtractDocument, entries[1].Operation)
}

func TestExtractionEngine_DifferentFieldTypesMissCache(t *testing.T) {
	backend := &mockBackend{model: testModel, respond: replyWith(planReply)}
	engine := NewExtractionEngine(testSettings(), backend, planConverter(), memory.NewCache(), nil, testEngineOptions()...)
	ctx := context.Background()

	_, err := engine.ExtractDocument(ctx, "s1", planDocument(), requestedTypes)
	require.NoError(t, err)
	_, err = engine.ExtractDocument(ctx, "s1", planDocument(), []domain.FieldType{domain.FieldLandOwner})
	require.NoError(t, err)

	assert.Equal(t, 2, backend.calls())
}

func TestExtractionEngine_EditedPromptMissesCache(t *testing.T) {
	tests := []struct {
		name string
		edit func(map[string]string)
	}{
		{"system prompt", func(p map[string]string) {
			p[driven.PromptExtractionSystem] = "system v2 (edited)"
		}},
		{"user template", func(p map[string]string) {
			p[driven.PromptExtractionUser] = "Fields:\n%s\nFile: %s\nSection: %s\n---\n%s"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockBackend{model: testModel, respond: replyWith(planReply)}
			engine := NewExtractionEngine(testSettings(), backend, planConverter(), memory.NewCache(), nil, testEngineOptions()...)
			store := &mockPromptStore{prompts: map[string]string{driven.PromptExtractionSystem: "system v1"}}
			engine.SetPromptStore(store)
			ctx := context.Background()

			_, err := engine.ExtractDocument(ctx, "s1", planDocument(), requestedTypes)
			require.NoError(t, err)
			again, err := engine.ExtractDocument(ctx, "s1", planDocument(), requestedTypes)
			require.NoError(t, err)
			require.True(t, again.FromCache)
			require.Equal(t, 1, backend.calls())

			tt.edit(store.prompts)

			edited, err := engine.ExtractDocument(ctx, "s1", planDocument(), requestedTypes)
			require.NoError(t, err)
			assert.False(t, edited.FromCache)
			assert.Equal(t, 2, backend.calls())
		})
	}
}

func TestExtractionEngine_CorruptCacheEntryIsMiss(t *testing.T) {
	backend := &mockBackend{model: testModel, respond: replyWith(planReply)}
	cache := memory.NewCache()
	engine := NewExtractionEngine(testSettings(), backend, planConverter(), cache, nil, testEngineOptions()...)
	ctx := context.Background()

	doc := planDocument()
	key := engine.documentKey(doc.Fingerprint, normaliseFieldTypes(requestedTypes), testModel)
	require.NoError(t, cache.Set(ctx, driven.CacheNamespaceDocument, key, []byte("{not json"), time.Hour))

	result, err := engine.ExtractDocument(ctx, "s1", doc, requestedTypes)
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Len(t, result.Fields, 1)
	assert.Equal(t, 1, backend.calls())
}

func TestExtractionEngine_RetriesRateLimit(t *testing.T) {
	var observed []time.Duration
	cfg := instantRetry()
	cfg.Rand = func() float64 { return 0 }
	cfg.Observer = func(_ int, delay time.Duration, _ error) { observed = append(observed, delay) }

	backend := &mockBackend{model: testModel, respond: func(_ driven.CompletionRequest, call int) (*driven.Completion, error) {
		if call <= 2 {
			return nil, domain.NewBackendError(domain.BackendRateLimited, 429, "slow down")
		}
		return &driven.Completion{Text: planReply}, nil
	}}
	opts := append(testEngineOptions(), WithRetryConfig(cfg))
	engine := NewExtractionEngine(testSettings(), backend, planConverter(), nil, nil, opts...)

	result, err := engine.ExtractDocument(context.Background(), "s1", planDocument(), requestedTypes)
	require.NoError(t, err)

	assert.Equal(t, domain.BackendLLM, result.Backend)
	assert.Len(t, result.Fields, 1)
	assert.Equal(t, 3, result.ModelCalls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, observed)
}

func TestExtractionEngine_PermanentFailureFallsBackToPatterns(t *testing.T) {
	backend := &mockBackend{model: testModel, respond: func(driven.CompletionRequest, int) (*driven.Completion, error) {
		return nil, domain.NewBackendError(domain.BackendAuthFailure, 401, "bad key")
	}}
	cache := memory.NewCache()
	engine := NewExtractionEngine(testSettings(), backend, planConverter(), cache, nil, testEngineOptions()...)

	result, err := engine.ExtractDocument(context.Background(), "s1", planDocument(), requestedTypes)
	require.NoError(t, err)

	assert.Equal(t, 1, backend.calls(), "auth failures are not retried")
	assert.Equal(t, domain.BackendPattern, result.Backend)
	assert.Equal(t, 1, result.ChunksFailed)
	require.Len(t, result.Fields, 2)
	for _, f := range result.Fields {
		assert.Equal(t, domain.BackendPattern, f.Backend)
	}
	assert.Zero(t, cache.Len(), "failed extractions are not cached")
}

func TestExtractionEngine_UnparsableChunkDoesNotAbortDocument(t *testing.T) {
	settings := testSettings()
	settings.Extraction.ChunkSize = 200
	settings.Extraction.ChunkOverlap = 0

	first := "Project ID: C06-4997 " + strings.Repeat("is registered with the registry ", 3)
	second := "Paragraph B " + strings.Repeat("describes the soil sampling design ", 3)
	conv := &mockConverter{docs: map[string]*domain.ConvertedDocument{
		"/docs/plan.md": {Text: first + "\n\n" + second, PageCount: 1},
	}}

	backend := &mockBackend{model: testModel, respond: func(req driven.CompletionRequest, _ int) (*driven.Completion, error) {
		if strings.Contains(req.Messages[0].Content, "Paragraph B") {
			return &driven.Completion{Text: "I could not find anything, sorry."}, nil
		}
		return &driven.Completion{Text: "```json\n" + planReply + "\n```"}, nil
	}}
	cache := memory.NewCache()
	engine := NewExtractionEngine(settings, backend, conv, cache, nil, testEngineOptions()...)
	ctx := context.Background()

	result, err := engine.ExtractDocument(ctx, "s1", planDocument(), requestedTypes)
	require.NoError(t, err)

	assert.Equal(t, domain.BackendLLM, result.Backend)
	assert.Equal(t, 2, result.Document.ChunkCount)
	assert.Equal(t, 1, result.ChunksFailed)
	assert.Equal(t, 1, result.ChunksProcessed)
	require.Len(t, result.Fields, 1)
	assert.Equal(t, "C06-4997", result.Fields[0].Value)

	// the good chunk is cached, the failed one is retried on the next run
	again, err := engine.ExtractDocument(ctx, "s1", planDocument(), requestedTypes)
	require.NoError(t, err)
	assert.False(t, again.FromCache)
	assert.Equal(t, 1, again.CacheHits)
	assert.Equal(t, 3, backend.calls())
}

func TestExtractionEngine_CallTimeoutIsRetried(t *testing.T) {
	settings := testSettings()
	settings.Extraction.CallTimeout = 20 * time.Millisecond

	backend := &mockBackend{model: testModel}
	backend.respond = func(driven.CompletionRequest, int) (*driven.Completion, error) {
		return nil, context.DeadlineExceeded
	}
	engine := NewExtractionEngine(settings, backend, planConverter(), nil, nil, testEngineOptions()...)

	result, err := engine.ExtractDocument(context.Background(), "s1", planDocument(), requestedTypes)
	require.NoError(t, err)
	assert.Equal(t, 3, backend.calls())
	assert.Equal(t, domain.BackendPattern, result.Backend)
}

func TestExtractionEngine_Cancelled(t *testing.T) {
	backend := &mockBackend{model: testModel, respond: replyWith(planReply)}
	engine := NewExtractionEngine(testSettings(), backend, planConverter(), nil, nil, testEngineOptions()...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.ExtractDocument(ctx, "s1", planDocument(), requestedTypes)
	assert.ErrorIs(t, err, context.Canceled)
}

// ==================== Pattern Path Tests ====================

func TestExtractionEngine_PatternOnlyWithoutBackend(t *testing.T) {
	engine := NewExtractionEngine(testSettings(), nil, planConverter(), memory.NewCache(), nil, testEngineOptions()...)

	assert.Equal(t, domain.BackendPattern, engine.Backend())
	assert.Empty(t, engine.ModelName())

	result, err := engine.ExtractDocument(context.Background(), "s1", planDocument(), requestedTypes)
	require.NoError(t, err)

	assert.Equal(t, domain.BackendPattern, result.Backend)
	values := map[domain.FieldType]string{}
	for _, f := range result.Fields {
		values[f.FieldType] = f.Value
		assert.Equal(t, domain.VerificationVerified, f.Verification)
	}
	assert.Equal(t, "C06-4997", values[domain.FieldProjectID])
	assert.Equal(t, "2022-03-15", values[domain.FieldProjectStartDate])
}

func TestExtractionEngine_DisabledModelUsesPatterns(t *testing.T) {
	settings := testSettings()
	settings.Extraction.Enabled = false
	backend := &mockBackend{model: testModel, respond: replyWith(planReply)}
	engine := NewExtractionEngine(settings, backend, planConverter(), nil, nil, testEngineOptions()...)

	result, err := engine.ExtractDocument(context.Background(), "s1", planDocument(), requestedTypes)
	require.NoError(t, err)
	assert.Equal(t, domain.BackendPattern, result.Backend)
	assert.Zero(t, backend.calls())
}

func TestExtractionEngine_ConversionFailureYieldsNothing(t *testing.T) {
	backend := &mockBackend{model: testModel, respond: replyWith(planReply)}
	engine := NewExtractionEngine(testSettings(), backend, &mockConverter{}, nil, nil, testEngineOptions()...)

	result, err := engine.ExtractDocument(context.Background(), "s1", planDocument(), requestedTypes)
	require.NoError(t, err)
	assert.Empty(t, result.Fields)
	assert.Zero(t, backend.calls())
}

func TestExtractionEngine_NoFieldTypes(t *testing.T) {
	backend := &mockBackend{model: testModel, respond: replyWith(planReply)}
	engine := NewExtractionEngine(testSettings(), backend, planConverter(), nil, nil, testEngineOptions()...)

	result, err := engine.ExtractDocument(context.Background(), "s1", planDocument(), []domain.FieldType{"unknown"})
	require.NoError(t, err)
	assert.Empty(t, result.Fields)
	assert.Zero(t, backend.calls())
}

// ==================== Parsing Tests ====================

func TestParseCandidates(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []string
		wantErr bool
	}{
		{
			name: "plain object",
			text: `{"fields": [{"field_type": "project_id", "value": "C06-4997"}]}`,
			want: []string{"C06-4997"},
		},
		{
			name: "code fence",
			text: "```json\n{\"fields\": [{\"field_type\": \"land_area_hectares\", \"value\": 1250}]}\n```",
			want: []string{"1250"},
		},
		{
			name: "prose around object",
			text: "Here you go: {\"fields\": [{\"field_type\": \"project_id\", \"value\": \"C06-1\", \"page\": \"3\"}]} done",
			want: []string{"C06-1"},
		},
		{
			name: "unknown and empty dropped",
			text: `{"fields": [{"field_type": "soil_colour", "value": "x"}, {"field_type": "project_id", "value": " "}]}`,
			want: []string{},
		},
		{name: "no object", text: "nothing found", wantErr: true},
		{name: "broken json", text: `{"fields": [`, wantErr: true},
	}

	requested := []domain.FieldType{domain.FieldProjectID, domain.FieldLandAreaHectares}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCandidates(tt.text, requested)
			if tt.wantErr {
				assert.True(t, errors.Is(err, domain.ErrUnparsableResponse))
				return
			}
			require.NoError(t, err)
			values := []string{}
			for _, c := range got {
				values = append(values, c.Value.String())
			}
			assert.Equal(t, tt.want, values)
		})
	}
}

func TestNormaliseFieldTypes(t *testing.T) {
	got := normaliseFieldTypes([]domain.FieldType{
		domain.FieldProjectID, "bogus", domain.FieldLandOwner, domain.FieldProjectID,
	})
	assert.Equal(t, []domain.FieldType{domain.FieldLandOwner, domain.FieldProjectID}, got)
}

func TestClampUnit(t *testing.T) {
	assert.Equal(t, 0.0, clampUnit(-1))
	assert.Equal(t, 1.0, clampUnit(3))
	assert.Equal(t, 0.4, clampUnit(0.4))
}

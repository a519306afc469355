package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/chunker"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/logger"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/prompts"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/ratelimit"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/retry"
)

const (
	defaultCallTimeout = 60 * time.Second
	defaultCacheTTL    = 30 * 24 * time.Hour
)

// Ensure ExtractionEngine implements the interface.
var _ driven.PromptStoreAware = (*ExtractionEngine)(nil)

// ExtractionEngine extracts evidence fields from one document at a time.
//
// A document is converted, chunked, and each chunk is sent to the model
// through the retry policy. Every candidate is checked by the citation
// verifier against its chunk's text; rejected candidates are dropped.
// Surviving candidates are cached per chunk, merged across chunks and cached
// again under a whole-document key. When the model path is disabled or no
// backend is configured, the deterministic pattern extractor runs instead.
type ExtractionEngine struct {
	backend   driven.ExtractionBackend
	converter driven.DocumentConverter
	cache     driven.Cache
	costs     *CostRecorder
	verifier  *CitationVerifier
	patterns  *PatternExtractor
	chunker   *chunker.Chunker
	limiter   *ratelimit.Limiter
	calls     *semaphore.Weighted
	retry     retry.Config
	cfg       domain.ExtractionSettings
	cacheTTL  time.Duration
	now       func() time.Time

	promptMu sync.RWMutex
	prompts  driven.PromptStore
}

// EngineOption configures an ExtractionEngine.
type EngineOption func(*ExtractionEngine)

// WithRetryConfig overrides the retry policy built from the settings.
func WithRetryConfig(cfg retry.Config) EngineOption {
	return func(e *ExtractionEngine) {
		e.retry = cfg
	}
}

// WithLimiter overrides the request limiter built from the settings.
func WithLimiter(l *ratelimit.Limiter) EngineOption {
	return func(e *ExtractionEngine) {
		if l != nil {
			e.limiter = l
		}
	}
}

// WithEngineClock overrides the clock used for extraction timestamps.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *ExtractionEngine) {
		if now != nil {
			e.now = now
			e.patterns.now = now
		}
	}
}

// NewExtractionEngine creates an engine. backend may be nil, in which case
// only pattern matching runs. cache and costs may also be nil.
func NewExtractionEngine(
	settings domain.Settings,
	backend driven.ExtractionBackend,
	converter driven.DocumentConverter,
	cache driven.Cache,
	costs *CostRecorder,
	opts ...EngineOption,
) *ExtractionEngine {
	cfg := settings.Extraction
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.MaxConcurrentCalls < 1 {
		cfg.MaxConcurrentCalls = 1
	}
	ttl := settings.Cache.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	e := &ExtractionEngine{
		backend:   backend,
		converter: converter,
		cache:     cache,
		costs:     costs,
		verifier:  NewCitationVerifier(settings.Verification),
		patterns:  NewPatternExtractor(),
		chunker:   chunker.FromSettings(cfg),
		limiter:   ratelimit.New(cfg.RequestsPerMinute),
		calls:     semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls)),
		retry:     retry.FromSettings(settings.Retry),
		cfg:       cfg,
		cacheTTL:  ttl,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	initEngineMetrics()
	return e
}

// SetPromptStore sets the store for customised prompt templates.
func (e *ExtractionEngine) SetPromptStore(store driven.PromptStore) {
	e.promptMu.Lock()
	defer e.promptMu.Unlock()
	e.prompts = store
}

// Backend reports which backend produces results.
func (e *ExtractionEngine) Backend() domain.ExtractionBackend {
	if e.modelEnabled() {
		return domain.BackendLLM
	}
	return domain.BackendPattern
}

// ModelName returns the configured model, empty on the pattern path.
func (e *ExtractionEngine) ModelName() string {
	if !e.modelEnabled() {
		return ""
	}
	return e.backend.ModelName()
}

func (e *ExtractionEngine) modelEnabled() bool {
	return e.backend != nil && e.cfg.Enabled && e.cfg.Provider != domain.AIProviderPattern
}

// chunkOutcome is what one chunk contributed.
type chunkOutcome struct {
	fields   []domain.ExtractedField
	cacheHit bool
	calls    int
	rejected int
	failed   bool
}

// ExtractDocument extracts the requested field types from one document.
//
// Failures local to the document never surface as errors: a conversion
// failure yields no fields, a chunk that cannot be extracted contributes
// nothing. Only cancellation of ctx is returned.
func (e *ExtractionEngine) ExtractDocument(
	ctx context.Context,
	sessionID string,
	doc domain.DocumentRecord,
	fieldTypes []domain.FieldType,
) (*domain.DocumentExtraction, error) {
	result := &domain.DocumentExtraction{
		Document: doc,
		Fields:   []domain.ExtractedField{},
		Backend:  e.Backend(),
	}
	fieldTypes = normaliseFieldTypes(fieldTypes)
	if len(fieldTypes) == 0 {
		return result, nil
	}

	if !e.modelEnabled() {
		chunks, ok := e.convert(ctx, result)
		if !ok {
			return result, ctx.Err()
		}
		e.extractWithPatterns(result, chunks, fieldTypes)
		return result, nil
	}

	model := e.backend.ModelName()
	docKey := e.documentKey(doc.Fingerprint, fieldTypes, model)
	if fields, ok := e.cachedFields(ctx, driven.CacheNamespaceDocument, docKey); ok {
		logger.Debug("document cache hit for %s", doc.Filename)
		e.costs.RecordCacheHit(ctx, sessionID, model, OperationExtractDocument)
		result.Fields = fields
		result.FromCache = true
		result.CacheHits = 1
		return result, nil
	}

	chunks, ok := e.convert(ctx, result)
	if !ok {
		return result, ctx.Err()
	}

	outcomes := make([]chunkOutcome, len(chunks))
	var g errgroup.Group
	for i := range chunks {
		g.Go(func() error {
			outcomes[i] = e.extractChunk(ctx, sessionID, model, result.Document, chunks[i], fieldTypes)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []domain.ExtractedField
	for _, out := range outcomes {
		all = append(all, out.fields...)
		result.ModelCalls += out.calls
		result.Rejected += out.rejected
		if out.cacheHit {
			result.CacheHits++
		}
		if out.failed {
			result.ChunksFailed++
		} else {
			result.ChunksProcessed++
		}
	}

	if len(chunks) > 0 && result.ChunksFailed == len(chunks) {
		logger.Warn("model extraction failed for every chunk of %s, using pattern matching", doc.Filename)
		e.extractWithPatterns(result, chunks, fieldTypes)
		return result, nil
	}

	result.Fields = domain.DedupFields(all)
	if result.ChunksFailed == 0 {
		e.storeFields(ctx, driven.CacheNamespaceDocument, docKey, result.Fields)
	}
	return result, nil
}

// convert produces the document's chunks and records its page and chunk
// counts on the result. It reports false when the document has no content.
func (e *ExtractionEngine) convert(ctx context.Context, result *domain.DocumentExtraction) ([]domain.Chunk, bool) {
	if e.converter == nil {
		logger.Warn("no document converter configured")
		return nil, false
	}
	converted, err := e.converter.Convert(ctx, result.Document.Path)
	if err != nil {
		logger.Warn("skipping %s: %v", result.Document.Filename, err)
		return nil, false
	}
	chunks := e.chunker.Chunk(converted)
	result.Document.PageCount = converted.PageCount
	result.Document.ChunkCount = len(chunks)
	return chunks, true
}

// extractWithPatterns replaces the result's fields with verified pattern matches.
func (e *ExtractionEngine) extractWithPatterns(result *domain.DocumentExtraction, chunks []domain.Chunk, fieldTypes []domain.FieldType) {
	var all []domain.ExtractedField
	for _, chunk := range chunks {
		for _, f := range e.patterns.Extract(result.Document, chunk, fieldTypes) {
			kept, ok := e.verify(f, chunk.Content)
			if !ok {
				result.Rejected++
				continue
			}
			all = append(all, kept)
		}
	}
	result.Backend = domain.BackendPattern
	result.ChunksProcessed = len(chunks)
	result.Fields = domain.DedupFields(all)
}

func (e *ExtractionEngine) extractChunk(
	ctx context.Context,
	sessionID, model string,
	doc domain.DocumentRecord,
	chunk domain.Chunk,
	fieldTypes []domain.FieldType,
) chunkOutcome {
	key := e.chunkKey(doc.Fingerprint, fieldTypes, chunk.Index, model)
	if fields, ok := e.cachedFields(ctx, driven.CacheNamespaceChunk, key); ok {
		e.costs.RecordCacheHit(ctx, sessionID, model, OperationExtractChunk)
		return chunkOutcome{fields: fields, cacheHit: true}
	}

	req := e.buildRequest(doc, chunk, fieldTypes)

	cfg := e.retry
	observe := cfg.Observer
	cfg.Observer = func(attempt int, delay time.Duration, err error) {
		logger.Debug("chunk %d of %s: attempt %d failed, retrying in %s: %v", chunk.Index, doc.Filename, attempt, delay, err)
		if observe != nil {
			observe(attempt, delay, err)
		}
	}

	completion, res, err := retry.Do(ctx, cfg, func(ctx context.Context, _ int) (*driven.Completion, error) {
		return e.call(ctx, sessionID, req)
	})
	out := chunkOutcome{calls: res.Attempts}
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("chunk %d of %s failed after %d attempt(s): %v", chunk.Index, doc.Filename, res.Attempts, err)
		}
		out.failed = true
		return out
	}

	candidates, err := parseCandidates(completion.Text, fieldTypes)
	if err != nil {
		logger.Warn("chunk %d of %s: %v", chunk.Index, doc.Filename, err)
		out.failed = true
		return out
	}

	kept := make([]domain.ExtractedField, 0, len(candidates))
	for _, c := range candidates {
		f := domain.ExtractedField{
			FieldType:      c.FieldType,
			Value:          c.Value.String(),
			Confidence:     clampUnit(c.Confidence),
			SourceDocument: doc.Filename,
			DocumentID:     doc.ID,
			Citation: domain.Citation{
				Page:       chunk.Page,
				Section:    chunk.Section,
				ChunkIndex: chunk.Index,
				Excerpt:    strings.TrimSpace(c.Excerpt),
			},
			Backend:     domain.BackendLLM,
			ExtractedAt: e.now().UTC(),
		}
		if page, err := strconv.Atoi(c.Page.String()); err == nil && page > 0 {
			f.Citation.Page = page
		}
		if section := strings.TrimSpace(c.Section); section != "" {
			f.Citation.Section = section
		}

		verified, ok := e.verify(f, chunk.Content)
		if !ok {
			out.rejected++
			continue
		}
		kept = append(kept, verified)
	}

	e.storeFields(ctx, driven.CacheNamespaceChunk, key, kept)
	out.fields = kept
	return out
}

// call makes one bounded, rate-limited model call and records its cost.
func (e *ExtractionEngine) call(ctx context.Context, sessionID string, req driven.CompletionRequest) (*driven.Completion, error) {
	if err := e.calls.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.calls.Release(1)

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	completion, err := e.backend.Complete(callCtx, req)
	elapsed := time.Since(start)
	e.limiter.Observe(err)
	recordModelCall(ctx, e.backend.ModelName(), elapsed, err)
	if err != nil {
		return nil, err
	}

	model := completion.Model
	if model == "" {
		model = e.backend.ModelName()
	}
	e.costs.RecordCall(ctx, sessionID, model, OperationExtractChunk, completion.Usage, elapsed)
	return completion, nil
}

// verify applies the citation verifier. It reports false for rejected claims.
func (e *ExtractionEngine) verify(f domain.ExtractedField, source string) (domain.ExtractedField, bool) {
	spec, _ := domain.LookupFieldSpec(f.FieldType)
	verdict := e.verifier.Verify(Claim{
		Value:   f.Value,
		Excerpt: f.Citation.Excerpt,
		Kind:    spec.Kind,
		Rule:    spec.Rule,
	}, source, f.Confidence)

	f.Verification = verdict.Outcome
	f.MatchScore = verdict.Score
	f.Confidence = verdict.Confidence
	if verdict.Outcome == domain.VerificationRejected {
		logger.Debug("%v: %s %q in %s (score %.2f)", domain.ErrVerificationRejected, f.FieldType, f.Value, f.SourceDocument, verdict.Score)
		return f, false
	}
	return f, true
}

func (e *ExtractionEngine) buildRequest(doc domain.DocumentRecord, chunk domain.Chunk, fieldTypes []domain.FieldType) driven.CompletionRequest {
	systemPrompt, userTemplate := e.templates()

	section := chunk.Section
	if section == "" {
		section = "(none)"
	}

	return driven.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []driven.ChatMessage{{
			Role:    "user",
			Content: fmt.Sprintf(userTemplate, describeFields(fieldTypes), doc.Filename, section, chunk.Content),
			Images:  chunk.Images,
		}},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Timeout:     e.cfg.CallTimeout,
	}
}

// templates returns the system prompt and user template a request is built
// from.
func (e *ExtractionEngine) templates() (system, user string) {
	user = e.loadPrompt(driven.PromptExtractionUser)
	if strings.Count(user, "%s") != 4 {
		logger.Warn("prompt %s must have four %%s placeholders, using the built-in template", driven.PromptExtractionUser)
		user, _ = prompts.Default(driven.PromptExtractionUser)
	}
	return e.loadPrompt(driven.PromptExtractionSystem), user
}

// loadPrompt returns the customised template for name, or the built-in one.
func (e *ExtractionEngine) loadPrompt(name string) string {
	e.promptMu.RLock()
	store := e.prompts
	e.promptMu.RUnlock()

	if store != nil {
		content, err := store.Load(name)
		if err == nil && strings.TrimSpace(content) != "" {
			return content
		}
		if err != nil {
			logger.Debug("loading prompt %s: %v", name, err)
		}
	}
	content, _ := prompts.Default(name)
	return content
}

func describeFields(fieldTypes []domain.FieldType) string {
	var b strings.Builder
	for _, ft := range fieldTypes {
		spec, ok := domain.LookupFieldSpec(ft)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s): %s. %s\n", ft, spec.Kind, spec.Description, spec.Guidance)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ==================== Cache ====================

func (e *ExtractionEngine) cachedFields(ctx context.Context, namespace, key string) ([]domain.ExtractedField, bool) {
	if e.cache == nil {
		return nil, false
	}
	payload, ok := e.cache.Get(ctx, namespace, key)
	if !ok {
		return nil, false
	}
	fields := []domain.ExtractedField{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		logger.Warn("%v: %s/%s", domain.ErrCacheCorrupt, namespace, key)
		_ = e.cache.Delete(ctx, namespace, key)
		return nil, false
	}
	return fields, true
}

func (e *ExtractionEngine) storeFields(ctx context.Context, namespace, key string, fields []domain.ExtractedField) {
	if e.cache == nil {
		return
	}
	if fields == nil {
		fields = []domain.ExtractedField{}
	}
	payload, err := json.Marshal(fields)
	if err == nil {
		err = e.cache.Set(ctx, namespace, key, payload, e.cacheTTL)
	}
	if err != nil {
		logger.Warn("caching %s/%s: %v", namespace, key, err)
	}
}

// variant identifies everything besides the document bytes that shapes a
// result: model, prompt templates, requested field types and chunking.
func (e *ExtractionEngine) variant(fieldTypes []domain.FieldType, model string) string {
	system, user := e.templates()
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%d:%s|%d:%s|", model, e.cfg.ChunkSize, e.cfg.ChunkOverlap,
		len(system), system, len(user), user)
	for _, ft := range fieldTypes {
		h.Write([]byte(ft))
		h.Write([]byte{','})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (e *ExtractionEngine) documentKey(fingerprint string, fieldTypes []domain.FieldType, model string) string {
	return fingerprint + "/" + e.variant(fieldTypes, model)
}

func (e *ExtractionEngine) chunkKey(fingerprint string, fieldTypes []domain.FieldType, index int, model string) string {
	return fmt.Sprintf("%s/%d/%s", fingerprint, index, e.variant(fieldTypes, model))
}

// normaliseFieldTypes drops unknown and repeated types and sorts the rest.
func normaliseFieldTypes(fieldTypes []domain.FieldType) []domain.FieldType {
	out := make([]domain.FieldType, 0, len(fieldTypes))
	for _, ft := range fieldTypes {
		if ft.IsValid() && !slices.Contains(out, ft) {
			out = append(out, ft)
		}
	}
	slices.Sort(out)
	return out
}

// ==================== Response parsing ====================

// looseString accepts a JSON string, number or boolean.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*s = ""
		return nil
	}
	*s = looseString(raw)
	return nil
}

func (s looseString) String() string {
	return strings.TrimSpace(string(s))
}

type candidate struct {
	FieldType  domain.FieldType `json:"field_type"`
	Value      looseString      `json:"value"`
	Confidence float64          `json:"confidence"`
	Excerpt    string           `json:"excerpt"`
	Section    string           `json:"section"`
	Page       looseString      `json:"page"`
}

// parseCandidates decodes the model's JSON reply. Code fences and prose
// around the object are ignored. Fields of types that were not requested,
// and fields without a value, are dropped.
func parseCandidates(text string, requested []domain.FieldType) ([]candidate, error) {
	body := stripCodeFence(text)
	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", domain.ErrUnparsableResponse)
	}

	var resp struct {
		Fields []candidate `json:"fields"`
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnparsableResponse, err)
	}

	out := make([]candidate, 0, len(resp.Fields))
	for _, c := range resp.Fields {
		if !slices.Contains(requested, c.FieldType) || c.Value.String() == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// ==================== Metrics ====================

var (
	engineMeter = otel.Meter("registry-review.extraction")

	modelCallDuration metric.Float64Histogram
	engineMetricsOnce sync.Once
)

// initEngineMetrics registers the model-call histogram with the global meter
// provider. Without a configured provider it is a no-op.
func initEngineMetrics() {
	engineMetricsOnce.Do(func() {
		h, err := engineMeter.Float64Histogram(
			"model_call_duration_seconds",
			metric.WithDescription("Latency of extraction backend calls"),
			metric.WithUnit("s"),
		)
		if err == nil {
			modelCallDuration = h
		}
	})
}

func recordModelCall(ctx context.Context, model string, elapsed time.Duration, err error) {
	if modelCallDuration == nil {
		return
	}
	outcome := "ok"
	if kind, ok := domain.BackendErrorKindOf(err); ok {
		outcome = string(kind)
	} else if err != nil {
		outcome = "error"
	}
	modelCallDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	))
}

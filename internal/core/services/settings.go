package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Environment variables that override the config file.
//
//nolint:gosec // G101: These are variable names, not credentials.
const (
	EnvAnthropicAPIKey  = "ANTHROPIC_API_KEY"
	EnvAnthropicBaseURL = "ANTHROPIC_BASE_URL"
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvOpenAIBaseURL    = "OPENAI_BASE_URL"
	EnvDataDir          = "REGISTRY_REVIEW_DATA_DIR"
)

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindBool
	kindDuration
)

// settingKey binds a dotted config key to a field of domain.Settings.
type settingKey struct {
	key    string
	kind   valueKind
	env    string
	secret bool
	get    func(*domain.Settings) any
	set    func(*domain.Settings, any)
}

var settingKeys = []settingKey{
	{key: "storage.data_dir", kind: kindString, env: EnvDataDir,
		get: func(s *domain.Settings) any { return s.Storage.DataDir },
		set: func(s *domain.Settings, v any) { s.Storage.DataDir = v.(string) }},
	{key: "storage.lock_timeout", kind: kindDuration,
		get: func(s *domain.Settings) any { return s.Storage.LockTimeout },
		set: func(s *domain.Settings, v any) { s.Storage.LockTimeout = v.(time.Duration) }},
	{key: "storage.stale_lock_after", kind: kindDuration,
		get: func(s *domain.Settings) any { return s.Storage.StaleLockAfter },
		set: func(s *domain.Settings, v any) { s.Storage.StaleLockAfter = v.(time.Duration) }},

	{key: "cache.ttl", kind: kindDuration,
		get: func(s *domain.Settings) any { return s.Cache.TTL },
		set: func(s *domain.Settings, v any) { s.Cache.TTL = v.(time.Duration) }},
	{key: "cache.gc_interval", kind: kindDuration,
		get: func(s *domain.Settings) any { return s.Cache.GCInterval },
		set: func(s *domain.Settings, v any) { s.Cache.GCInterval = v.(time.Duration) }},
	{key: "cache.gc_discard_ratio", kind: kindFloat,
		get: func(s *domain.Settings) any { return s.Cache.GCDiscardRatio },
		set: func(s *domain.Settings, v any) { s.Cache.GCDiscardRatio = v.(float64) }},
	{key: "cache.sync_writes", kind: kindBool,
		get: func(s *domain.Settings) any { return s.Cache.SyncWrites },
		set: func(s *domain.Settings, v any) { s.Cache.SyncWrites = v.(bool) }},

	{key: "retry.max_attempts", kind: kindInt,
		get: func(s *domain.Settings) any { return s.Retry.MaxAttempts },
		set: func(s *domain.Settings, v any) { s.Retry.MaxAttempts = v.(int) }},
	{key: "retry.initial_backoff", kind: kindDuration,
		get: func(s *domain.Settings) any { return s.Retry.InitialBackoff },
		set: func(s *domain.Settings, v any) { s.Retry.InitialBackoff = v.(time.Duration) }},
	{key: "retry.max_backoff", kind: kindDuration,
		get: func(s *domain.Settings) any { return s.Retry.MaxBackoff },
		set: func(s *domain.Settings, v any) { s.Retry.MaxBackoff = v.(time.Duration) }},
	{key: "retry.backoff_factor", kind: kindFloat,
		get: func(s *domain.Settings) any { return s.Retry.BackoffFactor },
		set: func(s *domain.Settings, v any) { s.Retry.BackoffFactor = v.(float64) }},
	{key: "retry.jitter", kind: kindFloat,
		get: func(s *domain.Settings) any { return s.Retry.Jitter },
		set: func(s *domain.Settings, v any) { s.Retry.Jitter = v.(float64) }},

	{key: "extraction.enabled", kind: kindBool,
		get: func(s *domain.Settings) any { return s.Extraction.Enabled },
		set: func(s *domain.Settings, v any) { s.Extraction.Enabled = v.(bool) }},
	{key: "extraction.backend", kind: kindString,
		get: func(s *domain.Settings) any { return string(s.Extraction.Provider) },
		set: func(s *domain.Settings, v any) { s.Extraction.Provider = domain.AIProvider(v.(string)) }},
	{key: "extraction.model", kind: kindString,
		get: func(s *domain.Settings) any { return s.Extraction.Model },
		set: func(s *domain.Settings, v any) { s.Extraction.Model = v.(string) }},
	{key: "extraction.max_tokens", kind: kindInt,
		get: func(s *domain.Settings) any { return s.Extraction.MaxTokens },
		set: func(s *domain.Settings, v any) { s.Extraction.MaxTokens = v.(int) }},
	{key: "extraction.temperature", kind: kindFloat,
		get: func(s *domain.Settings) any { return s.Extraction.Temperature },
		set: func(s *domain.Settings, v any) { s.Extraction.Temperature = v.(float64) }},
	{key: "extraction.call_timeout", kind: kindDuration,
		get: func(s *domain.Settings) any { return s.Extraction.CallTimeout },
		set: func(s *domain.Settings, v any) { s.Extraction.CallTimeout = v.(time.Duration) }},
	{key: "extraction.max_concurrent_documents", kind: kindInt,
		get: func(s *domain.Settings) any { return s.Extraction.MaxConcurrentDocuments },
		set: func(s *domain.Settings, v any) { s.Extraction.MaxConcurrentDocuments = v.(int) }},
	{key: "extraction.max_concurrent_calls", kind: kindInt,
		get: func(s *domain.Settings) any { return s.Extraction.MaxConcurrentCalls },
		set: func(s *domain.Settings, v any) { s.Extraction.MaxConcurrentCalls = v.(int) }},
	{key: "extraction.requests_per_minute", kind: kindInt,
		get: func(s *domain.Settings) any { return s.Extraction.RequestsPerMinute },
		set: func(s *domain.Settings, v any) { s.Extraction.RequestsPerMinute = v.(int) }},
	{key: "extraction.chunk_size", kind: kindInt,
		get: func(s *domain.Settings) any { return s.Extraction.ChunkSize },
		set: func(s *domain.Settings, v any) { s.Extraction.ChunkSize = v.(int) }},
	{key: "extraction.chunk_overlap", kind: kindInt,
		get: func(s *domain.Settings) any { return s.Extraction.ChunkOverlap },
		set: func(s *domain.Settings, v any) { s.Extraction.ChunkOverlap = v.(int) }},

	{key: "verification.exact_threshold", kind: kindFloat,
		get: func(s *domain.Settings) any { return s.Verification.ExactThreshold },
		set: func(s *domain.Settings, v any) { s.Verification.ExactThreshold = v.(float64) }},
	{key: "verification.weak_threshold", kind: kindFloat,
		get: func(s *domain.Settings) any { return s.Verification.WeakThreshold },
		set: func(s *domain.Settings, v any) { s.Verification.WeakThreshold = v.(float64) }},
	{key: "verification.weak_penalty", kind: kindFloat,
		get: func(s *domain.Settings) any { return s.Verification.WeakPenalty },
		set: func(s *domain.Settings, v any) { s.Verification.WeakPenalty = v.(float64) }},

	{key: "llm.anthropic_api_key", kind: kindString, env: EnvAnthropicAPIKey, secret: true,
		get: func(s *domain.Settings) any { return s.LLM.AnthropicAPIKey },
		set: func(s *domain.Settings, v any) { s.LLM.AnthropicAPIKey = v.(string) }},
	{key: "llm.anthropic_base_url", kind: kindString, env: EnvAnthropicBaseURL,
		get: func(s *domain.Settings) any { return s.LLM.AnthropicBaseURL },
		set: func(s *domain.Settings, v any) { s.LLM.AnthropicBaseURL = v.(string) }},
	{key: "llm.openai_api_key", kind: kindString, env: EnvOpenAIAPIKey, secret: true,
		get: func(s *domain.Settings) any { return s.LLM.OpenAIAPIKey },
		set: func(s *domain.Settings, v any) { s.LLM.OpenAIAPIKey = v.(string) }},
	{key: "llm.openai_base_url", kind: kindString, env: EnvOpenAIBaseURL,
		get: func(s *domain.Settings) any { return s.LLM.OpenAIBaseURL },
		set: func(s *domain.Settings, v any) { s.LLM.OpenAIBaseURL = v.(string) }},
}

func lookupKey(key string) (settingKey, bool) {
	for _, k := range settingKeys {
		if k.key == key {
			return k, true
		}
	}
	return settingKey{}, false
}

// SettingsService builds domain.Settings from defaults, the config store and
// the environment.
type SettingsService struct {
	configStore      driven.ConfigStore
	backendValidator driven.BackendValidator
	defaultDataDir   string
	getenv           func(string) string
	validate         *validator.Validate
}

// SettingsOption configures a SettingsService.
type SettingsOption func(*SettingsService)

// WithDefaultDataDir sets the data directory used when none is configured.
func WithDefaultDataDir(dir string) SettingsOption {
	return func(s *SettingsService) {
		s.defaultDataDir = dir
	}
}

// WithGetenv overrides environment lookup.
func WithGetenv(getenv func(string) string) SettingsOption {
	return func(s *SettingsService) {
		if getenv != nil {
			s.getenv = getenv
		}
	}
}

// NewSettingsService creates a new settings service.
// backendValidator may be nil, in which case ValidateBackend is a no-op.
func NewSettingsService(configStore driven.ConfigStore, backendValidator driven.BackendValidator, opts ...SettingsOption) *SettingsService {
	s := &SettingsService{
		configStore:      configStore,
		backendValidator: backendValidator,
		getenv:           os.Getenv,
		validate:         validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultDataDir == "" {
		s.defaultDataDir = defaultDataDir(configStore.Path())
	}
	return s
}

func defaultDataDir(configPath string) string {
	if configPath == "" || strings.HasPrefix(configPath, ":") {
		return filepath.Join(os.TempDir(), "registry-review")
	}
	return filepath.Join(filepath.Dir(configPath), "data")
}

// Get returns the validated settings.
func (s *SettingsService) Get() (*domain.Settings, error) {
	settings, _ := s.resolve()
	if err := s.Validate(&settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// resolve overlays the config store and environment on the defaults and
// reports where each key's value came from.
func (s *SettingsService) resolve() (domain.Settings, map[string]string) {
	settings := domain.DefaultSettings(s.defaultDataDir)
	sources := make(map[string]string, len(settingKeys))

	for _, k := range settingKeys {
		sources[k.key] = "default"
		if _, ok := s.configStore.Get(k.key); ok {
			if v, ok := s.fromStore(k); ok {
				k.set(&settings, v)
				sources[k.key] = "file"
			}
		}
		if k.env != "" {
			if v := strings.TrimSpace(s.getenv(k.env)); v != "" {
				k.set(&settings, v)
				sources[k.key] = "env"
			}
		}
	}

	// a provider change without an explicit model picks that provider's default
	if _, ok := s.configStore.Get("extraction.model"); !ok {
		settings.Extraction.Model = settings.Extraction.Provider.DefaultModel()
	}
	return settings, sources
}

func (s *SettingsService) fromStore(k settingKey) (any, bool) {
	switch k.kind {
	case kindString:
		return s.configStore.GetString(k.key), true
	case kindInt:
		return s.configStore.GetInt(k.key), true
	case kindFloat:
		return s.configStore.GetFloat(k.key), true
	case kindBool:
		return s.configStore.GetBool(k.key), true
	case kindDuration:
		d := s.configStore.GetDuration(k.key)
		return d, d != 0
	default:
		return nil, false
	}
}

// Validate checks settings against their struct constraints.
func (s *SettingsService) Validate(settings *domain.Settings) error {
	if err := s.validate.Struct(settings); err != nil {
		return validationError(err)
	}
	return nil
}

// Set parses value according to the key's type, checks the result and
// persists it.
func (s *SettingsService) Set(key, value string) error {
	k, ok := lookupKey(key)
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	parsed, err := parseValue(k.kind, value)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
	}

	settings, _ := s.resolve()
	k.set(&settings, parsed)
	if err := s.Validate(&settings); err != nil {
		return err
	}

	// durations are stored as strings so the file stays readable
	stored := parsed
	if d, ok := parsed.(time.Duration); ok {
		stored = d.String()
	}
	if err := s.configStore.Set(key, stored); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Keys lists every key with its effective value. Secrets are masked.
func (s *SettingsService) Keys() ([]driving.SettingValue, error) {
	settings, sources := s.resolve()

	out := make([]driving.SettingValue, 0, len(settingKeys))
	for _, k := range settingKeys {
		value := formatValue(k.get(&settings))
		if k.secret && value != "" {
			value = maskSecret(value)
		}
		out = append(out, driving.SettingValue{Key: k.key, Value: value, Source: sources[k.key]})
	}
	return out, nil
}

// ValidateBackend pings the configured extraction backend.
func (s *SettingsService) ValidateBackend(ctx context.Context) error {
	if s.backendValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.backendValidator.ValidateBackend(ctx, settings.Extraction, settings.LLM)
}

func parseValue(kind valueKind, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case kindInt:
		return strconv.Atoi(raw)
	case kindFloat:
		return strconv.ParseFloat(raw, 64)
	case kindBool:
		return strconv.ParseBool(raw)
	case kindDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case time.Duration:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func maskSecret(v string) string {
	if len(v) <= 8 {
		return "********"
	}
	return v[:4] + "..." + v[len(v)-4:]
}

// validationError flattens validator errors into one ErrInvalidInput.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s fails %s", fieldPath(fe.Namespace()), rule))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(msgs, "; "))
}

// fieldPath turns "Settings.Extraction.MaxTokens" into "Extraction.MaxTokens".
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

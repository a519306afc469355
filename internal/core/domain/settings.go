package domain

import (
	"path/filepath"
	"time"
)

// AIProvider identifies an extraction backend provider.
type AIProvider string

// Available providers.
const (
	// AIProviderAnthropic is the Anthropic Messages API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderOpenAI is the OpenAI chat completions API or a compatible server.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderPattern disables the model path; only pattern matching runs.
	AIProviderPattern AIProvider = "pattern"
)

// IsValid returns true if the provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderAnthropic, AIProviderOpenAI, AIProviderPattern:
		return true
	default:
		return false
	}
}

// DefaultModel returns the default model for the provider.
func (p AIProvider) DefaultModel() string {
	switch p {
	case AIProviderAnthropic:
		return "claude-sonnet-4-20250514"
	case AIProviderOpenAI:
		return "gpt-4o-mini"
	default:
		return ""
	}
}

// Settings is the process configuration. It is built once at start-up and
// passed to each component; nothing reads configuration from globals.
type Settings struct {
	Storage      StorageSettings
	Cache        CacheSettings
	Retry        RetrySettings
	Extraction   ExtractionSettings
	Verification VerificationSettings
	LLM          LLMSettings
}

// StorageSettings locates durable state.
type StorageSettings struct {
	// DataDir holds sessions/, cache/ and ledger.db.
	DataDir string `validate:"required"`

	// LockTimeout bounds how long a writer waits for a session lock.
	LockTimeout time.Duration `validate:"gt=0"`

	// StaleLockAfter is the age after which an abandoned lock file is removed.
	StaleLockAfter time.Duration `validate:"gt=0"`
}

// CacheSettings configures the durable cache.
type CacheSettings struct {
	TTL            time.Duration `validate:"gt=0"`
	GCInterval     time.Duration `validate:"gte=0"`
	GCDiscardRatio float64       `validate:"gt=0,lt=1"`
	SyncWrites     bool
}

// RetrySettings configures exponential backoff for backend calls.
type RetrySettings struct {
	MaxAttempts    int           `validate:"gte=1,lte=10"`
	InitialBackoff time.Duration `validate:"gt=0"`
	MaxBackoff     time.Duration `validate:"gtefield=InitialBackoff"`
	BackoffFactor  float64       `validate:"gte=1"`
	Jitter         float64       `validate:"gte=0,lte=1"`
}

// ExtractionSettings configures the extraction engine.
type ExtractionSettings struct {
	// Enabled turns the model path on. When false only pattern matching runs.
	Enabled bool

	Provider               AIProvider    `validate:"required,oneof=anthropic openai pattern"`
	Model                  string        `validate:"required_unless=Provider pattern"`
	MaxTokens              int           `validate:"gt=0"`
	Temperature            float64       `validate:"gte=0,lte=2"`
	CallTimeout            time.Duration `validate:"gt=0"`
	MaxConcurrentDocuments int           `validate:"gte=1"`
	MaxConcurrentCalls     int           `validate:"gte=1"`
	RequestsPerMinute      int           `validate:"gte=0"`
	ChunkSize              int           `validate:"gte=200"`
	ChunkOverlap           int           `validate:"gte=0,ltfield=ChunkSize"`
}

// VerificationSettings configures the citation verifier.
type VerificationSettings struct {
	ExactThreshold float64 `validate:"gt=0,lte=1"`
	WeakThreshold  float64 `validate:"gt=0,ltfield=ExactThreshold"`
	WeakPenalty    float64 `validate:"gte=0,lte=1"`
}

// LLMSettings holds provider credentials and endpoints.
type LLMSettings struct {
	AnthropicAPIKey  string
	AnthropicBaseURL string
	OpenAIAPIKey     string

	// OpenAIBaseURL points the OpenAI backend at a compatible server
	// (Azure, Ollama, vLLM).
	OpenAIBaseURL string
}

// APIKey returns the key for the provider.
func (s LLMSettings) APIKey(p AIProvider) string {
	switch p {
	case AIProviderAnthropic:
		return s.AnthropicAPIKey
	case AIProviderOpenAI:
		return s.OpenAIAPIKey
	default:
		return ""
	}
}

// DefaultSettings returns the built-in configuration rooted at dataDir.
func DefaultSettings(dataDir string) Settings {
	return Settings{
		Storage: StorageSettings{
			DataDir:        dataDir,
			LockTimeout:    5 * time.Second,
			StaleLockAfter: 30 * time.Second,
		},
		Cache: CacheSettings{
			TTL:            30 * 24 * time.Hour,
			GCInterval:     5 * time.Minute,
			GCDiscardRatio: 0.5,
			SyncWrites:     true,
		},
		Retry: RetrySettings{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			BackoffFactor:  2.0,
			Jitter:         0.2,
		},
		Extraction: ExtractionSettings{
			Enabled:                true,
			Provider:               AIProviderAnthropic,
			Model:                  AIProviderAnthropic.DefaultModel(),
			MaxTokens:              4096,
			Temperature:            0,
			CallTimeout:            60 * time.Second,
			MaxConcurrentDocuments: 4,
			MaxConcurrentCalls:     4,
			RequestsPerMinute:      50,
			ChunkSize:              6000,
			ChunkOverlap:           500,
		},
		Verification: VerificationSettings{
			ExactThreshold: 0.9,
			WeakThreshold:  0.6,
			WeakPenalty:    0.25,
		},
	}
}

// SessionsDir returns the directory holding session documents.
func (s StorageSettings) SessionsDir() string {
	return filepath.Join(s.DataDir, "sessions")
}

// CacheDir returns the directory holding the durable cache.
func (s StorageSettings) CacheDir() string {
	return filepath.Join(s.DataDir, "cache")
}

// LedgerPath returns the sqlite database path for the cost ledger and session index.
func (s StorageSettings) LedgerPath() string {
	return filepath.Join(s.DataDir, "ledger.db")
}

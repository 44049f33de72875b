package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "grant-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// FetchConfig holds settings for exemplar PDF acquisition.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// Manifest is the path to the YAML manifest listing exemplar grants.
	Manifest string `json:"manifest" yaml:"manifest"`

	// DownloadDelay is the delay between consecutive downloads (default 1s).
	DownloadDelay time.Duration `json:"download_delay" yaml:"download_delay"`
}

// ConversionBackend identifies the PDF text extraction tool.
type ConversionBackend string

const (
	BackendNative    ConversionBackend = "native"
	BackendGROBID    ConversionBackend = "grobid"
	BackendPdftotext ConversionBackend = "pdftotext"
)

// ConversionConfig holds settings for the conversion stage.
type ConversionConfig struct {
	// Backend selects the extraction tool: native, grobid, or pdftotext.
	Backend ConversionBackend `json:"backend" yaml:"backend"`

	// GrobidURL is the base URL of a running GROBID service
	// (default "http://localhost:8070").
	GrobidURL string `json:"grobid_url" yaml:"grobid_url"`
}

// ChunkingConfig holds settings for splitting aims text before embedding.
type ChunkingConfig struct {
	// SentencesPerChunk is the window size in sentences (default 5).
	SentencesPerChunk int `json:"sentences_per_chunk" yaml:"sentences_per_chunk"`

	// OverlapSentences is the number of sentences shared between
	// consecutive chunks (default 1).
	OverlapSentences int `json:"overlap_sentences" yaml:"overlap_sentences"`
}

// EmbeddingBackend identifies the embedding vector source.
type EmbeddingBackend string

const (
	EmbedOpenAI EmbeddingBackend = "openai"
	EmbedTFIDF  EmbeddingBackend = "tfidf"
)

// EmbeddingConfig holds settings for the embedding stage.
type EmbeddingConfig struct {
	HTTPConfig `yaml:",inline"`

	// Backend selects the embedder: openai (hosted) or tfidf (local).
	Backend EmbeddingBackend `json:"backend" yaml:"backend"`

	// Model is the embedding model identifier (e.g. "text-embedding-3-small").
	Model string `json:"model" yaml:"model"`

	// BaseURL is the OpenAI-compatible API base (default "https://api.openai.com/v1").
	// Self-hosted gateways substitute their own.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIKey is the authentication key for the hosted API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BatchSize is the maximum number of texts per API request (default 16).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// MaxRetries is the number of retry attempts for failed API calls (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RequestsPerMinute rate-limits hosted API calls. Zero disables the limiter.
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
}

// RetrievalConfig holds settings for the retrieval stage.
type RetrievalConfig struct {
	// MaxResults is the default maximum number of exemplars returned (default 10).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// MinSimilarity drops hits scoring below this cosine similarity (default 0).
	MinSimilarity float64 `json:"min_similarity" yaml:"min_similarity"`
}

// AIConfig holds shared settings for stages that call a generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// GenerationBackend identifies the drafting model API.
type GenerationBackend string

const (
	GenClaude GenerationBackend = "claude"
	GenOpenAI GenerationBackend = "openai"
)

// GenerationConfig holds settings for the generation stage.
type GenerationConfig struct {
	AIConfig `yaml:",inline"`

	// Backend selects the drafting API: claude or openai.
	Backend GenerationBackend `json:"backend" yaml:"backend"`

	// BaseURL overrides the API base for OpenAI-compatible gateways.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// MaxTokens caps the generated draft length (default 2048).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// ExemplarCount is the number of retrieved exemplars included in the
	// prompt (default 3).
	ExemplarCount int `json:"exemplar_count" yaml:"exemplar_count"`
}

// ServerConfig holds settings for the local demo server.
type ServerConfig struct {
	// Addr is the listen address (default "localhost:8080").
	Addr string `json:"addr" yaml:"addr"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	// DataDir is the root of the numbered pipeline data directories.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	Fetch      FetchConfig      `json:"fetch" yaml:"fetch"`
	Conversion ConversionConfig `json:"conversion" yaml:"conversion"`
	Chunking   ChunkingConfig   `json:"chunking" yaml:"chunking"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	Retrieval  RetrievalConfig  `json:"retrieval" yaml:"retrieval"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Server     ServerConfig     `json:"server" yaml:"server"`
}

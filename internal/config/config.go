// Package config defines the engine configuration: a single typed structure
// loaded once at startup and treated as immutable for the process lifetime.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Cache      CacheConfig      `yaml:"cache"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Confidence ConfidenceConfig `yaml:"confidence"`
	Embedding  ClientConfig     `yaml:"embedding"`
	Generation ClientConfig     `yaml:"generation"`

	// RequestTimeout bounds a full query lifecycle including external calls.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// CorpusConfig locates the passage corpus.
type CorpusConfig struct {
	Path  string `yaml:"path"`  // JSONL file of passage records
	Watch bool   `yaml:"watch"` // reload on file change
}

// CacheConfig controls both cache tiers.
type CacheConfig struct {
	ExactCapacity    int           `yaml:"exact_capacity"`
	ExactTTL         time.Duration `yaml:"exact_ttl"`
	SlidingTTL       bool          `yaml:"sliding_ttl"` // extend TTL on hit instead of absolute expiry
	SemanticCapacity int           `yaml:"semantic_capacity"`
	SemanticTTL      time.Duration `yaml:"semantic_ttl"`

	// SimilarityThreshold is the minimum cosine similarity for a semantic
	// cache hit. The single most important tunable in the system: raising it
	// trades recall for precision.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// PersistPath enables the durable SQLite cache store when non-empty.
	PersistPath string `yaml:"persist_path"`
}

// RetrievalConfig controls hybrid search and fusion.
type RetrievalConfig struct {
	TopK          int     `yaml:"top_k"`
	LexicalWeight float64 `yaml:"lexical_weight"`
	VectorWeight  float64 `yaml:"vector_weight"`

	// Rerank boosts applied to the fused shortlist.
	KeywordBoost float64  `yaml:"keyword_boost"`
	EntityBoost  float64  `yaml:"entity_boost"`
	DomainTerms  []string `yaml:"domain_terms"`
}

// ConfidenceConfig controls the confidence scorer. Factor weights must sum
// to 1.0; level thresholds must partition [0,1] without gaps.
type ConfidenceConfig struct {
	SourceQualityWeight   float64 `yaml:"source_quality_weight"`
	CompletenessWeight    float64 `yaml:"completeness_weight"`
	SpecificityWeight     float64 `yaml:"specificity_weight"`
	DomainRelevanceWeight float64 `yaml:"domain_relevance_weight"`

	HighThreshold   float64 `yaml:"high_threshold"`
	MediumThreshold float64 `yaml:"medium_threshold"`

	SaturationSources int      `yaml:"saturation_sources"` // sources beyond this add nothing
	SaturationWords   int      `yaml:"saturation_words"`   // answer words beyond this add nothing
	DomainTerms       []string `yaml:"domain_terms"`
}

// ClientConfig configures an external HTTP service client.
type ClientConfig struct {
	Provider   string        `yaml:"provider"` // "ollama" or "openai"
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	CacheSize  int           `yaml:"cache_size"` // embedding cache entries, 0 disables
}

// Default returns a Config with documented defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Cache: CacheConfig{
			ExactCapacity:       500,
			ExactTTL:            time.Hour,
			SemanticCapacity:    1000,
			SemanticTTL:         time.Hour,
			SimilarityThreshold: 0.85,
		},
		Retrieval: RetrievalConfig{
			TopK:          5,
			LexicalWeight: 0.5,
			VectorWeight:  0.5,
			KeywordBoost:  0.1,
			EntityBoost:   0.15,
		},
		Confidence: ConfidenceConfig{
			SourceQualityWeight:   0.40,
			CompletenessWeight:    0.20,
			SpecificityWeight:     0.20,
			DomainRelevanceWeight: 0.20,
			HighThreshold:         0.7,
			MediumThreshold:       0.4,
			SaturationSources:     3,
			SaturationWords:       100,
		},
		Embedding: ClientConfig{
			Provider:   "ollama",
			BaseURL:    "http://localhost:11434",
			Model:      "nomic-embed-text",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			CacheSize:  10000,
		},
		Generation: ClientConfig{
			Provider:   "ollama",
			BaseURL:    "http://localhost:11434",
			Model:      "llama3.2",
			Timeout:    120 * time.Second,
			MaxRetries: 3,
		},
		RequestTimeout: 3 * time.Minute,
	}
}

// Load reads a YAML config file on top of defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that the rest of the engine relies on.
func (c *Config) Validate() error {
	if c.Cache.ExactCapacity <= 0 || c.Cache.SemanticCapacity <= 0 {
		return fmt.Errorf("cache capacities must be positive")
	}
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %v", c.Cache.SimilarityThreshold)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}
	if c.Retrieval.LexicalWeight < 0 || c.Retrieval.VectorWeight < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	if c.Retrieval.LexicalWeight+c.Retrieval.VectorWeight == 0 {
		return fmt.Errorf("at least one fusion weight must be positive")
	}

	cc := c.Confidence
	sum := cc.SourceQualityWeight + cc.CompletenessWeight + cc.SpecificityWeight + cc.DomainRelevanceWeight
	if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("confidence weights must sum to 1.0, got %v", sum)
	}
	// Thresholds partition [0,1]: [0,medium) low, [medium,high) medium, [high,1] high.
	if !(cc.MediumThreshold > 0 && cc.MediumThreshold < cc.HighThreshold && cc.HighThreshold <= 1) {
		return fmt.Errorf("confidence thresholds must satisfy 0 < medium < high <= 1")
	}
	return nil
}
